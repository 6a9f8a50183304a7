package state

import (
	"path"
	"regexp"
	"strings"
)

// pageImagePattern matches generated page images: <parent>/page_NNN.png or
// <parent>/page_NNNNNN.png.
var pageImagePattern = regexp.MustCompile(`^(.+)/page_(\d{3}|\d{6})\.png$`)

// pageParent returns the parent path of a page image name.
func pageParent(name string) (string, bool) {
	m := pageImagePattern.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// sourceBase strips a single extension from name. Names without an extension
// (and dot-files) have no base.
func sourceBase(name string) (string, bool) {
	ext := path.Ext(name)
	if ext == "" || ext == name || strings.HasSuffix(name, "/") {
		return "", false
	}
	base := strings.TrimSuffix(name, ext)
	if strings.HasSuffix(base, "/") {
		return "", false
	}
	return base, true
}

// IsDerivedArtifact reports whether name is a page image generated from
// another object in known: it must match the page image pattern and a
// sibling whose name is the page's parent path plus one extension must exist.
func IsDerivedArtifact(name string, known []string) bool {
	return NewArtifactIndex(known).IsDerived(name)
}

// ArtifactIndex answers IsDerivedArtifact for many names against one
// listing without rescanning it.
type ArtifactIndex struct {
	bases map[string]struct{}
}

// NewArtifactIndex indexes the extension-stripped names in known.
func NewArtifactIndex(known []string) *ArtifactIndex {
	ix := &ArtifactIndex{bases: make(map[string]struct{}, len(known))}
	for _, name := range known {
		if base, ok := sourceBase(name); ok {
			ix.bases[base] = struct{}{}
		}
	}
	return ix
}

// IsDerived reports whether name is a derived artifact of an indexed object.
func (ix *ArtifactIndex) IsDerived(name string) bool {
	parent, ok := pageParent(name)
	if !ok {
		return false
	}
	_, ok = ix.bases[parent]
	return ok
}
