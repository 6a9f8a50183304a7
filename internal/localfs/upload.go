// Package localfs collects local files for upload.
package localfs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// File is one local file queued for upload. Name is what the server will
// store it as.
type File struct {
	Path string
	Name string
	Size int64
}

// Options controls directory expansion.
type Options struct {
	// IncludeHidden uploads dot-files and descends into dot-directories.
	IncludeHidden bool
}

// IsHiddenName reports whether a base name is a dot-file. "." and ".." are
// not hidden.
func IsHiddenName(name string) bool {
	if name == "." || name == ".." {
		return false
	}
	return strings.HasPrefix(name, ".")
}

// ValidateName rejects names the server would treat as paths.
func ValidateName(name string) error {
	switch {
	case name == "" || name == "." || name == "..":
		return fmt.Errorf("invalid file name %q", name)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("file name contains null byte: %q", name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("file name cannot contain path separators: %q", name)
	}
	return nil
}

// expandHome replaces a leading ~ with the home directory.
func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, `~\`) {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, path[1:]), nil
}

// Collect resolves command line paths into files. Directories are walked
// recursively; hidden entries are skipped unless opts.IncludeHidden. Files are
// uploaded under their base name, so two inputs with the same base name are
// an error. The result keeps argument order, with each directory's files
// sorted by path.
func Collect(paths []string, opts Options) ([]File, error) {
	var files []File
	seen := make(map[string]string)

	add := func(path string, info fs.FileInfo) error {
		name := filepath.Base(path)
		if err := ValidateName(name); err != nil {
			return err
		}
		if prev, dup := seen[name]; dup {
			return fmt.Errorf("%s and %s would both upload as %q", prev, path, name)
		}
		seen[name] = path
		files = append(files, File{Path: path, Name: name, Size: info.Size()})
		return nil
	}

	for _, arg := range paths {
		path, err := expandHome(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot resolve %s: %w", arg, err)
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("cannot upload %s: %w", arg, err)
		}
		if !info.IsDir() {
			if err := add(path, info); err != nil {
				return nil, err
			}
			continue
		}

		var found []string
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if p != path && !opts.IncludeHidden && IsHiddenName(d.Name()) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() {
				found = append(found, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", arg, err)
		}
		sort.Strings(found)
		for _, p := range found {
			fi, err := os.Stat(p)
			if err != nil {
				return nil, fmt.Errorf("cannot upload %s: %w", p, err)
			}
			if err := add(p, fi); err != nil {
				return nil, err
			}
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no files to upload")
	}
	return files, nil
}

// Paths returns the local paths of files.
func Paths(files []File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out
}

// Names returns the upload names of files.
func Names(files []File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Name
	}
	return out
}
