// Package progress renders batch runs: an in-place overlay bar for convert
// and upload, a multi-row panel for delete and vectorize, and event bus,
// JSON and websocket feeds for anything that is not a terminal.
package progress

import (
	"io"
	"os"
	"path"
	"strings"

	"golang.org/x/term"
)

// isTerminal reports whether w is a terminal. Bars are only drawn on one;
// anything else gets plain lines.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if !term.IsTerminal(int(f.Fd())) {
		return false
	}
	enableVirtualTerminal(f)
	return true
}

// truncateName shortens an object name to its last n components.
// Example: truncateName("a/b/c/d/file.pdf", 2) → "…/d/file.pdf"
func truncateName(name string, n int) string {
	parts := strings.Split(name, "/")
	if len(parts) <= n {
		return name
	}
	if n <= 1 {
		return path.Base(name)
	}
	return "…/" + strings.Join(parts[len(parts)-n:], "/")
}

// outcomeLine is the one-line summary printed when a surface closes.
func outcomeLine(title string, outcome string) string {
	switch outcome {
	case "completed":
		return title + " finished"
	case "cancelled":
		return title + " cancelled"
	case "incomplete":
		return title + " stream ended early"
	default:
		return title + " " + outcome
	}
}
