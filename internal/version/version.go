// Package version holds the build identity reported by the CLI and the
// websocket bridge. It has no imports so any package may use it.
package version

// Version and BuildTime are overridden from cmd/docbatch at startup, which in
// turn takes them from -ldflags "-X main.Version=... -X main.BuildTime=...".
var (
	Version   = "v0.4.0-dev"
	BuildTime = "unknown"
)
