// docbatch - operator client for the document dashboard.
package main

import (
	"os"

	"github.com/rescale/docbatch/internal/cli"
	"github.com/rescale/docbatch/internal/version"
)

// Set by ldflags: -X main.Version=... -X main.BuildTime=...
var (
	Version   = "v0.4.0-dev"
	BuildTime = "unknown"
)

func main() {
	version.Version = Version
	version.BuildTime = BuildTime

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
