package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/rescale/docbatch/internal/constants"
)

// ConfigDirectory returns ~/.config/docbatch, or the %USERPROFILE%
// equivalent on Windows.
func ConfigDirectory() (string, error) {
	if runtime.GOOS == "windows" {
		if profile := os.Getenv("USERPROFILE"); profile != "" {
			return filepath.Join(profile, ".config", constants.ConfigDir), nil
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", constants.ConfigDir), nil
}

// DefaultConfigPath returns the path of the INI config file.
func DefaultConfigPath() (string, error) {
	dir, err := ConfigDirectory()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config"), nil
}

// DefaultTokenPath returns the path of the token file written by `login`.
// Returns "" if the home directory cannot be determined.
func DefaultTokenPath() string {
	dir, err := ConfigDirectory()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "token")
}

// LogDirectory returns the directory used for rotated log files.
func LogDirectory() string {
	dir, err := ConfigDirectory()
	if err != nil {
		return filepath.Join(os.TempDir(), constants.AppName+"-logs")
	}
	return filepath.Join(dir, "logs")
}
