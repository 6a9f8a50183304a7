package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TokenEnvVar is consulted last when resolving the bearer token.
const TokenEnvVar = "DOCBATCH_TOKEN"

// ResolveToken returns a bearer token by checking sources in priority order:
//  1. the explicit token (e.g. from --token)
//  2. the token file at tokenPath (DefaultTokenPath when empty)
//  3. the token stored in the config file
//  4. the DOCBATCH_TOKEN environment variable
//
// Returns "" if no source has one.
func ResolveToken(explicit, tokenPath string, cfg *Config) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit
	}

	if tokenPath == "" {
		tokenPath = DefaultTokenPath()
	}
	if tokenPath != "" {
		if tok, err := ReadTokenFile(tokenPath); err == nil {
			return tok
		}
	}

	if cfg != nil && cfg.Token != "" {
		return cfg.Token
	}

	return strings.TrimSpace(os.Getenv(TokenEnvVar))
}

// ReadTokenFile reads a bearer token from a file containing only the token.
// Warns on stderr if the file is readable by group or others.
func ReadTokenFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat token file: %w", err)
	}

	if mode := info.Mode().Perm(); mode&0077 != 0 {
		fmt.Fprintf(os.Stderr, "Warning: Token file %s has insecure permissions %04o. Consider using 'chmod 600 %s'\n", path, mode, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file is empty")
	}
	return token, nil
}

// WriteTokenFile writes a bearer token with 0600 permissions.
func WriteTokenFile(path, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("cannot write empty token")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(token+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// ClearToken removes the stored token file and blanks the token held in the
// config file at configPath, if any. This is the forced logout the batch
// engine triggers on a 401. Missing files are not an error.
func ClearToken(tokenPath, configPath string) error {
	if tokenPath == "" {
		tokenPath = DefaultTokenPath()
	}
	if tokenPath != "" {
		if err := os.Remove(tokenPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove token file: %w", err)
		}
	}

	if configPath == "" {
		var err error
		configPath, err = DefaultConfigPath()
		if err != nil {
			return nil
		}
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil
	}
	cfg, err := Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Token == "" {
		return nil
	}
	cfg.Token = ""
	return Save(cfg, configPath)
}
