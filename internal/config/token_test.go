package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteAndReadTokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "token")

	if err := WriteTokenFile(path, "  tok-123 \n"); err != nil {
		t.Fatalf("WriteTokenFile failed: %v", err)
	}

	got, err := ReadTokenFile(path)
	if err != nil {
		t.Fatalf("ReadTokenFile failed: %v", err)
	}
	if got != "tok-123" {
		t.Errorf("ReadTokenFile() = %q, want %q", got, "tok-123")
	}
}

func TestWriteTokenFileEmpty(t *testing.T) {
	if err := WriteTokenFile(filepath.Join(t.TempDir(), "token"), "   "); err == nil {
		t.Error("WriteTokenFile with blank token should fail")
	}
}

func TestReadTokenFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadTokenFile(path); err == nil {
		t.Error("ReadTokenFile on empty file should fail")
	}
}

func TestResolveTokenPriority(t *testing.T) {
	dir := t.TempDir()
	tokenPath := filepath.Join(dir, "token")
	missing := filepath.Join(dir, "missing")
	cfg := &Config{Token: "from-config"}

	t.Setenv(TokenEnvVar, "from-env")

	if err := WriteTokenFile(tokenPath, "from-file"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		explicit  string
		tokenPath string
		cfg       *Config
		want      string
	}{
		{"explicit wins", "from-flag", tokenPath, cfg, "from-flag"},
		{"token file next", "", tokenPath, cfg, "from-file"},
		{"config file next", "", missing, cfg, "from-config"},
		{"env last", "", missing, &Config{}, "from-env"},
		{"nil config", "", missing, nil, "from-env"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveToken(tt.explicit, tt.tokenPath, tt.cfg); got != tt.want {
				t.Errorf("ResolveToken() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClearToken(t *testing.T) {
	dir := t.TempDir()
	tokenPath := filepath.Join(dir, "token")
	configPath := filepath.Join(dir, "config")

	if err := WriteTokenFile(tokenPath, "tok"); err != nil {
		t.Fatal(err)
	}
	cfg := NewConfig()
	cfg.Token = "cfg-tok"
	cfg.BaseURL = "https://docs.example.com"
	if err := Save(cfg, configPath); err != nil {
		t.Fatal(err)
	}

	if err := ClearToken(tokenPath, configPath); err != nil {
		t.Fatalf("ClearToken() error = %v", err)
	}

	if _, err := os.Stat(tokenPath); !os.IsNotExist(err) {
		t.Errorf("token file still exists after ClearToken")
	}
	loaded, err := Load(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Token != "" {
		t.Errorf("config token = %q, want cleared", loaded.Token)
	}
	if loaded.BaseURL != "https://docs.example.com" {
		t.Errorf("BaseURL = %s, want preserved", loaded.BaseURL)
	}

	// Second call with nothing to clear is a no-op.
	if err := ClearToken(tokenPath, configPath); err != nil {
		t.Errorf("ClearToken() second call error = %v", err)
	}
}
