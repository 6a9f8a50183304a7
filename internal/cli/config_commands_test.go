package cli

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rescale/docbatch/internal/config"
)

func noTerminal(t *testing.T) {
	t.Helper()
	orig := stdinIsTerminal
	stdinIsTerminal = func() bool { return false }
	t.Cleanup(func() { stdinIsTerminal = orig })
}

// TestConfigCmd tests the config command group
func TestConfigCmd(t *testing.T) {
	cmd := newConfigCmd()
	if cmd.Use != "config" {
		t.Errorf("Expected Use='config', got '%s'", cmd.Use)
	}

	expectedSubs := []string{"init", "show", "test", "path"}
	subcommands := cmd.Commands()
	if len(subcommands) != len(expectedSubs) {
		t.Errorf("Expected %d subcommands, got %d", len(expectedSubs), len(subcommands))
	}

	found := make(map[string]bool)
	for _, sub := range subcommands {
		found[sub.Name()] = true
		if sub.Short == "" {
			t.Errorf("Subcommand '%s' has no short description", sub.Name())
		}
	}
	for _, expected := range expectedSubs {
		if !found[expected] {
			t.Errorf("Subcommand '%s' not found", expected)
		}
	}
}

// TestConfigInit tests the config init command structure
func TestConfigInit(t *testing.T) {
	cmd := newConfigInitCmd()
	if cmd.Use != "init" {
		t.Errorf("Expected Use='init', got '%s'", cmd.Use)
	}
	if cmd.RunE == nil {
		t.Error("RunE function is nil")
	}
	if cmd.Flags().Lookup("force") == nil {
		t.Error("--force flag not found")
	}
}

func TestPromptConfigS3(t *testing.T) {
	noTerminal(t)

	input := strings.Join([]string{
		"https://docs.example.com/api",
		"tok-123",
		"s3",
		"bucket-a",
		"us-east-2",
		"",
		"",
		"docs/",
		"250",
	}, "\n") + "\n"

	var out bytes.Buffer
	cfg, token, err := promptConfig(bufio.NewReader(strings.NewReader(input)), &out, config.NewConfig())
	if err != nil {
		t.Fatalf("promptConfig() error = %v", err)
	}

	if token != "tok-123" {
		t.Errorf("token = %q, want tok-123", token)
	}
	if cfg.Token != "" {
		t.Errorf("cfg.Token = %q, want empty (token goes to the token file)", cfg.Token)
	}
	if cfg.BaseURL != "https://docs.example.com/api" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	want := config.StorageConfig{Provider: "s3", Bucket: "bucket-a", Region: "us-east-2", Prefix: "docs/"}
	if cfg.Storage != want {
		t.Errorf("Storage = %+v, want %+v", cfg.Storage, want)
	}
	if cfg.SettleDelay != 250*time.Millisecond {
		t.Errorf("SettleDelay = %v, want 250ms", cfg.SettleDelay)
	}
	if !strings.Contains(out.String(), "Dashboard API URL [http://localhost:8000]: ") {
		t.Errorf("prompt did not offer the default URL:\n%s", out.String())
	}
}

func TestPromptConfigDefaults(t *testing.T) {
	noTerminal(t)

	// Every answer empty: keep the defaults, skip the token.
	input := strings.Repeat("\n", 4)
	cfg, token, err := promptConfig(bufio.NewReader(strings.NewReader(input)), &bytes.Buffer{}, config.NewConfig())
	if err != nil {
		t.Fatalf("promptConfig() error = %v", err)
	}
	if token != "" {
		t.Errorf("token = %q, want empty", token)
	}
	if cfg.BaseURL != config.DefaultBaseURL || cfg.Storage.Provider != config.ProviderAPI {
		t.Errorf("cfg = %+v, want defaults", cfg)
	}
	if cfg.SettleDelay != time.Second {
		t.Errorf("SettleDelay = %v, want 1s", cfg.SettleDelay)
	}
}

func TestPromptConfigErrors(t *testing.T) {
	noTerminal(t)

	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"azure without container", "\n\nazure\n\n\n\n\n", config.ErrMissingAccountURL},
		{"bad url", "ftp://x\n\n\n\n", config.ErrInvalidBaseURL},
		{"bad settle", "\n\n\nsoon\n", nil},
		{"eof", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := promptConfig(bufio.NewReader(strings.NewReader(tt.input)), &bytes.Buffer{}, config.NewConfig())
			if err == nil {
				t.Fatal("promptConfig() error = nil, want error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("promptConfig() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPrintConfigMasksSecrets(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Token = "secret-token-abcd"
	cfg.Storage = config.StorageConfig{Provider: config.ProviderS3, Bucket: "b", SecretKey: "s3-secret"}

	var out bytes.Buffer
	printConfig(&out, cfg, "/tmp/config")

	got := out.String()
	if strings.Contains(got, "secret-token") || strings.Contains(got, "s3-secret") {
		t.Errorf("secrets printed:\n%s", got)
	}
	for _, want := range []string{"abcd", "Bucket:           b", "Configuration file: /tmp/config"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}
