// Package config provides configuration management for docbatch.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/rescale/docbatch/internal/constants"
)

// Storage providers accepted in the [storage] section.
const (
	ProviderAPI   = "api"
	ProviderS3    = "s3"
	ProviderAzure = "azure"
)

// DefaultBaseURL is used when no dashboard URL has been configured.
const DefaultBaseURL = "http://localhost:8000"

// Config holds everything the CLI needs to reach the dashboard backend.
//
// INI format:
//
//	[dashboard]
//	base_url = https://docs.example.com/api
//	token = <bearer token>
//
//	[proxy]
//	mode = no-proxy
//	host =
//	port = 8080
//	user =
//	password =
//	no_proxy = localhost,127.0.0.1
//
//	[storage]
//	provider = api
//	bucket =
//	prefix =
//
//	[batch]
//	settle_delay_ms = 1000
//	request_timeout_s = 10
type Config struct {
	BaseURL string
	Token   string

	// Proxy settings. ProxyMode is one of no-proxy, system, basic, ntlm.
	ProxyMode     string
	ProxyHost     string
	ProxyPort     int
	ProxyUser     string
	ProxyPassword string
	NoProxy       string
	ProxyWarmup   bool

	Storage StorageConfig

	// SettleDelay is how long a finished run stays on screen before the
	// surface closes.
	SettleDelay time.Duration

	// RequestTimeout bounds plain (non-streaming) API calls.
	RequestTimeout time.Duration
}

// StorageConfig selects where object listings come from.
type StorageConfig struct {
	Provider   string
	Bucket     string
	Prefix     string
	Region     string
	Endpoint   string
	AccessKey  string
	SecretKey  string
	AccountURL string
	SASToken   string
}

// Validation errors.
var (
	ErrMissingBaseURL     = errors.New("base_url is required")
	ErrInvalidBaseURL     = errors.New("base_url must be an absolute http(s) URL")
	ErrUnknownProvider    = errors.New("storage provider must be one of api, s3, azure")
	ErrMissingBucket      = errors.New("bucket is required for the s3 provider")
	ErrMissingAccountURL  = errors.New("account_url is required for the azure provider")
	ErrInvalidSettleDelay = errors.New("settle_delay_ms must be between 0 and 30000")
	ErrUnknownProxyMode   = errors.New("proxy mode must be one of no-proxy, system, basic, ntlm")
)

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		BaseURL:        DefaultBaseURL,
		ProxyMode:      "no-proxy",
		ProxyPort:      8080,
		Storage:        StorageConfig{Provider: ProviderAPI},
		SettleDelay:    constants.DefaultSettleDelay,
		RequestTimeout: constants.APIRequestTimeout,
	}
}

// Load reads configuration from an INI file. A missing file yields defaults
// and no error; an unreadable or malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	dash := iniFile.Section("dashboard")
	cfg.BaseURL = strings.TrimRight(dash.Key("base_url").MustString(cfg.BaseURL), "/")
	cfg.Token = strings.TrimSpace(dash.Key("token").String())

	proxy := iniFile.Section("proxy")
	cfg.ProxyMode = strings.ToLower(proxy.Key("mode").MustString(cfg.ProxyMode))
	cfg.ProxyHost = proxy.Key("host").String()
	cfg.ProxyPort = proxy.Key("port").MustInt(cfg.ProxyPort)
	cfg.ProxyUser = proxy.Key("user").String()
	cfg.ProxyPassword = proxy.Key("password").String()
	cfg.NoProxy = proxy.Key("no_proxy").String()
	cfg.ProxyWarmup = proxy.Key("warmup").MustBool(false)

	store := iniFile.Section("storage")
	cfg.Storage = StorageConfig{
		Provider:   strings.ToLower(store.Key("provider").MustString(ProviderAPI)),
		Bucket:     store.Key("bucket").String(),
		Prefix:     store.Key("prefix").String(),
		Region:     store.Key("region").String(),
		Endpoint:   store.Key("endpoint").String(),
		AccessKey:  store.Key("access_key").String(),
		SecretKey:  store.Key("secret_key").String(),
		AccountURL: store.Key("account_url").String(),
		SASToken:   store.Key("sas_token").String(),
	}

	batch := iniFile.Section("batch")
	cfg.SettleDelay = time.Duration(batch.Key("settle_delay_ms").MustInt(int(constants.DefaultSettleDelay/time.Millisecond))) * time.Millisecond
	cfg.RequestTimeout = time.Duration(batch.Key("request_timeout_s").MustInt(int(constants.APIRequestTimeout/time.Second))) * time.Second

	return cfg, nil
}

// Save writes the configuration to an INI file with owner-only permissions.
// The file is written to a temporary path and renamed into place.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()

	dash, err := iniFile.NewSection("dashboard")
	if err != nil {
		return fmt.Errorf("failed to create dashboard section: %w", err)
	}
	dash.Key("base_url").SetValue(cfg.BaseURL)
	dash.Key("token").SetValue(cfg.Token)

	proxy, err := iniFile.NewSection("proxy")
	if err != nil {
		return fmt.Errorf("failed to create proxy section: %w", err)
	}
	proxy.Key("mode").SetValue(cfg.ProxyMode)
	proxy.Key("host").SetValue(cfg.ProxyHost)
	proxy.Key("port").SetValue(fmt.Sprintf("%d", cfg.ProxyPort))
	proxy.Key("user").SetValue(cfg.ProxyUser)
	// Proxy passwords are prompted for, never persisted.
	proxy.Key("no_proxy").SetValue(cfg.NoProxy)
	proxy.Key("warmup").SetValue(fmt.Sprintf("%t", cfg.ProxyWarmup))

	store, err := iniFile.NewSection("storage")
	if err != nil {
		return fmt.Errorf("failed to create storage section: %w", err)
	}
	store.Key("provider").SetValue(cfg.Storage.Provider)
	store.Key("bucket").SetValue(cfg.Storage.Bucket)
	store.Key("prefix").SetValue(cfg.Storage.Prefix)
	store.Key("region").SetValue(cfg.Storage.Region)
	store.Key("endpoint").SetValue(cfg.Storage.Endpoint)
	store.Key("access_key").SetValue(cfg.Storage.AccessKey)
	store.Key("secret_key").SetValue(cfg.Storage.SecretKey)
	store.Key("account_url").SetValue(cfg.Storage.AccountURL)
	store.Key("sas_token").SetValue(cfg.Storage.SASToken)

	batch, err := iniFile.NewSection("batch")
	if err != nil {
		return fmt.Errorf("failed to create batch section: %w", err)
	}
	batch.Key("settle_delay_ms").SetValue(fmt.Sprintf("%d", cfg.SettleDelay/time.Millisecond))
	batch.Key("request_timeout_s").SetValue(fmt.Sprintf("%d", cfg.RequestTimeout/time.Second))

	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// Validate checks the configuration for values the CLI cannot work with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return ErrMissingBaseURL
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidBaseURL
	}

	switch strings.ToLower(c.ProxyMode) {
	case "", "no-proxy", "system", "basic", "ntlm":
	default:
		return ErrUnknownProxyMode
	}

	switch c.Storage.Provider {
	case "", ProviderAPI:
	case ProviderS3:
		if c.Storage.Bucket == "" {
			return ErrMissingBucket
		}
	case ProviderAzure:
		if c.Storage.AccountURL == "" {
			return ErrMissingAccountURL
		}
	default:
		return ErrUnknownProvider
	}

	if c.SettleDelay < 0 || c.SettleDelay > constants.MaxSettleDelay {
		return ErrInvalidSettleDelay
	}
	return nil
}

// MergeFlags overlays non-empty command line values onto the config.
func (c *Config) MergeFlags(baseURL, token string) {
	if baseURL != "" {
		c.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if token != "" {
		c.Token = token
	}
}

// RedactedToken returns the token with everything but the last four
// characters masked, for display.
func (c *Config) RedactedToken() string {
	t := c.Token
	if t == "" {
		return "(not set)"
	}
	if len(t) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(t)-4) + t[len(t)-4:]
}
