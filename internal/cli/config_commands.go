package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rescale/docbatch/internal/api"
	"github.com/rescale/docbatch/internal/config"
	"github.com/rescale/docbatch/internal/http"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage docbatch configuration",
		Long: `Configuration management commands for docbatch.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  test  - Test the API connection
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigTestCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// configPath returns --config or the default location.
func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.DefaultConfigPath()
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for docbatch.

The configuration is saved to ~/.config/docbatch/config and the token to
~/.config/docbatch/token, both readable only by you.

Use --force to overwrite existing configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}

			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Printf("Configuration already exists at: %s\n", path)
					fmt.Println("Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			fmt.Println("docbatch Configuration Setup")
			fmt.Println("============================")
			fmt.Println()

			current, err := config.Load(path)
			if err != nil {
				current = config.NewConfig()
			}
			cfg, token, err := promptConfig(bufio.NewReader(os.Stdin), os.Stdout, current)
			if err != nil {
				return err
			}

			if err := config.Save(cfg, path); err != nil {
				return err
			}
			fmt.Printf("\n✓ Configuration saved to: %s\n", path)

			if token != "" {
				tokenPath := config.DefaultTokenPath()
				if err := config.WriteTokenFile(tokenPath, token); err != nil {
					return err
				}
				fmt.Printf("✓ Token saved to: %s\n", tokenPath)
			}
			GetLogger().Debug().Str("path", path).Msg("configuration written")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")
	return cmd
}

// promptConfig asks for each setting, offering the values in current as
// defaults. The token is returned separately so it can go to the token file
// rather than the config.
func promptConfig(reader *bufio.Reader, out io.Writer, current *config.Config) (*config.Config, string, error) {
	cfg := *current
	var err error

	if cfg.BaseURL, err = promptLine(reader, out, "Dashboard API URL", current.BaseURL); err != nil {
		return nil, "", err
	}
	token, err := promptSecret(reader, out, "API token (leave empty to skip)")
	if err != nil {
		return nil, "", err
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Storage (press Enter for defaults)")
	fmt.Fprintln(out, "----------------------------------")
	provider, err := promptLine(reader, out, "Provider (api, s3, azure)", orDefault(current.Storage.Provider, config.ProviderAPI))
	if err != nil {
		return nil, "", err
	}
	cfg.Storage.Provider = strings.ToLower(provider)

	switch cfg.Storage.Provider {
	case config.ProviderS3:
		if cfg.Storage.Bucket, err = promptLine(reader, out, "Bucket", current.Storage.Bucket); err != nil {
			return nil, "", err
		}
		if cfg.Storage.Region, err = promptLine(reader, out, "Region", current.Storage.Region); err != nil {
			return nil, "", err
		}
		if cfg.Storage.Endpoint, err = promptLine(reader, out, "Endpoint (empty for AWS)", current.Storage.Endpoint); err != nil {
			return nil, "", err
		}
		if cfg.Storage.AccessKey, err = promptLine(reader, out, "Access key (empty for the default chain)", current.Storage.AccessKey); err != nil {
			return nil, "", err
		}
		if cfg.Storage.AccessKey != "" {
			if cfg.Storage.SecretKey, err = promptSecret(reader, out, "Secret key"); err != nil {
				return nil, "", err
			}
		}
	case config.ProviderAzure:
		if cfg.Storage.AccountURL, err = promptLine(reader, out, "Container URL", current.Storage.AccountURL); err != nil {
			return nil, "", err
		}
		if cfg.Storage.SASToken, err = promptSecret(reader, out, "SAS token"); err != nil {
			return nil, "", err
		}
	}
	if cfg.Storage.Provider != config.ProviderAPI {
		if cfg.Storage.Prefix, err = promptLine(reader, out, "Prefix", current.Storage.Prefix); err != nil {
			return nil, "", err
		}
	}

	fmt.Fprintln(out)
	settle, err := promptLine(reader, out, "Settle delay in ms", strconv.Itoa(int(current.SettleDelay/time.Millisecond)))
	if err != nil {
		return nil, "", err
	}
	ms, err := strconv.Atoi(settle)
	if err != nil {
		return nil, "", fmt.Errorf("settle delay must be a number of milliseconds: %w", err)
	}
	cfg.SettleDelay = time.Duration(ms) * time.Millisecond

	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, token, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long:  `Show the effective configuration after merging the file, flags and token sources. Secrets are masked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			cfg.MergeFlags(apiBaseURL, "")
			cfg.Token = config.ResolveToken(apiToken, "", cfg)

			printConfig(cmd.OutOrStdout(), cfg, path)
			return nil
		},
	}
}

func printConfig(out io.Writer, cfg *config.Config, path string) {
	fmt.Fprintln(out, "Current Configuration:")
	fmt.Fprintln(out, "======================")
	fmt.Fprintf(out, "  API Base URL: %s\n", cfg.BaseURL)
	fmt.Fprintf(out, "  Token:        %s\n", cfg.RedactedToken())

	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Storage Provider: %s\n", orDefault(cfg.Storage.Provider, config.ProviderAPI))
	switch cfg.Storage.Provider {
	case config.ProviderS3:
		fmt.Fprintf(out, "  Bucket:           %s\n", cfg.Storage.Bucket)
		if cfg.Storage.Region != "" {
			fmt.Fprintf(out, "  Region:           %s\n", cfg.Storage.Region)
		}
		if cfg.Storage.Endpoint != "" {
			fmt.Fprintf(out, "  Endpoint:         %s\n", cfg.Storage.Endpoint)
		}
	case config.ProviderAzure:
		fmt.Fprintf(out, "  Container URL:    %s\n", cfg.Storage.AccountURL)
	}
	if cfg.Storage.Prefix != "" {
		fmt.Fprintf(out, "  Prefix:           %s\n", cfg.Storage.Prefix)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Proxy Mode: %s\n", cfg.ProxyMode)
	if cfg.ProxyHost != "" {
		fmt.Fprintf(out, "  Proxy Host: %s:%d\n", cfg.ProxyHost, cfg.ProxyPort)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Settle Delay:    %v\n", cfg.SettleDelay)
	fmt.Fprintf(out, "  Request Timeout: %v\n", cfg.RequestTimeout)

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Configuration file: %s\n", path)
	fmt.Fprintf(out, "Log directory:      %s\n", config.LogDirectory())
}

// newConfigTestCmd creates the 'config test' command.
func newConfigTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Test the API connection",
		Long:  `Test the connection to the dashboard backend by listing objects.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := getAPIClient()
			if err != nil {
				return err
			}

			fmt.Printf("API URL: %s\n", client.BaseURL())
			if http.ProxyActive(cfg, os.Getenv) {
				fmt.Printf("Proxy:   %s\n", cfg.ProxyMode)
			}
			fmt.Println("Testing connection...")

			objects, err := client.ListObjects(GetContext(), "")
			if err != nil {
				fmt.Println("✗ Connection failed")
				if api.IsUnauthorized(err) {
					fmt.Println("  The token was rejected. Run 'docbatch login' to sign in again.")
				}
				return err
			}

			fmt.Println("✓ Connection successful")
			fmt.Printf("  Objects: %d\n", len(objects))
			return nil
		},
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)

			if info, err := os.Stat(path); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Size:     %d bytes\n", info.Size())
				fmt.Fprintf(cmd.OutOrStdout(), "Modified: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "(not created yet; run 'docbatch config init')")
			}
			return nil
		},
	}
}
