package cli

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rescale/docbatch/internal/api"
	"github.com/rescale/docbatch/internal/config"
)

func newLoginCmd() *cobra.Command {
	var noVerify bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store a bearer token for later commands",
		Long: `Prompt for a bearer token, check it against the backend and store it in
~/.config/docbatch/token with owner-only permissions.

The token is read without echo when stdin is a terminal, so it can also be
piped in: echo "$TOKEN" | docbatch login`,
		RunE: func(cmd *cobra.Command, args []string) error {
			token := apiToken
			if token == "" {
				var err error
				token, err = promptSecret(bufio.NewReader(os.Stdin), os.Stderr, "Token")
				if err != nil {
					return err
				}
			}
			if token == "" {
				return fmt.Errorf("no token given")
			}

			if !noVerify {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				cfg.Token = token
				client, err := api.NewClient(cfg, GetLogger())
				if err != nil {
					return err
				}
				if _, err := client.ListObjects(GetContext(), ""); err != nil {
					if api.IsUnauthorized(err) {
						return fmt.Errorf("token rejected by %s", client.BaseURL())
					}
					return fmt.Errorf("could not verify token: %w", err)
				}
			}

			path := config.DefaultTokenPath()
			if path == "" {
				return fmt.Errorf("cannot determine the token location (no home directory)")
			}
			if err := config.WriteTokenFile(path, token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Logged in; token saved to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&noVerify, "no-verify", false, "Store the token without contacting the backend")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored token",
		Long:  `Remove the token file and blank any token kept in the config file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ClearToken("", cfgFile); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Logged out")
			if os.Getenv(config.TokenEnvVar) != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s is still set in this environment.\n", config.TokenEnvVar)
			}
			return nil
		},
	}
}
