// Package cli provides the command-line interface for docbatch.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rescale/docbatch/internal/batch"
	"github.com/rescale/docbatch/internal/logging"
	"github.com/rescale/docbatch/internal/version"
)

var (
	// Global flags
	cfgFile    string
	apiToken   string
	apiBaseURL string
	verbose    bool
	debug      bool
	logFile    string
	jsonOutput bool
	wsListen   string

	// Global logger
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc

	// Routes Ctrl+C to the running batch, if any.
	interrupts = &interruptRouter{}
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "docbatch",
		Short: "Run batch document operations against the dashboard backend",
		Long: `docbatch ` + version.Version + ` - Built: ` + version.BuildTime + `
Operator client for the document dashboard.

Lists stored objects and runs convert, vectorize, delete and upload
batches, rendering the server's progress stream as it arrives.

Press Ctrl+C during a run to cancel the server job; press it again to
stop waiting.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewLogger(logging.Options{File: logFile})
			if verbose || debug {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", "", "Bearer token (overrides all other sources)")
	rootCmd.PersistentFlags().StringVar(&apiBaseURL, "api-url", "", "Dashboard API base URL (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug output (same as --verbose)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write JSON logs to this rotating file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print progress updates as JSON lines on stdout")
	rootCmd.PersistentFlags().StringVar(&wsListen, "ws-listen", "", "Serve progress updates over websocket on this address (e.g. :8090)")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"

	completionCmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for docbatch.

QUICK TEST (current session only):
  source <(docbatch completion bash)`,
	}
	completionCmd.AddCommand(&cobra.Command{
		Use:   "bash",
		Short: "Generate bash completion script",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.Root().GenBashCompletion(cmd.OutOrStdout())
		},
	})
	completionCmd.AddCommand(&cobra.Command{
		Use:   "zsh",
		Short: "Generate zsh completion script",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.Root().GenZshCompletion(cmd.OutOrStdout())
		},
	})
	completionCmd.AddCommand(&cobra.Command{
		Use:   "fish",
		Short: "Generate fish completion script",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.Root().GenFishCompletion(cmd.OutOrStdout(), true)
		},
	})
	completionCmd.AddCommand(&cobra.Command{
		Use:   "powershell",
		Short: "Generate PowerShell completion script",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.Root().GenPowerShellCompletion(cmd.OutOrStdout())
		},
	})
	rootCmd.AddCommand(completionCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	return rootCmd
}

// Execute runs the CLI.
func Execute() error {
	rootContext, cancelFunc = context.WithCancel(context.Background())
	defer cancelFunc()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		for sig := range sigChan {
			if sig == nil {
				continue
			}
			if sig == syscall.SIGTERM || !interrupts.interrupt(rootContext) {
				fmt.Fprintf(os.Stderr, "\nReceived %v, stopping...\n", sig)
				cancelFunc()
			}
		}
	}()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	err := rootCmd.Execute()

	signal.Stop(sigChan)
	close(sigChan)

	if logger != nil {
		logger.Close()
	}
	return err
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newBatchCmd(batch.OpConvert))
	rootCmd.AddCommand(newBatchCmd(batch.OpVectorize))
	rootCmd.AddCommand(newBatchCmd(batch.OpDelete))
	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newJobsCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultCLILogger()
	}
	return logger
}

// GetContext returns the global CLI context with signal handling.
// This context will be cancelled when the user presses Ctrl+C twice.
func GetContext() context.Context {
	if rootContext == nil {
		return context.Background()
	}
	return rootContext
}

// interruptRouter sends the first Ctrl+C of a run to its job control. A
// second Ctrl+C while that cancellation is pending, or any Ctrl+C with no
// job open, is left to the caller.
type interruptRouter struct {
	mu         sync.Mutex
	jobs       *batch.JobControl
	confirm    batch.Confirmer
	cancelling bool
}

// attach routes interrupts to jobs until the returned func is called.
func (r *interruptRouter) attach(jobs *batch.JobControl, confirm batch.Confirmer) func() {
	r.mu.Lock()
	r.jobs = jobs
	r.confirm = confirm
	r.cancelling = false
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		r.jobs = nil
		r.confirm = nil
		r.cancelling = false
		r.mu.Unlock()
	}
}

// interrupt reports whether the interrupt was handled by a running job.
func (r *interruptRouter) interrupt(ctx context.Context) bool {
	r.mu.Lock()
	jobs, confirm := r.jobs, r.confirm
	if jobs == nil || r.cancelling {
		r.mu.Unlock()
		return false
	}
	if _, ok := jobs.Active(); !ok {
		r.mu.Unlock()
		return false
	}
	r.cancelling = true
	r.mu.Unlock()

	go func() {
		submitted, err := jobs.Cancel(ctx, confirm)
		if err != nil {
			GetLogger().Warn().Err(err).Msg("cancel failed")
		}

		r.mu.Lock()
		// A declined or failed cancel re-arms the first Ctrl+C.
		if !submitted {
			r.cancelling = false
		}
		r.mu.Unlock()
	}()
	return true
}
