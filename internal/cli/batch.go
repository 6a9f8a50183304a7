package cli

import (
	"context"
	"fmt"
	nethttp "net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/rescale/docbatch/internal/batch"
	"github.com/rescale/docbatch/internal/localfs"
)

var batchShort = map[batch.OperationType]string{
	batch.OpConvert:   "Convert PDFs to page images",
	batch.OpVectorize: "Vectorize documents into the search index",
	batch.OpDelete:    "Delete objects and their derived artifacts",
}

// newBatchCmd builds the convert, vectorize and delete commands.
func newBatchCmd(op batch.OperationType) *cobra.Command {
	var (
		all    bool
		filter string
		yes    bool
	)

	cmd := &cobra.Command{
		Use:   string(op) + " [object | folder/]...",
		Short: batchShort[op],
		Long: batchShort[op] + `.

Targets are object names as shown by 'docbatch ls', folder prefixes ending
in "/", --all, or --filter <substring>. Derived artifacts (page images of a
converted PDF) are never selected.

Progress is streamed from the server. Press Ctrl+C to cancel the job.`,
		Example: fmt.Sprintf("  docbatch %s reports/q1.pdf\n  docbatch %s reports/\n  docbatch %s --all --filter invoice", op, op, op),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !all && filter == "" {
				return fmt.Errorf("specify objects, folders, --all or --filter")
			}

			ctx := GetContext()
			s, err := newSession(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			if err := s.load(ctx); err != nil {
				return err
			}
			names, err := selectTargets(s.state, args, all, filter)
			if err != nil {
				return err
			}

			if op == batch.OpDelete && !yes {
				ok, err := newStdinConfirmer().Confirm(fmt.Sprintf("Delete %d object(s)?", len(names)))
				if err != nil {
					return fmt.Errorf("confirmation failed: %w", err)
				}
				if !ok {
					fmt.Fprintln(os.Stderr, "Aborted.")
					return nil
				}
			}

			return runBatch(ctx, s, op, names, func(ctx context.Context) (*nethttp.Response, error) {
				return s.client.StartBatch(ctx, op.Endpoint(), names)
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Select every listed object")
	cmd.Flags().StringVar(&filter, "filter", "", "Only select objects whose name contains this substring")
	if op == batch.OpDelete {
		cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	}
	return cmd
}

// newUploadCmd uploads local files and follows the server's progress stream.
func newUploadCmd() *cobra.Command {
	var includeHidden bool

	cmd := &cobra.Command{
		Use:   "upload <file | dir>...",
		Short: "Upload local files",
		Long: `Upload local files to the dashboard.

Directories are uploaded recursively, skipping hidden files unless
--hidden is given. Files are stored under their base name.

The server may convert uploaded PDFs automatically; that progress is shown
in the same run.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := localfs.Collect(args, localfs.Options{IncludeHidden: includeHidden})
			if err != nil {
				return err
			}

			ctx := GetContext()
			s, err := newSession(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			paths := localfs.Paths(files)
			return runBatch(ctx, s, batch.OpUpload, localfs.Names(files), func(ctx context.Context) (*nethttp.Response, error) {
				return s.client.Upload(ctx, paths)
			})
		},
	}

	cmd.Flags().BoolVar(&includeHidden, "hidden", false, "Include hidden files when uploading directories")
	return cmd
}

// runBatch starts a request and hands its stream to the engine, routing
// Ctrl+C to job cancellation for the duration of the run.
func runBatch(ctx context.Context, s *session, op batch.OperationType, names []string, start func(context.Context) (*nethttp.Response, error)) error {
	if !s.state.TryBeginProcessing() {
		return fmt.Errorf("another batch is already running")
	}

	s.log.Debug().Str("operation", string(op)).Int("objects", len(names)).Msg("starting batch")
	resp, err := start(ctx)
	if err != nil {
		s.state.EndProcessing()
		return err
	}

	detach := interrupts.attach(s.engine.Jobs(), newStdinConfirmer())
	defer detach()

	res, err := s.engine.Run(ctx, resp, op, names)
	if err != nil {
		return fmt.Errorf("%s failed: %w", op.Title(), err)
	}
	return outcomeError(op, res)
}

// outcomeError maps a finished run to the command's exit status. A
// cancellation the operator asked for is not an error.
func outcomeError(op batch.OperationType, res *batch.Result) error {
	switch res.Outcome {
	case batch.OutcomeCompleted, batch.OutcomeCancelled:
		if res.State.Failed > 0 {
			return fmt.Errorf("%s: %d of %d object(s) failed", op.Title(), res.State.Failed, res.State.TotalFiles)
		}
		return nil
	case batch.OutcomeIncomplete:
		return fmt.Errorf("%s: stream ended before the server reported completion", op.Title())
	default:
		return fmt.Errorf("%s %s", op.Title(), res.Outcome)
	}
}
