package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rescale/docbatch/internal/batch"
)

// newJobsCmd creates the 'jobs' command group.
func newJobsCmd() *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Server job operations",
		Long:  `Commands for managing batch jobs running on the dashboard backend.`,
	}
	jobsCmd.AddCommand(newJobsCancelCmd())
	return jobsCmd
}

func newJobsCancelCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a running batch job",
		Long: `Cancel a batch job by id, e.g. one started from another terminal.

The job id is printed when a run starts. The run that owns the job reports
the cancellation when the server confirms it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := getAPIClient()
			if err != nil {
				return err
			}
			log := GetLogger()

			var confirm batch.Confirmer = newStdinConfirmer()
			if yes {
				confirm = nil
			}

			jobs := batch.NewJobControl(client, logoutHandler{log: log})
			submitted, err := jobs.CancelID(GetContext(), args[0], confirm)
			if err != nil {
				return err
			}
			if !submitted {
				fmt.Fprintln(cmd.ErrOrStderr(), "Cancellation not sent.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Cancellation requested for job %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}
