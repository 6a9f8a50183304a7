package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rescale/docbatch/internal/api"
	"github.com/rescale/docbatch/internal/state"
)

func newListCmd() *cobra.Command {
	var (
		filter  string
		preview bool
	)

	cmd := &cobra.Command{
		Use:     "ls [object | folder/]...",
		Aliases: []string{"list"},
		Short:   "List stored objects",
		Long: `List stored objects through the configured storage provider.

Derived artifacts (page images produced by converting a PDF) are marked
with "+". With --select, the arguments are resolved the way batch commands
resolve them and the resulting selection is marked with "*".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 && !preview {
				return fmt.Errorf("arguments are only accepted with --select")
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

			if preview {
				if _, err := selectTargets(s.state, args, false, filter); err != nil {
					return err
				}
			} else {
				s.state.SetFilter(filter)
			}

			printListing(cmd.OutOrStdout(), s.state)
			return nil
		},
	}

	cmd.Flags().StringVar(&filter, "filter", "", "Only show objects whose name contains this substring")
	cmd.Flags().BoolVar(&preview, "select", false, "Preview the selection the arguments would make")
	return cmd
}

// printListing writes the visible objects, one per line, with selection and
// derived markers.
func printListing(out io.Writer, st *state.ObjectListState) {
	visible := st.Visible()
	if len(visible) == 0 {
		fmt.Fprintln(out, "No objects found.")
		return
	}

	derived := 0
	for _, o := range visible {
		mark := " "
		switch {
		case st.IsSelected(o.Name):
			mark = "*"
		case st.IsDerived(o.Name):
			mark = "+"
			derived++
		}
		fmt.Fprintf(out, "%s %-60s %10s  %s\n", mark, o.Name, formatSize(o.Size), formatCreated(o))
	}

	fmt.Fprintf(out, "\n%d object(s), %d derived", len(visible), derived)
	if n := st.SelectedCount(); n > 0 {
		fmt.Fprintf(out, ", %d selected", n)
	}
	fmt.Fprintln(out)
}

func formatCreated(o api.Object) string {
	if o.TimeCreated.IsZero() {
		return "-"
	}
	return o.TimeCreated.Local().Format("2006-01-02 15:04")
}

// formatSize renders a byte count with a binary unit.
func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
