package cli

import (
	"fmt"
	"strings"

	"github.com/rescale/docbatch/internal/state"
)

// selectTargets turns command arguments into a selection on st and returns
// the sorted names to send. Arguments ending in "/" select every selectable
// object under that folder; other arguments must name a listed object that
// is not a derived artifact. --filter narrows --all, and on its own selects
// every visible object.
func selectTargets(st *state.ObjectListState, args []string, all bool, filter string) ([]string, error) {
	// SetFilter resets the selection, so it must come first.
	st.SetFilter(filter)
	if all || (filter != "" && len(args) == 0) {
		st.SelectAll()
	}

	var problems []string
	for _, arg := range args {
		if strings.HasSuffix(arg, "/") {
			if st.SelectFolder(arg) == 0 && !folderSelected(st, arg) {
				problems = append(problems, fmt.Sprintf("%s: no selectable objects", arg))
			}
			continue
		}
		if st.Select(arg) || st.IsSelected(arg) {
			continue
		}
		if st.IsDerived(arg) {
			problems = append(problems, fmt.Sprintf("%s: derived artifact, select its source instead", arg))
		} else {
			problems = append(problems, fmt.Sprintf("%s: not found", arg))
		}
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("cannot select targets:\n  %s", strings.Join(problems, "\n  "))
	}

	names := st.SelectedNames()
	if len(names) == 0 {
		return nil, fmt.Errorf("nothing selected")
	}
	return names, nil
}

// folderSelected reports whether anything under folder is already selected,
// e.g. because it was also named explicitly.
func folderSelected(st *state.ObjectListState, folder string) bool {
	for _, name := range st.SelectedNames() {
		if strings.HasPrefix(name, folder) {
			return true
		}
	}
	return false
}
