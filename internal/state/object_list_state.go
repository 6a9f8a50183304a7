package state

import (
	"sort"
	"strings"
	"sync"

	"github.com/rescale/docbatch/internal/api"
	"github.com/rescale/docbatch/internal/events"
)

// ObjectListState is an observable object listing with a selection.
// It holds the objects returned by the last reload, the name filter, the
// selected names and the processing flag, and publishes events on changes.
// Thread-safe for concurrent access.
type ObjectListState struct {
	// Event bus for publishing changes
	eventBus *events.EventBus

	objects    []api.Object
	known      map[string]bool
	index      *ArtifactIndex
	selected   map[string]bool
	filter     string
	processing bool
	loading    bool
	lastError  error

	mu sync.RWMutex
}

// NewObjectListState creates an empty ObjectListState. eventBus may be nil.
func NewObjectListState(eventBus *events.EventBus) *ObjectListState {
	return &ObjectListState{
		eventBus: eventBus,
		objects:  make([]api.Object, 0),
		known:    make(map[string]bool),
		index:    NewArtifactIndex(nil),
		selected: make(map[string]bool),
	}
}

func (s *ObjectListState) publish(ev events.Event) {
	if s.eventBus != nil {
		s.eventBus.Publish(ev)
	}
}

// SetObjects replaces the listing. Selected names that no longer exist or
// are now derived artifacts are dropped from the selection.
func (s *ObjectListState) SetObjects(objects []api.Object) {
	s.mu.Lock()
	s.objects = make([]api.Object, len(objects))
	copy(s.objects, objects)
	sort.SliceStable(s.objects, func(i, j int) bool {
		return s.objects[i].Name < s.objects[j].Name
	})

	names := make([]string, len(s.objects))
	s.known = make(map[string]bool, len(s.objects))
	for i, o := range s.objects {
		names[i] = o.Name
		s.known[o.Name] = true
	}
	s.index = NewArtifactIndex(names)

	derived := 0
	for _, n := range names {
		if s.index.IsDerived(n) {
			derived++
		}
	}

	pruned := false
	for name := range s.selected {
		if !s.known[name] || s.index.IsDerived(name) {
			delete(s.selected, name)
			pruned = true
		}
	}
	s.loading = false
	s.lastError = nil
	count := len(s.objects)
	selected := s.selectedNamesLocked()
	s.mu.Unlock()

	s.publish(NewObjectsChangedEvent(count, derived))
	if pruned {
		s.publish(NewSelectionChangedEvent(selected))
	}
}

// Objects returns a copy of the listing, sorted by name.
func (s *ObjectListState) Objects() []api.Object {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]api.Object, len(s.objects))
	copy(result, s.objects)
	return result
}

// Names returns every object name, sorted.
func (s *ObjectListState) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, len(s.objects))
	for i, o := range s.objects {
		names[i] = o.Name
	}
	return names
}

// Count returns the number of objects.
func (s *ObjectListState) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// SetLoading marks the list as loading and publishes an event.
func (s *ObjectListState) SetLoading(loading bool) {
	s.mu.Lock()
	s.loading = loading
	s.mu.Unlock()

	s.publish(NewObjectsLoadingEvent(loading))
}

// IsLoading returns whether a reload is in progress.
func (s *ObjectListState) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// SetError records a failed reload and publishes an error event. The
// previous listing is kept.
func (s *ObjectListState) SetError(err error) {
	s.mu.Lock()
	s.lastError = err
	s.loading = false
	s.mu.Unlock()

	if err != nil {
		s.publish(NewObjectsErrorEvent(err))
	}
}

// Err returns the error of the last reload, if it failed.
func (s *ObjectListState) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// IsDerived reports whether name is a derived artifact in the current listing.
func (s *ObjectListState) IsDerived(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.IsDerived(name)
}

// selectable reports whether name may be selected on its own (must hold lock).
func (s *ObjectListState) selectableLocked(name string) bool {
	return s.known[name] && !s.index.IsDerived(name)
}

// visibleLocked reports whether name passes the filter (must hold lock).
func (s *ObjectListState) visibleLocked(name string) bool {
	return s.filter == "" || strings.Contains(strings.ToLower(name), strings.ToLower(s.filter))
}

// Visible returns the objects that pass the current filter.
func (s *ObjectListState) Visible() []api.Object {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]api.Object, 0, len(s.objects))
	for _, o := range s.objects {
		if s.visibleLocked(o.Name) {
			result = append(result, o)
		}
	}
	return result
}

// mutateSelection applies fn under the lock and publishes the selection if
// it changed.
func (s *ObjectListState) mutateSelection(fn func() bool) bool {
	s.mu.Lock()
	changed := fn()
	selected := s.selectedNamesLocked()
	s.mu.Unlock()

	if changed {
		s.publish(NewSelectionChangedEvent(selected))
	}
	return changed
}

// Select adds name to the selection. Unknown names and derived artifacts are
// refused; the return value reports whether the selection changed.
func (s *ObjectListState) Select(name string) bool {
	return s.mutateSelection(func() bool {
		if !s.selectableLocked(name) || s.selected[name] {
			return false
		}
		s.selected[name] = true
		return true
	})
}

// Deselect removes name from the selection.
func (s *ObjectListState) Deselect(name string) bool {
	return s.mutateSelection(func() bool {
		if !s.selected[name] {
			return false
		}
		delete(s.selected, name)
		return true
	})
}

// Toggle flips the selection state of name.
func (s *ObjectListState) Toggle(name string) bool {
	return s.mutateSelection(func() bool {
		if s.selected[name] {
			delete(s.selected, name)
			return true
		}
		if !s.selectableLocked(name) {
			return false
		}
		s.selected[name] = true
		return true
	})
}

// folderPrefix normalizes a folder name to "dir/". The empty folder is the
// bucket root.
func folderPrefix(folder string) string {
	folder = strings.TrimLeft(folder, "/")
	if folder == "" || strings.HasSuffix(folder, "/") {
		return folder
	}
	return folder + "/"
}

// descendantsLocked returns the selectable names under prefix (must hold lock).
func (s *ObjectListState) descendantsLocked(prefix string) []string {
	var names []string
	for _, o := range s.objects {
		if strings.HasPrefix(o.Name, prefix) && o.Name != prefix && s.selectableLocked(o.Name) {
			names = append(names, o.Name)
		}
	}
	return names
}

// ToggleFolder selects every selectable descendant of folder, or deselects
// them all if they are already all selected. Derived artifacts are never
// added. It returns the number of names whose state changed.
func (s *ObjectListState) ToggleFolder(folder string) int {
	prefix := folderPrefix(folder)
	n := 0
	s.mutateSelection(func() bool {
		names := s.descendantsLocked(prefix)
		all := len(names) > 0
		for _, name := range names {
			if !s.selected[name] {
				all = false
				break
			}
		}
		for _, name := range names {
			if all {
				delete(s.selected, name)
				n++
			} else if !s.selected[name] {
				s.selected[name] = true
				n++
			}
		}
		return n > 0
	})
	return n
}

// SelectFolder adds every selectable descendant of folder and reports how
// many were added.
func (s *ObjectListState) SelectFolder(folder string) int {
	prefix := folderPrefix(folder)
	n := 0
	s.mutateSelection(func() bool {
		for _, name := range s.descendantsLocked(prefix) {
			if !s.selected[name] {
				s.selected[name] = true
				n++
			}
		}
		return n > 0
	})
	return n
}

// SelectAll selects every visible object that is not a derived artifact.
func (s *ObjectListState) SelectAll() int {
	n := 0
	s.mutateSelection(func() bool {
		for _, o := range s.objects {
			if s.visibleLocked(o.Name) && s.selectableLocked(o.Name) && !s.selected[o.Name] {
				s.selected[o.Name] = true
				n++
			}
		}
		return n > 0
	})
	return n
}

// SetFilter changes the name filter (case-insensitive substring). Any change
// of filter resets the selection.
func (s *ObjectListState) SetFilter(filter string) {
	s.mu.Lock()
	if s.filter == filter {
		s.mu.Unlock()
		return
	}
	s.filter = filter
	s.selected = make(map[string]bool)
	s.mu.Unlock()

	s.publish(NewFilterChangedEvent(filter))
	s.publish(NewSelectionChangedEvent([]string{}))
}

// Filter returns the current filter.
func (s *ObjectListState) Filter() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter
}

// ClearSelection clears all selections.
func (s *ObjectListState) ClearSelection() {
	s.mu.Lock()
	s.selected = make(map[string]bool)
	s.mu.Unlock()

	s.publish(NewSelectionChangedEvent([]string{}))
}

// IsSelected returns whether name is selected.
func (s *ObjectListState) IsSelected(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected[name]
}

// SelectedCount returns the number of selected names.
func (s *ObjectListState) SelectedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.selected)
}

// SelectedNames returns the selection as the sorted, flat list sent in a
// batch request.
func (s *ObjectListState) SelectedNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedNamesLocked()
}

func (s *ObjectListState) selectedNamesLocked() []string {
	names := make([]string, 0, len(s.selected))
	for name := range s.selected {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TryBeginProcessing sets the processing flag. It returns false if a batch
// run already holds it.
func (s *ObjectListState) TryBeginProcessing() bool {
	s.mu.Lock()
	if s.processing {
		s.mu.Unlock()
		return false
	}
	s.processing = true
	s.mu.Unlock()

	s.publish(NewProcessingChangedEvent(true))
	return true
}

// EndProcessing clears the processing flag.
func (s *ObjectListState) EndProcessing() {
	s.mu.Lock()
	was := s.processing
	s.processing = false
	s.mu.Unlock()

	if was {
		s.publish(NewProcessingChangedEvent(false))
	}
}

// Processing reports whether a batch run is in flight.
func (s *ObjectListState) Processing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.processing
}
