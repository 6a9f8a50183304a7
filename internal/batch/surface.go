package batch

import "context"

// SurfaceKind selects how a run is rendered.
type SurfaceKind int

const (
	// SurfaceOverlay is a single aggregate message and bar.
	SurfaceOverlay SurfaceKind = iota
	// SurfacePanel is one row per target object.
	SurfacePanel
)

func (k SurfaceKind) String() string {
	if k == SurfacePanel {
		return "panel"
	}
	return "overlay"
}

// KindFor returns the surface kind used for op: the overlay for convert and
// upload, the panel for delete and vectorize.
func KindFor(op OperationType) SurfaceKind {
	switch op {
	case OpDelete, OpVectorize:
		return SurfacePanel
	default:
		return SurfaceOverlay
	}
}

// RunInfo identifies a run to its surface.
type RunInfo struct {
	ID        string
	Operation OperationType
	Items     []string
}

// Surface renders one run. Calls arrive in stream order from a single
// goroutine; Open is called once before anything else and Close once last.
type Surface interface {
	Open(run RunInfo)
	Status(text string, percent int)
	Item(item ItemStatus)
	Controls(jobID string, cancelable, closable bool)
	Close(outcome Outcome)
}

// Notifier shows transient, non-blocking toasts.
type Notifier interface {
	Toast(level ToastLevel, message string)
}

// Reloader refreshes the authoritative object list.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Selection is the operator's object selection.
type Selection interface {
	ClearSelection()
}

// Processing is the caller's single in-flight batch flag.
type Processing interface {
	EndProcessing()
}

// Authenticator handles a rejected session.
type Authenticator interface {
	ForceLogout()
}

type nopSurface struct{}

func (nopSurface) Open(RunInfo)                {}
func (nopSurface) Status(string, int)          {}
func (nopSurface) Item(ItemStatus)             {}
func (nopSurface) Controls(string, bool, bool) {}
func (nopSurface) Close(Outcome)               {}

type nopCollaborator struct{}

func (nopCollaborator) Toast(ToastLevel, string)     {}
func (nopCollaborator) Reload(context.Context) error { return nil }
func (nopCollaborator) ClearSelection()              {}
func (nopCollaborator) EndProcessing()               {}
func (nopCollaborator) ForceLogout()                 {}

// NopSurface returns a Surface that renders nothing.
func NopSurface() Surface { return nopSurface{} }
