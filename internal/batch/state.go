package batch

import (
	"fmt"
	"strings"

	"github.com/rescale/docbatch/internal/api"
)

// OperationType names a batch operation.
type OperationType string

const (
	OpConvert   OperationType = "convert"
	OpVectorize OperationType = "vectorize"
	OpDelete    OperationType = "delete"
	OpUpload    OperationType = "upload"
)

// ParseOperation validates an operation name.
func ParseOperation(s string) (OperationType, error) {
	switch op := OperationType(strings.ToLower(strings.TrimSpace(s))); op {
	case OpConvert, OpVectorize, OpDelete, OpUpload:
		return op, nil
	default:
		return "", fmt.Errorf("unknown operation %q", s)
	}
}

// Endpoint returns the /objects/{endpoint} path segment for op.
func (op OperationType) Endpoint() string {
	switch op {
	case OpConvert:
		return api.EndpointConvert
	case OpVectorize:
		return api.EndpointVectorize
	case OpDelete:
		return api.EndpointDelete
	case OpUpload:
		return api.EndpointUpload
	}
	return string(op)
}

// Title returns the capitalized name used in status lines and toasts.
func (op OperationType) Title() string {
	switch op {
	case OpConvert:
		return "Convert"
	case OpVectorize:
		return "Vectorize"
	case OpDelete:
		return "Delete"
	case OpUpload:
		return "Upload"
	}
	return string(op)
}

// Phase is the run lifecycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseCompleted
	PhaseCancelled
	PhaseErrored
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhaseCompleted:
		return "completed"
	case PhaseCancelled:
		return "cancelled"
	case PhaseErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further events will be applied.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseCancelled || p == PhaseErrored
}

// ItemState is the display state of one target object.
type ItemState string

const (
	ItemPending ItemState = "pending"
	ItemActive  ItemState = "active"
	ItemSuccess ItemState = "success"
	ItemFailed  ItemState = "failed"
)

// Done reports whether the item reached a final state.
func (s ItemState) Done() bool {
	return s == ItemSuccess || s == ItemFailed
}

// ItemStatus is one row of the run.
type ItemStatus struct {
	Index   int
	Name    string
	State   ItemState
	Percent int
	Detail  string
}

// RunState is the aggregate state of one run. It is owned by a single
// Machine and discarded when the run ends.
type RunState struct {
	Operation          OperationType
	Phase              Phase
	TotalFiles         int
	CurrentFileIndex   int
	CurrentPageIndex   int
	TotalPages         int
	ProcessedPages     int
	TotalPagesAllFiles int
	TotalWorkers       int

	// Client-side tallies of file_complete/file_error.
	Completed int
	Succeeded int
	Failed    int

	Status  string
	Percent int
	Items   []ItemStatus
}

func (s RunState) clone() RunState {
	c := s
	c.Items = make([]ItemStatus, len(s.Items))
	copy(c.Items, s.Items)
	return c
}

// Outcome is how a run ended.
type Outcome string

const (
	OutcomeCompleted    Outcome = "completed"
	OutcomeCancelled    Outcome = "cancelled"
	OutcomeErrored      Outcome = "errored"
	OutcomeFailed       Outcome = "failed"
	OutcomeUnauthorized Outcome = "unauthorized"
	OutcomeIncomplete   Outcome = "incomplete"
)

// ToastLevel is the severity of a notification.
type ToastLevel string

const (
	ToastInfo    ToastLevel = "info"
	ToastSuccess ToastLevel = "success"
	ToastWarning ToastLevel = "warning"
	ToastError   ToastLevel = "error"
)

// UpdateKind discriminates Update.
type UpdateKind int

const (
	UpdateStatus UpdateKind = iota
	UpdateItem
	UpdateToast
	UpdateControls
	UpdateTerminal
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateStatus:
		return "status"
	case UpdateItem:
		return "item"
	case UpdateToast:
		return "toast"
	case UpdateControls:
		return "controls"
	case UpdateTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Update is one notification produced by Machine.Apply. Which fields are set
// depends on Kind:
//
//	UpdateStatus:   Text, Percent
//	UpdateItem:     Item
//	UpdateToast:    Level, Text
//	UpdateControls: Cancelable, Closable
//	UpdateTerminal: Outcome, Settle
type Update struct {
	Kind       UpdateKind
	Text       string
	Percent    int
	Item       ItemStatus
	Level      ToastLevel
	Cancelable bool
	Closable   bool
	Outcome    Outcome
	// Settle asks the runner to wait before reloading the object list.
	Settle bool
}
