package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rescale/docbatch/internal/batch"
	"github.com/rescale/docbatch/internal/events"
)

// BusSurface publishes every surface call on the event bus.
type BusSurface struct {
	bus   *events.EventBus
	mu    sync.Mutex
	runID string
}

// NewBusSurface creates a surface publishing to bus.
func NewBusSurface(bus *events.EventBus) *BusSurface {
	return &BusSurface{bus: bus}
}

func (s *BusSurface) base(t events.EventType) (events.BaseEvent, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return events.BaseEvent{EventType: t, Time: time.Now()}, s.runID
}

// Open implements batch.Surface.
func (s *BusSurface) Open(run batch.RunInfo) {
	s.mu.Lock()
	s.runID = run.ID
	s.mu.Unlock()

	items := make([]string, len(run.Items))
	copy(items, run.Items)
	s.bus.Publish(&events.RunOpenedEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventRunOpened, Time: time.Now()},
		RunID:     run.ID,
		Operation: string(run.Operation),
		Items:     items,
	})
}

// Status implements batch.Surface.
func (s *BusSurface) Status(text string, percent int) {
	base, runID := s.base(events.EventRunStatus)
	s.bus.Publish(&events.RunStatusEvent{BaseEvent: base, RunID: runID, Text: text, Percent: percent})
}

// Item implements batch.Surface.
func (s *BusSurface) Item(item batch.ItemStatus) {
	base, runID := s.base(events.EventRunItem)
	s.bus.Publish(&events.RunItemEvent{
		BaseEvent: base,
		RunID:     runID,
		Index:     item.Index,
		Name:      item.Name,
		State:     string(item.State),
		Percent:   item.Percent,
		Detail:    item.Detail,
	})
}

// Controls implements batch.Surface.
func (s *BusSurface) Controls(jobID string, cancelable, closable bool) {
	base, runID := s.base(events.EventRunControls)
	s.bus.Publish(&events.RunControlsEvent{
		BaseEvent:  base,
		RunID:      runID,
		JobID:      jobID,
		Cancelable: cancelable,
		Closable:   closable,
	})
}

// Close implements batch.Surface.
func (s *BusSurface) Close(outcome batch.Outcome) {
	base, runID := s.base(events.EventRunClosed)
	s.bus.Publish(&events.RunClosedEvent{BaseEvent: base, RunID: runID, Outcome: string(outcome)})
}

// BusNotifier publishes toasts on the event bus.
type BusNotifier struct {
	bus *events.EventBus
}

// NewBusNotifier creates a notifier publishing to bus.
func NewBusNotifier(bus *events.EventBus) *BusNotifier {
	return &BusNotifier{bus: bus}
}

// Toast implements batch.Notifier.
func (n *BusNotifier) Toast(level batch.ToastLevel, message string) {
	n.bus.PublishToast(string(level), message)
}

// TerminalNotifier prints toasts as prefixed lines.
type TerminalNotifier struct {
	mu  sync.Mutex
	out io.Writer
}

// NewTerminalNotifier creates a notifier writing to out (os.Stderr if nil).
func NewTerminalNotifier(out io.Writer) *TerminalNotifier {
	if out == nil {
		out = os.Stderr
	}
	return &TerminalNotifier{out: out}
}

var toastPrefix = map[batch.ToastLevel]string{
	batch.ToastInfo:    "•",
	batch.ToastSuccess: "✓",
	batch.ToastWarning: "!",
	batch.ToastError:   "✗",
}

// Toast implements batch.Notifier.
func (n *TerminalNotifier) Toast(level batch.ToastLevel, message string) {
	prefix, ok := toastPrefix[level]
	if !ok {
		prefix = "•"
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.out, "%s %s\n", prefix, message)
}

// Tee fans every surface call out to each member in order. Nil members are
// skipped.
type Tee []batch.Surface

// Open implements batch.Surface.
func (t Tee) Open(run batch.RunInfo) {
	for _, s := range t {
		if s != nil {
			s.Open(run)
		}
	}
}

// Status implements batch.Surface.
func (t Tee) Status(text string, percent int) {
	for _, s := range t {
		if s != nil {
			s.Status(text, percent)
		}
	}
}

// Item implements batch.Surface.
func (t Tee) Item(item batch.ItemStatus) {
	for _, s := range t {
		if s != nil {
			s.Item(item)
		}
	}
}

// Controls implements batch.Surface.
func (t Tee) Controls(jobID string, cancelable, closable bool) {
	for _, s := range t {
		if s != nil {
			s.Controls(jobID, cancelable, closable)
		}
	}
}

// Close implements batch.Surface.
func (t Tee) Close(outcome batch.Outcome) {
	for _, s := range t {
		if s != nil {
			s.Close(outcome)
		}
	}
}

// NotifierTee fans toasts out to each member.
type NotifierTee []batch.Notifier

// Toast implements batch.Notifier.
func (t NotifierTee) Toast(level batch.ToastLevel, message string) {
	for _, n := range t {
		if n != nil {
			n.Toast(level, message)
		}
	}
}
