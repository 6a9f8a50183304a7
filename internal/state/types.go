// Package state provides the observable object list shared by the batch
// commands: the listing, the operator's selection, the filter and the
// processing flag. Changes are published on the event bus so any frontend
// (terminal, JSON feed, websocket) can follow along.
package state

import (
	"time"

	"github.com/rescale/docbatch/internal/events"
)

// State event types
const (
	EventObjectsChanged    events.EventType = "objects_changed"
	EventObjectsLoading    events.EventType = "objects_loading"
	EventObjectsError      events.EventType = "objects_error"
	EventSelectionChanged  events.EventType = "selection_changed"
	EventFilterChanged     events.EventType = "filter_changed"
	EventProcessingChanged events.EventType = "processing_changed"
)

// ObjectsChangedEvent is published when the listing is replaced.
type ObjectsChangedEvent struct {
	events.BaseEvent
	Count   int `json:"count"`
	Derived int `json:"derived"`
}

// ObjectsLoadingEvent is published when a reload starts or stops.
type ObjectsLoadingEvent struct {
	events.BaseEvent
	Loading bool `json:"loading"`
}

// ObjectsErrorEvent is published when a reload fails.
type ObjectsErrorEvent struct {
	events.BaseEvent
	Error error `json:"-"`
}

// SelectionChangedEvent is published when the selection changes.
type SelectionChangedEvent struct {
	events.BaseEvent
	Selected []string `json:"selected"`
}

// FilterChangedEvent is published when the name filter changes.
type FilterChangedEvent struct {
	events.BaseEvent
	Filter string `json:"filter"`
}

// ProcessingChangedEvent is published when a batch run starts or ends.
type ProcessingChangedEvent struct {
	events.BaseEvent
	Processing bool `json:"processing"`
}

func base(t events.EventType) events.BaseEvent {
	return events.BaseEvent{EventType: t, Time: time.Now()}
}

// NewObjectsChangedEvent creates a new ObjectsChangedEvent.
func NewObjectsChangedEvent(count, derived int) *ObjectsChangedEvent {
	return &ObjectsChangedEvent{BaseEvent: base(EventObjectsChanged), Count: count, Derived: derived}
}

// NewObjectsLoadingEvent creates a new ObjectsLoadingEvent.
func NewObjectsLoadingEvent(loading bool) *ObjectsLoadingEvent {
	return &ObjectsLoadingEvent{BaseEvent: base(EventObjectsLoading), Loading: loading}
}

// NewObjectsErrorEvent creates a new ObjectsErrorEvent.
func NewObjectsErrorEvent(err error) *ObjectsErrorEvent {
	return &ObjectsErrorEvent{BaseEvent: base(EventObjectsError), Error: err}
}

// NewSelectionChangedEvent creates a new SelectionChangedEvent.
func NewSelectionChangedEvent(selected []string) *SelectionChangedEvent {
	return &SelectionChangedEvent{BaseEvent: base(EventSelectionChanged), Selected: selected}
}

// NewFilterChangedEvent creates a new FilterChangedEvent.
func NewFilterChangedEvent(filter string) *FilterChangedEvent {
	return &FilterChangedEvent{BaseEvent: base(EventFilterChanged), Filter: filter}
}

// NewProcessingChangedEvent creates a new ProcessingChangedEvent.
func NewProcessingChangedEvent(processing bool) *ProcessingChangedEvent {
	return &ProcessingChangedEvent{BaseEvent: base(EventProcessingChanged), Processing: processing}
}
