// Package events provides the in-process event bus that fans batch-run
// updates and state changes out to any number of subscribers (JSON feed,
// websocket bridge, tests).
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rescale/docbatch/internal/constants"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	// Batch run events, one per engine update
	EventRunOpened   EventType = "run_opened"
	EventRunStatus   EventType = "run_status"
	EventRunItem     EventType = "run_item"
	EventRunControls EventType = "run_controls"
	EventRunClosed   EventType = "run_closed"
	EventToast       EventType = "toast"

	EventLog EventType = "log"
)

// LogLevel defines log severity levels
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType `json:"type"`
	Time      time.Time `json:"time"`
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// RunOpenedEvent is published when a batch run attaches to its surfaces.
type RunOpenedEvent struct {
	BaseEvent
	RunID     string   `json:"run_id"`
	Operation string   `json:"operation"`
	Items     []string `json:"items"`
}

// RunStatusEvent carries the aggregate status line and overall percentage.
type RunStatusEvent struct {
	BaseEvent
	RunID   string `json:"run_id"`
	Text    string `json:"text"`
	Percent int    `json:"percent"`
}

// RunItemEvent carries one per-object row update.
type RunItemEvent struct {
	BaseEvent
	RunID   string `json:"run_id"`
	Index   int    `json:"index"`
	Name    string `json:"name"`
	State   string `json:"state"`
	Percent int    `json:"percent"`
	Detail  string `json:"detail,omitempty"`
}

// RunControlsEvent describes which affordances a surface should show.
type RunControlsEvent struct {
	BaseEvent
	RunID      string `json:"run_id"`
	JobID      string `json:"job_id,omitempty"`
	Cancelable bool   `json:"cancelable"`
	Closable   bool   `json:"closable"`
}

// RunClosedEvent is published when the surfaces are torn down.
type RunClosedEvent struct {
	BaseEvent
	RunID   string `json:"run_id"`
	Outcome string `json:"outcome"`
}

// ToastEvent is a transient, non-blocking notification.
type ToastEvent struct {
	BaseEvent
	Level   string `json:"level"`
	Message string `json:"message"`
}

// LogEvent represents log messages
type LogEvent struct {
	BaseEvent
	Level   LogLevel `json:"level"`
	Message string   `json:"message"`
	Error   error    `json:"-"`
}

// EventBus manages event subscriptions and publishing
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event // Subscribers to all events
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64 // Count of dropped events due to full buffers
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	if bufferSize > constants.EventBusMaxBuffer {
		bufferSize = constants.EventBusMaxBuffer
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		all:         make([]chan Event, 0),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a specific event type
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to all events
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.all = append(eb.all, ch)
	return ch
}

// Publish sends an event to all subscribers without blocking. A subscriber
// whose buffer is full misses the event and the drop counter is bumped.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}

	for _, ch := range eb.all {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}
}

// Close shuts down the event bus and closes all channels
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	eb.closed = true

	for _, channels := range eb.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}

	for _, ch := range eb.all {
		close(ch)
	}
}

// PublishLog is a convenience method for publishing log events
func (eb *EventBus) PublishLog(level LogLevel, message string, err error) {
	eb.Publish(&LogEvent{
		BaseEvent: BaseEvent{
			EventType: EventLog,
			Time:      time.Now(),
		},
		Level:   level,
		Message: message,
		Error:   err,
	})
}

// PublishToast is a convenience method for publishing toast events
func (eb *EventBus) PublishToast(level, message string) {
	eb.Publish(&ToastEvent{
		BaseEvent: BaseEvent{
			EventType: EventToast,
			Time:      time.Now(),
		},
		Level:   level,
		Message: message,
	})
}

// UnsubscribeAll removes a subscription channel from every list it appears in
// and closes it.
func (eb *EventBus) UnsubscribeAll(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	for eventType, subscribers := range eb.subscribers {
		for i, subCh := range subscribers {
			if subCh == ch {
				subscribers[i] = subscribers[len(subscribers)-1]
				eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
				close(subCh)
				break
			}
		}
	}

	for i, subCh := range eb.all {
		if subCh == ch {
			eb.all[i] = eb.all[len(eb.all)-1]
			eb.all = eb.all[:len(eb.all)-1]
			close(subCh)
			break
		}
	}
}

// GetDroppedEventCount returns the total number of events dropped due to full buffers
func (eb *EventBus) GetDroppedEventCount() int64 {
	return eb.droppedEvents.Load()
}
