package progress

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/rescale/docbatch/internal/events"
)

// JSONFeed writes every bus event to w as one JSON object per line.
type JSONFeed struct {
	bus  *events.EventBus
	sub  <-chan events.Event
	done chan struct{}

	mu  sync.Mutex
	err error
}

// NewJSONFeed subscribes to bus and starts writing to w.
func NewJSONFeed(bus *events.EventBus, w io.Writer) *JSONFeed {
	f := &JSONFeed{
		bus:  bus,
		sub:  bus.SubscribeAll(),
		done: make(chan struct{}),
	}
	go f.run(json.NewEncoder(w))
	return f
}

func (f *JSONFeed) run(enc *json.Encoder) {
	defer close(f.done)
	for ev := range f.sub {
		if err := enc.Encode(ev); err != nil {
			f.mu.Lock()
			if f.err == nil {
				f.err = err
			}
			f.mu.Unlock()
		}
	}
}

// Close unsubscribes, waits for buffered events to be written and returns
// the first write error.
func (f *JSONFeed) Close() error {
	f.bus.UnsubscribeAll(f.sub)
	<-f.done

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}
