package progress

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rescale/docbatch/internal/batch"
	"github.com/rescale/docbatch/internal/events"
)

func TestTruncateName(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"a.pdf", 2, "a.pdf"},
		{"reports/q1.pdf", 2, "reports/q1.pdf"},
		{"a/b/c/d.pdf", 2, "…/c/d.pdf"},
		{"a/b/c/d.pdf", 1, "d.pdf"},
	}
	for _, tt := range tests {
		if got := truncateName(tt.in, tt.n); got != tt.want {
			t.Errorf("truncateName(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestOverlayPlainOutput(t *testing.T) {
	var buf bytes.Buffer
	o := NewOverlay(&buf)
	if o.isTerminal {
		t.Fatal("bytes.Buffer reported as terminal")
	}

	o.Open(batch.RunInfo{ID: "r1", Operation: batch.OpConvert, Items: []string{"a.pdf", "b.pdf"}})
	o.Controls("job-1", true, false)
	o.Status("Convert: 0 of 2 done", 0)
	o.Status("Convert: 0 of 2 done", 5) // same text, suppressed
	o.Item(batch.ItemStatus{Index: 1, Name: "a.pdf", State: batch.ItemActive, Percent: 50})
	o.Item(batch.ItemStatus{Index: 1, Name: "a.pdf", State: batch.ItemSuccess, Percent: 100})
	o.Item(batch.ItemStatus{Index: 2, Name: "b.pdf", State: batch.ItemFailed, Percent: 100, Detail: "corrupt"})
	o.Close(batch.OutcomeCompleted)

	want := strings.Join([]string{
		"Convert: 2 object(s)",
		"Job job-1: press Ctrl+C to cancel",
		"[  0%] Convert: 0 of 2 done",
		"✓ a.pdf",
		"✗ b.pdf: corrupt",
		"Convert finished",
		"",
	}, "\n")
	if got := buf.String(); got != want {
		t.Errorf("output =\n%s\nwant\n%s", got, want)
	}
}

func TestPanelPlainOutput(t *testing.T) {
	var buf bytes.Buffer
	p := NewPanel(&buf)

	p.Open(batch.RunInfo{ID: "r1", Operation: batch.OpDelete, Items: []string{"docs/a.pdf", "docs/b.pdf"}})
	p.Item(batch.ItemStatus{Index: 1, Name: "docs/a.pdf", State: batch.ItemActive, Percent: 20})
	p.Item(batch.ItemStatus{Index: 1, Name: "docs/a.pdf", State: batch.ItemSuccess, Percent: 100})
	p.Item(batch.ItemStatus{Index: 1, Name: "docs/a.pdf", State: batch.ItemFailed}) // after done, ignored
	p.Item(batch.ItemStatus{Index: 2, Name: "docs/b.pdf", State: batch.ItemFailed, Detail: "locked"})
	p.Status("Delete: 2 of 2 done (1 success, 1 failed)", 100)
	p.Close(batch.OutcomeCompleted)

	out := buf.String()
	for _, want := range []string{
		"Delete: 2 object(s)",
		"[1/2] docs/a.pdf: done",
		"[2/2] docs/b.pdf: failed (locked)",
		"[100%] Delete: 2 of 2 done (1 success, 1 failed)",
		"Delete finished",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "docs/a.pdf") != 1 {
		t.Errorf("finished row reported twice:\n%s", out)
	}
}

func TestTerminalNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewTerminalNotifier(&buf)
	n.Toast(batch.ToastWarning, "1 failed")
	n.Toast(batch.ToastError, "boom")
	if got, want := buf.String(), "! 1 failed\n✗ boom\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

type countingSurface struct {
	opens, statuses, items, controls, closes int
}

func (c *countingSurface) Open(batch.RunInfo)             { c.opens++ }
func (c *countingSurface) Status(string, int)             { c.statuses++ }
func (c *countingSurface) Item(batch.ItemStatus)          { c.items++ }
func (c *countingSurface) Controls(string, bool, bool)    { c.controls++ }
func (c *countingSurface) Close(batch.Outcome)            { c.closes++ }
func (c *countingSurface) Toast(batch.ToastLevel, string) { c.items++ }

func TestTeeFansOut(t *testing.T) {
	a, b := &countingSurface{}, &countingSurface{}
	tee := Tee{a, nil, b}
	tee.Open(batch.RunInfo{})
	tee.Status("x", 1)
	tee.Item(batch.ItemStatus{})
	tee.Controls("j", true, false)
	tee.Close(batch.OutcomeCompleted)
	for i, c := range []*countingSurface{a, b} {
		if c.opens != 1 || c.statuses != 1 || c.items != 1 || c.controls != 1 || c.closes != 1 {
			t.Errorf("member %d = %+v, want one of each", i, *c)
		}
	}

	NotifierTee{a, nil, b}.Toast(batch.ToastInfo, "hi")
	if a.items != 2 || b.items != 2 {
		t.Errorf("NotifierTee did not reach every member")
	}
}

func recv(t *testing.T, ch <-chan events.Event) events.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestBusSurfacePublishes(t *testing.T) {
	bus := events.NewEventBus(16)
	defer bus.Close()
	ch := bus.SubscribeAll()

	s := NewBusSurface(bus)
	s.Open(batch.RunInfo{ID: "run-7", Operation: batch.OpVectorize, Items: []string{"a"}})
	s.Status("Vectorize: 0 of 1 done", 10)
	s.Item(batch.ItemStatus{Index: 1, Name: "a", State: batch.ItemActive, Percent: 55, Detail: "embedding"})
	s.Controls("job-7", true, false)
	s.Close(batch.OutcomeCancelled)
	NewBusNotifier(bus).Toast(batch.ToastWarning, "stopped")

	opened := recv(t, ch).(*events.RunOpenedEvent)
	if opened.RunID != "run-7" || opened.Operation != "vectorize" {
		t.Errorf("opened = %+v", opened)
	}
	status := recv(t, ch).(*events.RunStatusEvent)
	if status.RunID != "run-7" || status.Percent != 10 {
		t.Errorf("status = %+v", status)
	}
	item := recv(t, ch).(*events.RunItemEvent)
	if item.State != "active" || item.Percent != 55 || item.Detail != "embedding" {
		t.Errorf("item = %+v", item)
	}
	controls := recv(t, ch).(*events.RunControlsEvent)
	if controls.JobID != "job-7" || !controls.Cancelable {
		t.Errorf("controls = %+v", controls)
	}
	closed := recv(t, ch).(*events.RunClosedEvent)
	if closed.Outcome != "cancelled" {
		t.Errorf("closed = %+v", closed)
	}
	toast := recv(t, ch).(*events.ToastEvent)
	if toast.Level != "warning" || toast.Message != "stopped" {
		t.Errorf("toast = %+v", toast)
	}
}

func TestJSONFeed(t *testing.T) {
	bus := events.NewEventBus(16)
	defer bus.Close()

	var buf bytes.Buffer
	feed := NewJSONFeed(bus, &buf)
	s := NewBusSurface(bus)
	s.Open(batch.RunInfo{ID: "run-1", Operation: batch.OpDelete, Items: []string{"a"}})
	s.Status("Delete: 0 of 1 done", 0)
	if err := feed.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	sc := bufio.NewScanner(&buf)
	var types []string
	for sc.Scan() {
		var m map[string]interface{}
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("line %q is not JSON: %v", sc.Text(), err)
		}
		types = append(types, m["type"].(string))
		if m["run_id"] != "run-1" {
			t.Errorf("run_id = %v", m["run_id"])
		}
	}
	if len(types) != 2 || types[0] != "run_opened" || types[1] != "run_status" {
		t.Errorf("types = %v", types)
	}
}

func TestWSBridge(t *testing.T) {
	bus := events.NewEventBus(16)
	defer bus.Close()

	bridge := NewWSBridge(bus, nil)
	bridge.Start()
	srv := httptest.NewServer(bridge.Handler())
	defer srv.Close()
	defer bridge.Close(context.Background())

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	var health map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || health["status"] != "ok" {
		t.Errorf("healthz = %d %v", resp.StatusCode, health)
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var hello map[string]interface{}
	if err := conn.ReadJSON(&hello); err != nil || hello["type"] != "hello" {
		t.Fatalf("hello = %v, %v", hello, err)
	}
	if bridge.Clients() != 1 {
		t.Errorf("Clients() = %d, want 1", bridge.Clients())
	}

	NewBusNotifier(bus).Toast(batch.ToastSuccess, "done")

	var toast map[string]interface{}
	if err := conn.ReadJSON(&toast); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if toast["type"] != "toast" || toast["message"] != "done" || toast["level"] != "success" {
		t.Errorf("toast = %v", toast)
	}
}
