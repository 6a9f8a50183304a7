package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rescale/docbatch/internal/api"
	"github.com/rescale/docbatch/internal/constants"
)

// recorder implements every collaborator the engine drives and logs calls.
type recorder struct {
	mu    sync.Mutex
	calls []string

	toasts    []ToastLevel
	reloads   int
	cleared   int
	ended     int
	logouts   int
	statuses  []string
	items     []ItemStatus
	closed    []Outcome
	controls  []string
	opened    []RunInfo
	reloadErr error
}

func (r *recorder) log(format string, args ...interface{}) {
	r.mu.Lock()
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
	r.mu.Unlock()
}

func (r *recorder) Open(run RunInfo)                { r.opened = append(r.opened, run); r.log("open") }
func (r *recorder) Status(text string, percent int) { r.statuses = append(r.statuses, text); r.log("status") }
func (r *recorder) Item(item ItemStatus)            { r.items = append(r.items, item); r.log("item") }
func (r *recorder) Controls(jobID string, cancelable, closable bool) {
	r.controls = append(r.controls, fmt.Sprintf("%s:%t:%t", jobID, cancelable, closable))
	r.log("controls")
}
func (r *recorder) Close(outcome Outcome) { r.closed = append(r.closed, outcome); r.log("close") }
func (r *recorder) Toast(level ToastLevel, message string) {
	r.toasts = append(r.toasts, level)
	r.log("toast:%s", level)
}
func (r *recorder) Reload(ctx context.Context) error {
	r.reloads++
	r.log("reload")
	return r.reloadErr
}
func (r *recorder) ClearSelection() { r.cleared++; r.log("clear") }
func (r *recorder) EndProcessing()  { r.ended++; r.log("end") }
func (r *recorder) ForceLogout()    { r.logouts++; r.log("logout") }

func newTestEngine(rec *recorder, panel *recorder) *Engine {
	return NewEngine(Deps{
		Overlay:    rec,
		Panel:      panel,
		Notifier:   rec,
		Reloader:   rec,
		Selection:  rec,
		Processing: rec,
		Auth:       rec,
	})
}

type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}

func streamResponse(status int, jobID string, body io.Reader) (*http.Response, *trackingBody) {
	tb := &trackingBody{Reader: body}
	h := http.Header{}
	if jobID != "" {
		h.Set(constants.JobIDHeader, jobID)
	}
	return &http.Response{StatusCode: status, Status: fmt.Sprintf("%d %s", status, http.StatusText(status)), Header: h, Body: tb}, tb
}

func lines(ls ...string) string {
	var b strings.Builder
	for _, l := range ls {
		b.WriteString("data: ")
		b.WriteString(l)
		b.WriteString("\n")
	}
	return b.String()
}

func TestEngine_MixedResultStream(t *testing.T) {
	rec, panel := &recorder{}, &recorder{}
	e := newTestEngine(rec, panel)

	body := lines(
		`{"type":"start","total_files":2}`,
		`{"type":"file_start","file_index":1}`,
		`{"type":"file_complete","file_index":1}`,
		`{"type":"file_start","file_index":2}`,
		`{"type":"file_error","file_index":2,"error":"x"}`,
		`{"type":"complete","success":false,"success_count":1,"failed_count":1}`,
	)
	resp, tb := streamResponse(http.StatusOK, "job-9", strings.NewReader(body))

	res, err := e.Run(context.Background(), resp, OpVectorize, []string{"a.pdf", "b.pdf"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Outcome != OutcomeCompleted || res.JobID != "job-9" {
		t.Errorf("Result = %+v", res)
	}
	if res.Progress[1] != 100 || res.Progress[2] != 100 {
		t.Errorf("Progress = %v, want {1:100 2:100}", res.Progress)
	}
	if !tb.closed {
		t.Error("response body not closed")
	}

	// Vectorize renders on the panel; notifier and selection are shared.
	if len(panel.opened) != 1 || len(rec.opened) != 0 {
		t.Errorf("opened overlay=%d panel=%d, want panel only", len(rec.opened), len(panel.opened))
	}
	if last := panel.statuses[len(panel.statuses)-1]; !strings.Contains(last, "1 success, 1 failed") {
		t.Errorf("final status = %q", last)
	}
	if len(rec.toasts) != 1 || rec.toasts[0] != ToastWarning {
		t.Errorf("toasts = %v, want [warning]", rec.toasts)
	}
	if rec.cleared != 1 || rec.reloads != 1 || rec.ended != 1 {
		t.Errorf("cleared=%d reloads=%d ended=%d, want 1 each", rec.cleared, rec.reloads, rec.ended)
	}
	if len(panel.closed) != 1 || panel.closed[0] != OutcomeCompleted {
		t.Errorf("closed = %v", panel.closed)
	}
	if got := panel.controls[0]; got != "job-9:true:false" {
		t.Errorf("first controls = %s, want cancel offered for job-9", got)
	}
	if got := panel.controls[len(panel.controls)-1]; got != "job-9:false:true" {
		t.Errorf("final controls = %s, want close", got)
	}
	if _, ok := e.Jobs().Active(); ok {
		t.Error("job still active after run")
	}
}

func TestEngine_OverlayForConvertAndUpload(t *testing.T) {
	for _, op := range []OperationType{OpConvert, OpUpload} {
		rec, panel := &recorder{}, &recorder{}
		e := newTestEngine(rec, panel)
		resp, _ := streamResponse(http.StatusOK, "", strings.NewReader(lines(`{"type":"complete"}`)))
		if _, err := e.Run(context.Background(), resp, op, []string{"a"}); err != nil {
			t.Fatalf("%s: Run() error = %v", op, err)
		}
		if len(rec.opened) != 1 || len(panel.opened) != 0 {
			t.Errorf("%s: opened overlay=%d panel=%d, want overlay only", op, len(rec.opened), len(panel.opened))
		}
	}
}

func TestEngine_SurfaceFor(t *testing.T) {
	overlay, panel := &recorder{}, &recorder{}
	e := NewEngine(Deps{Overlay: overlay, Panel: panel})
	tests := []struct {
		op   OperationType
		want Surface
	}{
		{OpConvert, overlay},
		{OpUpload, overlay},
		{OpDelete, panel},
		{OpVectorize, panel},
	}
	for _, tt := range tests {
		if got := e.SurfaceFor(tt.op); got != tt.want {
			t.Errorf("SurfaceFor(%s) picked the wrong surface", tt.op)
		}
	}
}

type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestEngine_ReadFailureAborts(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(rec, rec)

	boom := errors.New("connection reset by peer")
	body := &failingReader{
		data: []byte(lines(`{"type":"start","total_files":2}`, `{"type":"file_start","file_index":1}`)),
		err:  boom,
	}
	resp, tb := streamResponse(http.StatusOK, "job-1", body)

	res, err := e.Run(context.Background(), resp, OpDelete, []string{"a", "b"})
	if !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want %v", err, boom)
	}
	if res.Outcome != OutcomeFailed {
		t.Errorf("Outcome = %s, want failed", res.Outcome)
	}
	if res.State.Phase != PhaseRunning {
		t.Errorf("Phase = %v, want running (no synthesized terminal)", res.State.Phase)
	}
	if rec.ended != 1 {
		t.Errorf("processing flag cleared %d times, want 1", rec.ended)
	}
	if len(rec.toasts) != 1 || rec.toasts[0] != ToastError {
		t.Errorf("toasts = %v, want [error]", rec.toasts)
	}
	if len(rec.closed) != 1 || rec.closed[0] != OutcomeFailed {
		t.Errorf("closed = %v, want [failed]", rec.closed)
	}
	if rec.reloads != 1 || rec.cleared != 1 {
		t.Errorf("reloads=%d cleared=%d, want 1 each", rec.reloads, rec.cleared)
	}
	if !tb.closed {
		t.Error("response body not closed")
	}
}

func TestEngine_Unauthorized(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(rec, rec)
	resp, tb := streamResponse(http.StatusUnauthorized, "", strings.NewReader(""))

	res, err := e.Run(context.Background(), resp, OpConvert, []string{"a"})
	if !api.IsUnauthorized(err) {
		t.Fatalf("Run() error = %v, want unauthorized", err)
	}
	if res.Outcome != OutcomeUnauthorized {
		t.Errorf("Outcome = %s", res.Outcome)
	}
	if rec.logouts != 1 {
		t.Errorf("logouts = %d, want 1", rec.logouts)
	}
	if len(rec.toasts) != 0 {
		t.Errorf("toasts = %v, want none (logout replaces the error toast)", rec.toasts)
	}
	if len(rec.opened) != 0 {
		t.Error("surface opened for rejected request")
	}
	if rec.ended != 1 || !tb.closed {
		t.Errorf("ended=%d closed=%v", rec.ended, tb.closed)
	}
}

func TestEngine_ServerErrorStatus(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(rec, rec)
	resp, _ := streamResponse(http.StatusInternalServerError, "", strings.NewReader("database unavailable"))

	res, err := e.Run(context.Background(), resp, OpDelete, []string{"a"})
	var se *api.StatusError
	if !errors.As(err, &se) || se.StatusCode != 500 || se.Body != "database unavailable" {
		t.Fatalf("Run() error = %v, want *StatusError 500", err)
	}
	if res.Outcome != OutcomeFailed {
		t.Errorf("Outcome = %s", res.Outcome)
	}
	if len(rec.toasts) != 1 || rec.toasts[0] != ToastError {
		t.Errorf("toasts = %v, want [error]", rec.toasts)
	}
	if rec.reloads != 1 || rec.cleared != 1 || rec.ended != 1 || rec.logouts != 0 {
		t.Errorf("reloads=%d cleared=%d ended=%d logouts=%d", rec.reloads, rec.cleared, rec.ended, rec.logouts)
	}
}

func TestEngine_EOFWithoutTerminal(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(rec, rec)
	resp, _ := streamResponse(http.StatusOK, "", strings.NewReader(lines(`{"type":"start","total_files":1}`)))

	res, err := e.Run(context.Background(), resp, OpDelete, []string{"a"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Outcome != OutcomeIncomplete {
		t.Errorf("Outcome = %s, want incomplete", res.Outcome)
	}
	if len(rec.toasts) != 1 || rec.toasts[0] != ToastWarning {
		t.Errorf("toasts = %v, want [warning]", rec.toasts)
	}
	if rec.reloads != 1 {
		t.Errorf("reloads = %d, want 1", rec.reloads)
	}
}

func TestEngine_LinesAfterTerminalIgnored(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(rec, rec)
	body := lines(
		`{"type":"start","total_files":1}`,
		`{"type":"cancelled"}`,
		`{"type":"file_complete","file_index":1}`,
		`{"type":"complete","success_count":1}`,
	) + "data: {garbage\n"
	resp, _ := streamResponse(http.StatusOK, "job-3", strings.NewReader(body))

	res, err := e.Run(context.Background(), resp, OpDelete, []string{"a"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Outcome != OutcomeCancelled {
		t.Errorf("Outcome = %s, want cancelled", res.Outcome)
	}
	if res.Ignored != 3 {
		t.Errorf("Ignored = %d, want 3", res.Ignored)
	}
	if res.State.Completed != 0 || res.Progress[1] != 0 {
		t.Errorf("late file_complete applied: %+v %v", res.State, res.Progress)
	}
	if len(rec.toasts) != 1 || rec.toasts[0] != ToastWarning {
		t.Errorf("toasts = %v, want [warning]", rec.toasts)
	}
}

func TestEngine_MalformedLinesDoNotAbort(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(rec, rec)
	body := "data: {not json\n" +
		"event: ignored\n" +
		"\n" +
		lines(`{"type":"start","total_files":1}`, `{"type":"file_complete","file_index":1}`, `{"type":"complete"}`)
	resp, _ := streamResponse(http.StatusOK, "", strings.NewReader(body))

	res, err := e.Run(context.Background(), resp, OpDelete, []string{"a"})
	if err != nil || res.Outcome != OutcomeCompleted {
		t.Fatalf("Run() = %+v, %v", res, err)
	}
}

func TestEngine_CompleteOrdering(t *testing.T) {
	rec := &recorder{}
	e := NewEngine(Deps{
		Overlay: rec, Panel: rec, Notifier: rec, Reloader: rec,
		Selection: rec, Processing: rec, Auth: rec,
		SettleDelay: 20 * time.Millisecond,
	})
	resp, _ := streamResponse(http.StatusOK, "", strings.NewReader(lines(`{"type":"start","total_files":1}`, `{"type":"complete"}`)))

	start := time.Now()
	if _, err := e.Run(context.Background(), resp, OpConvert, []string{"a"}); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("Run() returned before the settle delay")
	}

	// clear selection, then settle, then close and reload, then end processing.
	tail := rec.calls[len(rec.calls)-4:]
	want := []string{"clear", "close", "reload", "end"}
	for i := range want {
		if tail[i] != want[i] {
			t.Fatalf("call tail = %v, want %v", tail, want)
		}
	}
}

func TestEngine_SettleHonorsContext(t *testing.T) {
	rec := &recorder{}
	e := NewEngine(Deps{Overlay: rec, Reloader: rec, SettleDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	pr, pw := io.Pipe()
	go func() {
		pw.Write([]byte(lines(`{"type":"complete"}`)))
		pw.Close()
	}()
	resp, _ := streamResponse(http.StatusOK, "", pr)

	done := make(chan struct{})
	go func() {
		e.Run(ctx, resp, OpConvert, []string{"a"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after ctx was cancelled during settle")
	}
	if rec.reloads != 1 {
		t.Errorf("reloads = %d, want 1 even after cancel", rec.reloads)
	}
}

func TestEngine_ReloadUnauthorizedForcesLogout(t *testing.T) {
	rec := &recorder{reloadErr: fmt.Errorf("list objects: %w", api.ErrUnauthorized)}
	e := newTestEngine(rec, rec)
	resp, _ := streamResponse(http.StatusOK, "", strings.NewReader(lines(`{"type":"error","error":"x"}`)))

	res, err := e.Run(context.Background(), resp, OpDelete, []string{"a"})
	if err != nil || res.Outcome != OutcomeErrored {
		t.Fatalf("Run() = %+v, %v", res, err)
	}
	if rec.logouts != 1 {
		t.Errorf("logouts = %d, want 1", rec.logouts)
	}
}

func TestEngine_CancelDuringRun(t *testing.T) {
	rec := &recorder{}
	canceler := &fakeCanceler{}
	jobs := NewJobControl(canceler, rec)
	e := NewEngine(Deps{Overlay: rec, Panel: rec, Notifier: rec, Jobs: jobs})

	pr, pw := io.Pipe()
	resp, _ := streamResponse(http.StatusOK, "job-77", pr)

	type runResult struct {
		res *Result
		err error
	}
	done := make(chan runResult, 1)
	go func() {
		res, err := e.Run(context.Background(), resp, OpDelete, []string{"a", "b"})
		done <- runResult{res, err}
	}()

	pw.Write([]byte(lines(`{"type":"start","total_files":2}`, `{"type":"file_start","file_index":1}`)))

	// Wait for the engine to register the job.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if id, ok := jobs.Active(); ok && id == "job-77" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("job never became active")
		}
		time.Sleep(5 * time.Millisecond)
	}

	ok, err := jobs.Cancel(context.Background(), yes(true))
	if err != nil || !ok {
		t.Fatalf("Cancel() = %v, %v", ok, err)
	}

	// The server finishes in-flight work before acknowledging.
	pw.Write([]byte(lines(`{"type":"file_complete","file_index":1}`, `{"type":"cancelled"}`)))
	pw.Close()

	r := <-done
	if r.err != nil || r.res.Outcome != OutcomeCancelled {
		t.Fatalf("Run() = %+v, %v", r.res, r.err)
	}
	if r.res.State.Succeeded != 1 {
		t.Errorf("Succeeded = %d, want 1 (events accepted until cancelled)", r.res.State.Succeeded)
	}
	if got := canceler.ids(); len(got) != 1 || got[0] != "job-77" {
		t.Errorf("cancelled ids = %v", got)
	}
}
