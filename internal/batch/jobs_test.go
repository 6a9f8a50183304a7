package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rescale/docbatch/internal/api"
)

type fakeCanceler struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeCanceler) CancelJob(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, jobID)
	return f.err
}

func (f *fakeCanceler) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fixedConfirmer struct {
	answer  bool
	err     error
	prompts []string
}

func (c *fixedConfirmer) Confirm(prompt string) (bool, error) {
	c.prompts = append(c.prompts, prompt)
	return c.answer, c.err
}

func yes(answer bool) *fixedConfirmer {
	return &fixedConfirmer{answer: answer}
}

func TestJobControl_OpenIsFixedForRun(t *testing.T) {
	j := NewJobControl(nil, nil)

	if _, ok := j.Active(); ok {
		t.Fatal("new JobControl has an active job")
	}
	if j.Open("") {
		t.Error("Open(\"\") = true, want false")
	}
	if !j.Open("job-1") {
		t.Error("Open(job-1) = false, want true")
	}
	if j.Open("job-2") {
		t.Error("second Open() = true, want false")
	}
	if id, _ := j.Active(); id != "job-1" {
		t.Errorf("Active() = %s, want job-1", id)
	}

	j.Close()
	if _, ok := j.Active(); ok {
		t.Error("Active() after Close reports a job")
	}
	if !j.Open("job-2") {
		t.Error("Open after Close = false, want true")
	}
}

func TestJobControl_Cancel(t *testing.T) {
	tests := []struct {
		name       string
		open       string
		confirm    *fixedConfirmer
		cancelErr  error
		wantOK     bool
		wantErr    bool
		wantCalls  int
		wantLogout int
	}{
		{name: "confirmed", open: "job-1", confirm: yes(true), wantOK: true, wantCalls: 1},
		{name: "declined", open: "job-1", confirm: yes(false), wantCalls: 0},
		{name: "no prompt", open: "job-1", confirm: nil, wantOK: true, wantCalls: 1},
		{name: "no active job", confirm: yes(true), wantErr: true},
		{name: "confirm error", open: "job-1", confirm: &fixedConfirmer{err: errors.New("eof")}, wantErr: true},
		{name: "server error", open: "job-1", confirm: yes(true), cancelErr: errors.New("boom"), wantErr: true, wantCalls: 1},
		{name: "unauthorized", open: "job-1", confirm: yes(true), cancelErr: fmt.Errorf("cancel: %w", api.ErrUnauthorized), wantErr: true, wantCalls: 1, wantLogout: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			canceler := &fakeCanceler{err: tt.cancelErr}
			auth := &recorder{}
			j := NewJobControl(canceler, auth)
			j.Open(tt.open)

			var confirm Confirmer
			if tt.confirm != nil {
				confirm = tt.confirm
			}
			ok, err := j.Cancel(context.Background(), confirm)
			if ok != tt.wantOK {
				t.Errorf("Cancel() ok = %v, want %v", ok, tt.wantOK)
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("Cancel() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := len(canceler.ids()); got != tt.wantCalls {
				t.Errorf("CancelJob calls = %d, want %d", got, tt.wantCalls)
			}
			if auth.logouts != tt.wantLogout {
				t.Errorf("logouts = %d, want %d", auth.logouts, tt.wantLogout)
			}
		})
	}
}

func TestJobControl_CancelPromptNamesJob(t *testing.T) {
	c := yes(true)
	j := NewJobControl(&fakeCanceler{}, nil)
	j.Open("abc-123")
	if _, err := j.Cancel(context.Background(), c); err != nil {
		t.Fatal(err)
	}
	if len(c.prompts) != 1 || c.prompts[0] != "Cancel job abc-123?" {
		t.Errorf("prompts = %v", c.prompts)
	}
}

func TestJobControl_CancelIDWithoutCanceler(t *testing.T) {
	j := NewJobControl(nil, nil)
	if _, err := j.CancelID(context.Background(), "job-1", nil); err == nil {
		t.Error("CancelID() with no canceler should fail")
	}
	if _, err := j.CancelID(context.Background(), "", nil); !errors.Is(err, ErrNoActiveJob) {
		t.Errorf("CancelID(\"\") error = %v, want ErrNoActiveJob", err)
	}
}

func TestJobControl_CancelKeepsJobOpen(t *testing.T) {
	j := NewJobControl(&fakeCanceler{}, nil)
	j.Open("job-1")
	if _, err := j.Cancel(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	// The run stays attached until the server reports cancelled.
	if id, ok := j.Active(); !ok || id != "job-1" {
		t.Errorf("Active() = %s, %v after Cancel, want job-1", id, ok)
	}
}
