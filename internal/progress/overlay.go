package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/rescale/docbatch/internal/batch"
)

// Overlay is the blocking, single-bar surface used for convert and upload.
// On a terminal it redraws one bar in place; elsewhere it prints a line per
// status change and per finished item.
type Overlay struct {
	mu         sync.Mutex
	out        io.Writer
	isTerminal bool
	bar        *progressbar.ProgressBar
	run        batch.RunInfo
	lastStatus string
	hinted     bool
}

// NewOverlay creates an overlay writing to out (os.Stderr if nil).
func NewOverlay(out io.Writer) *Overlay {
	if out == nil {
		out = os.Stderr
	}
	return &Overlay{out: out, isTerminal: isTerminal(out)}
}

// Open implements batch.Surface.
func (o *Overlay) Open(run batch.RunInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.run = run
	o.lastStatus = ""
	o.hinted = false
	title := run.Operation.Title()

	if !o.isTerminal {
		fmt.Fprintf(o.out, "%s: %d object(s)\n", title, len(run.Items))
		return
	}

	o.bar = progressbar.NewOptions(100,
		progressbar.OptionSetDescription(title),
		progressbar.OptionSetWriter(o.out),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(o.out, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// println writes a line above the bar (must hold lock).
func (o *Overlay) println(format string, args ...interface{}) {
	if o.bar != nil {
		_ = o.bar.Clear()
	}
	fmt.Fprintf(o.out, format+"\n", args...)
	if o.bar != nil {
		_ = o.bar.RenderBlank()
	}
}

// Status implements batch.Surface.
func (o *Overlay) Status(text string, percent int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.bar != nil {
		o.bar.Describe(text)
		_ = o.bar.Set(percent)
		return
	}
	if text != o.lastStatus {
		o.lastStatus = text
		fmt.Fprintf(o.out, "[%3d%%] %s\n", percent, text)
	}
}

// Item implements batch.Surface. The overlay only reports finished items.
func (o *Overlay) Item(item batch.ItemStatus) {
	if !item.State.Done() {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	name := truncateName(item.Name, 3)
	if item.State == batch.ItemSuccess {
		o.println("✓ %s", name)
		return
	}
	if item.Detail != "" {
		o.println("✗ %s: %s", name, item.Detail)
	} else {
		o.println("✗ %s", name)
	}
}

// Controls implements batch.Surface.
func (o *Overlay) Controls(jobID string, cancelable, closable bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if cancelable && !o.hinted {
		o.hinted = true
		o.println("Job %s: press Ctrl+C to cancel", jobID)
	}
}

// Close implements batch.Surface.
func (o *Overlay) Close(outcome batch.Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.bar != nil {
		if outcome == batch.OutcomeCompleted {
			_ = o.bar.Finish()
		} else {
			_ = o.bar.Exit()
			fmt.Fprint(o.out, "\n")
		}
		o.bar = nil
	}
	fmt.Fprintln(o.out, outcomeLine(o.run.Operation.Title(), string(outcome)))
}
