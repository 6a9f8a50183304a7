package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/rescale/docbatch/internal/batch"
)

// Panel is the non-blocking, multi-row surface used for delete and vectorize:
// one aggregate bar plus a bar per object. Decorators run on mpb's render
// goroutines and must not take mu.
type Panel struct {
	mu         sync.Mutex
	out        io.Writer
	isTerminal bool
	progress   *mpb.Progress
	total      *mpb.Bar
	rows       map[int]*panelRow
	run        batch.RunInfo
	status     atomic.Value // string, read by the aggregate decorator
	lastStatus string
	jobID      string
	hinted     bool
}

type panelRow struct {
	bar    *mpb.Bar
	label  string
	detail atomic.Value // string
	done   bool
}

// NewPanel creates a panel writing to out (os.Stderr if nil).
func NewPanel(out io.Writer) *Panel {
	if out == nil {
		out = os.Stderr
	}
	return &Panel{out: out, isTerminal: isTerminal(out)}
}

func panelBarStyle() mpb.BarFillerBuilder {
	return mpb.BarStyle().
		Lbound("[").
		Filler("█").
		Tip("█").
		Padding("░").
		Rbound("]")
}

// Open implements batch.Surface.
func (p *Panel) Open(run batch.RunInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.run = run
	p.rows = make(map[int]*panelRow)
	p.status.Store(run.Operation.Title())
	p.lastStatus = ""
	p.jobID = ""
	p.hinted = false

	if !p.isTerminal {
		fmt.Fprintf(p.out, "%s: %d object(s)\n", run.Operation.Title(), len(run.Items))
		return
	}

	p.progress = mpb.New(
		mpb.WithOutput(p.out),
		mpb.WithRefreshRate(150*time.Millisecond),
		mpb.WithWidth(100),
	)
	p.total = p.progress.New(100, panelBarStyle(),
		mpb.PrependDecorators(
			decor.Any(func(decor.Statistics) string {
				s, _ := p.status.Load().(string)
				return s
			}, decor.WCSyncSpaceR),
		),
		mpb.AppendDecorators(decor.Percentage(decor.WCSyncSpace)),
	)
}

// Status implements batch.Surface.
func (p *Panel) Status(text string, percent int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	changed := text != p.lastStatus
	p.lastStatus = text
	p.status.Store(text)
	if p.total != nil {
		p.total.SetCurrent(int64(percent))
		return
	}
	if changed {
		fmt.Fprintf(p.out, "[%3d%%] %s\n", percent, text)
	}
}

// row returns the bar for index, creating it on first use (must hold lock).
func (p *Panel) row(item batch.ItemStatus) *panelRow {
	r, ok := p.rows[item.Index]
	if ok {
		return r
	}
	total := len(p.run.Items)
	if item.Index > total {
		total = item.Index
	}
	r = &panelRow{label: fmt.Sprintf("[%d/%d] %s", item.Index, total, truncateName(item.Name, 2))}
	p.rows[item.Index] = r

	if p.progress != nil {
		r.bar = p.progress.New(100, panelBarStyle(),
			mpb.PrependDecorators(decor.Name(r.label, decor.WCSyncSpaceR)),
			mpb.AppendDecorators(
				decor.Percentage(decor.WCSyncSpace),
				decor.Any(func(decor.Statistics) string {
					if d, _ := r.detail.Load().(string); d != "" {
						return "  " + d
					}
					return ""
				}),
			),
		)
	}
	return r
}

// Item implements batch.Surface.
func (p *Panel) Item(item batch.ItemStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()

	r := p.row(item)
	if r.done {
		return
	}
	r.detail.Store(item.Detail)

	switch item.State {
	case batch.ItemSuccess:
		r.done = true
		if r.bar != nil {
			r.bar.SetCurrent(100)
			r.bar.SetTotal(100, true)
		} else {
			fmt.Fprintf(p.out, "%s: done\n", r.label)
		}
	case batch.ItemFailed:
		r.done = true
		if r.bar != nil {
			r.bar.Abort(false)
		} else if item.Detail != "" {
			fmt.Fprintf(p.out, "%s: failed (%s)\n", r.label, item.Detail)
		} else {
			fmt.Fprintf(p.out, "%s: failed\n", r.label)
		}
	default:
		if r.bar != nil {
			r.bar.SetCurrent(int64(item.Percent))
		}
	}
}

// Controls implements batch.Surface.
func (p *Panel) Controls(jobID string, cancelable, closable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.jobID = jobID
	if !cancelable || p.hinted {
		return
	}
	p.hinted = true
	msg := fmt.Sprintf("Job %s: press Ctrl+C to cancel\n", jobID)
	if p.progress != nil {
		_, _ = p.progress.Write([]byte(msg))
	} else {
		fmt.Fprint(p.out, msg)
	}
}

// Close implements batch.Surface. Unfinished rows stay on screen as aborted.
func (p *Panel) Close(outcome batch.Outcome) {
	p.mu.Lock()
	prog := p.progress
	if prog != nil {
		for _, r := range p.rows {
			if !r.done && r.bar != nil {
				r.bar.Abort(false)
			}
		}
		if outcome == batch.OutcomeCompleted {
			p.total.SetCurrent(100)
			p.total.SetTotal(100, true)
		} else {
			p.total.Abort(false)
		}
	}
	p.progress = nil
	p.total = nil
	title := p.run.Operation.Title()
	p.mu.Unlock()

	if prog != nil {
		prog.Wait()
	}
	fmt.Fprintln(p.out, outcomeLine(title, string(outcome)))
}
