package batch

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"time"

	"github.com/google/uuid"

	"github.com/rescale/docbatch/internal/api"
	"github.com/rescale/docbatch/internal/constants"
	"github.com/rescale/docbatch/internal/logging"
	"github.com/rescale/docbatch/internal/stream"
)

// Deps are the collaborators an Engine drives. Nil fields are replaced with
// no-ops.
type Deps struct {
	Overlay    Surface
	Panel      Surface
	Notifier   Notifier
	Reloader   Reloader
	Selection  Selection
	Processing Processing
	Auth       Authenticator
	Jobs       *JobControl

	// SettleDelay is the pause between a "complete" event and the reload.
	SettleDelay time.Duration
	Logger      *logging.Logger
}

// Result summarizes a finished run.
type Result struct {
	RunID    string
	JobID    string
	Outcome  Outcome
	State    RunState
	Progress map[int]int
	// Ignored counts lines received after the terminal event.
	Ignored int
}

// Engine consumes batch progress streams. One Engine may run many
// operations, but only one at a time.
type Engine struct {
	deps Deps
	log  *logging.Logger
}

// NewEngine returns an engine over deps.
func NewEngine(deps Deps) *Engine {
	nop := nopCollaborator{}
	if deps.Overlay == nil {
		deps.Overlay = nopSurface{}
	}
	if deps.Panel == nil {
		deps.Panel = nopSurface{}
	}
	if deps.Notifier == nil {
		deps.Notifier = nop
	}
	if deps.Reloader == nil {
		deps.Reloader = nop
	}
	if deps.Selection == nil {
		deps.Selection = nop
	}
	if deps.Processing == nil {
		deps.Processing = nop
	}
	if deps.Auth == nil {
		deps.Auth = nop
	}
	if deps.Jobs == nil {
		deps.Jobs = NewJobControl(nil, deps.Auth)
	}
	if deps.SettleDelay < 0 {
		deps.SettleDelay = 0
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	return &Engine{deps: deps, log: deps.Logger}
}

// Jobs returns the engine's job control.
func (e *Engine) Jobs() *JobControl {
	return e.deps.Jobs
}

// SurfaceFor returns the surface used to render op.
func (e *Engine) SurfaceFor(op OperationType) Surface {
	if KindFor(op) == SurfacePanel {
		return e.deps.Panel
	}
	return e.deps.Overlay
}

// Run consumes resp, the response to a batch request for names, until the
// server closes the stream. resp.Body is always closed and the processing
// flag is always cleared.
//
// A 401 forces a logout and returns api.ErrUnauthorized. Any other non-2xx
// status or a failed read unwinds the surface, shows an error toast, reloads
// the object list and returns the error. Server-reported outcomes
// (complete, cancelled, error) are not Go errors; inspect Result.Outcome.
func (e *Engine) Run(ctx context.Context, resp *nethttp.Response, op OperationType, names []string) (*Result, error) {
	defer e.deps.Processing.EndProcessing()
	defer resp.Body.Close()

	res := &Result{RunID: uuid.NewString()}
	log := e.log.Child(map[string]interface{}{"run_id": res.RunID, "operation": string(op)})

	if err := api.CheckResponse(resp); err != nil {
		if api.IsUnauthorized(err) {
			log.Warn().Msg("batch request rejected, forcing logout")
			e.deps.Auth.ForceLogout()
			res.Outcome = OutcomeUnauthorized
			return res, err
		}
		log.Error().Err(err).Msg("batch request failed")
		e.deps.Notifier.Toast(ToastError, fmt.Sprintf("%s failed: %v", op.Title(), err))
		e.deps.Selection.ClearSelection()
		e.reload(ctx, log)
		res.Outcome = OutcomeFailed
		return res, err
	}

	res.JobID = resp.Header.Get(constants.JobIDHeader)
	if res.JobID != "" {
		e.deps.Jobs.Open(res.JobID)
	}
	defer e.deps.Jobs.Close()

	surface := e.SurfaceFor(op)
	surface.Open(RunInfo{ID: res.RunID, Operation: op, Items: names})
	if res.JobID != "" {
		surface.Controls(res.JobID, true, false)
	}

	machine := NewMachine(op, names, log)
	var terminal *Update

	readErr := stream.ReadLines(ctx, resp.Body, func(line string) error {
		if machine.Done() {
			if line != "" {
				res.Ignored++
			}
			return nil
		}
		ev, ok := stream.ParseLine(line)
		if !ok {
			return nil
		}
		for _, u := range machine.Apply(ev) {
			if u.Kind == UpdateTerminal {
				t := u
				terminal = &t
				// No more cancel affordance once the server has finished.
				e.deps.Jobs.Close()
				continue
			}
			e.dispatch(surface, res.JobID, u)
		}
		return nil
	})

	res.State = machine.State()
	res.Progress = machine.Ledger().Snapshot()

	if readErr != nil && terminal == nil {
		log.Error().Err(readErr).Msg("progress stream aborted")
		surface.Close(OutcomeFailed)
		msg := fmt.Sprintf("%s interrupted: %v", op.Title(), readErr)
		if errors.Is(readErr, context.Canceled) {
			msg = fmt.Sprintf("%s stopped watching; the server may still be working", op.Title())
		}
		e.deps.Notifier.Toast(ToastError, msg)
		e.deps.Selection.ClearSelection()
		e.reload(ctx, log)
		res.Outcome = OutcomeFailed
		return res, readErr
	}
	if readErr != nil {
		log.Debug().Err(readErr).Msg("read error after terminal event")
	}

	if terminal == nil {
		log.Warn().Msg("progress stream ended without a terminal event")
		surface.Close(OutcomeIncomplete)
		e.deps.Notifier.Toast(ToastWarning, fmt.Sprintf("%s stream ended before the server reported completion; refreshing", op.Title()))
		e.deps.Selection.ClearSelection()
		e.reload(ctx, log)
		res.Outcome = OutcomeIncomplete
		return res, nil
	}

	res.Outcome = terminal.Outcome
	e.deps.Selection.ClearSelection()
	if terminal.Settle {
		e.settle(ctx)
	}
	surface.Close(terminal.Outcome)
	e.reload(ctx, log)

	log.Info().Str("outcome", string(res.Outcome)).Int("succeeded", res.State.Succeeded).
		Int("failed", res.State.Failed).Msg("batch run finished")
	return res, nil
}

func (e *Engine) dispatch(surface Surface, jobID string, u Update) {
	switch u.Kind {
	case UpdateStatus:
		surface.Status(u.Text, u.Percent)
	case UpdateItem:
		surface.Item(u.Item)
	case UpdateToast:
		e.deps.Notifier.Toast(u.Level, u.Text)
	case UpdateControls:
		surface.Controls(jobID, u.Cancelable && jobID != "", u.Closable)
	}
}

func (e *Engine) settle(ctx context.Context) {
	if e.deps.SettleDelay <= 0 {
		return
	}
	t := time.NewTimer(e.deps.SettleDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// reload refreshes the object list even if ctx is already cancelled, since
// partial server-side effects must still be reflected.
func (e *Engine) reload(ctx context.Context, log *logging.Logger) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.APIRequestTimeout)
	defer cancel()

	if err := e.deps.Reloader.Reload(rctx); err != nil {
		if api.IsUnauthorized(err) {
			e.deps.Auth.ForceLogout()
			return
		}
		log.Warn().Err(err).Msg("object list reload failed")
	}
}
