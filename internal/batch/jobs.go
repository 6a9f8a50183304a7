package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rescale/docbatch/internal/api"
)

// ErrNoActiveJob is returned by Cancel when no job id is open.
var ErrNoActiveJob = errors.New("no active job to cancel")

// Canceler submits a cancellation for a server job.
type Canceler interface {
	CancelJob(ctx context.Context, jobID string) error
}

// Confirmer asks the operator a yes/no question.
type Confirmer interface {
	Confirm(prompt string) (bool, error)
}

// JobControl tracks the job id of the in-flight run and cancels it on
// request. It is safe for concurrent use: the engine opens and closes it
// while a signal handler may call Cancel.
type JobControl struct {
	mu       sync.Mutex
	jobID    string
	canceler Canceler
	auth     Authenticator
}

// NewJobControl returns a JobControl with no active job.
func NewJobControl(canceler Canceler, auth Authenticator) *JobControl {
	if auth == nil {
		auth = nopCollaborator{}
	}
	return &JobControl{canceler: canceler, auth: auth}
}

// Open records the job id of a newly opened stream. The id is fixed for the
// life of the run; a second Open before Close is ignored and reports false.
func (j *JobControl) Open(jobID string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if jobID == "" || j.jobID != "" {
		return false
	}
	j.jobID = jobID
	return true
}

// Close forgets the active job.
func (j *JobControl) Close() {
	j.mu.Lock()
	j.jobID = ""
	j.mu.Unlock()
}

// Active returns the open job id.
func (j *JobControl) Active() (string, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.jobID, j.jobID != ""
}

// Cancel confirms with the operator and then cancels the active job. It
// reports whether a cancellation was submitted. The run keeps consuming
// events until the server sends "cancelled".
func (j *JobControl) Cancel(ctx context.Context, confirm Confirmer) (bool, error) {
	id, ok := j.Active()
	if !ok {
		return false, ErrNoActiveJob
	}
	return j.CancelID(ctx, id, confirm)
}

// CancelID cancels an explicit job id. A nil confirm skips the prompt.
func (j *JobControl) CancelID(ctx context.Context, jobID string, confirm Confirmer) (bool, error) {
	if jobID == "" {
		return false, ErrNoActiveJob
	}
	if j.canceler == nil {
		return false, fmt.Errorf("job control has no canceler")
	}

	if confirm != nil {
		yes, err := confirm.Confirm(fmt.Sprintf("Cancel job %s?", jobID))
		if err != nil {
			return false, fmt.Errorf("confirmation failed: %w", err)
		}
		if !yes {
			return false, nil
		}
	}

	if err := j.canceler.CancelJob(ctx, jobID); err != nil {
		if api.IsUnauthorized(err) {
			j.auth.ForceLogout()
		}
		return false, err
	}
	return true, nil
}
