package objectstore

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/rescale/docbatch/internal/api"
	"github.com/rescale/docbatch/internal/logging"
	"github.com/rescale/docbatch/internal/state"
)

// Reloader refreshes an ObjectListState from a Lister. Concurrent reloads
// share one listing call.
type Reloader struct {
	lister Lister
	state  *state.ObjectListState
	prefix string
	group  singleflight.Group
	log    *logging.Logger
}

// NewReloader returns a Reloader that lists prefix into st.
func NewReloader(lister Lister, st *state.ObjectListState, prefix string, logger *logging.Logger) *Reloader {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Reloader{lister: lister, state: st, prefix: prefix, log: logger}
}

// Reload lists the objects and replaces the state's listing. On failure the
// previous listing is kept and the error is recorded on the state.
func (r *Reloader) Reload(ctx context.Context) error {
	_, err, shared := r.group.Do("reload", func() (interface{}, error) {
		r.state.SetLoading(true)
		objects, err := r.lister.List(ctx, r.prefix)
		if err != nil {
			r.state.SetError(err)
			return nil, err
		}
		r.state.SetObjects(objects)
		return len(objects), nil
	})
	if shared {
		r.log.Debug().Msg("reload coalesced with an in-flight listing")
	}
	return err
}

// Load is Reload returning the fresh listing.
func (r *Reloader) Load(ctx context.Context) ([]api.Object, error) {
	if err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return r.state.Objects(), nil
}
