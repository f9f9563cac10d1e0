package rules

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/oceanid/ingest-worker/internal/model"
)

// Source provides the active rules to load.
type Source interface {
	ActiveRules(ctx context.Context) ([]model.CleaningRule, error)
}

// Registry holds the current Index. Reload builds a new index off to the
// side and swaps it in atomically, so Resolve never sees a partial index.
type Registry struct {
	src      Source
	current  atomic.Pointer[Index]
	loadedAt atomic.Int64
}

// NewRegistry returns a Registry backed by src with an empty index.
func NewRegistry(src Source) *Registry {
	r := &Registry{src: src}
	r.current.Store(Build(nil))
	return r
}

// Reload fetches the active rules and publishes a freshly built index.
// On error the previous index stays in place.
func (r *Registry) Reload(ctx context.Context) (*Index, error) {
	defs, err := r.src.ActiveRules(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "rules: load active rules")
	}

	idx := Build(defs)
	r.current.Store(idx)
	r.loadedAt.Store(time.Now().UnixNano())

	zap.L().Info("rules: index loaded",
		zap.Int("rules", idx.Len()),
		zap.Int("inert", idx.Invalid()),
	)
	return idx, nil
}

// Index returns the current index.
func (r *Registry) Index() *Index { return r.current.Load() }

// Resolve returns the eligible rules for a cell from the current index.
func (r *Registry) Resolve(column, sourceType, sourceName string) []Rule {
	return r.current.Load().Resolve(column, sourceType, sourceName)
}

// Len returns the number of rules in the current index.
func (r *Registry) Len() int { return r.current.Load().Len() }

// LoadedAt returns when the index was last reloaded, or the zero time.
func (r *Registry) LoadedAt() time.Time {
	ns := r.loadedAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
