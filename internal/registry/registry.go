// Package registry keeps the client's view of the remote file set. The view
// is a snapshot replaced wholesale by a full refetch after every mutation;
// it is never patched incrementally.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"

	"github.com/cloudo-app/cloudo-go/internal/api"
)

// Lister fetches the complete remote listing. *transfer.Orchestrator
// satisfies it.
type Lister interface {
	ListAll(ctx context.Context) ([]api.FileRecord, error)
}

// State describes how trustworthy the snapshot is.
type State int

const (
	// StateEmpty means no listing has ever been obtained.
	StateEmpty State = iota
	// StatePopulated means the snapshot came from the latest resync.
	StatePopulated
	// StateStale means the last resync failed, or the snapshot was loaded
	// from the cache; the previous records are still served.
	StateStale
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StatePopulated:
		return "populated"
	case StateStale:
		return "stale"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// snapshot is immutable once published.
type snapshot struct {
	records  []api.FileRecord
	state    State
	syncedAt time.Time
}

// Registry is safe for concurrent use. Readers never block: they load the
// current snapshot pointer. Resyncs are serialized.
type Registry struct {
	lister Lister
	cache  Cache
	logger *slog.Logger
	now    func() time.Time

	resyncMu sync.Mutex
	current  atomic.Pointer[snapshot]
}

// New creates an Empty registry. cache may be nil.
func New(lister Lister, cache Cache, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		lister: lister,
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
	r.current.Store(&snapshot{state: StateEmpty})

	return r
}

// Warm loads the last persisted snapshot from the cache. A warmed registry is
// Stale until its first successful Resync. It does nothing once the registry
// has been populated or when there is no cache.
func (r *Registry) Warm(ctx context.Context) error {
	if r.cache == nil {
		return nil
	}

	r.resyncMu.Lock()
	defer r.resyncMu.Unlock()

	if r.current.Load().state != StateEmpty {
		return nil
	}

	records, syncedAt, err := r.cache.Load(ctx)
	if err != nil {
		return fmt.Errorf("registry: warming from cache: %w", err)
	}

	if syncedAt.IsZero() {
		return nil
	}

	r.current.Store(&snapshot{records: records, state: StateStale, syncedAt: syncedAt})

	r.logger.Debug("registry warmed from cache",
		slog.Int("records", len(records)),
		slog.Time("synced_at", syncedAt),
	)

	return nil
}

// Resync refetches the full listing and atomically replaces the snapshot.
// On failure the previous records are kept, a Populated registry becomes
// Stale, and the error is returned. A cache write failure is logged only.
func (r *Registry) Resync(ctx context.Context) ([]api.FileRecord, error) {
	r.resyncMu.Lock()
	defer r.resyncMu.Unlock()

	records, err := r.lister.ListAll(ctx)
	if err != nil {
		prev := r.current.Load()
		if prev.state == StatePopulated {
			r.current.Store(&snapshot{records: prev.records, state: StateStale, syncedAt: prev.syncedAt})
		}

		r.logger.Warn("resync failed, keeping previous snapshot",
			slog.String("state", r.State().String()),
			slog.String("error", err.Error()),
		)

		return nil, fmt.Errorf("registry: resync: %w", err)
	}

	snap := &snapshot{
		records:  slices.Clone(records),
		state:    StatePopulated,
		syncedAt: r.now(),
	}
	r.current.Store(snap)

	r.logger.Debug("resync complete", slog.Int("records", len(snap.records)))

	if r.cache != nil {
		if err := r.cache.Replace(ctx, snap.records, snap.syncedAt); err != nil {
			r.logger.Warn("persisting snapshot to cache failed",
				slog.String("error", err.Error()),
			)
		}
	}

	return slices.Clone(snap.records), nil
}

// Snapshot returns a copy of the current records in server order. It never
// touches the network.
func (r *Registry) Snapshot() []api.FileRecord {
	return slices.Clone(r.current.Load().records)
}

// State returns the current state.
func (r *Registry) State() State {
	return r.current.Load().state
}

// SyncedAt returns when the current snapshot was fetched; zero when Empty.
func (r *Registry) SyncedAt() time.Time {
	return r.current.Load().syncedAt
}

// Len returns the number of records in the snapshot.
func (r *Registry) Len() int {
	return len(r.current.Load().records)
}

// Lookup finds a record by identifier.
func (r *Registry) Lookup(id string) (api.FileRecord, bool) {
	return lo.Find(r.current.Load().records, func(f api.FileRecord) bool {
		return f.ID == id
	})
}

// FindByName returns every record with exactly this display name. Names are
// not unique on the backend.
func (r *Registry) FindByName(name string) []api.FileRecord {
	return lo.Filter(r.current.Load().records, func(f api.FileRecord, _ int) bool {
		return f.Name == name
	})
}

// Reset drops the snapshot and clears the cache, as after a logout.
func (r *Registry) Reset(ctx context.Context) error {
	r.resyncMu.Lock()
	defer r.resyncMu.Unlock()

	r.current.Store(&snapshot{state: StateEmpty})

	if r.cache == nil {
		return nil
	}

	if err := r.cache.Replace(ctx, nil, time.Time{}); err != nil {
		return fmt.Errorf("registry: clearing cache: %w", err)
	}

	return nil
}
