// Package cache holds derived CanonicalState values. Entries are dropped as
// soon as an event for the transfer is appended, so a hit is never older than
// the last append seen by this process.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"trustrails/internal/rollover/metrics"
	"trustrails/internal/rollover/models"
	id "trustrails/pkg/domain"
	"trustrails/pkg/platform/sentinel"
)

// Store persists cached states. Find returns sentinel.ErrNotFound on a miss.
type Store interface {
	Find(ctx context.Context, transferID id.TransferID) (models.CanonicalState, error)
	Save(ctx context.Context, cs models.CanonicalState) error
	Invalidate(ctx context.Context, transferIDs ...id.TransferID) error
}

// LoadFunc computes the state of a transfer from the event log.
type LoadFunc func(ctx context.Context, transferID id.TransferID) (models.CanonicalState, error)

// StateCache is a read-through cache over a Store. Concurrent misses for one
// transfer share a single load. It implements eventlog.Listener.
type StateCache struct {
	store   Store
	load    LoadFunc
	group   singleflight.Group
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu  sync.Mutex
	gen map[id.TransferID]uint64
}

type Option func(*StateCache)

func WithLogger(logger *slog.Logger) Option {
	return func(c *StateCache) { c.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *StateCache) { c.metrics = m }
}

func NewStateCache(store Store, load LoadFunc, opts ...Option) (*StateCache, error) {
	if store == nil {
		return nil, errors.New("cache store is required")
	}
	if load == nil {
		return nil, errors.New("load function is required")
	}
	c := &StateCache{
		store:  store,
		load:   load,
		logger: slog.Default(),
		gen:    make(map[id.TransferID]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get returns the cached state or loads it. A failing store degrades to a
// direct load.
func (c *StateCache) Get(ctx context.Context, transferID id.TransferID) (models.CanonicalState, error) {
	cs, err := c.store.Find(ctx, transferID)
	switch {
	case err == nil:
		c.observe("hit")
		return cs, nil
	case errors.Is(err, sentinel.ErrNotFound):
		c.observe("miss")
	default:
		c.observe("error")
		c.logger.WarnContext(ctx, "state cache lookup failed",
			"transfer_id", transferID,
			"error", err,
		)
	}

	gen := c.generation(transferID)
	v, err, _ := c.group.Do(fmt.Sprintf("%s@%d", transferID, gen), func() (any, error) {
		cs, err := c.load(ctx, transferID)
		if err != nil {
			return models.CanonicalState{}, err
		}
		c.saveIfCurrent(ctx, cs, gen)
		return cs, nil
	})
	if err != nil {
		return models.CanonicalState{}, err
	}
	return v.(models.CanonicalState), nil
}

// OnAppend drops the entries of every transfer in events.
func (c *StateCache) OnAppend(ctx context.Context, events []models.Event) {
	seen := make(map[id.TransferID]struct{}, 1)
	var transfers []id.TransferID
	c.mu.Lock()
	for _, e := range events {
		if _, ok := seen[e.TransferID]; ok {
			continue
		}
		seen[e.TransferID] = struct{}{}
		c.gen[e.TransferID]++
		transfers = append(transfers, e.TransferID)
	}
	c.mu.Unlock()

	if err := c.store.Invalidate(ctx, transfers...); err != nil {
		c.logger.ErrorContext(ctx, "state cache invalidation failed",
			"transfers", len(transfers),
			"error", err,
		)
	}
}

// saveIfCurrent stores cs unless an append for the transfer was seen after
// the load began. The result is still a valid answer for the caller.
func (c *StateCache) saveIfCurrent(ctx context.Context, cs models.CanonicalState, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen[cs.TransferID] != gen {
		return
	}
	if err := c.store.Save(ctx, cs); err != nil {
		c.logger.WarnContext(ctx, "state cache save failed",
			"transfer_id", cs.TransferID,
			"error", err,
		)
	}
}

func (c *StateCache) generation(transferID id.TransferID) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen[transferID]
}

func (c *StateCache) observe(result string) {
	if c.metrics != nil {
		c.metrics.IncCacheLookup(result)
	}
}
