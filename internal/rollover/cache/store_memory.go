package cache

import (
	"context"
	"sync"
	"time"

	"trustrails/internal/rollover/models"
	id "trustrails/pkg/domain"
	"trustrails/pkg/platform/sentinel"
)

type cachedState struct {
	state    models.CanonicalState
	storedAt time.Time
}

// InMemoryStore keeps states in process with TTL expiry.
type InMemoryStore struct {
	mu     sync.RWMutex
	states map[id.TransferID]cachedState
	ttl    time.Duration
	now    func() time.Time
}

func NewInMemoryStore(ttl time.Duration) *InMemoryStore {
	return &InMemoryStore{
		states: make(map[id.TransferID]cachedState),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *InMemoryStore) Find(_ context.Context, transferID id.TransferID) (models.CanonicalState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cached, ok := s.states[transferID]; ok {
		if s.ttl <= 0 || s.now().Sub(cached.storedAt) < s.ttl {
			return cached.state, nil
		}
	}
	return models.CanonicalState{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) Save(_ context.Context, cs models.CanonicalState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[cs.TransferID] = cachedState{state: cs, storedAt: s.now()}
	return nil
}

func (s *InMemoryStore) Invalidate(_ context.Context, transferIDs ...id.TransferID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range transferIDs {
		delete(s.states, t)
	}
	return nil
}
