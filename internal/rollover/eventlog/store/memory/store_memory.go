package memory

import (
	"context"
	"sync"

	"trustrails/internal/rollover/models"
	id "trustrails/pkg/domain"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.TransferID][]models.Event
	seen   map[id.TransferID]map[id.EventID]struct{}
	seq    int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		events: make(map[id.TransferID][]models.Event),
		seen:   make(map[id.TransferID]map[id.EventID]struct{}),
	}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[id.TransferID][]models.Event)
	s.seen = make(map[id.TransferID]map[id.EventID]struct{})
}

func (s *InMemoryStore) Append(_ context.Context, events ...models.Event) ([]models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var inserted []models.Event
	for _, e := range events {
		ids, ok := s.seen[e.TransferID]
		if !ok {
			ids = make(map[id.EventID]struct{})
			s.seen[e.TransferID] = ids
		}
		if _, dup := ids[e.ID]; dup {
			continue
		}
		s.seq++
		e.Sequence = s.seq
		ids[e.ID] = struct{}{}
		s.events[e.TransferID] = append(s.events[e.TransferID], e)
		inserted = append(inserted, e)
	}
	return inserted, nil
}

func (s *InMemoryStore) ListForTransfer(_ context.Context, transferID id.TransferID) ([]models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]models.Event{}, s.events[transferID]...)
	models.SortEvents(out)
	return out, nil
}

// Transfers lists every transfer with at least one event.
func (s *InMemoryStore) Transfers(_ context.Context) ([]id.TransferID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]id.TransferID, 0, len(s.events))
	for t := range s.events {
		out = append(out, t)
	}
	return out, nil
}
