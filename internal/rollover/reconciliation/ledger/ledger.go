// Package ledger records every on-chain submission attempt for operators. It
// is an audit aid, not a source of truth: the event log and the contract are.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"trustrails/internal/rollover/models"
	id "trustrails/pkg/domain"
)

// Result is the outcome of one attempt.
type Result string

const (
	ResultLanded  Result = "landed"
	ResultFailed  Result = "failed"
	ResultTimeout Result = "timeout"
	ResultSkipped Result = "skipped"
)

// Submission is one attempt to submit an action.
type Submission struct {
	ID          uuid.UUID         `json:"id"`
	TransferID  id.TransferID     `json:"transferId"`
	Action      models.ActionType `json:"action"`
	CustodianID id.CustodianID    `json:"custodianId,omitempty"`
	Attempt     int               `json:"attempt"`
	Result      Result            `json:"result"`
	ErrorClass  string            `json:"errorClass,omitempty"`
	TxHash      string            `json:"txHash,omitempty"`
	BlockNumber uint64            `json:"blockNumber,omitempty"`
	Detail      string            `json:"detail,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

//go:generate mockgen -source=ledger.go -destination=mocks/mocks.go -package=mocks Store
type Store interface {
	Record(ctx context.Context, s Submission) error
	ListForTransfer(ctx context.Context, transferID id.TransferID) ([]Submission, error)
}

type InMemoryStore struct {
	mu   sync.RWMutex
	subs map[id.TransferID][]Submission
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{subs: make(map[id.TransferID][]Submission)}
}

func (s *InMemoryStore) Record(_ context.Context, sub Submission) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.subs[sub.TransferID] {
		if existing.ID == sub.ID {
			return nil
		}
	}
	s.subs[sub.TransferID] = append(s.subs[sub.TransferID], sub)
	return nil
}

func (s *InMemoryStore) ListForTransfer(_ context.Context, transferID id.TransferID) ([]Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Submission{}, s.subs[transferID]...), nil
}

// Count returns the number of attempts recorded for action with result.
func (s *InMemoryStore) Count(transferID id.TransferID, action models.ActionType, result Result) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, sub := range s.subs[transferID] {
		if sub.Action == action && sub.Result == result {
			n++
		}
	}
	return n
}
