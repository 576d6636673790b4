package models

import (
	"sort"
	"strings"
	"time"

	id "trustrails/pkg/domain"
)

// EventSource records which write path produced an event.
type EventSource string

const (
	SourceUser           EventSource = "user"
	SourceChainListener  EventSource = "chain_listener"
	SourceReconciliation EventSource = "reconciliation"
)

// Event is an immutable fact about a transfer. Once appended it is never
// mutated or deleted; corrections are new events (see EventEventsSuperseded).
type Event struct {
	ID               id.EventID     `json:"eventId"`
	Type             EventType      `json:"eventType"`
	TransferID       id.TransferID  `json:"transferId"`
	Timestamp        time.Time      `json:"timestamp"`
	ActorID          id.ActorID     `json:"actorId"`
	ActorCustodianID id.CustodianID `json:"actorCustodianId,omitempty"`
	Payload          Payload        `json:"payload"`
	CorrelationID    string         `json:"correlationId,omitempty"`

	// Sequence is assigned by the store at append time and breaks timestamp ties.
	Sequence int64 `json:"sequence"`
}

// Payload carries type-specific attributes. Fields irrelevant to a type stay zero.
type Payload struct {
	SourceCustodianID      id.CustodianID `json:"sourceCustodianId,omitempty"`
	DestinationCustodianID id.CustodianID `json:"destinationCustodianId,omitempty"`

	// On-chain facts
	Action        ActionType `json:"action,omitempty"`
	TxHash        string     `json:"txHash,omitempty"`
	BlockNumber   uint64     `json:"blockNumber,omitempty"`
	ContractState int        `json:"contractState,omitempty"`

	// Financial details
	Amount         string `json:"amount,omitempty"`
	AccountRef     string `json:"accountRef,omitempty"`
	FinancialsHash string `json:"financialsHash,omitempty"`

	DocumentIDs []string `json:"documentIds,omitempty"`
	Reason      string   `json:"reason,omitempty"`

	// Reconciliation metadata
	Source             EventSource  `json:"source,omitempty"`
	Synthetic          bool         `json:"synthetic,omitempty"`
	Scenario           string       `json:"scenario,omitempty"`
	Evidence           string       `json:"evidence,omitempty"`
	SupersededEventIDs []id.EventID `json:"supersededEventIds,omitempty"`
	ErrorClass         string       `json:"errorClass,omitempty"`
	Attempt            int          `json:"attempt,omitempty"`
}

// IsSynthetic reports whether the event was produced by reconciliation rather
// than observed from a real transaction.
func (e Event) IsSynthetic() bool {
	return e.Payload.Synthetic
}

// SortEvents orders events by timestamp, breaking ties by append sequence.
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.Sequence < b.Sequence
	})
}

// ChainEventID is the id of the event recording a transaction's effect. Every
// write path derives it the same way, so one transaction yields one event.
func ChainEventID(transferID id.TransferID, t EventType, txHash string) id.EventID {
	return id.DeterministicEventID(string(transferID), string(t), strings.ToLower(txHash))
}
