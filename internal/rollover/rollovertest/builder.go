// Package rollovertest builds event histories for tests.
package rollovertest

import (
	"fmt"
	"time"

	"trustrails/internal/rollover/models"
	id "trustrails/pkg/domain"
)

const (
	Transfer    id.TransferID  = "transfer-1"
	Source      id.CustodianID = "custodian-src"
	Destination id.CustodianID = "custodian-dst"
)

// Epoch is the timestamp of the first built event.
var Epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// Builder appends events one second apart with sequential ids and sequences.
type Builder struct {
	transfer id.TransferID
	events   []models.Event
}

func New() *Builder {
	return &Builder{transfer: Transfer}
}

func (b *Builder) ForTransfer(t id.TransferID) *Builder {
	b.transfer = t
	return b
}

// Add appends an event acted by custodian (which may be empty).
func (b *Builder) Add(t models.EventType, custodian id.CustodianID) *Builder {
	return b.AddWith(t, custodian, models.Payload{})
}

// AddWith appends an event with a payload.
func (b *Builder) AddWith(t models.EventType, custodian id.CustodianID, p models.Payload) *Builder {
	n := len(b.events) + 1
	b.events = append(b.events, models.Event{
		ID:               id.EventID(fmt.Sprintf("evt-%02d", n)),
		Type:             t,
		TransferID:       b.transfer,
		Timestamp:        Epoch.Add(time.Duration(n) * time.Second),
		ActorID:          id.ActorID(fmt.Sprintf("user@%s", custodian)),
		ActorCustodianID: custodian,
		Payload:          p,
		Sequence:         int64(n),
	})
	return b
}

// Started adds a rollover.started event from Source naming both parties.
func (b *Builder) Started() *Builder {
	return b.AddWith(models.EventRolloverStarted, Source, models.Payload{
		SourceCustodianID:      Source,
		DestinationCustodianID: Destination,
	})
}

// StartedSingle adds a rollover.started event naming only the source.
func (b *Builder) StartedSingle() *Builder {
	return b.AddWith(models.EventRolloverStarted, Source, models.Payload{SourceCustodianID: Source})
}

// Approved adds document submission by Source and approvals by both parties.
func (b *Builder) Approved() *Builder {
	return b.Add(models.EventRolloverAcknowledged, Destination).
		Add(models.EventDocumentsSubmitted, Source).
		Add(models.EventDocumentsApproved, Destination).
		Add(models.EventDocumentsApproved, Source)
}

// Events returns a copy of the built events.
func (b *Builder) Events() []models.Event {
	return append([]models.Event{}, b.events...)
}

// Last returns the most recently added event.
func (b *Builder) Last() models.Event {
	return b.events[len(b.events)-1]
}
