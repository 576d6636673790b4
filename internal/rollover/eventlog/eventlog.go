// Package eventlog is the append-only store of typed transfer events.
//
// Append validates every event against the catalogue before it reaches the
// store, deduplicates on event id per transfer, and notifies listeners of
// newly inserted events only. Reads return events in fold order: timestamp,
// then append sequence.
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"trustrails/internal/rollover/metrics"
	"trustrails/internal/rollover/models"
	id "trustrails/pkg/domain"
	dErrors "trustrails/pkg/domain-errors"
	"trustrails/pkg/requestcontext"
)

// ErrInvalidEventType is returned when an event type is not in the catalogue.
var ErrInvalidEventType = errors.New("invalid event type")

// Store persists events. Append inserts the events that are not already
// present (by transfer and event id) and returns only those, with Sequence
// assigned. A batch is inserted atomically.
//
//go:generate mockgen -source=eventlog.go -destination=mocks/mocks.go -package=mocks Store
type Store interface {
	Append(ctx context.Context, events ...models.Event) ([]models.Event, error)
	ListForTransfer(ctx context.Context, transferID id.TransferID) ([]models.Event, error)
}

// Listener observes newly appended events. It runs after the store commits and
// cannot fail the append.
type Listener interface {
	OnAppend(ctx context.Context, events []models.Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, events []models.Event)

func (f ListenerFunc) OnAppend(ctx context.Context, events []models.Event) { f(ctx, events) }

// Log is the validated entry point over a Store.
type Log struct {
	store     Store
	listeners []Listener
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Log)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) { l.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Log) { l.metrics = m }
}

// WithListener registers a listener. Listeners run in registration order.
func WithListener(listener Listener) Option {
	return func(l *Log) { l.listeners = append(l.listeners, listener) }
}

func New(store Store, opts ...Option) (*Log, error) {
	if store == nil {
		return nil, errors.New("event store is required")
	}
	l := &Log{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Append appends a single event. Appending an event id that already exists
// for the transfer is a no-op success.
func (l *Log) Append(ctx context.Context, event models.Event) error {
	_, err := l.AppendAll(ctx, event)
	return err
}

// AppendAll validates and atomically appends events, returning the ones that
// were newly inserted.
func (l *Log) AppendAll(ctx context.Context, events ...models.Event) ([]models.Event, error) {
	if len(events) == 0 {
		return nil, nil
	}
	prepared := make([]models.Event, len(events))
	for i, e := range events {
		p, err := l.prepare(ctx, e)
		if err != nil {
			if l.metrics != nil {
				l.metrics.IncRejectedAppends()
			}
			return nil, err
		}
		prepared[i] = p
	}

	inserted, err := l.store.Append(ctx, prepared...)
	if err != nil {
		return nil, fmt.Errorf("append events: %w", err)
	}

	if l.metrics != nil {
		for _, e := range inserted {
			l.metrics.IncEventsAppended(string(e.Type))
		}
		for range len(prepared) - len(inserted) {
			l.metrics.IncDuplicateAppends()
		}
	}
	if dup := len(prepared) - len(inserted); dup > 0 {
		l.logger.DebugContext(ctx, "duplicate events ignored",
			"transfer_id", prepared[0].TransferID,
			"duplicates", dup,
		)
	}
	if len(inserted) > 0 {
		for _, listener := range l.listeners {
			listener.OnAppend(ctx, inserted)
		}
	}
	return inserted, nil
}

// ListForTransfer returns the events of a transfer in fold order.
func (l *Log) ListForTransfer(ctx context.Context, transferID id.TransferID) ([]models.Event, error) {
	if transferID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "transfer ID is required")
	}
	events, err := l.store.ListForTransfer(ctx, transferID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	models.SortEvents(events)
	return events, nil
}

func (l *Log) prepare(ctx context.Context, e models.Event) (models.Event, error) {
	if !e.Type.IsValid() {
		return e, dErrors.Wrap(ErrInvalidEventType, dErrors.CodeInvalidInput, fmt.Sprintf("event type %q is not allowed", e.Type))
	}
	if _, err := id.ParseTransferID(string(e.TransferID)); err != nil {
		return e, err
	}
	if e.ID.IsNil() {
		e.ID = id.NewEventID()
	} else if _, err := id.ParseEventID(string(e.ID)); err != nil {
		return e, err
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = requestcontext.Now(ctx)
	}
	e.Timestamp = e.Timestamp.UTC()
	e.Sequence = 0
	return e, nil
}
