// Package feed publishes appended transfer events to downstream consumers.
//
// In PostgreSQL mode the event store writes an outbox row in the same
// transaction as the event, and Relay drains the outbox into a Publisher. In
// memory mode Direct publishes from an eventlog listener instead. Either way a
// consumer sees every appended event at least once, keyed by transfer id.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"trustrails/internal/rollover/metrics"
	"trustrails/internal/rollover/models"
	id "trustrails/pkg/domain"
)

// Message is one change-feed entry. Payload is the JSON encoding of the event.
type Message struct {
	ID         string
	TransferID id.TransferID
	EventType  models.EventType
	Payload    []byte
	CreatedAt  time.Time
}

// Publisher delivers a batch of messages. A nil error means every message was
// accepted by the sink.
//
//go:generate mockgen -source=feed.go -destination=mocks/mocks.go -package=mocks Publisher
type Publisher interface {
	Publish(ctx context.Context, msgs []Message) error
	Sink() string
}

// FromEvent builds the feed message for an appended event.
func FromEvent(e models.Event) (Message, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return Message{}, fmt.Errorf("marshal event %s: %w", e.ID, err)
	}
	return Message{
		ID:         string(e.ID),
		TransferID: e.TransferID,
		EventType:  e.Type,
		Payload:    body,
		CreatedAt:  e.Timestamp,
	}, nil
}

// Decode returns the event carried by a message.
func (m Message) Decode() (models.Event, error) {
	var e models.Event
	if err := json.Unmarshal(m.Payload, &e); err != nil {
		return models.Event{}, fmt.Errorf("decode feed message %s: %w", m.ID, err)
	}
	if e.TransferID == "" || !e.Type.IsValid() {
		return models.Event{}, fmt.Errorf("decode feed message %s: not a transfer event", m.ID)
	}
	return e, nil
}

// Fanout publishes to every sink and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, msgs []Message) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, msgs); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Sink(), err))
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) Sink() string { return "fanout" }

// Direct publishes events as they are appended. It is an eventlog listener, so
// a publish failure is logged and counted but never fails the append.
type Direct struct {
	publisher Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type DirectOption func(*Direct)

func WithDirectLogger(logger *slog.Logger) DirectOption {
	return func(d *Direct) { d.logger = logger }
}

func WithDirectMetrics(m *metrics.Metrics) DirectOption {
	return func(d *Direct) { d.metrics = m }
}

func NewDirect(publisher Publisher, opts ...DirectOption) (*Direct, error) {
	if publisher == nil {
		return nil, errors.New("publisher is required")
	}
	d := &Direct{publisher: publisher, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func (d *Direct) OnAppend(ctx context.Context, events []models.Event) {
	msgs := make([]Message, 0, len(events))
	for _, e := range events {
		msg, err := FromEvent(e)
		if err != nil {
			d.logger.ErrorContext(ctx, "skipping unencodable event", "event_id", e.ID, "error", err)
			continue
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return
	}
	if err := d.publisher.Publish(ctx, msgs); err != nil {
		if d.metrics != nil {
			d.metrics.IncFeedPublishFailures(d.publisher.Sink())
		}
		d.logger.ErrorContext(ctx, "change feed publish failed",
			"sink", d.publisher.Sink(),
			"count", len(msgs),
			"error", err,
		)
		return
	}
	if d.metrics != nil {
		for range msgs {
			d.metrics.IncFeedPublished(d.publisher.Sink())
		}
	}
}
