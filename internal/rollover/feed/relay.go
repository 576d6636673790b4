package feed

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"trustrails/internal/rollover/metrics"
)

const (
	defaultRelayInterval  = time.Second
	defaultRelayBatchSize = 100
	maxRelayBackoff       = 30 * time.Second
)

// Relay moves outbox messages to a Publisher. It polls every interval, drains
// whole batches back to back while the outbox is full, and backs off
// exponentially while the sink is failing.
type Relay struct {
	outbox    Outbox
	publisher Publisher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type RelayOption func(*Relay)

func WithInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithRelayLogger(logger *slog.Logger) RelayOption {
	return func(r *Relay) { r.logger = logger }
}

func WithRelayMetrics(m *metrics.Metrics) RelayOption {
	return func(r *Relay) { r.metrics = m }
}

func NewRelay(outbox Outbox, publisher Publisher, opts ...RelayOption) (*Relay, error) {
	if outbox == nil {
		return nil, errors.New("outbox is required")
	}
	if publisher == nil {
		return nil, errors.New("publisher is required")
	}
	r := &Relay{
		outbox:    outbox,
		publisher: publisher,
		interval:  defaultRelayInterval,
		batchSize: defaultRelayBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.interval
	b.MaxInterval = maxRelayBackoff
	b.MaxElapsedTime = 0

	timer := time.NewTimer(r.interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		wait := r.interval
		if _, err := r.Flush(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			wait = b.NextBackOff()
			r.logger.WarnContext(ctx, "outbox relay flush failed",
				"sink", r.publisher.Sink(),
				"retry_in", wait,
				"error", err,
			)
		} else {
			b.Reset()
		}
		timer.Reset(wait)
	}
}

// Flush drains the outbox until a batch comes back short, returning the number
// of messages published.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := r.outbox.Drain(ctx, r.batchSize, r.publish)
		total += n
		if err != nil {
			return total, err
		}
		if n < r.batchSize {
			return total, nil
		}
	}
}

func (r *Relay) publish(ctx context.Context, msgs []Message) error {
	if err := r.publisher.Publish(ctx, msgs); err != nil {
		if r.metrics != nil {
			r.metrics.IncFeedPublishFailures(r.publisher.Sink())
		}
		return err
	}
	if r.metrics != nil {
		for range msgs {
			r.metrics.IncFeedPublished(r.publisher.Sink())
		}
	}
	return nil
}
