package feed

import (
	"context"
	"errors"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"trustrails/internal/rollover/eventlog"
	"trustrails/internal/rollover/models"
)

// Handler processes one feed message. Returning an error stops the poll loop
// before offsets are committed, so the batch is redelivered.
type Handler interface {
	Handle(ctx context.Context, msg Message) error
}

type HandlerFunc func(ctx context.Context, msg Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg Message) error { return f(ctx, msg) }

// ListenerHandler replays feed messages into an eventlog listener, which lets
// a replica that did not perform the append refresh its read models.
type ListenerHandler struct {
	Listener eventlog.Listener
	Logger   *slog.Logger
}

func (h ListenerHandler) Handle(ctx context.Context, msg Message) error {
	e, err := msg.Decode()
	if err != nil {
		// Poison messages are skipped; redelivery cannot fix them.
		if h.Logger != nil {
			h.Logger.WarnContext(ctx, "skipping undecodable feed message", "event_id", msg.ID, "error", err)
		}
		return nil
	}
	h.Listener.OnAppend(ctx, []models.Event{e})
	return nil
}

// Consumer reads the change-feed topic in a consumer group and commits
// offsets after each fully handled poll.
type Consumer struct {
	client  *kgo.Client
	handler Handler
	logger  *slog.Logger
}

func NewConsumer(client *kgo.Client, handler Handler, logger *slog.Logger) (*Consumer, error) {
	if client == nil {
		return nil, errors.New("kafka client is required")
	}
	if handler == nil {
		return nil, errors.New("handler is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{client: client, handler: handler, logger: logger}, nil
}

// Run polls until ctx is cancelled or the handler fails.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.WarnContext(ctx, "kafka fetch error",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})

		var handleErr error
		fetches.EachRecord(func(r *kgo.Record) {
			if handleErr != nil {
				return
			}
			handleErr = c.handler.Handle(ctx, messageFromRecord(r))
		})
		if handleErr != nil {
			return handleErr
		}
		if err := c.client.CommitUncommittedOffsets(ctx); err != nil {
			c.logger.WarnContext(ctx, "kafka offset commit failed", "error", err)
		}
	}
}
