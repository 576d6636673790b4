package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQP publishes messages to a durable topic exchange. The routing key is the
// event type, so consumers can bind to e.g. "blockchain.#".
type AMQP struct {
	url      string
	exchange string
	logger   *slog.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewAMQP(rawURL, exchange string, logger *slog.Logger) (*AMQP, error) {
	clean, err := sanitizeAMQPURL(rawURL)
	if err != nil {
		return nil, err
	}
	if exchange == "" {
		return nil, errors.New("amqp exchange is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQP{url: clean, exchange: exchange, logger: logger}, nil
}

func (a *AMQP) Sink() string { return "amqp" }

// Publish sends each message with publisher confirms disabled. A failed
// publish drops the channel so the next call reconnects.
func (a *AMQP) Publish(ctx context.Context, msgs []Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.ensureChannel(); err != nil {
		return err
	}
	for _, m := range msgs {
		err := a.channel.PublishWithContext(ctx,
			a.exchange,
			string(m.EventType),
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    m.ID,
				Timestamp:    m.CreatedAt,
				Headers:      amqp.Table{"transfer_id": string(m.TransferID)},
				Body:         m.Payload,
			},
		)
		if err != nil {
			a.logger.WarnContext(ctx, "amqp publish failed; resetting channel",
				"exchange", a.exchange,
				"event_id", m.ID,
				"error", err,
			)
			a.reset()
			return fmt.Errorf("publish %s: %w", m.ID, err)
		}
	}
	return nil
}

// Close releases the channel and connection.
func (a *AMQP) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reset()
}

func (a *AMQP) ensureChannel() error {
	if a.channel != nil && !a.channel.IsClosed() {
		return nil
	}
	a.reset()
	conn, err := amqp.DialConfig(a.url, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(a.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("declare exchange %s: %w", a.exchange, err)
	}
	a.conn, a.channel = conn, ch
	return nil
}

func (a *AMQP) reset() {
	if a.channel != nil {
		_ = a.channel.Close()
		a.channel = nil
	}
	if a.conn != nil {
		_ = a.conn.Close()
		a.conn = nil
	}
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	if clean == "" {
		return "", errors.New("amqp url is required")
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", fmt.Errorf("parse amqp url: %w", err)
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("amqp url must use amqp:// or amqps://")
	}
	return clean, nil
}
