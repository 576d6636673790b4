package feed

import (
	"context"
	"errors"

	"github.com/twmb/franz-go/pkg/kgo"

	"trustrails/internal/rollover/models"
	id "trustrails/pkg/domain"
)

const (
	headerEventID   = "event_id"
	headerEventType = "event_type"
)

// Kafka produces messages to a topic keyed by transfer id, so one transfer's
// events land in one partition in append order.
type Kafka struct {
	client *kgo.Client
	topic  string
}

func NewKafka(client *kgo.Client, topic string) (*Kafka, error) {
	if client == nil {
		return nil, errors.New("kafka client is required")
	}
	if topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	return &Kafka{client: client, topic: topic}, nil
}

func (k *Kafka) Sink() string { return "kafka" }

// Publish produces the batch synchronously and returns the first record error.
func (k *Kafka) Publish(ctx context.Context, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	records := make([]*kgo.Record, 0, len(msgs))
	for _, m := range msgs {
		records = append(records, &kgo.Record{
			Topic: k.topic,
			Key:   []byte(m.TransferID),
			Value: m.Payload,
			Headers: []kgo.RecordHeader{
				{Key: headerEventID, Value: []byte(m.ID)},
				{Key: headerEventType, Value: []byte(m.EventType)},
			},
			Timestamp: m.CreatedAt,
		})
	}
	return k.client.ProduceSync(ctx, records...).FirstErr()
}

// messageFromRecord is the inverse of Publish.
func messageFromRecord(r *kgo.Record) Message {
	m := Message{
		TransferID: id.TransferID(r.Key),
		Payload:    r.Value,
		CreatedAt:  r.Timestamp,
	}
	for _, h := range r.Headers {
		switch h.Key {
		case headerEventID:
			m.ID = string(h.Value)
		case headerEventType:
			m.EventType = models.EventType(h.Value)
		}
	}
	return m
}
