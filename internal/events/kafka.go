package events

import (
	"context"
	"encoding/json"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/segmentio/kafka-go"
	"golang.org/x/xerrors"

	"datanest-backend/internal/model"
)

var log = logging.Logger("events")

// Kafka publishes events with one long-lived writer.
type Kafka struct {
	w *kafka.Writer
}

var _ Publisher = (*Kafka)(nil)

func NewKafka(broker, topic string) *Kafka {
	return &Kafka{w: kafkaWriter(broker, topic)}
}

// kafkaWriter constructs a producer; same key lands on the same partition so
// events about one purchase or request stay ordered.
func kafkaWriter(broker, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(broker),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Warnw("kafka delivery failed", "messages", len(messages), "error", err)
			}
		},
	}
}

func (k *Kafka) Publish(ctx context.Context, evt model.MarketEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return xerrors.Errorf("encoding event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(evt.Key()),
		Value: data,
		Time:  time.Now(),
	}
	return k.w.WriteMessages(ctx, msg)
}

func (k *Kafka) Close() error {
	return k.w.Close()
}

// NewReader creates a consumer-group reader for topic.
func NewReader(broker, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        []string{broker},
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
	})
}

// Handler processes one decoded event.
type Handler func(ctx context.Context, evt model.MarketEvent) error

// MessageReader is the part of *kafka.Reader that Consume needs.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// Consume feeds every event from r to h until ctx ends or the reader fails.
// Undecodable messages and handler errors are logged and skipped.
func Consume(ctx context.Context, name string, r MessageReader, h Handler) error {
	log.Infow("consumer started", "consumer", name)
	for {
		msg, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return xerrors.Errorf("%s: reading message: %w", name, err)
		}

		var evt model.MarketEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			log.Warnw("skipping undecodable event", "consumer", name, "offset", msg.Offset, "error", err)
			continue
		}
		if err := h(ctx, evt); err != nil {
			log.Errorw("event handler failed", "consumer", name, "event", evt.ID, "type", evt.Type, "error", err)
		}
	}
}
