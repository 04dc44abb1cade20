package repository

import (
	"context"
	"strconv"

	"PaperDesk/internal/domain/models"
	domrepo "PaperDesk/internal/domain/repository"
	pkgkafka "PaperDesk/pkg/kafka"
)

// batchProducer is the subset of *pkgkafka.Producer the publishers use.
type batchProducer interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaEventPublisher fans lifecycle events out to a topic keyed by Event.Key,
// so every event of one trade or portfolio lands on the same partition.
type KafkaEventPublisher struct {
	producer batchProducer
	topic    string
}

func NewKafkaEventPublisher(producer *pkgkafka.Producer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

var _ domrepo.EventPublisher = (*KafkaEventPublisher)(nil)

func (p *KafkaEventPublisher) Publish(ctx context.Context, e models.Event) error {
	key := e.Key
	if key == "" {
		key = e.PortfolioID
	}
	return p.producer.PublishBatch(ctx, p.topic, []pkgkafka.Message{{
		Key:     []byte(key),
		Value:   e,
		Headers: map[string]string{"event_type": e.Type},
	}})
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// KafkaTickPublisher forwards ticks to the ticks topic keyed by symbol.
type KafkaTickPublisher struct {
	producer batchProducer
	topic    string
}

func NewKafkaTickPublisher(producer *pkgkafka.Producer, topic string) *KafkaTickPublisher {
	return &KafkaTickPublisher{producer: producer, topic: topic}
}

var _ domrepo.TickSink = (*KafkaTickPublisher)(nil)

func (p *KafkaTickPublisher) StoreBatch(ctx context.Context, ticks []models.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(ticks))
	for i, t := range ticks {
		msgs[i] = pkgkafka.Message{
			Key: []byte(t.Symbol),
			Value: map[string]interface{}{
				"symbol": t.Symbol,
				"t":      t.Timestamp.UnixMilli(),
				"c":      t.Price,
				"v":      t.Volume,
			},
			Headers: map[string]string{"ts_ms": strconv.FormatInt(t.Timestamp.UnixMilli(), 10)},
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

// NopPublisher drops every event.
type NopPublisher struct{}

var _ domrepo.EventPublisher = NopPublisher{}

func (NopPublisher) Publish(context.Context, models.Event) error { return nil }

func (NopPublisher) Close() error { return nil }
