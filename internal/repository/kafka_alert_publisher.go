package repository

import (
	"context"

	"SalesPulse/internal/domain/models"
	domrepo "SalesPulse/internal/domain/repository"
	pkgkafka "SalesPulse/pkg/kafka"
)

type messageProducer interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaAlertPublisher writes alert events to a topic keyed by series, so all
// alerts for one series land on one partition in order.
type KafkaAlertPublisher struct {
	producer messageProducer
	topic    string
}

func NewKafkaAlertPublisher(producer *pkgkafka.Producer, topic string) *KafkaAlertPublisher {
	return &KafkaAlertPublisher{producer: producer, topic: topic}
}

func alertMessage(e *models.AlertEvent) pkgkafka.Message {
	key := models.SeriesKey{Metric: e.Metric, Entity: e.Entity}
	return pkgkafka.Message{
		Key:   []byte(key.String()),
		Value: e,
		Headers: map[string]string{
			"event":    "anomaly_alert",
			"kind":     string(e.Finding.KindOrEmpty()),
			"severity": e.Finding.Severity.String(),
		},
	}
}

func (p *KafkaAlertPublisher) Publish(ctx context.Context, e *models.AlertEvent) error {
	return p.producer.PublishBatch(ctx, p.topic, []pkgkafka.Message{alertMessage(e)})
}

func (p *KafkaAlertPublisher) PublishBatch(ctx context.Context, events []*models.AlertEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(events))
	for i, e := range events {
		msgs[i] = alertMessage(e)
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaAlertPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

var _ domrepo.AlertPublisher = (*KafkaAlertPublisher)(nil)
