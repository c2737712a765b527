package repository

import (
	"context"
	"fmt"

	"SignalPulse/internal/domain/models"
	domrepo "SignalPulse/internal/domain/repository"
)

// MessagePublisher is the keyed publish side of pkg/kafka.Producer.
type MessagePublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// KafkaAlertPublisher forwards dispatched alerts to a topic keyed by symbol.
type KafkaAlertPublisher struct {
	pub   MessagePublisher
	topic string
}

var _ domrepo.AlertSink = (*KafkaAlertPublisher)(nil)

// NewKafkaAlertPublisher creates the sink.
func NewKafkaAlertPublisher(pub MessagePublisher, topic string) *KafkaAlertPublisher {
	return &KafkaAlertPublisher{pub: pub, topic: topic}
}

func (p *KafkaAlertPublisher) Record(ctx context.Context, rec models.AlertRecord) error {
	key := rec.Symbol
	if key == "" {
		key = rec.Strategy
	}
	if err := p.pub.Publish(ctx, p.topic, []byte(key), rec); err != nil {
		return fmt.Errorf("publish alert %s: %w", rec.EventID, err)
	}
	return nil
}
