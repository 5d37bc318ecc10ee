package repository

import (
	"context"
	"fmt"

	"github.com/trickingegg/golden-dragon/internal/domain/models"
	domrepo "github.com/trickingegg/golden-dragon/internal/domain/repository"
)

// KafkaWriter is the subset of pkg/kafka.Producer the publisher needs.
type KafkaWriter interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaPublisher emits order intents and signal events. Messages are keyed by
// instrument id so per-instrument ordering holds with a hash balancer.
type KafkaPublisher struct {
	w            KafkaWriter
	ordersTopic  string
	signalsTopic string
}

var _ domrepo.Publisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(w KafkaWriter, ordersTopic, signalsTopic string) *KafkaPublisher {
	return &KafkaPublisher{w: w, ordersTopic: ordersTopic, signalsTopic: signalsTopic}
}

func (p *KafkaPublisher) PublishOrderIntent(ctx context.Context, intent *models.OrderIntent) error {
	if intent == nil {
		return nil
	}
	if err := p.w.Publish(ctx, p.ordersTopic, []byte(intent.InstrumentID), intent); err != nil {
		return fmt.Errorf("publish order %s: %w: %w", intent.OrderID, models.ErrTransient, err)
	}
	return nil
}

func (p *KafkaPublisher) PublishSignalEvent(ctx context.Context, ev *models.SignalEvent) error {
	if ev == nil {
		return nil
	}
	key := []byte(ev.Signal.Instrument.ID)
	if err := p.w.Publish(ctx, p.signalsTopic, key, ev); err != nil {
		return fmt.Errorf("publish %s: %w: %w", ev.Type, models.ErrTransient, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }

// NopPublisher drops everything. Used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishOrderIntent(context.Context, *models.OrderIntent) error { return nil }
func (NopPublisher) PublishSignalEvent(context.Context, *models.SignalEvent) error { return nil }
func (NopPublisher) Close() error                                                  { return nil }
