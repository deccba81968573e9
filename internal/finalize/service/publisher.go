package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"simoj/internal/common/mq"
	"simoj/internal/finalize/model"
)

// FinalChangedPublisher announces committed final flag changes.
type FinalChangedPublisher interface {
	PublishFinalChanged(ctx context.Context, event model.FinalChangedEvent) error
}

// MQFinalChangedPublisher publishes final.changed events to a topic.
type MQFinalChangedPublisher struct {
	producer mq.Producer
	topic    string
}

// NewMQFinalChangedPublisher creates a publisher on producer.
func NewMQFinalChangedPublisher(producer mq.Producer, topic string) *MQFinalChangedPublisher {
	return &MQFinalChangedPublisher{producer: producer, topic: topic}
}

// PublishFinalChanged encodes event and publishes it keyed by flag and key so
// changes of one key keep their order.
func (p *MQFinalChangedPublisher) PublishFinalChanged(ctx context.Context, event model.FinalChangedEvent) error {
	if p == nil || p.producer == nil {
		return errors.New("final changed publisher is nil")
	}
	if p.topic == "" {
		return errors.New("final changed topic is empty")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal final changed event failed: %w", err)
	}
	message := mq.NewMessage(payload)
	message.ID = fmt.Sprintf("final-%s-%d-%d", event.Flag, event.OwnerID, event.KeyID)
	message.SetHeader("flag", string(event.Flag))
	if err := p.producer.Publish(ctx, p.topic, message); err != nil {
		return fmt.Errorf("publish final changed event failed: %w", err)
	}
	return nil
}
