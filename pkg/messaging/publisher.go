package messaging

import (
	"context"
	"encoding/json"
	"fmt"
)

const OutcomeMessageType = "reminder.outcome"

// OutcomePublisher announces dispatcher outcomes on a single channel.
type OutcomePublisher struct {
	broker  Broker
	channel string
}

func NewOutcomePublisher(broker Broker, channel string) *OutcomePublisher {
	if broker == nil {
		broker = NopBroker{}
	}
	return &OutcomePublisher{broker: broker, channel: channel}
}

func (p *OutcomePublisher) Channel() string { return p.channel }

func (p *OutcomePublisher) PublishOutcome(ctx context.Context, outcome interface{}) error {
	return p.broker.Publish(ctx, p.channel, Message{Type: OutcomeMessageType, Payload: outcome})
}

// DecodeMessage unpacks a published Message, decoding its payload into
// payload, and returns the message type.
func DecodeMessage(raw []byte, payload interface{}) (string, error) {
	var env struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("failed to decode message: %w", err)
	}
	if payload != nil && len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, payload); err != nil {
			return env.Type, fmt.Errorf("failed to decode %s payload: %w", env.Type, err)
		}
	}
	return env.Type, nil
}
