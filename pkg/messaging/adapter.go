package messaging

import (
	"context"
	"encoding/json"
	"fmt"
)

// Publisher sends typed messages on a fixed channel.
type Publisher struct {
	broker  Broker
	channel string
}

func NewPublisher(broker Broker, channel string) *Publisher {
	return &Publisher{broker: broker, channel: channel}
}

func (p *Publisher) Channel() string {
	return p.channel
}

// Publish wraps payload in a Message of the given type.
func (p *Publisher) Publish(ctx context.Context, msgType string, payload interface{}) error {
	if err := p.broker.Publish(ctx, p.channel, Message{Type: msgType, Payload: payload}); err != nil {
		return fmt.Errorf("failed to publish %s: %w", msgType, err)
	}
	return nil
}

// Subscribe calls handler for every message of the channel until ctx is
// done. Messages that cannot be decoded are passed to onError and skipped.
func (p *Publisher) Subscribe(ctx context.Context, handler func(Message) error, onError func(error)) error {
	msgChan, err := p.broker.Subscribe(ctx, p.channel)
	if err != nil {
		return err
	}

	go func() {
		for raw := range msgChan {
			var msg Message
			if err := json.Unmarshal(raw, &msg); err != nil {
				if onError != nil {
					onError(fmt.Errorf("failed to decode message: %w", err))
				}
				continue
			}
			if err := handler(msg); err != nil && onError != nil {
				onError(err)
			}
		}
	}()

	return nil
}
