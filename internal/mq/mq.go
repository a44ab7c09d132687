package mq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cosray/backend/config"
)

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to signal a retry/nack.
type Handler func(ctx context.Context, msg Message) error

// Publisher sends messages to a named channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// Backend defines the broker-agnostic operations used by the app.
type Backend interface {
	Publisher
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// New connects to the broker selected by MQ_BACKEND. It returns a nil
// Backend when messaging is disabled.
func New(ctx context.Context, cfg config.MQConfig) (Backend, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "rabbitmq":
		client, err := NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, fmt.Errorf("connect rabbitmq: %w", err)
		}
		return client, nil
	case "pubsub":
		client, err := NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, fmt.Errorf("connect pubsub: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported mq backend: %q", cfg.Backend)
	}
}

// PublishJSON encodes v and publishes it with a JSON content-type attribute.
func PublishJSON(ctx context.Context, p Publisher, channel string, v any, attrs map[string]string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}
	merged := map[string]string{"content_type": "application/json"}
	for key, value := range attrs {
		merged[key] = value
	}
	return p.Publish(ctx, channel, data, merged)
}
