// Package mq carries interview events between the API and the worker over
// RabbitMQ, Google Pub/Sub or an in-process queue.
package mq

import (
	"context"
	"fmt"
	"strings"

	"github.com/reclutas/apiserver/config"
	"github.com/reclutas/apiserver/internal/metrics"
)

// Message is a broker payload with string attributes.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes one message. A non-nil error asks the backend to
// redeliver it.
type Handler func(ctx context.Context, msg Message) error

type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// MQ is the broker used by the event publisher and the worker.
type MQ struct {
	backend Backend
	name    string
}

func New(backend Backend) *MQ {
	return NewNamed("custom", backend)
}

// NewNamed labels the backend in the broker metrics.
func NewNamed(name string, backend Backend) *MQ {
	return &MQ{backend: backend, name: name}
}

// Open connects the backend named in cfg. It returns nil without error when
// no broker is configured, in which case events are not published.
func Open(ctx context.Context, cfg config.MQConfig) (*MQ, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Backend))
	switch name {
	case "", "none":
		return nil, nil
	case "rabbitmq", "amqp":
		client, err := NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, fmt.Errorf("connect rabbitmq: %w", err)
		}
		return NewNamed("rabbitmq", client), nil
	case "pubsub":
		client, err := NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, fmt.Errorf("connect pubsub: %w", err)
		}
		return NewNamed(name, client), nil
	case "memory":
		return NewNamed(name, NewMemory()), nil
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
}

// Name is the backend label, e.g. "rabbitmq".
func (m *MQ) Name() string {
	return m.name
}

func (m *MQ) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	id, err := m.backend.Publish(ctx, channel, data, attrs)
	metrics.BrokerMessages.WithLabelValues(m.name, "published", outcome(err)).Inc()
	return id, err
}

func (m *MQ) Subscribe(ctx context.Context, channel string, handler Handler) error {
	return m.backend.Subscribe(ctx, channel, func(ctx context.Context, msg Message) error {
		err := handler(ctx, msg)
		metrics.BrokerMessages.WithLabelValues(m.name, "consumed", outcome(err)).Inc()
		return err
	})
}

// Close is safe on a nil broker.
func (m *MQ) Close() error {
	if m == nil {
		return nil
	}
	return m.backend.Close()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
