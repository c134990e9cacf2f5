package mq

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const memoryBuffer = 64

// Memory is an in-process backend. Each channel is a buffered queue shared
// by its subscribers; a failed message is delivered once more.
type Memory struct {
	mu       sync.Mutex
	channels map[string]chan memoryMessage
	closed   bool
}

type memoryMessage struct {
	msg      Message
	attempts int
}

func NewMemory() *Memory {
	return &Memory{channels: make(map[string]chan memoryMessage)}
}

func (m *Memory) queue(channel string) (chan memoryMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New("memory broker closed")
	}
	q, ok := m.channels[channel]
	if !ok {
		q = make(chan memoryMessage, memoryBuffer)
		m.channels[channel] = q
	}
	return q, nil
}

func (m *Memory) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("memory channel is required")
	}
	q, err := m.queue(channel)
	if err != nil {
		return "", err
	}
	msg := Message{ID: uuid.NewString(), Data: append([]byte(nil), data...), Attributes: attrs}
	select {
	case q <- memoryMessage{msg: msg}:
		return msg.ID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *Memory) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("memory channel is required")
	}
	q, err := m.queue(channel)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery := <-q:
			if err := handler(ctx, delivery.msg); err != nil && delivery.attempts == 0 {
				delivery.attempts++
				select {
				case q <- delivery:
				default:
				}
			}
		}
	}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
