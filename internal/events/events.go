// Package events defines the interview domain events carried over the
// message broker.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/reclutas/apiserver/internal/mq"
	"github.com/reclutas/apiserver/types"
)

// Event types.
const (
	InterviewScheduled = "interview.scheduled"
	InterviewUpdated   = "interview.updated"
	InterviewCancelled = "interview.cancelled"
)

const attrType = "type"

// Event is the payload published for interview lifecycle changes.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Interview  types.Interview `json:"entrevista"`
	Candidate  types.Candidate `json:"recluta"`
}

// New builds an event with a fresh id.
func New(eventType string, interview types.Interview, candidate types.Candidate) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Interview:  interview,
		Candidate:  candidate,
	}
}

// Decode parses an event from a broker message.
func Decode(msg mq.Message) (Event, error) {
	var event Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return Event{}, err
	}
	if event.Type == "" {
		event.Type = msg.Attributes[attrType]
	}
	if event.Type == "" {
		return Event{}, errors.New("event type is missing")
	}
	return event, nil
}

// Publisher sends events to one broker channel. A Publisher without a
// broker drops events.
type Publisher struct {
	mq      *mq.MQ
	channel string
}

func NewPublisher(broker *mq.MQ, channel string) *Publisher {
	return &Publisher{mq: broker, channel: channel}
}

// Enabled reports whether events reach a broker.
func (p *Publisher) Enabled() bool {
	return p != nil && p.mq != nil
}

func (p *Publisher) Publish(ctx context.Context, event Event) error {
	if !p.Enabled() {
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = p.mq.Publish(ctx, p.channel, data, map[string]string{
		attrType:           event.Type,
		"event_id":         event.ID,
		mq.OrderingKeyAttr: "entrevista-" + strconv.Itoa(event.Interview.ID),
	})
	return err
}

// Subscribe delivers decoded events to handler until ctx ends.
// Undecodable messages are acknowledged and dropped.
func (p *Publisher) Subscribe(ctx context.Context, handler func(ctx context.Context, event Event) error, onDrop func(mq.Message, error)) error {
	if !p.Enabled() {
		return errors.New("no message broker configured")
	}
	return p.mq.Subscribe(ctx, p.channel, func(ctx context.Context, msg mq.Message) error {
		event, err := Decode(msg)
		if err != nil {
			if onDrop != nil {
				onDrop(msg, err)
			}
			return nil
		}
		return handler(ctx, event)
	})
}
