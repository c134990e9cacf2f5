package notify

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/reclutas/apiserver/config"
	"github.com/reclutas/apiserver/internal/events"
	"github.com/reclutas/apiserver/types"
)

type captureSender struct {
	messages []*gomail.Message
	err      error
}

func (c *captureSender) DialAndSend(m ...*gomail.Message) error {
	c.messages = append(c.messages, m...)
	return c.err
}

func render(t *testing.T, m *gomail.Message) string {
	t.Helper()
	var buf bytes.Buffer
	_, err := m.WriteTo(&buf)
	require.NoError(t, err)
	return buf.String()
}

func interviewEvent(t *testing.T, eventType string, modality types.Modality) events.Event {
	t.Helper()
	date, err := types.ParseDate("2026-03-09")
	require.NoError(t, err)
	start, err := types.NewTimeOfDay(9, 30)
	require.NoError(t, err)
	code := "ABCD-EF23"
	interview := types.Interview{
		ID: 1, CandidateID: 2, Date: date, Start: start, DurationMinutes: 60,
		Modality: modality, Status: types.InterviewPending,
	}
	if modality == types.ModalityVirtual {
		interview.AccessCode = &code
	}
	return events.New(eventType, interview, types.Candidate{ID: 2, Name: "Ana", Email: "ana@example.com"})
}

func TestNewEmailNotifierNeedsSMTP(t *testing.T) {
	assert.Nil(t, NewEmailNotifier(config.SMTPConfig{}, nil))
	assert.NotNil(t, NewEmailNotifier(config.SMTPConfig{Host: "smtp.example.com", Port: 587, From: "rrhh@example.com"}, nil))
}

func TestHandleScheduledVirtualInterview(t *testing.T) {
	sender := &captureSender{}
	n := NewEmailNotifierWithSender("rrhh@example.com", sender, nil)

	require.NoError(t, n.Handle(context.Background(), interviewEvent(t, events.InterviewScheduled, types.ModalityVirtual)))
	require.Len(t, sender.messages, 1)

	m := sender.messages[0]
	assert.Equal(t, []string{"rrhh@example.com"}, m.GetHeader("From"))
	assert.Equal(t, []string{"Entrevista programada"}, m.GetHeader("Subject"))
	assert.Contains(t, m.GetHeader("To")[0], "ana@example.com")

	raw := render(t, m)
	assert.Contains(t, raw, "2026-03-09 a las 09:30")
	assert.Contains(t, raw, "ABCD-EF23")
}

func TestHandleCancellation(t *testing.T) {
	sender := &captureSender{}
	n := NewEmailNotifierWithSender("rrhh@example.com", sender, nil)

	require.NoError(t, n.Handle(context.Background(), interviewEvent(t, events.InterviewCancelled, types.ModalityVirtual)))
	require.Len(t, sender.messages, 1)
	assert.Equal(t, []string{"Entrevista cancelada"}, sender.messages[0].GetHeader("Subject"))
	assert.NotContains(t, render(t, sender.messages[0]), "ABCD-EF23")

	updated := interviewEvent(t, events.InterviewUpdated, types.ModalityInPerson)
	updated.Interview.Status = types.InterviewCancelled
	require.NoError(t, n.Handle(context.Background(), updated))
	assert.Equal(t, []string{"Entrevista cancelada"}, sender.messages[1].GetHeader("Subject"))
}

func TestHandleSkipsAndFailures(t *testing.T) {
	sender := &captureSender{}
	n := NewEmailNotifierWithSender("rrhh@example.com", sender, nil)

	noEmail := interviewEvent(t, events.InterviewScheduled, types.ModalityPhone)
	noEmail.Candidate.Email = " "
	require.NoError(t, n.Handle(context.Background(), noEmail))

	unknown := interviewEvent(t, "interview.archived", types.ModalityPhone)
	require.NoError(t, n.Handle(context.Background(), unknown))
	assert.Empty(t, sender.messages)

	sender.err = errors.New("connection refused")
	err := n.Handle(context.Background(), interviewEvent(t, events.InterviewUpdated, types.ModalityPhone))
	assert.ErrorContains(t, err, "connection refused")
}
