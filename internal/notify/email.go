// Package notify emails candidates about their interviews.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/reclutas/apiserver/config"
	"github.com/reclutas/apiserver/internal/events"
	"github.com/reclutas/apiserver/types"
)

// Sender delivers composed messages. *gomail.Dialer satisfies it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailNotifier turns interview events into candidate emails.
type EmailNotifier struct {
	from   string
	sender Sender
	logger *slog.Logger
}

// NewEmailNotifier returns a notifier, or nil when SMTP is not configured.
func NewEmailNotifier(cfg config.SMTPConfig, logger *slog.Logger) *EmailNotifier {
	if cfg.Host == "" || cfg.From == "" {
		return nil
	}
	return NewEmailNotifierWithSender(cfg.From, gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password), logger)
}

func NewEmailNotifierWithSender(from string, sender Sender, logger *slog.Logger) *EmailNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailNotifier{from: from, sender: sender, logger: logger}
}

// Handle sends the email for event. Events for candidates without an email
// address are skipped.
func (n *EmailNotifier) Handle(ctx context.Context, event events.Event) error {
	to := strings.TrimSpace(event.Candidate.Email)
	if to == "" {
		n.logger.WarnContext(ctx, "candidate has no email, skip notification",
			slog.String("event_id", event.ID), slog.Int("recluta_id", event.Candidate.ID))
		return nil
	}

	subject, body, ok := compose(event)
	if !ok {
		n.logger.DebugContext(ctx, "no notification for event", slog.String("type", event.Type))
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetAddressHeader("To", to, event.Candidate.Name)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := n.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	n.logger.InfoContext(ctx, "interview notification sent",
		slog.String("to", to), slog.String("type", event.Type), slog.String("event_id", event.ID))
	return nil
}

func compose(event events.Event) (subject, body string, ok bool) {
	i := event.Interview
	when := fmt.Sprintf("%s a las %s (%d minutos)", i.Date, i.Start, i.DurationMinutes)

	var b strings.Builder
	fmt.Fprintf(&b, "Hola %s,\n\n", event.Candidate.Name)
	switch event.Type {
	case events.InterviewScheduled:
		subject = "Entrevista programada"
		fmt.Fprintf(&b, "Tu entrevista ha sido programada para el %s.\n", when)
	case events.InterviewUpdated:
		if i.Status == types.InterviewCancelled {
			subject = "Entrevista cancelada"
			fmt.Fprintf(&b, "Tu entrevista del %s ha sido cancelada.\n", when)
			break
		}
		subject = "Entrevista actualizada"
		fmt.Fprintf(&b, "Tu entrevista ha cambiado. Nueva fecha: %s.\n", when)
	case events.InterviewCancelled:
		subject = "Entrevista cancelada"
		fmt.Fprintf(&b, "Tu entrevista del %s ha sido cancelada.\n", when)
	default:
		return "", "", false
	}

	if event.Type != events.InterviewCancelled && i.Status != types.InterviewCancelled {
		fmt.Fprintf(&b, "Modalidad: %s\n", i.Modality)
		if i.Location != "" {
			fmt.Fprintf(&b, "Ubicación: %s\n", i.Location)
		}
		if i.AccessCode != nil {
			fmt.Fprintf(&b, "Código de acceso: %s\n", *i.AccessCode)
		}
	}
	b.WriteString("\nGracias.\n")
	return subject, b.String(), true
}
