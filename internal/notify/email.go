package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/medschedule/booking-engine/internal/appointment"
)

// EmailNotifier sends practitioner notifications to the clinic email via
// SendGrid.
type EmailNotifier struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	log       *zap.Logger
}

type EmailConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

func NewEmailNotifier(cfg EmailConfig, log *zap.Logger) *EmailNotifier {
	if cfg.APIKey == "" {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.FromName == "" {
		cfg.FromName = "MedSchedule"
	}
	return &EmailNotifier{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		log:       log,
	}
}

func (n *EmailNotifier) Notify(ctx context.Context, p *appointment.Practitioner, subject, body string) error {
	if !p.NotificationsEnabled {
		n.log.Debug("notification skipped, disabled for practitioner",
			zap.String("practitioner_id", p.ID.String()))
		return nil
	}

	to := p.ClinicEmail
	if to == "" {
		to = p.Email
	}
	if to == "" {
		n.log.Warn("practitioner has no notification email",
			zap.String("practitioner_id", p.ID.String()))
		return nil
	}

	from := mail.NewEmail(n.fromName, n.fromEmail)
	msg := mail.NewSingleEmail(from, subject, mail.NewEmail(p.Name, to), body, body)

	resp, err := n.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned status %d", resp.StatusCode)
	}

	n.log.Info("practitioner notified",
		zap.String("practitioner_id", p.ID.String()),
		zap.String("subject", subject))
	return nil
}

// StubNotifier logs instead of sending. Used in dev and when SendGrid is not
// configured.
type StubNotifier struct {
	log *zap.Logger
}

func NewStubNotifier(log *zap.Logger) *StubNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &StubNotifier{log: log}
}

func (n *StubNotifier) Notify(ctx context.Context, p *appointment.Practitioner, subject, body string) error {
	n.log.Info("stub notifier: would notify practitioner",
		zap.String("practitioner_id", p.ID.String()),
		zap.String("subject", subject))
	return nil
}
