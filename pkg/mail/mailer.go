package mail

import (
	"context"
	"fmt"
	"strings"

	"github.com/assuredfarming/assured-farming-backend/pkg/config"
	"github.com/assuredfarming/assured-farming-backend/pkg/logger"
)

const (
	DriverLog  = "log"
	DriverSMTP = "smtp"
	DriverSES  = "ses"
)

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

func (m Message) validate() error {
	if strings.TrimSpace(m.To) == "" {
		return fmt.Errorf("mail recipient is required")
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("mail subject is required")
	}
	return nil
}

// Mailer delivers a message and returns the provider message id when one exists.
type Mailer interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// New builds the mailer selected by cfg.Driver.
func New(ctx context.Context, cfg config.MailConfig, awsCfg config.AWSConfig, logg *logger.Logger) (Mailer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverLog:
		return NewLogMailer(logg), nil
	case DriverSMTP:
		return NewSMTPMailer(cfg)
	case DriverSES:
		return NewSESMailer(ctx, cfg, awsCfg)
	default:
		return nil, fmt.Errorf("unsupported mail driver %q", cfg.Driver)
	}
}

// LogMailer writes messages to the structured log instead of sending them.
type LogMailer struct {
	logg *logger.Logger
}

func NewLogMailer(logg *logger.Logger) *LogMailer {
	return &LogMailer{logg: logg}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) (string, error) {
	if err := msg.validate(); err != nil {
		return "", err
	}
	if m.logg != nil {
		logCtx := m.logg.WithFields(ctx, map[string]any{
			"mail_to":      msg.To,
			"mail_subject": msg.Subject,
		})
		m.logg.Info(logCtx, "email delivered to log")
	}
	return "", nil
}
