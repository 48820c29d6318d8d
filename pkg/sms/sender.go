package sms

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/assuredfarming/assured-farming-backend/pkg/config"
	"github.com/assuredfarming/assured-farming-backend/pkg/db/models"
	"github.com/assuredfarming/assured-farming-backend/pkg/logger"
)

const (
	DriverLog = "log"
	DriverSNS = "sns"
)

// Message is a single text message.
type Message struct {
	To   string
	Body string
}

// Sender delivers a text message and returns the provider id when one exists.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// New builds the sender selected by cfg.Driver.
func New(ctx context.Context, cfg config.SMSConfig, awsCfg config.AWSConfig, conn *gorm.DB, logg *logger.Logger) (Sender, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverLog:
		return NewLogSender(conn, logg)
	case DriverSNS:
		return NewSNSSender(ctx, cfg, awsCfg)
	default:
		return nil, fmt.Errorf("unsupported sms driver %q", cfg.Driver)
	}
}

// LogSender records messages in sms_logs instead of sending them.
type LogSender struct {
	db   *gorm.DB
	logg *logger.Logger
}

func NewLogSender(conn *gorm.DB, logg *logger.Logger) (*LogSender, error) {
	if conn == nil {
		return nil, fmt.Errorf("sms log sender requires a database")
	}
	return &LogSender{db: conn, logg: logg}, nil
}

func (s *LogSender) Send(ctx context.Context, msg Message) (string, error) {
	if strings.TrimSpace(msg.To) == "" {
		return "", fmt.Errorf("sms recipient is required")
	}
	row := models.SMSLog{
		ID:        uuid.New(),
		Recipient: msg.To,
		Message:   msg.Body,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("recording sms: %w", err)
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "sms_to", msg.To), "sms recorded to log")
	}
	return row.ID.String(), nil
}
