package models

import (
	"time"

	"github.com/google/uuid"
)

// SMSLog stores text messages delivered through the log-only SMS channel.
type SMSLog struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Recipient string    `gorm:"column:recipient;not null"`
	Message   string    `gorm:"column:message;type:text;not null"`
	SentAt    time.Time `gorm:"column:sent_at;autoCreateTime"`
}

func (SMSLog) TableName() string { return "sms_logs" }
