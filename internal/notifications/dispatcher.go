package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/assuredfarming/assured-farming-backend/pkg/db/models"
	"github.com/assuredfarming/assured-farming-backend/pkg/enums"
	"github.com/assuredfarming/assured-farming-backend/pkg/logger"
	"github.com/assuredfarming/assured-farming-backend/pkg/mail"
	"github.com/assuredfarming/assured-farming-backend/pkg/outbox/payloads"
	"github.com/assuredfarming/assured-farming-backend/pkg/sms"
	"github.com/assuredfarming/assured-farming-backend/pkg/tasks"
)

// UserLookup resolves recipients.
type UserLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Dispatcher renders a notification request and sends it on each channel.
type Dispatcher struct {
	users  UserLookup
	mailer mail.Mailer
	sms    sms.Sender
	policy tasks.Policy
	logg   *logger.Logger
}

func NewDispatcher(users UserLookup, mailer mail.Mailer, sender sms.Sender, policy tasks.Policy, logg *logger.Logger) (*Dispatcher, error) {
	switch {
	case users == nil:
		return nil, fmt.Errorf("user lookup required")
	case mailer == nil:
		return nil, fmt.Errorf("mailer required")
	case sender == nil:
		return nil, fmt.Errorf("sms sender required")
	case logg == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &Dispatcher{users: users, mailer: mailer, sms: sender, policy: policy, logg: logg}, nil
}

// Dispatch delivers req on every requested channel. Each channel is retried
// on its own; a channel the recipient cannot receive is skipped. The error is
// permanent only when no failed channel could succeed on a later delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, req payloads.NotificationRequestedEvent) error {
	if req.RecipientID == uuid.Nil {
		return tasks.Permanent(errors.New("recipient id missing"))
	}
	var recipient *models.User
	err := d.policy.Run(ctx, func(ctx context.Context) error {
		user, err := d.users.FindByID(ctx, req.RecipientID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tasks.Permanent(fmt.Errorf("recipient %s not found", req.RecipientID))
		}
		recipient = user
		return err
	})
	if err != nil {
		return err
	}

	content, err := Render(req.Template, recipient.FullName, req.ContractID, req.Params)
	if err != nil {
		return tasks.Permanent(err)
	}

	logCtx := d.logg.WithFields(ctx, map[string]any{
		"template":     req.Template,
		"recipient_id": req.RecipientID.String(),
		"contract_id":  req.ContractID.String(),
	})

	var retryable, permanent error
	for _, channel := range channelsFor(req) {
		if err := d.send(ctx, channel, recipient, content); err != nil {
			err = fmt.Errorf("%s: %w", channel, err)
			if tasks.IsPermanent(err) {
				permanent = multierr.Append(permanent, err)
			} else {
				retryable = multierr.Append(retryable, err)
			}
			continue
		}
		d.logg.Info(d.logg.WithField(logCtx, "channel", channel), "notification sent")
	}
	// A permanent failure must not hide a channel that can still succeed.
	if retryable != nil {
		if permanent != nil {
			d.logg.Error(logCtx, "notification channel dropped", permanent)
		}
		return retryable
	}
	return permanent
}

func channelsFor(req payloads.NotificationRequestedEvent) []enums.NotificationChannel {
	if len(req.Channels) == 0 {
		return DefaultChannels
	}
	return req.Channels
}

func (d *Dispatcher) send(ctx context.Context, channel enums.NotificationChannel, recipient *models.User, content Content) error {
	switch channel {
	case enums.NotificationChannelEmail:
		if strings.TrimSpace(recipient.Email) == "" {
			return nil
		}
		return d.policy.Run(ctx, func(ctx context.Context) error {
			_, err := d.mailer.Send(ctx, mail.Message{To: recipient.Email, Subject: content.Subject, Body: content.Body})
			return err
		})
	case enums.NotificationChannelSMS:
		if recipient.Phone == nil || strings.TrimSpace(*recipient.Phone) == "" {
			return nil
		}
		return d.policy.Run(ctx, func(ctx context.Context) error {
			_, err := d.sms.Send(ctx, sms.Message{To: *recipient.Phone, Body: content.SMS})
			return err
		})
	default:
		return tasks.Permanent(fmt.Errorf("unsupported channel %q", channel))
	}
}
