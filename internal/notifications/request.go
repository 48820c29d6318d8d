package notifications

import (
	"github.com/google/uuid"

	"github.com/assuredfarming/assured-farming-backend/pkg/enums"
	"github.com/assuredfarming/assured-farming-backend/pkg/outbox"
	"github.com/assuredfarming/assured-farming-backend/pkg/outbox/payloads"
)

// DefaultChannels is used when a request names no channel.
var DefaultChannels = []enums.NotificationChannel{
	enums.NotificationChannelEmail,
	enums.NotificationChannelSMS,
}

// Requested builds the outbox event asking the dispatcher to reach recipientID
// about contractID.
func Requested(template enums.NotificationTemplate, contractID, recipientID uuid.UUID, actor *outbox.ActorRef, params map[string]string) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregateContract,
		AggregateID:   contractID,
		Actor:         actor,
		Data: payloads.NotificationRequestedEvent{
			Template:    template,
			RecipientID: recipientID,
			ContractID:  contractID,
			Channels:    DefaultChannels,
			Params:      params,
		},
	}
}
