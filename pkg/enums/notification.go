package enums

import "fmt"

// NotificationTemplate identifies the message a notification renders.
type NotificationTemplate string

const (
	NotificationProposalCreated   NotificationTemplate = "proposal_created"
	NotificationProposalAccepted  NotificationTemplate = "proposal_accepted"
	NotificationContractSigned    NotificationTemplate = "contract_signed"
	NotificationShipmentDelivered NotificationTemplate = "shipment_delivered"
	NotificationDisputeRaised     NotificationTemplate = "dispute_raised"
	NotificationEscrowReleased    NotificationTemplate = "escrow_released"
)

var validNotificationTemplates = []NotificationTemplate{
	NotificationProposalCreated,
	NotificationProposalAccepted,
	NotificationContractSigned,
	NotificationShipmentDelivered,
	NotificationDisputeRaised,
	NotificationEscrowReleased,
}

// IsValid checks whether the given template matches the canonical enum.
func (n NotificationTemplate) IsValid() bool {
	for _, candidate := range validNotificationTemplates {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationTemplate converts raw strings into NotificationTemplate.
func ParseNotificationTemplate(value string) (NotificationTemplate, error) {
	for _, candidate := range validNotificationTemplates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification template %q", value)
}

// NotificationChannel is a delivery medium for a notification.
type NotificationChannel string

const (
	NotificationChannelEmail NotificationChannel = "email"
	NotificationChannelSMS   NotificationChannel = "sms"
)

func (c NotificationChannel) IsValid() bool {
	return c == NotificationChannelEmail || c == NotificationChannelSMS
}
