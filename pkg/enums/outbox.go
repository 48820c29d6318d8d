package enums

import "slices"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateContract     OutboxAggregateType = "contract"
	AggregateEscrow       OutboxAggregateType = "escrow"
	AggregateShipment     OutboxAggregateType = "shipment"
	AggregateDispute      OutboxAggregateType = "dispute"
	AggregateWebhookEvent OutboxAggregateType = "webhook_event"
	AggregateNotification OutboxAggregateType = "notification"
)

func (a OutboxAggregateType) IsValid() bool {
	switch a {
	case AggregateContract, AggregateEscrow, AggregateShipment,
		AggregateDispute, AggregateWebhookEvent, AggregateNotification:
		return true
	}
	return false
}

// OutboxEventType maps to the event_type enum in Postgres. Each type names
// the task queue its rows are relayed to.
type OutboxEventType string

const (
	EventNotificationRequested OutboxEventType = "notification_requested"
	EventDocumentRequested     OutboxEventType = "document_requested"
	EventAuditRecorded         OutboxEventType = "audit_recorded"
)

// eventAggregates lists the aggregates allowed to emit each event type.
var eventAggregates = map[OutboxEventType][]OutboxAggregateType{
	EventNotificationRequested: {AggregateContract},
	EventDocumentRequested:     {AggregateContract},
	EventAuditRecorded: {
		AggregateContract,
		AggregateEscrow,
		AggregateShipment,
		AggregateDispute,
		AggregateWebhookEvent,
	},
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Emits reports whether an aggregate of type a may produce e.
func (e OutboxEventType) Emits(a OutboxAggregateType) bool {
	return slices.Contains(eventAggregates[e], a)
}
