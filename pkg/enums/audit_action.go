package enums

// AuditAction names a state-changing operation recorded in the audit log.
type AuditAction string

const (
	AuditContractCreated     AuditAction = "contract.created"
	AuditProposalCreated     AuditAction = "proposal.created"
	AuditProposalAccepted    AuditAction = "proposal.accepted"
	AuditContractSigned      AuditAction = "contract.signed"
	AuditContractCompleted   AuditAction = "contract.completed"
	AuditContractCancelled   AuditAction = "contract.cancelled"
	AuditEscrowCreated       AuditAction = "escrow.created"
	AuditEscrowStatusChanged AuditAction = "escrow.status_changed"
	AuditShipmentCreated     AuditAction = "shipment.created"
	AuditShipmentDelivered   AuditAction = "shipment.delivered"
	AuditDisputeRaised       AuditAction = "dispute.raised"
	AuditDisputeResolved     AuditAction = "dispute.resolved"
	AuditWebhookProcessed    AuditAction = "webhook.processed"
	AuditDocumentAttached    AuditAction = "document.attached"
)
