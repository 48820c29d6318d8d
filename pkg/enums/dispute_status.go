package enums

import "fmt"

// DisputeStatus maps to the dispute_status enum in Postgres.
type DisputeStatus string

const (
	DisputeStatusOpen        DisputeStatus = "open"
	DisputeStatusUnderReview DisputeStatus = "under_review"
	DisputeStatusResolved    DisputeStatus = "resolved"
	DisputeStatusRejected    DisputeStatus = "rejected"
)

var validDisputeStatuses = []DisputeStatus{
	DisputeStatusOpen,
	DisputeStatusUnderReview,
	DisputeStatusResolved,
	DisputeStatusRejected,
}

func (s DisputeStatus) String() string {
	return string(s)
}

func (s DisputeStatus) IsValid() bool {
	for _, candidate := range validDisputeStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsOpen reports whether the dispute still blocks settlement.
func (s DisputeStatus) IsOpen() bool {
	return s == DisputeStatusOpen || s == DisputeStatusUnderReview
}

func ParseDisputeStatus(value string) (DisputeStatus, error) {
	for _, candidate := range validDisputeStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dispute status %q", value)
}

// DisputeEscrowAction is the settlement applied when a dispute is resolved.
type DisputeEscrowAction string

const (
	DisputeEscrowNone    DisputeEscrowAction = "none"
	DisputeEscrowRelease DisputeEscrowAction = "release"
	DisputeEscrowRefund  DisputeEscrowAction = "refund"
)

func ParseDisputeEscrowAction(value string) (DisputeEscrowAction, error) {
	switch DisputeEscrowAction(value) {
	case "":
		return DisputeEscrowNone, nil
	case DisputeEscrowNone, DisputeEscrowRelease, DisputeEscrowRefund:
		return DisputeEscrowAction(value), nil
	}
	return "", fmt.Errorf("invalid escrow action %q", value)
}
