package enums

import "fmt"

// EscrowStatus maps to the escrow_status enum in Postgres.
type EscrowStatus string

const (
	EscrowStatusPending  EscrowStatus = "pending"
	EscrowStatusHeld     EscrowStatus = "held"
	EscrowStatusReleased EscrowStatus = "released"
	EscrowStatusRefunded EscrowStatus = "refunded"
)

var validEscrowStatuses = []EscrowStatus{
	EscrowStatusPending,
	EscrowStatusHeld,
	EscrowStatusReleased,
	EscrowStatusRefunded,
}

// escrowRank orders statuses along the only direction money may move.
var escrowRank = map[EscrowStatus]int{
	EscrowStatusPending:  0,
	EscrowStatusHeld:     1,
	EscrowStatusReleased: 2,
	EscrowStatusRefunded: 2,
}

// String implements fmt.Stringer.
func (s EscrowStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known EscrowStatus.
func (s EscrowStatus) IsValid() bool {
	_, ok := escrowRank[s]
	return ok
}

// IsTerminal reports whether the status is absorbing.
func (s EscrowStatus) IsTerminal() bool {
	return s == EscrowStatusReleased || s == EscrowStatusRefunded
}

// CanTransitionTo reports whether moving from s to next goes strictly forward.
// Terminal statuses never transition.
func (s EscrowStatus) CanTransitionTo(next EscrowStatus) bool {
	if s.IsTerminal() || !next.IsValid() {
		return false
	}
	return escrowRank[next] > escrowRank[s]
}

// ParseEscrowStatus converts raw input into an EscrowStatus.
func ParseEscrowStatus(value string) (EscrowStatus, error) {
	for _, candidate := range validEscrowStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid escrow status %q", value)
}
