package enums

import "fmt"

// ContractStatus maps to the contract_status enum in Postgres.
type ContractStatus string

const (
	ContractStatusDraft     ContractStatus = "draft"
	ContractStatusProposed  ContractStatus = "proposed"
	ContractStatusAccepted  ContractStatus = "accepted"
	ContractStatusActive    ContractStatus = "active"
	ContractStatusCompleted ContractStatus = "completed"
	ContractStatusDisputed  ContractStatus = "disputed"
	ContractStatusCancelled ContractStatus = "cancelled"
)

var validContractStatuses = []ContractStatus{
	ContractStatusDraft,
	ContractStatusProposed,
	ContractStatusAccepted,
	ContractStatusActive,
	ContractStatusCompleted,
	ContractStatusDisputed,
	ContractStatusCancelled,
}

// String implements fmt.Stringer.
func (s ContractStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ContractStatus.
func (s ContractStatus) IsValid() bool {
	for _, candidate := range validContractStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s ContractStatus) IsTerminal() bool {
	return s == ContractStatusCompleted || s == ContractStatusCancelled
}

// AcceptsProposals reports whether a proposal may still be accepted.
func (s ContractStatus) AcceptsProposals() bool {
	return s == ContractStatusDraft || s == ContractStatusProposed
}

// IsFunded reports whether the contract has passed acceptance and carries an escrow.
func (s ContractStatus) IsFunded() bool {
	return s == ContractStatusAccepted || s == ContractStatusActive
}

var contractTransitions = map[ContractStatus][]ContractStatus{
	ContractStatusDraft:    {ContractStatusProposed, ContractStatusAccepted, ContractStatusCancelled},
	ContractStatusProposed: {ContractStatusAccepted, ContractStatusCancelled},
	ContractStatusAccepted: {ContractStatusActive, ContractStatusCompleted, ContractStatusDisputed, ContractStatusCancelled},
	ContractStatusActive:   {ContractStatusCompleted, ContractStatusDisputed},
	ContractStatusDisputed: {ContractStatusAccepted, ContractStatusActive, ContractStatusCompleted, ContractStatusCancelled},
}

// CanTransitionTo reports whether the contract lifecycle allows s -> next.
func (s ContractStatus) CanTransitionTo(next ContractStatus) bool {
	for _, allowed := range contractTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParseContractStatus converts raw input into a ContractStatus.
func ParseContractStatus(value string) (ContractStatus, error) {
	for _, candidate := range validContractStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid contract status %q", value)
}
