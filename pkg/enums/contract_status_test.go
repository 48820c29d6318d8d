package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContractStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to ContractStatus
		allowed  bool
	}{
		{ContractStatusDraft, ContractStatusProposed, true},
		{ContractStatusDraft, ContractStatusAccepted, true},
		{ContractStatusProposed, ContractStatusAccepted, true},
		{ContractStatusProposed, ContractStatusActive, false},
		{ContractStatusAccepted, ContractStatusActive, true},
		{ContractStatusActive, ContractStatusCompleted, true},
		{ContractStatusActive, ContractStatusAccepted, false},
		{ContractStatusDisputed, ContractStatusActive, true},
		{ContractStatusCompleted, ContractStatusDisputed, false},
		{ContractStatusCancelled, ContractStatusDraft, false},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.allowed, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestContractStatusHelpers(t *testing.T) {
	assert.True(t, ContractStatusCompleted.IsTerminal())
	assert.True(t, ContractStatusCancelled.IsTerminal())
	assert.False(t, ContractStatusDisputed.IsTerminal())

	assert.True(t, ContractStatusDraft.AcceptsProposals())
	assert.True(t, ContractStatusProposed.AcceptsProposals())
	assert.False(t, ContractStatusAccepted.AcceptsProposals())

	status, err := ParseContractStatus("active")
	require.NoError(t, err)
	assert.Equal(t, ContractStatusActive, status)

	_, err = ParseContractStatus("signed")
	assert.Error(t, err)
}
