package notifications

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assuredfarming/assured-farming-backend/pkg/enums"
)

func TestRenderSubjects(t *testing.T) {
	contractID := uuid.MustParse("3f2504e0-4f89-11d3-9a0c-0305e82c3301")
	cases := map[enums.NotificationTemplate]string{
		enums.NotificationProposalCreated:   "New price proposal",
		enums.NotificationProposalAccepted:  "Proposal accepted",
		enums.NotificationContractSigned:    "Contract signed",
		enums.NotificationShipmentDelivered: "Shipment delivered",
		enums.NotificationDisputeRaised:     "Dispute raised",
		enums.NotificationEscrowReleased:    "Escrow released",
	}
	for name, subject := range cases {
		t.Run(string(name), func(t *testing.T) {
			content, err := Render(name, "Ada", contractID, nil)
			require.NoError(t, err)
			assert.Equal(t, subject, content.Subject)
			assert.Contains(t, content.Body, "Hello Ada")
			assert.Contains(t, content.Body, contractID.String())
			assert.Contains(t, content.SMS, "3f2504e0")
		})
	}
}

func TestRenderParams(t *testing.T) {
	content, err := Render(enums.NotificationEscrowReleased, "", uuid.New(), map[string]string{"amount": "240.00"})
	require.NoError(t, err)
	assert.Contains(t, content.Body, "Hello there")
	assert.Contains(t, content.Body, "240.00")
	assert.Contains(t, content.SMS, "240.00")
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, err := Render("welcome", "Ada", uuid.New(), nil)
	require.Error(t, err)
}
