package payments

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockGatewayCreateCharge(t *testing.T) {
	gw := NewMockGateway()
	req := ChargeRequest{ContractID: uuid.New(), BuyerID: uuid.New(), Amount: decimal.RequireFromString("250.50"), Currency: "USD"}

	first, err := gw.CreateCharge(context.Background(), req)
	require.NoError(t, err)
	second, err := gw.CreateCharge(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, IsMockReference(first), first)
	assert.Len(t, first, len(ReferencePrefix)+32)
	assert.NotEqual(t, first, second)
}

func TestMockGatewayHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMockGateway().CreateCharge(ctx, ChargeRequest{ContractID: uuid.New(), Amount: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, context.Canceled)
}

func TestMockGatewayRejectsNonPositiveAmount(t *testing.T) {
	_, err := NewMockGateway().CreateCharge(context.Background(), ChargeRequest{ContractID: uuid.New(), Amount: decimal.Zero})
	require.Error(t, err)
}

func TestIsMockReference(t *testing.T) {
	assert.False(t, IsMockReference("mock_xyz"))
	assert.False(t, IsMockReference("ch_0123456789abcdef0123456789abcdef"))
	assert.True(t, IsMockReference("mock_0123456789abcdef0123456789abcdef"))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event_id":"evt_1"}`)
	sig := Sign("whsec", body)

	assert.True(t, VerifySignature("whsec", body, sig))
	assert.True(t, VerifySignature("whsec", body, "sha256="+sig))
	assert.False(t, VerifySignature("whsec", body, "deadbeef"))
	assert.False(t, VerifySignature("other", body, sig))
	assert.True(t, VerifySignature("", body, ""))
}
