package payments

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReferencePrefix marks references minted by the mock gateway.
const ReferencePrefix = "mock_"

// DefaultCurrency is charged when a request names none.
const DefaultCurrency = "USD"

// ChargeRequest describes funds to capture into escrow for a contract.
type ChargeRequest struct {
	ContractID uuid.UUID
	BuyerID    uuid.UUID
	Amount     decimal.Decimal
	Currency   string
}

// Gateway creates charges against an external payment processor.
type Gateway interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (string, error)
}

// MockGateway issues opaque references without contacting any processor.
type MockGateway struct{}

func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// CreateCharge returns "mock_" followed by 32 hex characters.
func (g *MockGateway) CreateCharge(ctx context.Context, req ChargeRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if req.ContractID == uuid.Nil {
		return "", fmt.Errorf("contract id required")
	}
	if !req.Amount.IsPositive() {
		return "", fmt.Errorf("charge amount must be positive")
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating payment reference: %w", err)
	}
	return ReferencePrefix + hex.EncodeToString(buf), nil
}

// IsMockReference reports whether ref has the mock gateway shape.
func IsMockReference(ref string) bool {
	if !strings.HasPrefix(ref, ReferencePrefix) {
		return false
	}
	body := strings.TrimPrefix(ref, ReferencePrefix)
	if len(body) != 32 {
		return false
	}
	_, err := hex.DecodeString(body)
	return err == nil
}
