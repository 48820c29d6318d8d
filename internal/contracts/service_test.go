package contracts

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/assuredfarming/assured-farming-backend/internal/audit"
	"github.com/assuredfarming/assured-farming-backend/internal/escrow"
	"github.com/assuredfarming/assured-farming-backend/internal/listings"
	"github.com/assuredfarming/assured-farming-backend/pkg/auth"
	"github.com/assuredfarming/assured-farming-backend/pkg/db/dbtest"
	"github.com/assuredfarming/assured-farming-backend/pkg/db/models"
	"github.com/assuredfarming/assured-farming-backend/pkg/enums"
	pkgerrors "github.com/assuredfarming/assured-farming-backend/pkg/errors"
	"github.com/assuredfarming/assured-farming-backend/pkg/outbox"
	"github.com/assuredfarming/assured-farming-backend/pkg/pagination"
	"github.com/assuredfarming/assured-farming-backend/pkg/payments"
)

type failingGateway struct{}

func (failingGateway) CreateCharge(context.Context, payments.ChargeRequest) (string, error) {
	return "", errors.New("gateway down")
}

type stallingGateway struct{}

func (stallingGateway) CreateCharge(ctx context.Context, _ payments.ChargeRequest) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type harness struct {
	svc     Service
	conn    *gorm.DB
	buyer   auth.Principal
	farmer  auth.Principal
	admin   auth.Principal
	listing models.Listing
}

func newHarness(t *testing.T, gateway payments.Gateway, chargeTimeout time.Duration) harness {
	t.Helper()
	client, conn := dbtest.Client(t)
	emitter := outbox.NewService(outbox.NewRepository(conn), nil)
	sink, err := audit.NewOutboxSink(emitter)
	require.NoError(t, err)
	escrowSvc, err := escrow.NewService(escrow.NewRepository(conn), client, sink)
	require.NoError(t, err)
	svc, err := NewService(Deps{
		Repo:          NewRepository(conn),
		Listings:      listings.NewRepository(conn),
		Escrow:        escrowSvc,
		Gateway:       gateway,
		Outbox:        emitter,
		Audit:         sink,
		Tx:            client,
		ChargeTimeout: chargeTimeout,
	})
	require.NoError(t, err)

	farmer := dbtest.SeedUser(t, conn, enums.RoleFarmer)
	buyer := dbtest.SeedUser(t, conn, enums.RoleBuyer)
	admin := dbtest.SeedUser(t, conn, enums.RoleAdmin)
	available := decimal.RequireFromString("100")
	return harness{
		svc:     svc,
		conn:    conn,
		buyer:   auth.Principal{UserID: buyer.ID, Role: enums.RoleBuyer},
		farmer:  auth.Principal{UserID: farmer.ID, Role: enums.RoleFarmer},
		admin:   auth.Principal{UserID: admin.ID, Role: enums.RoleAdmin},
		listing: dbtest.SeedListing(t, conn, farmer.ID, &available),
	}
}

func (h harness) createContract(t *testing.T, qty, price string) *models.Contract {
	t.Helper()
	contract, err := h.svc.Create(context.Background(), h.buyer, CreateInput{
		ListingID:    h.listing.ID,
		Quantity:     decimal.RequireFromString(qty),
		PricePerUnit: decimal.RequireFromString(price),
	})
	require.NoError(t, err)
	return contract
}

func (h harness) propose(t *testing.T, contractID uuid.UUID, price string) *models.PriceProposal {
	t.Helper()
	proposal, err := h.svc.Propose(context.Background(), h.farmer, ProposeInput{
		ContractID:   contractID,
		PricePerUnit: decimal.RequireFromString(price),
		Message:      "market moved",
	})
	require.NoError(t, err)
	return proposal
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	assert.Equal(t, code, typed.Code(), err.Error())
}

func TestCreateComputesExactTotal(t *testing.T) {
	h := newHarness(t, payments.NewMockGateway(), 0)

	contract := h.createContract(t, "10", "25.00")
	assert.Equal(t, enums.ContractStatusDraft, contract.Status)
	assert.Equal(t, h.listing.FarmerID, contract.FarmerID)
	assert.Equal(t, "250.00", contract.TotalValue.StringFixed(2))

	odd := h.createContract(t, "0.333", "3.33")
	assert.Equal(t, "1.11", odd.TotalValue.StringFixed(2))

	stored, err := h.svc.Get(context.Background(), h.buyer, contract.ID)
	require.NoError(t, err)
	assert.True(t, stored.TotalValue.Equal(decimal.RequireFromString("250")))
	assert.EqualValues(t, 2, dbtest.Count(t, h.conn, "outbox_events", "event_type = ?", enums.EventAuditRecorded))
}

func TestCreateValidation(t *testing.T) {
	h := newHarness(t, payments.NewMockGateway(), 0)
	ctx := context.Background()

	_, err := h.svc.Create(ctx, h.buyer, CreateInput{
		ListingID:    h.listing.ID,
		Quantity:     decimal.Zero,
		PricePerUnit: decimal.RequireFromString("-1"),
	})
	requireCode(t, err, pkgerrors.CodeValidation)
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, ok)
	assert.Contains(t, details, "agreed_quantity")
	assert.Contains(t, details, "price_per_unit")

	_, err = h.svc.Create(ctx, h.buyer, CreateInput{
		ListingID:    h.listing.ID,
		Quantity:     decimal.RequireFromString("100.001"),
		PricePerUnit: decimal.RequireFromString("1"),
	})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = h.svc.Create(ctx, h.buyer, CreateInput{
		ListingID:    uuid.New(),
		Quantity:     decimal.RequireFromString("1"),
		PricePerUnit: decimal.RequireFromString("1"),
	})
	requireCode(t, err, pkgerrors.CodeNotFound)

	assert.Zero(t, dbtest.Count(t, h.conn, "contracts", ""))
}

func TestProposeMovesDraftToProposed(t *testing.T) {
	h := newHarness(t, payments.NewMockGateway(), 0)
	contract := h.createContract(t, "10", "25.00")

	h.propose(t, contract.ID, "24.00")

	stored, err := h.svc.Get(context.Background(), h.farmer, contract.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ContractStatusProposed, stored.Status)
	assert.EqualValues(t, 1, dbtest.Count(t, h.conn, "outbox_events", "event_type = ?", enums.EventNotificationRequested))

	_, err = h.svc.Propose(context.Background(), h.farmer, ProposeInput{ContractID: contract.ID, PricePerUnit: decimal.Zero})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestAcceptProposalFundsEscrow(t *testing.T) {
	h := newHarness(t, payments.NewMockGateway(), 0)
	contract := h.createContract(t, "10", "25.00")
	proposal := h.propose(t, contract.ID, "24.00")

	result, err := h.svc.AcceptProposal(context.Background(), h.buyer, contract.ID, proposal.ID)
	require.NoError(t, err)

	assert.Equal(t, enums.ContractStatusAccepted, result.Contract.Status)
	assert.Equal(t, "240.00", result.Contract.TotalValue.StringFixed(2))
	assert.True(t, result.Proposal.Accepted)
	assert.Equal(t, enums.EscrowStatusHeld, result.Escrow.Status)
	assert.Equal(t, "240.00", result.Escrow.Amount.StringFixed(2))
	assert.True(t, payments.IsMockReference(result.Escrow.PaymentReference))

	stored, err := h.svc.Get(context.Background(), h.buyer, contract.ID)
	require.NoError(t, err)
	assert.Equal(t, "24.00", stored.PricePerUnit.StringFixed(2))
	assert.Equal(t, "240.00", stored.TotalValue.StringFixed(2))

	held, err := h.svc.GetEscrow(context.Background(), h.farmer, contract.ID)
	require.NoError(t, err)
	assert.Equal(t, result.Escrow.ID, held.ID)
	assert.EqualValues(t, 1, dbtest.Count(t, h.conn, "price_proposals", "accepted = ?", true))
}

func TestAcceptProposalRollsBackOnGatewayFailure(t *testing.T) {
	for name, gateway := range map[string]payments.Gateway{
		"error":   failingGateway{},
		"timeout": stallingGateway{},
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, gateway, 20*time.Millisecond)
			contract := h.createContract(t, "10", "25.00")
			proposal := h.propose(t, contract.ID, "24.00")
			eventsBefore := dbtest.Count(t, h.conn, "outbox_events", "")

			_, err := h.svc.AcceptProposal(context.Background(), h.buyer, contract.ID, proposal.ID)
			requireCode(t, err, pkgerrors.CodeDependency)

			stored, err := h.svc.Get(context.Background(), h.buyer, contract.ID)
			require.NoError(t, err)
			assert.Equal(t, enums.ContractStatusProposed, stored.Status)
			assert.Equal(t, "250.00", stored.TotalValue.StringFixed(2))
			assert.Zero(t, dbtest.Count(t, h.conn, "price_proposals", "accepted = ?", true))
			assert.Zero(t, dbtest.Count(t, h.conn, "escrow_transactions", ""))
			assert.Equal(t, eventsBefore, dbtest.Count(t, h.conn, "outbox_events", ""))
		})
	}
}

func TestAcceptProposalIsSingleUse(t *testing.T) {
	h := newHarness(t, payments.NewMockGateway(), 0)
	contract := h.createContract(t, "10", "25.00")
	first := h.propose(t, contract.ID, "24.00")
	second := h.propose(t, contract.ID, "23.00")

	_, err := h.svc.AcceptProposal(context.Background(), h.buyer, contract.ID, first.ID)
	require.NoError(t, err)

	_, err = h.svc.AcceptProposal(context.Background(), h.buyer, contract.ID, second.ID)
	requireCode(t, err, pkgerrors.CodeStateConflict)

	_, err = h.svc.AcceptProposal(context.Background(), h.buyer, contract.ID, first.ID)
	requireCode(t, err, pkgerrors.CodeStateConflict)

	assert.EqualValues(t, 1, dbtest.Count(t, h.conn, "escrow_transactions", ""))
}

func TestConcurrentAcceptFundsOnce(t *testing.T) {
	h := newHarness(t, payments.NewMockGateway(), 0)
	contract := h.createContract(t, "10", "25.00")
	proposals := []*models.PriceProposal{
		h.propose(t, contract.ID, "24.00"),
		h.propose(t, contract.ID, "23.00"),
		h.propose(t, contract.ID, "22.00"),
	}

	var wg sync.WaitGroup
	errs := make([]error, len(proposals))
	for i, proposal := range proposals {
		wg.Add(1)
		go func(i int, proposalID uuid.UUID) {
			defer wg.Done()
			_, errs[i] = h.svc.AcceptProposal(context.Background(), h.buyer, contract.ID, proposalID)
		}(i, proposal.ID)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict), err.Error())
	}
	assert.Equal(t, 1, succeeded)
	assert.EqualValues(t, 1, dbtest.Count(t, h.conn, "escrow_transactions", ""))
	assert.EqualValues(t, 1, dbtest.Count(t, h.conn, "price_proposals", "accepted = ?", true))
}

func TestProposalLookupIsScopedToContract(t *testing.T) {
	h := newHarness(t, payments.NewMockGateway(), 0)
	contract := h.createContract(t, "10", "25.00")
	other := h.createContract(t, "5", "20.00")
	foreign := h.propose(t, other.ID, "19.00")

	_, err := h.svc.AcceptProposal(context.Background(), h.buyer, contract.ID, foreign.ID)
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestOutsidersCannotSeeContract(t *testing.T) {
	h := newHarness(t, payments.NewMockGateway(), 0)
	contract := h.createContract(t, "10", "25.00")
	stranger := auth.Principal{UserID: uuid.New(), Role: enums.RoleBuyer}

	_, err := h.svc.Get(context.Background(), stranger, contract.ID)
	requireCode(t, err, pkgerrors.CodeNotFound)

	_, err = h.svc.Propose(context.Background(), stranger, ProposeInput{ContractID: contract.ID, PricePerUnit: decimal.NewFromInt(1)})
	requireCode(t, err, pkgerrors.CodeNotFound)

	_, err = h.svc.ListProposals(context.Background(), stranger, contract.ID)
	requireCode(t, err, pkgerrors.CodeNotFound)

	got, err := h.svc.Get(context.Background(), h.admin, contract.ID)
	require.NoError(t, err)
	assert.Equal(t, contract.ID, got.ID)
}

func TestListProposalsInCreationOrder(t *testing.T) {
	h := newHarness(t, payments.NewMockGateway(), 0)
	contract := h.createContract(t, "10", "25.00")
	first := h.propose(t, contract.ID, "24.00")
	time.Sleep(2 * time.Millisecond)
	second := h.propose(t, contract.ID, "23.50")

	proposals, err := h.svc.ListProposals(context.Background(), h.buyer, contract.ID)
	require.NoError(t, err)
	require.Len(t, proposals, 2)
	assert.Equal(t, first.ID, proposals[0].ID)
	assert.Equal(t, second.ID, proposals[1].ID)
}

func TestListPagesThroughOwnContracts(t *testing.T) {
	h := newHarness(t, payments.NewMockGateway(), 0)
	base := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	var mine []uuid.UUID
	for i := 0; i < 3; i++ {
		c := dbtest.SeedContract(t, h.conn, dbtest.ContractSeed{Listing: h.listing, BuyerID: h.buyer.UserID})
		require.NoError(t, h.conn.Model(&models.Contract{}).Where("id = ?", c.ID).
			Update("created_at", base.Add(time.Duration(i)*time.Hour)).Error)
		mine = append(mine, c.ID)
	}
	otherBuyer := dbtest.SeedUser(t, h.conn, enums.RoleBuyer)
	dbtest.SeedContract(t, h.conn, dbtest.ContractSeed{Listing: h.listing, BuyerID: otherBuyer.ID})

	first, err := h.svc.List(context.Background(), h.buyer, ListParams{Params: pagination.Params{Limit: 2}})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	require.NotEmpty(t, first.Cursor)
	assert.Equal(t, mine[2], first.Items[0].ID)
	assert.Equal(t, mine[1], first.Items[1].ID)

	second, err := h.svc.List(context.Background(), h.buyer, ListParams{Params: pagination.Params{Limit: 2, Cursor: first.Cursor}})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Equal(t, mine[0], second.Items[0].ID)
	assert.Empty(t, second.Cursor)

	farmerView, err := h.svc.List(context.Background(), h.farmer, ListParams{})
	require.NoError(t, err)
	assert.Len(t, farmerView.Items, 4)

	adminView, err := h.svc.List(context.Background(), h.admin, ListParams{Status: enums.ContractStatusActive})
	require.NoError(t, err)
	assert.Empty(t, adminView.Items)
}

func TestListRejectsBadFilters(t *testing.T) {
	h := newHarness(t, payments.NewMockGateway(), 0)

	_, err := h.svc.List(context.Background(), h.buyer, ListParams{Status: "shipped"})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = h.svc.List(context.Background(), h.buyer, ListParams{Params: pagination.Params{Cursor: "not a cursor"}})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestSignActivatesAndRequestsDocument(t *testing.T) {
	h := newHarness(t, payments.NewMockGateway(), 0)
	contract := h.createContract(t, "10", "25.00")

	_, err := h.svc.Sign(context.Background(), h.farmer, contract.ID)
	requireCode(t, err, pkgerrors.CodeStateConflict)

	proposal := h.propose(t, contract.ID, "24.00")
	_, err = h.svc.AcceptProposal(context.Background(), h.buyer, contract.ID, proposal.ID)
	require.NoError(t, err)

	signed, err := h.svc.Sign(context.Background(), h.farmer, contract.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ContractStatusActive, signed.Status)
	require.NotNil(t, signed.SignedAt)
	assert.EqualValues(t, 1, dbtest.Count(t, h.conn, "outbox_events", "event_type = ?", enums.EventDocumentRequested))

	_, err = h.svc.Sign(context.Background(), h.buyer, contract.ID)
	requireCode(t, err, pkgerrors.CodeStateConflict)
}

func TestReleaseExpired(t *testing.T) {
	h := newHarness(t, payments.NewMockGateway(), 0)
	ended := time.Now().UTC().Add(-10 * 24 * time.Hour)
	cutoff := time.Now().UTC().Add(-7 * 24 * time.Hour)

	due := dbtest.SeedContract(t, h.conn, dbtest.ContractSeed{Listing: h.listing, BuyerID: h.buyer.UserID, Status: enums.ContractStatusActive, EndDate: &ended})
	dbtest.SeedEscrow(t, h.conn, due.ID, "250.00", enums.EscrowStatusHeld, "")

	result, err := h.svc.ReleaseExpired(context.Background(), due.ID, cutoff)
	require.NoError(t, err)
	assert.Equal(t, escrow.OutcomeReleased, result.Outcome)

	stored, err := h.svc.Get(context.Background(), h.admin, due.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ContractStatusCompleted, stored.Status)

	again, err := h.svc.ReleaseExpired(context.Background(), due.ID, cutoff)
	require.NoError(t, err)
	assert.Equal(t, escrow.OutcomeAlreadyFinalized, again.Outcome)

	disputed := dbtest.SeedContract(t, h.conn, dbtest.ContractSeed{Listing: h.listing, BuyerID: h.buyer.UserID, Status: enums.ContractStatusDisputed, EndDate: &ended})
	dbtest.SeedEscrow(t, h.conn, disputed.ID, "250.00", enums.EscrowStatusHeld, "")
	dbtest.SeedDispute(t, h.conn, disputed.ID, h.buyer.UserID, enums.DisputeStatusOpen)

	skipped, err := h.svc.ReleaseExpired(context.Background(), disputed.ID, cutoff)
	require.NoError(t, err)
	assert.Equal(t, escrow.OutcomeSkipped, skipped.Outcome)

	recent := time.Now().UTC().Add(-1 * time.Hour)
	notDue := dbtest.SeedContract(t, h.conn, dbtest.ContractSeed{Listing: h.listing, BuyerID: h.buyer.UserID, Status: enums.ContractStatusActive, EndDate: &recent})
	dbtest.SeedEscrow(t, h.conn, notDue.ID, "250.00", enums.EscrowStatusHeld, "")

	skipped, err = h.svc.ReleaseExpired(context.Background(), notDue.ID, cutoff)
	require.NoError(t, err)
	assert.Equal(t, escrow.OutcomeSkipped, skipped.Outcome)
}

func TestTransitionTxRejectsIllegalMoves(t *testing.T) {
	h := newHarness(t, payments.NewMockGateway(), 0)
	contract := h.createContract(t, "10", "25.00")

	client := h.conn
	err := client.Transaction(func(tx *gorm.DB) error {
		locked, err := h.svc.LockTx(context.Background(), tx, h.buyer, contract.ID)
		require.NoError(t, err)
		return h.svc.TransitionTx(context.Background(), tx, locked, enums.ContractStatusCompleted, h.buyer.Actor(), enums.AuditContractCompleted)
	})
	requireCode(t, err, pkgerrors.CodeStateConflict)
	assert.True(t, strings.Contains(err.Error(), "draft"))
}
