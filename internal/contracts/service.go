package contracts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/assuredfarming/assured-farming-backend/internal/audit"
	"github.com/assuredfarming/assured-farming-backend/internal/escrow"
	"github.com/assuredfarming/assured-farming-backend/internal/notifications"
	"github.com/assuredfarming/assured-farming-backend/pkg/auth"
	"github.com/assuredfarming/assured-farming-backend/pkg/db"
	"github.com/assuredfarming/assured-farming-backend/pkg/db/models"
	"github.com/assuredfarming/assured-farming-backend/pkg/enums"
	pkgerrors "github.com/assuredfarming/assured-farming-backend/pkg/errors"
	"github.com/assuredfarming/assured-farming-backend/pkg/logger"
	"github.com/assuredfarming/assured-farming-backend/pkg/outbox"
	"github.com/assuredfarming/assured-farming-backend/pkg/outbox/payloads"
	"github.com/assuredfarming/assured-farming-backend/pkg/pagination"
	"github.com/assuredfarming/assured-farming-backend/pkg/payments"
)

const defaultChargeTimeout = 5 * time.Second

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ListingReader resolves listings from the catalog.
type ListingReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
}

// EscrowLedger is the slice of the escrow state machine contracts drive.
type EscrowLedger interface {
	OpenHeldTx(ctx context.Context, tx *gorm.DB, contractID uuid.UUID, amount decimal.Decimal, reference string, actor *outbox.ActorRef) (*models.EscrowTransaction, error)
	FinalizeForContractTx(ctx context.Context, tx *gorm.DB, contractID uuid.UUID, target enums.EscrowStatus, actor *outbox.ActorRef) (escrow.Result, error)
	GetForContract(ctx context.Context, contractID uuid.UUID) (*models.EscrowTransaction, error)
}

// Service is the contract lifecycle plus price negotiation.
type Service interface {
	Create(ctx context.Context, principal auth.Principal, input CreateInput) (*models.Contract, error)
	Get(ctx context.Context, principal auth.Principal, contractID uuid.UUID) (*models.Contract, error)
	List(ctx context.Context, principal auth.Principal, params ListParams) (*ListResult, error)
	Propose(ctx context.Context, principal auth.Principal, input ProposeInput) (*models.PriceProposal, error)
	ListProposals(ctx context.Context, principal auth.Principal, contractID uuid.UUID) ([]models.PriceProposal, error)
	AcceptProposal(ctx context.Context, principal auth.Principal, contractID, proposalID uuid.UUID) (*AcceptResult, error)
	Sign(ctx context.Context, principal auth.Principal, contractID uuid.UUID) (*models.Contract, error)
	GetEscrow(ctx context.Context, principal auth.Principal, contractID uuid.UUID) (*models.EscrowTransaction, error)
	ReleaseExpired(ctx context.Context, contractID uuid.UUID, endedBefore time.Time) (escrow.Result, error)

	// LockTx and TransitionTx let sibling aggregates (shipments, disputes)
	// mutate a contract inside their own transaction.
	LockTx(ctx context.Context, tx *gorm.DB, principal auth.Principal, contractID uuid.UUID) (*models.Contract, error)
	TransitionTx(ctx context.Context, tx *gorm.DB, contract *models.Contract, next enums.ContractStatus, actor *outbox.ActorRef, action enums.AuditAction) error
}

// Deps groups the collaborators of the contract service.
type Deps struct {
	Repo          Repository
	Listings      ListingReader
	Escrow        EscrowLedger
	Gateway       payments.Gateway
	Outbox        outboxPublisher
	Audit         audit.Sink
	Tx            txRunner
	Logger        *logger.Logger
	ChargeTimeout time.Duration
}

type service struct {
	repo          Repository
	listings      ListingReader
	escrow        EscrowLedger
	gateway       payments.Gateway
	outbox        outboxPublisher
	audit         audit.Sink
	tx            txRunner
	logg          *logger.Logger
	chargeTimeout time.Duration
	now           func() time.Time
}

func NewService(deps Deps) (Service, error) {
	switch {
	case deps.Repo == nil:
		return nil, fmt.Errorf("contracts repository required")
	case deps.Listings == nil:
		return nil, fmt.Errorf("listing reader required")
	case deps.Escrow == nil:
		return nil, fmt.Errorf("escrow ledger required")
	case deps.Gateway == nil:
		return nil, fmt.Errorf("payment gateway required")
	case deps.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case deps.Audit == nil:
		return nil, fmt.Errorf("audit sink required")
	case deps.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	}
	timeout := deps.ChargeTimeout
	if timeout <= 0 {
		timeout = defaultChargeTimeout
	}
	return &service{
		repo:          deps.Repo,
		listings:      deps.Listings,
		escrow:        deps.Escrow,
		gateway:       deps.Gateway,
		outbox:        deps.Outbox,
		audit:         deps.Audit,
		tx:            deps.Tx,
		logg:          deps.Logger,
		chargeTimeout: timeout,
		now:           time.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, principal auth.Principal, input CreateInput) (*models.Contract, error) {
	if principal.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	fields := map[string]string{}
	if input.ListingID == uuid.Nil {
		fields["listing_id"] = "required"
	}
	if !input.Quantity.IsPositive() {
		fields["agreed_quantity"] = "must be greater than zero"
	}
	if !input.PricePerUnit.IsPositive() {
		fields["price_per_unit"] = "must be greater than zero"
	}
	start := s.now().UTC()
	if input.StartDate != nil {
		start = input.StartDate.UTC()
	}
	if input.EndDate != nil && input.EndDate.Before(start) {
		fields["end_date"] = "must not precede start_date"
	}
	if len(fields) > 0 {
		return nil, pkgerrors.FieldErrors(fields)
	}

	listing, err := s.listings.FindByID(ctx, input.ListingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listing")
	}
	if listing.FarmerID == principal.UserID {
		return nil, pkgerrors.FieldErrors(map[string]string{"listing_id": "farmers cannot contract their own listing"})
	}
	if listing.QuantityAvailable.Valid && input.Quantity.GreaterThan(listing.QuantityAvailable.Decimal) {
		return nil, pkgerrors.FieldErrors(map[string]string{
			"agreed_quantity": "exceeds quantity available (" + listing.QuantityAvailable.Decimal.String() + ")",
		})
	}

	contract := &models.Contract{
		ID:             uuid.New(),
		ListingID:      listing.ID,
		BuyerID:        principal.UserID,
		FarmerID:       listing.FarmerID,
		AgreedQuantity: input.Quantity,
		PricePerUnit:   input.PricePerUnit,
		TotalValue:     totalValue(input.Quantity, input.PricePerUnit),
		StartDate:      start,
		EndDate:        utcPtr(input.EndDate),
		Status:         enums.ContractStatusDraft,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, contract); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create contract")
		}
		return s.record(ctx, tx, principal.Actor(), enums.AuditContractCreated, contract.ID, map[string]any{
			"listing_id":  listing.ID.String(),
			"total_value": contract.TotalValue.StringFixed(2),
		})
	})
	if err != nil {
		return nil, err
	}
	return contract, nil
}

func (s *service) Get(ctx context.Context, principal auth.Principal, contractID uuid.UUID) (*models.Contract, error) {
	if contractID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "contract id required")
	}
	contract, err := s.repo.FindByID(ctx, contractID)
	if err != nil {
		return nil, mapContractError(err)
	}
	if !canAccess(principal, contract) {
		return nil, notFound()
	}
	return contract, nil
}

func (s *service) List(ctx context.Context, principal auth.Principal, params ListParams) (*ListResult, error) {
	if principal.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if params.Status != "" && !params.Status.IsValid() {
		return nil, pkgerrors.FieldErrors(map[string]string{"status": "unknown contract status"})
	}
	query := listQuery{
		status: params.Status,
		limit:  pagination.LimitWithBuffer(params.Limit),
	}
	if !principal.IsAdmin() {
		query.participant = principal.UserID
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	query.cursor = cursor

	rows, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list contracts")
	}
	items, next := pagination.Page(rows, params.Limit, func(c models.Contract) pagination.Cursor {
		return pagination.Cursor{CreatedAt: c.CreatedAt, ID: c.ID}
	})
	return &ListResult{Items: items, Cursor: next}, nil
}

func (s *service) Propose(ctx context.Context, principal auth.Principal, input ProposeInput) (*models.PriceProposal, error) {
	if principal.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !input.PricePerUnit.IsPositive() {
		return nil, pkgerrors.FieldErrors(map[string]string{"price_per_unit": "must be greater than zero"})
	}
	var proposal *models.PriceProposal
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		contract, err := s.LockTx(ctx, tx, principal, input.ContractID)
		if err != nil {
			return err
		}
		repo := s.repo.WithTx(tx)
		proposal = &models.PriceProposal{
			ID:           uuid.New(),
			ContractID:   contract.ID,
			ProposerID:   principal.UserID,
			PricePerUnit: input.PricePerUnit,
			Message:      strings.TrimSpace(input.Message),
		}
		if err := repo.CreateProposal(ctx, proposal); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create proposal")
		}
		if contract.Status == enums.ContractStatusDraft {
			if err := s.setStatus(ctx, tx, contract, enums.ContractStatusProposed); err != nil {
				return err
			}
		}
		if err := s.record(ctx, tx, principal.Actor(), enums.AuditProposalCreated, contract.ID, map[string]any{
			"proposal_id":    proposal.ID.String(),
			"price_per_unit": proposal.PricePerUnit.StringFixed(2),
		}); err != nil {
			return err
		}
		return s.notify(ctx, tx, principal.Actor(), enums.NotificationProposalCreated, contract, contract.Counterparty(principal.UserID), map[string]string{
			"price_per_unit": proposal.PricePerUnit.StringFixed(2),
		})
	})
	if err != nil {
		return nil, err
	}
	return proposal, nil
}

func (s *service) ListProposals(ctx context.Context, principal auth.Principal, contractID uuid.UUID) ([]models.PriceProposal, error) {
	if _, err := s.Get(ctx, principal, contractID); err != nil {
		return nil, err
	}
	proposals, err := s.repo.ListProposals(ctx, contractID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list proposals")
	}
	return proposals, nil
}

// AcceptProposal applies the proposal, charges the buyer and opens a held
// escrow. A failure at any step leaves nothing behind.
func (s *service) AcceptProposal(ctx context.Context, principal auth.Principal, contractID, proposalID uuid.UUID) (*AcceptResult, error) {
	if proposalID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "proposal id required")
	}
	var result AcceptResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		contract, err := s.LockTx(ctx, tx, principal, contractID)
		if err != nil {
			return err
		}
		if !contract.Status.AcceptsProposals() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "contract is "+contract.Status.String()+"; proposals can no longer be accepted").
				WithDetails(map[string]any{"status": contract.Status})
		}

		repo := s.repo.WithTx(tx)
		proposal, err := repo.FindProposal(ctx, contract.ID, proposalID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "proposal not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load proposal")
		}
		if err := repo.MarkProposalAccepted(ctx, proposal.ID); err != nil {
			if db.IsUniqueViolation(err, AcceptedProposalIndex, "price_proposals.contract_id") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "contract already has an accepted proposal")
			}
			return wrapWrite(err, "accept proposal")
		}
		proposal.Accepted = true

		total := totalValue(contract.AgreedQuantity, proposal.PricePerUnit)
		if err := repo.UpdateContract(ctx, contract.ID, map[string]any{
			"price_per_unit": proposal.PricePerUnit,
			"total_value":    total,
			"status":         enums.ContractStatusAccepted,
		}); err != nil {
			return wrapWrite(err, "update contract")
		}
		contract.PricePerUnit = proposal.PricePerUnit
		contract.TotalValue = total
		contract.Status = enums.ContractStatusAccepted

		reference, err := s.charge(ctx, contract)
		if err != nil {
			return err
		}
		held, err := s.escrow.OpenHeldTx(ctx, tx, contract.ID, total, reference, principal.Actor())
		if err != nil {
			return err
		}

		if err := s.record(ctx, tx, principal.Actor(), enums.AuditProposalAccepted, contract.ID, map[string]any{
			"proposal_id":    proposal.ID.String(),
			"price_per_unit": proposal.PricePerUnit.StringFixed(2),
			"total_value":    total.StringFixed(2),
			"escrow_id":      held.ID.String(),
		}); err != nil {
			return err
		}
		if err := s.notifyParties(ctx, tx, principal.Actor(), enums.NotificationProposalAccepted, contract, map[string]string{
			"total_value": total.StringFixed(2),
		}); err != nil {
			return err
		}
		result = AcceptResult{Contract: contract, Proposal: proposal, Escrow: held}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *service) charge(ctx context.Context, contract *models.Contract) (string, error) {
	chargeCtx, cancel := context.WithTimeout(ctx, s.chargeTimeout)
	defer cancel()
	reference, err := s.gateway.CreateCharge(chargeCtx, payments.ChargeRequest{
		ContractID: contract.ID,
		BuyerID:    contract.BuyerID,
		Amount:     contract.TotalValue,
		Currency:   payments.DefaultCurrency,
	})
	if err != nil {
		if s.logg != nil {
			s.logg.Error(s.logg.WithContractID(ctx, contract.ID.String()), "payment gateway charge failed", err)
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment gateway unavailable")
	}
	return reference, nil
}

func (s *service) Sign(ctx context.Context, principal auth.Principal, contractID uuid.UUID) (*models.Contract, error) {
	var signed *models.Contract
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		contract, err := s.LockTx(ctx, tx, principal, contractID)
		if err != nil {
			return err
		}
		if contract.Status != enums.ContractStatusAccepted {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only accepted contracts can be signed").
				WithDetails(map[string]any{"status": contract.Status})
		}
		signedAt := s.now().UTC()
		if err := s.repo.WithTx(tx).UpdateContract(ctx, contract.ID, map[string]any{
			"status":    enums.ContractStatusActive,
			"signed_at": signedAt,
		}); err != nil {
			return wrapWrite(err, "sign contract")
		}
		contract.Status = enums.ContractStatusActive
		contract.SignedAt = &signedAt

		actor := principal.Actor()
		if err := s.record(ctx, tx, actor, enums.AuditContractSigned, contract.ID, map[string]any{
			"signed_at": signedAt.Format(time.RFC3339),
		}); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDocumentRequested,
			AggregateType: enums.AggregateContract,
			AggregateID:   contract.ID,
			Actor:         actor,
			Data: payloads.DocumentRequestedEvent{
				ContractID: contract.ID,
				Kind:       payloads.DocumentKindSignedContract,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue contract document")
		}
		if err := s.notifyParties(ctx, tx, actor, enums.NotificationContractSigned, contract, nil); err != nil {
			return err
		}
		signed = contract
		return nil
	})
	if err != nil {
		return nil, err
	}
	return signed, nil
}

func (s *service) GetEscrow(ctx context.Context, principal auth.Principal, contractID uuid.UUID) (*models.EscrowTransaction, error) {
	if _, err := s.Get(ctx, principal, contractID); err != nil {
		return nil, err
	}
	return s.escrow.GetForContract(ctx, contractID)
}

// ReleaseExpired re-checks an auto-release candidate under the contract lock
// and releases its escrow. Candidates that stopped qualifying are skipped.
func (s *service) ReleaseExpired(ctx context.Context, contractID uuid.UUID, endedBefore time.Time) (escrow.Result, error) {
	var result escrow.Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		contract, err := repo.LockByID(ctx, contractID)
		if err != nil {
			return mapContractError(err)
		}
		if contract.EndDate == nil || contract.EndDate.After(endedBefore) {
			result = escrow.Result{Outcome: escrow.OutcomeSkipped}
			return nil
		}
		open, err := repo.CountOpenDisputes(ctx, contract.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count open disputes")
		}
		if open > 0 {
			result = escrow.Result{Outcome: escrow.OutcomeSkipped}
			return nil
		}

		result, err = s.escrow.FinalizeForContractTx(ctx, tx, contract.ID, enums.EscrowStatusReleased, nil)
		if err != nil {
			return err
		}
		if result.Outcome != escrow.OutcomeReleased {
			return nil
		}
		if contract.Status.IsFunded() {
			if err := s.TransitionTx(ctx, tx, contract, enums.ContractStatusCompleted, nil, enums.AuditContractCompleted); err != nil {
				return err
			}
		}
		return s.notify(ctx, tx, nil, enums.NotificationEscrowReleased, contract, contract.FarmerID, map[string]string{
			"amount": result.Escrow.Amount.StringFixed(2),
		})
	})
	if err != nil {
		return escrow.Result{}, err
	}
	return result, nil
}

// LockTx locks the contract row. Callers outside the contract are told it
// does not exist.
func (s *service) LockTx(ctx context.Context, tx *gorm.DB, principal auth.Principal, contractID uuid.UUID) (*models.Contract, error) {
	if contractID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "contract id required")
	}
	contract, err := s.repo.WithTx(tx).LockByID(ctx, contractID)
	if err != nil {
		return nil, mapContractError(err)
	}
	if !canAccess(principal, contract) {
		return nil, notFound()
	}
	return contract, nil
}

// TransitionTx moves a locked contract along the lifecycle and audits it.
func (s *service) TransitionTx(ctx context.Context, tx *gorm.DB, contract *models.Contract, next enums.ContractStatus, actor *outbox.ActorRef, action enums.AuditAction) error {
	previous := contract.Status
	if !previous.CanTransitionTo(next) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("contract cannot move from %s to %s", previous, next))
	}
	if err := s.setStatus(ctx, tx, contract, next); err != nil {
		return err
	}
	if action == "" {
		return nil
	}
	return s.record(ctx, tx, actor, action, contract.ID, map[string]any{
		"from": previous,
		"to":   next,
	})
}

func (s *service) setStatus(ctx context.Context, tx *gorm.DB, contract *models.Contract, next enums.ContractStatus) error {
	if err := s.repo.WithTx(tx).UpdateContract(ctx, contract.ID, map[string]any{"status": next}); err != nil {
		return wrapWrite(err, "update contract status")
	}
	contract.Status = next
	return nil
}

func (s *service) record(ctx context.Context, tx *gorm.DB, actor *outbox.ActorRef, action enums.AuditAction, contractID uuid.UUID, metadata map[string]any) error {
	if err := s.audit.Record(ctx, tx, audit.Entry{
		Actor:      actor,
		Action:     action,
		EntityType: enums.AggregateContract,
		EntityID:   contractID,
		Metadata:   metadata,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record audit entry")
	}
	return nil
}

func (s *service) notify(ctx context.Context, tx *gorm.DB, actor *outbox.ActorRef, template enums.NotificationTemplate, contract *models.Contract, recipient uuid.UUID, params map[string]string) error {
	if err := s.outbox.Emit(ctx, tx, notifications.Requested(template, contract.ID, recipient, actor, params)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue notification")
	}
	return nil
}

func (s *service) notifyParties(ctx context.Context, tx *gorm.DB, actor *outbox.ActorRef, template enums.NotificationTemplate, contract *models.Contract, params map[string]string) error {
	for _, recipient := range []uuid.UUID{contract.BuyerID, contract.FarmerID} {
		if err := s.notify(ctx, tx, actor, template, contract, recipient, params); err != nil {
			return err
		}
	}
	return nil
}

// totalValue is quantity x price rounded half away from zero to cents.
func totalValue(quantity, price decimal.Decimal) decimal.Decimal {
	return quantity.Mul(price).Round(2)
}

func canAccess(principal auth.Principal, contract *models.Contract) bool {
	return principal.IsAdmin() || contract.IsParticipant(principal.UserID)
}

func notFound() error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "contract not found")
}

func mapContractError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound()
	}
	if db.IsLockTimeout(err) {
		return pkgerrors.Wrap(pkgerrors.CodeLockTimeout, err, "contract is locked by another operation")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load contract")
}

func wrapWrite(err error, msg string) error {
	if db.IsLockTimeout(err) {
		return pkgerrors.Wrap(pkgerrors.CodeLockTimeout, err, msg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
