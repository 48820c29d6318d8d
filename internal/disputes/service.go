package disputes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/assuredfarming/assured-farming-backend/internal/audit"
	"github.com/assuredfarming/assured-farming-backend/internal/escrow"
	"github.com/assuredfarming/assured-farming-backend/internal/notifications"
	"github.com/assuredfarming/assured-farming-backend/pkg/auth"
	"github.com/assuredfarming/assured-farming-backend/pkg/db"
	"github.com/assuredfarming/assured-farming-backend/pkg/db/models"
	"github.com/assuredfarming/assured-farming-backend/pkg/enums"
	pkgerrors "github.com/assuredfarming/assured-farming-backend/pkg/errors"
	"github.com/assuredfarming/assured-farming-backend/pkg/outbox"
)

const maxDescriptionLength = 4000

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ContractLocker is implemented by the contract service.
type ContractLocker interface {
	LockTx(ctx context.Context, tx *gorm.DB, principal auth.Principal, contractID uuid.UUID) (*models.Contract, error)
	TransitionTx(ctx context.Context, tx *gorm.DB, contract *models.Contract, next enums.ContractStatus, actor *outbox.ActorRef, action enums.AuditAction) error
	Get(ctx context.Context, principal auth.Principal, contractID uuid.UUID) (*models.Contract, error)
}

// EscrowFinalizer settles the escrow backing a contract.
type EscrowFinalizer interface {
	FinalizeForContractTx(ctx context.Context, tx *gorm.DB, contractID uuid.UUID, target enums.EscrowStatus, actor *outbox.ActorRef) (escrow.Result, error)
}

type RaiseInput struct {
	ContractID  uuid.UUID
	Description string
}

type ResolveInput struct {
	Status          enums.DisputeStatus
	ResolutionNotes string
	EscrowAction    enums.DisputeEscrowAction
}

// ResolveResult reports the dispute plus any settlement it caused.
type ResolveResult struct {
	Dispute        *models.Dispute      `json:"dispute"`
	ContractStatus enums.ContractStatus `json:"contract_status"`
	EscrowOutcome  escrow.Outcome       `json:"escrow_outcome,omitempty"`
}

type Service interface {
	Raise(ctx context.Context, principal auth.Principal, input RaiseInput) (*models.Dispute, error)
	List(ctx context.Context, principal auth.Principal, contractID uuid.UUID) ([]models.Dispute, error)
	Resolve(ctx context.Context, principal auth.Principal, disputeID uuid.UUID, input ResolveInput) (*ResolveResult, error)
}

type ServiceParams struct {
	Repo      Repository
	Contracts ContractLocker
	Escrow    EscrowFinalizer
	Outbox    outboxPublisher
	Audit     audit.Sink
	Tx        txRunner
}

type service struct {
	repo      Repository
	contracts ContractLocker
	escrow    EscrowFinalizer
	outbox    outboxPublisher
	audit     audit.Sink
	tx        txRunner
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("disputes repository required")
	case params.Contracts == nil:
		return nil, fmt.Errorf("contract locker required")
	case params.Escrow == nil:
		return nil, fmt.Errorf("escrow finalizer required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.Audit == nil:
		return nil, fmt.Errorf("audit sink required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:      params.Repo,
		contracts: params.Contracts,
		escrow:    params.Escrow,
		outbox:    params.Outbox,
		audit:     params.Audit,
		tx:        params.Tx,
		now:       time.Now,
	}, nil
}

// Raise opens a dispute in any contract status. Funded contracts move to
// disputed and remember where they came from.
func (s *service) Raise(ctx context.Context, principal auth.Principal, input RaiseInput) (*models.Dispute, error) {
	description := strings.TrimSpace(input.Description)
	switch {
	case description == "":
		return nil, pkgerrors.FieldErrors(map[string]string{"description": "required"})
	case len(description) > maxDescriptionLength:
		return nil, pkgerrors.FieldErrors(map[string]string{"description": fmt.Sprintf("must be at most %d characters", maxDescriptionLength)})
	}

	var raised *models.Dispute
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		contract, err := s.contracts.LockTx(ctx, tx, principal, input.ContractID)
		if err != nil {
			return err
		}
		repo := s.repo.WithTx(tx)
		dispute := &models.Dispute{
			ID:          uuid.New(),
			ContractID:  contract.ID,
			RaisedBy:    principal.UserID,
			Description: description,
			Status:      enums.DisputeStatusOpen,
		}

		previous := contract.Status
		switch {
		case previous.IsFunded():
			prior := previous
			dispute.PriorContractStatus = &prior
			if err := s.contracts.TransitionTx(ctx, tx, contract, enums.ContractStatusDisputed, principal.Actor(), ""); err != nil {
				return err
			}
		case previous == enums.ContractStatusDisputed:
			prior, err := repo.OpenPriorStatus(ctx, contract.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load prior contract status")
			}
			dispute.PriorContractStatus = prior
		}

		if err := repo.Create(ctx, dispute); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create dispute")
		}
		if err := s.record(ctx, tx, principal.Actor(), enums.AuditDisputeRaised, dispute, map[string]any{
			"contract_status_from": previous,
			"contract_status_to":   contract.Status,
		}); err != nil {
			return err
		}
		recipient := contract.Counterparty(principal.UserID)
		if principal.IsAdmin() {
			recipient = contract.BuyerID
		}
		if err := s.outbox.Emit(ctx, tx, notifications.Requested(enums.NotificationDisputeRaised, contract.ID, recipient, principal.Actor(), nil)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue notification")
		}
		raised = dispute
		return nil
	})
	if err != nil {
		return nil, err
	}
	return raised, nil
}

func (s *service) List(ctx context.Context, principal auth.Principal, contractID uuid.UUID) ([]models.Dispute, error) {
	if _, err := s.contracts.Get(ctx, principal, contractID); err != nil {
		return nil, err
	}
	disputes, err := s.repo.ListByContract(ctx, contractID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list disputes")
	}
	return disputes, nil
}

// Resolve is admin-only. A resolved dispute may settle the escrow; a rejected
// one hands the contract back its prior status once no other dispute is open.
func (s *service) Resolve(ctx context.Context, principal auth.Principal, disputeID uuid.UUID, input ResolveInput) (*ResolveResult, error) {
	if !principal.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins can resolve disputes")
	}
	if err := validateResolve(input); err != nil {
		return nil, err
	}
	existing, err := s.repo.FindByID(ctx, disputeID)
	if err != nil {
		return nil, mapDisputeError(err)
	}

	var result ResolveResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		contract, err := s.contracts.LockTx(ctx, tx, principal, existing.ContractID)
		if err != nil {
			return err
		}
		repo := s.repo.WithTx(tx)
		dispute, err := repo.LockByID(ctx, disputeID)
		if err != nil {
			return mapDisputeError(err)
		}
		if !dispute.Status.IsOpen() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "dispute is already "+dispute.Status.String())
		}

		updates := map[string]any{"status": input.Status}
		if notes := strings.TrimSpace(input.ResolutionNotes); notes != "" {
			updates["resolution_notes"] = notes
			dispute.ResolutionNotes = &notes
		}
		if input.Status != enums.DisputeStatusUnderReview {
			resolvedAt := s.now().UTC()
			updates["resolved_at"] = resolvedAt
			dispute.ResolvedAt = &resolvedAt
		}
		if err := repo.Update(ctx, dispute.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update dispute")
		}
		dispute.Status = input.Status

		actor := principal.Actor()
		switch {
		case input.Status == enums.DisputeStatusResolved && input.EscrowAction == enums.DisputeEscrowRelease:
			result.EscrowOutcome, err = s.settle(ctx, tx, contract, enums.EscrowStatusReleased, enums.ContractStatusCompleted, actor)
		case input.Status == enums.DisputeStatusResolved && input.EscrowAction == enums.DisputeEscrowRefund:
			result.EscrowOutcome, err = s.settle(ctx, tx, contract, enums.EscrowStatusRefunded, enums.ContractStatusCancelled, actor)
		case input.Status != enums.DisputeStatusUnderReview:
			err = s.restore(ctx, tx, contract, dispute, actor)
		}
		if err != nil {
			return err
		}

		if err := s.record(ctx, tx, actor, enums.AuditDisputeResolved, dispute, map[string]any{
			"status":          dispute.Status,
			"escrow_action":   input.EscrowAction,
			"escrow_outcome":  result.EscrowOutcome,
			"contract_status": contract.Status,
		}); err != nil {
			return err
		}
		result.Dispute = dispute
		result.ContractStatus = contract.Status
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *service) settle(ctx context.Context, tx *gorm.DB, contract *models.Contract, target enums.EscrowStatus, next enums.ContractStatus, actor *outbox.ActorRef) (escrow.Outcome, error) {
	settled, err := s.escrow.FinalizeForContractTx(ctx, tx, contract.ID, target, actor)
	if err != nil {
		return "", err
	}
	if contract.Status.CanTransitionTo(next) {
		action := enums.AuditContractCompleted
		if next == enums.ContractStatusCancelled {
			action = enums.AuditContractCancelled
		}
		if err := s.contracts.TransitionTx(ctx, tx, contract, next, actor, action); err != nil {
			return "", err
		}
	}
	if settled.Outcome == escrow.OutcomeReleased {
		if err := s.outbox.Emit(ctx, tx, notifications.Requested(enums.NotificationEscrowReleased, contract.ID, contract.FarmerID, actor, map[string]string{
			"amount": settled.Escrow.Amount.StringFixed(2),
		})); err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue notification")
		}
	}
	return settled.Outcome, nil
}

func (s *service) restore(ctx context.Context, tx *gorm.DB, contract *models.Contract, dispute *models.Dispute, actor *outbox.ActorRef) error {
	if contract.Status != enums.ContractStatusDisputed || dispute.PriorContractStatus == nil {
		return nil
	}
	others, err := s.repo.WithTx(tx).CountOpen(ctx, contract.ID, dispute.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count open disputes")
	}
	if others > 0 {
		return nil
	}
	return s.contracts.TransitionTx(ctx, tx, contract, *dispute.PriorContractStatus, actor, "")
}

func (s *service) record(ctx context.Context, tx *gorm.DB, actor *outbox.ActorRef, action enums.AuditAction, dispute *models.Dispute, extra map[string]any) error {
	meta := map[string]any{"contract_id": dispute.ContractID.String()}
	for k, v := range extra {
		meta[k] = v
	}
	if err := s.audit.Record(ctx, tx, audit.Entry{
		Actor:      actor,
		Action:     action,
		EntityType: enums.AggregateDispute,
		EntityID:   dispute.ID,
		Metadata:   meta,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record audit entry")
	}
	return nil
}

func validateResolve(input ResolveInput) error {
	fields := map[string]string{}
	switch input.Status {
	case enums.DisputeStatusUnderReview, enums.DisputeStatusResolved, enums.DisputeStatusRejected:
	default:
		fields["status"] = "must be one of under_review, resolved, rejected"
	}
	switch input.EscrowAction {
	case "", enums.DisputeEscrowNone:
	case enums.DisputeEscrowRelease, enums.DisputeEscrowRefund:
		if input.Status != enums.DisputeStatusResolved {
			fields["escrow_action"] = "only resolved disputes can settle the escrow"
		}
	default:
		fields["escrow_action"] = "must be one of none, release, refund"
	}
	if len(fields) > 0 {
		return pkgerrors.FieldErrors(fields)
	}
	return nil
}

func mapDisputeError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "dispute not found")
	}
	if db.IsLockTimeout(err) {
		return pkgerrors.Wrap(pkgerrors.CodeLockTimeout, err, "dispute is locked by another operation")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load dispute")
}
