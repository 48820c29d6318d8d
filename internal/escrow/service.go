package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/assuredfarming/assured-farming-backend/internal/audit"
	"github.com/assuredfarming/assured-farming-backend/pkg/db"
	"github.com/assuredfarming/assured-farming-backend/pkg/db/models"
	"github.com/assuredfarming/assured-farming-backend/pkg/enums"
	pkgerrors "github.com/assuredfarming/assured-farming-backend/pkg/errors"
	"github.com/assuredfarming/assured-farming-backend/pkg/outbox"
)

// Outcome names the result of a finalize request.
type Outcome string

const (
	OutcomeReleased         Outcome = "released"
	OutcomeRefunded         Outcome = "refunded"
	OutcomeAlreadyFinalized Outcome = "already_finalized"
	OutcomeNotFound         Outcome = "not_found"
	// OutcomeSkipped is reported when a candidate stopped qualifying
	// between selection and lock.
	OutcomeSkipped Outcome = "skipped"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Result is returned by finalize operations.
type Result struct {
	Outcome Outcome                   `json:"outcome"`
	Escrow  *models.EscrowTransaction `json:"escrow,omitempty"`
}

// Service is the escrow state machine. Every mutation locks the escrow row.
type Service struct {
	repo  Repository
	tx    txRunner
	audit audit.Sink
	now   func() time.Time
}

func NewService(repo Repository, tx txRunner, sink audit.Sink) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("escrow repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if sink == nil {
		return nil, fmt.Errorf("audit sink required")
	}
	return &Service{repo: repo, tx: tx, audit: sink, now: time.Now}, nil
}

// Release moves the escrow to released in its own transaction.
func (s *Service) Release(ctx context.Context, escrowID uuid.UUID, actor *outbox.ActorRef) (Result, error) {
	return s.finalizeByID(ctx, escrowID, enums.EscrowStatusReleased, actor)
}

// Refund moves the escrow to refunded in its own transaction.
func (s *Service) Refund(ctx context.Context, escrowID uuid.UUID, actor *outbox.ActorRef) (Result, error) {
	return s.finalizeByID(ctx, escrowID, enums.EscrowStatusRefunded, actor)
}

func (s *Service) finalizeByID(ctx context.Context, escrowID uuid.UUID, target enums.EscrowStatus, actor *outbox.ActorRef) (Result, error) {
	if escrowID == uuid.Nil {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "escrow id required")
	}
	var result Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		escrow, err := s.repo.WithTx(tx).LockByID(ctx, escrowID)
		if err != nil {
			return mapLoadError(err)
		}
		result, err = s.finalize(ctx, tx, escrow, target, actor)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// OpenHeldTx creates the escrow funding a freshly accepted contract.
func (s *Service) OpenHeldTx(ctx context.Context, tx *gorm.DB, contractID uuid.UUID, amount decimal.Decimal, reference string, actor *outbox.ActorRef) (*models.EscrowTransaction, error) {
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "escrow amount must be positive")
	}
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
	}
	escrow := &models.EscrowTransaction{
		ID:               uuid.New(),
		ContractID:       contractID,
		Amount:           amount,
		Status:           enums.EscrowStatusHeld,
		PaymentReference: reference,
	}
	if err := s.repo.WithTx(tx).Create(ctx, escrow); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "escrow already exists for contract")
		}
		return nil, wrapWriteError(err, "create escrow")
	}
	if err := s.audit.Record(ctx, tx, audit.Entry{
		Actor:      actor,
		Action:     enums.AuditEscrowCreated,
		EntityType: enums.AggregateEscrow,
		EntityID:   escrow.ID,
		Metadata: map[string]any{
			"contract_id": contractID.String(),
			"amount":      amount.StringFixed(2),
			"status":      escrow.Status,
		},
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record escrow audit")
	}
	return escrow, nil
}

// FinalizeForContractTx locks the contract's escrow and finalizes it inside
// the caller's transaction. A contract without an escrow yields OutcomeNotFound.
func (s *Service) FinalizeForContractTx(ctx context.Context, tx *gorm.DB, contractID uuid.UUID, target enums.EscrowStatus, actor *outbox.ActorRef) (Result, error) {
	escrow, err := s.repo.WithTx(tx).LockByContract(ctx, contractID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Result{Outcome: OutcomeNotFound}, nil
		}
		return Result{}, mapLoadError(err)
	}
	return s.finalize(ctx, tx, escrow, target, actor)
}

func (s *Service) finalize(ctx context.Context, tx *gorm.DB, escrow *models.EscrowTransaction, target enums.EscrowStatus, actor *outbox.ActorRef) (Result, error) {
	if escrow.Status.IsTerminal() {
		return Result{Outcome: OutcomeAlreadyFinalized, Escrow: escrow}, nil
	}
	if !escrow.Status.CanTransitionTo(target) {
		return Result{}, pkgerrors.New(pkgerrors.CodeStateConflict, "escrow cannot move to "+string(target))
	}
	if _, err := s.ApplyStatusTx(ctx, tx, escrow, target, actor, nil); err != nil {
		return Result{}, err
	}

	outcome := OutcomeReleased
	if target == enums.EscrowStatusRefunded {
		outcome = OutcomeRefunded
	}
	return Result{Outcome: outcome, Escrow: escrow}, nil
}

// LockByReferenceTx locks the escrow correlated with a gateway reference.
func (s *Service) LockByReferenceTx(ctx context.Context, tx *gorm.DB, reference string) (*models.EscrowTransaction, error) {
	escrow, err := s.repo.WithTx(tx).LockByPaymentReference(ctx, reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no escrow for payment reference")
		}
		return nil, mapLoadError(err)
	}
	return escrow, nil
}

// ApplyStatusTx writes the status onto an already locked escrow and records
// the change. It does not judge legality; callers gate transitions.
func (s *Service) ApplyStatusTx(ctx context.Context, tx *gorm.DB, escrow *models.EscrowTransaction, target enums.EscrowStatus, actor *outbox.ActorRef, metadata map[string]any) (enums.EscrowStatus, error) {
	previous := escrow.Status
	if err := s.repo.WithTx(tx).UpdateStatus(ctx, escrow.ID, target); err != nil {
		return previous, wrapWriteError(err, "update escrow status")
	}
	escrow.Status = target
	escrow.UpdatedAt = s.now().UTC()

	meta := map[string]any{
		"contract_id": escrow.ContractID.String(),
		"from":        previous,
		"to":          target,
	}
	for k, v := range metadata {
		meta[k] = v
	}
	if err := s.audit.Record(ctx, tx, audit.Entry{
		Actor:      actor,
		Action:     enums.AuditEscrowStatusChanged,
		EntityType: enums.AggregateEscrow,
		EntityID:   escrow.ID,
		Metadata:   meta,
	}); err != nil {
		return previous, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record escrow audit")
	}
	return previous, nil
}

// AutoReleaseCandidates lists contracts whose held escrow is due for release.
func (s *Service) AutoReleaseCandidates(ctx context.Context, endedBefore time.Time, limit int) ([]uuid.UUID, error) {
	ids, err := s.repo.ListAutoReleaseCandidates(ctx, endedBefore, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list auto-release candidates")
	}
	return ids, nil
}

// GetForContract returns the escrow backing a contract.
func (s *Service) GetForContract(ctx context.Context, contractID uuid.UUID) (*models.EscrowTransaction, error) {
	escrow, err := s.repo.FindByContract(ctx, contractID)
	if err != nil {
		return nil, mapLoadError(err)
	}
	return escrow, nil
}

func mapLoadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "escrow not found")
	}
	if db.IsLockTimeout(err) {
		return pkgerrors.Wrap(pkgerrors.CodeLockTimeout, err, "escrow is locked by another operation")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load escrow")
}

func wrapWriteError(err error, msg string) error {
	if db.IsLockTimeout(err) {
		return pkgerrors.Wrap(pkgerrors.CodeLockTimeout, err, msg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
