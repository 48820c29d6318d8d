package shipments

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

// ShipmentContractIndex guards one shipment per contract.
const ShipmentContractIndex = "ux_shipments_contract"

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
}

// EscrowFinalizer releases the escrow backing a contract.
type EscrowFinalizer interface {
	FinalizeForContractTx(ctx context.Context, tx *gorm.DB, contractID uuid.UUID, target enums.EscrowStatus, actor *outbox.ActorRef) (escrow.Result, error)
}

// CreateInput schedules the shipment of a contract's goods.
type CreateInput struct {
	ContractID uuid.UUID
	PickupDate *time.Time
	TrackingID *string
}

// ConfirmResult reports the delivery and the escrow release it triggered.
type ConfirmResult struct {
	Shipment         *models.Shipment `json:"shipment"`
	EscrowOutcome    escrow.Outcome   `json:"escrow_outcome,omitempty"`
	AlreadyDelivered bool             `json:"already_delivered"`
}

type Service interface {
	Create(ctx context.Context, principal auth.Principal, input CreateInput) (*models.Shipment, error)
	ConfirmDelivery(ctx context.Context, principal auth.Principal, shipmentID uuid.UUID, deliveredAt *time.Time) (*ConfirmResult, error)
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
	if params.Repo == nil {
		return nil, fmt.Errorf("shipments repository required")
	}
	if params.Contracts == nil {
		return nil, fmt.Errorf("contract locker required")
	}
	if params.Escrow == nil {
		return nil, fmt.Errorf("escrow finalizer required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit sink required")
	}
	if params.Tx == nil {
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

func (s *service) Create(ctx context.Context, principal auth.Principal, input CreateInput) (*models.Shipment, error) {
	var created *models.Shipment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		contract, err := s.contracts.LockTx(ctx, tx, principal, input.ContractID)
		if err != nil {
			return err
		}
		if !principal.IsAdmin() && principal.UserID != contract.FarmerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the farmer can schedule a shipment")
		}
		if !contract.Status.IsFunded() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "shipments require an accepted or active contract").
				WithDetails(map[string]any{"status": contract.Status})
		}

		shipment := &models.Shipment{
			ID:         uuid.New(),
			ContractID: contract.ID,
			PickupDate: utcPtr(input.PickupDate),
			TrackingID: trimmed(input.TrackingID),
		}
		if err := s.repo.WithTx(tx).Create(ctx, shipment); err != nil {
			if db.IsUniqueViolation(err, ShipmentContractIndex, "shipments.contract_id") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "contract already has a shipment")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create shipment")
		}
		created = shipment
		return s.record(ctx, tx, principal.Actor(), enums.AuditShipmentCreated, shipment, nil)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ConfirmDelivery marks the shipment delivered, releases the escrow and
// completes the contract in one transaction. Confirming twice is a no-op.
func (s *service) ConfirmDelivery(ctx context.Context, principal auth.Principal, shipmentID uuid.UUID, deliveredAt *time.Time) (*ConfirmResult, error) {
	if shipmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipment id required")
	}
	existing, err := s.repo.FindByID(ctx, shipmentID)
	if err != nil {
		return nil, mapShipmentError(err)
	}

	var result ConfirmResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		contract, err := s.contracts.LockTx(ctx, tx, principal, existing.ContractID)
		if err != nil {
			if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "shipment not found")
			}
			return err
		}
		if !principal.IsAdmin() && principal.UserID != contract.BuyerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer can confirm delivery")
		}

		repo := s.repo.WithTx(tx)
		shipment, err := repo.LockByID(ctx, shipmentID)
		if err != nil {
			return mapShipmentError(err)
		}
		if shipment.Delivered {
			result = ConfirmResult{Shipment: shipment, AlreadyDelivered: true}
			return nil
		}
		if !contract.Status.IsFunded() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "delivery cannot be confirmed while the contract is "+contract.Status.String()).
				WithDetails(map[string]any{"status": contract.Status})
		}

		at := s.now().UTC()
		if deliveredAt != nil {
			at = deliveredAt.UTC()
		}
		if err := repo.MarkDelivered(ctx, shipment.ID, at); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark shipment delivered")
		}
		shipment.Delivered = true
		shipment.DeliveryDate = &at

		actor := principal.Actor()
		released, err := s.escrow.FinalizeForContractTx(ctx, tx, contract.ID, enums.EscrowStatusReleased, actor)
		if err != nil {
			return err
		}
		if err := s.contracts.TransitionTx(ctx, tx, contract, enums.ContractStatusCompleted, actor, enums.AuditContractCompleted); err != nil {
			return err
		}
		if err := s.record(ctx, tx, actor, enums.AuditShipmentDelivered, shipment, map[string]any{
			"escrow_outcome": released.Outcome,
		}); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, notifications.Requested(enums.NotificationShipmentDelivered, contract.ID, contract.FarmerID, actor, map[string]string{
			"delivery_date": at.Format("2006-01-02"),
		})); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue notification")
		}
		result = ConfirmResult{Shipment: shipment, EscrowOutcome: released.Outcome}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *service) record(ctx context.Context, tx *gorm.DB, actor *outbox.ActorRef, action enums.AuditAction, shipment *models.Shipment, extra map[string]any) error {
	meta := map[string]any{"contract_id": shipment.ContractID.String()}
	for k, v := range extra {
		meta[k] = v
	}
	if err := s.audit.Record(ctx, tx, audit.Entry{
		Actor:      actor,
		Action:     action,
		EntityType: enums.AggregateShipment,
		EntityID:   shipment.ID,
		Metadata:   meta,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record audit entry")
	}
	return nil
}

func mapShipmentError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "shipment not found")
	}
	if db.IsLockTimeout(err) {
		return pkgerrors.Wrap(pkgerrors.CodeLockTimeout, err, "shipment is locked by another operation")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shipment")
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
