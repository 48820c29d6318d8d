package paymentwebhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/assuredfarming/assured-farming-backend/internal/audit"
	"github.com/assuredfarming/assured-farming-backend/pkg/db"
	"github.com/assuredfarming/assured-farming-backend/pkg/db/models"
	"github.com/assuredfarming/assured-farming-backend/pkg/enums"
	pkgerrors "github.com/assuredfarming/assured-farming-backend/pkg/errors"
	"github.com/assuredfarming/assured-farming-backend/pkg/logger"
	"github.com/assuredfarming/assured-farming-backend/pkg/outbox"
)

// MetricsSource labels webhook metrics emitted by this gate.
const MetricsSource = "payments"

// MockEventPrefix marks event ids minted by the admin trigger.
const MockEventPrefix = "mockevt_"

// Outcome is the non-error result of ingesting one event.
type Outcome string

const (
	OutcomeProcessed         Outcome = "processed"
	OutcomeAlreadyProcessed  Outcome = "already_processed"
	OutcomeAlreadyFinalized  Outcome = "already_finalized"
	OutcomeIgnoredTransition Outcome = "ignored_transition"
)

// Event is an inbound payment status change.
type Event struct {
	EventID          string `json:"event_id"`
	PaymentReference string `json:"payment_reference"`
	Status           string `json:"status"`
	// Raw is the body as the gateway sent it. It is stored verbatim when set.
	Raw json.RawMessage `json:"-"`
}

// Result describes what ingesting an event did.
type Result struct {
	Outcome        Outcome            `json:"outcome"`
	EventID        string             `json:"event_id"`
	EscrowID       *uuid.UUID         `json:"escrow_id,omitempty"`
	PreviousStatus enums.EscrowStatus `json:"previous_status,omitempty"`
	Status         enums.EscrowStatus `json:"status,omitempty"`
}

// EscrowLedger is the slice of the escrow state machine the gate drives.
type EscrowLedger interface {
	LockByReferenceTx(ctx context.Context, tx *gorm.DB, reference string) (*models.EscrowTransaction, error)
	ApplyStatusTx(ctx context.Context, tx *gorm.DB, escrow *models.EscrowTransaction, target enums.EscrowStatus, actor *outbox.ActorRef, metadata map[string]any) (enums.EscrowStatus, error)
}

// EventLedger records which event ids have been claimed.
type EventLedger interface {
	Exists(ctx context.Context, eventID string) (bool, error)
	Claim(ctx context.Context, tx *gorm.DB, eventID string, payload json.RawMessage) (*models.WebhookEvent, error)
}

type outcomeRecorder interface {
	IncOutcome(source, outcome string)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Events            EventLedger
	Escrow            EscrowLedger
	Audit             audit.Sink
	TransactionRunner txRunner
	Metrics           outcomeRecorder
	Logger            *logger.Logger
}

// Service is the idempotent webhook ingestion gate.
type Service struct {
	events   EventLedger
	escrow   EscrowLedger
	audit    audit.Sink
	txRunner txRunner
	metrics  outcomeRecorder
	logg     *logger.Logger
}

var errAlreadyClaimed = errors.New("webhook event already claimed")

func NewService(params ServiceParams) (*Service, error) {
	if params.Events == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook event ledger required")
	}
	if params.Escrow == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "escrow ledger required")
	}
	if params.Audit == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "audit sink required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	return &Service{
		events:   params.Events,
		escrow:   params.Escrow,
		audit:    params.Audit,
		txRunner: params.TransactionRunner,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

// Handle applies event at most once. The status is validated before the
// event id is claimed, so a malformed event can be corrected and resent.
// Transitions that would move an escrow backwards are recorded but ignored.
func (s *Service) Handle(ctx context.Context, event Event) (Result, error) {
	result, err := s.handle(ctx, event)
	if err != nil {
		s.observe("error")
		return Result{}, err
	}
	s.observe(string(result.Outcome))
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"event_id":          result.EventID,
			"payment_reference": event.PaymentReference,
			"outcome":           result.Outcome,
		})
		s.logg.Info(logCtx, "payment webhook handled")
	}
	return result, nil
}

func (s *Service) handle(ctx context.Context, event Event) (Result, error) {
	event.EventID = strings.TrimSpace(event.EventID)
	event.PaymentReference = strings.TrimSpace(event.PaymentReference)
	fields := map[string]string{}
	if event.EventID == "" {
		fields["event_id"] = "required"
	}
	if event.PaymentReference == "" {
		fields["payment_reference"] = "required"
	}
	if len(fields) > 0 {
		return Result{}, pkgerrors.FieldErrors(fields)
	}

	seen, err := s.events.Exists(ctx, event.EventID)
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check webhook event")
	}
	if seen {
		return Result{Outcome: OutcomeAlreadyProcessed, EventID: event.EventID}, nil
	}

	target, err := enums.ParseEscrowStatus(event.Status)
	if err != nil {
		return Result{}, pkgerrors.FieldErrors(map[string]string{
			"status": fmt.Sprintf("must be one of pending, held, released, refunded (got %q)", event.Status),
		})
	}

	payload := event.Raw
	if len(payload) == 0 {
		payload, err = json.Marshal(event)
		if err != nil {
			return Result{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode webhook payload")
		}
	}

	result := Result{EventID: event.EventID}
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		row, err := s.events.Claim(ctx, tx, event.EventID, payload)
		if err != nil {
			if db.IsUniqueViolation(err, EventIDConstraint, "webhook_events.event_id") {
				return errAlreadyClaimed
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim webhook event")
		}

		escrow, err := s.escrow.LockByReferenceTx(ctx, tx, event.PaymentReference)
		if err != nil {
			return err
		}
		escrowID := escrow.ID
		result.EscrowID = &escrowID
		result.PreviousStatus = escrow.Status
		result.Status = escrow.Status

		switch {
		case escrow.Status.IsTerminal():
			result.Outcome = OutcomeAlreadyFinalized
		case !escrow.Status.CanTransitionTo(target):
			result.Outcome = OutcomeIgnoredTransition
		default:
			if _, err := s.escrow.ApplyStatusTx(ctx, tx, escrow, target, nil, map[string]any{
				"event_id": event.EventID,
				"source":   MetricsSource,
			}); err != nil {
				return err
			}
			result.Outcome = OutcomeProcessed
			result.Status = target
		}

		return s.audit.Record(ctx, tx, audit.Entry{
			Action:     enums.AuditWebhookProcessed,
			EntityType: enums.AggregateWebhookEvent,
			EntityID:   row.ID,
			Metadata: map[string]any{
				"event_id":          event.EventID,
				"payment_reference": event.PaymentReference,
				"requested_status":  target,
				"outcome":           result.Outcome,
				"escrow_id":         escrowID.String(),
			},
		})
	})
	if errors.Is(err, errAlreadyClaimed) {
		return Result{Outcome: OutcomeAlreadyProcessed, EventID: event.EventID}, nil
	}
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// TriggerMock runs a synthetic gateway event through the same gate.
func (s *Service) TriggerMock(ctx context.Context, paymentReference, status string) (Result, error) {
	return s.Handle(ctx, Event{
		EventID:          MockEventPrefix + strings.ReplaceAll(uuid.NewString(), "-", ""),
		PaymentReference: paymentReference,
		Status:           status,
	})
}

func (s *Service) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.IncOutcome(MetricsSource, outcome)
	}
}
