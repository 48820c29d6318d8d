package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/assuredfarming/assured-farming-backend/api/middleware"
	"github.com/assuredfarming/assured-farming-backend/api/responses"
	"github.com/assuredfarming/assured-farming-backend/api/validators"
	"github.com/assuredfarming/assured-farming-backend/internal/escrow"
	pkgerrors "github.com/assuredfarming/assured-farming-backend/pkg/errors"
	"github.com/assuredfarming/assured-farming-backend/pkg/logger"
	"github.com/assuredfarming/assured-farming-backend/pkg/outbox"
)

// EscrowAdmin is the slice of the escrow state machine exposed to operators.
type EscrowAdmin interface {
	Release(ctx context.Context, escrowID uuid.UUID, actor *outbox.ActorRef) (escrow.Result, error)
	Refund(ctx context.Context, escrowID uuid.UUID, actor *outbox.ActorRef) (escrow.Result, error)
}

type escrowActionResponse struct {
	Outcome escrow.Outcome `json:"outcome"`
	Escrow  *escrowView    `json:"escrow,omitempty"`
}

// AdminReleaseEscrow releases funds to the farmer. Releasing a finalized
// escrow reports already_finalized instead of failing.
func AdminReleaseEscrow(svc EscrowAdmin, logg *logger.Logger) http.HandlerFunc {
	return escrowAction(svc, EscrowAdmin.Release, logg)
}

func AdminRefundEscrow(svc EscrowAdmin, logg *logger.Logger) http.HandlerFunc {
	return escrowAction(svc, EscrowAdmin.Refund, logg)
}

type escrowApply func(EscrowAdmin, context.Context, uuid.UUID, *outbox.ActorRef) (escrow.Result, error)

func escrowAction(svc EscrowAdmin, apply escrowApply, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}
		principal, err := middleware.RequirePrincipal(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		escrowID, err := validators.ParseUUIDParam(r, "escrowId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := apply(svc, ctx, escrowID, principal.Actor())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, escrowActionResponse{Outcome: result.Outcome, Escrow: newEscrowView(result.Escrow)})
	}
}
