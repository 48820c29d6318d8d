package controllers

import (
	"net/http"

	"github.com/assuredfarming/assured-farming-backend/api/middleware"
	"github.com/assuredfarming/assured-farming-backend/api/responses"
	"github.com/assuredfarming/assured-farming-backend/api/validators"
	disputesvc "github.com/assuredfarming/assured-farming-backend/internal/disputes"
	"github.com/assuredfarming/assured-farming-backend/pkg/db/models"
	"github.com/assuredfarming/assured-farming-backend/pkg/enums"
	"github.com/assuredfarming/assured-farming-backend/pkg/logger"
)

type raiseDisputeRequest struct {
	Description string `json:"description" validate:"required,max=4000"`
}

type resolveDisputeRequest struct {
	Status          string `json:"status" validate:"required,oneof=under_review resolved rejected"`
	ResolutionNotes string `json:"resolution_notes,omitempty" validate:"max=4000"`
	EscrowAction    string `json:"escrow_action,omitempty" validate:"omitempty,oneof=none release refund"`
}

type resolveDisputeResponse struct {
	Dispute        *disputeView         `json:"dispute"`
	ContractStatus enums.ContractStatus `json:"contract_status"`
	EscrowOutcome  string               `json:"escrow_outcome,omitempty"`
}

func ListDisputes(svc disputesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		principal, contractID, err := contractRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		disputes, err := svc.List(ctx, principal, contractID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newDisputeViews(disputes))
	}
}

func RaiseDispute(svc disputesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		principal, contractID, err := contractRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload raiseDisputeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		dispute, err := svc.Raise(ctx, principal, disputesvc.RaiseInput{
			ContractID:  contractID,
			Description: payload.Description,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteCreated(w, newDisputeView(dispute))
	}
}

// ResolveDispute is admin-only; settlement of the escrow is optional.
func ResolveDispute(svc disputesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		principal, err := middleware.RequirePrincipal(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		disputeID, err := validators.ParseUUIDParam(r, "disputeId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload resolveDisputeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Resolve(ctx, principal, disputeID, disputesvc.ResolveInput{
			Status:          enums.DisputeStatus(payload.Status),
			ResolutionNotes: payload.ResolutionNotes,
			EscrowAction:    enums.DisputeEscrowAction(payload.EscrowAction),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, resolveDisputeResponse{
			Dispute:        newDisputeView(result.Dispute),
			ContractStatus: result.ContractStatus,
			EscrowOutcome:  string(result.EscrowOutcome),
		})
	}
}

func newDisputeViews(items []models.Dispute) []*disputeView {
	out := make([]*disputeView, 0, len(items))
	for i := range items {
		out = append(out, newDisputeView(&items[i]))
	}
	return out
}
