package controllers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/assuredfarming/assured-farming-backend/api/middleware"
	"github.com/assuredfarming/assured-farming-backend/api/responses"
	"github.com/assuredfarming/assured-farming-backend/api/validators"
	contractsvc "github.com/assuredfarming/assured-farming-backend/internal/contracts"
	"github.com/assuredfarming/assured-farming-backend/pkg/auth"
	"github.com/assuredfarming/assured-farming-backend/pkg/enums"
	pkgerrors "github.com/assuredfarming/assured-farming-backend/pkg/errors"
	"github.com/assuredfarming/assured-farming-backend/pkg/logger"
)

const maxProposalMessage = 2000

type createContractRequest struct {
	ListingID      uuid.UUID        `json:"listing_id" validate:"required"`
	AgreedQuantity *decimal.Decimal `json:"agreed_quantity" validate:"required,amount=3"`
	PricePerUnit   *decimal.Decimal `json:"price_per_unit" validate:"required,amount"`
	StartDate      *time.Time       `json:"start_date,omitempty"`
	EndDate        *time.Time       `json:"end_date,omitempty"`

	// Read-only on the contract; accepted so older clients keep working.
	Status     json.RawMessage `json:"status,omitempty"`
	TotalValue json.RawMessage `json:"total_value,omitempty"`
}

type proposeRequest struct {
	PricePerUnit *decimal.Decimal `json:"price_per_unit" validate:"required,amount"`
	Message      string           `json:"message,omitempty"`
}

type contractPage struct {
	Items  []*contractView `json:"items"`
	Cursor string          `json:"cursor,omitempty"`
}

type acceptResponse struct {
	Contract *contractView `json:"contract"`
	Proposal *proposalView `json:"proposal"`
	Escrow   *escrowView   `json:"escrow"`
}

// CreateContract opens a draft contract for the calling buyer. Status and
// total value are always assigned by the server.
func CreateContract(svc contractsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		principal, err := middleware.RequirePrincipal(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload createContractRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		contract, err := svc.Create(ctx, principal, contractsvc.CreateInput{
			ListingID:    payload.ListingID,
			Quantity:     *payload.AgreedQuantity,
			PricePerUnit: *payload.PricePerUnit,
			StartDate:    payload.StartDate,
			EndDate:      payload.EndDate,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteCreated(w, newContractView(contract))
	}
}

func GetContract(svc contractsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		principal, contractID, err := contractRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		contract, err := svc.Get(ctx, principal, contractID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newContractView(contract))
	}
}

// ListContracts pages through the caller's contracts, newest first.
func ListContracts(svc contractsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		principal, err := middleware.RequirePrincipal(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		limit, err := validators.ParseIntQuery(r, "limit")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		query := r.URL.Query()
		params := contractsvc.ListParams{
			Status: enums.ContractStatus(strings.ToLower(strings.TrimSpace(query.Get("status")))),
		}
		params.Limit = limit
		params.Cursor = strings.TrimSpace(query.Get("cursor"))

		result, err := svc.List(ctx, principal, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		page := contractPage{Items: make([]*contractView, len(result.Items)), Cursor: result.Cursor}
		for i := range result.Items {
			page.Items[i] = newContractView(&result.Items[i])
		}
		responses.WriteSuccess(w, page)
	}
}

func ListProposals(svc contractsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		principal, contractID, err := contractRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		proposals, err := svc.ListProposals(ctx, principal, contractID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newProposalViews(proposals))
	}
}

func CreateProposal(svc contractsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		principal, contractID, err := contractRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload proposeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		proposal, err := svc.Propose(ctx, principal, contractsvc.ProposeInput{
			ContractID:   contractID,
			PricePerUnit: *payload.PricePerUnit,
			Message:      validators.SanitizeString(payload.Message, maxProposalMessage),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteCreated(w, newProposalView(proposal))
	}
}

// AcceptProposal applies a proposal, charges the buyer and opens the held
// escrow in one step.
func AcceptProposal(svc contractsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		principal, contractID, err := contractRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		proposalID, err := validators.ParseUUIDParam(r, "proposalId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.AcceptProposal(ctx, principal, contractID, proposalID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, acceptResponse{
			Contract: newContractView(result.Contract),
			Proposal: newProposalView(result.Proposal),
			Escrow:   newEscrowView(result.Escrow),
		})
	}
}

func SignContract(svc contractsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		principal, contractID, err := contractRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		contract, err := svc.Sign(ctx, principal, contractID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newContractView(contract))
	}
}

func GetContractEscrow(svc contractsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		principal, contractID, err := contractRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		escrow, err := svc.GetEscrow(ctx, principal, contractID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if escrow == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "contract has no escrow"))
			return
		}
		responses.WriteSuccess(w, newEscrowView(escrow))
	}
}

func contractRequest(r *http.Request) (auth.Principal, uuid.UUID, error) {
	principal, err := middleware.RequirePrincipal(r)
	if err != nil {
		return principal, uuid.Nil, err
	}
	contractID, err := validators.ParseUUIDParam(r, "contractId")
	if err != nil {
		return principal, uuid.Nil, err
	}
	return principal, contractID, nil
}
