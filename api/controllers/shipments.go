package controllers

import (
	"net/http"
	"time"

	"github.com/assuredfarming/assured-farming-backend/api/middleware"
	"github.com/assuredfarming/assured-farming-backend/api/responses"
	"github.com/assuredfarming/assured-farming-backend/api/validators"
	shipmentsvc "github.com/assuredfarming/assured-farming-backend/internal/shipments"
	"github.com/assuredfarming/assured-farming-backend/pkg/logger"
)

const maxTrackingID = 128

type createShipmentRequest struct {
	PickupDate *time.Time `json:"pickup_date,omitempty"`
	TrackingID *string    `json:"tracking_id,omitempty" validate:"omitempty,max=128"`
}

type confirmDeliveryRequest struct {
	DeliveryDate *time.Time `json:"delivery_date,omitempty"`
}

type confirmDeliveryResponse struct {
	Shipment         *shipmentView `json:"shipment"`
	EscrowOutcome    string        `json:"escrow_outcome,omitempty"`
	AlreadyDelivered bool          `json:"already_delivered"`
}

func CreateShipment(svc shipmentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		principal, contractID, err := contractRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload createShipmentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		shipment, err := svc.Create(ctx, principal, shipmentsvc.CreateInput{
			ContractID: contractID,
			PickupDate: payload.PickupDate,
			TrackingID: validators.SanitizeOptional(payload.TrackingID, maxTrackingID),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteCreated(w, newShipmentView(shipment))
	}
}

// ConfirmDelivery accepts an empty body; the delivery date defaults to now.
func ConfirmDelivery(svc shipmentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		principal, err := middleware.RequirePrincipal(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		shipmentID, err := validators.ParseUUIDParam(r, "shipmentId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload confirmDeliveryRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}

		result, err := svc.ConfirmDelivery(ctx, principal, shipmentID, payload.DeliveryDate)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, confirmDeliveryResponse{
			Shipment:         newShipmentView(result.Shipment),
			EscrowOutcome:    string(result.EscrowOutcome),
			AlreadyDelivered: result.AlreadyDelivered,
		})
	}
}
