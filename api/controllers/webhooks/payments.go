package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/assuredfarming/assured-farming-backend/api/responses"
	"github.com/assuredfarming/assured-farming-backend/api/validators"
	paymentwebhook "github.com/assuredfarming/assured-farming-backend/internal/webhooks/payments"
	pkgerrors "github.com/assuredfarming/assured-farming-backend/pkg/errors"
	"github.com/assuredfarming/assured-farming-backend/pkg/logger"
	"github.com/assuredfarming/assured-farming-backend/pkg/payments"
)

const maxWebhookBody = 64 << 10

// PaymentEventHandler is the idempotent ingestion gate.
type PaymentEventHandler interface {
	Handle(ctx context.Context, event paymentwebhook.Event) (paymentwebhook.Result, error)
	TriggerMock(ctx context.Context, paymentReference, status string) (paymentwebhook.Result, error)
}

type paymentEventRequest struct {
	EventID          string `json:"event_id"`
	PaymentReference string `json:"payment_reference"`
	Status           string `json:"status"`
}

type mockEventRequest struct {
	PaymentReference string `json:"payment_reference" validate:"required"`
	Status           string `json:"status" validate:"required"`
}

// PaymentWebhook ingests gateway status events. When secret is set the raw
// body must carry a matching HMAC in the signature header. Duplicate event
// ids answer 200 with outcome already_processed.
func PaymentWebhook(svc PaymentEventHandler, secret string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}
		if !payments.VerifySignature(secret, payload, r.Header.Get(payments.SignatureHeader)) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"))
			return
		}

		var event paymentEventRequest
		decoder := json.NewDecoder(bytes.NewReader(payload))
		if err := decoder.Decode(&event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload"))
			return
		}

		if logg != nil {
			ctx = logg.WithField(logg.WithEvent(ctx, "payment.webhook", event.EventID), "payment_reference", event.PaymentReference)
		}
		result, err := svc.Handle(ctx, paymentwebhook.Event{
			EventID:          event.EventID,
			PaymentReference: event.PaymentReference,
			Status:           event.Status,
			Raw:              payload,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// MockPaymentEvent lets operators drive an escrow through the same gate
// without a real gateway. It is mounted only when mock payments are enabled.
func MockPaymentEvent(svc PaymentEventHandler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		var payload mockEventRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.TriggerMock(ctx, payload.PaymentReference, payload.Status)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
