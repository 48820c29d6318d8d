package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/assuredfarming/assured-farming-backend/api/controllers"
	webhookcontrollers "github.com/assuredfarming/assured-farming-backend/api/controllers/webhooks"
	"github.com/assuredfarming/assured-farming-backend/api/middleware"
	contractsvc "github.com/assuredfarming/assured-farming-backend/internal/contracts"
	disputesvc "github.com/assuredfarming/assured-farming-backend/internal/disputes"
	shipmentsvc "github.com/assuredfarming/assured-farming-backend/internal/shipments"
	"github.com/assuredfarming/assured-farming-backend/pkg/config"
	"github.com/assuredfarming/assured-farming-backend/pkg/enums"
	"github.com/assuredfarming/assured-farming-backend/pkg/logger"
	pkgredis "github.com/assuredfarming/assured-farming-backend/pkg/redis"
)

// RedisStore is what the HTTP layer needs from Redis: replay records,
// rate-limit counters and a health check.
type RedisStore interface {
	pkgredis.ReplayStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
	Ping(ctx context.Context) error
}

// Dependencies are the collaborators mounted by NewRouter. Pingers left nil
// are skipped by the readiness check.
type Dependencies struct {
	DB      controllers.Pinger
	Redis   RedisStore
	Storage controllers.Pinger
	Metrics http.Handler

	Contracts contractsvc.Service
	Shipments shipmentsvc.Service
	Disputes  disputesvc.Service
	Escrow    controllers.EscrowAdmin
	Payments  webhookcontrollers.PaymentEventHandler
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	metricsHandler := deps.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readinessChecks(deps), logg))
	})

	webhookPolicy := middleware.NewRateLimitPolicy("payments-webhook", cfg.Payments.WebhookRateWindow, cfg.Payments.WebhookRateLimit)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/webhooks", func(r chi.Router) {
			r.Use(middleware.RateLimit(webhookPolicy, deps.Redis, logg))
			r.Post("/payments", webhookcontrollers.PaymentWebhook(deps.Payments, cfg.Payments.WebhookSecret, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.Idempotency(deps.Redis, logg))

			r.With(capability(enums.CapContractsCreate, logg)).Post("/contracts", controllers.CreateContract(deps.Contracts, logg))
			r.With(capability(enums.CapContractsRead, logg)).Get("/contracts", controllers.ListContracts(deps.Contracts, logg))

			r.Route("/contracts/{contractId}", func(r chi.Router) {
				r.With(capability(enums.CapContractsRead, logg)).Get("/", controllers.GetContract(deps.Contracts, logg))
				r.With(capability(enums.CapContractsRead, logg)).Get("/escrow", controllers.GetContractEscrow(deps.Contracts, logg))
				r.With(capability(enums.CapContractsRead, logg)).Get("/proposals", controllers.ListProposals(deps.Contracts, logg))
				r.With(capability(enums.CapProposalsCreate, logg)).Post("/proposals", controllers.CreateProposal(deps.Contracts, logg))
				r.With(capability(enums.CapProposalsAccept, logg)).Post("/proposals/{proposalId}/accept", controllers.AcceptProposal(deps.Contracts, logg))
				r.With(capability(enums.CapContractsSign, logg)).Post("/sign", controllers.SignContract(deps.Contracts, logg))
				r.With(capability(enums.CapShipmentsCreate, logg)).Post("/shipment", controllers.CreateShipment(deps.Shipments, logg))
				r.With(capability(enums.CapContractsRead, logg)).Get("/disputes", controllers.ListDisputes(deps.Disputes, logg))
				r.With(capability(enums.CapDisputesRaise, logg)).Post("/disputes", controllers.RaiseDispute(deps.Disputes, logg))
			})

			r.With(capability(enums.CapShipmentsConfirm, logg)).Post("/shipments/{shipmentId}/confirm-delivery", controllers.ConfirmDelivery(deps.Shipments, logg))

			r.Route("/admin", func(r chi.Router) {
				r.With(capability(enums.CapDisputesResolve, logg)).Post("/disputes/{disputeId}/resolve", controllers.ResolveDispute(deps.Disputes, logg))
				r.With(capability(enums.CapEscrowManage, logg)).Post("/escrows/{escrowId}/release", controllers.AdminReleaseEscrow(deps.Escrow, logg))
				r.With(capability(enums.CapEscrowManage, logg)).Post("/escrows/{escrowId}/refund", controllers.AdminRefundEscrow(deps.Escrow, logg))
				if cfg.FeatureFlags.MockPayments {
					r.With(capability(enums.CapPaymentsMock, logg)).Post("/payments/mock-events", webhookcontrollers.MockPaymentEvent(deps.Payments, logg))
				}
			})
		})
	})

	return r
}

func capability(c enums.Capability, logg *logger.Logger) func(http.Handler) http.Handler {
	return middleware.RequireCapability(c, logg)
}

func readinessChecks(deps Dependencies) map[string]controllers.Pinger {
	checks := map[string]controllers.Pinger{}
	if deps.DB != nil {
		checks["database"] = deps.DB
	}
	if deps.Redis != nil {
		checks["redis"] = deps.Redis
	}
	if deps.Storage != nil {
		checks["storage"] = deps.Storage
	}
	return checks
}
