package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/assuredfarming/assured-farming-backend/api/routes"
	"github.com/assuredfarming/assured-farming-backend/internal/audit"
	"github.com/assuredfarming/assured-farming-backend/internal/contracts"
	"github.com/assuredfarming/assured-farming-backend/internal/disputes"
	"github.com/assuredfarming/assured-farming-backend/internal/escrow"
	"github.com/assuredfarming/assured-farming-backend/internal/listings"
	"github.com/assuredfarming/assured-farming-backend/internal/shipments"
	paymentwebhook "github.com/assuredfarming/assured-farming-backend/internal/webhooks/payments"
	"github.com/assuredfarming/assured-farming-backend/pkg/config"
	"github.com/assuredfarming/assured-farming-backend/pkg/db"
	"github.com/assuredfarming/assured-farming-backend/pkg/instance"
	"github.com/assuredfarming/assured-farming-backend/pkg/logger"
	"github.com/assuredfarming/assured-farming-backend/pkg/metrics"
	"github.com/assuredfarming/assured-farming-backend/pkg/migrate"
	"github.com/assuredfarming/assured-farming-backend/pkg/outbox"
	"github.com/assuredfarming/assured-farming-backend/pkg/payments"
	"github.com/assuredfarming/assured-farming-backend/pkg/redis"
	"github.com/assuredfarming/assured-farming-backend/pkg/storage"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
		Instance:    instance.GetID(),
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	storageClient, err := storage.New(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap document storage", err)
		os.Exit(1)
	}

	deps, err := buildDependencies(cfg, logg, dbClient, prometheus.DefaultRegisterer)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}
	deps.DB = dbClient
	deps.Redis = redisClient
	deps.Storage = storageClient
	deps.Metrics = promhttp.Handler()

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-sigCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}()

	logg.Info(ctx, "starting api server")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server stopped")
}

func buildDependencies(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, reg prometheus.Registerer) (routes.Dependencies, error) {
	conn := dbClient.DB()
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	sink, err := audit.NewOutboxSink(emitter)
	if err != nil {
		return routes.Dependencies{}, err
	}
	escrowSvc, err := escrow.NewService(escrow.NewRepository(conn), dbClient, sink)
	if err != nil {
		return routes.Dependencies{}, err
	}
	contractSvc, err := contracts.NewService(contracts.Deps{
		Repo:          contracts.NewRepository(conn),
		Listings:      listings.NewRepository(conn),
		Escrow:        escrowSvc,
		Gateway:       payments.NewMockGateway(),
		Outbox:        emitter,
		Audit:         sink,
		Tx:            dbClient,
		Logger:        logg,
		ChargeTimeout: cfg.Payments.ChargeTimeout,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}
	shipmentSvc, err := shipments.NewService(shipments.ServiceParams{
		Repo:      shipments.NewRepository(conn),
		Contracts: contractSvc,
		Escrow:    escrowSvc,
		Outbox:    emitter,
		Audit:     sink,
		Tx:        dbClient,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}
	disputeSvc, err := disputes.NewService(disputes.ServiceParams{
		Repo:      disputes.NewRepository(conn),
		Contracts: contractSvc,
		Escrow:    escrowSvc,
		Outbox:    emitter,
		Audit:     sink,
		Tx:        dbClient,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}
	gate, err := paymentwebhook.NewService(paymentwebhook.ServiceParams{
		Events:            paymentwebhook.NewRepository(conn),
		Escrow:            escrowSvc,
		Audit:             sink,
		TransactionRunner: dbClient,
		Metrics:           metrics.NewWebhookMetrics(reg),
		Logger:            logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	return routes.Dependencies{
		Contracts: contractSvc,
		Shipments: shipmentSvc,
		Disputes:  disputeSvc,
		Escrow:    escrowSvc,
		Payments:  gate,
	}, nil
}
