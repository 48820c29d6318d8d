package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/assuredfarming/assured-farming-backend/internal/audit"
	"github.com/assuredfarming/assured-farming-backend/internal/contracts"
	"github.com/assuredfarming/assured-farming-backend/internal/cron"
	"github.com/assuredfarming/assured-farming-backend/internal/escrow"
	"github.com/assuredfarming/assured-farming-backend/internal/listings"
	"github.com/assuredfarming/assured-farming-backend/pkg/config"
	"github.com/assuredfarming/assured-farming-backend/pkg/db"
	"github.com/assuredfarming/assured-farming-backend/pkg/instance"
	"github.com/assuredfarming/assured-farming-backend/pkg/logger"
	"github.com/assuredfarming/assured-farming-backend/pkg/metrics"
	"github.com/assuredfarming/assured-farming-backend/pkg/migrate"
	"github.com/assuredfarming/assured-farming-backend/pkg/outbox"
	"github.com/assuredfarming/assured-farming-backend/pkg/payments"
	"github.com/assuredfarming/assured-farming-backend/pkg/redis"
)

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	registry, err := buildRegistry(cfg, logg, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), cfg.Escrow.CronLockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Escrow.CronInterval,
		JobTimeout: cfg.Escrow.CronLockTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"jobs":        registry.Names(),
	})
	if *once {
		ran, err := service.RunOnce(ctx)
		if err != nil {
			logg.Error(ctx, "cron cycle failed", err)
			os.Exit(1)
		}
		logg.Info(logg.WithField(ctx, "ran", ran), "single cron cycle finished")
		return
	}

	metrics.Serve(ctx, cfg.Service.MetricsAddr, prometheus.DefaultGatherer, logg)
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	conn := dbClient.DB()
	outboxRepo := outbox.NewRepository(conn)
	registry := cron.NewRegistry()

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:           logg,
		DB:               dbClient,
		Repository:       outboxRepo,
		DeadLetters:      outbox.NewDLQRepository(conn),
		RetentionDays:    cfg.Outbox.RetentionDays,
		TerminalAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}
	if err := registry.Register(retention); err != nil {
		return nil, err
	}

	if cfg.Escrow.AutoReleaseDisabled {
		logg.Warn(context.Background(), "escrow auto-release disabled")
		return registry, nil
	}

	emitter := outbox.NewService(outboxRepo, logg)
	sink, err := audit.NewOutboxSink(emitter)
	if err != nil {
		return nil, err
	}
	escrowSvc, err := escrow.NewService(escrow.NewRepository(conn), dbClient, sink)
	if err != nil {
		return nil, err
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
		return nil, err
	}
	release, err := cron.NewEscrowReleaseJob(cron.EscrowReleaseJobParams{
		Logger:     logg,
		Candidates: escrowSvc,
		Releaser:   contractSvc,
		Metrics:    metrics.NewEscrowMetrics(prometheus.DefaultRegisterer),
		Grace:      cfg.Escrow.AutoReleaseGrace,
		Batch:      cfg.Escrow.AutoReleaseBatch,
	})
	if err != nil {
		return nil, err
	}
	if err := registry.Register(release); err != nil {
		return nil, err
	}
	return registry, nil
}

// lockName scopes the lease per environment.
func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker:" + env
}
