package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/assuredfarming/assured-farming-backend/internal/audit"
	"github.com/assuredfarming/assured-farming-backend/internal/documents"
	"github.com/assuredfarming/assured-farming-backend/internal/notifications"
	"github.com/assuredfarming/assured-farming-backend/internal/users"
	"github.com/assuredfarming/assured-farming-backend/pkg/config"
	"github.com/assuredfarming/assured-farming-backend/pkg/db"
	"github.com/assuredfarming/assured-farming-backend/pkg/instance"
	"github.com/assuredfarming/assured-farming-backend/pkg/logger"
	"github.com/assuredfarming/assured-farming-backend/pkg/mail"
	"github.com/assuredfarming/assured-farming-backend/pkg/metrics"
	"github.com/assuredfarming/assured-farming-backend/pkg/outbox"
	"github.com/assuredfarming/assured-farming-backend/pkg/outbox/idempotency"
	"github.com/assuredfarming/assured-farming-backend/pkg/pubsub"
	"github.com/assuredfarming/assured-farming-backend/pkg/redis"
	"github.com/assuredfarming/assured-farming-backend/pkg/sms"
	"github.com/assuredfarming/assured-farming-backend/pkg/storage"
	"github.com/assuredfarming/assured-farming-backend/pkg/tasks"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
		Instance:    instance.GetID(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}()
	if err := pubsubClient.EnsureSubscriptions(ctx); err != nil {
		logg.Error(ctx, "pubsub subscriptions unavailable", err)
		os.Exit(1)
	}

	storageClient, err := storage.New(ctx, cfg, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap document storage", err)
		os.Exit(1)
	}

	mailer, err := mail.New(ctx, cfg.Mail, cfg.AWS, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap mailer", err)
		os.Exit(1)
	}
	smsSender, err := sms.New(ctx, cfg.SMS, cfg.AWS, dbClient.DB(), logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap sms sender", err)
		os.Exit(1)
	}

	guard, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		logg.Error(ctx, "failed to create idempotency manager", err)
		os.Exit(1)
	}
	policy := tasks.PolicyFromConfig(cfg.Tasks)

	dispatcher, err := notifications.NewDispatcher(users.NewRepository(dbClient.DB()), mailer, smsSender, policy, logg)
	if err != nil {
		logg.Error(ctx, "failed to create notification dispatcher", err)
		os.Exit(1)
	}
	notificationConsumer, err := notifications.NewConsumer(dispatcher, pubsubClient.NotificationSubscription(), guard, cfg.Tasks.MaxDeliveryAttempts, logg)
	if err != nil {
		logg.Error(ctx, "failed to create notification consumer", err)
		os.Exit(1)
	}

	sink, err := audit.NewOutboxSink(outbox.NewService(outbox.NewRepository(dbClient.DB()), logg))
	if err != nil {
		logg.Error(ctx, "failed to create audit sink", err)
		os.Exit(1)
	}
	documentService, err := documents.NewService(documents.ServiceParams{
		Store:    documents.NewRepository(dbClient.DB()),
		Uploader: storageClient,
		Audit:    sink,
		Tx:       dbClient,
		Policy:   policy,
		Prefix:   cfg.Storage.DocumentPrefix,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create document service", err)
		os.Exit(1)
	}
	documentConsumer, err := documents.NewConsumer(documentService, pubsubClient.DocumentSubscription(), guard, cfg.Tasks.MaxDeliveryAttempts, logg)
	if err != nil {
		logg.Error(ctx, "failed to create document consumer", err)
		os.Exit(1)
	}

	auditConsumer, err := audit.NewConsumer(audit.NewRepository(dbClient.DB()), pubsubClient.AuditSubscription(), logg)
	if err != nil {
		logg.Error(ctx, "failed to create audit consumer", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Config:               cfg,
		Logger:               logg,
		DB:                   dbClient,
		Redis:                redisClient,
		PubSub:               pubsubClient,
		Storage:              storageClient,
		NotificationConsumer: notificationConsumer,
		DocumentConsumer:     documentConsumer,
		AuditConsumer:        auditConsumer,
	})
	if err != nil {
		logg.Error(ctx, "failed to create worker service", err)
		os.Exit(1)
	}

	metrics.Serve(ctx, cfg.Service.MetricsAddr, prometheus.DefaultGatherer, logg)
	logg.Info(ctx, "starting worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "worker shutting down gracefully")
}
