package config

const (
	EnvPrefix = "ASSURED"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres   = "postgres"
	DriverSQLite     = "sqlite"
	defaultSQLiteDSN = "file:assured.db?cache=shared&_busy_timeout=5000"

	EnvAppEnv   = "ASSURED_APP_ENV"
	EnvPort     = "ASSURED_APP_PORT"
	EnvLogLevel = "ASSURED_LOG_LEVEL"

	EnvDBDSN  = "ASSURED_DB_DSN"
	EnvDBHost = "ASSURED_DB_HOST"
	EnvDBUser = "ASSURED_DB_USER"
	EnvDBName = "ASSURED_DB_NAME"

	EnvDBLockTimeout = "ASSURED_DB_LOCK_TIMEOUT"
	EnvUseSQLite     = "ASSURED_USE_SQLITE"

	EnvRedisURL = "ASSURED_REDIS_URL"

	EnvJWTSecret = "ASSURED_JWT_SECRET"
	EnvJWTIssuer = "ASSURED_JWT_ISSUER"

	EnvGCPProjectID = "ASSURED_GCP_PROJECT_ID"

	EnvPubSubNotificationSub = "ASSURED_PUBSUB_NOTIFICATION_SUBSCRIPTION"
	EnvPubSubDocumentSub     = "ASSURED_PUBSUB_DOCUMENT_SUBSCRIPTION"
	EnvPubSubAuditSub        = "ASSURED_PUBSUB_AUDIT_SUBSCRIPTION"
	EnvPubSubAuditTopic      = "ASSURED_PUBSUB_AUDIT_TOPIC"

	EnvPaymentsWebhookSecret = "ASSURED_PAYMENTS_WEBHOOK_SECRET"
	EnvEscrowGrace           = "ASSURED_ESCROW_AUTO_RELEASE_GRACE"
	EnvMailDriver            = "ASSURED_MAIL_DRIVER"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
