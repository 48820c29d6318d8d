package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Payments     PaymentsConfig
	Escrow       EscrowConfig
	AWS          AWSConfig
	Storage      StorageConfig
	Mail         MailConfig
	SMS          SMSConfig
	Tasks        TasksConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"ASSURED_APP_ENV" required:"true"`
	Port         string `envconfig:"ASSURED_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"ASSURED_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ASSURED_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"ASSURED_LOG_FORMAT" default:"json"`

	// CORSOrigins is a comma separated allow-list for browser clients.
	CORSOrigins []string `envconfig:"ASSURED_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"ASSURED_SERVICE_KIND" default:"api"`
	// MetricsAddr exposes /metrics from background workers when set.
	MetricsAddr string `envconfig:"ASSURED_METRICS_ADDR"`
}

type DBConfig struct {
	DSN    string `envconfig:"ASSURED_DB_DSN"`
	Driver string `envconfig:"ASSURED_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ASSURED_DB_HOST"`
	LegacyPort     int    `envconfig:"ASSURED_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ASSURED_DB_USER"`
	LegacyPassword string `envconfig:"ASSURED_DB_PASSWORD"`
	LegacyName     string `envconfig:"ASSURED_DB_NAME"`
	LegacySSLMode  string `envconfig:"ASSURED_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ASSURED_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ASSURED_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ASSURED_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ASSURED_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// LockTimeout bounds how long a transaction waits on a row lock.
	LockTimeout time.Duration `envconfig:"ASSURED_DB_LOCK_TIMEOUT" default:"5s"`
	// SlowQueryThreshold logs statements at warn once they take this long.
	SlowQueryThreshold time.Duration `envconfig:"ASSURED_DB_SLOW_QUERY_THRESHOLD" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ASSURED_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ASSURED_REDIS_ADDR"`
	Password     string        `envconfig:"ASSURED_REDIS_PASSWORD"`
	DB           int           `envconfig:"ASSURED_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ASSURED_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ASSURED_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ASSURED_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ASSURED_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ASSURED_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"ASSURED_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"ASSURED_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"ASSURED_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"ASSURED_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"ASSURED_AUTO_MIGRATE" default:"false"`
	// MockPayments exposes the admin mock webhook trigger.
	MockPayments bool `envconfig:"ASSURED_FEATURE_MOCK_PAYMENTS" default:"true"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"ASSURED_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"ASSURED_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"ASSURED_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"ASSURED_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	NotificationTopic        string `envconfig:"ASSURED_PUBSUB_NOTIFICATION_TOPIC" default:"af-notification-events"`
	NotificationSubscription string `envconfig:"ASSURED_PUBSUB_NOTIFICATION_SUBSCRIPTION" required:"true"`
	DocumentTopic            string `envconfig:"ASSURED_PUBSUB_DOCUMENT_TOPIC" default:"af-document-events"`
	DocumentSubscription     string `envconfig:"ASSURED_PUBSUB_DOCUMENT_SUBSCRIPTION" required:"true"`
	AuditTopic               string `envconfig:"ASSURED_PUBSUB_AUDIT_TOPIC" default:"af-audit-events"`
	AuditSubscription        string `envconfig:"ASSURED_PUBSUB_AUDIT_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"ASSURED_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"ASSURED_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"ASSURED_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int           `envconfig:"ASSURED_OUTBOX_RETENTION_DAYS" default:"30"`
	PublishTimeout time.Duration `envconfig:"ASSURED_OUTBOX_PUBLISH_TIMEOUT" default:"10s"`
}

type PaymentsConfig struct {
	// ChargeTimeout bounds a single gateway charge request.
	ChargeTimeout time.Duration `envconfig:"ASSURED_PAYMENTS_CHARGE_TIMEOUT" default:"5s"`
	// WebhookSecret enables HMAC verification of inbound payment webhooks when set.
	WebhookSecret string `envconfig:"ASSURED_PAYMENTS_WEBHOOK_SECRET"`

	// Per client IP, per window. Zero disables throttling.
	WebhookRateLimit  int           `envconfig:"ASSURED_PAYMENTS_WEBHOOK_RATE_LIMIT" default:"120"`
	WebhookRateWindow time.Duration `envconfig:"ASSURED_PAYMENTS_WEBHOOK_RATE_WINDOW" default:"1m"`
}

type EscrowConfig struct {
	AutoReleaseGrace    time.Duration `envconfig:"ASSURED_ESCROW_AUTO_RELEASE_GRACE" default:"168h"`
	AutoReleaseBatch    int           `envconfig:"ASSURED_ESCROW_AUTO_RELEASE_BATCH" default:"100"`
	CronInterval        time.Duration `envconfig:"ASSURED_CRON_INTERVAL" default:"1h"`
	CronLockTTL         time.Duration `envconfig:"ASSURED_CRON_LOCK_TTL" default:"55m"`
	AutoReleaseDisabled bool          `envconfig:"ASSURED_ESCROW_AUTO_RELEASE_DISABLED" default:"false"`
}

type AWSConfig struct {
	Region          string `envconfig:"ASSURED_AWS_REGION" default:"us-east-1"`
	Endpoint        string `envconfig:"ASSURED_AWS_ENDPOINT"`
	AccessKeyID     string `envconfig:"ASSURED_AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `envconfig:"ASSURED_AWS_SECRET_ACCESS_KEY"`
}

// HasStaticCredentials reports whether explicit keys were configured.
func (a AWSConfig) HasStaticCredentials() bool {
	return a.AccessKeyID != "" && a.SecretAccessKey != ""
}

type StorageConfig struct {
	// Driver selects the document store: s3 or gcs.
	Driver         string `envconfig:"ASSURED_STORAGE_DRIVER" default:"s3"`
	Bucket         string `envconfig:"ASSURED_STORAGE_BUCKET" default:"assured-farming-documents"`
	DocumentPrefix string `envconfig:"ASSURED_STORAGE_DOCUMENT_PREFIX" default:"contracts"`
	UsePathStyle   bool   `envconfig:"ASSURED_STORAGE_USE_PATH_STYLE" default:"false"`
}

type MailConfig struct {
	Driver       string `envconfig:"ASSURED_MAIL_DRIVER" default:"log"`
	From         string `envconfig:"ASSURED_MAIL_FROM" default:"no-reply@assuredfarming.example"`
	SMTPHost     string `envconfig:"ASSURED_SMTP_HOST"`
	SMTPPort     int    `envconfig:"ASSURED_SMTP_PORT" default:"587"`
	SMTPUsername string `envconfig:"ASSURED_SMTP_USERNAME"`
	SMTPPassword string `envconfig:"ASSURED_SMTP_PASSWORD"`
}

type SMSConfig struct {
	Driver   string `envconfig:"ASSURED_SMS_DRIVER" default:"log"`
	SenderID string `envconfig:"ASSURED_SMS_SENDER_ID" default:"AssuredFarm"`
}

type TasksConfig struct {
	MaxRetries          uint64        `envconfig:"ASSURED_TASKS_MAX_RETRIES" default:"3"`
	RetryBackoff        time.Duration `envconfig:"ASSURED_TASKS_RETRY_BACKOFF" default:"2s"`
	MaxDeliveryAttempts int           `envconfig:"ASSURED_TASKS_MAX_DELIVERY_ATTEMPTS" default:"5"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = DriverSQLite
		if db.DSN == "" {
			db.DSN = defaultSQLiteDSN
		}
		return nil
	}
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
