package migrate

import (
	"context"
	"fmt"

	"github.com/assuredfarming/assured-farming-backend/pkg/config"
	"github.com/assuredfarming/assured-farming-backend/pkg/db"
	"github.com/assuredfarming/assured-farming-backend/pkg/logger"
)

type autoMode int

const (
	autoSkip autoMode = iota
	autoSQLiteSchema
	autoPostgres
)

// autoModeFor decides what schema work a service does on boot. SQLite
// always gets its bundled schema; Postgres migrates only in dev with the
// auto-migrate flag on.
func autoModeFor(cfg *config.Config) autoMode {
	switch {
	case cfg.DB.Driver == config.DriverSQLite:
		return autoSQLiteSchema
	case cfg.App.IsDev() && cfg.FeatureFlags.AutoMigrate:
		return autoPostgres
	default:
		return autoSkip
	}
}

// MaybeRunDev applies the schema on boot when autoModeFor allows it.
// Migration files are validated before any of them run.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	switch autoModeFor(cfg) {
	case autoSQLiteSchema:
		logg.Info(ctx, "applying sqlite schema")
		return ApplySQLiteSchema(ctx, client.DB())
	case autoSkip:
		return nil
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "dir": DefaultDir})
	if err := ValidateDir(DefaultDir); err != nil {
		return fmt.Errorf("refusing to auto-migrate: %w", err)
	}
	pool, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	runner, err := NewRunner(pool, DefaultDir, logg)
	if err != nil {
		return err
	}
	if err := runner.Up(ctx); err != nil {
		return fmt.Errorf("running dev migrations: %w", err)
	}
	version, err := runner.Version(ctx)
	if err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "version", version), "postgres migrations applied")
	return nil
}
