package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/assuredfarming/assured-farming-backend/pkg/config"
	"github.com/assuredfarming/assured-farming-backend/pkg/logger"
	"github.com/assuredfarming/assured-farming-backend/pkg/storage/gcs"
	"github.com/assuredfarming/assured-farming-backend/pkg/storage/s3"
)

const (
	DriverS3  = "s3"
	DriverGCS = "gcs"
)

// Store holds generated contract documents.
type Store interface {
	Upload(ctx context.Context, key, contentType string, body []byte) (string, error)
	Ping(ctx context.Context) error
}

// New builds the document store selected by cfg.Storage.Driver.
func New(ctx context.Context, cfg *config.Config, logg *logger.Logger) (Store, error) {
	switch normalizeDriver(cfg.Storage.Driver) {
	case DriverS3:
		return s3.NewClient(ctx, cfg.AWS, cfg.Storage, logg)
	case DriverGCS:
		return gcs.NewClient(ctx, cfg.GCP, cfg.Storage, logg)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}

func normalizeDriver(driver string) string {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if driver == "" {
		return DriverS3
	}
	return driver
}
