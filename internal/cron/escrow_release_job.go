package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/assuredfarming/assured-farming-backend/internal/escrow"
	"github.com/assuredfarming/assured-farming-backend/pkg/logger"
	"github.com/assuredfarming/assured-farming-backend/pkg/metrics"
)

const (
	defaultAutoReleaseGrace = 7 * 24 * time.Hour
	defaultAutoReleaseBatch = 100
)

type candidateLister interface {
	AutoReleaseCandidates(ctx context.Context, endedBefore time.Time, limit int) ([]uuid.UUID, error)
}

type expiredReleaser interface {
	ReleaseExpired(ctx context.Context, contractID uuid.UUID, endedBefore time.Time) (escrow.Result, error)
}

type EscrowReleaseJobParams struct {
	Logger     *logger.Logger
	Candidates candidateLister
	Releaser   expiredReleaser
	Metrics    *metrics.EscrowMetrics
	Grace      time.Duration
	Batch      int
}

// NewEscrowReleaseJob releases held escrows whose contract ended more than
// Grace ago without an open dispute.
func NewEscrowReleaseJob(params EscrowReleaseJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.Candidates == nil:
		return nil, fmt.Errorf("candidate lister required")
	case params.Releaser == nil:
		return nil, fmt.Errorf("escrow releaser required")
	}
	grace := params.Grace
	if grace <= 0 {
		grace = defaultAutoReleaseGrace
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultAutoReleaseBatch
	}
	return &escrowReleaseJob{
		logg:       params.Logger,
		candidates: params.Candidates,
		releaser:   params.Releaser,
		metrics:    params.Metrics,
		grace:      grace,
		batch:      batch,
		now:        time.Now,
	}, nil
}

type escrowReleaseJob struct {
	logg       *logger.Logger
	candidates candidateLister
	releaser   expiredReleaser
	metrics    *metrics.EscrowMetrics
	grace      time.Duration
	batch      int
	now        func() time.Time
}

func (j *escrowReleaseJob) Name() string { return "escrow-auto-release" }

// Run works through one batch. Each contract is released in its own
// transaction so one failure does not hold back the rest.
func (j *escrowReleaseJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.grace)
	ids, err := j.candidates.AutoReleaseCandidates(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("list auto-release candidates: %w", err)
	}

	counts := map[escrow.Outcome]int{}
	var errs error
	for _, id := range ids {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		result, err := j.releaser.ReleaseExpired(ctx, id, cutoff)
		if err != nil {
			j.metrics.IncAutoRelease("error")
			j.logg.Error(j.logg.WithContractID(ctx, id.String()), "auto-release failed", err)
			errs = multierr.Append(errs, fmt.Errorf("contract %s: %w", id, err))
			continue
		}
		counts[result.Outcome]++
		j.metrics.IncAutoRelease(string(result.Outcome))
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":            cutoff,
		"candidates":        len(ids),
		"released":          counts[escrow.OutcomeReleased],
		"already_finalized": counts[escrow.OutcomeAlreadyFinalized],
		"skipped":           counts[escrow.OutcomeSkipped],
		"failed":            len(multierr.Errors(errs)),
	}), "escrow auto-release complete")
	return errs
}
