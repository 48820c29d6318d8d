// Package tasks holds the retry policy shared by asynchronous side-effect consumers.
package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/assuredfarming/assured-farming-backend/pkg/config"
	pkgerrors "github.com/assuredfarming/assured-farming-backend/pkg/errors"
)

const (
	defaultMaxRetries   = 3
	defaultRetryBackoff = 2 * time.Second
)

type permanentError struct {
	err error
}

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent or carries a
// non-retryable error code such as NOT_FOUND or VALIDATION_ERROR.
func IsPermanent(err error) bool {
	var p permanentError
	if errors.As(err, &p) {
		return true
	}
	return pkgerrors.As(err) != nil && !pkgerrors.Retryable(err)
}

// Policy is a bounded exponential retry.
type Policy struct {
	MaxRetries uint64
	Backoff    time.Duration
}

// PolicyFromConfig applies defaults to the configured values.
func PolicyFromConfig(cfg config.TasksConfig) Policy {
	p := Policy{MaxRetries: cfg.MaxRetries, Backoff: cfg.RetryBackoff}
	if p.MaxRetries == 0 {
		p.MaxRetries = defaultMaxRetries
	}
	if p.Backoff <= 0 {
		p.Backoff = defaultRetryBackoff
	}
	return p
}

// Run calls fn until it succeeds, returns a permanent error, or the retry
// budget is spent. The last error is returned.
func (p Policy) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(p.MaxRetries, retry.NewExponential(p.Backoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil || IsPermanent(err) {
			return err
		}
		return retry.RetryableError(err)
	})
}

// DeliveryExhausted reports whether a message has been redelivered at least
// max times. A nil attempt count means dead lettering is not configured.
func DeliveryExhausted(attempt *int, max int) bool {
	if attempt == nil || max <= 0 {
		return false
	}
	return *attempt >= max
}
