package main

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assuredfarming/assured-farming-backend/pkg/config"
	"github.com/assuredfarming/assured-farming-backend/pkg/logger"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type blockingConsumer struct{ started atomic.Bool }

func (b *blockingConsumer) Run(ctx context.Context) error {
	b.started.Store(true)
	<-ctx.Done()
	return ctx.Err()
}

type failingConsumer struct{ err error }

func (f failingConsumer) Run(context.Context) error { return f.err }

func newWorker(t *testing.T, params ServiceParams) (*Service, error) {
	t.Helper()
	base := ServiceParams{
		Config:               &config.Config{},
		Logger:               logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard}),
		DB:                   stubPinger{},
		Redis:                stubPinger{},
		PubSub:               stubPinger{},
		Storage:              stubPinger{},
		NotificationConsumer: &blockingConsumer{},
		DocumentConsumer:     &blockingConsumer{},
		AuditConsumer:        &blockingConsumer{},
	}
	if params.DB != nil {
		base.DB = params.DB
	}
	if params.NotificationConsumer != nil {
		base.NotificationConsumer = params.NotificationConsumer
	}
	if params.AuditConsumer != nil {
		base.AuditConsumer = params.AuditConsumer
	}
	return NewService(base)
}

func TestRunStopsAllConsumersWhenOneFails(t *testing.T) {
	notifications := &blockingConsumer{}
	svc, err := newWorker(t, ServiceParams{
		NotificationConsumer: notifications,
		AuditConsumer:        failingConsumer{err: errors.New("subscription deleted")},
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- svc.Run(context.Background()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "audit consumer")
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after consumer failure")
	}
}

func TestRunReturnsOnCancel(t *testing.T) {
	svc, err := newWorker(t, ServiceParams{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop on cancel")
	}
}

func TestRunRefusesToStartWhenDependencyDown(t *testing.T) {
	notifications := &blockingConsumer{}
	svc, err := newWorker(t, ServiceParams{
		DB:                   stubPinger{err: errors.New("connection refused")},
		NotificationConsumer: notifications,
	})
	require.NoError(t, err)

	err = svc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database ping failed")
	assert.False(t, notifications.started.Load())
}

func TestNewServiceRequiresConsumers(t *testing.T) {
	_, err := NewService(ServiceParams{
		Config: &config.Config{},
		Logger: logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard}),
		DB:     stubPinger{},
		Redis:  stubPinger{},
		PubSub: stubPinger{},
	})
	require.Error(t, err)
}
