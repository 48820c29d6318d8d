package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	value string
	ttl   time.Duration
}

type memoryStore struct {
	keys     map[string]entry
	deleted  []string
	setNXErr error
}

func newMemoryStore() *memoryStore { return &memoryStore{keys: map[string]entry{}} }

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	return m.keys[key].value, nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if m.setNXErr != nil {
		return false, m.setNXErr
	}
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = entry{value: value.(string), ttl: ttl}
	return true, nil
}

func (m *memoryStore) SetXX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.keys[key]; !ok {
		return false, nil
	}
	m.keys[key] = entry{value: value.(string), ttl: ttl}
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "af:idempotency:" + scope + ":" + id
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.keys, k)
		m.deleted = append(m.deleted, k)
	}
	return nil
}

func TestNewManagerValidates(t *testing.T) {
	_, err := NewManager(nil, time.Hour)
	assert.Error(t, err)
	_, err = NewManager(newMemoryStore(), 0)
	assert.Error(t, err)

	m, err := NewManager(newMemoryStore(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, m.lease, "lease never outlives the done marker")
}

func TestOnceMarksDoneWithTTL(t *testing.T) {
	store := newMemoryStore()
	manager, err := NewManager(store, 24*time.Hour)
	require.NoError(t, err)
	eventID := uuid.New()

	var leaseSeen entry
	ran, err := manager.Once(context.Background(), "audit-worker", eventID, func(context.Context) error {
		leaseSeen = store.keys["af:idempotency:evt:audit-worker:"+eventID.String()]
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, entry{value: markerProcessing, ttl: DefaultLease}, leaseSeen)
	assert.Equal(t, entry{value: markerDone, ttl: 24 * time.Hour}, store.keys["af:idempotency:evt:audit-worker:"+eventID.String()])
}

func TestOnceRunsHandlerOnlyOnce(t *testing.T) {
	manager, err := NewManager(newMemoryStore(), time.Hour)
	require.NoError(t, err)
	eventID := uuid.New()
	calls := 0
	handler := func(context.Context) error {
		calls++
		return nil
	}

	ran, err := manager.Once(context.Background(), "audit-worker", eventID, handler)
	require.NoError(t, err)
	assert.True(t, ran)
	ran, err = manager.Once(context.Background(), "audit-worker", eventID, handler)
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Equal(t, 1, calls)

	ran, err = manager.Once(context.Background(), "notification-worker", eventID, handler)
	require.NoError(t, err)
	assert.True(t, ran, "consumers track progress independently")
}

func TestOnceReportsInFlightDelivery(t *testing.T) {
	manager, err := NewManager(newMemoryStore(), time.Hour)
	require.NoError(t, err)
	eventID := uuid.New()

	_, err = manager.Once(context.Background(), "document-worker", eventID, func(ctx context.Context) error {
		ran, inner := manager.Once(ctx, "document-worker", eventID, func(context.Context) error { return nil })
		assert.False(t, ran)
		return inner
	})
	assert.ErrorIs(t, err, ErrInFlight)
}

func TestOnceReleasesLeaseOnFailure(t *testing.T) {
	store := newMemoryStore()
	manager, err := NewManager(store, time.Hour)
	require.NoError(t, err)
	eventID := uuid.New()

	ran, err := manager.Once(context.Background(), "document-worker", eventID, func(context.Context) error {
		return errors.New("render failed")
	})
	require.Error(t, err)
	assert.True(t, ran)
	assert.Equal(t, []string{"af:idempotency:evt:document-worker:" + eventID.String()}, store.deleted)

	ran, err = manager.Once(context.Background(), "document-worker", eventID, func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestOnceSurfacesStoreErrors(t *testing.T) {
	store := newMemoryStore()
	store.setNXErr = errors.New("redis down")
	manager, err := NewManager(store, time.Hour)
	require.NoError(t, err)

	ran, err := manager.Once(context.Background(), "audit-worker", uuid.New(), func(context.Context) error { return nil })
	assert.False(t, ran)
	assert.ErrorContains(t, err, "redis down")

	_, err = manager.Once(context.Background(), "", uuid.New(), func(context.Context) error { return nil })
	assert.Error(t, err)
	_, err = manager.Once(context.Background(), "audit-worker", uuid.Nil, func(context.Context) error { return nil })
	assert.Error(t, err)
}
