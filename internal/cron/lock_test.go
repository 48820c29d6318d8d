package cron

import (
	"context"
	"strings"
	"testing"
	"time"

)

type memRedis struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newMemRedis() *memRedis {
	return &memRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memRedis) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memRedis) DelIfValue(_ context.Context, key, value string) (bool, error) {
	if v, ok := m.values[key]; !ok || v != value {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func TestRedisLockExclusive(t *testing.T) {
	t.Setenv("ASSURED_INSTANCE_ID", "cron-test-1")
	store := newMemRedis()
	first, _ := NewRedisLock(store, "", 0)
	second, _ := NewRedisLock(store, "", 0)
	ctx := context.Background()

	ok, err := first.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if store.ttls[LockKey] != defaultLockTTL {
		t.Fatalf("expected default ttl, got %s", store.ttls[LockKey])
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatal("second holder acquired a held lock")
	}
	if err := second.Release(ctx); err != nil {
		t.Fatalf("release by non-owner: %v", err)
	}
	owner, held := store.values[LockKey]
	if !held {
		t.Fatal("non-owner release dropped the lease")
	}
	if !strings.HasPrefix(owner, "cron-test-1:") {
		t.Fatalf("expected lease owner prefix, got %q", owner)
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := second.Acquire(ctx); !ok {
		t.Fatal("expected lock to be free after release")
	}
}

func TestRedisLockDoesNotDeleteForeignLease(t *testing.T) {
	store := newMemRedis()
	lock, _ := NewRedisLock(store, "af:cron:test", time.Minute)
	ctx := context.Background()
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("acquire failed")
	}
	store.values["af:cron:test"] = "someone-else"

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.values["af:cron:test"] != "someone-else" {
		t.Fatal("foreign lease was deleted")
	}
}
