package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assuredfarming/assured-farming-backend/pkg/config"
)

type fakeCmdable struct {
	data     map[string]string
	counters map[string]int64
	expires  map[string]time.Duration
	evalErr  error
}

func newFakeCmdable() *fakeCmdable {
	return &fakeCmdable{
		data:     map[string]string{},
		counters: map[string]int64{},
		expires:  map[string]time.Duration{},
	}
}

func (f *fakeCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeCmdable) SetNX(_ context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = fmt.Sprint(value)
	f.expires[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCmdable) SetXX(_ context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	if _, ok := f.data[key]; !ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = fmt.Sprint(value)
	f.expires[key] = ttl
	return redis.NewBoolResult(true, nil)
}

// Eval mimics the two scripts the client runs.
func (f *fakeCmdable) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	if f.evalErr != nil {
		return redis.NewCmdResult(nil, f.evalErr)
	}
	key := keys[0]
	switch script {
	case fixedWindowScript:
		f.counters[key]++
		if ms := args[0].(int64); f.counters[key] == 1 && ms > 0 {
			f.expires[key] = time.Duration(ms) * time.Millisecond
		}
		return redis.NewCmdResult(f.counters[key], nil)
	case compareAndDeleteScript:
		if v, ok := f.data[key]; ok && v == args[0] {
			delete(f.data, key)
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	}
	return redis.NewCmdResult(nil, errors.New("unexpected script"))
}

func (f *fakeCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestIncrWithTTLOpensWindowOnce(t *testing.T) {
	ctx := context.Background()
	fake := newFakeCmdable()
	client := &Client{store: fake}
	key := client.RateLimitKey("ip:payments-webhook:203.0.113.7")

	for want := int64(1); want <= 3; want++ {
		count, err := client.IncrWithTTL(ctx, key, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, count)
	}
	assert.Equal(t, time.Minute, fake.expires[key])

	fake.evalErr = errors.New("READONLY")
	_, err := client.IncrWithTTL(ctx, client.RateLimitKey("other"), time.Minute)
	assert.ErrorContains(t, err, "READONLY")
}

func TestDelIfValueOnlyRemovesOwnLease(t *testing.T) {
	ctx := context.Background()
	fake := newFakeCmdable()
	client := &Client{store: fake}
	key := client.LockKey("cron-worker:test")
	fake.data[key] = "owner-a"

	deleted, err := client.DelIfValue(ctx, key, "owner-b")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Equal(t, "owner-a", fake.data[key])

	deleted, err = client.DelIfValue(ctx, key, "owner-a")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.NotContains(t, fake.data, key)

	_, err = (&Client{}).DelIfValue(ctx, key, "owner-a")
	assert.ErrorIs(t, err, errNotInitialized)
}

func TestReplayStoreSwapsReservation(t *testing.T) {
	ctx := context.Background()
	var store ReplayStore = &Client{store: newFakeCmdable()}
	key := store.IdempotencyKey("POST:/api/v1/contracts/c1/sign", "key-1")

	replaced, err := store.SetXX(ctx, key, "final", time.Hour)
	require.NoError(t, err)
	assert.False(t, replaced, "nothing reserved yet")

	reserved, err := store.SetNX(ctx, key, "pending", time.Hour)
	require.NoError(t, err)
	require.True(t, reserved)
	reserved, err = store.SetNX(ctx, key, "pending", time.Hour)
	require.NoError(t, err)
	assert.False(t, reserved)

	replaced, err = store.SetXX(ctx, key, "final", 7*24*time.Hour)
	require.NoError(t, err)
	assert.True(t, replaced)
	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "final", got)

	require.NoError(t, store.Del(ctx, key))
	_, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, redis.Nil)
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "af:idempotency:evt:audit-worker:e1", client.IdempotencyKey("evt:audit-worker", "e1"))
	assert.Equal(t, "af:rate_limit:ip:webhooks:1.2.3.4", client.RateLimitKey("ip:webhooks:1.2.3.4"))
	assert.Equal(t, "af:lock:cron-worker:prod", client.LockKey("cron-worker:prod"))
	assert.Equal(t, "af:idempotency:scope", client.IdempotencyKey(" scope ", "  "))
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	assert.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://:secret@cache:6380/2", PoolSize: 20, DialTimeout: 2 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 20, opts.PoolSize)
	assert.Equal(t, 2*time.Second, opts.DialTimeout)
	assert.Contains(t, opts.ClientName, "assured:")

	opts, err = optionsFromConfig(config.RedisConfig{Address: "localhost:6379", DB: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, opts.DB)

	_, err = optionsFromConfig(config.RedisConfig{URL: "http://nope"})
	assert.Error(t, err)
}

func TestUninitializedClientErrors(t *testing.T) {
	client := &Client{}
	ctx := context.Background()
	assert.ErrorIs(t, client.Ping(ctx), errNotInitialized)
	_, err := client.SetXX(ctx, "k", "v", time.Second)
	assert.ErrorIs(t, err, errNotInitialized)
	_, err = client.IncrWithTTL(ctx, "k", time.Second)
	assert.ErrorIs(t, err, errNotInitialized)
	assert.NoError(t, client.Close())
}
