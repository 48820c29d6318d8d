package middleware

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assuredfarming/assured-farming-backend/pkg/auth"
	"github.com/assuredfarming/assured-farming-backend/pkg/enums"
)

type fakeStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	return true, nil
}

func (f *fakeStore) SetXX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; !ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func TestRouteTTLSelection(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		want   time.Duration
		ok     bool
	}{
		{"create contract", http.MethodPost, "/api/v1/contracts", defaultIdempotencyTTL, true},
		{"propose", http.MethodPost, "/api/v1/contracts/c1/proposals", defaultIdempotencyTTL, true},
		{"accept", http.MethodPost, "/api/v1/contracts/c1/proposals/p1/accept", criticalIdempotencyTTL, true},
		{"sign", http.MethodPost, "/api/v1/contracts/c1/sign", criticalIdempotencyTTL, true},
		{"confirm delivery", http.MethodPost, "/api/v1/shipments/s1/confirm-delivery", criticalIdempotencyTTL, true},
		{"admin release", http.MethodPost, "/api/v1/admin/escrows/e1/release", defaultIdempotencyTTL, true},
		{"read", http.MethodGet, "/api/v1/contracts/c1", 0, false},
		{"webhook", http.MethodPost, "/api/v1/webhooks/payments", 0, false},
	}

	for _, tt := range tests {
		ttl, ok := routeTTL(tt.method, tt.path)
		assert.Equal(t, tt.ok, ok, tt.name)
		if ok {
			assert.Equal(t, tt.want, ttl, tt.name)
		}
	}
}

func idempotentRequest(body, key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/contracts", strings.NewReader(body))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	principal := auth.Principal{UserID: uuid.MustParse("8b6d1f0e-2c3a-4d5e-9f60-718293a4b5c6"), Role: enums.RoleBuyer}
	return req.WithContext(WithPrincipal(req.Context(), principal))
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(fmt.Sprintf(`{"data":{"call":%d}}`, calls)))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, idempotentRequest(`{"quantity":"10"}`, "key-1"))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, idempotentRequest(`{"quantity":"10"}`, "key-1"))

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
}

func TestIdempotencyRejectsDifferentBody(t *testing.T) {
	store := newFakeStore()
	handler := Idempotency(store, nil)(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), idempotentRequest(`{"quantity":"10"}`, "key-1"))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, idempotentRequest(`{"quantity":"11"}`, "key-1"))
	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), idempotentRequest(`{}`, "key-2"))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, idempotentRequest(`{}`, "key-2"))

	assert.Equal(t, 2, calls)
	assert.Equal(t, http.StatusCreated, resp.Code)
}

func TestIdempotencyPendingKeyConflicts(t *testing.T) {
	store := newFakeStore()
	req := idempotentRequest(`{}`, "key-3")
	key := store.IdempotencyKey(buildScope(req), "key-3")
	_, err := store.SetNX(context.Background(), key, fmt.Sprintf(`{"pending":true,"request_hash":%q}`, hashBody([]byte(`{}`))), time.Hour)
	require.NoError(t, err)

	resp := httptest.NewRecorder()
	Idempotency(store, nil)(okHandler()).ServeHTTP(resp, req)
	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestIdempotencyWithoutHeaderPassesThrough(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), idempotentRequest(`{}`, ""))
	handler.ServeHTTP(httptest.NewRecorder(), idempotentRequest(`{}`, ""))
	assert.Equal(t, 2, calls)
	assert.Empty(t, store.data)
}
