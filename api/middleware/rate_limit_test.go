package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type counterStore struct {
	counts map[string]int64
	err    error
}

func (c *counterStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	if c.counts == nil {
		c.counts = map[string]int64{}
	}
	c.counts[key]++
	return c.counts[key], nil
}

func (c *counterStore) RateLimitKey(scope string) string {
	return "rl:" + scope
}

func webhookRequest(ip string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", nil)
	req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
	return req
}

func TestRateLimitBlocksAfterLimit(t *testing.T) {
	store := &counterStore{}
	handler := RateLimit(NewRateLimitPolicy("webhooks", time.Minute, 2), store, nil)(okHandler())

	for i := 0; i < 2; i++ {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, webhookRequest("203.0.113.7"))
		assert.Equal(t, http.StatusOK, resp.Code)
	}
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, webhookRequest("203.0.113.7"))
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.Equal(t, "60", resp.Header().Get("Retry-After"))

	other := httptest.NewRecorder()
	handler.ServeHTTP(other, webhookRequest("203.0.113.8"))
	assert.Equal(t, http.StatusOK, other.Code)
	assert.Contains(t, store.counts, "rl:ip:webhooks:203.0.113.7")
}

func TestRateLimitFailsOpen(t *testing.T) {
	store := &counterStore{err: errors.New("redis down")}
	resp := httptest.NewRecorder()
	RateLimit(NewRateLimitPolicy("webhooks", time.Minute, 1), store, nil)(okHandler()).ServeHTTP(resp, webhookRequest("203.0.113.7"))
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestRateLimitDisabledPolicy(t *testing.T) {
	store := &counterStore{}
	handler := RateLimit(NewRateLimitPolicy("webhooks", time.Minute, 0), store, nil)(okHandler())
	handler.ServeHTTP(httptest.NewRecorder(), webhookRequest("203.0.113.7"))
	assert.Empty(t, store.counts)
}
