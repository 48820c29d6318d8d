package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// mapStore is a map-backed stand-in for the redis client.
type mapStore map[string]string

func (m mapStore) Get(_ context.Context, key string) (string, error) {
	return m[key], nil
}

func (m mapStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m[key]; ok {
		return false, nil
	}
	m[key] = fmt.Sprint(value)
	return true, nil
}

func (m mapStore) SetXX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m[key]; !ok {
		return false, nil
	}
	m[key] = fmt.Sprint(value)
	return true, nil
}

func (m mapStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m, k)
	}
	return nil
}

func (m mapStore) IdempotencyKey(scope, id string) string {
	return "af:idempotency:" + scope + ":" + id
}

func ExampleManager_Once() {
	ctx := context.Background()
	manager, _ := NewManager(mapStore{}, 7*24*time.Hour)
	eventID := uuid.MustParse("f47ac10b-58cc-4372-a567-0e02b2c3d479")

	attempts := 0
	render := func(context.Context) error {
		attempts++
		if attempts == 1 {
			return errors.New("storage unavailable")
		}
		fmt.Println("signed contract rendered")
		return nil
	}

	for delivery := 1; delivery <= 3; delivery++ {
		ran, err := manager.Once(ctx, "document-worker", eventID, render)
		fmt.Printf("delivery %d: ran=%t err=%v\n", delivery, ran, err)
	}
	// Output:
	// delivery 1: ran=true err=storage unavailable
	// signed contract rendered
	// delivery 2: ran=true err=<nil>
	// delivery 3: ran=false err=<nil>
}
