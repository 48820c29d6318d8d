package pubsub

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/assuredfarming/assured-farming-backend/pkg/config"
)

type fakeLookup struct {
	mu       sync.Mutex
	existing map[string]bool
	err      error
	seen     []string
}

func (f *fakeLookup) lookup(_ context.Context, _ string, fullName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, fullName)
	if f.err != nil {
		return f.err
	}
	if !f.existing[fullName] {
		return status.Error(codes.NotFound, "not found")
	}
	return nil
}

func testClient(cfg config.PubSubConfig, lookup *fakeLookup) *Client {
	return &Client{projectID: "farm-proj", cfg: cfg, lookup: lookup.lookup}
}

func TestResourceNames(t *testing.T) {
	c := &Client{projectID: "farm-proj"}

	assert.Equal(t, "projects/farm-proj/subscriptions/notify-sub", c.resourceName(kindSubscription, "notify-sub"))
	full := "projects/other/subscriptions/audit"
	assert.Equal(t, full, c.resourceName(kindSubscription, full))
	assert.Equal(t, "projects/farm-proj/topics/af-audit-events", c.resourceName(kindTopic, " af-audit-events "))
	assert.Equal(t, "projects/farm-proj/topics/"+full, c.resourceName(kindTopic, full), "a subscription path is not a topic path")
	assert.Empty(t, c.resourceName(kindTopic, ""))
	assert.Empty(t, (&Client{}).resourceName(kindTopic, "t"))
}

func TestSubscriptionNamesSkipsBlank(t *testing.T) {
	names := subscriptionNames(config.PubSubConfig{
		NotificationSubscription: "notify",
		DocumentSubscription:     "  ",
		AuditSubscription:        "audit",
	})
	assert.Equal(t, []string{"notify", "audit"}, names)
}

func TestEnsureSubscriptions(t *testing.T) {
	cfg := config.PubSubConfig{NotificationSubscription: "notify", DocumentSubscription: "docs", AuditSubscription: "audit"}
	lookup := &fakeLookup{existing: map[string]bool{
		"projects/farm-proj/subscriptions/notify": true,
		"projects/farm-proj/subscriptions/docs":   true,
		"projects/farm-proj/subscriptions/audit":  true,
	}}
	c := testClient(cfg, lookup)
	require.NoError(t, c.EnsureSubscriptions(context.Background()))
	require.NoError(t, c.Ping(context.Background()))
	sort.Strings(lookup.seen)
	assert.Len(t, lookup.seen, 6)

	delete(lookup.existing, "projects/farm-proj/subscriptions/docs")
	err := c.EnsureSubscriptions(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subscriptions/docs does not exist")

	assert.ErrorIs(t, testClient(config.PubSubConfig{}, lookup).EnsureSubscriptions(context.Background()), errNoSubscriptions)
}

func TestEnsureTopicsWrapsLookupErrors(t *testing.T) {
	lookup := &fakeLookup{err: errors.New("permission denied")}
	c := testClient(config.PubSubConfig{}, lookup)

	err := c.EnsureTopics(context.Background(), "af-notification-events")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checking projects/farm-proj/topics/af-notification-events")

	lookup.err = nil
	lookup.existing = map[string]bool{"projects/farm-proj/topics/af-audit-events": true}
	assert.NoError(t, c.EnsureTopics(context.Background(), "af-audit-events"))
	assert.Error(t, c.EnsureTopics(context.Background(), " "))
}

func TestNilClientHandles(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("topic"))
	assert.Nil(t, c.Subscription("sub"))
	assert.NoError(t, c.Close())
	assert.ErrorIs(t, c.Ping(context.Background()), errNotInitialized)
	assert.ErrorIs(t, c.EnsureTopics(context.Background(), "t"), errNotInitialized)
}

func TestClientOptionsFollowCredentialOrder(t *testing.T) {
	assert.Empty(t, clientOptions(config.GCPConfig{}))
	assert.Len(t, clientOptions(config.GCPConfig{CredentialsJSON: "{}", ApplicationCredentials: "/tmp/sa.json"}), 1)
	assert.Len(t, clientOptions(config.GCPConfig{ApplicationCredentials: "/tmp/sa.json"}), 1)
}
