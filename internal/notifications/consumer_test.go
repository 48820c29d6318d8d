package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/assuredfarming/assured-farming-backend/pkg/db/models"
	"github.com/assuredfarming/assured-farming-backend/pkg/enums"
	"github.com/assuredfarming/assured-farming-backend/pkg/logger"
	"github.com/assuredfarming/assured-farming-backend/pkg/mail"
	"github.com/assuredfarming/assured-farming-backend/pkg/outbox"
	"github.com/assuredfarming/assured-farming-backend/pkg/outbox/idempotency"
	"github.com/assuredfarming/assured-farming-backend/pkg/outbox/payloads"
	"github.com/assuredfarming/assured-farming-backend/pkg/sms"
	"github.com/assuredfarming/assured-farming-backend/pkg/tasks"
)

type memStore struct {
	mu   sync.Mutex
	keys map[string]string
}

func (m *memStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[key], nil
}

func (m *memStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = map[string]string{}
	}
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = value.(string)
	return true, nil
}

func (m *memStore) SetXX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; !ok {
		return false, nil
	}
	m.keys[key] = value.(string)
	return true, nil
}

func (m *memStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.keys, k)
	}
	return nil
}

func (m *memStore) IdempotencyKey(scope, id string) string {
	return "af:idempotency:" + scope + ":" + id
}

type fakeUsers map[uuid.UUID]*models.User

func (f fakeUsers) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type recordingMailer struct {
	sent  []mail.Message
	fails int
}

func (r *recordingMailer) Send(_ context.Context, msg mail.Message) (string, error) {
	if r.fails > 0 {
		r.fails--
		return "", errors.New("smtp unavailable")
	}
	r.sent = append(r.sent, msg)
	return "msg-1", nil
}

type recordingSender struct {
	sent  []sms.Message
	fails int
}

func (r *recordingSender) Send(_ context.Context, msg sms.Message) (string, error) {
	if r.fails > 0 {
		r.fails--
		return "", errors.New("sms gateway timeout")
	}
	r.sent = append(r.sent, msg)
	return "sms-1", nil
}

type harness struct {
	consumer *Consumer
	mailer   *recordingMailer
	sender   *recordingSender
	user     *models.User
}

func newHarness(t *testing.T) harness {
	t.Helper()
	phone := "+15550100"
	user := &models.User{ID: uuid.New(), Email: "farmer@example.com", Phone: &phone, FullName: "Ada Farmer", Role: enums.RoleFarmer}
	mailer := &recordingMailer{}
	sender := &recordingSender{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	d, err := NewDispatcher(fakeUsers{user.ID: user}, mailer, sender, tasks.Policy{MaxRetries: 2, Backoff: time.Millisecond}, logg)
	require.NoError(t, err)
	manager, err := idempotency.NewManager(&memStore{}, time.Hour)
	require.NoError(t, err)
	return harness{
		consumer: &Consumer{dispatcher: d, idempotency: manager, maxAttempts: 5, logg: logg},
		mailer:   mailer,
		sender:   sender,
		user:     user,
	}
}

func envelope(t *testing.T, eventID uuid.UUID, req payloads.NotificationRequestedEvent) []byte {
	t.Helper()
	data, err := json.Marshal(req)
	require.NoError(t, err)
	raw, err := json.Marshal(outbox.PayloadEnvelope{Version: 1, EventID: eventID.String(), OccurredAt: time.Now().UTC(), Data: data})
	require.NoError(t, err)
	return raw
}

func TestConsumerSendsEachChannelOnce(t *testing.T) {
	h := newHarness(t)
	req := payloads.NotificationRequestedEvent{
		Template:    enums.NotificationEscrowReleased,
		RecipientID: h.user.ID,
		ContractID:  uuid.New(),
		Channels:    DefaultChannels,
		Params:      map[string]string{"amount": "240.00"},
	}
	data := envelope(t, uuid.New(), req)
	eventType := string(enums.EventNotificationRequested)

	result := h.consumer.process(context.Background(), eventType, data, nil)
	assert.False(t, result.nack)
	require.Len(t, h.mailer.sent, 1)
	assert.Equal(t, "farmer@example.com", h.mailer.sent[0].To)
	assert.Equal(t, "Escrow released", h.mailer.sent[0].Subject)
	require.Len(t, h.sender.sent, 1)
	assert.Equal(t, "+15550100", h.sender.sent[0].To)

	result = h.consumer.process(context.Background(), eventType, data, nil)
	assert.False(t, result.nack)
	assert.Len(t, h.mailer.sent, 1)
	assert.Len(t, h.sender.sent, 1)
}

func TestConsumerRetriesTransientMailFailure(t *testing.T) {
	h := newHarness(t)
	h.mailer.fails = 2
	req := payloads.NotificationRequestedEvent{Template: enums.NotificationContractSigned, RecipientID: h.user.ID, ContractID: uuid.New(), Channels: []enums.NotificationChannel{enums.NotificationChannelEmail}}

	result := h.consumer.process(context.Background(), string(enums.EventNotificationRequested), envelope(t, uuid.New(), req), nil)
	assert.False(t, result.nack)
	assert.Len(t, h.mailer.sent, 1)
}

func TestConsumerNacksUntilAttemptsExhausted(t *testing.T) {
	h := newHarness(t)
	h.mailer.fails = 100
	req := payloads.NotificationRequestedEvent{Template: enums.NotificationContractSigned, RecipientID: h.user.ID, ContractID: uuid.New(), Channels: []enums.NotificationChannel{enums.NotificationChannelEmail}}
	data := envelope(t, uuid.New(), req)
	eventType := string(enums.EventNotificationRequested)

	attempt := 1
	assert.True(t, h.consumer.process(context.Background(), eventType, data, &attempt).nack)

	attempt = 5
	assert.False(t, h.consumer.process(context.Background(), eventType, data, &attempt).nack)
	assert.Empty(t, h.mailer.sent)
}

func TestConsumerDropsUnknownRecipient(t *testing.T) {
	h := newHarness(t)
	req := payloads.NotificationRequestedEvent{Template: enums.NotificationDisputeRaised, RecipientID: uuid.New(), ContractID: uuid.New()}

	result := h.consumer.process(context.Background(), string(enums.EventNotificationRequested), envelope(t, uuid.New(), req), nil)
	assert.False(t, result.nack)
	assert.Empty(t, h.mailer.sent)
}

func TestConsumerSkipsMissingPhone(t *testing.T) {
	h := newHarness(t)
	h.user.Phone = nil
	req := payloads.NotificationRequestedEvent{Template: enums.NotificationProposalCreated, RecipientID: h.user.ID, ContractID: uuid.New(), Params: map[string]string{"price_per_unit": "24.00"}}

	result := h.consumer.process(context.Background(), string(enums.EventNotificationRequested), envelope(t, uuid.New(), req), nil)
	assert.False(t, result.nack)
	require.Len(t, h.mailer.sent, 1)
	assert.Contains(t, h.mailer.sent[0].Body, "24.00")
	assert.Empty(t, h.sender.sent)
}

func TestConsumerIgnoresOtherEvents(t *testing.T) {
	h := newHarness(t)
	result := h.consumer.process(context.Background(), string(enums.EventAuditRecorded), []byte("{}"), nil)
	assert.False(t, result.nack)

	result = h.consumer.process(context.Background(), string(enums.EventNotificationRequested), []byte("not json"), nil)
	assert.False(t, result.nack)
	assert.Empty(t, h.mailer.sent)
}

func TestConsumerRedeliveryResendsOnlyFailedChannel(t *testing.T) {
	h := newHarness(t)
	h.sender.fails = 100
	req := payloads.NotificationRequestedEvent{Template: enums.NotificationEscrowReleased, RecipientID: h.user.ID, ContractID: uuid.New(), Channels: DefaultChannels, Params: map[string]string{"amount": "240.00"}}
	data := envelope(t, uuid.New(), req)
	eventType := string(enums.EventNotificationRequested)

	attempt := 1
	assert.True(t, h.consumer.process(context.Background(), eventType, data, &attempt).nack)
	require.Len(t, h.mailer.sent, 1)
	assert.Empty(t, h.sender.sent)

	h.sender.fails = 0
	attempt = 2
	assert.False(t, h.consumer.process(context.Background(), eventType, data, &attempt).nack)
	assert.Len(t, h.mailer.sent, 1, "email already went out on the first delivery")
	assert.Len(t, h.sender.sent, 1)
}

func TestDispatchKeepsRetryableFailureBesidePermanentOne(t *testing.T) {
	h := newHarness(t)
	h.sender.fails = 100
	d := h.consumer.dispatcher.(*Dispatcher)
	req := payloads.NotificationRequestedEvent{
		Template:    enums.NotificationContractSigned,
		RecipientID: h.user.ID,
		ContractID:  uuid.New(),
		Channels:    []enums.NotificationChannel{"fax", enums.NotificationChannelSMS},
	}

	err := d.Dispatch(context.Background(), req)
	require.Error(t, err)
	assert.False(t, tasks.IsPermanent(err))
	assert.Contains(t, err.Error(), "sms gateway timeout")

	req.Channels = []enums.NotificationChannel{"fax"}
	err = d.Dispatch(context.Background(), req)
	require.Error(t, err)
	assert.True(t, tasks.IsPermanent(err))
}
