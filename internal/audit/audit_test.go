package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/assuredfarming/assured-farming-backend/pkg/db/dbtest"
	"github.com/assuredfarming/assured-farming-backend/pkg/db/models"
	"github.com/assuredfarming/assured-farming-backend/pkg/enums"
	"github.com/assuredfarming/assured-farming-backend/pkg/logger"
	"github.com/assuredfarming/assured-farming-backend/pkg/outbox"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "audit-test", Output: &bytes.Buffer{}})
}

func TestOutboxSinkQueuesAuditEvent(t *testing.T) {
	conn := dbtest.Open(t)
	sink, err := NewOutboxSink(outbox.NewService(outbox.NewRepository(conn), nil))
	require.NoError(t, err)

	escrowID := uuid.New()
	err = conn.Transaction(func(tx *gorm.DB) error {
		return sink.Record(context.Background(), tx, Entry{
			Actor:      outbox.NewActor(uuid.Nil, "system"),
			Action:     enums.AuditEscrowStatusChanged,
			EntityType: enums.AggregateEscrow,
			EntityID:   escrowID,
			Metadata:   map[string]any{"from": "held", "to": "released"},
		})
	})
	require.NoError(t, err)

	var row models.OutboxEvent
	require.NoError(t, conn.First(&row).Error)
	assert.Equal(t, enums.EventAuditRecorded, row.EventType)
	assert.Equal(t, enums.AggregateEscrow, row.AggregateType)
	assert.Equal(t, escrowID, row.AggregateID)
}

func TestOutboxSinkRequiresAction(t *testing.T) {
	conn := dbtest.Open(t)
	sink, err := NewOutboxSink(outbox.NewService(outbox.NewRepository(conn), nil))
	require.NoError(t, err)
	require.Error(t, sink.Record(context.Background(), conn, Entry{EntityType: enums.AggregateEscrow, EntityID: uuid.New()}))
}

func TestConsumerPersistsOncePerEvent(t *testing.T) {
	conn := dbtest.Open(t)
	consumer := &Consumer{repo: NewRepository(conn), logg: testLogger()}

	// Produce a real envelope through the outbox so the consumer sees the published shape.
	sink, err := NewOutboxSink(outbox.NewService(outbox.NewRepository(conn), nil))
	require.NoError(t, err)
	contractID := uuid.New()
	actorID := uuid.New()
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		return sink.Record(context.Background(), tx, Entry{
			Actor:      outbox.NewActor(actorID, "buyer"),
			Action:     enums.AuditContractCreated,
			EntityType: enums.AggregateContract,
			EntityID:   contractID,
			Metadata:   map[string]any{"total_value": "250.00"},
		})
	}))
	var queued models.OutboxEvent
	require.NoError(t, conn.First(&queued).Error)

	first := consumer.process(context.Background(), string(enums.EventAuditRecorded), queued.Payload)
	second := consumer.process(context.Background(), string(enums.EventAuditRecorded), queued.Payload)
	assert.False(t, first.nack)
	assert.False(t, second.nack)

	var rows []models.AuditLog
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, string(enums.AuditContractCreated), rows[0].Action)
	assert.Equal(t, contractID, rows[0].EntityID)
	require.NotNil(t, rows[0].ActorID)
	assert.Equal(t, actorID, *rows[0].ActorID)
	require.NotNil(t, rows[0].ActorRole)
	assert.Equal(t, "buyer", *rows[0].ActorRole)

	var meta map[string]string
	require.NoError(t, json.Unmarshal(rows[0].Metadata, &meta))
	assert.Equal(t, "250.00", meta["total_value"])
}

func TestConsumerAcksUndecodableAndForeignEvents(t *testing.T) {
	consumer := &Consumer{repo: NewRepository(dbtest.Open(t)), logg: testLogger()}

	assert.False(t, consumer.process(context.Background(), string(enums.EventAuditRecorded), []byte("{")).nack)
	assert.False(t, consumer.process(context.Background(), string(enums.EventDocumentRequested), []byte("{}")).nack)
}

type failingInserter struct{}

func (failingInserter) Insert(context.Context, *models.AuditLog) (bool, error) {
	return false, assert.AnError
}

func TestConsumerNacksOnStorageFailure(t *testing.T) {
	consumer := &Consumer{repo: failingInserter{}, logg: testLogger()}
	data, err := json.Marshal(outbox.PayloadEnvelope{
		Version: 1,
		EventID: uuid.NewString(),
		Data:    json.RawMessage(`{"action":"dispute.raised","entity_type":"dispute","entity_id":"` + uuid.NewString() + `"}`),
	})
	require.NoError(t, err)
	assert.True(t, consumer.process(context.Background(), string(enums.EventAuditRecorded), data).nack)
}
