package documents

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/assuredfarming/assured-farming-backend/internal/audit"
	"github.com/assuredfarming/assured-farming-backend/pkg/db/dbtest"
	"github.com/assuredfarming/assured-farming-backend/pkg/db/models"
	"github.com/assuredfarming/assured-farming-backend/pkg/enums"
	"github.com/assuredfarming/assured-farming-backend/pkg/logger"
	"github.com/assuredfarming/assured-farming-backend/pkg/outbox"
	"github.com/assuredfarming/assured-farming-backend/pkg/outbox/payloads"
	"github.com/assuredfarming/assured-farming-backend/pkg/tasks"
)

type fakeUploader struct {
	keys   []string
	bodies [][]byte
	err    error
}

func (f *fakeUploader) Upload(_ context.Context, key, contentType string, body []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.keys = append(f.keys, key)
	f.bodies = append(f.bodies, body)
	return "s3://docs/" + key, nil
}

type fixture struct {
	svc      *Service
	conn     *gorm.DB
	uploader *fakeUploader
	contract models.Contract
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	sink, err := audit.NewOutboxSink(outbox.NewService(outbox.NewRepository(conn), nil))
	require.NoError(t, err)
	uploader := &fakeUploader{}
	svc, err := NewService(ServiceParams{
		Store:    NewRepository(conn),
		Uploader: uploader,
		Audit:    sink,
		Tx:       client,
		Policy:   tasks.Policy{MaxRetries: 1, Backoff: time.Millisecond},
		Prefix:   "contracts",
		Logger:   logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	require.NoError(t, err)

	farmer := dbtest.SeedUser(t, conn, enums.RoleFarmer)
	buyer := dbtest.SeedUser(t, conn, enums.RoleBuyer)
	listing := dbtest.SeedListing(t, conn, farmer.ID, nil)
	contract := dbtest.SeedContract(t, conn, dbtest.ContractSeed{Listing: listing, BuyerID: buyer.ID, Status: enums.ContractStatusActive})
	signedAt := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, conn.Model(&models.Contract{}).Where("id = ?", contract.ID).Update("signed_at", signedAt).Error)

	return fixture{svc: svc, conn: conn, uploader: uploader, contract: contract}
}

func (f fixture) documentRef(t *testing.T) *string {
	t.Helper()
	var c models.Contract
	require.NoError(t, f.conn.First(&c, "id = ?", f.contract.ID).Error)
	return c.DocumentRef
}

func request(contractID uuid.UUID) payloads.DocumentRequestedEvent {
	return payloads.DocumentRequestedEvent{ContractID: contractID, Kind: payloads.DocumentKindSignedContract}
}

func TestGenerateAttachesSignedContract(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.svc.Generate(context.Background(), request(f.contract.ID)))
	require.Len(t, f.uploader.keys, 1)
	assert.Equal(t, "contracts/"+f.contract.ID.String()+"/signed-contract.pdf", f.uploader.keys[0])
	assert.True(t, bytes.HasPrefix(f.uploader.bodies[0], []byte("%PDF")))

	ref := f.documentRef(t)
	require.NotNil(t, ref)
	assert.Equal(t, "s3://docs/"+f.uploader.keys[0], *ref)
	assert.EqualValues(t, 1, dbtest.Count(t, f.conn, "outbox_events", "event_type = ?", enums.EventAuditRecorded))

	require.NoError(t, f.svc.Generate(context.Background(), request(f.contract.ID)))
	assert.Len(t, f.uploader.keys, 1)
}

func TestGenerateUploadFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.uploader.err = errors.New("bucket unreachable")

	err := f.svc.Generate(context.Background(), request(f.contract.ID))
	require.Error(t, err)
	assert.False(t, tasks.IsPermanent(err))
	assert.Nil(t, f.documentRef(t))
}

func TestGenerateRejectsBadRequests(t *testing.T) {
	f := newFixture(t)

	err := f.svc.Generate(context.Background(), payloads.DocumentRequestedEvent{ContractID: f.contract.ID, Kind: "invoice"})
	assert.True(t, tasks.IsPermanent(err))

	err = f.svc.Generate(context.Background(), request(uuid.New()))
	assert.True(t, tasks.IsPermanent(err))

	require.NoError(t, f.conn.Model(&models.Contract{}).Where("id = ?", f.contract.ID).Update("signed_at", nil).Error)
	err = f.svc.Generate(context.Background(), request(f.contract.ID))
	assert.True(t, tasks.IsPermanent(err))
	assert.Empty(t, f.uploader.keys)
}
