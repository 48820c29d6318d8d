package documents

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/assuredfarming/assured-farming-backend/internal/audit"
	"github.com/assuredfarming/assured-farming-backend/pkg/enums"
	"github.com/assuredfarming/assured-farming-backend/pkg/logger"
	"github.com/assuredfarming/assured-farming-backend/pkg/outbox/payloads"
	"github.com/assuredfarming/assured-farming-backend/pkg/tasks"
)

const pdfContentType = "application/pdf"

type bundleStore interface {
	LoadBundle(ctx context.Context, contractID uuid.UUID) (*Bundle, error)
	AttachRef(ctx context.Context, tx *gorm.DB, contractID uuid.UUID, ref string) (bool, error)
}

// Uploader is satisfied by the S3 storage client.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, body []byte) (string, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Store    bundleStore
	Uploader Uploader
	Audit    audit.Sink
	Tx       txRunner
	Policy   tasks.Policy
	Prefix   string
	Logger   *logger.Logger
}

// Service renders contract documents and attaches them to the contract.
type Service struct {
	store    bundleStore
	uploader Uploader
	audit    audit.Sink
	tx       txRunner
	policy   tasks.Policy
	prefix   string
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(p ServiceParams) (*Service, error) {
	switch {
	case p.Store == nil:
		return nil, fmt.Errorf("document store required")
	case p.Uploader == nil:
		return nil, fmt.Errorf("uploader required")
	case p.Audit == nil:
		return nil, fmt.Errorf("audit sink required")
	case p.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case p.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		store:    p.Store,
		uploader: p.Uploader,
		audit:    p.Audit,
		tx:       p.Tx,
		policy:   p.Policy,
		prefix:   p.Prefix,
		logg:     p.Logger,
		now:      time.Now,
	}, nil
}

// ObjectKey is where the signed copy of a contract lives in the bucket.
func (s *Service) ObjectKey(contractID uuid.UUID) string {
	return path.Join(s.prefix, contractID.String(), "signed-contract.pdf")
}

// Generate handles one document request. A contract that already carries a
// document is left alone.
func (s *Service) Generate(ctx context.Context, req payloads.DocumentRequestedEvent) error {
	if req.Kind != payloads.DocumentKindSignedContract {
		return tasks.Permanent(fmt.Errorf("unsupported document kind %q", req.Kind))
	}
	if req.ContractID == uuid.Nil {
		return tasks.Permanent(errors.New("contract id missing"))
	}
	logCtx := s.logg.WithContractID(ctx, req.ContractID.String())

	var bundle *Bundle
	err := s.policy.Run(ctx, func(ctx context.Context) error {
		b, err := s.store.LoadBundle(ctx, req.ContractID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tasks.Permanent(err)
		}
		bundle = b
		return err
	})
	if err != nil {
		return err
	}
	if bundle.Contract.DocumentRef != nil {
		s.logg.Info(logCtx, "contract document already attached")
		return nil
	}
	if bundle.Contract.SignedAt == nil {
		return tasks.Permanent(errors.New("contract is not signed"))
	}

	body, err := RenderSignedContract(*bundle, s.now())
	if err != nil {
		return tasks.Permanent(err)
	}

	key := s.ObjectKey(req.ContractID)
	var ref string
	if err := s.policy.Run(ctx, func(ctx context.Context) error {
		uploaded, err := s.uploader.Upload(ctx, key, pdfContentType, body)
		ref = uploaded
		return err
	}); err != nil {
		return fmt.Errorf("upload contract document: %w", err)
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		attached, err := s.store.AttachRef(ctx, tx, req.ContractID, ref)
		if err != nil {
			return fmt.Errorf("attach document ref: %w", err)
		}
		if !attached {
			s.logg.Info(logCtx, "contract document attached concurrently")
			return nil
		}
		if err := s.audit.Record(ctx, tx, audit.Entry{
			Action:     enums.AuditDocumentAttached,
			EntityType: enums.AggregateContract,
			EntityID:   req.ContractID,
			Metadata: map[string]any{
				"kind":         req.Kind,
				"document_ref": ref,
				"size_bytes":   len(body),
			},
		}); err != nil {
			return err
		}
		s.logg.Info(s.logg.WithField(logCtx, "document_ref", ref), "contract document attached")
		return nil
	})
}
