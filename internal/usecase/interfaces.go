package usecase

import (
	"context"
	"time"

	"custody/internal/domain"
)

type Clock func() time.Time

type DocumentRepository interface {
	Create(ctx context.Context, doc domain.Document) error
	// GetByID returns soft-deleted rows too; callers decide visibility.
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context, query domain.DocumentQuery) ([]domain.Document, int64, error)
	ListByLineage(ctx context.Context, lineageID string, levels []domain.Level) ([]domain.Document, error)
	MarkDeleted(ctx context.Context, id, actorID string, at time.Time) error
	UpdateIntegrityStatus(ctx context.Context, id string, status domain.IntegrityStatus) error
	ListDeletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Document, error)
	MarkPurged(ctx context.Context, id string, at time.Time) error
}

// AuditRecordRepository is append-only: no update, no delete.
type AuditRecordRepository interface {
	Append(ctx context.Context, record domain.AuditRecord) (domain.AuditRecord, error)
	Get(ctx context.Context, id string) (*domain.AuditRecord, error)
	List(ctx context.Context, query domain.AuditQuery) ([]domain.AuditRecord, int64, error)
	ListByResource(ctx context.Context, resourceType domain.AuditResourceType, resourceID string) ([]domain.AuditRecord, error)
	ListByTimeRange(ctx context.Context, from, to time.Time) ([]domain.AuditRecord, error)
	CountSecurityEvents(ctx context.Context, query domain.SecurityEventQuery) (int64, error)
}

// BlobStore persists opaque ciphertext. Locators are generated by the store;
// the hint passed to Store is the owning document id and never shapes the
// locator.
type BlobStore interface {
	Store(ctx context.Context, ciphertext []byte, hint string) (string, error)
	Retrieve(ctx context.Context, locator string) ([]byte, error)
	Exists(ctx context.Context, locator string) (bool, error)
	Delete(ctx context.Context, locator string) (bool, error)
	Size(ctx context.Context, locator string) (int64, error)
}

type Cipher interface {
	Encrypt(plaintext []byte) (ciphertext []byte, nonce []byte, err error)
	Decrypt(ciphertext, nonce []byte) ([]byte, error)
}

type ClearanceChecker interface {
	HasAccess(clearance, classification domain.Level) bool
	AccessibleLevels(clearance domain.Level) []domain.Level
	Enforce(clearance, classification domain.Level) error
}

// WindowHasher folds an ordered run of audit records into a hex root.
type WindowHasher interface {
	WindowRoot(records []domain.AuditRecord) (string, error)
}

type UploadPolicy interface {
	Evaluate(ctx context.Context, input domain.UploadPolicyInput) (domain.PolicyEvaluation, error)
}
