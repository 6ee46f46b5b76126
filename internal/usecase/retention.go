package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"custody/internal/domain"

	"go.uber.org/zap"
)

const defaultRetentionBatch = 100

// RetentionSweeper physically removes the blobs of documents that have been
// soft-deleted for longer than Retention. Rows are kept and stamped as purged.
type RetentionSweeper struct {
	Documents DocumentRepository
	Blobs     BlobStore
	Audit     *AuditTrail
	Clock     Clock
	Logger    *zap.Logger
	Retention time.Duration
	BatchSize int
}

type SweepResult struct {
	Examined int `json:"examined"`
	Purged   int `json:"purged"`
	Missing  int `json:"missing"`
	Failed   int `json:"failed"`
}

func NewRetentionSweeper(docs DocumentRepository, blobs BlobStore, audit *AuditTrail, clock Clock, retention time.Duration) *RetentionSweeper {
	return &RetentionSweeper{
		Documents: docs,
		Blobs:     blobs,
		Audit:     audit,
		Clock:     clock,
		Retention: retention,
	}
}

// Sweep runs batches until no eligible document remains or ctx ends. Per-row
// failures are counted and logged; they do not stop the sweep.
func (r *RetentionSweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	if r == nil || r.Documents == nil || r.Blobs == nil {
		return result, errors.New("retention sweeper not configured")
	}
	if r.Retention <= 0 {
		return result, fmt.Errorf("%w: retention must be positive", domain.ErrInvalidInput)
	}
	batch := r.BatchSize
	if batch <= 0 {
		batch = defaultRetentionBatch
	}
	cutoff := r.now().Add(-r.Retention)
	// Rows that failed stay eligible in the store; each is tried once per sweep
	// and later batches are fetched past them.
	failed := make(map[string]struct{})
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		limit := batch + len(failed)
		docs, err := r.Documents.ListDeletedBefore(ctx, cutoff, limit)
		if err != nil {
			return result, err
		}
		pending := 0
		for _, doc := range docs {
			if _, seen := failed[doc.ID]; seen {
				continue
			}
			if pending == batch {
				break
			}
			pending++
			result.Examined++
			switch r.purge(ctx, doc) {
			case purgeDone:
				result.Purged++
			case purgeMissing:
				result.Missing++
			default:
				result.Failed++
				failed[doc.ID] = struct{}{}
			}
		}
		if pending == 0 || len(docs) < limit {
			break
		}
	}
	r.logger().Info("retention sweep finished",
		zap.Time("cutoff", cutoff),
		zap.Int("examined", result.Examined),
		zap.Int("purged", result.Purged),
		zap.Int("missing", result.Missing),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

type purgeOutcome int

const (
	purgeFailed purgeOutcome = iota
	purgeDone
	purgeMissing
)

func (r *RetentionSweeper) purge(ctx context.Context, doc domain.Document) purgeOutcome {
	deleted, err := r.Blobs.Delete(ctx, doc.StoragePath)
	if err != nil {
		r.logger().Error("retention blob delete failed", zap.String("document_id", doc.ID), zap.Error(err))
		r.audit(doc.ID, domain.AuditStatusFailure, errorDetails(err))
		return purgeFailed
	}
	if err := r.Documents.MarkPurged(ctx, doc.ID, r.now()); err != nil {
		r.logger().Error("retention mark purged failed", zap.String("document_id", doc.ID), zap.Error(err))
		r.audit(doc.ID, domain.AuditStatusFailure, errorDetails(err))
		return purgeFailed
	}
	if !deleted {
		r.audit(doc.ID, domain.AuditStatusSuccess, "blob_already_absent")
		return purgeMissing
	}
	r.audit(doc.ID, domain.AuditStatusSuccess, "blob_deleted")
	return purgeDone
}

func (r *RetentionSweeper) audit(documentID string, status domain.AuditStatus, details string) {
	if r.Audit == nil {
		return
	}
	r.Audit.RecordAsync(AuditEntry{
		ActorID:      domain.AuditSystemActorID,
		ActionType:   domain.AuditActionRetentionPurge,
		ResourceType: domain.AuditResourceDocument,
		ResourceID:   documentID,
		Status:       status,
		Details:      details,
		Meta:         domain.RequestMeta{IPAddress: "internal", UserAgent: "vault-retention"},
	})
}

func (r *RetentionSweeper) now() time.Time {
	if r.Clock != nil {
		return r.Clock().UTC()
	}
	return time.Now().UTC()
}

func (r *RetentionSweeper) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}
