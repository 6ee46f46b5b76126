package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"custody/internal/domain"
)

func TestRepositoriesWithoutDB(t *testing.T) {
	ctx := context.Background()
	docs := NewDocumentRepository(nil)
	if _, err := docs.GetByID(ctx, "x"); !errors.Is(err, errDBUnavailable) {
		t.Fatalf("expected db unavailable, got %v", err)
	}
	if err := docs.MarkDeleted(ctx, "x", "a", time.Now()); !errors.Is(err, errDBUnavailable) {
		t.Fatalf("expected db unavailable, got %v", err)
	}
	audit := NewAuditRecordRepository(nil)
	if _, err := audit.Append(ctx, domain.AuditRecord{ID: "x", IntegrityDigest: "y"}); !errors.Is(err, errDBUnavailable) {
		t.Fatalf("expected db unavailable, got %v", err)
	}
}

func TestLikePatternEscapes(t *testing.T) {
	if got := likePattern(`50%_off\`); got != `%50\%\_off\\%` {
		t.Fatalf("unexpected pattern %q", got)
	}
}

func TestDocumentModelMapping(t *testing.T) {
	deletedBy := "actor-b"
	deletedAt := time.Date(2026, 2, 1, 10, 0, 0, 0, time.FixedZone("X", 3600))
	doc := domain.Document{
		ID:              "11111111-1111-4111-8111-111111111111",
		FileHash:        "abc",
		EncryptionNonce: []byte{1, 2, 3},
		Deleted:         true,
		DeletedAt:       &deletedAt,
		DeletedBy:       &deletedBy,
	}
	model := documentModelFromDomain(doc)
	if model.LineageID != doc.ID || model.Classification != string(domain.LevelUnclassified) || !model.IsDeleted {
		t.Fatalf("unexpected model %+v", model)
	}
	doc.EncryptionNonce[0] = 9
	if model.EncryptionNonce[0] != 1 {
		t.Fatal("nonce must be copied")
	}
	back := documentFromModel(model)
	if back.DeletedAt.Location() != time.UTC || !back.DeletedAt.Equal(deletedAt) {
		t.Fatalf("expected UTC deleted_at, got %s", back.DeletedAt)
	}
}

func TestAuditRecordModelMapping(t *testing.T) {
	empty := ""
	model := auditRecordModelFromDomain(domain.AuditRecord{ID: "a", ResourceID: &empty})
	if model.ResourceID != nil {
		t.Fatal("empty resource id must be stored as NULL")
	}
}
