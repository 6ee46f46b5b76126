package memstore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"custody/internal/domain"
)

// Documents is an in-memory document repository used when no database is
// configured.
type Documents struct {
	mu   sync.RWMutex
	docs map[string]domain.Document
}

func NewDocuments() *Documents {
	return &Documents{docs: make(map[string]domain.Document)}
}

func (s *Documents) Create(ctx context.Context, doc domain.Document) error {
	if doc.ID == "" {
		return errors.New("document id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[doc.ID]; exists {
		return errors.New("document already exists")
	}
	if doc.LineageID == "" {
		doc.LineageID = doc.ID
	}
	s.docs[doc.ID] = cloneDocument(doc)
	return nil
}

func (s *Documents) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := cloneDocument(doc)
	return &out, nil
}

func (s *Documents) List(ctx context.Context, query domain.DocumentQuery) ([]domain.Document, int64, error) {
	allowed := levelSet(query.Levels)
	search := strings.ToLower(query.Search)
	s.mu.RLock()
	matched := make([]domain.Document, 0)
	for _, doc := range s.docs {
		if doc.Deleted || !allowed[doc.Classification.Normalize()] {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(doc.OriginalFilename), search) {
			continue
		}
		if query.UploadedBy != "" && doc.UploadedBy != query.UploadedBy {
			continue
		}
		if query.FileHash != "" && doc.FileHash != query.FileHash {
			continue
		}
		matched = append(matched, cloneDocument(doc))
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	page := query.Page.Normalize()
	return paginate(matched, page), int64(len(matched)), nil
}

func (s *Documents) ListByLineage(ctx context.Context, lineageID string, levels []domain.Level) ([]domain.Document, error) {
	allowed := levelSet(levels)
	s.mu.RLock()
	out := make([]domain.Document, 0)
	for _, doc := range s.docs {
		if doc.LineageID == lineageID && allowed[doc.Classification.Normalize()] {
			out = append(out, cloneDocument(doc))
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber < out[j].VersionNumber })
	return out, nil
}

func (s *Documents) MarkDeleted(ctx context.Context, id, actorID string, at time.Time) error {
	return s.update(id, func(doc *domain.Document) bool {
		if doc.Deleted {
			return false
		}
		at = at.UTC()
		doc.Deleted = true
		doc.DeletedAt = &at
		doc.DeletedBy = &actorID
		return true
	})
}

func (s *Documents) UpdateIntegrityStatus(ctx context.Context, id string, status domain.IntegrityStatus) error {
	return s.update(id, func(doc *domain.Document) bool {
		doc.IntegrityStatus = status
		return true
	})
}

func (s *Documents) ListDeletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Document, error) {
	s.mu.RLock()
	out := make([]domain.Document, 0)
	for _, doc := range s.docs {
		if doc.Deleted && doc.PurgedAt == nil && doc.DeletedAt != nil && doc.DeletedAt.Before(cutoff) {
			out = append(out, cloneDocument(doc))
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].DeletedAt.Equal(*out[j].DeletedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].DeletedAt.Before(*out[j].DeletedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Documents) MarkPurged(ctx context.Context, id string, at time.Time) error {
	return s.update(id, func(doc *domain.Document) bool {
		if doc.PurgedAt != nil {
			return false
		}
		at = at.UTC()
		doc.PurgedAt = &at
		return true
	})
}

func (s *Documents) update(id string, fn func(doc *domain.Document) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok || !fn(&doc) {
		return domain.ErrNotFound
	}
	s.docs[id] = doc
	return nil
}

func cloneDocument(doc domain.Document) domain.Document {
	if doc.EncryptionNonce != nil {
		doc.EncryptionNonce = append([]byte(nil), doc.EncryptionNonce...)
	}
	return doc
}

func levelSet(levels []domain.Level) map[domain.Level]bool {
	out := make(map[domain.Level]bool, len(levels))
	for _, level := range levels {
		out[level.Normalize()] = true
	}
	return out
}

func paginate[T any](items []T, page domain.Page) []T {
	page = page.Normalize()
	start := page.Offset()
	if start < 0 || start >= len(items) {
		return []T{}
	}
	end := start + page.Size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
