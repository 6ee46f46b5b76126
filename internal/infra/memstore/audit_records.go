package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"custody/internal/domain"
)

// AuditRecords is an append-only in-memory audit repository.
type AuditRecords struct {
	mu      sync.RWMutex
	records []domain.AuditRecord
	byID    map[string]int
}

func NewAuditRecords() *AuditRecords {
	return &AuditRecords{byID: make(map[string]int)}
}

func (s *AuditRecords) Append(ctx context.Context, record domain.AuditRecord) (domain.AuditRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.AuditRecord{}, err
	}
	if record.ID == "" || record.IntegrityDigest == "" {
		return domain.AuditRecord{}, errors.New("audit record id and digest are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[record.ID]; exists {
		return domain.AuditRecord{}, errors.New("audit record already exists")
	}
	s.byID[record.ID] = len(s.records)
	s.records = append(s.records, cloneRecord(record))
	return record, nil
}

func (s *AuditRecords) Get(ctx context.Context, id string) (*domain.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := cloneRecord(s.records[idx])
	return &out, nil
}

func (s *AuditRecords) List(ctx context.Context, query domain.AuditQuery) ([]domain.AuditRecord, int64, error) {
	matched := s.filter(func(r domain.AuditRecord) bool {
		if query.ActorID != "" && r.ActorID != query.ActorID {
			return false
		}
		if query.ActionType != "" && r.ActionType != query.ActionType {
			return false
		}
		return inWindow(r.Timestamp, query.From, query.To)
	})
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Timestamp.After(matched[j].Timestamp) })
	return paginate(matched, query.Page.Normalize()), int64(len(matched)), nil
}

func (s *AuditRecords) ListByResource(ctx context.Context, resourceType domain.AuditResourceType, resourceID string) ([]domain.AuditRecord, error) {
	matched := s.filter(func(r domain.AuditRecord) bool {
		return r.ResourceType == resourceType && r.ResourceIDValue() == resourceID
	})
	sortOldestFirst(matched)
	return matched, nil
}

func (s *AuditRecords) ListByTimeRange(ctx context.Context, from, to time.Time) ([]domain.AuditRecord, error) {
	matched := s.filter(func(r domain.AuditRecord) bool {
		return inWindow(r.Timestamp, from, to)
	})
	sortOldestFirst(matched)
	return matched, nil
}

func (s *AuditRecords) CountSecurityEvents(ctx context.Context, query domain.SecurityEventQuery) (int64, error) {
	matched := s.filter(func(r domain.AuditRecord) bool {
		if query.ActorID != "" && r.ActorID != query.ActorID {
			return false
		}
		if query.ActionType != "" && r.ActionType != query.ActionType {
			return false
		}
		if query.Status != "" && r.Status != query.Status {
			return false
		}
		return query.Since.IsZero() || !r.Timestamp.Before(query.Since)
	})
	return int64(len(matched)), nil
}

func (s *AuditRecords) filter(keep func(domain.AuditRecord) bool) []domain.AuditRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AuditRecord, 0)
	for _, record := range s.records {
		if keep(record) {
			out = append(out, cloneRecord(record))
		}
	}
	return out
}

func inWindow(ts, from, to time.Time) bool {
	if !from.IsZero() && ts.Before(from) {
		return false
	}
	if !to.IsZero() && ts.After(to) {
		return false
	}
	return true
}

func sortOldestFirst(records []domain.AuditRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].ID < records[j].ID
		}
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
}

func cloneRecord(record domain.AuditRecord) domain.AuditRecord {
	if record.ResourceID != nil {
		id := *record.ResourceID
		record.ResourceID = &id
	}
	return record
}
