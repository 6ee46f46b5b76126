package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"custody/internal/domain"

	"github.com/google/uuid"
)

type documentRepoStub struct {
	mu        sync.Mutex
	docs      map[string]domain.Document
	createErr error
	lastQuery domain.DocumentQuery
}

func newDocumentRepoStub() *documentRepoStub {
	return &documentRepoStub{docs: map[string]domain.Document{}}
}

func (r *documentRepoStub) Create(ctx context.Context, doc domain.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.docs[doc.ID] = doc
	return nil
}

func (r *documentRepoStub) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &doc, nil
}

func (r *documentRepoStub) List(ctx context.Context, query domain.DocumentQuery) ([]domain.Document, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastQuery = query
	allowed := map[domain.Level]bool{}
	for _, level := range query.Levels {
		allowed[level] = true
	}
	out := make([]domain.Document, 0)
	for _, doc := range r.docs {
		if doc.Deleted || !allowed[doc.Classification] {
			continue
		}
		if query.Search != "" && !strings.Contains(strings.ToLower(doc.OriginalFilename), strings.ToLower(query.Search)) {
			continue
		}
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := int64(len(out))
	start := query.Page.Offset()
	if start > len(out) {
		start = len(out)
	}
	end := start + query.Page.Normalize().Size
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], total, nil
}

func (r *documentRepoStub) ListByLineage(ctx context.Context, lineageID string, levels []domain.Level) ([]domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	allowed := map[domain.Level]bool{}
	for _, level := range levels {
		allowed[level] = true
	}
	out := make([]domain.Document, 0)
	for _, doc := range r.docs {
		if doc.LineageID == lineageID && allowed[doc.Classification] {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber < out[j].VersionNumber })
	return out, nil
}

func (r *documentRepoStub) MarkDeleted(ctx context.Context, id, actorID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok || doc.Deleted {
		return domain.ErrNotFound
	}
	doc.Deleted = true
	doc.DeletedAt = &at
	doc.DeletedBy = &actorID
	r.docs[id] = doc
	return nil
}

func (r *documentRepoStub) UpdateIntegrityStatus(ctx context.Context, id string, status domain.IntegrityStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return domain.ErrNotFound
	}
	doc.IntegrityStatus = status
	r.docs[id] = doc
	return nil
}

func (r *documentRepoStub) ListDeletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Document, 0)
	for _, doc := range r.docs {
		if doc.Deleted && doc.PurgedAt == nil && doc.DeletedAt != nil && doc.DeletedAt.Before(cutoff) {
			out = append(out, doc)
		}
	}
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

func (r *documentRepoStub) MarkPurged(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return domain.ErrNotFound
	}
	doc.PurgedAt = &at
	r.docs[id] = doc
	return nil
}

func (r *documentRepoStub) get(id string) domain.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.docs[id]
}

func (r *documentRepoStub) put(doc domain.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = doc
}

type auditRepoStub struct {
	mu        sync.Mutex
	records   []domain.AuditRecord
	appendErr error
}

func (r *auditRepoStub) Append(ctx context.Context, record domain.AuditRecord) (domain.AuditRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return domain.AuditRecord{}, r.appendErr
	}
	r.records = append(r.records, record)
	return record, nil
}

func (r *auditRepoStub) Get(ctx context.Context, id string) (*domain.AuditRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, record := range r.records {
		if record.ID == id {
			out := record
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *auditRepoStub) List(ctx context.Context, query domain.AuditQuery) ([]domain.AuditRecord, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AuditRecord, 0)
	for _, record := range r.records {
		if query.ActorID != "" && record.ActorID != query.ActorID {
			continue
		}
		if query.ActionType != "" && record.ActionType != query.ActionType {
			continue
		}
		if !query.From.IsZero() && record.Timestamp.Before(query.From) {
			continue
		}
		if !query.To.IsZero() && record.Timestamp.After(query.To) {
			continue
		}
		out = append(out, record)
	}
	return out, int64(len(out)), nil
}

func (r *auditRepoStub) ListByResource(ctx context.Context, resourceType domain.AuditResourceType, resourceID string) ([]domain.AuditRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AuditRecord, 0)
	for _, record := range r.records {
		if record.ResourceType == resourceType && record.ResourceIDValue() == resourceID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (r *auditRepoStub) ListByTimeRange(ctx context.Context, from, to time.Time) ([]domain.AuditRecord, error) {
	records, _, err := r.List(ctx, domain.AuditQuery{From: from, To: to})
	return records, err
}

func (r *auditRepoStub) CountSecurityEvents(ctx context.Context, query domain.SecurityEventQuery) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, record := range r.records {
		if query.ActorID != "" && record.ActorID != query.ActorID {
			continue
		}
		if query.ActionType != "" && record.ActionType != query.ActionType {
			continue
		}
		if query.Status != "" && record.Status != query.Status {
			continue
		}
		if !query.Since.IsZero() && record.Timestamp.Before(query.Since) {
			continue
		}
		count++
	}
	return count, nil
}

func (r *auditRepoStub) all() []domain.AuditRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AuditRecord, len(r.records))
	copy(out, r.records)
	return out
}

func (r *auditRepoStub) matching(action domain.AuditActionType, status domain.AuditStatus) []domain.AuditRecord {
	out := make([]domain.AuditRecord, 0)
	for _, record := range r.all() {
		if record.ActionType == action && record.Status == status {
			out = append(out, record)
		}
	}
	return out
}

// blobStoreStub counts calls so tests can assert no storage access happened.
type blobStoreStub struct {
	mu       sync.Mutex
	blobs    map[string][]byte
	storeErr error
	calls    map[string]int
}

func newBlobStoreStub() *blobStoreStub {
	return &blobStoreStub{blobs: map[string][]byte{}, calls: map[string]int{}}
}

func (b *blobStoreStub) Store(ctx context.Context, ciphertext []byte, hint string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["store"]++
	if b.storeErr != nil {
		return "", b.storeErr
	}
	locator := "2026/01/01/" + uuid.NewString() + ".enc"
	b.blobs[locator] = append([]byte(nil), ciphertext...)
	return locator, nil
}

func (b *blobStoreStub) Retrieve(ctx context.Context, locator string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["retrieve"]++
	data, ok := b.blobs[locator]
	if !ok {
		return nil, domain.ErrBlobNotFound
	}
	return append([]byte(nil), data...), nil
}

func (b *blobStoreStub) Exists(ctx context.Context, locator string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["exists"]++
	_, ok := b.blobs[locator]
	return ok, nil
}

func (b *blobStoreStub) Delete(ctx context.Context, locator string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["delete"]++
	if _, ok := b.blobs[locator]; !ok {
		return false, nil
	}
	delete(b.blobs, locator)
	return true, nil
}

func (b *blobStoreStub) Size(ctx context.Context, locator string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["size"]++
	data, ok := b.blobs[locator]
	if !ok {
		return 0, domain.ErrBlobNotFound
	}
	return int64(len(data)), nil
}

func (b *blobStoreStub) count(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

func (b *blobStoreStub) reads() int {
	return b.count("retrieve") + b.count("exists") + b.count("size")
}

func (b *blobStoreStub) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.blobs)
}

func (b *blobStoreStub) tamper(locator string, fn func([]byte)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b.blobs[locator])
}

func (b *blobStoreStub) remove(locator string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blobs, locator)
}

type policyStub struct {
	result domain.PolicyResult
	err    error
	inputs []domain.UploadPolicyInput
}

func (p *policyStub) Evaluate(ctx context.Context, input domain.UploadPolicyInput) (domain.PolicyEvaluation, error) {
	p.inputs = append(p.inputs, input)
	if p.err != nil {
		return domain.PolicyEvaluation{}, p.err
	}
	return domain.PolicyEvaluation{PolicyHash: "stub", Result: p.result}, nil
}

var errStub = errors.New("stub failure")
