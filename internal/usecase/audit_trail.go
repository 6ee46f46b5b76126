package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"custody/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultAuditAsyncTimeout = 5 * time.Second

// AuditEntry is what callers supply to the trail. Timestamp, id and digest are
// assigned by the trail.
type AuditEntry struct {
	ActorID      string
	ActionType   domain.AuditActionType
	ResourceType domain.AuditResourceType
	ResourceID   string
	Status       domain.AuditStatus
	Details      string
	Meta         domain.RequestMeta
}

type AuditTrail struct {
	Repo         AuditRecordRepository
	Clock        Clock
	Logger       *zap.Logger
	DetailsMax   int
	AsyncTimeout time.Duration
	NewID        func() string
	// Tree, when set, adds a window root to VerifyWindow results.
	Tree WindowHasher

	pending sync.WaitGroup
}

func NewAuditTrail(repo AuditRecordRepository, clock Clock, logger *zap.Logger) *AuditTrail {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditTrail{
		Repo:   repo,
		Clock:  clock,
		Logger: logger.With(zap.String("service", "audit_trail")),
	}
}

// Record writes one record synchronously. The write ignores cancellation of ctx
// so that a failed or aborted request still leaves its evidence behind.
func (t *AuditTrail) Record(ctx context.Context, entry AuditEntry) (domain.AuditRecord, error) {
	if t == nil || t.Repo == nil {
		return domain.AuditRecord{}, errors.New("audit repository required")
	}
	record, err := t.build(entry)
	if err != nil {
		return domain.AuditRecord{}, err
	}
	stored, err := t.Repo.Append(context.WithoutCancel(ctx), record)
	if err != nil {
		return domain.AuditRecord{}, fmt.Errorf("append audit record: %w", err)
	}
	return stored, nil
}

// RecordAsync writes a record in the background. Failures are logged and never
// reach the caller.
func (t *AuditTrail) RecordAsync(entry AuditEntry) {
	if t == nil || t.Repo == nil {
		return
	}
	record, err := t.build(entry)
	if err != nil {
		t.logger().Warn("audit record rejected",
			zap.String("action_type", string(entry.ActionType)),
			zap.Error(err),
		)
		return
	}
	timeout := t.AsyncTimeout
	if timeout <= 0 {
		timeout = defaultAuditAsyncTimeout
	}
	t.pending.Add(1)
	go func() {
		defer t.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if _, err := t.Repo.Append(ctx, record); err != nil {
			t.logger().Error("async audit write failed",
				zap.String("audit_id", record.ID),
				zap.String("action_type", string(record.ActionType)),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until every RecordAsync write has finished.
func (t *AuditTrail) Wait() {
	if t == nil {
		return
	}
	t.pending.Wait()
}

func (t *AuditTrail) build(entry AuditEntry) (domain.AuditRecord, error) {
	if entry.ActorID == "" {
		return domain.AuditRecord{}, fmt.Errorf("%w: audit actor required", domain.ErrInvalidInput)
	}
	if !entry.ActionType.Valid() {
		return domain.AuditRecord{}, fmt.Errorf("%w: unknown audit action %q", domain.ErrInvalidInput, entry.ActionType)
	}
	if !entry.Status.Valid() {
		return domain.AuditRecord{}, fmt.Errorf("%w: unknown audit status %q", domain.ErrInvalidInput, entry.Status)
	}
	resourceType := entry.ResourceType
	if resourceType == "" {
		resourceType = domain.AuditResourceSystem
	}
	meta := entry.Meta.Normalize()
	draft := domain.AuditDraft{
		ActorID:      entry.ActorID,
		ActionType:   entry.ActionType,
		Timestamp:    t.now(),
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		ResourceType: resourceType,
		ResourceID:   entry.ResourceID,
		Status:       entry.Status,
		Details:      truncateRunes(entry.Details, t.detailsMax()),
	}
	return draft.Build(t.newID(), draftDigest(draft)), nil
}

func (t *AuditTrail) Get(ctx context.Context, id string) (*domain.AuditRecord, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: audit id required", domain.ErrInvalidInput)
	}
	return t.Repo.Get(ctx, id)
}

// Query lists records filtered by actor, action type and time window, newest
// first.
func (t *AuditTrail) Query(ctx context.Context, query domain.AuditQuery) (domain.AuditPage, error) {
	if query.ActionType != "" && !query.ActionType.Valid() {
		return domain.AuditPage{}, fmt.Errorf("%w: unknown audit action %q", domain.ErrInvalidInput, query.ActionType)
	}
	if !query.From.IsZero() && !query.To.IsZero() && query.To.Before(query.From) {
		return domain.AuditPage{}, fmt.Errorf("%w: time window end precedes start", domain.ErrInvalidInput)
	}
	query.Page = query.Page.Normalize()
	items, total, err := t.Repo.List(ctx, query)
	if err != nil {
		return domain.AuditPage{}, err
	}
	return domain.AuditPage{
		Items:    items,
		Total:    total,
		Page:     query.Page.Number,
		PageSize: query.Page.Size,
	}, nil
}

func (t *AuditTrail) ByActor(ctx context.Context, actorID string, page domain.Page) (domain.AuditPage, error) {
	if actorID == "" {
		return domain.AuditPage{}, fmt.Errorf("%w: actor id required", domain.ErrInvalidInput)
	}
	return t.Query(ctx, domain.AuditQuery{ActorID: actorID, Page: page})
}

func (t *AuditTrail) ByActionType(ctx context.Context, action domain.AuditActionType, page domain.Page) (domain.AuditPage, error) {
	if action == "" {
		return domain.AuditPage{}, fmt.Errorf("%w: action type required", domain.ErrInvalidInput)
	}
	return t.Query(ctx, domain.AuditQuery{ActionType: action, Page: page})
}

func (t *AuditTrail) ByTimeWindow(ctx context.Context, from, to time.Time, page domain.Page) (domain.AuditPage, error) {
	if from.IsZero() || to.IsZero() {
		return domain.AuditPage{}, fmt.Errorf("%w: time window requires from and to", domain.ErrInvalidInput)
	}
	return t.Query(ctx, domain.AuditQuery{From: from, To: to, Page: page})
}

// ChainOfCustody returns every record for one resource, oldest first.
func (t *AuditTrail) ChainOfCustody(ctx context.Context, resourceType domain.AuditResourceType, resourceID string) ([]domain.AuditRecord, error) {
	if resourceType == "" || resourceID == "" {
		return nil, fmt.Errorf("%w: resource type and id required", domain.ErrInvalidInput)
	}
	return t.Repo.ListByResource(ctx, resourceType, resourceID)
}

func (t *AuditTrail) CountSecurityEvents(ctx context.Context, query domain.SecurityEventQuery) (int64, error) {
	if query.ActionType != "" && !query.ActionType.Valid() {
		return 0, fmt.Errorf("%w: unknown audit action %q", domain.ErrInvalidInput, query.ActionType)
	}
	if query.Status != "" && !query.Status.Valid() {
		return 0, fmt.Errorf("%w: unknown audit status %q", domain.ErrInvalidInput, query.Status)
	}
	return t.Repo.CountSecurityEvents(ctx, query)
}

// FailedLogins counts LOGIN_FAILURE records for actorID in the trailing window.
func (t *AuditTrail) FailedLogins(ctx context.Context, actorID string, window time.Duration) (int64, error) {
	return t.CountSecurityEvents(ctx, domain.SecurityEventQuery{
		ActorID:    actorID,
		ActionType: domain.AuditActionLoginFailure,
		Status:     domain.AuditStatusFailure,
		Since:      t.now().Add(-window),
	})
}

// VerifyIntegrity reports whether record still matches its digest.
func (t *AuditTrail) VerifyIntegrity(record domain.AuditRecord) bool {
	return VerifyAuditRecord(record)
}

// VerifyWindow recomputes the digest of every record in [from, to] and returns
// the ids that no longer match.
func (t *AuditTrail) VerifyWindow(ctx context.Context, from, to time.Time) (domain.AuditVerification, error) {
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return domain.AuditVerification{}, fmt.Errorf("%w: invalid verification window", domain.ErrInvalidInput)
	}
	records, err := t.Repo.ListByTimeRange(ctx, from, to)
	if err != nil {
		return domain.AuditVerification{}, err
	}
	result := domain.AuditVerification{
		From:      from.UTC(),
		To:        to.UTC(),
		Checked:   len(records),
		Tampered:  []string{},
		CheckedAt: t.now(),
	}
	for _, record := range records {
		if !VerifyAuditRecord(record) {
			result.Tampered = append(result.Tampered, record.ID)
		}
	}
	if t.Tree != nil && len(records) > 0 {
		root, err := t.Tree.WindowRoot(records)
		if err != nil {
			return domain.AuditVerification{}, fmt.Errorf("window root: %w", err)
		}
		result.Root = root
	}
	if len(result.Tampered) > 0 {
		t.logger().Warn("audit tamper audit found mismatches",
			zap.Int("checked", result.Checked),
			zap.Int("tampered", len(result.Tampered)),
		)
	}
	return result, nil
}

// now returns the trail's time truncated to the precision the store keeps.
func (t *AuditTrail) now() time.Time {
	var ts time.Time
	if t != nil && t.Clock != nil {
		ts = t.Clock()
	} else {
		ts = time.Now()
	}
	return ts.UTC().Truncate(time.Microsecond)
}

func (t *AuditTrail) newID() string {
	if t.NewID != nil {
		return t.NewID()
	}
	return uuid.NewString()
}

func (t *AuditTrail) detailsMax() int {
	if t.DetailsMax > 0 {
		return t.DetailsMax
	}
	return domain.DefaultAuditDetailsMax
}

func (t *AuditTrail) logger() *zap.Logger {
	if t.Logger == nil {
		return zap.NewNop()
	}
	return t.Logger
}

func truncateRunes(value string, max int) string {
	if max <= 0 || utf8.RuneCountInString(value) <= max {
		return value
	}
	runes := []rune(value)
	return string(runes[:max])
}
