package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"custody/internal/domain"

	"go.uber.org/zap"
)

// AuditQueries is the auditor-facing read surface over the trail. Every call
// is authorized and leaves its own AUDIT_QUERY or AUDIT_VERIFY record.
type AuditQueries struct {
	Trail      *AuditTrail
	Authorizer domain.Authorizer
}

// RecordVerification is the integrity check of one stored record.
type RecordVerification struct {
	Record domain.AuditRecord `json:"record"`
	Valid  bool               `json:"valid"`
}

func NewAuditQueries(trail *AuditTrail, authorizer domain.Authorizer) *AuditQueries {
	return &AuditQueries{Trail: trail, Authorizer: authorizer}
}

func (q *AuditQueries) Search(ctx context.Context, actor domain.Actor, meta domain.RequestMeta, query domain.AuditQuery) (domain.AuditPage, error) {
	details := describeQuery(query)
	if err := q.begin(ctx, actor, meta, domain.PermissionAuditRead, domain.AuditActionAuditQuery, "", details); err != nil {
		return domain.AuditPage{}, err
	}
	page, err := q.Trail.Query(ctx, query)
	q.finish(actor, meta, domain.AuditActionAuditQuery, "", details, err)
	return page, err
}

func (q *AuditQueries) Get(ctx context.Context, actor domain.Actor, meta domain.RequestMeta, id string) (*domain.AuditRecord, error) {
	if err := q.begin(ctx, actor, meta, domain.PermissionAuditRead, domain.AuditActionAuditQuery, id, "get"); err != nil {
		return nil, err
	}
	record, err := q.Trail.Get(ctx, id)
	q.finish(actor, meta, domain.AuditActionAuditQuery, id, "get", err)
	return record, err
}

// VerifyRecord recomputes the digest of one stored record.
func (q *AuditQueries) VerifyRecord(ctx context.Context, actor domain.Actor, meta domain.RequestMeta, id string) (RecordVerification, error) {
	if err := q.begin(ctx, actor, meta, domain.PermissionAuditVerify, domain.AuditActionAuditVerify, id, "record"); err != nil {
		return RecordVerification{}, err
	}
	record, err := q.Trail.Get(ctx, id)
	if err != nil {
		q.finish(actor, meta, domain.AuditActionAuditVerify, id, "record", err)
		return RecordVerification{}, err
	}
	valid := q.Trail.VerifyIntegrity(*record)
	q.finish(actor, meta, domain.AuditActionAuditVerify, id, fmt.Sprintf("record valid=%t", valid), nil)
	return RecordVerification{Record: *record, Valid: valid}, nil
}

func (q *AuditQueries) VerifyWindow(ctx context.Context, actor domain.Actor, meta domain.RequestMeta, from, to time.Time) (domain.AuditVerification, error) {
	details := fmt.Sprintf("window from=%s to=%s", formatTime(from), formatTime(to))
	if err := q.begin(ctx, actor, meta, domain.PermissionAuditVerify, domain.AuditActionAuditVerify, "", details); err != nil {
		return domain.AuditVerification{}, err
	}
	result, err := q.Trail.VerifyWindow(ctx, from, to)
	if err == nil {
		details = fmt.Sprintf("%s checked=%d tampered=%d", details, result.Checked, len(result.Tampered))
	}
	q.finish(actor, meta, domain.AuditActionAuditVerify, "", details, err)
	return result, err
}

func (q *AuditQueries) ChainOfCustody(ctx context.Context, actor domain.Actor, meta domain.RequestMeta, resourceType domain.AuditResourceType, resourceID string) ([]domain.AuditRecord, error) {
	details := fmt.Sprintf("custody resource_type=%s", resourceType)
	if err := q.begin(ctx, actor, meta, domain.PermissionAuditRead, domain.AuditActionAuditQuery, resourceID, details); err != nil {
		return nil, err
	}
	records, err := q.Trail.ChainOfCustody(ctx, resourceType, resourceID)
	q.finish(actor, meta, domain.AuditActionAuditQuery, resourceID, details, err)
	return records, err
}

func (q *AuditQueries) CountSecurityEvents(ctx context.Context, actor domain.Actor, meta domain.RequestMeta, query domain.SecurityEventQuery) (int64, error) {
	details := fmt.Sprintf("security_events action_type=%s status=%s", query.ActionType, query.Status)
	if err := q.begin(ctx, actor, meta, domain.PermissionAuditRead, domain.AuditActionAuditQuery, "", details); err != nil {
		return 0, err
	}
	count, err := q.Trail.CountSecurityEvents(ctx, query)
	q.finish(actor, meta, domain.AuditActionAuditQuery, "", details, err)
	return count, err
}

// begin authorizes the caller. A denial is recorded synchronously before it is
// returned.
func (q *AuditQueries) begin(ctx context.Context, actor domain.Actor, meta domain.RequestMeta, permission string, action domain.AuditActionType, resourceID, details string) error {
	if q == nil || q.Trail == nil || q.Trail.Repo == nil {
		return errors.New("audit queries not configured")
	}
	err := q.authorize(actor, permission)
	if err == nil {
		return nil
	}
	actorID := actor.ID
	if actorID == "" {
		actorID = domain.UnknownRequestValue
	}
	if _, auditErr := q.Trail.Record(ctx, AuditEntry{
		ActorID:      actorID,
		ActionType:   action,
		ResourceType: domain.AuditResourceAudit,
		ResourceID:   resourceID,
		Status:       domain.AuditStatusDenied,
		Details:      details + " error=" + domain.ErrorClass(err),
		Meta:         meta,
	}); auditErr != nil {
		q.Trail.logger().Error("audit query denial write failed",
			zap.String("action_type", string(action)),
			zap.Error(auditErr),
		)
	}
	return err
}

func (q *AuditQueries) finish(actor domain.Actor, meta domain.RequestMeta, action domain.AuditActionType, resourceID, details string, err error) {
	status := domain.AuditStatusSuccess
	if err != nil {
		status = domain.AuditStatusFailure
		details += " error=" + domain.ErrorClass(err)
	}
	q.Trail.RecordAsync(AuditEntry{
		ActorID:      actor.ID,
		ActionType:   action,
		ResourceType: domain.AuditResourceAudit,
		ResourceID:   resourceID,
		Status:       status,
		Details:      details,
		Meta:         meta,
	})
}

func (q *AuditQueries) authorize(actor domain.Actor, permission string) error {
	if q.Authorizer != nil {
		return q.Authorizer.Require(actor, permission)
	}
	if actor.ID == "" {
		return domain.ErrUnauthorized
	}
	if !actor.HasRole(domain.RoleAuditor) && !actor.HasRole(domain.RoleAdmin) {
		return domain.ErrForbidden
	}
	return nil
}

func describeQuery(query domain.AuditQuery) string {
	details := "search"
	if query.ActorID != "" {
		details += " actor_id=" + query.ActorID
	}
	if query.ActionType != "" {
		details += " action_type=" + string(query.ActionType)
	}
	if !query.From.IsZero() || !query.To.IsZero() {
		details += fmt.Sprintf(" from=%s to=%s", formatTime(query.From), formatTime(query.To))
	}
	return details
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.UTC().Format(time.RFC3339)
}
