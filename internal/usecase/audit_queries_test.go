package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"custody/internal/domain"
)

func newAuditQueriesFixture(t *testing.T) (*AuditQueries, *AuditTrail, *auditRepoStub) {
	t.Helper()
	repo := &auditRepoStub{}
	trail := NewAuditTrail(repo, fixedClock(time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)), nil)
	return NewAuditQueries(trail, nil), trail, repo
}

func TestAuditQueries_DeniedWithoutAuditorRole(t *testing.T) {
	queries, trail, repo := newAuditQueriesFixture(t)
	analyst := actor("alice", domain.LevelTopSecret, "analyst")

	_, err := queries.Search(context.Background(), analyst, testMeta, domain.AuditQuery{ActorID: "bob"})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	trail.Wait()
	denied := repo.matching(domain.AuditActionAuditQuery, domain.AuditStatusDenied)
	if len(denied) != 1 {
		t.Fatalf("expected one denied audit query record, got %d", len(denied))
	}
	if denied[0].ActorID != "alice" || denied[0].ResourceType != domain.AuditResourceAudit {
		t.Fatalf("unexpected denial record %+v", denied[0])
	}
	if got := len(repo.matching(domain.AuditActionAuditQuery, domain.AuditStatusSuccess)); got != 0 {
		t.Fatalf("expected no success record, got %d", got)
	}
}

func TestAuditQueries_AnonymousUnauthorized(t *testing.T) {
	queries, _, repo := newAuditQueriesFixture(t)
	_, err := queries.Get(context.Background(), domain.Actor{}, testMeta, "x")
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	denied := repo.matching(domain.AuditActionAuditQuery, domain.AuditStatusDenied)
	if len(denied) != 1 || denied[0].ActorID != domain.UnknownRequestValue {
		t.Fatalf("expected denial attributed to unknown actor, got %+v", denied)
	}
}

func TestAuditQueries_SearchAndCustody(t *testing.T) {
	queries, trail, repo := newAuditQueriesFixture(t)
	ctx := context.Background()
	for _, action := range []domain.AuditActionType{domain.AuditActionDocumentUpload, domain.AuditActionDocumentDownload} {
		if _, err := trail.Record(ctx, AuditEntry{
			ActorID:      "bob",
			ActionType:   action,
			ResourceType: domain.AuditResourceDocument,
			ResourceID:   "doc-1",
			Status:       domain.AuditStatusSuccess,
		}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	auditor := actor("amy", domain.LevelUnclassified, domain.RoleAuditor)

	page, err := queries.Search(ctx, auditor, testMeta, domain.AuditQuery{ActorID: "bob"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("expected 2 records for bob, got %d", page.Total)
	}

	chain, err := queries.ChainOfCustody(ctx, auditor, testMeta, domain.AuditResourceDocument, "doc-1")
	if err != nil {
		t.Fatalf("custody: %v", err)
	}
	if len(chain) != 2 {
		t.Fatalf("expected 2 custody records, got %d", len(chain))
	}

	trail.Wait()
	success := repo.matching(domain.AuditActionAuditQuery, domain.AuditStatusSuccess)
	if len(success) != 2 {
		t.Fatalf("expected two AUDIT_QUERY success records, got %d", len(success))
	}
	details := map[string]bool{}
	for _, record := range success {
		details[record.Details] = true
	}
	if !details["search actor_id=bob"] || !details["custody resource_type=DOCUMENT"] {
		t.Fatalf("unexpected query details %v", details)
	}
}

func TestAuditQueries_VerifyRecord(t *testing.T) {
	queries, trail, repo := newAuditQueriesFixture(t)
	ctx := context.Background()
	stored, err := trail.Record(ctx, AuditEntry{
		ActorID:    "bob",
		ActionType: domain.AuditActionLoginFailure,
		Status:     domain.AuditStatusFailure,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	auditor := actor("amy", domain.LevelUnclassified, domain.RoleAuditor)

	out, err := queries.VerifyRecord(ctx, auditor, testMeta, stored.ID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !out.Valid {
		t.Fatalf("expected untouched record to verify")
	}

	repo.mu.Lock()
	repo.records[0].Status = domain.AuditStatusSuccess
	repo.mu.Unlock()
	out, err = queries.VerifyRecord(ctx, auditor, testMeta, stored.ID)
	if err != nil {
		t.Fatalf("verify tampered: %v", err)
	}
	if out.Valid {
		t.Fatalf("expected tampered record to fail verification")
	}

	if _, err := queries.VerifyRecord(ctx, auditor, testMeta, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	trail.Wait()
	if got := len(repo.matching(domain.AuditActionAuditVerify, domain.AuditStatusFailure)); got != 1 {
		t.Fatalf("expected one failed AUDIT_VERIFY record, got %d", got)
	}
}

func TestAuditQueries_SecurityEvents(t *testing.T) {
	queries, trail, _ := newAuditQueriesFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := trail.Record(ctx, AuditEntry{
			ActorID:    "mallory",
			ActionType: domain.AuditActionLoginFailure,
			Status:     domain.AuditStatusFailure,
		}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	admin := actor("root", domain.LevelTopSecret, domain.RoleAdmin)
	count, err := queries.CountSecurityEvents(ctx, admin, testMeta, domain.SecurityEventQuery{
		ActorID:    "mallory",
		ActionType: domain.AuditActionLoginFailure,
	})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 failed logins, got %d", count)
	}
	trail.Wait()
}
