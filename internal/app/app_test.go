package app

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"custody/internal/config"
	"custody/internal/domain"
	"custody/internal/infra/keys"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		VaultEnv:                 "development",
		StorageBackend:           config.StorageBackendLocal,
		StorageLocalRoot:         t.TempDir(),
		MaxUploadBytes:           1 << 20,
		AuditDetailsMax:          1000,
		AuditAsyncTimeoutSeconds: 5,
		TransferTimeoutSeconds:   30,
		RetentionDays:            90,
		RetentionBatchSize:       10,
	}
}

func TestBuildInMemoryWithEphemeralKey(t *testing.T) {
	a, err := Build(context.Background(), testConfig(t), nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.Close()

	if a.StoreMode != StoreModeMemory {
		t.Fatalf("expected memory store, got %q", a.StoreMode)
	}
	if !a.MasterKey.Ephemeral || a.MasterKey.Source != keys.SourceEphemeral {
		t.Fatalf("expected ephemeral key, got %+v", a.MasterKey)
	}
	if a.Vault == nil || a.Queries == nil || a.Policy == nil {
		t.Fatalf("expected vault, queries and policy to be wired")
	}
	if a.RateLimiter != nil {
		t.Fatalf("rate limiter should be off when RATE_LIMIT_REQUESTS is 0")
	}

	if err := a.RecordStartup(context.Background(), "vaultd"); err != nil {
		t.Fatalf("record startup: %v", err)
	}
	for _, action := range []domain.AuditActionType{domain.AuditActionMasterKeyEphemeral, domain.AuditActionSystemStartup} {
		page, err := a.Trail.Query(context.Background(), domain.AuditQuery{ActionType: action})
		if err != nil {
			t.Fatalf("query %s: %v", action, err)
		}
		if page.Total != 1 {
			t.Fatalf("expected one %s record, got %d", action, page.Total)
		}
		if page.Items[0].ActorID != domain.AuditSystemActorID {
			t.Fatalf("unexpected actor %q", page.Items[0].ActorID)
		}
	}
	startup, _ := a.Trail.Query(context.Background(), domain.AuditQuery{ActionType: domain.AuditActionSystemStartup})
	if !strings.Contains(startup.Items[0].Details, "store=memory") {
		t.Fatalf("unexpected startup details %q", startup.Items[0].Details)
	}
}

func TestBuildWithConfiguredKeySkipsEphemeralRecord(t *testing.T) {
	cfg := testConfig(t)
	cfg.MasterKeyBase64 = base64.StdEncoding.EncodeToString(make([]byte, 32))
	cfg.RateLimitRequests = 5
	a, err := Build(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.Close()
	if a.MasterKey.Ephemeral {
		t.Fatalf("configured key must not be ephemeral")
	}
	if a.RateLimiter == nil {
		t.Fatalf("expected in-memory rate limiter")
	}
	if err := a.RecordStartup(context.Background(), "vaultd"); err != nil {
		t.Fatalf("record startup: %v", err)
	}
	page, err := a.Trail.Query(context.Background(), domain.AuditQuery{ActionType: domain.AuditActionMasterKeyEphemeral})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if page.Total != 0 {
		t.Fatalf("expected no ephemeral record, got %d", page.Total)
	}
}

func TestBuildProductionRequiresDatabase(t *testing.T) {
	cfg := testConfig(t)
	cfg.VaultEnv = "production"
	if _, err := Build(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected production without POSTGRES_DSN to fail")
	}
}

func TestBuildRejectsUnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.StorageBackend = "tape"
	if _, err := Build(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected unsupported backend error")
	}
}

func TestBuildRejectsMissingPolicyFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.UploadPolicyPath = "/nonexistent/upload.rego"
	if _, err := Build(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected missing policy file to fail")
	}
}

func TestRetentionSweeperUsesConfig(t *testing.T) {
	a, err := Build(context.Background(), testConfig(t), nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.Close()
	sweeper := a.RetentionSweeper()
	if sweeper.BatchSize != 10 || sweeper.Retention != a.Config.RetentionPeriod() {
		t.Fatalf("unexpected sweeper config: batch=%d retention=%s", sweeper.BatchSize, sweeper.Retention)
	}
	result, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if result.Examined != 0 {
		t.Fatalf("expected empty sweep, got %+v", result)
	}
}
