package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func isolateEnv(t *testing.T) *bytes.Buffer {
	t.Helper()
	for _, key := range []string{"POSTGRES_DSN", "MASTER_KEY_BASE64", "MASTER_KEY_HEX", "MASTER_KEY_SECRET_ID", "UPLOAD_POLICY_PATH", "REDIS_ADDR"} {
		t.Setenv(key, "")
	}
	t.Setenv("VAULT_ENV", "development")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("STORAGE_BACKEND", "local")
	t.Setenv("STORAGE_LOCAL_ROOT", t.TempDir())

	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = prev })
	return &buf
}

func TestRunUnknownCommand(t *testing.T) {
	if code := run([]string{"vault-retention"}); code != 1 {
		t.Fatalf("expected usage exit 1, got %d", code)
	}
	if code := run([]string{"vault-retention", "compact"}); code != 1 {
		t.Fatalf("expected usage exit 1, got %d", code)
	}
}

func TestRunSweepEmptyVault(t *testing.T) {
	out := isolateEnv(t)
	if code := run([]string{"vault-retention", "sweep", "--batch-size", "5"}); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	var result struct {
		Examined int `json:"examined"`
		Purged   int `json:"purged"`
	}
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		t.Fatalf("decode output %q: %v", out.String(), err)
	}
	if result.Examined != 0 || result.Purged != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestRunVerifyAuditRequiresWindow(t *testing.T) {
	isolateEnv(t)
	if code := run([]string{"vault-retention", "verify-audit", "--from", "2024-01-01T00:00:00Z"}); code != 1 {
		t.Fatalf("expected exit 1 without --to, got %d", code)
	}
	if code := run([]string{"vault-retention", "verify-audit", "--from", "yesterday", "--to", "today"}); code != 1 {
		t.Fatalf("expected exit 1 for bad timestamps, got %d", code)
	}
}

func TestRunVerifyAuditEmptyWindow(t *testing.T) {
	out := isolateEnv(t)
	from := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	to := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	if code := run([]string{"vault-retention", "verify-audit", "--from", from, "--to", to}); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	var result struct {
		Checked  int      `json:"checked"`
		Tampered []string `json:"tampered"`
	}
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		t.Fatalf("decode output %q: %v", out.String(), err)
	}
	if len(result.Tampered) != 0 {
		t.Fatalf("unexpected tampered ids %v", result.Tampered)
	}
}
