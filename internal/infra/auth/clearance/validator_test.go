package clearance

import (
	"errors"
	"testing"

	"custody/internal/domain"
)

func TestValidator_HasAccessOrder(t *testing.T) {
	v := NewValidator()
	levels := domain.Levels()
	for i, clearance := range levels {
		for j, classification := range levels {
			got := v.HasAccess(clearance, classification)
			want := i >= j
			if got != want {
				t.Fatalf("HasAccess(%s, %s) = %v, want %v", clearance, classification, got, want)
			}
		}
	}
}

func TestValidator_AbsentLevels(t *testing.T) {
	v := NewValidator()
	if !v.HasAccess("", domain.LevelUnclassified) {
		t.Fatal("absent clearance should reach UNCLASSIFIED")
	}
	if v.HasAccess("", domain.LevelCUI) {
		t.Fatal("absent clearance must not reach CUI")
	}
	if !v.HasAccess(domain.LevelUnclassified, "") {
		t.Fatal("absent classification should be accessible to everyone")
	}
}

func TestValidator_UnknownLevelsAreRestrictive(t *testing.T) {
	v := NewValidator()
	if v.HasAccess("ROOT", domain.LevelCUI) {
		t.Fatal("unknown clearance must not grant access")
	}
	if v.HasAccess(domain.LevelSecret, "ULTRA") {
		t.Fatal("unknown classification must require the highest clearance")
	}
	if !v.HasAccess(domain.LevelTopSecret, "ULTRA") {
		t.Fatal("highest clearance should reach an unknown classification")
	}
}

func TestValidator_AccessibleLevelsMonotonic(t *testing.T) {
	v := NewValidator()
	levels := domain.Levels()
	for i := range levels {
		for j := i; j < len(levels); j++ {
			lower := v.AccessibleLevels(levels[i])
			higher := v.AccessibleLevels(levels[j])
			if len(higher) < len(lower) {
				t.Fatalf("AccessibleLevels(%s) smaller than AccessibleLevels(%s)", levels[j], levels[i])
			}
			for k, level := range lower {
				if higher[k] != level {
					t.Fatalf("AccessibleLevels(%s) is not a superset of AccessibleLevels(%s)", levels[j], levels[i])
				}
				if !v.HasAccess(levels[j], level) {
					t.Fatalf("clearance %s should reach %s", levels[j], level)
				}
			}
		}
	}
	if got := v.AccessibleLevels(""); len(got) != 1 || got[0] != domain.LevelUnclassified {
		t.Fatalf("absent clearance should list only UNCLASSIFIED, got %v", got)
	}
}

func TestValidator_AccessibleLevelsIsolated(t *testing.T) {
	v := NewValidator()
	first := v.AccessibleLevels(domain.LevelSecret)
	first[0] = "MUTATED"
	second := v.AccessibleLevels(domain.LevelSecret)
	if second[0] != domain.LevelUnclassified {
		t.Fatal("callers must not be able to mutate the shared level order")
	}
}

func TestValidator_EnforceCarriesLevels(t *testing.T) {
	v := NewValidator()
	if err := v.Enforce(domain.LevelSecret, domain.LevelSecret); err != nil {
		t.Fatalf("expected access, got %v", err)
	}
	err := v.Enforce(domain.LevelConfidential, domain.LevelSecret)
	if !errors.Is(err, domain.ErrAccessDenied) {
		t.Fatalf("expected access denied, got %v", err)
	}
	denied, ok := IsDenied(err)
	if !ok {
		t.Fatalf("expected DeniedError, got %T", err)
	}
	if denied.Required != domain.LevelSecret || denied.Actual != domain.LevelConfidential {
		t.Fatalf("unexpected levels required=%s actual=%s", denied.Required, denied.Actual)
	}
	denied, _ = IsDenied(v.Enforce("", domain.LevelCUI))
	if denied == nil || denied.Actual != domain.LevelUnclassified {
		t.Fatal("absent clearance should be reported as UNCLASSIFIED")
	}
}
