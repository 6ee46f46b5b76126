package clearance

import (
	"errors"
	"fmt"

	"custody/internal/domain"
)

// DeniedError carries both levels of a failed check for the audit trail. It
// must never be rendered to the denied requester.
type DeniedError struct {
	Required domain.Level
	Actual   domain.Level
}

func (e *DeniedError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("clearance %s below classification %s", e.Actual, e.Required)
}

func (e *DeniedError) Unwrap() error {
	return domain.ErrAccessDenied
}

func (e *DeniedError) DeniedLevels() (required, actual domain.Level) {
	return e.Required, e.Actual
}

// Validator compares clearances and classifications in the fixed level order.
// An absent clearance or classification counts as UNCLASSIFIED. An unknown
// clearance is treated as UNCLASSIFIED and an unknown classification as the
// highest level, so malformed values never widen access.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) HasAccess(clearance, classification domain.Level) bool {
	return clearanceOrdinal(clearance) >= classificationOrdinal(classification)
}

// AccessibleLevels returns every level at or below clearance, lowest first.
func (v *Validator) AccessibleLevels(clearance domain.Level) []domain.Level {
	ordinal := clearanceOrdinal(clearance)
	levels := domain.Levels()
	return levels[:ordinal+1]
}

func (v *Validator) Enforce(clearance, classification domain.Level) error {
	if v.HasAccess(clearance, classification) {
		return nil
	}
	return &DeniedError{
		Required: classification.Normalize(),
		Actual:   clearance.Normalize(),
	}
}

// IsDenied unwraps a DeniedError from err.
func IsDenied(err error) (*DeniedError, bool) {
	var denied *DeniedError
	if errors.As(err, &denied) {
		return denied, true
	}
	return nil, false
}

func clearanceOrdinal(level domain.Level) int {
	ordinal := level.Ordinal()
	if ordinal < 0 {
		return 0
	}
	return ordinal
}

func classificationOrdinal(level domain.Level) int {
	ordinal := level.Ordinal()
	if ordinal < 0 {
		return len(domain.Levels()) - 1
	}
	return ordinal
}
