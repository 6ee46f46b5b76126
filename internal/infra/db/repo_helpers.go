package db

import (
	"errors"
	"strings"

	"custody/internal/domain"

	"github.com/google/uuid"
)

var errDBUnavailable = errors.New("db unavailable")

// validID reports whether id can be compared against a uuid column. Malformed
// ids never match a row, so callers treat them as not found.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func levelStrings(levels []domain.Level) []string {
	out := make([]string, 0, len(levels))
	for _, level := range levels {
		out = append(out, string(level.Normalize()))
	}
	return out
}

func likePattern(value string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
	return "%" + escaped + "%"
}

func copyBytes(in []byte) []byte {
	if in == nil {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func stringPtrIfNotEmpty(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
