package domain

import (
	"fmt"
	"strings"
)

// Level is a classification or clearance tier. Levels form a single total order,
// lowest first: UNCLASSIFIED, CUI, CONFIDENTIAL, SECRET, TOP_SECRET.
type Level string

const (
	LevelUnclassified Level = "UNCLASSIFIED"
	LevelCUI          Level = "CUI"
	LevelConfidential Level = "CONFIDENTIAL"
	LevelSecret       Level = "SECRET"
	LevelTopSecret    Level = "TOP_SECRET"
)

var orderedLevels = []Level{
	LevelUnclassified,
	LevelCUI,
	LevelConfidential,
	LevelSecret,
	LevelTopSecret,
}

// Levels returns every level in ascending order.
func Levels() []Level {
	out := make([]Level, len(orderedLevels))
	copy(out, orderedLevels)
	return out
}

// Ordinal returns the position of l in the order. The empty level is
// UNCLASSIFIED; unknown values return -1.
func (l Level) Ordinal() int {
	if l == "" {
		return 0
	}
	for i, candidate := range orderedLevels {
		if candidate == l {
			return i
		}
	}
	return -1
}

// Normalize maps the empty level to UNCLASSIFIED.
func (l Level) Normalize() Level {
	if l == "" {
		return LevelUnclassified
	}
	return l
}

func (l Level) Valid() bool {
	return l.Ordinal() >= 0
}

// ParseLevel accepts case-insensitive names and the "TOP SECRET" / "TOP-SECRET"
// spellings. Empty input parses to UNCLASSIFIED.
func ParseLevel(value string) (Level, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return LevelUnclassified, nil
	}
	normalized := strings.ToUpper(value)
	normalized = strings.NewReplacer(" ", "_", "-", "_").Replace(normalized)
	level := Level(normalized)
	if !level.Valid() {
		return "", fmt.Errorf("%w: unknown level %q", ErrInvalidInput, value)
	}
	return level, nil
}
