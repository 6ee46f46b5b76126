package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"custody/internal/domain"

	"github.com/google/uuid"
)

const blobExtension = ".enc"

var locatorPattern = regexp.MustCompile(`^\d{4}/\d{2}/\d{2}/[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\.enc$`)

// NewLocator returns a date-partitioned locator of the form
// YYYY/MM/DD/<uuid>.enc.
func NewLocator(now time.Time) string {
	now = now.UTC()
	return fmt.Sprintf("%04d/%02d/%02d/%s%s", now.Year(), int(now.Month()), now.Day(), uuid.NewString(), blobExtension)
}

// CleanLocator canonicalizes a stored locator and rejects anything that is not
// a gateway-generated relative path.
func CleanLocator(locator string) (string, error) {
	if locator == "" || strings.ContainsRune(locator, 0) || strings.Contains(locator, "\\") {
		return "", fmt.Errorf("%w: invalid locator", domain.ErrStorage)
	}
	if path.IsAbs(locator) {
		return "", fmt.Errorf("%w: absolute locator", domain.ErrStorage)
	}
	cleaned := path.Clean(locator)
	if cleaned != locator || !locatorPattern.MatchString(cleaned) {
		return "", fmt.Errorf("%w: invalid locator", domain.ErrStorage)
	}
	return cleaned, nil
}
