package http

import (
	"errors"
	"net/http"

	"custody/internal/domain"
	"custody/internal/infra/auth/rbac"

	"github.com/gin-gonic/gin"
)

// writeDocumentError hides whether a document exists from a caller who may
// not see it: absent and above-clearance documents both answer 403.
func writeDocumentError(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrAccessDenied) {
		writeErrorCode(c, http.StatusForbidden, "FORBIDDEN", "access denied")
		return
	}
	writeError(c, err)
}

func writeAuditError(c *gin.Context, err error) {
	if _, ok := isAuthz(err); ok {
		writeAuthzError(c, err)
		return
	}
	writeError(c, err)
}

// writeError maps a domain error to a stable code. Wrapped messages are never
// returned to the caller.
func writeError(c *gin.Context, err error) {
	status, code, message := http.StatusInternalServerError, "INTERNAL", "internal error"
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status, code, message = http.StatusBadRequest, "INVALID_INPUT", "invalid input"
	case errors.Is(err, domain.ErrUnauthorized):
		status, code, message = http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized"
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrAccessDenied):
		status, code, message = http.StatusForbidden, "FORBIDDEN", "access denied"
	case errors.Is(err, domain.ErrClassificationNotPermitted):
		status, code, message = http.StatusForbidden, "CLASSIFICATION_NOT_PERMITTED", "classification not permitted"
	case errors.Is(err, domain.ErrNotFound):
		status, code, message = http.StatusNotFound, "NOT_FOUND", "not found"
	case errors.Is(err, domain.ErrRateLimited):
		status, code, message = http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded"
	case errors.Is(err, domain.ErrIntegrityViolation), errors.Is(err, domain.ErrCryptographic):
		status, code, message = http.StatusInternalServerError, "INTEGRITY_ERROR", "document failed integrity verification"
	case errors.Is(err, domain.ErrBlobNotFound), errors.Is(err, domain.ErrStorage):
		status, code, message = http.StatusInternalServerError, "STORAGE_ERROR", "storage unavailable"
	}
	writeErrorCode(c, status, code, message)
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}

func isAuthz(err error) (*rbac.AuthzError, bool) {
	if authz, ok := rbac.IsAuthzError(err); ok {
		return authz, true
	}
	return nil, errors.Is(err, domain.ErrForbidden) || errors.Is(err, domain.ErrUnauthorized)
}
