package domain

import "errors"

var (
	ErrUnauthorized               = errors.New("unauthorized")
	ErrForbidden                  = errors.New("forbidden")
	ErrInvalidInput               = errors.New("invalid input")
	ErrNotFound                   = errors.New("not found")
	ErrAccessDenied               = errors.New("access denied")
	ErrClassificationNotPermitted = errors.New("classification not permitted")
	ErrCryptographic              = errors.New("cryptographic operation failed")
	ErrIntegrityViolation         = errors.New("integrity violation")
	ErrStorage                    = errors.New("storage failure")
	ErrBlobNotFound               = errors.New("blob not found")
	ErrTransferInterrupted        = errors.New("transfer interrupted")
	ErrRateLimited                = errors.New("rate limited")
)

// ErrorClass returns a short, stable name for err suitable for audit details.
// It never includes the wrapped message.
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrAccessDenied):
		return "ACCESS_DENIED"
	case errors.Is(err, ErrClassificationNotPermitted):
		return "CLASSIFICATION_NOT_PERMITTED"
	case errors.Is(err, ErrCryptographic):
		return "CRYPTOGRAPHIC_ERROR"
	case errors.Is(err, ErrIntegrityViolation):
		return "INTEGRITY_VIOLATION"
	case errors.Is(err, ErrBlobNotFound):
		return "STORAGE_NOT_FOUND"
	case errors.Is(err, ErrStorage):
		return "STORAGE_ERROR"
	case errors.Is(err, ErrTransferInterrupted):
		return "TRANSFER_INTERRUPTED"
	default:
		return "INTERNAL_ERROR"
	}
}
