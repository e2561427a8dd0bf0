package service

import (
	"errors"
	"fmt"
	"strings"

	"possync/backend/internal/domain"
	"possync/backend/internal/store"
)

var (
	ErrValidation      = errors.New("validation error")
	ErrCatalogMismatch = errors.New("catalog mismatch")
	ErrStoreNotFound   = errors.New("store not found")
	ErrPersistence     = errors.New("persistence failure")
	ErrForbidden       = errors.New("forbidden")
)

// CatalogMismatchError lists the product ids that did not resolve for the tenant.
type CatalogMismatchError struct {
	Missing []string
}

func (e *CatalogMismatchError) Error() string {
	return fmt.Sprintf("catalog mismatch: unknown products %s", strings.Join(e.Missing, ", "))
}

func (e *CatalogMismatchError) Unwrap() error {
	return ErrCatalogMismatch
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrPersistence, op, err)
}

// KindOf maps an error returned by the service to the terminal-facing taxonomy. Unknown
// errors are persistence failures.
func KindOf(err error) domain.ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation), errors.Is(err, store.ErrInvalidInput):
		return domain.ErrorKindValidation
	case errors.Is(err, ErrCatalogMismatch):
		return domain.ErrorKindCatalogMismatch
	case errors.Is(err, ErrStoreNotFound):
		return domain.ErrorKindStoreNotFound
	default:
		return domain.ErrorKindPersistenceFailure
	}
}
