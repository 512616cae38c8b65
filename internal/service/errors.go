package service

import (
	"errors"
	"fmt"

	"storefront/internal/store"

	"github.com/shopspring/decimal"
)

var (
	ErrUnauthenticated    = errors.New("authentication required")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrForbidden          = errors.New("access denied. admin only")
	ErrValidation         = errors.New("validation failed")

	// Store sentinels are re-exported so callers only import service.
	ErrNotFound          = store.ErrNotFound
	ErrInsufficientStock = store.ErrInsufficientStock
	ErrEmailTaken        = store.ErrDuplicate
)

func validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// validateAmount rejects negative money and fractions of a cent. Stored
// amounts are NUMERIC(12, 2).
func validateAmount(field string, d decimal.Decimal) error {
	if d.IsNegative() {
		return validationf("%s must not be negative", field)
	}
	if !d.Equal(d.Truncate(2)) {
		return validationf("%s must have at most 2 decimal places", field)
	}
	return nil
}
