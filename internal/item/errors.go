package item

import (
	"errors"
	"fmt"
)

var (
	// ErrNameRequired is returned when a create carries a missing, blank, or
	// non-string name.
	ErrNameRequired = errors.New("cellar: item name is required")

	// ErrNotFound is returned when the referenced item does not exist, or was
	// deleted between lookup and delete.
	ErrNotFound = errors.New("cellar: item not found")
)

// AgeRestrictionError reports a delete refused by the age gate.
// AgeDays carries the exact fractional age at the time of the attempt, so the
// boundary can surface it on the wire.
type AgeRestrictionError struct {
	AgeDays float64
	MinDays int
}

func (e *AgeRestrictionError) Error() string {
	return fmt.Sprintf("cellar: item has rested %.2f days, deletion requires %d", e.AgeDays, e.MinDays)
}

// IsAgeRestricted reports whether err is (or wraps) an age gate refusal.
func IsAgeRestricted(err error) bool {
	var ar *AgeRestrictionError
	return errors.As(err, &ar)
}
