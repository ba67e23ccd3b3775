// Package item holds the domain model for cellar: named records that rest in
// the store until they are old enough to be removed.
package item

import (
	"math"
	"time"
)

// DefaultMinAgeDays is the age gate applied when no override is configured:
// an item may only be deleted once it has rested at least this many full days.
const DefaultMinAgeDays = 5

// TimeLayout renders UTC instants fixed-width (millisecond precision, literal
// Z) so that lexicographic order on stored timestamps equals chronological
// order. This is what ORDER BY created_at relies on.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Item is a single record in the cellar.
// No update operation exists; an item is immutable between creation and
// deletion.
type Item struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

// CreatedTime parses the stored creation timestamp.
// A failure here means the stored row is corrupted.
func (it Item) CreatedTime() (time.Time, error) {
	return ParseTime(it.CreatedAt)
}

// FormatTime renders t in the canonical stored form.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime accepts the canonical form plus any RFC 3339 variant, so rows
// written with coarser precision still load.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// AgeDays returns the elapsed time between created and now in fractional
// days. Negative when created lies in the future.
func AgeDays(created, now time.Time) float64 {
	return now.Sub(created).Hours() / 24
}

// WholeDays floors a fractional day count to full elapsed days. An item aged
// 4 days 23 hours has rested 4 whole days, not 5.
func WholeDays(days float64) int {
	return int(math.Floor(days))
}

// OldEnough reports whether an item created at created has rested at least
// minDays full days by now. The boundary is inclusive: exactly minDays
// qualifies.
func OldEnough(created, now time.Time, minDays int) bool {
	return WholeDays(AgeDays(created, now)) >= minDays
}
