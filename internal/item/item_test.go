package item

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestOldEnough(t *testing.T) {
	now := time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		created time.Time
		want    bool
	}{
		{
			name:    "Exactly five days",
			created: now.Add(-5 * 24 * time.Hour),
			want:    true,
		},
		{
			name:    "Six days",
			created: now.Add(-6 * 24 * time.Hour),
			want:    true,
		},
		{
			name:    "Four days twenty-three hours",
			created: now.Add(-(4*24 + 23) * time.Hour),
			want:    false,
		},
		{
			name:    "Just past five days",
			created: now.Add(-5*24*time.Hour - time.Second),
			want:    true,
		},
		{
			name:    "Brand new",
			created: now,
			want:    false,
		},
		{
			name:    "Created in the future",
			created: now.Add(time.Hour),
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OldEnough(tt.created, now, DefaultMinAgeDays); got != tt.want {
				t.Errorf("OldEnough(%v) = %v, want %v", tt.created, got, tt.want)
			}
		})
	}
}

func TestWholeDays(t *testing.T) {
	tests := []struct {
		days float64
		want int
	}{
		{0, 0},
		{0.999, 0},
		{4.958, 4}, // 4d23h must display as 4, never 5
		{5.0, 5},
		{5.5, 5},
		{-0.5, -1},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%.3f", tt.days), func(t *testing.T) {
			if got := WholeDays(tt.days); got != tt.want {
				t.Errorf("WholeDays(%v) = %d, want %d", tt.days, got, tt.want)
			}
		})
	}
}

func TestAgeDays(t *testing.T) {
	now := time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC)
	created := now.Add(-36 * time.Hour)

	got := AgeDays(created, now)
	if got != 1.5 {
		t.Errorf("AgeDays = %v, want 1.5", got)
	}
}

func TestTimeRoundTrip(t *testing.T) {
	now := time.Date(2025, 8, 20, 12, 30, 45, 123_000_000, time.UTC)

	s := FormatTime(now)
	if s != "2025-08-20T12:30:45.123Z" {
		t.Errorf("FormatTime = %q", s)
	}

	parsed, err := ParseTime(s)
	if err != nil {
		t.Fatalf("ParseTime failed: %v", err)
	}
	if !parsed.Equal(now) {
		t.Errorf("round trip mismatch: %v != %v", parsed, now)
	}
}

func TestParseTimeAcceptsCoarserPrecision(t *testing.T) {
	// Rows written without fractional seconds must still load.
	parsed, err := ParseTime("2025-08-20T12:30:45Z")
	if err != nil {
		t.Fatalf("ParseTime failed: %v", err)
	}
	if parsed.Second() != 45 {
		t.Errorf("unexpected parse result: %v", parsed)
	}
}

func TestParseTimeRejectsGarbage(t *testing.T) {
	if _, err := ParseTime("not-a-timestamp"); err == nil {
		t.Error("expected parse failure for garbage input")
	}
}

func TestFormatTimeOrdersLexicographically(t *testing.T) {
	// The fixed-width layout is what lets the store sort on the raw column.
	a := FormatTime(time.Date(2025, 8, 20, 10, 0, 0, 500_000_000, time.UTC))
	b := FormatTime(time.Date(2025, 8, 20, 10, 0, 1, 0, time.UTC))
	if !(a < b) {
		t.Errorf("expected %q < %q", a, b)
	}
}

func TestAgeRestrictionError(t *testing.T) {
	err := fmt.Errorf("delete: %w", &AgeRestrictionError{AgeDays: 3.25, MinDays: 5})

	if !IsAgeRestricted(err) {
		t.Error("IsAgeRestricted should see through wrapping")
	}

	var ar *AgeRestrictionError
	if !errors.As(err, &ar) {
		t.Fatal("errors.As failed")
	}
	if ar.AgeDays != 3.25 || ar.MinDays != 5 {
		t.Errorf("unexpected payload: %+v", ar)
	}

	if IsAgeRestricted(ErrNotFound) {
		t.Error("ErrNotFound is not an age restriction")
	}
}
