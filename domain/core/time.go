package core

import (
	"fmt"
	"time"
)

// Date represents a civil date (no time-of-day component). The zero value
// is "no date" and reports IsZero.
type Date struct {
	t time.Time
}

// NewDate creates a date from year, month and day in UTC
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a time.Time to its calendar date
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// Today returns the current calendar date
func Today() Date {
	return DateOf(time.Now())
}

// ParseDate parses an ISO 8601 date string (YYYY-MM-DD). Full timestamps are
// accepted and truncated to their date, matching how upstream feeds report.
func ParseDate(s string) (Date, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return DateOf(t), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// Time returns the underlying time.Time at midnight UTC
func (d Date) Time() time.Time {
	return d.t
}

// IsZero checks if the date is unset
func (d Date) IsZero() bool {
	return d.t.IsZero()
}

// Before returns true if d is before u
func (d Date) Before(u Date) bool {
	return d.t.Before(u.t)
}

// After returns true if d is after u
func (d Date) After(u Date) bool {
	return d.t.After(u.t)
}

// Equal returns true if both dates name the same day
func (d Date) Equal(u Date) bool {
	return d.t.Equal(u.t)
}

// AddDays returns the date shifted by n calendar days
func (d Date) AddDays(n int) Date {
	return Date{t: d.t.AddDate(0, 0, n)}
}

// DaysSince returns the number of whole days from u to d
func (d Date) DaysSince(u Date) int {
	return int(d.t.Sub(u.t) / (24 * time.Hour))
}

// Within reports whether d falls in [start, end] inclusive
func (d Date) Within(start, end Date) bool {
	return !d.Before(start) && !d.After(end)
}

// String returns the ISO representation
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format("2006-01-02")
}

// JSON marshaling for Date
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" || s == `""` {
		*d = Date{}
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
