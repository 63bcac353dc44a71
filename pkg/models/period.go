package models

import (
	"fmt"
	"time"
)

// DateLayout is the storage and wire format for calendar dates.
const DateLayout = "2006-01-02"

// Period identifies one closure cycle.
type Period struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

// PeriodOf returns the period of t's UTC calendar date. Local time zones are
// ignored so that a late-evening entry never drifts into the next month.
func PeriodOf(t time.Time) Period {
	u := t.UTC()
	return Period{Month: int(u.Month()), Year: u.Year()}
}

func (p Period) Valid() bool {
	return p.Month >= 1 && p.Month <= 12 && p.Year >= 1
}

// Start is the first instant of the period (inclusive).
func (p Period) Start() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

// End is the first instant of the following period (exclusive).
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

func (p Period) Contains(t time.Time) bool {
	u := t.UTC()
	return !u.Before(p.Start()) && u.Before(p.End())
}

func (p Period) Before(o Period) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	return p.Month < o.Month
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// Date truncates t to its UTC calendar date.
func Date(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date as UTC midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}
