package records

import (
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/yourorg/evidencelog/internal/faults"
)

// Date is a calendar date serialized as YYYY-MM-DD.
type Date = openapi_types.Date

// DateLayout is the wire form of Date.
const DateLayout = openapi_types.DateFormat

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, faults.Validation("malformed date", faults.ValidationItem{
			Code:    "REC-DATE-001",
			Path:    "date",
			Message: "invalid date: " + s,
		})
	}
	return Date{Time: t}, nil
}

// MustDate parses s and panics on failure. Intended for fixtures.
func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// DateOf returns the UTC calendar date of t.
func DateOf(t time.Time) Date {
	u := t.UTC()
	return Date{Time: time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)}
}

// DayNumber returns the number of whole days since 1970-01-01 for d.
func DayNumber(d Date) int {
	u := d.Time.UTC()
	midnight := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	secs := midnight.Unix()
	days := secs / 86400
	if secs%86400 != 0 && secs < 0 {
		days--
	}
	return int(days)
}

// DaysBetween returns b - a in whole days.
func DaysBetween(a, b Date) int {
	return DayNumber(b) - DayNumber(a)
}

// AddDays returns d shifted by n days.
func AddDays(d Date, n int) Date {
	return DateOf(d.Time.UTC().AddDate(0, 0, n))
}

// SameDate reports whether a and b fall on the same calendar day.
func SameDate(a, b Date) bool {
	return DayNumber(a) == DayNumber(b)
}
