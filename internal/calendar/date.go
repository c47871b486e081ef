package calendar

import (
	"fmt"
	"time"
)

const adLayout = "2006-01-02"

// Date is a Gregorian (AD) calendar date. It carries no time of day and no
// zone, so arithmetic and comparison never shift across midnight boundaries.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate returns the normalized date for y-m-d. Out-of-range components roll
// over the same way time.Date does.
func NewDate(y int, m time.Month, d int) Date {
	return DateOf(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Today returns the current calendar date as observed in loc.
func Today(loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	return DateOf(time.Now().In(loc))
}

// ParseAD parses a "YYYY-MM-DD" Gregorian date.
func ParseAD(s string) (Date, error) {
	t, err := time.ParseInLocation(adLayout, s, time.UTC)
	if err != nil {
		return Date{}, &ConversionError{Input: s, Reason: "not a YYYY-MM-DD AD date"}
	}
	return DateOf(t), nil
}

func (d Date) IsZero() bool { return d == Date{} }

// Time returns midnight UTC of d.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

// AddMonths moves d by n Gregorian months. When the target month is shorter
// than d.Day the result is clamped to the last day of that month.
func (d Date) AddMonths(n int) Date {
	first := time.Date(d.Year, d.Month+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	day := d.Day
	if day > last {
		day = last
	}
	return Date{Year: first.Year(), Month: first.Month(), Day: day}
}

// DaysSince returns the number of days from o to d (negative if d is earlier).
func (d Date) DaysSince(o Date) int {
	return int(d.dayNumber() - o.dayNumber())
}

func (d Date) Compare(o Date) int {
	switch a, b := d.dayNumber(), o.dayNumber(); {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }
func (d Date) After(o Date) bool  { return d.Compare(o) > 0 }
func (d Date) Equal(o Date) bool  { return d.Compare(o) == 0 }

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return []byte{}, nil
	}
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseAD(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// dayNumber is the count of days since 1970-01-01.
func (d Date) dayNumber() int64 {
	return d.Time().Unix() / 86400
}
