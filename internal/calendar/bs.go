package calendar

import "fmt"

// BSDate is a Bikram Sambat calendar date. Month is 1 (Baisakh) through 12
// (Chaitra).
type BSDate struct {
	Year  int
	Month int
	Day   int
}

func (b BSDate) IsZero() bool { return b == BSDate{} }

// String formats b as zero-padded "YYYY-MM-DD".
func (b BSDate) String() string { return FormatBS(b) }

// MonthSegment returns the two-digit month of the formatted date, i.e.
// characters 6-7 of "YYYY-MM-DD".
func (b BSDate) MonthSegment() string {
	return fmt.Sprintf("%02d", b.Month)
}

func (b BSDate) Compare(o BSDate) int {
	switch {
	case b.Year != o.Year:
		return cmpInt(b.Year, o.Year)
	case b.Month != o.Month:
		return cmpInt(b.Month, o.Month)
	}
	return cmpInt(b.Day, o.Day)
}

func (b BSDate) MarshalText() ([]byte, error) {
	if b.IsZero() {
		return []byte{}, nil
	}
	return []byte(FormatBS(b)), nil
}

// UnmarshalText parses with the default converter so month lengths are
// validated.
func (b *BSDate) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*b = BSDate{}
		return nil
	}
	parsed, err := Default().ParseBS(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// FormatBS renders b as "YYYY-MM-DD" with a 4-digit year and 2-digit month
// and day.
func FormatBS(b BSDate) string {
	return fmt.Sprintf("%04d-%02d-%02d", b.Year, b.Month, b.Day)
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
