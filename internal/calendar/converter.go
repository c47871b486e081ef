package calendar

import (
	"fmt"
	"strconv"
	"sync"
)

// Converter maps dates between the Gregorian and Bikram Sambat calendars over
// a fixed range of BS years. A Converter is immutable and safe for concurrent
// use.
type Converter struct {
	firstYear int
	months    [][12]int
	epoch     Date
	// yearStart[i] is the AD day number of 1 Baisakh of firstYear+i; the last
	// element is the day after the final supported Chaitra.
	yearStart []int64
}

// NewConverter builds a converter for the BS years starting at firstYear whose
// first day falls on epoch.
func NewConverter(firstYear int, epoch Date, months [][12]int) (*Converter, error) {
	if len(months) == 0 {
		return nil, fmt.Errorf("calendar: empty month table")
	}
	if epoch.IsZero() {
		return nil, fmt.Errorf("calendar: epoch is required")
	}
	starts := make([]int64, len(months)+1)
	starts[0] = epoch.dayNumber()
	for i, year := range months {
		total := 0
		for m, n := range year {
			if n < 29 || n > 32 {
				return nil, fmt.Errorf("calendar: BS %d month %d has invalid length %d", firstYear+i, m+1, n)
			}
			total += n
		}
		starts[i+1] = starts[i] + int64(total)
	}
	return &Converter{firstYear: firstYear, months: months, epoch: epoch, yearStart: starts}, nil
}

var (
	defaultOnce sync.Once
	defaultConv *Converter
)

// Default returns the converter backed by the built-in month table.
func Default() *Converter {
	defaultOnce.Do(func() {
		c, err := NewConverter(bsFirstYear, bsEpoch, bsMonthDays)
		if err != nil {
			panic(err)
		}
		defaultConv = c
	})
	return defaultConv
}

// Range returns the first and last BS dates the converter supports.
func (c *Converter) Range() (BSDate, BSDate) {
	lastYear := c.firstYear + len(c.months) - 1
	return BSDate{Year: c.firstYear, Month: 1, Day: 1},
		BSDate{Year: lastYear, Month: 12, Day: c.months[len(c.months)-1][11]}
}

// MonthLength returns the number of days in the given BS month.
func (c *Converter) MonthLength(year, month int) (int, error) {
	idx := year - c.firstYear
	if idx < 0 || idx >= len(c.months) {
		return 0, &ConversionError{Input: strconv.Itoa(year), Reason: "BS year outside supported range"}
	}
	if month < 1 || month > 12 {
		return 0, &ConversionError{Input: strconv.Itoa(month), Reason: "BS month must be 01-12"}
	}
	return c.months[idx][month-1], nil
}

// ToBS converts an AD date to its BS equivalent.
func (c *Converter) ToBS(d Date) (BSDate, error) {
	day := d.dayNumber()
	last := len(c.yearStart) - 1
	if day < c.yearStart[0] || day >= c.yearStart[last] {
		return BSDate{}, &ConversionError{Input: d.String(), Reason: "AD date outside supported range"}
	}
	yi := 0
	for yi+1 < last && c.yearStart[yi+1] <= day {
		yi++
	}
	rem := int(day - c.yearStart[yi])
	for m, n := range c.months[yi] {
		if rem < n {
			return BSDate{Year: c.firstYear + yi, Month: m + 1, Day: rem + 1}, nil
		}
		rem -= n
	}
	// unreachable: yearStart is the running sum of the same table
	return BSDate{}, &ConversionError{Input: d.String(), Reason: "month table inconsistent"}
}

// ToAD converts a BS date to its AD equivalent. The day must not exceed the
// actual length of that BS month.
func (c *Converter) ToAD(b BSDate) (Date, error) {
	n, err := c.MonthLength(b.Year, b.Month)
	if err != nil {
		return Date{}, err
	}
	if b.Day < 1 || b.Day > n {
		return Date{}, &ConversionError{
			Input:  FormatBS(b),
			Reason: fmt.Sprintf("day must be 01-%02d for BS %04d-%02d", n, b.Year, b.Month),
		}
	}
	yi := b.Year - c.firstYear
	offset := b.Day - 1
	for m := 0; m < b.Month-1; m++ {
		offset += c.months[yi][m]
	}
	return c.epoch.AddDays(int(c.yearStart[yi]-c.yearStart[0]) + offset), nil
}

// ParseBS parses a zero-padded "YYYY-MM-DD" BS date and checks it against the
// month table.
func (c *Converter) ParseBS(s string) (BSDate, error) {
	if len(s) != 10 || s[4] != '-' || s[7] != '-' {
		return BSDate{}, &ConversionError{Input: s, Reason: "expected YYYY-MM-DD"}
	}
	parts := [3]string{s[0:4], s[5:7], s[8:10]}
	var nums [3]int
	for i, p := range parts {
		for _, r := range p {
			if r < '0' || r > '9' {
				return BSDate{}, &ConversionError{Input: s, Reason: "expected YYYY-MM-DD"}
			}
		}
		nums[i], _ = strconv.Atoi(p)
	}
	b := BSDate{Year: nums[0], Month: nums[1], Day: nums[2]}
	if _, err := c.ToAD(b); err != nil {
		if ce, ok := err.(*ConversionError); ok {
			return BSDate{}, &ConversionError{Input: s, Reason: ce.Reason}
		}
		return BSDate{}, err
	}
	return b, nil
}

// Pair holds one calendar day in both representations.
type Pair struct {
	AD Date   `json:"ad"`
	BS BSDate `json:"bs"`
}

func (p Pair) IsZero() bool { return p.AD.IsZero() && p.BS.IsZero() }

// FromAD returns the pair for an AD date.
func (c *Converter) FromAD(d Date) (Pair, error) {
	bs, err := c.ToBS(d)
	if err != nil {
		return Pair{}, err
	}
	return Pair{AD: d, BS: bs}, nil
}

// FromBS returns the pair for a BS date.
func (c *Converter) FromBS(b BSDate) (Pair, error) {
	ad, err := c.ToAD(b)
	if err != nil {
		return Pair{}, err
	}
	return Pair{AD: ad, BS: b}, nil
}

// ParsePair parses a BS string and derives its AD date.
func (c *Converter) ParsePair(s string) (Pair, error) {
	b, err := c.ParseBS(s)
	if err != nil {
		return Pair{}, err
	}
	return c.FromBS(b)
}
