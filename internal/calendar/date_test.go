package calendar

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDate_AddDaysAcrossYear(t *testing.T) {
	d := Date{2023, time.December, 20}
	if got := d.AddDays(42); got != (Date{2024, time.January, 31}) {
		t.Errorf("expected 2024-01-31, got %s", got)
	}
	if got := d.AddDays(-20); got != (Date{2023, time.November, 30}) {
		t.Errorf("expected 2023-11-30, got %s", got)
	}
}

func TestDate_AddMonthsClampsToMonthEnd(t *testing.T) {
	tests := []struct {
		in   Date
		n    int
		want Date
	}{
		{Date{2023, time.May, 15}, 6, Date{2023, time.November, 15}},
		{Date{2023, time.August, 31}, 6, Date{2024, time.February, 29}},
		{Date{2022, time.August, 31}, 6, Date{2023, time.February, 28}},
		{Date{2023, time.December, 31}, 6, Date{2024, time.June, 30}},
	}
	for _, tc := range tests {
		if got := tc.in.AddMonths(tc.n); got != tc.want {
			t.Errorf("%s.AddMonths(%d) = %s, want %s", tc.in, tc.n, got, tc.want)
		}
	}
}

func TestDateOf_UsesLocationCalendarDay(t *testing.T) {
	ktm := time.FixedZone("NPT", 5*3600+45*60)
	// 20:00 UTC on the 1st is already the 2nd in Kathmandu.
	ts := time.Date(2024, time.January, 1, 20, 0, 0, 0, time.UTC)
	if got := DateOf(ts.In(ktm)); got != (Date{2024, time.January, 2}) {
		t.Errorf("expected 2024-01-02, got %s", got)
	}
	if got := DateOf(ts); got != (Date{2024, time.January, 1}) {
		t.Errorf("expected 2024-01-01, got %s", got)
	}
}

func TestDate_CompareAndDaysSince(t *testing.T) {
	a := Date{2024, time.March, 1}
	b := Date{2024, time.February, 28}
	if !b.Before(a) || !a.After(b) || a.Equal(b) {
		t.Error("comparison mismatch")
	}
	if n := a.DaysSince(b); n != 2 {
		t.Errorf("expected 2 days, got %d", n)
	}
}

func TestDate_JSON(t *testing.T) {
	type wrap struct {
		D Date   `json:"d"`
		B BSDate `json:"b"`
	}
	in := wrap{D: Date{2023, time.April, 14}, B: BSDate{2080, 1, 1}}
	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"d":"2023-04-14","b":"2080-01-01"}` {
		t.Errorf("unexpected json: %s", raw)
	}
	var out wrap
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out != in {
		t.Errorf("expected %+v, got %+v", in, out)
	}
}

func TestParseAD(t *testing.T) {
	if _, err := ParseAD("2023-02-30"); err == nil {
		t.Error("expected error for invalid AD date")
	}
	d, err := ParseAD("2023-04-14")
	if err != nil || d != (Date{2023, time.April, 14}) {
		t.Errorf("unexpected parse result %v %v", d, err)
	}
}
