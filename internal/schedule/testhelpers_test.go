package schedule

import (
	"testing"
	"time"

	"github.com/healthpost/vaxsched/internal/calendar"
)

func ad(y int, m time.Month, d int) calendar.Date {
	return calendar.Date{Year: y, Month: m, Day: d}
}

func mustAnchor(t *testing.T, bs string) calendar.Date {
	t.Helper()
	p, err := calendar.Default().ParsePair(bs)
	if err != nil {
		t.Fatalf("parse anchor %s: %v", bs, err)
	}
	return p.AD
}

func mustDose(t *testing.T, s Schedule, name string) Dose {
	t.Helper()
	d, ok := s.Dose(name)
	if !ok {
		t.Fatalf("dose %s not found", name)
	}
	return d
}
