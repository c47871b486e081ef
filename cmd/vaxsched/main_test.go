package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/healthpost/vaxsched/internal/calendar"
	"github.com/healthpost/vaxsched/internal/schedule"
)

func TestRunConvert(t *testing.T) {
	tests := []struct {
		name string
		ad   string
		bs   string
		want string
	}{
		{"ad to bs", "2024-04-13", "", "AD 2024-04-13 = BS 2081-01-01"},
		{"bs to ad", "", "2070-01-01", "AD 2013-04-14 = BS 2070-01-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := runConvert(&buf, tt.ad, tt.bs); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := strings.TrimSpace(buf.String()); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRunConvert_OutOfRange(t *testing.T) {
	var ce *calendar.ConversionError
	if err := runConvert(&bytes.Buffer{}, "", "2069-12-30"); !errors.As(err, &ce) {
		t.Errorf("expected ConversionError, got %v", err)
	}
}

func TestRunSchedule_Child(t *testing.T) {
	var buf bytes.Buffer
	err := runSchedule(&buf, scheduleOptions{
		program: "child",
		anchor:  "2081-05-01",
		given:   []string{"BCG=2081-05-01"},
		today:   "2024-08-20",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Program: child", "2081-05-01 BS / 2024-08-17 AD", "BCG", "MR2", "given"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestRunSchedule_RabiesDefaultsToIntradermal(t *testing.T) {
	var buf bytes.Buffer
	if err := runSchedule(&buf, scheduleOptions{program: "rabies", anchor: "2081-08-10", today: "2024-11-25"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "(intradermal)") {
		t.Errorf("expected intradermal regimen in output:\n%s", out)
	}
	if strings.Contains(out, "D28") {
		t.Errorf("intradermal schedule must not list D28:\n%s", out)
	}
}

func TestRunSchedule_MaternalShowsMarkers(t *testing.T) {
	var buf bytes.Buffer
	if err := runSchedule(&buf, scheduleOptions{program: "maternal-td", anchor: "2081-06-01", today: "2024-09-20"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "manual") || !strings.Contains(out, "awaiting") {
		t.Errorf("expected manual and awaiting markers:\n%s", out)
	}
}

func TestRunSchedule_RejectsEarlyDose(t *testing.T) {
	opts := scheduleOptions{
		program: "child",
		anchor:  "2081-05-01",
		given:   []string{"OPV1=2081-05-10"},
		today:   "2024-12-01",
	}
	err := runSchedule(&bytes.Buffer{}, opts)
	var rej *schedule.EligibilityRejection
	if !errors.As(err, &rej) || rej.Rule != schedule.RuleBeforeSchedule {
		t.Fatalf("expected before-schedule rejection, got %v", err)
	}

	opts.privileged = true
	if err := runSchedule(&bytes.Buffer{}, opts); err != nil {
		t.Errorf("privileged run should accept early dose: %v", err)
	}
}

func TestRunSchedule_BadInput(t *testing.T) {
	tests := []struct {
		name string
		opts scheduleOptions
	}{
		{"unknown program", scheduleOptions{program: "flu", anchor: "2081-01-01"}},
		{"bad anchor", scheduleOptions{program: "child", anchor: "2081-13-01"}},
		{"malformed given", scheduleOptions{program: "child", anchor: "2081-01-01", given: []string{"BCG"}}},
		{"bad today", scheduleOptions{program: "child", anchor: "2081-01-01", today: "yesterday"}},
		{"bad timezone", scheduleOptions{program: "child", anchor: "2081-01-01", timezone: "Mars/Olympus"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := runSchedule(&bytes.Buffer{}, tt.opts); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRunSchedule_TodayFromFacilityZone(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kathmandu")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}
	want := calendar.Today(loc).String()

	var buf bytes.Buffer
	if err := runSchedule(&buf, scheduleOptions{program: "child", anchor: "2081-05-01"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "Today:   "+want+" AD") {
		t.Errorf("expected today %s in the facility zone, got:\n%s", want, buf.String())
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "migrate", "schedule", "convert"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("expected subcommand %s, got %v", name, err)
		}
	}
}

func TestConvertCmd_Execute(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"convert", "--bs", "2081-01-01"})
	if err := root.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "AD 2024-04-13") {
		t.Errorf("unexpected output %q", out.String())
	}
}
