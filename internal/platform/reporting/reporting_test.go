package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/healthpost/vaxsched/internal/calendar"
	"github.com/healthpost/vaxsched/internal/program"
	"github.com/healthpost/vaxsched/internal/schedule"
)

func pair(t *testing.T, bs string) calendar.Pair {
	t.Helper()
	p, err := calendar.Default().ParsePair(bs)
	if err != nil {
		t.Fatalf("parse %s: %v", bs, err)
	}
	return p
}

func givenDose(t *testing.T, name, bs string) schedule.Dose {
	p := pair(t, bs)
	return schedule.Dose{Name: name, Status: schedule.Given, Resolution: schedule.Scheduled, Scheduled: p, Given: &p}
}

func missedDose(t *testing.T, name, bs string) schedule.Dose {
	return schedule.Dose{Name: name, Status: schedule.Missed, Resolution: schedule.Scheduled, Scheduled: pair(t, bs)}
}

func TestMonthlyTally(t *testing.T) {
	views := []SubjectView{
		{ID: "a", Program: program.Child, Schedule: schedule.New(
			givenDose(t, "BCG", "2081-04-02"),
			givenDose(t, "OPV1", "2081-05-14"),
		)},
		{ID: "b", Program: program.Child, Schedule: schedule.New(
			givenDose(t, "BCG", "2081-04-30"),
			givenDose(t, "OPV1", "2080-04-10"),
		)},
		{ID: "c", Program: program.Rabies, Schedule: schedule.New(
			givenDose(t, "D0", "2081-04-05"),
		)},
	}

	tally := MonthlyTally(views, program.Child, 2081, 4)
	if tally["BCG"] != 2 {
		t.Errorf("expected 2 BCG doses, got %d", tally["BCG"])
	}
	if _, ok := tally["OPV1"]; ok {
		t.Errorf("OPV1 given in other months must not be counted, got %v", tally)
	}
	if _, ok := tally["D0"]; ok {
		t.Errorf("doses from other programs must not be counted, got %v", tally)
	}
}

func TestMonthlyTally_Empty(t *testing.T) {
	if got := MonthlyTally(nil, program.Child, 2081, 1); len(got) != 0 {
		t.Errorf("expected empty tally, got %v", got)
	}
}

func TestFullyImmunized(t *testing.T) {
	tpl := program.MaternalTDTemplate()
	tests := []struct {
		name  string
		sched schedule.Schedule
		want  bool
	}{
		{"nothing given", schedule.New(), false},
		{"only TD1", schedule.New(givenDose(t, "TD1", "2081-01-10")), false},
		{"TD2 given", schedule.New(
			givenDose(t, "TD1", "2081-01-10"),
			givenDose(t, "TD2", "2081-02-08"),
		), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FullyImmunized(tt.sched, tpl); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestFullyImmunized_NoTerminalDoses(t *testing.T) {
	tpl := program.New(program.Child, program.Entry{Name: "BCG", Anchor: program.Origin})
	if FullyImmunized(schedule.New(givenDose(t, "BCG", "2081-01-01")), tpl) {
		t.Error("template without terminal doses is never complete")
	}
}

func TestDefaulters_SortsMostOverdueFirst(t *testing.T) {
	today := pair(t, "2081-06-01").AD
	views := []SubjectView{
		{ID: "recent", Program: program.Child, Schedule: schedule.New(missedDose(t, "OPV2", "2081-05-20"))},
		{ID: "ok", Program: program.Child, Schedule: schedule.New(givenDose(t, "BCG", "2081-01-01"))},
		{ID: "old", Program: program.Child, Schedule: schedule.New(missedDose(t, "OPV1", "2081-03-01"))},
	}

	list := Defaulters(views, today)
	if len(list) != 2 {
		t.Fatalf("expected 2 defaulters, got %d", len(list))
	}
	if list[0].SubjectID != "old" || list[1].SubjectID != "recent" {
		t.Errorf("unexpected order: %s, %s", list[0].SubjectID, list[1].SubjectID)
	}
	if list[0].Missed[0].DaysOverdue <= list[1].Missed[0].DaysOverdue {
		t.Errorf("expected descending days overdue, got %+v", list)
	}
	if list[1].Missed[0].ScheduledBS != "2081-05-20" {
		t.Errorf("expected BS date 2081-05-20, got %s", list[1].Missed[0].ScheduledBS)
	}
}

func TestFindMeasure(t *testing.T) {
	if m := FindMeasure("monthly-tally"); m == nil || m.Path != "/reports/monthly" {
		t.Errorf("expected monthly-tally measure, got %+v", m)
	}
	if FindMeasure("nonexistent") != nil {
		t.Error("expected nil for unknown measure")
	}
}

func TestPredefinedMeasures_UniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for _, m := range PredefinedMeasures {
		if seen[m.ID] {
			t.Errorf("duplicate measure ID %s", m.ID)
		}
		seen[m.ID] = true
		if m.Name == "" || m.Path == "" {
			t.Errorf("measure %s is missing name or path", m.ID)
		}
	}
}

// -- Handler tests --

type fakeSource struct {
	views []SubjectView
	today calendar.Date
	err   error
	asked program.Kind
}

func (f *fakeSource) Views(_ context.Context, kind program.Kind) ([]SubjectView, error) {
	f.asked = kind
	return f.views, f.err
}

func (f *fakeSource) Today() calendar.Date { return f.today }

func TestHandler_Monthly(t *testing.T) {
	src := &fakeSource{views: []SubjectView{
		{ID: "a", Program: program.Child, Schedule: schedule.New(givenDose(t, "BCG", "2081-04-02"))},
	}}
	h := NewHandler(src)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/reports/monthly?program=child&year=2081&month=4", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Monthly(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body MonthlyReport
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Tally["BCG"] != 1 {
		t.Errorf("expected BCG 1, got %v", body.Tally)
	}
	if src.asked != program.Child {
		t.Errorf("expected source queried for child, got %q", src.asked)
	}
}

func TestHandler_MonthlyValidation(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"missing program", "year=2081&month=4"},
		{"unknown program", "program=flu&year=2081&month=4"},
		{"bad year", "program=child&year=abc&month=4"},
		{"month out of range", "program=child&year=2081&month=13"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(&fakeSource{})
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/reports/monthly?"+tt.query, nil)
			c := e.NewContext(req, httptest.NewRecorder())

			err := h.Monthly(c)
			httpErr, ok := err.(*echo.HTTPError)
			if !ok {
				t.Fatalf("expected echo.HTTPError, got %T", err)
			}
			if httpErr.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", httpErr.Code)
			}
		})
	}
}

func TestHandler_Coverage(t *testing.T) {
	src := &fakeSource{views: []SubjectView{
		{ID: "done", Program: program.MaternalTD, Template: program.MaternalTDTemplate(), Schedule: schedule.New(
			givenDose(t, "TD1", "2081-01-10"),
			givenDose(t, "TD2", "2081-02-08"),
		)},
		{ID: "open", Program: program.MaternalTD, Template: program.MaternalTDTemplate(), Schedule: schedule.New(
			givenDose(t, "TD1", "2081-01-10"),
		)},
	}}
	h := NewHandler(src)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/reports/coverage?program=maternal-td", nil)
	rec := httptest.NewRecorder()
	if err := h.Coverage(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body CoverageReport
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Subjects != 2 || body.FullyImmunized != 1 {
		t.Errorf("expected 1 of 2 fully immunized, got %d of %d", body.FullyImmunized, body.Subjects)
	}
	if len(body.CompletedIDs) != 1 || body.CompletedIDs[0] != "done" {
		t.Errorf("unexpected completed ids %v", body.CompletedIDs)
	}
}

func TestHandler_Defaulters(t *testing.T) {
	src := &fakeSource{
		today: pair(t, "2081-06-01").AD,
		views: []SubjectView{
			{ID: "late", Program: program.Child, Schedule: schedule.New(missedDose(t, "OPV1", "2081-03-01"))},
		},
	}
	h := NewHandler(src)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/reports/defaulters", nil)
	rec := httptest.NewRecorder()
	if err := h.Defaulters(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Total      int         `json:"total"`
		Defaulters []Defaulter `json:"defaulters"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 1 || body.Defaulters[0].SubjectID != "late" {
		t.Errorf("unexpected body %+v", body)
	}
	if src.asked != "" {
		t.Errorf("expected all programs, got %q", src.asked)
	}
}

func TestHandler_SourceError(t *testing.T) {
	h := NewHandler(&fakeSource{err: errors.New("db down")})
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/reports/defaulters", nil)
	err := h.Defaulters(e.NewContext(req, httptest.NewRecorder()))
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %v", err)
	}
}

func TestHandler_ListMeasures(t *testing.T) {
	h := NewHandler(&fakeSource{})
	e := echo.New()
	rec := httptest.NewRecorder()
	if err := h.ListMeasures(e.NewContext(httptest.NewRequest(http.MethodGet, "/reports", nil), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got []MeasureDefinition
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != len(PredefinedMeasures) {
		t.Errorf("expected %d measures, got %d", len(PredefinedMeasures), len(got))
	}
}
