package reporting

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/healthpost/vaxsched/internal/calendar"
	"github.com/healthpost/vaxsched/internal/platform/auth"
	"github.com/healthpost/vaxsched/internal/program"
	"github.com/healthpost/vaxsched/internal/schedule"
)

// SubjectView is the read-only slice of a subject that reports need.
type SubjectView struct {
	ID       string
	Name     string
	Program  program.Kind
	Schedule schedule.Schedule
	Template program.Template
}

// Source supplies subject views. Schedules must already carry the missed
// classification for today.
type Source interface {
	Views(ctx context.Context, kind program.Kind) ([]SubjectView, error)
	Today() calendar.Date
}

// MeasureDefinition describes one available report.
type MeasureDefinition struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Path        string   `json:"path"`
	Parameters  []string `json:"parameters"`
}

// PredefinedMeasures is the list of available reports.
var PredefinedMeasures = []MeasureDefinition{
	{
		ID:          "monthly-tally",
		Name:        "Monthly Dose Tally",
		Description: "Doses given per dose name in one Bikram Sambat month",
		Path:        "/reports/monthly",
		Parameters:  []string{"program", "year", "month"},
	},
	{
		ID:          "coverage",
		Name:        "Full Immunization Coverage",
		Description: "Subjects whose terminal doses have all been given",
		Path:        "/reports/coverage",
		Parameters:  []string{"program"},
	},
	{
		ID:          "defaulters",
		Name:        "Defaulters",
		Description: "Subjects with at least one missed dose",
		Path:        "/reports/defaulters",
		Parameters:  []string{"program"},
	},
}

// FindMeasure looks up a measure by ID.
func FindMeasure(id string) *MeasureDefinition {
	for i := range PredefinedMeasures {
		if PredefinedMeasures[i].ID == id {
			return &PredefinedMeasures[i]
		}
	}
	return nil
}

// MonthlyTally counts given doses by name whose BS given date falls in
// bsYear/bsMonth. Only subjects of kind are counted.
func MonthlyTally(views []SubjectView, kind program.Kind, bsYear, bsMonth int) map[string]int {
	month := fmt.Sprintf("%02d", bsMonth)
	tally := make(map[string]int)
	for _, v := range views {
		if v.Program != kind {
			continue
		}
		for _, d := range v.Schedule.Doses() {
			if !d.IsGiven() {
				continue
			}
			if d.Given.BS.Year == bsYear && d.Given.BS.MonthSegment() == month {
				tally[d.Name]++
			}
		}
	}
	return tally
}

// FullyImmunized reports whether every terminal dose of the template has
// been given. A template without terminal doses is never complete.
func FullyImmunized(s schedule.Schedule, tpl program.Template) bool {
	terminal := tpl.Terminal()
	if len(terminal) == 0 {
		return false
	}
	for _, name := range terminal {
		d, ok := s.Dose(name)
		if !ok || !d.IsGiven() {
			return false
		}
	}
	return true
}

// Defaulter is a subject with overdue doses.
type Defaulter struct {
	SubjectID string       `json:"subject_id"`
	Name      string       `json:"name"`
	Program   program.Kind `json:"program"`
	Missed    []MissedDose `json:"missed"`
}

type MissedDose struct {
	Dose        string `json:"dose"`
	ScheduledAD string `json:"scheduled_date_ad"`
	ScheduledBS string `json:"scheduled_date_bs"`
	DaysOverdue int    `json:"days_overdue"`
}

// Defaulters lists subjects with at least one missed dose, most overdue
// first.
func Defaulters(views []SubjectView, today calendar.Date) []Defaulter {
	var out []Defaulter
	for _, v := range views {
		var missed []MissedDose
		for _, d := range v.Schedule.Doses() {
			if d.Status != schedule.Missed {
				continue
			}
			missed = append(missed, MissedDose{
				Dose:        d.Name,
				ScheduledAD: d.Scheduled.AD.String(),
				ScheduledBS: d.Scheduled.BS.String(),
				DaysOverdue: today.DaysSince(d.Scheduled.AD),
			})
		}
		if len(missed) > 0 {
			out = append(out, Defaulter{SubjectID: v.ID, Name: v.Name, Program: v.Program, Missed: missed})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Missed[0].DaysOverdue > out[j].Missed[0].DaysOverdue
	})
	return out
}

// MonthlyReport is the body of GET /reports/monthly.
type MonthlyReport struct {
	Program     program.Kind   `json:"program"`
	Year        int            `json:"year"`
	Month       int            `json:"month"`
	Tally       map[string]int `json:"tally"`
	GeneratedAt time.Time      `json:"generated_at"`
}

type CoverageReport struct {
	Program        program.Kind `json:"program"`
	Subjects       int          `json:"subjects"`
	FullyImmunized int          `json:"fully_immunized"`
	CompletedIDs   []string     `json:"completed_ids"`
	GeneratedAt    time.Time    `json:"generated_at"`
}

// Handler provides HTTP handlers for the reporting API.
type Handler struct {
	source Source
}

func NewHandler(source Source) *Handler {
	return &Handler{source: source}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/reports", auth.RequireRole(auth.RoleSupervisor, auth.RoleNurse))
	g.GET("", h.ListMeasures)
	g.GET("/monthly", h.Monthly)
	g.GET("/coverage", h.Coverage)
	g.GET("/defaulters", h.Defaulters)
}

func (h *Handler) ListMeasures(c echo.Context) error {
	return c.JSON(http.StatusOK, PredefinedMeasures)
}

func programParam(c echo.Context, required bool) (program.Kind, error) {
	raw := c.QueryParam("program")
	if raw == "" && !required {
		return "", nil
	}
	kind, err := program.ParseKind(raw)
	if err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return kind, nil
}

func (h *Handler) Monthly(c echo.Context) error {
	kind, err := programParam(c, true)
	if err != nil {
		return err
	}
	year, err := strconv.Atoi(c.QueryParam("year"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "year must be a BS year")
	}
	month, err := strconv.Atoi(c.QueryParam("month"))
	if err != nil || month < 1 || month > 12 {
		return echo.NewHTTPError(http.StatusBadRequest, "month must be 1-12")
	}

	views, err := h.source.Views(c.Request().Context(), kind)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("load subjects: %v", err))
	}
	return c.JSON(http.StatusOK, MonthlyReport{
		Program:     kind,
		Year:        year,
		Month:       month,
		Tally:       MonthlyTally(views, kind, year, month),
		GeneratedAt: time.Now().UTC(),
	})
}

func (h *Handler) Coverage(c echo.Context) error {
	kind, err := programParam(c, true)
	if err != nil {
		return err
	}
	views, err := h.source.Views(c.Request().Context(), kind)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("load subjects: %v", err))
	}

	report := CoverageReport{Program: kind, CompletedIDs: []string{}, GeneratedAt: time.Now().UTC()}
	for _, v := range views {
		if v.Program != kind {
			continue
		}
		report.Subjects++
		if FullyImmunized(v.Schedule, v.Template) {
			report.FullyImmunized++
			report.CompletedIDs = append(report.CompletedIDs, v.ID)
		}
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) Defaulters(c echo.Context) error {
	kind, err := programParam(c, false)
	if err != nil {
		return err
	}
	views, err := h.source.Views(c.Request().Context(), kind)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("load subjects: %v", err))
	}
	list := Defaulters(views, h.source.Today())
	if list == nil {
		list = []Defaulter{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"program":    kind,
		"total":      len(list),
		"defaulters": list,
	})
}
