package schedule

import (
	"fmt"

	"github.com/healthpost/vaxsched/internal/calendar"
	"github.com/healthpost/vaxsched/internal/program"
)

// Administration is a "dose administered" event.
type Administration struct {
	Anchor     calendar.Date
	Template   program.Template
	Dose       string
	Given      calendar.Date
	Today      calendar.Date
	Privileged bool
}

// Engine applies administration events to schedules.
type Engine struct {
	conv      *calendar.Converter
	scheduler *Scheduler
	guard     Guard
}

func NewEngine(conv *calendar.Converter) *Engine {
	if conv == nil {
		conv = calendar.Default()
	}
	return &Engine{conv: conv, scheduler: NewScheduler(conv)}
}

// Scheduler exposes the engine's dose scheduler.
func (e *Engine) Scheduler() *Scheduler { return e.scheduler }

// OnDoseAdministered validates the event, stamps the dose as given and
// regenerates the whole schedule from the anchor so every dose downstream of
// it, however many hops away, picks up the new date. On any error the
// returned schedule is s itself.
func (e *Engine) OnDoseAdministered(s Schedule, a Administration) (Schedule, error) {
	dose, ok := s.Dose(a.Dose)
	if !ok {
		return s, fmt.Errorf("%s: %w", a.Dose, ErrUnknownDose)
	}
	entry, ok := a.Template.Entry(dose.Name)
	if !ok {
		return s, fmt.Errorf("%s: %w", a.Dose, ErrUnknownDose)
	}

	c := Candidate{Dose: dose, Entry: entry, Anchor: a.Anchor}
	if err := e.guard.Validate(c, a.Given, a.Today, a.Privileged); err != nil {
		return s, err
	}

	given, err := e.conv.FromAD(a.Given)
	if err != nil {
		return s, err
	}

	next, err := e.scheduler.Compute(a.Anchor, a.Template, s.withGiven(dose.Name, given))
	if err != nil {
		return s, err
	}
	return next, nil
}
