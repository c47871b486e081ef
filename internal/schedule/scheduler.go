package schedule

import (
	"github.com/healthpost/vaxsched/internal/calendar"
	"github.com/healthpost/vaxsched/internal/program"
)

// Scheduler computes a subject's dose list from an anchor date and a program
// template.
type Scheduler struct {
	conv *calendar.Converter
}

func NewScheduler(conv *calendar.Converter) *Scheduler {
	if conv == nil {
		conv = calendar.Default()
	}
	return &Scheduler{conv: conv}
}

// Compute walks the template in definition order. Doses already given in
// prior are carried forward unchanged and their given date anchors any later
// dose that references them; every other dose is recomputed from its anchor's
// effective date. The result always follows template order.
func (s *Scheduler) Compute(anchor calendar.Date, tpl program.Template, prior Schedule) (Schedule, error) {
	if anchor.IsZero() {
		return Schedule{}, &ValidationError{Field: "anchor_date", Reason: "anchor date is required"}
	}
	if tpl.Len() == 0 {
		return Schedule{}, &ValidationError{Field: "template", Reason: "program has no doses"}
	}

	// effective holds the date each processed dose contributes as an anchor:
	// its given date when administered, else its fresh scheduled date.
	effective := make(map[string]calendar.Date, tpl.Len())
	processed := make(map[string]bool, tpl.Len())
	unresolved := make(map[string]bool)
	effective[program.Origin] = anchor
	processed[program.Origin] = true

	doses := make([]Dose, 0, tpl.Len())
	for _, e := range tpl.Entries() {
		processed[e.Name] = true

		if p, ok := prior.Dose(e.Name); ok && p.IsGiven() {
			doses = append(doses, p)
			effective[e.Name] = p.Given.AD
			continue
		}

		d := Dose{Name: e.Name, Label: e.Label, Anchor: e.Anchor, Status: Pending}
		switch base, ok := effective[e.Anchor]; {
		case e.Manual:
			d.Resolution = Manual
		case ok:
			pair, err := s.conv.FromAD(offset(base, e))
			if err != nil {
				d.Resolution = Unresolved
				break
			}
			d.Resolution = Scheduled
			d.Scheduled = pair
			effective[e.Name] = pair.AD
		case processed[e.Anchor] && !unresolved[e.Anchor]:
			d.Resolution = Awaiting
		default:
			d.Resolution = Unresolved
		}
		if d.Resolution == Unresolved {
			unresolved[e.Name] = true
		}
		doses = append(doses, d)
	}
	return Schedule{doses: doses}, nil
}

// offset applies the entry's month step (Gregorian, clamped to month end) and
// then its day step.
func offset(base calendar.Date, e program.Entry) calendar.Date {
	if e.Months != 0 {
		base = base.AddMonths(e.Months)
	}
	return base.AddDays(e.Days)
}
