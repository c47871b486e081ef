package schedule

import (
	"encoding/json"
	"strings"

	"github.com/healthpost/vaxsched/internal/calendar"
)

// Schedule is the ordered dose list of one subject, in template order. It is
// a value: recalculation returns a new Schedule and never modifies the
// receiver.
type Schedule struct {
	doses []Dose
}

// New builds a schedule from doses, copying them.
func New(doses ...Dose) Schedule {
	cp := make([]Dose, len(doses))
	for i, d := range doses {
		cp[i] = d.clone()
	}
	return Schedule{doses: cp}
}

func (s Schedule) Len() int { return len(s.doses) }

// Doses returns a copy of the doses in template order.
func (s Schedule) Doses() []Dose {
	out := make([]Dose, len(s.doses))
	for i, d := range s.doses {
		out[i] = d.clone()
	}
	return out
}

// Dose looks a dose up by name, preferring an exact match and falling back
// to a case-insensitive one.
func (s Schedule) Dose(name string) (Dose, bool) {
	for _, d := range s.doses {
		if d.Name == name {
			return d.clone(), true
		}
	}
	for _, d := range s.doses {
		if strings.EqualFold(d.Name, name) {
			return d.clone(), true
		}
	}
	return Dose{}, false
}

// AnyGiven reports whether at least one dose has been administered.
func (s Schedule) AnyGiven() bool {
	for _, d := range s.doses {
		if d.IsGiven() {
			return true
		}
	}
	return false
}

// withGiven returns a copy of s with the named dose stamped as given.
func (s Schedule) withGiven(name string, given calendar.Pair) Schedule {
	out := New(s.doses...)
	for i := range out.doses {
		if out.doses[i].Name == name {
			g := given
			out.doses[i].Status = Given
			out.doses[i].Given = &g
		}
	}
	return out
}

// isOverdue reports whether a pending dose's scheduled date plus grace days
// has passed.
func isOverdue(d Dose, today calendar.Date, graceDays int) bool {
	return d.Status != Given && d.HasDate() && d.Scheduled.AD.AddDays(graceDays).Before(today)
}

// Overdue returns the doses that are past due as of today.
func (s Schedule) Overdue(today calendar.Date, graceDays int) []Dose {
	var out []Dose
	for _, d := range s.doses {
		if isOverdue(d, today, graceDays) {
			out = append(out, d.clone())
		}
	}
	return out
}

// WithOverdue returns a copy of s in which every overdue dose is Missed and
// every other undated or upcoming dose is Pending. Given doses are untouched.
func (s Schedule) WithOverdue(today calendar.Date, graceDays int) Schedule {
	out := New(s.doses...)
	for i, d := range out.doses {
		if d.IsGiven() {
			continue
		}
		if isOverdue(d, today, graceDays) {
			out.doses[i].Status = Missed
		} else {
			out.doses[i].Status = Pending
		}
	}
	return out
}

func (s Schedule) MarshalJSON() ([]byte, error) {
	if s.doses == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.doses)
}

func (s *Schedule) UnmarshalJSON(b []byte) error {
	var doses []Dose
	if err := json.Unmarshal(b, &doses); err != nil {
		return err
	}
	s.doses = doses
	return nil
}
