package schedule

import (
	"encoding/json"
	"fmt"

	"github.com/healthpost/vaxsched/internal/calendar"
)

type Status string

const (
	Pending Status = "pending"
	Given   Status = "given"
	Missed  Status = "missed"
)

// Resolution describes where a dose's scheduled date came from.
type Resolution string

const (
	// Scheduled doses carry a computed date.
	Scheduled Resolution = "scheduled"
	// Manual doses are administered on clinical judgment and never get a
	// computed date.
	Manual Resolution = "manual"
	// Awaiting doses anchor to a dose that has no date yet.
	Awaiting Resolution = "awaiting"
	// Unresolved doses could not be dated because the template is
	// misconfigured or the date falls outside the supported calendar range.
	Unresolved Resolution = "unresolved"
)

// Dose is one entry of a subject's schedule.
type Dose struct {
	Name       string
	Label      string
	Anchor     string
	Status     Status
	Resolution Resolution
	Scheduled  calendar.Pair
	Given      *calendar.Pair
}

func (d Dose) IsGiven() bool { return d.Status == Given && d.Given != nil }

// HasDate reports whether the dose carries a computed scheduled date.
func (d Dose) HasDate() bool { return d.Resolution == Scheduled }

func (d Dose) clone() Dose {
	if d.Given != nil {
		g := *d.Given
		d.Given = &g
	}
	return d
}

type doseJSON struct {
	Name        string     `json:"name"`
	Label       string     `json:"label,omitempty"`
	Anchor      string     `json:"anchor,omitempty"`
	Status      Status     `json:"status"`
	Resolution  Resolution `json:"resolution"`
	ScheduledAD string     `json:"scheduled_date_ad"`
	ScheduledBS string     `json:"scheduled_date_bs"`
	GivenAD     *string    `json:"given_date_ad"`
	GivenBS     *string    `json:"given_date_bs"`
}

// MarshalJSON writes the scheduled date fields as the resolution marker when
// the dose has no computed date.
func (d Dose) MarshalJSON() ([]byte, error) {
	out := doseJSON{
		Name:        d.Name,
		Label:       d.Label,
		Anchor:      d.Anchor,
		Status:      d.Status,
		Resolution:  d.Resolution,
		ScheduledAD: string(d.Resolution),
		ScheduledBS: string(d.Resolution),
	}
	if d.HasDate() {
		out.ScheduledAD = d.Scheduled.AD.String()
		out.ScheduledBS = d.Scheduled.BS.String()
	}
	if d.Given != nil {
		ad, bs := d.Given.AD.String(), d.Given.BS.String()
		out.GivenAD, out.GivenBS = &ad, &bs
	}
	return json.Marshal(out)
}

func (d *Dose) UnmarshalJSON(b []byte) error {
	var in doseJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	out := Dose{
		Name:       in.Name,
		Label:      in.Label,
		Anchor:     in.Anchor,
		Status:     in.Status,
		Resolution: in.Resolution,
	}
	if out.Resolution == Scheduled {
		p, err := parsePair(in.ScheduledAD, in.ScheduledBS)
		if err != nil {
			return fmt.Errorf("dose %s scheduled date: %w", in.Name, err)
		}
		out.Scheduled = p
	}
	if (in.GivenAD == nil) != (in.GivenBS == nil) {
		return fmt.Errorf("dose %s: given date must be set in both calendars", in.Name)
	}
	if in.GivenAD != nil {
		p, err := parsePair(*in.GivenAD, *in.GivenBS)
		if err != nil {
			return fmt.Errorf("dose %s given date: %w", in.Name, err)
		}
		out.Given = &p
	}
	if (out.Status == Given) != (out.Given != nil) {
		return fmt.Errorf("dose %s: status %q inconsistent with given date", in.Name, in.Status)
	}
	*d = out
	return nil
}

func parsePair(ad, bs string) (calendar.Pair, error) {
	a, err := calendar.ParseAD(ad)
	if err != nil {
		return calendar.Pair{}, err
	}
	b, err := calendar.Default().ParseBS(bs)
	if err != nil {
		return calendar.Pair{}, err
	}
	return calendar.Pair{AD: a, BS: b}, nil
}
