package schedule

import (
	"github.com/healthpost/vaxsched/internal/calendar"
	"github.com/healthpost/vaxsched/internal/program"
)

// Candidate is a dose proposed for administration together with the context
// the eligibility rules need.
type Candidate struct {
	Dose   Dose
	Entry  program.Entry
	Anchor calendar.Date
}

// Guard validates administration dates before a schedule is recalculated.
type Guard struct{}

// Validate rejects future dates for everyone. Unprivileged callers are then
// refused re-administration of a given dose, and any date before the
// scheduled one; the origin+0 dose is bounded by the anchor date instead. It
// never adjusts the proposed date.
func (Guard) Validate(c Candidate, proposed, today calendar.Date, privileged bool) error {
	if proposed.After(today) {
		return &EligibilityRejection{Rule: RuleFutureDate, Dose: c.Dose.Name, Proposed: proposed, Scheduled: c.Dose.Scheduled}
	}

	if !privileged {
		if c.Dose.IsGiven() {
			return &AlreadyGivenConflict{Dose: c.Dose.Name, Given: *c.Dose.Given}
		}
		switch {
		case c.Entry.IsOriginZero():
			if proposed.Before(c.Anchor) {
				return &EligibilityRejection{Rule: RuleBeforeSchedule, Dose: c.Dose.Name, Proposed: proposed, Scheduled: c.Dose.Scheduled}
			}
		case c.Dose.Resolution == Manual:
		case c.Dose.HasDate():
			if proposed.Before(c.Dose.Scheduled.AD) {
				return &EligibilityRejection{Rule: RuleBeforeSchedule, Dose: c.Dose.Name, Proposed: proposed, Scheduled: c.Dose.Scheduled}
			}
		default:
			return &EligibilityRejection{Rule: RuleAnchorPending, Dose: c.Dose.Name, Proposed: proposed}
		}
	}
	return nil
}
