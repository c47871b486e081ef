package schedule

import (
	"errors"
	"fmt"

	"github.com/healthpost/vaxsched/internal/calendar"
)

// ErrUnknownDose is returned when an administration names a dose that is not
// part of the subject's schedule.
var ErrUnknownDose = errors.New("dose is not part of this schedule")

// ValidationError reports missing or malformed input when a schedule is
// created.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Rule names an eligibility check.
type Rule string

const (
	RuleFutureDate     Rule = "future-date"
	RuleBeforeSchedule Rule = "before-schedule"
	RuleAnchorPending  Rule = "anchor-pending"
	RuleAlreadyGiven   Rule = "already-given"
)

// EligibilityRejection is returned when a proposed administration date breaks
// a rule. Scheduled is zero when the dose has no computed date.
type EligibilityRejection struct {
	Rule      Rule
	Dose      string
	Proposed  calendar.Date
	Scheduled calendar.Pair
}

func (e *EligibilityRejection) Error() string {
	switch e.Rule {
	case RuleFutureDate:
		return fmt.Sprintf("%s cannot be recorded on %s: date is in the future", e.Dose, e.Proposed)
	case RuleBeforeSchedule:
		return fmt.Sprintf("%s cannot be given on %s: scheduled for %s (BS %s)",
			e.Dose, e.Proposed, e.Scheduled.AD, e.Scheduled.BS)
	case RuleAnchorPending:
		return fmt.Sprintf("%s has no scheduled date yet: its anchor dose has not been given", e.Dose)
	}
	return fmt.Sprintf("%s rejected: %s", e.Dose, e.Rule)
}

// AlreadyGivenConflict is returned when a dose that is already recorded is
// administered again without the privileged capability.
type AlreadyGivenConflict struct {
	Dose  string
	Given calendar.Pair
}

func (e *AlreadyGivenConflict) Error() string {
	return fmt.Sprintf("%s was already given on %s (BS %s)", e.Dose, e.Given.AD, e.Given.BS)
}
