package immunization

import (
	"time"

	"github.com/google/uuid"

	"github.com/healthpost/vaxsched/internal/calendar"
	"github.com/healthpost/vaxsched/internal/program"
	"github.com/healthpost/vaxsched/internal/schedule"
)

// gestationDays is the LMP to estimated-due-date interval.
const gestationDays = 280

// Subject is a child, pregnant woman or exposure case enrolled in one
// program. Anchor is the date the program's "origin" refers to: birth date,
// last menstrual period or day-0 exposure.
type Subject struct {
	ID               uuid.UUID         `json:"id"`
	FacilityID       string            `json:"facility_id,omitempty"`
	Program          program.Kind      `json:"program"`
	Regimen          program.Regimen   `json:"regimen,omitempty"`
	Name             string            `json:"name"`
	ContactPhone     string            `json:"contact_phone,omitempty"`
	Anchor           calendar.Pair     `json:"anchor"`
	EstimatedDueDate *calendar.Pair    `json:"estimated_due_date,omitempty"`
	Schedule         schedule.Schedule `json:"schedule"`
	VersionID        int               `json:"version_id"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// GetVersionID returns the current version.
func (s *Subject) GetVersionID() int { return s.VersionID }

// SetVersionID sets the current version.
func (s *Subject) SetVersionID(v int) { s.VersionID = v }

// AdministrationRecord is the audit row written alongside each administered
// dose.
type AdministrationRecord struct {
	SubjectID  uuid.UUID
	Dose       string
	Given      calendar.Pair
	RecordedBy string
	Privileged bool
	RecordedAt time.Time
}

// ListFilter narrows a subject listing. Empty fields match everything.
type ListFilter struct {
	Program    program.Kind
	FacilityID string
}

func (f ListFilter) matches(s *Subject) bool {
	if f.Program != "" && s.Program != f.Program {
		return false
	}
	if f.FacilityID != "" && s.FacilityID != f.FacilityID {
		return false
	}
	return true
}
