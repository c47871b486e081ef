package immunization

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("subject not found")
	ErrVersionConflict = errors.New("subject was modified concurrently")
	ErrAnchorLocked    = errors.New("anchor date cannot change after a dose has been given")
)

// SubjectRepository persists subjects and their schedules.
type SubjectRepository interface {
	Create(ctx context.Context, s *Subject) error
	GetByID(ctx context.Context, id uuid.UUID) (*Subject, error)
	// Update writes s if the stored version still equals s.VersionID, then
	// bumps s.VersionID. rec, when non-nil, is written in the same
	// transaction.
	Update(ctx context.Context, s *Subject, rec *AdministrationRecord) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Subject, int, error)
}
