package immunization

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthpost/vaxsched/internal/calendar"
	"github.com/healthpost/vaxsched/internal/program"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type subjectRepoPG struct{ pool *pgxpool.Pool }

func NewSubjectRepoPG(pool *pgxpool.Pool) SubjectRepository {
	return &subjectRepoPG{pool: pool}
}

const subjectCols = `id, facility_id, program, regimen, name, contact_phone,
	anchor_ad, anchor_bs, estimated_due_ad, estimated_due_bs,
	schedule, version_id, created_at, updated_at`

func (r *subjectRepoPG) scan(row pgx.Row) (*Subject, error) {
	var (
		s          Subject
		prog, reg  string
		anchorAD   time.Time
		anchorBS   string
		dueAD      *time.Time
		dueBS      *string
		scheduleJS []byte
	)
	err := row.Scan(&s.ID, &s.FacilityID, &prog, &reg, &s.Name, &s.ContactPhone,
		&anchorAD, &anchorBS, &dueAD, &dueBS,
		&scheduleJS, &s.VersionID, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Program = program.Kind(prog)
	s.Regimen = program.Regimen(reg)

	if s.Anchor, err = storedPair(calendar.DateOf(anchorAD), anchorBS); err != nil {
		return nil, fmt.Errorf("subject %s anchor: %w", s.ID, err)
	}
	if dueAD != nil && dueBS != nil {
		due, err := storedPair(calendar.DateOf(*dueAD), *dueBS)
		if err != nil {
			return nil, fmt.Errorf("subject %s due date: %w", s.ID, err)
		}
		s.EstimatedDueDate = &due
	}
	if err := json.Unmarshal(scheduleJS, &s.Schedule); err != nil {
		return nil, fmt.Errorf("subject %s schedule: %w", s.ID, err)
	}
	return &s, nil
}

func (r *subjectRepoPG) Create(ctx context.Context, s *Subject) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	scheduleJS, err := json.Marshal(s.Schedule)
	if err != nil {
		return fmt.Errorf("marshal schedule: %w", err)
	}
	dueAD, dueBS := dueColumns(s)
	s.VersionID = 1

	err = r.pool.QueryRow(ctx, `
		INSERT INTO subjects (id, facility_id, program, regimen, name, contact_phone,
			anchor_ad, anchor_bs, estimated_due_ad, estimated_due_bs, schedule, version_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at, updated_at`,
		s.ID, s.FacilityID, string(s.Program), string(s.Regimen), s.Name, s.ContactPhone,
		s.Anchor.AD.Time(), s.Anchor.BS.String(), dueAD, dueBS, scheduleJS, s.VersionID,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert subject: %w", err)
	}
	return nil
}

func (r *subjectRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Subject, error) {
	return r.scan(r.pool.QueryRow(ctx, `SELECT `+subjectCols+` FROM subjects WHERE id = $1`, id))
}

func (r *subjectRepoPG) Update(ctx context.Context, s *Subject, rec *AdministrationRecord) error {
	scheduleJS, err := json.Marshal(s.Schedule)
	if err != nil {
		return fmt.Errorf("marshal schedule: %w", err)
	}
	dueAD, dueBS := dueColumns(s)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var version int
	var updated time.Time
	err = tx.QueryRow(ctx, `
		UPDATE subjects SET name=$2, contact_phone=$3, anchor_ad=$4, anchor_bs=$5,
			estimated_due_ad=$6, estimated_due_bs=$7, schedule=$8,
			version_id = version_id + 1, updated_at = NOW()
		WHERE id = $1 AND version_id = $9
		RETURNING version_id, updated_at`,
		s.ID, s.Name, s.ContactPhone, s.Anchor.AD.Time(), s.Anchor.BS.String(),
		dueAD, dueBS, scheduleJS, s.VersionID,
	).Scan(&version, &updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return r.missOrConflict(ctx, tx, s.ID)
	}
	if err != nil {
		return fmt.Errorf("update subject: %w", err)
	}

	if rec != nil {
		if _, err := tx.Exec(ctx, `
			INSERT INTO dose_administrations (subject_id, dose, given_ad, given_bs, recorded_by, privileged)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			rec.SubjectID, rec.Dose, rec.Given.AD.Time(), rec.Given.BS.String(), rec.RecordedBy, rec.Privileged,
		); err != nil {
			return fmt.Errorf("record administration: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.VersionID = version
	s.UpdatedAt = updated
	return nil
}

func (r *subjectRepoPG) missOrConflict(ctx context.Context, q queryable, id uuid.UUID) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM subjects WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check subject: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrVersionConflict
}

func (r *subjectRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM subjects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete subject: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *subjectRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Subject, int, error) {
	where := ` WHERE ($1 = '' OR program = $1) AND ($2 = '' OR facility_id = $2)`
	args := []interface{}{string(f.Program), f.FacilityID}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM subjects`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count subjects: %w", err)
	}

	rows, err := r.pool.Query(ctx, `SELECT `+subjectCols+` FROM subjects`+where+
		` ORDER BY created_at DESC, id LIMIT $3 OFFSET $4`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list subjects: %w", err)
	}
	defer rows.Close()

	var items []*Subject
	for rows.Next() {
		s, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func dueColumns(s *Subject) (interface{}, interface{}) {
	if s.EstimatedDueDate == nil {
		return nil, nil
	}
	return s.EstimatedDueDate.AD.Time(), s.EstimatedDueDate.BS.String()
}

// storedPair rebuilds a pair read back from storage, checking that both
// calendars still agree.
func storedPair(ad calendar.Date, bs string) (calendar.Pair, error) {
	p, err := calendar.Default().FromAD(ad)
	if err != nil {
		return calendar.Pair{}, err
	}
	if p.BS.String() != bs {
		return calendar.Pair{}, fmt.Errorf("stored BS %s does not match AD %s (%s)", bs, ad, p.BS)
	}
	return p, nil
}
