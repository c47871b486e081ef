package immunization

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/healthpost/vaxsched/internal/calendar"
	"github.com/healthpost/vaxsched/internal/program"
)

// subjectRepoSQLite stores subjects in the single-file database used by
// health posts that run without a PostgreSQL server. Dates are stored as
// ISO strings.
type subjectRepoSQLite struct{ db *sql.DB }

func NewSubjectRepoSQLite(db *sql.DB) SubjectRepository {
	return &subjectRepoSQLite{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *subjectRepoSQLite) scan(row rowScanner) (*Subject, error) {
	var (
		s                    Subject
		id, prog, reg        string
		anchorAD, anchorBS   string
		dueAD, dueBS         sql.NullString
		scheduleJS           string
		createdAt, updatedAt string
	)
	err := row.Scan(&id, &s.FacilityID, &prog, &reg, &s.Name, &s.ContactPhone,
		&anchorAD, &anchorBS, &dueAD, &dueBS,
		&scheduleJS, &s.VersionID, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if s.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("subject id %q: %w", id, err)
	}
	s.Program = program.Kind(prog)
	s.Regimen = program.Regimen(reg)

	ad, err := calendar.ParseAD(anchorAD)
	if err != nil {
		return nil, err
	}
	if s.Anchor, err = storedPair(ad, anchorBS); err != nil {
		return nil, fmt.Errorf("subject %s anchor: %w", s.ID, err)
	}
	if dueAD.Valid && dueBS.Valid {
		d, err := calendar.ParseAD(dueAD.String)
		if err != nil {
			return nil, err
		}
		due, err := storedPair(d, dueBS.String)
		if err != nil {
			return nil, fmt.Errorf("subject %s due date: %w", s.ID, err)
		}
		s.EstimatedDueDate = &due
	}
	if err := json.Unmarshal([]byte(scheduleJS), &s.Schedule); err != nil {
		return nil, fmt.Errorf("subject %s schedule: %w", s.ID, err)
	}
	s.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	s.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &s, nil
}

func sqliteDue(s *Subject) (sql.NullString, sql.NullString) {
	if s.EstimatedDueDate == nil {
		return sql.NullString{}, sql.NullString{}
	}
	return sql.NullString{String: s.EstimatedDueDate.AD.String(), Valid: true},
		sql.NullString{String: s.EstimatedDueDate.BS.String(), Valid: true}
}

func (r *subjectRepoSQLite) Create(ctx context.Context, s *Subject) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	scheduleJS, err := json.Marshal(s.Schedule)
	if err != nil {
		return fmt.Errorf("marshal schedule: %w", err)
	}
	dueAD, dueBS := sqliteDue(s)
	now := time.Now().UTC()
	s.VersionID = 1

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO subjects (id, facility_id, program, regimen, name, contact_phone,
			anchor_ad, anchor_bs, estimated_due_ad, estimated_due_bs, schedule, version_id,
			created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID.String(), s.FacilityID, string(s.Program), string(s.Regimen), s.Name, s.ContactPhone,
		s.Anchor.AD.String(), s.Anchor.BS.String(), dueAD, dueBS, string(scheduleJS), s.VersionID,
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert subject: %w", err)
	}
	s.CreatedAt, s.UpdatedAt = now, now
	return nil
}

func (r *subjectRepoSQLite) GetByID(ctx context.Context, id uuid.UUID) (*Subject, error) {
	return r.scan(r.db.QueryRowContext(ctx, `SELECT `+subjectCols+` FROM subjects WHERE id = ?`, id.String()))
}

func (r *subjectRepoSQLite) Update(ctx context.Context, s *Subject, rec *AdministrationRecord) error {
	scheduleJS, err := json.Marshal(s.Schedule)
	if err != nil {
		return fmt.Errorf("marshal schedule: %w", err)
	}
	dueAD, dueBS := sqliteDue(s)
	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE subjects SET name=?, contact_phone=?, anchor_ad=?, anchor_bs=?,
			estimated_due_ad=?, estimated_due_bs=?, schedule=?,
			version_id = version_id + 1, updated_at = ?
		WHERE id = ? AND version_id = ?`,
		s.Name, s.ContactPhone, s.Anchor.AD.String(), s.Anchor.BS.String(),
		dueAD, dueBS, string(scheduleJS), now.Format(time.RFC3339Nano),
		s.ID.String(), s.VersionID)
	if err != nil {
		return fmt.Errorf("update subject: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update subject: %w", err)
	}
	if n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM subjects WHERE id = ?`, s.ID.String()).Scan(&exists); err != nil {
			return fmt.Errorf("check subject: %w", err)
		}
		if exists == 0 {
			return ErrNotFound
		}
		return ErrVersionConflict
	}

	if rec != nil {
		recordedAt := rec.RecordedAt
		if recordedAt.IsZero() {
			recordedAt = now
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO dose_administrations (subject_id, dose, given_ad, given_bs, recorded_by, privileged, recorded_at)
			VALUES (?,?,?,?,?,?,?)`,
			rec.SubjectID.String(), rec.Dose, rec.Given.AD.String(), rec.Given.BS.String(),
			rec.RecordedBy, rec.Privileged, recordedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("record administration: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.VersionID++
	s.UpdatedAt = now
	return nil
}

func (r *subjectRepoSQLite) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM subjects WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete subject: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *subjectRepoSQLite) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Subject, int, error) {
	where := ` WHERE (? = '' OR program = ?) AND (? = '' OR facility_id = ?)`
	args := []interface{}{string(f.Program), string(f.Program), f.FacilityID, f.FacilityID}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subjects`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count subjects: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+subjectCols+` FROM subjects`+where+
		` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, append(args, limit, offset)...)
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
