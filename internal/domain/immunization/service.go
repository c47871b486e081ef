package immunization

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"github.com/rs/zerolog"

	"github.com/healthpost/vaxsched/internal/calendar"
	"github.com/healthpost/vaxsched/internal/platform/reporting"
	"github.com/healthpost/vaxsched/internal/program"
	"github.com/healthpost/vaxsched/internal/schedule"
)

// defaultPhoneRegion is used for contact numbers written without a country
// code.
const defaultPhoneRegion = "NP"

// scanPageSize bounds each repository page read by whole-table scans.
const scanPageSize = 500

// Options configures a Service.
type Options struct {
	// Location decides which calendar day "today" is.
	Location *time.Location
	// GraceDays is how many days past its scheduled date a pending dose is
	// still not reported as missed.
	GraceDays int
	// Now overrides the wall clock in tests.
	Now func() time.Time
}

type Service struct {
	subjects  SubjectRepository
	catalog   *program.Catalog
	conv      *calendar.Converter
	engine    *schedule.Engine
	loc       *time.Location
	graceDays int
	now       func() time.Time
	logger    zerolog.Logger
}

func NewService(subjects SubjectRepository, catalog *program.Catalog, opts Options, logger zerolog.Logger) *Service {
	if catalog == nil {
		catalog = program.DefaultCatalog()
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	conv := calendar.Default()
	return &Service{
		subjects:  subjects,
		catalog:   catalog,
		conv:      conv,
		engine:    schedule.NewEngine(conv),
		loc:       loc,
		graceDays: opts.GraceDays,
		now:       now,
		logger:    logger.With().Str("component", "immunization").Logger(),
	}
}

// Today is the current calendar date at the facility.
func (s *Service) Today() calendar.Date {
	return calendar.DateOf(s.now().In(s.loc))
}

func (s *Service) Catalog() *program.Catalog { return s.catalog }

func (s *Service) Converter() *calendar.Converter { return s.conv }

// -- Registration --

type RegisterInput struct {
	Program      string `json:"program"`
	AnchorDateBS string `json:"anchor_date_bs"`
	Regimen      string `json:"regimen,omitempty"`
	Name         string `json:"name"`
	ContactPhone string `json:"contact_phone,omitempty"`
	FacilityID   string `json:"-"`
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*Subject, error) {
	kind, err := program.ParseKind(in.Program)
	if err != nil {
		return nil, &schedule.ValidationError{Field: "program", Reason: err.Error()}
	}
	regimen, err := s.regimenFor(kind, in.Regimen)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, &schedule.ValidationError{Field: "name", Reason: "is required"}
	}
	phone, err := normalizePhone(in.ContactPhone)
	if err != nil {
		return nil, err
	}
	anchor, err := s.parseAnchor(in.AnchorDateBS)
	if err != nil {
		return nil, err
	}
	tpl, err := s.catalog.Template(kind, regimen)
	if err != nil {
		return nil, &schedule.ValidationError{Field: "program", Reason: err.Error()}
	}

	sched, err := s.engine.Scheduler().Compute(anchor.AD, tpl, schedule.Schedule{})
	if err != nil {
		return nil, err
	}

	subj := &Subject{
		FacilityID:   in.FacilityID,
		Program:      kind,
		Regimen:      regimen,
		Name:         name,
		ContactPhone: phone,
		Anchor:       anchor,
		Schedule:     sched,
	}
	if kind == program.MaternalTD {
		subj.EstimatedDueDate = s.dueDate(anchor)
	}

	if err := s.subjects.Create(ctx, subj); err != nil {
		return nil, fmt.Errorf("create subject: %w", err)
	}

	s.logger.Info().
		Str("subject_id", subj.ID.String()).
		Str("program", string(kind)).
		Str("anchor_bs", anchor.BS.String()).
		Msg("subject registered")
	return s.present(subj), nil
}

// regimenFor applies the regimen rules: rabies defaults to intradermal and
// every other program ignores the field.
func (s *Service) regimenFor(kind program.Kind, raw string) (program.Regimen, error) {
	if kind != program.Rabies {
		return program.RegimenNone, nil
	}
	r, err := program.ParseRegimen(raw)
	if err != nil {
		return "", &schedule.ValidationError{Field: "regimen", Reason: err.Error()}
	}
	if r == program.RegimenNone {
		r = program.Intradermal
	}
	return r, nil
}

func (s *Service) parseAnchor(bs string) (calendar.Pair, error) {
	if strings.TrimSpace(bs) == "" {
		return calendar.Pair{}, &schedule.ValidationError{Field: "anchor_date_bs", Reason: "is required"}
	}
	return s.conv.ParsePair(strings.TrimSpace(bs))
}

// dueDate is LMP + 280 days. Nil when the date leaves the supported range.
func (s *Service) dueDate(lmp calendar.Pair) *calendar.Pair {
	due, err := s.conv.FromAD(lmp.AD.AddDays(gestationDays))
	if err != nil {
		return nil
	}
	return &due
}

func normalizePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	num, err := phonenumbers.Parse(raw, defaultPhoneRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", &schedule.ValidationError{Field: "contact_phone", Reason: fmt.Sprintf("%q is not a valid phone number", raw)}
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// -- Anchor change --

// ChangeAnchor moves the subject's anchor date and recomputes the schedule
// from scratch. It is refused once any dose has been given.
func (s *Service) ChangeAnchor(ctx context.Context, id uuid.UUID, anchorBS string, expectedVersion int) (*Subject, error) {
	subj, err := s.subjects.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if expectedVersion != 0 && expectedVersion != subj.VersionID {
		return nil, ErrVersionConflict
	}
	if subj.Schedule.AnyGiven() {
		return nil, ErrAnchorLocked
	}
	anchor, err := s.parseAnchor(anchorBS)
	if err != nil {
		return nil, err
	}
	tpl, err := s.catalog.Template(subj.Program, subj.Regimen)
	if err != nil {
		return nil, err
	}
	sched, err := s.engine.Scheduler().Compute(anchor.AD, tpl, schedule.Schedule{})
	if err != nil {
		return nil, err
	}

	subj.Anchor = anchor
	subj.Schedule = sched
	if subj.Program == program.MaternalTD {
		subj.EstimatedDueDate = s.dueDate(anchor)
	}
	if err := s.subjects.Update(ctx, subj, nil); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("subject_id", id.String()).
		Str("anchor_bs", anchor.BS.String()).
		Msg("anchor date changed")
	return s.present(subj), nil
}

// -- Administration --

type AdministerInput struct {
	Dose            string
	GivenDateBS     string
	ExpectedVersion int
	Privileged      bool
	RecordedBy      string
}

// Administer records a dose as given on GivenDateBS and recalculates every
// dependent dose.
func (s *Service) Administer(ctx context.Context, id uuid.UUID, in AdministerInput) (*Subject, error) {
	given, err := s.parseGiven(in.GivenDateBS)
	if err != nil {
		return nil, err
	}
	subj, err := s.subjects.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.ExpectedVersion != 0 && in.ExpectedVersion != subj.VersionID {
		return nil, ErrVersionConflict
	}
	tpl, err := s.catalog.Template(subj.Program, subj.Regimen)
	if err != nil {
		return nil, err
	}
	if d, ok := subj.Schedule.Dose(in.Dose); ok {
		in.Dose = d.Name
	}

	next, err := s.engine.OnDoseAdministered(subj.Schedule, schedule.Administration{
		Anchor:     subj.Anchor.AD,
		Template:   tpl,
		Dose:       in.Dose,
		Given:      given.AD,
		Today:      s.Today(),
		Privileged: in.Privileged,
	})
	if err != nil {
		s.logRejection(id, in, err)
		return nil, err
	}

	subj.Schedule = next
	rec := &AdministrationRecord{
		SubjectID:  id,
		Dose:       in.Dose,
		Given:      given,
		RecordedBy: in.RecordedBy,
		Privileged: in.Privileged,
		RecordedAt: s.now(),
	}
	if err := s.subjects.Update(ctx, subj, rec); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("subject_id", id.String()).
		Str("dose", in.Dose).
		Str("given_bs", given.BS.String()).
		Bool("privileged", in.Privileged).
		Str("recorded_by", in.RecordedBy).
		Msg("dose administered")
	return s.present(subj), nil
}

func (s *Service) parseGiven(bs string) (calendar.Pair, error) {
	if strings.TrimSpace(bs) == "" {
		return calendar.Pair{}, &schedule.ValidationError{Field: "given_date_bs", Reason: "is required"}
	}
	return s.conv.ParsePair(strings.TrimSpace(bs))
}

func (s *Service) logRejection(id uuid.UUID, in AdministerInput, err error) {
	evt := s.logger.Warn().Err(err).
		Str("subject_id", id.String()).
		Str("dose", in.Dose).
		Str("given_bs", in.GivenDateBS).
		Bool("privileged", in.Privileged)
	var rej *schedule.EligibilityRejection
	if errors.As(err, &rej) {
		evt = evt.Str("rule", string(rej.Rule))
	}
	evt.Msg("administration rejected")
}

// -- Reads --

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Subject, error) {
	subj, err := s.subjects.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.present(subj), nil
}

func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Subject, int, error) {
	items, total, err := s.subjects.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	for i, subj := range items {
		items[i] = s.present(subj)
	}
	return items, total, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.subjects.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("subject_id", id.String()).Msg("subject deleted")
	return nil
}

// present applies the read-time overdue classification.
func (s *Service) present(subj *Subject) *Subject {
	subj.Schedule = subj.Schedule.WithOverdue(s.Today(), s.graceDays)
	return subj
}

// each calls fn for every stored subject matching f, page by page.
func (s *Service) each(ctx context.Context, f ListFilter, fn func(*Subject) error) error {
	for offset := 0; ; offset += scanPageSize {
		items, total, err := s.subjects.List(ctx, f, scanPageSize, offset)
		if err != nil {
			return err
		}
		for _, subj := range items {
			if err := fn(subj); err != nil {
				return err
			}
		}
		if len(items) == 0 || offset+len(items) >= total {
			return nil
		}
	}
}

// Views returns a reporting view of every subject in the program as of today.
func (s *Service) Views(ctx context.Context, kind program.Kind) ([]reporting.SubjectView, error) {
	var views []reporting.SubjectView
	err := s.each(ctx, ListFilter{Program: kind}, func(subj *Subject) error {
		tpl, err := s.catalog.Template(subj.Program, subj.Regimen)
		if err != nil {
			return err
		}
		subj = s.present(subj)
		views = append(views, reporting.SubjectView{
			ID:       subj.ID.String(),
			Name:     subj.Name,
			Program:  subj.Program,
			Schedule: subj.Schedule,
			Template: tpl,
		})
		return nil
	})
	return views, err
}

// MarkMissed persists the missed classification for every subject with an
// overdue pending dose. Subjects modified concurrently are skipped and picked
// up by the next sweep.
func (s *Service) MarkMissed(ctx context.Context) (subjects, doses int, err error) {
	type pendingUpdate struct {
		subj  *Subject
		fresh int
	}
	today := s.Today()
	var changed []pendingUpdate
	err = s.each(ctx, ListFilter{}, func(subj *Subject) error {
		fresh := 0
		for _, d := range subj.Schedule.Overdue(today, s.graceDays) {
			if d.Status == schedule.Pending {
				fresh++
			}
		}
		if fresh == 0 {
			return nil
		}
		subj.Schedule = subj.Schedule.WithOverdue(today, s.graceDays)
		changed = append(changed, pendingUpdate{subj: subj, fresh: fresh})
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	for _, u := range changed {
		if err := s.subjects.Update(ctx, u.subj, nil); err != nil {
			if errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrNotFound) {
				s.logger.Debug().Str("subject_id", u.subj.ID.String()).Err(err).Msg("sweep skipped subject")
				continue
			}
			return subjects, doses, err
		}
		subjects++
		doses += u.fresh
	}
	return subjects, doses, nil
}
