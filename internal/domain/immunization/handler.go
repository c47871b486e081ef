package immunization

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/healthpost/vaxsched/internal/calendar"
	"github.com/healthpost/vaxsched/internal/platform/auth"
	"github.com/healthpost/vaxsched/internal/platform/fhir"
	"github.com/healthpost/vaxsched/internal/program"
	"github.com/healthpost/vaxsched/internal/schedule"
	"github.com/healthpost/vaxsched/pkg/pagination"
)

type Handler struct {
	svc        *Service
	privileged []string
}

// NewHandler builds the HTTP handler. privilegedRoles are the roles allowed
// to override eligibility rules.
func NewHandler(svc *Service, privilegedRoles []string) *Handler {
	return &Handler{svc: svc, privileged: privilegedRoles}
}

func (h *Handler) RegisterRoutes(api *echo.Group, fhirGroup *echo.Group) {
	staff := auth.RequireRole(auth.RoleSupervisor, auth.RoleNurse, auth.RoleVaccinator)

	read := api.Group("", staff)
	read.GET("/subjects", h.ListSubjects)
	read.GET("/subjects/:id", h.GetSubject)
	read.GET("/programs/:program/template", h.GetTemplate)
	read.GET("/calendar/convert", h.Convert)

	write := api.Group("", staff)
	write.POST("/subjects", h.CreateSubject)
	write.PUT("/subjects/:id/anchor", h.ChangeAnchor)
	write.POST("/subjects/:id/doses/:dose/administer", h.Administer)
	write.DELETE("/subjects/:id", h.DeleteSubject, auth.RequireRole(auth.RoleSupervisor))

	fhirRead := fhirGroup.Group("", staff)
	fhirRead.GET("/ImmunizationRecommendation", h.SearchRecommendationsFHIR)
	fhirRead.GET("/Immunization", h.SearchImmunizationsFHIR)
}

// -- Subject REST Handlers --

func (h *Handler) CreateSubject(c echo.Context) error {
	var in RegisterInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	in.FacilityID = auth.FacilityIDFromContext(c.Request().Context())

	subj, err := h.svc.Register(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	fhir.SetVersionHeaders(c, subj.VersionID, "")
	c.Response().Header().Set("Location", "/api/v1/subjects/"+subj.ID.String())
	return c.JSON(http.StatusCreated, subj)
}

func (h *Handler) GetSubject(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	subj, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	fhir.SetVersionHeaders(c, subj.VersionID, subj.UpdatedAt.UTC().Format(http.TimeFormat))
	return c.JSON(http.StatusOK, subj)
}

func (h *Handler) ListSubjects(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := ListFilter{FacilityID: c.QueryParam("facility")}
	if p := c.QueryParam("program"); p != "" {
		kind, err := program.ParseKind(p)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		f.Program = kind
	}
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Subject{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

type changeAnchorRequest struct {
	AnchorDateBS string `json:"anchor_date_bs"`
}

func (h *Handler) ChangeAnchor(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req changeAnchorRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	expected, err := fhir.IfMatchVersion(c)
	if err != nil {
		return err
	}
	subj, err := h.svc.ChangeAnchor(c.Request().Context(), id, req.AnchorDateBS, expected)
	if err != nil {
		return httpError(err)
	}
	fhir.SetVersionHeaders(c, subj.VersionID, "")
	return c.JSON(http.StatusOK, subj)
}

type administerRequest struct {
	GivenDateBS string `json:"given_date_bs"`
}

func (h *Handler) Administer(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req administerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	expected, err := fhir.IfMatchVersion(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	subj, err := h.svc.Administer(ctx, id, AdministerInput{
		Dose:            strings.TrimSpace(c.Param("dose")),
		GivenDateBS:     req.GivenDateBS,
		ExpectedVersion: expected,
		Privileged:      auth.IsPrivileged(ctx, h.privileged),
		RecordedBy:      auth.UserIDFromContext(ctx),
	})
	if err != nil {
		return httpError(err)
	}
	fhir.SetVersionHeaders(c, subj.VersionID, "")
	return c.JSON(http.StatusOK, subj)
}

func (h *Handler) DeleteSubject(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Program and calendar lookups --

func (h *Handler) GetTemplate(c echo.Context) error {
	kind, err := program.ParseKind(c.Param("program"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	regimen, err := program.ParseRegimen(c.QueryParam("regimen"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if kind == program.Rabies && regimen == program.RegimenNone {
		regimen = program.Intradermal
	}
	tpl, err := h.svc.Catalog().Template(kind, regimen)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, tpl)
}

func (h *Handler) Convert(c echo.Context) error {
	adStr, bsStr := c.QueryParam("ad"), c.QueryParam("bs")
	if (adStr == "") == (bsStr == "") {
		return echo.NewHTTPError(http.StatusBadRequest, "exactly one of ad or bs is required")
	}

	conv := h.svc.Converter()
	var (
		p   calendar.Pair
		err error
	)
	if adStr != "" {
		var d calendar.Date
		if d, err = calendar.ParseAD(adStr); err == nil {
			p, err = conv.FromAD(d)
		}
	} else {
		p, err = conv.ParsePair(bsStr)
	}
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

// -- FHIR Endpoints --

func (h *Handler) subjectsForFHIR(c echo.Context) ([]*Subject, int, pagination.Params, error) {
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()
	if patient := c.QueryParam("patient"); patient != "" {
		id, err := uuid.Parse(strings.TrimPrefix(patient, "Patient/"))
		if err != nil {
			return nil, 0, pg, c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("invalid patient reference"))
		}
		subj, err := h.svc.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return nil, 0, pg, nil
		}
		if err != nil {
			return nil, 0, pg, c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
		}
		return []*Subject{subj}, 1, pg, nil
	}
	items, total, err := h.svc.List(ctx, ListFilter{}, pg.Limit, pg.Offset)
	if err != nil {
		return nil, 0, pg, c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	return items, total, pg, nil
}

func (h *Handler) SearchRecommendationsFHIR(c echo.Context) error {
	items, total, pg, err := h.subjectsForFHIR(c)
	if err != nil || c.Response().Committed {
		return err
	}
	today := h.svc.Today()
	resources := make([]fhir.Resource, len(items))
	for i, s := range items {
		resources[i] = s.ToRecommendationFHIR(today)
	}
	return h.writeBundle(c, resources, total, pg)
}

func (h *Handler) SearchImmunizationsFHIR(c echo.Context) error {
	items, _, pg, err := h.subjectsForFHIR(c)
	if err != nil || c.Response().Committed {
		return err
	}
	var resources []fhir.Resource
	for _, s := range items {
		for _, im := range s.ToImmunizationsFHIR() {
			resources = append(resources, im)
		}
	}
	return h.writeBundle(c, resources, len(resources), pg)
}

func (h *Handler) writeBundle(c echo.Context, resources []fhir.Resource, total int, pg pagination.Params) error {
	links := pg.Links(c.Request().URL.Path, c.QueryParams(), total)
	bundle, err := fhir.NewSearchBundle(resources, total, links)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	return c.JSON(http.StatusOK, bundle)
}

// -- Error mapping --

// httpError maps domain and engine errors onto HTTP status codes.
func httpError(err error) error {
	var (
		conv     *calendar.ConversionError
		invalid  *schedule.ValidationError
		rejected *schedule.EligibilityRejection
		conflict *schedule.AlreadyGivenConflict
	)
	switch {
	case errors.As(err, &rejected):
		body := map[string]interface{}{
			"error": rejected.Error(),
			"rule":  rejected.Rule,
			"dose":  rejected.Dose,
		}
		if !rejected.Scheduled.IsZero() {
			body["scheduled_date_ad"] = rejected.Scheduled.AD.String()
			body["scheduled_date_bs"] = rejected.Scheduled.BS.String()
		}
		return echo.NewHTTPError(http.StatusUnprocessableEntity, body)
	case errors.As(err, &conflict):
		return echo.NewHTTPError(http.StatusConflict, map[string]interface{}{
			"error":         conflict.Error(),
			"dose":          conflict.Dose,
			"given_date_ad": conflict.Given.AD.String(),
			"given_date_bs": conflict.Given.BS.String(),
		})
	case errors.As(err, &conv), errors.As(err, &invalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, schedule.ErrUnknownDose):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "subject not found")
	case errors.Is(err, ErrVersionConflict), errors.Is(err, ErrAnchorLocked):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
