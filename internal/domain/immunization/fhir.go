package immunization

import (
	"fmt"
	"time"

	"github.com/healthpost/vaxsched/internal/calendar"
	"github.com/healthpost/vaxsched/internal/platform/fhir"
	"github.com/healthpost/vaxsched/internal/schedule"
)

const (
	doseCodeSystem  = "urn:vaxsched:dose"
	bsDateExtension = "urn:vaxsched:date-bs"
	loincSystem     = "http://loinc.org"
	// LOINC "Date vaccine due".
	loincDateDue = "30980-7"
)

type RecommendationResource struct {
	Type           string           `json:"resourceType"`
	ID             string           `json:"id"`
	Meta           fhir.Meta        `json:"meta"`
	Patient        fhir.Reference   `json:"patient"`
	Date           string           `json:"date"`
	Recommendation []Recommendation `json:"recommendation"`
}

func (r *RecommendationResource) ResourceType() string { return r.Type }
func (r *RecommendationResource) ResourceID() string   { return r.ID }

type Recommendation struct {
	VaccineCode    []fhir.CodeableConcept `json:"vaccineCode"`
	ForecastStatus fhir.CodeableConcept   `json:"forecastStatus"`
	DateCriterion  []DateCriterion        `json:"dateCriterion,omitempty"`
	Description    string                 `json:"description,omitempty"`
	Extension      []fhir.Extension       `json:"extension,omitempty"`
}

type DateCriterion struct {
	Code  fhir.CodeableConcept `json:"code"`
	Value string               `json:"value"`
}

type ImmunizationResource struct {
	Type               string               `json:"resourceType"`
	ID                 string               `json:"id"`
	Status             string               `json:"status"`
	VaccineCode        fhir.CodeableConcept `json:"vaccineCode"`
	Patient            fhir.Reference       `json:"patient"`
	OccurrenceDateTime string               `json:"occurrenceDateTime"`
	PrimarySource      bool                 `json:"primarySource"`
	Extension          []fhir.Extension     `json:"extension,omitempty"`
}

func (r *ImmunizationResource) ResourceType() string { return r.Type }
func (r *ImmunizationResource) ResourceID() string   { return r.ID }

func doseConcept(d schedule.Dose) fhir.CodeableConcept {
	display := d.Label
	if display == "" {
		display = d.Name
	}
	return fhir.CodeableConcept{
		Coding: []fhir.Coding{{System: doseCodeSystem, Code: d.Name, Display: display}},
		Text:   display,
	}
}

func bsExtension(p calendar.Pair) []fhir.Extension {
	return []fhir.Extension{{URL: bsDateExtension, ValueString: p.BS.String()}}
}

// ToRecommendationFHIR renders every dose not yet given as one
// recommendation. The schedule is expected to carry the read-time overdue
// classification already.
func (s *Subject) ToRecommendationFHIR(today calendar.Date) *RecommendationResource {
	res := &RecommendationResource{
		Type:    "ImmunizationRecommendation",
		ID:      s.ID.String(),
		Patient: fhir.Reference{Reference: fhir.FormatReference("Patient", s.ID.String()), Display: s.Name},
		Date:    today.String(),
		Meta: fhir.Meta{
			VersionID:   fmt.Sprintf("%d", s.VersionID),
			LastUpdated: s.UpdatedAt.UTC().Truncate(time.Second),
		},
		Recommendation: []Recommendation{},
	}
	for _, d := range s.Schedule.Doses() {
		if d.IsGiven() {
			continue
		}
		status := "due"
		if d.Status == schedule.Missed {
			status = "overdue"
		}
		rec := Recommendation{
			VaccineCode: []fhir.CodeableConcept{doseConcept(d)},
			ForecastStatus: fhir.CodeableConcept{
				Coding: []fhir.Coding{{
					System: "http://terminology.hl7.org/CodeSystem/immunization-recommendation-status",
					Code:   status,
				}},
			},
		}
		if d.HasDate() {
			rec.DateCriterion = []DateCriterion{{
				Code:  fhir.CodeableConcept{Coding: []fhir.Coding{{System: loincSystem, Code: loincDateDue, Display: "Date vaccine due"}}},
				Value: d.Scheduled.AD.String(),
			}}
			rec.Extension = bsExtension(d.Scheduled)
		} else {
			rec.Description = fmt.Sprintf("no computed date (%s)", d.Resolution)
		}
		res.Recommendation = append(res.Recommendation, rec)
	}
	return res
}

// ToImmunizationsFHIR renders every given dose as a completed Immunization.
func (s *Subject) ToImmunizationsFHIR() []*ImmunizationResource {
	var out []*ImmunizationResource
	for _, d := range s.Schedule.Doses() {
		if !d.IsGiven() {
			continue
		}
		out = append(out, &ImmunizationResource{
			Type:               "Immunization",
			ID:                 s.ID.String() + "-" + d.Name,
			Status:             "completed",
			VaccineCode:        doseConcept(d),
			Patient:            fhir.Reference{Reference: fhir.FormatReference("Patient", s.ID.String()), Display: s.Name},
			OccurrenceDateTime: d.Given.AD.String(),
			PrimarySource:      true,
			Extension:          bsExtension(*d.Given),
		})
	}
	return out
}
