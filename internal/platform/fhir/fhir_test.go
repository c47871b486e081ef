package fhir

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/healthpost/vaxsched/pkg/pagination"
)

type testResource struct {
	Type string `json:"resourceType"`
	ID   string `json:"id"`
}

func (r testResource) ResourceType() string { return r.Type }
func (r testResource) ResourceID() string   { return r.ID }

func TestNewSearchBundle(t *testing.T) {
	resources := []Resource{
		testResource{Type: "ImmunizationRecommendation", ID: "a"},
		testResource{Type: "ImmunizationRecommendation", ID: "b"},
	}
	links := []pagination.Link{{Relation: "self", URL: "/fhir/ImmunizationRecommendation?_offset=0&_count=20"}}

	b, err := NewSearchBundle(resources, 7, links)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.ResourceType != "Bundle" || b.Type != "searchset" {
		t.Errorf("unexpected bundle header %s/%s", b.ResourceType, b.Type)
	}
	if b.Total == nil || *b.Total != 7 {
		t.Errorf("expected total 7, got %v", b.Total)
	}
	if len(b.Entry) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(b.Entry))
	}
	if b.Entry[1].FullURL != "ImmunizationRecommendation/b" {
		t.Errorf("unexpected fullUrl %s", b.Entry[1].FullURL)
	}
	if b.Entry[0].Search == nil || b.Entry[0].Search.Mode != "match" {
		t.Error("expected search mode match")
	}
	if len(b.Link) != 1 || b.Link[0].Relation != "self" {
		t.Errorf("unexpected links %+v", b.Link)
	}

	var decoded testResource
	if err := json.Unmarshal(b.Entry[0].Resource, &decoded); err != nil || decoded.ID != "a" {
		t.Errorf("entry resource did not round trip: %v %+v", err, decoded)
	}
}

func TestOutcomes(t *testing.T) {
	o := NotFoundOutcome("Patient", "x1")
	if o.ResourceType != "OperationOutcome" || o.Issue[0].Code != "not-found" {
		t.Errorf("unexpected outcome %+v", o)
	}
	if o.Issue[0].Diagnostics != "Patient/x1 not found" {
		t.Errorf("unexpected diagnostics %q", o.Issue[0].Diagnostics)
	}
	if InvalidOutcome("bad").Issue[0].Code != "invalid" {
		t.Error("expected invalid code")
	}
	if ErrorOutcome("boom").Issue[0].Severity != "error" {
		t.Error("expected error severity")
	}
}

func TestParseETag(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{`W/"3"`, 3, false},
		{`"12"`, 12, false},
		{`7`, 7, false},
		{`W/"abc"`, 0, true},
	}
	for _, tt := range tests {
		got, err := ParseETag(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseETag(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseETag(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestIfMatchVersion(t *testing.T) {
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	if v, err := IfMatchVersion(c); v != 0 || err != nil {
		t.Errorf("expected 0, nil without header; got %d, %v", v, err)
	}

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("If-Match", FormatETag(4))
	c = e.NewContext(req, httptest.NewRecorder())
	if v, err := IfMatchVersion(c); v != 4 || err != nil {
		t.Errorf("expected 4, nil; got %d, %v", v, err)
	}

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("If-Match", "nope")
	c = e.NewContext(req, httptest.NewRecorder())
	_, err := IfMatchVersion(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestSetVersionHeaders(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	SetVersionHeaders(c, 2, "Mon, 01 Jan 2024 00:00:00 GMT")
	if rec.Header().Get("ETag") != `W/"2"` {
		t.Errorf("unexpected ETag %q", rec.Header().Get("ETag"))
	}
	if rec.Header().Get("Last-Modified") == "" {
		t.Error("expected Last-Modified")
	}
}
