package pagination

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestFromContext_Defaults(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	p := FromContext(c)

	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected default offset 0, got %d", p.Offset)
	}
}

func TestFromContext_CustomValues(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"limit=50&offset=10", 50, 10},
		{"_count=25&_offset=5", 25, 5},
		{"limit=500", MaxLimit, 0},
		{"limit=-3&offset=-7", DefaultLimit, 0},
		{"limit=abc", DefaultLimit, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			c := e.NewContext(req, httptest.NewRecorder())

			p := FromContext(c)
			if p.Limit != tt.wantLimit {
				t.Errorf("expected limit %d, got %d", tt.wantLimit, p.Limit)
			}
			if p.Offset != tt.wantOffset {
				t.Errorf("expected offset %d, got %d", tt.wantOffset, p.Offset)
			}
		})
	}
}

func TestNewResponse(t *testing.T) {
	resp := NewResponse([]string{"a", "b"}, 5, Params{Limit: 2, Offset: 2})
	if !resp.HasMore {
		t.Error("expected has_more with 5 total at offset 2 limit 2")
	}

	resp = NewResponse([]string{"e"}, 5, Params{Limit: 2, Offset: 4})
	if resp.HasMore {
		t.Error("expected no more results on last page")
	}
}

func TestPreviousOffset(t *testing.T) {
	if got := (Params{Limit: 20, Offset: 10}).PreviousOffset(); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
	if got := (Params{Limit: 20, Offset: 45}).PreviousOffset(); got != 25 {
		t.Errorf("expected 25, got %d", got)
	}
}

func TestLinks(t *testing.T) {
	p := Params{Limit: 10, Offset: 10}
	q := url.Values{"patient": {"abc"}, "_count": {"10"}}

	links := p.Links("/fhir/ImmunizationRecommendation", q, 35)
	if len(links) != 3 {
		t.Fatalf("expected self, next, previous; got %+v", links)
	}
	if links[0].Relation != "self" || !strings.Contains(links[0].URL, "_offset=10") {
		t.Errorf("unexpected self link %+v", links[0])
	}
	if links[1].Relation != "next" || !strings.Contains(links[1].URL, "_offset=20") {
		t.Errorf("unexpected next link %+v", links[1])
	}
	if links[2].Relation != "previous" || !strings.Contains(links[2].URL, "_offset=0") {
		t.Errorf("unexpected previous link %+v", links[2])
	}
	for _, l := range links {
		if !strings.Contains(l.URL, "patient=abc") {
			t.Errorf("expected filter to be preserved in %s", l.URL)
		}
		if strings.Count(l.URL, "_count=") != 1 {
			t.Errorf("expected a single _count in %s", l.URL)
		}
	}
}

func TestLinks_SinglePage(t *testing.T) {
	links := Params{Limit: 20}.Links("/x", nil, 3)
	if len(links) != 1 {
		t.Errorf("expected only self link, got %+v", links)
	}
}
