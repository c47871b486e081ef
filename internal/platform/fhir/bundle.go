package fhir

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/healthpost/vaxsched/pkg/pagination"
)

// Bundle represents a FHIR Bundle resource.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
	Timestamp    *time.Time    `json:"timestamp,omitempty"`
}

type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
	Search   *BundleSearch   `json:"search,omitempty"`
}

type BundleSearch struct {
	Mode string `json:"mode,omitempty"`
}

// Resource is implemented by anything that can be placed in a Bundle.
type Resource interface {
	ResourceType() string
	ResourceID() string
}

// NewSearchBundle creates a searchset Bundle. Every entry gets a fullUrl of
// the form Type/id.
func NewSearchBundle(resources []Resource, total int, links []pagination.Link) (*Bundle, error) {
	now := time.Now().UTC()
	entries := make([]BundleEntry, len(resources))
	for i, r := range resources {
		raw, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("marshal %s/%s: %w", r.ResourceType(), r.ResourceID(), err)
		}
		entries[i] = BundleEntry{
			FullURL:  FormatReference(r.ResourceType(), r.ResourceID()),
			Resource: raw,
			Search:   &BundleSearch{Mode: "match"},
		}
	}

	bl := make([]BundleLink, len(links))
	for i, l := range links {
		bl[i] = BundleLink{Relation: l.Relation, URL: l.URL}
	}

	return &Bundle{
		ResourceType: "Bundle",
		Type:         "searchset",
		Total:        &total,
		Timestamp:    &now,
		Link:         bl,
		Entry:        entries,
	}, nil
}

// FormatReference creates a FHIR reference string.
func FormatReference(resourceType, id string) string {
	return fmt.Sprintf("%s/%s", resourceType, id)
}
