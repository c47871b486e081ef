package program

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind identifies a vaccination program.
type Kind string

const (
	Child      Kind = "child"
	MaternalTD Kind = "maternal-td"
	Rabies     Kind = "rabies"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case Child, MaternalTD, Rabies:
		return k, nil
	}
	return "", fmt.Errorf("unknown program: %q", s)
}

// Regimen selects the rabies PEP variant. Other programs use RegimenNone.
type Regimen string

const (
	RegimenNone   Regimen = ""
	Intradermal   Regimen = "intradermal"
	Intramuscular Regimen = "intramuscular"
)

func ParseRegimen(s string) (Regimen, error) {
	switch r := Regimen(strings.ToLower(strings.TrimSpace(s))); r {
	case RegimenNone, Intradermal, Intramuscular:
		return r, nil
	}
	return "", fmt.Errorf("unknown regimen: %q", s)
}

// Origin is the anchor name for the subject's foundational date.
const Origin = "origin"

// Entry defines one dose of a program. Anchor is Origin or the name of an
// earlier entry; a Manual entry has no computed date at all.
type Entry struct {
	Name     string    `json:"name" yaml:"name"`
	Label    string    `json:"label,omitempty" yaml:"label"`
	Anchor   string    `json:"anchor,omitempty" yaml:"anchor"`
	Days     int       `json:"days,omitempty" yaml:"days"`
	Months   int       `json:"months,omitempty" yaml:"months"`
	Manual   bool      `json:"manual,omitempty" yaml:"manual"`
	Regimens []Regimen `json:"regimens,omitempty" yaml:"regimens"`
	Terminal bool      `json:"terminal,omitempty" yaml:"terminal"`
}

// IsOriginZero reports whether the entry is the program's opening dose, due
// on the anchor date itself.
func (e Entry) IsOriginZero() bool {
	return !e.Manual && e.Anchor == Origin && e.Days == 0 && e.Months == 0
}

func (e Entry) AppliesTo(r Regimen) bool {
	if len(e.Regimens) == 0 {
		return true
	}
	for _, want := range e.Regimens {
		if want == r {
			return true
		}
	}
	return false
}

// Template is the ordered, read-only dose definition of one program. Its
// zero value is an empty template.
type Template struct {
	kind    Kind
	entries []Entry
}

// New returns a template owning a private copy of entries.
func New(kind Kind, entries ...Entry) Template {
	cp := make([]Entry, len(entries))
	for i, e := range entries {
		e.Regimens = append([]Regimen(nil), e.Regimens...)
		cp[i] = e
	}
	return Template{kind: kind, entries: cp}
}

func (t Template) Kind() Kind { return t.kind }

func (t Template) Len() int { return len(t.entries) }

// Entries returns a copy of the entries in definition order.
func (t Template) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t Template) Entry(name string) (Entry, bool) {
	for _, e := range t.entries {
		if e.Name == name {
			return e, true
		}
	}
	for _, e := range t.entries {
		if strings.EqualFold(e.Name, name) {
			return e, true
		}
	}
	return Entry{}, false
}

// ForRegimen returns the subset of entries that apply to r, preserving order.
func (t Template) ForRegimen(r Regimen) Template {
	var kept []Entry
	for _, e := range t.entries {
		if e.AppliesTo(r) {
			kept = append(kept, e)
		}
	}
	return New(t.kind, kept...)
}

// Terminal returns the names of the entries whose administration completes
// the program.
func (t Template) Terminal() []string {
	var names []string
	for _, e := range t.entries {
		if e.Terminal {
			names = append(names, e.Name)
		}
	}
	return names
}

// Validate checks that names are unique and every anchor refers to Origin or
// an entry defined earlier.
func (t Template) Validate() error {
	if t.kind == "" {
		return fmt.Errorf("template: program kind is required")
	}
	if len(t.entries) == 0 {
		return fmt.Errorf("template %s: no doses defined", t.kind)
	}
	seen := make(map[string]bool, len(t.entries))
	folded := make(map[string]bool, len(t.entries))
	for i, e := range t.entries {
		if e.Name == "" || strings.EqualFold(e.Name, Origin) {
			return fmt.Errorf("template %s: entry %d has invalid name %q", t.kind, i, e.Name)
		}
		if folded[strings.ToLower(e.Name)] {
			return fmt.Errorf("template %s: duplicate dose %q", t.kind, e.Name)
		}
		switch {
		case e.Manual:
			if e.Anchor != "" {
				return fmt.Errorf("template %s: manual dose %q cannot have an anchor", t.kind, e.Name)
			}
		case e.Anchor == Origin:
		case e.Anchor == "":
			return fmt.Errorf("template %s: dose %q needs an anchor", t.kind, e.Name)
		case !seen[e.Anchor]:
			return fmt.Errorf("template %s: dose %q anchors to %q which is not defined earlier", t.kind, e.Name, e.Anchor)
		}
		if e.Days < 0 || e.Months < 0 {
			return fmt.Errorf("template %s: dose %q has a negative offset", t.kind, e.Name)
		}
		seen[e.Name] = true
		folded[strings.ToLower(e.Name)] = true
	}
	return nil
}

func (t Template) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Program  Kind     `json:"program"`
		Doses    []Entry  `json:"doses"`
		Terminal []string `json:"terminal"`
	}{t.kind, t.entries, t.Terminal()})
}
