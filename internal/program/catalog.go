package program

import (
	"fmt"
	"os"
	"sort"

	yaml "go.yaml.in/yaml/v3"
)

// Catalog holds the template of every program served by the facility. It is
// built once at startup and never mutated.
type Catalog struct {
	templates map[Kind]Template
}

// NewCatalog validates and indexes the given templates. Later templates for
// the same kind replace earlier ones.
func NewCatalog(templates ...Template) (*Catalog, error) {
	c := &Catalog{templates: make(map[Kind]Template, len(templates))}
	for _, t := range templates {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		c.templates[t.Kind()] = t
	}
	return c, nil
}

// DefaultCatalog returns the built-in child, maternal TD and rabies programs.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(ChildTemplate(), MaternalTDTemplate(), RabiesTemplate())
	if err != nil {
		panic(err)
	}
	return c
}

// Template returns the program template narrowed to the regimen. Rabies
// requires a regimen; other programs ignore it.
func (c *Catalog) Template(kind Kind, r Regimen) (Template, error) {
	t, ok := c.templates[kind]
	if !ok {
		return Template{}, fmt.Errorf("program %q is not configured", kind)
	}
	if kind != Rabies {
		return t.ForRegimen(RegimenNone), nil
	}
	if r == RegimenNone {
		return Template{}, fmt.Errorf("program %q requires a regimen", kind)
	}
	return t.ForRegimen(r), nil
}

// Kinds lists configured programs in sorted order.
func (c *Catalog) Kinds() []Kind {
	kinds := make([]Kind, 0, len(c.templates))
	for k := range c.templates {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

type templateFile struct {
	Programs []struct {
		Kind  string  `yaml:"kind"`
		Doses []Entry `yaml:"doses"`
	} `yaml:"programs"`
}

// LoadCatalog reads program overrides from a YAML file. Programs not present
// in the file keep their built-in template.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates file: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog is LoadCatalog over in-memory YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f templateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	templates := []Template{ChildTemplate(), MaternalTDTemplate(), RabiesTemplate()}
	for _, p := range f.Programs {
		kind, err := ParseKind(p.Kind)
		if err != nil {
			return nil, err
		}
		for _, d := range p.Doses {
			for _, r := range d.Regimens {
				if _, err := ParseRegimen(string(r)); err != nil {
					return nil, fmt.Errorf("template %s dose %q: %w", kind, d.Name, err)
				}
			}
		}
		templates = append(templates, New(kind, p.Doses...))
	}
	return NewCatalog(templates...)
}
