package registry

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/dataviz-search/internal/core/domain"
)

//go:embed fields.yaml
var fieldsYAML []byte

type fileSpec struct {
	Fields []fieldSpec `yaml:"fields"`
}

type fieldSpec struct {
	Facet       string     `yaml:"facet"`
	Description string     `yaml:"description"`
	Keywords    []string   `yaml:"keywords"`
	Vocabulary  []termSpec `yaml:"vocabulary"`
}

type termSpec struct {
	Value   string   `yaml:"value"`
	Aliases []string `yaml:"aliases"`
}

// Registry is the facet table. It is immutable after construction and safe
// for concurrent use.
type Registry struct {
	fields []domain.FieldDescriptor
	index  map[domain.Facet]int
}

// Load builds the registry from the embedded facet table.
func Load() (*Registry, error) {
	return Parse(fieldsYAML)
}

// Parse builds a registry from a YAML facet table and binds every entry to its
// backend target. Every known facet must be declared exactly once.
func Parse(data []byte) (*Registry, error) {
	var spec fileSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("registry: decode facet table: %w", err)
	}

	fields := make([]domain.FieldDescriptor, 0, len(spec.Fields))
	for _, fs := range spec.Fields {
		facet, ok := domain.ParseFacet(strings.TrimSpace(fs.Facet))
		if !ok {
			return nil, fmt.Errorf("registry: unknown facet %q", fs.Facet)
		}
		target, _ := domain.FacetTarget(facet)

		vocabulary := make([]domain.VocabularyTerm, 0, len(fs.Vocabulary))
		for _, term := range fs.Vocabulary {
			value := strings.ToLower(strings.TrimSpace(term.Value))
			if value == "" {
				return nil, fmt.Errorf("registry: facet %s has an empty vocabulary value", facet)
			}
			aliases := make([]string, 0, len(term.Aliases)+1)
			for _, alias := range term.Aliases {
				if alias = strings.ToLower(strings.TrimSpace(alias)); alias != "" {
					aliases = append(aliases, alias)
				}
			}
			if len(aliases) == 0 {
				aliases = append(aliases, value)
			}
			vocabulary = append(vocabulary, domain.VocabularyTerm{Value: value, Aliases: aliases})
		}

		fields = append(fields, domain.FieldDescriptor{
			Facet:       facet,
			Description: strings.TrimSpace(fs.Description),
			Keywords:    fs.Keywords,
			Kind:        target.Kind,
			VectorName:  target.VectorName,
			FilterField: target.FilterField,
			Vocabulary:  vocabulary,
		})
	}

	reg, err := New(fields)
	if err != nil {
		return nil, err
	}
	for _, facet := range domain.AllFacets() {
		if _, ok := reg.index[facet]; !ok {
			return nil, fmt.Errorf("registry: facet %s has no keyword entry", facet)
		}
	}
	return reg, nil
}

// New validates descriptors and keeps their order.
func New(fields []domain.FieldDescriptor) (*Registry, error) {
	reg := &Registry{
		fields: make([]domain.FieldDescriptor, 0, len(fields)),
		index:  make(map[domain.Facet]int, len(fields)),
	}
	for _, field := range fields {
		if err := validateDescriptor(field); err != nil {
			return nil, err
		}
		if _, dup := reg.index[field.Facet]; dup {
			return nil, fmt.Errorf("registry: duplicate facet %s", field.Facet)
		}
		reg.index[field.Facet] = len(reg.fields)
		reg.fields = append(reg.fields, field)
	}
	return reg, nil
}

func validateDescriptor(field domain.FieldDescriptor) error {
	if field.Facet == "" {
		return fmt.Errorf("registry: descriptor without facet")
	}
	if len(field.Keywords) == 0 {
		return fmt.Errorf("registry: facet %s has no keywords", field.Facet)
	}
	switch field.Kind {
	case domain.FacetKindVector:
		if field.VectorName == "" {
			return fmt.Errorf("registry: vector facet %s has no vector name", field.Facet)
		}
		if len(field.Vocabulary) > 0 {
			return fmt.Errorf("registry: vector facet %s cannot declare a vocabulary", field.Facet)
		}
	case domain.FacetKindFilter:
		if field.FilterField == "" {
			return fmt.Errorf("registry: filter facet %s has no property name", field.Facet)
		}
	default:
		return fmt.Errorf("registry: facet %s has unknown kind %q", field.Facet, field.Kind)
	}
	return nil
}

func (r *Registry) Lookup(facet domain.Facet) (domain.FieldDescriptor, bool) {
	i, ok := r.index[facet]
	if !ok {
		return domain.FieldDescriptor{}, false
	}
	return r.fields[i], true
}

// LookupName resolves a facet by its string name.
func (r *Registry) LookupName(name string) (domain.FieldDescriptor, bool) {
	return r.Lookup(domain.Facet(name))
}

// All returns the descriptors in registry order.
func (r *Registry) All() []domain.FieldDescriptor {
	out := make([]domain.FieldDescriptor, len(r.fields))
	copy(out, r.fields)
	return out
}

// VectorNames returns the distinct sub-vectors referenced by vector facets,
// plus the default description vector.
func (r *Registry) VectorNames() []string {
	seen := map[string]struct{}{domain.DefaultDescriptionVector: {}}
	out := []string{domain.DefaultDescriptionVector}
	for _, field := range r.fields {
		if field.Kind != domain.FacetKindVector {
			continue
		}
		if _, ok := seen[field.VectorName]; ok {
			continue
		}
		seen[field.VectorName] = struct{}{}
		out = append(out, field.VectorName)
	}
	return out
}

func (r *Registry) Len() int {
	return len(r.fields)
}
