package domain

import "fmt"

// Result item properties returned by the visualization collection.
const (
	PropImageURL         = "image_url"
	PropDescription      = "section_11_description"
	PropPostTitle        = "post_title"
	PropPostURL          = "post_url"
	PropImageDescription = "image_description"
	PropExternalLink     = "external_link"
	PropBackgroundType   = "background_type"
	PropSourceWebsite    = "source_website"
)

// ToolHit is one facet activated by a query. Produced by a detector, consumed once.
type ToolHit struct {
	Facet       Facet
	Query       string
	Kind        FacetKind
	VectorName  string
	FilterField string
	RawResults  []ResultItem
}

// NewToolHit resolves kind and target from the descriptor.
func NewToolHit(desc FieldDescriptor, query string) ToolHit {
	return ToolHit{
		Facet:       desc.Facet,
		Query:       query,
		Kind:        desc.Kind,
		VectorName:  desc.VectorName,
		FilterField: desc.FilterField,
	}
}

// ResultItem is a backend record. Downstream stages may reorder or drop items
// but never mutate them.
type ResultItem struct {
	ID         string
	Properties map[string]any
	Distance   *float64
	Score      *float64
}

func (r ResultItem) Property(key string) string {
	v, ok := r.Properties[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func (r ResultItem) ImageURL() string         { return r.Property(PropImageURL) }
func (r ResultItem) Description() string      { return r.Property(PropDescription) }
func (r ResultItem) PostTitle() string        { return r.Property(PropPostTitle) }
func (r ResultItem) PostURL() string          { return r.Property(PropPostURL) }
func (r ResultItem) ImageDescription() string { return r.Property(PropImageDescription) }
func (r ResultItem) ExternalLink() string     { return r.Property(PropExternalLink) }

// Predicate is an equality test on one property.
type Predicate struct {
	Property string
	Value    string
}

// Filter is a logical AND of equality predicates. A filter with no predicates
// means "no filter" and must not be sent to the backend.
type Filter struct {
	Predicates []Predicate
}

func (f Filter) IsEmpty() bool {
	return len(f.Predicates) == 0
}

// And returns a new filter holding the predicates of both operands.
func (f Filter) And(other Filter) Filter {
	if other.IsEmpty() {
		return f
	}
	out := make([]Predicate, 0, len(f.Predicates)+len(other.Predicates))
	out = append(out, f.Predicates...)
	out = append(out, other.Predicates...)
	return Filter{Predicates: out}
}

func Eq(property, value string) Filter {
	return Filter{Predicates: []Predicate{{Property: property, Value: value}}}
}

// NearTextQuery is a semantic query against one named sub-vector.
type NearTextQuery struct {
	Text             string
	TargetVector     string
	Limit            int
	Filter           Filter
	ReturnProperties []string
}

// HybridQuery blends keyword and vector scoring; Alpha 0 is pure keyword, 1 pure vector.
type HybridQuery struct {
	Text             string
	TargetVector     string
	Limit            int
	Alpha            float64
	Filter           Filter
	ReturnProperties []string
}

// ConversationTurn is one prior message kept for query rewriting.
type ConversationTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// RewriteResult always carries a usable query. Err records why the original
// query was kept.
type RewriteResult struct {
	Query     string
	Rewritten bool
	Err       error
}

// DetectionResult holds the hits of one detection pass. Err is set when the
// detector degraded to zero hits.
type DetectionResult struct {
	Hits []ToolHit
	Err  error
}

// SearchRequest is the input of one combined search.
type SearchRequest struct {
	Hits  []ToolHit
	Query string
	Limit int
	// Scope is ANDed with the filters derived from hits.
	Scope Filter
}

// SearchPlan is the single backend call derived from a set of hits.
type SearchPlan struct {
	TargetVector string
	Text         string
	Filter       Filter
	Limit        int
	// Dropped lists filter hits whose values did not normalize to a predicate.
	Dropped []ToolHit
}

// SearchResult is empty, never nil-with-error, when the backend failed.
type SearchResult struct {
	Items []ResultItem
	Plan  SearchPlan
	Err   error
}

// RerankResult is always a subsequence of the rerank input.
type RerankResult struct {
	Items    []ResultItem
	Fallback bool
	Err      error
}
