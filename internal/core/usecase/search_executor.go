package usecase

import (
	"context"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kirillkom/dataviz-search/internal/core/domain"
	"github.com/kirillkom/dataviz-search/internal/core/ports"
)

const defaultSearchLimit = 100

// SearchReturnProperties are requested for every combined search.
var SearchReturnProperties = []string{
	domain.PropImageURL,
	domain.PropDescription,
	domain.PropPostTitle,
	domain.PropPostURL,
	domain.PropImageDescription,
	domain.PropExternalLink,
	domain.PropBackgroundType,
}

// SearchExecutor turns a set of tool hits into exactly one near-text call.
type SearchExecutor struct {
	backend  ports.VectorBackend
	registry ports.FieldRegistry
	limit    int
}

func NewSearchExecutor(backend ports.VectorBackend, registry ports.FieldRegistry, limit int) *SearchExecutor {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	return &SearchExecutor{
		backend:  backend,
		registry: registry,
		limit:    limit,
	}
}

// Plan derives the backend call without issuing it.
func (uc *SearchExecutor) Plan(req domain.SearchRequest) domain.SearchPlan {
	limit := req.Limit
	if limit <= 0 {
		limit = uc.limit
	}

	plan := domain.SearchPlan{
		TargetVector: domain.DefaultDescriptionVector,
		Text:         req.Query,
		Limit:        limit,
	}

	primaryChosen := false
	predicates := make([]domain.Predicate, 0, len(req.Hits))
	for _, hit := range req.Hits {
		switch hit.Kind {
		case domain.FacetKindVector:
			if primaryChosen || hit.VectorName == "" {
				continue
			}
			plan.TargetVector = hit.VectorName
			plan.Text = hit.Query
			primaryChosen = true
		case domain.FacetKindFilter:
			value, ok := uc.NormalizeFilterValue(hit)
			if !ok {
				slog.Info("filter_value_dropped", "facet", string(hit.Facet), "query", hit.Query)
				plan.Dropped = append(plan.Dropped, hit)
				continue
			}
			predicates = append(predicates, domain.Predicate{Property: hit.FilterField, Value: value})
		}
	}

	filter := domain.Filter{}
	if len(predicates) > 0 {
		filter.Predicates = predicates
	}
	plan.Filter = filter.And(req.Scope)
	return plan
}

func (uc *SearchExecutor) Execute(ctx context.Context, req domain.SearchRequest) domain.SearchResult {
	plan := uc.Plan(req)

	items, err := uc.backend.NearText(ctx, domain.NearTextQuery{
		Text:             plan.Text,
		TargetVector:     plan.TargetVector,
		Limit:            plan.Limit,
		Filter:           plan.Filter,
		ReturnProperties: SearchReturnProperties,
	})
	if err != nil {
		slog.Error("search_backend_failed",
			"target_vector", plan.TargetVector,
			"predicates", len(plan.Filter.Predicates),
			"error", err,
		)
		return domain.SearchResult{
			Items: []domain.ResultItem{},
			Plan:  plan,
			Err:   domain.WrapError(domain.ErrBackendQuery, "combined search", err),
		}
	}
	if items == nil {
		items = []domain.ResultItem{}
	}
	return domain.SearchResult{Items: items, Plan: plan}
}

// NormalizeFilterValue lowercases and trims a filter hit's query and, for
// facets with a controlled vocabulary, maps it to the first vocabulary term it
// mentions. Values matching no term report false and produce no predicate.
func (uc *SearchExecutor) NormalizeFilterValue(hit domain.ToolHit) (string, bool) {
	value := strings.ToLower(strings.TrimSpace(hit.Query))
	if value == "" {
		return "", false
	}

	desc, ok := uc.registry.Lookup(hit.Facet)
	if !ok || len(desc.Vocabulary) == 0 {
		return value, true
	}
	for _, term := range desc.Vocabulary {
		for _, alias := range term.Aliases {
			if containsWordPrefix(value, alias) {
				return term.Value, true
			}
		}
	}
	return "", false
}

// containsWordPrefix reports whether needle occurs in s starting at a word boundary.
func containsWordPrefix(s, needle string) bool {
	if needle == "" {
		return false
	}
	offset := 0
	for {
		i := strings.Index(s[offset:], needle)
		if i < 0 {
			return false
		}
		pos := offset + i
		if pos == 0 {
			return true
		}
		if prev, _ := utf8.DecodeLastRuneInString(s[:pos]); !isWordRune(prev) {
			return true
		}
		offset = pos + 1
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
