package usecase

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"testing"

	"github.com/kirillkom/dataviz-search/internal/core/domain"
)

func hitFor(t *testing.T, facet domain.Facet, query string) domain.ToolHit {
	t.Helper()
	desc, ok := loadRegistry(t).Lookup(facet)
	if !ok {
		t.Fatalf("facet %s not registered", facet)
	}
	return domain.NewToolHit(desc, query)
}

func TestSearchExecutorPrimaryVectorIsFirstVectorHit(t *testing.T) {
	backend := &vectorBackendFake{items: []domain.ResultItem{item("a", nil)}}
	uc := NewSearchExecutor(backend, loadRegistry(t), 0)

	result := uc.Execute(context.Background(), domain.SearchRequest{
		Query: "original query",
		Hits: []domain.ToolHit{
			hitFor(t, domain.FacetBackgroundType, "dark"),
			hitFor(t, domain.FacetLayout, "faceted layout"),
			hitFor(t, domain.FacetPlotType, "scatter"),
		},
	})
	if result.Err != nil {
		t.Fatalf("Execute() error = %v", result.Err)
	}
	if len(backend.nearText) != 1 {
		t.Fatalf("expected exactly one backend call, got %d", len(backend.nearText))
	}
	call := backend.nearText[0]
	if call.TargetVector != "section_5_layout_details_vector" || call.Text != "faceted layout" {
		t.Fatalf("unexpected primary target: %+v", call)
	}
	if call.Limit != 100 {
		t.Fatalf("expected default limit 100, got %d", call.Limit)
	}
	if len(call.ReturnProperties) != len(SearchReturnProperties) {
		t.Fatalf("unexpected return properties %v", call.ReturnProperties)
	}
}

func TestSearchExecutorNoHitsFallsBackToDescription(t *testing.T) {
	backend := &vectorBackendFake{}
	uc := NewSearchExecutor(backend, loadRegistry(t), 25)

	result := uc.Execute(context.Background(), domain.SearchRequest{Query: "anything"})
	if result.Err != nil {
		t.Fatalf("Execute() error = %v", result.Err)
	}
	call := backend.nearText[0]
	if call.TargetVector != domain.DefaultDescriptionVector || call.Text != "anything" {
		t.Fatalf("unexpected fallback target: %+v", call)
	}
	if !call.Filter.IsEmpty() {
		t.Fatalf("expected no filter, got %+v", call.Filter)
	}
	if call.Limit != 25 {
		t.Fatalf("expected configured limit 25, got %d", call.Limit)
	}
	if result.Items == nil {
		t.Fatalf("expected non-nil empty items")
	}
}

func TestSearchExecutorFilterNormalization(t *testing.T) {
	reg := loadRegistry(t)
	uc := NewSearchExecutor(&vectorBackendFake{}, reg, 0)

	tests := []struct {
		facet domain.Facet
		query string
		want  string
		ok    bool
	}{
		{facet: domain.FacetBackgroundType, query: " Dark Background ", want: "dark", ok: true},
		{facet: domain.FacetBackgroundType, query: "black", want: "dark", ok: true},
		{facet: domain.FacetBackgroundType, query: "white canvas", want: "light", ok: true},
		{facet: domain.FacetBackgroundType, query: "gray", ok: false},
		{facet: domain.FacetBackgroundType, query: "darkish", want: "dark", ok: true},
		{facet: domain.FacetBackgroundType, query: "pitch black", want: "dark", ok: true},
		{facet: domain.FacetBackgroundType, query: "pitchblack", ok: false},
		{facet: domain.FacetBackgroundType, query: "highlight", ok: false},
		{facet: domain.FacetGridLayout, query: "small multiples", want: "small multiples", ok: true},
		{facet: domain.FacetCoordinateType, query: "world map", want: "geographic_general", ok: true},
		{facet: domain.FacetCoordinateType, query: "polar coordinates", want: "polar", ok: true},
		{facet: domain.FacetPaletteType, query: "rainbow", ok: false},
		{facet: domain.FacetBackgroundColor, query: " Navy Blue ", want: "navy blue", ok: true},
		{facet: domain.FacetGridColor, query: "   ", ok: false},
	}

	for _, tc := range tests {
		t.Run(string(tc.facet)+"/"+tc.query, func(t *testing.T) {
			got, ok := uc.NormalizeFilterValue(hitFor(t, tc.facet, tc.query))
			if ok != tc.ok || got != tc.want {
				t.Fatalf("NormalizeFilterValue(%q) = (%q, %v), want (%q, %v)", tc.query, got, ok, tc.want, tc.ok)
			}
			if !ok {
				return
			}
			again, ok := uc.NormalizeFilterValue(hitFor(t, tc.facet, got))
			if !ok || again != got {
				t.Fatalf("normalization not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestSearchExecutorCombinesPredicatesWithScope(t *testing.T) {
	backend := &vectorBackendFake{}
	uc := NewSearchExecutor(backend, loadRegistry(t), 0)

	result := uc.Execute(context.Background(), domain.SearchRequest{
		Query: "q",
		Hits: []domain.ToolHit{
			hitFor(t, domain.FacetBackgroundType, "dark"),
			hitFor(t, domain.FacetPaletteType, "rainbow"),
			hitFor(t, domain.FacetGridStyle, "dashed lines"),
		},
		Scope: domain.Eq(domain.PropSourceWebsite, "flowingdata"),
	})

	want := []domain.Predicate{
		{Property: "background_type", Value: "dark"},
		{Property: "grid_style", Value: "dashed"},
		{Property: domain.PropSourceWebsite, Value: "flowingdata"},
	}
	got := backend.nearText[0].Filter.Predicates
	if len(got) != len(want) {
		t.Fatalf("expected %d predicates, got %+v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("predicate %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
	if len(result.Plan.Dropped) != 1 || result.Plan.Dropped[0].Facet != domain.FacetPaletteType {
		t.Fatalf("expected palette hit dropped, got %+v", result.Plan.Dropped)
	}
}

func TestSearchExecutorBackendFailure(t *testing.T) {
	backend := &vectorBackendFake{err: errors.New("graphql: unavailable")}
	uc := NewSearchExecutor(backend, loadRegistry(t), 0)

	result := uc.Execute(context.Background(), domain.SearchRequest{Query: "q"})
	if !errors.Is(result.Err, domain.ErrBackendQuery) {
		t.Fatalf("expected ErrBackendQuery, got %v", result.Err)
	}
	if result.Items == nil || len(result.Items) != 0 {
		t.Fatalf("expected empty items, got %v", result.Items)
	}
}

func TestScatterOnDarkBackgroundEndToEnd(t *testing.T) {
	reg := loadRegistry(t)
	backend := &vectorBackendFake{items: []domain.ResultItem{item("x", floatPtr(0.1))}}
	query := "scatter plot with dark background"

	detection := NewKeywordToolDetector(reg).Detect(context.Background(), query)
	result := NewSearchExecutor(backend, reg, 0).Execute(context.Background(), domain.SearchRequest{
		Hits:  detection.Hits,
		Query: query,
	})
	if result.Err != nil {
		t.Fatalf("Execute() error = %v", result.Err)
	}

	plotType, _ := reg.Lookup(domain.FacetPlotType)
	call := backend.nearText[0]
	if call.TargetVector != plotType.VectorName {
		t.Fatalf("expected plot type vector, got %s", call.TargetVector)
	}
	if call.Text != query {
		t.Fatalf("expected whole query as near text, got %q", call.Text)
	}
	preds := call.Filter.Predicates
	if len(preds) != 1 || preds[0] != (domain.Predicate{Property: "background_type", Value: "dark"}) {
		t.Fatalf("expected background_type == dark, got %+v", preds)
	}
	if len(result.Items) != 1 || result.Items[0].ID != "x" {
		t.Fatalf("unexpected items %v", itemIDs(result.Items))
	}
}

func TestScatterOnDarkBackgroundLLMDetectorAndRerank(t *testing.T) {
	reg := loadRegistry(t)
	candidates := make([]domain.ResultItem, 0, 100)
	for i := 0; i < 100; i++ {
		candidates = append(candidates, item("viz-"+strconv.Itoa(i), floatPtr(0.3)))
	}
	backend := &vectorBackendFake{items: candidates}
	detectorLLM := &chatCompleterFake{reply: func(domain.CompletionRequest) (domain.Completion, error) {
		return domain.Completion{ToolCalls: []domain.ToolCall{
			{Name: "search_plot_type", Arguments: `{"query":"scatter plot"}`},
			{Name: "search_background_type", Arguments: `{"query":"dark background"}`},
		}}, nil
	}}
	query := "scatter plots with a dark background"

	detection := NewLLMToolDetector(detectorLLM, reg).Detect(context.Background(), query)
	result := NewSearchExecutor(backend, reg, 0).Execute(context.Background(), domain.SearchRequest{
		Hits:  detection.Hits,
		Query: query,
	})
	if result.Err != nil {
		t.Fatalf("Execute() error = %v", result.Err)
	}

	if len(backend.nearText) != 1 {
		t.Fatalf("expected one near-text call, got %d", len(backend.nearText))
	}
	call := backend.nearText[0]
	plotType, _ := reg.Lookup(domain.FacetPlotType)
	if call.TargetVector != plotType.VectorName || call.Text != "scatter plot" {
		t.Fatalf("unexpected near-text call %+v", call)
	}
	preds := call.Filter.Predicates
	if len(preds) != 1 || preds[0] != (domain.Predicate{Property: "background_type", Value: "dark"}) {
		t.Fatalf("expected background_type == dark, got %+v", preds)
	}

	reranked := NewLLMReranker(&chatCompleterFake{reply: textReply("[42, 7, 99, 7]")}).
		Rerank(context.Background(), query, result.Items, 0.5)
	if reranked.Fallback {
		t.Fatalf("unexpected rerank fallback: %v", reranked.Err)
	}
	want := []string{candidates[42].ID, candidates[7].ID, candidates[99].ID}
	if got := itemIDs(reranked.Items); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
