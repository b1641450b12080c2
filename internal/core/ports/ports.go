package ports

import (
	"context"

	"github.com/kirillkom/dataviz-search/internal/core/domain"
)

// Pipeline stage contracts. Fail-open stages report degradation inside their
// result values instead of returning an error.

// FieldRegistry is the read-only facet table.
type FieldRegistry interface {
	Lookup(facet domain.Facet) (domain.FieldDescriptor, bool)
	LookupName(name string) (domain.FieldDescriptor, bool)
	All() []domain.FieldDescriptor
}

type QueryRewriter interface {
	Rewrite(ctx context.Context, query string, history []domain.ConversationTurn) domain.RewriteResult
}

type ToolDetector interface {
	Detect(ctx context.Context, query string) domain.DetectionResult
}

type SearchExecutor interface {
	Execute(ctx context.Context, req domain.SearchRequest) domain.SearchResult
}

type Reranker interface {
	Rerank(ctx context.Context, query string, items []domain.ResultItem, threshold float64) domain.RerankResult
}

type Retriever interface {
	Retrieve(ctx context.Context, query string, limit int, filter domain.Filter) ([]domain.ResultItem, error)
	HybridRetrieve(ctx context.Context, query string, limit int, alpha float64, filter domain.Filter) ([]domain.ResultItem, error)
}
