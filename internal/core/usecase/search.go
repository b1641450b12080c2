package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/dataviz-search/internal/core/domain"
	"github.com/kirillkom/dataviz-search/internal/core/ports"
)

const (
	defaultSearchTopK = 10
	maxSearchTopK     = 50
)

// SearchUseCase is a stateless search used by agent-facing tools. It has no
// session history and never renders display blocks.
type SearchUseCase struct {
	rewriter  ports.QueryRewriter
	detector  ports.ToolDetector
	executor  ports.SearchExecutor
	reranker  ports.Reranker
	retriever ports.Retriever
	limits    TurnLimits
}

func NewSearchUseCase(
	rewriter ports.QueryRewriter,
	detector ports.ToolDetector,
	executor ports.SearchExecutor,
	reranker ports.Reranker,
	retriever ports.Retriever,
	limits TurnLimits,
) *SearchUseCase {
	return &SearchUseCase{
		rewriter:  rewriter,
		detector:  detector,
		executor:  executor,
		reranker:  reranker,
		retriever: retriever,
		limits:    limits.withDefaults(),
	}
}

func (uc *SearchUseCase) Search(ctx context.Context, query string, mode string, topK int) ([]domain.ResultItem, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", fmt.Errorf("query is required"))
	}
	if topK <= 0 {
		topK = defaultSearchTopK
	}
	if topK > maxSearchTopK {
		topK = maxSearchTopK
	}
	_, scope := SourceScope(query)

	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", domain.ModeText:
		rewrite := uc.rewriter.Rewrite(ctx, query, nil)
		return uc.retriever.Retrieve(ctx, rewrite.Query, topK, scope)
	case domain.ModeHybrid:
		items, err := uc.retriever.HybridRetrieve(ctx, query, uc.limits.HybridCandidates, uc.limits.HybridAlpha, scope)
		if err != nil {
			return nil, err
		}
		return uc.rerankTop(ctx, query, items, topK), nil
	case domain.ModeTools:
		detection := uc.detector.Detect(ctx, query)
		result := uc.executor.Execute(ctx, domain.SearchRequest{Hits: detection.Hits, Query: query, Scope: scope})
		if result.Err != nil {
			return nil, result.Err
		}
		return uc.rerankTop(ctx, query, result.Items, topK), nil
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", fmt.Errorf("unsupported mode %q", mode))
	}
}

func (uc *SearchUseCase) rerankTop(ctx context.Context, query string, items []domain.ResultItem, topK int) []domain.ResultItem {
	if len(items) == 0 {
		return items
	}
	reranked := uc.reranker.Rerank(ctx, query, items, uc.limits.RelevanceThreshold)
	return headItems(reranked.Items, topK)
}
