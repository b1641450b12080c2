package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/dataviz-search/internal/core/domain"
	"github.com/kirillkom/dataviz-search/internal/core/ports"
)

const (
	DefaultRelevanceThreshold = 0.5

	rerankMaxTokens   = 100
	rerankTemperature = 0.1
)

type rerankCandidate struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
}

// LLMReranker asks the model for the relevant candidate indices in relevance order.
type LLMReranker struct {
	llm ports.ChatCompleter
}

func NewLLMReranker(llm ports.ChatCompleter) *LLMReranker {
	return &LLMReranker{llm: llm}
}

// Rerank returns a reordered, possibly pruned subsequence of items. It never
// fails: when the model call or its output is unusable, items are filtered by
// distance instead.
func (uc *LLMReranker) Rerank(
	ctx context.Context,
	query string,
	items []domain.ResultItem,
	threshold float64,
) domain.RerankResult {
	if len(items) == 0 {
		return domain.RerankResult{Items: []domain.ResultItem{}}
	}
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultRelevanceThreshold
	}

	prompt, err := buildRerankPrompt(query, items)
	if err != nil {
		return fallbackRerank(items, threshold, domain.WrapError(domain.ErrParse, "build rerank prompt", err))
	}

	completion, err := uc.llm.Complete(ctx, domain.CompletionRequest{
		Messages:    []domain.ChatMessage{{Role: domain.ChatRoleUser, Content: prompt}},
		Temperature: rerankTemperature,
		MaxTokens:   rerankMaxTokens,
	})
	if err != nil {
		return fallbackRerank(items, threshold, domain.WrapError(domain.ErrUpstreamCall, "rerank", err))
	}

	ranking, err := decodeRanking(completion.Text)
	if err != nil {
		return fallbackRerank(items, threshold, domain.WrapError(domain.ErrParse, "decode rerank ranking", err))
	}
	if len(ranking) == 0 {
		return domain.RerankResult{Items: []domain.ResultItem{}}
	}

	out := make([]domain.ResultItem, 0, len(ranking))
	used := make(map[int]struct{}, len(ranking))
	for _, idx := range ranking {
		if idx < 0 || idx >= len(items) {
			continue
		}
		if _, dup := used[idx]; dup {
			continue
		}
		used[idx] = struct{}{}
		out = append(out, items[idx])
	}
	if len(out) == 0 {
		return fallbackRerank(items, threshold, domain.WrapError(domain.ErrParse, "decode rerank ranking", fmt.Errorf("no usable indices in %v", ranking)))
	}
	return domain.RerankResult{Items: out}
}

func buildRerankPrompt(query string, items []domain.ResultItem) (string, error) {
	candidates := make([]rerankCandidate, 0, len(items))
	for i, item := range items {
		candidates = append(candidates, rerankCandidate{ID: i, Content: item.Description()})
	}
	listing, err := json.MarshalIndent(candidates, "", "  ")
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(`As a data visualization expert, analyze these visualization search results for relevance to the user's query.
The user is retrieving data visualizations from a vector database; decide which results best match the intent and requirements of the query.

USER QUERY: %q

SEARCH RESULTS:
%s

INSTRUCTIONS:
1. Analyze how well each result matches the semantic meaning of the query.
2. Consider visualization type, data structure, and visual elements.
3. ONLY include results that are genuinely relevant to the query.
4. Exclude results that do not match the user's intent.
5. Order results from most to least relevant, prioritizing plot types and data.

Respond with a JSON array holding only the ids of RELEVANT results in order of relevance.
Example: [2, 0, 3]

Only respond with the JSON array.`, query, listing), nil
}

// decodeRanking accepts a JSON array, optionally fenced. A valid empty array
// yields an empty ranking; anything that is not an array is an error.
// Non-integer elements are skipped.
func decodeRanking(raw string) ([]int, error) {
	content := strings.TrimSpace(raw)
	content = strings.ReplaceAll(content, "```json", "")
	content = strings.ReplaceAll(content, "```", "")
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty ranking response")
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(content)))
	dec.UseNumber()
	var values []any
	if err := dec.Decode(&values); err != nil {
		return nil, fmt.Errorf("ranking is not a json array: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after ranking array")
	}

	out := make([]int, 0, len(values))
	for _, v := range values {
		num, ok := v.(json.Number)
		if !ok {
			continue
		}
		idx, err := num.Int64()
		if err != nil {
			continue
		}
		out = append(out, int(idx))
	}
	if len(values) > 0 && len(out) == 0 {
		return nil, fmt.Errorf("ranking holds no integer ids")
	}
	return out, nil
}

// fallbackRerank keeps items whose distance is below 1-threshold and items
// without a distance, in their original order.
func fallbackRerank(items []domain.ResultItem, threshold float64, cause error) domain.RerankResult {
	slog.Warn("rerank_fallback", "candidates", len(items), "threshold", threshold, "error", cause)

	cutoff := 1.0 - threshold
	out := make([]domain.ResultItem, 0, len(items))
	for _, item := range items {
		if item.Distance == nil || *item.Distance < cutoff {
			out = append(out, item)
		}
	}
	return domain.RerankResult{Items: out, Fallback: true, Err: cause}
}
