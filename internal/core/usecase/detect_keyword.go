package usecase

import (
	"context"
	"strings"

	"github.com/kirillkom/dataviz-search/internal/core/domain"
	"github.com/kirillkom/dataviz-search/internal/core/ports"
)

// KeywordToolDetector activates every facet whose trigger keyword occurs in the
// query. Hits follow registry order and carry the whole query as sub-query.
type KeywordToolDetector struct {
	registry ports.FieldRegistry
}

func NewKeywordToolDetector(registry ports.FieldRegistry) *KeywordToolDetector {
	return &KeywordToolDetector{registry: registry}
}

func (d *KeywordToolDetector) Detect(_ context.Context, query string) domain.DetectionResult {
	normalized := strings.ToLower(query)
	if strings.TrimSpace(normalized) == "" {
		return domain.DetectionResult{}
	}

	hits := make([]domain.ToolHit, 0, 4)
	for _, desc := range d.registry.All() {
		if !containsAnyKeyword(normalized, desc.Keywords) {
			continue
		}
		hits = append(hits, domain.NewToolHit(desc, query))
	}
	return domain.DetectionResult{Hits: hits}
}

func containsAnyKeyword(message string, keywords []string) bool {
	for _, keyword := range keywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword == "" {
			continue
		}
		if strings.Contains(message, keyword) {
			return true
		}
	}
	return false
}
