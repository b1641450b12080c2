package usecase

import (
	"context"

	"github.com/kirillkom/dataviz-search/internal/core/domain"
	"github.com/kirillkom/dataviz-search/internal/core/ports"
)

const (
	DefaultRetrieveLimit = 15
	DefaultHybridAlpha   = 0.5
)

// RetrieveReturnProperties are requested by plain and hybrid retrieval.
var RetrieveReturnProperties = []string{
	domain.PropImageURL,
	domain.PropDescription,
	domain.PropPostTitle,
	domain.PropPostURL,
	domain.PropImageDescription,
	domain.PropExternalLink,
}

// Retriever queries the description sub-vector directly, without tool detection.
type Retriever struct {
	backend ports.VectorBackend
}

func NewRetriever(backend ports.VectorBackend) *Retriever {
	return &Retriever{backend: backend}
}

func (uc *Retriever) Retrieve(
	ctx context.Context,
	query string,
	limit int,
	filter domain.Filter,
) ([]domain.ResultItem, error) {
	if limit <= 0 {
		limit = DefaultRetrieveLimit
	}

	items, err := uc.backend.NearText(ctx, domain.NearTextQuery{
		Text:             query,
		TargetVector:     domain.DefaultDescriptionVector,
		Limit:            limit,
		Filter:           filter,
		ReturnProperties: RetrieveReturnProperties,
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrBackendQuery, "near text retrieve", err)
	}
	if items == nil {
		items = []domain.ResultItem{}
	}
	return items, nil
}

// HybridRetrieve blends keyword and vector scoring. Alpha outside [0,1] falls
// back to the default.
func (uc *Retriever) HybridRetrieve(
	ctx context.Context,
	query string,
	limit int,
	alpha float64,
	filter domain.Filter,
) ([]domain.ResultItem, error) {
	if limit <= 0 {
		limit = DefaultRetrieveLimit
	}
	if alpha < 0 || alpha > 1 {
		alpha = DefaultHybridAlpha
	}

	items, err := uc.backend.Hybrid(ctx, domain.HybridQuery{
		Text:             query,
		TargetVector:     domain.DefaultDescriptionVector,
		Limit:            limit,
		Alpha:            alpha,
		Filter:           filter,
		ReturnProperties: RetrieveReturnProperties,
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrBackendQuery, "hybrid retrieve", err)
	}
	if items == nil {
		items = []domain.ResultItem{}
	}
	return items, nil
}
