package usecase

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/kirillkom/dataviz-search/internal/core/domain"
	"github.com/kirillkom/dataviz-search/internal/core/ports"
)

const describePrompt = `Analyze this data visualization and provide a concise, search-optimized description.

Focus on these key aspects:
1. Chart Type & Structure: primary chart type, layout, faceting, coordinate system.
2. Data & Variables: what is being measured, data types, number of series.
3. Visual Design Elements: color scheme, background, grid, typography.
4. Key Patterns: trends, distributions, outliers, comparisons shown.
5. Design Features: annotations, legends, labels, statistical overlays.
6. Context: subject domain and likely purpose.

Return a maximum 3-4 sentence description optimized for semantic search. Use specific visualization terminology and avoid subjective judgments.`

// ImageDescriber turns an image into a text description for retrieval.
type ImageDescriber struct {
	fetcher    ports.ImageFetcher
	normalizer ports.ImageNormalizer
	vision     ports.VisionCompleter
}

func NewImageDescriber(
	fetcher ports.ImageFetcher,
	normalizer ports.ImageNormalizer,
	vision ports.VisionCompleter,
) *ImageDescriber {
	return &ImageDescriber{
		fetcher:    fetcher,
		normalizer: normalizer,
		vision:     vision,
	}
}

func (uc *ImageDescriber) DescribeURL(ctx context.Context, url string) (string, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "describe url", fmt.Errorf("empty url"))
	}

	data, err := uc.fetcher.Fetch(ctx, url)
	if err != nil {
		if domain.IsKind(err, domain.ErrFetch) {
			return "", err
		}
		return "", domain.WrapError(domain.ErrFetch, "fetch image", err)
	}
	return uc.DescribeBytes(ctx, data)
}

func (uc *ImageDescriber) DescribeBytes(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", domain.WrapError(domain.ErrDecode, "normalize image", fmt.Errorf("empty image"))
	}

	jpegBytes, err := uc.normalizer.NormalizeJPEG(data)
	if err != nil {
		return "", domain.WrapError(domain.ErrDecode, "normalize image", err)
	}

	dataURI := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpegBytes)
	description, err := uc.vision.DescribeImage(ctx, dataURI, describePrompt)
	if err != nil {
		return "", domain.WrapError(domain.ErrUpstreamCall, "describe image", err)
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return "", domain.WrapError(domain.ErrUpstreamCall, "describe image", fmt.Errorf("empty description"))
	}
	return description, nil
}
