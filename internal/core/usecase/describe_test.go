package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/dataviz-search/internal/core/domain"
)

type fetcherFake struct {
	data []byte
	err  error
	urls []string
}

func (f *fetcherFake) Fetch(_ context.Context, url string) ([]byte, error) {
	f.urls = append(f.urls, url)
	return f.data, f.err
}

type normalizerFake struct {
	err error
}

func (f *normalizerFake) NormalizeJPEG(data []byte) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]byte("jpeg:"), data...), nil
}

type visionFake struct {
	dataURI string
	prompt  string
	reply   string
	err     error
}

func (f *visionFake) DescribeImage(_ context.Context, dataURI, prompt string) (string, error) {
	f.dataURI = dataURI
	f.prompt = prompt
	return f.reply, f.err
}

func TestImageDescriberDescribeURL(t *testing.T) {
	fetcher := &fetcherFake{data: []byte("raw")}
	vision := &visionFake{reply: " A scatter plot on a dark background. "}
	uc := NewImageDescriber(fetcher, &normalizerFake{}, vision)

	description, err := uc.DescribeURL(context.Background(), " https://example.com/chart.png ")
	if err != nil {
		t.Fatalf("DescribeURL() error = %v", err)
	}
	if description != "A scatter plot on a dark background." {
		t.Fatalf("unexpected description %q", description)
	}
	if fetcher.urls[0] != "https://example.com/chart.png" {
		t.Fatalf("unexpected fetched url %q", fetcher.urls[0])
	}
	if vision.dataURI != "data:image/jpeg;base64,anBlZzpyYXc=" {
		t.Fatalf("unexpected data uri %q", vision.dataURI)
	}
	if !strings.Contains(vision.prompt, "3-4 sentence") {
		t.Fatalf("unexpected prompt %q", vision.prompt)
	}
}

func TestImageDescriberErrorKinds(t *testing.T) {
	tests := []struct {
		name       string
		fetcher    *fetcherFake
		normalizer *normalizerFake
		vision     *visionFake
		kind       error
	}{
		{
			name:       "fetch failure",
			fetcher:    &fetcherFake{err: errors.New("404")},
			normalizer: &normalizerFake{},
			vision:     &visionFake{reply: "x"},
			kind:       domain.ErrFetch,
		},
		{
			name:       "decode failure",
			fetcher:    &fetcherFake{data: []byte("not an image")},
			normalizer: &normalizerFake{err: errors.New("unknown format")},
			vision:     &visionFake{reply: "x"},
			kind:       domain.ErrDecode,
		},
		{
			name:       "vision failure",
			fetcher:    &fetcherFake{data: []byte("raw")},
			normalizer: &normalizerFake{},
			vision:     &visionFake{err: errors.New("429")},
			kind:       domain.ErrUpstreamCall,
		},
		{
			name:       "empty description",
			fetcher:    &fetcherFake{data: []byte("raw")},
			normalizer: &normalizerFake{},
			vision:     &visionFake{reply: "  "},
			kind:       domain.ErrUpstreamCall,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			uc := NewImageDescriber(tc.fetcher, tc.normalizer, tc.vision)
			_, err := uc.DescribeURL(context.Background(), "https://example.com/a.png")
			if !errors.Is(err, tc.kind) {
				t.Fatalf("expected %v, got %v", tc.kind, err)
			}
		})
	}
}

func TestImageDescriberRejectsEmptyInput(t *testing.T) {
	uc := NewImageDescriber(&fetcherFake{}, &normalizerFake{}, &visionFake{})
	if _, err := uc.DescribeURL(context.Background(), " "); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := uc.DescribeBytes(context.Background(), nil); !errors.Is(err, domain.ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}
