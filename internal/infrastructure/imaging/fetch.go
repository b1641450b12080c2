package imaging

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/kirillkom/dataviz-search/internal/core/domain"
	"github.com/kirillkom/dataviz-search/internal/infrastructure/resilience"
)

const (
	defaultFetchTimeout = 10 * time.Second
	defaultMaxBytes     = 20 << 20
)

var githubBlobPattern = regexp.MustCompile(`^https://github\.com/([^/]+)/([^/]+)/blob/(.+)$`)

type FetcherOptions struct {
	Timeout            time.Duration
	MaxBytes           int64
	UserAgent          string
	ResilienceExecutor *resilience.Executor
}

// Fetcher downloads images over HTTP(S) with a size cap.
type Fetcher struct {
	httpClient *http.Client
	maxBytes   int64
	userAgent  string
	executor   *resilience.Executor
}

func NewFetcher(opts FetcherOptions) *Fetcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		maxBytes:   maxBytes,
		userAgent:  opts.UserAgent,
		executor:   opts.ResilienceExecutor,
	}
}

func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	target, err := ResolveImageURL(rawURL)
	if err != nil {
		return nil, domain.WrapError(domain.ErrFetch, "fetch image", err)
	}

	var data []byte
	call := func(callCtx context.Context) error {
		body, err := f.download(callCtx, target)
		if err != nil {
			return err
		}
		data = body
		return nil
	}
	if f.executor != nil {
		err = f.executor.Execute(ctx, "image.fetch", call, classifyFetchError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrFetch, "fetch image", err)
	}
	return data, nil
}

func (f *Fetcher) download(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create image request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Status: resp.Status, URL: target}
	}
	if resp.ContentLength > f.maxBytes {
		return nil, fmt.Errorf("image of %d bytes exceeds limit of %d", resp.ContentLength, f.maxBytes)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("image exceeds limit of %d bytes", f.maxBytes)
	}
	return body, nil
}

// ResolveImageURL validates the URL and rewrites GitHub blob pages to their raw
// content URL.
func ResolveImageURL(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if m := githubBlobPattern.FindStringSubmatch(rawURL); m != nil {
		rawURL = fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/%s", m[1], m[2], m[3])
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse image url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported image url scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("image url has no host")
	}
	return parsed.String(), nil
}

type HTTPStatusError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("image fetch %s status: %s", e.URL, e.Status)
}
