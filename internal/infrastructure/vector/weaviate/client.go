package weaviate

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	wv "github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/kirillkom/dataviz-search/internal/core/domain"
	"github.com/kirillkom/dataviz-search/internal/infrastructure/resilience"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Collection string
	// Headers are forwarded on every request, e.g. vectorizer API keys.
	Headers            map[string]string
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

// Client queries one Weaviate collection through the official Go client.
type Client struct {
	api       *wv.Client
	className string
	executor  *resilience.Executor
}

func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"))
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid weaviate url %q", opts.BaseURL)
	}
	class := className(opts.Collection)
	if !identifierPattern.MatchString(class) {
		return nil, fmt.Errorf("invalid collection name %q", opts.Collection)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	headers := make(map[string]string, len(opts.Headers)+1)
	for k, v := range opts.Headers {
		if strings.TrimSpace(v) != "" {
			headers[k] = v
		}
	}
	if key := strings.TrimSpace(opts.APIKey); key != "" {
		headers["Authorization"] = "Bearer " + key
	}

	api, err := wv.NewClient(wv.Config{
		Host:             base.Host,
		Scheme:           base.Scheme,
		Headers:          headers,
		ConnectionClient: &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}
	return &Client{
		api:       api,
		className: class,
		executor:  opts.ResilienceExecutor,
	}, nil
}

func (c *Client) NearText(ctx context.Context, q domain.NearTextQuery) ([]domain.ResultItem, error) {
	fields, err := returnFields(q.ReturnProperties, "distance")
	if err != nil {
		return nil, err
	}
	where, err := whereFilter(q.Filter)
	if err != nil {
		return nil, err
	}

	nearText := c.api.GraphQL().NearTextArgBuilder().WithConcepts([]string{q.Text})
	if q.TargetVector != "" {
		nearText = nearText.WithTargetVectors(q.TargetVector)
	}
	get := c.api.GraphQL().Get().
		WithClassName(c.className).
		WithFields(fields...).
		WithNearText(nearText)
	if where != nil {
		get = get.WithWhere(where)
	}
	if q.Limit > 0 {
		get = get.WithLimit(q.Limit)
	}
	return c.get(ctx, "near_text", get.Do)
}

func (c *Client) Hybrid(ctx context.Context, q domain.HybridQuery) ([]domain.ResultItem, error) {
	fields, err := returnFields(q.ReturnProperties, "score")
	if err != nil {
		return nil, err
	}
	where, err := whereFilter(q.Filter)
	if err != nil {
		return nil, err
	}

	hybrid := c.api.GraphQL().HybridArgumentBuilder().
		WithQuery(q.Text).
		WithAlpha(float32(q.Alpha))
	if q.TargetVector != "" {
		hybrid = hybrid.WithTargetVectors(q.TargetVector)
	}
	get := c.api.GraphQL().Get().
		WithClassName(c.className).
		WithFields(fields...).
		WithHybrid(hybrid)
	if where != nil {
		get = get.WithWhere(where)
	}
	if q.Limit > 0 {
		get = get.WithLimit(q.Limit)
	}
	return c.get(ctx, "hybrid", get.Do)
}

// NamedVectors lists the named vectors configured on the collection.
func (c *Client) NamedVectors(ctx context.Context) ([]string, error) {
	var class *models.Class
	err := c.execute(ctx, "weaviate.schema", func(callCtx context.Context) error {
		got, err := c.api.Schema().ClassGetter().WithClassName(c.className).Do(callCtx)
		if err != nil {
			return err
		}
		class = got
		return nil
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(class.VectorConfig))
	for name := range class.VectorConfig {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (c *Client) get(
	ctx context.Context,
	operation string,
	do func(context.Context) (*models.GraphQLResponse, error),
) ([]domain.ResultItem, error) {
	var items []domain.ResultItem
	err := c.execute(ctx, "weaviate."+operation, func(callCtx context.Context) error {
		resp, err := do(callCtx)
		if err != nil {
			return err
		}
		if len(resp.Errors) > 0 {
			return newGraphQLError(operation, resp.Errors)
		}
		decoded, err := decodeObjects(getObjects(resp, c.className))
		if err != nil {
			return fmt.Errorf("decode %s response: %w", operation, err)
		}
		items = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) execute(ctx context.Context, operation string, call func(context.Context) error) error {
	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, operation, call, classifyWeaviateError)
	} else {
		err = call(ctx)
	}
	return wrapTemporaryIfNeeded(operation, err)
}

// className follows the Weaviate convention of a capitalized first letter.
func className(collection string) string {
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return ""
	}
	return strings.ToUpper(collection[:1]) + collection[1:]
}

