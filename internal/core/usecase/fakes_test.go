package usecase

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/kirillkom/dataviz-search/internal/core/domain"
	"github.com/kirillkom/dataviz-search/internal/core/registry"
)

func loadRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.Load()
	if err != nil {
		t.Fatalf("registry.Load() error = %v", err)
	}
	return reg
}

func floatPtr(v float64) *float64 { return &v }

func item(id string, distance *float64) domain.ResultItem {
	return domain.ResultItem{
		ID: id,
		Properties: map[string]any{
			domain.PropDescription:      "description of " + id,
			domain.PropImageURL:         "https://img.example/" + id + ".png",
			domain.PropImageDescription: "image " + id,
			domain.PropPostURL:          "https://post.example/" + id,
		},
		Distance: distance,
	}
}

func itemIDs(items []domain.ResultItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

type chatCompleterFake struct {
	mu       sync.Mutex
	requests []domain.CompletionRequest
	reply    func(req domain.CompletionRequest) (domain.Completion, error)
}

func (f *chatCompleterFake) Complete(_ context.Context, req domain.CompletionRequest) (domain.Completion, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.reply == nil {
		return domain.Completion{}, nil
	}
	return f.reply(req)
}

func textReply(text string) func(domain.CompletionRequest) (domain.Completion, error) {
	return func(domain.CompletionRequest) (domain.Completion, error) {
		return domain.Completion{Text: text}, nil
	}
}

func errReply(err error) func(domain.CompletionRequest) (domain.Completion, error) {
	return func(domain.CompletionRequest) (domain.Completion, error) {
		return domain.Completion{}, err
	}
}

type vectorBackendFake struct {
	nearText []domain.NearTextQuery
	hybrid   []domain.HybridQuery
	items    []domain.ResultItem
	err      error
}

func (f *vectorBackendFake) NearText(_ context.Context, q domain.NearTextQuery) ([]domain.ResultItem, error) {
	f.nearText = append(f.nearText, q)
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

func (f *vectorBackendFake) Hybrid(_ context.Context, q domain.HybridQuery) ([]domain.ResultItem, error) {
	f.hybrid = append(f.hybrid, q)
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

type sessionStoreFake struct {
	sessions map[string]*domain.Session
	saves    int
	saveErr  error
}

func newSessionStoreFake(sessions ...*domain.Session) *sessionStoreFake {
	f := &sessionStoreFake{sessions: make(map[string]*domain.Session)}
	for _, s := range sessions {
		f.sessions[s.ID] = s
	}
	return f
}

func (f *sessionStoreFake) Get(_ context.Context, id string) (*domain.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get session", io.EOF)
	}
	return s, nil
}

func (f *sessionStoreFake) Save(_ context.Context, s *domain.Session) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves++
	f.sessions[s.ID] = s
	return nil
}

func (f *sessionStoreFake) Delete(_ context.Context, id string) error {
	delete(f.sessions, id)
	return nil
}

type rewriterFake struct {
	result  domain.RewriteResult
	queries []string
	history [][]domain.ConversationTurn
}

func (f *rewriterFake) Rewrite(_ context.Context, query string, history []domain.ConversationTurn) domain.RewriteResult {
	f.queries = append(f.queries, query)
	f.history = append(f.history, append([]domain.ConversationTurn(nil), history...))
	if f.result.Query == "" {
		return domain.RewriteResult{Query: query}
	}
	return f.result
}

type detectorFake struct {
	result domain.DetectionResult
}

func (f *detectorFake) Detect(context.Context, string) domain.DetectionResult { return f.result }

type executorFake struct {
	requests []domain.SearchRequest
	result   domain.SearchResult
}

func (f *executorFake) Execute(_ context.Context, req domain.SearchRequest) domain.SearchResult {
	f.requests = append(f.requests, req)
	return f.result
}

type rerankerFake struct {
	queries []string
	inputs  [][]domain.ResultItem
	reply   func(items []domain.ResultItem) domain.RerankResult
}

func (f *rerankerFake) Rerank(_ context.Context, query string, items []domain.ResultItem, _ float64) domain.RerankResult {
	f.queries = append(f.queries, query)
	f.inputs = append(f.inputs, items)
	if f.reply == nil {
		return domain.RerankResult{Items: items}
	}
	return f.reply(items)
}

type retrieverCall struct {
	query  string
	limit  int
	alpha  float64
	filter domain.Filter
	hybrid bool
}

type retrieverFake struct {
	calls []retrieverCall
	items []domain.ResultItem
	err   error
}

func (f *retrieverFake) Retrieve(_ context.Context, query string, limit int, filter domain.Filter) ([]domain.ResultItem, error) {
	f.calls = append(f.calls, retrieverCall{query: query, limit: limit, filter: filter})
	return f.items, f.err
}

func (f *retrieverFake) HybridRetrieve(_ context.Context, query string, limit int, alpha float64, filter domain.Filter) ([]domain.ResultItem, error) {
	f.calls = append(f.calls, retrieverCall{query: query, limit: limit, alpha: alpha, filter: filter, hybrid: true})
	return f.items, f.err
}

type describerFake struct {
	description string
	err         error
	urls        []string
	uploads     int
}

func (f *describerFake) DescribeBytes(context.Context, []byte) (string, error) {
	f.uploads++
	return f.description, f.err
}

func (f *describerFake) DescribeURL(_ context.Context, url string) (string, error) {
	f.urls = append(f.urls, url)
	return f.description, f.err
}

type transcriptPublisherFake struct {
	entries []domain.TranscriptEntry
	err     error
}

func (f *transcriptPublisherFake) PublishTranscript(_ context.Context, entry domain.TranscriptEntry) error {
	f.entries = append(f.entries, entry)
	return f.err
}

type imageStoreFake struct {
	saved map[string][]byte
}

func (f *imageStoreFake) Save(_ context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if f.saved == nil {
		f.saved = make(map[string][]byte)
	}
	f.saved[key] = raw
	return nil
}

func (f *imageStoreFake) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, domain.ErrNotFound
}
