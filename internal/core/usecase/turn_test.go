package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/dataviz-search/internal/core/domain"
)

type turnFixture struct {
	sessions    *sessionStoreFake
	rewriter    *rewriterFake
	detector    *detectorFake
	executor    *executorFake
	reranker    *rerankerFake
	retriever   *retrieverFake
	describer   *describerFake
	images      *imageStoreFake
	transcripts *transcriptPublisherFake
	uc          *TurnUseCase
}

func newTurnFixture(t *testing.T) *turnFixture {
	t.Helper()
	f := &turnFixture{
		sessions:    newSessionStoreFake(&domain.Session{ID: "s-1", ClientIP: "10.0.0.1"}),
		rewriter:    &rewriterFake{},
		detector:    &detectorFake{},
		executor:    &executorFake{},
		reranker:    &rerankerFake{},
		retriever:   &retrieverFake{},
		describer:   &describerFake{description: "a dark scatter plot"},
		images:      &imageStoreFake{},
		transcripts: &transcriptPublisherFake{},
	}
	f.uc = NewTurnUseCase(TurnDependencies{
		Sessions:    f.sessions,
		Rewriter:    f.rewriter,
		Detector:    f.detector,
		Executor:    f.executor,
		Reranker:    f.reranker,
		Retriever:   f.retriever,
		Describer:   f.describer,
		Images:      f.images,
		Transcripts: f.transcripts,
	}, TurnLimits{}, "/v1/images/")
	return f
}

func manyItems(n int) []domain.ResultItem {
	out := make([]domain.ResultItem, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, item(string(rune('a'+i%26))+strings.Repeat("x", i/26), nil))
	}
	return out
}

func TestHandleTurnTextRewritesAndRetrievesTen(t *testing.T) {
	f := newTurnFixture(t)
	f.rewriter.result = domain.RewriteResult{Query: "Scatter Plot", Rewritten: true}
	f.retriever.items = manyItems(3)

	resp, err := f.uc.HandleTurn(context.Background(), domain.TurnRequest{SessionID: "s-1", Text: "scatter plots from flowingdata"})
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if resp.Mode != domain.ModeText {
		t.Fatalf("expected text mode, got %s", resp.Mode)
	}

	call := f.retriever.calls[0]
	if call.query != "Scatter Plot" || call.limit != 10 {
		t.Fatalf("unexpected retrieve call %+v", call)
	}
	if len(call.filter.Predicates) != 1 || call.filter.Predicates[0].Value != "flowingdata" {
		t.Fatalf("expected source scope filter, got %+v", call.filter)
	}

	// rewritten query, title, three results
	if len(resp.Blocks) != 5 {
		t.Fatalf("expected 5 blocks, got %d", len(resp.Blocks))
	}
	if !strings.Contains(resp.Blocks[1].Text, "(filtered by flowingdata)") {
		t.Fatalf("title missing scope: %q", resp.Blocks[1].Text)
	}
	if len(resp.Blocks[2].ImageURLs) != 1 {
		t.Fatalf("result block without image")
	}

	session := f.sessions.sessions["s-1"]
	if len(session.History) != 2 || session.History[0].Content != "scatter plots from flowingdata" {
		t.Fatalf("unexpected history %+v", session.History)
	}
	if session.LastRewritten != "Scatter Plot" {
		t.Fatalf("expected last rewritten query stored, got %q", session.LastRewritten)
	}
	if len(f.transcripts.entries) != 1 {
		t.Fatalf("expected one transcript entry, got %d", len(f.transcripts.entries))
	}
	entry := f.transcripts.entries[0]
	if entry.SessionID != "s-1" || entry.ClientIP != "10.0.0.1" || entry.Metadata["mode"] != domain.ModeText {
		t.Fatalf("unexpected transcript entry %+v", entry)
	}
}

func TestHandleTurnHistoryIsBounded(t *testing.T) {
	f := newTurnFixture(t)
	for i := 0; i < 5; i++ {
		if _, err := f.uc.HandleTurn(context.Background(), domain.TurnRequest{SessionID: "s-1", Text: "bar chart"}); err != nil {
			t.Fatalf("HandleTurn() error = %v", err)
		}
	}
	if got := len(f.sessions.sessions["s-1"].History); got != domain.MaxHistoryTurns {
		t.Fatalf("expected %d history turns, got %d", domain.MaxHistoryTurns, got)
	}
	if got := len(f.rewriter.history[4]); got != domain.MaxHistoryTurns {
		t.Fatalf("rewriter saw %d history turns", got)
	}
}

func TestHandleTurnURLDescribesAndReranks(t *testing.T) {
	f := newTurnFixture(t)
	f.sessions.sessions["s-1"].WaitingForURL = true
	f.retriever.items = manyItems(40)

	resp, err := f.uc.HandleTurn(context.Background(), domain.TurnRequest{SessionID: "s-1", Text: "https://github.com/a/b/blob/main/c.png"})
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if resp.Mode != domain.ModeImageURL {
		t.Fatalf("expected image url mode, got %s", resp.Mode)
	}
	if f.retriever.calls[0].query != "a dark scatter plot" || f.retriever.calls[0].limit != 100 {
		t.Fatalf("unexpected retrieve call %+v", f.retriever.calls[0])
	}
	if f.reranker.queries[0] != "a dark scatter plot" {
		t.Fatalf("expected rerank on description, got %q", f.reranker.queries[0])
	}
	// analysis, title, top 20
	if len(resp.Blocks) != 22 {
		t.Fatalf("expected 22 blocks, got %d", len(resp.Blocks))
	}
	if f.sessions.sessions["s-1"].WaitingForURL {
		t.Fatalf("waiting flag must be cleared")
	}
	if resp.Stats.ResultCount != 20 {
		t.Fatalf("expected 20 results, got %d", resp.Stats.ResultCount)
	}
}

func TestHandleTurnDescribeFailureIsRendered(t *testing.T) {
	f := newTurnFixture(t)
	f.describer.err = domain.WrapError(domain.ErrFetch, "fetch image", errors.New("404"))

	resp, err := f.uc.HandleTurn(context.Background(), domain.TurnRequest{SessionID: "s-1", Text: "https://example.com/missing.png"})
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if !resp.Stats.DescribeFailed || len(resp.Blocks) != 1 || !strings.Contains(resp.Blocks[0].Text, "Could not analyze") {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(f.retriever.calls) != 0 {
		t.Fatalf("no retrieval expected after describe failure")
	}
}

func TestHandleTurnUploadStoresImage(t *testing.T) {
	f := newTurnFixture(t)
	f.retriever.items = manyItems(2)

	resp, err := f.uc.HandleTurn(context.Background(), domain.TurnRequest{
		SessionID: "s-1",
		Images:    []domain.ImageUpload{{Filename: "chart.PNG", Data: []byte("png-bytes")}},
	})
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if resp.Mode != domain.ModeImageUpload || f.describer.uploads != 1 {
		t.Fatalf("expected upload path, got mode %s", resp.Mode)
	}
	if len(f.images.saved) != 1 {
		t.Fatalf("expected stored upload")
	}
	for key := range f.images.saved {
		if !strings.HasSuffix(key, ".png") {
			t.Fatalf("unexpected key %q", key)
		}
		if resp.Blocks[0].ImageURLs[0] != "/v1/images/"+key {
			t.Fatalf("analysis block does not reference stored image: %v", resp.Blocks[0].ImageURLs)
		}
	}
	if f.transcripts.entries[0].UserMessage != "[image upload: chart.PNG]" {
		t.Fatalf("unexpected transcript user message %q", f.transcripts.entries[0].UserMessage)
	}
}

func TestHandleTurnPromptCommands(t *testing.T) {
	f := newTurnFixture(t)

	resp, err := f.uc.HandleTurn(context.Background(), domain.TurnRequest{SessionID: "s-1", Command: domain.CommandAnalyzeURL})
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if resp.Mode != domain.ModePrompt || !f.sessions.sessions["s-1"].WaitingForURL {
		t.Fatalf("analyze_url must set the waiting flag")
	}

	resp, err = f.uc.HandleTurn(context.Background(), domain.TurnRequest{SessionID: "s-1", Text: "not a link"})
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if resp.Mode != domain.ModePrompt || len(f.retriever.calls) != 0 {
		t.Fatalf("waiting session must be prompted again, got mode %s", resp.Mode)
	}

	resp, err = f.uc.HandleTurn(context.Background(), domain.TurnRequest{SessionID: "s-1", Command: domain.CommandUploadImage})
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if !strings.Contains(resp.Blocks[0].Text, "upload an image") {
		t.Fatalf("unexpected upload prompt %q", resp.Blocks[0].Text)
	}
}

func TestHandleTurnToolsCommand(t *testing.T) {
	reg := loadRegistry(t)
	plotType, _ := reg.Lookup(domain.FacetPlotType)

	f := newTurnFixture(t)
	f.detector.result = domain.DetectionResult{Hits: []domain.ToolHit{domain.NewToolHit(plotType, "scatter plot")}}
	f.executor.result = domain.SearchResult{Items: manyItems(25)}

	resp, err := f.uc.HandleTurn(context.Background(), domain.TurnRequest{
		SessionID: "s-1",
		Text:      "scatter plot in ggplot",
		Command:   domain.CommandDeconstructElements,
	})
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if !strings.Contains(resp.Blocks[0].Text, "`search_plot_type`") {
		t.Fatalf("expected tools-called block, got %q", resp.Blocks[0].Text)
	}
	req := f.executor.requests[0]
	if req.Query != "scatter plot in ggplot" || len(req.Scope.Predicates) != 1 || req.Scope.Predicates[0].Value != "ggplot2" {
		t.Fatalf("unexpected search request %+v", req)
	}
	if resp.Stats.ResultCount != 20 || len(resp.Stats.Facets) != 1 {
		t.Fatalf("unexpected stats %+v", resp.Stats)
	}
	if len(f.rewriter.queries) != 0 {
		t.Fatalf("tools mode must not rewrite")
	}
}

func TestHandleTurnRerankFailureKeepsDistanceFiltered(t *testing.T) {
	candidates := []domain.ResultItem{
		item("near", floatPtr(0.2)),
		item("mid", floatPtr(0.6)),
		item("far", floatPtr(0.9)),
	}

	tests := []struct {
		name    string
		command domain.Command
		title   string
	}{
		{name: "tools", command: domain.CommandDeconstructElements, title: "Top 1 Results (Fallback)"},
		{name: "hybrid", command: domain.CommandHybridSearch, title: "Top 1 Hybrid Search Results"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newTurnFixture(t)
			f.executor.result = domain.SearchResult{Items: candidates}
			f.retriever.items = candidates
			f.uc.reranker = NewLLMReranker(&chatCompleterFake{reply: textReply("not json")})

			resp, err := f.uc.HandleTurn(context.Background(), domain.TurnRequest{
				SessionID: "s-1",
				Text:      "bar charts",
				Command:   tc.command,
			})
			if err != nil {
				t.Fatalf("HandleTurn() error = %v", err)
			}
			if resp.Stats.ResultCount != 1 || !resp.Stats.RerankFallback {
				t.Fatalf("unexpected stats %+v", resp.Stats)
			}
			last := resp.Blocks[len(resp.Blocks)-1]
			if !strings.Contains(last.Text, "image near") {
				t.Fatalf("expected the near item, got %q", last.Text)
			}
			title := resp.Blocks[len(resp.Blocks)-2].Text
			if title != "**"+tc.title+"**" {
				t.Fatalf("unexpected title %q", title)
			}
		})
	}
}

func TestHandleTurnHybridAndLongContext(t *testing.T) {
	f := newTurnFixture(t)
	f.retriever.items = manyItems(30)
	f.rewriter.result = domain.RewriteResult{Query: "Histogram", Rewritten: true}

	if _, err := f.uc.HandleTurn(context.Background(), domain.TurnRequest{SessionID: "s-1", Text: "histograms", Command: domain.CommandHybridSearch}); err != nil {
		t.Fatalf("HandleTurn(hybrid) error = %v", err)
	}
	hybrid := f.retriever.calls[0]
	if !hybrid.hybrid || hybrid.limit != 100 || hybrid.alpha != 0.5 || hybrid.query != "histograms" {
		t.Fatalf("unexpected hybrid call %+v", hybrid)
	}

	resp, err := f.uc.HandleTurn(context.Background(), domain.TurnRequest{SessionID: "s-1", Text: "histograms", Command: domain.CommandLongContextRetrieval})
	if err != nil {
		t.Fatalf("HandleTurn(long context) error = %v", err)
	}
	long := f.retriever.calls[1]
	if long.hybrid || long.limit != 150 || long.query != "Histogram" {
		t.Fatalf("unexpected long context call %+v", long)
	}
	if resp.Stats.ResultCount != 20 {
		t.Fatalf("expected top 20, got %d", resp.Stats.ResultCount)
	}
}

func TestHandleTurnInvalidInput(t *testing.T) {
	f := newTurnFixture(t)

	tests := []struct {
		name string
		req  domain.TurnRequest
		kind error
	}{
		{name: "missing session id", req: domain.TurnRequest{Text: "x"}, kind: domain.ErrInvalidInput},
		{name: "unknown command", req: domain.TurnRequest{SessionID: "s-1", Command: "explode"}, kind: domain.ErrInvalidInput},
		{name: "empty turn", req: domain.TurnRequest{SessionID: "s-1"}, kind: domain.ErrInvalidInput},
		{name: "hybrid without text", req: domain.TurnRequest{SessionID: "s-1", Command: domain.CommandHybridSearch}, kind: domain.ErrInvalidInput},
		{name: "unknown session", req: domain.TurnRequest{SessionID: "nope", Text: "x"}, kind: domain.ErrNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.uc.HandleTurn(context.Background(), tc.req); !errors.Is(err, tc.kind) {
				t.Fatalf("expected %v, got %v", tc.kind, err)
			}
		})
	}
}

func TestHandleTurnBackendFailureIsExplained(t *testing.T) {
	backendDown := domain.WrapError(domain.ErrBackendQuery, "near text retrieve", errors.New("down"))

	tests := []struct {
		name string
		req  domain.TurnRequest
		prep func(f *turnFixture)
	}{
		{name: "text", req: domain.TurnRequest{SessionID: "s-1", Text: "bar"}, prep: func(f *turnFixture) { f.retriever.err = backendDown }},
		{name: "hybrid", req: domain.TurnRequest{SessionID: "s-1", Text: "bar", Command: domain.CommandHybridSearch}, prep: func(f *turnFixture) { f.retriever.err = backendDown }},
		{name: "long context", req: domain.TurnRequest{SessionID: "s-1", Text: "bar", Command: domain.CommandLongContextRetrieval}, prep: func(f *turnFixture) { f.retriever.err = backendDown }},
		{name: "tools", req: domain.TurnRequest{SessionID: "s-1", Text: "bar", Command: domain.CommandDeconstructElements}, prep: func(f *turnFixture) {
			f.executor.result = domain.SearchResult{Items: []domain.ResultItem{}, Err: backendDown}
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newTurnFixture(t)
			tc.prep(f)

			resp, err := f.uc.HandleTurn(context.Background(), tc.req)
			if err != nil {
				t.Fatalf("HandleTurn() error = %v", err)
			}
			if !resp.Stats.SearchFailed {
				t.Fatalf("expected SearchFailed, got %+v", resp.Stats)
			}
			last := resp.Blocks[len(resp.Blocks)-1]
			if last.Text != searchUnavailable {
				t.Fatalf("expected unavailable message, got %q", last.Text)
			}
			if f.sessions.saves != 1 || len(f.transcripts.entries) != 1 {
				t.Fatalf("failed search must still complete the turn: saves=%d transcripts=%d", f.sessions.saves, len(f.transcripts.entries))
			}
			history := f.sessions.sessions["s-1"].History
			if len(history) != 2 || history[1].Content != searchUnavailable {
				t.Fatalf("unexpected history %+v", history)
			}
		})
	}
}

func TestHandleTurnCancelledSavesNothing(t *testing.T) {
	f := newTurnFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.uc.HandleTurn(ctx, domain.TurnRequest{SessionID: "s-1", Text: "bar"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if f.sessions.saves != 0 || len(f.transcripts.entries) != 0 {
		t.Fatalf("cancelled turn must not persist state")
	}
}

func TestSourceScope(t *testing.T) {
	tests := map[string]string{
		"charts from FlowingData":     "flowingdata",
		"flowing data maps":           "flowingdata",
		"ggplot histograms":           "ggplot2",
		"ggplot2 facets":              "ggplot2",
		"data wrapper choropleth":     "datawrapper",
		"plain scatter plot":          "",
		"datawrapper and flowingdata": "flowingdata",
	}
	for query, want := range tests {
		name, filter := SourceScope(query)
		if name != want {
			t.Fatalf("SourceScope(%q) = %q, want %q", query, name, want)
		}
		if want == "" && !filter.IsEmpty() {
			t.Fatalf("SourceScope(%q) returned filter without source", query)
		}
	}
}
