package usecase

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/dataviz-search/internal/core/domain"
	"github.com/kirillkom/dataviz-search/internal/core/ports"
)

const (
	noResultsMessage  = "No matching visualizations found."
	uploadPrompt      = "Please upload an image to analyze..."
	urlModePrompt     = "**Image URL Mode**\n\nPlease provide the URL of the image you want to analyze.\n\n**Example:**\n`https://example.com/chart.png`\n\n*Just paste the image URL in your next message and I'll analyze it!*"
	urlRepeatPrompt   = "Still waiting for an image URL. Paste a link starting with http:// or https://."
	urlDescribeFailed = "Could not analyze the image from URL. Please check the URL and try again."
	uploadDescFailed  = "Could not analyze the uploaded image."
	searchUnavailable = "Search is temporarily unavailable. Please try again in a moment."
)

// TurnLimits are the per-mode candidate and display sizes.
type TurnLimits struct {
	TextTopK              int
	ImageCandidates       int
	DisplayTopK           int
	ToolsFallbackTopK     int
	HybridCandidates      int
	LongContextCandidates int
	HybridAlpha           float64
	RelevanceThreshold    float64
}

func (l TurnLimits) withDefaults() TurnLimits {
	if l.TextTopK <= 0 {
		l.TextTopK = 10
	}
	if l.ImageCandidates <= 0 {
		l.ImageCandidates = 100
	}
	if l.DisplayTopK <= 0 {
		l.DisplayTopK = 20
	}
	if l.ToolsFallbackTopK <= 0 {
		l.ToolsFallbackTopK = 30
	}
	if l.HybridCandidates <= 0 {
		l.HybridCandidates = 100
	}
	if l.LongContextCandidates <= 0 {
		l.LongContextCandidates = 150
	}
	if l.HybridAlpha < 0 || l.HybridAlpha > 1 {
		l.HybridAlpha = DefaultHybridAlpha
	}
	if l.RelevanceThreshold <= 0 || l.RelevanceThreshold > 1 {
		l.RelevanceThreshold = DefaultRelevanceThreshold
	}
	return l
}

// TurnDependencies groups the collaborators of TurnUseCase. Images and
// Transcripts may be nil.
type TurnDependencies struct {
	Sessions    ports.SessionStore
	Rewriter    ports.QueryRewriter
	Detector    ports.ToolDetector
	Executor    ports.SearchExecutor
	Reranker    ports.Reranker
	Retriever   ports.Retriever
	Describer   ports.ImageDescriber
	Images      ports.ImageStore
	Transcripts ports.TranscriptPublisher
}

// TurnUseCase routes one chat turn to the matching retrieval mode and renders
// the outcome as display blocks.
type TurnUseCase struct {
	sessions    ports.SessionStore
	rewriter    ports.QueryRewriter
	detector    ports.ToolDetector
	executor    ports.SearchExecutor
	reranker    ports.Reranker
	retriever   ports.Retriever
	describer   ports.ImageDescriber
	images      ports.ImageStore
	transcripts ports.TranscriptPublisher

	limits         TurnLimits
	imageURLPrefix string
}

func NewTurnUseCase(deps TurnDependencies, limits TurnLimits, imageURLPrefix string) *TurnUseCase {
	return &TurnUseCase{
		sessions:       deps.Sessions,
		rewriter:       deps.Rewriter,
		detector:       deps.Detector,
		executor:       deps.Executor,
		reranker:       deps.Reranker,
		retriever:      deps.Retriever,
		describer:      deps.Describer,
		images:         deps.Images,
		transcripts:    deps.Transcripts,
		limits:         limits.withDefaults(),
		imageURLPrefix: imageURLPrefix,
	}
}

type turnState struct {
	session  *domain.Session
	text     string
	scope    domain.Filter
	resp     *domain.TurnResponse
	headline string
}

func (t *turnState) say(text string, imageURLs ...string) {
	block := domain.DisplayBlock{Text: text}
	if len(imageURLs) > 0 {
		block.ImageURLs = imageURLs
	}
	t.resp.Blocks = append(t.resp.Blocks, block)
}

// announce adds a block that also summarizes the turn in session history.
func (t *turnState) announce(text string, imageURLs ...string) {
	t.headline = text
	t.say(text, imageURLs...)
}

func (uc *TurnUseCase) HandleTurn(ctx context.Context, req domain.TurnRequest) (*domain.TurnResponse, error) {
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "handle turn", fmt.Errorf("session_id is required"))
	}
	if _, ok := domain.ParseCommand(string(req.Command)); !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "handle turn", fmt.Errorf("unknown command %q", req.Command))
	}

	session, err := uc.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	text := strings.TrimSpace(req.Text)
	state := &turnState{
		session: session,
		text:    text,
		resp:    &domain.TurnResponse{SessionID: session.ID, Blocks: make([]domain.DisplayBlock, 0, 4)},
	}
	state.resp.Stats.SourceWebsite, state.scope = SourceScope(text)

	switch {
	case isImageURL(text):
		err = uc.handleURL(ctx, state)
	case len(req.Images) > 0:
		err = uc.handleUpload(ctx, state, req.Images[0])
	case req.Command != domain.CommandNone:
		err = uc.handleCommand(ctx, state, req.Command)
	case session.WaitingForURL:
		state.resp.Mode = domain.ModePrompt
		state.announce(urlRepeatPrompt)
	case text == "":
		return nil, domain.WrapError(domain.ErrInvalidInput, "handle turn", fmt.Errorf("text, command or image is required"))
	default:
		err = uc.handleText(ctx, state)
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	userMessage := text
	if userMessage == "" {
		userMessage = describeInput(req)
	}
	session.AppendHistory(
		domain.ConversationTurn{Role: domain.RoleUser, Content: userMessage},
		domain.ConversationTurn{Role: domain.RoleAssistant, Content: state.headline},
	)
	session.UpdatedAt = time.Now().UTC()
	if err := uc.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	uc.publishTranscript(ctx, state, userMessage)
	return state.resp, nil
}

func (uc *TurnUseCase) handleText(ctx context.Context, t *turnState) error {
	t.resp.Mode = domain.ModeText

	query := uc.rewrite(ctx, t)
	items, err := uc.retriever.Retrieve(ctx, query, uc.limits.TextTopK, t.scope)
	if err != nil {
		uc.searchFailed(t, "text retrieve", err)
		return nil
	}
	if len(items) == 0 {
		t.announce(fmt.Sprintf("No visualizations found for: %s", t.text))
		return nil
	}
	uc.renderResults(t, fmt.Sprintf("Top %d Results for: '%s'%s", len(items), t.text, scopeSuffix(t)), items)
	return nil
}

func (uc *TurnUseCase) handleURL(ctx context.Context, t *turnState) error {
	t.resp.Mode = domain.ModeImageURL
	t.session.WaitingForURL = false

	description, err := uc.describer.DescribeURL(ctx, t.text)
	if err != nil {
		t.resp.Stats.DescribeFailed = true
		slog.Warn("describe_failed", "mode", t.resp.Mode, "error", err)
		t.announce(urlDescribeFailed)
		return nil
	}
	t.say(fmt.Sprintf("**Image from URL successfully analyzed!**\n\n**Analysis:** %s", description), t.text)
	return uc.searchSimilar(ctx, t, description)
}

func (uc *TurnUseCase) handleUpload(ctx context.Context, t *turnState, image domain.ImageUpload) error {
	t.resp.Mode = domain.ModeImageUpload

	imageURL := uc.storeUpload(ctx, image)
	description, err := uc.describer.DescribeBytes(ctx, image.Data)
	if err != nil {
		t.resp.Stats.DescribeFailed = true
		slog.Warn("describe_failed", "mode", t.resp.Mode, "filename", image.Filename, "error", err)
		t.announce(uploadDescFailed)
		return nil
	}

	analysis := fmt.Sprintf("**Uploaded image successfully analyzed!**\n\n**Analysis:** %s", description)
	if imageURL != "" {
		t.say(analysis, imageURL)
	} else {
		t.say(analysis)
	}
	return uc.searchSimilar(ctx, t, description)
}

func (uc *TurnUseCase) storeUpload(ctx context.Context, image domain.ImageUpload) string {
	if uc.images == nil {
		return ""
	}
	key := uuid.NewString() + imageExtension(image.Filename)
	if err := uc.images.Save(ctx, key, bytes.NewReader(image.Data)); err != nil {
		slog.Warn("image_store_failed", "filename", image.Filename, "error", err)
		return ""
	}
	return uc.imageURLPrefix + key
}

func (uc *TurnUseCase) searchSimilar(ctx context.Context, t *turnState, description string) error {
	items, err := uc.retriever.Retrieve(ctx, description, uc.limits.ImageCandidates, t.scope)
	if err != nil {
		uc.searchFailed(t, "similar image retrieve", err)
		return nil
	}
	if len(items) == 0 {
		t.announce(noResultsMessage)
		return nil
	}

	reranked := uc.rerank(ctx, t, description, items)
	top := headItems(reranked.Items, uc.limits.DisplayTopK)
	uc.renderResults(t, fmt.Sprintf("Top %d Similar Visualizations Found", len(top)), top)
	return nil
}

func (uc *TurnUseCase) handleCommand(ctx context.Context, t *turnState, command domain.Command) error {
	switch command {
	case domain.CommandUploadImage:
		t.resp.Mode = domain.ModePrompt
		t.announce(uploadPrompt)
		return nil
	case domain.CommandAnalyzeURL:
		t.resp.Mode = domain.ModePrompt
		t.session.WaitingForURL = true
		t.announce(urlModePrompt)
		return nil
	}

	if t.text == "" {
		return domain.WrapError(domain.ErrInvalidInput, "handle command", fmt.Errorf("command %s requires text", command))
	}
	switch command {
	case domain.CommandDeconstructElements:
		return uc.handleTools(ctx, t)
	case domain.CommandHybridSearch:
		return uc.handleHybrid(ctx, t)
	case domain.CommandLongContextRetrieval:
		return uc.handleLongContext(ctx, t)
	default:
		return domain.WrapError(domain.ErrInvalidInput, "handle command", fmt.Errorf("unknown command %q", command))
	}
}

func (uc *TurnUseCase) handleTools(ctx context.Context, t *turnState) error {
	t.resp.Mode = domain.ModeTools

	detection := uc.detector.Detect(ctx, t.text)
	if detection.Err != nil {
		slog.Warn("tool_detection_degraded", "error", detection.Err)
	}
	for _, hit := range detection.Hits {
		t.resp.Stats.Facets = append(t.resp.Stats.Facets, hit.Facet)
	}
	if len(detection.Hits) > 0 {
		t.say(formatToolCalls(detection.Hits))
	} else {
		t.say("No tools were detected for this query.")
	}

	result := uc.executor.Execute(ctx, domain.SearchRequest{
		Hits:  detection.Hits,
		Query: t.text,
		Scope: t.scope,
	})
	t.resp.Stats.DroppedFilters = len(result.Plan.Dropped)
	if result.Err != nil {
		uc.searchFailed(t, "tool search", result.Err)
		return nil
	}
	if len(result.Items) == 0 {
		t.announce("No visualizations matched your query using the detected tools.")
		return nil
	}

	reranked := uc.rerank(ctx, t, t.text, result.Items)
	top := headItems(reranked.Items, uc.limits.DisplayTopK)
	title := fmt.Sprintf("Top %d Results (Tool-Based Search)", len(top))
	if reranked.Fallback {
		top = headItems(reranked.Items, uc.limits.ToolsFallbackTopK)
		title = fmt.Sprintf("Top %d Results (Fallback)", len(top))
	}
	uc.renderResults(t, title, top)
	return nil
}

func (uc *TurnUseCase) handleHybrid(ctx context.Context, t *turnState) error {
	t.resp.Mode = domain.ModeHybrid

	items, err := uc.retriever.HybridRetrieve(ctx, t.text, uc.limits.HybridCandidates, uc.limits.HybridAlpha, t.scope)
	if err != nil {
		uc.searchFailed(t, "hybrid retrieve", err)
		return nil
	}
	if len(items) == 0 {
		t.announce("No results found with hybrid search.")
		return nil
	}

	reranked := uc.rerank(ctx, t, t.text, items)
	top := headItems(reranked.Items, uc.limits.DisplayTopK)
	title := fmt.Sprintf("Top %d Hybrid Search Results (Reranked)", len(top))
	if reranked.Fallback {
		title = fmt.Sprintf("Top %d Hybrid Search Results", len(top))
	}
	uc.renderResults(t, title, top)
	return nil
}

func (uc *TurnUseCase) handleLongContext(ctx context.Context, t *turnState) error {
	t.resp.Mode = domain.ModeLongContext

	query := uc.rewrite(ctx, t)
	items, err := uc.retriever.Retrieve(ctx, query, uc.limits.LongContextCandidates, t.scope)
	if err != nil {
		uc.searchFailed(t, "long context retrieve", err)
		return nil
	}
	if len(items) == 0 {
		t.announce("No results found for extended context.")
		return nil
	}

	if len(items) > 1 {
		items = uc.rerank(ctx, t, t.text, items).Items
	}
	top := headItems(items, uc.limits.DisplayTopK)
	uc.renderResults(t, fmt.Sprintf("Top %d Long-Context Results (Reranked from %d)", len(top), uc.limits.LongContextCandidates), top)
	return nil
}

func (uc *TurnUseCase) rewrite(ctx context.Context, t *turnState) string {
	rewrite := uc.rewriter.Rewrite(ctx, t.text, t.session.History)
	t.resp.Stats.RewrittenQuery = rewrite.Query
	t.resp.Stats.RewriteFallback = rewrite.Err != nil
	t.session.LastRewritten = rewrite.Query
	t.say(fmt.Sprintf("**Rewritten Query:** %s", rewrite.Query))
	return rewrite.Query
}

func (uc *TurnUseCase) rerank(ctx context.Context, t *turnState, query string, items []domain.ResultItem) domain.RerankResult {
	result := uc.reranker.Rerank(ctx, query, items, uc.limits.RelevanceThreshold)
	if result.Fallback || result.Err != nil {
		t.resp.Stats.RerankFallback = true
	}
	return result
}

// searchFailed ends the turn with an explanatory block instead of an error.
func (uc *TurnUseCase) searchFailed(t *turnState, op string, err error) {
	t.resp.Stats.SearchFailed = true
	slog.Warn("search_failed", "op", op, "mode", t.resp.Mode, "error", err)
	t.announce(searchUnavailable)
}

func (uc *TurnUseCase) renderResults(t *turnState, title string, items []domain.ResultItem) {
	t.resp.Stats.ResultCount = len(items)
	if len(items) == 0 {
		t.announce(noResultsMessage)
		return
	}
	t.announce(fmt.Sprintf("**%s**", title))
	for _, item := range items {
		t.resp.Blocks = append(t.resp.Blocks, resultBlock(item))
	}
}

func (uc *TurnUseCase) publishTranscript(ctx context.Context, t *turnState, userMessage string) {
	if uc.transcripts == nil {
		return
	}

	texts := make([]string, 0, len(t.resp.Blocks))
	for _, block := range t.resp.Blocks {
		texts = append(texts, block.Text)
	}
	facets := make([]string, 0, len(t.resp.Stats.Facets))
	for _, facet := range t.resp.Stats.Facets {
		facets = append(facets, string(facet))
	}

	entry := domain.TranscriptEntry{
		ID:          uuid.NewString(),
		SessionID:   t.session.ID,
		ClientIP:    t.session.ClientIP,
		UserMessage: userMessage,
		AIResponse:  strings.Join(texts, "\n\n"),
		Metadata: map[string]any{
			"mode":            t.resp.Mode,
			"source_website":  t.resp.Stats.SourceWebsite,
			"rewritten_query": t.resp.Stats.RewrittenQuery,
			"facets":          facets,
			"result_count":    t.resp.Stats.ResultCount,
			"rerank_fallback": t.resp.Stats.RerankFallback,
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := uc.transcripts.PublishTranscript(ctx, entry); err != nil {
		slog.Warn("transcript_publish_failed", "session_id", t.session.ID, "error", err)
	}
}

// SourceScope recognizes a source website mentioned in the query and returns
// its name with the matching equality filter.
func SourceScope(query string) (string, domain.Filter) {
	lower := strings.ToLower(query)
	switch {
	case strings.Contains(lower, "flowingdata"), strings.Contains(lower, "flowing data"):
		return "flowingdata", domain.Eq(domain.PropSourceWebsite, "flowingdata")
	case strings.Contains(lower, "ggplot"):
		return "ggplot2", domain.Eq(domain.PropSourceWebsite, "ggplot2")
	case strings.Contains(lower, "datawrapper"), strings.Contains(lower, "data wrapper"):
		return "datawrapper", domain.Eq(domain.PropSourceWebsite, "datawrapper")
	default:
		return "", domain.Filter{}
	}
}

func scopeSuffix(t *turnState) string {
	if t.resp.Stats.SourceWebsite == "" {
		return ""
	}
	return fmt.Sprintf(" (filtered by %s)", t.resp.Stats.SourceWebsite)
}

func isImageURL(text string) bool {
	return strings.HasPrefix(text, "http://") || strings.HasPrefix(text, "https://")
}

func formatToolCalls(hits []domain.ToolHit) string {
	lines := make([]string, 0, len(hits)+1)
	lines = append(lines, "**Tools Called:**")
	for _, hit := range hits {
		lines = append(lines, fmt.Sprintf("- **Tool:** `%s%s` | **Arguments:** `query=%q field=%s field_type=%s`",
			domain.ToolPrefix, hit.Facet, hit.Query, hit.Facet, hit.Kind))
	}
	return strings.Join(lines, "\n")
}

func resultBlock(item domain.ResultItem) domain.DisplayBlock {
	description := item.ImageDescription()
	if description == "" {
		description = "No image description available."
	}
	imageURL := item.ImageURL()
	external := item.ExternalLink()
	postURL := item.PostURL()
	if external != "" {
		postURL = external
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Image Description:** %s\n\n", description)
	if imageURL != "" {
		fmt.Fprintf(&b, "[View Visualization](%s)\n", imageURL)
	}
	if postURL != "" {
		fmt.Fprintf(&b, "[View Original Post](%s)", postURL)
	}
	if external != "" {
		fmt.Fprintf(&b, "\n[External Link](%s)", external)
	}

	block := domain.DisplayBlock{Text: strings.TrimRight(b.String(), "\n")}
	if imageURL != "" {
		block.ImageURLs = []string{imageURL}
	}
	return block
}

func headItems(items []domain.ResultItem, n int) []domain.ResultItem {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}

func imageExtension(filename string) string {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp", ".tif", ".tiff":
		return ext
	default:
		return ""
	}
}

func describeInput(req domain.TurnRequest) string {
	switch {
	case len(req.Images) > 0:
		return fmt.Sprintf("[image upload: %s]", req.Images[0].Filename)
	case req.Command != domain.CommandNone:
		return fmt.Sprintf("[command: %s]", req.Command)
	default:
		return ""
	}
}
