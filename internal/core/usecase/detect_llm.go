package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/dataviz-search/internal/core/domain"
	"github.com/kirillkom/dataviz-search/internal/core/ports"
)

const toolKeywordHints = 5

const toolDetectionSystemPrompt = `You are a data visualization search assistant. Analyze the user query and call the MOST RELEVANT search function.

IMPORTANT RULES:
1. Call ONLY ONE function unless the user explicitly mentions MULTIPLE DISTINCT aspects.
2. For general queries about chart purposes or goals, use search_plot_goal.
3. For specific chart type requests, use search_plot_type or search_primary_category.
4. Only call multiple functions when the user mentions BOTH a chart type AND visual attributes (e.g. "bar chart with dark background").
5. Do not generate multiple similar chart types; semantic search handles variations.

EXAMPLES:
- "a plot that shows proportion" -> ONLY search_primary_category("Part-to-Whole")
- "vertical bar plot with dark background" -> search_plot_type("vertical bar plot") AND search_background_type("dark background")
- "scatter plot" -> ONLY search_plot_type("scatter plot")
- "chart with trend lines" -> ONLY search_statistical_methods("trend lines")
- "faceted visualization" -> ONLY search_layout("faceted visualization")

For broad conceptual queries, use the single most appropriate search function.`

// LLMToolDetector lets the model pick facets through function calling. It never
// runs retrieval itself.
type LLMToolDetector struct {
	llm      ports.ChatCompleter
	registry ports.FieldRegistry
	tools    []domain.ToolSpec
}

func NewLLMToolDetector(llm ports.ChatCompleter, registry ports.FieldRegistry) *LLMToolDetector {
	return &LLMToolDetector{
		llm:      llm,
		registry: registry,
		tools:    BuildToolSpecs(registry.All()),
	}
}

// BuildToolSpecs exposes one search_<facet> function per descriptor, in registry order.
func BuildToolSpecs(fields []domain.FieldDescriptor) []domain.ToolSpec {
	tools := make([]domain.ToolSpec, 0, len(fields))
	for _, desc := range fields {
		hints := desc.Keywords
		if len(hints) > toolKeywordHints {
			hints = hints[:toolKeywordHints]
		}
		tools = append(tools, domain.ToolSpec{
			Name:        desc.ToolName(),
			Description: fmt.Sprintf("%s. Use when user mentions: %s...", desc.Description, strings.Join(hints, ", ")),
			Parameters: map[string]any{
				"type":     "object",
				"required": []string{"query"},
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": fmt.Sprintf("Search query related to %s", desc.Facet),
					},
				},
			},
		})
	}
	return tools
}

func (d *LLMToolDetector) Detect(ctx context.Context, query string) domain.DetectionResult {
	if strings.TrimSpace(query) == "" {
		return domain.DetectionResult{}
	}

	completion, err := d.llm.Complete(ctx, domain.CompletionRequest{
		Messages: []domain.ChatMessage{
			{Role: domain.ChatRoleSystem, Content: toolDetectionSystemPrompt},
			{Role: domain.ChatRoleUser, Content: query},
		},
		Tools:       d.tools,
		ToolChoice:  "auto",
		Temperature: 0,
	})
	if err != nil {
		slog.Warn("tool_detection_failed", "error", err)
		return domain.DetectionResult{Err: domain.WrapError(domain.ErrUpstreamCall, "detect tools", err)}
	}

	hits := make([]domain.ToolHit, 0, len(completion.ToolCalls))
	seen := make(map[string]struct{}, len(completion.ToolCalls))
	for _, call := range completion.ToolCalls {
		hit, err := d.decodeToolCall(call)
		if err != nil {
			slog.Warn("tool_call_discarded", "tool", call.Name, "error", err)
			continue
		}
		key := string(hit.Facet) + "\x00" + strings.ToLower(strings.TrimSpace(hit.Query))
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		hits = append(hits, hit)
	}
	return domain.DetectionResult{Hits: hits}
}

type toolArguments struct {
	Query *string `json:"query"`
}

func (d *LLMToolDetector) decodeToolCall(call domain.ToolCall) (domain.ToolHit, error) {
	name := strings.TrimSpace(call.Name)
	if !strings.HasPrefix(name, domain.ToolPrefix) {
		return domain.ToolHit{}, domain.WrapError(domain.ErrParse, "decode tool call", fmt.Errorf("unexpected tool %q", name))
	}
	desc, ok := d.registry.LookupName(strings.TrimPrefix(name, domain.ToolPrefix))
	if !ok {
		return domain.ToolHit{}, domain.WrapError(domain.ErrParse, "decode tool call", fmt.Errorf("unknown facet in tool %q", name))
	}

	var args toolArguments
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return domain.ToolHit{}, domain.WrapError(domain.ErrParse, "decode tool arguments", err)
	}
	if args.Query == nil || strings.TrimSpace(*args.Query) == "" {
		return domain.ToolHit{}, domain.WrapError(domain.ErrParse, "decode tool arguments", fmt.Errorf("missing query"))
	}
	return domain.NewToolHit(desc, strings.TrimSpace(*args.Query)), nil
}
