package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/dataviz-search/internal/core/domain"
	"github.com/kirillkom/dataviz-search/internal/core/ports"
)

const rewriteMaxTokens = 150

const rewriteVocabulary = `**Plot Types:** Part-to-Whole, Diverging, Pictogram, Time Series, Slope, Circular, Strips, Trees, Tiles, 3D, Waffle, Bullet Chart, Histogram, Density Plot, Empirical CDF, t-SNE, Correlation, Scatter Plot, Violin Plot, Abstract, Experimental, Distribution, Clusters, Ranking, Outliers, Fractions, Size Comparison, Kinship, Log Scale, Inclusion, Uncertainty, Comparisons, Relationships

**Theme & Grid:**
- Background: light, dark
- Grid Orientation: horizontal, vertical, both, radial, none
- Grid Layout: single, grid, faceted, small multiples, stacked, side by side, circular, radial, overlay, irregular, matrix
- Grid Type: major, minor, implicit, subtle, reference lines, none
- Grid Style: solid, dashed, dotted, thin, light, subtle, faint, minimal, none

**Arrangement:** single, grid, facets, small multiples, stacked, side by side, overlay, hierarchical, grouped, clustered

**Coordinates:** cartesian, cartesian_3d, polar, circular, geographic_general, flow_network, schematic, linear, categorical, logarithmic, mixed, none

**Typography:** sans-serif, serif, slab serif, monospace, script, handwritten, blackletter

**Color Palettes:** sequential, diverging, qualitative, categorical, monochrome, grayscale, semantic, brand colors, highlight, accent, mixed palette

**Statistical Elements:** totals_sums, averages_means, percentages_rates, changes_growth, rankings_comparisons, distributions, trend_lines, correlation_patterns, confidence_bounds, outliers_extremes, aggregations, benchmarks_targets, anomalies, none`

const rewriteRules = `1. Context preservation: keep ALL original context terms (places, topics, sources) verbatim.
2. Identify keywords: match words in the current query against the controlled vocabularies. Only translate a term the user explicitly mentions or strongly implies.
3. Conceptual expansion (plot types only): a described function such as "show relationship" may become specific plot types such as Correlation, Scatter Plot.
4. Absolute prohibition: never add a keyword that is not mentioned or directly implied by the query and the conversation history.
5. Output format: return ONLY a comma-separated list of keywords.
6. No extra text: no explanations.
7. No duplicates: each keyword appears once.
8. Order: keep the order in which terms appear in the query where possible.
9. Omit ggplot2 and datawrapper from the output if mentioned.
10. Geographic specificity: a mentioned region (e.g. Europe, Asia) is emitted in lowercase together with geographic_general.
11. No negatives: never emit a term the user says they do NOT want.
12. No uncertainty: if intent is unclear, do not guess.`

const rewriteExamples = `History: User: "show me scatter plots with a dark background"
-> "Scatter Plot, dark background"

History: User: "faceted plot with regression line"
-> "faceted, trend_lines, Regression"

Input: "visualizations showing map of europe in datawrapper"
Output: "map, geographic_general, europe"`

// QueryRewriter normalizes free text into controlled-vocabulary keywords.
type QueryRewriter struct {
	llm ports.ChatCompleter
}

func NewQueryRewriter(llm ports.ChatCompleter) *QueryRewriter {
	return &QueryRewriter{llm: llm}
}

// Rewrite never fails: on any completion error or empty output the original
// query is returned unchanged.
func (uc *QueryRewriter) Rewrite(
	ctx context.Context,
	query string,
	history []domain.ConversationTurn,
) domain.RewriteResult {
	completion, err := uc.llm.Complete(ctx, domain.CompletionRequest{
		Messages: []domain.ChatMessage{
			{Role: domain.ChatRoleUser, Content: buildRewritePrompt(query, history)},
		},
		Temperature: 0,
		MaxTokens:   rewriteMaxTokens,
	})
	if err != nil {
		slog.Warn("rewrite_fallback", "reason", "completion_error", "error", err)
		return domain.RewriteResult{
			Query: query,
			Err:   domain.WrapError(domain.ErrUpstreamCall, "rewrite query", err),
		}
	}

	rewritten := strings.TrimSpace(completion.Text)
	rewritten = strings.Trim(rewritten, "\"")
	if rewritten == "" {
		slog.Warn("rewrite_fallback", "reason", "empty_completion")
		return domain.RewriteResult{
			Query: query,
			Err:   domain.WrapError(domain.ErrParse, "rewrite query", fmt.Errorf("empty completion")),
		}
	}
	return domain.RewriteResult{Query: rewritten, Rewritten: true}
}

func buildRewritePrompt(query string, history []domain.ConversationTurn) string {
	var b strings.Builder
	b.WriteString("[CONTEXT & ROLE]\n")
	b.WriteString("You are a strict keyword extractor. Analyze the CURRENT USER QUERY in the context of the CONVERSATION HISTORY and extract keywords that match a controlled vocabulary.\n\n")
	b.WriteString("[CONTROLLED VOCABULARIES]\n")
	b.WriteString(rewriteVocabulary)
	b.WriteString("\n\n[TRANSLATION RULES]\n")
	b.WriteString(rewriteRules)
	b.WriteString("\n\n[EXAMPLES WITH HISTORY]\n")
	b.WriteString(rewriteExamples)

	if lines := formatHistory(history); lines != "" {
		b.WriteString("\n\n[CONVERSATION HISTORY]\n")
		b.WriteString(lines)
	}

	b.WriteString("\n\n[TASK]\nApply the strict translation process to the query below and return a comma-separated list.\n\n")
	b.WriteString("[CURRENT USER QUERY]\n")
	b.WriteString(query)
	return b.String()
}

func formatHistory(history []domain.ConversationTurn) string {
	if len(history) == 0 {
		return ""
	}
	start := len(history) - domain.MaxHistoryTurns
	if start < 0 {
		start = 0
	}
	lines := make([]string, 0, len(history)-start)
	for _, turn := range history[start:] {
		role := "Assistant"
		if turn.Role == domain.RoleUser {
			role = "User"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", role, turn.Content))
	}
	return strings.Join(lines, "\n")
}
