package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/dataviz-search/internal/core/domain"
	"github.com/kirillkom/dataviz-search/internal/core/ports"
)

const (
	serverName    = "dataviz-search"
	serverVersion = "1.0.0"
)

// Server exposes visualization search to MCP-capable agents.
type Server struct {
	searcher  ports.VisualizationSearcher
	describer ports.ImageDescriber
	mcp       *server.MCPServer
}

type searchHit struct {
	ID               string   `json:"id"`
	ImageURL         string   `json:"image_url,omitempty"`
	PostTitle        string   `json:"post_title,omitempty"`
	PostURL          string   `json:"post_url,omitempty"`
	ExternalLink     string   `json:"external_link,omitempty"`
	Description      string   `json:"description,omitempty"`
	ImageDescription string   `json:"image_description,omitempty"`
	Distance         *float64 `json:"distance,omitempty"`
	Score            *float64 `json:"score,omitempty"`
}

func New(searcher ports.VisualizationSearcher, describer ports.ImageDescriber) *Server {
	s := &Server{
		searcher:  searcher,
		describer: describer,
		mcp: server.NewMCPServer(
			serverName,
			serverVersion,
			server.WithToolCapabilities(false),
			server.WithInstructions("Search a catalog of data visualizations by description, facet, or example image."),
		),
	}

	s.mcp.AddTool(
		mcp.NewTool("search_visualizations",
			mcp.WithDescription("Find data visualizations matching a natural-language description. Mention flowingdata, ggplot2 or datawrapper to restrict the source."),
			mcp.WithString("query", mcp.Required(), mcp.Description("What the chart should look like or show")),
			mcp.WithString("mode", mcp.Description("text (default), hybrid, or tools"), mcp.Enum(domain.ModeText, domain.ModeHybrid, domain.ModeTools)),
			mcp.WithNumber("top_k", mcp.Description("Maximum number of results, 1-50")),
		),
		s.handleSearch,
	)
	s.mcp.AddTool(
		mcp.NewTool("describe_visualization",
			mcp.WithDescription("Describe a chart image from a public URL in search-ready terms."),
			mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL of the image")),
		),
		s.handleDescribe,
	)
	return s
}

// Handler serves the streamable HTTP transport at /mcp.
func (s *Server) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp, server.WithEndpointPath("/mcp"), server.WithStateLess(true))
}

func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	mode := request.GetString("mode", domain.ModeText)
	topK := request.GetInt("top_k", 0)

	items, err := s.searcher.Search(ctx, query, mode, topK)
	if err != nil {
		slog.Warn("mcp_search_failed", "mode", mode, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	hits := make([]searchHit, 0, len(items))
	for _, item := range items {
		hits = append(hits, searchHit{
			ID:               item.ID,
			ImageURL:         item.ImageURL(),
			PostTitle:        item.PostTitle(),
			PostURL:          item.PostURL(),
			ExternalLink:     item.ExternalLink(),
			Description:      item.Description(),
			ImageDescription: item.ImageDescription(),
			Distance:         item.Distance,
			Score:            item.Score,
		})
	}
	payload, err := json.Marshal(map[string]any{"results": hits})
	if err != nil {
		return nil, fmt.Errorf("encode search results: %w", err)
	}
	return mcp.NewToolResultText(string(payload)), nil
}

func (s *Server) handleDescribe(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url, err := request.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	description, err := s.describer.DescribeURL(ctx, url)
	if err != nil {
		slog.Warn("mcp_describe_failed", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("could not analyze image: %v", err)), nil
	}
	return mcp.NewToolResultText(description), nil
}
