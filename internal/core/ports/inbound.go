package ports

import (
	"context"

	"github.com/kirillkom/dataviz-search/internal/core/domain"
)

// TurnHandler is the inbound contract for one chat turn.
type TurnHandler interface {
	HandleTurn(ctx context.Context, req domain.TurnRequest) (*domain.TurnResponse, error)
}

// SessionManager opens and closes chat sessions.
type SessionManager interface {
	StartSession(ctx context.Context, clientIP string) (*domain.Session, error)
	EndSession(ctx context.Context, sessionID string) error
}

// ImageDescriber turns visual input into a queryable description.
type ImageDescriber interface {
	DescribeBytes(ctx context.Context, data []byte) (string, error)
	DescribeURL(ctx context.Context, url string) (string, error)
}

// VisualizationSearcher runs a stateless search for agent-facing surfaces.
type VisualizationSearcher interface {
	Search(ctx context.Context, query string, mode string, topK int) ([]domain.ResultItem, error)
}

// TranscriptRecorder persists transcript entries on the worker side.
type TranscriptRecorder interface {
	Record(ctx context.Context, entry domain.TranscriptEntry) error
}
