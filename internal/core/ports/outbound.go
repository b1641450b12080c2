package ports

import (
	"context"
	"io"

	"github.com/kirillkom/dataviz-search/internal/core/domain"
)

// ChatCompleter issues one chat completion, optionally offering tools.
type ChatCompleter interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (domain.Completion, error)
}

// VisionCompleter describes an image given as a base64 data URI.
type VisionCompleter interface {
	DescribeImage(ctx context.Context, imageDataURI, prompt string) (string, error)
}

// VectorBackend runs near-text and hybrid queries over named sub-vectors.
type VectorBackend interface {
	NearText(ctx context.Context, q domain.NearTextQuery) ([]domain.ResultItem, error)
	Hybrid(ctx context.Context, q domain.HybridQuery) ([]domain.ResultItem, error)
}

// SchemaInspector lists the named vectors of the configured collection.
type SchemaInspector interface {
	NamedVectors(ctx context.Context) ([]string, error)
}

// SessionStore keeps per-conversation state. Get returns domain.ErrNotFound for unknown ids.
type SessionStore interface {
	Get(ctx context.Context, id string) (*domain.Session, error)
	Save(ctx context.Context, session *domain.Session) error
	Delete(ctx context.Context, id string) error
}

// TranscriptPublisher hands transcript entries to the persistence side.
type TranscriptPublisher interface {
	PublishTranscript(ctx context.Context, entry domain.TranscriptEntry) error
}

// TranscriptSubscriber delivers published transcript entries one at a time.
type TranscriptSubscriber interface {
	SubscribeTranscripts(ctx context.Context, handler func(context.Context, domain.TranscriptEntry) error) error
}

// TranscriptRepository persists the chat transcript log.
type TranscriptRepository interface {
	EnsureSession(ctx context.Context, sessionID, clientIP string) error
	AppendMessage(ctx context.Context, entry domain.TranscriptEntry) error
	ListMessages(ctx context.Context, sessionID string, limit int) ([]domain.TranscriptEntry, error)
}

// ImageStore keeps uploaded images so display blocks can reference them.
type ImageStore interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// ImageFetcher downloads image bytes from a URL.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ImageNormalizer converts arbitrary image bytes into RGB JPEG bytes.
type ImageNormalizer interface {
	NormalizeJPEG(data []byte) ([]byte, error)
}
