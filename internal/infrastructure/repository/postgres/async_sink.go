package postgres

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/dataviz-search/internal/core/domain"
	"github.com/kirillkom/dataviz-search/internal/core/ports"
)

var ErrSinkClosed = errors.New("transcript sink closed")

// AsyncSink queues transcript entries and writes them from a single goroutine.
// PublishTranscript never blocks the caller on the database; when the buffer is
// full it reports ErrTemporary.
type AsyncSink struct {
	recorder     ports.TranscriptRecorder
	entries      chan domain.TranscriptEntry
	writeTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewAsyncSink(recorder ports.TranscriptRecorder, buffer int, writeTimeout time.Duration) *AsyncSink {
	if buffer <= 0 {
		buffer = 256
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	s := &AsyncSink{
		recorder:     recorder,
		entries:      make(chan domain.TranscriptEntry, buffer),
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *AsyncSink) PublishTranscript(_ context.Context, entry domain.TranscriptEntry) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	select {
	case s.entries <- entry:
		return nil
	default:
		return domain.WrapError(domain.ErrTemporary, "queue transcript entry", errors.New("sink buffer full"))
	}
}

// Close stops accepting entries and waits until queued ones are written or ctx ends.
func (s *AsyncSink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.entries)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for entry := range s.entries {
		ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
		if err := s.recorder.Record(ctx, entry); err != nil {
			slog.Error("transcript_write_failed", "session_id", entry.SessionID, "entry_id", entry.ID, "error", err)
		}
		cancel()
	}
}
