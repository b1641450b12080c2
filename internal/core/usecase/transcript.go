package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/dataviz-search/internal/core/domain"
	"github.com/kirillkom/dataviz-search/internal/core/ports"
)

// TranscriptUseCase writes transcript entries to the chat log. Callers
// serialize writes.
type TranscriptUseCase struct {
	repo ports.TranscriptRepository
}

func NewTranscriptUseCase(repo ports.TranscriptRepository) *TranscriptUseCase {
	return &TranscriptUseCase{repo: repo}
}

func (uc *TranscriptUseCase) Record(ctx context.Context, entry domain.TranscriptEntry) error {
	entry.SessionID = strings.TrimSpace(entry.SessionID)
	if entry.SessionID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "record transcript", fmt.Errorf("session_id is required"))
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	if err := uc.repo.EnsureSession(ctx, entry.SessionID, entry.ClientIP); err != nil {
		return fmt.Errorf("ensure chat session: %w", err)
	}
	if err := uc.repo.AppendMessage(ctx, entry); err != nil {
		return fmt.Errorf("append chat message: %w", err)
	}
	return nil
}
