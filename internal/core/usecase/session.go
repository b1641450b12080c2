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

type SessionUseCase struct {
	sessions ports.SessionStore
}

func NewSessionUseCase(sessions ports.SessionStore) *SessionUseCase {
	return &SessionUseCase{sessions: sessions}
}

func (uc *SessionUseCase) StartSession(ctx context.Context, clientIP string) (*domain.Session, error) {
	now := time.Now().UTC()
	session := &domain.Session{
		ID:        uuid.NewString(),
		ClientIP:  strings.TrimSpace(clientIP),
		History:   []domain.ConversationTurn{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return session, nil
}

func (uc *SessionUseCase) EndSession(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "end session", fmt.Errorf("session_id is required"))
	}
	if err := uc.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
