package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kirillkom/dataviz-search/internal/core/domain"
)

type TranscriptRepository struct {
	db *sql.DB
}

func NewTranscriptRepository(db *sql.DB) *TranscriptRepository {
	return &TranscriptRepository{db: db}
}

func (r *TranscriptRepository) EnsureSession(ctx context.Context, sessionID, clientIP string) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO chat_sessions (id, created_at, updated_at, user_ip)
VALUES ($1, $2, $2, $3)
ON CONFLICT (id) DO UPDATE SET updated_at = EXCLUDED.updated_at
`, sessionID, now, nullableString(clientIP))
	if err != nil {
		return fmt.Errorf("ensure chat session: %w", err)
	}
	return nil
}

func (r *TranscriptRepository) AppendMessage(ctx context.Context, entry domain.TranscriptEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal message metadata: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO chat_messages (id, session_id, user_message, ai_response, created_at, metadata)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO NOTHING
`, entry.ID, entry.SessionID, entry.UserMessage, entry.AIResponse, entry.CreatedAt, metadataJSON)
	if err != nil {
		return fmt.Errorf("append chat message: %w", err)
	}
	return nil
}

// ListMessages returns the most recent messages of a session in chronological order.
func (r *TranscriptRepository) ListMessages(ctx context.Context, sessionID string, limit int) ([]domain.TranscriptEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT m.id, m.session_id, COALESCE(s.user_ip, ''), m.user_message, m.ai_response, m.metadata, m.created_at
FROM chat_messages m
JOIN chat_sessions s ON s.id = m.session_id
WHERE m.session_id = $1
ORDER BY m.created_at DESC
LIMIT $2
`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	out := make([]domain.TranscriptEntry, 0, limit)
	for rows.Next() {
		var entry domain.TranscriptEntry
		var metadataRaw []byte
		if err := rows.Scan(
			&entry.ID,
			&entry.SessionID,
			&entry.ClientIP,
			&entry.UserMessage,
			&entry.AIResponse,
			&metadataRaw,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		if len(metadataRaw) > 0 {
			if err := json.Unmarshal(metadataRaw, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal message metadata: %w", err)
			}
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat messages: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func nullableString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
