package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/dataviz-search/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*TranscriptRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return NewTranscriptRepository(db), mock, func() { _ = db.Close() }
}

func TestEnsureSessionUpserts(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO chat_sessions").
		WithArgs("s1", sqlmock.AnyArg(), "10.0.0.1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.EnsureSession(context.Background(), "s1", "10.0.0.1"); err != nil {
		t.Fatalf("EnsureSession() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEnsureSessionStoresNullIPWhenUnknown(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO chat_sessions").
		WithArgs("s1", sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.EnsureSession(context.Background(), "s1", ""); err != nil {
		t.Fatalf("EnsureSession() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAppendMessageEncodesMetadata(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	created := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO chat_messages").
		WithArgs("m1", "s1", "bar charts", "Top 10 Results", created, []byte(`{"mode":"text"}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.AppendMessage(context.Background(), domain.TranscriptEntry{
		ID:          "m1",
		SessionID:   "s1",
		UserMessage: "bar charts",
		AIResponse:  "Top 10 Results",
		Metadata:    map[string]any{"mode": "text"},
		CreatedAt:   created,
	})
	if err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAppendMessageWrapsDriverError(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO chat_messages").WillReturnError(errors.New("violates foreign key"))

	err := repo.AppendMessage(context.Background(), domain.TranscriptEntry{ID: "m1", SessionID: "s1"})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestListMessagesReturnsChronologicalOrder(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	newer := time.Date(2026, 5, 1, 9, 5, 0, 0, time.UTC)
	older := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "session_id", "user_ip", "user_message", "ai_response", "metadata", "created_at"}).
		AddRow("m2", "s1", "", "second", "b", []byte(`{"mode":"hybrid"}`), newer).
		AddRow("m1", "s1", "", "first", "a", []byte(`{}`), older)
	mock.ExpectQuery("SELECT m.id, m.session_id").WithArgs("s1", 2).WillReturnRows(rows)

	out, err := repo.ListMessages(context.Background(), "s1", 2)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(out) != 2 || out[0].ID != "m1" || out[1].ID != "m2" {
		t.Fatalf("unexpected order %+v", out)
	}
	if out[1].Metadata["mode"] != "hybrid" {
		t.Fatalf("metadata not decoded: %+v", out[1].Metadata)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs(schemaLockKey).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS chat_sessions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
