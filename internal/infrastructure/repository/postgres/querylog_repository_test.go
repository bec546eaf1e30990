package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/mkorchagin/docqa/internal/core/domain"
)

func newQueryLogRepoWithMock(t *testing.T) (*QueryLogRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &QueryLogRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestInsertQueryEventWritesAllFields(t *testing.T) {
	repo, mock, done := newQueryLogRepoWithMock(t)
	defer done()

	created := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO query_log").
		WithArgs("evt-1", "chat", "what is the vendor policy", "sess-1", 4, int64(812), true, created).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.InsertQueryEvent(context.Background(), domain.QueryEvent{
		ID:          "evt-1",
		Kind:        domain.QueryKindChat,
		Query:       "what is the vendor policy",
		SessionID:   "sess-1",
		ResultCount: 4,
		LatencyMS:   812,
		Degraded:    true,
		CreatedAt:   created,
	})
	if err != nil {
		t.Fatalf("InsertQueryEvent() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInsertQueryEventFillsMissingIDAndTime(t *testing.T) {
	repo, mock, done := newQueryLogRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO query_log").
		WithArgs(sqlmock.AnyArg(), "search", "query", nil, 0, int64(0), false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.InsertQueryEvent(context.Background(), domain.QueryEvent{
		Kind:  domain.QueryKindSearch,
		Query: "query",
	})
	if err != nil {
		t.Fatalf("InsertQueryEvent() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCountEventsSinceGroupsByKind(t *testing.T) {
	repo, mock, done := newQueryLogRepoWithMock(t)
	defer done()

	cutoff := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"kind", "count"}).
		AddRow("search", int64(12)).
		AddRow("chat", int64(30))
	mock.ExpectQuery("SELECT kind, COUNT").
		WithArgs(cutoff).
		WillReturnRows(rows)

	counts, err := repo.CountEventsSince(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("CountEventsSince() error = %v", err)
	}
	if counts["search"] != 12 || counts["chat"] != 30 {
		t.Fatalf("unexpected counts: %v", counts)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
