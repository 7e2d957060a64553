package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/lib/pq"
)

func newMockLedger(t *testing.T, timeout time.Duration) (*LedgerRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewLedgerRepository(NewPoolFromDB(db), timeout, nil), mock
}

const insertEventPattern = `INSERT INTO presence_events`

var testDay = database.NewDate(2024, time.March, 5)

func expectInsert(mock sqlmock.Sqlmock, status database.Status, source database.Source) *sqlmock.ExpectedExec {
	mock.ExpectBegin()
	return mock.ExpectExec(insertEventPattern).
		WithArgs(
			sqlmock.AnyArg(), // id
			int64(7),
			testDay.String(),
			string(status),
			string(source),
			sqlmock.AnyArg(), // marked_at
		)
}

func TestLedger_MarkPresent_Sqlmock(t *testing.T) {
	ledger, mock := newMockLedger(t, time.Second)

	expectInsert(mock, database.StatusPresent, database.SourceLiveMatch).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	created, err := ledger.MarkPresent(context.Background(), 7, testDay, time.Now())
	if err != nil {
		t.Fatalf("MarkPresent failed: %v", err)
	}
	if !created {
		t.Error("expected created=true for first event")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestLedger_MarkPresent_ExistingEvent(t *testing.T) {
	ledger, mock := newMockLedger(t, time.Second)

	// ON CONFLICT DO NOTHING affects zero rows.
	expectInsert(mock, database.StatusPresent, database.SourceLiveMatch).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	created, err := ledger.MarkPresent(context.Background(), 7, testDay, time.Now())
	if err != nil {
		t.Fatalf("MarkPresent failed: %v", err)
	}
	if created {
		t.Error("expected created=false when an event already exists")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestLedger_MarkAbsent_Sqlmock(t *testing.T) {
	ledger, mock := newMockLedger(t, time.Second)

	expectInsert(mock, database.StatusAbsent, database.SourceSweep).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	created, err := ledger.MarkAbsent(context.Background(), 7, testDay, time.Now())
	if err != nil {
		t.Fatalf("MarkAbsent failed: %v", err)
	}
	if !created {
		t.Error("expected created=true")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestLedger_RetriesSerializationFailure(t *testing.T) {
	ledger, mock := newMockLedger(t, time.Second)

	expectInsert(mock, database.StatusPresent, database.SourceLiveMatch).
		WillReturnError(&pq.Error{Code: pqSerializationFailure, Message: "could not serialize access"})
	mock.ExpectRollback()
	expectInsert(mock, database.StatusPresent, database.SourceLiveMatch).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	created, err := ledger.MarkPresent(context.Background(), 7, testDay, time.Now())
	if err != nil {
		t.Fatalf("MarkPresent should retry transparently, got: %v", err)
	}
	if !created {
		t.Error("expected created=true after retry")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestLedger_RetriesExhausted(t *testing.T) {
	ledger, mock := newMockLedger(t, time.Second)

	for range ledgerMaxAttempts {
		expectInsert(mock, database.StatusPresent, database.SourceLiveMatch).
			WillReturnError(&pq.Error{Code: pqSerializationFailure})
		mock.ExpectRollback()
	}

	_, err := ledger.MarkPresent(context.Background(), 7, testDay, time.Now())
	if !errors.Is(err, database.ErrWriteConflict) {
		t.Fatalf("expected ErrWriteConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestLedger_ConnectionFailureIsUnavailable(t *testing.T) {
	ledger, mock := newMockLedger(t, time.Second)

	mock.ExpectBegin().WillReturnError(&pq.Error{Code: "08006", Message: "connection failure"})

	_, err := ledger.MarkAbsent(context.Background(), 7, testDay, time.Now())
	if !errors.Is(err, database.ErrLedgerUnavailable) {
		t.Fatalf("expected ErrLedgerUnavailable, got %v", err)
	}
}

func TestLedger_TimeoutIsUnavailable(t *testing.T) {
	ledger, mock := newMockLedger(t, 20*time.Millisecond)

	expectInsert(mock, database.StatusPresent, database.SourceLiveMatch).
		WillDelayFor(time.Second).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	_, err := ledger.MarkPresent(context.Background(), 7, testDay, time.Now())
	if !errors.Is(err, database.ErrLedgerUnavailable) {
		t.Fatalf("expected ErrLedgerUnavailable, got %v", err)
	}
}

func TestLedger_EventsForDay_Sqlmock(t *testing.T) {
	ledger, mock := newMockLedger(t, time.Second)

	markedAt := time.Date(2024, time.March, 5, 3, 30, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "identity_id", "day", "status", "source", "marked_at"}).
		AddRow("4b8f0c1e-1111-4222-8333-944455556666", int64(1), time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC),
			"present", "live_match", markedAt).
		AddRow("4b8f0c1e-1111-4222-8333-944455556667", int64(2), time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC),
			"absent", "sweep", markedAt)
	mock.ExpectQuery(`SELECT .+ FROM presence_events WHERE day = \$1`).
		WithArgs(testDay.String()).
		WillReturnRows(rows)

	events, err := ledger.EventsForDay(context.Background(), testDay)
	if err != nil {
		t.Fatalf("EventsForDay failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Day != testDay {
		t.Errorf("day = %s, want %s", events[0].Day, testDay)
	}
	if events[0].Status != database.StatusPresent || events[1].Status != database.StatusAbsent {
		t.Errorf("unexpected statuses %s, %s", events[0].Status, events[1].Status)
	}
	if events[1].Source != database.SourceSweep {
		t.Errorf("source = %s, want sweep", events[1].Source)
	}
	if !events[0].Timestamp.Equal(markedAt) {
		t.Errorf("timestamp = %v, want %v", events[0].Timestamp, markedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestLedger_EventFor_None(t *testing.T) {
	ledger, mock := newMockLedger(t, time.Second)

	mock.ExpectQuery(`SELECT .+ FROM presence_events WHERE identity_id = \$1 AND day = \$2`).
		WithArgs(int64(9), testDay.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "identity_id", "day", "status", "source", "marked_at"}))

	event, err := ledger.EventFor(context.Background(), 9, testDay)
	if err != nil {
		t.Fatalf("EventFor failed: %v", err)
	}
	if event != nil {
		t.Errorf("expected nil event, got %+v", event)
	}
}

func TestClassifyError(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"serialization", &pq.Error{Code: "40001"}, database.ErrWriteConflict},
		{"deadlock", &pq.Error{Code: "40P01"}, database.ErrWriteConflict},
		{"unique", &pq.Error{Code: "23505"}, database.ErrWriteConflict},
		{"connection", &pq.Error{Code: "08001"}, database.ErrLedgerUnavailable},
		{"admin shutdown", &pq.Error{Code: "57P01"}, database.ErrLedgerUnavailable},
		{"deadline", context.DeadlineExceeded, database.ErrLedgerUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyError(ctx, tt.err); !errors.Is(got, tt.want) {
				t.Errorf("classifyError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}

	plain := errors.New("syntax error")
	if got := classifyError(ctx, plain); got != plain {
		t.Errorf("unclassified errors must pass through, got %v", got)
	}
}
