package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestSessionRepository_SaveAndGet(t *testing.T) {
	pool, mock := newMockPool(t)
	repo := NewSessionRepository(pool)
	ctx := context.Background()
	created := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	expires := created.Add(24 * time.Hour)

	mock.ExpectExec("INSERT INTO admin_sessions").
		WithArgs("sess-1", created, expires).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := repo.Save(ctx, "sess-1", created, expires); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	mock.ExpectQuery("SELECT id, created_at, expires_at").
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "expires_at"}).
			AddRow("sess-1", created, expires))
	got, err := repo.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got == nil || got.ID != "sess-1" || !got.ExpiresAt.Equal(expires) {
		t.Errorf("Get() = %+v", got)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSessionRepository_GetMissing(t *testing.T) {
	pool, mock := newMockPool(t)
	repo := NewSessionRepository(pool)

	mock.ExpectQuery("SELECT id, created_at, expires_at").
		WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "expires_at"}))
	got, err := repo.Get(context.Background(), "gone")
	if err != nil || got != nil {
		t.Errorf("Get() = %+v, %v; want nil, nil", got, err)
	}
}

func TestSessionRepository_DeleteExpired(t *testing.T) {
	pool, mock := newMockPool(t)
	repo := NewSessionRepository(pool)

	mock.ExpectExec(regexp.QuoteMeta(deleteExpiredSessionSQL)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	n, err := repo.DeleteExpired(context.Background())
	if err != nil || n != 3 {
		t.Errorf("DeleteExpired() = %d, %v; want 3", n, err)
	}

	mock.ExpectExec(regexp.QuoteMeta(deleteExpiredSessionSQL)).
		WillReturnError(errors.New("connection reset"))
	if _, err := repo.DeleteExpired(context.Background()); err == nil {
		t.Error("expected error from failed purge")
	}
}
