package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/web/middleware"
)

const (
	upsertSessionSQL = `
		INSERT INTO admin_sessions (id, created_at, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at`
	selectLiveSessionSQL = `
		SELECT id, created_at, expires_at
		FROM admin_sessions
		WHERE id = $1 AND expires_at > NOW()`
	deleteSessionSQL        = `DELETE FROM admin_sessions WHERE id = $1`
	deleteExpiredSessionSQL = `DELETE FROM admin_sessions WHERE expires_at <= NOW()`
)

// SessionRepository persists admin PIN sessions so they survive restarts.
// It satisfies middleware.SessionRepository.
type SessionRepository struct {
	pool *Pool
}

var _ middleware.SessionRepository = (*SessionRepository)(nil)

func NewSessionRepository(pool *Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Save upserts a session; a re-login with the same id extends it.
func (r *SessionRepository) Save(ctx context.Context, id string, createdAt, expiresAt time.Time) error {
	if _, err := r.pool.Exec(ctx, upsertSessionSQL, id, createdAt.UTC(), expiresAt.UTC()); err != nil {
		return fmt.Errorf("save admin session: %w", err)
	}
	return nil
}

// Get returns the live session with id, or nil when it is unknown or expired.
func (r *SessionRepository) Get(ctx context.Context, id string) (*middleware.StoredSession, error) {
	var s middleware.StoredSession
	err := r.pool.QueryRow(ctx, selectLiveSessionSQL, id).Scan(&s.ID, &s.CreatedAt, &s.ExpiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("get admin session: %w", err)
	}
	return &s, nil
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, deleteSessionSQL, id); err != nil {
		return fmt.Errorf("delete admin session: %w", err)
	}
	return nil
}

// DeleteExpired purges expired sessions. serve calls it once at startup.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.pool.Exec(ctx, deleteExpiredSessionSQL)
	if err != nil {
		return 0, fmt.Errorf("purge admin sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge admin sessions: %w", err)
	}
	return n, nil
}
