package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"

	// DefaultLedgerTimeout bounds every ledger call.
	DefaultLedgerTimeout = 5 * time.Second

	ledgerMaxAttempts = 5
	ledgerBackoffBase = 10 * time.Millisecond
)

// LedgerRepository is the PostgreSQL attendance ledger. Writes rely on the
// unique (identity_id, day) key so the check and the insert are one statement.
type LedgerRepository struct {
	pool    *Pool
	timeout time.Duration
	logger  *zap.Logger
}

// NewLedgerRepository creates a ledger whose calls time out after timeout.
func NewLedgerRepository(pool *Pool, timeout time.Duration, logger *zap.Logger) *LedgerRepository {
	if timeout <= 0 {
		timeout = DefaultLedgerTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerRepository{pool: pool, timeout: timeout, logger: logger}
}

// classifyError maps driver errors onto the ledger sentinels.
func classifyError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == pqSerializationFailure, pqErr.Code == pqDeadlockDetected, pqErr.Code == pqUniqueViolation:
			return fmt.Errorf("%w: %s", database.ErrWriteConflict, pqErr.Message)
		case pqErr.Code.Class() == "08", pqErr.Code.Class() == "57":
			// connection exception, operator intervention (e.g. admin shutdown)
			return fmt.Errorf("%w: %s", database.ErrLedgerUnavailable, pqErr.Message)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return fmt.Errorf("%w: %w", database.ErrLedgerUnavailable, err)
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %w", database.ErrLedgerUnavailable, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", database.ErrLedgerUnavailable, err)
	}
	return err
}

// withTimeout runs fn under the ledger timeout and classifies its error.
func (r *LedgerRepository) withTimeout(ctx context.Context, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return classifyError(callCtx, fn(callCtx))
}

// withRetry retries write conflicts with linear backoff.
func (r *LedgerRepository) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= ledgerMaxAttempts; attempt++ {
		err = r.withTimeout(ctx, fn)
		if err == nil || !errors.Is(err, database.ErrWriteConflict) {
			return err
		}
		r.logger.Debug("ledger write conflict, retrying", zap.Int("attempt", attempt), zap.Error(err))

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", database.ErrLedgerUnavailable, ctx.Err())
		case <-time.After(time.Duration(attempt) * ledgerBackoffBase):
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", ledgerMaxAttempts, err)
}

// insertIfAbsent writes one event unless any event already exists for the key.
func (r *LedgerRepository) insertIfAbsent(
	ctx context.Context, identityID int64, day database.Date, at time.Time,
	status database.Status, source database.Source,
) (bool, error) {
	var created bool
	err := r.withRetry(ctx, func(ctx context.Context) error {
		tx, err := r.pool.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck // no-op after commit

		result, err := tx.ExecContext(ctx, `
			INSERT INTO presence_events (id, identity_id, day, status, source, marked_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (identity_id, day) DO NOTHING
		`, uuid.New().String(), identityID, day, string(status), string(source), at.UTC())
		if err != nil {
			return fmt.Errorf("insert presence event: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("getting rows affected: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit presence event: %w", err)
		}
		created = n == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// MarkPresent records a live match. Returns false when the identity already has an event that day.
func (r *LedgerRepository) MarkPresent(ctx context.Context, identityID int64, day database.Date, at time.Time) (bool, error) {
	return r.insertIfAbsent(ctx, identityID, day, at, database.StatusPresent, database.SourceLiveMatch)
}

// MarkAbsent records a sweep absence. Returns false when any event already exists,
// so a concurrent PRESENT write always wins.
func (r *LedgerRepository) MarkAbsent(ctx context.Context, identityID int64, day database.Date, at time.Time) (bool, error) {
	return r.insertIfAbsent(ctx, identityID, day, at, database.StatusAbsent, database.SourceSweep)
}

const eventColumns = `id, identity_id, day, status, source, marked_at`

func scanEvent(scanner interface{ Scan(...any) error }) (database.PresenceEvent, error) {
	var e database.PresenceEvent
	if err := scanner.Scan(&e.ID, &e.IdentityID, &e.Day, &e.Status, &e.Source, &e.Timestamp); err != nil {
		return e, fmt.Errorf("scan presence event: %w", err)
	}
	e.Timestamp = e.Timestamp.UTC()
	return e, nil
}

func (r *LedgerRepository) queryEvents(ctx context.Context, query string, args ...any) ([]database.PresenceEvent, error) {
	var events []database.PresenceEvent
	err := r.withTimeout(ctx, func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("query presence events: %w", err)
		}
		defer rows.Close()

		events = events[:0]
		for rows.Next() {
			e, err := scanEvent(rows)
			if err != nil {
				return err
			}
			events = append(events, e)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate presence events: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// EventFor returns the event for an identity on a day, or nil.
func (r *LedgerRepository) EventFor(ctx context.Context, identityID int64, day database.Date) (*database.PresenceEvent, error) {
	events, err := r.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM presence_events WHERE identity_id = $1 AND day = $2`,
		identityID, day)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

// EventsForDay returns all events for day ordered by identity.
func (r *LedgerRepository) EventsForDay(ctx context.Context, day database.Date) ([]database.PresenceEvent, error) {
	return r.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM presence_events WHERE day = $1 ORDER BY identity_id`,
		day)
}

// EventsForRange returns all events with from <= day <= to.
func (r *LedgerRepository) EventsForRange(ctx context.Context, from, to database.Date) ([]database.PresenceEvent, error) {
	return r.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM presence_events WHERE day BETWEEN $1 AND $2 ORDER BY day, identity_id`,
		from, to)
}
