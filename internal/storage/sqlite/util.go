package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// querier is the query surface shared by *sql.DB and *sql.Conn. Row helpers
// take it so the same SQL serves both plain calls and compound transactions.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// beginImmediateWithRetry starts an IMMEDIATE transaction on conn, retrying
// with exponential backoff when SQLite reports the database is busy.
//
// IMMEDIATE acquires a RESERVED lock up front, so concurrent writers
// serialize at BEGIN instead of deadlocking at COMMIT. busy_timeout covers
// waits inside statements but not BEGIN IMMEDIATE itself, hence the
// explicit retry loop.
func beginImmediateWithRetry(ctx context.Context, conn *sql.Conn, maxAttempts int, initialDelay time.Duration) error {
	delay := initialDelay
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		_, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE")
		if err == nil {
			return nil
		}
		lastErr = err
		if !isBusyError(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("database busy after %d attempts: %w", maxAttempts, lastErr)
}

// isBusyError checks if an error is SQLITE_BUSY or SQLITE_LOCKED.
func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}

// withImmediateTx runs fn inside a BEGIN IMMEDIATE transaction on a dedicated
// connection. Compound store operations (create rule + dependencies + audit)
// use it so their writes land atomically.
//
// Raw BEGIN/COMMIT is used instead of db.BeginTx because database/sql has no
// way to request IMMEDIATE mode, and the driver's BeginTx starts DEFERRED.
func (s *Store) withImmediateTx(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if err := beginImmediateWithRetry(ctx, conn, 5, 10*time.Millisecond); err != nil {
		return fmt.Errorf("failed to begin immediate transaction: %w", err)
	}

	// Use context.Background() for ROLLBACK so cleanup happens even if ctx
	// is already cancelled.
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if err := fn(conn); err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// boolToInt converts to the 0/1 representation stored in INTEGER columns.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullableTime converts an optional time to a driver value.
func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

// nullableInt64 converts an optional int64 to a driver value.
func nullableInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// nullableString converts "" to NULL so optional TEXT columns stay NULL.
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
