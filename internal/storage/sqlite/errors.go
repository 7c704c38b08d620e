package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/brmkit/brm/internal/storage"
)

// wrapDBError wraps a database error with operation context.
// It converts driver-level conditions to the storage package sentinels so
// callers can match with errors.Is without importing driver internals:
//
//	sql.ErrNoRows               -> storage.ErrNotFound
//	UNIQUE constraint on a name -> storage.ErrDuplicateName
//	other constraint failures   -> storage.ErrConstraintViolation
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	case isUniqueConstraintError(err):
		if strings.Contains(err.Error(), "RULE_NAME") {
			return fmt.Errorf("%s: %w", op, storage.ErrDuplicateName)
		}
		return fmt.Errorf("%s: %v: %w", op, err, storage.ErrConstraintViolation)
	case isConstraintError(err):
		return fmt.Errorf("%s: %v: %w", op, err, storage.ErrConstraintViolation)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isUniqueConstraintError checks if an error is a UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isConstraintError checks if an error is any SQLite constraint violation
// (CHECK, NOT NULL, FOREIGN KEY).
func isConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "constraint failed") ||
		strings.Contains(msg, "constraint violation")
}
