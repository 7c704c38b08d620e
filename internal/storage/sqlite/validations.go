package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/brmkit/brm/internal/storage"
	"github.com/brmkit/brm/internal/types"
)

// CreateValidation records a column-level data check. The generated ID is
// written back into v.ID.
func (s *Store) CreateValidation(ctx context.Context, v *types.Validation, actor types.Actor) error {
	if actor.IsZero() {
		return storage.ErrNoActor
	}
	if v.Table == "" || v.Column == "" {
		return fmt.Errorf("validation table and column are required")
	}
	if !v.Type.IsValid() {
		return fmt.Errorf("invalid validation type: %s", v.Type)
	}
	v.CreatedBy = actor.UserID
	v.CreatedAt = time.Now()

	return s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, `
			INSERT INTO DATA_VALIDATIONS (TABLE_NAME, COLUMN_NAME, VALIDATION_TYPE, PARAMS, CREATED_BY, CREATED_TIMESTAMP)
			VALUES (?, ?, ?, ?, ?, ?)
		`, v.Table, v.Column, string(v.Type), nullableString(v.Params), v.CreatedBy, v.CreatedAt)
		if err != nil {
			return wrapDBError("insert validation", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read generated validation ID: %w", err)
		}
		v.ID = id
		return appendAudit(ctx, conn, types.AuditInsert, types.TableValidations, v.ID, actor.UserID, "", snapshotJSON(v))
	})
}

const validationColumns = `VALIDATION_ID, TABLE_NAME, COLUMN_NAME, VALIDATION_TYPE, PARAMS, CREATED_BY, CREATED_TIMESTAMP`

func scanValidation(row rowScanner) (*types.Validation, error) {
	var v types.Validation
	var params, createdBy sql.NullString
	if err := row.Scan(&v.ID, &v.Table, &v.Column, &v.Type, &params, &createdBy, &v.CreatedAt); err != nil {
		return nil, err
	}
	v.Params = params.String
	v.CreatedBy = createdBy.String
	return &v, nil
}

func (s *Store) queryValidations(ctx context.Context, query string, args ...interface{}) ([]*types.Validation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list validations", err)
	}
	defer func() { _ = rows.Close() }()

	var validations []*types.Validation
	for rows.Next() {
		v, err := scanValidation(rows)
		if err != nil {
			return nil, wrapDBError("scan validation", err)
		}
		validations = append(validations, v)
	}
	return validations, rows.Err()
}

// ListValidations returns every configured validation in creation order.
func (s *Store) ListValidations(ctx context.Context) ([]*types.Validation, error) {
	return s.queryValidations(ctx,
		`SELECT `+validationColumns+` FROM DATA_VALIDATIONS ORDER BY VALIDATION_ID`)
}

// ValidationsForTable returns the validations configured for one table.
func (s *Store) ValidationsForTable(ctx context.Context, table string) ([]*types.Validation, error) {
	return s.queryValidations(ctx,
		`SELECT `+validationColumns+` FROM DATA_VALIDATIONS WHERE TABLE_NAME = ? ORDER BY VALIDATION_ID`, table)
}

// DeleteValidation removes a configured check. Its log history is retained.
func (s *Store) DeleteValidation(ctx context.Context, id int64, actor types.Actor) error {
	if actor.IsZero() {
		return storage.ErrNoActor
	}
	return s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		row := conn.QueryRowContext(ctx,
			`SELECT `+validationColumns+` FROM DATA_VALIDATIONS WHERE VALIDATION_ID = ?`, id)
		old, err := scanValidation(row)
		if err != nil {
			return wrapDBError(fmt.Sprintf("get validation %d", id), err)
		}
		if _, err := conn.ExecContext(ctx, `DELETE FROM DATA_VALIDATIONS WHERE VALIDATION_ID = ?`, id); err != nil {
			return wrapDBError("delete validation", err)
		}
		return appendAudit(ctx, conn, types.AuditDelete, types.TableValidations, id, actor.UserID, snapshotJSON(old), "")
	})
}

// AppendValidationLog records one validation run outcome.
func (s *Store) AppendValidationLog(ctx context.Context, entry *types.ValidationLog) error {
	if entry.ValidatedAt.IsZero() {
		entry.ValidatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO DATA_VALIDATION_LOGS (VALIDATION_ID, TABLE_NAME, COLUMN_NAME, VALIDATION_TYPE, PARAMS, RESULT, MESSAGE, VALIDATED_TIMESTAMP)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ValidationID, entry.Table, entry.Column, string(entry.Type),
		nullableString(entry.Params), entry.Result, nullableString(entry.Message), entry.ValidatedAt)
	if err != nil {
		return wrapDBError("append validation log", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read generated log ID: %w", err)
	}
	entry.ID = id
	return nil
}

// ListValidationLogs returns the most recent validation runs, newest first.
func (s *Store) ListValidationLogs(ctx context.Context, limit int) ([]*types.ValidationLog, error) {
	query := `
		SELECT LOG_ID, VALIDATION_ID, TABLE_NAME, COLUMN_NAME, VALIDATION_TYPE, PARAMS, RESULT, MESSAGE, VALIDATED_TIMESTAMP
		FROM DATA_VALIDATION_LOGS ORDER BY LOG_ID DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, wrapDBError("list validation logs", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*types.ValidationLog
	for rows.Next() {
		var e types.ValidationLog
		var params, message sql.NullString
		if err := rows.Scan(&e.ID, &e.ValidationID, &e.Table, &e.Column, &e.Type, &params, &e.Result, &message, &e.ValidatedAt); err != nil {
			return nil, wrapDBError("scan validation log", err)
		}
		e.Params = params.String
		e.Message = message.String
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
