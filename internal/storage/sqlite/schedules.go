package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/brmkit/brm/internal/storage"
	"github.com/brmkit/brm/internal/types"
)

const scheduleColumns = `SCHEDULE_ID, RULE_ID, SCHEDULE_TIME, STATUS, RUN_DATA_VALIDATIONS, CREATED_TIMESTAMP`

func scanSchedule(row rowScanner) (*types.Schedule, error) {
	var sch types.Schedule
	var runValidations int
	if err := row.Scan(&sch.ID, &sch.RuleID, &sch.FireAt, &sch.Status, &runValidations, &sch.CreatedAt); err != nil {
		return nil, err
	}
	sch.RunDataValidations = runValidations != 0
	return &sch, nil
}

// CreateSchedule records a one-shot firing for a rule. The generated ID is
// written back into s.ID.
func (s *Store) CreateSchedule(ctx context.Context, sch *types.Schedule, actor types.Actor) error {
	if actor.IsZero() {
		return storage.ErrNoActor
	}
	if sch.Status == "" {
		sch.Status = types.ScheduleScheduled
	}
	if !sch.Status.IsValid() {
		return fmt.Errorf("invalid schedule status: %s", sch.Status)
	}
	if sch.FireAt.IsZero() {
		return fmt.Errorf("schedule time is required")
	}
	sch.CreatedAt = time.Now()

	return s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		if _, err := getRule(ctx, conn, sch.RuleID); err != nil {
			return err
		}
		res, err := conn.ExecContext(ctx, `
			INSERT INTO RULE_SCHEDULES (RULE_ID, SCHEDULE_TIME, STATUS, RUN_DATA_VALIDATIONS, CREATED_TIMESTAMP)
			VALUES (?, ?, ?, ?, ?)
		`, sch.RuleID, sch.FireAt, string(sch.Status), boolToInt(sch.RunDataValidations), sch.CreatedAt)
		if err != nil {
			return wrapDBError("insert schedule", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read generated schedule ID: %w", err)
		}
		sch.ID = id
		return appendAudit(ctx, conn, types.AuditInsert, types.TableSchedules, sch.ID, actor.UserID, "", snapshotJSON(sch))
	})
}

// ListSchedules returns schedules matching the filter, soonest first.
func (s *Store) ListSchedules(ctx context.Context, filter types.ScheduleFilter) ([]*types.Schedule, error) {
	var conds []string
	var args []interface{}

	if filter.RuleID != nil {
		conds = append(conds, "RULE_ID = ?")
		args = append(args, *filter.RuleID)
	}
	if filter.Status != nil {
		conds = append(conds, "STATUS = ?")
		args = append(args, string(*filter.Status))
	}

	query := `SELECT ` + scheduleColumns + ` FROM RULE_SCHEDULES`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY SCHEDULE_TIME, SCHEDULE_ID"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list schedules", err)
	}
	defer func() { _ = rows.Close() }()

	var schedules []*types.Schedule
	for rows.Next() {
		sch, err := scanSchedule(rows)
		if err != nil {
			return nil, wrapDBError("scan schedule", err)
		}
		schedules = append(schedules, sch)
	}
	return schedules, rows.Err()
}

// DueSchedules returns schedules still in Scheduled state whose fire time
// has passed.
func (s *Store) DueSchedules(ctx context.Context, now time.Time) ([]*types.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+scheduleColumns+` FROM RULE_SCHEDULES
		WHERE STATUS = ? AND SCHEDULE_TIME <= ?
		ORDER BY SCHEDULE_TIME, SCHEDULE_ID
	`, string(types.ScheduleScheduled), now)
	if err != nil {
		return nil, wrapDBError("query due schedules", err)
	}
	defer func() { _ = rows.Close() }()

	var schedules []*types.Schedule
	for rows.Next() {
		sch, err := scanSchedule(rows)
		if err != nil {
			return nil, wrapDBError("scan schedule", err)
		}
		schedules = append(schedules, sch)
	}
	return schedules, rows.Err()
}

// ClaimSchedule flips a Scheduled row to the given status with a
// compare-and-set. A false return means another worker got there first, so
// each schedule fires at most once even with several scheduler processes
// polling the same database.
func (s *Store) ClaimSchedule(ctx context.Context, scheduleID int64, status types.ScheduleStatus) (bool, error) {
	if !status.IsValid() || status == types.ScheduleScheduled {
		return false, fmt.Errorf("cannot claim schedule into status %q", status)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE RULE_SCHEDULES SET STATUS = ? WHERE SCHEDULE_ID = ? AND STATUS = ?
	`, string(status), scheduleID, string(types.ScheduleScheduled))
	if err != nil {
		return false, wrapDBError("claim schedule", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return n == 1, nil
}

// SetScheduleStatus overwrites a schedule's status unconditionally. The
// scheduler uses it to mark a claimed schedule Failed after the execution
// errored.
func (s *Store) SetScheduleStatus(ctx context.Context, scheduleID int64, status types.ScheduleStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid schedule status: %s", status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE RULE_SCHEDULES SET STATUS = ? WHERE SCHEDULE_ID = ?`, string(status), scheduleID)
	if err != nil {
		return wrapDBError("set schedule status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("schedule %d: %w", scheduleID, storage.ErrNotFound)
	}
	return nil
}

// CancelSchedule flips a pending schedule to Cancelled. Schedules that
// already fired (or were cancelled) cannot be cancelled again.
func (s *Store) CancelSchedule(ctx context.Context, scheduleID int64, actor types.Actor) error {
	if actor.IsZero() {
		return storage.ErrNoActor
	}
	return s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		row := conn.QueryRowContext(ctx,
			`SELECT `+scheduleColumns+` FROM RULE_SCHEDULES WHERE SCHEDULE_ID = ?`, scheduleID)
		sch, err := scanSchedule(row)
		if err != nil {
			return wrapDBError(fmt.Sprintf("get schedule %d", scheduleID), err)
		}
		if sch.Status != types.ScheduleScheduled {
			return fmt.Errorf("schedule %d is %s, only Scheduled schedules can be cancelled", scheduleID, sch.Status)
		}
		res, err := conn.ExecContext(ctx, `
			UPDATE RULE_SCHEDULES SET STATUS = ? WHERE SCHEDULE_ID = ? AND STATUS = ?
		`, string(types.ScheduleCancelled), scheduleID, string(types.ScheduleScheduled))
		if err != nil {
			return wrapDBError("cancel schedule", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("schedule %d was claimed concurrently", scheduleID)
		}
		after := *sch
		after.Status = types.ScheduleCancelled
		return appendAudit(ctx, conn, types.AuditUpdate, types.TableSchedules, scheduleID, actor.UserID, snapshotJSON(sch), snapshotJSON(&after))
	})
}

// AppendExecutionLog records one execution outcome. Execution history is
// append-only and survives rule deletion.
func (s *Store) AppendExecutionLog(ctx context.Context, entry *types.ExecutionLog) error {
	if entry.ExecutedAt.IsZero() {
		entry.ExecutedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO RULE_EXECUTION_LOGS (RULE_ID, EXECUTION_TIMESTAMP, PASS_FLAG, MESSAGE, RECORD_COUNT, EXECUTION_TIME_MS)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.RuleID, entry.ExecutedAt, boolToInt(entry.Passed), nullableString(entry.Message), entry.RecordCount, entry.ElapsedMS)
	if err != nil {
		return wrapDBError("append execution log", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read generated execution ID: %w", err)
	}
	entry.ID = id
	return nil
}

// ListExecutionLogs returns the most recent executions of a rule, newest
// first. ruleID 0 lists across all rules.
func (s *Store) ListExecutionLogs(ctx context.Context, ruleID int64, limit int) ([]*types.ExecutionLog, error) {
	query := `
		SELECT EXECUTION_ID, RULE_ID, EXECUTION_TIMESTAMP, PASS_FLAG, MESSAGE, RECORD_COUNT, EXECUTION_TIME_MS
		FROM RULE_EXECUTION_LOGS`
	var args []interface{}
	if ruleID != 0 {
		query += ` WHERE RULE_ID = ?`
		args = append(args, ruleID)
	}
	query += ` ORDER BY EXECUTION_ID DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list execution logs", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*types.ExecutionLog
	for rows.Next() {
		var e types.ExecutionLog
		var passed int
		var message sql.NullString
		if err := rows.Scan(&e.ID, &e.RuleID, &e.ExecutedAt, &passed, &message, &e.RecordCount, &e.ElapsedMS); err != nil {
			return nil, wrapDBError("scan execution log", err)
		}
		e.Passed = passed != 0
		e.Message = message.String
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
