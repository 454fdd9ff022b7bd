package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Compile-time check that SQLiteStore implements QueueRepo.
var _ QueueRepo = (*SQLiteStore)(nil)

const operationColumns = `id, category, func_name, args, kwargs, created_at, status, attempts,
	last_error, expires_at, dedup_key, first_processing_at, completed_at, next_attempt_at`

func (s *SQLiteStore) EnqueueOperation(op NewOperation) (int64, error) {
	if op.DedupKey != "" {
		var existingID int64
		err := s.db.QueryRow(
			`SELECT id FROM queued_operations WHERE status = 'pending' AND dedup_key = ? ORDER BY id ASC LIMIT 1`,
			op.DedupKey,
		).Scan(&existingID)
		if err == nil {
			slog.Debug("SQLiteStore.EnqueueOperation: dedup hit", "dedupKey", op.DedupKey, "existingID", existingID)
			return existingID, nil
		}
		if err != sql.ErrNoRows {
			return 0, fmt.Errorf("dedup check failed: %w", err)
		}
	}

	result, err := s.db.Exec(
		`INSERT INTO queued_operations (category, func_name, args, kwargs, created_at, dedup_key, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		op.Category, op.Name, op.ArgsJSON, op.KwargsJSON, op.CreatedAt.UTC(),
		nilIfEmpty(op.DedupKey), nilIfNilTime(op.ExpiresAt),
	)
	if err != nil {
		// The partial unique index closes the race between the check above and
		// this insert; fold into the surviving pending row.
		if op.DedupKey != "" && strings.Contains(err.Error(), "UNIQUE") {
			var existingID int64
			if serr := s.db.QueryRow(
				`SELECT id FROM queued_operations WHERE status = 'pending' AND dedup_key = ? ORDER BY id ASC LIMIT 1`,
				op.DedupKey,
			).Scan(&existingID); serr == nil {
				return existingID, nil
			}
		}
		return 0, fmt.Errorf("enqueue operation failed: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("enqueue operation id lookup failed: %w", err)
	}
	slog.Debug("SQLiteStore.EnqueueOperation", "id", id, "category", op.Category, "name", op.Name)
	return id, nil
}

func (s *SQLiteStore) GetOperation(id int64) (*Operation, error) {
	row := s.db.QueryRow(
		`SELECT `+operationColumns+` FROM queued_operations WHERE id = ?`, id,
	)
	op, err := scanOperationRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get operation failed: %w", err)
	}
	return &op, nil
}

func (s *SQLiteStore) RecoverProcessing() (int, error) {
	result, err := s.db.Exec(`UPDATE queued_operations SET status = 'pending' WHERE status = 'processing'`)
	if err != nil {
		return 0, fmt.Errorf("recover processing failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info("SQLiteStore.RecoverProcessing", "recovered", n)
	}
	return int(n), nil
}

func (s *SQLiteStore) PurgeExpired(now time.Time) (int, error) {
	result, err := s.db.Exec(
		`DELETE FROM queued_operations WHERE status = 'pending' AND expires_at IS NOT NULL AND expires_at < ?`,
		now.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("purge expired failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info("SQLiteStore.PurgeExpired", "purged", n)
	}
	return int(n), nil
}

func (s *SQLiteStore) SelectDue(now time.Time, limit int) ([]Operation, error) {
	rows, err := s.db.Query(
		`SELECT `+operationColumns+` FROM queued_operations
		 WHERE status = 'pending' AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
		 ORDER BY id ASC LIMIT ?`,
		now.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select due operations failed: %w", err)
	}
	defer rows.Close()

	var ops []Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select due iteration failed: %w", err)
	}
	return ops, nil
}

func (s *SQLiteStore) MarkProcessing(id int64, now time.Time) (int, error) {
	_, err := s.db.Exec(
		`UPDATE queued_operations
		 SET status = 'processing', attempts = attempts + 1,
		     first_processing_at = COALESCE(first_processing_at, ?)
		 WHERE id = ?`,
		now.UTC(), id,
	)
	if err != nil {
		return 0, fmt.Errorf("mark processing failed: %w", err)
	}
	var attempts int
	if err := s.db.QueryRow(`SELECT attempts FROM queued_operations WHERE id = ?`, id).Scan(&attempts); err != nil {
		return 0, fmt.Errorf("mark processing attempts lookup failed: %w", err)
	}
	return attempts, nil
}

func (s *SQLiteStore) MarkDone(id int64, now time.Time) error {
	_, err := s.db.Exec(
		`UPDATE queued_operations
		 SET status = 'done', last_error = NULL, completed_at = ?, next_attempt_at = NULL
		 WHERE id = ?`,
		now.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark done failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RescheduleFailed(id int64, errMsg string, nextAttemptAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE queued_operations SET status = 'pending', last_error = ?, next_attempt_at = ? WHERE id = ?`,
		errMsg, nextAttemptAt.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("reschedule failed operation failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PendingBreakdown(now time.Time) (PendingBreakdown, error) {
	rows, err := s.db.Query(`SELECT category, next_attempt_at FROM queued_operations WHERE status = 'pending'`)
	if err != nil {
		return PendingBreakdown{}, fmt.Errorf("pending breakdown query failed: %w", err)
	}
	defer rows.Close()
	return tallyPendingBreakdown(rows, now)
}

func (s *SQLiteStore) CompletionStats() (map[Category]CategoryStats, error) {
	rows, err := s.db.Query(
		`SELECT category, attempts, created_at, completed_at
		 FROM queued_operations WHERE status = 'done' AND completed_at IS NOT NULL`,
	)
	if err != nil {
		return nil, fmt.Errorf("completion stats query failed: %w", err)
	}
	defer rows.Close()
	return tallyCompletionStats(rows)
}
