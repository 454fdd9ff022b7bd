package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Compile-time check that PostgresStore implements QueueRepo.
var _ QueueRepo = (*PostgresStore)(nil)

func (s *PostgresStore) EnqueueOperation(op NewOperation) (int64, error) {
	if op.DedupKey != "" {
		var existingID int64
		err := s.db.QueryRow(
			`SELECT id FROM queued_operations WHERE status = 'pending' AND dedup_key = $1 ORDER BY id ASC LIMIT 1`,
			op.DedupKey,
		).Scan(&existingID)
		if err == nil {
			slog.Debug("PostgresStore.EnqueueOperation: dedup hit", "dedupKey", op.DedupKey, "existingID", existingID)
			return existingID, nil
		}
		if err != sql.ErrNoRows {
			return 0, fmt.Errorf("dedup check failed: %w", err)
		}
	}

	var id int64
	err := s.db.QueryRow(
		`INSERT INTO queued_operations (category, func_name, args, kwargs, created_at, dedup_key, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		op.Category, op.Name, op.ArgsJSON, op.KwargsJSON, op.CreatedAt.UTC(),
		nilIfEmpty(op.DedupKey), nilIfNilTime(op.ExpiresAt),
	).Scan(&id)
	if err != nil {
		if op.DedupKey != "" && strings.Contains(err.Error(), "duplicate key") {
			var existingID int64
			if serr := s.db.QueryRow(
				`SELECT id FROM queued_operations WHERE status = 'pending' AND dedup_key = $1 ORDER BY id ASC LIMIT 1`,
				op.DedupKey,
			).Scan(&existingID); serr == nil {
				return existingID, nil
			}
		}
		return 0, fmt.Errorf("enqueue operation failed: %w", err)
	}
	slog.Debug("PostgresStore.EnqueueOperation", "id", id, "category", op.Category, "name", op.Name)
	return id, nil
}

func (s *PostgresStore) GetOperation(id int64) (*Operation, error) {
	row := s.db.QueryRow(
		`SELECT `+operationColumns+` FROM queued_operations WHERE id = $1`, id,
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

func (s *PostgresStore) RecoverProcessing() (int, error) {
	result, err := s.db.Exec(`UPDATE queued_operations SET status = 'pending' WHERE status = 'processing'`)
	if err != nil {
		return 0, fmt.Errorf("recover processing failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info("PostgresStore.RecoverProcessing", "recovered", n)
	}
	return int(n), nil
}

func (s *PostgresStore) PurgeExpired(now time.Time) (int, error) {
	result, err := s.db.Exec(
		`DELETE FROM queued_operations WHERE status = 'pending' AND expires_at IS NOT NULL AND expires_at < $1`,
		now.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("purge expired failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info("PostgresStore.PurgeExpired", "purged", n)
	}
	return int(n), nil
}

func (s *PostgresStore) SelectDue(now time.Time, limit int) ([]Operation, error) {
	rows, err := s.db.Query(
		`SELECT `+operationColumns+` FROM queued_operations
		 WHERE status = 'pending' AND (next_attempt_at IS NULL OR next_attempt_at <= $1)
		 ORDER BY id ASC LIMIT $2`,
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

func (s *PostgresStore) MarkProcessing(id int64, now time.Time) (int, error) {
	var attempts int
	err := s.db.QueryRow(
		`UPDATE queued_operations
		 SET status = 'processing', attempts = attempts + 1,
		     first_processing_at = COALESCE(first_processing_at, $1)
		 WHERE id = $2 RETURNING attempts`,
		now.UTC(), id,
	).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("mark processing failed: %w", err)
	}
	return attempts, nil
}

func (s *PostgresStore) MarkDone(id int64, now time.Time) error {
	_, err := s.db.Exec(
		`UPDATE queued_operations
		 SET status = 'done', last_error = NULL, completed_at = $1, next_attempt_at = NULL
		 WHERE id = $2`,
		now.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark done failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) RescheduleFailed(id int64, errMsg string, nextAttemptAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE queued_operations SET status = 'pending', last_error = $1, next_attempt_at = $2 WHERE id = $3`,
		errMsg, nextAttemptAt.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("reschedule failed operation failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) PendingBreakdown(now time.Time) (PendingBreakdown, error) {
	rows, err := s.db.Query(`SELECT category, next_attempt_at FROM queued_operations WHERE status = 'pending'`)
	if err != nil {
		return PendingBreakdown{}, fmt.Errorf("pending breakdown query failed: %w", err)
	}
	defer rows.Close()
	return tallyPendingBreakdown(rows, now)
}

func (s *PostgresStore) CompletionStats() (map[Category]CategoryStats, error) {
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
