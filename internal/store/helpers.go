package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nilIfNilTime unwraps an optional timestamp for a nullable column,
// normalizing to UTC.
func nilIfNilTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// DetectDSNType reports "postgres" for PostgreSQL connection strings and
// "sqlite" otherwise (file paths).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// scanOperation scans an Operation from sql.Rows.
func scanOperation(rows *sql.Rows) (Operation, error) {
	var op Operation
	var argsJSON, kwargsJSON, lastError, dedupKey sql.NullString
	var expiresAt, firstProcessingAt, completedAt, nextAttemptAt sql.NullTime
	err := rows.Scan(
		&op.ID, &op.Category, &op.Name, &argsJSON, &kwargsJSON, &op.CreatedAt, &op.Status, &op.Attempts,
		&lastError, &expiresAt, &dedupKey, &firstProcessingAt, &completedAt, &nextAttemptAt,
	)
	if err != nil {
		return op, fmt.Errorf("scan operation failed: %w", err)
	}
	applyNullable(&op, argsJSON, kwargsJSON, lastError, dedupKey, expiresAt, firstProcessingAt, completedAt, nextAttemptAt)
	return op, nil
}

// scanOperationRow scans an Operation from a single sql.Row.
func scanOperationRow(row *sql.Row) (Operation, error) {
	var op Operation
	var argsJSON, kwargsJSON, lastError, dedupKey sql.NullString
	var expiresAt, firstProcessingAt, completedAt, nextAttemptAt sql.NullTime
	err := row.Scan(
		&op.ID, &op.Category, &op.Name, &argsJSON, &kwargsJSON, &op.CreatedAt, &op.Status, &op.Attempts,
		&lastError, &expiresAt, &dedupKey, &firstProcessingAt, &completedAt, &nextAttemptAt,
	)
	if err != nil {
		return op, err
	}
	applyNullable(&op, argsJSON, kwargsJSON, lastError, dedupKey, expiresAt, firstProcessingAt, completedAt, nextAttemptAt)
	return op, nil
}

func applyNullable(op *Operation, argsJSON, kwargsJSON, lastError, dedupKey sql.NullString,
	expiresAt, firstProcessingAt, completedAt, nextAttemptAt sql.NullTime) {
	op.ArgsJSON = argsJSON.String
	op.KwargsJSON = kwargsJSON.String
	op.LastError = lastError.String
	op.DedupKey = dedupKey.String
	if expiresAt.Valid {
		op.ExpiresAt = &expiresAt.Time
	}
	if firstProcessingAt.Valid {
		op.FirstProcessingAt = &firstProcessingAt.Time
	}
	if completedAt.Valid {
		op.CompletedAt = &completedAt.Time
	}
	if nextAttemptAt.Valid {
		op.NextAttemptAt = &nextAttemptAt.Time
	}
}

// tallyPendingBreakdown folds (category, next_attempt_at) rows into a
// PendingBreakdown relative to now. Shared by both backends.
func tallyPendingBreakdown(rows *sql.Rows, now time.Time) (PendingBreakdown, error) {
	var b PendingBreakdown
	now = now.UTC()
	for rows.Next() {
		var category Category
		var nextAttemptAt sql.NullTime
		if err := rows.Scan(&category, &nextAttemptAt); err != nil {
			return b, fmt.Errorf("scan pending breakdown failed: %w", err)
		}
		b.Total++
		due := !nextAttemptAt.Valid || !nextAttemptAt.Time.After(now)
		switch category {
		case CategoryDB:
			b.DB++
			if due {
				b.DueDB++
			} else {
				b.ScheduledDB++
			}
		case CategoryNotify:
			b.Notify++
			if due {
				b.DueNotify++
			} else {
				b.ScheduledNotify++
			}
		}
	}
	if err := rows.Err(); err != nil {
		return b, fmt.Errorf("pending breakdown iteration failed: %w", err)
	}
	return b, nil
}

// tallyCompletionStats folds done rows into per-category attempt totals and
// average drain seconds (completed_at - created_at).
func tallyCompletionStats(rows *sql.Rows) (map[Category]CategoryStats, error) {
	type acc struct {
		completed int
		attempts  int
		drainSum  float64
	}
	accs := make(map[Category]*acc)
	for rows.Next() {
		var category Category
		var attempts int
		var createdAt, completedAt time.Time
		if err := rows.Scan(&category, &attempts, &createdAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan completion stats failed: %w", err)
		}
		a := accs[category]
		if a == nil {
			a = &acc{}
			accs[category] = a
		}
		a.completed++
		a.attempts += attempts
		drain := completedAt.Sub(createdAt).Seconds()
		if drain < 0 {
			drain = 0
		}
		a.drainSum += drain
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("completion stats iteration failed: %w", err)
	}

	stats := make(map[Category]CategoryStats, len(accs))
	for category, a := range accs {
		s := CategoryStats{Completed: a.completed, TotalAttempts: a.attempts}
		if a.completed > 0 {
			s.AvgDrainSec = a.drainSum / float64(a.completed)
		}
		stats[category] = s
	}
	return stats, nil
}
