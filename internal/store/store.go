// Package store provides storage backends for the offline operation queue.
//
// Two backends are supported: SQLite for the standalone desktop deployment
// and PostgreSQL for gyms running a site server. Both expose the same repo
// interfaces and are selected by DSN.
package store

import (
	"time"
)

// Category classifies a queued operation and selects its collaborator and
// quota bucket. Wire values predate this implementation and must not change.
type Category string

const (
	CategoryDB     Category = "db"
	CategoryNotify Category = "whatsapp"
)

// OperationStatus is the lifecycle state of a queued operation.
type OperationStatus string

const (
	StatusPending    OperationStatus = "pending"
	StatusProcessing OperationStatus = "processing"
	StatusDone       OperationStatus = "done"
	StatusFailed     OperationStatus = "failed"
)

// Operation is one row of the queued_operations table.
type Operation struct {
	ID                int64           `json:"id"`
	Category          Category        `json:"category"`
	Name              string          `json:"func_name"`
	ArgsJSON          string          `json:"args"`
	KwargsJSON        string          `json:"kwargs"`
	CreatedAt         time.Time       `json:"created_at"`
	Status            OperationStatus `json:"status"`
	Attempts          int             `json:"attempts"`
	LastError         string          `json:"last_error"`
	ExpiresAt         *time.Time      `json:"expires_at"`
	DedupKey          string          `json:"dedup_key"`
	FirstProcessingAt *time.Time      `json:"first_processing_at"`
	CompletedAt       *time.Time      `json:"completed_at"`
	NextAttemptAt     *time.Time      `json:"next_attempt_at"`
}

// NewOperation carries the fields of an operation about to be inserted.
type NewOperation struct {
	Category   Category
	Name       string
	ArgsJSON   string
	KwargsJSON string
	CreatedAt  time.Time
	DedupKey   string
	ExpiresAt  *time.Time
}

// PendingBreakdown summarizes pending rows by category and by whether their
// backoff deadline has passed (due) or lies in the future (scheduled).
type PendingBreakdown struct {
	Total           int `json:"total"`
	DB              int `json:"db"`
	Notify          int `json:"whatsapp"`
	DueDB           int `json:"due_db"`
	DueNotify       int `json:"due_whatsapp"`
	ScheduledDB     int `json:"scheduled_db"`
	ScheduledNotify int `json:"scheduled_whatsapp"`
}

// Scheduled is the number of pending rows waiting out a backoff deadline.
func (b PendingBreakdown) Scheduled() int { return b.ScheduledDB + b.ScheduledNotify }

// CategoryStats aggregates completed operations of one category.
type CategoryStats struct {
	Completed     int     `json:"completed"`
	TotalAttempts int     `json:"total_attempts"`
	AvgDrainSec   float64 `json:"avg_drain_sec"`
}

// QueueRepo is the durable queue persistence interface.
type QueueRepo interface {
	// EnqueueOperation inserts a new operation. If op.DedupKey is non-empty
	// and a pending row with that key already exists, the existing row's ID
	// is returned without inserting a duplicate.
	EnqueueOperation(op NewOperation) (int64, error)

	// GetOperation retrieves a single operation by ID, or nil if absent.
	GetOperation(id int64) (*Operation, error)

	// RecoverProcessing resets rows left in processing back to pending
	// (crash recovery). Returns the number of rows reset.
	RecoverProcessing() (int, error)

	// PurgeExpired deletes pending rows whose expires_at has passed.
	PurgeExpired(now time.Time) (int, error)

	// SelectDue returns up to limit pending rows whose next_attempt_at is
	// NULL or <= now, ordered by ascending ID.
	SelectDue(now time.Time, limit int) ([]Operation, error)

	// MarkProcessing moves a row to processing, increments attempts, and
	// records first_processing_at if unset. Returns the attempt count after
	// the increment.
	MarkProcessing(id int64, now time.Time) (int, error)

	// MarkDone moves a row to done, sets completed_at, and clears
	// last_error and next_attempt_at.
	MarkDone(id int64, now time.Time) error

	// RescheduleFailed moves a row back to pending with the failure message
	// and its next backoff deadline.
	RescheduleFailed(id int64, errMsg string, nextAttemptAt time.Time) error

	// PendingBreakdown counts pending rows by category and backoff state.
	PendingBreakdown(now time.Time) (PendingBreakdown, error)

	// CompletionStats aggregates attempts and drain time over done rows.
	CompletionStats() (map[Category]CategoryStats, error)
}

// CacheRepo is the read-through cache persistence interface.
type CacheRepo interface {
	// UpsertCachedRead stores or overwrites a cache entry.
	UpsertCachedRead(cacheKey, valueJSON string, now time.Time) error

	// GetCachedRead returns the stored value JSON, or ok=false on a miss.
	GetCachedRead(cacheKey string) (valueJSON string, ok bool, err error)
}

// Store combines both repos with lifecycle management.
type Store interface {
	QueueRepo
	CacheRepo
	Close() error
}

// Opts holds configuration options shared by the store backends.
type Opts struct {
	DSN         string
	BusyTimeout time.Duration
}

// Option defines a configuration option for a store backend.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithBusyTimeout bounds how long a store call may wait on a locked
// database before failing fast.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *Opts) { o.BusyTimeout = d }
}
