package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/Mateo-Piedra22/gym-management-system-sub005/internal/connectivity"
	"github.com/Mateo-Piedra22/gym-management-system-sub005/internal/store"
)

// Dispatcher defaults.
const (
	DefaultProcessingInterval = 30 * time.Second
	DefaultBatchSize          = 20
	DefaultQuotaRatio         = 0.6

	// Adaptive cadence: busy queues are drained on a short timer, idle
	// queues wake at the baseline interval.
	busyInterval     = 2 * time.Second
	loadedInterval   = 5 * time.Second
	busyThreshold    = 20
	maxCycleInterval = time.Hour
)

// ReplayGuard lets the DB collaborator suppress re-enqueueing its own writes
// while the dispatcher replays them against it.
type ReplayGuard interface {
	SetReplaying(replaying bool)
}

// Notifier reports whether the outbound notification client is attached and
// connected. NOTIFY rows are only eligible when it is.
type Notifier interface {
	Ready() bool
}

// Dispatcher is the single cooperative worker that drains the queue. All
// queue mutations happen on its goroutine, one cycle at a time.
type Dispatcher struct {
	repo     store.QueueRepo
	registry *Registry
	probe    connectivity.Prober

	mu       sync.RWMutex
	dbGuard  ReplayGuard
	dbReady  bool
	notifier Notifier

	interval   time.Duration
	batchSize  int
	quotaRatio float64
	adaptive   bool
	now        func() time.Time
}

// DispatcherOpts holds configuration options for the Dispatcher.
type DispatcherOpts struct {
	Interval   time.Duration
	BatchSize  int
	QuotaRatio float64
	Adaptive   bool
	Now        func() time.Time
}

// DispatcherOption defines a configuration option for the Dispatcher.
type DispatcherOption func(*DispatcherOpts)

// WithInterval sets the baseline wake interval.
func WithInterval(d time.Duration) DispatcherOption {
	return func(o *DispatcherOpts) { o.Interval = d }
}

// WithBatchSize bounds how many due rows one cycle may consider.
func WithBatchSize(n int) DispatcherOption {
	return func(o *DispatcherOpts) { o.BatchSize = n }
}

// WithQuotaRatio sets the DB share of each cycle's batch; the remainder goes
// to NOTIFY. Both categories always get at least one slot.
func WithQuotaRatio(ratio float64) DispatcherOption {
	return func(o *DispatcherOpts) { o.QuotaRatio = ratio }
}

// WithAdaptiveInterval toggles load-based shortening of the wake interval.
func WithAdaptiveInterval(enabled bool) DispatcherOption {
	return func(o *DispatcherOpts) { o.Adaptive = enabled }
}

// WithDispatcherClock overrides the time source (for tests).
func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(o *DispatcherOpts) { o.Now = now }
}

// NewDispatcher creates a Dispatcher over the given repo, registry, and probe.
func NewDispatcher(repo store.QueueRepo, registry *Registry, probe connectivity.Prober, opts ...DispatcherOption) *Dispatcher {
	cfg := DispatcherOpts{
		Interval:   DefaultProcessingInterval,
		BatchSize:  DefaultBatchSize,
		QuotaRatio: DefaultQuotaRatio,
		Adaptive:   true,
		Now:        time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Interval <= 0 || cfg.Interval > maxCycleInterval {
		cfg.Interval = DefaultProcessingInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.QuotaRatio <= 0 || cfg.QuotaRatio >= 1 {
		cfg.QuotaRatio = DefaultQuotaRatio
	}
	return &Dispatcher{
		repo:       repo,
		registry:   registry,
		probe:      probe,
		interval:   cfg.Interval,
		batchSize:  cfg.BatchSize,
		quotaRatio: cfg.QuotaRatio,
		adaptive:   cfg.Adaptive,
		now:        cfg.Now,
	}
}

// AttachDB attaches the DB collaborator's replay guard. DB rows stay pending
// until a guard is attached.
func (d *Dispatcher) AttachDB(guard ReplayGuard) {
	d.mu.Lock()
	d.dbGuard = guard
	d.dbReady = true
	d.mu.Unlock()
	slog.Info("Dispatcher.AttachDB: DB collaborator attached")
}

// DetachDB detaches the DB collaborator; its rows become ineligible.
func (d *Dispatcher) DetachDB() {
	d.mu.Lock()
	d.dbGuard = nil
	d.dbReady = false
	d.mu.Unlock()
	slog.Info("Dispatcher.DetachDB: DB collaborator detached")
}

// AttachNotifier attaches the notification collaborator.
func (d *Dispatcher) AttachNotifier(n Notifier) {
	d.mu.Lock()
	d.notifier = n
	d.mu.Unlock()
	slog.Info("Dispatcher.AttachNotifier: notification collaborator attached")
}

// DBReady reports whether the DB collaborator is attached.
func (d *Dispatcher) DBReady() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.dbReady
}

// NotifierReady reports whether the notification collaborator is attached
// and its client connected.
func (d *Dispatcher) NotifierReady() bool {
	d.mu.RLock()
	n := d.notifier
	d.mu.RUnlock()
	return n != nil && n.Ready()
}

// Run executes dispatch cycles until the context is cancelled. The sleep
// between cycles adapts to the number of actionable rows.
func (d *Dispatcher) Run(ctx context.Context) {
	slog.Info("Dispatcher.Run: starting worker loop", "interval", d.interval, "batchSize", d.batchSize)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Dispatcher.Run: stopping")
			return
		case <-timer.C:
		}

		processed, err := d.RunCycle(ctx)
		if err != nil {
			slog.Error("Dispatcher.Run: cycle failed", "error", err)
		} else if processed > 0 {
			slog.Info("Dispatcher.Run: processed pending operations", "count", processed)
		}

		timer.Reset(d.nextSleep())
	}
}

// nextSleep picks the wake interval from the current actionable load.
func (d *Dispatcher) nextSleep() time.Duration {
	if !d.adaptive {
		return d.interval
	}
	actionable := d.ActionableCount()
	switch {
	case actionable >= busyThreshold:
		return busyInterval
	case actionable > 0:
		return loadedInterval
	default:
		return d.interval
	}
}

// ActionableCount counts pending rows that could be processed right now:
// backoff deadline passed and category currently eligible.
func (d *Dispatcher) ActionableCount() int {
	breakdown, err := d.repo.PendingBreakdown(d.now())
	if err != nil {
		slog.Debug("Dispatcher.ActionableCount: breakdown failed", "error", err)
		return 0
	}
	count := 0
	if d.DBReady() {
		count += breakdown.DueDB
	}
	if d.NotifierReady() && d.probe.Online() {
		count += breakdown.DueNotify
	}
	return count
}

// RunCycle performs one full dispatch cycle and returns the number of
// operations completed. Tests drive this directly for determinism.
func (d *Dispatcher) RunCycle(ctx context.Context) (int, error) {
	now := d.now().UTC()

	if _, err := d.repo.RecoverProcessing(); err != nil {
		return 0, err
	}
	if _, err := d.repo.PurgeExpired(now); err != nil {
		return 0, err
	}

	ops, err := d.repo.SelectDue(now, d.batchSize)
	if err != nil {
		return 0, err
	}
	if len(ops) == 0 {
		return 0, nil
	}

	// Connectivity is evaluated once per cycle, not per row.
	online := d.probe.Online()
	dbEligible := d.DBReady()
	notifyEligible := d.NotifierReady() && online

	dbQuota, notifyQuota := d.quotas()
	processedDB, processedNotify, processed := 0, 0, 0

	for _, op := range ops {
		select {
		case <-ctx.Done():
			return processed, ctx.Err()
		default:
		}

		switch op.Category {
		case store.CategoryDB:
			if !dbEligible || processedDB >= dbQuota {
				continue // skip without penalty
			}
		case store.CategoryNotify:
			if !notifyEligible || processedNotify >= notifyQuota {
				continue
			}
		default:
			continue
		}

		if d.executeOne(ctx, op) {
			processed++
			switch op.Category {
			case store.CategoryDB:
				processedDB++
			case store.CategoryNotify:
				processedNotify++
			}
		}
	}
	return processed, nil
}

// quotas splits the batch between categories. Matches the original split:
// DB gets the ratio share, NOTIFY the remainder, each at least one slot.
func (d *Dispatcher) quotas() (dbQuota, notifyQuota int) {
	dbQuota = int(float64(d.batchSize) * d.quotaRatio)
	if dbQuota < 1 {
		dbQuota = 1
	}
	notifyQuota = d.batchSize - dbQuota
	if notifyQuota < 1 {
		notifyQuota = 1
	}
	return dbQuota, notifyQuota
}

// executeOne runs a single eligible operation through its handler and
// resolves the row. Returns true on success.
func (d *Dispatcher) executeOne(ctx context.Context, op store.Operation) bool {
	attempts, err := d.repo.MarkProcessing(op.ID, d.now().UTC())
	if err != nil {
		slog.Error("Dispatcher.executeOne: mark processing failed", "id", op.ID, "error", err)
		return false
	}

	execErr := d.invoke(ctx, op)
	if execErr != nil {
		slog.Warn("Dispatcher.executeOne: operation failed",
			"id", op.ID, "category", op.Category, "name", op.Name, "attempt", attempts, "error", execErr)
		nextAttempt := d.now().UTC().Add(RetryDelay(attempts))
		if err := d.repo.RescheduleFailed(op.ID, execErr.Error(), nextAttempt); err != nil {
			slog.Error("Dispatcher.executeOne: reschedule failed", "id", op.ID, "error", err)
		}
		return false
	}

	if err := d.repo.MarkDone(op.ID, d.now().UTC()); err != nil {
		slog.Error("Dispatcher.executeOne: mark done failed", "id", op.ID, "error", err)
		return false
	}
	slog.Debug("Dispatcher.executeOne: operation done", "id", op.ID, "category", op.Category, "name", op.Name)
	return true
}

// invoke decodes the stored arguments and calls the registered handler,
// wrapping DB calls in the replay guard.
func (d *Dispatcher) invoke(ctx context.Context, op store.Operation) error {
	handler, ok := d.registry.Lookup(op.Category, op.Name)
	if !ok {
		// Registered at enqueue time but unregistered since (e.g. after an
		// upgrade); reschedule rather than fail the batch.
		return &UnknownOperationError{Category: op.Category, Name: op.Name}
	}

	args, kwargs, err := decodeOperationArgs(op)
	if err != nil {
		return err
	}

	if op.Category == store.CategoryDB {
		d.mu.RLock()
		guard := d.dbGuard
		d.mu.RUnlock()
		if guard != nil {
			guard.SetReplaying(true)
			defer guard.SetReplaying(false)
		}
	}
	return handler(ctx, args, kwargs)
}

// UnknownOperationError reports a stored operation whose handler is no
// longer registered.
type UnknownOperationError struct {
	Category store.Category
	Name     string
}

func (e *UnknownOperationError) Error() string {
	return "no handler registered for " + string(e.Category) + " operation " + e.Name
}

func decodeOperationArgs(op store.Operation) ([]any, map[string]any, error) {
	var args []any
	if op.ArgsJSON != "" {
		if err := json.Unmarshal([]byte(op.ArgsJSON), &args); err != nil {
			return nil, nil, err
		}
	}
	kwargs := map[string]any{}
	if op.KwargsJSON != "" {
		if err := json.Unmarshal([]byte(op.KwargsJSON), &kwargs); err != nil {
			return nil, nil, err
		}
	}
	return args, kwargs, nil
}
