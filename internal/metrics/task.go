package metrics

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
)

// Snapshot task defaults.
const (
	DefaultSnapshotInterval = 60 * time.Second
	MinSnapshotInterval     = 5 * time.Second
	// SnapshotFileName is the JSON artifact written under the logs directory.
	SnapshotFileName = "cache_metrics.json"
)

// Promoter runs one critical-read promotion sweep and returns the names
// promoted, if any.
type Promoter interface {
	Promote() []string
}

// SnapshotTask periodically collects a snapshot, logs a one-line summary,
// persists the JSON artifact, and runs the critical-read promotion sweep.
type SnapshotTask struct {
	collector *Collector
	promoter  Promoter
	path      string
	cron      *cron.Cron
}

// NewSnapshotTask creates the periodic snapshot task. logsDir receives the
// JSON artifact; interval is clamped to MinSnapshotInterval.
func NewSnapshotTask(collector *Collector, promoter Promoter, logsDir string, interval time.Duration) *SnapshotTask {
	if interval < MinSnapshotInterval {
		interval = MinSnapshotInterval
	}
	t := &SnapshotTask{
		collector: collector,
		promoter:  promoter,
		path:      filepath.Join(logsDir, SnapshotFileName),
		cron:      cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
	}
	t.cron.Schedule(cron.Every(interval), cron.FuncJob(func() {
		if err := t.RunOnce(); err != nil {
			slog.Warn("SnapshotTask: snapshot failed", "error", err)
		}
	}))
	return t
}

// SnapshotPath returns the path of the persisted JSON artifact.
func (t *SnapshotTask) SnapshotPath() string { return t.path }

// Start begins the periodic schedule.
func (t *SnapshotTask) Start() {
	t.cron.Start()
	slog.Info("SnapshotTask.Start: metrics snapshot task started", "path", t.path)
}

// Stop stops the schedule and waits for a running snapshot to finish.
func (t *SnapshotTask) Stop() {
	ctx := t.cron.Stop()
	<-ctx.Done()
	slog.Info("SnapshotTask.Stop: metrics snapshot task stopped")
}

// RunOnce collects, logs, persists, and promotes. Exposed so tests and the
// shutdown path can drive a final snapshot deterministically.
func (t *SnapshotTask) RunOnce() error {
	snap := t.collector.Collect()

	slog.Info("OfflineMetrics",
		"internet", snap.InternetOK, "db", snap.DBOK, "whatsapp", snap.NotifyOK,
		"pending_ops", snap.PendingOps, "pending_total", snap.PendingOpsTotal,
		"cache_hits", snap.CacheMetrics.Hits, "cache_misses", snap.CacheMetrics.Misses,
		"cache_stores", snap.CacheMetrics.Stores)

	if err := t.persist(snap); err != nil {
		return err
	}

	if t.promoter != nil {
		if promoted := t.promoter.Promote(); len(promoted) > 0 {
			slog.Info("SnapshotTask: promoted critical reads", "names", promoted)
		}
	}
	return nil
}

func (t *SnapshotTask) persist(snap Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(t.path), 0755); err != nil {
		return fmt.Errorf("create snapshot directory failed: %w", err)
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot failed: %w", err)
	}
	if err := os.WriteFile(t.path, data, 0644); err != nil {
		return fmt.Errorf("write snapshot file failed: %w", err)
	}
	return nil
}
