package metrics

import (
	"log/slog"
	"time"

	"github.com/Mateo-Piedra22/gym-management-system-sub005/internal/connectivity"
	"github.com/Mateo-Piedra22/gym-management-system-sub005/internal/store"
)

// CollaboratorStatus reports whether each category's collaborator could
// process rows right now. The dispatcher implements this.
type CollaboratorStatus interface {
	DBReady() bool
	NotifierReady() bool
}

// CriticalReads exposes the always-cache operation names for the snapshot.
type CriticalReads interface {
	Names() []string
}

// PendingSummary is the queue section of a snapshot: totals per category
// plus the actionable/scheduled split the desktop UI renders.
type PendingSummary struct {
	Total            int `json:"total"`
	DB               int `json:"db"`
	Notify           int `json:"whatsapp"`
	Actionable       int `json:"actionable"`
	ActionableDB     int `json:"actionable_db"`
	ActionableNotify int `json:"actionable_whatsapp"`
	Scheduled        int `json:"scheduled"`
	ScheduledDB      int `json:"scheduled_db"`
	ScheduledNotify  int `json:"scheduled_whatsapp"`
}

// Snapshot is the full observability snapshot: connectivity, queue pressure,
// cache counters, and per-category completion aggregates.
type Snapshot struct {
	Timestamp       time.Time                               `json:"timestamp"`
	InternetOK      bool                                    `json:"internet_ok"`
	DBOK            bool                                    `json:"db_ok"`
	NotifyOK        bool                                    `json:"whatsapp_ok"`
	PendingOps      int                                     `json:"pending_ops"`
	PendingOpsTotal int                                     `json:"pending_ops_total"`
	Pending         PendingSummary                          `json:"pending_breakdown"`
	CacheMetrics    CacheCounterSnapshot                    `json:"cache_metrics"`
	Completion      map[store.Category]store.CategoryStats  `json:"offline_observability"`
	CriticalReads   []string                                `json:"critical_read_methods"`
	Source          string                                  `json:"source,omitempty"`
}

// Collector assembles snapshots from the queue repo, the probe, the
// dispatcher's collaborator status, and the cache counters.
type Collector struct {
	repo     store.QueueRepo
	probe    connectivity.Prober
	status   CollaboratorStatus
	counters *CacheCounters
	critical CriticalReads
	now      func() time.Time
}

// NewCollector creates a Collector.
func NewCollector(repo store.QueueRepo, probe connectivity.Prober, status CollaboratorStatus,
	counters *CacheCounters, critical CriticalReads) *Collector {
	return &Collector{
		repo:     repo,
		probe:    probe,
		status:   status,
		counters: counters,
		critical: critical,
		now:      time.Now,
	}
}

// Collect builds a live snapshot. Individual sections degrade to zero values
// on store errors so the snapshot itself never fails.
func (c *Collector) Collect() Snapshot {
	now := c.now().UTC()
	internetOK := c.probe.Online()
	dbOK := c.status.DBReady()
	notifyOK := c.status.NotifierReady()

	breakdown, err := c.repo.PendingBreakdown(now)
	if err != nil {
		slog.Debug("Collector.Collect: pending breakdown failed", "error", err)
	}
	pending := summarizePending(breakdown, dbOK, notifyOK && internetOK)

	completion, err := c.repo.CompletionStats()
	if err != nil {
		slog.Debug("Collector.Collect: completion stats failed", "error", err)
		completion = map[store.Category]store.CategoryStats{}
	}

	return Snapshot{
		Timestamp:       now,
		InternetOK:      internetOK,
		DBOK:            dbOK,
		NotifyOK:        notifyOK,
		PendingOps:      pending.Actionable,
		PendingOpsTotal: pending.Total,
		Pending:         pending,
		CacheMetrics:    c.counters.Snapshot(),
		Completion:      completion,
		CriticalReads:   c.critical.Names(),
	}
}

// summarizePending applies category eligibility to the store's breakdown:
// rows past their backoff deadline count as actionable only when their
// collaborator could take them.
func summarizePending(b store.PendingBreakdown, dbEligible, notifyEligible bool) PendingSummary {
	s := PendingSummary{
		Total:           b.Total,
		DB:              b.DB,
		Notify:          b.Notify,
		Scheduled:       b.Scheduled(),
		ScheduledDB:     b.ScheduledDB,
		ScheduledNotify: b.ScheduledNotify,
	}
	if dbEligible {
		s.ActionableDB = b.DueDB
	}
	if notifyEligible {
		s.ActionableNotify = b.DueNotify
	}
	s.Actionable = s.ActionableDB + s.ActionableNotify
	return s
}
