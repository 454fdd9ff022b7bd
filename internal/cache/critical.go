package cache

import (
	"log/slog"
	"sort"
	"sync"
)

// Promotion sweep defaults: names read at least threshold times are promoted,
// at most maxPromotions per sweep.
const (
	DefaultPromotionThreshold = 10
	DefaultMaxPromotions      = 5
)

// DefaultCriticalReads are the read operations the application must be able
// to serve offline: member lookups, schedules, payments, and the dashboards
// the front desk keeps open.
var DefaultCriticalReads = []string{
	// Members
	"get_member", "get_member_by_id", "list_members",
	"search_members_by_name", "list_member_statuses",
	// Classes and schedules
	"list_classes", "get_class_by_id", "list_class_trainers",
	"list_class_students", "get_waiting_list",
	"get_class_schedules", "get_trainer_schedules",
	// Routines and exercises
	"list_routines", "get_full_routine", "list_member_routines",
	"list_exercises",
	// Payments
	"get_payment", "get_monthly_payments", "list_payments",
	// Reports and dashboards
	"get_weekday_attendance", "get_recent_activity", "get_dashboard_summary",
	// Notification config
	"get_whatsapp_config",
	// Trainers
	"list_trainers",
}

// CriticalSet is the always-cache operation name set plus the usage counters
// that drive automatic promotion. Counters are process-local and reset on
// restart; promotions re-earn themselves.
type CriticalSet struct {
	mu            sync.Mutex
	names         map[string]struct{}
	usage         map[string]int
	threshold     int
	maxPromotions int
}

// NewCriticalSet creates a set seeded with the given names.
func NewCriticalSet(seed []string) *CriticalSet {
	names := make(map[string]struct{}, len(seed))
	for _, name := range seed {
		names[name] = struct{}{}
	}
	return &CriticalSet{
		names:         names,
		usage:         make(map[string]int),
		threshold:     DefaultPromotionThreshold,
		maxPromotions: DefaultMaxPromotions,
	}
}

// Contains reports whether an operation name is in the always-cache set.
func (c *CriticalSet) Contains(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.names[name]
	return ok
}

// NoteUsage bumps the usage counter for a read operation name.
func (c *CriticalSet) NoteUsage(name string) {
	c.mu.Lock()
	c.usage[name]++
	c.mu.Unlock()
}

// Promote runs one sweep: names whose usage crossed the threshold join the
// set, highest usage first, bounded per sweep. Returns the promoted names.
func (c *CriticalSet) Promote() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	type candidate struct {
		name  string
		count int
	}
	var candidates []candidate
	for name, count := range c.usage {
		if count >= c.threshold {
			if _, exists := c.names[name]; !exists {
				candidates = append(candidates, candidate{name, count})
			}
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].count != candidates[j].count {
			return candidates[i].count > candidates[j].count
		}
		return candidates[i].name < candidates[j].name
	})

	var promoted []string
	for _, cand := range candidates {
		if len(promoted) >= c.maxPromotions {
			break
		}
		c.names[cand.name] = struct{}{}
		promoted = append(promoted, cand.name)
		slog.Info("CriticalSet.Promote: promoted by usage", "name", cand.name, "count", cand.count)
	}
	return promoted
}

// Names returns the current set, sorted.
func (c *CriticalSet) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.names))
	for name := range c.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
