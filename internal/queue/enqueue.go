package queue

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Mateo-Piedra22/gym-management-system-sub005/internal/store"
)

// Dedup/TTL defaults and bounds for NOTIFY operations.
const (
	DefaultNotifyTTLHours = 72
	MinNotifyTTLHours     = 1
	MaxNotifyTTLHours     = 168
)

// Configuration keys read from the application settings table via
// ReloadPreferences. Key names predate this implementation.
const (
	prefKeyTTLHours     = "whatsapp_queue_ttl_hours"
	prefKeyDedupEnabled = "whatsapp_queue_dedup_enabled"
)

// SettingsGetter returns a configuration value by key, or "" when unset.
// The DB collaborator provides one so queue preferences follow the
// application's settings table.
type SettingsGetter func(key string) string

// Queue is the enqueue API over the durable store.
type Queue struct {
	repo     store.QueueRepo
	registry *Registry

	mu           sync.RWMutex
	dedupEnabled bool
	notifyTTL    time.Duration

	now func() time.Time
}

// QueueOpts holds configuration options for the Queue.
type QueueOpts struct {
	DedupEnabled   bool
	NotifyTTLHours int
	Now            func() time.Time
}

// QueueOption defines a configuration option for the Queue.
type QueueOption func(*QueueOpts)

// WithDedupEnabled toggles NOTIFY dedup-key computation.
func WithDedupEnabled(enabled bool) QueueOption {
	return func(o *QueueOpts) { o.DedupEnabled = enabled }
}

// WithNotifyTTLHours sets the NOTIFY operation TTL in hours, clamped to
// [MinNotifyTTLHours, MaxNotifyTTLHours].
func WithNotifyTTLHours(hours int) QueueOption {
	return func(o *QueueOpts) { o.NotifyTTLHours = hours }
}

// WithClock overrides the time source (for tests).
func WithClock(now func() time.Time) QueueOption {
	return func(o *QueueOpts) { o.Now = now }
}

// New creates a Queue over the given repo and command registry.
func New(repo store.QueueRepo, registry *Registry, opts ...QueueOption) *Queue {
	cfg := QueueOpts{DedupEnabled: true, NotifyTTLHours: DefaultNotifyTTLHours, Now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Queue{
		repo:         repo,
		registry:     registry,
		dedupEnabled: cfg.DedupEnabled,
		notifyTTL:    time.Duration(clampTTLHours(cfg.NotifyTTLHours)) * time.Hour,
		now:          cfg.Now,
	}
}

// EnqueueDB records a database mutation for later replay. The write is
// durable before the call returns.
func (q *Queue) EnqueueDB(name string, args []any, kwargs map[string]any) (int64, error) {
	return q.enqueue(store.CategoryDB, name, args, kwargs)
}

// EnqueueNotify records an outbound notification send. NOTIFY operations
// carry a dedup key and a TTL: repeated requests for the same effect fold
// into one pending row, and rows never sent within the TTL are dropped.
func (q *Queue) EnqueueNotify(name string, kwargs map[string]any) (int64, error) {
	return q.enqueue(store.CategoryNotify, name, nil, kwargs)
}

func (q *Queue) enqueue(category store.Category, name string, args []any, kwargs map[string]any) (int64, error) {
	if !q.registry.Known(category, name) {
		return 0, fmt.Errorf("no handler registered for %s operation %q", category, name)
	}

	argsJSON, err := encodeArgs(args)
	if err != nil {
		return 0, fmt.Errorf("encode args for %q failed: %w", name, err)
	}
	kwargsJSON, err := encodeKwargs(kwargs)
	if err != nil {
		return 0, fmt.Errorf("encode kwargs for %q failed: %w", name, err)
	}

	now := q.now().UTC()
	op := store.NewOperation{
		Category:   category,
		Name:       name,
		ArgsJSON:   argsJSON,
		KwargsJSON: kwargsJSON,
		CreatedAt:  now,
	}

	if category == store.CategoryNotify {
		q.mu.RLock()
		dedupEnabled := q.dedupEnabled
		ttl := q.notifyTTL
		q.mu.RUnlock()

		if dedupEnabled {
			op.DedupKey = notifyDedupKey(name, kwargs)
		}
		expires := now.Add(ttl)
		op.ExpiresAt = &expires
	}

	id, err := q.repo.EnqueueOperation(op)
	if err != nil {
		return 0, err
	}
	slog.Debug("Queue.enqueue", "id", id, "category", category, "name", name)
	return id, nil
}

// ReloadPreferences re-reads TTL and dedup settings from the application
// configuration. Safe to call while the dispatcher is running.
func (q *Queue) ReloadPreferences(settings SettingsGetter) {
	if settings == nil {
		return
	}
	ttlHours := DefaultNotifyTTLHours
	if v := settings(prefKeyTTLHours); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			ttlHours = clampTTLHours(n)
		}
	}
	dedupEnabled := true
	if v := settings(prefKeyDedupEnabled); v != "" {
		dedupEnabled = strings.EqualFold(strings.TrimSpace(v), "true")
	}

	q.mu.Lock()
	q.notifyTTL = time.Duration(ttlHours) * time.Hour
	q.dedupEnabled = dedupEnabled
	q.mu.Unlock()
	slog.Debug("Queue.ReloadPreferences", "ttlHours", ttlHours, "dedupEnabled", dedupEnabled)
}

func clampTTLHours(hours int) int {
	if hours < MinNotifyTTLHours {
		return MinNotifyTTLHours
	}
	if hours > MaxNotifyTTLHours {
		return MaxNotifyTTLHours
	}
	return hours
}

func encodeArgs(args []any) (string, error) {
	if len(args) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func encodeKwargs(kwargs map[string]any) (string, error) {
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	data, err := json.Marshal(kwargs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// notifyDedupKey derives a stable key from the fields that identify "the same
// effect": recipient identity and message kind. json.Marshal on the struct
// keeps field order fixed.
func notifyDedupKey(name string, kwargs map[string]any) string {
	key := struct {
		Cat      string `json:"cat"`
		Func     string `json:"func"`
		User     any    `json:"user"`
		Template any    `json:"template"`
	}{
		Cat:  string(store.CategoryNotify),
		Func: name,
	}

	for _, k := range []string{"member_id", "user_id", "to", "to_phone"} {
		if v, ok := kwargs[k]; ok && v != nil {
			key.User = v
			break
		}
	}
	if key.User == nil {
		if member, ok := kwargs["member"].(map[string]any); ok {
			key.User = member["id"]
		}
	}

	key.Template = name
	for _, k := range []string{"template", "type"} {
		if v, ok := kwargs[k]; ok && v != nil {
			key.Template = v
			break
		}
	}

	data, err := json.Marshal(key)
	if err != nil {
		return ""
	}
	return string(data)
}
