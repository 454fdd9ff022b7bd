package cache

import (
	"strings"
	"testing"
	"time"

	"github.com/Mateo-Piedra22/gym-management-system-sub005/internal/metrics"
	"github.com/Mateo-Piedra22/gym-management-system-sub005/internal/models"
)

// memCacheRepo is an in-memory CacheRepo for engine tests.
type memCacheRepo struct {
	entries map[string]string
}

func newMemCacheRepo() *memCacheRepo {
	return &memCacheRepo{entries: make(map[string]string)}
}

func (m *memCacheRepo) UpsertCachedRead(cacheKey, valueJSON string, now time.Time) error {
	m.entries[cacheKey] = valueJSON
	return nil
}

func (m *memCacheRepo) GetCachedRead(cacheKey string) (string, bool, error) {
	v, ok := m.entries[cacheKey]
	return v, ok, nil
}

func newTestEngine(t *testing.T) (*Engine, *memCacheRepo, *metrics.CacheCounters) {
	t.Helper()
	repo := newMemCacheRepo()
	counters := metrics.NewCacheCounters()
	e := NewEngine(repo, models.DefaultTypeRegistry(), counters, NewCriticalSet(DefaultCriticalReads))
	return e, repo, counters
}

func TestPutGetRecordRoundTrip(t *testing.T) {
	e, _, _ := newTestEngine(t)

	member := models.Member{
		ID: 7, Name: "Ana", Phone: "+54911", Email: "ana@example.com",
		Status: "active", JoinedAt: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	if err := e.Put("get_member", []any{int64(7)}, nil, member); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, ok := e.Get("get_member", []any{int64(7)}, nil)
	if !ok {
		t.Fatal("Get() missed a value just stored")
	}
	rebuilt, ok := got.(models.Member)
	if !ok {
		t.Fatalf("Get() = %T, want models.Member", got)
	}
	if rebuilt.ID != member.ID || rebuilt.Name != member.Name || rebuilt.Status != member.Status {
		t.Errorf("rebuilt member = %+v, want %+v", rebuilt, member)
	}
	if !rebuilt.JoinedAt.Equal(member.JoinedAt) {
		t.Errorf("JoinedAt = %v, want %v", rebuilt.JoinedAt, member.JoinedAt)
	}
}

func TestPutGetRecordListRoundTrip(t *testing.T) {
	e, _, _ := newTestEngine(t)

	payments := []models.Payment{
		{ID: 1, MemberID: 7, Amount: 1500.50, Method: "cash", PaidAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
		{ID: 2, MemberID: 7, Amount: 1600, Method: "card", PaidAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
	}
	if err := e.Put("get_monthly_payments", nil, map[string]any{"member_id": 7}, models.GenericList(payments)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, ok := e.Get("get_monthly_payments", nil, map[string]any{"member_id": 7})
	if !ok {
		t.Fatal("Get() missed a value just stored")
	}
	items, ok := got.([]any)
	if !ok {
		t.Fatalf("Get() = %T, want []any", got)
	}
	if len(items) != 2 {
		t.Fatalf("Get() returned %d items, want 2", len(items))
	}
	first, ok := items[0].(models.Payment)
	if !ok {
		t.Fatalf("items[0] = %T, want models.Payment", items[0])
	}
	if first.Amount != 1500.50 || first.MemberID != 7 {
		t.Errorf("items[0] = %+v, want first payment", first)
	}
}

func TestGetMissesDistinctArguments(t *testing.T) {
	e, _, counters := newTestEngine(t)

	if err := e.Put("get_member", []any{int64(7)}, nil, models.Member{ID: 7}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, ok := e.Get("get_member", []any{int64(8)}, nil); ok {
		t.Error("Get() with different args hit the wrong entry")
	}
	snap := counters.Snapshot()
	if snap.Misses != 1 {
		t.Errorf("Misses = %d, want 1", snap.Misses)
	}
}

func TestGetUnregisteredTypeFallsBackToGeneric(t *testing.T) {
	e, _, _ := newTestEngine(t)

	summary := map[string]any{"members": 120, "revenue": 45000.0}
	if err := e.Put("get_dashboard_summary", nil, nil, summary); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, ok := e.Get("get_dashboard_summary", nil, nil)
	if !ok {
		t.Fatal("Get() missed")
	}
	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("Get() = %T, want map[string]any", got)
	}
	if m["members"] != float64(120) {
		t.Errorf("members = %v, want 120", m["members"])
	}
}

func TestGetLegacyBareValue(t *testing.T) {
	e, repo, _ := newTestEngine(t)

	// An entry written before the metadata wrapper existed.
	key, err := CacheKey("get_whatsapp_config", nil, nil)
	if err != nil {
		t.Fatalf("CacheKey() error = %v", err)
	}
	repo.entries[key] = `{"enabled":true,"hour":9}`

	got, ok := e.Get("get_whatsapp_config", nil, nil)
	if !ok {
		t.Fatal("Get() missed a legacy entry")
	}
	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("Get() = %T, want map[string]any", got)
	}
	if m["enabled"] != true {
		t.Errorf("enabled = %v, want true", m["enabled"])
	}
}

func TestGetCorruptEntryDegradesToMiss(t *testing.T) {
	e, repo, counters := newTestEngine(t)

	key, err := CacheKey("get_member", []any{int64(1)}, nil)
	if err != nil {
		t.Fatalf("CacheKey() error = %v", err)
	}
	repo.entries[key] = `{not json`

	if _, ok := e.Get("get_member", []any{int64(1)}, nil); ok {
		t.Error("Get() returned a corrupt entry as a hit")
	}
	if snap := counters.Snapshot(); snap.Misses != 1 {
		t.Errorf("Misses = %d, want 1", snap.Misses)
	}
}

func TestReconstructionOverrideWins(t *testing.T) {
	e, _, _ := newTestEngine(t)

	e.RegisterReconstruction("custom_read", Reconstruction{
		Build: func(value any) (any, error) {
			m := value.(map[string]any)
			return "built:" + m["name"].(string), nil
		},
	})

	if err := e.Put("custom_read", nil, nil, map[string]any{"name": "ana"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, ok := e.Get("custom_read", nil, nil)
	if !ok {
		t.Fatal("Get() missed")
	}
	if got != "built:ana" {
		t.Errorf("Get() = %v, want custom-built value", got)
	}
}

func TestCountersTrackActivity(t *testing.T) {
	e, _, counters := newTestEngine(t)

	if err := e.Put("get_member", []any{int64(1)}, nil, models.Member{ID: 1}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	e.Get("get_member", []any{int64(1)}, nil)
	e.Get("get_member", []any{int64(2)}, nil)

	snap := counters.Snapshot()
	if snap.Stores != 1 || snap.Hits != 1 || snap.Misses != 1 {
		t.Errorf("counters = %+v, want stores=1 hits=1 misses=1", snap)
	}
}

func TestCacheKeyDeterministic(t *testing.T) {
	a, err := CacheKey("get_member", []any{1}, map[string]any{"b": 2, "a": 1})
	if err != nil {
		t.Fatalf("CacheKey() error = %v", err)
	}
	b, err := CacheKey("get_member", []any{1}, map[string]any{"a": 1, "b": 2})
	if err != nil {
		t.Fatalf("CacheKey() error = %v", err)
	}
	if a != b {
		t.Errorf("equal inputs produced different keys:\n%s\n%s", a, b)
	}

	c, _ := CacheKey("get_member", []any{2}, map[string]any{"a": 1, "b": 2})
	if a == c {
		t.Error("different args produced the same key")
	}
	if !strings.Contains(a, `"func":"get_member"`) {
		t.Errorf("key %q missing operation name", a)
	}
}

func TestCacheKeyNilNormalization(t *testing.T) {
	a, err := CacheKey("list_members", nil, nil)
	if err != nil {
		t.Fatalf("CacheKey() error = %v", err)
	}
	b, err := CacheKey("list_members", []any{}, map[string]any{})
	if err != nil {
		t.Fatalf("CacheKey() error = %v", err)
	}
	if a != b {
		t.Errorf("nil and empty containers produced different keys:\n%s\n%s", a, b)
	}
}

func TestIsCritical(t *testing.T) {
	e, _, _ := newTestEngine(t)
	if !e.IsCritical("get_member") {
		t.Error("get_member not critical, want seeded")
	}
	if e.IsCritical("rarely_used_report") {
		t.Error("unexpected critical name")
	}
}
