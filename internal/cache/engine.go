// Package cache implements the read-through cache: deterministic keys,
// generic value serialization with reconstruction metadata, and the
// critical-read promoter.
package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Mateo-Piedra22/gym-management-system-sub005/internal/metrics"
	"github.com/Mateo-Piedra22/gym-management-system-sub005/internal/models"
	"github.com/Mateo-Piedra22/gym-management-system-sub005/internal/store"
)

// Reconstruction metadata kinds.
const (
	KindRecord     = "record"
	KindRecordList = "record_list"
)

// payload is the stored cache value: the generic JSON form plus optional
// reconstruction metadata.
type payload struct {
	Meta  *meta `json:"__meta__"`
	Value any   `json:"value"`
}

type meta struct {
	Kind string `json:"kind"`
	Type string `json:"type"`
}

// Reconstruction is a per-operation override for rebuilding typed values,
// taking precedence over stored metadata. Either Kind+Type (registry-backed)
// or Build (custom) is set.
type Reconstruction struct {
	Kind  string
	Type  string
	Build func(value any) (any, error)
}

// Engine is the read-through cache over the durable store.
type Engine struct {
	repo     store.CacheRepo
	types    *models.TypeRegistry
	counters *metrics.CacheCounters
	critical *CriticalSet

	mu        sync.RWMutex
	overrides map[string]Reconstruction

	now func() time.Time
}

// NewEngine creates a cache engine. counters and critical may not be nil;
// the caller shares them with the metrics collector.
func NewEngine(repo store.CacheRepo, types *models.TypeRegistry, counters *metrics.CacheCounters, critical *CriticalSet) *Engine {
	e := &Engine{
		repo:      repo,
		types:     types,
		counters:  counters,
		critical:  critical,
		overrides: make(map[string]Reconstruction),
		now:       time.Now,
	}
	e.registerDefaultReconstructions()
	return e
}

// RegisterReconstruction sets a per-operation reconstruction override.
func (e *Engine) RegisterReconstruction(name string, rec Reconstruction) {
	e.mu.Lock()
	e.overrides[name] = rec
	e.mu.Unlock()
	slog.Debug("Engine.RegisterReconstruction", "name", name, "kind", rec.Kind, "type", rec.Type)
}

// registerDefaultReconstructions covers the read operations whose results are
// typed records rather than ad-hoc maps.
func (e *Engine) registerDefaultReconstructions() {
	e.RegisterReconstruction("get_payment", Reconstruction{Kind: KindRecord, Type: models.TypeTagPayment})
	e.RegisterReconstruction("list_payments", Reconstruction{Kind: KindRecordList, Type: models.TypeTagPayment})
	e.RegisterReconstruction("get_monthly_payments", Reconstruction{Kind: KindRecordList, Type: models.TypeTagPayment})
	e.RegisterReconstruction("get_class_schedules", Reconstruction{Kind: KindRecordList, Type: models.TypeTagClassSchedule})
	e.RegisterReconstruction("get_member", Reconstruction{Kind: KindRecord, Type: models.TypeTagMember})
	e.RegisterReconstruction("get_member_by_id", Reconstruction{Kind: KindRecord, Type: models.TypeTagMember})
	e.RegisterReconstruction("list_members", Reconstruction{Kind: KindRecordList, Type: models.TypeTagMember})
}

// IsCritical reports whether a read operation is in the always-cache set.
func (e *Engine) IsCritical(name string) bool {
	return e.critical.Contains(name)
}

// Put stores a read result under the deterministic key for (name, args,
// kwargs), converting it to the generic form and attaching reconstruction
// metadata for known record types.
func (e *Engine) Put(name string, args []any, kwargs map[string]any, value any) error {
	key, err := CacheKey(name, args, kwargs)
	if err != nil {
		return fmt.Errorf("build cache key for %q failed: %w", name, err)
	}

	p := payload{Meta: detectMeta(value), Value: toGeneric(value)}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal cache payload for %q failed: %w", name, err)
	}

	if err := e.repo.UpsertCachedRead(key, string(data), e.now().UTC()); err != nil {
		return err
	}
	e.counters.Store()
	e.critical.NoteUsage(name)
	return nil
}

// Get looks up a cached read result and rebuilds a typed value when it can:
// per-operation override first, then stored metadata, then the raw generic
// value. Failures degrade to a miss, never an error to the caller.
func (e *Engine) Get(name string, args []any, kwargs map[string]any) (any, bool) {
	key, err := CacheKey(name, args, kwargs)
	if err != nil {
		e.counters.Miss()
		return nil, false
	}

	valueJSON, ok, err := e.repo.GetCachedRead(key)
	if err != nil || !ok {
		e.counters.Miss()
		return nil, false
	}

	var p payload
	if err := json.Unmarshal([]byte(valueJSON), &p); err != nil || !hasWrapper(valueJSON) {
		// Entries written before the metadata wrapper existed hold the bare
		// generic value.
		var raw any
		if err := json.Unmarshal([]byte(valueJSON), &raw); err != nil {
			e.counters.Miss()
			return nil, false
		}
		e.counters.Hit()
		e.critical.NoteUsage(name)
		return raw, true
	}

	e.counters.Hit()
	e.critical.NoteUsage(name)
	return e.reconstruct(name, p.Meta, p.Value), true
}

// reconstruct rebuilds a typed value, silently falling back to the generic
// form when the type is unknown or construction fails.
func (e *Engine) reconstruct(name string, m *meta, value any) any {
	e.mu.RLock()
	override, hasOverride := e.overrides[name]
	e.mu.RUnlock()

	if hasOverride {
		if override.Build != nil {
			if rebuilt, err := override.Build(value); err == nil {
				return rebuilt
			}
			return value
		}
		if rebuilt, ok := e.buildFromTag(override.Kind, override.Type, value); ok {
			return rebuilt
		}
		return value
	}

	if m != nil {
		if rebuilt, ok := e.buildFromTag(m.Kind, m.Type, value); ok {
			return rebuilt
		}
	}
	return value
}

func (e *Engine) buildFromTag(kind, tag string, value any) (any, bool) {
	switch kind {
	case KindRecord:
		data, ok := value.(map[string]any)
		if !ok {
			return nil, false
		}
		return e.types.Build(tag, data)
	case KindRecordList:
		items, ok := value.([]any)
		if !ok {
			return nil, false
		}
		rebuilt := make([]any, 0, len(items))
		for _, item := range items {
			data, ok := item.(map[string]any)
			if !ok {
				return nil, false
			}
			rec, ok := e.types.Build(tag, data)
			if !ok {
				return nil, false
			}
			rebuilt = append(rebuilt, rec)
		}
		return rebuilt, true
	default:
		return nil, false
	}
}

// CacheKey builds the deterministic digest for (name, args, kwargs).
// json.Marshal sorts map keys, so equal inputs always produce equal keys.
func CacheKey(name string, args []any, kwargs map[string]any) (string, error) {
	if args == nil {
		args = []any{}
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	key := struct {
		Func   string         `json:"func"`
		Args   []any          `json:"args"`
		Kwargs map[string]any `json:"kwargs"`
	}{name, args, kwargs}
	data, err := json.Marshal(key)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// detectMeta returns reconstruction metadata for known record values: a
// single GenericCodec, or a non-empty []any of codecs sharing one type tag.
func detectMeta(value any) *meta {
	if codec, ok := value.(models.GenericCodec); ok {
		return &meta{Kind: KindRecord, Type: codec.TypeTag()}
	}
	items, ok := value.([]any)
	if !ok || len(items) == 0 {
		return nil
	}
	first, ok := items[0].(models.GenericCodec)
	if !ok {
		return nil
	}
	tag := first.TypeTag()
	for _, item := range items[1:] {
		codec, ok := item.(models.GenericCodec)
		if !ok || codec.TypeTag() != tag {
			return nil
		}
	}
	return &meta{Kind: KindRecordList, Type: tag}
}

// toGeneric converts a value to its JSON-serializable generic form: records
// via their codec, temporal values to canonical text, containers recursively.
func toGeneric(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case models.GenericCodec:
		return v.ToGeneric()
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = toGeneric(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = toGeneric(item)
		}
		return out
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return v
	default:
		// Unregistered types round-trip as whatever encoding/json makes of
		// them; failures degrade to a string representation.
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return fmt.Sprintf("%v", v)
		}
		return generic
	}
}

// hasWrapper distinguishes the metadata wrapper from bare legacy values.
func hasWrapper(valueJSON string) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(valueJSON), &probe); err != nil {
		return false
	}
	_, ok := probe["value"]
	return ok
}
