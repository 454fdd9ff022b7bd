package models

import (
	"sync"
	"time"
)

// GenericCodec is implemented by record types that can be stored in the
// read-through cache and rebuilt from their generic map form.
type GenericCodec interface {
	// TypeTag returns the stable type identifier stored in cache metadata.
	TypeTag() string
	// ToGeneric converts the record to a JSON-serializable map.
	ToGeneric() map[string]any
}

// BuildFunc rebuilds a typed record from its generic map form.
type BuildFunc func(data map[string]any) (any, error)

// TypeRegistry maps type tags to record builders. Lookups that miss fall back
// to the generic value at the call site, never to an error for the caller.
type TypeRegistry struct {
	mu       sync.RWMutex
	builders map[string]BuildFunc
}

// NewTypeRegistry creates an empty registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{builders: make(map[string]BuildFunc)}
}

// Register adds or replaces the builder for a type tag.
func (r *TypeRegistry) Register(tag string, build BuildFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[tag] = build
}

// Build rebuilds a record for the given tag. The second return is false when
// the tag is unknown or the builder failed.
func (r *TypeRegistry) Build(tag string, data map[string]any) (any, bool) {
	r.mu.RLock()
	build, ok := r.builders[tag]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	rec, err := build(data)
	if err != nil {
		return nil, false
	}
	return rec, true
}

// DefaultTypeRegistry returns a registry populated with every record type this
// application caches.
func DefaultTypeRegistry() *TypeRegistry {
	r := NewTypeRegistry()
	r.Register(TypeTagMember, MemberFromGeneric)
	r.Register(TypeTagPayment, PaymentFromGeneric)
	r.Register(TypeTagAttendance, AttendanceFromGeneric)
	r.Register(TypeTagClassSchedule, ClassScheduleFromGeneric)
	return r
}

// GenericList converts a typed record slice to []any of GenericCodec values,
// the form the cache engine expects for homogeneous record lists.
func GenericList[T GenericCodec](records []T) []any {
	out := make([]any, len(records))
	for i, rec := range records {
		out[i] = rec
	}
	return out
}

// Field accessors tolerant of JSON decoding artifacts: numbers arrive as
// float64, timestamps as RFC 3339 strings.

func stringField(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func intField(data map[string]any, key string) int64 {
	switch v := data[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func floatField(data map[string]any, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}

func timeField(data map[string]any, key string) time.Time {
	s, ok := data[key].(string)
	if !ok || s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
