package models

import (
	"encoding/json"
	"testing"
	"time"
)

// roundTrip pushes a generic map through JSON so values arrive the way cached
// entries do: numbers as float64, timestamps as strings.
func roundTrip(t *testing.T, data map[string]any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func TestMemberGenericRoundTrip(t *testing.T) {
	m := Member{
		ID: 7, Name: "Ana García", Phone: "+5491112345678",
		Email: "ana@example.com", Status: "active",
		JoinedAt: time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC),
	}

	rebuilt, err := MemberFromGeneric(roundTrip(t, m.ToGeneric()))
	if err != nil {
		t.Fatalf("MemberFromGeneric() error = %v", err)
	}
	got, ok := rebuilt.(Member)
	if !ok {
		t.Fatalf("MemberFromGeneric() = %T, want Member", rebuilt)
	}
	if got.ID != m.ID || got.Name != m.Name || got.Phone != m.Phone || got.Status != m.Status {
		t.Errorf("rebuilt = %+v, want %+v", got, m)
	}
	if !got.JoinedAt.Equal(m.JoinedAt) {
		t.Errorf("JoinedAt = %v, want %v", got.JoinedAt, m.JoinedAt)
	}
}

func TestPaymentGenericRoundTrip(t *testing.T) {
	p := Payment{
		ID: 3, MemberID: 7, Amount: 1500.50, Method: "cash", Concept: "monthly",
		PaidAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}

	rebuilt, err := PaymentFromGeneric(roundTrip(t, p.ToGeneric()))
	if err != nil {
		t.Fatalf("PaymentFromGeneric() error = %v", err)
	}
	got := rebuilt.(Payment)
	if got.Amount != p.Amount || got.MemberID != p.MemberID || got.Concept != p.Concept {
		t.Errorf("rebuilt = %+v, want %+v", got, p)
	}
	if !got.PaidAt.Equal(p.PaidAt) {
		t.Errorf("PaidAt = %v, want %v", got.PaidAt, p.PaidAt)
	}
}

func TestClassScheduleGenericRoundTrip(t *testing.T) {
	c := ClassSchedule{ID: 1, ClassID: 4, Weekday: 2, Start: "18:00", End: "19:00", Trainer: "Luis"}

	rebuilt, err := ClassScheduleFromGeneric(roundTrip(t, c.ToGeneric()))
	if err != nil {
		t.Fatalf("ClassScheduleFromGeneric() error = %v", err)
	}
	if got := rebuilt.(ClassSchedule); got != c {
		t.Errorf("rebuilt = %+v, want %+v", got, c)
	}
}

func TestFromGenericToleratesMissingFields(t *testing.T) {
	rebuilt, err := MemberFromGeneric(map[string]any{"id": float64(9)})
	if err != nil {
		t.Fatalf("MemberFromGeneric() error = %v", err)
	}
	got := rebuilt.(Member)
	if got.ID != 9 {
		t.Errorf("ID = %d, want 9", got.ID)
	}
	if got.Name != "" || !got.JoinedAt.IsZero() {
		t.Errorf("missing fields not zero: %+v", got)
	}
}

func TestDefaultTypeRegistryBuilds(t *testing.T) {
	r := DefaultTypeRegistry()

	for _, tag := range []string{TypeTagMember, TypeTagPayment, TypeTagAttendance, TypeTagClassSchedule} {
		if _, ok := r.Build(tag, map[string]any{}); !ok {
			t.Errorf("Build(%q) failed, want registered builder", tag)
		}
	}
	if _, ok := r.Build("Unknown", map[string]any{}); ok {
		t.Error("Build(Unknown) succeeded, want miss")
	}
}

func TestGenericList(t *testing.T) {
	members := []Member{{ID: 1}, {ID: 2}}
	list := GenericList(members)
	if len(list) != 2 {
		t.Fatalf("GenericList() length = %d, want 2", len(list))
	}
	if _, ok := list[0].(GenericCodec); !ok {
		t.Errorf("list[0] = %T, want GenericCodec", list[0])
	}
}
