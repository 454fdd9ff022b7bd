package cache

import (
	"fmt"
	"sort"
	"testing"
)

func TestCriticalSetContainsSeed(t *testing.T) {
	c := NewCriticalSet(DefaultCriticalReads)
	for _, name := range []string{"get_member", "get_class_schedules", "get_monthly_payments"} {
		if !c.Contains(name) {
			t.Errorf("Contains(%q) = false, want seeded", name)
		}
	}
	if c.Contains("obscure_report") {
		t.Error("Contains(obscure_report) = true, want false")
	}
}

func TestPromoteRequiresThreshold(t *testing.T) {
	c := NewCriticalSet(nil)

	for i := 0; i < DefaultPromotionThreshold-1; i++ {
		c.NoteUsage("warm_read")
	}
	if promoted := c.Promote(); len(promoted) != 0 {
		t.Errorf("Promote() below threshold = %v, want none", promoted)
	}

	c.NoteUsage("warm_read")
	promoted := c.Promote()
	if len(promoted) != 1 || promoted[0] != "warm_read" {
		t.Errorf("Promote() = %v, want [warm_read]", promoted)
	}
	if !c.Contains("warm_read") {
		t.Error("promoted name not in set")
	}

	// Already promoted names do not promote again.
	if promoted := c.Promote(); len(promoted) != 0 {
		t.Errorf("second Promote() = %v, want none", promoted)
	}
}

func TestPromoteBoundedPerSweepHighestUsageFirst(t *testing.T) {
	c := NewCriticalSet(nil)

	// Eight candidates above the threshold with distinct usage counts.
	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("read_%d", i)
		for j := 0; j < DefaultPromotionThreshold+i; j++ {
			c.NoteUsage(name)
		}
	}

	promoted := c.Promote()
	if len(promoted) != DefaultMaxPromotions {
		t.Fatalf("Promote() promoted %d names, want %d", len(promoted), DefaultMaxPromotions)
	}
	want := []string{"read_7", "read_6", "read_5", "read_4", "read_3"}
	for i, name := range want {
		if promoted[i] != name {
			t.Errorf("promoted[%d] = %q, want %q (highest usage first)", i, promoted[i], name)
		}
	}

	// The sweep bound only defers the rest; the next sweep picks them up.
	second := c.Promote()
	sort.Strings(second)
	if len(second) != 3 {
		t.Errorf("second sweep promoted %v, want the remaining 3", second)
	}
}

func TestNamesSorted(t *testing.T) {
	c := NewCriticalSet([]string{"zeta", "alpha", "mid"})
	names := c.Names()
	if !sort.StringsAreSorted(names) {
		t.Errorf("Names() = %v, want sorted", names)
	}
	if len(names) != 3 {
		t.Errorf("Names() returned %d names, want 3", len(names))
	}
}
