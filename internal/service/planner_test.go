package service

import (
	"testing"
	"time"
)

func TestPlanSlots_CapsAtSevenDays(t *testing.T) {
	weekStart := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	slots := PlanSlots(weekStart, 10)
	if len(slots) != 7 {
		t.Fatalf("expected 7 slots, got %d", len(slots))
	}

	days := make(map[string]bool)
	for _, s := range slots {
		days[s.ScheduledAt.Format("2006-01-02")] = true
	}
	if len(days) != 7 {
		t.Errorf("expected 7 distinct days, got %d", len(days))
	}
}

func TestPlanSlots_DistinctDaysAndHours(t *testing.T) {
	weekStart := time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC) // time part must be ignored

	slots := PlanSlots(weekStart, 3)
	if len(slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(slots))
	}

	for i, s := range slots {
		if s.Index != i {
			t.Errorf("slot %d has index %d", i, s.Index)
		}
		wantDay := weekStart.Truncate(24 * time.Hour).AddDate(0, 0, i)
		if s.ScheduledAt.Format("2006-01-02") != wantDay.Format("2006-01-02") {
			t.Errorf("slot %d scheduled on %s, want %s", i,
				s.ScheduledAt.Format("2006-01-02"), wantDay.Format("2006-01-02"))
		}
		if s.ScheduledAt.Hour() != postingHours[i] {
			t.Errorf("slot %d scheduled at hour %d, want %d", i, s.ScheduledAt.Hour(), postingHours[i])
		}
		if i > 0 && !slots[i-1].ScheduledAt.Before(s.ScheduledAt) {
			t.Errorf("slots out of schedule order at %d", i)
		}
	}
}

func TestPlanSlots_Deterministic(t *testing.T) {
	weekStart := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	first := PlanSlots(weekStart, 5)
	second := PlanSlots(weekStart, 5)

	for i := range first {
		if !first[i].ScheduledAt.Equal(second[i].ScheduledAt) {
			t.Errorf("slot %d differs between runs: %s vs %s",
				i, first[i].ScheduledAt, second[i].ScheduledAt)
		}
	}
}

func TestPlanSlots_EmptyWeek(t *testing.T) {
	if slots := PlanSlots(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), 0); slots != nil {
		t.Errorf("expected nil for zero posts, got %d slots", len(slots))
	}
}
