package service

import (
	"time"

	"github.com/mkaplan/postloom/internal/domain"
)

// postingHours is the fixed per-day posting hour table (UTC). Midweek slots
// lean into commute and lunch windows; weekends post later in the morning.
var postingHours = [7]int{9, 12, 17, 9, 12, 10, 11}

// PlanSlots builds the posting slots for one week. A week offers at most one
// slot per day, so postsPerWeek is capped at 7; slot i lands on day
// i mod min(P,7) at that day's fixed posting hour. Pure and deterministic:
// regenerating a week always yields the same slot times.
// Parameters:
//   - weekStart: first day of the week (date part is used, normalized to UTC).
//   - postsPerWeek: requested post count for the week.
// Returns:
//   - []domain.Slot: min(postsPerWeek, 7) slots in schedule order.
func PlanSlots(weekStart time.Time, postsPerWeek int) []domain.Slot {
	if postsPerWeek <= 0 {
		return nil
	}
	n := postsPerWeek
	if n > 7 {
		n = 7
	}

	day0 := time.Date(weekStart.Year(), weekStart.Month(), weekStart.Day(), 0, 0, 0, 0, time.UTC)

	slots := make([]domain.Slot, n)
	for i := 0; i < n; i++ {
		day := i % n
		slots[i] = domain.Slot{
			Index:       i,
			ScheduledAt: day0.AddDate(0, 0, day).Add(time.Duration(postingHours[day]) * time.Hour),
		}
	}
	return slots
}
