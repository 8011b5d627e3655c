package service

import (
	"fmt"
	"sort"
	"time"

	"github.com/mkaplan/postloom/internal/domain"
)

// AssignChannels greedily assigns a channel to each slot in slot order.
// Eligibility: channel risk at or below the project's tolerance and weekly
// quota not yet exhausted (usage holds items already committed this week).
// Preference: largest remaining quota; ties go to lower risk, then channel
// ID for determinism. When total remaining capacity is smaller than the
// slot count, the slot list is truncated. Quotas are a hard constraint.
// Parameters:
//   - slots: planned slots in schedule order.
//   - channels: the project's channels.
//   - riskTolerance: maximum acceptable channel risk level.
//   - usage: items already committed this week, keyed by channel ID.
// Returns:
//   - []domain.Slot: slots with ChannelID set, possibly fewer than given.
//   - error: ErrConfig when no channel is eligible at all.
func AssignChannels(slots []domain.Slot, channels []domain.Channel, riskTolerance domain.RiskLevel, usage map[string]int) ([]domain.Slot, error) {
	remaining := make(map[string]int)
	eligible := make([]domain.Channel, 0, len(channels))
	for _, ch := range channels {
		if !ch.Active || ch.RiskLevel > riskTolerance {
			continue
		}
		rem := ch.MaxPostsPerWeek - usage[ch.ID]
		if rem <= 0 {
			continue
		}
		eligible = append(eligible, ch)
		remaining[ch.ID] = rem
	}
	if len(eligible) == 0 {
		return nil, fmt.Errorf("%w: no eligible channels within risk tolerance", ErrConfig)
	}

	// Stable preference order recomputed per slot as quotas drain.
	assigned := make([]domain.Slot, 0, len(slots))
	for _, slot := range slots {
		sort.SliceStable(eligible, func(i, j int) bool {
			ri, rj := remaining[eligible[i].ID], remaining[eligible[j].ID]
			if ri != rj {
				return ri > rj
			}
			if eligible[i].RiskLevel != eligible[j].RiskLevel {
				return eligible[i].RiskLevel < eligible[j].RiskLevel
			}
			return eligible[i].ID < eligible[j].ID
		})

		best := eligible[0]
		if remaining[best.ID] <= 0 {
			// Total capacity exhausted; truncate rather than overfill.
			break
		}
		slot.ChannelID = best.ID
		remaining[best.ID]--
		assigned = append(assigned, slot)
	}
	return assigned, nil
}

// AssignPersonas round-robins personas across slots in schedule order while
// enforcing two rules: no persona on two consecutive slots, and no persona
// on two slots closer together than the spacing threshold. When the naive
// rotation pick violates a rule, the next eligible persona in rotation
// order is swapped in. Spacing degrades to adjacency-only when the week is
// too dense for any persona to satisfy both rules.
// Parameters:
//   - slots: channel-assigned slots in schedule order.
//   - personas: the project's active personas.
//   - minSpacing: minimum gap between two slots sharing a persona.
// Returns:
//   - []domain.Slot: slots with PersonaID set.
//   - error: ErrConfig when fewer than two personas are available.
func AssignPersonas(slots []domain.Slot, personas []domain.Persona, minSpacing time.Duration) ([]domain.Slot, error) {
	active := make([]domain.Persona, 0, len(personas))
	for _, p := range personas {
		if p.Active {
			active = append(active, p)
		}
	}
	if len(active) < 2 {
		return nil, fmt.Errorf("%w: persona rotation needs at least 2 active personas, have %d", ErrConfig, len(active))
	}

	lastAt := make(map[string]time.Time)
	out := make([]domain.Slot, len(slots))
	copy(out, slots)

	for i := range out {
		base := i % len(active)
		picked := -1

		// First pass honors both rules; second pass relaxes spacing.
		for pass := 0; pass < 2 && picked == -1; pass++ {
			for off := 0; off < len(active); off++ {
				cand := active[(base+off)%len(active)]
				if i > 0 && out[i-1].PersonaID == cand.ID {
					continue
				}
				if pass == 0 {
					if at, ok := lastAt[cand.ID]; ok && out[i].ScheduledAt.Sub(at) < minSpacing {
						continue
					}
				}
				picked = (base + off) % len(active)
				break
			}
		}

		p := active[picked]
		out[i].PersonaID = p.ID
		lastAt[p.ID] = out[i].ScheduledAt
	}
	return out, nil
}
