package service

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/mkaplan/postloom/internal/domain"
)

// Heuristic scoring constants. Tuning defaults, not a contract: the
// threshold and penalty magnitudes can move without breaking selection as
// long as the ordering properties hold.
const (
	heuristicBaseline = 6.0

	minTitleLen      = 15   // runes
	minReadableBody  = 200  // runes
	substantialBody  = 800  // runes
	tooLongBody      = 2500 // runes

	penaltyShortBody   = 1.5
	penaltyShortTitle  = 1.0
	penaltyShoutTitle  = 1.5
	penaltyPerRiskFlag = 0.8
	penaltyTooLong     = 1.0

	bonusFollowUp    = 0.5
	bonusSubstantial = 0.5
)

// HeuristicScore computes the deterministic local quality score for a
// candidate: baseline plus signed adjustments, clamped to [0,10]. No
// external calls; this is the floor the selector always has available even
// when the LLM judge is down.
// Parameters:
//   - c: candidate draft to score.
// Returns:
//   - float64: score in [0,10].
func HeuristicScore(c *domain.Candidate) float64 {
	score := heuristicBaseline

	bodyLen := len([]rune(c.Body))
	titleLen := len([]rune(c.Title))

	if bodyLen < minReadableBody {
		score -= penaltyShortBody
	}
	if titleLen < minTitleLen {
		score -= penaltyShortTitle
	}
	if isShouting(c.Title) {
		score -= penaltyShoutTitle
	}
	score -= float64(len(c.RiskFlags)) * penaltyPerRiskFlag
	if strings.TrimSpace(c.FollowUpComment) != "" {
		score += bonusFollowUp
	}
	if bodyLen > substantialBody {
		score += bonusSubstantial
	}
	// A very long body earns both the substantial bonus and this penalty;
	// the net effect is a slight markdown.
	if bodyLen > tooLongBody {
		score -= penaltyTooLong
	}

	return clampScore(score)
}

// isShouting reports whether the title contains letters and all of them are
// upper-case.
func isShouting(title string) bool {
	hasLetter := false
	for _, r := range title {
		if unicode.IsLetter(r) {
			hasLetter = true
			if unicode.IsLower(r) {
				return false
			}
		}
	}
	return hasLetter
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}

// Selection holds the outcome of candidate selection for one slot.
type Selection struct {
	Index   int          // index into the candidate slice
	Overall float64      // combined score the winner was picked on
	Score   domain.Score // persisted score row for the winner
}

// SelectCandidate picks the winning candidate for a slot. Each candidate's
// overall is the mean of its heuristic score and its LLM-judged overall
// when a judge score is present, otherwise the heuristic alone. The winner
// is the maximum; a winner still below minQuality fails the slot with
// ErrBelowThreshold.
// Parameters:
//   - cands: candidate drafts, at least one.
//   - heuristics: heuristic score per candidate, same length as cands.
//   - judged: optional judge score per candidate; nil entries allowed.
//   - minQuality: minimum acceptable overall score.
// Returns:
//   - *Selection: winning candidate with its combined score.
//   - error: ErrBelowThreshold, or a plain error on empty input.
func SelectCandidate(cands []domain.Candidate, heuristics []float64, judged []*domain.Score, minQuality float64) (*Selection, error) {
	if len(cands) == 0 {
		return nil, fmt.Errorf("no candidates to select from")
	}
	if len(heuristics) != len(cands) {
		return nil, fmt.Errorf("heuristics length %d does not match candidates %d", len(heuristics), len(cands))
	}

	best := -1
	bestOverall := -1.0
	for i := range cands {
		overall := heuristics[i]
		if i < len(judged) && judged[i] != nil {
			overall = (heuristics[i] + judged[i].Overall) / 2
		}
		if overall > bestOverall {
			best = i
			bestOverall = overall
		}
	}

	sel := &Selection{Index: best, Overall: clampScore(bestOverall)}
	if i := best; i < len(judged) && judged[i] != nil {
		// Keep the judge's dimension breakdown, overridden with the
		// blended overall the pick was made on.
		sel.Score = *judged[i]
		sel.Score.Overall = sel.Overall
		sel.Score.Rater = domain.RaterLLM
	} else {
		sel.Score = domain.Score{
			Overall: sel.Overall,
			Rater:   domain.RaterHeuristic,
		}
	}

	if sel.Overall < minQuality {
		return sel, fmt.Errorf("%w: best scored %.2f, need %.2f", ErrBelowThreshold, sel.Overall, minQuality)
	}
	return sel, nil
}
