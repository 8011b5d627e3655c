package service

import (
	"errors"
	"strings"
	"testing"

	"github.com/mkaplan/postloom/internal/domain"
)

func candidateWithBody(n int) *domain.Candidate {
	return &domain.Candidate{
		Title: "A reasonable title for a post",
		Body:  strings.Repeat("b", n),
	}
}

func TestHeuristicScore_BodyLength(t *testing.T) {
	short := HeuristicScore(candidateWithBody(50))
	readable := HeuristicScore(candidateWithBody(400))
	substantial := HeuristicScore(candidateWithBody(1200))
	excessive := HeuristicScore(candidateWithBody(3000))

	if short >= readable {
		t.Errorf("short body %.2f should score below readable body %.2f", short, readable)
	}
	if substantial <= readable {
		t.Errorf("substantial body %.2f should score above readable body %.2f", substantial, readable)
	}
	if excessive >= substantial {
		t.Errorf("excessive body %.2f should score below substantial body %.2f", excessive, substantial)
	}
}

func TestHeuristicScore_TitleSignals(t *testing.T) {
	base := candidateWithBody(400)

	shortTitle := *base
	shortTitle.Title = "Hm"
	if got := HeuristicScore(&shortTitle); got >= HeuristicScore(base) {
		t.Errorf("short title %.2f should score below normal title %.2f", got, HeuristicScore(base))
	}

	shouting := *base
	shouting.Title = "YOU WILL NOT BELIEVE THIS"
	if got := HeuristicScore(&shouting); got >= HeuristicScore(base) {
		t.Errorf("shouting title %.2f should score below normal title %.2f", got, HeuristicScore(base))
	}
}

func TestHeuristicScore_RiskFlags(t *testing.T) {
	clean := candidateWithBody(400)
	flagged := *clean
	flagged.RiskFlags = []string{"promotional language", "unverifiable claim"}

	diff := HeuristicScore(clean) - HeuristicScore(&flagged)
	if diff < 1.59 || diff > 1.61 {
		t.Errorf("two risk flags should cost 1.6 points, cost %.2f", diff)
	}
}

func TestHeuristicScore_FollowUpBonus(t *testing.T) {
	plain := candidateWithBody(400)
	withFollowUp := *plain
	withFollowUp.FollowUpComment = "Happy to share more details if anyone is curious."

	diff := HeuristicScore(&withFollowUp) - HeuristicScore(plain)
	if diff < 0.49 || diff > 0.51 {
		t.Errorf("follow-up comment should add 0.5 points, added %.2f", diff)
	}
}

func TestHeuristicScore_ClampsToRange(t *testing.T) {
	worst := &domain.Candidate{
		Title: "HI",
		Body:  "tiny",
		RiskFlags: []string{
			"a", "b", "c", "d", "e", "f", "g",
		},
	}
	if got := HeuristicScore(worst); got != 0 {
		t.Errorf("worst case should clamp to 0, got %.2f", got)
	}

	best := candidateWithBody(1200)
	best.FollowUpComment = "follow up"
	if got := HeuristicScore(best); got < 0 || got > 10 {
		t.Errorf("score %.2f outside [0,10]", got)
	}
}

func TestIsShouting(t *testing.T) {
	tests := []struct {
		title string
		want  bool
	}{
		{"ALL CAPS TITLE", true},
		{"Mixed Case Title", false},
		{"lowercase title", false},
		{"12345 !!!", false}, // no letters at all
		{"CAPS WITH 123", true},
	}
	for _, tt := range tests {
		if got := isShouting(tt.title); got != tt.want {
			t.Errorf("isShouting(%q) = %v, want %v", tt.title, got, tt.want)
		}
	}
}

func TestSelectCandidate_BlendsJudgeScores(t *testing.T) {
	cands := []domain.Candidate{
		{Title: "first", Body: "body"},
		{Title: "second", Body: "body"},
	}
	heuristics := []float64{6.0, 5.0}
	judged := []*domain.Score{
		nil,
		{Hook: 9, Authenticity: 9, Relevance: 9, Subtlety: 9, Readability: 9, Overall: 9, Rater: domain.RaterLLM},
	}

	// Candidate 0: 6.0 heuristic only. Candidate 1: (5.0+9.0)/2 = 7.0.
	sel, err := SelectCandidate(cands, heuristics, judged, 6.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sel.Index != 1 {
		t.Errorf("expected candidate 1 to win, got %d", sel.Index)
	}
	if sel.Overall != 7.0 {
		t.Errorf("expected blended overall 7.0, got %.2f", sel.Overall)
	}
	if sel.Score.Rater != domain.RaterLLM {
		t.Errorf("winner with judge score should keep rater llm, got %s", sel.Score.Rater)
	}
	if sel.Score.Hook != 9 {
		t.Errorf("judge dimension breakdown should survive, hook = %.2f", sel.Score.Hook)
	}
	if sel.Score.Overall != 7.0 {
		t.Errorf("persisted overall should be the blended value, got %.2f", sel.Score.Overall)
	}
}

func TestSelectCandidate_HeuristicOnly(t *testing.T) {
	cands := []domain.Candidate{{Title: "only", Body: "body"}}

	sel, err := SelectCandidate(cands, []float64{6.5}, []*domain.Score{nil}, 6.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sel.Score.Rater != domain.RaterHeuristic {
		t.Errorf("expected heuristic rater, got %s", sel.Score.Rater)
	}
	if sel.Overall != 6.5 {
		t.Errorf("expected overall 6.5, got %.2f", sel.Overall)
	}
}

func TestSelectCandidate_BelowThreshold(t *testing.T) {
	cands := []domain.Candidate{{Title: "weak", Body: "body"}}

	sel, err := SelectCandidate(cands, []float64{3.0}, []*domain.Score{nil}, 6.0)
	if !errors.Is(err, ErrBelowThreshold) {
		t.Fatalf("expected ErrBelowThreshold, got %v", err)
	}
	// The selection is still returned so callers can log the losing score.
	if sel == nil || sel.Overall != 3.0 {
		t.Errorf("expected selection with overall 3.0 alongside the error")
	}
}

func TestSelectCandidate_EmptyInput(t *testing.T) {
	if _, err := SelectCandidate(nil, nil, nil, 6.0); err == nil {
		t.Fatal("expected error for empty candidate list")
	}
}
