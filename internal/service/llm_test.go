package service

import (
	"context"
	"strings"
	"testing"

	"github.com/mkaplan/postloom/internal/domain"
)

func TestExtractJSONArray(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{
			name:    "bare array",
			content: `[{"title":"a"}]`,
			want:    `[{"title":"a"}]`,
		},
		{
			name:    "markdown fence",
			content: "Here are the candidates:\n```json\n[{\"title\":\"a\"}]\n```\nLet me know!",
			want:    `[{"title":"a"}]`,
		},
		{
			name:    "brackets inside string literals",
			content: `[{"title":"use [brackets] and \"quotes\" freely"}]`,
			want:    `[{"title":"use [brackets] and \"quotes\" freely"}]`,
		},
		{
			name:    "nested arrays",
			content: `prose [{"target_queries":["a","b"]}] trailing`,
			want:    `[{"target_queries":["a","b"]}]`,
		},
		{
			name:    "no array at all",
			content: "I cannot produce that output.",
			wantErr: true,
		},
		{
			name:    "unterminated array",
			content: `[{"title":"a"`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSONArray(tt.content)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractJSONObject(t *testing.T) {
	content := "The scores:\n{\"hook\": 7, \"reasoning\": \"solid {opener}\"}\nDone."
	got, err := extractJSONObject(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `{"hook": 7, "reasoning": "solid {opener}"}` {
		t.Errorf("got %q", got)
	}
}

func TestValidateAndFixCandidate(t *testing.T) {
	t.Run("empty body is unusable", func(t *testing.T) {
		c := &domain.Candidate{Title: "title", Body: "   "}
		if got := validateAndFixCandidate(c, "topic"); got != nil {
			t.Error("expected nil for empty body")
		}
	})

	t.Run("title derived from body", func(t *testing.T) {
		c := &domain.Candidate{Body: "First line of the post\nAnd the rest of it."}
		got := validateAndFixCandidate(c, "topic")
		if got == nil {
			t.Fatal("expected usable candidate")
		}
		if got.Title != "First line of the post" {
			t.Errorf("derived title %q", got.Title)
		}
	})

	t.Run("overlong fields clamped", func(t *testing.T) {
		c := &domain.Candidate{
			Title:         strings.Repeat("t", 500),
			Body:          strings.Repeat("b", 5000),
			TargetQueries: []string{"1", "2", "3", "4", "5", "6", "7"},
			RiskFlags:     []string{"1", "2", "3", "4", "5", "6", "7"},
		}
		got := validateAndFixCandidate(c, "topic")
		if got == nil {
			t.Fatal("expected usable candidate")
		}
		if len([]rune(got.Title)) != maxTitleRunes {
			t.Errorf("title length %d, want %d", len([]rune(got.Title)), maxTitleRunes)
		}
		if len([]rune(got.Body)) != maxBodyRunes {
			t.Errorf("body length %d, want %d", len([]rune(got.Body)), maxBodyRunes)
		}
		if len(got.TargetQueries) != maxListItems || len(got.RiskFlags) != maxListItems {
			t.Errorf("lists not clamped: %d queries, %d flags", len(got.TargetQueries), len(got.RiskFlags))
		}
	})

	t.Run("fallback topic applied", func(t *testing.T) {
		c := &domain.Candidate{Title: "title", Body: "body text"}
		got := validateAndFixCandidate(c, "mechanical keyboards")
		if got.Topic != "mechanical keyboards" {
			t.Errorf("topic %q", got.Topic)
		}
	})

	t.Run("promotional wording flagged once", func(t *testing.T) {
		c := &domain.Candidate{
			Title: "This tool is a game-changer",
			Body:  "Seriously, a game-changer. Best-in-class even.",
		}
		got := validateAndFixCandidate(c, "topic")
		found := 0
		for _, f := range got.RiskFlags {
			if f == "promotional language" {
				found++
			}
		}
		if found != 1 {
			t.Errorf("expected exactly one promotional flag, got %d", found)
		}

		// Re-validating must not stack a duplicate flag.
		got = validateAndFixCandidate(got, "topic")
		found = 0
		for _, f := range got.RiskFlags {
			if f == "promotional language" {
				found++
			}
		}
		if found != 1 {
			t.Errorf("flag duplicated on re-validation, got %d", found)
		}
	})
}

func TestJudgeCandidate_Disabled(t *testing.T) {
	svc := NewLLMService(&LLMConfig{Model: "test-model", JudgeEnabled: false})

	score, err := svc.JudgeCandidate(context.Background(), "r/test", &domain.Candidate{
		Title: "title", Body: "body", Topic: "topic",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != nil {
		t.Error("disabled judge should return a nil score")
	}
}

func TestNewLLMService_Defaults(t *testing.T) {
	svc := NewLLMService(&LLMConfig{Model: "gen-model", APIKey: "key"})

	if svc.judgeModel != "gen-model" {
		t.Errorf("judge model should default to the generation model, got %q", svc.judgeModel)
	}
	if !strings.HasPrefix(svc.endpoint, "https://api.openai.com/v1") {
		t.Errorf("endpoint should default to the OpenAI base URL, got %q", svc.endpoint)
	}
}
