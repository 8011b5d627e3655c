package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mkaplan/postloom/internal/domain"
	"github.com/mkaplan/postloom/internal/prompts"
)

const (
	maxTitleRunes = 120
	maxBodyRunes  = 3000
	maxListItems  = 5
)

// LLMConfig holds configuration for the generation and judge models.
type LLMConfig struct {
	Model          string
	APIKey         string
	BaseURL        string
	JudgeEnabled   bool
	JudgeModel     string
	RequestTimeout time.Duration
}

// LLMService talks to an OpenAI-compatible chat-completions endpoint for
// candidate drafting and, optionally, candidate judging.
type LLMService struct {
	client       *resty.Client
	model        string
	judgeModel   string
	judgeEnabled bool
	endpoint     string
}

// NewLLMService creates a new LLM service.
// Parameters:
//   - cfg: LLM configuration including model names and API key.
// Returns:
//   - *LLMService: initialized client wrapper.
func NewLLMService(cfg *LLMConfig) *LLMService {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client.SetTimeout(timeout)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	judgeModel := cfg.JudgeModel
	if judgeModel == "" {
		judgeModel = cfg.Model
	}

	return &LLMService{
		client:       client,
		model:        cfg.Model,
		judgeModel:   judgeModel,
		judgeEnabled: cfg.JudgeEnabled,
		endpoint:     baseURL + "/chat/completions",
	}
}

// GetModel returns the generation model name being used.
func (s *LLMService) GetModel() string {
	return s.model
}

// JudgeEnabled reports whether LLM judging is configured.
func (s *LLMService) JudgeEnabled() bool {
	return s.judgeEnabled
}

// OpenAI-compatible Chat Completion API request/response structures
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float32       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// GenerateCandidates requests n candidate drafts for one slot brief.
// The response is parsed with bracket-matching extraction so surrounding
// prose or markdown fences from the model do not break decoding; each
// candidate is validated and clamped before it is returned.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - brief: slot brief with persona, channel, topic, and few-shot examples.
//   - n: requested candidate count.
// Returns:
//   - []domain.Candidate: 1..n validated candidates.
//   - error: non-nil if the API call fails or yields no usable candidate.
func (s *LLMService) GenerateCandidates(ctx context.Context, brief *prompts.Brief, n int) ([]domain.Candidate, error) {
	if n <= 0 {
		n = 1
	}
	brief.Count = n

	req := chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: prompts.GenerationSystemPrompt},
			{Role: "user", Content: prompts.BuildGenerationUserPrompt(brief)},
		},
		MaxTokens:   700 * n,
		Temperature: 0.9,
	}

	content, err := s.complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("generation request: %w", err)
	}

	jsonStr, err := extractJSONArray(content)
	if err != nil {
		return nil, fmt.Errorf("generation response: %w", err)
	}

	var cands []domain.Candidate
	if err := json.Unmarshal([]byte(jsonStr), &cands); err != nil {
		return nil, fmt.Errorf("parse candidates: %w", err)
	}

	valid := make([]domain.Candidate, 0, len(cands))
	for i := range cands {
		c := validateAndFixCandidate(&cands[i], brief.Topic)
		if c != nil {
			valid = append(valid, *c)
		}
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("no usable candidates in response")
	}
	if len(valid) > n {
		valid = valid[:n]
	}
	return valid, nil
}

// JudgeCandidate scores one candidate with the judge model. Judging is
// best effort: when disabled or on any failure the caller proceeds with
// the heuristic score alone.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - channelName: target channel name for culture fit.
//   - c: candidate to score.
// Returns:
//   - *domain.Score: judged dimensions, nil when judging is disabled.
//   - error: non-nil if the API call or parsing fails.
func (s *LLMService) JudgeCandidate(ctx context.Context, channelName string, c *domain.Candidate) (*domain.Score, error) {
	if !s.judgeEnabled {
		return nil, nil
	}

	req := chatRequest{
		Model: s.judgeModel,
		Messages: []chatMessage{
			{Role: "system", Content: prompts.JudgeSystemPrompt},
			{Role: "user", Content: prompts.BuildJudgeUserPrompt(channelName, c.Topic, c.Title, c.Body)},
		},
		MaxTokens:   300,
		Temperature: 0.2,
	}

	content, err := s.complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("judge request: %w", err)
	}

	jsonStr, err := extractJSONObject(content)
	if err != nil {
		return nil, fmt.Errorf("judge response: %w", err)
	}

	var raw struct {
		Hook         float64 `json:"hook"`
		Authenticity float64 `json:"authenticity"`
		Relevance    float64 `json:"relevance"`
		Subtlety     float64 `json:"subtlety"`
		Readability  float64 `json:"readability"`
		Reasoning    string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("parse judge score: %w", err)
	}

	score := &domain.Score{
		Hook:         clampScore(raw.Hook),
		Authenticity: clampScore(raw.Authenticity),
		Relevance:    clampScore(raw.Relevance),
		Subtlety:     clampScore(raw.Subtlety),
		Readability:  clampScore(raw.Readability),
		Rater:        domain.RaterLLM,
		Reasoning:    raw.Reasoning,
	}
	score.Overall = clampScore((score.Hook + score.Authenticity + score.Relevance + score.Subtlety + score.Readability) / 5)
	return score, nil
}

// complete sends one chat request and returns the first choice's content.
func (s *LLMService) complete(ctx context.Context, req chatRequest) (string, error) {
	var resp chatResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(s.endpoint)

	if err != nil {
		return "", fmt.Errorf("failed to call LLM API: %w", err)
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		errorMsg := fmt.Sprintf("HTTP %d", httpResp.StatusCode())
		if resp.Error != nil {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), resp.Error.Message)
		} else if len(httpResp.Body()) > 0 {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
		}
		return "", fmt.Errorf("LLM API returned error: %s", errorMsg)
	}

	if resp.Error != nil {
		return "", fmt.Errorf("LLM API error: %s", resp.Error.Message)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("no choices in response (status %d)", httpResp.StatusCode())
	}

	return resp.Choices[0].Message.Content, nil
}

// extractJSONArray finds the first top-level JSON array in content by
// bracket matching, skipping string literals.
func extractJSONArray(content string) (string, error) {
	return extractBalanced(content, '[', ']')
}

// extractJSONObject finds the first top-level JSON object in content by
// brace matching, skipping string literals.
func extractJSONObject(content string) (string, error) {
	return extractBalanced(content, '{', '}')
}

func extractBalanced(content string, open, close byte) (string, error) {
	start := strings.IndexByte(content, open)
	if start == -1 {
		return "", fmt.Errorf("no JSON found in response")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		ch := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return content[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("incomplete JSON in response")
}

// validateAndFixCandidate clamps a decoded candidate into shape. Returns
// nil when the candidate is unusable (empty body).
func validateAndFixCandidate(c *domain.Candidate, fallbackTopic string) *domain.Candidate {
	c.Title = strings.TrimSpace(c.Title)
	c.Body = strings.TrimSpace(c.Body)

	if c.Body == "" {
		return nil
	}
	if c.Title == "" {
		// Derive a title from the first line of the body.
		line := c.Body
		if idx := strings.IndexByte(line, '\n'); idx != -1 {
			line = line[:idx]
		}
		c.Title = strings.TrimSpace(line)
	}

	if r := []rune(c.Title); len(r) > maxTitleRunes {
		c.Title = string(r[:maxTitleRunes])
	}
	if r := []rune(c.Body); len(r) > maxBodyRunes {
		c.Body = string(r[:maxBodyRunes])
	}
	if c.Topic == "" {
		c.Topic = fallbackTopic
	}
	if len(c.TargetQueries) > maxListItems {
		c.TargetQueries = c.TargetQueries[:maxListItems]
	}
	if len(c.RiskFlags) > maxListItems {
		c.RiskFlags = c.RiskFlags[:maxListItems]
	}

	// Flag promotional wording the model slipped in; the heuristic scorer
	// penalizes per flag.
	lower := strings.ToLower(c.Title + " " + c.Body)
	for _, phrase := range prompts.PromotionalPhrases {
		if strings.Contains(lower, phrase) {
			c.RiskFlags = appendUnique(c.RiskFlags, "promotional language")
			break
		}
	}

	return c
}

func appendUnique(list []string, v string) []string {
	for _, item := range list {
		if item == v {
			return list
		}
	}
	return append(list, v)
}
