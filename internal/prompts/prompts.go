package prompts

import (
	"fmt"
	"strings"
)

// ============================================================================
// Shared Lexicons
// ============================================================================

// PromotionalPhrases is the shared lexicon of wording that reads as marketing
// copy. The heuristic scorer penalizes drafts containing these, and the
// generation prompt warns against them.
var PromotionalPhrases = []string{
	"game-changer", "game changing", "revolutionary", "must-have", "best-in-class",
	"cutting-edge", "seamless", "unlock", "supercharge", "10x",
	"limited time", "don't miss out", "act now", "sign up today", "click the link",
}

// HedgingPhrases is the shared lexicon of weak openers that kill a hook.
var HedgingPhrases = []string{
	"i think", "i guess", "maybe", "sort of", "kind of",
	"in my opinion", "honestly,", "to be honest", "not sure but",
}

// ============================================================================
// Generation Prompts
// ============================================================================

// GenerationSystemPrompt defines the role and rules for candidate drafting.
// The model must return a bare JSON array, one object per candidate.
const GenerationSystemPrompt = `You are a social content writer who drafts posts for online communities. You write like a regular member of the community, not like a brand account.

Rules:
1. Write in the persona's voice. Stay consistent with their background and tone.
2. Match the channel's culture. A post that reads fine on one forum gets removed on another.
3. Mention the product at most once, in passing, the way a real user would. Never pitch.
4. No promotional language, no calls to action, no links unless asked.
5. If the brief flags risk concerns, list them honestly in risk_flags instead of hiding them.
6. Every candidate must take a different angle on the topic. Do not produce three rephrasings of one idea.

Output format:
Return ONLY a JSON array, no markdown fences, no commentary. Each element:
{
  "title": "post title, under 120 characters",
  "body": "post body, 60-280 words, plain text with paragraph breaks",
  "topic": "the topic this draft covers",
  "target_queries": ["search query this post should surface for"],
  "risk_flags": ["possible moderation or authenticity concern"],
  "disclosure": "affiliation disclosure line if the brief requires one, else empty",
  "follow_up_comment": "optional first comment to seed discussion, else empty"
}`

// JudgeSystemPrompt defines the role for candidate scoring. The model must
// return a single JSON object with five dimension scores.
const JudgeSystemPrompt = `You are a strict reviewer of community posts. You score drafts on how well they would land with real readers, not on grammar.

Score each dimension from 0 to 10:
- hook: does the title and first line earn the click and the read
- authenticity: does it read like a genuine community member wrote it
- relevance: does it actually address the stated topic and audience
- subtlety: is the product mention natural; 0 means it reads as an ad
- readability: structure, pacing, paragraph length

Be harsh on anything that smells like marketing. A single promotional phrase caps subtlety at 3.

Output format:
Return ONLY a JSON object, no markdown fences, no commentary:
{"hook": 0-10, "authenticity": 0-10, "relevance": 0-10, "subtlety": 0-10, "readability": 0-10, "reasoning": "one or two sentences"}`

// Example is one few-shot reference post injected into the generation prompt.
type Example struct {
	Title           string
	Body            string
	Rating          int
	EngagementScore float64
}

// GenerationBrief carries everything the user prompt needs about one slot.
type Brief struct {
	BrandVoice   string
	PersonaName  string
	PersonaVoice string
	PersonaBio   string
	ChannelName  string
	ChannelRisk  string
	Topic        string
	TopicAngle   string
	Keywords     []string
	Count        int
	Examples     []Example
}

// BuildGenerationUserPrompt assembles the per-slot user prompt, including the
// few-shot block when reference examples are available.
// Parameters:
//   - brief: slot brief with persona, channel, topic, and examples.
// Returns:
//   - string: complete user prompt text.
func BuildGenerationUserPrompt(brief *Brief) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Write %d candidate posts for the brief below.\n\n", brief.Count)
	fmt.Fprintf(&b, "Brand voice: %s\n", brief.BrandVoice)
	fmt.Fprintf(&b, "Persona: %s\n", brief.PersonaName)
	if brief.PersonaVoice != "" {
		fmt.Fprintf(&b, "Persona voice: %s\n", brief.PersonaVoice)
	}
	if brief.PersonaBio != "" {
		fmt.Fprintf(&b, "Persona background: %s\n", brief.PersonaBio)
	}
	fmt.Fprintf(&b, "Channel: %s (risk level: %s)\n", brief.ChannelName, brief.ChannelRisk)
	fmt.Fprintf(&b, "Topic: %s\n", brief.Topic)
	if brief.TopicAngle != "" {
		fmt.Fprintf(&b, "Angle: %s\n", brief.TopicAngle)
	}
	if len(brief.Keywords) > 0 {
		fmt.Fprintf(&b, "Keywords to work in naturally: %s\n", strings.Join(brief.Keywords, ", "))
	}

	if len(brief.Examples) > 0 {
		b.WriteString("\nReference posts that performed well for this project. Match their register, not their content:\n")
		for i, ex := range brief.Examples {
			fmt.Fprintf(&b, "\nExample %d (rating %d/5):\nTitle: %s\n%s\n", i+1, ex.Rating, ex.Title, ex.Body)
		}
	}

	b.WriteString("\nNow write the candidates as a JSON array:")
	return b.String()
}

// BuildJudgeUserPrompt assembles the judge prompt for one candidate.
// Parameters:
//   - channelName: target channel, for culture fit.
//   - topic: the topic the draft is supposed to cover.
//   - title: candidate title.
//   - body: candidate body.
// Returns:
//   - string: complete user prompt text.
func BuildJudgeUserPrompt(channelName, topic, title, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Channel: %s\nTopic: %s\n\n", channelName, topic)
	fmt.Fprintf(&b, "Draft to score:\nTitle: %s\n\n%s\n", title, body)
	b.WriteString("\nScore it as a JSON object:")
	return b.String()
}
