package classifier

import (
	"fmt"
	"strings"

	"github.com/tbourn/go-complaint-triage/internal/domain"
)

// MaxReasoningRunes is the reasoning length the model is asked to respect.
const MaxReasoningRunes = 100

// SystemPrompt is the fixed instruction sent ahead of the complaint text. The
// complaint is always the sole user message.
var SystemPrompt = buildSystemPrompt()

func buildSystemPrompt() string {
	cats := make([]string, len(domain.Categories))
	for i, c := range domain.Categories {
		cats[i] = string(c)
	}
	urgs := make([]string, len(domain.Urgencies))
	for i, u := range domain.Urgencies {
		urgs[i] = string(u)
	}

	var b strings.Builder
	b.WriteString("You are an AI complaint analyzer. Analyze the complaint and return a JSON object with exactly these fields:\n")
	fmt.Fprintf(&b, "- category: one of [%s]\n", strings.Join(cats, ", "))
	fmt.Fprintf(&b, "- urgency: one of [%s]\n", strings.Join(urgs, ", "))
	fmt.Fprintf(&b, "- priority_score: integer from %d-%d (%d being highest priority)\n", domain.MinPriority, domain.MaxPriority, domain.MaxPriority)
	fmt.Fprintf(&b, "- reasoning: brief explanation (max %d chars)\n\n", MaxReasoningRunes)
	b.WriteString("Consider factors like:\n")
	b.WriteString("- Emotional tone (angry = higher urgency)\n")
	b.WriteString("- Impact (financial loss, security issues = higher priority)\n")
	b.WriteString("- Time sensitivity (deadlines, blocked work = higher urgency)\n")
	b.WriteString("- Customer value (repeat issues, major problems = higher priority)\n\n")
	b.WriteString("Respond ONLY with valid JSON, no other text.")
	return b.String()
}
