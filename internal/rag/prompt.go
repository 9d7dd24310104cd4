package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fitcoach/fitcoach/internal/conversation"
)

// SystemPrompt is the coaching persona sent with every generation, with or
// without retrieved context.
const SystemPrompt = `You are an experienced fitness coach. You give practical, safe advice on strength training, cardio, nutrition and recovery.

Guidelines:
- Ground your answers in the reference material when it is provided.
- If the reference material does not cover the question, say so and answer from general coaching knowledge.
- Tailor advice to the user's situation as described in the conversation.
- Recommend consulting a physician for medical concerns or pain.
- Be concise and concrete: sets, reps, loads and progressions over platitudes.`

// DefaultHistoryBudget caps the characters of conversation history included
// in a prompt. Roughly 2000 tokens on top of the passages and query.
const DefaultHistoryBudget = 4000

// Passage is a retrieved knowledge chunk ready for prompt assembly.
type Passage struct {
	Source     string  `json:"source"`
	Text       string  `json:"text"`
	Similarity float64 `json:"similarity"`
}

// Composer assembles generation prompts from retrieved passages and
// conversation history. Assembly is deterministic: identical inputs yield an
// identical prompt string.
type Composer struct {
	historyBudget int
}

// NewComposer creates a Composer. A non-positive budget falls back to
// DefaultHistoryBudget.
func NewComposer(historyBudget int) *Composer {
	if historyBudget <= 0 {
		historyBudget = DefaultHistoryBudget
	}
	return &Composer{historyBudget: historyBudget}
}

// Compose builds the user-side prompt: labeled reference passages first,
// then the truncated history, then the current question. Sections with no
// content are omitted entirely.
func (c *Composer) Compose(query string, passages []Passage, history []conversation.Message) string {
	var sb strings.Builder

	if len(passages) > 0 {
		sb.WriteString("Reference material:\n\n")
		for i, p := range passages {
			fmt.Fprintf(&sb, "[%d] (source: %s)\n%s\n\n", i+1, p.Source, p.Text)
		}
	}

	if kept := TruncateHistory(history, c.historyBudget); len(kept) > 0 {
		sb.WriteString("Conversation so far:\n\n")
		for _, msg := range kept {
			label := "User"
			if msg.Role == conversation.RoleAssistant {
				label = "Coach"
			}
			fmt.Fprintf(&sb, "%s: %s\n", label, msg.Content)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Question: ")
	sb.WriteString(query)
	return sb.String()
}

// TruncateHistory drops the oldest messages until the rest fit the
// character budget. Messages are kept whole, never cut mid-text, and the
// returned slice stays in chronological order.
func TruncateHistory(history []conversation.Message, budget int) []conversation.Message {
	if len(history) == 0 {
		return nil
	}

	total := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		size := utf8.RuneCountInString(history[i].Content)
		if total+size > budget {
			break
		}
		total += size
		start = i
	}
	if start == len(history) {
		return nil
	}
	return history[start:]
}
