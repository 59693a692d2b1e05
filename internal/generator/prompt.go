// Package generator builds grounded prompts and talks to chat models.
package generator

import (
	"fmt"
	"strings"

	"github.com/vkk1710/RAG-With-Citations/internal/domain"
)

// DefaultMaxPromptChars bounds the prompt when no limit is configured.
const DefaultMaxPromptChars = 8192

// SystemPrompt instructs the model to answer from the numbered contexts
// only and to return verbatim quotes with their context number.
const SystemPrompt = `You are an assistant specializing in the automotive domain. Answer the question using only the numbered contexts provided by the user. If the contexts are insufficient, say that the question cannot be answered due to lack of information.
You must return both an answer and citations. A citation is a VERBATIM quote from one context that justifies the answer, together with the number of that context. Context numbers start at 1. Return a citation for every quote, across all contexts, that justifies the answer.
Reply with a single JSON object and nothing else:
{"answer": "<answer>", "citations": [{"source_id": <context number>, "quote": "<verbatim quote>"}]}`

const historyHeader = "Below are the questions previously asked by the user."

// Prompt is a chat prompt ready for a Generator, with the history that
// survived trimming.
type Prompt struct {
	Messages []domain.Message
	History  []string
}

// Len is the total number of characters across all messages.
func (p Prompt) Len() int {
	n := 0
	for _, m := range p.Messages {
		n += len(m.Content)
	}
	return n
}

// BuildPrompt numbers contexts from 1 and appends previous questions. The
// oldest questions are dropped while the prompt is at or over maxChars.
// Contexts are never trimmed.
func BuildPrompt(question string, contexts, history []string, maxChars int) Prompt {
	if maxChars <= 0 {
		maxChars = DefaultMaxPromptChars
	}
	var ctx strings.Builder
	ctx.WriteString("Contexts:\n")
	for i, c := range contexts {
		fmt.Fprintf(&ctx, "%d. %s\n", i+1, strings.Join(strings.Fields(c), " "))
	}

	kept := append([]string(nil), history...)
	for {
		p := Prompt{
			Messages: []domain.Message{
				{Role: "system", Content: SystemPrompt},
				{Role: "user", Content: userMessage(ctx.String(), question, kept)},
			},
			History: kept,
		}
		if len(kept) == 0 || p.Len() < maxChars {
			if p.History == nil {
				p.History = []string{}
			}
			return p
		}
		kept = kept[1:]
	}
}

func userMessage(contexts, question string, history []string) string {
	var b strings.Builder
	b.WriteString(contexts)
	if len(history) > 0 {
		b.WriteString("\n" + historyHeader + "\n")
		for i, q := range history {
			fmt.Fprintf(&b, "%d. %s\n", i+1, q)
		}
	}
	fmt.Fprintf(&b, "\nQuestion: %s\nAnswer: ", question)
	return b.String()
}

// ParseContexts recovers the numbered contexts from a user message built
// by BuildPrompt.
func ParseContexts(user string) []string {
	body, ok := strings.CutPrefix(user, "Contexts:\n")
	if !ok {
		return nil
	}
	var out []string
	for _, line := range strings.Split(body, "\n") {
		if line == "" {
			break
		}
		num, text, ok := strings.Cut(line, ". ")
		if !ok || num != fmt.Sprint(len(out)+1) {
			break
		}
		out = append(out, text)
	}
	return out
}
