package generator

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/vkk1710/RAG-With-Citations/internal/domain"
)

// NoInformationAnswer is returned by Mock when the prompt has no contexts.
const NoInformationAnswer = "The question cannot be answered due to lack of information."

// Mock answers with the opening words of the first context and cites it.
// It is deterministic and needs no model server.
type Mock struct {
	// QuoteWords limits the quote length; 0 means 12 words.
	QuoteWords int
}

func (m Mock) Generate(_ context.Context, messages []domain.Message, _ domain.GenerateOptions) (string, error) {
	var contexts []string
	for _, msg := range messages {
		if msg.Role == "user" {
			contexts = ParseContexts(msg.Content)
		}
	}
	type citation struct {
		SourceID int    `json:"source_id"`
		Quote    string `json:"quote"`
	}
	out := struct {
		Answer    string     `json:"answer"`
		Citations []citation `json:"citations"`
	}{Answer: NoInformationAnswer, Citations: []citation{}}

	if len(contexts) > 0 && strings.TrimSpace(contexts[0]) != "" {
		n := m.QuoteWords
		if n <= 0 {
			n = 12
		}
		words := strings.Fields(contexts[0])
		if len(words) > n {
			words = words[:n]
		}
		quote := strings.Join(words, " ")
		out.Answer = "According to the documentation: " + quote
		out.Citations = append(out.Citations, citation{SourceID: 1, Quote: quote})
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
