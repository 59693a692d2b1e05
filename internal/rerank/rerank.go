// Package rerank reorders retrieval candidates before they are shown to the
// model. The returned order defines the source ids the model cites.
package rerank

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/vkk1710/RAG-With-Citations/internal/domain"
)

var unicodeWordRe = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`)

// New returns the reranker named kind.
func New(kind string) (domain.Reranker, error) {
	switch kind {
	case "", "none":
		return None{}, nil
	case "lexical":
		return Lexical{}, nil
	default:
		return nil, fmt.Errorf("unknown reranker: %s", kind)
	}
}

// None keeps the retrieval order.
type None struct{}

func (None) Rank(_ context.Context, _ string, results []domain.SearchResult, topK int) ([]domain.SearchResult, error) {
	return truncate(results, topK), nil
}

// Lexical orders candidates by the Ochiai coefficient between query and
// passage tokens. Ties keep the retrieval order.
type Lexical struct{}

func (Lexical) Rank(_ context.Context, query string, results []domain.SearchResult, topK int) ([]domain.SearchResult, error) {
	qset := TokenSet(query)
	type scored struct {
		r     domain.SearchResult
		score float64
	}
	items := make([]scored, len(results))
	for i, r := range results {
		items[i] = scored{r: r, score: Ochiai(qset, r.Chunk.Text)}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].score > items[j].score })
	out := make([]domain.SearchResult, len(items))
	for i, it := range items {
		out[i] = it.r
	}
	return truncate(out, topK), nil
}

// LexicalSearch ranks chunks by token overlap alone. It is the fallback
// when a query embeds to the zero vector.
func LexicalSearch(query string, chunks []domain.Chunk, topK int) []domain.SearchResult {
	qset := TokenSet(query)
	out := make([]domain.SearchResult, len(chunks))
	for i, ch := range chunks {
		out[i] = domain.SearchResult{Chunk: ch, Score: Ochiai(qset, ch.Text)}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK <= 0 {
		topK = 5
	}
	return truncate(out, topK)
}

func truncate(rs []domain.SearchResult, topK int) []domain.SearchResult {
	if topK > 0 && topK < len(rs) {
		return rs[:topK]
	}
	return rs
}

// TokenSet lowercases s and returns its distinct word tokens.
func TokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// Ochiai returns |A∩B| / sqrt(|A||B|) for the query set and text tokens.
func Ochiai(qset map[string]struct{}, text string) float64 {
	tset := TokenSet(text)
	if len(qset) == 0 || len(tset) == 0 {
		return 0
	}
	inter := 0
	for t := range tset {
		if _, ok := qset[t]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(qset))*float64(len(tset)))
}
