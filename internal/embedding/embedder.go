package embedding

import (
	"context"

	"github.com/vkk1710/RAG-With-Citations/internal/domain"
)

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder = domain.Embedder

// Prefixed adds instruction prefixes for models trained with separate query
// and passage prompts, such as the e5 family ("query: ", "passage: ").
type Prefixed struct {
	Embedder
	queryPrefix   string
	passagePrefix string
}

// WithPrefixes wraps e. Without prefixes e is returned unchanged.
func WithPrefixes(e Embedder, queryPrefix, passagePrefix string) Embedder {
	if queryPrefix == "" && passagePrefix == "" {
		return e
	}
	return &Prefixed{Embedder: e, queryPrefix: queryPrefix, passagePrefix: passagePrefix}
}

// Prepare fits the wrapped embedder on the prefixed passages.
func (p *Prefixed) Prepare(ctx context.Context, corpus []string) error {
	prefixed := make([]string, len(corpus))
	for i, c := range corpus {
		prefixed[i] = p.passagePrefix + c
	}
	return p.Embedder.Prepare(ctx, prefixed)
}

// Embed encodes a passage.
func (p *Prefixed) Embed(ctx context.Context, text string) ([]float64, error) {
	return p.Embedder.Embed(ctx, p.passagePrefix+text)
}

// EmbedQuery encodes a search query.
func (p *Prefixed) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	return p.Embedder.Embed(ctx, p.queryPrefix+text)
}

// Query encodes text as a search query when e distinguishes queries.
func Query(ctx context.Context, e Embedder, text string) ([]float64, error) {
	if q, ok := e.(domain.QueryEmbedder); ok {
		return q.EmbedQuery(ctx, text)
	}
	return e.Embed(ctx, text)
}

// IsZero reports whether v has no non-zero component.
func IsZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// ToFloat32 narrows v for stores and caches that keep float32.
func ToFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

// ToFloat64 widens v.
func ToFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
