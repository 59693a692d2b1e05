package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/vkk1710/RAG-With-Citations/internal/domain"
)

// Storage is a simple in-memory vector store using brute-force cosine similarity.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	vectors   [][]float64
	chunks    []domain.Chunk
}

func NewStorage() *Storage { return &Storage{} }

// Init sets the dimension. Existing vectors survive only if it is unchanged.
func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != dimension {
		s.vectors = nil
		s.chunks = nil
	}
	s.dimension = dimension
	return nil
}

// Upsert replaces chunks with the same ChunkID and appends new ones.
func (s *Storage) Upsert(_ context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vectors {
		if len(v) != s.dimension {
			return fmt.Errorf("memory: got %d want %d: %w", len(v), s.dimension, domain.ErrDimensionMismatch)
		}
	}
	pos := make(map[string]int, len(s.chunks))
	for i, c := range s.chunks {
		pos[c.ChunkID] = i
	}
	for i, c := range chunks {
		if j, ok := pos[c.ChunkID]; ok {
			s.chunks[j] = c
			s.vectors[j] = vectors[i]
			continue
		}
		pos[c.ChunkID] = len(s.chunks)
		s.chunks = append(s.chunks, c)
		s.vectors = append(s.vectors, vectors[i])
	}
	return nil
}

// Search ranks by dot product; vectors are assumed L2-normalized. Ties keep
// insertion order.
func (s *Storage) Search(_ context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 {
		topK = 5
	}
	if len(s.vectors) > 0 && len(vector) != s.dimension {
		return nil, fmt.Errorf("memory: query has %d want %d: %w", len(vector), s.dimension, domain.ErrDimensionMismatch)
	}
	scores := make([]float64, len(s.vectors))
	for i := range s.vectors {
		scores[i] = dot(s.vectors[i], vector)
	}
	idxs := make([]int, len(scores))
	for i := range idxs {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(a, b int) bool { return scores[idxs[a]] > scores[idxs[b]] })
	if topK > len(idxs) {
		topK = len(idxs)
	}
	results := make([]domain.SearchResult, 0, topK)
	for _, j := range idxs[:topK] {
		results = append(results, domain.SearchResult{Chunk: s.chunks[j], Score: scores[j]})
	}
	return results, nil
}

// DeleteByFile removes every chunk cut from the named files.
func (s *Storage) DeleteByFile(_ context.Context, fileNames []string) error {
	drop := make(map[string]struct{}, len(fileNames))
	for _, f := range fileNames {
		drop[f] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	keptC := s.chunks[:0]
	keptV := s.vectors[:0]
	for i, c := range s.chunks {
		if _, ok := drop[c.FileName]; ok {
			continue
		}
		keptC = append(keptC, c)
		keptV = append(keptV, s.vectors[i])
	}
	s.chunks, s.vectors = keptC, keptV
	return nil
}

func (s *Storage) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = nil
	s.chunks = nil
	return nil
}

// Len returns the number of stored chunks.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

func dot(a, b []float64) float64 {
	n := min(len(a), len(b))
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
