package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkk1710/RAG-With-Citations/internal/domain"
)

func chunk(id, file string, loc int) domain.Chunk {
	return domain.Chunk{ChunkID: id, FileName: file, Location: loc, Text: id}
}

func TestStorage(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx,
		[]domain.Chunk{chunk("a", "manual.pdf", 1), chunk("b", "manual.pdf", 2), chunk("c", "complaints.csv", 0)},
		[][]float64{{1, 0}, {0.6, 0.8}, {0, 1}},
	))

	t.Run("Search ranks by similarity", func(t *testing.T) {
		res, err := s.Search(ctx, []float64{1, 0}, 2)
		require.NoError(t, err)
		require.Len(t, res, 2)
		assert.Equal(t, "a", res[0].Chunk.ChunkID)
		assert.Equal(t, "b", res[1].Chunk.ChunkID)
		assert.InDelta(t, 0.6, res[1].Score, 1e-9)
	})

	t.Run("Ties keep insertion order", func(t *testing.T) {
		res, err := s.Search(ctx, []float64{0, 0}, 3)
		require.NoError(t, err)
		assert.Equal(t, "a", res[0].Chunk.ChunkID)
		assert.Equal(t, "c", res[2].Chunk.ChunkID)
	})

	t.Run("Dimension mismatch", func(t *testing.T) {
		err := s.Upsert(ctx, []domain.Chunk{chunk("d", "x", 1)}, [][]float64{{1, 2, 3}})
		assert.True(t, errors.Is(err, domain.ErrDimensionMismatch))
		_, err = s.Search(ctx, []float64{1}, 1)
		assert.True(t, errors.Is(err, domain.ErrDimensionMismatch))
	})

	t.Run("Upsert replaces by chunk id", func(t *testing.T) {
		require.NoError(t, s.Upsert(ctx, []domain.Chunk{chunk("c", "complaints.csv", 5)}, [][]float64{{0, 1}}))
		assert.Equal(t, 3, s.Len())
		res, err := s.Search(ctx, []float64{0, 1}, 1)
		require.NoError(t, err)
		assert.Equal(t, 5, res[0].Chunk.Location)
	})

	t.Run("Delete by file", func(t *testing.T) {
		require.NoError(t, s.DeleteByFile(ctx, []string{"manual.pdf"}))
		assert.Equal(t, 1, s.Len())
		res, err := s.Search(ctx, []float64{1, 0}, 5)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, "complaints.csv", res[0].Chunk.FileName)
	})

	t.Run("Init with a new dimension resets", func(t *testing.T) {
		require.NoError(t, s.Init(ctx, 3))
		assert.Equal(t, 0, s.Len())
		assert.Error(t, s.Init(ctx, 0))
	})

	t.Run("Clear", func(t *testing.T) {
		require.NoError(t, s.Clear(ctx))
		res, err := s.Search(ctx, []float64{1, 0, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, res)
	})
}
