package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type countingEmbedder struct {
	calls int
	dim   int
}

func (c *countingEmbedder) Name() string { return "counting" }
func (c *countingEmbedder) Prepare(context.Context, []string) error {
	c.dim = 2
	return nil
}
func (c *countingEmbedder) Dimension() int { return c.dim }
func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	c.calls++
	return []float64{float64(len(text)), 0.5}, nil
}

func TestLocalLRU(t *testing.T) {
	ctx := context.Background()

	t.Run("Evicts least recently used", func(t *testing.T) {
		l := NewLocalLRU(2)
		require.NoError(t, l.Set(ctx, "a", []float32{1}, time.Minute))
		require.NoError(t, l.Set(ctx, "b", []float32{2}, time.Minute))
		_, ok := l.Get(ctx, "a")
		require.True(t, ok)
		require.NoError(t, l.Set(ctx, "c", []float32{3}, time.Minute))

		_, ok = l.Get(ctx, "b")
		assert.False(t, ok, "Expected b to be evicted")
		_, ok = l.Get(ctx, "a")
		assert.True(t, ok)
		assert.Equal(t, 2, l.Len())
	})

	t.Run("Expired entries are dropped", func(t *testing.T) {
		now := time.Unix(1000, 0)
		l := NewLocalLRU(4)
		l.now = func() time.Time { return now }
		require.NoError(t, l.Set(ctx, "k", []float32{1}, time.Second))
		now = now.Add(2 * time.Second)
		_, ok := l.Get(ctx, "k")
		assert.False(t, ok)
		assert.Equal(t, 0, l.Len())
	})
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	rc, err := NewRedisCache(ctx, mr.Addr())
	require.NoError(t, err)
	defer rc.Close()

	t.Run("Round trips float32 vectors", func(t *testing.T) {
		require.NoError(t, rc.Set(ctx, "emb:x", []float32{0.25, -1.5, 3}, time.Minute))
		v, ok := rc.Get(ctx, "emb:x")
		require.True(t, ok)
		assert.Equal(t, []float32{0.25, -1.5, 3}, v)
		assert.True(t, mr.Exists("emb:x"))
	})

	t.Run("TTL is applied", func(t *testing.T) {
		require.NoError(t, rc.Set(ctx, "emb:ttl", []float32{1}, time.Minute))
		mr.FastForward(2 * time.Minute)
		_, ok := rc.Get(ctx, "emb:ttl")
		assert.False(t, ok)
	})

	t.Run("Corrupt values are misses", func(t *testing.T) {
		require.NoError(t, mr.Set("emb:bad", "abc"))
		_, ok := rc.Get(ctx, "emb:bad")
		assert.False(t, ok)
	})

	t.Run("Unreachable server", func(t *testing.T) {
		_, err := NewRedisCache(ctx, "127.0.0.1:1")
		assert.Error(t, err)
	})

	t.Run("Write errors are returned", func(t *testing.T) {
		mr.SetError("READONLY You can't write against a read only replica")
		defer mr.SetError("")
		err := rc.Set(ctx, "emb:ro", []float32{1}, time.Minute)
		assert.ErrorContains(t, err, "READONLY")
	})
}

func TestEmbedderStoreFailure(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rc, err := NewRedisCache(ctx, mr.Addr())
	require.NoError(t, err)
	defer rc.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	inner := &countingEmbedder{}
	e := Wrap(inner, rc, time.Minute, zap.New(core))
	require.NoError(t, e.Prepare(ctx, []string{"brake pads"}))

	mr.SetError("OOM command not allowed")
	v, err := e.EmbedQuery(ctx, "brakes")
	mr.SetError("")
	require.NoError(t, err, "Expected a cache write failure not to fail the query")
	assert.Equal(t, []float64{6, 0.5}, v)

	entries := logs.FilterMessage("query embedding not cached").All()
	require.Len(t, entries, 1, "Expected the write failure to be logged")
	assert.Contains(t, entries[0].ContextMap()["error"], "OOM")
}

func TestEmbedder(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{}
	e := Wrap(inner, NewLocalLRU(8), time.Minute, zaptest.NewLogger(t))
	require.NoError(t, e.Prepare(ctx, []string{"brake pads"}))

	t.Run("Queries are cached", func(t *testing.T) {
		v1, err := e.EmbedQuery(ctx, "brakes")
		require.NoError(t, err)
		v2, err := e.EmbedQuery(ctx, "brakes")
		require.NoError(t, err)
		assert.Equal(t, v1, v2)
		assert.Equal(t, 1, inner.calls)
	})

	t.Run("Passages pass through", func(t *testing.T) {
		before := inner.calls
		_, err := e.Embed(ctx, "brakes")
		require.NoError(t, err)
		assert.Equal(t, before+1, inner.calls)
	})

	t.Run("Refit on another corpus invalidates", func(t *testing.T) {
		require.NoError(t, e.Prepare(ctx, []string{"tire pressure"}))
		before := inner.calls
		_, err := e.EmbedQuery(ctx, "brakes")
		require.NoError(t, err)
		assert.Equal(t, before+1, inner.calls)
	})

	t.Run("Keys are stable", func(t *testing.T) {
		assert.Equal(t, MakeKey("m", "q"), MakeKey("m", "q"))
		assert.NotEqual(t, MakeKey("m", "q"), MakeKey("m2", "q"))
	})
}
