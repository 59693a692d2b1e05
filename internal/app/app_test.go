package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/vkk1710/RAG-With-Citations/internal/config"
	"github.com/vkk1710/RAG-With-Citations/internal/service"
)

func TestBuild(t *testing.T) {
	ctx := context.Background()

	t.Run("Default config answers offline", func(t *testing.T) {
		cfg := config.Default()
		cfg.Render.OutputDir = t.TempDir()
		a, err := Build(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		defer a.Close()

		doc := filepath.Join(t.TempDir(), "manual.txt")
		require.NoError(t, os.WriteFile(doc, []byte("Bleed the brake lines after replacing the master cylinder."), 0o644))
		_, err = a.Service.Ingest(ctx, []string{doc})
		require.NoError(t, err)
		resp, err := a.Service.Chat(ctx, service.ChatRequest{Query: "bleed brake lines"})
		require.NoError(t, err)
		assert.Len(t, resp.Cited, 1)
	})

	t.Run("Redis cache", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := config.Default()
		cfg.Cache.Type = "redis"
		cfg.Cache.RedisAddr = mr.Addr()
		a, err := Build(ctx, cfg, nil)
		require.NoError(t, err)
		assert.NoError(t, a.Close())
	})

	t.Run("Unknown components fail", func(t *testing.T) {
		for name, mutate := range map[string]func(*config.AppConfig){
			"embedder":  func(c *config.AppConfig) { c.Embedder.Type = "word2vec" },
			"store":     func(c *config.AppConfig) { c.VectorStore.Type = "faiss" },
			"generator": func(c *config.AppConfig) { c.Generator.Type = "llamacpp" },
			"reranker":  func(c *config.AppConfig) { c.Retrieval.Reranker = "colbert" },
			"chunker":   func(c *config.AppConfig) { c.Chunker.Type = "semantic" },
			"cache":     func(c *config.AppConfig) { c.Cache.Type = "memcached" },
			"openai":    func(c *config.AppConfig) { c.Embedder.Type = "openai" },
		} {
			t.Run(name, func(t *testing.T) {
				cfg := config.Default()
				mutate(cfg)
				_, err := Build(ctx, cfg, nil)
				assert.Error(t, err)
			})
		}
	})

	t.Run("Pgvector needs a dsn", func(t *testing.T) {
		t.Setenv("RAG_TEST_DSN", "")
		cfg := config.Default()
		cfg.VectorStore.Type = "pgvector"
		cfg.VectorStore.PGVector = &config.PGVectorConfig{DSNEnv: "RAG_TEST_DSN"}
		_, err := Build(ctx, cfg, nil)
		assert.ErrorContains(t, err, "RAG_TEST_DSN")
	})

	t.Run("Openai generator against a local server", func(t *testing.T) {
		cfg := config.Default()
		cfg.Generator = config.GeneratorConfig{Type: "openai", BaseURL: "http://localhost:8000/v1", Model: "llama-3-8b"}
		a, err := Build(ctx, cfg, nil)
		require.NoError(t, err)
		assert.NotNil(t, a.Service)
	})
}
