package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("Missing file returns defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "tfidf", cfg.Embedder.Type)
		assert.Equal(t, 64, cfg.Chunker.MaxWords)
		assert.Equal(t, 10, cfg.Retrieval.TopK)
		assert.Equal(t, "CDESCR", cfg.Loader.CSVColumn)
		assert.Equal(t, 0.2, cfg.Citation.MaxAbsentRatio)
		assert.Equal(t, 8192, cfg.Generator.MaxPromptChars)
		assert.Empty(t, cfg.Server.DocumentsDir, "Expected HTTP ingest to be off by default")
	})

	t.Run("File values override defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		data := []byte(`
embedder:
  type: hugot
generator:
  type: openai
  model: mistral-7b-instruct
citation:
  max_absent_ratio: 0.1
loader:
  tsb_only: true
vector_store:
  type: qdrant
  qdrant:
    url: http://localhost:6333
    collection: manuals
server:
  documents_dir: /srv/manuals
  max_body_bytes: 65536
`)
		require.NoError(t, os.WriteFile(path, data, 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 0.1, cfg.Citation.MaxAbsentRatio)
		assert.True(t, cfg.Loader.TSBOnly)
		require.NotNil(t, cfg.VectorStore.Qdrant)
		assert.Equal(t, "manuals", cfg.VectorStore.Qdrant.Collection)

		require.NotNil(t, cfg.Embedder.Hugot, "Expected hugot defaults to be filled in")
		assert.Equal(t, "onnx/model.onnx", cfg.Embedder.Hugot.OnnxFile)
		assert.Equal(t, "query: ", cfg.Embedder.QueryPrefix)
		assert.Equal(t, "passage: ", cfg.Embedder.PassagePrefix)

		assert.Equal(t, "mistral-7b-instruct", cfg.Generator.Model)
		assert.Equal(t, "http://localhost:8000/v1", cfg.Generator.BaseURL)
		assert.Equal(t, 3, cfg.Generator.MaxRetries)
		assert.Equal(t, 64, cfg.Chunker.MaxWords, "Expected untouched sections to keep defaults")

		assert.Equal(t, "/srv/manuals", cfg.Server.DocumentsDir)
		assert.Equal(t, int64(65536), cfg.Server.MaxBodyBytes)
		assert.Equal(t, ":8080", cfg.Server.Addr)
	})

	t.Run("Invalid YAML", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("embedder: [::"), 0o644))
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Server.Addr = ":9999"
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", got.Server.Addr)
	assert.Equal(t, cfg.Citation, got.Citation)
}
