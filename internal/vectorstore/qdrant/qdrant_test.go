package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkk1710/RAG-With-Citations/internal/domain"
)

type recorded struct {
	method string
	path   string
	body   map[string]any
	apiKey string
}

func fakeQdrant(t *testing.T, exists bool) (*httptest.Server, *[]recorded) {
	t.Helper()
	var mu sync.Mutex
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.Path, apiKey: r.Header.Get("api-key")}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.body)
		}
		mu.Lock()
		calls = append(calls, rec)
		mu.Unlock()

		switch {
		case r.Method == http.MethodGet && !exists:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":{"error":"Not found"}}`))
		case r.URL.Path == "/collections/manuals/points/search":
			_, _ = w.Write([]byte(`{"result":[{"id":"x","score":0.91,"payload":{"document_id":"d1","chunk_id":"d1:3","file_name":"manual.pdf","page":7,"index":3,"text":"Replace the pad.","metadata":{"tsb":"TSB 21-001"}}}]}`))
		default:
			_, _ = w.Write([]byte(`{"result":true,"status":"ok"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestStorage(t *testing.T) {
	ctx := context.Background()

	t.Run("Init creates a missing collection", func(t *testing.T) {
		srv, calls := fakeQdrant(t, false)
		s := NewStorage(Config{URL: srv.URL + "/", APIKey: "secret", Collection: "manuals"})
		require.NoError(t, s.Init(ctx, 384))
		require.Len(t, *calls, 2)
		put := (*calls)[1]
		assert.Equal(t, http.MethodPut, put.method)
		assert.Equal(t, "/collections/manuals", put.path)
		assert.Equal(t, "secret", put.apiKey)
		vectors := put.body["vectors"].(map[string]any)
		assert.Equal(t, float64(384), vectors["size"])
		assert.Equal(t, "Cosine", vectors["distance"])
	})

	t.Run("Init keeps an existing collection", func(t *testing.T) {
		srv, calls := fakeQdrant(t, true)
		s := NewStorage(Config{URL: srv.URL, Collection: "manuals"})
		require.NoError(t, s.Init(ctx, 384))
		assert.Len(t, *calls, 1)
	})

	t.Run("Upsert uses deterministic uuid ids and origin payload", func(t *testing.T) {
		srv, calls := fakeQdrant(t, true)
		s := NewStorage(Config{URL: srv.URL, Collection: "manuals"})
		require.NoError(t, s.Init(ctx, 2))
		ch := domain.Chunk{DocumentID: "d1", ChunkID: "d1:0", FileName: "manual.pdf", Location: 4, Text: "Bleed the brakes."}
		require.NoError(t, s.Upsert(ctx, []domain.Chunk{ch}, [][]float64{{0.1, 0.2}}))
		require.NoError(t, s.Upsert(ctx, []domain.Chunk{ch}, [][]float64{{0.1, 0.2}}))

		first := (*calls)[1].body["points"].([]any)[0].(map[string]any)
		second := (*calls)[2].body["points"].([]any)[0].(map[string]any)
		id := first["id"].(string)
		_, err := uuid.Parse(id)
		assert.NoError(t, err, "Expected a uuid point id")
		assert.Equal(t, id, second["id"], "Expected re-ingest to reuse the point id")

		p := first["payload"].(map[string]any)
		assert.Equal(t, "manual.pdf", p["file_name"])
		assert.Equal(t, float64(4), p["page"])
	})

	t.Run("Upsert rejects mismatched vectors", func(t *testing.T) {
		srv, _ := fakeQdrant(t, true)
		s := NewStorage(Config{URL: srv.URL, Collection: "manuals"})
		require.NoError(t, s.Init(ctx, 2))
		err := s.Upsert(ctx, []domain.Chunk{{ChunkID: "a"}}, [][]float64{{1, 2, 3}})
		assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	})

	t.Run("Search decodes payload", func(t *testing.T) {
		srv, calls := fakeQdrant(t, true)
		s := NewStorage(Config{URL: srv.URL, Collection: "manuals"})
		res, err := s.Search(ctx, []float64{0.1, 0.2}, 3)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, 0.91, res[0].Score)
		assert.Equal(t, "manual.pdf", res[0].Chunk.FileName)
		assert.Equal(t, 7, res[0].Chunk.Location)
		assert.Equal(t, "TSB 21-001", res[0].Chunk.Metadata["tsb"])
		assert.Equal(t, float64(3), (*calls)[0].body["limit"])
		assert.Equal(t, true, (*calls)[0].body["with_payload"])
	})

	t.Run("Delete by file filter", func(t *testing.T) {
		srv, calls := fakeQdrant(t, true)
		s := NewStorage(Config{URL: srv.URL, Collection: "manuals"})
		require.NoError(t, s.DeleteByFile(ctx, []string{"manual.pdf"}))
		require.Len(t, *calls, 1)
		assert.Equal(t, "/collections/manuals/points/delete", (*calls)[0].path)
		must := (*calls)[0].body["filter"].(map[string]any)["must"].([]any)[0].(map[string]any)
		assert.Equal(t, "file_name", must["key"])
		assert.Equal(t, []any{"manual.pdf"}, must["match"].(map[string]any)["any"])

		require.NoError(t, s.DeleteByFile(ctx, nil))
		assert.Len(t, *calls, 1, "Expected no request for an empty list")
	})

	t.Run("Clear recreates the collection", func(t *testing.T) {
		srv, calls := fakeQdrant(t, true)
		s := NewStorage(Config{URL: srv.URL, Collection: "manuals"})
		require.NoError(t, s.Init(ctx, 8))
		require.NoError(t, s.Clear(ctx))
		require.Len(t, *calls, 3)
		assert.Equal(t, http.MethodDelete, (*calls)[1].method)
		assert.Equal(t, http.MethodPut, (*calls)[2].method)
	})

	t.Run("Server errors surface", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()
		s := NewStorage(Config{URL: srv.URL, Collection: "manuals"})
		_, err := s.Search(ctx, []float64{1}, 1)
		assert.Error(t, err)
		assert.Error(t, s.Init(ctx, 2))
	})
}
