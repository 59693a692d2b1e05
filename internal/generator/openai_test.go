package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkk1710/RAG-With-Citations/internal/domain"
)

func newTestClient(t *testing.T, url string, retries int) *OpenAI {
	t.Helper()
	g, err := NewOpenAI(OpenAIConfig{BaseURL: url + "/v1/", Model: "llama-3-8b", MaxRetries: retries}, nil)
	require.NoError(t, err)
	g.delay = func(int) time.Duration { return time.Millisecond }
	return g
}

func TestNewOpenAI(t *testing.T) {
	t.Setenv("RAG_TEST_KEY", "")
	_, err := NewOpenAI(OpenAIConfig{APIKeyEnv: "RAG_TEST_KEY", Model: "gpt-4o-mini"}, nil)
	assert.Error(t, err, "Expected the hosted endpoint to require a key")

	_, err = NewOpenAI(OpenAIConfig{BaseURL: "http://localhost:8000/v1"}, nil)
	assert.Error(t, err, "Expected a model to be required")

	_, err = NewOpenAI(OpenAIConfig{BaseURL: "http://localhost:8000/v1", Model: "llama"}, nil)
	assert.NoError(t, err)
}

func TestOpenAIGenerate(t *testing.T) {
	ctx := context.Background()
	msgs := []domain.Message{{Role: "system", Content: "sys"}, {Role: "user", Content: "hi"}}

	t.Run("Sends sampling options", func(t *testing.T) {
		var got chatRequest
		var auth string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/chat/completions", r.URL.Path)
			auth = r.Header.Get("Authorization")
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"answer\":\"ok\"}"}}]}`))
		}))
		defer srv.Close()

		t.Setenv("RAG_TEST_KEY", "secret")
		g, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL + "/v1", APIKeyEnv: "RAG_TEST_KEY", Model: "llama-3-8b"}, nil)
		require.NoError(t, err)
		out, err := g.Generate(ctx, msgs, domain.GenerateOptions{Temperature: 0.1, TopP: 0.9, MaxNewTokens: 256})
		require.NoError(t, err)
		assert.Equal(t, `{"answer":"ok"}`, out)
		assert.Equal(t, "Bearer secret", auth)
		assert.Equal(t, "llama-3-8b", got.Model)
		assert.Equal(t, msgs, got.Messages)
		assert.Equal(t, 0.1, got.Temperature)
		assert.Equal(t, 0.9, got.TopP)
		assert.Equal(t, 256, got.MaxTokens)
	})

	t.Run("Retries server errors", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"done"}}]}`))
		}))
		defer srv.Close()

		out, err := newTestClient(t, srv.URL, 3).Generate(ctx, msgs, domain.GenerateOptions{})
		require.NoError(t, err)
		assert.Equal(t, "done", out)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("Gives up after max retries", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		_, err := newTestClient(t, srv.URL, 2).Generate(ctx, msgs, domain.GenerateOptions{})
		assert.Error(t, err)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("Client errors are not retried", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer srv.Close()

		_, err := newTestClient(t, srv.URL, 3).Generate(ctx, msgs, domain.GenerateOptions{})
		assert.Error(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("Empty choices fail", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		}))
		defer srv.Close()

		_, err := newTestClient(t, srv.URL, 3).Generate(ctx, msgs, domain.GenerateOptions{})
		assert.Error(t, err)
	})

	t.Run("Context cancellation stops retries", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		start := time.Now()
		_, err := newTestClient(t, srv.URL, 3).Generate(cctx, msgs, domain.GenerateOptions{})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 5*time.Second)
	})
}
