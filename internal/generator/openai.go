package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vkk1710/RAG-With-Citations/internal/domain"
	"github.com/vkk1710/RAG-With-Citations/internal/embedding/openai"
)

// OpenAIConfig configures an OpenAI-compatible chat completions endpoint
// such as vLLM, Ollama or the hosted API.
type OpenAIConfig struct {
	BaseURL    string
	APIKeyEnv  string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// OpenAI calls POST {base}/chat/completions.
type OpenAI struct {
	baseURL    string
	apiKey     string
	model      string
	client     *http.Client
	maxRetries int
	log        *zap.Logger
	delay      func(attempt int) time.Duration
}

// NewOpenAI creates a chat client. An API key is only required for the
// hosted OpenAI endpoint.
func NewOpenAI(cfg OpenAIConfig, log *zap.Logger) (*OpenAI, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	key := ""
	if cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	if key == "" && strings.Contains(cfg.BaseURL, "api.openai.com") {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		return nil, errors.New("generator model is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &OpenAI{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     key,
		model:      cfg.Model,
		client:     &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		log:        log,
		delay:      openai.RetryDelay,
	}, nil
}

type chatRequest struct {
	Model       string           `json:"model"`
	Messages    []domain.Message `json:"messages"`
	Temperature float64          `json:"temperature"`
	TopP        float64          `json:"top_p,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message domain.Message `json:"message"`
	} `json:"choices"`
}

type statusError struct {
	status     int
	text       string
	retryAfter time.Duration
}

func (e *statusError) Error() string { return "chat completions failed: " + e.text }

func (e *statusError) retryable() bool {
	return e.status == http.StatusTooManyRequests || e.status >= 500
}

// Generate returns the content of the first choice.
func (g *OpenAI) Generate(ctx context.Context, messages []domain.Message, opts domain.GenerateOptions) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		MaxTokens:   opts.MaxNewTokens,
	})
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			d := g.delay(attempt - 1)
			var se *statusError
			if errors.As(lastErr, &se) && se.retryAfter > 0 {
				d = se.retryAfter
			}
			g.log.Debug("retrying chat completion", zap.Int("attempt", attempt), zap.Duration("delay", d), zap.Error(lastErr))
			if err := wait(ctx, d); err != nil {
				return "", err
			}
		}
		out, err := g.do(ctx, body)
		if err == nil {
			return out, nil
		}
		var se *statusError
		if ctx.Err() != nil || (errors.As(err, &se) && !se.retryable()) {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("generate after %d attempts: %w", g.maxRetries+1, lastErr)
}

func (g *OpenAI) do(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		se := &statusError{status: resp.StatusCode, text: resp.Status}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			se.retryAfter = time.Duration(secs) * time.Second
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", se
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", &statusError{status: resp.StatusCode, text: "no choices returned"}
	}
	return out.Choices[0].Message.Content, nil
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
