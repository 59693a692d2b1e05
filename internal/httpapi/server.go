// Package httpapi exposes the chat service over JSON HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vkk1710/RAG-With-Citations/internal/domain"
	"github.com/vkk1710/RAG-With-Citations/internal/service"
)

// RAG is the service surface the handlers need.
type RAG interface {
	Ingest(ctx context.Context, paths []string) (service.IngestReport, error)
	Chat(ctx context.Context, req service.ChatRequest) (service.ChatResponse, error)
	Remove(ctx context.Context, fileNames []string) (int, error)
	Files() []string
}

// DefaultMaxBodyBytes caps request bodies when Options.MaxBodyBytes is unset.
const DefaultMaxBodyBytes = 1 << 20

// Options configures a Handler.
type Options struct {
	RatePerSecond float64 // chat requests per second, 0 disables limiting
	Burst         int
	// DocumentsDir is the only tree POST /ingest may read from. Empty
	// disables ingest over HTTP.
	DocumentsDir string
	MaxBodyBytes int64
}

// Handler serves the HTTP API.
type Handler struct {
	svc      RAG
	logger   *zap.Logger
	limiter  *rate.Limiter
	docsRoot string
	maxBody  int64
	mux      *http.ServeMux
}

// NewHandler creates the API.
func NewHandler(svc RAG, logger *zap.Logger, opts Options) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{svc: svc, logger: logger, maxBody: opts.MaxBodyBytes, mux: http.NewServeMux()}
	if h.maxBody <= 0 {
		h.maxBody = DefaultMaxBodyBytes
	}
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	if opts.DocumentsDir != "" {
		root, err := documentsRoot(opts.DocumentsDir)
		if err != nil {
			logger.Error("documents dir unusable, ingest disabled", zap.String("dir", opts.DocumentsDir), zap.Error(err))
		} else {
			h.docsRoot = root
		}
	}
	h.mux.Handle("POST /chat", h.limit(http.HandlerFunc(h.Chat)))
	h.mux.HandleFunc("POST /ingest", h.Ingest)
	h.mux.HandleFunc("GET /documents", h.ListDocuments)
	h.mux.HandleFunc("DELETE /documents", h.RemoveDocuments)
	h.mux.HandleFunc("GET /health", h.Health)
	h.mux.Handle("GET /metrics", promhttp.Handler())
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	h.mux.ServeHTTP(rec, r)
	h.logger.Debug("request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", rec.status),
		zap.Duration("duration", time.Since(start)))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (h *Handler) limit(next http.Handler) http.Handler {
	if h.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := h.limiter.Reserve()
		if d := res.Delay(); d > 0 {
			res.Cancel()
			h.logger.Warn("Rate limit exceeded", zap.String("path", r.URL.Path))
			w.Header().Set("Retry-After", strconv.Itoa(int(d/time.Second)+1))
			h.sendError(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type chatRequest struct {
	Query        string   `json:"query"`
	Temperature  *float64 `json:"temperature"`
	TopP         float64  `json:"top_p"`
	MaxNewTokens int      `json:"max_new_tokens"`
	ChatHistory  []string `json:"chat_history"`
}

// Chat handles POST /chat
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.svc.Chat(r.Context(), service.ChatRequest{
		Query:        req.Query,
		Temperature:  req.Temperature,
		TopP:         req.TopP,
		MaxNewTokens: req.MaxNewTokens,
		History:      req.ChatHistory,
	})
	if err != nil {
		h.serviceError(w, "chat", err)
		return
	}
	h.sendJSON(w, http.StatusOK, resp)
}

// Ingest handles POST /ingest
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	if h.docsRoot == "" {
		h.sendError(w, "Ingest is disabled: server.documents_dir is not set", http.StatusForbidden)
		return
	}
	var req struct {
		Paths []string `json:"paths"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.Paths) == 0 {
		h.sendError(w, "Request must list paths", http.StatusBadRequest)
		return
	}
	paths, err := resolvePaths(h.docsRoot, req.Paths)
	if err != nil {
		h.logger.Warn("ingest path rejected", zap.Strings("paths", req.Paths), zap.Error(err))
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	rep, err := h.svc.Ingest(r.Context(), paths)
	if err != nil {
		h.serviceError(w, "ingest", err)
		return
	}
	h.sendJSON(w, http.StatusOK, rep)
}

// ListDocuments handles GET /documents
func (h *Handler) ListDocuments(w http.ResponseWriter, _ *http.Request) {
	h.sendJSON(w, http.StatusOK, map[string]any{"files": h.svc.Files()})
}

// RemoveDocuments handles DELETE /documents
func (h *Handler) RemoveDocuments(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FileNames []string `json:"file_names"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.FileNames) == 0 {
		h.sendError(w, "Request must list file_names", http.StatusBadRequest)
		return
	}
	n, err := h.svc.Remove(r.Context(), req.FileNames)
	if err != nil {
		h.serviceError(w, "remove", err)
		return
	}
	h.sendJSON(w, http.StatusOK, map[string]any{"removed": n})
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	h.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode reads a size-capped JSON body into v and writes the error
// response itself when that fails.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.sendError(w, "Request body too large", http.StatusRequestEntityTooLarge)
		return false
	}
	h.sendError(w, "Invalid request body", http.StatusBadRequest)
	return false
}

func (h *Handler) serviceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyQuery), errors.Is(err, domain.ErrNoDocuments):
		h.sendError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.sendError(w, "Request cancelled", http.StatusServiceUnavailable)
	default:
		h.logger.Error("request failed", zap.String("op", op), zap.Error(err))
		h.sendError(w, "Internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("failed to write response", zap.Error(err))
	}
}

func (h *Handler) sendError(w http.ResponseWriter, message string, status int) {
	h.sendJSON(w, status, map[string]string{"error": message})
}
