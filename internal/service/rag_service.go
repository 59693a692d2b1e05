// Package service runs ingestion and the grounded chat flow over the
// injected collaborators.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vkk1710/RAG-With-Citations/internal/citation"
	"github.com/vkk1710/RAG-With-Citations/internal/domain"
	"github.com/vkk1710/RAG-With-Citations/internal/embedding"
	"github.com/vkk1710/RAG-With-Citations/internal/generator"
	"github.com/vkk1710/RAG-With-Citations/internal/metrics"
	"github.com/vkk1710/RAG-With-Citations/internal/render"
	"github.com/vkk1710/RAG-With-Citations/internal/rerank"
)

// NoContextAnswer is returned when retrieval finds nothing.
const NoContextAnswer = "No context available to answer this question!"

// ErrEmptyQuery is returned by Chat for a blank question.
var ErrEmptyQuery = errors.New("query is empty")

// Components are the collaborators of a Service. Renderer may be nil to
// disable highlight outputs.
type Components struct {
	Loader     domain.Loader
	Chunker    domain.Chunker
	Embedder   domain.Embedder
	Store      domain.VectorStore
	Reranker   domain.Reranker
	Generator  domain.Generator
	Summarizer domain.Summarizer
	Citations  *citation.Pipeline
	Renderer   *render.Renderer
}

// Options tune retrieval and generation.
type Options struct {
	TopK                int
	SummaryMaxSentences int
	MaxPromptChars      int
	Defaults            domain.GenerateOptions
}

// IngestReport summarizes one ingest call.
type IngestReport struct {
	Files     []string `json:"files"`
	Documents int      `json:"documents"`
	Chunks    int      `json:"chunks"`
	Indexed   int      `json:"indexed"`
	Summary   string   `json:"summary"`
}

// ChatRequest is one user turn. Zero sampling values take the configured
// defaults; Temperature is a pointer because zero is a valid setting.
type ChatRequest struct {
	Query        string
	Temperature  *float64
	TopP         float64
	MaxNewTokens int
	History      []string
}

// ChatResponse carries the grounded answer. History holds the previous
// questions kept in the prompt followed by this one.
type ChatResponse struct {
	Answer     string                 `json:"answer"`
	Tier       citation.Tier          `json:"tier"`
	Citations  []citation.Verdict     `json:"-"`
	Cited      []citation.Passage     `json:"cited"`
	Highlights []citation.Instruction `json:"highlights"`
	Rendered   []render.Document      `json:"rendered"`
	History    []string               `json:"chat_history"`
}

// RAGService owns the in-process passage index used for the lexical
// fallback and for resolving source files when rendering.
type RAGService struct {
	c    Components
	opts Options
	log  *zap.Logger

	ingestMu sync.Mutex
	mu       sync.RWMutex
	chunks   []domain.Chunk
	paths    map[string]string
}

// New creates a service. Missing optional components get defaults.
func New(c Components, opts Options, log *zap.Logger) *RAGService {
	if log == nil {
		log = zap.NewNop()
	}
	if c.Reranker == nil {
		c.Reranker = rerank.None{}
	}
	if c.Citations == nil {
		c.Citations = citation.NewPipeline(citation.DefaultConfig(), log)
	}
	if opts.TopK <= 0 {
		opts.TopK = 10
	}
	if opts.MaxPromptChars <= 0 {
		opts.MaxPromptChars = generator.DefaultMaxPromptChars
	}
	if opts.Defaults.TopP <= 0 {
		opts.Defaults.TopP = 1
	}
	if opts.Defaults.MaxNewTokens <= 0 {
		opts.Defaults.MaxNewTokens = 512
	}
	return &RAGService{c: c, opts: opts, log: log, paths: map[string]string{}}
}

// Ingest loads paths and rebuilds the index over the previous corpus plus
// the new documents. Files ingested again replace their earlier passages.
func (s *RAGService) Ingest(ctx context.Context, paths []string) (IngestReport, error) {
	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()

	docs, err := s.c.Loader.Load(ctx, paths)
	if err != nil {
		return IngestReport{}, fmt.Errorf("load: %w", err)
	}

	report := IngestReport{Documents: len(docs)}
	replaced := make(map[string]struct{}, len(docs))
	var fresh []domain.Chunk
	var text strings.Builder
	newPaths := make(map[string]string, len(docs))
	for _, d := range docs {
		chunks, err := s.c.Chunker.Chunk(d)
		if err != nil {
			return IngestReport{}, fmt.Errorf("chunk %s: %w", d.FileName, err)
		}
		fresh = append(fresh, chunks...)
		replaced[d.FileName] = struct{}{}
		newPaths[d.FileName] = d.Path
		report.Files = append(report.Files, d.FileName)
		for _, p := range d.Pages {
			text.WriteString(p.Text)
			text.WriteString("\n")
		}
		metrics.DocumentsIngested.WithLabelValues(string(d.Kind)).Inc()
	}
	report.Chunks = len(fresh)

	s.mu.RLock()
	all := make([]domain.Chunk, 0, len(s.chunks)+len(fresh))
	for _, ch := range s.chunks {
		if _, ok := replaced[ch.FileName]; !ok {
			all = append(all, ch)
		}
	}
	s.mu.RUnlock()
	all = append(all, fresh...)

	if err := s.index(ctx, all); err != nil {
		return IngestReport{}, err
	}
	report.Indexed = len(all)

	s.mu.Lock()
	s.chunks = all
	for name, p := range newPaths {
		s.paths[name] = p
	}
	s.mu.Unlock()

	if s.c.Summarizer != nil {
		summary, err := s.c.Summarizer.Summarize(text.String(), s.opts.SummaryMaxSentences)
		if err != nil {
			return IngestReport{}, fmt.Errorf("summarize: %w", err)
		}
		report.Summary = summary
	}
	s.log.Info("ingest complete",
		zap.Int("documents", report.Documents),
		zap.Int("chunks", report.Chunks),
		zap.Int("indexed", report.Indexed))
	return report, nil
}

// index refits the embedder on chunks and replaces the store contents.
func (s *RAGService) index(ctx context.Context, chunks []domain.Chunk) error {
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	if err := s.c.Embedder.Prepare(ctx, texts); err != nil {
		return fmt.Errorf("prepare embedder: %w", err)
	}
	vectors := make([][]float64, len(chunks))
	for i, t := range texts {
		vec, err := s.c.Embedder.Embed(ctx, t)
		if err != nil {
			return fmt.Errorf("embed %s: %w", chunks[i].ChunkID, err)
		}
		vectors[i] = vec
	}
	dim := s.c.Embedder.Dimension()
	if dim == 0 && len(vectors) > 0 {
		dim = len(vectors[0])
	}
	if err := s.c.Store.Init(ctx, dim); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	if err := s.c.Store.Clear(ctx); err != nil {
		return fmt.Errorf("clear store: %w", err)
	}
	if len(chunks) == 0 {
		return nil
	}
	if err := s.c.Store.Upsert(ctx, chunks, vectors); err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	metrics.ChunksIndexed.Add(float64(len(chunks)))
	return nil
}

// Remove deletes the passages of the named files and returns how many
// local passages were dropped.
func (s *RAGService) Remove(ctx context.Context, fileNames []string) (int, error) {
	if len(fileNames) == 0 {
		return 0, nil
	}
	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()

	if err := s.c.Store.DeleteByFile(ctx, fileNames); err != nil {
		return 0, fmt.Errorf("delete: %w", err)
	}
	drop := make(map[string]struct{}, len(fileNames))
	for _, n := range fileNames {
		drop[n] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := make([]domain.Chunk, 0, len(s.chunks))
	for _, ch := range s.chunks {
		if _, ok := drop[ch.FileName]; !ok {
			kept = append(kept, ch)
		}
	}
	removed := len(s.chunks) - len(kept)
	s.chunks = kept
	for n := range drop {
		delete(s.paths, n)
	}
	s.log.Info("documents removed", zap.Strings("files", fileNames), zap.Int("chunks", removed))
	return removed, nil
}

// Files lists the ingested source file names.
func (s *RAGService) Files() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.paths))
	for n := range s.paths {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Retrieve returns the ranked passages for query, in the order they are
// shown to the model.
func (s *RAGService) Retrieve(ctx context.Context, query string) ([]domain.SearchResult, error) {
	vec, err := embedding.Query(ctx, s.c.Embedder, query)
	if err != nil {
		if !errors.Is(err, domain.ErrNotPrepared) {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		return nil, nil
	}
	var res []domain.SearchResult
	if !embedding.IsZero(vec) {
		res, err = s.c.Store.Search(ctx, vec, s.opts.TopK)
		if err != nil {
			return nil, fmt.Errorf("search: %w", err)
		}
	}
	if allZero(res) {
		s.mu.RLock()
		res = rerank.LexicalSearch(query, s.chunks, s.opts.TopK)
		s.mu.RUnlock()
		s.log.Debug("vector search found nothing, using lexical ranking", zap.Int("results", len(res)))
		if allZero(res) {
			return nil, nil
		}
	}
	ranked, err := s.c.Reranker.Rank(ctx, query, res, s.opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	return ranked, nil
}

func allZero(res []domain.SearchResult) bool {
	for _, r := range res {
		if r.Score > 1e-9 {
			return false
		}
	}
	return true
}

// Chat answers one question with grounded citations.
func (s *RAGService) Chat(ctx context.Context, req ChatRequest) (resp ChatResponse, err error) {
	status := "success"
	defer func() {
		if err != nil {
			status = "error"
		}
		metrics.ChatRequests.WithLabelValues(status).Inc()
	}()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return ChatResponse{}, ErrEmptyQuery
	}

	start := time.Now()
	results, err := s.Retrieve(ctx, query)
	if err != nil {
		return ChatResponse{}, err
	}
	metrics.ChatDuration.WithLabelValues("retrieve").Observe(time.Since(start).Seconds())
	if len(results) == 0 {
		status = "no_context"
		return ChatResponse{
			Answer:     NoContextAnswer,
			Tier:       citation.TierRaw,
			Cited:      []citation.Passage{},
			Highlights: []citation.Instruction{},
			Rendered:   []render.Document{},
			History:    []string{},
		}, nil
	}

	passages := make([]citation.Passage, len(results))
	contexts := make([]string, len(results))
	for i, r := range results {
		passages[i] = citation.Passage{
			Text:   r.Chunk.Text,
			Origin: citation.Origin{FileName: r.Chunk.FileName, Location: r.Chunk.Location},
		}
		contexts[i] = r.Chunk.Text
	}
	prompt := generator.BuildPrompt(query, contexts, req.History, s.opts.MaxPromptChars)

	start = time.Now()
	raw, err := s.c.Generator.Generate(ctx, prompt.Messages, s.generateOptions(req))
	if err != nil {
		return ChatResponse{}, fmt.Errorf("generate: %w", err)
	}
	metrics.ChatDuration.WithLabelValues("generate").Observe(time.Since(start).Seconds())

	start = time.Now()
	res := s.c.Citations.Run(raw, passages)
	metrics.ParseTier.WithLabelValues(string(res.Response.Tier)).Inc()
	for _, v := range res.Validation.Verdicts {
		metrics.CitationOutcomes.WithLabelValues(string(v.Outcome)).Inc()
	}
	metrics.ChatDuration.WithLabelValues("ground").Observe(time.Since(start).Seconds())

	resp = ChatResponse{
		Answer:     res.Response.Answer,
		Tier:       res.Response.Tier,
		Citations:  res.Validation.Verdicts,
		Cited:      res.Cited,
		Highlights: res.Instructions,
		Rendered:   []render.Document{},
		History:    append(prompt.History, query),
	}
	if resp.Cited == nil {
		resp.Cited = []citation.Passage{}
	}
	if resp.Highlights == nil {
		resp.Highlights = []citation.Instruction{}
	}

	if s.c.Renderer != nil && len(res.Instructions) > 0 {
		start = time.Now()
		docs, rerr := s.c.Renderer.Render(res.Instructions, s.resolve)
		if rerr != nil {
			s.log.Warn("some highlight outputs were not written", zap.Error(rerr))
		}
		resp.Rendered = docs
		metrics.ChatDuration.WithLabelValues("render").Observe(time.Since(start).Seconds())
	}

	s.log.Info("chat answered",
		zap.String("tier", string(resp.Tier)),
		zap.Int("passages", len(passages)),
		zap.Int("cited", len(resp.Cited)),
		zap.Int("rendered", len(resp.Rendered)))
	return resp, nil
}

func (s *RAGService) generateOptions(req ChatRequest) domain.GenerateOptions {
	opts := s.opts.Defaults
	if req.Temperature != nil {
		opts.Temperature = *req.Temperature
	}
	if req.TopP > 0 {
		opts.TopP = req.TopP
	}
	if req.MaxNewTokens > 0 {
		opts.MaxNewTokens = req.MaxNewTokens
	}
	return opts
}

func (s *RAGService) resolve(fileName string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.paths[fileName]
	return p, ok
}
