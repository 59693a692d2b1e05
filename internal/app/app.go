// Package app assembles the service from configuration. Both binaries
// share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/vkk1710/RAG-With-Citations/internal/chunker"
	"github.com/vkk1710/RAG-With-Citations/internal/citation"
	"github.com/vkk1710/RAG-With-Citations/internal/config"
	"github.com/vkk1710/RAG-With-Citations/internal/domain"
	"github.com/vkk1710/RAG-With-Citations/internal/embedding"
	"github.com/vkk1710/RAG-With-Citations/internal/embedding/cache"
	"github.com/vkk1710/RAG-With-Citations/internal/embedding/hugot"
	"github.com/vkk1710/RAG-With-Citations/internal/embedding/openai"
	"github.com/vkk1710/RAG-With-Citations/internal/embedding/tfidf"
	"github.com/vkk1710/RAG-With-Citations/internal/generator"
	"github.com/vkk1710/RAG-With-Citations/internal/loader"
	"github.com/vkk1710/RAG-With-Citations/internal/render"
	"github.com/vkk1710/RAG-With-Citations/internal/rerank"
	"github.com/vkk1710/RAG-With-Citations/internal/service"
	"github.com/vkk1710/RAG-With-Citations/internal/summarizer"
	"github.com/vkk1710/RAG-With-Citations/internal/vectorstore"
	"github.com/vkk1710/RAG-With-Citations/internal/vectorstore/memory"
	"github.com/vkk1710/RAG-With-Citations/internal/vectorstore/pgvector"
	"github.com/vkk1710/RAG-With-Citations/internal/vectorstore/qdrant"
)

// App is an assembled service plus the resources it holds open.
type App struct {
	Service *service.RAGService
	closers []func() error
}

// Close releases model sessions, pools and cache clients.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// Build creates every component named in cfg.
func Build(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{}
	fail := func(err error) (*App, error) {
		_ = a.Close()
		return nil, err
	}

	emb, err := a.embedder(ctx, cfg, log)
	if err != nil {
		return fail(err)
	}
	store, err := a.store(cfg)
	if err != nil {
		return fail(err)
	}
	gen, err := newGenerator(cfg.Generator, log)
	if err != nil {
		return fail(err)
	}
	rr, err := rerank.New(cfg.Retrieval.Reranker)
	if err != nil {
		return fail(err)
	}
	sum, err := summarizer.New(cfg.Summarizer.Type)
	if err != nil {
		return fail(err)
	}
	var ch domain.Chunker
	switch cfg.Chunker.Type {
	case "sentence", "":
		ch = chunker.NewSentenceChunker(cfg.Chunker.MaxWords, cfg.Chunker.OverlapSentences)
	default:
		return fail(fmt.Errorf("unknown chunker: %s", cfg.Chunker.Type))
	}
	var rd *render.Renderer
	if cfg.Render.Enabled {
		rd = render.New(cfg.Render.OutputDir, log.Named("render"))
	}

	a.Service = service.New(service.Components{
		Loader:     loader.New(loader.Config{TSBOnly: cfg.Loader.TSBOnly, CSVColumn: cfg.Loader.CSVColumn}, log.Named("loader")),
		Chunker:    ch,
		Embedder:   emb,
		Store:      store,
		Reranker:   rr,
		Generator:  gen,
		Summarizer: sum,
		Citations:  citation.NewPipeline(cfg.Citation, log.Named("citation")),
		Renderer:   rd,
	}, service.Options{
		TopK:                cfg.Retrieval.TopK,
		SummaryMaxSentences: cfg.Summarizer.MaxSentences,
		MaxPromptChars:      cfg.Generator.MaxPromptChars,
		Defaults: domain.GenerateOptions{
			Temperature:  cfg.Generator.Temperature,
			TopP:         cfg.Generator.TopP,
			MaxNewTokens: cfg.Generator.MaxNewTokens,
		},
	}, log.Named("service"))

	log.Info("components ready",
		zap.String("embedder", emb.Name()),
		zap.String("store", cfg.VectorStore.Type),
		zap.String("generator", cfg.Generator.Type),
		zap.String("reranker", cfg.Retrieval.Reranker),
		zap.String("cache", cfg.Cache.Type))
	return a, nil
}

func (a *App) embedder(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (embedding.Embedder, error) {
	var emb embedding.Embedder
	switch cfg.Embedder.Type {
	case "tfidf", "":
		emb = tfidf.NewEmbedder()
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			return nil, errors.New("openai embedder config missing")
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:   cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv: cfg.Embedder.OpenAI.APIKeyEnv,
			Model:     cfg.Embedder.OpenAI.Model,
			Timeout:   time.Duration(cfg.Embedder.OpenAI.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		emb = client
	case "hugot":
		h, err := hugot.New(hugot.Config{
			Model:    cfg.Embedder.Hugot.Model,
			ModelDir: cfg.Embedder.Hugot.ModelDir,
			OnnxFile: cfg.Embedder.Hugot.OnnxFile,
		})
		if err != nil {
			return nil, fmt.Errorf("hugot embedder init failed: %w", err)
		}
		a.closers = append(a.closers, h.Close)
		emb = h
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
	emb = embedding.WithPrefixes(emb, cfg.Embedder.QueryPrefix, cfg.Embedder.PassagePrefix)

	ttl := time.Duration(cfg.Cache.TTLSecs) * time.Second
	switch cfg.Cache.Type {
	case "none", "":
		return emb, nil
	case "memory":
		return cache.Wrap(emb, cache.NewLocalLRU(cfg.Cache.Capacity), ttl, log.Named("cache")), nil
	case "redis":
		rc, err := cache.NewRedisCache(ctx, cfg.Cache.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		a.closers = append(a.closers, rc.Close)
		return cache.Wrap(emb, rc, ttl, log.Named("cache")), nil
	default:
		return nil, fmt.Errorf("unknown cache: %s", cfg.Cache.Type)
	}
}

func (a *App) store(cfg *config.AppConfig) (vectorstore.Storage, error) {
	switch cfg.VectorStore.Type {
	case "memory", "":
		return memory.NewStorage(), nil
	case "qdrant":
		q := cfg.VectorStore.Qdrant
		if q == nil {
			return nil, errors.New("qdrant config missing")
		}
		key := ""
		if q.APIKeyEnv != "" {
			key = os.Getenv(q.APIKeyEnv)
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        q.URL,
			APIKey:     key,
			Collection: q.Collection,
			Timeout:    time.Duration(q.TimeoutSecs) * time.Second,
		}), nil
	case "pgvector":
		p := cfg.VectorStore.PGVector
		if p == nil {
			return nil, errors.New("pgvector config missing")
		}
		dsn := os.Getenv(p.DSNEnv)
		if dsn == "" {
			return nil, fmt.Errorf("missing postgres dsn in env %s", p.DSNEnv)
		}
		s, err := pgvector.Open(dsn, p.Table)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}
}

func newGenerator(cfg config.GeneratorConfig, log *zap.Logger) (domain.Generator, error) {
	switch cfg.Type {
	case "mock", "":
		return generator.Mock{}, nil
	case "openai":
		g, err := generator.NewOpenAI(generator.OpenAIConfig{
			BaseURL:    cfg.BaseURL,
			APIKeyEnv:  cfg.APIKeyEnv,
			Model:      cfg.Model,
			Timeout:    time.Duration(cfg.TimeoutSecs) * time.Second,
			MaxRetries: cfg.MaxRetries,
		}, log.Named("generator"))
		if err != nil {
			return nil, fmt.Errorf("openai generator init failed: %w", err)
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown generator: %s", cfg.Type)
	}
}
