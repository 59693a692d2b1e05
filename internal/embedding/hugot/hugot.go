// Package hugot runs a sentence-transformer ONNX model in process through
// the pure Go backend of knights-analytics/hugot.
package hugot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"

	"github.com/vkk1710/RAG-With-Citations/internal/embedding"
)

// Config selects the model and where it is cached on disk.
type Config struct {
	Model    string
	ModelDir string
	OnnxFile string
}

type runFunc func(texts []string) ([][]float32, error)

// Embedder produces dense sentence embeddings locally.
type Embedder struct {
	name    string
	run     runFunc
	destroy func() error

	mu        sync.RWMutex
	dimension int
}

// New downloads the model if needed and starts a feature extraction pipeline.
func New(cfg Config) (*Embedder, error) {
	modelPath, err := PrepareModel(cfg)
	if err != nil {
		return nil, err
	}
	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}
	pipe, err := hugot.NewPipeline(session, hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "rag-embedder",
	})
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create embedding pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create embedding pipeline: %w", err)
	}
	run := func(texts []string) ([][]float32, error) {
		out, err := pipe.RunPipeline(texts)
		if err != nil {
			return nil, err
		}
		return out.Embeddings, nil
	}
	return newEmbedder(cfg.Model, run, session.Destroy), nil
}

func newEmbedder(model string, run runFunc, destroy func() error) *Embedder {
	return &Embedder{name: "hugot:" + model, run: run, destroy: destroy}
}

// PrepareModel returns the local model directory, downloading it on first use.
func PrepareModel(cfg Config) (string, error) {
	modelPath := filepath.Join(cfg.ModelDir, strings.ReplaceAll(cfg.Model, "/", "_"))
	if _, err := os.Stat(modelPath); err == nil {
		return modelPath, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	if err := os.MkdirAll(cfg.ModelDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create model directory: %w", err)
	}
	opts := hugot.NewDownloadOptions()
	if cfg.OnnxFile != "" {
		opts.OnnxFilePath = cfg.OnnxFile
	}
	downloaded, err := hugot.DownloadModel(cfg.Model, cfg.ModelDir, opts)
	if err != nil {
		return "", fmt.Errorf("failed to download model %s: %w", cfg.Model, err)
	}
	return downloaded, nil
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return e.name }

// Prepare probes the model once to learn its output dimension.
func (e *Embedder) Prepare(ctx context.Context, corpus []string) error {
	if e.Dimension() > 0 {
		return nil
	}
	probe := "passage"
	if len(corpus) > 0 {
		probe = corpus[0]
	}
	_, err := e.Embed(ctx, probe)
	return err
}

// Dimension returns the embedding size, known after the first call.
func (e *Embedder) Dimension() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dimension
}

// Embed encodes one text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := e.run([]string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	if len(out) == 0 || len(out[0]) == 0 {
		return nil, errors.New("no embedding generated")
	}
	e.mu.Lock()
	if e.dimension == 0 {
		e.dimension = len(out[0])
	}
	e.mu.Unlock()
	return embedding.ToFloat64(out[0]), nil
}

// Close releases the ONNX session.
func (e *Embedder) Close() error {
	if e.destroy == nil {
		return nil
	}
	return e.destroy()
}
