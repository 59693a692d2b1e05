// Package render writes highlight outputs for cited documents: a styled
// workbook for spreadsheets and an annotated copy for PDFs. A PDF that
// cannot be annotated gets a page and phrase manifest instead.
package render

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/vkk1710/RAG-With-Citations/internal/citation"
	"github.com/vkk1710/RAG-With-Citations/internal/metrics"
)

// Document is one highlight output: the written file and the pages or rows
// it marks.
type Document struct {
	Source    string        `json:"source"`
	FileName  string        `json:"file_name"`
	Kind      citation.Kind `json:"kind"`
	Locations []int         `json:"locations"`
}

// Resolver maps a source file name to its path on disk.
type Resolver func(fileName string) (string, bool)

// Renderer writes outputs under a single directory.
type Renderer struct {
	outputDir string
	log       *zap.Logger
}

// New creates a renderer writing to outputDir.
func New(outputDir string, log *zap.Logger) *Renderer {
	if log == nil {
		log = zap.NewNop()
	}
	if outputDir == "" {
		outputDir = "highlighted"
	}
	return &Renderer{outputDir: outputDir, log: log}
}

// OutputDir returns the directory outputs are written to.
func (r *Renderer) OutputDir() string { return r.outputDir }

// Render writes one output per instruction. A failing document is logged
// and skipped; the joined errors are returned alongside the successes.
func (r *Renderer) Render(ins []citation.Instruction, resolve Resolver) ([]Document, error) {
	if len(ins) == 0 {
		return []Document{}, nil
	}
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return []Document{}, fmt.Errorf("create output dir: %w", err)
	}
	pdfs, csvs := citation.SplitByKind(ins)
	out := make([]Document, 0, len(ins))
	var errs []error
	for _, group := range []struct {
		kind citation.Kind
		ins  []citation.Instruction
		fn   func(citation.Instruction, string) (Document, error)
	}{
		{citation.KindPDF, pdfs, r.highlightPDF},
		{citation.KindCSV, csvs, r.spreadsheet},
	} {
		for _, in := range group.ins {
			src, ok := resolve(in.FileName)
			if !ok {
				errs = append(errs, fmt.Errorf("render %s: source not found", in.FileName))
				metrics.RenderedDocuments.WithLabelValues(string(group.kind), "error").Inc()
				continue
			}
			doc, err := group.fn(in, src)
			if err != nil {
				r.log.Warn("render failed", zap.String("file", in.FileName), zap.Error(err))
				errs = append(errs, fmt.Errorf("render %s: %w", in.FileName, err))
				metrics.RenderedDocuments.WithLabelValues(string(group.kind), "error").Inc()
				continue
			}
			metrics.RenderedDocuments.WithLabelValues(string(group.kind), "success").Inc()
			r.log.Debug("rendered highlights", zap.String("file", doc.FileName), zap.Ints("locations", doc.Locations))
			out = append(out, doc)
		}
	}
	return out, errors.Join(errs...)
}

// OutputName replaces the extension of name with suffix.
func OutputName(name, suffix string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + suffix
}
