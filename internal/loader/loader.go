// Package loader reads PDF, CSV and text files into page-addressed documents.
package loader

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/vkk1710/RAG-With-Citations/internal/domain"
)

// Config controls which files and fields become passages.
type Config struct {
	// TSBOnly keeps only PDFs that look like technical service bulletins.
	TSBOnly bool
	// CSVColumn is the header of the column holding the passage text.
	CSVColumn string
}

// Loader dispatches on file extension. Unknown extensions are skipped.
type Loader struct {
	cfg     Config
	log     *zap.Logger
	readPDF func(path string) ([]domain.Page, error)
}

// New creates a loader.
func New(cfg Config, log *zap.Logger) *Loader {
	if cfg.CSVColumn == "" {
		cfg.CSVColumn = DefaultCSVColumn
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{cfg: cfg, log: log, readPDF: readPDFPages}
}

// Load expands globs and directories in paths and reads every supported
// file. It returns domain.ErrNoDocuments when nothing could be loaded.
func (l *Loader) Load(ctx context.Context, paths []string) ([]domain.Document, error) {
	files, err := Expand(paths)
	if err != nil {
		return nil, err
	}
	var docs []domain.Document
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, ok, err := l.loadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		if !ok {
			continue
		}
		l.log.Debug("document loaded", zap.String("file", doc.FileName),
			zap.String("kind", string(doc.Kind)), zap.Int("pages", len(doc.Pages)))
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return nil, domain.ErrNoDocuments
	}
	return docs, nil
}

func (l *Loader) loadFile(path string) (domain.Document, bool, error) {
	doc := domain.Document{ID: hashString(path), Path: path, FileName: filepath.Base(path)}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		pages, err := l.readPDF(path)
		if err != nil {
			return doc, false, err
		}
		doc.Kind = domain.KindPDF
		if !l.cfg.TSBOnly {
			doc.Pages = pages
			return doc, len(pages) > 0, nil
		}
		start, ok := DetectTSB(pages)
		if !ok {
			l.log.Info("skipping non bulletin pdf", zap.String("file", doc.FileName))
			return doc, false, nil
		}
		doc.Pages = pages[start:]
		meta, ok := ExtractTSBMetadata(pages[start].Text)
		if !ok {
			l.log.Warn("unable to extract bulletin metadata", zap.String("file", doc.FileName),
				zap.Int("page", pages[start].Number))
		}
		if meta != "" {
			doc.Metadata = map[string]string{MetadataKey: meta}
		}
		return doc, true, nil
	case ".csv":
		if l.cfg.TSBOnly {
			return doc, false, nil
		}
		f, err := os.Open(path)
		if err != nil {
			return doc, false, err
		}
		defer f.Close()
		pages, err := ReadCSV(f, l.cfg.CSVColumn)
		if err != nil {
			return doc, false, err
		}
		doc.Kind = domain.KindCSV
		doc.Pages = pages
		return doc, len(pages) > 0, nil
	case ".txt":
		if l.cfg.TSBOnly {
			return doc, false, nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return doc, false, err
		}
		doc.Kind = domain.KindText
		doc.Pages = []domain.Page{{Number: 1, Text: string(data)}}
		return doc, strings.TrimSpace(string(data)) != "", nil
	default:
		return doc, false, nil
	}
}

// Expand resolves globs and walks directories. Plain paths that match
// nothing are passed through so the caller reports the read error.
func Expand(paths []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, p := range paths {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", p, err)
		}
		if matches == nil {
			matches = []string{p}
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || !info.IsDir() {
				add(m)
				continue
			}
			var inDir []string
			err = filepath.WalkDir(m, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() {
					inDir = append(inDir, path)
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("walk %s: %w", m, err)
			}
			sort.Strings(inDir)
			for _, f := range inDir {
				add(f)
			}
		}
	}
	return out, nil
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}
