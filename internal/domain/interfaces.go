package domain

import (
	"context"
	"errors"
)

// Kind is the source format of a loaded document.
type Kind string

const (
	KindPDF  Kind = "pdf"
	KindCSV  Kind = "csv"
	KindText Kind = "txt"
)

var (
	// ErrNoDocuments is returned when an ingest finds nothing loadable.
	ErrNoDocuments = errors.New("no supported documents found")
	// ErrNotPrepared is returned by embedders used before Prepare.
	ErrNotPrepared = errors.New("embedder not prepared")
	// ErrDimensionMismatch is returned when a vector does not fit the store.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Page is one addressable unit of a document. Number is the 1-based page
// for PDF and text files and the 0-based record index for CSV files.
type Page struct {
	Number int
	Text   string
}

// Document represents a single source file loaded into the system.
type Document struct {
	ID       string
	Path     string
	FileName string
	Kind     Kind
	Pages    []Page
	Metadata map[string]string
}

// Chunk is one retrievable passage. Location carries the page or row of
// the page it was cut from.
type Chunk struct {
	DocumentID string
	ChunkID    string
	FileName   string
	Location   int
	Index      int
	Text       string
	Metadata   map[string]string
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateOptions are the sampling parameters passed to a generator.
type GenerateOptions struct {
	Temperature  float64
	TopP         float64
	MaxNewTokens int
}

// Loader reads source files into documents.
type Loader interface {
	Load(ctx context.Context, paths []string) ([]Document, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(ctx context.Context, corpus []string) error
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
}

// QueryEmbedder is implemented by embedders that encode queries and
// passages differently.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float64, error)
}

// VectorStore persists vectors and supports similarity search.
type VectorStore interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, chunks []Chunk, vectors [][]float64) error
	Search(ctx context.Context, vector []float64, topK int) ([]SearchResult, error)
	DeleteByFile(ctx context.Context, fileNames []string) error
	Clear(ctx context.Context) error
}

// Reranker reorders retrieval results. The output order is the order in
// which passages are shown to the model.
type Reranker interface {
	Rank(ctx context.Context, query string, results []SearchResult, topK int) ([]SearchResult, error)
}

// Generator produces a model answer for a prompt.
type Generator interface {
	Generate(ctx context.Context, messages []Message, opts GenerateOptions) (string, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
