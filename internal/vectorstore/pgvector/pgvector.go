// Package pgvector stores passages in PostgreSQL with the vector extension.
package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/lib/pq"
	pgv "github.com/pgvector/pgvector-go"

	"github.com/vkk1710/RAG-With-Citations/internal/domain"
	"github.com/vkk1710/RAG-With-Citations/internal/embedding"
	"github.com/vkk1710/RAG-With-Citations/internal/metrics"
	"github.com/vkk1710/RAG-With-Citations/internal/vectorstore"
)

var tableNameRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Storage keeps one row per chunk and searches with the cosine distance
// operator.
type Storage struct {
	db        *sql.DB
	table     string
	dimension int
}

// Open connects with lib/pq.
func Open(dsn, table string) (*Storage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return New(db, table)
}

// New wraps an existing connection pool.
func New(db *sql.DB, table string) (*Storage, error) {
	if table == "" {
		table = "rag_chunks"
	}
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Storage{db: db, table: table}, nil
}

// Init creates the extension, table and file index if they are missing.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	s.dimension = dimension
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id UUID PRIMARY KEY,
	document_id TEXT NOT NULL,
	chunk_id TEXT NOT NULL,
	file_name TEXT NOT NULL,
	page INTEGER NOT NULL,
	idx INTEGER NOT NULL,
	text TEXT NOT NULL,
	metadata JSONB,
	embedding vector(%d) NOT NULL
)`, s.table, dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_file_name_idx ON %s (file_name)`, s.table, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init %s: %w", s.table, err)
		}
	}
	return nil
}

// Upsert writes all chunks in one transaction.
func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := fmt.Sprintf(`INSERT INTO %s (id, document_id, chunk_id, file_name, page, idx, text, metadata, embedding)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET text = EXCLUDED.text, page = EXCLUDED.page, metadata = EXCLUDED.metadata, embedding = EXCLUDED.embedding`, s.table)
	for i, c := range chunks {
		if s.dimension > 0 && len(vectors[i]) != s.dimension {
			return fmt.Errorf("pgvector: got %d want %d: %w", len(vectors[i]), s.dimension, domain.ErrDimensionMismatch)
		}
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, query,
			vectorstore.PointID(c), c.DocumentID, c.ChunkID, c.FileName, c.Location, c.Index, c.Text,
			meta, pgv.NewVector(embedding.ToFloat32(vectors[i])))
		if err != nil {
			return fmt.Errorf("insert %s: %w", c.ChunkID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Search returns the topK nearest chunks with score = 1 - cosine distance.
func (s *Storage) Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	query := fmt.Sprintf(`SELECT document_id, chunk_id, file_name, page, idx, text, metadata, 1 - (embedding <=> $1) AS score
FROM %s ORDER BY embedding <=> $1 LIMIT $2`, s.table)
	rows, err := s.db.QueryContext(ctx, query, pgv.NewVector(embedding.ToFloat32(vector)), topK)
	metrics.RecordSearch("pgvector", err)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", s.table, err)
	}
	defer rows.Close()

	var out []domain.SearchResult
	for rows.Next() {
		var (
			r    domain.SearchResult
			meta []byte
		)
		c := &r.Chunk
		if err := rows.Scan(&c.DocumentID, &c.ChunkID, &c.FileName, &c.Location, &c.Index, &c.Text, &meta, &r.Score); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &c.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of %s: %w", c.ChunkID, err)
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// DeleteByFile removes the rows of the named files.
func (s *Storage) DeleteByFile(ctx context.Context, fileNames []string) error {
	if len(fileNames) == 0 {
		return nil
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE file_name = ANY($1)`, s.table)
	if _, err := s.db.ExecContext(ctx, query, pq.Array(fileNames)); err != nil {
		return fmt.Errorf("delete from %s: %w", s.table, err)
	}
	return nil
}

// Clear empties the table.
func (s *Storage) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`TRUNCATE %s`, s.table)); err != nil {
		return fmt.Errorf("truncate %s: %w", s.table, err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Storage) Close() error { return s.db.Close() }
