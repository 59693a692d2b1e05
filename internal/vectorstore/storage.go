package vectorstore

import (
	"github.com/google/uuid"

	"github.com/vkk1710/RAG-With-Citations/internal/domain"
)

// Storage persists vectors and supports similarity search.
type Storage = domain.VectorStore

// pointNamespace scopes deterministic point ids.
var pointNamespace = uuid.MustParse("6b0f3c0e-5a7e-4c55-9d0e-2f6f1b0a9c41")

// PointID returns a stable UUIDv5 for a chunk so re-ingesting a file
// overwrites its points instead of duplicating them.
func PointID(c domain.Chunk) string {
	return uuid.NewSHA1(pointNamespace, []byte(c.ChunkID)).String()
}
