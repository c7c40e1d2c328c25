// Package keyword maintains a lexical index over chunk text. It supplies the
// exact-term signal that vector similarity misses, used to re-rank the top
// semantic candidates.
package keyword

import (
	"context"

	"github.com/hyperjump/kikoe/internal/models"
)

// LexicalIndex indexes chunk text and scores it against query terms.
type LexicalIndex interface {
	// IndexChunks adds or replaces the chunks in one batch.
	IndexChunks(ctx context.Context, chunks []models.Chunk) error
	// DeleteMedia removes every chunk belonging to the media item.
	DeleteMedia(ctx context.Context, mediaID string) error
	// Search returns up to limit chunk IDs with lexical relevance scores,
	// highest first. Scores are index-relative, not comparable across queries.
	Search(ctx context.Context, query string, limit int) ([]Hit, error)
	DocCount() (uint64, error)
	Close() error
}

// Hit is a single lexical match.
type Hit struct {
	ChunkID string
	Score   float64
}
