// Package store persists media items, transcription artifacts, and embedded
// chunks, and serves nearest-neighbor lookups over the chunk vectors.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/kikoe/internal/config"
	"github.com/hyperjump/kikoe/internal/models"
)

var (
	// ErrNotFound indicates the requested media item or chunk does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrModelMismatch indicates the index was built with a different embedding
	// model or dimension than the one now configured. Vectors from different
	// models are never comparable; the index must be rebuilt.
	ErrModelMismatch = errors.New("store: embedding model mismatch")
)

// IndexMeta records the embedding space the index was built in. Written on
// first ingestion and checked against the configured embedder afterwards.
type IndexMeta struct {
	Model      string
	Dimensions int
	Metric     string
}

// Neighbor is one nearest-neighbor hit: the chunk, a snapshot of its owning
// media item, and the vector similarity in [0,1].
type Neighbor struct {
	Chunk      *models.Chunk
	Media      *models.MediaItem
	Similarity float64
}

// Stats summarizes index contents for status reporting.
type Stats struct {
	MediaTotal   int64 `json:"media_total"`
	MediaIndexed int64 `json:"media_indexed"`
	MediaFailed  int64 `json:"media_failed"`
	Chunks       int64 `json:"chunks"`
}

// Store is the persistence boundary of the pipeline and the query engine.
//
// Stage artifacts (segments, intervals) are written as each stage completes so
// a restart resumes from the last finished stage. Chunks with embeddings and
// the indexed status are committed in a single transaction; queries only ever
// see fully indexed media.
type Store interface {
	// UpsertMediaItem inserts the item or refreshes an existing row by ID.
	UpsertMediaItem(ctx context.Context, item *models.MediaItem) error
	GetMediaItem(ctx context.Context, id string) (*models.MediaItem, error)
	// ListMediaItems returns items filtered by project and status; empty values
	// mean no restriction. Ordered by event date descending.
	ListMediaItems(ctx context.Context, project string, status models.IngestStatus, limit, offset int) ([]*models.MediaItem, error)

	// UpdateStatus records the stage a media item has reached.
	UpdateStatus(ctx context.Context, id string, status models.IngestStatus) error
	// MarkFailed sets status failed with the failure reason. Retryable failures
	// are picked up again by the next ingestion run.
	MarkFailed(ctx context.Context, id string, retryable bool, failure string) error

	// SaveSegments replaces the stored transcript for the media item.
	SaveSegments(ctx context.Context, mediaID string, segments []models.TranscriptSegment) error
	GetSegments(ctx context.Context, mediaID string) ([]models.TranscriptSegment, error)

	// SaveIntervals replaces the stored speaker intervals for the media item
	// and marks its diarization checkpoint complete. An empty set is a valid
	// checkpoint; resume must not re-run a diarization that finished.
	SaveIntervals(ctx context.Context, mediaID string, intervals []models.SpeakerInterval) error
	GetIntervals(ctx context.Context, mediaID string) ([]models.SpeakerInterval, error)

	// CommitChunks atomically replaces the media item's chunks, stores their
	// embeddings, and marks the item indexed. Either everything becomes
	// visible to queries or nothing does.
	CommitChunks(ctx context.Context, mediaID string, chunks []models.Chunk) error
	GetChunks(ctx context.Context, mediaID string) ([]*models.Chunk, error)

	// NearestNeighbors returns up to k chunks of indexed media ordered by
	// descending cosine similarity to query. Filters restrict candidates
	// before the vector comparison. Ties break toward the more recent event
	// date, then lexically by chunk ID.
	NearestNeighbors(ctx context.Context, query []float32, k int, filters models.SearchFilters) ([]Neighbor, error)

	// EnsureIndexMeta records meta on first use and returns ErrModelMismatch
	// if the stored meta disagrees with it.
	EnsureIndexMeta(ctx context.Context, meta IndexMeta) error
	GetIndexMeta(ctx context.Context) (*IndexMeta, error)

	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// New creates a Store for the configured driver.
func New(cfg config.StorageConfig, dimensions int) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return NewSQLiteStore(cfg.DatabasePath)
	case "postgres":
		return NewPostgresStore(cfg.PostgresDSN, dimensions)
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", cfg.Driver)
	}
}
