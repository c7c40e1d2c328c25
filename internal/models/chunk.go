package models

import "time"

// Chunk is an ordered concatenation of aligned segments sized for embedding.
// Chunk boundaries never split a segment; a single oversized segment becomes
// its own chunk. Chunks are derived deterministically from aligned input, so
// re-chunking identical input yields byte-identical chunks.
type Chunk struct {
	ID         string  `json:"id" db:"id"`
	MediaID    string  `json:"media_id" db:"media_id"`
	ChunkIndex int     `json:"chunk_index" db:"chunk_index"`
	Text       string  `json:"text" db:"text"`
	StartSec   float64 `json:"start_sec" db:"start_sec"`
	EndSec     float64 `json:"end_sec" db:"end_sec"`
	// Speakers are the distinct labels of the constituent segments, sorted.
	Speakers []string `json:"speakers,omitempty" db:"speakers"`
	// Embedding is the vector for Text. Created once, never mutated;
	// re-embedding happens under a new ingest version.
	Embedding []float32 `json:"-" db:"-"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
