// Package models defines core data structures for media items, transcript
// segments, chunks, queries, and search results.
package models

import "time"

// IngestStatus is the pipeline stage a media item has reached. Each value is a
// checkpoint: on restart an item resumes from the stage after its recorded status.
type IngestStatus string

const (
	StatusDiscovered   IngestStatus = "discovered"
	StatusTranscribing IngestStatus = "transcribing"
	StatusDiarizing    IngestStatus = "diarizing"
	StatusAligning     IngestStatus = "aligning"
	StatusEmbedding    IngestStatus = "embedding"
	StatusIndexed      IngestStatus = "indexed"
	StatusFailed       IngestStatus = "failed"
)

// Valid reports whether s is a known status value.
func (s IngestStatus) Valid() bool {
	switch s {
	case StatusDiscovered, StatusTranscribing, StatusDiarizing,
		StatusAligning, StatusEmbedding, StatusIndexed, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the item needs no further pipeline work.
func (s IngestStatus) Terminal() bool {
	return s == StatusIndexed || s == StatusFailed
}

// MediaItem is a discovered media file and its ingestion state.
type MediaItem struct {
	ID              string       `json:"id" db:"id"`
	Path            string       `json:"path" db:"path"`
	Filename        string       `json:"filename" db:"filename"`
	Project         string       `json:"project" db:"project"`
	EventDate       time.Time    `json:"event_date" db:"event_date"`
	DurationSeconds float64      `json:"duration_seconds" db:"duration_seconds"`
	Format          string       `json:"format" db:"format"`
	Language        string       `json:"language,omitempty" db:"language"`
	Status          IngestStatus `json:"status" db:"status"`
	// Retryable is meaningful only when Status is StatusFailed.
	Retryable bool   `json:"retryable,omitempty" db:"retryable"`
	Failure   string `json:"failure,omitempty" db:"failure"`
	// Diarized records that a diarization pass completed and checkpointed its
	// intervals, even when zero speakers were found.
	Diarized bool `json:"diarized,omitempty" db:"diarized"`
	// IngestVersion counts ingestion passes over this file; retrying a failed
	// item starts a new pass. Each pass replaces superseded stage artifacts
	// wholesale rather than editing them row by row.
	IngestVersion int       `json:"ingest_version" db:"ingest_version"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}
