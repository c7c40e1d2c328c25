// Package pipeline drives media items through transcription, diarization,
// alignment, chunking, and embedding into the index.
package pipeline

import (
	"errors"

	"github.com/hyperjump/kikoe/internal/diarize"
	"github.com/hyperjump/kikoe/internal/embedding"
	"github.com/hyperjump/kikoe/internal/media"
	"github.com/hyperjump/kikoe/internal/store"
	"github.com/hyperjump/kikoe/internal/transcribe"
)

// ErrConsistency marks an invariant violation in pipeline output, e.g. an
// aligned span escaping its parent segment. The item fails and is never
// silently corrected.
var ErrConsistency = errors.New("pipeline: consistency violation")

// FailureClass decides how a stage error is handled.
type FailureClass int

const (
	// ClassTransient failures (network, quota, timeout) are retried with
	// backoff; exhausted retries leave the item failed but retryable.
	ClassTransient FailureClass = iota
	// ClassPermanent failures (corrupt or unsupported input) fail the item
	// with no retry.
	ClassPermanent
	// ClassConfiguration failures (model or dimension mismatch) abort the
	// whole run before any item is touched.
	ClassConfiguration
	// ClassConsistency failures are pipeline bugs surfaced by invariant
	// checks; the item fails and the error is logged loudly.
	ClassConsistency
)

// Classify maps a stage error onto its failure class. Unknown errors are
// treated as permanent so a broken input cannot loop forever.
func Classify(err error) FailureClass {
	switch {
	case errors.Is(err, transcribe.ErrUnavailable),
		errors.Is(err, transcribe.ErrTimeout),
		errors.Is(err, diarize.ErrUnavailable),
		errors.Is(err, embedding.ErrUnavailable):
		return ClassTransient
	case errors.Is(err, media.ErrUnsupportedFormat),
		errors.Is(err, transcribe.ErrUnsupportedFormat):
		return ClassPermanent
	case errors.Is(err, store.ErrModelMismatch):
		return ClassConfiguration
	case errors.Is(err, ErrConsistency):
		return ClassConsistency
	default:
		return ClassPermanent
	}
}

// Retryable reports whether a failed item may be picked up by a later run.
func Retryable(err error) bool {
	return Classify(err) == ClassTransient
}
