// Package transcribe provides pluggable transcription backends.
package transcribe

import (
	"context"
	"errors"

	"github.com/hyperjump/kikoe/internal/models"
)

// Backend errors. ErrUnavailable and ErrTimeout are transient (retryable);
// ErrUnsupportedFormat is permanent.
var (
	ErrUnsupportedFormat = errors.New("transcription: unsupported format")
	ErrUnavailable       = errors.New("transcription: backend unavailable")
	ErrTimeout           = errors.New("transcription: timed out")
)

// Backend is a pluggable transcription engine. Implementations must return
// segments sorted by start time and pairwise non-overlapping (Normalize
// enforces this for engines that do not guarantee it), and must clean up any
// temporary files on all exit paths.
//
// language is an optional ISO code hint; backends may ignore it.
type Backend interface {
	// Name identifies the backend; recorded on every segment it produces.
	Name() string
	Transcribe(ctx context.Context, audioPath, language string) ([]models.TranscriptSegment, error)
}
