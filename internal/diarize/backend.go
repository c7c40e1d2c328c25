// Package diarize provides pluggable speaker diarization backends.
package diarize

import (
	"context"
	"errors"
	"sort"

	"github.com/hyperjump/kikoe/internal/models"
)

// ErrUnavailable indicates a transient backend failure. Diarization failures
// never fail ingestion; the pipeline degrades to unlabeled segments.
var ErrUnavailable = errors.New("diarization: backend unavailable")

// Backend is a pluggable diarization engine. Implementations return intervals
// sorted by start time; brief overlaps at speaker-change boundaries are
// expected and allowed, but every interval must have positive duration.
type Backend interface {
	Name() string
	Diarize(ctx context.Context, audioPath string) ([]models.SpeakerInterval, error)
}

// Normalize sorts intervals by start and drops any with non-positive duration.
func Normalize(intervals []models.SpeakerInterval) []models.SpeakerInterval {
	out := make([]models.SpeakerInterval, 0, len(intervals))
	for _, iv := range intervals {
		if iv.EndSec > iv.StartSec {
			out = append(out, iv)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartSec < out[j].StartSec })
	return out
}
