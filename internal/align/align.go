// Package align merges transcript segments with diarized speaker intervals.
package align

import "github.com/hyperjump/kikoe/internal/models"

// Align labels each transcript segment with the speaker whose interval has
// maximal temporal overlap with it, leaving the segment unlabeled when nothing
// overlaps. Ties are broken by the earliest interval start, so the result is
// deterministic. With no intervals (diarization skipped or failed) every
// segment comes back unlabeled.
//
// Both inputs must be sorted by start time; segments must be non-overlapping
// (the transcribe package normalizes them). A two-pointer sweep keeps the cost
// near-linear even for files with tens of thousands of segments.
func Align(segments []models.TranscriptSegment, intervals []models.SpeakerInterval) []models.AlignedSegment {
	out := make([]models.AlignedSegment, len(segments))
	front := 0
	for i, seg := range segments {
		// Intervals ending at or before this segment's start can never overlap
		// this or any later segment.
		for front < len(intervals) && intervals[front].EndSec <= seg.StartSec {
			front++
		}
		best := ""
		bestOverlap := 0.0
		bestStart := 0.0
		for j := front; j < len(intervals) && intervals[j].StartSec < seg.EndSec; j++ {
			ov := overlap(seg, intervals[j])
			if ov <= 0 {
				continue
			}
			if ov > bestOverlap || (ov == bestOverlap && intervals[j].StartSec < bestStart) {
				best = intervals[j].Speaker
				bestOverlap = ov
				bestStart = intervals[j].StartSec
			}
		}
		out[i] = models.AlignedSegment{TranscriptSegment: seg, Speaker: best}
	}
	return out
}

func overlap(seg models.TranscriptSegment, iv models.SpeakerInterval) float64 {
	start := seg.StartSec
	if iv.StartSec > start {
		start = iv.StartSec
	}
	end := seg.EndSec
	if iv.EndSec < end {
		end = iv.EndSec
	}
	if end <= start {
		return 0
	}
	return end - start
}
