package transcribe

import (
	"sort"
	"strings"

	"github.com/hyperjump/kikoe/internal/models"
)

// Normalize sorts segments by start time, resolves overlaps by truncating the
// earlier segment's end to the next segment's start, drops segments that end
// up empty or inverted, and renumbers indices. Backends call this before
// returning so that downstream stages can rely on sorted, non-overlapping input.
func Normalize(segments []models.TranscriptSegment) []models.TranscriptSegment {
	out := make([]models.TranscriptSegment, 0, len(segments))
	for _, s := range segments {
		s.Text = strings.TrimSpace(s.Text)
		if s.Text == "" {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartSec < out[j].StartSec })

	normalized := out[:0]
	for i := 0; i < len(out); i++ {
		s := out[i]
		if i+1 < len(out) && s.EndSec > out[i+1].StartSec {
			s.EndSec = out[i+1].StartSec
		}
		if s.EndSec <= s.StartSec {
			continue
		}
		normalized = append(normalized, s)
	}
	for i := range normalized {
		normalized[i].SegmentIndex = i
	}
	return normalized
}
