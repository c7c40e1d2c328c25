package models

// TranscriptSegment is one timed span of transcribed text. Segments from a
// single backend call are sorted by start and pairwise non-overlapping;
// adapters enforce this before the segments reach the rest of the pipeline.
// Immutable once produced.
type TranscriptSegment struct {
	MediaID      string  `json:"media_id" db:"media_id"`
	SegmentIndex int     `json:"segment_index" db:"segment_index"`
	StartSec     float64 `json:"start_sec" db:"start_sec"`
	EndSec       float64 `json:"end_sec" db:"end_sec"`
	Text         string  `json:"text" db:"text"`
	// Confidence is in [0,1]; nil when the backend does not report one.
	Confidence *float64 `json:"confidence,omitempty" db:"confidence"`
	Backend    string   `json:"backend" db:"backend"`
}

// Duration returns the segment length in seconds.
func (s *TranscriptSegment) Duration() float64 {
	return s.EndSec - s.StartSec
}

// SpeakerInterval is a diarized span attributed to one speaker. Labels are
// local to a single file; "A" in one recording is unrelated to "A" in another.
// Intervals are sorted by start and may overlap briefly at speaker changes.
type SpeakerInterval struct {
	MediaID  string  `json:"media_id" db:"media_id"`
	StartSec float64 `json:"start_sec" db:"start_sec"`
	EndSec   float64 `json:"end_sec" db:"end_sec"`
	Speaker  string  `json:"speaker" db:"speaker"`
}

// AlignedSegment is a TranscriptSegment annotated with at most one speaker
// label, chosen by maximal temporal overlap. Speaker is empty when no interval
// overlaps the segment or diarization was skipped. The aligned span is always
// identical to the parent segment's span.
type AlignedSegment struct {
	TranscriptSegment
	Speaker string `json:"speaker,omitempty"`
}
