// Package chunker groups aligned transcript segments into embedding-sized chunks.
package chunker

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hyperjump/kikoe/internal/models"
)

// Chunker accumulates aligned segments into chunks up to a character budget.
// Chunk boundaries never split a segment; a single segment longer than the
// budget becomes its own oversized chunk. Output is fully determined by the
// input: re-chunking identical aligned segments yields byte-identical chunks,
// which the index layer relies on for change detection.
type Chunker struct {
	maxChars     int
	overlapChars int
}

// NewChunker creates a chunker with the given character budget and overlap.
// overlapChars re-seeds each new chunk with that much trailing text from the
// previous chunk to preserve context across boundaries; 0 disables it.
func NewChunker(maxChars, overlapChars int) *Chunker {
	return &Chunker{maxChars: maxChars, overlapChars: overlapChars}
}

// Chunk groups segments into chunks for mediaID. Segments must be in
// transcript order. Empty input returns nil.
func (c *Chunker) Chunk(mediaID string, segments []models.AlignedSegment) []*models.Chunk {
	if len(segments) == 0 {
		return nil
	}
	var chunks []*models.Chunk
	var cur []models.AlignedSegment
	text := ""
	body := "" // chunk text without the overlap seed

	flush := func() {
		if len(cur) == 0 {
			return
		}
		chunks = append(chunks, c.build(mediaID, len(chunks), text, cur))
		seed := ""
		if c.overlapChars > 0 {
			seed = tail(body, c.overlapChars)
		}
		cur = nil
		text = seed
		body = ""
	}

	for _, seg := range segments {
		candidate := appendText(text, seg.Text)
		if len(cur) > 0 && len(candidate) > c.maxChars {
			flush()
			candidate = appendText(text, seg.Text)
		}
		cur = append(cur, seg)
		text = candidate
		body = appendText(body, seg.Text)
	}
	flush()
	return chunks
}

func appendText(text, next string) string {
	if text == "" {
		return next
	}
	return text + " " + next
}

func (c *Chunker) build(mediaID string, index int, text string, segs []models.AlignedSegment) *models.Chunk {
	return &models.Chunk{
		ID:         fmt.Sprintf("%s_c%04d", mediaID, index),
		MediaID:    mediaID,
		ChunkIndex: index,
		Text:       text,
		StartSec:   segs[0].StartSec,
		EndSec:     segs[len(segs)-1].EndSec,
		Speakers:   speakerSet(segs),
	}
}

// tail returns the last n characters of s, trimmed to a word boundary so the
// seed never starts mid-word.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := s[len(s)-n:]
	if idx := strings.IndexByte(cut, ' '); idx >= 0 && idx+1 < len(cut) {
		cut = cut[idx+1:]
	}
	return cut
}

func speakerSet(segs []models.AlignedSegment) []string {
	seen := make(map[string]bool)
	var speakers []string
	for _, s := range segs {
		if s.Speaker != "" && !seen[s.Speaker] {
			seen[s.Speaker] = true
			speakers = append(speakers, s.Speaker)
		}
	}
	sort.Strings(speakers)
	return speakers
}
