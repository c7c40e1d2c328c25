package diarize

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/hyperjump/kikoe/internal/models"
)

// GapBackend is a minimal heuristic diarizer: it detects silence gaps with
// ffmpeg's silencedetect filter and alternates between two speaker labels
// across gaps longer than a threshold. A crude stand-in for a proper
// diarization model, useful when no helper is installed.
type GapBackend struct {
	// GapThresholdSec is the minimum silence length treated as a speaker
	// change. Zero uses 1.5s.
	GapThresholdSec float64
	// DurationSeconds is the total audio length, used to close the final
	// interval. Zero falls back to the last detected speech boundary.
	DurationSeconds float64
}

// Name returns the backend identifier.
func (g *GapBackend) Name() string { return "gap" }

// Diarize detects silences and emits alternating two-speaker intervals.
func (g *GapBackend) Diarize(ctx context.Context, audioPath string) ([]models.SpeakerInterval, error) {
	threshold := g.GapThresholdSec
	if threshold == 0 {
		threshold = 1.5
	}
	noise := fmt.Sprintf("silencedetect=noise=-30dB:d=%.2f", threshold)
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", audioPath,
		"-af", noise,
		"-f", "null", "-",
	)
	// silencedetect reports on stderr.
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start ffmpeg: %v", ErrUnavailable, err)
	}
	starts, ends := parseSilences(stderr)
	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: ffmpeg silencedetect: %v", ErrUnavailable, err)
	}
	return g.intervalsFromSilences(starts, ends), nil
}

// parseSilences extracts silence_start/silence_end timestamps from ffmpeg output.
func parseSilences(r interface{ Read([]byte) (int, error) }) (starts, ends []float64) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if v, ok := fieldAfter(line, "silence_start:"); ok {
			starts = append(starts, v)
		}
		if v, ok := fieldAfter(line, "silence_end:"); ok {
			ends = append(ends, v)
		}
	}
	return starts, ends
}

func fieldAfter(line, marker string) (float64, bool) {
	idx := strings.Index(line, marker)
	if idx < 0 {
		return 0, false
	}
	rest := strings.TrimSpace(line[idx+len(marker):])
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// intervalsFromSilences turns silence boundaries into alternating speech
// intervals: speech runs from each silence end to the next silence start.
func (g *GapBackend) intervalsFromSilences(starts, ends []float64) []models.SpeakerInterval {
	labels := [2]string{"SPEAKER_00", "SPEAKER_01"}
	var intervals []models.SpeakerInterval
	speechStart := 0.0
	speaker := 0
	for i, silStart := range starts {
		if silStart > speechStart {
			intervals = append(intervals, models.SpeakerInterval{
				StartSec: speechStart,
				EndSec:   silStart,
				Speaker:  labels[speaker],
			})
			speaker = 1 - speaker
		}
		if i < len(ends) {
			speechStart = ends[i]
		}
	}
	end := g.DurationSeconds
	if end == 0 && len(intervals) > 0 {
		end = intervals[len(intervals)-1].EndSec
	}
	if end > speechStart {
		intervals = append(intervals, models.SpeakerInterval{
			StartSec: speechStart,
			EndSec:   end,
			Speaker:  labels[speaker],
		})
	}
	return Normalize(intervals)
}
