package diarize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/hyperjump/kikoe/internal/models"
)

// PyannoteBackend runs a local diarization helper executable that prints a
// JSON speaker timeline on stdout. The helper contract:
//
//	<helper> --audio <path>
//
// stdout: {"turns": [{"start": s, "end": s, "speaker": "SPEAKER_00"}]}
type PyannoteBackend struct {
	helperPath string
}

// NewPyannoteBackend creates a backend that invokes helperPath.
func NewPyannoteBackend(helperPath string) *PyannoteBackend {
	return &PyannoteBackend{helperPath: helperPath}
}

// Name returns the backend identifier.
func (p *PyannoteBackend) Name() string { return "pyannote" }

type pyannoteOut struct {
	Turns []struct {
		Start   float64 `json:"start"`
		End     float64 `json:"end"`
		Speaker string  `json:"speaker"`
	} `json:"turns"`
}

// Diarize runs the helper and parses its JSON output.
func (p *PyannoteBackend) Diarize(ctx context.Context, audioPath string) ([]models.SpeakerInterval, error) {
	cmd := exec.CommandContext(ctx, p.helperPath, "--audio", audioPath)
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return nil, fmt.Errorf("%w: %s", ErrUnavailable, strings.TrimSpace(string(ee.Stderr)))
		}
		return nil, fmt.Errorf("%w: run helper: %v", ErrUnavailable, err)
	}
	var parsed pyannoteOut
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("parse helper output: %w", err)
	}
	intervals := make([]models.SpeakerInterval, 0, len(parsed.Turns))
	for _, turn := range parsed.Turns {
		intervals = append(intervals, models.SpeakerInterval{
			StartSec: turn.Start,
			EndSec:   turn.End,
			Speaker:  turn.Speaker,
		})
	}
	return Normalize(intervals), nil
}
