package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/hyperjump/kikoe/internal/models"
)

// WhisperBackend runs a local whisper helper executable that prints a JSON
// transcript on stdout. The helper contract:
//
//	<helper> --audio <path> --model <model> [--language <iso>]
//
// stdout: {"language": "...", "segments": [{"start": s, "end": s, "text": "...", "confidence": c}]}
type WhisperBackend struct {
	helperPath string
	model      string
}

// NewWhisperBackend creates a backend that invokes helperPath with the given model.
func NewWhisperBackend(helperPath, model string) *WhisperBackend {
	return &WhisperBackend{helperPath: helperPath, model: model}
}

// Name returns the backend identifier.
func (w *WhisperBackend) Name() string { return "whisper" }

type whisperOut struct {
	Language string `json:"language"`
	Segments []struct {
		Start      float64  `json:"start"`
		End        float64  `json:"end"`
		Text       string   `json:"text"`
		Confidence *float64 `json:"confidence"`
	} `json:"segments"`
}

// Transcribe runs the helper and parses its JSON output.
func (w *WhisperBackend) Transcribe(ctx context.Context, audioPath, language string) ([]models.TranscriptSegment, error) {
	args := []string{"--audio", audioPath, "--model", w.model}
	if language != "" {
		args = append(args, "--language", language)
	}
	cmd := exec.CommandContext(ctx, w.helperPath, args...)
	out, err := cmd.Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return nil, fmt.Errorf("%w: %s", ErrUnavailable, strings.TrimSpace(string(ee.Stderr)))
		}
		return nil, fmt.Errorf("%w: run helper: %v", ErrUnavailable, err)
	}
	var parsed whisperOut
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("parse helper output: %w", err)
	}
	segments := make([]models.TranscriptSegment, 0, len(parsed.Segments))
	for _, s := range parsed.Segments {
		segments = append(segments, models.TranscriptSegment{
			StartSec:   s.Start,
			EndSec:     s.End,
			Text:       strings.TrimSpace(s.Text),
			Confidence: s.Confidence,
			Backend:    w.Name(),
		})
	}
	return Normalize(segments), nil
}
