// Package media provides media file discovery and probing.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ErrUnsupportedFormat indicates a file that cannot be decoded as audio/video.
// It is a permanent input error: retrying will not help.
var ErrUnsupportedFormat = errors.New("unsupported media format")

// ProbeResult holds basic metadata extracted from a media file.
type ProbeResult struct {
	DurationSeconds float64
	Format          string
}

// Prober extracts duration and format metadata from a media file.
type Prober interface {
	Probe(ctx context.Context, path string) (*ProbeResult, error)
}

// FFProbe probes media files by shelling out to ffprobe.
type FFProbe struct {
	// Binary overrides the ffprobe executable name; empty uses "ffprobe".
	Binary string
}

type ffprobeOut struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
}

// Probe runs ffprobe on path. A decode failure is reported as ErrUnsupportedFormat.
func (p *FFProbe) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	bin := p.Binary
	if bin == "" {
		bin = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, bin,
		"-v", "error",
		"-show_entries", "format=format_name,duration",
		"-of", "json",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, strings.TrimSpace(string(ee.Stderr)))
		}
		return nil, fmt.Errorf("run ffprobe: %w", err)
	}
	var parsed ffprobeOut
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if parsed.Format.FormatName == "" {
		return nil, fmt.Errorf("%w: no format detected for %s", ErrUnsupportedFormat, path)
	}
	result := &ProbeResult{Format: parsed.Format.FormatName}
	if parsed.Format.Duration != "" {
		d, err := strconv.ParseFloat(parsed.Format.Duration, 64)
		if err != nil {
			return nil, fmt.Errorf("parse duration %q: %w", parsed.Format.Duration, err)
		}
		result.DurationSeconds = d
	}
	return result, nil
}
