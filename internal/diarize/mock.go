package diarize

import (
	"context"
	"sync/atomic"

	"github.com/hyperjump/kikoe/internal/models"
)

// MockBackend returns canned intervals for tests.
type MockBackend struct {
	Intervals []models.SpeakerInterval
	Err       error
	calls     atomic.Int64
}

// Name returns the backend identifier.
func (m *MockBackend) Name() string { return "mock" }

// Diarize returns the canned intervals (normalized) or the canned error.
func (m *MockBackend) Diarize(ctx context.Context, audioPath string) ([]models.SpeakerInterval, error) {
	m.calls.Add(1)
	if m.Err != nil {
		return nil, m.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]models.SpeakerInterval, len(m.Intervals))
	copy(out, m.Intervals)
	return Normalize(out), nil
}

// Calls returns how many times Diarize was invoked.
func (m *MockBackend) Calls() int64 { return m.calls.Load() }
