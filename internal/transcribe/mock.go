package transcribe

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/hyperjump/kikoe/internal/models"
)

// MockBackend returns canned segments for tests and records how many times it
// was invoked, so resume tests can assert transcription is not re-paid.
type MockBackend struct {
	Segments []models.TranscriptSegment
	Err      error
	calls    atomic.Int64

	mu       sync.Mutex
	lastLang string
}

// Name returns the backend identifier.
func (m *MockBackend) Name() string { return "mock" }

// Transcribe returns the canned segments (normalized) or the canned error.
func (m *MockBackend) Transcribe(ctx context.Context, audioPath, language string) ([]models.TranscriptSegment, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.lastLang = language
	m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]models.TranscriptSegment, len(m.Segments))
	copy(out, m.Segments)
	for i := range out {
		out[i].Backend = m.Name()
	}
	return Normalize(out), nil
}

// Calls returns how many times Transcribe was invoked.
func (m *MockBackend) Calls() int64 { return m.calls.Load() }

// LastLanguage returns the language hint from the most recent call.
func (m *MockBackend) LastLanguage() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastLang
}
