package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/hyperjump/kikoe/internal/models"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIBackend transcribes audio through an OpenAI-compatible
// audio/transcriptions endpoint, requesting verbose_json for segment timings.
type OpenAIBackend struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewOpenAIBackend creates a hosted transcription backend. baseURL may be
// empty to use the OpenAI API; any server implementing the same endpoint works.
func NewOpenAIBackend(apiKey, model, baseURL string) *OpenAIBackend {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAIBackend{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{},
	}
}

// Name returns the backend identifier.
func (o *OpenAIBackend) Name() string { return "openai" }

type openAIVerboseResp struct {
	Language string `json:"language"`
	Segments []struct {
		Start      float64 `json:"start"`
		End        float64 `json:"end"`
		Text       string  `json:"text"`
		AvgLogprob float64 `json:"avg_logprob"`
	} `json:"segments"`
	Text string `json:"text"`
}

// Transcribe uploads the audio as multipart form data and parses the
// verbose_json response into timed segments.
func (o *OpenAIBackend) Transcribe(ctx context.Context, audioPath, language string) ([]models.TranscriptSegment, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("model", o.model); err != nil {
		return nil, err
	}
	if err := mw.WriteField("response_format", "verbose_json"); err != nil {
		return nil, err
	}
	if language != "" {
		if err := mw.WriteField("language", language); err != nil {
			return nil, err
		}
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := o.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnsupportedMediaType || resp.StatusCode == http.StatusUnprocessableEntity:
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: http %d: %s", ErrUnsupportedFormat, resp.StatusCode, string(b))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: http %d: %s", ErrUnavailable, resp.StatusCode, string(b))
	case resp.StatusCode >= 300:
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("transcription http %d: %s", resp.StatusCode, string(b))
	}

	var parsed openAIVerboseResp
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	segments := make([]models.TranscriptSegment, 0, len(parsed.Segments))
	for _, s := range parsed.Segments {
		conf := logprobToConfidence(s.AvgLogprob)
		segments = append(segments, models.TranscriptSegment{
			StartSec:   s.Start,
			EndSec:     s.End,
			Text:       s.Text,
			Confidence: conf,
			Backend:    o.Name(),
		})
	}
	// Some servers omit segment timings and return only full text.
	if len(segments) == 0 && parsed.Text != "" {
		segments = append(segments, models.TranscriptSegment{
			StartSec: 0,
			EndSec:   0.001,
			Text:     parsed.Text,
			Backend:  o.Name(),
		})
	}
	return Normalize(segments), nil
}

// logprobToConfidence maps an average log-probability to a rough [0,1]
// confidence. Engines report different scales, so this is a monotonic squash,
// not a calibrated probability. Returns nil for the zero value (not reported).
func logprobToConfidence(avgLogprob float64) *float64 {
	if avgLogprob == 0 {
		return nil
	}
	c := 1.0 + avgLogprob // logprob near 0 is high confidence; -1 and below is low
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	return &c
}
