package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/hyperjump/kikoe/internal/vector"
)

// ErrUnavailable indicates a transient embedding backend failure (network, quota).
var ErrUnavailable = errors.New("embedding: backend unavailable")

// OllamaEmbedder produces embeddings through the Ollama REST API. It is the
// default embedder because it needs no CGO; any server implementing
// /api/embed works.
type OllamaEmbedder struct {
	baseURL    string
	model      string
	dimensions int
	cache      *EmbeddingCache
	client     *http.Client
}

// NewOllamaEmbedder creates an Ollama-backed embedder. dimensions must match
// what the model actually produces; the first embedding call verifies it.
func NewOllamaEmbedder(baseURL, model string, dimensions, cacheSize int) *OllamaEmbedder {
	return &OllamaEmbedder{
		baseURL:    baseURL,
		model:      model,
		dimensions: dimensions,
		cache:      NewEmbeddingCache(cacheSize),
		client:     &http.Client{},
	}
}

type ollamaEmbedResp struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed returns the embedding for text, using the cache when available.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.Get(text); ok {
		return cached, nil
	}
	vecs, err := e.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("ollama embed: expected 1 vector, got %d", len(vecs))
	}
	e.cache.Set(text, vecs[0])
	return vecs[0], nil
}

// EmbedBatch embeds texts in one API call. Uncached texts are requested
// together; results are identical to embedding each text alone.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if cached, ok := e.cache.Get(text); ok {
			out[i] = cached
		} else {
			missing = append(missing, text)
			missingIdx = append(missingIdx, i)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}
	vecs, err := e.request(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("ollama embed: expected %d vectors, got %d", len(missing), len(vecs))
	}
	for i, v := range vecs {
		e.cache.Set(missing[i], v)
		out[missingIdx[i]] = v
	}
	return out, nil
}

func (e *OllamaEmbedder) request(ctx context.Context, input []string) ([][]float32, error) {
	payload := map[string]interface{}{
		"model": e.model,
		"input": input,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: http %d: %s", ErrUnavailable, resp.StatusCode, string(b))
		}
		return nil, fmt.Errorf("ollama embed http %d: %s", resp.StatusCode, string(b))
	}
	var parsed ollamaEmbedResp
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("ollama embed decode: %w", err)
	}
	for _, v := range parsed.Embeddings {
		if len(v) != e.dimensions {
			return nil, fmt.Errorf("model %q produced %d dimensions, configured %d", e.model, len(v), e.dimensions)
		}
		vector.NormalizeL2(v)
	}
	return parsed.Embeddings, nil
}

// Dimensions returns the configured embedding dimension.
func (e *OllamaEmbedder) Dimensions() int {
	return e.dimensions
}

// ModelName returns the Ollama model identifier.
func (e *OllamaEmbedder) ModelName() string {
	return e.model
}

// Close is a no-op for OllamaEmbedder.
func (e *OllamaEmbedder) Close() error {
	return nil
}
