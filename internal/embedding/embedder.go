// Package embedding provides text embedding via Ollama or ONNX, with caching.
package embedding

import "context"

// Embedder produces vector embeddings for text. Embedding one text or a batch
// must yield the same vectors (no cross-text leakage); batching is purely an
// optimization. Vectors are L2-normalized so inner product equals cosine
// similarity.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions is the fixed output dimension D. It must match the dimension
	// recorded in the index store; a mismatch is a startup configuration error.
	Dimensions() int
	// ModelName identifies the embedding model. Recorded in the index store and
	// checked on every query so vectors from different models are never compared.
	ModelName() string
	Close() error
}
