//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"
)

var errONNXDisabled = errors.New("onnx provider requires CGO; build with CGO_ENABLED=1 and onnxruntime, or use the ollama provider")

// ONNXEmbedder stub for builds without CGO (see onnx.go for the real implementation).
type ONNXEmbedder struct{}

// NewONNXEmbedder always fails when built without CGO.
func NewONNXEmbedder(_ string, _, _, _ int) (*ONNXEmbedder, error) {
	return nil, errONNXDisabled
}

func (e *ONNXEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return nil, errONNXDisabled
}

func (e *ONNXEmbedder) EmbedBatch(_ context.Context, _ []string) ([][]float32, error) {
	return nil, errONNXDisabled
}

func (e *ONNXEmbedder) Dimensions() int { return 0 }

func (e *ONNXEmbedder) ModelName() string { return "onnx-disabled" }

func (e *ONNXEmbedder) Close() error { return nil }
