package search

import (
	"testing"

	"github.com/hyperjump/kikoe/internal/keyword"
)

func TestNormalizeHits(t *testing.T) {
	hits := []keyword.Hit{
		{ChunkID: "a", Score: 4},
		{ChunkID: "b", Score: 2},
		{ChunkID: "c", Score: 1},
	}
	got := NormalizeHits(hits)
	if got["a"] != 1 || got["b"] != 0.5 || got["c"] != 0.25 {
		t.Errorf("normalized: %v", got)
	}

	if got := NormalizeHits(nil); len(got) != 0 {
		t.Errorf("nil hits: %v", got)
	}
	if got := NormalizeHits([]keyword.Hit{{ChunkID: "a", Score: 0}}); len(got) != 0 {
		t.Errorf("zero scores should normalize to nothing, got %v", got)
	}
}

func TestBlendScore(t *testing.T) {
	tests := []struct {
		name       string
		similarity float64
		lexical    float64
		rerank     bool
		weight     float64
		want       float64
	}{
		{"rerank off ignores lexical", 0.8, 1.0, false, 0.3, 0.8},
		{"rerank blends", 0.8, 1.0, true, 0.3, 0.86},
		{"zero weight is pure similarity", 0.8, 1.0, true, 0, 0.8},
		{"full weight is pure lexical", 0.8, 0.5, true, 1, 0.5},
		{"weight clamped above", 0.8, 0.5, true, 2, 0.5},
		{"weight clamped below", 0.8, 0.5, true, -1, 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BlendScore(tt.similarity, tt.lexical, tt.rerank, tt.weight)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("BlendScore = %f, want %f", got, tt.want)
			}
		})
	}
}
