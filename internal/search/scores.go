package search

import (
	"github.com/hyperjump/kikoe/internal/keyword"
)

// NormalizeHits maps lexical hits to [0,1] scores keyed by chunk ID, dividing
// by the best score. Bleve scores are query-relative, so only the ratio is
// meaningful.
func NormalizeHits(hits []keyword.Hit) map[string]float64 {
	normalized := make(map[string]float64, len(hits))
	if len(hits) == 0 {
		return normalized
	}
	maxScore := hits[0].Score
	for _, h := range hits {
		if h.Score > maxScore {
			maxScore = h.Score
		}
	}
	if maxScore <= 0 {
		return normalized
	}
	for _, h := range hits {
		normalized[h.ChunkID] = h.Score / maxScore
	}
	return normalized
}

// BlendScore fuses vector similarity with the normalized lexical score. With
// re-ranking off the similarity is the score. The weight keeps similarity
// dominant; lexical matching only nudges the order of close candidates.
func BlendScore(similarity, lexical float64, rerank bool, weight float64) float64 {
	if !rerank {
		return similarity
	}
	if weight < 0 {
		weight = 0
	}
	if weight > 1 {
		weight = 1
	}
	return (1-weight)*similarity + weight*lexical
}
