package models

// SearchResult is a single query hit: a chunk, its similarity score, and a
// snapshot of the owning media item's metadata. Constructed per query, never
// persisted.
type SearchResult struct {
	Chunk *Chunk `json:"chunk"`
	Media *MediaItem `json:"media"`
	// Score is the fused score used for ordering (similarity, optionally
	// blended with a lexical signal during re-ranking).
	Score float64 `json:"score"`
	// Similarity is the raw vector similarity in [0,1].
	Similarity float64 `json:"similarity"`
	// LexicalScore is the normalized lexical re-rank signal, 0 when re-ranking
	// was disabled or the chunk had no lexical match.
	LexicalScore float64 `json:"lexical_score,omitempty"`
	Rank         int     `json:"rank"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Results   []*SearchResult `json:"results"`
	Total     int             `json:"total"`
	QueryTime int64           `json:"query_time_ms"`
	Query     string          `json:"query"`
}
