package models

import (
	"fmt"
	"time"
)

// SearchFilters restrict candidates before the vector comparison.
// Zero values mean "no restriction".
type SearchFilters struct {
	Project  string    `json:"project,omitempty"`
	MediaID  string    `json:"media_id,omitempty"`
	DateFrom time.Time `json:"date_from,omitempty"`
	DateTo   time.Time `json:"date_to,omitempty"`
}

// SearchQuery is a natural-language search request over indexed transcripts.
type SearchQuery struct {
	Query   string        `json:"query"`
	Limit   int           `json:"limit,omitempty"`
	Filters SearchFilters `json:"filters,omitempty"`
	// MinScore drops results below this similarity; 0 uses the configured floor.
	MinScore float64 `json:"min_score,omitempty"`
	// Rerank enables lexical re-ranking of the top candidates; nil uses the
	// configured default.
	Rerank *bool `json:"rerank,omitempty"`
}

// Validate ensures the query has valid fields and normalizes the limit.
// Returns an error if the query text is empty.
func (q *SearchQuery) Validate() error {
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	if !q.Filters.DateFrom.IsZero() && !q.Filters.DateTo.IsZero() && q.Filters.DateTo.Before(q.Filters.DateFrom) {
		return fmt.Errorf("date_to precedes date_from")
	}
	return nil
}
