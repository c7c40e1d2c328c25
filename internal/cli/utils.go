// Package cli renders search results and other command output.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/kikoe/internal/models"
)

// SearchOutputFormat is the format for search result output.
type SearchOutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText SearchOutputFormat = "text"
	// OutputCompact is one result per line, grep-friendly.
	OutputCompact SearchOutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON SearchOutputFormat = "json"
)

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format SearchOutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	case OutputCompact:
		writeSearchResultsCompact(w, response)
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	fmt.Fprintf(w, "\nFound %d results in %dms\n\n", response.Total, response.QueryTime)
	for _, result := range response.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank %d | score %.4f (similarity %.4f", result.Rank, result.Score, result.Similarity)
		if result.LexicalScore > 0 {
			fmt.Fprintf(w, ", lexical %.4f", result.LexicalScore)
		}
		fmt.Fprintln(w, ")")
		if result.Media != nil {
			fmt.Fprintf(w, "%s", result.Media.Filename)
			if !result.Media.EventDate.IsZero() {
				fmt.Fprintf(w, "  [%s]", result.Media.EventDate.Format("2006-01-02"))
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s-%s", FormatTimestamp(result.Chunk.StartSec), FormatTimestamp(result.Chunk.EndSec))
		if len(result.Chunk.Speakers) > 0 {
			fmt.Fprintf(w, "  speakers: %s", strings.Join(result.Chunk.Speakers, ", "))
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "\n%s\n\n", Truncate(result.Chunk.Text, 300))
	}
}

func writeSearchResultsCompact(w io.Writer, response *models.SearchResponse) {
	for _, result := range response.Results {
		filename := ""
		if result.Media != nil {
			filename = result.Media.Filename
		}
		fmt.Fprintf(w, "%.4f\t%s\t%s\t%s\n",
			result.Score,
			filename,
			FormatTimestamp(result.Chunk.StartSec),
			Truncate(result.Chunk.Text, 120))
	}
}

// FormatTimestamp renders seconds as HH:MM:SS, or MM:SS under an hour.
func FormatTimestamp(sec float64) string {
	total := int(sec)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// Truncate truncates s to maxLen and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
