package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/kikoe/internal/models"
)

func sampleResponse() *models.SearchResponse {
	return &models.SearchResponse{
		Query:     "budget",
		QueryTime: 42,
		Total:     1,
		Results: []*models.SearchResult{
			{
				Rank:         1,
				Score:        0.91,
				Similarity:   0.88,
				LexicalScore: 0.95,
				Chunk: &models.Chunk{
					ID:       "media:a_c0000",
					MediaID:  "media:a",
					Text:     "the quarterly budget was approved",
					StartSec: 754,
					EndSec:   790,
					Speakers: []string{"A", "B"},
				},
				Media: &models.MediaItem{
					ID:        "media:a",
					Filename:  "standup.wav",
					EventDate: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
				},
			},
		},
	}
}

func TestWriteSearchResults_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded models.SearchResponse
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Total != 1 || len(decoded.Results) != 1 {
		t.Errorf("round trip: %+v", decoded)
	}
	if decoded.Results[0].Chunk.Text != "the quarterly budget was approved" {
		t.Errorf("chunk text: %q", decoded.Results[0].Chunk.Text)
	}
}

func TestWriteSearchResults_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"Found 1 results in 42ms",
		"standup.wav",
		"[2026-05-01]",
		"12:34-13:10",
		"speakers: A, B",
		"the quarterly budget was approved",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteSearchResults_Compact(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputCompact); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("compact output should be one line per result:\n%s", buf.String())
	}
	if !strings.Contains(lines[0], "standup.wav") || !strings.Contains(lines[0], "12:34") {
		t.Errorf("compact line: %q", lines[0])
	}
}

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		sec  float64
		want string
	}{
		{0, "00:00"},
		{59.7, "00:59"},
		{754, "12:34"},
		{3600, "1:00:00"},
		{3725, "1:02:05"},
	}
	for _, tt := range tests {
		if got := FormatTimestamp(tt.sec); got != tt.want {
			t.Errorf("FormatTimestamp(%v) = %q, want %q", tt.sec, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Errorf("short string: %q", got)
	}
	if got := Truncate("hello world", 5); got != "hello..." {
		t.Errorf("truncated: %q", got)
	}
	if got := Truncate("hello", 0); got != "hello" {
		t.Errorf("zero max: %q", got)
	}
}
