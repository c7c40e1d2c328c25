package search

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/kikoe/internal/config"
	"github.com/hyperjump/kikoe/internal/embedding"
	"github.com/hyperjump/kikoe/internal/keyword"
	"github.com/hyperjump/kikoe/internal/models"
	"github.com/hyperjump/kikoe/internal/store"
)

const testDims = 8

func testSearchConfig() *config.SearchConfig {
	return &config.SearchConfig{
		DefaultLimit:   10,
		MaxLimit:       100,
		TopKCandidates: 50,
		RerankWeight:   0.3,
	}
}

func newTestEngine(t *testing.T) (*Engine, *store.SQLiteStore, *keyword.BleveIndex, embedding.Embedder) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.NewSQLiteStore(filepath.Join(dir, "kikoe.db"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	lex, err := keyword.NewBleveIndex(filepath.Join(dir, "bleve"))
	if err != nil {
		t.Fatalf("bleve: %v", err)
	}
	t.Cleanup(func() { _ = lex.Close() })
	embedder := embedding.NewMockEmbedder(testDims)
	return NewEngine(st, embedder, lex, testSearchConfig()), st, lex, embedder
}

// indexMedia creates a media item with one chunk per text and makes it
// searchable through both the vector store and the lexical index.
func indexMedia(t *testing.T, st *store.SQLiteStore, lex *keyword.BleveIndex, embedder embedding.Embedder, mediaID, project string, day int, texts ...string) {
	t.Helper()
	ctx := context.Background()
	item := &models.MediaItem{
		ID:        mediaID,
		Path:      "/media/" + mediaID + ".wav",
		Filename:  mediaID + ".wav",
		Project:   project,
		EventDate: time.Date(2026, 4, day, 0, 0, 0, 0, time.UTC),
		Status:    models.StatusDiscovered,
	}
	if err := st.UpsertMediaItem(ctx, item); err != nil {
		t.Fatal(err)
	}
	chunks := make([]models.Chunk, len(texts))
	for i, text := range texts {
		vec, err := embedder.Embed(ctx, text)
		if err != nil {
			t.Fatal(err)
		}
		chunks[i] = models.Chunk{
			ID:         fmt.Sprintf("%s_c%04d", mediaID, i),
			MediaID:    mediaID,
			ChunkIndex: i,
			Text:       text,
			StartSec:   float64(i * 30),
			EndSec:     float64(i*30 + 30),
			Embedding:  vec,
		}
	}
	if err := st.CommitChunks(ctx, mediaID, chunks); err != nil {
		t.Fatal(err)
	}
	if err := lex.IndexChunks(ctx, chunks); err != nil {
		t.Fatal(err)
	}
	if err := st.EnsureIndexMeta(ctx, store.IndexMeta{
		Model: embedder.ModelName(), Dimensions: embedder.Dimensions(), Metric: "cosine",
	}); err != nil {
		t.Fatal(err)
	}
}

func TestEngine_ExactTextRanksFirst(t *testing.T) {
	eng, st, lex, embedder := newTestEngine(t)
	indexMedia(t, st, lex, embedder, "media:a", "standup", 1,
		"the quarterly budget was approved",
		"we talked about hiring two engineers")
	indexMedia(t, st, lex, embedder, "media:b", "standup", 2,
		"release planning for the next milestone")

	resp, err := eng.Search(context.Background(), &models.SearchQuery{
		Query: "the quarterly budget was approved",
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(resp.Results) == 0 {
		t.Fatal("expected results")
	}
	top := resp.Results[0]
	if top.Chunk.Text != "the quarterly budget was approved" {
		t.Errorf("top hit: %q", top.Chunk.Text)
	}
	if top.Similarity < 0.999 {
		t.Errorf("identical text should have similarity ~1, got %f", top.Similarity)
	}
	if top.Rank != 1 {
		t.Errorf("rank = %d", top.Rank)
	}
	for i := 1; i < len(resp.Results); i++ {
		if resp.Results[i].Rank != i+1 {
			t.Errorf("ranks not sequential: %d at position %d", resp.Results[i].Rank, i)
		}
		if resp.Results[i].Score > resp.Results[i-1].Score {
			t.Errorf("results out of score order at %d", i)
		}
	}
	if top.Media == nil || top.Media.Project != "standup" {
		t.Error("result should carry the media snapshot")
	}
}

func TestEngine_EmptyIndex(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)
	resp, err := eng.Search(context.Background(), &models.SearchQuery{Query: "anything"})
	if err != nil {
		t.Fatalf("search on empty index: %v", err)
	}
	if resp.Results == nil || len(resp.Results) != 0 || resp.Total != 0 {
		t.Errorf("expected empty result set, got %+v", resp)
	}
}

func TestEngine_EmptyQueryRejected(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)
	if _, err := eng.Search(context.Background(), &models.SearchQuery{Query: ""}); err == nil {
		t.Error("empty query should be rejected")
	}
}

func TestEngine_ModelMismatch(t *testing.T) {
	eng, st, _, _ := newTestEngine(t)
	err := st.EnsureIndexMeta(context.Background(), store.IndexMeta{
		Model: "nomic-embed-text", Dimensions: 768, Metric: "cosine",
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = eng.Search(context.Background(), &models.SearchQuery{Query: "anything"})
	if !errors.Is(err, store.ErrModelMismatch) {
		t.Errorf("expected ErrModelMismatch, got %v", err)
	}
}

func TestEngine_ProjectFilter(t *testing.T) {
	eng, st, lex, embedder := newTestEngine(t)
	indexMedia(t, st, lex, embedder, "media:a", "standup", 1, "shared topic one")
	indexMedia(t, st, lex, embedder, "media:b", "retro", 2, "shared topic two")

	resp, err := eng.Search(context.Background(), &models.SearchQuery{
		Query:   "shared topic",
		Filters: models.SearchFilters{Project: "retro"},
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range resp.Results {
		if r.Media.Project != "retro" {
			t.Errorf("filter leaked project %s", r.Media.Project)
		}
	}
	if len(resp.Results) != 1 {
		t.Errorf("expected 1 result, got %d", len(resp.Results))
	}
}

func TestEngine_SimilarityFloor(t *testing.T) {
	eng, st, lex, embedder := newTestEngine(t)
	indexMedia(t, st, lex, embedder, "media:a", "p", 1,
		"alpha beta gamma", "completely different words here")

	resp, err := eng.Search(context.Background(), &models.SearchQuery{
		Query:    "alpha beta gamma",
		MinScore: 0.999,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("floor should keep only the exact match, got %d results", len(resp.Results))
	}
	if resp.Results[0].Chunk.Text != "alpha beta gamma" {
		t.Errorf("unexpected survivor: %q", resp.Results[0].Chunk.Text)
	}
}

func TestEngine_RerankTogglePerQuery(t *testing.T) {
	eng, st, lex, embedder := newTestEngine(t)
	indexMedia(t, st, lex, embedder, "media:a", "p", 1, "meeting notes about deadlines")

	off := false
	resp, err := eng.Search(context.Background(), &models.SearchQuery{
		Query: "meeting notes about deadlines", Rerank: &off,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 {
		t.Fatal("expected one result")
	}
	if resp.Results[0].Score != resp.Results[0].Similarity {
		t.Error("with rerank off, score must equal similarity")
	}
	if resp.Results[0].LexicalScore != 0 {
		t.Error("with rerank off, no lexical score should be attached")
	}

	resp, err = eng.Search(context.Background(), &models.SearchQuery{
		Query: "meeting notes about deadlines",
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Results[0].LexicalScore <= 0 {
		t.Error("re-ranking should attach the lexical score for a text match")
	}
}

func TestEngine_LimitTruncates(t *testing.T) {
	eng, st, lex, embedder := newTestEngine(t)
	indexMedia(t, st, lex, embedder, "media:a", "p", 1,
		"one", "two", "three", "four", "five")

	resp, err := eng.Search(context.Background(), &models.SearchQuery{Query: "one", Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) > 2 {
		t.Errorf("limit ignored, got %d results", len(resp.Results))
	}
	if resp.Total < len(resp.Results) {
		t.Errorf("total %d < returned %d", resp.Total, len(resp.Results))
	}
}
