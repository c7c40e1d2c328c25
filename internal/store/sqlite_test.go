package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/kikoe/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "kikoe.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testMedia(id, project string, day int) *models.MediaItem {
	return &models.MediaItem{
		ID:              id,
		Path:            "/media/" + id + ".wav",
		Filename:        id + ".wav",
		Project:         project,
		EventDate:       time.Date(2026, 3, day, 0, 0, 0, 0, time.UTC),
		DurationSeconds: 60,
		Format:          "wav",
		Status:          models.StatusDiscovered,
		IngestVersion:   1,
	}
}

func TestSQLiteStore_MediaLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	item := testMedia("media:1", "standup", 1)
	if err := s.UpsertMediaItem(ctx, item); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.GetMediaItem(ctx, "media:1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Path != item.Path || got.Status != models.StatusDiscovered {
		t.Errorf("got %+v", got)
	}

	if err := s.UpdateStatus(ctx, "media:1", models.StatusTranscribing); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got, _ = s.GetMediaItem(ctx, "media:1")
	if got.Status != models.StatusTranscribing {
		t.Errorf("status = %s", got.Status)
	}

	if err := s.MarkFailed(ctx, "media:1", true, "backend unavailable"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	got, _ = s.GetMediaItem(ctx, "media:1")
	if got.Status != models.StatusFailed || !got.Retryable || got.Failure != "backend unavailable" {
		t.Errorf("after failure: %+v", got)
	}

	// Upsert with the same ID refreshes rather than duplicating.
	item.Project = "retro"
	item.IngestVersion = 2
	if err := s.UpsertMediaItem(ctx, item); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	got, _ = s.GetMediaItem(ctx, "media:1")
	if got.Project != "retro" || got.IngestVersion != 2 {
		t.Errorf("after re-upsert: %+v", got)
	}
}

func TestSQLiteStore_GetMediaItemNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetMediaItem(context.Background(), "media:nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.UpdateStatus(context.Background(), "media:nope", models.StatusIndexed); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateStatus on missing item: %v", err)
	}
}

func TestSQLiteStore_ListMediaItems(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, m := range []*models.MediaItem{
		testMedia("media:a", "standup", 1),
		testMedia("media:b", "standup", 3),
		testMedia("media:c", "retro", 2),
	} {
		if err := s.UpsertMediaItem(ctx, m); err != nil {
			t.Fatal(err)
		}
	}
	_ = s.UpdateStatus(ctx, "media:b", models.StatusIndexed)

	items, err := s.ListMediaItems(ctx, "standup", "", 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 standup items, got %d", len(items))
	}
	if items[0].ID != "media:b" {
		t.Errorf("expected newest event first, got %s", items[0].ID)
	}

	items, _ = s.ListMediaItems(ctx, "", models.StatusIndexed, 10, 0)
	if len(items) != 1 || items[0].ID != "media:b" {
		t.Errorf("status filter: %v", items)
	}
}

func TestSQLiteStore_SegmentsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.UpsertMediaItem(ctx, testMedia("media:1", "p", 1)); err != nil {
		t.Fatal(err)
	}

	conf := 0.91
	segs := []models.TranscriptSegment{
		{MediaID: "media:1", SegmentIndex: 0, StartSec: 0, EndSec: 4.5, Text: "hello", Confidence: &conf, Backend: "whisper"},
		{MediaID: "media:1", SegmentIndex: 1, StartSec: 4.5, EndSec: 9, Text: "world", Backend: "whisper"},
	}
	if err := s.SaveSegments(ctx, "media:1", segs); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.GetSegments(ctx, "media:1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(got))
	}
	if got[0].Confidence == nil || *got[0].Confidence != 0.91 {
		t.Errorf("confidence lost: %v", got[0].Confidence)
	}
	if got[1].Confidence != nil {
		t.Errorf("nil confidence should stay nil")
	}

	// Saving again replaces, never appends.
	if err := s.SaveSegments(ctx, "media:1", segs[:1]); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetSegments(ctx, "media:1")
	if len(got) != 1 {
		t.Errorf("expected replacement, got %d segments", len(got))
	}
}

func TestSQLiteStore_IntervalsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.UpsertMediaItem(ctx, testMedia("media:1", "p", 1)); err != nil {
		t.Fatal(err)
	}

	ivs := []models.SpeakerInterval{
		{MediaID: "media:1", StartSec: 0, EndSec: 30, Speaker: "SPEAKER_00"},
		{MediaID: "media:1", StartSec: 30, EndSec: 60, Speaker: "SPEAKER_01"},
	}
	if err := s.SaveIntervals(ctx, "media:1", ivs); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.GetIntervals(ctx, "media:1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 2 || got[0].Speaker != "SPEAKER_00" || got[1].StartSec != 30 {
		t.Errorf("round trip: %+v", got)
	}
	item, err := s.GetMediaItem(ctx, "media:1")
	if err != nil {
		t.Fatal(err)
	}
	if !item.Diarized {
		t.Error("saving intervals should mark the diarization checkpoint")
	}
}

func TestSQLiteStore_SaveIntervalsEmptySetsCheckpoint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.UpsertMediaItem(ctx, testMedia("media:1", "p", 1)); err != nil {
		t.Fatal(err)
	}

	if err := s.SaveIntervals(ctx, "media:1", nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	item, err := s.GetMediaItem(ctx, "media:1")
	if err != nil {
		t.Fatal(err)
	}
	if !item.Diarized {
		t.Error("a finished zero-speaker diarization is still a checkpoint")
	}
	got, _ := s.GetIntervals(ctx, "media:1")
	if len(got) != 0 {
		t.Errorf("intervals: %+v", got)
	}
}

func chunkWithVec(id, mediaID string, index int, text string, vec []float32) models.Chunk {
	return models.Chunk{
		ID: id, MediaID: mediaID, ChunkIndex: index, Text: text,
		StartSec: float64(index * 10), EndSec: float64(index*10 + 10),
		Speakers: []string{"A"}, Embedding: vec,
	}
}

func TestSQLiteStore_CommitChunksAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.UpsertMediaItem(ctx, testMedia("media:1", "p", 1)); err != nil {
		t.Fatal(err)
	}

	// A chunk without an embedding aborts the whole commit.
	bad := []models.Chunk{
		chunkWithVec("media:1_c0000", "media:1", 0, "ok", []float32{1, 0}),
		{ID: "media:1_c0001", MediaID: "media:1", ChunkIndex: 1, Text: "missing vector"},
	}
	if err := s.CommitChunks(ctx, "media:1", bad); err == nil {
		t.Fatal("expected commit to fail")
	}
	if chunks, _ := s.GetChunks(ctx, "media:1"); len(chunks) != 0 {
		t.Errorf("failed commit leaked %d chunks", len(chunks))
	}
	item, _ := s.GetMediaItem(ctx, "media:1")
	if item.Status == models.StatusIndexed {
		t.Error("failed commit must not mark the item indexed")
	}

	good := []models.Chunk{
		chunkWithVec("media:1_c0000", "media:1", 0, "ok", []float32{1, 0}),
		chunkWithVec("media:1_c0001", "media:1", 1, "also ok", []float32{0, 1}),
	}
	if err := s.CommitChunks(ctx, "media:1", good); err != nil {
		t.Fatalf("commit: %v", err)
	}
	chunks, err := s.GetChunks(ctx, "media:1")
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Embedding[0] != 1 {
		t.Errorf("embedding round trip: %v", chunks[0].Embedding)
	}
	if len(chunks[0].Speakers) != 1 || chunks[0].Speakers[0] != "A" {
		t.Errorf("speakers round trip: %v", chunks[0].Speakers)
	}
	item, _ = s.GetMediaItem(ctx, "media:1")
	if item.Status != models.StatusIndexed {
		t.Errorf("status after commit: %s", item.Status)
	}
}

func TestSQLiteStore_NearestNeighbors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, m := range []*models.MediaItem{
		testMedia("media:a", "standup", 1),
		testMedia("media:b", "retro", 2),
		testMedia("media:c", "standup", 3),
	} {
		if err := s.UpsertMediaItem(ctx, m); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.CommitChunks(ctx, "media:a", []models.Chunk{
		chunkWithVec("media:a_c0000", "media:a", 0, "budget review", []float32{1, 0, 0}),
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.CommitChunks(ctx, "media:b", []models.Chunk{
		chunkWithVec("media:b_c0000", "media:b", 0, "release planning", []float32{0, 1, 0}),
	}); err != nil {
		t.Fatal(err)
	}
	// media:c stays mid-pipeline; its chunks were never committed.
	_ = s.UpdateStatus(ctx, "media:c", models.StatusEmbedding)

	got, err := s.NearestNeighbors(ctx, []float32{1, 0, 0}, 10, models.SearchFilters{})
	if err != nil {
		t.Fatalf("nn: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 neighbors, got %d", len(got))
	}
	if got[0].Chunk.ID != "media:a_c0000" {
		t.Errorf("identical vector should rank first, got %s", got[0].Chunk.ID)
	}
	if got[0].Similarity <= got[1].Similarity {
		t.Errorf("similarities out of order: %f <= %f", got[0].Similarity, got[1].Similarity)
	}
	if got[0].Media == nil || got[0].Media.Project != "standup" {
		t.Error("neighbor should carry a media snapshot")
	}

	got, _ = s.NearestNeighbors(ctx, []float32{1, 0, 0}, 10, models.SearchFilters{Project: "retro"})
	if len(got) != 1 || got[0].Chunk.MediaID != "media:b" {
		t.Errorf("project filter: %+v", got)
	}

	got, _ = s.NearestNeighbors(ctx, []float32{1, 0, 0}, 10, models.SearchFilters{
		DateFrom: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	})
	if len(got) != 1 || got[0].Chunk.MediaID != "media:b" {
		t.Errorf("date filter: %+v", got)
	}

	got, _ = s.NearestNeighbors(ctx, []float32{1, 0, 0}, 1, models.SearchFilters{})
	if len(got) != 1 {
		t.Errorf("k limit: got %d", len(got))
	}
}

func TestSQLiteStore_NearestNeighborsEmptyIndex(t *testing.T) {
	s := newTestStore(t)
	got, err := s.NearestNeighbors(context.Background(), []float32{1, 0}, 5, models.SearchFilters{})
	if err != nil {
		t.Fatalf("nn on empty index: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no neighbors, got %d", len(got))
	}
}

func TestSQLiteStore_IndexMeta(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	meta, err := s.GetIndexMeta(ctx)
	if err != nil || meta != nil {
		t.Fatalf("fresh store meta: %v, %v", meta, err)
	}

	want := IndexMeta{Model: "nomic-embed-text", Dimensions: 768, Metric: "cosine"}
	if err := s.EnsureIndexMeta(ctx, want); err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	if err := s.EnsureIndexMeta(ctx, want); err != nil {
		t.Fatalf("same meta should be accepted: %v", err)
	}

	err = s.EnsureIndexMeta(ctx, IndexMeta{Model: "all-minilm", Dimensions: 384, Metric: "cosine"})
	if !errors.Is(err, ErrModelMismatch) {
		t.Errorf("expected ErrModelMismatch, got %v", err)
	}

	meta, err = s.GetIndexMeta(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if meta.Model != "nomic-embed-text" || meta.Dimensions != 768 {
		t.Errorf("stored meta: %+v", meta)
	}
}

func TestSQLiteStore_Stats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_ = s.UpsertMediaItem(ctx, testMedia("media:a", "p", 1))
	_ = s.UpsertMediaItem(ctx, testMedia("media:b", "p", 2))
	_ = s.CommitChunks(ctx, "media:a", []models.Chunk{
		chunkWithVec("media:a_c0000", "media:a", 0, "x", []float32{1}),
	})
	_ = s.MarkFailed(ctx, "media:b", false, "corrupt header")

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.MediaTotal != 2 || st.MediaIndexed != 1 || st.MediaFailed != 1 || st.Chunks != 1 {
		t.Errorf("stats: %+v", st)
	}
}
