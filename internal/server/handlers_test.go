package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kikoe/internal/config"
	"github.com/hyperjump/kikoe/internal/embedding"
	"github.com/hyperjump/kikoe/internal/keyword"
	"github.com/hyperjump/kikoe/internal/models"
	"github.com/hyperjump/kikoe/internal/search"
	"github.com/hyperjump/kikoe/internal/store"
)

type ingestCall struct {
	path     string
	project  string
	language string
	diarize  bool
}

type mockIngestor struct {
	mu    sync.Mutex
	calls []ingestCall
	err   error
}

func (m *mockIngestor) ProcessFile(_ context.Context, path, project, language string, diarize bool) error {
	m.mu.Lock()
	m.calls = append(m.calls, ingestCall{path: path, project: project, language: language, diarize: diarize})
	m.mu.Unlock()
	return m.err
}

type mockWatchService struct {
	dirs []string
}

func (m *mockWatchService) Directories() []string {
	return append([]string(nil), m.dirs...)
}

func (m *mockWatchService) AddDirectory(path string, _ bool) error {
	for _, d := range m.dirs {
		if d == path {
			return nil
		}
	}
	m.dirs = append(m.dirs, path)
	return nil
}

func (m *mockWatchService) RemoveDirectory(path string) error {
	for i, d := range m.dirs {
		if d == path {
			m.dirs = append(m.dirs[:i], m.dirs[i+1:]...)
			return nil
		}
	}
	return nil
}

type testServer struct {
	srv      *Server
	st       *store.SQLiteStore
	lex      *keyword.BleveIndex
	embedder embedding.Embedder
	ingestor *mockIngestor
}

func newTestServer(t *testing.T, watch WatchService) *testServer {
	t.Helper()
	dir := t.TempDir()
	st, err := store.NewSQLiteStore(filepath.Join(dir, "kikoe.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	lex, err := keyword.NewBleveIndex(filepath.Join(dir, "bleve"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = lex.Close() })
	embedder := embedding.NewMockEmbedder(8)
	engine := search.NewEngine(st, embedder, lex, &config.SearchConfig{
		DefaultLimit: 10, MaxLimit: 100, TopKCandidates: 50, RerankWeight: 0.3,
	})
	ingestor := &mockIngestor{}
	srv := NewServer(engine, ingestor, st, &config.ServerConfig{Port: 8080}, zap.NewNop(), watch, "", nil)
	return &testServer{srv: srv, st: st, lex: lex, embedder: embedder, ingestor: ingestor}
}

// seedMedia indexes a media item with one chunk per text so search and media
// endpoints have something to serve.
func (ts *testServer) seedMedia(t *testing.T, mediaID, project string, texts ...string) {
	t.Helper()
	ctx := context.Background()
	item := &models.MediaItem{
		ID:        mediaID,
		Path:      "/media/" + mediaID + ".wav",
		Filename:  mediaID + ".wav",
		Project:   project,
		EventDate: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		Status:    models.StatusDiscovered,
	}
	if err := ts.st.UpsertMediaItem(ctx, item); err != nil {
		t.Fatal(err)
	}
	chunks := make([]models.Chunk, len(texts))
	for i, text := range texts {
		vec, err := ts.embedder.Embed(ctx, text)
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
	if err := ts.st.CommitChunks(ctx, mediaID, chunks); err != nil {
		t.Fatal(err)
	}
	if err := ts.lex.IndexChunks(ctx, chunks); err != nil {
		t.Fatal(err)
	}
	err := ts.st.EnsureIndexMeta(ctx, store.IndexMeta{
		Model: ts.embedder.ModelName(), Dimensions: ts.embedder.Dimensions(), Metric: "cosine",
	})
	if err != nil {
		t.Fatal(err)
	}
}

func (ts *testServer) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	r := httptest.NewRequest(method, path, reader)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.srv.router().ServeHTTP(w, r)
	return w
}

func TestHandleSearch(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.seedMedia(t, "media:a", "standup", "the quarterly budget was approved")

	w := ts.do(http.MethodPost, "/api/v1/search", map[string]string{"query": "quarterly budget"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d, body: %s", w.Code, w.Body.String())
	}
	var resp models.SearchResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 {
		t.Errorf("results: %d", len(resp.Results))
	}
}

func TestHandleSearch_EmptyQuery(t *testing.T) {
	ts := newTestServer(t, nil)
	w := ts.do(http.MethodPost, "/api/v1/search", map[string]string{"query": ""})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: %d, want 400", w.Code)
	}
}

func TestHandleSearch_ModelMismatch(t *testing.T) {
	ts := newTestServer(t, nil)
	err := ts.st.EnsureIndexMeta(context.Background(), store.IndexMeta{
		Model: "nomic-embed-text", Dimensions: 768, Metric: "cosine",
	})
	if err != nil {
		t.Fatal(err)
	}
	w := ts.do(http.MethodPost, "/api/v1/search", map[string]string{"query": "anything"})
	if w.Code != http.StatusConflict {
		t.Errorf("status: %d, want 409", w.Code)
	}
}

func TestHandleIngest(t *testing.T) {
	ts := newTestServer(t, nil)
	mediaPath := filepath.Join(t.TempDir(), "call.wav")
	if err := os.WriteFile(mediaPath, []byte("riff data"), 0644); err != nil {
		t.Fatal(err)
	}

	w := ts.do(http.MethodPost, "/api/v1/ingest", ingestRequest{Path: mediaPath, Project: "calls"})
	if w.Code != http.StatusCreated {
		t.Fatalf("status: %d, body: %s", w.Code, w.Body.String())
	}
	if len(ts.ingestor.calls) != 1 || ts.ingestor.calls[0].path != mediaPath {
		t.Errorf("ingested: %v", ts.ingestor.calls)
	}
	if !ts.ingestor.calls[0].diarize {
		t.Error("diarization should default on")
	}
}

func TestHandleIngest_Overrides(t *testing.T) {
	ts := newTestServer(t, nil)
	mediaPath := filepath.Join(t.TempDir(), "entretien.wav")
	if err := os.WriteFile(mediaPath, []byte("riff data"), 0644); err != nil {
		t.Fatal(err)
	}

	off := false
	w := ts.do(http.MethodPost, "/api/v1/ingest", ingestRequest{
		Path: mediaPath, Project: "calls", Language: "fr", Diarize: &off,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status: %d, body: %s", w.Code, w.Body.String())
	}
	call := ts.ingestor.calls[0]
	if call.language != "fr" || call.diarize {
		t.Errorf("overrides not passed through: %+v", call)
	}
}

func TestHandleIngest_MissingFile(t *testing.T) {
	ts := newTestServer(t, nil)
	w := ts.do(http.MethodPost, "/api/v1/ingest", ingestRequest{Path: "/nope/missing.wav"})
	if w.Code != http.StatusNotFound {
		t.Errorf("status: %d, want 404", w.Code)
	}
	w = ts.do(http.MethodPost, "/api/v1/ingest", ingestRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: %d, want 400", w.Code)
	}
}

func TestHandleListMedia(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.seedMedia(t, "media:a", "standup", "one")
	ts.seedMedia(t, "media:b", "retro", "two")

	w := ts.do(http.MethodGet, "/api/v1/media?project=retro", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	var out struct {
		Items []*models.MediaItem `json:"items"`
		Count int                 `json:"count"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Count != 1 || out.Items[0].Project != "retro" {
		t.Errorf("items: %+v", out.Items)
	}
}

func TestHandleGetMedia(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.seedMedia(t, "media:a", "standup", "first chunk", "second chunk")

	w := ts.do(http.MethodGet, "/api/v1/media/media:a", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d, body: %s", w.Code, w.Body.String())
	}
	var detail mediaDetail
	if err := json.NewDecoder(w.Body).Decode(&detail); err != nil {
		t.Fatal(err)
	}
	if detail.Media == nil || detail.Media.ID != "media:a" {
		t.Errorf("media: %+v", detail.Media)
	}
	if len(detail.ChunkIDs) != 2 {
		t.Errorf("chunk ids: %v", detail.ChunkIDs)
	}

	w = ts.do(http.MethodGet, "/api/v1/media/media:nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status: %d, want 404", w.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.seedMedia(t, "media:a", "standup", "hello world")

	w := ts.do(http.MethodGet, "/api/v1/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d, body: %s", w.Code, w.Body.String())
	}
	var out struct {
		MediaTotal   int64 `json:"media_total"`
		MediaIndexed int64 `json:"media_indexed"`
		Chunks       int64 `json:"chunks"`
		Index        *struct {
			Model      string `json:"model"`
			Dimensions int    `json:"dimensions"`
		} `json:"index"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.MediaTotal != 1 || out.MediaIndexed != 1 || out.Chunks != 1 {
		t.Errorf("stats: %+v", out)
	}
	if out.Index == nil || out.Index.Model != "mock" || out.Index.Dimensions != 8 {
		t.Errorf("index meta: %+v", out.Index)
	}
}

func TestHandleWatchDirectoriesList(t *testing.T) {
	ts := newTestServer(t, &mockWatchService{dirs: []string{"/media/drop"}})
	w := ts.do(http.MethodGet, "/api/v1/watch/directories", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	var out struct {
		Directories []string `json:"directories"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Directories) != 1 || out.Directories[0] != "/media/drop" {
		t.Errorf("directories: %v", out.Directories)
	}
}

func TestHandleWatchDirectoriesList_NotEnabled(t *testing.T) {
	ts := newTestServer(t, nil)
	w := ts.do(http.MethodGet, "/api/v1/watch/directories", nil)
	if w.Code != http.StatusNotImplemented {
		t.Errorf("status: %d, want 501", w.Code)
	}
}

func TestHandleWatchDirectoriesAdd(t *testing.T) {
	mock := &mockWatchService{}
	ts := newTestServer(t, mock)
	dir := t.TempDir()

	w := ts.do(http.MethodPost, "/api/v1/watch/directories", map[string]string{"path": dir})
	if w.Code != http.StatusCreated {
		t.Fatalf("status: %d, body: %s", w.Code, w.Body.String())
	}
	if len(mock.Directories()) != 1 {
		t.Errorf("directories: %v", mock.Directories())
	}

	w = ts.do(http.MethodPost, "/api/v1/watch/directories", map[string]string{"path": dir + "/nonexistent"})
	if w.Code != http.StatusNotFound {
		t.Errorf("missing dir status: %d, want 404", w.Code)
	}
}

func TestHandleWatchDirectoriesRemove(t *testing.T) {
	dir := t.TempDir()
	mock := &mockWatchService{dirs: []string{dir}}
	ts := newTestServer(t, mock)

	w := ts.do(http.MethodDelete, "/api/v1/watch/directories?path="+dir, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	if len(mock.Directories()) != 0 {
		t.Errorf("directories: %v", mock.Directories())
	}
}

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	w := ts.do(http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status: %d", w.Code)
	}
}
