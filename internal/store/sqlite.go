package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kikoe/internal/models"
	"github.com/hyperjump/kikoe/internal/vector"
)

// SQLiteStore implements Store on a single SQLite file. Embeddings are kept as
// little-endian float32 blobs; nearest-neighbor search pre-filters candidates
// in SQL and scores them in Go.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at dbPath and initializes the
// schema. Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS media_items (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		filename TEXT NOT NULL,
		project TEXT NOT NULL DEFAULT '',
		event_date TIMESTAMP NOT NULL,
		duration_seconds REAL NOT NULL DEFAULT 0,
		format TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		retryable INTEGER NOT NULL DEFAULT 0,
		failure TEXT NOT NULL DEFAULT '',
		diarized INTEGER NOT NULL DEFAULT 0,
		ingest_version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_media_project ON media_items(project);
	CREATE INDEX IF NOT EXISTS idx_media_status ON media_items(status);
	CREATE INDEX IF NOT EXISTS idx_media_event_date ON media_items(event_date);

	CREATE TABLE IF NOT EXISTS transcript_segments (
		media_id TEXT NOT NULL,
		segment_index INTEGER NOT NULL,
		start_sec REAL NOT NULL,
		end_sec REAL NOT NULL,
		text TEXT NOT NULL,
		confidence REAL,
		backend TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (media_id, segment_index),
		FOREIGN KEY (media_id) REFERENCES media_items(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS speaker_intervals (
		media_id TEXT NOT NULL,
		start_sec REAL NOT NULL,
		end_sec REAL NOT NULL,
		speaker TEXT NOT NULL,
		FOREIGN KEY (media_id) REFERENCES media_items(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_intervals_media ON speaker_intervals(media_id);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		media_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		start_sec REAL NOT NULL,
		end_sec REAL NOT NULL,
		speakers TEXT NOT NULL DEFAULT '[]',
		embedding BLOB NOT NULL,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (media_id) REFERENCES media_items(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_media ON chunks(media_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_media_index ON chunks(media_id, chunk_index);

	CREATE TABLE IF NOT EXISTS index_meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		model TEXT NOT NULL,
		dimensions INTEGER NOT NULL,
		metric TEXT NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// UpsertMediaItem inserts the item or refreshes the existing row.
func (s *SQLiteStore) UpsertMediaItem(ctx context.Context, item *models.MediaItem) error {
	now := time.Now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO media_items (id, path, filename, project, event_date, duration_seconds,
			format, language, status, retryable, failure, diarized, ingest_version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			path = excluded.path,
			filename = excluded.filename,
			project = excluded.project,
			event_date = excluded.event_date,
			duration_seconds = excluded.duration_seconds,
			format = excluded.format,
			language = excluded.language,
			status = excluded.status,
			retryable = excluded.retryable,
			failure = excluded.failure,
			diarized = excluded.diarized,
			ingest_version = excluded.ingest_version,
			updated_at = excluded.updated_at`,
		item.ID, item.Path, item.Filename, item.Project, item.EventDate, item.DurationSeconds,
		item.Format, item.Language, string(item.Status), item.Retryable, item.Failure,
		item.Diarized, item.IngestVersion, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert media item: %w", err)
	}
	return nil
}

const mediaColumns = `id, path, filename, project, event_date, duration_seconds,
	format, language, status, retryable, failure, diarized, ingest_version, created_at, updated_at`

func scanMediaItem(row interface{ Scan(...interface{}) error }) (*models.MediaItem, error) {
	var item models.MediaItem
	var status string
	err := row.Scan(&item.ID, &item.Path, &item.Filename, &item.Project, &item.EventDate,
		&item.DurationSeconds, &item.Format, &item.Language, &status, &item.Retryable,
		&item.Failure, &item.Diarized, &item.IngestVersion, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	item.Status = models.IngestStatus(status)
	return &item, nil
}

// GetMediaItem returns the media item by ID.
func (s *SQLiteStore) GetMediaItem(ctx context.Context, id string) (*models.MediaItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+mediaColumns+` FROM media_items WHERE id = ?`, id)
	item, err := scanMediaItem(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("media item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// ListMediaItems returns items matching project and status, newest event first.
func (s *SQLiteStore) ListMediaItems(ctx context.Context, project string, status models.IngestStatus, limit, offset int) ([]*models.MediaItem, error) {
	query := `SELECT ` + mediaColumns + ` FROM media_items WHERE 1=1`
	var args []interface{}
	if project != "" {
		query += ` AND project = ?`
		args = append(args, project)
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY event_date DESC, id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.MediaItem
	for rows.Next() {
		item, err := scanMediaItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateStatus records the stage the media item has reached.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, status models.IngestStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE media_items SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now(), id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("media item %s: %w", id, ErrNotFound)
	}
	return nil
}

// MarkFailed records a failure with its retry classification.
func (s *SQLiteStore) MarkFailed(ctx context.Context, id string, retryable bool, failure string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE media_items SET status = ?, retryable = ?, failure = ?, updated_at = ? WHERE id = ?`,
		string(models.StatusFailed), retryable, failure, time.Now(), id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("media item %s: %w", id, ErrNotFound)
	}
	return nil
}

// SaveSegments replaces the stored transcript for the media item in one transaction.
func (s *SQLiteStore) SaveSegments(ctx context.Context, mediaID string, segments []models.TranscriptSegment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM transcript_segments WHERE media_id = ?`, mediaID); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO transcript_segments (media_id, segment_index, start_sec, end_sec, text, confidence, backend)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, seg := range segments {
		var conf sql.NullFloat64
		if seg.Confidence != nil {
			conf = sql.NullFloat64{Float64: *seg.Confidence, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, mediaID, seg.SegmentIndex, seg.StartSec, seg.EndSec, seg.Text, conf, seg.Backend); err != nil {
			return fmt.Errorf("insert segment %d: %w", seg.SegmentIndex, err)
		}
	}
	return tx.Commit()
}

// GetSegments returns the stored transcript ordered by segment index.
func (s *SQLiteStore) GetSegments(ctx context.Context, mediaID string) ([]models.TranscriptSegment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT media_id, segment_index, start_sec, end_sec, text, confidence, backend
		 FROM transcript_segments WHERE media_id = ? ORDER BY segment_index`, mediaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var segments []models.TranscriptSegment
	for rows.Next() {
		var seg models.TranscriptSegment
		var conf sql.NullFloat64
		if err := rows.Scan(&seg.MediaID, &seg.SegmentIndex, &seg.StartSec, &seg.EndSec, &seg.Text, &conf, &seg.Backend); err != nil {
			return nil, err
		}
		if conf.Valid {
			c := conf.Float64
			seg.Confidence = &c
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

// SaveIntervals replaces the stored speaker intervals for the media item and
// marks its diarization checkpoint complete. An empty set is a valid result
// (a recording with no detectable speakers) and still sets the mark, so
// resume never re-runs a diarization that already finished.
func (s *SQLiteStore) SaveIntervals(ctx context.Context, mediaID string, intervals []models.SpeakerInterval) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM speaker_intervals WHERE media_id = ?`, mediaID); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO speaker_intervals (media_id, start_sec, end_sec, speaker) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, iv := range intervals {
		if _, err := stmt.ExecContext(ctx, mediaID, iv.StartSec, iv.EndSec, iv.Speaker); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE media_items SET diarized = 1, updated_at = ? WHERE id = ?`,
		time.Now(), mediaID); err != nil {
		return err
	}
	return tx.Commit()
}

// GetIntervals returns stored speaker intervals ordered by start.
func (s *SQLiteStore) GetIntervals(ctx context.Context, mediaID string) ([]models.SpeakerInterval, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT media_id, start_sec, end_sec, speaker
		 FROM speaker_intervals WHERE media_id = ? ORDER BY start_sec`, mediaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intervals []models.SpeakerInterval
	for rows.Next() {
		var iv models.SpeakerInterval
		if err := rows.Scan(&iv.MediaID, &iv.StartSec, &iv.EndSec, &iv.Speaker); err != nil {
			return nil, err
		}
		intervals = append(intervals, iv)
	}
	return intervals, rows.Err()
}

// CommitChunks atomically replaces the media item's chunks and marks it indexed.
func (s *SQLiteStore) CommitChunks(ctx context.Context, mediaID string, chunks []models.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE media_id = ?`, mediaID); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, media_id, chunk_index, text, start_sec, end_sec, speakers, embedding, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for i := range chunks {
		ch := &chunks[i]
		if len(ch.Embedding) == 0 {
			return fmt.Errorf("chunk %s has no embedding", ch.ID)
		}
		speakersJSON, err := json.Marshal(ch.Speakers)
		if err != nil {
			return fmt.Errorf("marshal speakers: %w", err)
		}
		ch.CreatedAt = now
		if _, err := stmt.ExecContext(ctx, ch.ID, mediaID, ch.ChunkIndex, ch.Text,
			ch.StartSec, ch.EndSec, string(speakersJSON), vector.ToBytes(ch.Embedding), ch.CreatedAt); err != nil {
			return fmt.Errorf("insert chunk %s: %w", ch.ID, err)
		}
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE media_items SET status = ?, retryable = 0, failure = '', updated_at = ? WHERE id = ?`,
		string(models.StatusIndexed), now, mediaID)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("media item %s: %w", mediaID, ErrNotFound)
	}
	return tx.Commit()
}

// GetChunks returns a media item's chunks with embeddings, ordered by index.
func (s *SQLiteStore) GetChunks(ctx context.Context, mediaID string) ([]*models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, media_id, chunk_index, text, start_sec, end_sec, speakers, embedding, created_at
		 FROM chunks WHERE media_id = ? ORDER BY chunk_index`, mediaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*models.Chunk
	for rows.Next() {
		var ch models.Chunk
		var speakersJSON string
		var blob []byte
		if err := rows.Scan(&ch.ID, &ch.MediaID, &ch.ChunkIndex, &ch.Text,
			&ch.StartSec, &ch.EndSec, &speakersJSON, &blob, &ch.CreatedAt); err != nil {
			return nil, err
		}
		if speakersJSON != "" && speakersJSON != "[]" {
			if err := json.Unmarshal([]byte(speakersJSON), &ch.Speakers); err != nil {
				return nil, fmt.Errorf("unmarshal speakers: %w", err)
			}
		}
		emb, err := vector.FromBytes(blob, 0)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", ch.ID, err)
		}
		ch.Embedding = emb
		chunks = append(chunks, &ch)
	}
	return chunks, rows.Err()
}

// NearestNeighbors pre-filters candidates in SQL, then scores the surviving
// vectors with cosine similarity in Go. Only indexed media are visible.
func (s *SQLiteStore) NearestNeighbors(ctx context.Context, query []float32, k int, filters models.SearchFilters) ([]Neighbor, error) {
	if k <= 0 {
		return nil, nil
	}

	q := `SELECT c.id, c.media_id, c.chunk_index, c.text, c.start_sec, c.end_sec,
			c.speakers, c.embedding, c.created_at, ` + prefixedMediaColumns("m") + `
		 FROM chunks c
		 JOIN media_items m ON m.id = c.media_id
		 WHERE m.status = ?`
	args := []interface{}{string(models.StatusIndexed)}
	if filters.Project != "" {
		q += ` AND m.project = ?`
		args = append(args, filters.Project)
	}
	if filters.MediaID != "" {
		q += ` AND m.id = ?`
		args = append(args, filters.MediaID)
	}
	if !filters.DateFrom.IsZero() {
		q += ` AND m.event_date >= ?`
		args = append(args, filters.DateFrom)
	}
	if !filters.DateTo.IsZero() {
		q += ` AND m.event_date <= ?`
		args = append(args, filters.DateTo)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("nearest neighbors: %w", err)
	}
	defer rows.Close()

	media := make(map[string]*models.MediaItem)
	var neighbors []Neighbor
	for rows.Next() {
		var ch models.Chunk
		var speakersJSON string
		var blob []byte
		var item models.MediaItem
		var status string
		if err := rows.Scan(&ch.ID, &ch.MediaID, &ch.ChunkIndex, &ch.Text, &ch.StartSec, &ch.EndSec,
			&speakersJSON, &blob, &ch.CreatedAt,
			&item.ID, &item.Path, &item.Filename, &item.Project, &item.EventDate,
			&item.DurationSeconds, &item.Format, &item.Language, &status, &item.Retryable,
			&item.Failure, &item.Diarized, &item.IngestVersion, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		item.Status = models.IngestStatus(status)
		if speakersJSON != "" && speakersJSON != "[]" {
			if err := json.Unmarshal([]byte(speakersJSON), &ch.Speakers); err != nil {
				return nil, fmt.Errorf("unmarshal speakers: %w", err)
			}
		}
		emb, err := vector.FromBytes(blob, len(query))
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", ch.ID, err)
		}
		ch.Embedding = emb

		// One MediaItem snapshot per media, shared across its chunks.
		m, ok := media[item.ID]
		if !ok {
			snapshot := item
			m = &snapshot
			media[item.ID] = m
		}
		neighbors = append(neighbors, Neighbor{
			Chunk:      &ch,
			Media:      m,
			Similarity: vector.CosineSimilarity(query, emb),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(neighbors, func(i, j int) bool {
		if neighbors[i].Similarity != neighbors[j].Similarity {
			return neighbors[i].Similarity > neighbors[j].Similarity
		}
		if !neighbors[i].Media.EventDate.Equal(neighbors[j].Media.EventDate) {
			return neighbors[i].Media.EventDate.After(neighbors[j].Media.EventDate)
		}
		return neighbors[i].Chunk.ID < neighbors[j].Chunk.ID
	})
	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	return neighbors, nil
}

func prefixedMediaColumns(prefix string) string {
	return prefix + `.id, ` + prefix + `.path, ` + prefix + `.filename, ` + prefix + `.project, ` +
		prefix + `.event_date, ` + prefix + `.duration_seconds, ` + prefix + `.format, ` +
		prefix + `.language, ` + prefix + `.status, ` + prefix + `.retryable, ` +
		prefix + `.failure, ` + prefix + `.diarized, ` + prefix + `.ingest_version, ` +
		prefix + `.created_at, ` + prefix + `.updated_at`
}

// EnsureIndexMeta writes meta on first use and rejects later disagreement.
func (s *SQLiteStore) EnsureIndexMeta(ctx context.Context, meta IndexMeta) error {
	existing, err := s.GetIndexMeta(ctx)
	if err != nil {
		return err
	}
	if existing == nil {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO index_meta (id, model, dimensions, metric) VALUES (1, ?, ?, ?)`,
			meta.Model, meta.Dimensions, meta.Metric)
		return err
	}
	if existing.Model != meta.Model || existing.Dimensions != meta.Dimensions || existing.Metric != meta.Metric {
		return fmt.Errorf("index built with model=%s dims=%d metric=%s, configured model=%s dims=%d metric=%s: %w",
			existing.Model, existing.Dimensions, existing.Metric,
			meta.Model, meta.Dimensions, meta.Metric, ErrModelMismatch)
	}
	return nil
}

// GetIndexMeta returns the recorded embedding space, or nil if none is set.
func (s *SQLiteStore) GetIndexMeta(ctx context.Context) (*IndexMeta, error) {
	var meta IndexMeta
	err := s.db.QueryRowContext(ctx,
		`SELECT model, dimensions, metric FROM index_meta WHERE id = 1`).
		Scan(&meta.Model, &meta.Dimensions, &meta.Metric)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

// Stats returns index totals.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM media_items`).Scan(&st.MediaTotal); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM media_items WHERE status = ?`, string(models.StatusIndexed)).Scan(&st.MediaIndexed); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM media_items WHERE status = ?`, string(models.StatusFailed)).Scan(&st.MediaFailed); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&st.Chunks); err != nil {
		return nil, err
	}
	return &st, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
