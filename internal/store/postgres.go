package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/hyperjump/kikoe/internal/models"
)

// PostgresStore implements Store on PostgreSQL with the pgvector extension.
// Nearest-neighbor search runs entirely in the database using the cosine
// distance operator, so it scales past what the SQLite scan can handle.
type PostgresStore struct {
	db         *sql.DB
	dimensions int
}

// NewPostgresStore connects to dsn and initializes the schema. dimensions
// fixes the vector column width and must match the configured embedder.
func NewPostgresStore(dsn string, dimensions int) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres driver selected but no DSN configured")
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("postgres store needs a positive embedding dimension, got %d", dimensions)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	s := &PostgresStore{db: db, dimensions: dimensions}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) initSchema() error {
	schema := fmt.Sprintf(`
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS media_items (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		filename TEXT NOT NULL,
		project TEXT NOT NULL DEFAULT '',
		event_date TIMESTAMPTZ NOT NULL,
		duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
		format TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		retryable BOOLEAN NOT NULL DEFAULT FALSE,
		failure TEXT NOT NULL DEFAULT '',
		diarized BOOLEAN NOT NULL DEFAULT FALSE,
		ingest_version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_media_project ON media_items(project);
	CREATE INDEX IF NOT EXISTS idx_media_status ON media_items(status);
	CREATE INDEX IF NOT EXISTS idx_media_event_date ON media_items(event_date);

	CREATE TABLE IF NOT EXISTS transcript_segments (
		media_id TEXT NOT NULL REFERENCES media_items(id) ON DELETE CASCADE,
		segment_index INTEGER NOT NULL,
		start_sec DOUBLE PRECISION NOT NULL,
		end_sec DOUBLE PRECISION NOT NULL,
		text TEXT NOT NULL,
		confidence DOUBLE PRECISION,
		backend TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (media_id, segment_index)
	);

	CREATE TABLE IF NOT EXISTS speaker_intervals (
		media_id TEXT NOT NULL REFERENCES media_items(id) ON DELETE CASCADE,
		start_sec DOUBLE PRECISION NOT NULL,
		end_sec DOUBLE PRECISION NOT NULL,
		speaker TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_intervals_media ON speaker_intervals(media_id);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		media_id TEXT NOT NULL REFERENCES media_items(id) ON DELETE CASCADE,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		start_sec DOUBLE PRECISION NOT NULL,
		end_sec DOUBLE PRECISION NOT NULL,
		speakers JSONB NOT NULL DEFAULT '[]',
		embedding vector(%d) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_media ON chunks(media_id);

	CREATE TABLE IF NOT EXISTS index_meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		model TEXT NOT NULL,
		dimensions INTEGER NOT NULL,
		metric TEXT NOT NULL
	);
	`, s.dimensions)
	_, err := s.db.Exec(schema)
	return err
}

// UpsertMediaItem inserts the item or refreshes the existing row.
func (s *PostgresStore) UpsertMediaItem(ctx context.Context, item *models.MediaItem) error {
	now := time.Now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO media_items (id, path, filename, project, event_date, duration_seconds,
			format, language, status, retryable, failure, diarized, ingest_version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (id) DO UPDATE SET
			path = EXCLUDED.path,
			filename = EXCLUDED.filename,
			project = EXCLUDED.project,
			event_date = EXCLUDED.event_date,
			duration_seconds = EXCLUDED.duration_seconds,
			format = EXCLUDED.format,
			language = EXCLUDED.language,
			status = EXCLUDED.status,
			retryable = EXCLUDED.retryable,
			failure = EXCLUDED.failure,
			diarized = EXCLUDED.diarized,
			ingest_version = EXCLUDED.ingest_version,
			updated_at = EXCLUDED.updated_at`,
		item.ID, item.Path, item.Filename, item.Project, item.EventDate, item.DurationSeconds,
		item.Format, item.Language, string(item.Status), item.Retryable, item.Failure,
		item.Diarized, item.IngestVersion, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert media item: %w", err)
	}
	return nil
}

// GetMediaItem returns the media item by ID.
func (s *PostgresStore) GetMediaItem(ctx context.Context, id string) (*models.MediaItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+mediaColumns+` FROM media_items WHERE id = $1`, id)
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
func (s *PostgresStore) ListMediaItems(ctx context.Context, project string, status models.IngestStatus, limit, offset int) ([]*models.MediaItem, error) {
	query := `SELECT ` + mediaColumns + ` FROM media_items WHERE TRUE`
	var args []interface{}
	if project != "" {
		args = append(args, project)
		query += fmt.Sprintf(` AND project = $%d`, len(args))
	}
	if status != "" {
		args = append(args, string(status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(` ORDER BY event_date DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

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
func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status models.IngestStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE media_items SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now(), id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("media item %s: %w", id, ErrNotFound)
	}
	return nil
}

// MarkFailed records a failure with its retry classification.
func (s *PostgresStore) MarkFailed(ctx context.Context, id string, retryable bool, failure string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE media_items SET status = $1, retryable = $2, failure = $3, updated_at = $4 WHERE id = $5`,
		string(models.StatusFailed), retryable, failure, time.Now(), id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("media item %s: %w", id, ErrNotFound)
	}
	return nil
}

// SaveSegments replaces the stored transcript for the media item.
func (s *PostgresStore) SaveSegments(ctx context.Context, mediaID string, segments []models.TranscriptSegment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM transcript_segments WHERE media_id = $1`, mediaID); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO transcript_segments (media_id, segment_index, start_sec, end_sec, text, confidence, backend)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`)
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
func (s *PostgresStore) GetSegments(ctx context.Context, mediaID string) ([]models.TranscriptSegment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT media_id, segment_index, start_sec, end_sec, text, confidence, backend
		 FROM transcript_segments WHERE media_id = $1 ORDER BY segment_index`, mediaID)
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
// marks its diarization checkpoint complete, even for an empty set.
func (s *PostgresStore) SaveIntervals(ctx context.Context, mediaID string, intervals []models.SpeakerInterval) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM speaker_intervals WHERE media_id = $1`, mediaID); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO speaker_intervals (media_id, start_sec, end_sec, speaker) VALUES ($1, $2, $3, $4)`)
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
		`UPDATE media_items SET diarized = TRUE, updated_at = $1 WHERE id = $2`,
		time.Now(), mediaID); err != nil {
		return err
	}
	return tx.Commit()
}

// GetIntervals returns stored speaker intervals ordered by start.
func (s *PostgresStore) GetIntervals(ctx context.Context, mediaID string) ([]models.SpeakerInterval, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT media_id, start_sec, end_sec, speaker
		 FROM speaker_intervals WHERE media_id = $1 ORDER BY start_sec`, mediaID)
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
func (s *PostgresStore) CommitChunks(ctx context.Context, mediaID string, chunks []models.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE media_id = $1`, mediaID); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, media_id, chunk_index, text, start_sec, end_sec, speakers, embedding, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::vector, $9)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for i := range chunks {
		ch := &chunks[i]
		if len(ch.Embedding) != s.dimensions {
			return fmt.Errorf("chunk %s embedding has %d dimensions, store expects %d", ch.ID, len(ch.Embedding), s.dimensions)
		}
		speakersJSON, err := json.Marshal(ch.Speakers)
		if err != nil {
			return fmt.Errorf("marshal speakers: %w", err)
		}
		ch.CreatedAt = now
		if _, err := stmt.ExecContext(ctx, ch.ID, mediaID, ch.ChunkIndex, ch.Text,
			ch.StartSec, ch.EndSec, string(speakersJSON), vectorToString(ch.Embedding), ch.CreatedAt); err != nil {
			return fmt.Errorf("insert chunk %s: %w", ch.ID, err)
		}
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE media_items SET status = $1, retryable = FALSE, failure = '', updated_at = $2 WHERE id = $3`,
		string(models.StatusIndexed), now, mediaID)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("media item %s: %w", mediaID, ErrNotFound)
	}
	return tx.Commit()
}

// GetChunks returns a media item's chunks ordered by index. Embeddings are not
// loaded; postgres keeps scoring server side.
func (s *PostgresStore) GetChunks(ctx context.Context, mediaID string) ([]*models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, media_id, chunk_index, text, start_sec, end_sec, speakers, created_at
		 FROM chunks WHERE media_id = $1 ORDER BY chunk_index`, mediaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*models.Chunk
	for rows.Next() {
		var ch models.Chunk
		var speakersJSON []byte
		if err := rows.Scan(&ch.ID, &ch.MediaID, &ch.ChunkIndex, &ch.Text,
			&ch.StartSec, &ch.EndSec, &speakersJSON, &ch.CreatedAt); err != nil {
			return nil, err
		}
		if len(speakersJSON) > 0 {
			if err := json.Unmarshal(speakersJSON, &ch.Speakers); err != nil {
				return nil, fmt.Errorf("unmarshal speakers: %w", err)
			}
		}
		chunks = append(chunks, &ch)
	}
	return chunks, rows.Err()
}

// NearestNeighbors runs the cosine distance query in postgres and returns the
// top k chunks of indexed media.
func (s *PostgresStore) NearestNeighbors(ctx context.Context, query []float32, k int, filters models.SearchFilters) ([]Neighbor, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(query) != s.dimensions {
		return nil, fmt.Errorf("query has %d dimensions, store expects %d", len(query), s.dimensions)
	}

	args := []interface{}{vectorToString(query), string(models.StatusIndexed)}
	q := `SELECT c.id, c.media_id, c.chunk_index, c.text, c.start_sec, c.end_sec, c.speakers, c.created_at,
			1 - (c.embedding <=> $1::vector) AS similarity,
			m.id, m.path, m.filename, m.project, m.event_date, m.duration_seconds,
			m.format, m.language, m.status, m.retryable, m.failure, m.diarized, m.ingest_version, m.created_at, m.updated_at
		 FROM chunks c
		 JOIN media_items m ON m.id = c.media_id
		 WHERE m.status = $2`
	if filters.Project != "" {
		args = append(args, filters.Project)
		q += fmt.Sprintf(` AND m.project = $%d`, len(args))
	}
	if filters.MediaID != "" {
		args = append(args, filters.MediaID)
		q += fmt.Sprintf(` AND m.id = $%d`, len(args))
	}
	if !filters.DateFrom.IsZero() {
		args = append(args, filters.DateFrom)
		q += fmt.Sprintf(` AND m.event_date >= $%d`, len(args))
	}
	if !filters.DateTo.IsZero() {
		args = append(args, filters.DateTo)
		q += fmt.Sprintf(` AND m.event_date <= $%d`, len(args))
	}
	args = append(args, k)
	q += fmt.Sprintf(` ORDER BY c.embedding <=> $1::vector, m.event_date DESC, c.id LIMIT $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("nearest neighbors: %w", err)
	}
	defer rows.Close()

	media := make(map[string]*models.MediaItem)
	var neighbors []Neighbor
	for rows.Next() {
		var ch models.Chunk
		var speakersJSON []byte
		var similarity float64
		var item models.MediaItem
		var status string
		if err := rows.Scan(&ch.ID, &ch.MediaID, &ch.ChunkIndex, &ch.Text, &ch.StartSec, &ch.EndSec,
			&speakersJSON, &ch.CreatedAt, &similarity,
			&item.ID, &item.Path, &item.Filename, &item.Project, &item.EventDate,
			&item.DurationSeconds, &item.Format, &item.Language, &status, &item.Retryable,
			&item.Failure, &item.Diarized, &item.IngestVersion, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		item.Status = models.IngestStatus(status)
		if len(speakersJSON) > 0 {
			if err := json.Unmarshal(speakersJSON, &ch.Speakers); err != nil {
				return nil, fmt.Errorf("unmarshal speakers: %w", err)
			}
		}
		if similarity < 0 {
			similarity = 0
		}
		m, ok := media[item.ID]
		if !ok {
			snapshot := item
			m = &snapshot
			media[item.ID] = m
		}
		neighbors = append(neighbors, Neighbor{Chunk: &ch, Media: m, Similarity: similarity})
	}
	return neighbors, rows.Err()
}

// EnsureIndexMeta writes meta on first use and rejects later disagreement.
func (s *PostgresStore) EnsureIndexMeta(ctx context.Context, meta IndexMeta) error {
	existing, err := s.GetIndexMeta(ctx)
	if err != nil {
		return err
	}
	if existing == nil {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO index_meta (id, model, dimensions, metric) VALUES (1, $1, $2, $3)
			 ON CONFLICT (id) DO NOTHING`,
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
func (s *PostgresStore) GetIndexMeta(ctx context.Context) (*IndexMeta, error) {
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
func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM media_items`).Scan(&st.MediaTotal); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM media_items WHERE status = $1`, string(models.StatusIndexed)).Scan(&st.MediaIndexed); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM media_items WHERE status = $1`, string(models.StatusFailed)).Scan(&st.MediaFailed); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&st.Chunks); err != nil {
		return nil, err
	}
	return &st, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// vectorToString renders a float32 slice in pgvector text format: [0.1,0.2].
func vectorToString(v []float32) string {
	parts := make([]string, len(v))
	for i, val := range v {
		parts[i] = fmt.Sprintf("%g", val)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
