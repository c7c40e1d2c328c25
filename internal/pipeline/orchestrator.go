package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kikoe/internal/align"
	"github.com/hyperjump/kikoe/internal/chunker"
	"github.com/hyperjump/kikoe/internal/config"
	"github.com/hyperjump/kikoe/internal/diarize"
	"github.com/hyperjump/kikoe/internal/embedding"
	"github.com/hyperjump/kikoe/internal/keyword"
	"github.com/hyperjump/kikoe/internal/media"
	"github.com/hyperjump/kikoe/internal/models"
	"github.com/hyperjump/kikoe/internal/store"
	"github.com/hyperjump/kikoe/internal/transcribe"
)

// Event is a per-item progress notification for CLI and UI layers.
type Event struct {
	MediaID string
	Status  models.IngestStatus
	Err     error
}

// Summary reports the outcome of a folder run.
type Summary struct {
	Discovered int
	Indexed    int
	Skipped    int
	Failed     int
}

// AudioExtractor converts a media file into a mono 16 kHz WAV under tmpDir and
// returns the temp file path. Injectable so tests can bypass ffmpeg.
type AudioExtractor func(ctx context.Context, mediaPath, tmpDir string) (string, error)

// Orchestrator runs the per-item state machine
// Discovered -> Transcribing -> Diarizing -> Aligning -> Embedding -> Indexed,
// with Failed reachable from any stage. Stage artifacts are checkpointed in the
// store so a restart resumes after the last finished stage; transcription is
// never re-paid for an item whose segments are already saved.
type Orchestrator struct {
	store       store.Store
	locator     *media.Locator
	transcriber transcribe.Backend
	diarizer    diarize.Backend
	embedder    embedding.Embedder
	chunker     *chunker.Chunker
	lexical     keyword.LexicalIndex
	cfg         *config.Config
	extract     AudioExtractor
	logger      *zap.Logger
	progress    func(Event)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithProgress registers a callback invoked on every item status change.
func WithProgress(fn func(Event)) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

// WithAudioExtractor replaces the ffmpeg audio extraction step.
func WithAudioExtractor(fn AudioExtractor) Option {
	return func(o *Orchestrator) { o.extract = fn }
}

// NewOrchestrator creates a pipeline orchestrator. diarizer may be nil to
// disable diarization; lexical may be nil to skip lexical indexing.
func NewOrchestrator(
	st store.Store,
	locator *media.Locator,
	transcriber transcribe.Backend,
	diarizer diarize.Backend,
	embedder embedding.Embedder,
	lexical keyword.LexicalIndex,
	cfg *config.Config,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		store:       st,
		locator:     locator,
		transcriber: transcriber,
		diarizer:    diarizer,
		embedder:    embedder,
		chunker:     chunker.NewChunker(cfg.Search.MaxChunkChars, cfg.Search.OverlapChars),
		lexical:     lexical,
		cfg:         cfg,
		extract:     media.ExtractAudio,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ProcessFolder discovers media under dir and ingests every item through a
// bounded worker pool. language overrides the configured transcription
// language hint when non-empty; diarize toggles speaker diarization for the
// run. Items already indexed or permanently failed are skipped. The returned
// error is non-nil only for run-level problems (configuration, cancellation);
// per-item failures are recorded in the store and counted in the summary.
func (o *Orchestrator) ProcessFolder(ctx context.Context, dir, project, language string, diarize bool) (*Summary, error) {
	if err := o.ensureMeta(ctx); err != nil {
		return nil, err
	}

	items, err := o.locator.Discover(ctx, dir, project)
	if err != nil {
		return nil, fmt.Errorf("discover media: %w", err)
	}
	o.logger.Info("ingestion run started",
		zap.String("run_id", uuid.NewString()),
		zap.String("dir", dir),
		zap.String("project", project),
		zap.Int("discovered", len(items)))

	summary := &Summary{Discovered: len(items)}
	workers := o.cfg.Pipeline.Workers
	if workers <= 0 {
		workers = 1
	}

	jobs := make(chan *models.MediaItem)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range jobs {
				outcome := o.ingest(ctx, item, language, diarize)
				mu.Lock()
				switch {
				case outcome == nil:
					summary.Indexed++
				case errors.Is(outcome, errSkipped):
					summary.Skipped++
				case ctx.Err() != nil:
					// Cancelled items keep their checkpoint and are not failures.
				default:
					summary.Failed++
				}
				mu.Unlock()
			}
		}()
	}

	for _, item := range items {
		select {
		case jobs <- item:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return summary, ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()
	if ctx.Err() != nil {
		return summary, ctx.Err()
	}
	return summary, nil
}

// ProcessFile ingests a single media file. language and diarize carry the
// same per-run overrides as ProcessFolder.
func (o *Orchestrator) ProcessFile(ctx context.Context, path, project, language string, diarize bool) error {
	if err := o.ensureMeta(ctx); err != nil {
		return err
	}
	item, err := o.locator.DiscoverFile(ctx, path, project)
	if err != nil {
		return err
	}
	if err := o.ingest(ctx, item, language, diarize); err != nil && !errors.Is(err, errSkipped) {
		return err
	}
	return nil
}

// errSkipped marks items that needed no work this run.
var errSkipped = errors.New("pipeline: item skipped")

// ensureMeta records or verifies the embedding space before any item runs.
// A mismatch is a configuration error and aborts the run.
func (o *Orchestrator) ensureMeta(ctx context.Context) error {
	return o.store.EnsureIndexMeta(ctx, store.IndexMeta{
		Model:      o.embedder.ModelName(),
		Dimensions: o.embedder.Dimensions(),
		Metric:     "cosine",
	})
}

// ingest runs one item through the state machine. Item-level failures are
// recorded via MarkFailed and returned; cancellation returns ctx.Err() without
// touching the item's checkpointed state.
func (o *Orchestrator) ingest(ctx context.Context, discovered *models.MediaItem, language string, diarize bool) error {
	item, err := o.reconcile(ctx, discovered, language)
	if err != nil {
		return err
	}

	segments, err := o.store.GetSegments(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("load segments: %w", err)
	}
	intervals, err := o.store.GetIntervals(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("load intervals: %w", err)
	}

	needTranscribe := len(segments) == 0
	// The diarized mark distinguishes a finished pass that found no speakers
	// from one that never ran, so zero intervals are not re-paid on resume.
	needDiarize := diarize && o.diarizer != nil && !item.Diarized

	if needTranscribe || needDiarize {
		segments, intervals, err = o.runBackends(ctx, item, segments, intervals, needTranscribe, needDiarize)
		if err != nil {
			return o.fail(ctx, item, err)
		}
	} else {
		o.logger.Debug("resuming from checkpoint",
			zap.String("media_id", item.ID),
			zap.String("status", string(item.Status)))
	}

	if err := o.setStatus(ctx, item, models.StatusAligning); err != nil {
		return err
	}
	aligned := align.Align(segments, intervals)
	if err := checkAlignment(segments, aligned); err != nil {
		o.logger.Error("alignment invariant violated", zap.String("media_id", item.ID), zap.Error(err))
		return o.fail(ctx, item, err)
	}
	chunks := o.chunker.Chunk(item.ID, aligned)

	if err := o.setStatus(ctx, item, models.StatusEmbedding); err != nil {
		return err
	}
	if err := o.embedAndCommit(ctx, item, chunks); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return o.fail(ctx, item, err)
	}

	item.Status = models.StatusIndexed
	o.emit(item, nil)
	o.logger.Info("media indexed",
		zap.String("media_id", item.ID),
		zap.String("path", item.Path),
		zap.Int("chunks", len(chunks)))

	o.archive(ctx, item)
	return nil
}

// reconcile merges the freshly discovered item with any stored state and
// decides whether it needs work. A non-empty language override is recorded on
// the item so it survives resume.
func (o *Orchestrator) reconcile(ctx context.Context, discovered *models.MediaItem, language string) (*models.MediaItem, error) {
	existing, err := o.store.GetMediaItem(ctx, discovered.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		if existing.Status == models.StatusIndexed {
			o.logger.Debug("already indexed", zap.String("media_id", existing.ID))
			return nil, errSkipped
		}
		if existing.Status == models.StatusFailed && !existing.Retryable {
			o.logger.Debug("permanently failed, skipping", zap.String("media_id", existing.ID))
			return nil, errSkipped
		}
		if existing.Status == models.StatusFailed {
			// Retrying a failed item starts a new ingestion pass.
			existing.IngestVersion++
		}
		// Keep the stored checkpoint; refresh probed metadata.
		existing.Path = discovered.Path
		existing.Filename = discovered.Filename
		existing.DurationSeconds = discovered.DurationSeconds
		existing.Format = discovered.Format
		if language != "" {
			existing.Language = language
		}
		if err := o.store.UpsertMediaItem(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	discovered.Status = models.StatusDiscovered
	discovered.IngestVersion = 1
	if language != "" {
		discovered.Language = language
	}
	if err := o.store.UpsertMediaItem(ctx, discovered); err != nil {
		return nil, err
	}
	o.emit(discovered, nil)
	return discovered, nil
}

// runBackends extracts audio and runs transcription and diarization in
// parallel, checkpointing each artifact as it lands. Diarization failure
// degrades to unlabeled segments; transcription failure fails the item.
func (o *Orchestrator) runBackends(
	ctx context.Context,
	item *models.MediaItem,
	segments []models.TranscriptSegment,
	intervals []models.SpeakerInterval,
	needTranscribe, needDiarize bool,
) ([]models.TranscriptSegment, []models.SpeakerInterval, error) {
	tmpDir := o.cfg.Storage.TempDir
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	audioPath, err := o.extract(ctx, item.Path, tmpDir)
	if err != nil {
		return nil, nil, fmt.Errorf("extract audio: %w", err)
	}
	defer func() {
		if audioPath != item.Path {
			_ = os.Remove(audioPath)
		}
	}()

	if err := o.setStatus(ctx, item, models.StatusTranscribing); err != nil {
		return nil, nil, err
	}

	language := item.Language
	if language == "" {
		language = o.cfg.Transcription.Language
	}

	var (
		wg            sync.WaitGroup
		transcribeErr error
		diarizeErr    error
		newSegments   []models.TranscriptSegment
		newIntervals  []models.SpeakerInterval
	)
	if needTranscribe {
		wg.Add(1)
		go func() {
			defer wg.Done()
			transcribeErr = o.retryTransient(ctx, "transcribe", func() error {
				segs, err := o.transcriber.Transcribe(ctx, audioPath, language)
				if err != nil {
					return err
				}
				newSegments = segs
				return nil
			})
		}()
	}
	if needDiarize {
		wg.Add(1)
		go func() {
			defer wg.Done()
			diarizeErr = o.retryTransient(ctx, "diarize", func() error {
				ivs, err := o.diarizer.Diarize(ctx, audioPath)
				if err != nil {
					return err
				}
				newIntervals = ivs
				return nil
			})
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		return nil, nil, ctx.Err()
	}
	if transcribeErr != nil {
		return nil, nil, fmt.Errorf("transcription: %w", transcribeErr)
	}

	if needTranscribe {
		segments = newSegments
		for i := range segments {
			segments[i].MediaID = item.ID
			if segments[i].Backend == "" {
				segments[i].Backend = o.transcriber.Name()
			}
		}
		if err := o.store.SaveSegments(ctx, item.ID, segments); err != nil {
			return nil, nil, fmt.Errorf("save segments: %w", err)
		}
	}

	if err := o.setStatus(ctx, item, models.StatusDiarizing); err != nil {
		return nil, nil, err
	}
	if needDiarize {
		if diarizeErr != nil {
			// Speaker labels are an enrichment; the transcript still indexes.
			// No checkpoint is written, so a later retry attempts diarization
			// again.
			o.logger.Warn("diarization failed, continuing unlabeled",
				zap.String("media_id", item.ID), zap.Error(diarizeErr))
		} else {
			intervals = newIntervals
			for i := range intervals {
				intervals[i].MediaID = item.ID
			}
			if err := o.store.SaveIntervals(ctx, item.ID, intervals); err != nil {
				return nil, nil, fmt.Errorf("save intervals: %w", err)
			}
			item.Diarized = true
		}
	}
	return segments, intervals, nil
}

// embedAndCommit embeds chunk texts in one batch and commits chunks,
// embeddings, and the indexed status atomically.
func (o *Orchestrator) embedAndCommit(ctx context.Context, item *models.MediaItem, chunks []*models.Chunk) error {
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}

	var embeddings [][]float32
	err := o.retryTransient(ctx, "embed", func() error {
		out, err := o.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		embeddings = out
		return nil
	})
	if err != nil {
		return fmt.Errorf("embedding: %w", err)
	}

	committed := make([]models.Chunk, len(chunks))
	for i, ch := range chunks {
		ch.Embedding = embeddings[i]
		committed[i] = *ch
	}
	if err := o.store.CommitChunks(ctx, item.ID, committed); err != nil {
		return fmt.Errorf("commit chunks: %w", err)
	}

	if o.lexical != nil {
		if err := o.lexical.IndexChunks(ctx, committed); err != nil {
			// The lexical index only re-ranks; a failure here degrades
			// ordering, it does not lose data.
			o.logger.Warn("lexical indexing failed",
				zap.String("media_id", item.ID), zap.Error(err))
		}
	}
	return nil
}

// fail records an item failure with its retry classification. Cancellation is
// passed through so the item keeps its checkpoint.
func (o *Orchestrator) fail(ctx context.Context, item *models.MediaItem, cause error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	retryable := Retryable(cause)
	o.logger.Error("ingestion failed",
		zap.String("media_id", item.ID),
		zap.String("path", item.Path),
		zap.Bool("retryable", retryable),
		zap.Error(cause))
	if err := o.store.MarkFailed(ctx, item.ID, retryable, cause.Error()); err != nil {
		o.logger.Error("failed to record failure", zap.String("media_id", item.ID), zap.Error(err))
	}
	item.Status = models.StatusFailed
	o.emit(item, cause)
	return cause
}

func (o *Orchestrator) setStatus(ctx context.Context, item *models.MediaItem, status models.IngestStatus) error {
	if err := o.store.UpdateStatus(ctx, item.ID, status); err != nil {
		return err
	}
	item.Status = status
	o.emit(item, nil)
	return nil
}

func (o *Orchestrator) emit(item *models.MediaItem, err error) {
	if o.progress != nil {
		o.progress(Event{MediaID: item.ID, Status: item.Status, Err: err})
	}
}

// retryTransient runs fn, retrying transient failures with doubling backoff up
// to the configured attempt limit.
func (o *Orchestrator) retryTransient(ctx context.Context, op string, fn func() error) error {
	attempts := o.cfg.Pipeline.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := time.Duration(o.cfg.Pipeline.RetryBackoffSeconds) * time.Second
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if Classify(err) != ClassTransient || attempt >= attempts {
			return err
		}
		o.logger.Warn("transient failure, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return err
		}
		backoff *= 2
	}
}

// checkAlignment verifies the aligner preserved segment spans and order.
func checkAlignment(segments []models.TranscriptSegment, aligned []models.AlignedSegment) error {
	if len(aligned) != len(segments) {
		return fmt.Errorf("%w: aligner returned %d segments for %d inputs", ErrConsistency, len(aligned), len(segments))
	}
	for i := range aligned {
		if aligned[i].StartSec != segments[i].StartSec || aligned[i].EndSec != segments[i].EndSec {
			return fmt.Errorf("%w: aligned span [%f,%f] diverges from segment [%f,%f]",
				ErrConsistency, aligned[i].StartSec, aligned[i].EndSec, segments[i].StartSec, segments[i].EndSec)
		}
	}
	return nil
}

// archive moves a successfully indexed file into the archive directory and
// records its new location. Archiving is best effort.
func (o *Orchestrator) archive(ctx context.Context, item *models.MediaItem) {
	dir := o.cfg.Storage.ArchiveDir
	if dir == "" {
		return
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		o.logger.Warn("archive directory unavailable", zap.String("dir", dir), zap.Error(err))
		return
	}
	dest := filepath.Join(dir, item.Filename)
	if dest == item.Path {
		return
	}
	if err := os.Rename(item.Path, dest); err != nil {
		o.logger.Warn("archive move failed", zap.String("path", item.Path), zap.Error(err))
		return
	}
	item.Path = dest
	if err := o.store.UpsertMediaItem(ctx, item); err != nil {
		o.logger.Warn("failed to record archived path", zap.String("media_id", item.ID), zap.Error(err))
	}
	o.logger.Debug("archived media", zap.String("media_id", item.ID), zap.String("dest", dest))
}
