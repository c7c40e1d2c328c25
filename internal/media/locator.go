package media

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/kikoe/internal/mediaid"
	"github.com/hyperjump/kikoe/internal/models"
	"go.uber.org/zap"
)

// Locator discovers candidate media files in a directory tree and probes their
// metadata. Files that fail probing are reported via the Skipped callback, not
// returned as candidates.
type Locator struct {
	prober Prober
	// extensions filter which files are considered; empty means all.
	extensions []string
	// minBytes skips files smaller than this (empty/near-empty recordings).
	minBytes int64
	logger   *zap.Logger
}

// LocatorOption configures a Locator.
type LocatorOption func(*Locator)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) LocatorOption {
	return func(loc *Locator) { loc.logger = l }
}

// WithMinFileBytes skips files smaller than n bytes during discovery.
func WithMinFileBytes(n int64) LocatorOption {
	return func(loc *Locator) { loc.minBytes = n }
}

// NewLocator creates a locator using the given prober and extension filter.
func NewLocator(prober Prober, extensions []string, opts ...LocatorOption) *Locator {
	loc := &Locator{prober: prober, extensions: extensions}
	for _, opt := range opts {
		opt(loc)
	}
	return loc
}

// Discover walks root and returns a MediaItem for every probe-able media file,
// with status Discovered. Hidden files and files under the archive directory
// (if archiveDir is non-empty and inside root) are skipped. Probe failures on
// individual files are logged and skipped; they do not abort the walk.
func (loc *Locator) Discover(ctx context.Context, root, project string) ([]*models.MediaItem, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		item, err := loc.DiscoverFile(ctx, root, project)
		if err != nil {
			return nil, err
		}
		return []*models.MediaItem{item}, nil
	}

	var items []*models.MediaItem
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := d.Name()
		if d.IsDir() {
			if strings.HasPrefix(name, ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		if !loc.extensionAllowed(filepath.Ext(name)) {
			return nil
		}
		item, ferr := loc.DiscoverFile(ctx, path, project)
		if ferr != nil {
			if loc.logger != nil {
				loc.logger.Warn("skipping file", zap.String("path", path), zap.Error(ferr))
			}
			return nil
		}
		items = append(items, item)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// DiscoverFile probes a single file and returns its MediaItem.
// Returns ErrUnsupportedFormat (wrapped) when the file cannot be decoded.
func (loc *Locator) DiscoverFile(ctx context.Context, path, project string) (*models.MediaItem, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}
	if loc.minBytes > 0 && info.Size() < loc.minBytes {
		return nil, fmt.Errorf("file too small (%d bytes): %s", info.Size(), absPath)
	}
	probe, err := loc.prober.Probe(ctx, absPath)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", absPath, err)
	}
	now := time.Now()
	return &models.MediaItem{
		ID:              mediaid.MediaID(absPath),
		Path:            absPath,
		Filename:        filepath.Base(absPath),
		Project:         project,
		EventDate:       eventDateFor(absPath, info),
		DurationSeconds: probe.DurationSeconds,
		Format:          probe.Format,
		Status:          models.StatusDiscovered,
		IngestVersion:   1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (loc *Locator) extensionAllowed(ext string) bool {
	if len(loc.extensions) == 0 {
		return true
	}
	ext = strings.ToLower(ext)
	for _, e := range loc.extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

// eventDateFor derives the recording date. A leading YYYY-MM-DD in the
// filename wins; otherwise the file modification time is used.
func eventDateFor(path string, info fs.FileInfo) time.Time {
	base := filepath.Base(path)
	if len(base) >= 10 {
		if d, err := time.Parse("2006-01-02", base[:10]); err == nil {
			return d
		}
	}
	return info.ModTime()
}
