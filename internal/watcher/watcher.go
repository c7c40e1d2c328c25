// Package watcher monitors drop folders for new media files and hands them to
// the ingestion pipeline once they have finished copying.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Media files are large and arrive over slow copies; a write burst only
// settles once no event has fired for the debounce window and the size has
// stopped changing between polls.
const (
	defaultSettle = 2 * time.Second
	defaultPoll   = 500 * time.Millisecond
)

// Watcher watches drop folders and invokes the ingest callback for each media
// file once it is fully written. Remove events are ignored: indexed
// transcripts outlive their source files, which the pipeline may archive away.
type Watcher struct {
	roots      []string
	extensions []string
	recursive  bool
	onMedia    func(path string)
	settle     time.Duration
	poll       time.Duration
	fsw        *fsnotify.Watcher

	mu        sync.Mutex
	pending   map[string]*pendingFile
	rootPaths map[string][]string
	started   bool
	done      chan struct{}
	stopOnce  sync.Once
	logger    *zap.Logger
}

// pendingFile tracks a file between its first write event and delivery.
type pendingFile struct {
	timer    *time.Timer
	lastSize int64
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithSettle overrides the quiet period a file must hold before delivery.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) { w.settle = d }
}

// NewWatcher creates a drop-folder watcher. onMedia is called with the path of
// each settled media file; extensions filter which files qualify (empty = all).
func NewWatcher(roots, extensions []string, recursive bool, onMedia func(path string), opts ...Option) *Watcher {
	w := &Watcher{
		roots:      roots,
		extensions: extensions,
		recursive:  recursive,
		onMedia:    onMedia,
		settle:     defaultSettle,
		poll:       defaultPoll,
		pending:    make(map[string]*pendingFile),
		rootPaths:  make(map[string][]string),
		done:       make(chan struct{}),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. It runs until ctx is cancelled or Stop is called.
// Missing roots are created so a drop folder can be configured before first use.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.fsw = fsw
	w.started = true
	w.logger.Debug("watch starting",
		zap.Strings("roots", w.roots),
		zap.Strings("extensions", w.extensions),
		zap.Bool("recursive", w.recursive))
	for _, root := range w.roots {
		if err := w.addRootLocked(root); err != nil {
			_ = w.fsw.Close()
			w.fsw = nil
			w.started = false
			w.mu.Unlock()
			return err
		}
	}
	w.mu.Unlock()
	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Warn("watch error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := ev.Name
	if !w.underRoot(path) || isHidden(path) {
		return
	}
	switch ev.Op {
	case fsnotify.Create, fsnotify.Write:
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			w.handleNewDirectory(path)
			return
		}
		if w.matchExtension(path) {
			w.touch(path)
		}
	case fsnotify.Remove, fsnotify.Rename:
		// The pipeline archives ingested files; a disappearing path just
		// cancels any pending delivery.
		w.forget(path)
	}
}

// handleNewDirectory registers a directory that appeared inside a watched root
// and queues any media already inside it, e.g. a whole folder dragged in.
func (w *Watcher) handleNewDirectory(dirPath string) {
	w.mu.Lock()
	recursive := w.recursive
	fsw := w.fsw
	w.mu.Unlock()
	if fsw == nil {
		return
	}

	if recursive {
		_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() && !isHidden(path) {
				if err := fsw.Add(path); err != nil {
					w.logger.Warn("watch add failed", zap.String("path", path), zap.Error(err))
				}
			}
			return nil
		})
	} else if err := fsw.Add(dirPath); err != nil {
		w.logger.Warn("watch add failed", zap.String("path", dirPath), zap.Error(err))
	}

	w.queueDirectory(dirPath)
}

func (w *Watcher) underRoot(path string) bool {
	w.mu.Lock()
	roots := append([]string(nil), w.roots...)
	w.mu.Unlock()
	clean := filepath.Clean(path)
	for _, root := range roots {
		rootClean := filepath.Clean(root)
		if rootClean == clean || inDir(rootClean, clean) {
			return true
		}
	}
	return false
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func isHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") && base != "." && base != ".."
}

func (w *Watcher) matchExtension(path string) bool {
	return matchExtension(path, w.extensions)
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

// touch records write activity on a file and (re)arms its settle timer. When
// the timer fires, the file is delivered only if its size has also stopped
// changing; otherwise the copy is still in progress and the timer re-arms.
func (w *Watcher) touch(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if p, ok := w.pending[path]; ok {
		p.timer.Reset(w.settle)
		return
	}
	p := &pendingFile{lastSize: -1}
	p.timer = time.AfterFunc(w.settle, func() { w.maybeDeliver(path) })
	w.pending[path] = p
}

func (w *Watcher) maybeDeliver(path string) {
	info, err := os.Stat(path)
	if err != nil {
		w.forget(path)
		return
	}

	w.mu.Lock()
	p, ok := w.pending[path]
	if !ok {
		w.mu.Unlock()
		return
	}
	if info.Size() != p.lastSize {
		p.lastSize = info.Size()
		p.timer.Reset(w.poll)
		w.mu.Unlock()
		return
	}
	delete(w.pending, path)
	w.mu.Unlock()

	w.logger.Debug("media file settled", zap.String("path", path), zap.Int64("bytes", info.Size()))
	if w.onMedia != nil {
		w.onMedia(path)
	}
}

func (w *Watcher) forget(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if p, ok := w.pending[path]; ok {
		p.timer.Stop()
		delete(w.pending, path)
	}
}

// AddDirectory adds a drop folder at runtime and optionally queues the media
// already inside it.
func (w *Watcher) AddDirectory(root string, ingestExisting bool) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw == nil {
		return nil
	}
	for _, r := range w.roots {
		if filepath.Clean(r) == filepath.Clean(abs) {
			return nil
		}
	}
	if err := w.addRootLocked(abs); err != nil {
		return err
	}
	w.roots = append(w.roots, abs)
	w.logger.Debug("drop folder added", zap.String("path", abs))
	if ingestExisting {
		go w.queueDirectory(abs)
	}
	return nil
}

func (w *Watcher) addRootLocked(root string) error {
	root = filepath.Clean(root)
	if _, err := os.Stat(root); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		if err := os.MkdirAll(root, 0755); err != nil {
			return err
		}
	}
	var paths []string
	if w.recursive {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() || isHidden(path) {
				return nil
			}
			if err := w.fsw.Add(path); err != nil {
				return err
			}
			paths = append(paths, path)
			return nil
		})
		if err != nil {
			return err
		}
	} else {
		if err := w.fsw.Add(root); err != nil {
			return err
		}
		paths = append(paths, root)
	}
	w.rootPaths[root] = paths
	return nil
}

// queueDirectory runs every matching file under root through the settle cycle,
// used for media that existed before the watch began.
func (w *Watcher) queueDirectory(root string) {
	w.mu.Lock()
	exts := append([]string(nil), w.extensions...)
	w.mu.Unlock()
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if isHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && matchExtension(path, exts) {
			w.touch(path)
		}
		return nil
	})
}

// RemoveDirectory stops watching a drop folder. Media already indexed from it
// stays in the index.
func (w *Watcher) RemoveDirectory(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw == nil {
		return nil
	}
	idx := -1
	for i, r := range w.roots {
		if filepath.Clean(r) == abs {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	for _, p := range w.rootPaths[abs] {
		_ = w.fsw.Remove(p)
	}
	delete(w.rootPaths, abs)
	w.roots = append(w.roots[:idx], w.roots[idx+1:]...)
	w.logger.Debug("drop folder removed", zap.String("path", abs))
	return nil
}

// Directories returns the currently watched drop folders.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.roots...)
}

// IngestBacklog queues every existing matching file in each watched root.
// Call after Start to pick up media dropped while the watcher was down.
func (w *Watcher) IngestBacklog() {
	w.mu.Lock()
	roots := append([]string(nil), w.roots...)
	w.mu.Unlock()
	for _, root := range roots {
		w.queueDirectory(root)
	}
}

// Stop stops the watcher and cancels pending deliveries.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.fsw == nil {
		w.mu.Unlock()
		return
	}
	for path, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, path)
	}
	_ = w.fsw.Close()
	w.fsw = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
