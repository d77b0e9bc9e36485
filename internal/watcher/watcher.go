// Package watcher feeds image files that appear under watched directories into ingestion.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hyperjump/ruiji/internal/indexer"
	"go.uber.org/zap"
)

const (
	defaultDebounce = 400 * time.Millisecond
	// maxHold caps, in debounce periods, how long a busy tree can delay a handoff.
	maxHold = 8
)

// Watcher hands files created or rewritten under its roots to onFiles. Changed files are
// held until no event arrived for the debounce period and then passed on as one sorted
// batch. The store is append-only, so removals only drop files still pending.
type Watcher struct {
	extensions []string
	recursive  bool
	onFiles    func(paths []string)
	debounce   time.Duration
	logger     *zap.Logger // optional; when set, logs debug events

	mu      sync.Mutex
	roots   []string
	fsw     *fsnotify.Watcher // nil unless running
	cancel  context.CancelFunc
	stopped chan struct{}

	// Only the event loop touches the pending set and its timestamps.
	pending    map[string]struct{}
	firstEvent time.Time
	lastEvent  time.Time
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long a file must stay quiet before it is handed off.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// NewWatcher creates a watcher over roots. extensions filters files (empty = all); with
// recursive unset only files directly inside a root are picked up.
func NewWatcher(roots []string, extensions []string, recursive bool, onFiles func(paths []string), opts ...WatcherOption) *Watcher {
	w := &Watcher{
		extensions: extensions,
		recursive:  recursive,
		onFiles:    onFiles,
		debounce:   defaultDebounce,
		pending:    make(map[string]struct{}),
	}
	for _, root := range roots {
		if abs := absPath(root); !slices.Contains(w.roots, abs) {
			w.roots = append(w.roots, abs)
		}
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start watches every root, creating missing ones, and processes events until ctx is
// cancelled or Stop is called. Starting a running watcher is a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, root := range w.roots {
		if err := watchTree(fsw, root, w.recursive); err != nil {
			_ = fsw.Close()
			return err
		}
	}
	if w.logger != nil {
		w.logger.Debug("watcher starting", zap.Strings("roots", w.roots), zap.Strings("extensions", w.extensions), zap.Bool("recursive", w.recursive))
	}
	loopCtx, cancel := context.WithCancel(ctx)
	w.fsw, w.cancel, w.stopped = fsw, cancel, make(chan struct{})
	go w.loop(loopCtx, fsw, w.stopped)
	return nil
}

// Stop ends the event loop and waits for it to release the fsnotify watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, stopped := w.cancel, w.stopped
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher, stopped chan struct{}) {
	tick := time.NewTicker(max(w.debounce/4, 10*time.Millisecond))
	defer func() {
		tick.Stop()
		_ = fsw.Close()
		w.mu.Lock()
		if w.fsw == fsw {
			w.fsw, w.cancel = nil, nil
		}
		w.mu.Unlock()
		close(stopped)
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handle(fsw, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		case now := <-tick.C:
			if batch := w.settled(now); len(batch) > 0 {
				w.handOff(batch)
			}
		}
	}
}

func (w *Watcher) handle(fsw *fsnotify.Watcher, ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if !w.covered(path) {
		return
	}
	if w.logger != nil {
		w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
	}
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			if ev.Has(fsnotify.Create) && w.recursive {
				w.adoptDirectory(fsw, path)
			}
			return
		}
		if indexer.Allowed(path, w.extensions) {
			now := time.Now()
			if len(w.pending) == 0 {
				w.firstEvent = now
			}
			w.pending[path] = struct{}{}
			w.lastEvent = now
		}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		delete(w.pending, path)
	}
}

// adoptDirectory watches a directory created or moved in under a recursive root. Files it
// already holds produce no events of their own, so they are handed off right away.
func (w *Watcher) adoptDirectory(fsw *fsnotify.Watcher, dir string) {
	if err := watchTree(fsw, dir, true); err != nil && w.logger != nil {
		w.logger.Debug("watcher failed to add directory", zap.String("path", dir), zap.Error(err))
	}
	files, err := indexer.ListFiles(dir, w.extensions, true)
	if err == nil && len(files) > 0 {
		w.handOff(files)
	}
}

// settled drains the pending set once events stopped for the debounce period, or once the
// oldest pending file waited maxHold periods.
func (w *Watcher) settled(now time.Time) []string {
	if len(w.pending) == 0 {
		return nil
	}
	if now.Sub(w.lastEvent) < w.debounce && now.Sub(w.firstEvent) < maxHold*w.debounce {
		return nil
	}
	batch := make([]string, 0, len(w.pending))
	for path := range w.pending {
		if w.covered(path) {
			batch = append(batch, path)
		}
	}
	clear(w.pending)
	slices.Sort(batch)
	return batch
}

// handOff runs onFiles off the event loop so slow ingestion does not stall fsnotify.
func (w *Watcher) handOff(paths []string) {
	if w.onFiles == nil {
		return
	}
	if w.logger != nil {
		w.logger.Debug("watcher handing off files", zap.Int("count", len(paths)))
	}
	go w.onFiles(paths)
}

// AddDirectory starts watching root. With syncExisting the files already in it are handed
// off in the background.
func (w *Watcher) AddDirectory(root string, syncExisting bool) error {
	abs := absPath(root)
	w.mu.Lock()
	if slices.Contains(w.roots, abs) {
		w.mu.Unlock()
		return nil
	}
	if w.fsw != nil {
		if err := watchTree(w.fsw, abs, w.recursive); err != nil {
			w.mu.Unlock()
			return err
		}
	}
	w.roots = append(w.roots, abs)
	w.mu.Unlock()

	if w.logger != nil {
		w.logger.Debug("watcher directory added", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	}
	if syncExisting {
		go w.syncRoot(abs)
	}
	return nil
}

// RemoveDirectory stops watching root. Records already ingested stay stored; directories
// still covered by another root keep their watches.
func (w *Watcher) RemoveDirectory(root string) error {
	abs := absPath(root)
	w.mu.Lock()
	defer w.mu.Unlock()
	i := slices.Index(w.roots, abs)
	if i < 0 {
		return nil
	}
	w.roots = slices.Delete(w.roots, i, i+1)
	if w.fsw != nil {
		for _, dir := range w.fsw.WatchList() {
			if inDir(abs, dir) && !w.coveredLocked(dir) {
				_ = w.fsw.Remove(dir)
			}
		}
	}
	if w.logger != nil {
		w.logger.Debug("watcher directory removed", zap.String("path", abs))
	}
	return nil
}

// Directories returns a copy of the watched roots.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.roots)
}

// SyncExistingFiles hands every matching file already present in each root to onFiles,
// one call per root. Call it after Start to ingest files that predate the watcher.
func (w *Watcher) SyncExistingFiles() {
	for _, root := range w.Directories() {
		w.syncRoot(root)
	}
}

func (w *Watcher) syncRoot(root string) {
	files, err := indexer.ListFiles(root, w.extensions, w.recursive)
	if err != nil {
		if w.logger != nil {
			w.logger.Debug("watcher sync failed", zap.String("root", root), zap.Error(err))
		}
		return
	}
	if len(files) > 0 && w.onFiles != nil {
		w.onFiles(files)
	}
}

func (w *Watcher) covered(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.coveredLocked(path)
}

func (w *Watcher) coveredLocked(path string) bool {
	for _, root := range w.roots {
		if inDir(root, path) && (w.recursive || path == root || filepath.Dir(path) == root) {
			return true
		}
	}
	return false
}

// watchTree creates dir if needed and watches it, plus every subdirectory when recursive.
func watchTree(fsw *fsnotify.Watcher, dir string, recursive bool) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if !recursive {
		return fsw.Add(dir)
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return err
		}
		return fsw.Add(path)
	})
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
