package hierarchy

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/metrics"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/schematic"
)

// FileLoader loads sheet files from disk. Names resolve against the
// referencing schematic's directory, then against the search paths.
//
// Parsed schematics are cached by absolute path and content hash: loading
// an unchanged file again returns the same *schematic.Schematic, so reused
// sheets share one model. The cache is safe for concurrent use.
type FileLoader struct {
	searchPaths []string
	parseOpts   []schematic.Option
	logger      *zap.Logger
	metrics     *metrics.Collector
	onEvict     func(path string)

	mu      sync.Mutex
	cache   map[string]cacheEntry
	watcher *fsnotify.Watcher
	watched map[string]bool
}

type cacheEntry struct {
	hash uint64
	sch  *schematic.Schematic
}

// FileLoaderOption configures a FileLoader
type FileLoaderOption func(*FileLoader)

// WithSearchPaths adds directories, or doublestar glob patterns matching
// directories, that sheet files are looked up in
func WithSearchPaths(patterns ...string) FileLoaderOption {
	return func(l *FileLoader) {
		l.searchPaths = append(l.searchPaths, patterns...)
	}
}

// WithParseOptions sets the options child schematics are parsed with
func WithParseOptions(opts ...schematic.Option) FileLoaderOption {
	return func(l *FileLoader) {
		l.parseOpts = append(l.parseOpts, opts...)
	}
}

// WithLoaderLogger sets the logger
func WithLoaderLogger(logger *zap.Logger) FileLoaderOption {
	return func(l *FileLoader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithLoaderMetrics records cache hits and misses in m
func WithLoaderMetrics(m *metrics.Collector) FileLoaderOption {
	return func(l *FileLoader) {
		l.metrics = m
	}
}

// WithEvictHook calls fn with the absolute path of every file the watcher
// evicts. fn runs on the watcher goroutine.
func WithEvictHook(fn func(path string)) FileLoaderOption {
	return func(l *FileLoader) {
		l.onEvict = fn
	}
}

// NewFileLoader creates a loader with an empty cache
func NewFileLoader(opts ...FileLoaderOption) *FileLoader {
	l := &FileLoader{
		logger:  zap.NewNop(),
		cache:   make(map[string]cacheEntry),
		watched: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Resolve implements PathResolver. It returns the absolute path of the
// first existing candidate.
func (l *FileLoader) Resolve(filename string, sc SearchContext) (string, error) {
	if filepath.IsAbs(filename) {
		if isFile(filename) {
			return filepath.Clean(filename), nil
		}
		return "", fmt.Errorf("sheet file %q: %w", filename, fs.ErrNotExist)
	}

	dirs, err := l.searchDirs(sc)
	if err != nil {
		return "", err
	}
	for _, dir := range dirs {
		candidate := filepath.Join(dir, filename)
		if isFile(candidate) {
			abs, err := filepath.Abs(candidate)
			if err != nil {
				return "", err
			}
			return abs, nil
		}
	}
	return "", fmt.Errorf("sheet file %q not found in %s: %w", filename, strings.Join(dirs, ", "), fs.ErrNotExist)
}

// searchDirs expands the search context and the configured search paths
// into directories, in lookup order
func (l *FileLoader) searchDirs(sc SearchContext) ([]string, error) {
	var dirs []string
	seen := make(map[string]bool)
	add := func(dir string) {
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}

	if sc.Dir != "" {
		add(sc.Dir)
	} else {
		add(".")
	}

	patterns := append(append([]string(nil), sc.SearchPaths...), l.searchPaths...)
	for _, pattern := range patterns {
		if !containsGlob(pattern) {
			add(filepath.Clean(pattern))
			continue
		}
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("search path %q: %w", pattern, err)
		}
		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && info.IsDir() {
				add(m)
			}
		}
	}
	return dirs, nil
}

func containsGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Load implements Loader
func (l *FileLoader) Load(ctx context.Context, filename string, sc SearchContext) (*schematic.Schematic, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := l.Resolve(filename, sc)
	if err != nil {
		return nil, err
	}
	return l.LoadFile(path)
}

// LoadFile loads a schematic by path through the cache
func (l *FileLoader) LoadFile(path string) (*schematic.Schematic, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	hash := xxhash.Sum64(data)

	l.mu.Lock()
	entry, ok := l.cache[abs]
	l.mu.Unlock()
	if ok && entry.hash == hash {
		l.metrics.CacheLookup(true)
		l.logger.Debug("sheet cache hit", zap.String("file", abs))
		return entry.sch, nil
	}
	l.metrics.CacheLookup(false)

	sch, err := schematic.Parse(bytes.NewReader(data), l.parseOpts...)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", abs, err)
	}

	l.mu.Lock()
	l.cache[abs] = cacheEntry{hash: hash, sch: sch}
	l.watchDirLocked(filepath.Dir(abs))
	l.mu.Unlock()

	l.logger.Debug("sheet loaded",
		zap.String("file", abs),
		zap.Uint64("hash", hash),
		zap.Int("components", sch.Components.Len()),
	)
	return sch, nil
}

// Evict drops a file from the cache and reports whether it was cached
func (l *FileLoader) Evict(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.cache[abs]; !ok {
		return false
	}
	delete(l.cache, abs)
	return true
}

// Len returns the number of cached schematics
func (l *FileLoader) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.cache)
}

// Watch evicts cached files as soon as they change on disk. It watches the
// directories of every cached file and of files loaded later, until ctx is
// done or Close is called.
func (l *FileLoader) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}

	l.mu.Lock()
	if l.watcher != nil {
		l.mu.Unlock()
		w.Close()
		return fmt.Errorf("loader is already watching")
	}
	l.watcher = w
	l.watched = make(map[string]bool)
	for path := range l.cache {
		l.watchDirLocked(filepath.Dir(path))
	}
	l.mu.Unlock()

	go l.processEvents(ctx, w)
	return nil
}

// watchDirLocked adds dir to the watcher; l.mu must be held
func (l *FileLoader) watchDirLocked(dir string) {
	if l.watcher == nil || l.watched[dir] {
		return
	}
	if err := l.watcher.Add(dir); err != nil {
		l.logger.Warn("failed to watch directory", zap.String("dir", dir), zap.Error(err))
		return
	}
	l.watched[dir] = true
	l.logger.Debug("watching directory", zap.String("dir", dir))
}

func (l *FileLoader) processEvents(ctx context.Context, w *fsnotify.Watcher) {
	defer l.stopWatcher(w)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if l.Evict(event.Name) {
				l.logger.Debug("sheet changed on disk, evicted",
					zap.String("file", event.Name),
					zap.String("op", event.Op.String()),
				)
				if l.onEvict != nil {
					l.onEvict(event.Name)
				}
			}

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			l.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// Close stops watching. The cache stays usable.
func (l *FileLoader) Close() error {
	l.mu.Lock()
	w := l.watcher
	l.mu.Unlock()
	if w == nil {
		return nil
	}
	return l.stopWatcher(w)
}

func (l *FileLoader) stopWatcher(w *fsnotify.Watcher) error {
	l.mu.Lock()
	if l.watcher == w {
		l.watcher = nil
	}
	l.mu.Unlock()
	return w.Close()
}
