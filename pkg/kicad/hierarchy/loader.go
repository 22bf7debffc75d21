package hierarchy

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/schematic"
)

// SearchContext tells a loader where a sheet file is referenced from
type SearchContext struct {
	Parent      string   // file of the referencing schematic, empty for in-memory roots
	Dir         string   // directory relative names are resolved against
	Path        string   // instance path of the sheet being loaded
	SearchPaths []string // extra directories or glob patterns to search
}

// Loader knows how to load the child schematic a sheet references.
type Loader interface {
	Load(ctx context.Context, filename string, sc SearchContext) (*schematic.Schematic, error)
}

// PathResolver is implemented by loaders that can tell which file a name
// resolves to. The manager uses it to detect a file including itself.
type PathResolver interface {
	Resolve(filename string, sc SearchContext) (string, error)
}

// resolveKey returns the identity of a referenced file
func resolveKey(l Loader, filename string, sc SearchContext) string {
	if r, ok := l.(PathResolver); ok {
		if path, err := r.Resolve(filename, sc); err == nil {
			return path
		}
	}
	if filepath.IsAbs(filename) || sc.Dir == "" {
		return filepath.Clean(filename)
	}
	return filepath.Join(sc.Dir, filename)
}

// MemoryLoader is a simple in-memory implementation useful during tests or
// when the caller already holds every sheet.
type MemoryLoader struct {
	mu      sync.RWMutex
	sheets  map[string]*schematic.Schematic
	sources map[string]string
	parse   []schematic.Option
}

// NewMemoryLoader creates an empty loader. Sources added as text are parsed
// with opts on every load, so each instance gets its own schematic.
func NewMemoryLoader(opts ...schematic.Option) *MemoryLoader {
	return &MemoryLoader{
		sheets:  make(map[string]*schematic.Schematic),
		sources: make(map[string]string),
		parse:   opts,
	}
}

// Add registers a parsed schematic under name. Every load returns the same
// schematic.
func (m *MemoryLoader) Add(name string, sch *schematic.Schematic) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sheets[filepath.Clean(name)] = sch
}

// AddSource registers schematic text under name
func (m *MemoryLoader) AddSource(name, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[filepath.Clean(name)] = text
}

// Resolve implements PathResolver. Names are tried relative to sc.Dir first,
// then as given.
func (m *MemoryLoader) Resolve(filename string, sc SearchContext) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	candidates := []string{filepath.Clean(filename)}
	if sc.Dir != "" && !filepath.IsAbs(filename) {
		candidates = append([]string{filepath.Join(sc.Dir, filename)}, candidates...)
	}
	for _, c := range candidates {
		if _, ok := m.sheets[c]; ok {
			return c, nil
		}
		if _, ok := m.sources[c]; ok {
			return c, nil
		}
	}
	return "", fmt.Errorf("sheet file %q: %w", filename, fs.ErrNotExist)
}

// Load implements Loader
func (m *MemoryLoader) Load(ctx context.Context, filename string, sc SearchContext) (*schematic.Schematic, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := m.Resolve(filename, sc)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	sch, ok := m.sheets[key]
	text := m.sources[key]
	m.mu.RUnlock()
	if ok {
		return sch, nil
	}
	return schematic.ParseString(text, m.parse...)
}
