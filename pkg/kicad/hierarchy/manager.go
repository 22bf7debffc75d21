package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/connectivity"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/metrics"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/schematic"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/symbols"
)

// Manager builds sheet trees by loading the files sheets reference.
type Manager struct {
	loader      Loader
	resolver    symbols.Resolver
	searchPaths []string
	connOpts    []connectivity.Option
	logger      *zap.Logger
	metrics     *metrics.Collector
}

// Option configures a Manager
type Option func(*Manager)

// WithResolver sets the symbol resolver used for cross-sheet connectivity,
// tried after each sheet's embedded symbols
func WithResolver(r symbols.Resolver) Option {
	return func(m *Manager) {
		m.resolver = r
	}
}

// WithSearchDirs adds directories passed to the loader in every SearchContext
func WithSearchDirs(dirs ...string) Option {
	return func(m *Manager) {
		m.searchPaths = append(m.searchPaths, dirs...)
	}
}

// WithConnectivityOptions sets the options analyzers built from the tree use
func WithConnectivityOptions(opts ...connectivity.Option) Option {
	return func(m *Manager) {
		m.connOpts = append(m.connOpts, opts...)
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics counts loaded and failed sheets in c
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) {
		m.metrics = c
	}
}

// NewManager creates a manager loading child sheets through loader. A nil
// loader reads files from disk.
func NewManager(loader Loader, opts ...Option) *Manager {
	m := &Manager{
		loader: loader,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.loader == nil {
		m.loader = NewFileLoader(WithLoaderLogger(m.logger), WithLoaderMetrics(m.metrics))
	}
	return m
}

// Build loads the sheet tree below root. rootFile is the path root was read
// from; relative sheet files resolve against its directory. It may be empty
// for schematics built in memory.
//
// A sheet whose file cannot be loaded, or that includes one of its own
// ancestors, gets a *LoadError and no children; its siblings are still
// built. Build only fails when ctx is done, returning the tree built so far.
func (m *Manager) Build(ctx context.Context, root *schematic.Schematic, rootFile string) (*Tree, error) {
	if root == nil {
		return nil, errors.New("hierarchy: nil root schematic")
	}

	tree := newTree(m.resolver)
	tree.rootUUID = root.UUID

	rootKey := ""
	if rootFile != "" {
		rootKey = resolveKey(m.loader, rootFile, SearchContext{})
	}
	tree.add(&Node{
		Path:      RootPath,
		Parent:    -1,
		Name:      "Root",
		File:      rootKey,
		Schematic: root,
	})

	var ancestors []string
	if rootKey != "" {
		ancestors = append(ancestors, rootKey)
	}
	if err := m.expand(ctx, tree, 0, ancestors); err != nil {
		return tree, err
	}

	m.logger.Debug("sheet tree built",
		zap.Int("instances", tree.Len()),
		zap.Int("failed", len(tree.Errors())),
	)
	return tree, nil
}

// expand loads the children of node idx. ancestors holds the file keys on
// the way from the root.
func (m *Manager) expand(ctx context.Context, tree *Tree, idx int, ancestors []string) error {
	parent := tree.nodes[idx]
	sc := SearchContext{Parent: parent.File, SearchPaths: m.searchPaths}
	if parent.File != "" {
		sc.Dir = filepath.Dir(parent.File)
	}

	for _, sheet := range parent.Schematic.Sheets.Items() {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("hierarchy: build canceled at %s: %w", parent.Path, err)
		}

		sc.Path = childPath(parent.Path, sheet.UUID)
		key := resolveKey(m.loader, sheet.File, sc)
		node := tree.add(&Node{
			Path:   sc.Path,
			Parent: idx,
			Sheet:  sheet,
			Name:   sheet.Name,
			File:   key,
		})

		if containsString(ancestors, key) {
			m.fail(node, "cycle", ErrCycle)
			continue
		}

		sch, err := m.loader.Load(ctx, sheet.File, sc)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return fmt.Errorf("hierarchy: build canceled at %s: %w", node.Path, err)
			}
			reason := "parse"
			if errors.Is(err, fs.ErrNotExist) {
				reason = "not_found"
			}
			m.fail(node, reason, err)
			continue
		}

		node.Schematic = sch
		m.metrics.SheetLoaded()
		m.logger.Debug("sheet loaded",
			zap.String("path", node.Path),
			zap.String("sheet", node.Name),
			zap.String("file", key),
		)

		if err := m.expand(ctx, tree, node.Index, append(ancestors, key)); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) fail(node *Node, reason string, err error) {
	node.Err = &LoadError{Path: node.Path, Sheet: node.Name, File: node.Sheet.File, Err: err}
	m.metrics.SheetFailed(reason)
	m.logger.Warn("sheet not loaded",
		zap.String("path", node.Path),
		zap.String("sheet", node.Name),
		zap.String("file", node.Sheet.File),
		zap.String("reason", reason),
		zap.Error(err),
	)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Analyzer returns a connectivity analyzer over every loaded sheet instance
// of tree, with the manager's resolver and connectivity options
func (m *Manager) Analyzer(tree *Tree) *connectivity.Analyzer {
	opts := append([]connectivity.Option{connectivity.WithLogger(m.logger), connectivity.WithMetrics(m.metrics)}, m.connOpts...)
	return NewAnalyzer(tree, opts...)
}
