package hierarchy

import (
	"errors"
	"fmt"

	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/connectivity"
)

var (
	// ErrPathNotFound is returned for an instance path that is not in the tree
	ErrPathNotFound = errors.New("sheet path not found")

	// ErrSignalNotFound is returned when no label or sheet pin carries the
	// signal in the starting sheet
	ErrSignalNotFound = errors.New("signal not found")
)

// Trace follows a signal from the sheet at startPath across sheet
// boundaries. signal names a label or sheet pin in the starting sheet. The
// result lists the instance paths the signal reaches through matched sheet
// pin and hierarchical label pairs, starting with startPath, in the order
// they are crossed (breadth-first).
func Trace(tree *Tree, signal, startPath string, opts ...connectivity.Option) ([]string, error) {
	start, ok := tree.Lookup(startPath)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPathNotFound, startPath)
	}
	if !start.Loaded() {
		return nil, fmt.Errorf("trace %s: %w", startPath, start.Err)
	}

	a := NewAnalyzer(tree, opts...)
	net, ok := a.NetForLabel(startPath, signal)
	if !ok {
		// a sheet pin of a child sheet also names the signal
		for _, c := range tree.Children(start) {
			if c.Sheet == nil {
				continue
			}
			if net, ok = a.NetForEndpoint(connectivity.Endpoint{Path: startPath, Sheet: c.Sheet.UUID, Name: signal}); ok {
				break
			}
		}
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q in %s", ErrSignalNotFound, signal, startPath)
	}

	// edges are the bridges carrying this net
	adjacent := make(map[string][]string)
	for _, b := range Bridges(tree) {
		if n, ok := a.NetForEndpoint(b.A); !ok || n != net {
			continue
		}
		if n, ok := a.NetForEndpoint(b.B); !ok || n != net {
			continue
		}
		adjacent[b.A.Path] = append(adjacent[b.A.Path], b.B.Path)
		adjacent[b.B.Path] = append(adjacent[b.B.Path], b.A.Path)
	}

	path := []string{startPath}
	seen := map[string]bool{startPath: true}
	for i := 0; i < len(path); i++ {
		for _, next := range adjacent[path[i]] {
			if !seen[next] {
				seen[next] = true
				path = append(path, next)
			}
		}
	}
	return path, nil
}
