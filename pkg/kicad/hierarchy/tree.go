package hierarchy

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/schematic"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/symbols"
)

// RootPath is the instance path of the top-level sheet
const RootPath = "/"

// ErrCycle is recorded against a sheet instance whose file is already one of
// its ancestors
var ErrCycle = errors.New("sheet includes itself")

// LoadError reports a sheet instance whose schematic could not be loaded.
// The rest of the tree is still built.
type LoadError struct {
	Path  string // instance path of the sheet
	Sheet string // sheet name
	File  string // file as referenced by the sheet
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("sheet %q (%s) at %s: %v", e.Sheet, e.File, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Node is one sheet instance in a Tree. Parent and children are indices into
// the tree's arena.
type Node struct {
	Index    int
	Path     string // "/" for the root, "/<sheet-uuid>/..." below it
	Parent   int    // -1 for the root
	Children []int
	Depth    int

	Sheet     *schematic.Sheet // sheet symbol in the parent, nil for the root
	Name      string
	File      string // resolved file identity
	Schematic *schematic.Schematic
	Err       *LoadError
}

// IsRoot reports whether n is the top-level sheet
func (n *Node) IsRoot() bool {
	return n.Parent < 0
}

// Loaded reports whether the node has a schematic
func (n *Node) Loaded() bool {
	return n.Schematic != nil
}

// Tree is the sheet instance hierarchy of a design.
type Tree struct {
	nodes    []*Node
	byPath   map[string]int
	rootUUID schematic.UUID
	resolver symbols.Resolver
}

func newTree(resolver symbols.Resolver) *Tree {
	return &Tree{byPath: make(map[string]int), resolver: resolver}
}

func (t *Tree) add(n *Node) *Node {
	n.Index = len(t.nodes)
	t.nodes = append(t.nodes, n)
	t.byPath[n.Path] = n.Index
	if n.Parent >= 0 {
		parent := t.nodes[n.Parent]
		parent.Children = append(parent.Children, n.Index)
		n.Depth = parent.Depth + 1
	}
	return n
}

// Root returns the top-level node
func (t *Tree) Root() *Node {
	if len(t.nodes) == 0 {
		return nil
	}
	return t.nodes[0]
}

// Len returns the number of sheet instances, root included
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Node returns the node at index i
func (t *Tree) Node(i int) (*Node, bool) {
	if i < 0 || i >= len(t.nodes) {
		return nil, false
	}
	return t.nodes[i], true
}

// Lookup returns the node with the given instance path
func (t *Tree) Lookup(path string) (*Node, bool) {
	i, ok := t.byPath[path]
	if !ok {
		return nil, false
	}
	return t.nodes[i], true
}

// Nodes returns all nodes in depth-first order
func (t *Tree) Nodes() []*Node {
	out := make([]*Node, 0, len(t.nodes))
	t.Walk(func(n *Node) bool {
		out = append(out, n)
		return true
	})
	return out
}

// Parent returns the parent of n
func (t *Tree) Parent(n *Node) (*Node, bool) {
	return t.Node(n.Parent)
}

// Children returns the child nodes of n in sheet order
func (t *Tree) Children(n *Node) []*Node {
	out := make([]*Node, 0, len(n.Children))
	for _, i := range n.Children {
		out = append(out, t.nodes[i])
	}
	return out
}

// Walk visits the nodes depth-first, parents before children. Returning
// false from fn skips the node's children.
func (t *Tree) Walk(fn func(*Node) bool) {
	if len(t.nodes) == 0 {
		return
	}
	var visit func(i int)
	visit = func(i int) {
		n := t.nodes[i]
		if !fn(n) {
			return
		}
		for _, c := range n.Children {
			visit(c)
		}
	}
	visit(0)
}

// Errors returns the load errors of all sheet instances
func (t *Tree) Errors() []*LoadError {
	var errs []*LoadError
	t.Walk(func(n *Node) bool {
		if n.Err != nil {
			errs = append(errs, n.Err)
		}
		return true
	})
	return errs
}

// Err combines all load errors, nil when every sheet loaded
func (t *Tree) Err() error {
	var err error
	for _, e := range t.Errors() {
		err = multierr.Append(err, e)
	}
	return err
}

// InstancePath returns the KiCad instance path of n, the one symbol
// (instances) blocks are keyed by: "/<root-uuid>/<sheet-uuid>...". It is
// empty when the root has no UUID.
func (t *Tree) InstancePath(n *Node) string {
	if t.rootUUID == "" {
		return ""
	}
	root := "/" + string(t.rootUUID)
	if n.Path == RootPath {
		return root
	}
	return root + n.Path
}

// childPath appends a sheet UUID to a node path
func childPath(parent string, sheet schematic.UUID) string {
	return strings.TrimSuffix(parent, "/") + "/" + string(sheet)
}
