package hierarchy

import (
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/connectivity"
)

// Bridges returns one bridge per sheet pin of every loaded child, joining
// the pin in the parent with the same-named hierarchical label in the child
func Bridges(tree *Tree) []connectivity.Bridge {
	var bridges []connectivity.Bridge
	tree.Walk(func(n *Node) bool {
		if n.IsRoot() || !n.Loaded() {
			return true
		}
		parent := tree.nodes[n.Parent]
		for _, pin := range n.Sheet.Pins {
			bridges = append(bridges, connectivity.Bridge{
				A: connectivity.Endpoint{Path: parent.Path, Sheet: n.Sheet.UUID, Name: pin.Name},
				B: connectivity.Endpoint{Path: n.Path, Name: pin.Name},
			})
		}
		return true
	})
	return bridges
}

// Sources returns the loaded sheet instances of tree as connectivity sources
func Sources(tree *Tree) []connectivity.Source {
	var sources []connectivity.Source
	tree.Walk(func(n *Node) bool {
		if !n.Loaded() {
			return false
		}
		sources = append(sources, connectivity.Source{
			Path:         n.Path,
			InstancePath: tree.InstancePath(n),
			Schematic:    n.Schematic,
		})
		return true
	})
	return sources
}

// NewAnalyzer returns an analyzer over every loaded sheet instance, joined by
// the tree's bridges. Reused sheets take part once per instance.
func NewAnalyzer(tree *Tree, opts ...connectivity.Option) *connectivity.Analyzer {
	opts = append(opts, connectivity.WithBridges(Bridges(tree)...))
	return connectivity.NewHierarchical(Sources(tree), tree.resolver, opts...)
}

// HierarchicalNets computes the nets of the whole design, across sheets
func HierarchicalNets(tree *Tree, opts ...connectivity.Option) []*connectivity.Net {
	return NewAnalyzer(tree, opts...).Nets()
}
