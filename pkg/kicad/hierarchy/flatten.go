package hierarchy

import (
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/schematic"
)

// FlattenOptions controls Flatten
type FlattenOptions struct {
	// PrefixReferences prefixes references outside the root with the sheet
	// path, "/<sheet-uuid>/R1", so reused sheets do not collide
	PrefixReferences bool
}

// Origin is where a flattened element came from
type Origin struct {
	Path      string
	Reference string
}

// FlatComponent is a component with its design-wide reference
type FlatComponent struct {
	Reference string
	Origin    Origin
	Component *schematic.Component
}

// FlatWire is a wire with the sheet instance it belongs to
type FlatWire struct {
	Path string
	Wire *schematic.Wire
}

// FlatLabel is a label with the sheet instance it belongs to
type FlatLabel struct {
	Path  string
	Label *schematic.Label
}

// Flat is a single-level view of a sheet tree. The elements are shared with
// the sheet schematics, not copies.
type Flat struct {
	Components []FlatComponent
	Wires      []FlatWire
	Labels     []FlatLabel

	// References maps each flattened reference back to its origin. When two
	// instances produce the same reference the first one is kept and the
	// reference is listed in Collisions.
	References map[string]Origin
	Collisions []string
}

// Flatten collects the components, wires and labels of every loaded sheet
// instance, depth-first. Reused sheets contribute once per instance, with
// the references annotated for that instance.
func Flatten(tree *Tree, opts FlattenOptions) *Flat {
	flat := &Flat{References: make(map[string]Origin)}

	tree.Walk(func(n *Node) bool {
		if !n.Loaded() {
			return false
		}
		instance := tree.InstancePath(n)

		for _, c := range n.Schematic.Components.Items() {
			ref := c.Reference()
			if instance != "" {
				ref = c.ReferenceAt(instance)
			}
			origin := Origin{Path: n.Path, Reference: ref}
			flatRef := ref
			if opts.PrefixReferences && !n.IsRoot() {
				flatRef = n.Path + "/" + ref
			}

			if _, dup := flat.References[flatRef]; dup {
				flat.Collisions = append(flat.Collisions, flatRef)
			} else {
				flat.References[flatRef] = origin
			}
			flat.Components = append(flat.Components, FlatComponent{Reference: flatRef, Origin: origin, Component: c})
		}
		for _, w := range n.Schematic.Wires.Items() {
			flat.Wires = append(flat.Wires, FlatWire{Path: n.Path, Wire: w})
		}
		for _, l := range n.Schematic.Labels.Items() {
			flat.Labels = append(flat.Labels, FlatLabel{Path: n.Path, Label: l})
		}
		return true
	})
	return flat
}
