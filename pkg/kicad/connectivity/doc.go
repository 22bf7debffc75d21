// Package connectivity derives nets from a schematic.
//
// # Overview
//
// Every pin (placed through its symbol definition), wire vertex, junction,
// no-connect marker, label and sheet pin becomes a graph node. Nodes are
// joined when:
//   - their positions coincide within the configured tolerance
//   - they belong to the same wire, or one lies on the interior of a wire
//   - they are labels of the same kind with the same text (local and
//     hierarchical labels within one sheet, global labels everywhere)
//   - they are pins of power symbols with the same value
//   - a bridge from the hierarchy manager links a sheet pin to a
//     hierarchical label in the child sheet
//
// The connected sets are found with union-find. A net is named after its
// best label: power and global names first, then local, then hierarchical,
// the smallest text within a class. Unlabelled nets are named after their
// first pin, "Net-(R1-Pad2)".
//
// # Usage
//
//	a := connectivity.New(sch, nil)
//	if a.ArePinsConnected("R1", "2", "R2", "1") {
//		net, _ := a.NetForPin("R1", "2")
//		fmt.Println(net.Name)
//	}
//
// Results are cached and rebuilt in full on the next query after any
// change to the schematic.
package connectivity
