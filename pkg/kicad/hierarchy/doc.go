// Package hierarchy builds and checks the sheet tree of a KiCad design.
//
// # Overview
//
// A Manager starts from a root schematic and loads the file of every sheet
// through a Loader, recursively. Each placement of a sheet becomes a Node of
// the Tree, addressed by its instance path ("/", "/<sheet-uuid>",
// "/<sheet-uuid>/<sheet-uuid>", ...) or by index. The same file placed twice
// yields two nodes: reuse is not an error. A file that includes one of its
// own ancestors is refused with ErrCycle.
//
// Load failures are recorded per sheet instance as *LoadError; the build
// goes on with the siblings. Tree.Err combines them.
//
// # Usage
//
//	m := hierarchy.NewManager(hierarchy.NewFileLoader())
//	tree, err := m.Build(ctx, root, "main.kicad_sch")
//	if err != nil {
//		return err
//	}
//	for _, is := range hierarchy.Validate(tree) {
//		fmt.Println(is)
//	}
//	fmt.Print(hierarchy.Render(tree, hierarchy.RenderOptions{Counts: true}))
//
// Cross-sheet nets come from NewAnalyzer, which feeds every loaded instance
// to the connectivity analyzer together with one bridge per sheet pin.
package hierarchy
