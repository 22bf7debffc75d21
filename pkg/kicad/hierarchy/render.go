package hierarchy

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/schematic"
)

// SheetInstance is one placement of a sheet file
type SheetInstance struct {
	Path       string // instance path
	ParentPath string
	Name       string
	File       string // resolved file identity
	Sheet      schematic.UUID
}

// FindReusedSheets groups the sheet instances by file and returns the files
// placed more than once, each with its instances in tree order
func FindReusedSheets(tree *Tree) map[string][]SheetInstance {
	byFile := make(map[string][]SheetInstance)
	tree.Walk(func(n *Node) bool {
		if n.IsRoot() {
			return true
		}
		byFile[n.File] = append(byFile[n.File], SheetInstance{
			Path:       n.Path,
			ParentPath: tree.nodes[n.Parent].Path,
			Name:       n.Name,
			File:       n.File,
			Sheet:      n.Sheet.UUID,
		})
		return true
	})

	for file, instances := range byFile {
		if len(instances) < 2 {
			delete(byFile, file)
		}
	}
	return byFile
}

// RenderOptions controls Render
type RenderOptions struct {
	Counts bool // append component and wire counts per sheet
	Paths  bool // append the instance path per sheet
}

// Render draws the tree depth-first as indented text:
//
//	Root (main.kicad_sch)
//	├── Power (power.kicad_sch)
//	└── Channel A (channel.kicad_sch)
//	    └── Filter (filter.kicad_sch)
func Render(tree *Tree, opts RenderOptions) string {
	var b strings.Builder
	root := tree.Root()
	if root == nil {
		return ""
	}
	renderNode(&b, tree, root, "", "", opts)
	return b.String()
}

func renderNode(b *strings.Builder, tree *Tree, n *Node, lead, childLead string, opts RenderOptions) {
	b.WriteString(lead)
	b.WriteString(n.Name)
	if file := displayFile(n); file != "" {
		fmt.Fprintf(b, " (%s)", file)
	}
	if opts.Paths {
		fmt.Fprintf(b, " %s", n.Path)
	}
	switch {
	case n.Err != nil:
		fmt.Fprintf(b, " [error: %v]", n.Err.Err)
	case opts.Counts && n.Loaded():
		fmt.Fprintf(b, " [%d components, %d wires]", n.Schematic.Components.Len(), n.Schematic.Wires.Len())
	}
	b.WriteByte('\n')

	children := tree.Children(n)
	for i, c := range children {
		if i == len(children)-1 {
			renderNode(b, tree, c, childLead+"└── ", childLead+"    ", opts)
		} else {
			renderNode(b, tree, c, childLead+"├── ", childLead+"│   ", opts)
		}
	}
}

func displayFile(n *Node) string {
	if n.Sheet != nil {
		return n.Sheet.File
	}
	if n.File != "" {
		return filepath.Base(n.File)
	}
	return ""
}

// Summary returns counts of the tree: sheet instances, distinct files and
// failed loads
func Summary(tree *Tree) (instances, files, failed int) {
	seen := make(map[string]bool)
	tree.Walk(func(n *Node) bool {
		instances++
		if n.Err != nil {
			failed++
		}
		seen[n.File] = true
		return true
	})
	return instances, len(seen), failed
}

// ReusedFiles returns the files of a FindReusedSheets result in order
func ReusedFiles(reused map[string][]SheetInstance) []string {
	files := make([]string, 0, len(reused))
	for f := range reused {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}
