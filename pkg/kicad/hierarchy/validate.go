package hierarchy

import (
	"fmt"
	"sort"

	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/issue"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/schematic"
)

// compatible lists, per sheet pin direction, the hierarchical label shapes
// it pairs with. Passive and bidirectional pair with everything.
var compatible = map[string][]string{
	schematic.DirInput:         {schematic.DirOutput, schematic.DirBidirectional, schematic.DirPassive},
	schematic.DirOutput:        {schematic.DirInput, schematic.DirBidirectional, schematic.DirPassive},
	schematic.DirBidirectional: {schematic.DirInput, schematic.DirOutput, schematic.DirBidirectional, schematic.DirTriState, schematic.DirPassive},
	schematic.DirTriState:      {schematic.DirInput, schematic.DirBidirectional, schematic.DirPassive},
	schematic.DirPassive:       {schematic.DirInput, schematic.DirOutput, schematic.DirBidirectional, schematic.DirTriState, schematic.DirPassive},
}

// Compatible reports whether a sheet pin with direction pin pairs with a
// hierarchical label of shape label. Unknown directions pair with anything.
func Compatible(pin, label string) bool {
	allowed, ok := compatible[pin]
	if !ok {
		return true
	}
	if _, known := compatible[label]; !known {
		return true
	}
	for _, d := range allowed {
		if d == label {
			return true
		}
	}
	return false
}

// Validate checks every sheet instance of tree: each sheet pin needs exactly
// one same-named hierarchical label in the child with a compatible direction,
// and hierarchical labels without a sheet pin are reported as orphans.
// Sheets that failed to load are reported once each.
func Validate(tree *Tree) issue.List {
	var issues issue.List

	tree.Walk(func(n *Node) bool {
		if n.IsRoot() {
			return true
		}
		if n.Err != nil {
			issues.Add(issue.Issue{
				Severity:    issue.Error,
				Code:        issue.CodeSheetLoad,
				Message:     n.Err.Error(),
				ElementType: "sheet",
				ElementID:   string(n.Sheet.UUID),
				Path:        n.Path,
				Suggestions: []string{fmt.Sprintf("check that %s exists and is a valid schematic", n.Sheet.File)},
			})
			return false
		}
		validatePins(&issues, n)
		return true
	})

	issues.Sort()
	return issues
}

func validatePins(issues *issue.List, n *Node) {
	labels := make(map[string][]*schematic.Label)
	for _, l := range n.Schematic.AllLabels(schematic.HierarchicalLabel) {
		labels[l.Text] = append(labels[l.Text], l)
	}

	pins := make(map[string]bool, len(n.Sheet.Pins))
	for _, pin := range n.Sheet.Pins {
		pins[pin.Name] = true
		matches := labels[pin.Name]

		switch {
		case len(matches) == 0:
			issues.Add(issue.Issue{
				Severity:    issue.Error,
				Code:        issue.CodeMissingLabel,
				Message:     fmt.Sprintf("sheet pin %q of sheet %q has no hierarchical label in %s", pin.Name, n.Name, n.Sheet.File),
				ElementType: "sheet_pin",
				ElementID:   pin.Name,
				Path:        n.Path,
				Suggestions: []string{
					fmt.Sprintf("add a hierarchical label %q to %s", pin.Name, n.Sheet.File),
					"remove the sheet pin",
				},
			})

		case len(matches) > 1:
			issues.Add(issue.Issue{
				Severity:    issue.Error,
				Code:        issue.CodeDuplicateLabel,
				Message:     fmt.Sprintf("sheet pin %q of sheet %q matches %d hierarchical labels", pin.Name, n.Name, len(matches)),
				ElementType: "sheet_pin",
				ElementID:   pin.Name,
				Path:        n.Path,
			})

		case !Compatible(pin.Direction, matches[0].Shape):
			issues.Add(issue.Issue{
				Severity: issue.Warning,
				Code:     issue.CodeDirectionMismatch,
				Message: fmt.Sprintf("sheet pin %q is %s but its hierarchical label is %s",
					pin.Name, pin.Direction, matches[0].Shape),
				ElementType: "sheet_pin",
				ElementID:   pin.Name,
				Path:        n.Path,
			})
		}
	}

	var orphans []string
	for text := range labels {
		if !pins[text] {
			orphans = append(orphans, text)
		}
	}
	sort.Strings(orphans)
	for _, text := range orphans {
		issues.Add(issue.Issue{
			Severity:    issue.Warning,
			Code:        issue.CodeOrphanLabel,
			Message:     fmt.Sprintf("hierarchical label %q has no pin on sheet %q", text, n.Name),
			ElementType: "hierarchical_label",
			ElementID:   text,
			Path:        n.Path,
			Suggestions: []string{fmt.Sprintf("add a sheet pin %q to sheet %q", text, n.Name)},
		})
	}
}
