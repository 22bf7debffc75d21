package schematic

import (
	"fmt"
	"sort"

	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/issue"
)

// Validate reports structural problems: duplicate references and UUIDs,
// degenerate wires, invalid rotations and components whose symbol is not
// embedded. Issues found while parsing are included.
func (s *Schematic) Validate() issue.List {
	var issues issue.List

	for _, i := range s.issues {
		// duplicate UUIDs are recomputed below from the current state
		if i.Code != issue.CodeDuplicateUUID && i.Code != issue.CodeInvalidRotation {
			issues.Add(i)
		}
	}

	s.checkReferences(&issues)
	s.checkUUIDs(&issues)

	for _, w := range append(s.Wires.Items(), s.Buses.Items()...) {
		if len(w.Points) < 2 {
			issues.Errorf(issue.CodeDegenerateWire, "wire", string(w.UUID),
				"wire has %d point(s), needs at least 2", len(w.Points))
		}
	}

	for _, c := range s.Components.Items() {
		if _, err := NormalizeRotation(c.Rotation); err != nil {
			issues.Errorf(issue.CodeInvalidRotation, "symbol", c.Reference(), "%v", err)
		}
		if _, found := s.LibSymbol(c.SymbolKey()); !found {
			issues.Add(issue.Issue{
				Severity:    issue.Warning,
				Code:        issue.CodeMissingLibSymbol,
				Message:     fmt.Sprintf("symbol %q is not embedded in lib_symbols", c.SymbolKey()),
				ElementType: "symbol",
				ElementID:   c.Reference(),
			})
		}
	}

	issues.Sort()
	return issues
}

// checkReferences flags references used by more than one component. Units
// of one multi-unit part share a reference and lib_id but differ in unit.
func (s *Schematic) checkReferences(issues *issue.List) {
	byRef := make(map[string][]*Component)
	for _, c := range s.Components.Items() {
		ref := c.Reference()
		if ref == "" || c.IsPower() {
			continue
		}
		byRef[ref] = append(byRef[ref], c)
	}

	refs := make([]string, 0, len(byRef))
	for ref := range byRef {
		refs = append(refs, ref)
	}
	sort.Strings(refs)

	for _, ref := range refs {
		comps := byRef[ref]
		if len(comps) < 2 {
			continue
		}
		units := make(map[int]bool)
		duplicate := false
		for _, c := range comps {
			if c.LibID != comps[0].LibID || units[c.Unit] {
				duplicate = true
				break
			}
			units[c.Unit] = true
		}
		if duplicate {
			issues.Add(issue.Issue{
				Severity:    issue.Error,
				Code:        issue.CodeDuplicateReference,
				Message:     fmt.Sprintf("reference %s is used by %d symbols", ref, len(comps)),
				ElementType: "symbol",
				ElementID:   ref,
				Suggestions: []string{"re-annotate the schematic"},
			})
		}
	}
}

// checkUUIDs flags UUIDs shared by more than one element
func (s *Schematic) checkUUIDs(issues *issue.List) {
	seen := make(map[UUID]string)
	check := func(elementType string, id UUID) {
		if id == "" {
			return
		}
		if first, dup := seen[id]; dup {
			issues.Errorf(issue.CodeDuplicateUUID, elementType, string(id), "uuid already used by a %s", first)
			return
		}
		seen[id] = elementType
	}

	for _, c := range s.Components.Items() {
		check("symbol", c.UUID)
	}
	for _, w := range s.Wires.Items() {
		check("wire", w.UUID)
	}
	for _, b := range s.Buses.Items() {
		check("bus", b.UUID)
	}
	for _, b := range s.BusEntries.Items() {
		check("bus_entry", b.UUID)
	}
	for _, j := range s.Junctions.Items() {
		check("junction", j.UUID)
	}
	for _, nc := range s.NoConnects.Items() {
		check("no_connect", nc.UUID)
	}
	for _, l := range s.Labels.Items() {
		check(l.Kind.Tag(), l.UUID)
	}
	for _, sheet := range s.Sheets.Items() {
		check("sheet", sheet.UUID)
		for _, pin := range sheet.Pins {
			check("sheet_pin", pin.UUID)
		}
	}
	for _, g := range s.Graphics.Items() {
		check(g.Tag, g.UUID)
	}
}
