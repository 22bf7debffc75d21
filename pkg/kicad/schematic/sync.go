package schematic

import (
	"fmt"
	"sort"
	"strings"

	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/sexp"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/sexp/kicadsexp"
)

// Sync writes the fields of every modified element back into its document
// node. Atoms whose value did not change keep their original text. Sync is
// called by Serialize; calling it directly is only needed when the document
// is inspected before saving.
func (s *Schematic) Sync() error {
	for _, c := range s.Components.Items() {
		if !c.modified {
			continue
		}
		if err := s.syncComponent(c); err != nil {
			return fmt.Errorf("symbol %s: %w", c.UUID, err)
		}
		c.modified = false
	}
	for _, w := range append(s.Wires.Items(), s.Buses.Items()...) {
		if w.modified {
			syncWire(w)
			w.modified = false
		}
	}
	for _, b := range s.BusEntries.Items() {
		if b.modified {
			syncXY(b.raw, "at", b.Position)
			syncXY(b.raw, "size", Position{X: b.Size.Width, Y: b.Size.Height})
			b.modified = false
		}
	}
	for _, j := range s.Junctions.Items() {
		if j.modified {
			syncXY(j.raw, "at", j.Position)
			if node, found := j.raw.Find("diameter"); found {
				sexp.SetFloat(node, 1, j.Diameter)
			}
			j.modified = false
		}
	}
	for _, nc := range s.NoConnects.Items() {
		if nc.modified {
			syncXY(nc.raw, "at", nc.Position)
			nc.modified = false
		}
	}
	for _, l := range s.Labels.Items() {
		if l.modified {
			syncLabel(l)
			l.modified = false
		}
	}
	for _, sheet := range s.Sheets.Items() {
		if sheet.modified {
			syncSheet(sheet)
			sheet.modified = false
		}
	}
	for _, g := range s.Graphics.Items() {
		g.modified = false
	}

	s.syncHeader()
	return nil
}

// generatorVersionSince is the first file format with (generator_version)
const generatorVersionSince = 20231120

// syncHeader writes document fields that differ from the tree
func (s *Schematic) syncHeader() {
	root := s.root
	if root == nil {
		return
	}
	if node, found := root.Find("generator"); found {
		sexp.SetString(node, 1, s.Generator)
	}
	if node, found := root.Find("generator_version"); found {
		sexp.SetString(node, 1, s.GeneratorVersion)
	} else if s.GeneratorVersion != "" && s.Version >= generatorVersionSince {
		if gen, found := root.Find("generator"); found {
			root.InsertAfter(gen, kicadsexp.NewList("generator_version", kicadsexp.Str(s.GeneratorVersion)))
		}
	}
	if node, found := root.Find("paper"); found && s.Paper != "" {
		sexp.SetString(node, 1, s.Paper)
	}

	tb := s.TitleBlock
	node, found := root.Find("title_block")
	if !found {
		if tb.Title == "" && tb.Date == "" && tb.Revision == "" && tb.Company == "" && len(tb.Comments) == 0 {
			return
		}
		node = kicadsexp.NewList("title_block")
		if paper, ok := root.Find("paper"); ok {
			root.InsertAfter(paper, node)
		} else {
			root.Append(node)
		}
	}
	syncTitleField(node, "title", tb.Title)
	syncTitleField(node, "date", tb.Date)
	syncTitleField(node, "rev", tb.Revision)
	syncTitleField(node, "company", tb.Company)
	nums := make([]int, 0, len(tb.Comments))
	for num := range tb.Comments {
		nums = append(nums, num)
	}
	sort.Ints(nums)
	for _, num := range nums {
		syncComment(node, num, tb.Comments[num])
	}
}

func syncTitleField(node *kicadsexp.List, key, value string) {
	if _, found := node.Find(key); !found && value == "" {
		return
	}
	sexp.SetChildString(node, key, value)
}

func syncComment(node *kicadsexp.List, num int, text string) {
	for _, c := range node.FindAll("comment") {
		if n, err := sexp.GetInt(c, 1); err == nil && n == num {
			sexp.SetString(c, 2, text)
			return
		}
	}
	if text != "" {
		node.Append(kicadsexp.NewList("comment", kicadsexp.Int(num), kicadsexp.Str(text)))
	}
}

func syncXY(node *kicadsexp.List, tag string, p Position) {
	if child, found := node.Find(tag); found {
		sexp.SetPositionXY(child, p)
	} else {
		node.Append(sexp.NewXY(tag, p))
	}
}

// insertChild inserts child after the last existing child with one of the
// after tags, or appends it
func insertChild(parent, child *kicadsexp.List, after ...string) {
	var ref kicadsexp.Node
	for _, item := range parent.Items {
		l, ok := item.(*kicadsexp.List)
		if !ok {
			continue
		}
		for _, tag := range after {
			if l.Tag() == tag {
				ref = l
			}
		}
	}
	if ref == nil {
		parent.Append(child)
		return
	}
	parent.InsertAfter(ref, child)
}

func (s *Schematic) syncComponent(c *Component) error {
	raw := c.raw

	rotation, err := NormalizeRotation(c.Rotation)
	if err != nil {
		return err
	}

	if node, found := raw.Find("lib_id"); found {
		sexp.SetString(node, 1, c.LibID)
	}

	if node, found := raw.Find("at"); found {
		sexp.SetPosition(node, PositionAngle{Position: c.Position, Angle: rotation}, true)
	} else {
		insertChild(raw, sexp.NewAt(PositionAngle{Position: c.Position, Angle: rotation}), "lib_id", "lib_name")
	}

	// Mirror is only written when set
	if node, found := raw.Find("mirror"); found {
		if c.Mirror == MirrorNone {
			raw.Remove(node)
		} else {
			sexp.SetSymbol(node, 1, string(c.Mirror))
		}
	} else if c.Mirror != MirrorNone {
		insertChild(raw, kicadsexp.NewList("mirror", kicadsexp.Sym(string(c.Mirror))), "at")
	}

	if node, found := raw.Find("unit"); found {
		sexp.SetInt(node, 1, c.Unit)
	} else if c.Unit != 1 {
		insertChild(raw, kicadsexp.NewList("unit", kicadsexp.Int(c.Unit)), "at", "mirror")
	}

	syncFlag(raw, "in_bom", c.InBOM, true)
	syncFlag(raw, "on_board", c.OnBoard, true)
	syncFlag(raw, "dnp", c.DNP, false)

	oldRef := referenceIn(raw)
	syncProperties(raw, c.Properties, "uuid", "dnp", "on_board", "in_bom", "unit", "at")

	s.syncInstanceReferences(c, oldRef)
	return nil
}

func referenceIn(raw *kicadsexp.List) string {
	for _, node := range raw.FindAll("property") {
		if key, _ := sexp.GetString(node, 1); key == PropReference {
			v, _ := sexp.GetString(node, 2)
			return v
		}
	}
	return ""
}

// syncFlag writes a (key yes|no) flag when the child exists or the value
// differs from KiCad's default
func syncFlag(raw *kicadsexp.List, key string, v, def bool) {
	if _, found := raw.Find(key); found || v != def {
		if !found {
			word := "no"
			if v {
				word = "yes"
			}
			insertChild(raw, kicadsexp.NewList(key, kicadsexp.Sym(word)), "unit", "in_bom", "on_board", "exclude_from_sim", "at")
			return
		}
		sexp.SetYesNo(raw, key, v)
	}
}

// syncProperties reconciles (property ...) children with props by key. New
// properties go after the last existing one (or after the fallback tags).
func syncProperties(raw *kicadsexp.List, props []Property, fallback ...string) {
	nodes := make(map[string]*kicadsexp.List)
	for _, node := range raw.FindAll("property") {
		key, _ := sexp.GetString(node, 1)
		if _, dup := nodes[key]; !dup {
			nodes[key] = node
		}
	}

	keep := make(map[string]bool, len(props))
	for _, prop := range props {
		keep[prop.Key] = true
		node, found := nodes[prop.Key]
		if !found {
			after := append([]string{"property"}, fallback...)
			insertChild(raw, sexp.NewProperty(prop), firstPresent(raw, after)...)
			continue
		}
		sexp.SetString(node, 2, prop.Value)
		if at, found := node.Find("at"); found {
			sexp.SetPosition(at, prop.Position, false)
		}
		if effects, found := node.Find("effects"); found {
			syncHide(effects, prop.Effects.Hide)
		}
	}

	for key, node := range nodes {
		if !keep[key] {
			raw.Remove(node)
		}
	}
}

// firstPresent returns the first tag of tags that has a child in raw
func firstPresent(raw *kicadsexp.List, tags []string) []string {
	for _, tag := range tags {
		if _, found := raw.Find(tag); found {
			return []string{tag}
		}
	}
	return nil
}

// syncHide toggles visibility in an effects list, keeping the spelling the
// file already uses (bare hide or (hide yes))
func syncHide(effects *kicadsexp.List, hide bool) {
	if _, found := effects.Find("hide"); found {
		sexp.SetYesNo(effects, "hide", hide)
		return
	}
	hasBare := effects.HasSymbol("hide")
	switch {
	case hide && !hasBare:
		effects.Append(kicadsexp.NewList("hide", kicadsexp.Sym("yes")))
	case !hide && hasBare:
		for _, item := range effects.Items[1:] {
			if a, ok := item.(*kicadsexp.Atom); ok && a.Kind == kicadsexp.KindSymbol && a.Value == "hide" {
				effects.Remove(a)
				break
			}
		}
	}
}

// syncInstanceReferences writes the per-instance annotations back. KiCad 7+
// stores them in the symbol; KiCad 6 keeps them at the end of the root
// schematic, where only entries that carried the old reference follow a
// reference edit.
func (s *Schematic) syncInstanceReferences(c *Component, oldRef string) {
	if instances, found := c.raw.Find("instances"); found {
		for _, project := range instances.FindAll("project") {
			name, _ := sexp.GetString(project, 1)
			for _, path := range project.FindAll("path") {
				p, _ := sexp.GetString(path, 1)
				for _, inst := range c.Instances {
					if inst.Project != name || inst.Path != p {
						continue
					}
					if node, found := path.Find("reference"); found {
						sexp.SetString(node, 1, inst.Reference)
					}
					break
				}
			}
		}
	}

	ref := c.Reference()
	if ref == oldRef {
		return
	}
	if symbolInstances, found := s.root.Find("symbol_instances"); found {
		suffix := "/" + string(c.UUID)
		for _, path := range symbolInstances.FindAll("path") {
			p, _ := sexp.GetString(path, 1)
			if !strings.HasSuffix(p, suffix) {
				continue
			}
			if node, found := path.Find("reference"); found {
				if current, _ := sexp.GetString(node, 1); current == oldRef {
					sexp.SetString(node, 1, ref)
				}
			}
		}
	}
}

func syncWire(w *Wire) {
	raw := w.raw
	pts, found := raw.Find("pts")
	if !found {
		insertChild(raw, sexp.NewPoints(w.Points))
		return
	}

	xys := pts.FindAll("xy")
	if len(xys) == len(w.Points) {
		for i, xy := range xys {
			sexp.SetPositionXY(xy, w.Points[i])
		}
	} else {
		raw.Replace(pts, sexp.NewPoints(w.Points))
	}

	if stroke, found := raw.Find("stroke"); found {
		if width, found := stroke.Find("width"); found {
			sexp.SetFloat(width, 1, w.Stroke.Width)
		}
		if kind, found := stroke.Find("type"); found && w.Stroke.Type != "" {
			sexp.SetSymbol(kind, 1, w.Stroke.Type)
		}
	}
}

func syncLabel(l *Label) {
	raw := l.raw
	sexp.SetString(raw, 1, l.Text)

	if node, found := raw.Find("at"); found {
		sexp.SetPosition(node, PositionAngle{Position: l.Position, Angle: l.Rotation}, true)
	}
	if node, found := raw.Find("shape"); found && l.Shape != "" {
		sexp.SetSymbol(node, 1, l.Shape)
	} else if !found && l.Shape != "" {
		insertChild(raw, kicadsexp.NewList("shape", kicadsexp.Sym(l.Shape)), "at")
	}
}

func syncSheet(s *Sheet) {
	raw := s.raw
	syncXY(raw, "at", s.Position)
	syncXY(raw, "size", Position{X: s.Size.Width, Y: s.Size.Height})

	// Name and file live in properties; keep the spelling the file uses
	for i := range s.Properties {
		switch {
		case containsKey(sheetNameKeys, s.Properties[i].Key):
			s.Properties[i].Value = s.Name
		case containsKey(sheetFileKeys, s.Properties[i].Key):
			s.Properties[i].Value = s.File
		}
	}
	syncProperties(raw, s.Properties, "uuid", "fill", "stroke", "size")

	keep := make(map[*kicadsexp.List]bool)
	for _, pin := range s.Pins {
		node := pin.raw
		if node == nil || raw.IndexOf(node) < 0 {
			node = newSheetPinNode(pin)
			pin.raw = node
			insertChild(raw, node, "pin", "property")
		} else {
			sexp.SetString(node, 1, pin.Name)
			sexp.SetSymbol(node, 2, pin.Direction)
			if at, found := node.Find("at"); found {
				sexp.SetPosition(at, PositionAngle{Position: pin.Position, Angle: pin.Rotation}, true)
			}
		}
		keep[node] = true
	}
	for _, node := range raw.FindAll("pin") {
		if !keep[node] {
			raw.Remove(node)
		}
	}
}
