package schematic

import (
	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/collection"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/issue"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/sexp"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/sexp/kicadsexp"
)

// Secondary index names
const (
	indexReference = "reference"
	indexLibID     = "lib_id"
	indexText      = "text"
)

// DefaultVersion is the file format written into new schematics (KiCad 8)
const DefaultVersion = 20231120

// New creates an empty schematic backed by a fresh document
func New(opts ...Option) *Schematic {
	o := newOptions(opts)
	id := sexp.NewUUID()
	root := kicadsexp.NewList("kicad_sch",
		kicadsexp.NewList("version", kicadsexp.Int(DefaultVersion)),
		kicadsexp.NewList("generator", kicadsexp.Str("eeschema")),
		kicadsexp.NewList("generator_version", kicadsexp.Str("8.0")),
		sexp.NewUUIDNode(id),
		kicadsexp.NewList("paper", kicadsexp.Str("A4")),
		kicadsexp.NewList("lib_symbols"),
		kicadsexp.NewList("sheet_instances",
			kicadsexp.NewList("path", kicadsexp.Str("/"),
				kicadsexp.NewList("page", kicadsexp.Str("1")),
			),
		),
	)
	doc := kicadsexp.NewDocument(root)

	sch := newSchematic(doc, root, o)
	sch.Version = DefaultVersion
	sch.Generator = "eeschema"
	sch.GeneratorVersion = "8.0"
	sch.UUID = id
	sch.Paper = "A4"
	sch.SheetInstances = []SheetInstance{{Path: "/", Page: "1"}}
	sch.attach()
	return sch
}

func newSchematic(doc *kicadsexp.Document, root *kicadsexp.List, o *options) *Schematic {
	sch := &Schematic{
		TitleBlock: TitleBlock{Comments: make(map[int]string)},
		Components: collection.New[*Component](),
		Wires:      collection.New[*Wire](),
		Buses:      collection.New[*Wire](),
		BusEntries: collection.New[*BusEntry](),
		Junctions:  collection.New[*Junction](),
		NoConnects: collection.New[*NoConnect](),
		Labels:     collection.New[*Label](),
		Sheets:     collection.New[*Sheet](),
		Graphics:   collection.New[*Graphic](),
		doc:        doc,
		root:       root,
		logger:     o.logger,
		metrics:    o.metrics,
	}

	sch.Components.AddIndex(indexReference, (*Component).Reference)
	sch.Components.AddIndex(indexLibID, func(c *Component) string { return c.LibID })
	sch.Labels.AddIndex(indexText, func(l *Label) string { return l.Text })
	return sch
}

// ParseIssues returns the problems found while parsing (duplicate UUIDs,
// invalid rotations)
func (s *Schematic) ParseIssues() issue.List {
	return append(issue.List(nil), s.issues...)
}

// rawElement is implemented by every typed element stored in a collection
type rawElement interface {
	collection.Element
	base() *element
}

func (e *element) base() *element { return e }

// attach wires the collections to the document: every element reports its
// edits to the schematic, removals drop the subtree and additions insert one
func (s *Schematic) attach() {
	attachCollection(s, s.Components, newComponentNode)
	attachCollection(s, s.Wires, newWireNode)
	attachCollection(s, s.Buses, newBusNode)
	attachCollection(s, s.BusEntries, newBusEntryNode)
	attachCollection(s, s.Junctions, newJunctionNode)
	attachCollection(s, s.NoConnects, newNoConnectNode)
	attachCollection(s, s.Labels, newLabelNode)
	attachCollection(s, s.Sheets, newSheetNode)
	attachCollection(s, s.Graphics, nil)
}

func attachCollection[T rawElement](s *Schematic, c *collection.Collection[T], create func(T) *kicadsexp.List) {
	notify := func() {
		s.revision++
		c.Invalidate()
	}
	for _, item := range c.Items() {
		item.base().notify = notify
	}

	c.OnChange(func(ch collection.Change[T]) {
		e := ch.Item.base()
		switch ch.Kind {
		case collection.Added:
			if e.raw == nil {
				if create == nil {
					s.logger.Warn("element has no document node, it will not be saved", zap.String("uuid", ch.Item.Key()))
				} else {
					e.raw = create(ch.Item)
				}
			}
			if e.raw != nil {
				s.insertTopLevel(e.raw)
			}
			e.notify = notify
		case collection.Removed:
			if e.raw != nil {
				s.root.Remove(e.raw)
			}
			e.notify = nil
		}
		s.revision++
	})
}

// canonicalOrder is the order KiCad writes top-level elements in
var canonicalOrder = []string{
	"lib_symbols",
	"junction",
	"no_connect",
	"bus_entry",
	"wire",
	"bus",
	"image",
	"polyline",
	"text",
	"label",
	"global_label",
	"hierarchical_label",
	"symbol",
	"sheet",
	"sheet_instances",
	"symbol_instances",
}

func tagRank(tag string) int {
	if headerTags[tag] && tag != "lib_symbols" && tag != "sheet_instances" && tag != "symbol_instances" {
		return -1
	}
	for i, t := range canonicalOrder {
		if t == tag {
			return i
		}
	}
	return len(canonicalOrder)
}

// insertTopLevel places node after the last top-level element with the same
// tag, or else after the last element that sorts before it
func (s *Schematic) insertTopLevel(node *kicadsexp.List) {
	tag := node.Tag()
	var sameTag, before kicadsexp.Node
	rank := tagRank(tag)

	for _, item := range s.root.Items[1:] {
		l, ok := item.(*kicadsexp.List)
		if !ok {
			continue
		}
		if l.Tag() == tag {
			sameTag = l
		}
		if tagRank(l.Tag()) <= rank {
			before = l
		}
	}

	switch {
	case sameTag != nil:
		s.root.InsertAfter(sameTag, node)
	case before != nil:
		s.root.InsertAfter(before, node)
	default:
		s.root.InsertAt(1, node)
	}
}
