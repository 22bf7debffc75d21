// Package schematic provides format-preserving parsing, editing and writing of
// KiCad schematic files (.kicad_sch).
//
// Every typed element keeps a pointer to the list it was parsed from. Saving
// writes the parsed tree back verbatim; only elements marked modified are
// synced into their list, and only atoms whose value actually changed are
// re-rendered.
package schematic

import (
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/collection"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/issue"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/metrics"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/sexp"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/sexp/kicadsexp"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/symbols"
)

// Re-export shared types from sexp package for convenience
type Position = sexp.Position
type Angle = sexp.Angle
type PositionAngle = sexp.PositionAngle
type Size = sexp.Size
type Color = sexp.Color
type Stroke = sexp.Stroke
type UUID = sexp.UUID
type Effects = sexp.Effects
type Font = sexp.Font
type Justify = sexp.Justify
type Property = sexp.Property
type BoundingBox = sexp.BoundingBox

// Well-known property keys
const (
	PropReference = "Reference"
	PropValue     = "Value"
	PropFootprint = "Footprint"
	PropDatasheet = "Datasheet"
)

// Schematic represents a complete KiCad schematic file
type Schematic struct {
	Version          int    // File format version
	Generator        string // Generator info (e.g., "eeschema")
	GeneratorVersion string // Generator version (KiCad 8+)
	UUID             UUID
	Paper            string
	TitleBlock       TitleBlock

	// Embedded library symbols, (symbol "Lib:Name" ...) lists
	LibSymbols []*kicadsexp.List

	Components *collection.Collection[*Component]
	Wires      *collection.Collection[*Wire]
	Buses      *collection.Collection[*Wire]
	BusEntries *collection.Collection[*BusEntry]
	Junctions  *collection.Collection[*Junction]
	NoConnects *collection.Collection[*NoConnect]
	Labels     *collection.Collection[*Label]
	Sheets     *collection.Collection[*Sheet]
	Graphics   *collection.Collection[*Graphic]

	// Sheet instance paths declared by a root schematic (read-only)
	SheetInstances []SheetInstance

	// Tags of unknown top-level elements kept in permissive mode
	Unknown []string

	doc      *kicadsexp.Document
	root     *kicadsexp.List
	revision uint64
	issues   issue.List // findings recorded while parsing
	resolver *symbols.Library
	logger   *zap.Logger
	metrics  *metrics.Collector
}

// TitleBlock contains schematic title block information
type TitleBlock struct {
	Title    string
	Date     string
	Revision string
	Company  string
	Comments map[int]string
}

// SheetInstance represents a sheet instance path
type SheetInstance struct {
	Path string // Instance path
	Page string // Page number
}

// Revision increments on every mutation of the schematic. Analyses use it to
// detect stale caches.
func (s *Schematic) Revision() uint64 {
	return s.revision
}

// Document returns the underlying S-expression document
func (s *Schematic) Document() *kicadsexp.Document {
	return s.doc
}

// Resolver returns a symbol resolver over the embedded lib_symbols block
func (s *Schematic) Resolver() symbols.Resolver {
	if s.resolver == nil {
		lib, err := symbols.NewLibrary(s.LibSymbols)
		if err != nil {
			s.logger.Warn("embedded library symbols unreadable", zap.Error(err))
			lib, _ = symbols.NewLibrary(nil)
		}
		s.resolver = lib
	}
	return s.resolver
}

// LibSymbol returns the embedded definition list for libID
func (s *Schematic) LibSymbol(libID string) (*kicadsexp.List, bool) {
	for _, node := range s.LibSymbols {
		if name, err := sexp.GetString(node, 1); err == nil && name == libID {
			return node, true
		}
	}
	return nil, false
}

// IsRoot reports whether the schematic declares sheet instances, which
// KiCad only writes into the root sheet of a project
func (s *Schematic) IsRoot() bool {
	return len(s.SheetInstances) > 0
}

// element is the part shared by all typed elements
type element struct {
	raw      *kicadsexp.List
	modified bool
	notify   func()
}

// Raw returns the list the element is stored in
func (e *element) Raw() *kicadsexp.List {
	return e.raw
}

// Modified reports whether the element has unsaved edits
func (e *element) Modified() bool {
	return e.modified
}

// MarkModified flags the element so that its fields are written back on save
func (e *element) MarkModified() {
	e.modified = true
	if e.notify != nil {
		e.notify()
	}
}

// Mirror is a component mirror mode
type Mirror string

const (
	MirrorNone Mirror = ""
	MirrorX    Mirror = "x" // mirrored about the X axis (Y flipped)
	MirrorY    Mirror = "y" // mirrored about the Y axis (X flipped)
)

// Component is a symbol instance placed on the schematic
type Component struct {
	element

	UUID       UUID
	LibID      string
	LibName    string // embedded symbol name when it differs from LibID
	Position   Position
	Rotation   Angle // 0, 90, 180 or 270
	Mirror     Mirror
	Unit       int
	InBOM      bool
	OnBoard    bool
	DNP        bool
	Properties []Property // ordered as in the file
	Pins       []PinRef
	Instances  []SymbolInstance
}

// SymbolInstance is the per-sheet-path reference of a component (KiCad 7+
// (instances (project (path ...))) blocks)
type SymbolInstance struct {
	Project   string
	Path      string
	Reference string
	Unit      int
}

// PinRef represents a pin reference in a symbol instance
type PinRef struct {
	Number string
	UUID   UUID
}

// Key implements collection.Element
func (c *Component) Key() string { return string(c.UUID) }

// Property returns the value of the property with the given key. An exact
// match wins over a case-insensitive one.
func (c *Component) Property(key string) (string, bool) {
	if i := c.propertyIndex(key); i >= 0 {
		return c.Properties[i].Value, true
	}
	return "", false
}

func (c *Component) propertyIndex(key string) int {
	for i, p := range c.Properties {
		if p.Key == key {
			return i
		}
	}
	for i, p := range c.Properties {
		if strings.EqualFold(p.Key, key) {
			return i
		}
	}
	return -1
}

// SymbolKey returns the name of the embedded lib_symbols entry
func (c *Component) SymbolKey() string {
	if c.LibName != "" {
		return c.LibName
	}
	return c.LibID
}

// ReferenceAt returns the reference annotated for the sheet instance path,
// falling back to the Reference property
func (c *Component) ReferenceAt(path string) string {
	for _, inst := range c.Instances {
		if inst.Path == path && inst.Reference != "" {
			return inst.Reference
		}
	}
	return c.Reference()
}

// Reference returns the reference designator (e.g. "R1")
func (c *Component) Reference() string {
	v, _ := c.Property(PropReference)
	return v
}

// Value returns the Value property
func (c *Component) Value() string {
	v, _ := c.Property(PropValue)
	return v
}

// Footprint returns the Footprint property
func (c *Component) Footprint() string {
	v, _ := c.Property(PropFootprint)
	return v
}

// IsPower reports whether the component is a power symbol by reference
// convention ("#PWR", "#FLG")
func (c *Component) IsPower() bool {
	return strings.HasPrefix(c.Reference(), "#")
}

// SetProperty sets a property value, appending a new property placed at the
// component position when the key does not exist yet
func (c *Component) SetProperty(key, value string) {
	if i := c.propertyIndex(key); i >= 0 {
		if c.Properties[i].Value == value {
			return
		}
		c.Properties[i].Value = value
	} else {
		c.Properties = append(c.Properties, Property{
			Key:      key,
			Value:    value,
			Position: PositionAngle{Position: c.Position},
			Effects:  Effects{Font: sexp.DefaultEffects.Font, Hide: true},
		})
	}
	c.MarkModified()
}

// RemoveProperty deletes a property and reports whether it existed
func (c *Component) RemoveProperty(key string) bool {
	i := c.propertyIndex(key)
	if i < 0 {
		return false
	}
	c.Properties = append(c.Properties[:i], c.Properties[i+1:]...)
	c.MarkModified()
	return true
}

// SetReference changes the reference designator. Instance annotations that
// carried the old reference follow it; other instances keep their own.
func (c *Component) SetReference(ref string) {
	old := c.Reference()
	for i := range c.Instances {
		if c.Instances[i].Reference == old {
			c.Instances[i].Reference = ref
		}
	}
	c.SetProperty(PropReference, ref)
}

// SetReferenceAt changes the reference annotated for one sheet instance
// path and reports whether the component has an annotation for it
func (c *Component) SetReferenceAt(path, ref string) bool {
	found := false
	for i := range c.Instances {
		if c.Instances[i].Path != path {
			continue
		}
		found = true
		if c.Instances[i].Reference != ref {
			c.Instances[i].Reference = ref
			c.MarkModified()
		}
	}
	return found
}

// SetValue changes the Value property
func (c *Component) SetValue(value string) { c.SetProperty(PropValue, value) }

// SetFootprint changes the Footprint property
func (c *Component) SetFootprint(fp string) { c.SetProperty(PropFootprint, fp) }

// SetPosition moves the component. Property positions move along.
func (c *Component) SetPosition(p Position) {
	delta := p.Sub(c.Position)
	if delta.Near(Position{}, sexp.Epsilon) {
		return
	}
	c.Position = p
	for i := range c.Properties {
		c.Properties[i].Position.Position = c.Properties[i].Position.Position.Add(delta)
	}
	c.MarkModified()
}

// SetRotation changes the rotation. Only multiples of 90 degrees are valid;
// the angle is normalized into [0, 360).
func (c *Component) SetRotation(a Angle) error {
	norm, err := NormalizeRotation(a)
	if err != nil {
		return err
	}
	c.Rotation = norm
	c.MarkModified()
	return nil
}

// SetMirror changes the mirror mode
func (c *Component) SetMirror(m Mirror) {
	c.Mirror = m
	c.MarkModified()
}

// NormalizeRotation maps a to one of 0, 90, 180, 270
func NormalizeRotation(a Angle) (Angle, error) {
	f := math.Mod(float64(a), 360)
	if f < 0 {
		f += 360
	}
	r := math.Round(f)
	if math.Abs(f-r) > sexp.Epsilon || int(r)%90 != 0 {
		return 0, &RotationError{Angle: a}
	}
	return Angle(int(r) % 360), nil
}

// Wire represents a wire or bus polyline
type Wire struct {
	element

	Points []Position // at least 2
	Stroke Stroke
	UUID   UUID

	bus bool
}

// Key implements collection.Element
func (w *Wire) Key() string { return string(w.UUID) }

// IsBus reports whether the polyline is a bus
func (w *Wire) IsBus() bool {
	return w.bus
}

// SetPoints replaces the vertices
func (w *Wire) SetPoints(points ...Position) {
	w.Points = append([]Position(nil), points...)
	w.MarkModified()
}

// BusEntry represents a bus entry
type BusEntry struct {
	element

	Position Position
	Size     Size
	UUID     UUID
}

// Key implements collection.Element
func (b *BusEntry) Key() string { return string(b.UUID) }

// Junction represents a wire junction
type Junction struct {
	element

	Position Position
	Diameter float64
	UUID     UUID
}

// Key implements collection.Element
func (j *Junction) Key() string { return string(j.UUID) }

// NoConnect represents a no-connect marker
type NoConnect struct {
	element

	Position Position
	UUID     UUID
}

// Key implements collection.Element
func (n *NoConnect) Key() string { return string(n.UUID) }

// LabelKind distinguishes the three label flavours
type LabelKind int

const (
	LocalLabel LabelKind = iota
	GlobalLabel
	HierarchicalLabel
)

// Tag returns the S-expression tag for the kind
func (k LabelKind) Tag() string {
	switch k {
	case GlobalLabel:
		return "global_label"
	case HierarchicalLabel:
		return "hierarchical_label"
	default:
		return "label"
	}
}

func (k LabelKind) String() string {
	switch k {
	case GlobalLabel:
		return "global"
	case HierarchicalLabel:
		return "hierarchical"
	default:
		return "local"
	}
}

// Label directions (the shape of global and hierarchical labels and sheet pins)
const (
	DirInput         = "input"
	DirOutput        = "output"
	DirBidirectional = "bidirectional"
	DirTriState      = "tri_state"
	DirPassive       = "passive"
)

// Label represents a local, global or hierarchical label
type Label struct {
	element

	Kind     LabelKind
	Text     string
	Position Position
	Rotation Angle
	Shape    string // direction for global and hierarchical labels
	Effects  Effects
	UUID     UUID
}

// Key implements collection.Element
func (l *Label) Key() string { return string(l.UUID) }

// SetText renames the label
func (l *Label) SetText(text string) {
	l.Text = text
	l.MarkModified()
}

// Sheet represents a hierarchical sheet instance placed on the schematic
type Sheet struct {
	element

	Position   Position
	Size       Size
	UUID       UUID
	Name       string
	File       string
	Pins       []*SheetPin
	Properties []Property
}

// Key implements collection.Element
func (s *Sheet) Key() string { return string(s.UUID) }

// Pin returns the sheet pin with the given name
func (s *Sheet) Pin(name string) (*SheetPin, bool) {
	for _, p := range s.Pins {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// SheetPin represents a hierarchical pin on a sheet
type SheetPin struct {
	raw *kicadsexp.List

	Name      string
	Direction string
	Position  Position
	Rotation  Angle
	Effects   Effects
	UUID      UUID
}

// Graphic is an opaque free-standing element (text, image, polyline,
// rectangle, ...). It round-trips but has no semantics.
type Graphic struct {
	element

	Tag  string
	UUID UUID
}

// Key implements collection.Element
func (g *Graphic) Key() string { return string(g.UUID) }

// AllLabels returns labels of the given kinds in file order
func (s *Schematic) AllLabels(kinds ...LabelKind) []*Label {
	if len(kinds) == 0 {
		return s.Labels.Items()
	}
	return s.Labels.Filter(func(l *Label) bool {
		for _, k := range kinds {
			if l.Kind == k {
				return true
			}
		}
		return false
	})
}

// ComponentByReference returns the first component with the given reference
func (s *Schematic) ComponentByReference(ref string) (*Component, bool) {
	found := s.Components.Lookup(indexReference, ref)
	if len(found) == 0 {
		return nil, false
	}
	return found[0], true
}

// ComponentsByLibID returns all components using libID
func (s *Schematic) ComponentsByLibID(libID string) []*Component {
	return s.Components.Lookup(indexLibID, libID)
}

// References returns all reference designators in file order
func (s *Schematic) References() []string {
	var refs []string
	for _, c := range s.Components.Items() {
		if ref := c.Reference(); ref != "" {
			refs = append(refs, ref)
		}
	}
	return refs
}

// LabelNames returns all distinct label texts (local + global + hierarchical)
func (s *Schematic) LabelNames() []string {
	seen := make(map[string]bool)
	var labels []string
	for _, l := range s.Labels.Items() {
		if !seen[l.Text] {
			seen[l.Text] = true
			labels = append(labels, l.Text)
		}
	}
	return labels
}

// BoundingBox calculates the bounding box of element anchor points
func (s *Schematic) BoundingBox() BoundingBox {
	bbox := sexp.NewBoundingBox()

	for _, wire := range s.Wires.Items() {
		for _, pt := range wire.Points {
			bbox.Expand(pt)
		}
	}
	for _, bus := range s.Buses.Items() {
		for _, pt := range bus.Points {
			bbox.Expand(pt)
		}
	}
	for _, c := range s.Components.Items() {
		bbox.Expand(c.Position)
	}
	for _, l := range s.Labels.Items() {
		bbox.Expand(l.Position)
	}
	for _, sheet := range s.Sheets.Items() {
		bbox.Expand(sheet.Position)
		bbox.Expand(Position{
			X: sheet.Position.X + sheet.Size.Width,
			Y: sheet.Position.Y + sheet.Size.Height,
		})
	}
	for _, j := range s.Junctions.Items() {
		bbox.Expand(j.Position)
	}
	for _, nc := range s.NoConnects.Items() {
		bbox.Expand(nc.Position)
	}

	return bbox
}
