package schematic

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/sexp"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/sexp/kicadsexp"
)

// DefaultJunctionDiameter of 0 lets KiCad pick the diameter from the
// schematic settings
const DefaultJunctionDiameter = 0

// AddComponent places a new symbol instance. The reference and value become
// the Reference and Value properties.
func (s *Schematic) AddComponent(libID, reference, value string, at Position) (*Component, error) {
	c := &Component{
		UUID:     sexp.NewUUID(),
		LibID:    libID,
		Position: at,
		Unit:     1,
		InBOM:    true,
		OnBoard:  true,
	}
	refPos := PositionAngle{Position: Position{X: at.X, Y: at.Y - 2.54}}
	valuePos := PositionAngle{Position: Position{X: at.X, Y: at.Y + 2.54}}
	hidden := Effects{Font: sexp.DefaultEffects.Font, Hide: true}

	c.Properties = []Property{
		{Key: PropReference, Value: reference, Position: refPos, Effects: sexp.DefaultEffects},
		{Key: PropValue, Value: value, Position: valuePos, Effects: sexp.DefaultEffects},
		{Key: PropFootprint, Position: PositionAngle{Position: at}, Effects: hidden},
		{Key: PropDatasheet, Value: "~", Position: PositionAngle{Position: at}, Effects: hidden},
	}

	// Pin UUIDs follow the embedded definition when there is one
	if def, err := s.Resolver().Resolve(libID); err == nil {
		for _, pin := range def.UnitPins(c.Unit) {
			c.Pins = append(c.Pins, PinRef{Number: pin.Number, UUID: sexp.NewUUID()})
		}
	}

	if err := s.Components.Add(c); err != nil {
		return nil, err
	}
	return c, nil
}

// AddWire adds a wire through the given points
func (s *Schematic) AddWire(points ...Position) (*Wire, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("a wire needs at least 2 points, got %d", len(points))
	}
	w := &Wire{
		Points: append([]Position(nil), points...),
		Stroke: sexp.DefaultStroke,
		UUID:   sexp.NewUUID(),
	}
	if err := s.Wires.Add(w); err != nil {
		return nil, err
	}
	return w, nil
}

// AddBus adds a bus through the given points
func (s *Schematic) AddBus(points ...Position) (*Wire, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("a bus needs at least 2 points, got %d", len(points))
	}
	b := &Wire{
		Points: append([]Position(nil), points...),
		Stroke: sexp.DefaultStroke,
		UUID:   sexp.NewUUID(),
		bus:    true,
	}
	if err := s.Buses.Add(b); err != nil {
		return nil, err
	}
	return b, nil
}

// EmbedSymbol copies a library symbol definition, a (symbol "Lib:Name" ...)
// list, into the lib_symbols block. An existing definition with the same
// name is replaced.
func (s *Schematic) EmbedSymbol(def *kicadsexp.List) error {
	if def.Tag() != "symbol" {
		return fmt.Errorf("expected (symbol ...), got (%s)", def.Tag())
	}
	name, err := sexp.GetString(def, 1)
	if err != nil {
		return fmt.Errorf("failed to parse symbol name: %w", err)
	}

	node := kicadsexp.Clone(def).(*kicadsexp.List)
	kicadsexp.MarkGenerated(node)

	libSymbols, found := s.root.Find("lib_symbols")
	if !found {
		libSymbols = kicadsexp.NewList("lib_symbols")
		s.insertTopLevel(libSymbols)
	}
	if existing, found := s.LibSymbol(name); found {
		libSymbols.Replace(existing, node)
		for i, n := range s.LibSymbols {
			if n == existing {
				s.LibSymbols[i] = node
			}
		}
	} else {
		libSymbols.Append(node)
		s.LibSymbols = append(s.LibSymbols, node)
	}

	s.resolver = nil
	s.revision++
	return nil
}

// AddJunction adds a junction dot
func (s *Schematic) AddJunction(at Position) (*Junction, error) {
	j := &Junction{Position: at, Diameter: DefaultJunctionDiameter, UUID: sexp.NewUUID()}
	if err := s.Junctions.Add(j); err != nil {
		return nil, err
	}
	return j, nil
}

// AddNoConnect adds a no-connect marker
func (s *Schematic) AddNoConnect(at Position) (*NoConnect, error) {
	nc := &NoConnect{Position: at, UUID: sexp.NewUUID()}
	if err := s.NoConnects.Add(nc); err != nil {
		return nil, err
	}
	return nc, nil
}

// AddLabel adds a label. shape is the direction of global and hierarchical
// labels and ignored for local ones.
func (s *Schematic) AddLabel(kind LabelKind, text string, at Position, shape string) (*Label, error) {
	l := &Label{
		Kind:     kind,
		Text:     text,
		Position: at,
		Effects:  Effects{Font: sexp.DefaultEffects.Font, Justify: Justify{Horizontal: "left", Vertical: "bottom"}},
		UUID:     sexp.NewUUID(),
	}
	if kind != LocalLabel {
		if shape == "" {
			shape = DirPassive
		}
		l.Shape = shape
		l.Effects.Justify = Justify{Horizontal: "left"}
	}
	if err := s.Labels.Add(l); err != nil {
		return nil, err
	}
	return l, nil
}

// AddSheet adds a hierarchical sheet referencing file
func (s *Schematic) AddSheet(name, file string, at Position, size Size) (*Sheet, error) {
	sheet := &Sheet{
		Position: at,
		Size:     size,
		UUID:     sexp.NewUUID(),
		Name:     name,
		File:     file,
		Properties: []Property{
			{Key: "Sheetname", Value: name, Position: PositionAngle{Position: Position{X: at.X, Y: at.Y - 0.7116}},
				Effects: Effects{Font: sexp.DefaultEffects.Font, Justify: Justify{Horizontal: "left", Vertical: "bottom"}}},
			{Key: "Sheetfile", Value: file, Position: PositionAngle{Position: Position{X: at.X, Y: at.Y + size.Height + 0.5846}},
				Effects: Effects{Font: sexp.DefaultEffects.Font, Justify: Justify{Horizontal: "left", Vertical: "top"}}},
		},
	}
	if err := s.Sheets.Add(sheet); err != nil {
		return nil, err
	}
	return sheet, nil
}

// AddPin adds a sheet pin on the left (rotation 180) or right (rotation 0)
// edge of the sheet
func (s *Sheet) AddPin(name, direction string, at Position) (*SheetPin, error) {
	if _, exists := s.Pin(name); exists {
		return nil, fmt.Errorf("sheet %q already has a pin named %q", s.Name, name)
	}
	pin := &SheetPin{
		Name:      name,
		Direction: direction,
		Position:  at,
		Effects:   Effects{Font: sexp.DefaultEffects.Font, Justify: Justify{Horizontal: "left"}},
		UUID:      sexp.NewUUID(),
	}
	if at.X <= s.Position.X+sexp.Epsilon {
		pin.Rotation = 180
		pin.Effects.Justify.Horizontal = "left"
	} else {
		pin.Effects.Justify.Horizontal = "right"
	}
	s.Pins = append(s.Pins, pin)
	s.MarkModified()
	return pin, nil
}

// RemovePin deletes a sheet pin by name
func (s *Sheet) RemovePin(name string) bool {
	for i, p := range s.Pins {
		if p.Name == name {
			s.Pins = append(s.Pins[:i], s.Pins[i+1:]...)
			s.MarkModified()
			return true
		}
	}
	return false
}

// Node builders for elements added in memory

func newComponentNode(c *Component) *kicadsexp.List {
	node := kicadsexp.NewList("symbol",
		kicadsexp.NewList("lib_id", kicadsexp.Str(c.LibID)),
		sexp.NewAt(PositionAngle{Position: c.Position, Angle: c.Rotation}),
	)
	if c.Mirror != MirrorNone {
		node.Append(kicadsexp.NewList("mirror", kicadsexp.Sym(string(c.Mirror))))
	}
	node.Append(
		kicadsexp.NewList("unit", kicadsexp.Int(c.Unit)),
		yesNo("in_bom", c.InBOM),
		yesNo("on_board", c.OnBoard),
		yesNo("dnp", c.DNP),
		sexp.NewUUIDNode(c.UUID),
	)
	for _, p := range c.Properties {
		node.Append(sexp.NewProperty(p))
	}
	for _, pin := range c.Pins {
		node.Append(kicadsexp.NewList("pin", kicadsexp.Str(pin.Number), sexp.NewUUIDNode(pin.UUID)))
	}
	return node
}

func yesNo(key string, v bool) *kicadsexp.List {
	if v {
		return kicadsexp.NewList(key, kicadsexp.Sym("yes"))
	}
	return kicadsexp.NewList(key, kicadsexp.Sym("no"))
}

func newWireNode(w *Wire) *kicadsexp.List {
	tag := "wire"
	if w.bus {
		tag = "bus"
	}
	return kicadsexp.NewList(tag,
		sexp.NewPoints(w.Points),
		sexp.NewStroke(w.Stroke),
		sexp.NewUUIDNode(w.UUID),
	)
}

func newBusNode(w *Wire) *kicadsexp.List {
	w.bus = true
	return newWireNode(w)
}

func newBusEntryNode(b *BusEntry) *kicadsexp.List {
	return kicadsexp.NewList("bus_entry",
		sexp.NewXY("at", b.Position),
		sexp.NewXY("size", Position{X: b.Size.Width, Y: b.Size.Height}),
		sexp.NewStroke(sexp.DefaultStroke),
		sexp.NewUUIDNode(b.UUID),
	)
}

func newJunctionNode(j *Junction) *kicadsexp.List {
	return kicadsexp.NewList("junction",
		sexp.NewXY("at", j.Position),
		kicadsexp.NewList("diameter", kicadsexp.Float(j.Diameter)),
		kicadsexp.NewList("color", kicadsexp.Int(0), kicadsexp.Int(0), kicadsexp.Int(0), kicadsexp.Int(0)),
		sexp.NewUUIDNode(j.UUID),
	)
}

func newNoConnectNode(nc *NoConnect) *kicadsexp.List {
	return kicadsexp.NewList("no_connect",
		sexp.NewXY("at", nc.Position),
		sexp.NewUUIDNode(nc.UUID),
	)
}

func newLabelNode(l *Label) *kicadsexp.List {
	node := kicadsexp.NewList(l.Kind.Tag(), kicadsexp.Str(l.Text))
	if l.Kind != LocalLabel {
		node.Append(kicadsexp.NewList("shape", kicadsexp.Sym(l.Shape)))
	}
	node.Append(
		sexp.NewAt(PositionAngle{Position: l.Position, Angle: l.Rotation}),
		sexp.NewEffects(l.Effects),
		sexp.NewUUIDNode(l.UUID),
	)
	return node
}

func newSheetNode(s *Sheet) *kicadsexp.List {
	node := kicadsexp.NewList("sheet",
		sexp.NewXY("at", s.Position),
		sexp.NewXY("size", Position{X: s.Size.Width, Y: s.Size.Height}),
		sexp.NewStroke(Stroke{Width: 0.1524, Type: "solid"}),
		kicadsexp.NewList("fill", kicadsexp.NewList("color", kicadsexp.Int(0), kicadsexp.Int(0), kicadsexp.Int(0), kicadsexp.Float(0))),
		sexp.NewUUIDNode(s.UUID),
	)
	for _, p := range s.Properties {
		node.Append(sexp.NewProperty(p))
	}
	for _, pin := range s.Pins {
		pin.raw = newSheetPinNode(pin)
		node.Append(pin.raw)
	}
	return node
}

func newSheetPinNode(p *SheetPin) *kicadsexp.List {
	return kicadsexp.NewList("pin",
		kicadsexp.Str(p.Name),
		kicadsexp.Sym(p.Direction),
		sexp.NewAt(PositionAngle{Position: p.Position, Angle: p.Rotation}),
		sexp.NewEffects(p.Effects),
		sexp.NewUUIDNode(p.UUID),
	)
}
