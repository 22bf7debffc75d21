package schematic

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/collection"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/issue"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/metrics"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/sexp"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/sexp/kicadsexp"
)

// Option configures parsing
type Option func(*options)

type options struct {
	permissive bool
	logger     *zap.Logger
	metrics    *metrics.Collector
}

// WithPermissive keeps unknown top-level elements instead of failing. They
// round-trip untouched and their tags are listed in Schematic.Unknown.
func WithPermissive() Option {
	return func(o *options) {
		o.permissive = true
	}
}

// WithStrict selects strict (true) or permissive (false) parsing
func WithStrict(strict bool) Option {
	return func(o *options) {
		o.permissive = !strict
	}
}

// WithLogger sets the logger used by the schematic
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records parse and serialize metrics into c
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) {
		o.metrics = c
	}
}

// ParseFile reads and parses a KiCad schematic file
func ParseFile(filename string, opts ...Option) (*Schematic, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return Parse(file, opts...)
}

// ParseString parses a KiCad schematic held in memory
func ParseString(s string, opts ...Option) (*Schematic, error) {
	return Parse(strings.NewReader(s), opts...)
}

// Parse reads and parses a KiCad schematic from an io.Reader
func Parse(r io.Reader, opts ...Option) (*Schematic, error) {
	start := time.Now()
	doc, err := kicadsexp.Parse(r)
	if err != nil {
		o := newOptions(opts)
		o.metrics.ObserveParse(time.Since(start), "syntax")
		return nil, fmt.Errorf("failed to parse s-expression: %w", err)
	}
	return parseDocument(doc, start, opts)
}

// ParseDocument builds a schematic on top of an already parsed document. The
// schematic takes ownership of doc.
func ParseDocument(doc *kicadsexp.Document, opts ...Option) (*Schematic, error) {
	return parseDocument(doc, time.Now(), opts)
}

func newOptions(opts []Option) *options {
	o := &options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func parseDocument(doc *kicadsexp.Document, start time.Time, opts []Option) (*Schematic, error) {
	o := newOptions(opts)

	sch, err := build(doc, o)
	if err != nil {
		o.metrics.ObserveParse(time.Since(start), failureKind(err))
		return nil, err
	}

	o.metrics.ObserveParse(time.Since(start), "")
	o.logger.Debug("schematic parsed",
		zap.Int("version", sch.Version),
		zap.Int("components", sch.Components.Len()),
		zap.Int("wires", sch.Wires.Len()),
		zap.Int("labels", sch.Labels.Len()),
		zap.Int("sheets", sch.Sheets.Len()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return sch, nil
}

func failureKind(err error) string {
	var versionErr *VersionError
	var unknownErr *UnknownElementError
	switch {
	case errors.As(err, &versionErr):
		return "version"
	case errors.As(err, &unknownErr):
		return "unknown_element"
	}
	return "structure"
}

// parser holds state while the typed model is built
type parser struct {
	sch   *Schematic
	opts  *options
	uuids map[UUID]string // first element type seen with each UUID
}

func build(doc *kicadsexp.Document, o *options) (*Schematic, error) {
	root, found := doc.Root()
	if !found {
		return nil, fmt.Errorf("empty file or no valid s-expressions found")
	}

	// Verify this is a kicad_sch file
	if root.Tag() != "kicad_sch" {
		return nil, fmt.Errorf("not a KiCad schematic file: expected 'kicad_sch', got '%s'", root.Tag())
	}

	sch := newSchematic(doc, root, o)
	p := &parser{sch: sch, opts: o, uuids: make(map[UUID]string)}

	// Parse header (version and generator)
	if err := p.parseHeader(root); err != nil {
		return nil, err
	}

	for _, item := range root.Items[1:] {
		node, ok := item.(*kicadsexp.List)
		if !ok {
			continue
		}
		if err := p.parseElement(node); err != nil {
			return nil, err
		}
	}

	sch.attach()
	return sch, nil
}

// headerTags are top-level tags read as schematic fields rather than elements
var headerTags = map[string]bool{
	"version":           true,
	"generator":         true,
	"generator_version": true,
	"uuid":              true,
	"paper":             true,
	"title_block":       true,
	"lib_symbols":       true,
	"sheet_instances":   true,
	"symbol_instances":  true,
	"embedded_fonts":    true,
	"embedded_files":    true,
	"bus_alias":         true,
}

// graphicTags are free-standing elements kept as opaque graphics
var graphicTags = map[string]bool{
	"image":           true,
	"polyline":        true,
	"text":            true,
	"text_box":        true,
	"rectangle":       true,
	"circle":          true,
	"arc":             true,
	"bezier":          true,
	"table":           true,
	"netclass_flag":   true,
	"directive_label": true,
	"rule_area":       true,
	"group":           true,
}

func (p *parser) parseElement(node *kicadsexp.List) error {
	tag := node.Tag()
	if headerTags[tag] {
		return nil
	}

	var err error
	switch tag {
	case "symbol":
		err = p.parseComponent(node)
	case "wire":
		err = p.parseWire(node, p.sch.Wires)
	case "bus":
		err = p.parseWire(node, p.sch.Buses)
	case "bus_entry":
		err = p.parseBusEntry(node)
	case "junction":
		err = p.parseJunction(node)
	case "no_connect":
		err = p.parseNoConnect(node)
	case "label", "global_label", "hierarchical_label":
		err = p.parseLabel(node)
	case "sheet":
		err = p.parseSheet(node)
	default:
		if graphicTags[tag] {
			p.parseGraphic(node)
			return nil
		}
		if !p.opts.permissive {
			return &UnknownElementError{Tag: tag, Line: node.Pos.Line, Column: node.Pos.Column}
		}
		p.sch.Unknown = append(p.sch.Unknown, tag)
		p.opts.logger.Warn("keeping unknown element",
			zap.String("tag", tag),
			zap.Int("line", node.Pos.Line),
		)
		return nil
	}

	if err != nil {
		return &ElementError{Tag: tag, Line: node.Pos.Line, Err: err}
	}
	return nil
}

// parseHeader extracts version, generator and the other document level fields
func (p *parser) parseHeader(root *kicadsexp.List) error {
	sch := p.sch

	// Find version node
	versionNode, found := sexp.FindNode(root, "version")
	if !found {
		return &VersionError{}
	}

	ver, err := sexp.GetInt(versionNode, 1)
	if err != nil {
		return fmt.Errorf("failed to parse version: %w", err)
	}
	sch.Version = ver

	if ver < MinSupportedVersion || ver >= MaxSupportedVersion {
		return &VersionError{Version: ver, Major: kicadMajor(ver)}
	}

	// KiCad 6 writes the generator as a bare symbol
	sch.Generator, _ = sexp.GetChildString(root, "generator")
	sch.GeneratorVersion, _ = sexp.GetChildString(root, "generator_version")

	if uuid, err := sexp.GetUUID(root); err == nil {
		sch.UUID = uuid
	}

	sch.Paper, _ = sexp.GetChildString(root, "paper")

	if titleBlockNode, found := sexp.FindNode(root, "title_block"); found {
		sch.TitleBlock = parseTitleBlock(titleBlockNode)
	}

	if libSymbolsNode, found := sexp.FindNode(root, "lib_symbols"); found {
		sch.LibSymbols = libSymbolsNode.FindAll("symbol")
	}

	if instancesNode, found := sexp.FindNode(root, "sheet_instances"); found {
		sch.SheetInstances = parseSheetInstances(instancesNode)
	}

	return nil
}

// parseTitleBlock parses title block information
func parseTitleBlock(node *kicadsexp.List) TitleBlock {
	tb := TitleBlock{Comments: make(map[int]string)}

	tb.Title, _ = sexp.GetChildString(node, "title")
	tb.Date, _ = sexp.GetChildString(node, "date")
	tb.Revision, _ = sexp.GetChildString(node, "rev")
	tb.Company, _ = sexp.GetChildString(node, "company")

	// Comments are (comment N "text")
	for _, commentNode := range sexp.FindAllNodes(node, "comment") {
		num, err := sexp.GetInt(commentNode, 1)
		if err != nil {
			continue
		}
		if text, err := sexp.GetString(commentNode, 2); err == nil {
			tb.Comments[num] = text
		}
	}

	return tb
}

// parseSheetInstances parses (sheet_instances (path "/" (page "1")) ...)
func parseSheetInstances(node *kicadsexp.List) []SheetInstance {
	var instances []SheetInstance
	for _, pathNode := range sexp.FindAllNodes(node, "path") {
		inst := SheetInstance{}
		inst.Path, _ = sexp.GetString(pathNode, 1)
		inst.Page, _ = sexp.GetChildString(pathNode, "page")
		instances = append(instances, inst)
	}
	return instances
}

// elementUUID reads the uuid child, generating one in memory when it is missing.
// Generated UUIDs are never written into a parsed node.
func (p *parser) elementUUID(node *kicadsexp.List) UUID {
	id, err := sexp.GetUUID(node)
	if err != nil || id == "" {
		return sexp.NewUUID()
	}
	if first, dup := p.uuids[id]; dup {
		p.sch.issues.Add(issue.Issue{
			Severity:    issue.Error,
			Code:        issue.CodeDuplicateUUID,
			Message:     fmt.Sprintf("uuid already used by a %s (line %d)", first, node.Pos.Line),
			ElementType: node.Tag(),
			ElementID:   string(id),
		})
	} else {
		p.uuids[id] = node.Tag()
	}
	return id
}

func (p *parser) newElement(node *kicadsexp.List) element {
	return element{raw: node}
}

// parseComponent parses a placed symbol:
// (symbol (lib_id "Device:R") (at X Y A) [(mirror x)] (unit 1) ... (property ...) (pin "1" (uuid ...)))
func (p *parser) parseComponent(node *kicadsexp.List) error {
	c := &Component{
		element: p.newElement(node),
		Unit:    1,
	}

	libID, found := sexp.GetChildString(node, "lib_id")
	if !found {
		return fmt.Errorf("missing lib_id")
	}
	c.LibID = libID
	c.LibName, _ = sexp.GetChildString(node, "lib_name")

	// Position and rotation
	if atNode, found := sexp.FindNode(node, "at"); found {
		at, err := sexp.GetPosition(atNode)
		if err != nil {
			return err
		}
		c.Position = at.Position
		c.Rotation = at.Angle
	}

	if mirror, found := sexp.GetChildString(node, "mirror"); found {
		c.Mirror = Mirror(mirror)
	}

	if unitNode, found := sexp.FindNode(node, "unit"); found {
		c.Unit, _ = sexp.GetInt(unitNode, 1)
	}

	// Flags
	c.InBOM = sexp.GetBool(node, "in_bom", true)
	c.OnBoard = sexp.GetBool(node, "on_board", true)
	c.DNP = sexp.GetBool(node, "dnp", false)

	c.UUID = p.elementUUID(node)

	// Properties
	for _, propNode := range sexp.FindAllNodes(node, "property") {
		prop, err := sexp.GetProperty(propNode)
		if err != nil {
			return err
		}
		c.Properties = append(c.Properties, prop)
	}

	// Pin UUID references
	for _, pinNode := range sexp.FindAllNodes(node, "pin") {
		ref := PinRef{}
		ref.Number, _ = sexp.GetString(pinNode, 1)
		if id, err := sexp.GetUUID(pinNode); err == nil {
			ref.UUID = id
		}
		c.Pins = append(c.Pins, ref)
	}

	// Instances (KiCad 7+)
	if instancesNode, found := sexp.FindNode(node, "instances"); found {
		for _, projectNode := range sexp.FindAllNodes(instancesNode, "project") {
			project, _ := sexp.GetString(projectNode, 1)
			for _, pathNode := range sexp.FindAllNodes(projectNode, "path") {
				inst := SymbolInstance{Project: project, Unit: c.Unit}
				inst.Path, _ = sexp.GetString(pathNode, 1)
				inst.Reference, _ = sexp.GetChildString(pathNode, "reference")
				if unitNode, found := sexp.FindNode(pathNode, "unit"); found {
					inst.Unit, _ = sexp.GetInt(unitNode, 1)
				}
				c.Instances = append(c.Instances, inst)
			}
		}
	}

	if _, err := NormalizeRotation(c.Rotation); err != nil {
		p.sch.issues.Add(issue.Issue{
			Severity:    issue.Error,
			Code:        issue.CodeInvalidRotation,
			Message:     err.Error(),
			ElementType: "symbol",
			ElementID:   string(c.UUID),
		})
	}

	p.sch.Components.Load(c)
	return nil
}

// parseWire parses a wire or bus: (wire (pts (xy X Y) (xy X Y)) (stroke ...) (uuid ...))
func (p *parser) parseWire(node *kicadsexp.List, into *collection.Collection[*Wire]) error {
	w := &Wire{element: p.newElement(node), Stroke: sexp.DefaultStroke}

	if ptsNode, found := sexp.FindNode(node, "pts"); found {
		points, err := sexp.GetPoints(ptsNode)
		if err != nil {
			return err
		}
		w.Points = points
	}

	if strokeNode, found := sexp.FindNode(node, "stroke"); found {
		w.Stroke, _ = sexp.GetStroke(strokeNode)
	}

	w.UUID = p.elementUUID(node)
	w.bus = node.Tag() == "bus"
	into.Load(w)
	return nil
}

// parseBusEntry parses (bus_entry (at X Y) (size W H) (stroke ...) (uuid ...))
func (p *parser) parseBusEntry(node *kicadsexp.List) error {
	b := &BusEntry{element: p.newElement(node)}

	if atNode, found := sexp.FindNode(node, "at"); found {
		pos, err := sexp.GetPositionXY(atNode)
		if err != nil {
			return err
		}
		b.Position = pos
	}
	if sizeNode, found := sexp.FindNode(node, "size"); found {
		size, err := sexp.GetPositionXY(sizeNode)
		if err != nil {
			return err
		}
		b.Size = Size{Width: size.X, Height: size.Y}
	}

	b.UUID = p.elementUUID(node)
	p.sch.BusEntries.Load(b)
	return nil
}

// parseJunction parses (junction (at X Y) (diameter D) (color ...) (uuid ...))
func (p *parser) parseJunction(node *kicadsexp.List) error {
	j := &Junction{element: p.newElement(node)}

	if atNode, found := sexp.FindNode(node, "at"); found {
		pos, err := sexp.GetPositionXY(atNode)
		if err != nil {
			return err
		}
		j.Position = pos
	}
	if diameterNode, found := sexp.FindNode(node, "diameter"); found {
		j.Diameter, _ = sexp.GetFloat(diameterNode, 1)
	}

	j.UUID = p.elementUUID(node)
	p.sch.Junctions.Load(j)
	return nil
}

// parseNoConnect parses (no_connect (at X Y) (uuid ...))
func (p *parser) parseNoConnect(node *kicadsexp.List) error {
	nc := &NoConnect{element: p.newElement(node)}

	if atNode, found := sexp.FindNode(node, "at"); found {
		pos, err := sexp.GetPositionXY(atNode)
		if err != nil {
			return err
		}
		nc.Position = pos
	}

	nc.UUID = p.elementUUID(node)
	p.sch.NoConnects.Load(nc)
	return nil
}

// parseLabel parses (label "text" (at X Y A) (effects ...) (uuid ...)) and
// the global and hierarchical variants carrying (shape input|output|...)
func (p *parser) parseLabel(node *kicadsexp.List) error {
	l := &Label{element: p.newElement(node)}

	switch node.Tag() {
	case "global_label":
		l.Kind = GlobalLabel
	case "hierarchical_label":
		l.Kind = HierarchicalLabel
	}

	text, err := sexp.GetString(node, 1)
	if err != nil {
		return fmt.Errorf("missing label text: %w", err)
	}
	l.Text = text

	if atNode, found := sexp.FindNode(node, "at"); found {
		at, err := sexp.GetPosition(atNode)
		if err != nil {
			return err
		}
		l.Position = at.Position
		l.Rotation = at.Angle
	}

	l.Shape, _ = sexp.GetChildString(node, "shape")

	if effectsNode, found := sexp.FindNode(node, "effects"); found {
		l.Effects, _ = sexp.GetEffects(effectsNode)
	}

	l.UUID = p.elementUUID(node)
	p.sch.Labels.Load(l)
	return nil
}

// Sheet property keys: KiCad 7+ and the KiCad 6 spelling
var (
	sheetNameKeys = []string{"Sheetname", "Sheet name"}
	sheetFileKeys = []string{"Sheetfile", "Sheet file"}
)

// parseSheet parses (sheet (at X Y) (size W H) ... (property "Sheetname" ...) (pin "name" input (at X Y A) (uuid ...)))
func (p *parser) parseSheet(node *kicadsexp.List) error {
	s := &Sheet{element: p.newElement(node)}

	if atNode, found := sexp.FindNode(node, "at"); found {
		pos, err := sexp.GetPositionXY(atNode)
		if err != nil {
			return err
		}
		s.Position = pos
	}
	if sizeNode, found := sexp.FindNode(node, "size"); found {
		size, err := sexp.GetPositionXY(sizeNode)
		if err != nil {
			return err
		}
		s.Size = Size{Width: size.X, Height: size.Y}
	}

	s.UUID = p.elementUUID(node)

	for _, propNode := range sexp.FindAllNodes(node, "property") {
		prop, err := sexp.GetProperty(propNode)
		if err != nil {
			return err
		}
		s.Properties = append(s.Properties, prop)
		switch {
		case containsKey(sheetNameKeys, prop.Key):
			s.Name = prop.Value
		case containsKey(sheetFileKeys, prop.Key):
			s.File = prop.Value
		}
	}

	for _, pinNode := range sexp.FindAllNodes(node, "pin") {
		pin := &SheetPin{raw: pinNode}
		pin.Name, _ = sexp.GetString(pinNode, 1)
		pin.Direction, _ = sexp.GetString(pinNode, 2)
		if atNode, found := sexp.FindNode(pinNode, "at"); found {
			if at, err := sexp.GetPosition(atNode); err == nil {
				pin.Position = at.Position
				pin.Rotation = at.Angle
			}
		}
		if effectsNode, found := sexp.FindNode(pinNode, "effects"); found {
			pin.Effects, _ = sexp.GetEffects(effectsNode)
		}
		pin.UUID = p.elementUUID(pinNode)
		s.Pins = append(s.Pins, pin)
	}

	p.sch.Sheets.Load(s)
	return nil
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

// parseGraphic keeps a free-standing graphic element as an opaque record
func (p *parser) parseGraphic(node *kicadsexp.List) {
	g := &Graphic{element: p.newElement(node), Tag: node.Tag()}
	g.UUID = p.elementUUID(node)
	p.sch.Graphics.Load(g)
}
