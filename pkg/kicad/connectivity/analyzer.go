package connectivity

import (
	"errors"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/geometry"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/issue"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/metrics"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/schematic"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/sexp"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/symbols"
)

// RootPath is the path of the top-level sheet
const RootPath = "/"

// Source is one schematic taking part in the analysis
type Source struct {
	Path string // "/" for the root sheet, "/<sheet-uuid>/..." below it

	// InstancePath selects per-instance references of reused sheets; empty
	// uses the Reference property
	InstancePath string

	Schematic *schematic.Schematic
}

// Endpoint addresses a bridge end: a sheet pin when Sheet is set, otherwise
// a hierarchical label
type Endpoint struct {
	Path  string
	Sheet schematic.UUID
	Name  string
}

// Bridge joins a sheet pin in a parent with a hierarchical label in a child
type Bridge struct {
	A, B Endpoint
}

// Analyzer computes nets for one schematic, or for a sheet tree when given
// several sources and bridges. Results are cached until any source changes.
type Analyzer struct {
	sources  []Source
	resolver symbols.Resolver
	cfg      Config
	bridges  []Bridge
	logger   *zap.Logger
	metrics  *metrics.Collector

	revisions  []uint64
	built      bool
	nets       []*Net
	byPin      map[pinKey]*Net
	byName     map[string]*Net
	byEndpoint map[Endpoint]*Net
	byLabel    map[labelKey]labelNet
	issues     issue.List
}

type pinKey struct {
	path, ref, pin string
}

type labelKey struct {
	path, text string
}

type labelNet struct {
	net  *Net
	rank int
}

// labelRank orders label kinds for NetForLabel, lowest first
func labelRank(k schematic.LabelKind) int {
	switch k {
	case schematic.HierarchicalLabel:
		return 0
	case schematic.LocalLabel:
		return 1
	default:
		return 2
	}
}

// New creates an analyzer for a single schematic. Symbols are looked up in
// the embedded lib_symbols block first, then in resolver (which may be nil).
func New(sch *schematic.Schematic, resolver symbols.Resolver, opts ...Option) *Analyzer {
	return NewHierarchical([]Source{{Path: RootPath, Schematic: sch}}, resolver, opts...)
}

// NewHierarchical creates an analyzer over several sheet instances. Local and
// hierarchical labels only join within their own source; bridges connect
// the sources.
func NewHierarchical(sources []Source, resolver symbols.Resolver, opts ...Option) *Analyzer {
	a := &Analyzer{
		sources:  sources,
		resolver: resolver,
		cfg:      *DefaultConfig(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.cfg.Tolerance <= 0 {
		a.cfg.Tolerance = DefaultTolerance
	}
	return a
}

// Invalidate drops the cached analysis
func (a *Analyzer) Invalidate() {
	a.built = false
}

// ensure rebuilds the analysis when a source changed since the last build
func (a *Analyzer) ensure() {
	if a.built && len(a.revisions) == len(a.sources) {
		stale := false
		for i, src := range a.sources {
			if src.Schematic.Revision() != a.revisions[i] {
				stale = true
				break
			}
		}
		if !stale {
			return
		}
	}

	start := time.Now()
	a.build()
	a.metrics.ObserveRebuild(time.Since(start))

	a.revisions = a.revisions[:0]
	for _, src := range a.sources {
		a.revisions = append(a.revisions, src.Schematic.Revision())
	}
	a.built = true

	a.logger.Debug("connectivity rebuilt",
		zap.Int("sources", len(a.sources)),
		zap.Int("nets", len(a.nets)),
		zap.Int("issues", len(a.issues)),
		zap.Duration("duration", time.Since(start)),
	)
}

// Nets returns every net holding at least one pin, label or sheet pin,
// sorted by name
func (a *Analyzer) Nets() []*Net {
	a.ensure()
	return a.nets
}

// NetByName looks a net up by its derived name
func (a *Analyzer) NetByName(name string) (*Net, bool) {
	a.ensure()
	n, ok := a.byName[name]
	return n, ok
}

// NetForPin returns the net of a pin in the first source
func (a *Analyzer) NetForPin(ref, pin string) (*Net, bool) {
	return a.NetForPinAt(a.rootPath(), ref, pin)
}

// NetForPinAt returns the net of a pin in the source at path
func (a *Analyzer) NetForPinAt(path, ref, pin string) (*Net, bool) {
	a.ensure()
	n, ok := a.byPin[pinKey{path: path, ref: ref, pin: pin}]
	return n, ok
}

// NetForEndpoint returns the net holding a sheet pin (ep.Sheet set) or a
// hierarchical label (ep.Sheet empty) in the source at ep.Path
func (a *Analyzer) NetForEndpoint(ep Endpoint) (*Net, bool) {
	a.ensure()
	n, ok := a.byEndpoint[ep]
	return n, ok
}

// NetForLabel returns the net of a label with the given text in the source at
// path. When labels of several kinds carry the text, a hierarchical label
// wins over a local one, and a local one over a global one.
func (a *Analyzer) NetForLabel(path, text string) (*Net, bool) {
	a.ensure()
	e, ok := a.byLabel[labelKey{path: path, text: text}]
	return e.net, ok
}

// ArePinsConnected reports whether two pins of the first source share a net
func (a *Analyzer) ArePinsConnected(refA, pinA, refB, pinB string) bool {
	netA, ok := a.NetForPin(refA, pinA)
	if !ok {
		return false
	}
	netB, ok := a.NetForPin(refB, pinB)
	return ok && netA == netB
}

// ConnectedPins returns the other pins on the net of ref/pin
func (a *Analyzer) ConnectedPins(ref, pin string) []PinRef {
	net, ok := a.NetForPin(ref, pin)
	if !ok {
		return nil
	}
	path := a.rootPath()
	var pins []PinRef
	for _, p := range net.Pins {
		if p.Path == path && p.Reference == ref && p.Pin == pin {
			continue
		}
		pins = append(pins, p)
	}
	return pins
}

// Issues returns the problems met while resolving pins
func (a *Analyzer) Issues() issue.List {
	a.ensure()
	return a.issues
}

func (a *Analyzer) rootPath() string {
	if len(a.sources) == 0 {
		return RootPath
	}
	return a.sources[0].Path
}

// Graph construction

type nodeKind int

const (
	nodePin nodeKind = iota
	nodeWire
	nodeJunction
	nodeNoConnect
	nodeLabel
	nodeSheetPin
)

type node struct {
	kind   nodeKind
	source int
	pos    sexp.Position

	pin      PinRef
	power    string // net name of a power symbol pin
	label    *schematic.Label
	sheet    schematic.UUID
	sheetPin string
}

type segment struct {
	a, b  sexp.Position
	first int // node index of the wire's first vertex
}

type graph struct {
	nodes    []node
	segments [][]segment // per source
	uf       *unionFind
}

func (g *graph) add(n node) int {
	g.nodes = append(g.nodes, n)
	return g.uf.add()
}

func (a *Analyzer) build() {
	g := &graph{
		segments: make([][]segment, len(a.sources)),
		uf:       newUnionFind(0),
	}
	a.issues = nil

	for i, src := range a.sources {
		a.collect(g, i, src)
	}

	a.connectCoincident(g)
	a.connectSegments(g)
	a.connectNames(g)
	a.connectBridges(g)

	a.finalize(g)
	a.issues.Sort()
}

// collect adds the connection points of one source to the graph
func (a *Analyzer) collect(g *graph, si int, src Source) {
	sch := src.Schematic
	resolver := symbols.Chain{sch.Resolver(), a.resolver}

	for _, c := range sch.Components.Items() {
		ref := c.Reference()
		if src.InstancePath != "" {
			ref = c.ReferenceAt(src.InstancePath)
		}

		def, err := resolver.Resolve(c.SymbolKey())
		if err != nil {
			var nf *symbols.NotFoundError
			if errors.As(err, &nf) {
				a.issues.Add(issue.Issue{
					Severity:    issue.Warning,
					Code:        issue.CodeUnresolvedSymbol,
					Message:     err.Error() + "; its pins are left unconnected",
					ElementType: "symbol",
					ElementID:   ref,
					Path:        src.Path,
				})
			} else {
				a.issues.Errorf(issue.CodeUnresolvedSymbol, "symbol", ref, "%v", err)
			}
			a.logger.Warn("symbol unresolved", zap.String("reference", ref), zap.String("lib_id", c.LibID), zap.Error(err))
			continue
		}

		pins, err := geometry.ComponentPins(c, def)
		if err != nil {
			a.issues.Errorf(issue.CodeInvalidRotation, "symbol", ref, "%v", err)
			continue
		}
		power := ""
		if def.Power {
			power = c.Value()
		}
		for _, p := range pins {
			g.add(node{
				kind:   nodePin,
				source: si,
				pos:    p.Position,
				pin:    PinRef{Path: src.Path, Reference: ref, Pin: p.Number, Name: p.Name, UUID: c.UUID},
				power:  power,
			})
		}
	}

	for _, w := range sch.Wires.Items() {
		if len(w.Points) == 0 {
			continue
		}
		vertices := make([]int, 0, len(w.Points))
		for _, p := range w.Points {
			vertices = append(vertices, g.add(node{kind: nodeWire, source: si, pos: p}))
		}
		g.uf.connectAll(vertices)
		for k := 1; k < len(w.Points); k++ {
			g.segments[si] = append(g.segments[si], segment{a: w.Points[k-1], b: w.Points[k], first: vertices[0]})
		}
	}

	for _, j := range sch.Junctions.Items() {
		g.add(node{kind: nodeJunction, source: si, pos: j.Position})
	}
	for _, nc := range sch.NoConnects.Items() {
		g.add(node{kind: nodeNoConnect, source: si, pos: nc.Position})
	}
	for _, l := range sch.Labels.Items() {
		g.add(node{kind: nodeLabel, source: si, pos: l.Position, label: l})
	}
	for _, sheet := range sch.Sheets.Items() {
		for _, p := range sheet.Pins {
			g.add(node{
				kind:     nodeSheetPin,
				source:   si,
				pos:      p.Position,
				sheet:    sheet.UUID,
				sheetPin: p.Name,
			})
		}
	}
}

type cell struct {
	source int
	x, y   int64
}

// connectCoincident joins points closer than the tolerance using a grid hash
// with tolerance-sized cells
func (a *Analyzer) connectCoincident(g *graph) {
	tol := a.cfg.Tolerance
	grid := make(map[cell][]int, len(g.nodes))

	for i, n := range g.nodes {
		cx := int64(math.Floor(n.pos.X / tol))
		cy := int64(math.Floor(n.pos.Y / tol))
		for dx := int64(-1); dx <= 1; dx++ {
			for dy := int64(-1); dy <= 1; dy++ {
				for _, j := range grid[cell{source: n.source, x: cx + dx, y: cy + dy}] {
					if n.pos.Near(g.nodes[j].pos, tol) {
						g.uf.connect(i, j)
					}
				}
			}
		}
		key := cell{source: n.source, x: cx, y: cy}
		grid[key] = append(grid[key], i)
	}
}

// connectSegments joins points lying on the interior of a wire segment
func (a *Analyzer) connectSegments(g *graph) {
	tol := a.cfg.Tolerance
	for i, n := range g.nodes {
		for _, s := range g.segments[n.source] {
			if onSegment(n.pos, s.a, s.b, tol) {
				g.uf.connect(i, s.first)
			}
		}
	}
}

// onSegment reports whether p lies on segment ab within tol
func onSegment(p, a, b sexp.Position, tol float64) bool {
	dx, dy := b.X-a.X, b.Y-a.Y
	length2 := dx*dx + dy*dy
	if length2 == 0 {
		return p.Near(a, tol)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / length2
	if t < 0 || t > 1 {
		return p.Near(a, tol) || p.Near(b, tol)
	}
	closest := sexp.Position{X: a.X + t*dx, Y: a.Y + t*dy}
	return math.Hypot(p.X-closest.X, p.Y-closest.Y) <= tol
}

// connectNames joins labels sharing a text and power symbols sharing a value
func (a *Analyzer) connectNames(g *graph) {
	groups := make(map[string][]int)
	for i, n := range g.nodes {
		key, ok := a.nameKey(n)
		if ok {
			groups[key] = append(groups[key], i)
		}
	}
	for _, members := range groups {
		g.uf.connectAll(members)
	}
}

func (a *Analyzer) nameKey(n node) (string, bool) {
	switch {
	case n.kind == nodePin && n.power != "":
		if a.cfg.UnifyGlobalLabels {
			return "global\x00" + n.power, true
		}
		return "power\x00" + n.power, true

	case n.kind == nodeLabel:
		path := a.sources[n.source].Path
		switch n.label.Kind {
		case schematic.LocalLabel, schematic.HierarchicalLabel:
			// a sheet's hierarchical labels are also its local names
			return "sheet\x00" + path + "\x00" + n.label.Text, true
		case schematic.GlobalLabel:
			if a.cfg.UnifyGlobalLabels {
				return "global\x00" + n.label.Text, true
			}
		}
	}
	return "", false
}

// connectBridges joins the endpoints of each bridge
func (a *Analyzer) connectBridges(g *graph) {
	for _, b := range a.bridges {
		ends := append(a.endpointNodes(g, b.A), a.endpointNodes(g, b.B)...)
		if len(ends) < 2 {
			a.logger.Debug("bridge endpoint not found",
				zap.String("a", b.A.Path+":"+b.A.Name),
				zap.String("b", b.B.Path+":"+b.B.Name),
			)
			continue
		}
		g.uf.connectAll(ends)
	}
}

func (a *Analyzer) endpointNodes(g *graph, ep Endpoint) []int {
	var found []int
	for i, n := range g.nodes {
		if a.sources[n.source].Path != ep.Path {
			continue
		}
		switch {
		case ep.Sheet != "" && n.kind == nodeSheetPin:
			if n.sheet == ep.Sheet && n.sheetPin == ep.Name {
				found = append(found, i)
			}
		case ep.Sheet == "" && n.kind == nodeLabel:
			if n.label.Kind == schematic.HierarchicalLabel && n.label.Text == ep.Name {
				found = append(found, i)
			}
		}
	}
	return found
}

// finalize groups the nodes into nets and names them
func (a *Analyzer) finalize(g *graph) {
	groups := make(map[int][]int)
	var roots []int
	for i := range g.nodes {
		root := g.uf.find(i)
		if _, seen := groups[root]; !seen {
			roots = append(roots, root)
		}
		groups[root] = append(groups[root], i)
	}

	a.nets = nil
	a.byPin = make(map[pinKey]*Net)
	a.byName = make(map[string]*Net)
	a.byEndpoint = make(map[Endpoint]*Net)
	a.byLabel = make(map[labelKey]labelNet)

	for _, root := range roots {
		net := a.newNet(g, groups[root])
		if net == nil {
			continue
		}
		a.nets = append(a.nets, net)
		for _, i := range groups[root] {
			n := g.nodes[i]
			path := a.sources[n.source].Path
			switch n.kind {
			case nodeLabel:
				if n.label.Kind == schematic.HierarchicalLabel {
					a.byEndpoint[Endpoint{Path: path, Name: n.label.Text}] = net
				}
				key := labelKey{path: path, text: n.label.Text}
				rank := labelRank(n.label.Kind)
				if e, seen := a.byLabel[key]; !seen || rank < e.rank {
					a.byLabel[key] = labelNet{net: net, rank: rank}
				}
			case nodeSheetPin:
				a.byEndpoint[Endpoint{Path: path, Sheet: n.sheet, Name: n.sheetPin}] = net
			}
		}
	}

	sort.SliceStable(a.nets, func(i, j int) bool {
		return a.nets[i].Name < a.nets[j].Name
	})
	for _, net := range a.nets {
		if _, dup := a.byName[net.Name]; !dup {
			a.byName[net.Name] = net
		}
		for _, p := range net.Pins {
			a.byPin[pinKey{path: p.Path, ref: p.Reference, pin: p.Pin}] = net
		}
	}
}

// newNet builds the net for one connected set, or nil when the set holds
// only wires and junctions
func (a *Analyzer) newNet(g *graph, members []int) *Net {
	net := &Net{}
	names := newNameCandidates()
	relevant := false

	for _, i := range members {
		n := g.nodes[i]
		net.Positions = append(net.Positions, n.pos)
		path := a.sources[n.source].Path

		switch n.kind {
		case nodePin:
			relevant = true
			net.Pins = append(net.Pins, n.pin)
			if n.power != "" {
				names.offer(classGlobal, n.power)
			}
		case nodeLabel:
			relevant = true
			text := n.label.Text
			switch n.label.Kind {
			case schematic.GlobalLabel:
				names.offer(classGlobal, text)
			case schematic.HierarchicalLabel:
				names.offer(classHierarchical, qualifyName(path, text))
			default:
				names.offer(classLocal, qualifyName(path, text))
			}
			net.Labels = appendUnique(net.Labels, text)
		case nodeSheetPin:
			relevant = true
			net.SheetPins = appendUnique(net.SheetPins, n.sheetPin)
		case nodeNoConnect:
			net.NoConnect = true
		}
	}
	if !relevant {
		return nil
	}

	sort.Slice(net.Pins, func(i, j int) bool { return net.Pins[i].less(net.Pins[j]) })
	sort.Strings(net.Labels)
	sort.Strings(net.SheetPins)
	sort.Slice(net.Positions, func(i, j int) bool { return positionLess(net.Positions[i], net.Positions[j]) })
	net.Positions = dedupePositions(net.Positions, a.cfg.Tolerance)

	net.Name = names.best()
	if net.Name == "" {
		net.Name = fallbackName(net)
	}
	return net
}

// qualifyName prefixes sheet-local names with the sheet path outside the root
func qualifyName(path, name string) string {
	if path == RootPath || path == "" {
		return name
	}
	return path + "/" + name
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

func positionLess(a, b sexp.Position) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	return a.Y < b.Y
}

func dedupePositions(sorted []sexp.Position, tol float64) []sexp.Position {
	out := sorted[:0]
	for _, p := range sorted {
		dup := false
		for _, q := range out {
			if p.Near(q, tol) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, p)
		}
	}
	return out
}
