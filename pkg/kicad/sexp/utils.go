package sexp

import (
	"fmt"
	"math"
	"strconv"

	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/sexp/kicadsexp"
)

// Epsilon is the tolerance used when comparing coordinates read from files
const Epsilon = 1e-9

// S-expression navigation helpers

// FindNode searches for a child list with the given key (first symbol)
// Example: FindNode(sexp, "at") finds (at 100 50) in a list
func FindNode(s *kicadsexp.List, key string) (*kicadsexp.List, bool) {
	if s == nil {
		return nil, false
	}
	return s.Find(key)
}

// FindAllNodes finds all child lists with the given key
func FindAllNodes(s *kicadsexp.List, key string) []*kicadsexp.List {
	if s == nil {
		return nil
	}
	return s.FindAll(key)
}

// GetListItems returns all items in a list (excluding the first symbol/key)
func GetListItems(s *kicadsexp.List) []kicadsexp.Node {
	if s == nil || len(s.Items) <= 1 {
		return nil
	}
	return s.Items[1:]
}

// Typed value extraction helpers

// GetString extracts the decoded value of the atom at the given index.
// Index 0 is the key, 1 is first value, etc. Quoted and bare atoms are both accepted.
func GetString(s *kicadsexp.List, index int) (string, error) {
	if s == nil {
		return "", fmt.Errorf("expected list, got nil")
	}
	if index < 0 || index >= len(s.Items) {
		return "", fmt.Errorf("index %d out of bounds (length %d)", index, len(s.Items))
	}
	a, ok := s.Items[index].(*kicadsexp.Atom)
	if !ok {
		return "", fmt.Errorf("expected atom at index %d of (%s), got list", index, s.Tag())
	}
	return a.Value, nil
}

// GetFloat extracts a float64 value at the given index
func GetFloat(s *kicadsexp.List, index int) (float64, error) {
	str, err := GetString(s, index)
	if err != nil {
		return 0, err
	}

	val, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse float %q: %w", str, err)
	}

	return val, nil
}

// GetInt extracts an int value at the given index
func GetInt(s *kicadsexp.List, index int) (int, error) {
	str, err := GetString(s, index)
	if err != nil {
		return 0, err
	}

	val, err := strconv.Atoi(str)
	if err != nil {
		return 0, fmt.Errorf("failed to parse int %q: %w", str, err)
	}

	return val, nil
}

// GetChildString returns the first value of the child list with the given key
func GetChildString(s *kicadsexp.List, key string) (string, bool) {
	node, ok := FindNode(s, key)
	if !ok {
		return "", false
	}
	v, err := GetString(node, 1)
	if err != nil {
		return "", false
	}
	return v, true
}

// GetBool reads a (key yes|no) child. Missing children yield def; a bare
// (key) counts as true.
func GetBool(s *kicadsexp.List, key string, def bool) bool {
	node, ok := FindNode(s, key)
	if !ok {
		return def
	}
	v, err := GetString(node, 1)
	if err != nil {
		return true
	}
	return v == "yes" || v == "true"
}

// Domain-specific extraction helpers

// GetPosition extracts a PositionAngle from an (at X Y [angle]) node.
// Schematic coordinates are millimeters and angles are degrees.
func GetPosition(s *kicadsexp.List) (PositionAngle, error) {
	if s == nil {
		return PositionAngle{}, fmt.Errorf("expected (at X Y [angle]) list")
	}

	x, err := GetFloat(s, 1)
	if err != nil {
		return PositionAngle{}, fmt.Errorf("failed to parse X coordinate: %w", err)
	}

	y, err := GetFloat(s, 2)
	if err != nil {
		return PositionAngle{}, fmt.Errorf("failed to parse Y coordinate: %w", err)
	}

	result := PositionAngle{Position: Position{X: x, Y: y}}

	// Angle is optional
	if angle, err := GetFloat(s, 3); err == nil {
		result.Angle = Angle(angle)
	}

	return result, nil
}

// GetPositionXY extracts just X,Y coordinates (no angle)
// Used for (start X Y), (end X Y), (xy X Y), (size W H), etc.
func GetPositionXY(s *kicadsexp.List) (Position, error) {
	x, err := GetFloat(s, 1)
	if err != nil {
		return Position{}, fmt.Errorf("failed to parse X: %w", err)
	}

	y, err := GetFloat(s, 2)
	if err != nil {
		return Position{}, fmt.Errorf("failed to parse Y: %w", err)
	}

	return Position{X: x, Y: y}, nil
}

// GetPoints extracts the xy vertices of a (pts (xy X Y) ...) node
func GetPoints(s *kicadsexp.List) ([]Position, error) {
	var points []Position
	for _, xy := range FindAllNodes(s, "xy") {
		p, err := GetPositionXY(xy)
		if err != nil {
			return nil, fmt.Errorf("failed to parse point %d: %w", len(points), err)
		}
		points = append(points, p)
	}
	return points, nil
}

// GetStroke extracts stroke properties from (stroke ...) node
// Format: (stroke (width W) (type default|solid|dash|dot) [(color R G B A)])
func GetStroke(s *kicadsexp.List) (Stroke, error) {
	stroke := DefaultStroke

	if s == nil {
		return stroke, fmt.Errorf("expected (stroke ...) list")
	}

	if widthNode, ok := FindNode(s, "width"); ok {
		if width, err := GetFloat(widthNode, 1); err == nil {
			stroke.Width = width
		}
	}

	if strokeType, ok := GetChildString(s, "type"); ok {
		stroke.Type = strokeType
	}

	if colorNode, ok := FindNode(s, "color"); ok {
		if color, err := GetColor(colorNode); err == nil {
			stroke.Color = color
		}
	}

	return stroke, nil
}

// GetColor extracts the color from a (color R G B [A]) node
func GetColor(s *kicadsexp.List) (Color, error) {
	color := Color{}

	r, err := GetFloat(s, 1)
	if err != nil {
		return color, fmt.Errorf("failed to parse R: %w", err)
	}
	g, err := GetFloat(s, 2)
	if err != nil {
		return color, fmt.Errorf("failed to parse G: %w", err)
	}
	b, err := GetFloat(s, 3)
	if err != nil {
		return color, fmt.Errorf("failed to parse B: %w", err)
	}
	color.R, color.G, color.B = r, g, b

	if a, err := GetFloat(s, 4); err == nil {
		color.A = a
	}

	return color, nil
}

// HasSymbol checks if a list contains a specific bare symbol
func HasSymbol(s *kicadsexp.List, symbol string) bool {
	return s != nil && s.HasSymbol(symbol)
}

// GetUUID extracts the UUID from the (uuid "...") child of s
func GetUUID(s *kicadsexp.List) (UUID, error) {
	v, ok := GetChildString(s, "uuid")
	if !ok {
		return "", fmt.Errorf("missing uuid in (%s)", s.Tag())
	}
	return UUID(v), nil
}

// GetEffects extracts text effects from an (effects ...) node
func GetEffects(s *kicadsexp.List) (Effects, error) {
	effects := Effects{}

	if s == nil {
		return effects, fmt.Errorf("expected (effects ...) list")
	}

	if fontNode, ok := FindNode(s, "font"); ok {
		effects.Font = GetFont(fontNode)
	}

	if justifyNode, ok := FindNode(s, "justify"); ok {
		effects.Justify = GetJustify(justifyNode)
	}

	// KiCad 6/7 write a bare hide symbol, KiCad 8 writes (hide yes)
	effects.Hide = HasSymbol(s, "hide") || GetBool(s, "hide", false)

	return effects, nil
}

// GetFont extracts font properties from a (font ...) node
func GetFont(s *kicadsexp.List) Font {
	font := Font{}

	if sizeNode, ok := FindNode(s, "size"); ok {
		w, _ := GetFloat(sizeNode, 1)
		h, _ := GetFloat(sizeNode, 2)
		font.Size = Size{Width: w, Height: h}
	}

	if thicknessNode, ok := FindNode(s, "thickness"); ok {
		font.Thickness, _ = GetFloat(thicknessNode, 1)
	}

	font.Bold = HasSymbol(s, "bold") || GetBool(s, "bold", false)
	font.Italic = HasSymbol(s, "italic") || GetBool(s, "italic", false)
	font.Face, _ = GetChildString(s, "face")

	return font
}

// GetJustify extracts justification from a (justify ...) node
func GetJustify(s *kicadsexp.List) Justify {
	justify := Justify{
		Horizontal: "center",
		Vertical:   "center",
	}

	for _, item := range GetListItems(s) {
		a, ok := item.(*kicadsexp.Atom)
		if !ok {
			continue
		}
		switch a.Value {
		case "left", "right":
			justify.Horizontal = a.Value
		case "top", "bottom":
			justify.Vertical = a.Value
		case "mirror":
			justify.Mirror = true
		}
	}

	return justify
}

// GetProperty extracts a property from a (property ...) node
func GetProperty(s *kicadsexp.List) (Property, error) {
	prop := Property{}

	// Format: (property "key" "value" [(id N)] (at X Y angle) (effects ...))
	key, err := GetString(s, 1)
	if err != nil {
		return prop, fmt.Errorf("failed to parse property key: %w", err)
	}
	prop.Key = key

	// Value can be empty
	prop.Value, _ = GetString(s, 2)

	if idNode, ok := FindNode(s, "id"); ok {
		prop.ID, _ = GetInt(idNode, 1)
	}

	if atNode, ok := FindNode(s, "at"); ok {
		if pos, err := GetPosition(atNode); err == nil {
			prop.Position = pos
		}
	}

	if effectsNode, ok := FindNode(s, "effects"); ok {
		if effects, err := GetEffects(effectsNode); err == nil {
			prop.Effects = effects
		}
	}

	return prop, nil
}

// Semantic write helpers. Each one leaves the existing atom untouched when it
// already holds an equal value, so unmodified text keeps its original spelling.

// SetFloat stores v at index, comparing numerically against the current atom
func SetFloat(s *kicadsexp.List, index int, v float64) bool {
	if a, ok := s.Atom(index); ok && (a.Kind == kicadsexp.KindInt || a.Kind == kicadsexp.KindFloat) {
		if old, err := a.Float(); err == nil && math.Abs(old-v) < Epsilon {
			return false
		}
	}
	return s.SetAtom(index, kicadsexp.Float(v))
}

// SetInt stores an integer at index
func SetInt(s *kicadsexp.List, index int, v int) bool {
	return SetFloat(s, index, float64(v))
}

// SetString stores a quoted string at index. A bare symbol with the same text
// counts as equal.
func SetString(s *kicadsexp.List, index int, v string) bool {
	if a, ok := s.Atom(index); ok && (a.Kind == kicadsexp.KindString || a.Kind == kicadsexp.KindSymbol) && a.Value == v {
		return false
	}
	return s.SetAtom(index, kicadsexp.Str(v))
}

// SetSymbol stores a bare symbol at index
func SetSymbol(s *kicadsexp.List, index int, v string) bool {
	return s.SetAtom(index, kicadsexp.Sym(v))
}

// SetPosition writes an (at X Y [angle]) list. The angle is written when the
// list already carries one or withAngle is set.
func SetPosition(s *kicadsexp.List, p PositionAngle, withAngle bool) bool {
	changed := SetFloat(s, 1, p.X)
	changed = SetFloat(s, 2, p.Y) || changed
	if withAngle || s.Len() > 3 {
		changed = SetFloat(s, 3, float64(p.Angle)) || changed
	}
	return changed
}

// SetPositionXY writes the X and Y atoms of a (tag X Y) list
func SetPositionXY(s *kicadsexp.List, p Position) bool {
	changed := SetFloat(s, 1, p.X)
	return SetFloat(s, 2, p.Y) || changed
}

// SetYesNo writes a (key yes|no) child, creating it when missing
func SetYesNo(s *kicadsexp.List, key string, v bool) bool {
	word := "no"
	if v {
		word = "yes"
	}
	child, ok := s.Find(key)
	if !ok {
		s.Append(kicadsexp.NewList(key, kicadsexp.Sym(word)))
		return true
	}
	return SetSymbol(child, 1, word)
}

// SetChildString writes a (key "value") child, creating it when missing
func SetChildString(s *kicadsexp.List, key, v string) bool {
	child, ok := s.Find(key)
	if !ok {
		s.Append(kicadsexp.NewList(key, kicadsexp.Str(v)))
		return true
	}
	return SetString(child, 1, v)
}

// Builders for generated subtrees

// NewAt builds an (at X Y angle) list
func NewAt(p PositionAngle) *kicadsexp.List {
	return kicadsexp.NewList("at", kicadsexp.Float(p.X), kicadsexp.Float(p.Y), kicadsexp.Float(float64(p.Angle)))
}

// NewXY builds a (tag X Y) list
func NewXY(tag string, p Position) *kicadsexp.List {
	return kicadsexp.NewList(tag, kicadsexp.Float(p.X), kicadsexp.Float(p.Y))
}

// NewPoints builds a (pts (xy X Y) ...) list
func NewPoints(points []Position) *kicadsexp.List {
	pts := kicadsexp.NewList("pts")
	for _, p := range points {
		pts.Append(NewXY("xy", p))
	}
	return pts
}

// NewStroke builds a (stroke (width W) (type T)) list
func NewStroke(s Stroke) *kicadsexp.List {
	return kicadsexp.NewList("stroke",
		kicadsexp.NewList("width", kicadsexp.Float(s.Width)),
		kicadsexp.NewList("type", kicadsexp.Sym(s.Type)),
	)
}

// NewEffects builds an (effects (font (size W H)) [(justify ...)] [(hide yes)]) list
func NewEffects(e Effects) *kicadsexp.List {
	font := kicadsexp.NewList("font", NewXY("size", Position{X: e.Font.Size.Width, Y: e.Font.Size.Height}))
	effects := kicadsexp.NewList("effects", font)

	var justify []kicadsexp.Node
	if h := e.Justify.Horizontal; h == "left" || h == "right" {
		justify = append(justify, kicadsexp.Sym(h))
	}
	if v := e.Justify.Vertical; v == "top" || v == "bottom" {
		justify = append(justify, kicadsexp.Sym(v))
	}
	if e.Justify.Mirror {
		justify = append(justify, kicadsexp.Sym("mirror"))
	}
	if len(justify) > 0 {
		effects.Append(kicadsexp.NewList("justify", justify...))
	}
	if e.Hide {
		effects.Append(kicadsexp.NewList("hide", kicadsexp.Sym("yes")))
	}
	return effects
}

// NewUUIDNode builds a (uuid "...") list
func NewUUIDNode(id UUID) *kicadsexp.List {
	return kicadsexp.NewList("uuid", kicadsexp.Str(string(id)))
}

// NewProperty builds a (property "key" "value" (at ...) (effects ...)) list
func NewProperty(p Property) *kicadsexp.List {
	return kicadsexp.NewList("property",
		kicadsexp.Str(p.Key),
		kicadsexp.Str(p.Value),
		NewAt(p.Position),
		NewEffects(p.Effects),
	)
}
