// Package sexp provides the value types and tree helpers shared by the KiCad
// schematic, symbol library and analysis packages.
package sexp

import (
	"math"

	"github.com/google/uuid"
)

// Position represents a 2D coordinate in the KiCad document frame (mm, Y down)
type Position struct {
	X float64
	Y float64
}

// Add returns p translated by o
func (p Position) Add(o Position) Position {
	return Position{X: p.X + o.X, Y: p.Y + o.Y}
}

// Sub returns p - o
func (p Position) Sub(o Position) Position {
	return Position{X: p.X - o.X, Y: p.Y - o.Y}
}

// Near reports whether p and o are within tol of each other on both axes
func (p Position) Near(o Position, tol float64) bool {
	return math.Abs(p.X-o.X) <= tol && math.Abs(p.Y-o.Y) <= tol
}

// Angle represents rotation in degrees
type Angle float64

// PositionAngle combines position with rotation
type PositionAngle struct {
	Position
	Angle Angle
}

// Size represents dimensions
type Size struct {
	Width  float64 // Width in mm
	Height float64 // Height in mm
}

// Color represents an RGBA color as written in files: R, G, B in 0-255 and A in 0-1
type Color struct {
	R, G, B, A float64
}

// Stroke defines line/outline appearance
type Stroke struct {
	Width float64 // Line width in mm
	Type  string  // Line type (default, solid, dash, dot, etc.)
	Color Color
}

// DefaultStroke is the stroke KiCad writes for new wires
var DefaultStroke = Stroke{Width: 0, Type: "default"}

// BoundingBox represents a rectangular boundary
type BoundingBox struct {
	Min Position // Minimum (top-left) corner
	Max Position // Maximum (bottom-right) corner
}

// Contains checks if a position is within the bounding box
func (bb BoundingBox) Contains(pos Position) bool {
	return pos.X >= bb.Min.X && pos.X <= bb.Max.X &&
		pos.Y >= bb.Min.Y && pos.Y <= bb.Max.Y
}

// ContainsBox checks if other lies completely inside the bounding box
func (bb BoundingBox) ContainsBox(other BoundingBox) bool {
	return !other.IsEmpty() && bb.Contains(other.Min) && bb.Contains(other.Max)
}

// NewBoundingBox creates an empty bounding box
func NewBoundingBox() BoundingBox {
	return BoundingBox{
		Min: Position{X: 1e9, Y: 1e9},
		Max: Position{X: -1e9, Y: -1e9},
	}
}

// Rect creates the normalized bounding box spanned by two corners
func Rect(a, b Position) BoundingBox {
	bb := NewBoundingBox()
	bb.Expand(a)
	bb.Expand(b)
	return bb
}

// IsEmpty checks if the bounding box is empty
func (bb BoundingBox) IsEmpty() bool {
	return bb.Min.X > bb.Max.X || bb.Min.Y > bb.Max.Y
}

// Expand expands the bounding box to include a position
func (bb *BoundingBox) Expand(pos Position) {
	if pos.X < bb.Min.X {
		bb.Min.X = pos.X
	}
	if pos.Y < bb.Min.Y {
		bb.Min.Y = pos.Y
	}
	if pos.X > bb.Max.X {
		bb.Max.X = pos.X
	}
	if pos.Y > bb.Max.Y {
		bb.Max.Y = pos.Y
	}
}

// ExpandBox expands to include another bounding box
func (bb *BoundingBox) ExpandBox(other BoundingBox) {
	if !other.IsEmpty() {
		bb.Expand(other.Min)
		bb.Expand(other.Max)
	}
}

// UUID represents a unique identifier (used in KiCad v6+ files)
type UUID string

// NewUUID returns a fresh random UUID
func NewUUID() UUID {
	return UUID(uuid.NewString())
}

// Effects represents text effects (font, justification, etc.)
type Effects struct {
	Font    Font
	Justify Justify
	Hide    bool
}

// DefaultEffects is the effects block KiCad writes for new text
var DefaultEffects = Effects{Font: Font{Size: Size{Width: 1.27, Height: 1.27}}}

// Font represents font properties
type Font struct {
	Face      string
	Size      Size
	Thickness float64
	Bold      bool
	Italic    bool
}

// Justify represents text justification
type Justify struct {
	Horizontal string // left, center, right
	Vertical   string // top, center, bottom
	Mirror     bool
}

// Property represents a key-value property of a symbol or sheet
type Property struct {
	Key      string
	Value    string
	ID       int // only present in KiCad 6/7 files
	Position PositionAngle
	Effects  Effects
}
