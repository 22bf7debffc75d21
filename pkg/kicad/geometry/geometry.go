// Package geometry places library pins and symbol outlines on the schematic
// sheet.
//
// Library symbols are drawn with the Y axis pointing up while the sheet has Y
// pointing down. A library point is flipped into the sheet frame, mirrored,
// rotated counter-clockwise (as seen on screen) and finally translated to the
// component position.
package geometry

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/collection"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/schematic"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/sexp"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/symbols"
)

// RotationError is returned for components rotated by something other than a
// multiple of 90 degrees
type RotationError = schematic.RotationError

// PinNotFoundError reports a pin number the symbol definition does not have
type PinNotFoundError struct {
	Reference string
	LibID     string
	Number    string
}

func (e *PinNotFoundError) Error() string {
	return fmt.Sprintf("pin %s not found on %s (%s)", e.Number, e.Reference, e.LibID)
}

// Transform maps library coordinates to sheet coordinates. The matrix entries
// are -1, 0 or 1 so pin positions stay on the grid.
type Transform struct {
	XX, XY int
	YX, YY int
	Offset sexp.Position
}

// Apply maps a library point to the sheet
func (t Transform) Apply(p sexp.Position) sexp.Position {
	return sexp.Position{
		X: t.Offset.X + float64(t.XX)*p.X + float64(t.XY)*p.Y,
		Y: t.Offset.Y + float64(t.YX)*p.X + float64(t.YY)*p.Y,
	}
}

// ComponentTransform builds the transform for a placed component
func ComponentTransform(c *schematic.Component) (Transform, error) {
	rotation, err := schematic.NormalizeRotation(c.Rotation)
	if err != nil {
		return Transform{}, err
	}

	// library frame to sheet frame
	xx, xy, yx, yy := 1, 0, 0, -1

	switch c.Mirror {
	case schematic.MirrorX:
		yx, yy = -yx, -yy
	case schematic.MirrorY:
		xx, xy = -xx, -xy
	}

	// counter-clockwise on screen with Y down: (x, y) -> (x cos + y sin, -x sin + y cos)
	var cos, sin int
	switch rotation {
	case 0:
		cos, sin = 1, 0
	case 90:
		cos, sin = 0, 1
	case 180:
		cos, sin = -1, 0
	case 270:
		cos, sin = 0, -1
	}

	return Transform{
		XX:     cos*xx + sin*yx,
		XY:     cos*xy + sin*yy,
		YX:     -sin*xx + cos*yx,
		YY:     -sin*xy + cos*yy,
		Offset: c.Position,
	}, nil
}

// Pin is a symbol pin placed on the sheet
type Pin struct {
	Number   string
	Name     string
	Type     string
	Hidden   bool
	Position sexp.Position
}

// ResolvePinPosition returns the sheet position of a pin's connection point
func ResolvePinPosition(c *schematic.Component, number string, def *symbols.Definition) (sexp.Position, error) {
	t, err := ComponentTransform(c)
	if err != nil {
		return sexp.Position{}, err
	}
	pin, ok := def.Pin(number, c.Unit)
	if !ok {
		return sexp.Position{}, &PinNotFoundError{Reference: c.Reference(), LibID: c.LibID, Number: number}
	}
	return t.Apply(pin.Position), nil
}

// ComponentPins places every pin of the component's unit
func ComponentPins(c *schematic.Component, def *symbols.Definition) ([]Pin, error) {
	t, err := ComponentTransform(c)
	if err != nil {
		return nil, err
	}
	defs := def.UnitPins(c.Unit)
	pins := make([]Pin, 0, len(defs))
	for _, p := range defs {
		pins = append(pins, Pin{
			Number:   p.Number,
			Name:     p.Name,
			Type:     p.Type,
			Hidden:   p.Hidden,
			Position: t.Apply(p.Position),
		})
	}
	return pins, nil
}

// BoundingBox returns the sheet-space box around the symbol body and pins.
// Without a definition the box collapses to the anchor point.
func BoundingBox(c *schematic.Component, def *symbols.Definition) (sexp.BoundingBox, error) {
	t, err := ComponentTransform(c)
	if err != nil {
		return sexp.BoundingBox{}, err
	}
	if def == nil || def.Graphics.IsEmpty() {
		return sexp.Rect(c.Position, c.Position), nil
	}

	g := def.Graphics
	bb := sexp.NewBoundingBox()
	for _, corner := range []sexp.Position{
		g.Min,
		{X: g.Max.X, Y: g.Min.Y},
		g.Max,
		{X: g.Min.X, Y: g.Max.Y},
	} {
		bb.Expand(t.Apply(corner))
	}
	return bb, nil
}

// InRegion selects components whose anchor lies inside region
func InRegion(region sexp.BoundingBox) collection.Predicate[*schematic.Component] {
	return func(c *schematic.Component) bool {
		return region.Contains(c.Position)
	}
}

// WithinRegion selects components whose whole outline lies inside region.
// Components the resolver cannot provide fall back to their anchor.
func WithinRegion(region sexp.BoundingBox, resolver symbols.Resolver) collection.Predicate[*schematic.Component] {
	return func(c *schematic.Component) bool {
		def, err := resolver.Resolve(c.SymbolKey())
		if err != nil {
			return region.Contains(c.Position)
		}
		bb, err := BoundingBox(c, def)
		if err != nil {
			return false
		}
		return region.ContainsBox(bb)
	}
}
