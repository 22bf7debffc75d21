// Package symbols resolves library identifiers such as "Device:R" to symbol
// definitions with pin geometry. Definitions come from the lib_symbols block
// embedded in a schematic or from a .kicad_sym library file.
package symbols

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/sexp"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/sexp/kicadsexp"
)

// ErrNotFound is matched by every *NotFoundError
var ErrNotFound = errors.New("symbol not found")

// NotFoundError reports a lib_id no resolver could provide
type NotFoundError struct {
	LibID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("symbol %q not found", e.LibID)
}

// Is makes errors.Is(err, ErrNotFound) true
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Resolver provides symbol definitions by lib_id
type Resolver interface {
	Resolve(libID string) (*Definition, error)
}

// ResolverFunc adapts a function to the Resolver interface
type ResolverFunc func(libID string) (*Definition, error)

// Resolve calls f(libID)
func (f ResolverFunc) Resolve(libID string) (*Definition, error) {
	return f(libID)
}

// PinDef is a pin in the library frame (Y axis pointing up)
type PinDef struct {
	Number   string
	Name     string
	Position sexp.Position // connection point
	Angle    sexp.Angle    // direction from the connection point towards the body
	Length   float64
	Type     string // electrical type: input, output, passive, power_in, ...
	Unit     int    // 0 means common to all units
	Hidden   bool
}

// Definition is a resolved library symbol
type Definition struct {
	LibID    string
	Pins     []PinDef
	Power    bool // power symbols define a global net named after their value
	Graphics sexp.BoundingBox
	Units    int
}

// Pin returns the pin with the given number visible in unit. Unit 0 matches
// any unit.
func (d *Definition) Pin(number string, unit int) (PinDef, bool) {
	for _, p := range d.Pins {
		if p.Number != number {
			continue
		}
		if unit == 0 || p.Unit == 0 || p.Unit == unit {
			return p, true
		}
	}
	return PinDef{}, false
}

// UnitPins returns the pins belonging to unit (plus the common pins)
func (d *Definition) UnitPins(unit int) []PinDef {
	var pins []PinDef
	for _, p := range d.Pins {
		if unit == 0 || p.Unit == 0 || p.Unit == unit {
			pins = append(pins, p)
		}
	}
	return pins
}

// ParseDefinition reads a (symbol "Lib:Name" ...) list. Pins of alternate
// body styles (De Morgan) are skipped.
func ParseDefinition(node *kicadsexp.List, libID string) (*Definition, error) {
	if node.Tag() != "symbol" {
		return nil, fmt.Errorf("expected (symbol ...), got (%s)", node.Tag())
	}
	if libID == "" {
		name, err := sexp.GetString(node, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to parse symbol name: %w", err)
		}
		libID = name
	}

	def := &Definition{
		LibID:    libID,
		Power:    hasChild(node, "power"),
		Graphics: sexp.NewBoundingBox(),
		Units:    1,
	}

	// Pins and graphics may sit directly in the symbol or in unit sub-symbols
	// named "<name>_<unit>_<style>"
	if err := def.collect(node, 0); err != nil {
		return nil, err
	}
	for _, sub := range node.FindAll("symbol") {
		name, _ := sexp.GetString(sub, 1)
		unit, style := unitSuffix(name)
		if style > 1 {
			continue
		}
		if unit > def.Units {
			def.Units = unit
		}
		if err := def.collect(sub, unit); err != nil {
			return nil, fmt.Errorf("unit %q: %w", name, err)
		}
	}

	sort.SliceStable(def.Pins, func(i, j int) bool {
		return pinLess(def.Pins[i].Number, def.Pins[j].Number)
	})
	return def, nil
}

func hasChild(node *kicadsexp.List, tag string) bool {
	_, ok := node.Find(tag)
	return ok
}

// unitSuffix extracts unit and body style from a "Name_U_S" sub-symbol name
func unitSuffix(name string) (unit, style int) {
	parts := strings.Split(name, "_")
	if len(parts) < 3 {
		return 0, 0
	}
	unit, err1 := strconv.Atoi(parts[len(parts)-2])
	style, err2 := strconv.Atoi(parts[len(parts)-1])
	if err1 != nil || err2 != nil {
		return 0, 0
	}
	return unit, style
}

func (d *Definition) collect(node *kicadsexp.List, unit int) error {
	for _, child := range node.Lists() {
		switch child.Tag() {
		case "pin":
			pin, err := parsePin(child, unit)
			if err != nil {
				return err
			}
			d.Pins = append(d.Pins, pin)
			d.Graphics.Expand(pin.Position)
			d.Graphics.Expand(pin.Position.Add(pinVector(pin)))

		case "rectangle":
			start, _ := sexp.FindNode(child, "start")
			end, _ := sexp.FindNode(child, "end")
			d.expandXY(start)
			d.expandXY(end)

		case "polyline", "bezier":
			if pts, ok := child.Find("pts"); ok {
				points, _ := sexp.GetPoints(pts)
				for _, p := range points {
					d.Graphics.Expand(p)
				}
			}

		case "circle":
			center, ok := child.Find("center")
			if !ok {
				continue
			}
			c, err := sexp.GetPositionXY(center)
			if err != nil {
				continue
			}
			r := 0.0
			if radius, ok := child.Find("radius"); ok {
				r, _ = sexp.GetFloat(radius, 1)
			}
			d.Graphics.Expand(sexp.Position{X: c.X - r, Y: c.Y - r})
			d.Graphics.Expand(sexp.Position{X: c.X + r, Y: c.Y + r})

		case "arc":
			for _, tag := range []string{"start", "mid", "end"} {
				node, _ := child.Find(tag)
				d.expandXY(node)
			}
		}
	}
	return nil
}

func (d *Definition) expandXY(node *kicadsexp.List) {
	if node == nil {
		return
	}
	if p, err := sexp.GetPositionXY(node); err == nil {
		d.Graphics.Expand(p)
	}
}

// pinVector is the vector from the connection point to the body end of the pin
func pinVector(p PinDef) sexp.Position {
	switch int(p.Angle) {
	case 0:
		return sexp.Position{X: p.Length}
	case 90:
		return sexp.Position{Y: p.Length}
	case 180:
		return sexp.Position{X: -p.Length}
	case 270:
		return sexp.Position{Y: -p.Length}
	}
	return sexp.Position{}
}

// parsePin reads (pin <type> <style> (at X Y A) (length L) (name "N") (number "1"))
func parsePin(node *kicadsexp.List, unit int) (PinDef, error) {
	pin := PinDef{Unit: unit}

	pin.Type, _ = sexp.GetString(node, 1)

	atNode, ok := node.Find("at")
	if !ok {
		return pin, fmt.Errorf("pin without position")
	}
	at, err := sexp.GetPosition(atNode)
	if err != nil {
		return pin, fmt.Errorf("failed to parse pin position: %w", err)
	}
	pin.Position = at.Position
	pin.Angle = at.Angle

	if lengthNode, ok := node.Find("length"); ok {
		pin.Length, _ = sexp.GetFloat(lengthNode, 1)
	}
	if nameNode, ok := node.Find("name"); ok {
		pin.Name, _ = sexp.GetString(nameNode, 1)
	}
	numberNode, ok := node.Find("number")
	if !ok {
		return pin, fmt.Errorf("pin without number")
	}
	pin.Number, _ = sexp.GetString(numberNode, 1)
	pin.Hidden = node.HasSymbol("hide") || sexp.GetBool(node, "hide", false)

	return pin, nil
}

// pinLess orders pin numbers numerically when both are numbers
func pinLess(a, b string) bool {
	x, errA := strconv.Atoi(a)
	y, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return x < y
	}
	return a < b
}
