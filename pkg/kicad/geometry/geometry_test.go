package geometry

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/schematic"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/sexp"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/symbols"
)

const tolerance = 1e-9

// testDefinition has one pin off both axes so every mirror and rotation lands
// somewhere different
func testDefinition() *symbols.Definition {
	return &symbols.Definition{
		LibID: "Test:Asym",
		Pins: []symbols.PinDef{
			{Number: "1", Name: "A", Position: sexp.Position{X: 2.54, Y: 5.08}, Type: "passive", Unit: 1},
			{Number: "2", Name: "B", Position: sexp.Position{X: 0, Y: 0}, Type: "passive", Unit: 2},
		},
		Graphics: sexp.Rect(sexp.Position{X: -1, Y: -2}, sexp.Position{X: 3, Y: 6}),
		Units:    2,
	}
}

func component(rotation schematic.Angle, mirror schematic.Mirror) *schematic.Component {
	return &schematic.Component{
		LibID:    "Test:Asym",
		Position: sexp.Position{X: 100, Y: 100},
		Rotation: rotation,
		Mirror:   mirror,
		Unit:     1,
		Properties: []sexp.Property{
			{Key: schematic.PropReference, Value: "U1"},
		},
	}
}

func TestResolvePinPositionGrid(t *testing.T) {
	// Library pin (2.54, 5.08) with Y up, component at (100, 100) with Y down
	tests := []struct {
		mirror   schematic.Mirror
		rotation schematic.Angle
		want     sexp.Position
	}{
		{schematic.MirrorNone, 0, sexp.Position{X: 102.54, Y: 94.92}},
		{schematic.MirrorNone, 90, sexp.Position{X: 94.92, Y: 97.46}},
		{schematic.MirrorNone, 180, sexp.Position{X: 97.46, Y: 105.08}},
		{schematic.MirrorNone, 270, sexp.Position{X: 105.08, Y: 102.54}},

		{schematic.MirrorX, 0, sexp.Position{X: 102.54, Y: 105.08}},
		{schematic.MirrorX, 90, sexp.Position{X: 105.08, Y: 97.46}},
		{schematic.MirrorX, 180, sexp.Position{X: 97.46, Y: 94.92}},
		{schematic.MirrorX, 270, sexp.Position{X: 94.92, Y: 102.54}},

		{schematic.MirrorY, 0, sexp.Position{X: 97.46, Y: 94.92}},
		{schematic.MirrorY, 90, sexp.Position{X: 94.92, Y: 102.54}},
		{schematic.MirrorY, 180, sexp.Position{X: 102.54, Y: 105.08}},
		{schematic.MirrorY, 270, sexp.Position{X: 105.08, Y: 97.46}},
	}

	def := testDefinition()
	for _, tt := range tests {
		name := fmt.Sprintf("mirror=%q rotation=%v", string(tt.mirror), tt.rotation)
		t.Run(name, func(t *testing.T) {
			got, err := ResolvePinPosition(component(tt.rotation, tt.mirror), "1", def)
			require.NoError(t, err)
			assert.InDelta(t, tt.want.X, got.X, tolerance)
			assert.InDelta(t, tt.want.Y, got.Y, tolerance)
		})
	}
}

func TestResolvePinPositionErrors(t *testing.T) {
	def := testDefinition()

	_, err := ResolvePinPosition(component(45, schematic.MirrorNone), "1", def)
	var re *RotationError
	assert.True(t, errors.As(err, &re))
	assert.ErrorIs(t, err, schematic.ErrInvalidRotation)

	_, err = ResolvePinPosition(component(0, schematic.MirrorNone), "9", def)
	var pe *PinNotFoundError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "9", pe.Number)
	assert.Equal(t, "U1", pe.Reference)

	// pin 2 belongs to unit 2 only
	_, err = ResolvePinPosition(component(0, schematic.MirrorNone), "2", def)
	assert.True(t, errors.As(err, &pe))
}

func TestNegativeRotationNormalizes(t *testing.T) {
	def := testDefinition()
	a, err := ResolvePinPosition(component(-90, schematic.MirrorNone), "1", def)
	require.NoError(t, err)
	b, err := ResolvePinPosition(component(270, schematic.MirrorNone), "1", def)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestComponentPins(t *testing.T) {
	def := testDefinition()

	c := component(180, schematic.MirrorNone)
	pins, err := ComponentPins(c, def)
	require.NoError(t, err)
	require.Len(t, pins, 1)
	assert.Equal(t, "A", pins[0].Name)

	c.Unit = 2
	pins, err = ComponentPins(c, def)
	require.NoError(t, err)
	require.Len(t, pins, 1)
	assert.Equal(t, "2", pins[0].Number)
	assert.Equal(t, sexp.Position{X: 100, Y: 100}, pins[0].Position)
}

func TestBoundingBox(t *testing.T) {
	def := testDefinition()

	bb, err := BoundingBox(component(0, schematic.MirrorNone), def)
	require.NoError(t, err)
	assert.InDelta(t, 99, bb.Min.X, tolerance)
	assert.InDelta(t, 94, bb.Min.Y, tolerance)
	assert.InDelta(t, 103, bb.Max.X, tolerance)
	assert.InDelta(t, 102, bb.Max.Y, tolerance)

	bb, err = BoundingBox(component(90, schematic.MirrorNone), def)
	require.NoError(t, err)
	assert.InDelta(t, 94, bb.Min.X, tolerance)
	assert.InDelta(t, 97, bb.Min.Y, tolerance)
	assert.InDelta(t, 102, bb.Max.X, tolerance)
	assert.InDelta(t, 101, bb.Max.Y, tolerance)

	bb, err = BoundingBox(component(0, schematic.MirrorNone), nil)
	require.NoError(t, err)
	assert.Equal(t, sexp.Rect(sexp.Position{X: 100, Y: 100}, sexp.Position{X: 100, Y: 100}), bb)
}

func TestRegionPredicates(t *testing.T) {
	def := testDefinition()
	resolver := symbols.ResolverFunc(func(libID string) (*symbols.Definition, error) {
		if libID == def.LibID {
			return def, nil
		}
		return nil, &symbols.NotFoundError{LibID: libID}
	})

	c := component(0, schematic.MirrorNone)
	tight := sexp.Rect(sexp.Position{X: 99.5, Y: 99.5}, sexp.Position{X: 100.5, Y: 100.5})
	wide := sexp.Rect(sexp.Position{X: 90, Y: 90}, sexp.Position{X: 110, Y: 110})

	assert.True(t, InRegion(tight)(c))
	assert.False(t, WithinRegion(tight, resolver)(c))
	assert.True(t, WithinRegion(wide, resolver)(c))

	c.LibID = "Missing:Part"
	assert.True(t, WithinRegion(tight, resolver)(c))
}

func TestDividerPins(t *testing.T) {
	sch, err := schematic.ParseFile("../schematic/testdata/divider.kicad_sch")
	require.NoError(t, err)

	r1, ok := sch.ComponentByReference("R1")
	require.True(t, ok)
	def, err := sch.Resolver().Resolve(r1.LibID)
	require.NoError(t, err)

	p1, err := ResolvePinPosition(r1, "1", def)
	require.NoError(t, err)
	assert.InDelta(t, 100.33, p1.X, tolerance)
	assert.InDelta(t, 45.72, p1.Y, tolerance)

	p2, err := ResolvePinPosition(r1, "2", def)
	require.NoError(t, err)
	assert.InDelta(t, 53.34, p2.Y, tolerance)
}
