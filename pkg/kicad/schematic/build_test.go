package schematic

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSchematic(t *testing.T) {
	sch := New()
	assert.Equal(t, DefaultVersion, sch.Version)
	assert.True(t, sch.IsRoot())

	out := serialize(t, sch)
	assert.True(t, strings.HasPrefix(out, "(kicad_sch\n\t(version 20231120)\n\t(generator \"eeschema\")\n"))

	reparsed, err := ParseString(out)
	require.NoError(t, err)
	assert.Equal(t, sch.UUID, reparsed.UUID)
	assert.Equal(t, "A4", reparsed.Paper)
	assert.Equal(t, out, serialize(t, reparsed))
}

func TestAddWireNeedsTwoPoints(t *testing.T) {
	sch := New()
	_, err := sch.AddWire(Position{X: 1, Y: 1})
	assert.Error(t, err)
	_, err = sch.AddBus()
	assert.Error(t, err)
	assert.Equal(t, 0, sch.Wires.Len())
}

func TestAddBusAndEntries(t *testing.T) {
	sch := New()
	bus, err := sch.AddBus(Position{X: 0, Y: 0}, Position{X: 0, Y: 25.4})
	require.NoError(t, err)
	assert.True(t, bus.IsBus())
	_, err = sch.AddNoConnect(Position{X: 5.08, Y: 5.08})
	require.NoError(t, err)

	reparsed, err := ParseString(serialize(t, sch))
	require.NoError(t, err)
	require.Equal(t, 1, reparsed.Buses.Len())
	assert.Equal(t, 0, reparsed.Wires.Len())
	assert.True(t, reparsed.Buses.Items()[0].IsBus())
	assert.Equal(t, 1, reparsed.NoConnects.Len())
}

func TestAddSheetWithPins(t *testing.T) {
	sch := New()
	sheet, err := sch.AddSheet("Power", "power.kicad_sch", Position{X: 50.8, Y: 50.8}, Size{Width: 25.4, Height: 15.24})
	require.NoError(t, err)

	_, err = sheet.AddPin("VIN", DirInput, Position{X: 50.8, Y: 55.88})
	require.NoError(t, err)
	out, err := sheet.AddPin("VOUT", DirOutput, Position{X: 76.2, Y: 55.88})
	require.NoError(t, err)
	assert.Equal(t, Angle(0), out.Rotation)
	_, err = sheet.AddPin("VIN", DirInput, Position{X: 50.8, Y: 58.42})
	assert.Error(t, err)

	reparsed, err := ParseString(serialize(t, sch))
	require.NoError(t, err)
	require.Equal(t, 1, reparsed.Sheets.Len())

	got := reparsed.Sheets.Items()[0]
	assert.Equal(t, "Power", got.Name)
	assert.Equal(t, "power.kicad_sch", got.File)
	assert.Equal(t, Size{Width: 25.4, Height: 15.24}, got.Size)
	require.Len(t, got.Pins, 2)

	vin, ok := got.Pin("VIN")
	require.True(t, ok)
	assert.Equal(t, DirInput, vin.Direction)
	assert.Equal(t, Angle(180), vin.Rotation)
	assert.Equal(t, Position{X: 50.8, Y: 55.88}, vin.Position)
}

func TestEditParsedSheet(t *testing.T) {
	input := `(kicad_sch (version 20231120)
  (sheet (at 10 10) (size 20 10)
    (uuid "s1")
    (property "Sheetname" "Old" (at 10 9 0))
    (property "Sheetfile" "old.kicad_sch" (at 10 21 0))
    (pin "A" input (at 10 12 180) (uuid "p1"))
    (pin "B" output (at 30 12 0) (uuid "p2"))
  )
)
`
	sch, err := ParseString(input)
	require.NoError(t, err)
	sheet := sch.Sheets.Items()[0]

	sheet.Name = "New"
	assert.True(t, sheet.RemovePin("A"))
	assert.False(t, sheet.RemovePin("missing"))
	b, _ := sheet.Pin("B")
	b.Direction = DirBidirectional
	sheet.MarkModified()

	want := `(kicad_sch (version 20231120)
  (sheet (at 10 10) (size 20 10)
    (uuid "s1")
    (property "Sheetname" "New" (at 10 9 0))
    (property "Sheetfile" "old.kicad_sch" (at 10 21 0))
    (pin "B" bidirectional (at 30 12 0) (uuid "p2"))
  )
)
`
	assert.Equal(t, want, serialize(t, sch))
}

func TestLabelsAndQueries(t *testing.T) {
	sch, _ := loadFixture(t, "divider.kicad_sch")
	before := sch.Revision()

	l, err := sch.AddLabel(GlobalLabel, "VIN", Position{X: 20, Y: 20}, "")
	require.NoError(t, err)
	assert.Equal(t, DirPassive, l.Shape)
	assert.Greater(t, sch.Revision(), before)

	assert.Len(t, sch.AllLabels(GlobalLabel), 2)
	assert.Len(t, sch.AllLabels(), 3)
	assert.Equal(t, []string{"VOUT", "VIN"}, sch.LabelNames())

	bbox := sch.BoundingBox()
	assert.Equal(t, Position{X: 20, Y: 20}, bbox.Min)
	assert.Equal(t, Position{X: 130.81, Y: 82.55}, bbox.Max)

	l.SetText("VBAT")
	reparsed, err := ParseString(serialize(t, sch))
	require.NoError(t, err)
	assert.Equal(t, []string{"VOUT", "VIN", "VBAT"}, reparsed.LabelNames())
}

func TestRemoveComponentKeepsNeighbours(t *testing.T) {
	sch, _ := loadFixture(t, "divider.kicad_sch")
	r2, _ := sch.ComponentByReference("R2")
	require.True(t, sch.Components.RemoveItem(r2))

	_, ok := sch.ComponentByReference("R2")
	assert.False(t, ok)

	out := serialize(t, sch)
	assert.NotContains(t, out, `"R2"`)
	assert.Contains(t, out, `(reference "R1")`)
	assert.Contains(t, out, `(reference "#PWR01")`)

	reparsed, err := ParseString(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"R1", "#PWR01"}, reparsed.References())
}
