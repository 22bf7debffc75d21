package schematic

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/issue"
)

// singleResistor is a KiCad 8 schematic holding one resistor on the 1.27 mm grid
const singleResistor = `(kicad_sch
	(version 20231120)
	(generator "eeschema")
	(generator_version "8.0")
	(uuid "0b8e3c1a-2f4d-4e6b-9a7c-1d2e3f4a5b6c")
	(paper "A4")
	(lib_symbols)
	(symbol
		(lib_id "Device:R")
		(at 127 76.2 0)
		(unit 1)
		(exclude_from_sim no)
		(in_bom yes)
		(on_board yes)
		(dnp no)
		(uuid "9c8b7a6d-5e4f-4a3b-8c2d-1e0f9a8b7c6d")
		(property "Reference" "R1"
			(at 129.54 74.93 0)
			(effects
				(font
					(size 1.27 1.27)
				)
				(justify left)
			)
		)
		(property "Value" "10k"
			(at 129.54 77.47 0)
			(effects
				(font
					(size 1.27 1.27)
				)
				(justify left)
			)
		)
		(pin "1"
			(uuid "11111111-2222-4333-8444-555555555555")
		)
		(pin "2"
			(uuid "66666666-7777-4888-8999-aaaaaaaaaaaa")
		)
	)
	(sheet_instances
		(path "/"
			(page "1")
		)
	)
)
`

func serialize(t *testing.T, sch *Schematic, opts ...SaveOption) string {
	t.Helper()
	out, err := Serialize(sch, opts...)
	require.NoError(t, err)
	return string(out)
}

func TestRoundTripSingleResistor(t *testing.T) {
	sch, err := ParseString(singleResistor)
	require.NoError(t, err)

	r1, ok := sch.ComponentByReference("R1")
	require.True(t, ok)
	assert.Equal(t, "10k", r1.Value())
	assert.Equal(t, Position{X: 127, Y: 76.2}, r1.Position)

	assert.Equal(t, singleResistor, serialize(t, sch))
}

func TestRoundTripFixtures(t *testing.T) {
	for _, name := range []string{"divider.kicad_sch", "kicad6.kicad_sch"} {
		t.Run(name, func(t *testing.T) {
			sch, original := loadFixture(t, name)
			assert.Equal(t, original, serialize(t, sch))
		})
	}
}

func TestEditIsIdempotent(t *testing.T) {
	sch, _ := loadFixture(t, "divider.kicad_sch")
	r2, _ := sch.ComponentByReference("R2")
	r2.SetValue("3.3k")
	require.NoError(t, r2.SetRotation(90))
	_, err := sch.AddJunction(Position{X: 10, Y: 20})
	require.NoError(t, err)

	first := serialize(t, sch)
	reparsed, err := ParseString(first)
	require.NoError(t, err)
	assert.Equal(t, first, serialize(t, reparsed))
}

func TestSetValueTouchesOnlyTheValue(t *testing.T) {
	sch, original := loadFixture(t, "divider.kicad_sch")
	r1, _ := sch.ComponentByReference("R1")
	r1.SetValue("22k")

	want := strings.Replace(original, `(property "Value" "10k"`, `(property "Value" "22k"`, 1)
	assert.Equal(t, want, serialize(t, sch))
}

func TestMoveComponent(t *testing.T) {
	sch, original := loadFixture(t, "divider.kicad_sch")
	r1, _ := sch.ComponentByReference("R1")
	r1.SetPosition(Position{X: 102.87, Y: 49.53})

	want := strings.NewReplacer(
		"(at 100.33 49.53 0)", "(at 102.87 49.53 0)",
		"(at 102.87 48.2599 0)", "(at 105.41 48.2599 0)",
		"(at 102.87 50.7999 0)", "(at 105.41 50.7999 0)",
		"(at 98.552 49.53 90)", "(at 101.092 49.53 90)",
	).Replace(original)

	// the Datasheet property shares the symbol anchor; R2 sits at other coordinates
	assert.Equal(t, want, serialize(t, sch))
}

func TestBulkUpdatePrecision(t *testing.T) {
	sch, original := loadFixture(t, "divider.kicad_sch")
	footprint := "Resistor_SMD:R_0805_2012Metric"

	n, err := sch.UpdateComponents(ComponentCriteria{Reference: "R*"}, ComponentPatch{Footprint: &footprint})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	want := strings.ReplaceAll(original, `"Resistor_SMD:R_0603_1608Metric"`, `"`+footprint+`"`)
	assert.Equal(t, want, serialize(t, sch))
}

func TestRemoveElement(t *testing.T) {
	sch, original := loadFixture(t, "divider.kicad_sch")

	require.True(t, sch.Wires.Remove("a3f1e2d4-5b6c-4d7e-8f90-1a2b3c4d5e04"))

	start := strings.Index(original, "\n\t(wire\n\t\t(pts\n\t\t\t(xy 100.33 60.96)")
	require.Positive(t, start)
	end := strings.Index(original[start:], `(uuid "a3f1e2d4-5b6c-4d7e-8f90-1a2b3c4d5e04")`+"\n\t)")
	require.Positive(t, end)
	end += start + len(`(uuid "a3f1e2d4-5b6c-4d7e-8f90-1a2b3c4d5e04")`+"\n\t)")

	assert.Equal(t, original[:start]+original[end:], serialize(t, sch))
}

func TestAddJunctionAfterExisting(t *testing.T) {
	sch, original := loadFixture(t, "divider.kicad_sch")

	j, err := sch.AddJunction(Position{X: 1, Y: 2})
	require.NoError(t, err)

	anchor := `(uuid "0f6c2d8a-4b1e-4c55-9a0d-3e2f1b7c9d01")` + "\n\t)"
	idx := strings.Index(original, anchor) + len(anchor)
	inserted := "\n\t(junction\n\t\t(at 1 2)\n\t\t(diameter 0)\n\t\t(color 0 0 0 0)\n\t\t(uuid \"" + string(j.UUID) + "\")\n\t)"

	assert.Equal(t, original[:idx]+inserted+original[idx:], serialize(t, sch))
}

func TestAddLabelUsesCanonicalOrder(t *testing.T) {
	sch, err := ParseString(singleResistor)
	require.NoError(t, err)

	_, err = sch.AddLabel(HierarchicalLabel, "SDA", Position{X: 10, Y: 10}, DirBidirectional)
	require.NoError(t, err)
	out := serialize(t, sch)

	// no labels yet: the label lands between lib_symbols and the symbol
	lib := strings.Index(out, "\t(lib_symbols)")
	label := strings.Index(out, "\t(hierarchical_label \"SDA\"\n\t\t(shape bidirectional)\n\t\t(at 10 10 0)")
	symbol := strings.Index(out, "\t(symbol\n")
	require.Positive(t, label)
	assert.Less(t, lib, label)
	assert.Less(t, label, symbol)

	reparsed, err := ParseString(out)
	require.NoError(t, err)
	assert.Equal(t, 1, reparsed.Labels.Len())
}

func TestAddComponentRoundTrips(t *testing.T) {
	sch := New()

	c, err := sch.AddComponent("Device:R", "R7", "1k", Position{X: 50.8, Y: 25.4})
	require.NoError(t, err)
	c.SetMirror(MirrorY)
	_, err = sch.AddWire(Position{X: 50.8, Y: 21.59}, Position{X: 50.8, Y: 10.16})
	require.NoError(t, err)

	out := serialize(t, sch)
	reparsed, err := ParseString(out)
	require.NoError(t, err)

	r7, ok := reparsed.ComponentByReference("R7")
	require.True(t, ok)
	assert.Equal(t, "1k", r7.Value())
	assert.Equal(t, MirrorY, r7.Mirror)
	assert.Equal(t, Position{X: 50.8, Y: 25.4}, r7.Position)
	assert.Equal(t, c.UUID, r7.UUID)
	assert.Equal(t, 1, reparsed.Wires.Len())
	assert.Equal(t, out, serialize(t, reparsed))
}

func TestMirrorRemoval(t *testing.T) {
	input := "(kicad_sch (version 20231120)\n  (symbol (lib_id \"Device:R\") (at 1 2 0) (mirror x) (unit 1) (uuid \"s1\")\n    (property \"Reference\" \"R1\" (at 1 2 0))\n  )\n)\n"
	sch, err := ParseString(input)
	require.NoError(t, err)

	c := sch.Components.Items()[0]
	assert.Equal(t, MirrorX, c.Mirror)
	c.SetMirror(MirrorNone)

	want := "(kicad_sch (version 20231120)\n  (symbol (lib_id \"Device:R\") (at 1 2 0) (unit 1) (uuid \"s1\")\n    (property \"Reference\" \"R1\" (at 1 2 0))\n  )\n)\n"
	assert.Equal(t, want, serialize(t, sch))
}

func TestInvalidRotationFailsSerialize(t *testing.T) {
	sch, _ := loadFixture(t, "divider.kicad_sch")
	r1, _ := sch.ComponentByReference("R1")

	assert.ErrorIs(t, r1.SetRotation(45), ErrInvalidRotation)

	r1.Rotation = 45
	r1.MarkModified()
	_, err := Serialize(sch)
	assert.ErrorIs(t, err, ErrInvalidRotation)
}

func TestReferenceEditUpdatesInstances(t *testing.T) {
	t.Run("kicad 8", func(t *testing.T) {
		sch, original := loadFixture(t, "divider.kicad_sch")
		r2, _ := sch.ComponentByReference("R2")
		r2.SetReference("R20")

		want := strings.Replace(original, `(property "Reference" "R2"`, `(property "Reference" "R20"`, 1)
		want = strings.Replace(want, `(reference "R2")`, `(reference "R20")`, 1)
		assert.Equal(t, want, serialize(t, sch))
		assert.Equal(t, "R20", r2.Instances[0].Reference)
	})

	t.Run("kicad 6", func(t *testing.T) {
		sch, original := loadFixture(t, "kicad6.kicad_sch")
		c1, _ := sch.ComponentByReference("C1")
		c1.SetReference("C10")

		want := strings.Replace(original, `(property "Reference" "C1"`, `(property "Reference" "C10"`, 1)
		want = strings.Replace(want, `(reference "C1")`, `(reference "C10")`, 1)
		assert.Equal(t, want, serialize(t, sch))
	})
}

func TestReferenceEditKeepsOtherInstances(t *testing.T) {
	const instances = `		(instances
			(project "reuse"
				(path "/root/a"
					(reference "R1")
					(unit 1)
				)
				(path "/root/b"
					(reference "R101")
					(unit 1)
				)
			)
		)
`
	anchor := "\t\t(pin \"2\"\n\t\t\t(uuid \"66666666-7777-4888-8999-aaaaaaaaaaaa\")\n\t\t)\n"
	require.Contains(t, singleResistor, anchor)
	source := strings.Replace(singleResistor, anchor, anchor+instances, 1)

	sch, err := ParseString(source)
	require.NoError(t, err)
	r1, ok := sch.ComponentByReference("R1")
	require.True(t, ok)
	require.Len(t, r1.Instances, 2)

	r1.SetReference("R5")
	assert.Equal(t, "R5", r1.ReferenceAt("/root/a"))
	assert.Equal(t, "R101", r1.ReferenceAt("/root/b"))

	out := serialize(t, sch)
	want := strings.Replace(source, `(property "Reference" "R1"`, `(property "Reference" "R5"`, 1)
	want = strings.Replace(want, `(reference "R1")`, `(reference "R5")`, 1)
	assert.Equal(t, want, out)

	assert.True(t, r1.SetReferenceAt("/root/b", "R102"))
	assert.False(t, r1.SetReferenceAt("/root/c", "R103"))

	reparsed, err := ParseString(serialize(t, sch))
	require.NoError(t, err)
	r5, ok := reparsed.ComponentByReference("R5")
	require.True(t, ok)
	assert.Equal(t, "R5", r5.ReferenceAt("/root/a"))
	assert.Equal(t, "R102", r5.ReferenceAt("/root/b"))
}

func TestSerializeModes(t *testing.T) {
	sch, err := ParseString("(kicad_sch (version 20231120) (generator eeschema)\n  (junction (at 1.50 2) (diameter 0) (uuid \"j1\")))")
	require.NoError(t, err)

	assert.Equal(t,
		"(kicad_sch\n  (version 20231120)\n  (generator eeschema)\n  (junction\n    (at 1.5 2)\n    (diameter 0)\n    (uuid \"j1\")\n  )\n)\n",
		serialize(t, sch, WithMode(ModeClean)))
	assert.Equal(t,
		"(kicad_sch (version 20231120) (generator eeschema) (junction (at 1.50 2) (diameter 0) (uuid \"j1\")))\n",
		serialize(t, sch, WithMode(ModeCompact)))

	_, err = ParseMode("fancy")
	assert.Error(t, err)
	m, err := ParseMode("clean")
	require.NoError(t, err)
	assert.Equal(t, ModeClean, m)
}

// model strips document bookkeeping from the typed elements so two parses
// can be compared field by field
type model struct {
	Components []Component
	Wires      []Wire
	Junctions  []Junction
	NoConnects []NoConnect
	Labels     []Label
	Sheets     []Sheet
	SheetPins  [][]SheetPin
}

func modelOf(sch *Schematic) model {
	var m model
	for _, c := range sch.Components.Items() {
		v := *c
		v.element = element{}
		m.Components = append(m.Components, v)
	}
	for _, w := range sch.Wires.Items() {
		v := *w
		v.element = element{}
		m.Wires = append(m.Wires, v)
	}
	for _, j := range sch.Junctions.Items() {
		v := *j
		v.element = element{}
		m.Junctions = append(m.Junctions, v)
	}
	for _, nc := range sch.NoConnects.Items() {
		v := *nc
		v.element = element{}
		m.NoConnects = append(m.NoConnects, v)
	}
	for _, l := range sch.Labels.Items() {
		v := *l
		v.element = element{}
		m.Labels = append(m.Labels, v)
	}
	for _, s := range sch.Sheets.Items() {
		var pins []SheetPin
		for _, p := range s.Pins {
			pv := *p
			pv.raw = nil
			pins = append(pins, pv)
		}
		v := *s
		v.element = element{}
		v.Pins = nil
		m.Sheets = append(m.Sheets, v)
		m.SheetPins = append(m.SheetPins, pins)
	}
	return m
}

func TestReparseAcrossModes(t *testing.T) {
	for _, name := range []string{"divider.kicad_sch", "kicad6.kicad_sch"} {
		t.Run(name, func(t *testing.T) {
			sch, _ := loadFixture(t, name)
			sheet, err := sch.AddSheet("Filter", "filter.kicad_sch", Position{X: 160.02, Y: 50.8}, Size{Width: 20.32, Height: 10.16})
			require.NoError(t, err)
			_, err = sheet.AddPin("IN", DirInput, Position{X: 160.02, Y: 53.34})
			require.NoError(t, err)

			base, err := ParseString(serialize(t, sch))
			require.NoError(t, err)
			want := modelOf(base)
			require.NotEmpty(t, want.Components)
			require.Len(t, want.Sheets, 1)

			for _, mode := range []Mode{ModeClean, ModeCompact} {
				t.Run(mode.String(), func(t *testing.T) {
					reparsed, err := ParseString(serialize(t, base, WithMode(mode)))
					require.NoError(t, err)
					assert.Equal(t, want, modelOf(reparsed))
				})
			}
		})
	}
}

func TestWithGenerator(t *testing.T) {
	sch, original := loadFixture(t, "divider.kicad_sch")
	out := serialize(t, sch, WithGenerator("ots", "0.1"))

	want := strings.Replace(original, `(generator "eeschema")`, `(generator "ots")`, 1)
	want = strings.Replace(want, `(generator_version "8.0")`, `(generator_version "0.1")`, 1)
	assert.Equal(t, want, out)
}

func TestSaveFile(t *testing.T) {
	sch, original := loadFixture(t, "divider.kicad_sch")
	path := filepath.Join(t.TempDir(), "out.kicad_sch")

	require.NoError(t, sch.SaveFile(path))
	saved, err := ParseFile(path)
	require.NoError(t, err)

	out, err := saved.Bytes()
	require.NoError(t, err)
	assert.Equal(t, original, string(out))
}

func TestTitleBlockEdit(t *testing.T) {
	sch, err := ParseString(singleResistor)
	require.NoError(t, err)
	sch.TitleBlock.Title = "Bias"
	sch.TitleBlock.Comments[2] = "rev B"

	out := serialize(t, sch)
	assert.Contains(t, out, "\t(paper \"A4\")\n\t(title_block\n\t\t(title \"Bias\")\n\t\t(comment 2 \"rev B\")\n\t)\n")

	reparsed, err := ParseString(out)
	require.NoError(t, err)
	assert.Equal(t, "Bias", reparsed.TitleBlock.Title)
	assert.Equal(t, "rev B", reparsed.TitleBlock.Comments[2])
}

func TestEmbedSymbol(t *testing.T) {
	sch := New()
	src, err := ParseString(`(kicad_sch (version 20231120)
  (lib_symbols
    (symbol "Device:R" (symbol "R_1_1"
      (pin passive line (at 0 3.81 270) (length 1.27) (name "~") (number "1"))
      (pin passive line (at 0 -3.81 90) (length 1.27) (name "~") (number "2"))))))`)
	require.NoError(t, err)
	require.NoError(t, sch.EmbedSymbol(src.LibSymbols[0]))

	def, err := sch.Resolver().Resolve("Device:R")
	require.NoError(t, err)
	assert.Len(t, def.Pins, 2)

	c, err := sch.AddComponent("Device:R", "R1", "1k", Position{})
	require.NoError(t, err)
	assert.Len(t, c.Pins, 2)
	assert.Empty(t, sch.Validate().ByCode(issue.CodeMissingLibSymbol))
}
