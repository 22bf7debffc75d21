package schematic

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/sexp"
)

func TestComponentCriteria(t *testing.T) {
	sch, _ := loadFixture(t, "divider.kicad_sch")
	upper := sexp.Rect(Position{X: 90, Y: 40}, Position{X: 110, Y: 60})

	tests := []struct {
		name     string
		criteria ComponentCriteria
		want     []string
	}{
		{"everything", ComponentCriteria{}, []string{"R1", "R2", "#PWR01"}},
		{"reference glob", ComponentCriteria{Reference: "R*"}, []string{"R1", "R2"}},
		{"power glob", ComponentCriteria{Reference: "#PWR*"}, []string{"#PWR01"}},
		{"value", ComponentCriteria{Value: "4.7k"}, []string{"R2"}},
		{"lib id glob", ComponentCriteria{LibID: "power:*"}, []string{"#PWR01"}},
		{"property", ComponentCriteria{Properties: map[string]string{"Footprint": "Resistor_SMD:R_0603_1608Metric"}}, []string{"R1", "R2"}},
		{"region", ComponentCriteria{Region: &upper}, []string{"R1"}},
		{"combined", ComponentCriteria{Reference: "R*", Value: "10k"}, []string{"R1"}},
		{"no match", ComponentCriteria{Reference: "U*"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, c := range sch.FindComponents(tt.criteria) {
				got = append(got, c.Reference())
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCriteriaValidate(t *testing.T) {
	assert.NoError(t, ComponentCriteria{Reference: "R[0-9]*"}.Validate())
	assert.Error(t, ComponentCriteria{Reference: "R[0-9"}.Validate())

	sch, _ := loadFixture(t, "divider.kicad_sch")
	value := "1k"
	_, err := sch.UpdateComponents(ComponentCriteria{LibID: "Device:["}, ComponentPatch{Value: &value})
	assert.Error(t, err)
}

func TestUpdateComponents(t *testing.T) {
	sch, _ := loadFixture(t, "divider.kicad_sch")
	dnp := true
	rotation := Angle(-90)

	n, err := sch.UpdateComponents(
		ComponentCriteria{Value: "4.7k"},
		ComponentPatch{DNP: &dnp, Rotation: &rotation, Properties: map[string]string{"MPN": "RC0603FR-074K7L", "Datasheet": ""}},
	)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	r2, _ := sch.ComponentByReference("R2")
	assert.True(t, r2.DNP)
	assert.Equal(t, Angle(270), r2.Rotation)
	mpn, ok := r2.Property("MPN")
	assert.True(t, ok)
	assert.Equal(t, "RC0603FR-074K7L", mpn)
	_, ok = r2.Property("Datasheet")
	assert.False(t, ok)

	out := serialize(t, sch)
	reparsed, err := ParseString(out)
	require.NoError(t, err)
	r2, _ = reparsed.ComponentByReference("R2")
	assert.True(t, r2.DNP)
	assert.Equal(t, Angle(270), r2.Rotation)
	mpn, _ = r2.Property("MPN")
	assert.Equal(t, "RC0603FR-074K7L", mpn)
	_, ok = r2.Property("Datasheet")
	assert.False(t, ok)

	// R1 is untouched
	r1, _ := reparsed.ComponentByReference("R1")
	_, ok = r1.Property("Datasheet")
	assert.True(t, ok)
}

func TestPatchOutputIsStable(t *testing.T) {
	run := func() string {
		sch, err := ParseString(singleResistor)
		require.NoError(t, err)
		_, err = sch.UpdateComponents(
			ComponentCriteria{Reference: "R1"},
			ComponentPatch{Properties: map[string]string{"D": "4", "B": "2", "A": "1", "C": "3"}},
		)
		require.NoError(t, err)
		sch.TitleBlock.Comments[4] = "four"
		sch.TitleBlock.Comments[1] = "one"
		sch.TitleBlock.Comments[3] = "three"
		return serialize(t, sch)
	}

	first := run()
	for i := 0; i < 20; i++ {
		require.Equal(t, first, run())
	}

	inOrder := func(keys ...string) {
		last := -1
		for _, key := range keys {
			i := strings.Index(first, key)
			require.GreaterOrEqual(t, i, 0, key)
			assert.Greater(t, i, last, key)
			last = i
		}
	}
	inOrder(`(property "A" "1"`, `(property "B" "2"`, `(property "C" "3"`, `(property "D" "4"`)
	inOrder(`(comment 1 "one")`, `(comment 3 "three")`, `(comment 4 "four")`)
}

func TestUpdateComponentsRejectsBadPatch(t *testing.T) {
	sch, original := loadFixture(t, "divider.kicad_sch")
	rotation := Angle(30)
	mirror := Mirror("z")

	_, err := sch.UpdateComponents(ComponentCriteria{}, ComponentPatch{Rotation: &rotation})
	assert.ErrorIs(t, err, ErrInvalidRotation)
	_, err = sch.UpdateComponents(ComponentCriteria{}, ComponentPatch{Mirror: &mirror})
	assert.Error(t, err)

	assert.Equal(t, original, serialize(t, sch))
}

func TestRenameUpdatesIndex(t *testing.T) {
	sch, _ := loadFixture(t, "divider.kicad_sch")
	ref := "R10"

	n, err := sch.UpdateComponents(ComponentCriteria{Reference: "R1"}, ComponentPatch{Reference: &ref})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok := sch.ComponentByReference("R1")
	assert.False(t, ok)
	c, ok := sch.ComponentByReference("R10")
	require.True(t, ok)
	assert.Equal(t, "10k", c.Value())
	assert.Len(t, sch.ComponentsByLibID("Device:R"), 2)
}
