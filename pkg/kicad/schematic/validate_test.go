package schematic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/issue"
)

func TestValidateCleanFixture(t *testing.T) {
	sch, _ := loadFixture(t, "divider.kicad_sch")
	assert.Empty(t, sch.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		codes []string
	}{
		{
			name: "duplicate reference",
			input: `(kicad_sch (version 20231120)
  (symbol (lib_id "Device:R") (at 0 0 0) (unit 1) (uuid "a")
    (property "Reference" "R1" (at 0 0 0)))
  (symbol (lib_id "Device:C") (at 10 0 0) (unit 1) (uuid "b")
    (property "Reference" "R1" (at 10 0 0))))`,
			codes: []string{issue.CodeDuplicateReference, issue.CodeMissingLibSymbol, issue.CodeMissingLibSymbol},
		},
		{
			name: "units of one part",
			input: `(kicad_sch (version 20231120)
  (lib_symbols (symbol "Amp:Dual"))
  (symbol (lib_id "Amp:Dual") (at 0 0 0) (unit 1) (uuid "a")
    (property "Reference" "U1" (at 0 0 0)))
  (symbol (lib_id "Amp:Dual") (at 10 0 0) (unit 2) (uuid "b")
    (property "Reference" "U1" (at 10 0 0))))`,
		},
		{
			name: "same unit twice",
			input: `(kicad_sch (version 20231120)
  (lib_symbols (symbol "Amp:Dual"))
  (symbol (lib_id "Amp:Dual") (at 0 0 0) (unit 1) (uuid "a")
    (property "Reference" "U1" (at 0 0 0)))
  (symbol (lib_id "Amp:Dual") (at 10 0 0) (unit 1) (uuid "b")
    (property "Reference" "U1" (at 10 0 0))))`,
			codes: []string{issue.CodeDuplicateReference},
		},
		{
			name: "power symbols share references",
			input: `(kicad_sch (version 20231120)
  (lib_symbols (symbol "power:GND"))
  (symbol (lib_id "power:GND") (at 0 0 0) (unit 1) (uuid "a")
    (property "Reference" "#PWR?" (at 0 0 0)))
  (symbol (lib_id "power:GND") (at 10 0 0) (unit 1) (uuid "b")
    (property "Reference" "#PWR?" (at 10 0 0))))`,
		},
		{
			name: "degenerate wire",
			input: `(kicad_sch (version 20231120)
  (wire (pts (xy 0 0)) (uuid "w")))`,
			codes: []string{issue.CodeDegenerateWire},
		},
		{
			name: "invalid rotation",
			input: `(kicad_sch (version 20231120)
  (lib_symbols (symbol "Device:R"))
  (symbol (lib_id "Device:R") (at 0 0 45) (unit 1) (uuid "a")
    (property "Reference" "R1" (at 0 0 0))))`,
			codes: []string{issue.CodeInvalidRotation},
		},
		{
			name: "duplicate uuid",
			input: `(kicad_sch (version 20231120)
  (junction (at 0 0) (uuid "x"))
  (label "A" (at 0 0 0) (uuid "x")))`,
			codes: []string{issue.CodeDuplicateUUID},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sch, err := ParseString(tt.input)
			require.NoError(t, err)

			var codes []string
			for _, i := range sch.Validate() {
				codes = append(codes, i.Code)
			}
			assert.ElementsMatch(t, tt.codes, codes)
		})
	}
}

func TestValidateTracksEdits(t *testing.T) {
	sch, _ := loadFixture(t, "divider.kicad_sch")
	r2, _ := sch.ComponentByReference("R2")
	r2.SetReference("R1")

	issues := sch.Validate()
	require.Len(t, issues, 1)
	assert.Equal(t, issue.CodeDuplicateReference, issues[0].Code)
	assert.Equal(t, issue.Error, issues[0].Severity)
	assert.True(t, issues.HasErrors())
	assert.Equal(t, []string{"re-annotate the schematic"}, issues[0].Suggestions)

	r2.SetReference("R2")
	assert.Empty(t, sch.Validate())
}
