package kicadsexp

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSchematic = `(kicad_sch
	(version 20231120)
	(generator "eeschema")
	(generator_version "8.0")
	(uuid "a1b2c3d4-0000-0000-0000-000000000001")
	(paper "A4")
	(wire
		(pts
			(xy 100.33 50.8) (xy 120 50.8)
		)
		(stroke
			(width 0)
			(type default)
		)
		(uuid "a1b2c3d4-0000-0000-0000-000000000002")
	)
	(label "VCC \"main\""
		(at 100.330 50.80 0)
		(effects
			(font
				(size 1.27 1.27)
			)
			(justify left bottom)
		)
		(uuid "a1b2c3d4-0000-0000-0000-000000000003")
	)
)
`

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"kicad 8 tabs", sampleSchematic},
		{"kicad 6 spaces", "(kicad_sch (version 20211123) (generator eeschema)\n\n  (uuid 1)\n\n  (paper \"A4\")\n  (junction (at 1.0 2.00) (diameter 0) (color 0 0 0 0))\n)\n"},
		{"no trailing newline", "(a (b 1) (c \"x\"))"},
		{"crlf line endings", "(a\r\n  (b 1)\r\n  (c 2.50)\r\n)\r\n"},
		{"byte order mark", "\uFEFF(kicad_sch (version 20231120))\n"},
		{"unicode string", "(label \"µC Ω\" (at 0 0 0))\n"},
		{"trailing blank lines", "(a)\n\n\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ParseString(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.input, doc.String())

			// printing again from a re-parse is stable
			again, err := ParseString(doc.String())
			require.NoError(t, err)
			assert.Equal(t, tt.input, again.String())
		})
	}
}

func TestParseAtoms(t *testing.T) {
	doc, err := ParseString(`(at 100.330 -5 0) (name "a\\b\"c\nd") (flag yes) (big 1e3)`)
	require.NoError(t, err)
	require.Len(t, doc.Items, 4)

	at := doc.Items[0].(*List)
	assert.Equal(t, "at", at.Tag())

	x, _ := at.Atom(1)
	assert.Equal(t, KindFloat, x.Kind)
	assert.Equal(t, "100.330", x.Text)
	f, err := x.Float()
	require.NoError(t, err)
	assert.InDelta(t, 100.33, f, 1e-9)

	y, _ := at.Atom(2)
	assert.Equal(t, KindInt, y.Kind)
	n, err := y.Int()
	require.NoError(t, err)
	assert.Equal(t, -5, n)

	name, _ := doc.Items[1].(*List).Atom(1)
	assert.Equal(t, KindString, name.Kind)
	assert.Equal(t, "a\\b\"c\nd", name.Value)
	assert.Equal(t, `"a\\b\"c\nd"`, name.Text)

	flag, _ := doc.Items[2].(*List).Atom(1)
	assert.Equal(t, KindSymbol, flag.Kind)

	big, _ := doc.Items[3].(*List).Atom(1)
	assert.Equal(t, KindFloat, big.Kind)
}

func TestParsePositions(t *testing.T) {
	doc, err := ParseString("(a\n  (b 1)\n  (c 2))")
	require.NoError(t, err)

	root, ok := doc.Root()
	require.True(t, ok)
	c, ok := root.Find("c")
	require.True(t, ok)
	assert.Equal(t, 3, c.Pos.Line)
	assert.Equal(t, 3, c.Pos.Column)
	assert.Equal(t, "  ", doc.Indent)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		line   int
		column int
		msg    string
	}{
		{"empty input", "", 1, 1, "empty document"},
		{"whitespace only", "  \n ", 2, 2, "empty document"},
		{"unbalanced", "(kicad_sch\n  (version 1)", 1, 1, "unexpected EOF in list"},
		{"stray close", "(a))", 1, 4, "unexpected ')'"},
		{"unterminated string", "(a\n \"abc", 2, 2, "unterminated string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseString(tt.input)
			require.Error(t, err)

			var pe *ParseError
			require.True(t, errors.As(err, &pe), "expected *ParseError, got %T", err)
			assert.Equal(t, tt.line, pe.Line)
			assert.Equal(t, tt.column, pe.Column)
			assert.Contains(t, pe.Message, tt.msg)
		})
	}
}

func TestParseReader(t *testing.T) {
	doc, err := Parse(strings.NewReader(sampleSchematic))
	require.NoError(t, err)
	assert.Equal(t, "\t", doc.Indent)

	root, ok := doc.Root()
	require.True(t, ok)
	assert.Equal(t, "kicad_sch", root.Tag())
	assert.Len(t, root.FindAll("wire"), 1)
	assert.Len(t, root.Lists(), 7)
}
