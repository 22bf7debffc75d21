package sexp

import (
	"testing"

	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/sexp/kicadsexp"
)

// Helper to parse s-expression from string
func parseList(t *testing.T, input string) *kicadsexp.List {
	t.Helper()
	doc, err := kicadsexp.ParseString(input)
	if err != nil {
		t.Fatalf("Failed to parse s-expression %q: %v", input, err)
	}
	root, ok := doc.Root()
	if !ok {
		t.Fatalf("No list parsed from %q", input)
	}
	return root
}

func TestGetString(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		index   int
		want    string
		wantErr bool
	}{
		{
			name:  "get first element",
			input: "(lib_id Device:R)",
			index: 0,
			want:  "lib_id",
		},
		{
			name:  "get quoted element",
			input: `(lib_id "Device:R")`,
			index: 1,
			want:  "Device:R",
		},
		{
			name:  "get third element",
			input: "(at 100 50 90)",
			index: 3,
			want:  "90",
		},
		{
			name:    "index out of bounds",
			input:   "(lib_id x)",
			index:   5,
			wantErr: true,
		},
		{
			name:    "list instead of atom",
			input:   "(effects (font))",
			index:   1,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := parseList(t, tt.input)
			got, err := GetString(s, tt.index)
			if (err != nil) != tt.wantErr {
				t.Fatalf("GetString() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("GetString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetPosition(t *testing.T) {
	tests := []struct {
		input string
		want  PositionAngle
	}{
		{"(at 100.33 50.8 90)", PositionAngle{Position{100.33, 50.8}, 90}},
		{"(at -2.54 0)", PositionAngle{Position{-2.54, 0}, 0}},
	}

	for _, tt := range tests {
		got, err := GetPosition(parseList(t, tt.input))
		if err != nil {
			t.Fatalf("GetPosition(%s) error: %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("GetPosition(%s) = %+v, want %+v", tt.input, got, tt.want)
		}
	}

	if _, err := GetPosition(parseList(t, "(at x 1)")); err == nil {
		t.Error("expected error for non-numeric coordinate")
	}
}

func TestGetPoints(t *testing.T) {
	pts := parseList(t, "(pts (xy 0 0) (xy 2.54 0) (xy 2.54 5.08))")
	points, err := GetPoints(pts)
	if err != nil {
		t.Fatalf("GetPoints() error: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(points))
	}
	if points[2] != (Position{2.54, 5.08}) {
		t.Errorf("unexpected last point %+v", points[2])
	}
}

func TestGetEffects(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Effects
	}{
		{
			name:  "kicad 8",
			input: "(effects (font (size 1.27 1.27) (bold yes)) (justify left bottom) (hide yes))",
			want: Effects{
				Font:    Font{Size: Size{1.27, 1.27}, Bold: true},
				Justify: Justify{Horizontal: "left", Vertical: "bottom"},
				Hide:    true,
			},
		},
		{
			name:  "kicad 6",
			input: "(effects (font (size 1.27 1.27) italic) (justify right) hide)",
			want: Effects{
				Font:    Font{Size: Size{1.27, 1.27}, Italic: true},
				Justify: Justify{Horizontal: "right", Vertical: "center"},
				Hide:    true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GetEffects(parseList(t, tt.input))
			if err != nil {
				t.Fatalf("GetEffects() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("GetEffects() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestGetProperty(t *testing.T) {
	prop, err := GetProperty(parseList(t, `(property "Reference" "R1" (id 0) (at 101.6 48.26 0) (effects (font (size 1.27 1.27))))`))
	if err != nil {
		t.Fatalf("GetProperty() error: %v", err)
	}
	if prop.Key != "Reference" || prop.Value != "R1" || prop.ID != 0 {
		t.Errorf("unexpected property %+v", prop)
	}
	if prop.Position.X != 101.6 || prop.Position.Y != 48.26 {
		t.Errorf("unexpected position %+v", prop.Position)
	}
}

func TestSetFloatKeepsEqualText(t *testing.T) {
	at := parseList(t, "(at 100.330 50.80 0)")

	if SetFloat(at, 1, 100.33) {
		t.Error("SetFloat reported a change for an equal value")
	}
	if SetPosition(at, PositionAngle{Position{100.33, 50.8}, 0}, true) {
		t.Error("SetPosition reported a change for an equal position")
	}
	if got := at.String(); got != "(at 100.330 50.80 0)" {
		t.Errorf("text changed to %s", got)
	}

	if !SetPosition(at, PositionAngle{Position{100.33, 55.88}, 90}, false) {
		t.Error("SetPosition did not report a change")
	}
	if got := at.String(); got != "(at 100.330 55.88 90)" {
		t.Errorf("got %s", got)
	}
}

func TestSetStringTreatsSymbolAsEqual(t *testing.T) {
	gen := parseList(t, "(generator eeschema)")
	if SetString(gen, 1, "eeschema") {
		t.Error("SetString replaced an equal bare symbol")
	}
	if !SetString(gen, 1, "ots") {
		t.Error("SetString did not report a change")
	}
	if got := gen.String(); got != `(generator "ots")` {
		t.Errorf("got %s", got)
	}
}

func TestSetYesNo(t *testing.T) {
	sym := parseList(t, "(symbol (in_bom yes))")
	if SetYesNo(sym, "in_bom", true) {
		t.Error("unchanged flag reported as changed")
	}
	if !SetYesNo(sym, "dnp", true) {
		t.Error("new flag not reported")
	}
	if !GetBool(sym, "dnp", false) {
		t.Error("dnp flag not written")
	}
}

func TestBuilders(t *testing.T) {
	wire := kicadsexp.NewList("wire",
		NewPoints([]Position{{0, 0}, {2.54, 0}}),
		NewStroke(DefaultStroke),
		NewUUIDNode("u1"),
	)
	want := `(wire (pts (xy 0 0) (xy 2.54 0)) (stroke (width 0) (type default)) (uuid "u1"))`
	if got := wire.String(); got != want {
		t.Errorf("got %s, want %s", got, want)
	}

	effects := NewEffects(Effects{Font: Font{Size: Size{1.27, 1.27}}, Justify: Justify{Horizontal: "left", Vertical: "bottom"}})
	if got := effects.String(); got != "(effects (font (size 1.27 1.27)) (justify left bottom))" {
		t.Errorf("got %s", got)
	}
}

func TestBoundingBox(t *testing.T) {
	bb := Rect(Position{10, 20}, Position{0, 0})
	if bb.Min != (Position{0, 0}) || bb.Max != (Position{10, 20}) {
		t.Errorf("Rect not normalized: %+v", bb)
	}
	if !bb.Contains(Position{5, 5}) || bb.Contains(Position{11, 5}) {
		t.Error("Contains mismatch")
	}
	if !bb.ContainsBox(Rect(Position{1, 1}, Position{2, 2})) {
		t.Error("ContainsBox mismatch")
	}
	if NewBoundingBox().IsEmpty() != true {
		t.Error("new bounding box should be empty")
	}
}
