package connectivity

import (
	"fmt"
	"strconv"
	"unicode"

	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/schematic"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/sexp"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/sexp/kicadsexp"
)

// PinRef identifies a component pin
type PinRef struct {
	Path      string         `json:"path,omitempty"`
	Reference string         `json:"reference"`
	Pin       string         `json:"pin"`
	Name      string         `json:"name,omitempty"`
	UUID      schematic.UUID `json:"uuid"`
}

func (p PinRef) String() string {
	return p.Reference + "." + p.Pin
}

func (p PinRef) less(o PinRef) bool {
	if p.Path != o.Path {
		return p.Path < o.Path
	}
	if p.Reference != o.Reference {
		return naturalLess(p.Reference, o.Reference)
	}
	return naturalLess(p.Pin, o.Pin)
}

// Net is a set of electrically equivalent points
type Net struct {
	Name      string          `json:"name"`
	Pins      []PinRef        `json:"pins"`
	Labels    []string        `json:"labels,omitempty"`
	SheetPins []string        `json:"sheet_pins,omitempty"`
	Positions []sexp.Position `json:"-"`
	NoConnect bool            `json:"no_connect,omitempty"`
}

// HasPin reports whether ref/pin is on the net
func (n *Net) HasPin(ref, pin string) bool {
	for _, p := range n.Pins {
		if p.Reference == ref && p.Pin == pin {
			return true
		}
	}
	return false
}

// Name classes, best first
const (
	classGlobal = iota
	classLocal
	classHierarchical
	classCount
)

// nameCandidates keeps the smallest name offered per class
type nameCandidates [classCount]string

func newNameCandidates() *nameCandidates {
	return &nameCandidates{}
}

func (c *nameCandidates) offer(class int, name string) {
	if name == "" {
		return
	}
	if c[class] == "" || name < c[class] {
		c[class] = name
	}
}

func (c *nameCandidates) best() string {
	for _, name := range c {
		if name != "" {
			return name
		}
	}
	return ""
}

// fallbackName names an unlabelled net after its first pin, or after its
// first point when it has no pins
func fallbackName(n *Net) string {
	if len(n.Pins) > 0 {
		p := n.Pins[0]
		return fmt.Sprintf("Net-(%s-Pad%s)", p.Reference, p.Pin)
	}
	if len(n.Positions) > 0 {
		p := n.Positions[0]
		return fmt.Sprintf("Net-(%s,%s)", kicadsexp.FormatFloat(p.X), kicadsexp.FormatFloat(p.Y))
	}
	return "Net-()"
}

// naturalLess orders strings with embedded numbers numerically: R2 < R10
func naturalLess(a, b string) bool {
	for a != "" && b != "" {
		ca, cb := rune(a[0]), rune(b[0])
		if unicode.IsDigit(ca) && unicode.IsDigit(cb) {
			na, restA := leadingNumber(a)
			nb, restB := leadingNumber(b)
			if na != nb {
				return na < nb
			}
			a, b = restA, restB
			continue
		}
		if ca != cb {
			return ca < cb
		}
		a, b = a[1:], b[1:]
	}
	return len(a) < len(b)
}

func leadingNumber(s string) (uint64, string) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	n, err := strconv.ParseUint(s[:i], 10, 64)
	if err != nil {
		n = ^uint64(0)
	}
	return n, s[i:]
}
