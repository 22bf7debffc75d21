package query

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/bmatcuk/doublestar/v4"

	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/collection"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/schematic"
)

var selectorParser = participle.MustBuild[Expression](
	participle.Lexer(SelectorLexer),
	participle.Elide("Whitespace"),
	participle.Unquote("String"),
	participle.UseLookahead(2),
)

// numeric comparisons treat values this close as equal
const epsilon = 1e-6

type kind int

const (
	kindString kind = iota
	kindNumber
	kindBool
)

type fieldDef struct {
	kind kind
	str  func(*schematic.Component) string
	num  func(*schematic.Component) float64
	flag func(*schematic.Component) bool
}

var fields = map[string]fieldDef{
	"ref":       {kind: kindString, str: (*schematic.Component).Reference},
	"reference": {kind: kindString, str: (*schematic.Component).Reference},
	"value":     {kind: kindString, str: (*schematic.Component).Value},
	"footprint": {kind: kindString, str: (*schematic.Component).Footprint},
	"lib_id":    {kind: kindString, str: func(c *schematic.Component) string { return c.LibID }},
	"uuid":      {kind: kindString, str: func(c *schematic.Component) string { return string(c.UUID) }},
	"mirror":    {kind: kindString, str: func(c *schematic.Component) string { return string(c.Mirror) }},
	"x":         {kind: kindNumber, num: func(c *schematic.Component) float64 { return c.Position.X }},
	"y":         {kind: kindNumber, num: func(c *schematic.Component) float64 { return c.Position.Y }},
	"rotation":  {kind: kindNumber, num: func(c *schematic.Component) float64 { return float64(c.Rotation) }},
	"unit":      {kind: kindNumber, num: func(c *schematic.Component) float64 { return float64(c.Unit) }},
	"dnp":       {kind: kindBool, flag: func(c *schematic.Component) bool { return c.DNP }},
	"in_bom":    {kind: kindBool, flag: func(c *schematic.Component) bool { return c.InBOM }},
	"on_board":  {kind: kindBool, flag: func(c *schematic.Component) bool { return c.OnBoard }},
	"power":     {kind: kindBool, flag: (*schematic.Component).IsPower},
}

// Query is a compiled component selector
type Query struct {
	source string
	match  matcher
}

type matcher = func(*schematic.Component) bool

// Compile parses a selector such as
//
//	ref ~ R* and value = 10k and not dnp
//	lib_id ~ "Device:C*" and (x < 100 or prop.MPN = "")
//
// Fields: ref, value, footprint, lib_id, uuid, mirror (text); x, y,
// rotation, unit (numbers); dnp, in_bom, on_board, power (flags). Any other
// property is reached as prop.<Name> or by its quoted name. Operators are
// = and != (equality), ~ and !~ (doublestar glob) and < <= > >= on numbers.
// A flag alone tests true.
func Compile(selector string) (*Query, error) {
	ast, err := selectorParser.ParseString("", selector)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	m, err := compileExpression(ast)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	return &Query{source: selector, match: m}, nil
}

// MustCompile is like Compile but panics on error
func MustCompile(selector string) *Query {
	q, err := Compile(selector)
	if err != nil {
		panic(err)
	}
	return q
}

// Match reports whether c is selected
func (q *Query) Match(c *schematic.Component) bool {
	return q.match(c)
}

// Predicate adapts the query for collection filters and bulk updates
func (q *Query) Predicate() collection.Predicate[*schematic.Component] {
	return q.match
}

// Select returns the components of sch matching q in file order
func (q *Query) Select(sch *schematic.Schematic) []*schematic.Component {
	return sch.Components.Filter(q.match)
}

func (q *Query) String() string {
	return q.source
}

func compileExpression(e *Expression) (matcher, error) {
	terms := make([]matcher, 0, len(e.Terms))
	for _, t := range e.Terms {
		m, err := compileConjunction(t)
		if err != nil {
			return nil, err
		}
		terms = append(terms, m)
	}
	if len(terms) == 1 {
		return terms[0], nil
	}
	return func(c *schematic.Component) bool {
		for _, m := range terms {
			if m(c) {
				return true
			}
		}
		return false
	}, nil
}

func compileConjunction(e *Conjunction) (matcher, error) {
	factors := make([]matcher, 0, len(e.Factors))
	for _, f := range e.Factors {
		m, err := compileFactor(f)
		if err != nil {
			return nil, err
		}
		factors = append(factors, m)
	}
	if len(factors) == 1 {
		return factors[0], nil
	}
	return func(c *schematic.Component) bool {
		for _, m := range factors {
			if !m(c) {
				return false
			}
		}
		return true
	}, nil
}

func compileFactor(f *Factor) (matcher, error) {
	switch {
	case f.Not != nil:
		m, err := compileFactor(f.Not)
		if err != nil {
			return nil, err
		}
		return func(c *schematic.Component) bool { return !m(c) }, nil
	case f.Group != nil:
		return compileExpression(f.Group)
	default:
		return compileCondition(f.Condition)
	}
}

func compileCondition(cond *Condition) (matcher, error) {
	def, err := lookupField(cond.Field)
	if err != nil {
		return nil, err
	}

	if cond.Op == "" {
		if def.kind != kindBool {
			return nil, fmt.Errorf("field %s needs an operator", cond.Field)
		}
		return def.flag, nil
	}
	value := cond.Value.Text

	switch def.kind {
	case kindBool:
		if cond.Op != "=" && cond.Op != "!=" {
			break
		}
		want, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %q is not a boolean", cond.Field, value)
		}
		negate := cond.Op == "!="
		return func(c *schematic.Component) bool { return (def.flag(c) == want) != negate }, nil

	case kindNumber:
		want, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("field %s: %q is not a number", cond.Field, value)
		}
		if cmp := numberComparison(cond.Op); cmp != nil {
			return func(c *schematic.Component) bool { return cmp(def.num(c), want) }, nil
		}

	case kindString:
		switch cond.Op {
		case "=":
			return func(c *schematic.Component) bool { return def.str(c) == value }, nil
		case "!=":
			return func(c *schematic.Component) bool { return def.str(c) != value }, nil
		case "~", "!~":
			if !doublestar.ValidatePattern(value) {
				return nil, fmt.Errorf("field %s: invalid pattern %q", cond.Field, value)
			}
			negate := cond.Op == "!~"
			return func(c *schematic.Component) bool {
				ok, _ := doublestar.Match(value, def.str(c))
				return ok != negate
			}, nil
		}
	}
	return nil, fmt.Errorf("operator %s does not apply to field %s", cond.Op, cond.Field)
}

func numberComparison(op string) func(a, b float64) bool {
	switch op {
	case "=":
		return func(a, b float64) bool { return math.Abs(a-b) < epsilon }
	case "!=":
		return func(a, b float64) bool { return math.Abs(a-b) >= epsilon }
	case "<":
		return func(a, b float64) bool { return a < b-epsilon }
	case "<=":
		return func(a, b float64) bool { return a < b+epsilon }
	case ">":
		return func(a, b float64) bool { return a > b+epsilon }
	case ">=":
		return func(a, b float64) bool { return a > b-epsilon }
	}
	return nil
}

func lookupField(f *Field) (fieldDef, error) {
	name := f.Property
	if f.Name != "" {
		if def, ok := fields[strings.ToLower(f.Name)]; ok {
			return def, nil
		}
		var found bool
		name, found = strings.CutPrefix(f.Name, "prop.")
		if !found || name == "" {
			return fieldDef{}, fmt.Errorf("unknown field %q", f.Name)
		}
	}
	return fieldDef{
		kind: kindString,
		str: func(c *schematic.Component) string {
			v, _ := c.Property(name)
			return v
		},
	}, nil
}

func (f *Field) String() string {
	if f.Name != "" {
		return f.Name
	}
	return strconv.Quote(f.Property)
}
