package kicadsexp

import (
	"bytes"
	"io"
	"math"
	"strconv"
	"strings"
)

// Style selects how a whole document is laid out by Format
type Style int

const (
	// StyleClean re-lays out every node the way KiCad 8 writes files
	StyleClean Style = iota
	// StyleCompact writes every top-level expression on a single line
	StyleCompact
)

// NumberStyle controls how numeric atoms of a tag are rendered by the formatter
type NumberStyle int

const (
	NumbersKeep NumberStyle = iota
	// NumbersFloat re-renders every number with FormatFloat
	NumbersFloat
	// NumbersColor renders r, g, b as integers and alpha with FormatFloat
	NumbersColor
)

// WriteFunc lays out a list at the given depth. The opening parenthesis is
// written by the func itself.
type WriteFunc func(f *Formatter, b *strings.Builder, l *List, depth int)

// Rule is the formatting rule for lists with a given tag
type Rule struct {
	Inline  bool // whole list on one line
	Numbers NumberStyle
	Write   WriteFunc
}

// Formatter lays out generated nodes and whole documents in clean style
type Formatter struct {
	Indent string
	Rules  map[string]Rule
}

var geometryTags = []string{
	"at", "xy", "size", "start", "end", "mid", "center",
	"width", "length", "diameter", "radius", "thickness", "offset",
}

// DefaultRules returns the KiCad 8 rule table
func DefaultRules() map[string]Rule {
	rules := make(map[string]Rule, len(geometryTags)+3)
	for _, tag := range geometryTags {
		rules[tag] = Rule{Inline: true, Numbers: NumbersFloat}
	}
	rules["color"] = Rule{Inline: true, Numbers: NumbersColor}
	rules["pts"] = Rule{Write: writePoints}
	rules["property"] = Rule{Write: writeProperty}
	return rules
}

// NewFormatter creates a formatter with the default rule table
func NewFormatter(indent string) *Formatter {
	if indent == "" {
		indent = "\t"
	}
	return &Formatter{
		Indent: indent,
		Rules:  DefaultRules(),
	}
}

// Format lays out the whole document in the given style
func Format(doc *Document, style Style) []byte {
	return NewFormatter(doc.Indent).Format(doc, style)
}

// Format lays out the whole document in the given style, ignoring source trivia
func (f *Formatter) Format(doc *Document, style Style) []byte {
	var b strings.Builder
	for i, item := range doc.Items {
		if i > 0 {
			if style == StyleCompact {
				b.WriteByte(' ')
			} else {
				b.WriteByte('\n')
			}
		}
		if style == StyleCompact {
			writeCompact(&b, item)
		} else {
			f.WriteNode(&b, item, 0)
		}
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

// WriteNode writes n in clean layout as if it were nested depth levels deep
func (f *Formatter) WriteNode(b *strings.Builder, n Node, depth int) {
	switch v := n.(type) {
	case *Atom:
		b.WriteString(v.Text)
	case *List:
		f.writeList(b, v, depth)
	}
}

func (f *Formatter) indent(b *strings.Builder, depth int) {
	b.WriteByte('\n')
	for i := 0; i < depth; i++ {
		b.WriteString(f.Indent)
	}
}

func (f *Formatter) writeList(b *strings.Builder, l *List, depth int) {
	rule := f.Rules[l.Tag()]
	if rule.Write != nil {
		rule.Write(f, b, l, depth)
		return
	}
	if rule.Inline || !hasChildList(l) {
		f.writeInline(b, l)
		return
	}

	b.WriteByte('(')
	f.writeHeader(b, l, rule)
	f.writeBody(b, l, depth, headerEnd(l), nil)
}

// writeHeader writes the leading atoms of l on the tag line
func (f *Formatter) writeHeader(b *strings.Builder, l *List, rule Rule) {
	for i := 0; i < headerEnd(l); i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(f.atomText(l.Items[i].(*Atom), rule, i))
	}
}

// writeBody writes items from start on: child lists one per line, stray atoms
// inline. The closing parenthesis goes on its own line.
func (f *Formatter) writeBody(b *strings.Builder, l *List, depth, start int, skip Node) {
	rule := f.Rules[l.Tag()]
	for i := start; i < len(l.Items); i++ {
		item := l.Items[i]
		if item == skip {
			continue
		}
		switch v := item.(type) {
		case *Atom:
			b.WriteByte(' ')
			b.WriteString(f.atomText(v, rule, i))
		case *List:
			f.indent(b, depth+1)
			f.writeList(b, v, depth+1)
		}
	}
	f.indent(b, depth)
	b.WriteByte(')')
}

// writeInline writes l and all of its descendants on one line
func (f *Formatter) writeInline(b *strings.Builder, l *List) {
	rule := f.Rules[l.Tag()]
	b.WriteByte('(')
	for i, item := range l.Items {
		if i > 0 {
			b.WriteByte(' ')
		}
		switch v := item.(type) {
		case *Atom:
			b.WriteString(f.atomText(v, rule, i))
		case *List:
			f.writeInline(b, v)
		}
	}
	b.WriteByte(')')
}

func (f *Formatter) atomText(a *Atom, rule Rule, index int) string {
	if a.Kind != KindInt && a.Kind != KindFloat {
		return a.Text
	}
	v, err := strconv.ParseFloat(a.Value, 64)
	if err != nil {
		return a.Text
	}
	switch rule.Numbers {
	case NumbersFloat:
		return FormatFloat(v)
	case NumbersColor:
		if index >= 1 && index <= 3 {
			return strconv.Itoa(int(math.Round(v)))
		}
		return FormatFloat(v)
	}
	return a.Text
}

// writePoints packs all xy children of a pts list onto a single line
func writePoints(f *Formatter, b *strings.Builder, l *List, depth int) {
	if !hasChildList(l) {
		f.writeInline(b, l)
		return
	}
	b.WriteString("(pts")
	f.indent(b, depth+1)
	first := true
	for _, item := range l.Items[1:] {
		if !first {
			b.WriteByte(' ')
		}
		first = false
		switch v := item.(type) {
		case *Atom:
			b.WriteString(v.Text)
		case *List:
			f.writeInline(b, v)
		}
	}
	f.indent(b, depth)
	b.WriteByte(')')
}

// writeProperty keeps key and value on the header line, together with the
// KiCad 6 "(id N)" field when present
func writeProperty(f *Formatter, b *strings.Builder, l *List, depth int) {
	if !hasChildList(l) {
		f.writeInline(b, l)
		return
	}
	rule := f.Rules[l.Tag()]
	b.WriteByte('(')
	f.writeHeader(b, l, rule)

	var id *List
	if found, ok := l.Find("id"); ok {
		id = found
		b.WriteByte(' ')
		f.writeInline(b, id)
	}
	if len(l.Lists()) == 1 && id != nil {
		b.WriteByte(')')
		return
	}
	var skip Node
	if id != nil {
		skip = id
	}
	f.writeBody(b, l, depth, headerEnd(l), skip)
}

func hasChildList(l *List) bool {
	for _, item := range l.Items {
		if _, ok := item.(*List); ok {
			return true
		}
	}
	return false
}

// headerEnd returns the index of the first child list (or len when there is none)
func headerEnd(l *List) int {
	for i, item := range l.Items {
		if _, ok := item.(*List); ok {
			return i
		}
	}
	return len(l.Items)
}

// writeCompact writes n on one line with single spaces and exact atom text
func writeCompact(b *strings.Builder, n Node) {
	switch v := n.(type) {
	case *Atom:
		b.WriteString(v.Text)
	case *List:
		b.WriteByte('(')
		for i, item := range v.Items {
			if i > 0 {
				b.WriteByte(' ')
			}
			writeCompact(b, item)
		}
		b.WriteByte(')')
	}
}

// FormatFloat renders f the canonical way: rounded to 6 fractional digits,
// shortest decimal form, integral values without a fraction, never "-0".
func FormatFloat(f float64) string {
	r := math.Round(f*1e6) / 1e6
	if r == 0 {
		return "0"
	}
	if r == math.Trunc(r) && math.Abs(r) < 1e15 {
		return strconv.FormatInt(int64(r), 10)
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}

// Quote renders s as a KiCad quoted string
func Quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// printer writes parsed nodes verbatim and hands generated nodes to the formatter
type printer struct {
	b *strings.Builder
	f *Formatter
}

// Bytes prints the document. Parsed nodes are reproduced exactly; generated
// nodes are laid out to match their surroundings.
func (d *Document) Bytes() []byte {
	return []byte(d.String())
}

func (d *Document) String() string {
	var b strings.Builder
	p := &printer{b: &b, f: NewFormatter(d.Indent)}
	for i, item := range d.Items {
		if item.IsGenerated() {
			switch {
			case item.Leading() != "":
				b.WriteString(item.Leading())
			case i > 0:
				b.WriteByte('\n')
			}
			p.f.WriteNode(&b, item, 0)
			continue
		}
		p.node(item, 0)
	}
	b.WriteString(d.Trail)
	return b.String()
}

// WriteTo writes the printed document to w
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	return bytes.NewBufferString(d.String()).WriteTo(w)
}

func (p *printer) node(n Node, depth int) {
	switch v := n.(type) {
	case *Atom:
		p.b.WriteString(v.Lead)
		p.b.WriteString(v.Text)
	case *List:
		p.b.WriteString(v.Lead)
		p.b.WriteByte('(')
		multiline := isMultiline(v)
		var prev *List
		for i, item := range v.Items {
			if item.IsGenerated() {
				p.b.WriteString(p.generatedLead(item, i, prev, multiline, depth))
				p.f.WriteNode(p.b, item, depth+1)
			} else {
				p.node(item, depth+1)
			}
			if l, ok := item.(*List); ok {
				prev = l
			}
		}
		p.b.WriteString(v.Trail)
		p.b.WriteByte(')')
	}
}

// generatedLead picks the whitespace in front of a generated child of a parsed
// list at depth
func (p *printer) generatedLead(n Node, index int, prev *List, multiline bool, depth int) string {
	if lead := n.Leading(); lead != "" {
		return lead
	}
	if index == 0 {
		return ""
	}
	if _, ok := n.(*List); !ok {
		return " "
	}
	if prev != nil && strings.Contains(prev.Lead, "\n") {
		return prev.Lead
	}
	if multiline {
		return "\n" + strings.Repeat(p.f.Indent, depth+1)
	}
	return " "
}

func isMultiline(l *List) bool {
	if strings.Contains(l.Trail, "\n") {
		return true
	}
	for _, item := range l.Items {
		if !item.IsGenerated() && strings.Contains(item.Leading(), "\n") {
			return true
		}
	}
	return false
}
