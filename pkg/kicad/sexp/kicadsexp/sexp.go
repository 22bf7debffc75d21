// Package kicadsexp provides a format-preserving S-expression document model for
// KiCad files. Every byte of the source is kept either as token text or as the
// whitespace trivia leading a token, so a parsed document prints back verbatim.
// Nodes created in memory are marked Generated and are laid out by the
// Formatter when printed.
package kicadsexp

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind classifies an atom by its lexical form
type Kind int

const (
	KindSymbol Kind = iota
	KindInt
	KindFloat
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindSymbol:
		return "symbol"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Pos is a source position. Line and Column are 1-based; Offset is a byte offset.
type Pos struct {
	Offset int
	Line   int
	Column int
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Node is either an *Atom or a *List.
type Node interface {
	// Position returns where the node started in the source (zero for generated nodes)
	Position() Pos

	// Leading returns the whitespace that preceded the node in the source
	Leading() string

	// IsGenerated reports whether the node was created in memory
	IsGenerated() bool

	// String returns the compact single-line rendering
	String() string

	isNode()
}

// Atom is a leaf: symbol, number or quoted string.
type Atom struct {
	Kind      Kind
	Text      string // exact lexical form (strings keep their quotes and escapes)
	Value     string // decoded value
	Lead      string
	Pos       Pos
	Generated bool
}

func (a *Atom) Position() Pos     { return a.Pos }
func (a *Atom) Leading() string   { return a.Lead }
func (a *Atom) IsGenerated() bool { return a.Generated }
func (a *Atom) String() string    { return a.Text }
func (a *Atom) isNode()           {}

// Float parses the atom as a floating point number
func (a *Atom) Float() (float64, error) {
	v, err := strconv.ParseFloat(a.Value, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse float %q: %w", a.Value, err)
	}
	return v, nil
}

// Int parses the atom as an integer
func (a *Atom) Int() (int, error) {
	v, err := strconv.Atoi(a.Value)
	if err != nil {
		return 0, fmt.Errorf("failed to parse int %q: %w", a.Value, err)
	}
	return v, nil
}

// Sym creates a generated symbol atom
func Sym(s string) *Atom {
	return &Atom{Kind: KindSymbol, Text: s, Value: s, Generated: true}
}

// Str creates a generated quoted string atom
func Str(s string) *Atom {
	return &Atom{Kind: KindString, Text: Quote(s), Value: s, Generated: true}
}

// Int creates a generated integer atom
func Int(n int) *Atom {
	s := strconv.Itoa(n)
	return &Atom{Kind: KindInt, Text: s, Value: s, Generated: true}
}

// Float creates a generated number atom using the canonical float format
func Float(f float64) *Atom {
	s := FormatFloat(f)
	kind := KindFloat
	if !strings.ContainsAny(s, ".eE") {
		kind = KindInt
	}
	return &Atom{Kind: kind, Text: s, Value: s, Generated: true}
}

// List is a parenthesized sequence of nodes. By KiCad convention the first
// item is a symbol naming the list (its tag).
type List struct {
	Items     []Node
	Lead      string // whitespace before '('
	Trail     string // whitespace before ')'
	Pos       Pos
	Generated bool
}

func (l *List) Position() Pos     { return l.Pos }
func (l *List) Leading() string   { return l.Lead }
func (l *List) IsGenerated() bool { return l.Generated }
func (l *List) isNode()           {}

// NewList creates a generated list with the given tag and items
func NewList(tag string, items ...Node) *List {
	l := &List{Generated: true}
	l.Items = append(l.Items, Sym(tag))
	l.Items = append(l.Items, items...)
	return l
}

func (l *List) String() string {
	var b strings.Builder
	writeCompact(&b, l)
	return b.String()
}

// Tag returns the first symbol of the list, or "" if there is none
func (l *List) Tag() string {
	if len(l.Items) == 0 {
		return ""
	}
	if a, ok := l.Items[0].(*Atom); ok && a.Kind == KindSymbol {
		return a.Value
	}
	return ""
}

// Len returns the number of items including the tag
func (l *List) Len() int {
	return len(l.Items)
}

// Get returns the item at index or nil
func (l *List) Get(index int) Node {
	if index < 0 || index >= len(l.Items) {
		return nil
	}
	return l.Items[index]
}

// Atom returns the item at index if it is an atom
func (l *List) Atom(index int) (*Atom, bool) {
	a, ok := l.Get(index).(*Atom)
	return a, ok
}

// Find returns the first child list with the given tag
func (l *List) Find(tag string) (*List, bool) {
	for _, item := range l.Items {
		if child, ok := item.(*List); ok && child.Tag() == tag {
			return child, true
		}
	}
	return nil, false
}

// FindAll returns all child lists with the given tag
func (l *List) FindAll(tag string) []*List {
	var results []*List
	for _, item := range l.Items {
		if child, ok := item.(*List); ok && child.Tag() == tag {
			results = append(results, child)
		}
	}
	return results
}

// Lists returns all child lists in order
func (l *List) Lists() []*List {
	var results []*List
	for _, item := range l.Items {
		if child, ok := item.(*List); ok {
			results = append(results, child)
		}
	}
	return results
}

// HasSymbol reports whether a bare symbol atom with this value appears in the list
func (l *List) HasSymbol(sym string) bool {
	for _, item := range l.Items[min(1, len(l.Items)):] {
		if a, ok := item.(*Atom); ok && a.Kind == KindSymbol && a.Value == sym {
			return true
		}
	}
	return false
}

// IndexOf returns the index of n in the list or -1
func (l *List) IndexOf(n Node) int {
	for i, item := range l.Items {
		if item == n {
			return i
		}
	}
	return -1
}

// Append adds items at the end of the list
func (l *List) Append(items ...Node) {
	l.Items = append(l.Items, items...)
}

// InsertAt inserts n so that it ends up at index i
func (l *List) InsertAt(i int, n Node) {
	if i < 0 {
		i = 0
	}
	if i >= len(l.Items) {
		l.Items = append(l.Items, n)
		return
	}
	l.Items = append(l.Items, nil)
	copy(l.Items[i+1:], l.Items[i:])
	l.Items[i] = n
}

// InsertAfter inserts n right after ref, or appends it when ref is not a child
func (l *List) InsertAfter(ref, n Node) {
	idx := l.IndexOf(ref)
	if idx < 0 {
		l.Append(n)
		return
	}
	l.InsertAt(idx+1, n)
}

// Remove deletes n from the list and reports whether it was present
func (l *List) Remove(n Node) bool {
	idx := l.IndexOf(n)
	if idx < 0 {
		return false
	}
	l.Items = append(l.Items[:idx], l.Items[idx+1:]...)
	return true
}

// Replace swaps old for n in place. The replacement inherits the leading
// whitespace of old so the surrounding layout is untouched.
func (l *List) Replace(old, n Node) bool {
	idx := l.IndexOf(old)
	if idx < 0 {
		return false
	}
	switch v := n.(type) {
	case *Atom:
		v.Lead = old.Leading()
		v.Generated = old.IsGenerated()
	case *List:
		v.Lead = old.Leading()
	}
	l.Items[idx] = n
	return true
}

// SetAtom replaces the atom at index i, appending generated atoms when the list
// is shorter. It returns false when the existing atom already has the same value.
func (l *List) SetAtom(i int, a *Atom) bool {
	for len(l.Items) < i {
		l.Items = append(l.Items, Sym(""))
	}
	if i == len(l.Items) {
		l.Items = append(l.Items, a)
		return true
	}
	if old, ok := l.Items[i].(*Atom); ok && old.Kind == a.Kind && old.Value == a.Value {
		return false
	}
	l.Replace(l.Items[i], a)
	return true
}

// Document is an ordered sequence of top-level nodes plus trailing whitespace.
type Document struct {
	Items  []Node
	Trail  string
	Indent string // indentation unit detected from the source
}

// NewDocument creates a document holding a single generated root list
func NewDocument(root *List) *Document {
	root.Generated = true
	return &Document{
		Items:  []Node{root},
		Trail:  "\n",
		Indent: "\t",
	}
}

// Root returns the first top-level list
func (d *Document) Root() (*List, bool) {
	for _, item := range d.Items {
		if l, ok := item.(*List); ok {
			return l, true
		}
	}
	return nil, false
}

// Walk visits every node depth-first. Returning false from fn skips the children
// of a list.
func Walk(n Node, fn func(Node) bool) {
	if !fn(n) {
		return
	}
	if l, ok := n.(*List); ok {
		for _, item := range l.Items {
			Walk(item, fn)
		}
	}
}

// Clone returns a deep copy of n. The copy keeps trivia and positions.
func Clone(n Node) Node {
	switch v := n.(type) {
	case *Atom:
		c := *v
		return &c
	case *List:
		c := &List{Lead: v.Lead, Trail: v.Trail, Pos: v.Pos, Generated: v.Generated}
		c.Items = make([]Node, len(v.Items))
		for i, item := range v.Items {
			c.Items[i] = Clone(item)
		}
		return c
	}
	return nil
}

// MarkGenerated flags n and all of its descendants as generated so the whole
// subtree is laid out by the formatter
func MarkGenerated(n Node) {
	Walk(n, func(node Node) bool {
		switch v := node.(type) {
		case *Atom:
			v.Generated = true
		case *List:
			v.Generated = true
		}
		return true
	})
}
