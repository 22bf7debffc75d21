package symbols

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/sexp"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/sexp/kicadsexp"
)

// Library is an in-memory set of definitions keyed by lib_id. It serves both
// the lib_symbols block embedded in a schematic and parsed .kicad_sym files.
type Library struct {
	defs map[string]*Definition
}

// NewLibrary builds a library from (symbol ...) lists whose names already are
// full lib_ids, as in a schematic lib_symbols block
func NewLibrary(nodes []*kicadsexp.List) (*Library, error) {
	lib := &Library{defs: make(map[string]*Definition, len(nodes))}
	for _, node := range nodes {
		def, err := ParseDefinition(node, "")
		if err != nil {
			return nil, err
		}
		lib.defs[def.LibID] = def
	}
	return lib, nil
}

// ParseLibraryFile reads a .kicad_sym file
func ParseLibraryFile(filename, nickname string) (*Library, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return ParseLibrary(file, nickname)
}

// ParseLibrary reads a (kicad_symbol_lib ...) document. Symbols are keyed
// "<nickname>:<name>", or just "<name>" when nickname is empty. Symbols that
// extend another one inherit its pins and graphics.
func ParseLibrary(r io.Reader, nickname string) (*Library, error) {
	doc, err := kicadsexp.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse s-expression: %w", err)
	}

	root, ok := doc.Root()
	if !ok {
		return nil, fmt.Errorf("not a KiCad symbol library: no root list")
	}
	if root.Tag() != "kicad_symbol_lib" {
		return nil, fmt.Errorf("not a KiCad symbol library: expected 'kicad_symbol_lib', got '%s'", root.Tag())
	}

	byName := make(map[string]*kicadsexp.List)
	for _, node := range root.FindAll("symbol") {
		name, err := sexp.GetString(node, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to parse symbol name: %w", err)
		}
		byName[name] = node
	}

	lib := &Library{defs: make(map[string]*Definition, len(byName))}
	for name, node := range byName {
		def, err := ParseDefinition(node, qualify(nickname, name))
		if err != nil {
			return nil, fmt.Errorf("symbol %q: %w", name, err)
		}

		// Walk the extends chain; derived symbols carry no pins of their own
		seen := map[string]bool{name: true}
		for parent, ok := sexp.GetChildString(node, "extends"); ok; parent, ok = sexp.GetChildString(byName[parent], "extends") {
			if seen[parent] || byName[parent] == nil {
				break
			}
			seen[parent] = true
			base, err := ParseDefinition(byName[parent], "")
			if err != nil {
				return nil, fmt.Errorf("symbol %q: parent %q: %w", name, parent, err)
			}
			def.Pins = append(def.Pins, base.Pins...)
			def.Graphics.ExpandBox(base.Graphics)
			def.Power = def.Power || base.Power
			def.Units = max(def.Units, base.Units)
		}
		lib.defs[def.LibID] = def
	}
	return lib, nil
}

func qualify(nickname, name string) string {
	if nickname == "" {
		return name
	}
	return nickname + ":" + name
}

// Resolve returns the definition for libID
func (l *Library) Resolve(libID string) (*Definition, error) {
	if def, ok := l.defs[libID]; ok {
		return def, nil
	}
	return nil, &NotFoundError{LibID: libID}
}

// LibIDs returns the sorted lib_ids of the library
func (l *Library) LibIDs() []string {
	ids := make([]string, 0, len(l.defs))
	for id := range l.defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of definitions
func (l *Library) Len() int {
	return len(l.defs)
}

// Chain tries each resolver in order and returns the first definition found
type Chain []Resolver

// Resolve implements Resolver
func (c Chain) Resolve(libID string) (*Definition, error) {
	for _, r := range c {
		if r == nil {
			continue
		}
		def, err := r.Resolve(libID)
		if err == nil {
			return def, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, &NotFoundError{LibID: libID}
}
