// Package issue defines the validation findings reported by the schematic,
// connectivity and hierarchy packages. Issues describe problems in a design;
// they are values, never errors.
package issue

import (
	"fmt"
	"sort"
	"strings"
)

// Severity ranks an issue
type Severity int

const (
	Info Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// Issue codes
const (
	CodeDuplicateReference = "duplicate_reference"
	CodeDuplicateUUID      = "duplicate_uuid"
	CodeDegenerateWire     = "degenerate_wire"
	CodeMissingLibSymbol   = "missing_lib_symbol"
	CodeUnresolvedSymbol   = "unresolved_symbol"
	CodeInvalidRotation    = "invalid_rotation"
	CodeMissingLabel       = "missing_hierarchical_label"
	CodeDuplicateLabel     = "duplicate_hierarchical_label"
	CodeDirectionMismatch  = "direction_mismatch"
	CodeOrphanLabel        = "orphan_hierarchical_label"
	CodeSheetLoad          = "sheet_load_failed"
)

// Issue is a single validation finding
type Issue struct {
	Severity    Severity
	Code        string
	Message     string
	ElementType string   // e.g. "symbol", "wire", "sheet_pin"
	ElementID   string   // UUID or reference of the offending element
	Path        string   // sheet instance path, empty for single documents
	Suggestions []string // optional fixes
}

func (i Issue) String() string {
	var b strings.Builder
	b.WriteString(i.Severity.String())
	if i.Path != "" {
		fmt.Fprintf(&b, " %s", i.Path)
	}
	fmt.Fprintf(&b, " [%s] %s", i.Code, i.Message)
	if i.ElementID != "" {
		fmt.Fprintf(&b, " (%s %s)", i.ElementType, i.ElementID)
	}
	return b.String()
}

// List is an ordered collection of issues
type List []Issue

// Add appends an issue
func (l *List) Add(i Issue) {
	*l = append(*l, i)
}

// Errorf appends an error-severity issue
func (l *List) Errorf(code, elementType, elementID, format string, args ...any) {
	l.Add(Issue{Severity: Error, Code: code, ElementType: elementType, ElementID: elementID, Message: fmt.Sprintf(format, args...)})
}

// Warnf appends a warning-severity issue
func (l *List) Warnf(code, elementType, elementID, format string, args ...any) {
	l.Add(Issue{Severity: Warning, Code: code, ElementType: elementType, ElementID: elementID, Message: fmt.Sprintf(format, args...)})
}

// Merge appends all issues of other
func (l *List) Merge(other List) {
	*l = append(*l, other...)
}

// Filter returns the issues of at least the given severity
func (l List) Filter(min Severity) List {
	var out List
	for _, i := range l {
		if i.Severity >= min {
			out = append(out, i)
		}
	}
	return out
}

// ByCode returns the issues with the given code
func (l List) ByCode(code string) List {
	var out List
	for _, i := range l {
		if i.Code == code {
			out = append(out, i)
		}
	}
	return out
}

// HasErrors reports whether any issue has error severity
func (l List) HasErrors() bool {
	for _, i := range l {
		if i.Severity == Error {
			return true
		}
	}
	return false
}

// Sort orders issues by severity (highest first), path, code and element
func (l List) Sort() {
	sort.SliceStable(l, func(a, b int) bool {
		x, y := l[a], l[b]
		if x.Severity != y.Severity {
			return x.Severity > y.Severity
		}
		if x.Path != y.Path {
			return x.Path < y.Path
		}
		if x.Code != y.Code {
			return x.Code < y.Code
		}
		return x.ElementID < y.ElementID
	})
}
