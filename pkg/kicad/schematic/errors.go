package schematic

import (
	"errors"
	"fmt"

	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/sexp/kicadsexp"
)

// Supported file format versions (KiCad 6 through 9)
const (
	MinSupportedVersion = 20211014
	MaxSupportedVersion = 20260000 // exclusive
)

// ErrInvalidRotation is matched by every *RotationError
var ErrInvalidRotation = errors.New("invalid rotation")

// ParseError reports malformed S-expression syntax
type ParseError = kicadsexp.ParseError

// VersionError reports a file format outside the supported range
type VersionError struct {
	Version int
	Major   int // KiCad major version the file format maps to, 0 when unknown
}

func (e *VersionError) Error() string {
	if e.Major > 0 {
		return fmt.Sprintf("unsupported schematic version %d (KiCad %d)", e.Version, e.Major)
	}
	return fmt.Sprintf("unsupported schematic version %d", e.Version)
}

// kicadMajor maps a file format version to the KiCad release that writes it
func kicadMajor(version int) int {
	switch {
	case version >= MaxSupportedVersion:
		return 0
	case version >= 20250000:
		return 9
	case version >= 20230000:
		return 8
	case version >= 20220000:
		return 7
	case version >= 20211014:
		return 6
	case version >= 20200000:
		return 5
	}
	return 0
}

// UnknownElementError reports a top-level element the parser has no handler
// for. It is only returned in strict mode.
type UnknownElementError struct {
	Tag    string
	Line   int
	Column int
}

func (e *UnknownElementError) Error() string {
	return fmt.Sprintf("unknown element (%s) at line %d, column %d", e.Tag, e.Line, e.Column)
}

// RotationError reports a rotation that is not a multiple of 90 degrees
type RotationError struct {
	Angle Angle
}

func (e *RotationError) Error() string {
	return fmt.Sprintf("invalid rotation %g: must be 0, 90, 180 or 270", float64(e.Angle))
}

// Is makes errors.Is(err, ErrInvalidRotation) true
func (e *RotationError) Is(target error) bool {
	return target == ErrInvalidRotation
}

// ElementError wraps a failure to read one element
type ElementError struct {
	Tag  string
	Line int
	Err  error
}

func (e *ElementError) Error() string {
	return fmt.Sprintf("failed to parse %s at line %d: %v", e.Tag, e.Line, e.Err)
}

func (e *ElementError) Unwrap() error {
	return e.Err
}
