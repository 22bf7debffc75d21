package schematic

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/sexp/kicadsexp"
)

// Mode selects how a schematic is written
type Mode int

const (
	// ModePreserve reproduces parsed content byte for byte and lays out only
	// new or changed nodes
	ModePreserve Mode = iota
	// ModeClean re-lays out the whole document the way KiCad writes it
	ModeClean
	// ModeCompact writes the document on a single line
	ModeCompact
)

func (m Mode) String() string {
	switch m {
	case ModePreserve:
		return "preserve"
	case ModeClean:
		return "clean"
	case ModeCompact:
		return "compact"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode converts a mode name ("preserve", "clean", "compact")
func ParseMode(name string) (Mode, error) {
	switch name {
	case "", "preserve":
		return ModePreserve, nil
	case "clean":
		return ModeClean, nil
	case "compact":
		return ModeCompact, nil
	}
	return 0, fmt.Errorf("unknown serialize mode %q", name)
}

// SaveOption configures serialization
type SaveOption func(*saveOptions)

type saveOptions struct {
	mode             Mode
	generator        string
	generatorVersion string
}

// WithMode selects the output layout
func WithMode(m Mode) SaveOption {
	return func(o *saveOptions) {
		o.mode = m
	}
}

// WithGenerator stamps the generator and generator_version fields on save.
// Without it both are written as they were read.
func WithGenerator(name, version string) SaveOption {
	return func(o *saveOptions) {
		o.generator = name
		o.generatorVersion = version
	}
}

// Serialize syncs pending edits into the document and prints it
func Serialize(sch *Schematic, opts ...SaveOption) ([]byte, error) {
	o := &saveOptions{}
	for _, opt := range opts {
		opt(o)
	}

	if o.generator != "" {
		sch.Generator = o.generator
	}
	if o.generatorVersion != "" {
		sch.GeneratorVersion = o.generatorVersion
	}

	if err := sch.Sync(); err != nil {
		return nil, err
	}

	var out []byte
	switch o.mode {
	case ModePreserve:
		out = sch.doc.Bytes()
	case ModeClean:
		out = kicadsexp.Format(sch.doc, kicadsexp.StyleClean)
	case ModeCompact:
		out = kicadsexp.Format(sch.doc, kicadsexp.StyleCompact)
	default:
		return nil, fmt.Errorf("unknown serialize mode %v", o.mode)
	}

	sch.metrics.ObserveSerialize(o.mode.String(), len(out))
	sch.logger.Debug("schematic serialized",
		zap.Stringer("mode", o.mode),
		zap.Int("bytes", len(out)),
	)
	return out, nil
}

// Bytes serializes the schematic in preserve mode
func (s *Schematic) Bytes() ([]byte, error) {
	return Serialize(s)
}

// WriteTo writes the schematic in preserve mode
func (s *Schematic) WriteTo(w io.Writer) (int64, error) {
	out, err := Serialize(s)
	if err != nil {
		return 0, err
	}
	return bytes.NewReader(out).WriteTo(w)
}

// SaveFile writes the schematic to path. The file is replaced atomically.
func (s *Schematic) SaveFile(path string, opts ...SaveOption) error {
	out, err := Serialize(s, opts...)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}

	s.Components.ClearModified()
	s.Wires.ClearModified()
	s.Buses.ClearModified()
	s.BusEntries.ClearModified()
	s.Junctions.ClearModified()
	s.NoConnects.ClearModified()
	s.Labels.ClearModified()
	s.Sheets.ClearModified()
	s.Graphics.ClearModified()
	return nil
}
