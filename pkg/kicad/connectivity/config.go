package connectivity

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/metrics"
)

// DefaultTolerance is the distance below which two points coincide, in mm
const DefaultTolerance = 0.01

// Config controls how the connectivity graph is built.
type Config struct {
	// Tolerance is the coincidence distance for pins, wire vertices, junctions
	// and labels (default: 0.01)
	Tolerance float64

	// UnifyGlobalLabels joins global labels sharing a text, and global labels
	// with power symbols of the same name (default: true)
	UnifyGlobalLabels bool
}

// DefaultConfig returns the configuration KiCad behaves like
func DefaultConfig() *Config {
	return &Config{
		Tolerance:         DefaultTolerance,
		UnifyGlobalLabels: true,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Tolerance <= 0 {
		return fmt.Errorf("connectivity: tolerance must be positive, got %v", c.Tolerance)
	}
	return nil
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithConfig replaces the default configuration
func WithConfig(cfg *Config) Option {
	return func(a *Analyzer) {
		if cfg != nil {
			a.cfg = *cfg
		}
	}
}

// WithTolerance sets the coincidence distance
func WithTolerance(tol float64) Option {
	return func(a *Analyzer) {
		a.cfg.Tolerance = tol
	}
}

// WithGlobalLabelUnification switches joining of same-named global labels
func WithGlobalLabelUnification(on bool) Option {
	return func(a *Analyzer) {
		a.cfg.UnifyGlobalLabels = on
	}
}

// WithBridges adds edges between sheet pins and hierarchical labels, usually
// supplied by the hierarchy manager
func WithBridges(bridges ...Bridge) Option {
	return func(a *Analyzer) {
		a.bridges = append(a.bridges, bridges...)
	}
}

// WithLogger sets the logger used for rebuild and resolution messages
func WithLogger(logger *zap.Logger) Option {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMetrics records rebuild timings in m
func WithMetrics(m *metrics.Collector) Option {
	return func(a *Analyzer) {
		a.metrics = m
	}
}
