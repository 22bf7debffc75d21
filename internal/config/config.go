// Package config loads the ots configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/connectivity"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/schematic"
)

// EnvTolerance overrides connectivity.tolerance
const EnvTolerance = "OTS_TOLERANCE"

// Config is the ots configuration
type Config struct {
	Parse struct {
		Strict bool `yaml:"strict"`
	} `yaml:"parse"`

	Serialize struct {
		Mode string `yaml:"mode" validate:"omitempty,oneof=preserve clean compact"`
	} `yaml:"serialize"`

	Connectivity struct {
		Tolerance         float64 `yaml:"tolerance" validate:"gt=0,lte=1"`
		UnifyGlobalLabels bool    `yaml:"unify_global_labels"`
	} `yaml:"connectivity"`

	Hierarchy struct {
		PrefixReferences bool     `yaml:"prefix_references"`
		SearchPaths      []string `yaml:"search_paths" validate:"dive,required"`
		Watch            bool     `yaml:"watch"`
	} `yaml:"hierarchy"`

	Log struct {
		Level       string `yaml:"level" validate:"oneof=debug info warn error"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`
}

// Default returns the configuration used without a file
func Default() *Config {
	cfg := &Config{}
	cfg.Parse.Strict = true
	cfg.Serialize.Mode = schematic.ModePreserve.String()
	cfg.Connectivity.Tolerance = connectivity.DefaultTolerance
	cfg.Connectivity.UnifyGlobalLabels = true
	cfg.Log.Level = "warn"
	return cfg
}

// Load reads a YAML file over the defaults, applies environment overrides
// and validates the result. An empty path loads the defaults only.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if v := os.Getenv(EnvTolerance); v != "" {
		tol, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvTolerance, err)
		}
		cfg.Connectivity.Tolerance = tol
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks the configuration values
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, formatFieldError(fe))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func formatFieldError(e validator.FieldError) string {
	field := strings.ToLower(strings.TrimPrefix(e.Namespace(), "Config."))
	switch e.Tag() {
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, e.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "required":
		return fmt.Sprintf("%s is required", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// ParseOptions returns the schematic parse options
func (c *Config) ParseOptions() []schematic.Option {
	return []schematic.Option{schematic.WithStrict(c.Parse.Strict)}
}

// SaveOptions returns the schematic save options
func (c *Config) SaveOptions() ([]schematic.SaveOption, error) {
	mode, err := schematic.ParseMode(c.Serialize.Mode)
	if err != nil {
		return nil, err
	}
	return []schematic.SaveOption{schematic.WithMode(mode)}, nil
}

// ConnectivityConfig returns the analyzer configuration
func (c *Config) ConnectivityConfig() *connectivity.Config {
	return &connectivity.Config{
		Tolerance:         c.Connectivity.Tolerance,
		UnifyGlobalLabels: c.Connectivity.UnifyGlobalLabels,
	}
}
