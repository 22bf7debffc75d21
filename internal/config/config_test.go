package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/connectivity"
)

func writeConfig(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ots.yaml")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.True(t, cfg.Parse.Strict)
	assert.Equal(t, "preserve", cfg.Serialize.Mode)
	assert.Equal(t, connectivity.DefaultTolerance, cfg.Connectivity.Tolerance)
	assert.True(t, cfg.Connectivity.UnifyGlobalLabels)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
parse:
  strict: false
serialize:
  mode: clean
connectivity:
  tolerance: 0.05
  unify_global_labels: false
hierarchy:
  prefix_references: true
  search_paths:
    - lib
    - "vendor/**"
  watch: true
log:
  level: debug
  development: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.False(t, cfg.Parse.Strict)
	assert.Equal(t, "clean", cfg.Serialize.Mode)
	assert.Equal(t, 0.05, cfg.Connectivity.Tolerance)
	assert.False(t, cfg.Connectivity.UnifyGlobalLabels)
	assert.True(t, cfg.Hierarchy.PrefixReferences)
	assert.Equal(t, []string{"lib", "vendor/**"}, cfg.Hierarchy.SearchPaths)
	assert.True(t, cfg.Hierarchy.Watch)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Development)

	saveOpts, err := cfg.SaveOptions()
	require.NoError(t, err)
	assert.Len(t, saveOpts, 1)
	assert.Len(t, cfg.ParseOptions(), 1)
	assert.Equal(t, &connectivity.Config{Tolerance: 0.05}, cfg.ConnectivityConfig())
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	cfg, err := Load(writeConfig(t, "log:\n  level: info\n"))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, connectivity.DefaultTolerance, cfg.Connectivity.Tolerance)
	assert.True(t, cfg.Parse.Strict)
}

func TestToleranceFromEnvironment(t *testing.T) {
	t.Setenv(EnvTolerance, "0.25")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 0.25, cfg.Connectivity.Tolerance)

	t.Setenv(EnvTolerance, "wide")
	_, err = Load("")
	assert.ErrorContains(t, err, EnvTolerance)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		contains string
	}{
		{"bad mode", "serialize:\n  mode: pretty\n", "serialize.mode must be one of"},
		{"zero tolerance", "connectivity:\n  tolerance: 0\n", "connectivity.tolerance must be greater than 0"},
		{"huge tolerance", "connectivity:\n  tolerance: 5\n", "connectivity.tolerance must be at most 1"},
		{"bad level", "log:\n  level: loud\n", "log.level must be one of"},
		{"empty search path", "hierarchy:\n  search_paths: [\"\"]\n", "is required"},
		{"not yaml", "parse: [\n", "parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.text))
			assert.ErrorContains(t, err, tt.contains)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
