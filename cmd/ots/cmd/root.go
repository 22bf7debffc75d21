package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceSch/internal/config"
	"github.com/OpenTraceLab/OpenTraceSch/internal/logging"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/connectivity"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/metrics"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/schematic"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/symbols"
)

var (
	// Global flags
	configPath  string
	verbose     bool
	dumpMetrics bool
	libFiles    []string
	searchDirs  []string

	// Set up before every command
	cfg       *config.Config
	logger    = zap.NewNop()
	collector *metrics.Collector
)

var rootCmd = &cobra.Command{
	Use:   "ots",
	Short: "OpenTraceSch - KiCad schematic toolkit",
	Long: `OpenTraceSch (ots) reads, edits and analyzes KiCad schematics while keeping
the files byte for byte identical outside the edited elements.

Examples:
  ots info board.kicad_sch                      # Summary and structural issues
  ots nets board.kicad_sch --format kicad       # Netlist export
  ots connected board.kicad_sch R1 2            # Pins sharing a net with R1.2
  ots hier tree board.kicad_sch --counts        # Sheet tree
  ots set board.kicad_sch 'ref ~ R* and value = 10k' value=22k
  ots fmt board.kicad_sch --check               # Verify the file round-trips`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		_ = logger.Sync()
		if !dumpMetrics {
			return nil
		}
		return writeMetrics(cmd)
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "configuration file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	rootCmd.PersistentFlags().BoolVar(&dumpMetrics, "metrics", false, "print collected metrics to stderr on exit")
	rootCmd.PersistentFlags().StringSliceVarP(&searchDirs, "search", "s", nil, "extra sheet search directories (doublestar patterns allowed)")
	rootCmd.PersistentFlags().StringSliceVarP(&libFiles, "lib", "l", nil, "symbol library files (.kicad_sym) used after the embedded symbols")
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}
	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	logger, err = logging.New(level, cfg.Log.Development)
	if err != nil {
		return err
	}
	collector = metrics.NewCollector()
	return nil
}

func writeMetrics(cmd *cobra.Command) error {
	families, err := collector.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(cmd.ErrOrStderr(), mf); err != nil {
			return err
		}
	}
	return nil
}

func parseOptions() []schematic.Option {
	return append(cfg.ParseOptions(), schematic.WithLogger(logger), schematic.WithMetrics(collector))
}

func loadSchematic(path string) (*schematic.Schematic, error) {
	sch, err := schematic.ParseFile(path, parseOptions()...)
	if err != nil {
		return nil, fmt.Errorf("error parsing schematic: %w", err)
	}
	return sch, nil
}

// saveSchematic writes sch to out, or back to the file it came from. An
// out of "-" writes to w.
func saveSchematic(w io.Writer, sch *schematic.Schematic, path, out string) error {
	opts, err := cfg.SaveOptions()
	if err != nil {
		return err
	}
	if out == "" {
		out = path
	}
	if out == "-" {
		data, err := schematic.Serialize(sch, opts...)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}
	return sch.SaveFile(out, opts...)
}

// symbolResolver loads the --lib files. Each library is keyed by its file
// name: Device.kicad_sym serves "Device:R".
func symbolResolver() (symbols.Resolver, error) {
	if len(libFiles) == 0 {
		return nil, nil
	}
	var chain symbols.Chain
	for _, file := range libFiles {
		nickname := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		lib, err := symbols.ParseLibraryFile(file, nickname)
		if err != nil {
			return nil, fmt.Errorf("symbol library %s: %w", file, err)
		}
		logger.Debug("symbol library loaded", zap.String("file", file), zap.Int("symbols", lib.Len()))
		chain = append(chain, lib)
	}
	return symbols.NewCache(chain, symbols.WithCacheLogger(logger)), nil
}

func connectivityOptions() []connectivity.Option {
	return []connectivity.Option{
		connectivity.WithConfig(cfg.ConnectivityConfig()),
		connectivity.WithLogger(logger),
		connectivity.WithMetrics(collector),
	}
}
