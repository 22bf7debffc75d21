package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/hierarchy"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/issue"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/symbols"
)

var (
	treeCounts   bool
	treePaths    bool
	traceFrom    string
	flatPrefix   bool
	validateWarn bool
	watchMode    bool
)

var hierCmd = &cobra.Command{
	Use:   "hier",
	Short: "Hierarchical sheet operations",
	Long: `Commands for schematics split over hierarchical sheets. Sheet files are
looked up next to the referencing schematic, then in the --search
directories and the hierarchy.search_paths of the configuration.`,
}

var hierTreeCmd = &cobra.Command{
	Use:   "tree <schematic_file>",
	Short: "Print the sheet tree",
	Args:  cobra.ExactArgs(1),
	RunE:  runHierTree,
}

var hierValidateCmd = &cobra.Command{
	Use:   "validate <schematic_file>",
	Short: "Check sheet pins against hierarchical labels",
	Long: `Check that every sheet pin has exactly one hierarchical label of the same
name in the child sheet, with a compatible direction, and report
hierarchical labels without a sheet pin.

Exits with an error when an error-severity issue is found.

Examples:
  ots hier validate top.kicad_sch
  ots hier validate top.kicad_sch --warnings
  ots hier validate top.kicad_sch --watch       # Re-run when a sheet changes`,
	Args: cobra.ExactArgs(1),
	RunE: runHierValidate,
}

var hierReusedCmd = &cobra.Command{
	Use:   "reused <schematic_file>",
	Short: "List sheet files placed more than once",
	Args:  cobra.ExactArgs(1),
	RunE:  runHierReused,
}

var hierTraceCmd = &cobra.Command{
	Use:   "trace <schematic_file> <signal>",
	Short: "Follow a signal across sheet boundaries",
	Long: `Print the sheet instances a signal reaches through sheet pins and
hierarchical labels, starting at the root sheet or at --from.

Examples:
  ots hier trace top.kicad_sch SDA
  ots hier trace top.kicad_sch IN --from /b0000000-0000-4000-8000-00000000000b`,
	Args: cobra.ExactArgs(2),
	RunE: runHierTrace,
}

var hierFlattenCmd = &cobra.Command{
	Use:   "flatten <schematic_file>",
	Short: "List the components of every sheet instance",
	Args:  cobra.ExactArgs(1),
	RunE:  runHierFlatten,
}

func init() {
	rootCmd.AddCommand(hierCmd)
	hierCmd.AddCommand(hierTreeCmd)
	hierCmd.AddCommand(hierValidateCmd)
	hierCmd.AddCommand(hierReusedCmd)
	hierCmd.AddCommand(hierTraceCmd)
	hierCmd.AddCommand(hierFlattenCmd)

	hierTreeCmd.Flags().BoolVar(&treeCounts, "counts", false, "show component and wire counts")
	hierTreeCmd.Flags().BoolVar(&treePaths, "paths", false, "show instance paths")
	hierValidateCmd.Flags().BoolVarP(&validateWarn, "warnings", "w", true, "include warnings")
	hierValidateCmd.Flags().BoolVar(&watchMode, "watch", false, "validate again whenever a sheet file changes")
	hierTraceCmd.Flags().StringVar(&traceFrom, "from", hierarchy.RootPath, "instance path to start from")
	hierFlattenCmd.Flags().BoolVar(&flatPrefix, "prefix", false, "prefix references with the sheet path")
}

func newLoader(opts ...hierarchy.FileLoaderOption) *hierarchy.FileLoader {
	paths := append(append([]string(nil), searchDirs...), cfg.Hierarchy.SearchPaths...)
	return hierarchy.NewFileLoader(append([]hierarchy.FileLoaderOption{
		hierarchy.WithSearchPaths(paths...),
		hierarchy.WithParseOptions(parseOptions()...),
		hierarchy.WithLoaderLogger(logger),
		hierarchy.WithLoaderMetrics(collector),
	}, opts...)...)
}

func newManager(loader hierarchy.Loader, resolver symbols.Resolver) *hierarchy.Manager {
	return hierarchy.NewManager(loader,
		hierarchy.WithResolver(resolver),
		hierarchy.WithConnectivityOptions(connectivityOptions()...),
		hierarchy.WithLogger(logger),
		hierarchy.WithMetrics(collector),
	)
}

// buildTree loads path and its sheets
func buildTree(cmd *cobra.Command, path string, resolver symbols.Resolver) (*hierarchy.Tree, *hierarchy.Manager, error) {
	loader := newLoader()
	mgr := newManager(loader, resolver)
	tree, err := buildWith(cmd.Context(), loader, mgr, path)
	return tree, mgr, err
}

func buildWith(ctx context.Context, loader *hierarchy.FileLoader, mgr *hierarchy.Manager, path string) (*hierarchy.Tree, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	root, err := loader.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error parsing schematic: %w", err)
	}
	return mgr.Build(ctx, root, path)
}

func runHierTree(cmd *cobra.Command, args []string) error {
	tree, _, err := buildTree(cmd, args[0], nil)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprint(out, hierarchy.Render(tree, hierarchy.RenderOptions{Counts: treeCounts, Paths: treePaths}))

	instances, files, failed := hierarchy.Summary(tree)
	fmt.Fprintf(out, "\n%d sheet instances, %d files", instances, files)
	if failed > 0 {
		fmt.Fprintf(out, ", %d failed", failed)
	}
	fmt.Fprintln(out)
	return nil
}

func runHierValidate(cmd *cobra.Command, args []string) error {
	if !watchMode && !cfg.Hierarchy.Watch {
		tree, _, err := buildTree(cmd, args[0], nil)
		if err != nil {
			return err
		}
		return reportIssues(cmd.OutOrStdout(), hierarchy.Validate(tree))
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	changed := make(chan string, 1)
	loader := newLoader(hierarchy.WithEvictHook(func(path string) {
		select {
		case changed <- path:
		default:
		}
	}))
	mgr := newManager(loader, nil)
	if err := loader.Watch(ctx); err != nil {
		return err
	}
	defer loader.Close()

	out := cmd.OutOrStdout()
	for {
		tree, err := buildWith(ctx, loader, mgr, args[0])
		if err != nil {
			logger.Warn("validation skipped", zap.Error(err))
		} else {
			_ = reportIssues(out, hierarchy.Validate(tree))
		}

		select {
		case <-ctx.Done():
			return nil
		case path := <-changed:
			fmt.Fprintf(out, "\n%s changed\n", path)
		}
	}
}

func reportIssues(w io.Writer, issues issue.List) error {
	if !validateWarn {
		issues = issues.Filter(issue.Error)
	}
	if len(issues) == 0 {
		fmt.Fprintln(w, "No hierarchy issues")
		return nil
	}
	for _, is := range issues {
		fmt.Fprintln(w, is)
		for _, s := range is.Suggestions {
			fmt.Fprintf(w, "    suggestion: %s\n", s)
		}
	}
	if issues.HasErrors() {
		return fmt.Errorf("%d hierarchy errors", len(issues.Filter(issue.Error)))
	}
	return nil
}

func runHierReused(cmd *cobra.Command, args []string) error {
	tree, _, err := buildTree(cmd, args[0], nil)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	reused := hierarchy.FindReusedSheets(tree)
	if len(reused) == 0 {
		fmt.Fprintln(out, "No reused sheets")
		return nil
	}
	for _, file := range hierarchy.ReusedFiles(reused) {
		instances := reused[file]
		fmt.Fprintf(out, "%s (%d instances)\n", file, len(instances))
		for _, inst := range instances {
			fmt.Fprintf(out, "  %s  %s\n", inst.Path, inst.Name)
		}
	}
	return nil
}

func runHierTrace(cmd *cobra.Command, args []string) error {
	resolver, err := symbolResolver()
	if err != nil {
		return err
	}
	tree, _, err := buildTree(cmd, args[0], resolver)
	if err != nil {
		return err
	}
	paths, err := hierarchy.Trace(tree, args[1], traceFrom, connectivityOptions()...)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, p := range paths {
		name := ""
		if n, ok := tree.Lookup(p); ok {
			name = n.Name
		}
		fmt.Fprintf(out, "%s  %s\n", p, name)
	}
	return nil
}

func runHierFlatten(cmd *cobra.Command, args []string) error {
	tree, _, err := buildTree(cmd, args[0], nil)
	if err != nil {
		return err
	}
	flat := hierarchy.Flatten(tree, hierarchy.FlattenOptions{PrefixReferences: flatPrefix || cfg.Hierarchy.PrefixReferences})

	out := cmd.OutOrStdout()
	for _, c := range flat.Components {
		fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", c.Reference, c.Component.Value(), c.Component.LibID, c.Origin.Path)
	}
	fmt.Fprintf(out, "\n%d components, %d wires, %d labels\n", len(flat.Components), len(flat.Wires), len(flat.Labels))
	if len(flat.Collisions) > 0 {
		fmt.Fprintf(out, "Duplicate references: %s\n", strings.Join(flat.Collisions, ", "))
	}
	return nil
}
