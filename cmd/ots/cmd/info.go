package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/geometry"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/schematic"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/symbols"
)

var infoCmd = &cobra.Command{
	Use:   "info <schematic_file> [component]",
	Short: "Show schematic information",
	Long: `Display information about a KiCad schematic file.

Without component argument: shows schematic summary and structural issues
With component argument: shows details for that specific component`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	filename := args[0]
	sch, err := loadSchematic(filename)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(args) >= 2 {
		resolver, err := symbolResolver()
		if err != nil {
			return err
		}
		return showComponentDetails(out, sch, args[1], resolver)
	}

	showSummary(out, sch, filename)
	return nil
}

func showSummary(w io.Writer, sch *schematic.Schematic, filename string) {
	fmt.Fprintf(w, "Schematic: %s\n", filename)
	fmt.Fprintf(w, "Version: %d\n", sch.Version)
	fmt.Fprintf(w, "Generator: %s", sch.Generator)
	if sch.GeneratorVersion != "" {
		fmt.Fprintf(w, " v%s", sch.GeneratorVersion)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Paper: %s\n", sch.Paper)
	fmt.Fprintln(w)

	if tb := sch.TitleBlock; tb.Title != "" || tb.Revision != "" {
		fmt.Fprintln(w, "Title Block:")
		if tb.Title != "" {
			fmt.Fprintf(w, "  Title: %s\n", tb.Title)
		}
		if tb.Date != "" {
			fmt.Fprintf(w, "  Date: %s\n", tb.Date)
		}
		if tb.Revision != "" {
			fmt.Fprintf(w, "  Revision: %s\n", tb.Revision)
		}
		if tb.Company != "" {
			fmt.Fprintf(w, "  Company: %s\n", tb.Company)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "Statistics:")
	fmt.Fprintf(w, "  Components: %d\n", sch.Components.Len())
	fmt.Fprintf(w, "  Library symbols: %d\n", len(sch.LibSymbols))
	fmt.Fprintf(w, "  Wires: %d\n", sch.Wires.Len())
	fmt.Fprintf(w, "  Buses: %d\n", sch.Buses.Len())
	fmt.Fprintf(w, "  Junctions: %d\n", sch.Junctions.Len())
	fmt.Fprintf(w, "  Labels: %d\n", len(sch.AllLabels(schematic.LocalLabel)))
	fmt.Fprintf(w, "  Global labels: %d\n", len(sch.AllLabels(schematic.GlobalLabel)))
	fmt.Fprintf(w, "  Hierarchical labels: %d\n", len(sch.AllLabels(schematic.HierarchicalLabel)))
	fmt.Fprintf(w, "  Sheets: %d\n", sch.Sheets.Len())
	fmt.Fprintf(w, "  No-connects: %d\n", sch.NoConnects.Len())
	fmt.Fprintln(w)

	// Group by reference prefix
	byPrefix := make(map[string][]string)
	for _, ref := range sch.References() {
		prefix := refPrefix(ref)
		byPrefix[prefix] = append(byPrefix[prefix], ref)
	}
	if len(byPrefix) > 0 {
		fmt.Fprintln(w, "Components:")
		var prefixes []string
		for p := range byPrefix {
			prefixes = append(prefixes, p)
		}
		sort.Strings(prefixes)
		for _, prefix := range prefixes {
			refs := byPrefix[prefix]
			sort.Strings(refs)
			fmt.Fprintf(w, "  %s: %s\n", prefix, strings.Join(refs, ", "))
		}
		fmt.Fprintln(w)
	}

	if labels := sch.LabelNames(); len(labels) > 0 {
		fmt.Fprintln(w, "Net Labels:")
		sort.Strings(labels)
		for _, l := range labels {
			fmt.Fprintf(w, "  %s\n", l)
		}
		fmt.Fprintln(w)
	}

	if sch.Sheets.Len() > 0 {
		fmt.Fprintln(w, "Hierarchical Sheets:")
		for _, sheet := range sch.Sheets.Items() {
			fmt.Fprintf(w, "  %s (%s)\n", sheet.Name, sheet.File)
			if len(sheet.Pins) > 0 {
				var names []string
				for _, p := range sheet.Pins {
					names = append(names, p.Name)
				}
				fmt.Fprintf(w, "    Pins: %s\n", strings.Join(names, ", "))
			}
		}
		fmt.Fprintln(w)
	}

	issues := sch.Validate()
	if len(issues) == 0 {
		fmt.Fprintln(w, "No structural issues")
		return
	}
	fmt.Fprintf(w, "Issues (%d):\n", len(issues))
	for _, is := range issues {
		fmt.Fprintf(w, "  %s\n", is)
	}
}

func showComponentDetails(w io.Writer, sch *schematic.Schematic, ref string, resolver symbols.Resolver) error {
	c, ok := sch.ComponentByReference(ref)
	if !ok {
		return fmt.Errorf("component '%s' not found", ref)
	}

	fmt.Fprintf(w, "Component: %s\n", ref)
	fmt.Fprintf(w, "Library: %s\n", c.LibID)
	fmt.Fprintf(w, "Position: (%.2f, %.2f)\n", c.Position.X, c.Position.Y)
	if c.Rotation != 0 {
		fmt.Fprintf(w, "Rotation: %.0f°\n", float64(c.Rotation))
	}
	if c.Mirror != schematic.MirrorNone {
		fmt.Fprintf(w, "Mirror: %s\n", c.Mirror)
	}
	fmt.Fprintf(w, "Unit: %d\n", c.Unit)
	if c.DNP {
		fmt.Fprintln(w, "DNP: yes")
	}
	fmt.Fprintln(w)

	if len(c.Properties) > 0 {
		fmt.Fprintln(w, "Properties:")
		for _, prop := range c.Properties {
			fmt.Fprintf(w, "  %s: %s\n", prop.Key, prop.Value)
		}
		fmt.Fprintln(w)
	}

	def, err := symbols.Chain{sch.Resolver(), resolver}.Resolve(c.SymbolKey())
	if err != nil {
		fmt.Fprintf(w, "Pins: %v\n", err)
		return nil
	}
	pins, err := geometry.ComponentPins(c, def)
	if err != nil {
		return err
	}
	if len(pins) > 0 {
		fmt.Fprintln(w, "Pins:")
		for _, pin := range pins {
			fmt.Fprintf(w, "  %s (%s): %s at (%.2f, %.2f)\n", pin.Number, pin.Name, pin.Type, pin.Position.X, pin.Position.Y)
		}
	}
	return nil
}

// refPrefix returns the letters of a reference: "R" for "R12"
func refPrefix(ref string) string {
	i := strings.IndexFunc(ref, unicode.IsDigit)
	if i <= 0 {
		return ref
	}
	return ref[:i]
}
