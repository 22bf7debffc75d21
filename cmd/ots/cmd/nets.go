package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/connectivity"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/hierarchy"
)

var (
	netsFormat string
	netsHier   bool
)

var netsCmd = &cobra.Command{
	Use:   "nets <schematic_file>",
	Short: "List the nets of a schematic",
	Long: `Build the connectivity graph and print every net with its pins.

Formats:
  text    one net per line: name followed by ref.pin entries
  json    structured net list
  kicad   KiCad netlist (export (version "E") ...)

With --hier the sheets below the file are loaded and nets cross sheet
boundaries through sheet pins and hierarchical labels.

Examples:
  ots nets board.kicad_sch
  ots nets board.kicad_sch --format kicad > board.net
  ots nets top.kicad_sch --hier --lib Device.kicad_sym`,
	Args: cobra.ExactArgs(1),
	RunE: runNets,
}

var connectedCmd = &cobra.Command{
	Use:   "connected <schematic_file> <ref> <pin>",
	Short: "Show the net of a pin and the pins connected to it",
	Args:  cobra.ExactArgs(3),
	RunE:  runConnected,
}

func init() {
	rootCmd.AddCommand(netsCmd)
	rootCmd.AddCommand(connectedCmd)

	netsCmd.Flags().StringVarP(&netsFormat, "format", "f", "text", "output format (text, json, kicad)")
	netsCmd.Flags().BoolVar(&netsHier, "hier", false, "follow hierarchical sheets")
}

// analyzer builds the connectivity analyzer for a file, across the sheet
// tree when hier is set
func analyzer(cmd *cobra.Command, path string, hier bool) (*connectivity.Analyzer, error) {
	resolver, err := symbolResolver()
	if err != nil {
		return nil, err
	}
	if hier {
		tree, mgr, err := buildTree(cmd, path, resolver)
		if err != nil {
			return nil, err
		}
		return mgr.Analyzer(tree), nil
	}

	sch, err := loadSchematic(path)
	if err != nil {
		return nil, err
	}
	return connectivity.New(sch, resolver, connectivityOptions()...), nil
}

func runNets(cmd *cobra.Command, args []string) error {
	a, err := analyzer(cmd, args[0], netsHier)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	switch netsFormat {
	case "text":
		printNets(out, a.Nets())
	case "json":
		data, err := a.ExportJSON()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\n", data)
	case "kicad":
		out.Write(a.ExportKiCad())
	default:
		return fmt.Errorf("unknown format %q (text, json, kicad)", netsFormat)
	}

	for _, is := range a.Issues() {
		logger.Warn(is.Message, zap.String("code", is.Code), zap.String("element", is.ElementID))
	}
	return nil
}

func printNets(w io.Writer, nets []*connectivity.Net) {
	for _, n := range nets {
		pins := make([]string, 0, len(n.Pins))
		for _, p := range n.Pins {
			pins = append(pins, pinLabel(p))
		}
		fmt.Fprintf(w, "%s: %s", n.Name, strings.Join(pins, " "))
		if n.NoConnect {
			fmt.Fprint(w, " (no connect)")
		}
		fmt.Fprintln(w)
	}
}

// pinLabel prefixes pins outside the root sheet with their sheet path
func pinLabel(p connectivity.PinRef) string {
	if p.Path == "" || p.Path == hierarchy.RootPath {
		return p.String()
	}
	return p.Path + "/" + p.String()
}

func runConnected(cmd *cobra.Command, args []string) error {
	a, err := analyzer(cmd, args[0], false)
	if err != nil {
		return err
	}
	ref, pin := args[1], args[2]

	net, ok := a.NetForPin(ref, pin)
	if !ok {
		return fmt.Errorf("pin %s.%s is not on any net", ref, pin)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Net: %s\n", net.Name)
	others := a.ConnectedPins(ref, pin)
	if len(others) == 0 {
		fmt.Fprintln(out, "No other pins")
		return nil
	}
	fmt.Fprintln(out, "Connected pins:")
	for _, p := range others {
		if p.Name != "" && p.Name != "~" {
			fmt.Fprintf(out, "  %s (%s)\n", pinLabel(p), p.Name)
		} else {
			fmt.Fprintf(out, "  %s\n", pinLabel(p))
		}
	}
	return nil
}
