package connectivity

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/sexp/kicadsexp"
)

// ExportJSON writes the nets as JSON
func (a *Analyzer) ExportJSON() ([]byte, error) {
	nets := a.Nets()

	output := struct {
		Version     string `json:"version"`
		NetCount    int    `json:"net_count"`
		Nets        []*Net `json:"nets"`
		GeneratedBy string `json:"generated_by"`
	}{
		Version:     "1.0",
		NetCount:    len(nets),
		Nets:        nets,
		GeneratedBy: "ots connectivity analysis",
	}

	return json.MarshalIndent(output, "", "  ")
}

type exportComponent struct {
	ref, value, footprint, libID string
}

// ExportKiCad writes a KiCad netlist (export (version "E") ...) document.
// Power symbols are left out of the component list like KiCad does.
func (a *Analyzer) ExportKiCad() []byte {
	nets := a.Nets()

	comps := make(map[string]exportComponent)
	for _, src := range a.sources {
		for _, c := range src.Schematic.Components.Items() {
			ref := c.Reference()
			if src.InstancePath != "" {
				ref = c.ReferenceAt(src.InstancePath)
			}
			if ref == "" || c.IsPower() {
				continue
			}
			key := qualifyName(src.Path, ref)
			if _, seen := comps[key]; seen {
				continue
			}
			comps[key] = exportComponent{ref: ref, value: c.Value(), footprint: c.Footprint(), libID: c.LibID}
		}
	}
	keys := make([]string, 0, len(comps))
	for k := range comps {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return naturalLess(keys[i], keys[j]) })

	components := kicadsexp.NewList("components")
	for _, k := range keys {
		c := comps[k]
		components.Append(kicadsexp.NewList("comp",
			kicadsexp.NewList("ref", kicadsexp.Str(c.ref)),
			kicadsexp.NewList("value", kicadsexp.Str(c.value)),
			kicadsexp.NewList("footprint", kicadsexp.Str(c.footprint)),
			kicadsexp.NewList("libsource", kicadsexp.NewList("lib_id", kicadsexp.Str(c.libID))),
		))
	}

	netList := kicadsexp.NewList("nets")
	for i, net := range nets {
		n := kicadsexp.NewList("net",
			kicadsexp.NewList("code", kicadsexp.Str(strconv.Itoa(i+1))),
			kicadsexp.NewList("name", kicadsexp.Str(net.Name)),
		)
		for _, p := range net.Pins {
			node := kicadsexp.NewList("node",
				kicadsexp.NewList("ref", kicadsexp.Str(p.Reference)),
				kicadsexp.NewList("pin", kicadsexp.Str(p.Pin)),
			)
			if p.Name != "" && p.Name != "~" {
				node.Append(kicadsexp.NewList("pinfunction", kicadsexp.Str(p.Name)))
			}
			n.Append(node)
		}
		netList.Append(n)
	}

	root := kicadsexp.NewList("export",
		kicadsexp.NewList("version", kicadsexp.Str("E")),
		kicadsexp.NewList("design", kicadsexp.NewList("tool", kicadsexp.Str("ots"))),
		components,
		netList,
	)
	return kicadsexp.Format(kicadsexp.NewDocument(root), kicadsexp.StyleClean)
}
