package schematic

import (
	"fmt"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/collection"
)

// ComponentCriteria selects components. Empty fields match everything;
// Reference and LibID are glob patterns ("R*", "Device:*").
type ComponentCriteria struct {
	Reference  string
	Value      string
	LibID      string
	Properties map[string]string // exact property values
	Region     *BoundingBox      // component anchor inside the box
}

// Match reports whether c satisfies every set criterion
func (cr ComponentCriteria) Match(c *Component) bool {
	if cr.Reference != "" && !globMatch(cr.Reference, c.Reference()) {
		return false
	}
	if cr.Value != "" && c.Value() != cr.Value {
		return false
	}
	if cr.LibID != "" && !globMatch(cr.LibID, c.LibID) {
		return false
	}
	for key, want := range cr.Properties {
		if got, ok := c.Property(key); !ok || got != want {
			return false
		}
	}
	if cr.Region != nil && !cr.Region.Contains(c.Position) {
		return false
	}
	return true
}

// Predicate adapts the criteria for collection queries
func (cr ComponentCriteria) Predicate() collection.Predicate[*Component] {
	return cr.Match
}

// Validate checks the glob patterns
func (cr ComponentCriteria) Validate() error {
	for _, pattern := range []string{cr.Reference, cr.LibID} {
		if pattern != "" && !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid pattern %q", pattern)
		}
	}
	return nil
}

func globMatch(pattern, s string) bool {
	ok, err := doublestar.Match(pattern, s)
	return err == nil && ok
}

// ComponentPatch describes a bulk edit. Nil fields are left alone.
type ComponentPatch struct {
	Reference  *string
	Value      *string
	Footprint  *string
	Properties map[string]string // set; an empty value removes the property
	Position   *Position
	Rotation   *Angle
	Mirror     *Mirror
	DNP        *bool
	InBOM      *bool
}

// Validate rejects patches that cannot be applied
func (p ComponentPatch) Validate() error {
	if p.Rotation != nil {
		if _, err := NormalizeRotation(*p.Rotation); err != nil {
			return err
		}
	}
	if p.Mirror != nil {
		switch *p.Mirror {
		case MirrorNone, MirrorX, MirrorY:
		default:
			return fmt.Errorf("invalid mirror %q", string(*p.Mirror))
		}
	}
	return nil
}

// Apply writes the patch into c. Only the touched fields change; nothing
// else in the component is re-rendered on save.
func (p ComponentPatch) Apply(c *Component) {
	if p.Reference != nil {
		c.SetReference(*p.Reference)
	}
	if p.Value != nil {
		c.SetValue(*p.Value)
	}
	if p.Footprint != nil {
		c.SetFootprint(*p.Footprint)
	}
	keys := make([]string, 0, len(p.Properties))
	for key := range p.Properties {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value := p.Properties[key]
		if value == "" {
			c.RemoveProperty(key)
		} else {
			c.SetProperty(key, value)
		}
	}
	if p.Position != nil {
		c.SetPosition(*p.Position)
	}
	if p.Rotation != nil {
		// validated by UpdateComponents
		_ = c.SetRotation(*p.Rotation)
	}
	if p.Mirror != nil {
		c.SetMirror(*p.Mirror)
	}
	if p.DNP != nil {
		c.DNP = *p.DNP
	}
	if p.InBOM != nil {
		c.InBOM = *p.InBOM
	}
	c.MarkModified()
}

// UpdateComponents applies patch to every component matching criteria and
// returns how many were changed
func (s *Schematic) UpdateComponents(criteria ComponentCriteria, patch ComponentPatch) (int, error) {
	if err := criteria.Validate(); err != nil {
		return 0, err
	}
	if err := patch.Validate(); err != nil {
		return 0, err
	}
	return s.Components.BulkUpdate(criteria.Match, patch.Apply), nil
}

// FindComponents returns the components matching criteria in file order
func (s *Schematic) FindComponents(criteria ComponentCriteria) []*Component {
	return s.Components.Filter(criteria.Match)
}
