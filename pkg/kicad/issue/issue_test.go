package issue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListHelpers(t *testing.T) {
	var l List
	l.Warnf(CodeOrphanLabel, "hierarchical_label", "u2", "label %q has no sheet pin", "CLK")
	l.Errorf(CodeDuplicateReference, "symbol", "R1", "reference R1 used 2 times")
	l.Add(Issue{Severity: Info, Code: "note", Message: "hello"})

	assert.True(t, l.HasErrors())
	assert.Len(t, l.Filter(Warning), 2)
	assert.Len(t, l.ByCode(CodeOrphanLabel), 1)

	l.Sort()
	assert.Equal(t, Error, l[0].Severity)
	assert.Equal(t, Info, l[2].Severity)
	assert.Equal(t, `error [duplicate_reference] reference R1 used 2 times (symbol R1)`, l[0].String())
}

func TestMergeWithPath(t *testing.T) {
	var a, b List
	b.Add(Issue{Severity: Error, Code: CodeMissingLabel, Path: "/s1", Message: "missing"})
	a.Merge(b)
	assert.Len(t, a, 1)
	assert.Equal(t, "error /s1 [missing_hierarchical_label] missing", a[0].String())
	assert.False(t, List{}.HasErrors())
}
