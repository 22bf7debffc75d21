package collection

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type part struct {
	id       string
	ref      string
	value    string
	modified bool
}

func (p *part) Key() string   { return p.id }
func (p *part) MarkModified() { p.modified = true }

func newParts() *Collection[*part] {
	c := New[*part]()
	c.AddIndex("ref", func(p *part) string { return p.ref })
	c.AddIndex("value", func(p *part) string { return p.value })
	for _, p := range []*part{
		{id: "u1", ref: "R1", value: "10k"},
		{id: "u2", ref: "R2", value: "10k"},
		{id: "u3", ref: "C1", value: "100n"},
	} {
		c.Load(p)
	}
	return c
}

func TestAddGetRemove(t *testing.T) {
	c := newParts()
	assert.Equal(t, 3, c.Len())
	assert.False(t, c.Modified(), "loading is not a modification")

	require.NoError(t, c.Add(&part{id: "u4", ref: "R3"}))
	err := c.Add(&part{id: "u4", ref: "R4"})
	assert.True(t, errors.Is(err, ErrDuplicateID))
	assert.Equal(t, 4, c.Len())

	got, ok := c.Get("u2")
	require.True(t, ok)
	assert.Equal(t, "R2", got.ref)

	assert.True(t, c.Remove("u2"))
	assert.False(t, c.Remove("u2"))
	_, ok = c.Get("u2")
	assert.False(t, ok)

	// removing by item takes the same path
	u1, _ := c.Get("u1")
	assert.True(t, c.RemoveItem(u1))
	assert.False(t, c.RemoveItem(u1))
	assert.Equal(t, []string{"C1", "R3"}, refs(c.Items()))
	assert.True(t, c.Modified())

	c.ClearModified()
	assert.False(t, c.Modified())
}

func TestInsertionOrder(t *testing.T) {
	c := New[*part]()
	for _, id := range []string{"z", "a", "m"} {
		require.NoError(t, c.Add(&part{id: id, ref: id}))
	}
	assert.Equal(t, []string{"z", "a", "m"}, refs(c.Items()))
}

func TestDuplicateKeysOnLoad(t *testing.T) {
	c := New[*part]()
	first := &part{id: "dup", ref: "R1"}
	second := &part{id: "dup", ref: "R2"}
	assert.True(t, c.Load(first))
	assert.False(t, c.Load(second))
	assert.Equal(t, 2, c.Len())

	got, _ := c.Get("dup")
	assert.Same(t, first, got)

	// the duplicate takes over once the owner is gone
	assert.True(t, c.RemoveItem(first))
	got, ok := c.Get("dup")
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestSecondaryIndexRebuild(t *testing.T) {
	c := newParts()
	assert.Len(t, c.Lookup("value", "10k"), 2)
	assert.Len(t, c.Lookup("ref", "C1"), 1)
	assert.Nil(t, c.Lookup("missing", "x"))

	// update through the collection refreshes the index
	require.NoError(t, c.Update("u3", func(p *part) { p.value = "10k" }))
	assert.Len(t, c.Lookup("value", "10k"), 3)
	assert.Empty(t, c.Lookup("value", "100n"))

	p, _ := c.Get("u3")
	assert.True(t, p.modified)

	err := c.Update("nope", func(*part) {})
	assert.True(t, errors.Is(err, ErrNotFound))

	// direct writes need an explicit invalidation
	p.value = "1u"
	assert.Len(t, c.Lookup("value", "10k"), 3)
	c.Invalidate()
	assert.Len(t, c.Lookup("value", "10k"), 2)
	assert.ElementsMatch(t, []string{"10k", "1u"}, c.Keys("value"))
}

func TestBulkUpdate(t *testing.T) {
	c := newParts()
	n := c.BulkUpdate(func(p *part) bool { return p.value == "10k" }, func(p *part) { p.value = "4k7" })
	assert.Equal(t, 2, n)

	for _, p := range c.Items() {
		if p.ref == "C1" {
			assert.False(t, p.modified, "non-matching items must not be touched")
			assert.Equal(t, "100n", p.value)
		} else {
			assert.True(t, p.modified)
			assert.Equal(t, "4k7", p.value)
		}
	}
	assert.Len(t, c.Lookup("value", "4k7"), 2)
}

func TestFilterWhere(t *testing.T) {
	c := newParts()
	isResistor := func(p *part) bool { return p.ref[0] == 'R' }
	is10k := func(p *part) bool { return p.value == "10k" }
	isC1 := func(p *part) bool { return p.ref == "C1" }

	assert.Equal(t, []string{"R1", "R2"}, refs(c.Filter(isResistor)))
	assert.Equal(t, []string{"R1", "R2"}, refs(c.Where(isResistor, is10k)))
	assert.Empty(t, c.Where(isResistor, isC1))
	assert.Len(t, c.Filter(Any[*part](isC1, is10k)), 3)

	first, ok := c.First(is10k)
	require.True(t, ok)
	assert.Equal(t, "R1", first.ref)
}

func TestOnChange(t *testing.T) {
	c := newParts()
	var kinds []ChangeKind
	c.OnChange(func(ch Change[*part]) { kinds = append(kinds, ch.Kind) })

	require.NoError(t, c.Add(&part{id: "u9"}))
	require.NoError(t, c.Update("u9", func(*part) {}))
	c.Remove("u9")

	assert.Equal(t, []ChangeKind{Added, Updated, Removed}, kinds)
	assert.Equal(t, "removed", Removed.String())
}

func refs(parts []*part) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, p.ref)
	}
	return out
}
