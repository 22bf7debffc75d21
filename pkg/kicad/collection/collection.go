// Package collection provides an ordered, indexed container for schematic
// elements. Items are kept in insertion order and indexed by their key;
// named secondary indices are rebuilt lazily on the first lookup after a
// mutation.
package collection

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no item has the requested key
	ErrNotFound = errors.New("element not found")

	// ErrDuplicateID is returned by Add when the key is already taken
	ErrDuplicateID = errors.New("duplicate element id")
)

// Element is an item that can be stored in a Collection
type Element interface {
	comparable

	// Key returns the primary identifier (the element UUID)
	Key() string

	// MarkModified flags the element for re-serialization
	MarkModified()
}

// Predicate selects items
type Predicate[T Element] func(T) bool

// ChangeKind describes a mutation
type ChangeKind int

const (
	Added ChangeKind = iota
	Removed
	Updated
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Updated:
		return "updated"
	default:
		return fmt.Sprintf("ChangeKind(%d)", int(k))
	}
}

// Change is passed to OnChange hooks
type Change[T Element] struct {
	Kind ChangeKind
	Item T
}

type index[T Element] struct {
	key     func(T) string
	entries map[string][]T
	dirty   bool
}

// Collection is an ordered set of elements with a primary key index
type Collection[T Element] struct {
	items    []T
	byID     map[string]T
	indices  map[string]*index[T]
	hooks    []func(Change[T])
	modified bool
}

// New creates an empty collection
func New[T Element]() *Collection[T] {
	return &Collection[T]{
		byID:    make(map[string]T),
		indices: make(map[string]*index[T]),
	}
}

// Add appends item. It fails with ErrDuplicateID when the key is taken.
func (c *Collection[T]) Add(item T) error {
	if _, exists := c.byID[item.Key()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, item.Key())
	}
	c.Load(item)
	c.modified = true
	c.notify(Added, item)
	return nil
}

// Load appends item without treating it as a modification. Duplicate keys are
// accepted: the first item keeps the index slot and false is returned.
func (c *Collection[T]) Load(item T) bool {
	c.items = append(c.items, item)
	c.invalidate()
	if _, exists := c.byID[item.Key()]; exists {
		return false
	}
	c.byID[item.Key()] = item
	return true
}

// Remove deletes the item indexed under id
func (c *Collection[T]) Remove(id string) bool {
	item, ok := c.byID[id]
	if !ok {
		return false
	}
	return c.RemoveItem(item)
}

// RemoveItem deletes item from the collection
func (c *Collection[T]) RemoveItem(item T) bool {
	for i, existing := range c.items {
		if existing == item {
			c.removeAt(i)
			return true
		}
	}
	return false
}

func (c *Collection[T]) removeAt(i int) {
	item := c.items[i]
	c.items = append(c.items[:i], c.items[i+1:]...)

	// A later duplicate takes over the primary slot
	key := item.Key()
	if c.byID[key] == item {
		delete(c.byID, key)
		for _, other := range c.items {
			if other.Key() == key {
				c.byID[key] = other
				break
			}
		}
	}

	c.invalidate()
	c.modified = true
	c.notify(Removed, item)
}

// Get returns the item with the given key
func (c *Collection[T]) Get(id string) (T, bool) {
	item, ok := c.byID[id]
	return item, ok
}

// Contains reports whether item is in the collection
func (c *Collection[T]) Contains(item T) bool {
	for _, existing := range c.items {
		if existing == item {
			return true
		}
	}
	return false
}

// Items returns a copy of all items in insertion order
func (c *Collection[T]) Items() []T {
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

// Len returns the number of items
func (c *Collection[T]) Len() int {
	return len(c.items)
}

// Filter returns the items matching pred in insertion order
func (c *Collection[T]) Filter(pred Predicate[T]) []T {
	var out []T
	for _, item := range c.items {
		if pred(item) {
			out = append(out, item)
		}
	}
	return out
}

// Where returns the items matching all predicates
func (c *Collection[T]) Where(preds ...Predicate[T]) []T {
	return c.Filter(All(preds...))
}

// First returns the first item matching pred
func (c *Collection[T]) First(pred Predicate[T]) (T, bool) {
	for _, item := range c.items {
		if pred(item) {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// Update applies fn to the item with the given key and marks it modified
func (c *Collection[T]) Update(id string, fn func(T)) error {
	item, ok := c.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	fn(item)
	c.touch(item)
	return nil
}

// BulkUpdate applies patch to every item matching match and returns how many
// items were patched
func (c *Collection[T]) BulkUpdate(match Predicate[T], patch func(T)) int {
	count := 0
	for _, item := range c.Items() {
		if !match(item) {
			continue
		}
		patch(item)
		c.touch(item)
		count++
	}
	return count
}

func (c *Collection[T]) touch(item T) {
	item.MarkModified()
	c.invalidate()
	c.modified = true
	c.notify(Updated, item)
}

// Modified reports whether the collection changed since ClearModified
func (c *Collection[T]) Modified() bool {
	return c.modified
}

// ClearModified resets the modified flag
func (c *Collection[T]) ClearModified() {
	c.modified = false
}

// Invalidate marks all secondary indices stale. Call it after changing
// indexed fields of an item outside Update and BulkUpdate.
func (c *Collection[T]) Invalidate() {
	c.invalidate()
}

func (c *Collection[T]) invalidate() {
	for _, idx := range c.indices {
		idx.dirty = true
	}
}

// AddIndex registers a named secondary index. Items whose key is empty are
// not indexed.
func (c *Collection[T]) AddIndex(name string, key func(T) string) {
	c.indices[name] = &index[T]{key: key, dirty: true}
}

// Lookup returns the items whose secondary key equals key, in insertion order
func (c *Collection[T]) Lookup(name, key string) []T {
	idx, ok := c.indices[name]
	if !ok {
		return nil
	}
	if idx.dirty {
		idx.entries = make(map[string][]T, len(c.items))
		for _, item := range c.items {
			if k := idx.key(item); k != "" {
				idx.entries[k] = append(idx.entries[k], item)
			}
		}
		idx.dirty = false
	}
	return idx.entries[key]
}

// Keys returns the distinct keys of a secondary index
func (c *Collection[T]) Keys(name string) []string {
	if _, ok := c.indices[name]; !ok {
		return nil
	}
	c.Lookup(name, "")
	keys := make([]string, 0, len(c.indices[name].entries))
	for k := range c.indices[name].entries {
		keys = append(keys, k)
	}
	return keys
}

// OnChange registers a hook called after every Add, Remove and Update
func (c *Collection[T]) OnChange(fn func(Change[T])) {
	c.hooks = append(c.hooks, fn)
}

func (c *Collection[T]) notify(kind ChangeKind, item T) {
	for _, fn := range c.hooks {
		fn(Change[T]{Kind: kind, Item: item})
	}
}

// All combines predicates with logical and
func All[T Element](preds ...Predicate[T]) Predicate[T] {
	return func(item T) bool {
		for _, p := range preds {
			if !p(item) {
				return false
			}
		}
		return true
	}
}

// Any combines predicates with logical or
func Any[T Element](preds ...Predicate[T]) Predicate[T] {
	return func(item T) bool {
		for _, p := range preds {
			if p(item) {
				return true
			}
		}
		return false
	}
}
