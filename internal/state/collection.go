package state

import (
	"slices"

	"github.com/soyeahso/agentdesk/internal/domain"
)

// Collection is a normalized keyed set of entities: a by-id map, the
// ordered list of ids, and a secondary index of child ids per parent.
//
// ReplaceAll only rebuilds byID and allIDs. The parent index is left as
// is, so it can keep ids (and parent keys) that the fresh list no longer
// carries. Children skips ids that are gone from byID.
type Collection[T any] struct {
	idOf     func(T) domain.ID
	byID     map[domain.ID]T
	allIDs   []domain.ID
	byParent map[domain.ID][]domain.ID
}

// NewCollection creates an empty collection keyed by idOf.
func NewCollection[T any](idOf func(T) domain.ID) *Collection[T] {
	return &Collection[T]{
		idOf:     idOf,
		byID:     make(map[domain.ID]T),
		byParent: make(map[domain.ID][]domain.ID),
	}
}

// Len returns the number of ids in the ordered list.
func (c *Collection[T]) Len() int { return len(c.allIDs) }

// Has reports whether id is present in byID.
func (c *Collection[T]) Has(id domain.ID) bool {
	_, ok := c.byID[id]
	return ok
}

// Get returns the entity stored under id.
func (c *Collection[T]) Get(id domain.ID) (T, bool) {
	v, ok := c.byID[id]
	return v, ok
}

// IDs returns a copy of the ordered id list.
func (c *Collection[T]) IDs() []domain.ID {
	return slices.Clone(c.allIDs)
}

// All returns the entities in allIDs order.
func (c *Collection[T]) All() []T {
	out := make([]T, 0, len(c.allIDs))
	for _, id := range c.allIDs {
		if v, ok := c.byID[id]; ok {
			out = append(out, v)
		}
	}
	return out
}

// ReplaceAll wipes byID and allIDs and rebuilds them from items. Items
// without an id are skipped; duplicate ids keep their first position and
// the last value.
func (c *Collection[T]) ReplaceAll(items []T) {
	c.byID = make(map[domain.ID]T, len(items))
	c.allIDs = make([]domain.ID, 0, len(items))
	for _, item := range items {
		id := c.idOf(item)
		if id.IsZero() {
			continue
		}
		if _, seen := c.byID[id]; !seen {
			c.allIDs = append(c.allIDs, id)
		}
		c.byID[id] = item
	}
}

// Upsert stores item, combining it with any existing entity through
// merge when merge is non-nil. It reports whether the id was new.
func (c *Collection[T]) Upsert(item T, merge func(existing, incoming T) T) bool {
	id := c.idOf(item)
	if id.IsZero() {
		return false
	}
	existing, ok := c.byID[id]
	if ok && merge != nil {
		item = merge(existing, item)
	}
	c.byID[id] = item
	if !slices.Contains(c.allIDs, id) {
		c.allIDs = append(c.allIDs, id)
	}
	return !ok
}

// Update applies fn to the entity under id in place. It reports whether
// the entity existed.
func (c *Collection[T]) Update(id domain.ID, fn func(*T)) bool {
	v, ok := c.byID[id]
	if !ok {
		return false
	}
	fn(&v)
	c.byID[id] = v
	return true
}

// IndexUnderParent appends id to parent's child list unless already there.
func (c *Collection[T]) IndexUnderParent(parent, id domain.ID) {
	if parent.IsZero() || id.IsZero() {
		return
	}
	children := c.byParent[parent]
	if slices.Contains(children, id) {
		return
	}
	c.byParent[parent] = append(children, id)
}

// SetChildren replaces parent's child list.
func (c *Collection[T]) SetChildren(parent domain.ID, ids []domain.ID) {
	if parent.IsZero() {
		return
	}
	c.byParent[parent] = slices.Clone(ids)
}

// ChildIDs returns a copy of parent's child ids.
func (c *Collection[T]) ChildIDs(parent domain.ID) []domain.ID {
	return slices.Clone(c.byParent[parent])
}

// Children resolves parent's child ids, skipping ids missing from byID.
func (c *Collection[T]) Children(parent domain.ID) []T {
	ids := c.byParent[parent]
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		if v, ok := c.byID[id]; ok {
			out = append(out, v)
		}
	}
	return out
}

// Clear empties the collection and its index.
func (c *Collection[T]) Clear() {
	c.byID = make(map[domain.ID]T)
	c.allIDs = nil
	c.byParent = make(map[domain.ID][]domain.ID)
}
