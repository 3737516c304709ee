package dht

import (
	"github.com/google/btree"
)

type heapEntry struct {
	distance NodeID
	contact  Contact
}

func heapEntryLess(a, b heapEntry) bool {
	if c := a.distance.Compare(b.distance); c != 0 {
		return c < 0
	}
	return a.contact.ID.Less(b.contact.ID)
}

// NodeHeap is the candidate set of a lookup, ordered by XOR distance to a
// reference contact.
//
// Only the maxSize closest entries are visible through Len, Contacts and
// Uncontacted, but every pushed contact is retained. Removing entries can
// therefore leave the visible size unchanged: farther contacts move into
// view.
//
// A NodeHeap is not safe for concurrent use; keep one per lookup.
type NodeHeap struct {
	node      Contact
	tree      *btree.BTreeG[heapEntry]
	entries   map[NodeID]heapEntry
	contacted map[NodeID]struct{}
	maxSize   int
}

func NewNodeHeap(node Contact, maxSize int) *NodeHeap {
	return &NodeHeap{
		node:      node,
		tree:      btree.NewG[heapEntry](8, heapEntryLess),
		entries:   make(map[NodeID]heapEntry),
		contacted: make(map[NodeID]struct{}),
		maxSize:   maxSize,
	}
}

// Push adds contacts not already present. The first push of an ID wins.
func (h *NodeHeap) Push(contacts ...Contact) {
	for _, c := range contacts {
		if _, ok := h.entries[c.ID]; ok {
			continue
		}
		e := heapEntry{distance: h.node.DistanceTo(c), contact: c}
		h.entries[c.ID] = e
		h.tree.ReplaceOrInsert(e)
	}
}

func (h *NodeHeap) PushOne(c Contact) {
	h.Push(c)
}

// PopLeft removes and returns the closest contact.
func (h *NodeHeap) PopLeft() (Contact, bool) {
	e, ok := h.tree.DeleteMin()
	if !ok {
		return Contact{}, false
	}
	delete(h.entries, e.contact.ID)
	return e.contact, true
}

// Remove drops every entry with one of the given IDs.
func (h *NodeHeap) Remove(ids ...NodeID) {
	for _, id := range ids {
		e, ok := h.entries[id]
		if !ok {
			continue
		}
		delete(h.entries, id)
		h.tree.Delete(e)
	}
}

// MarkContacted records that c has been queried. The contact stays in the heap.
func (h *NodeHeap) MarkContacted(c Contact) {
	h.contacted[c.ID] = struct{}{}
}

func (h *NodeHeap) IsContacted(id NodeID) bool {
	_, ok := h.contacted[id]
	return ok
}

// Get looks id up in the visible view.
func (h *NodeHeap) Get(id NodeID) (Contact, bool) {
	var (
		found Contact
		ok    bool
	)
	h.ascend(func(c Contact) bool {
		if c.ID == id {
			found, ok = c, true
			return false
		}
		return true
	})
	return found, ok
}

func (h *NodeHeap) Contains(c Contact) bool {
	_, ok := h.Get(c.ID)
	return ok
}

func (h *NodeHeap) HaveContactedAll() bool {
	return len(h.Uncontacted()) == 0
}

// Uncontacted returns the visible contacts not yet queried, closest first.
func (h *NodeHeap) Uncontacted() []Contact {
	var out []Contact
	h.ascend(func(c Contact) bool {
		if !h.IsContacted(c.ID) {
			out = append(out, c)
		}
		return true
	})
	return out
}

// Contacts returns the visible contacts, closest first.
func (h *NodeHeap) Contacts() []Contact {
	out := make([]Contact, 0, h.Len())
	h.ascend(func(c Contact) bool {
		out = append(out, c)
		return true
	})
	return out
}

func (h *NodeHeap) IDs() []NodeID {
	ids := make([]NodeID, 0, h.Len())
	h.ascend(func(c Contact) bool {
		ids = append(ids, c.ID)
		return true
	})
	return ids
}

// Len is the visible size, at most maxSize.
func (h *NodeHeap) Len() int {
	return min(h.tree.Len(), h.maxSize)
}

// ActualSize counts every retained entry, visible or not.
func (h *NodeHeap) ActualSize() int {
	return h.tree.Len()
}

func (h *NodeHeap) IsEmpty() bool {
	return h.tree.Len() == 0
}

// Clear empties the heap and forgets which contacts were queried.
func (h *NodeHeap) Clear() {
	h.tree.Clear(false)
	clear(h.entries)
	clear(h.contacted)
}

func (h *NodeHeap) ReferenceNode() Contact {
	return h.node
}

// ascend walks the visible view in distance order until fn returns false.
func (h *NodeHeap) ascend(fn func(Contact) bool) {
	n := 0
	h.tree.Ascend(func(e heapEntry) bool {
		if n >= h.maxSize {
			return false
		}
		n++
		return fn(e.contact)
	})
}
