package dht

import (
	list "github.com/bahlo/generic-list-go"
)

// contactList is an insertion-ordered set of contacts keyed by ID. The
// front is the oldest entry, the back the most recently inserted one.
type contactList struct {
	order *list.List[Contact]
	index map[NodeID]*list.Element[Contact]
}

func newContactList() *contactList {
	return &contactList{
		order: list.New[Contact](),
		index: make(map[NodeID]*list.Element[Contact]),
	}
}

func (l *contactList) Len() int {
	return l.order.Len()
}

func (l *contactList) Has(id NodeID) bool {
	_, ok := l.index[id]
	return ok
}

func (l *contactList) Get(id NodeID) (Contact, bool) {
	e, ok := l.index[id]
	if !ok {
		return Contact{}, false
	}
	return e.Value, true
}

// PushBack stores c at the back. An existing entry with the same ID is
// dropped first, so the contact moves to the most recent position.
func (l *contactList) PushBack(c Contact) {
	l.Remove(c.ID)
	l.index[c.ID] = l.order.PushBack(c)
}

func (l *contactList) Remove(id NodeID) (Contact, bool) {
	e, ok := l.index[id]
	if !ok {
		return Contact{}, false
	}
	delete(l.index, id)
	return l.order.Remove(e), true
}

func (l *contactList) Front() (Contact, bool) {
	e := l.order.Front()
	if e == nil {
		return Contact{}, false
	}
	return e.Value, true
}

func (l *contactList) PopFront() (Contact, bool) {
	c, ok := l.Front()
	if !ok {
		return Contact{}, false
	}
	return l.Remove(c.ID)
}

func (l *contactList) Slice() []Contact {
	out := make([]Contact, 0, l.order.Len())
	for e := l.order.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value)
	}
	return out
}
