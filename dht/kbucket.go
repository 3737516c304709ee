package dht

import (
	"errors"
	"time"

	"lukechampine.com/uint128"
)

var ErrBucketUnsplittable = errors.New("dht: bucket range holds a single point")

// KBucket holds up to ksize active contacts whose truncated ID magnitude
// falls in [low, high], plus a bounded cache of replacement contacts.
//
// A KBucket is not safe for concurrent use.
type KBucket struct {
	low             uint128.Uint128
	high            uint128.Uint128
	nodes           *contactList
	replacements    *contactList
	lastUpdated     time.Time
	ksize           int
	maxReplacements int
}

func NewKBucket(low, high uint128.Uint128, ksize, replacementFactor int) *KBucket {
	return &KBucket{
		low:             low,
		high:            high,
		nodes:           newContactList(),
		replacements:    newContactList(),
		lastUpdated:     time.Now(),
		ksize:           ksize,
		maxReplacements: ksize * replacementFactor,
	}
}

// clone returns a deep copy of the bucket.
func (kb *KBucket) clone() *KBucket {
	cp := &KBucket{
		low:             kb.low,
		high:            kb.high,
		nodes:           newContactList(),
		replacements:    newContactList(),
		lastUpdated:     kb.lastUpdated,
		ksize:           kb.ksize,
		maxReplacements: kb.maxReplacements,
	}
	for _, c := range kb.nodes.Slice() {
		cp.nodes.PushBack(c)
	}
	for _, c := range kb.replacements.Slice() {
		cp.replacements.PushBack(c)
	}
	return cp
}

// Touch marks the bucket as recently used.
func (kb *KBucket) Touch() {
	kb.lastUpdated = time.Now()
}

func (kb *KBucket) LastUpdated() time.Time {
	return kb.lastUpdated
}

func (kb *KBucket) Range() (low, high uint128.Uint128) {
	return kb.low, kb.high
}

func (kb *KBucket) KSize() int {
	return kb.ksize
}

func (kb *KBucket) replacementFactor() int {
	if kb.ksize == 0 {
		return 0
	}
	return kb.maxReplacements / kb.ksize
}

func (kb *KBucket) covers(v uint128.Uint128) bool {
	return kb.low.Cmp(v) <= 0 && v.Cmp(kb.high) <= 0
}

// HasInRange reports whether the contact's ID falls in the bucket range.
func (kb *KBucket) HasInRange(c Contact) bool {
	return kb.covers(c.ID.Uint128())
}

// IsNewNode reports whether c is not among the active contacts.
func (kb *KBucket) IsNewNode(c Contact) bool {
	return !kb.nodes.Has(c.ID)
}

// AddNode inserts or refreshes c.
//
// It returns true if c is an active contact afterwards. A full bucket keeps
// c at the back of the replacement cache, evicting from the front while the
// cache is over its bound, and returns false.
func (kb *KBucket) AddNode(c Contact) bool {
	if kb.nodes.Has(c.ID) || kb.nodes.Len() < kb.ksize {
		kb.replacements.Remove(c.ID)
		kb.nodes.PushBack(c)
		return true
	}

	kb.replacements.PushBack(c)
	for kb.replacements.Len() > kb.maxReplacements {
		kb.replacements.PopFront()
	}
	return false
}

// RemoveNode drops c from the bucket. If c was active, the oldest
// replacement takes its slot.
func (kb *KBucket) RemoveNode(c Contact) {
	kb.replacements.Remove(c.ID)

	if _, ok := kb.nodes.Remove(c.ID); !ok {
		return
	}
	if next, ok := kb.replacements.PopFront(); ok {
		kb.nodes.PushBack(next)
	}
}

// Split divides the range at its midpoint and redistributes every active
// and replacement contact, in that order, into the child covering it. The
// receiver must be discarded afterwards.
func (kb *KBucket) Split() (*KBucket, *KBucket, error) {
	if kb.low.Cmp(kb.high) >= 0 {
		return nil, nil, ErrBucketUnsplittable
	}

	// low + (high-low)/2 is (low+high)/2 without overflowing 128 bits.
	mid := kb.low.Add(kb.high.Sub(kb.low).Rsh(1))
	factor := kb.replacementFactor()
	left := NewKBucket(kb.low, mid, kb.ksize, factor)
	right := NewKBucket(mid.Add64(1), kb.high, kb.ksize, factor)

	for _, set := range []*contactList{kb.nodes, kb.replacements} {
		for _, c := range set.Slice() {
			if c.ID.Uint128().Cmp(mid) <= 0 {
				left.AddNode(c)
			} else {
				right.AddNode(c)
			}
		}
	}
	return left, right, nil
}

// Depth is the length of the binary prefix shared by every active contact.
func (kb *KBucket) Depth() int {
	first, ok := kb.nodes.Front()
	if !ok {
		return 0
	}

	depth := IDLength * 8
	for _, c := range kb.nodes.Slice() {
		if n := first.ID.PrefixLen(c.ID); n < depth {
			depth = n
		}
	}
	return depth
}

// Head returns the least recently seen active contact.
func (kb *KBucket) Head() (Contact, bool) {
	return kb.nodes.Front()
}

func (kb *KBucket) Get(id NodeID) (Contact, bool) {
	return kb.nodes.Get(id)
}

// Nodes returns the active contacts, most recently seen last.
func (kb *KBucket) Nodes() []Contact {
	return kb.nodes.Slice()
}

func (kb *KBucket) Len() int {
	return kb.nodes.Len()
}

func (kb *KBucket) IsEmpty() bool {
	return kb.nodes.Len() == 0
}

func (kb *KBucket) IsFull() bool {
	return kb.nodes.Len() >= kb.ksize
}

func (kb *KBucket) ReplacementNodes() []Contact {
	return kb.replacements.Slice()
}

func (kb *KBucket) ReplacementCount() int {
	return kb.replacements.Len()
}
