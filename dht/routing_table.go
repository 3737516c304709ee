package dht

import (
	"crypto/rand"
	"math/big"
	"net"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/p2p/netutil"
	"lukechampine.com/uint128"
)

// Options are the construction parameters of a RoutingTable.
type Options struct {
	KSize             int // Bucket capacity
	ReplacementFactor int // Replacement cache size per bucket, in multiples of KSize
	TargetDepth       int // Full buckets not covering self split while depth%TargetDepth != 0
	Alpha             int // Contacts seeded into a lookup heap
	HeapSize          int // Visible size of a lookup heap

	BucketIPLimit uint // Max active contacts per subnet and bucket, 0 disables
	BucketSubnet  uint // Prefix length of the subnet used by BucketIPLimit
}

// AddResult describes what AddContact did with a contact.
type AddResult struct {
	// Added is true if the contact is an active bucket entry.
	Added bool
	// Rejected is true if the contact exceeded the bucket IP limit.
	Rejected bool
	// Ping is set when the contact was parked in a full bucket's replacement
	// cache. It is the bucket head; if it fails to answer, the caller should
	// RemoveContact it so the replacement is promoted.
	Ping *Contact
}

// RoutingTable partitions the truncated 128-bit ID space into buckets that
// are split on demand around the local ID.
type RoutingTable struct {
	self    Contact
	opts    Options
	buckets []*KBucket // sorted by range, disjoint, covering the whole space
	mutex   sync.RWMutex
	log     log.Logger
}

func NewRoutingTable(self Contact, opts Options) *RoutingTable {
	return &RoutingTable{
		self:    self,
		opts:    opts,
		buckets: []*KBucket{NewKBucket(uint128.Zero, uint128.Max, opts.KSize, opts.ReplacementFactor)},
		log:     log.New("table", self.ID.String()[:8]),
	}
}

func (rt *RoutingTable) Self() Contact {
	return rt.self
}

// AddContact offers c to the bucket covering it, splitting that bucket when
// it is full and either covers the local ID or sits at a depth that is not
// a multiple of TargetDepth.
func (rt *RoutingTable) AddContact(c Contact) AddResult {
	if c.ID == rt.self.ID {
		return AddResult{}
	}

	rt.mutex.Lock()
	defer rt.mutex.Unlock()

	// Split children hold a subset of the parent's contacts, so one check
	// against the covering bucket holds for every retry below.
	index := rt.bucketIndex(c.ID)
	if !rt.allowIP(rt.buckets[index], c) {
		rt.log.Debug("IP exceeds bucket limit", "id", c.ID, "addr", c.Addr, "b", index)
		return AddResult{Rejected: true}
	}

	for {
		bucket := rt.buckets[index]
		if bucket.AddNode(c) {
			bucket.Touch()
			return AddResult{Added: true}
		}
		if rt.shouldSplit(bucket) && rt.splitBucket(index) {
			index = rt.bucketIndex(c.ID)
			continue
		}

		head, _ := bucket.Head()
		rt.log.Trace("Bucket full, kept as replacement", "id", c.ID, "b", index, "head", head.ID)
		return AddResult{Ping: &head}
	}
}

func (rt *RoutingTable) shouldSplit(b *KBucket) bool {
	if b.HasInRange(rt.self) {
		return true
	}
	return rt.opts.TargetDepth > 0 && b.Depth()%rt.opts.TargetDepth != 0
}

func (rt *RoutingTable) splitBucket(index int) bool {
	left, right, err := rt.buckets[index].Split()
	if err != nil {
		return false
	}
	rt.buckets[index] = left
	rt.buckets = slices.Insert(rt.buckets, index+1, right)

	low, mid := left.Range()
	_, high := right.Range()
	rt.log.Debug("Split bucket", "b", index, "low", low, "mid", mid, "high", high,
		"left", left.Len(), "right", right.Len(), "buckets", len(rt.buckets))
	return true
}

// allowIP checks c against the per-bucket subnet limit, counting both
// active and replacement contacts so a promotion can never exceed it. c's
// own entry is not counted. LAN addresses and contacts without an address
// always pass.
func (rt *RoutingTable) allowIP(b *KBucket, c Contact) bool {
	if rt.opts.BucketIPLimit == 0 || !c.HasAddress() {
		return true
	}
	ip := addrIP(c)
	if netutil.IsLAN(ip) {
		return true
	}

	ips := netutil.DistinctNetSet{Subnet: rt.opts.BucketSubnet, Limit: rt.opts.BucketIPLimit}
	for _, set := range [][]Contact{b.Nodes(), b.ReplacementNodes()} {
		for _, n := range set {
			if n.ID != c.ID && n.HasAddress() {
				ips.Add(addrIP(n))
			}
		}
	}
	return ips.Add(ip)
}

func addrIP(c Contact) net.IP {
	return net.IP(c.Addr.Addr().Unmap().AsSlice())
}

// RemoveContact drops c from its bucket, promoting a replacement if c was active.
func (rt *RoutingTable) RemoveContact(c Contact) {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()

	rt.buckets[rt.bucketIndex(c.ID)].RemoveNode(c)
}

func (rt *RoutingTable) IsNewNode(c Contact) bool {
	rt.mutex.RLock()
	defer rt.mutex.RUnlock()

	return rt.buckets[rt.bucketIndex(c.ID)].IsNewNode(c)
}

// GetBucketFor returns the index of the bucket covering id.
func (rt *RoutingTable) GetBucketFor(id NodeID) int {
	rt.mutex.RLock()
	defer rt.mutex.RUnlock()

	return rt.bucketIndex(id)
}

func (rt *RoutingTable) bucketIndex(id NodeID) int {
	v := id.Uint128()
	return sort.Search(len(rt.buckets), func(i int) bool {
		_, high := rt.buckets[i].Range()
		return v.Cmp(high) <= 0
	})
}

// Buckets returns copies of the buckets in range order. The copies are
// detached from the table and safe to read while it is being modified.
func (rt *RoutingTable) Buckets() []*KBucket {
	rt.mutex.RLock()
	defer rt.mutex.RUnlock()

	out := make([]*KBucket, len(rt.buckets))
	for i, b := range rt.buckets {
		out[i] = b.clone()
	}
	return out
}

func (rt *RoutingTable) TotalContacts() int {
	rt.mutex.RLock()
	defer rt.mutex.RUnlock()

	total := 0
	for _, b := range rt.buckets {
		total += b.Len()
	}
	return total
}

// FindNeighbors returns up to k active contacts closest to target, closest
// first. The target itself and contacts at exclude's address are skipped.
func (rt *RoutingTable) FindNeighbors(target NodeID, k int, exclude *Contact) []Contact {
	heap := NewNodeHeap(NewContact(target), k)

	rt.mutex.RLock()
	for _, b := range rt.buckets {
		for _, n := range b.Nodes() {
			if n.ID == target || (exclude != nil && n.SameHomeAs(*exclude)) {
				continue
			}
			heap.PushOne(n)
		}
	}
	rt.mutex.RUnlock()

	return heap.Contacts()
}

// NewLookupHeap returns the candidate heap an iterative lookup for target
// starts from: Alpha nearest known contacts with HeapSize visible slots.
func (rt *RoutingTable) NewLookupHeap(target NodeID) *NodeHeap {
	heap := NewNodeHeap(NewContact(target), rt.opts.HeapSize)
	heap.Push(rt.FindNeighbors(target, rt.opts.Alpha, nil)...)
	return heap
}

// LonelyBuckets returns copies of the buckets not touched within olderThan.
func (rt *RoutingTable) LonelyBuckets(olderThan time.Duration) []*KBucket {
	rt.mutex.RLock()
	defer rt.mutex.RUnlock()

	var lonely []*KBucket
	for _, b := range rt.buckets {
		if time.Since(b.LastUpdated()) > olderThan {
			lonely = append(lonely, b.clone())
		}
	}
	return lonely
}

// RandomIDInBucket returns a random id the bucket covers, used to refresh it
// with a lookup.
func RandomIDInBucket(b *KBucket) (NodeID, error) {
	low, high := b.Range()
	span := new(big.Int).Add(high.Sub(low).Big(), big.NewInt(1))
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return NodeID{}, err
	}

	id := RandomNodeID()
	low.Add(uint128.FromBig(n)).PutBytesBE(id[:16])
	return id, nil
}
