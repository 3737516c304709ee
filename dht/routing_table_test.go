package dht

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"lukechampine.com/uint128"
)

type RoutingTableTestSuite struct {
	suite.Suite
	self  Contact
	table *RoutingTable
}

func testOptions() Options {
	return Options{
		KSize:             2,
		ReplacementFactor: 1,
		TargetDepth:       5,
		Alpha:             2,
		HeapSize:          3,
	}
}

func (s *RoutingTableTestSuite) SetupTest() {
	s.self = NewContact(NodeID{})
	s.table = NewRoutingTable(s.self, testOptions())
}

func TestRoutingTableTestSuite(t *testing.T) {
	suite.Run(t, new(RoutingTableTestSuite))
}

func (s *RoutingTableTestSuite) TestStartsWithSingleBucket() {
	buckets := s.table.Buckets()
	s.Require().Len(buckets, 1)

	low, high := buckets[0].Range()
	s.True(low.IsZero())
	s.Equal(uint128.Max, high)
	s.Equal(0, s.table.TotalContacts())
}

func (s *RoutingTableTestSuite) TestIgnoresSelf() {
	res := s.table.AddContact(s.self)
	s.False(res.Added)
	s.Nil(res.Ping)
	s.Equal(0, s.table.TotalContacts())
}

func (s *RoutingTableTestSuite) TestAddContact() {
	c := contactWithPrefix(0x80)
	s.True(s.table.AddContact(c).Added)
	s.False(s.table.IsNewNode(c))
	s.Equal(1, s.table.TotalContacts())

	s.True(s.table.AddContact(c).Added)
	s.Equal(1, s.table.TotalContacts())
}

func (s *RoutingTableTestSuite) TestSplitsUntilContactFits() {
	for _, p := range []byte{0x80, 0x90} {
		s.Require().True(s.table.AddContact(contactWithPrefix(p)).Added)
	}

	// The first split is forced by the bucket covering self, the next two by
	// a depth of 3 that is not a multiple of 5.
	res := s.table.AddContact(contactWithPrefix(0xa0))
	s.True(res.Added)
	s.Nil(res.Ping)
	s.Equal(3, s.table.TotalContacts())
	s.Len(s.table.Buckets(), 4)

	s.Equal(s.table.GetBucketFor(idWithPrefix(0x80)), s.table.GetBucketFor(idWithPrefix(0x90)))
	s.NotEqual(s.table.GetBucketFor(idWithPrefix(0x80)), s.table.GetBucketFor(idWithPrefix(0xa0)))
	s.Equal(0, s.table.GetBucketFor(s.self.ID))
}

func (s *RoutingTableTestSuite) TestBucketsStayContiguous() {
	for i := 0; i < 64; i++ {
		s.table.AddContact(NewContact(RandomNodeID()))
	}

	buckets := s.table.Buckets()
	low, _ := buckets[0].Range()
	s.True(low.IsZero())
	for i := 1; i < len(buckets); i++ {
		_, prevHigh := buckets[i-1].Range()
		low, _ := buckets[i].Range()
		s.Equal(prevHigh.Add64(1), low)
	}
	_, high := buckets[len(buckets)-1].Range()
	s.Equal(uint128.Max, high)

	for _, b := range buckets {
		for _, c := range b.Nodes() {
			s.True(b.HasInRange(c))
		}
	}
}

func (s *RoutingTableTestSuite) TestFullBucketAsksForPing() {
	opts := testOptions()
	opts.TargetDepth = 1
	table := NewRoutingTable(s.self, opts)

	first, second, third := contactWithPrefix(0x80), contactWithPrefix(0x90), contactWithPrefix(0xa0)
	table.AddContact(first)
	table.AddContact(second)

	res := table.AddContact(third)
	s.False(res.Added)
	s.Require().NotNil(res.Ping)
	s.Equal(first, *res.Ping)
	s.True(table.IsNewNode(third))

	table.RemoveContact(first)
	bucket := table.Buckets()[table.GetBucketFor(third.ID)]
	s.Equal([]Contact{second, third}, bucket.Nodes())
	s.Equal(0, bucket.ReplacementCount())
}

func (s *RoutingTableTestSuite) TestBucketIPLimit() {
	opts := testOptions()
	opts.KSize = 4
	opts.BucketIPLimit = 1
	opts.BucketSubnet = 24
	table := NewRoutingTable(s.self, opts)

	s.True(table.AddContact(NewContactWithAddr(idWithPrefix(0x80), mustAddr("203.0.113.1:30303"))).Added)

	res := table.AddContact(NewContactWithAddr(idWithPrefix(0x90), mustAddr("203.0.113.2:30303")))
	s.True(res.Rejected)
	s.False(res.Added)

	s.True(table.AddContact(NewContactWithAddr(idWithPrefix(0xa0), mustAddr("198.51.100.1:30303"))).Added)
	s.True(table.AddContact(NewContactWithAddr(idWithPrefix(0xb0), mustAddr("127.0.0.1:30303"))).Added)
	s.True(table.AddContact(NewContactWithAddr(idWithPrefix(0x80), mustAddr("203.0.113.1:30304"))).Added)
	s.Equal(3, table.TotalContacts())
}

func (s *RoutingTableTestSuite) TestBucketIPLimitCountsReplacements() {
	opts := testOptions()
	opts.TargetDepth = 1
	opts.BucketIPLimit = 1
	opts.BucketSubnet = 24
	table := NewRoutingTable(s.self, opts)

	a := NewContactWithAddr(idWithPrefix(0x80), mustAddr("1.1.1.1:1"))
	b := NewContactWithAddr(idWithPrefix(0x90), mustAddr("2.2.2.2:1"))
	c := NewContactWithAddr(idWithPrefix(0xa0), mustAddr("3.3.3.3:1"))
	d := NewContactWithAddr(idWithPrefix(0xb0), mustAddr("3.3.3.4:1"))

	s.True(table.AddContact(a).Added)
	s.True(table.AddContact(b).Added)

	res := table.AddContact(c)
	s.False(res.Rejected)
	s.Require().NotNil(res.Ping)

	// Re-offering a cached replacement is not counted against itself.
	s.NotNil(table.AddContact(c).Ping)

	res = table.AddContact(d)
	s.True(res.Rejected)
	s.Nil(res.Ping)

	table.RemoveContact(a)
	table.RemoveContact(b)

	subnet := netip.MustParsePrefix("3.3.3.0/24")
	inSubnet := 0
	for _, bucket := range table.Buckets() {
		for _, n := range bucket.Nodes() {
			if subnet.Contains(n.Addr.Addr()) {
				inSubnet++
			}
		}
	}
	s.Equal(1, inSubnet)
}

func (s *RoutingTableTestSuite) TestRejectedContactIsNotKept() {
	opts := testOptions()
	opts.BucketIPLimit = 1
	opts.BucketSubnet = 24
	table := NewRoutingTable(s.self, opts)

	s.True(table.AddContact(NewContactWithAddr(idWithPrefix(0x10), mustAddr("203.0.113.1:1"))).Added)
	s.True(table.AddContact(NewContactWithAddr(idWithPrefix(0x80), mustAddr("198.51.100.1:1"))).Added)

	// The bucket is full and covers self, so an accepted contact would split it.
	rejected := NewContactWithAddr(idWithPrefix(0x90), mustAddr("203.0.113.2:1"))
	s.True(table.AddContact(rejected).Rejected)

	s.Len(table.Buckets(), 1)
	for _, bucket := range table.Buckets() {
		_, active := bucket.Get(rejected.ID)
		s.False(active)
		s.NotContains(bucket.ReplacementNodes(), rejected)
	}
	s.True(table.IsNewNode(rejected))
}

func (s *RoutingTableTestSuite) TestBucketsAreSnapshots() {
	s.table.AddContact(contactWithPrefix(0x80))
	before := s.table.Buckets()
	s.Require().Len(before, 1)

	s.table.AddContact(contactWithPrefix(0x90))
	s.table.RemoveContact(contactWithPrefix(0x80))
	s.Equal([]Contact{contactWithPrefix(0x80)}, before[0].Nodes())

	before[0].AddNode(contactWithPrefix(0xa0))
	s.Equal(1, s.table.TotalContacts())

	time.Sleep(time.Millisecond)
	lonely := s.table.LonelyBuckets(0)
	s.Require().Len(lonely, 1)
	lonely[0].RemoveNode(contactWithPrefix(0x90))
	s.Equal(1, s.table.TotalContacts())
}

func (s *RoutingTableTestSuite) TestFindNeighbors() {
	opts := testOptions()
	opts.KSize = 20
	table := NewRoutingTable(s.self, opts)

	contacts := map[byte]Contact{}
	for i, p := range []byte{0x01, 0x02, 0x04, 0x08} {
		c := NewContactWithAddr(idWithPrefix(p), netip.AddrPortFrom(netip.MustParseAddr("203.0.113.1"), uint16(1000+i)))
		contacts[p] = c
		table.AddContact(c)
	}

	target := idWithPrefix(0x03)
	s.Equal([]Contact{contacts[0x02], contacts[0x01], contacts[0x04]}, table.FindNeighbors(target, 3, nil))

	exclude := NewContactWithAddr(RandomNodeID(), contacts[0x02].Addr)
	s.Equal([]Contact{contacts[0x01], contacts[0x04], contacts[0x08]}, table.FindNeighbors(target, 3, &exclude))

	s.Equal([]Contact{contacts[0x02], contacts[0x04]}, table.FindNeighbors(idWithPrefix(0x01), 2, nil))
}

func (s *RoutingTableTestSuite) TestNewLookupHeap() {
	for _, p := range []byte{0x80, 0x90, 0xa0, 0xb0} {
		s.table.AddContact(contactWithPrefix(p))
	}

	heap := s.table.NewLookupHeap(idWithPrefix(0x91))
	s.Equal(idWithPrefix(0x91), heap.ReferenceNode().ID)
	s.Equal(2, heap.ActualSize())
	s.Equal([]NodeID{idWithPrefix(0x90), idWithPrefix(0x80)}, heap.IDs())
}

func (s *RoutingTableTestSuite) TestLonelyBuckets() {
	s.table.AddContact(contactWithPrefix(0x80))
	s.Empty(s.table.LonelyBuckets(time.Hour))

	time.Sleep(time.Millisecond)
	s.Len(s.table.LonelyBuckets(0), 1)
}

func (s *RoutingTableTestSuite) TestRandomIDInBucket() {
	for _, p := range []byte{0x80, 0x90, 0xa0} {
		s.table.AddContact(contactWithPrefix(p))
	}

	for _, b := range s.table.Buckets() {
		for i := 0; i < 10; i++ {
			id, err := RandomIDInBucket(b)
			s.Require().NoError(err)
			s.True(b.HasInRange(NewContact(id)))
		}
	}

	point := NewKBucket(uint128.From64(42), uint128.From64(42), 1, 1)
	id, err := RandomIDInBucket(point)
	s.Require().NoError(err)
	s.True(id.Uint128().Equals64(42))
}
