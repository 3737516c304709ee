package dht

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/bits"

	"github.com/kutluhann/kademlia-routing/constants"
	"lukechampine.com/uint128"
)

const IDLength = constants.KeySizeBytes

var ErrInvalidNodeIDLength = errors.New("dht: node id must be 20 bytes")

// NodeID is a 160-bit identifier. It names a contact and is also a point in
// the XOR metric space.
type NodeID [IDLength]byte

func NodeIDFromBytes(b []byte) (NodeID, error) {
	var id NodeID
	if len(b) != IDLength {
		return id, fmt.Errorf("%w: got %d", ErrInvalidNodeIDLength, len(b))
	}
	copy(id[:], b)
	return id, nil
}

func ParseNodeID(s string) (NodeID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return NodeID{}, fmt.Errorf("dht: parse node id: %w", err)
	}
	return NodeIDFromBytes(b)
}

// RandomNodeID panics if the system random source fails.
func RandomNodeID() NodeID {
	var id NodeID
	if _, err := rand.Read(id[:]); err != nil {
		panic(err)
	}
	return id
}

func Distance(a, b NodeID) NodeID {
	return a.Xor(b)
}

func (id NodeID) Xor(other NodeID) NodeID {
	var result NodeID
	for i := 0; i < len(id); i++ {
		result[i] = id[i] ^ other[i]
	}
	return result
}

// LeadingZeros returns the number of leading zero bits, 160 for the zero id.
func (id NodeID) LeadingZeros() int {
	for i := 0; i < len(id); i++ {
		if id[i] != 0 {
			return i*8 + bits.LeadingZeros8(id[i])
		}
	}
	return len(id) * 8
}

// PrefixLen is the length of the binary prefix id shares with other.
func (id NodeID) PrefixLen(other NodeID) int {
	return id.Xor(other).LeadingZeros()
}

func (id NodeID) Compare(other NodeID) int {
	return bytes.Compare(id[:], other[:])
}

func (id NodeID) Less(other NodeID) bool {
	return id.Compare(other) < 0
}

func (id NodeID) IsZero() bool {
	return id == NodeID{}
}

// Uint128 interprets the first 16 bytes as a big-endian magnitude. The low
// 32 bits of the id are dropped, so two ids that agree on their top 128 bits
// compare equal here. Bucket ranges are expressed in this space; XOR
// distance always uses all 160 bits.
func (id NodeID) Uint128() uint128.Uint128 {
	return uint128.FromBytesBE(id[:16])
}

func (id NodeID) String() string {
	return hex.EncodeToString(id[:])
}
