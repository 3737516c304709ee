package dht

import (
	"net/netip"
)

// Contact is a known peer. Identity is the ID alone; Addr is the zero
// AddrPort for placeholders such as a freshly generated local identity.
type Contact struct {
	ID   NodeID
	Addr netip.AddrPort
}

func NewContact(id NodeID) Contact {
	return Contact{ID: id}
}

func NewContactWithAddr(id NodeID, addr netip.AddrPort) Contact {
	return Contact{ID: id, Addr: addr}
}

// HasAddress reports whether the contact can be dialed.
func (c Contact) HasAddress() bool {
	return c.Addr.IsValid()
}

// SameHomeAs reports whether both contacts sit at the same network endpoint.
// Two contacts without an address share a home.
func (c Contact) SameHomeAs(other Contact) bool {
	return c.Addr == other.Addr
}

func (c Contact) DistanceTo(other Contact) NodeID {
	return c.ID.Xor(other.ID)
}

func (c Contact) String() string {
	if !c.HasAddress() {
		return c.ID.String()
	}
	return c.ID.String() + "@" + c.Addr.String()
}
