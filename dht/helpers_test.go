package dht

import "net/netip"

// idWithPrefix returns a NodeID starting with the given bytes, zero padded.
func idWithPrefix(prefix ...byte) NodeID {
	var id NodeID
	copy(id[:], prefix)
	return id
}

func contactWithPrefix(prefix ...byte) Contact {
	return NewContact(idWithPrefix(prefix...))
}

func mustAddr(s string) netip.AddrPort {
	return netip.MustParseAddrPort(s)
}
