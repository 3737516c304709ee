package id_tools

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net/netip"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	ecies "github.com/ecies/go/v2"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/crypto/blake2b"

	"github.com/kutluhann/kademlia-routing/config"
	"github.com/kutluhann/kademlia-routing/constants"
	"github.com/kutluhann/kademlia-routing/dht"
)

var ErrInvalidPublicKey = errors.New("id_tools: invalid secp256k1 public key")

// Identity is a node keypair together with the NodeID derived from it.
type Identity struct {
	key *ecies.PrivateKey
	id  dht.NodeID
}

func GenerateIdentity() (*Identity, error) {
	key, err := ecies.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("id_tools: generate key: %w", err)
	}
	return NewIdentity(key)
}

// LoadIdentity restores an identity from a hex encoded private key.
func LoadIdentity(hexKey string) (*Identity, error) {
	key, err := ecies.NewPrivateKeyFromHex(hexKey)
	if err != nil {
		return nil, fmt.Errorf("id_tools: load key: %w", err)
	}
	return NewIdentity(key)
}

// FromConfig uses the configured private key, generating and storing a new
// one when none is set.
func FromConfig(c *config.Config) (*Identity, error) {
	if c.HasPrivateKey() {
		return NewIdentity(c.GetPrivateKey())
	}
	ident, err := GenerateIdentity()
	if err != nil {
		return nil, err
	}
	c.SetPrivateKey(ident.key)
	return ident, nil
}

func NewIdentity(key *ecies.PrivateKey) (*Identity, error) {
	id, err := IdentifierFromPublicKey(key.PublicKey.Bytes(true))
	if err != nil {
		return nil, err
	}
	return &Identity{key: key, id: id}, nil
}

// IdentifierFromPublicKey derives a NodeID as the salted 160-bit BLAKE2b
// digest of the compressed public key. raw may be compressed or not.
func IdentifierFromPublicKey(raw []byte) (dht.NodeID, error) {
	pub, err := secp256k1.ParsePubKey(raw)
	if err != nil {
		return dht.NodeID{}, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}

	h, err := blake2b.New(dht.IDLength, []byte(constants.Salt))
	if err != nil {
		return dht.NodeID{}, err
	}
	h.Write(pub.SerializeCompressed())
	return dht.NodeIDFromBytes(h.Sum(nil))
}

// CheckPublicKeyMatchesID reports whether id was derived from the public key.
func CheckPublicKeyMatchesID(raw []byte, id dht.NodeID) bool {
	derived, err := IdentifierFromPublicKey(raw)
	return err == nil && derived == id
}

func challengeHash(message []byte) []byte {
	h := blake2b.Sum256(message)
	return h[:]
}

// SignMessage returns the DER encoded signature of message.
func SignMessage(key *ecies.PrivateKey, message []byte) []byte {
	priv := secp256k1.PrivKeyFromBytes(key.Bytes())
	return ecdsa.Sign(priv, challengeHash(message)).Serialize()
}

// VerifySignature checks a DER signature of message against a serialized
// public key.
func VerifySignature(raw, message, signature []byte) bool {
	pub, err := secp256k1.ParsePubKey(raw)
	if err != nil {
		return false
	}
	sig, err := ecdsa.ParseDERSignature(signature)
	if err != nil {
		return false
	}
	return sig.Verify(challengeHash(message), pub)
}

// VerifyIdentity checks that id belongs to key: the id must derive from the
// public key, and a random challenge signed with the private key must
// verify against it.
func VerifyIdentity(key *ecies.PrivateKey, id dht.NodeID) bool {
	if key == nil {
		return false
	}
	pub := key.PublicKey.Bytes(true)
	if !CheckPublicKeyMatchesID(pub, id) {
		log.Warn("Public key does not match node ID", "id", id)
		return false
	}

	challenge := make([]byte, 32)
	if _, err := rand.Read(challenge); err != nil {
		log.Warn("Failed to generate identity challenge", "err", err)
		return false
	}
	if !VerifySignature(pub, challenge, SignMessage(key, challenge)) {
		log.Warn("Signature verification failed", "id", id)
		return false
	}
	return true
}

func (i *Identity) ID() dht.NodeID {
	return i.id
}

func (i *Identity) PrivateKey() *ecies.PrivateKey {
	return i.key
}

func (i *Identity) PublicKeyBytes() []byte {
	return i.key.PublicKey.Bytes(true)
}

func (i *Identity) Hex() string {
	return i.key.Hex()
}

// Contact returns the local contact. Pass the zero AddrPort for a
// placeholder that is never dialed.
func (i *Identity) Contact(addr netip.AddrPort) dht.Contact {
	return dht.NewContactWithAddr(i.id, addr)
}
