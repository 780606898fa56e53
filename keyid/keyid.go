// Package keyid defines the node identity used throughout the cluster:
// a totally-ordered, cryptographic public-key identifier, and the
// keypair a node holds for the authentication handshake's ECDH
// exchange.
package keyid

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
)

// Size is the byte length of a compressed secp256k1 public key, and
// therefore of a NodeId.
const Size = 33

// NodeId is the compressed-point encoding of a peer's public key.
// Equality is cryptographic identity; ordering is the lexicographic
// order of the encoded bytes, which is what gives Consensus.SelectNodes
// its determinism across every participant.
type NodeId [Size]byte

// Curve is the elliptic curve used for every node identity and for the
// authentication handshake's ECDH exchange.
func Curve() elliptic.Curve { return btcec.S256() }

// Less reports whether id sorts before other.
func (id NodeId) Less(other NodeId) bool {
	return bytes.Compare(id[:], other[:]) < 0
}

// String renders the hex encoding of id.
func (id NodeId) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns the raw compressed-point bytes.
func (id NodeId) Bytes() []byte {
	return id[:]
}

// FromPublicKey derives the NodeId for pub.
func FromPublicKey(pub *ecdsa.PublicKey) NodeId {
	var id NodeId
	copy(id[:], elliptic.MarshalCompressed(Curve(), pub.X, pub.Y))
	return id
}

// Parse decodes a NodeId from its compressed-point bytes, validating
// that it is a point on the curve.
func Parse(data []byte) (NodeId, error) {
	if len(data) != Size {
		return NodeId{}, errors.New("keyid: wrong length for compressed public key")
	}
	x, y := elliptic.UnmarshalCompressed(Curve(), data)
	if x == nil {
		return NodeId{}, errors.New("keyid: not a valid point on curve")
	}
	var id NodeId
	copy(id[:], data)
	return id, nil
}

// PublicKey recovers the *ecdsa.PublicKey this NodeId encodes.
func (id NodeId) PublicKey() (*ecdsa.PublicKey, error) {
	x, y := elliptic.UnmarshalCompressed(Curve(), id[:])
	if x == nil {
		return nil, errors.New("keyid: not a valid point on curve")
	}
	return &ecdsa.PublicKey{Curve: Curve(), X: x, Y: y}, nil
}

// KeyPair is the private/public keypair a node holds for its own
// identity: it derives the ECDH shared secrets that let it answer
// authentication challenges.
type KeyPair struct {
	Private *ecdsa.PrivateKey
}

// Generate creates a fresh random KeyPair.
func Generate() (*KeyPair, error) {
	priv, err := ecdsa.GenerateKey(Curve(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &KeyPair{Private: priv}, nil
}

// NodeId returns the NodeId for this keypair's public half.
func (kp *KeyPair) NodeId() NodeId {
	return FromPublicKey(&kp.Private.PublicKey)
}

// ECDH derives a shared secret between priv and a peer's public key,
// by scalar-multiplying the peer's point with priv's scalar.
func ECDH(priv *ecdsa.PrivateKey, peerPub *ecdsa.PublicKey) []byte {
	x, _ := priv.Curve.ScalarMult(peerPub.X, peerPub.Y, priv.D.Bytes())
	return x.Bytes()
}

// Hex renders the keypair's private scalar as hex, for writing to a
// keys file. btcec's S256 is not one of the named curves x509 knows
// how to encode, so the pair is serialized as its raw scalar rather
// than through x509.MarshalECPrivateKey.
func (kp *KeyPair) Hex() string {
	return hex.EncodeToString(kp.Private.D.Bytes())
}

// ParseHex reconstructs a KeyPair from the hex scalar Hex produced.
func ParseHex(s string) (*KeyPair, error) {
	d, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	priv := new(ecdsa.PrivateKey)
	priv.Curve = Curve()
	priv.D = new(big.Int).SetBytes(d)
	priv.X, priv.Y = Curve().ScalarBaseMult(d)
	return &KeyPair{Private: priv}, nil
}
