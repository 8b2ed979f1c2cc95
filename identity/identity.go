// Package identity gives each drone an Ed25519 key pair and uses it to sign
// the telemetry it emits, so a controller (or another drone validating a
// relayed event) can tell a genuine event from a forged one.
//
// Adapted from the teacher's core/crypto key-pair helpers (Ed25519 identity,
// the Ed25519-to-X25519 conversion for ECDH), generalized from MeshCore's
// routing-hash-from-pubkey use case to node-identity signing and an explicit
// shared-secret primitive for a future encrypted telemetry channel.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/curve25519"

	"github.com/relaymesh/dronecore/core/mesh"
)

var (
	ErrInvalidPubKeySize  = errors.New("identity: invalid public key size: expected 32 bytes")
	ErrInvalidPrivKeySize = errors.New("identity: invalid private key size: expected 64 bytes")
)

// Identity binds a drone's NodeId to its Ed25519 key pair.
type Identity struct {
	Id         mesh.NodeId
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// New generates a fresh Identity for id.
func New(id mesh.NodeId) (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate key pair: %w", err)
	}
	return &Identity{Id: id, PublicKey: pub, PrivateKey: priv}, nil
}

// FromPrivateKey reconstructs an Identity from a 64-byte Ed25519 private
// key, deriving the public key from it.
func FromPrivateKey(id mesh.NodeId, privKey []byte) (*Identity, error) {
	if len(privKey) != ed25519.PrivateKeySize {
		return nil, ErrInvalidPrivKeySize
	}
	priv := ed25519.PrivateKey(append([]byte(nil), privKey...))
	pub := priv.Public().(ed25519.PublicKey)
	return &Identity{Id: id, PublicKey: pub, PrivateKey: priv}, nil
}

// Sign signs data with this identity's private key.
func (id *Identity) Sign(data []byte) []byte {
	return ed25519.Sign(id.PrivateKey, data)
}

// Verify checks a signature produced by the holder of pub over data.
func Verify(pub ed25519.PublicKey, data, signature []byte) bool {
	return ed25519.Verify(pub, data, signature)
}

// SharedSecret derives an X25519 ECDH shared secret between this identity's
// private key and a remote node's Ed25519 public key, for a future
// encrypted telemetry or command channel.
func (id *Identity) SharedSecret(remotePubKey []byte) ([]byte, error) {
	if len(remotePubKey) != ed25519.PublicKeySize {
		return nil, ErrInvalidPubKeySize
	}
	localX, err := ed25519PrivToX25519(id.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("identity: convert local private key: %w", err)
	}
	remoteX, err := ed25519PubToX25519(remotePubKey)
	if err != nil {
		return nil, fmt.Errorf("identity: convert remote public key: %w", err)
	}
	secret, err := curve25519.X25519(localX, remoteX)
	if err != nil {
		return nil, fmt.Errorf("identity: ECDH: %w", err)
	}
	return secret, nil
}

// ed25519PubToX25519 converts an Ed25519 public key to its Montgomery
// (X25519) form.
func ed25519PubToX25519(edPubKey []byte) ([]byte, error) {
	point, err := new(edwards25519.Point).SetBytes(edPubKey)
	if err != nil {
		return nil, fmt.Errorf("invalid Ed25519 public key: %w", err)
	}
	return point.BytesMontgomery(), nil
}

// ed25519PrivToX25519 converts an Ed25519 private key to its X25519
// equivalent per RFC 8032: SHA-512 the seed, then clamp.
func ed25519PrivToX25519(edPrivKey ed25519.PrivateKey) ([]byte, error) {
	if len(edPrivKey) != ed25519.PrivateKeySize {
		return nil, ErrInvalidPrivKeySize
	}
	seed := edPrivKey.Seed()
	h := sha512.Sum512(seed)
	h[0] &= 248
	h[31] &= 127
	h[31] |= 64
	return h[:32], nil
}
