// Package identity implements the C1 hash/signature primitives: opaque
// fixed-size Hash, Signature and Pubkey byte arrays, SHA-256 chaining, and
// Ed25519 sign/verify. Grounded on the ed25519 usage in
// tos-network/gtos/consensus/dpos (other_examples dpos.go), the one pack
// repo that signs consensus messages with this exact primitive.
package identity

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

const (
	HashSize      = 32
	SignatureSize = ed25519.SignatureSize // 64
	PubkeySize    = ed25519.PublicKeySize // 32
)

// Hash is a SHA-256 digest.
type Hash [HashSize]byte

func (h Hash) Bytes() []byte  { return h[:] }
func (h Hash) String() string { return hex.EncodeToString(h[:]) }
func (h Hash) Equal(o Hash) bool { return h == o }
func (h Hash) Less(o Hash) bool { return bytes.Compare(h[:], o[:]) < 0 }

// Pubkey identifies an account or node.
type Pubkey [PubkeySize]byte

func (p Pubkey) Bytes() []byte   { return p[:] }
func (p Pubkey) String() string  { return hex.EncodeToString(p[:]) }
func (p Pubkey) Equal(o Pubkey) bool { return p == o }
func (p Pubkey) Less(o Pubkey) bool  { return bytes.Compare(p[:], o[:]) < 0 }

var ZeroPubkey Pubkey

// Signature is a detached Ed25519 signature.
type Signature [SignatureSize]byte

func (s Signature) Bytes() []byte { return s[:] }
func (s Signature) String() string { return hex.EncodeToString(s[:]) }
func (s Signature) Equal(o Signature) bool { return s == o }

// HashBytes computes SHA256(data) as a Hash.
func HashBytes(data []byte) Hash {
	return Hash(sha256.Sum256(data))
}

// ExtendHash computes SHA256(prev), the single pure-advance step PoH uses.
func ExtendHash(prev Hash) Hash {
	return HashBytes(prev[:])
}

// ExtendHashWithMixin computes SHA256(prev || mixin), the PoH record step.
func ExtendHashWithMixin(prev, mixin Hash) Hash {
	buf := make([]byte, 0, HashSize*2)
	buf = append(buf, prev[:]...)
	buf = append(buf, mixin[:]...)
	return HashBytes(buf)
}

// IteratedHash applies ExtendHash n times to prev.
func IteratedHash(prev Hash, n uint64) Hash {
	h := prev
	for i := uint64(0); i < n; i++ {
		h = ExtendHash(h)
	}
	return h
}

// Keypair is an Ed25519 signing identity.
type Keypair struct {
	Public  Pubkey
	private ed25519.PrivateKey
}

// GenerateKeypair creates a fresh random identity.
func GenerateKeypair() (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	var p Pubkey
	copy(p[:], pub)
	return &Keypair{Public: p, private: priv}, nil
}

// KeypairFromSeed rebuilds a deterministic identity from a 32-byte seed,
// used by genesis and tests that need stable pubkeys across runs.
func KeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, errors.New("identity: seed must be 32 bytes")
	}
	priv := ed25519.NewKeyFromSeed(seed)
	var p Pubkey
	copy(p[:], priv.Public().(ed25519.PublicKey))
	return &Keypair{Public: p, private: priv}, nil
}

// Seed returns the 32-byte Ed25519 seed this Keypair was derived from, for
// persisting to a keyfile (round-trips through KeypairFromSeed).
func (k *Keypair) Seed() []byte {
	return append([]byte(nil), k.private.Seed()...)
}

// Sign signs msg and returns the detached signature.
func (k *Keypair) Sign(msg []byte) Signature {
	sig := ed25519.Sign(k.private, msg)
	var s Signature
	copy(s[:], sig)
	return s
}

// Verify reports whether sig is a valid Ed25519 signature over msg by pub.
func Verify(pub Pubkey, msg []byte, sig Signature) bool {
	return ed25519.Verify(pub[:], msg, sig[:])
}
