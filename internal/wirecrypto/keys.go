package wirecrypto

import (
	"fmt"

	"github.com/decred/dcrec/secp256k1/v4"

	"github.com/a7g4/warp/internal/wire"
)

// PrivateKey is a long-lived asymmetric private key on the fixed curve used
// throughout warp: secp256k1 (spec §3, "Peer identity").
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// PublicKey is the corresponding public half, serialized on the wire and in
// configuration files as compressed SEC1 bytes, Base32-Crockford encoded.
type PublicKey struct {
	key *secp256k1.PublicKey
}

// GeneratePrivateKey creates a new random keypair.
func GeneratePrivateKey() (PrivateKey, error) {
	k, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return PrivateKey{}, fmt.Errorf("generate private key: %w", err)
	}
	return PrivateKey{key: k}, nil
}

// PublicKey returns the public half of k.
func (k PrivateKey) PublicKey() PublicKey {
	return PublicKey{key: k.key.PubKey()}
}

// Bytes returns the raw 32-byte scalar.
func (k PrivateKey) Bytes() []byte {
	return k.key.Serialize()
}

// String Base32-Crockford encodes the private key.
func (k PrivateKey) String() string {
	return encodeCrockford(k.Bytes())
}

// ParsePrivateKey parses a Base32-Crockford-encoded private key string.
func ParsePrivateKey(s string) (PrivateKey, error) {
	b, err := decodeCrockford(s)
	if err != nil {
		return PrivateKey{}, &wire.Base32DecodeError{Input: s}
	}
	if len(b) != 32 {
		return PrivateKey{}, &wire.KeyError{Cause: fmt.Errorf("private key must be 32 bytes, got %d", len(b))}
	}
	priv := secp256k1.PrivKeyFromBytes(b)
	zeroBytes(b)
	return PrivateKey{key: priv}, nil
}

// Bytes returns the raw 33-byte SEC1-compressed public key.
func (k PublicKey) Bytes() []byte {
	if k.key == nil {
		return nil
	}
	return k.key.SerializeCompressed()
}

// String Base32-Crockford encodes the public key.
func (k PublicKey) String() string {
	return encodeCrockford(k.Bytes())
}

// IsZero reports whether k is the zero value.
func (k PublicKey) IsZero() bool {
	return k.key == nil
}

// Equal reports whether two public keys are the same point.
func (k PublicKey) Equal(other PublicKey) bool {
	if k.IsZero() || other.IsZero() {
		return k.IsZero() == other.IsZero()
	}
	return k.key.IsEqual(other.key)
}

// ParsePublicKey parses a Base32-Crockford-encoded public key string.
func ParsePublicKey(s string) (PublicKey, error) {
	b, err := decodeCrockford(s)
	if err != nil {
		return PublicKey{}, &wire.Base32DecodeError{Input: s}
	}
	return PublicKeyFromBytes(b)
}

// PublicKeyFromBytes parses a compressed SEC1 public key.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	pub, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return PublicKey{}, &wire.KeyError{Cause: err}
	}
	return PublicKey{key: pub}, nil
}
