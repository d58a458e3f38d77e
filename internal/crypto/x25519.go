package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/curve25519"

	"parley/internal/util/memzero"
)

// KeySize is the length of X25519 public keys and derived shared secrets.
const KeySize = 32

// PublicKey is a raw X25519 public key as it appears on the wire.
type PublicKey [KeySize]byte

// PrivateKey is a clamped X25519 scalar. It lives for one handshake and is
// wiped once the shared secret has been derived.
type PrivateKey [KeySize]byte

// GenerateKeyPair returns a fresh ephemeral key pair.
// The private scalar is clamped per RFC 7748.
func GenerateKeyPair() (priv PrivateKey, pub PublicKey, err error) {
	if _, err = rand.Read(priv[:]); err != nil {
		return priv, pub, fmt.Errorf("generate scalar: %w", err)
	}
	clamp(&priv)
	pb, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return priv, pub, err
	}
	copy(pub[:], pb)
	return priv, pub, nil
}

// SharedSecret computes the X25519 Diffie-Hellman output. The raw 32 bytes
// are used directly as the session key; there is no KDF step.
func SharedSecret(priv PrivateKey, peer PublicKey) (out [KeySize]byte, err error) {
	secret, err := curve25519.X25519(priv[:], peer[:])
	if err != nil {
		return out, err
	}
	copy(out[:], secret)
	memzero.Zero(secret)
	return out, nil
}

// Fingerprint returns a short hex fingerprint of a public key for display.
func Fingerprint(pub PublicKey) string {
	sum := sha256.Sum256(pub[:])
	return hex.EncodeToString(sum[:10])
}

func clamp(k *PrivateKey) {
	k[0] &= 248
	k[31] &= 127
	k[31] |= 64
}
