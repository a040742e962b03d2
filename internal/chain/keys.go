// Package chain provides the signing and node-client collaborators the
// gateway depends on: building transaction messages, producing signed hex
// payloads, and talking to a chain node over JSON-RPC.
package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/ripemd160"
)

// KeyPair wraps a wallet's secp256k1 signing identity. The private key never
// leaves this package.
type KeyPair struct {
	priv    *secp256k1.PrivateKey
	pubKey  []byte // compressed
	address string
}

// NewKeyPair creates a key pair from a 32-byte private key.
func NewKeyPair(privateKey []byte) (*KeyPair, error) {
	if len(privateKey) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(privateKey))
	}

	priv := secp256k1.PrivKeyFromBytes(privateKey)
	pub := priv.PubKey().SerializeCompressed()

	return &KeyPair{
		priv:    priv,
		pubKey:  pub,
		address: deriveAddress(pub),
	}, nil
}

// NewKeyPairFromHex creates a key pair from a hex-encoded private key.
func NewKeyPairFromHex(privateKeyHex string) (*KeyPair, error) {
	raw, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	return NewKeyPair(raw)
}

// Address returns the hex account address derived from the public key.
func (k *KeyPair) Address() string {
	return k.address
}

// PublicKey returns a copy of the compressed public key.
func (k *KeyPair) PublicKey() []byte {
	out := make([]byte, len(k.pubKey))
	copy(out, k.pubKey)
	return out
}

// deriveAddress hashes the compressed public key with SHA256 then RIPEMD160.
func deriveAddress(pubKey []byte) string {
	sha := sha256.Sum256(pubKey)
	h := ripemd160.New()
	h.Write(sha[:])
	return hex.EncodeToString(h.Sum(nil))
}
