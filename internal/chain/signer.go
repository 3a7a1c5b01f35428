package chain

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	"github.com/mr-tron/base58"
)

// signatureSize is the length of one ed25519 signature on the wire.
const signatureSize = 64

// Signer signs transaction messages with a single ed25519 fee-payer key.
type Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewSigner wraps a raw 64-byte ed25519 secret key.
func NewSigner(secretKey []byte) (*Signer, error) {
	if len(secretKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("chain: secret key must be %d bytes, got %d", ed25519.PrivateKeySize, len(secretKey))
	}
	priv := ed25519.PrivateKey(secretKey)
	return &Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

// Address returns the base58 public key, which doubles as the wallet
// address on chain.
func (s *Signer) Address() string {
	return base58.Encode(s.pub)
}

// Sign produces a detached signature over message.
func (s *Signer) Sign(message []byte) []byte {
	return ed25519.Sign(s.priv, message)
}

// SignTransaction signs a base64 serialized transaction as the fee payer.
// The wire layout is a compact-u16 count of signature slots followed by the
// slots themselves and then the message; the signature covers the message
// bytes only and lands in slot zero.
func (s *Signer) SignTransaction(txBase64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(txBase64)
	if err != nil {
		return "", fmt.Errorf("chain: decoding transaction: %w", err)
	}
	sigCount, offset, err := decodeCompactU16(raw)
	if err != nil {
		return "", fmt.Errorf("chain: reading signature count: %w", err)
	}
	if sigCount == 0 {
		return "", fmt.Errorf("chain: transaction reserves no signature slots")
	}
	msgStart := offset + sigCount*signatureSize
	if msgStart >= len(raw) {
		return "", fmt.Errorf("chain: transaction truncated, %d bytes with %d signature slots", len(raw), sigCount)
	}

	sig := ed25519.Sign(s.priv, raw[msgStart:])
	copy(raw[offset:offset+signatureSize], sig)
	return base64.StdEncoding.EncodeToString(raw), nil
}

// decodeCompactU16 reads the shortvec-encoded length prefix used by the
// transaction wire format.
func decodeCompactU16(b []byte) (value, size int, err error) {
	for i := 0; i < 3; i++ {
		if i >= len(b) {
			return 0, 0, fmt.Errorf("buffer exhausted at byte %d", i)
		}
		value |= int(b[i]&0x7f) << (7 * i)
		if b[i]&0x80 == 0 {
			return value, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("compact-u16 longer than 3 bytes")
}
