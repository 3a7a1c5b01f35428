// Package chain holds the on-chain surface: wallet key handling, transaction
// signing and the JSON-RPC client used to submit and confirm swaps.
package chain

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations is the OWASP-recommended minimum for HMAC-SHA256.
	pbkdf2Iterations = 480_000
	// saltLen is the random salt length in bytes.
	saltLen = 16
	// aesKeyLen is the derived AES-256 key length.
	aesKeyLen = 32
	// keyfileVersion is the encrypted-keyfile JSON schema version.
	keyfileVersion = 1
)

// encryptedKeyJSON is the on-disk format for an encrypted signing key.
type encryptedKeyJSON struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`       // base64 standard encoding
	Nonce      string `json:"nonce"`      // base64 standard encoding
	Ciphertext string `json:"ciphertext"` // base64 standard encoding
}

// KeyConfig carries what LoadSigner needs to resolve a signing key.
type KeyConfig struct {
	// RawPrivateKey is the base58-encoded 64-byte ed25519 secret key. If
	// non-empty it takes precedence over the keyfile.
	RawPrivateKey string

	// EncryptedKeyPath points to a JSON file produced by EncryptKeyfile.
	EncryptedKeyPath string

	// KeyPassword decrypts the file at EncryptedKeyPath.
	KeyPassword string
}

// EncryptKeyfile encrypts a base58 ed25519 secret key with a password using
// PBKDF2-HMAC-SHA256 derivation and AES-256-GCM, returning the JSON blob
// for writing to disk.
func EncryptKeyfile(secretKeyBase58, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("chain: password must not be empty")
	}
	keyBytes, err := decodeSecretKey(secretKeyBase58)
	if err != nil {
		return nil, err
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("chain: generating salt: %w", err)
	}
	derivedKey := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)

	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return nil, fmt.Errorf("chain: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("chain: creating GCM: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("chain: generating nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, keyBytes, nil)

	out := encryptedKeyJSON{
		Version:    keyfileVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}
	return json.MarshalIndent(out, "", "  ")
}

// DecryptKeyfile reverses EncryptKeyfile, returning the raw 64-byte ed25519
// secret key.
func DecryptKeyfile(encryptedJSON []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("chain: password must not be empty")
	}

	var stored encryptedKeyJSON
	if err := json.Unmarshal(encryptedJSON, &stored); err != nil {
		return nil, fmt.Errorf("chain: parsing encrypted keyfile: %w", err)
	}
	if stored.Version != keyfileVersion {
		return nil, fmt.Errorf("chain: unsupported keyfile version %d", stored.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(stored.Salt)
	if err != nil {
		return nil, fmt.Errorf("chain: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(stored.Nonce)
	if err != nil {
		return nil, fmt.Errorf("chain: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(stored.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("chain: decoding ciphertext: %w", err)
	}

	derivedKey := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return nil, fmt.Errorf("chain: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("chain: creating GCM: %w", err)
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: decryption failed (wrong password?): %w", err)
	}
	if len(plaintext) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("chain: keyfile held %d bytes, want %d", len(plaintext), ed25519.PrivateKeySize)
	}
	return plaintext, nil
}

// LoadSigner resolves a signing key from the configuration.
//
// Resolution order:
//  1. If RawPrivateKey is set, decode and use it.
//  2. If EncryptedKeyPath is set, read the file and decrypt with KeyPassword.
//  3. Otherwise, return an error.
func LoadSigner(cfg KeyConfig) (*Signer, error) {
	if cfg.RawPrivateKey != "" {
		keyBytes, err := decodeSecretKey(cfg.RawPrivateKey)
		if err != nil {
			return nil, err
		}
		return NewSigner(keyBytes)
	}
	if cfg.EncryptedKeyPath != "" {
		data, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return nil, fmt.Errorf("chain: reading encrypted keyfile: %w", err)
		}
		keyBytes, err := DecryptKeyfile(data, cfg.KeyPassword)
		if err != nil {
			return nil, err
		}
		return NewSigner(keyBytes)
	}
	return nil, errors.New("chain: no signing key source configured (set RawPrivateKey or EncryptedKeyPath)")
}

func decodeSecretKey(secretKeyBase58 string) ([]byte, error) {
	keyBytes, err := base58.Decode(secretKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("chain: invalid base58 secret key: %w", err)
	}
	if len(keyBytes) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("chain: expected %d-byte secret key, got %d bytes", ed25519.PrivateKeySize, len(keyBytes))
	}
	return keyBytes, nil
}
