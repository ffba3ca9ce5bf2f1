// Package cipher seals session payloads with AES-256-GCM so profiles
// held in shared stores stay opaque at rest.
package cipher

// #region imports
import (
	"crypto/aes"
	aead "crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

// #endregion

// #region cipher
// Cipher seals and opens byte payloads. Safe for concurrent use.
type Cipher struct {
	gcm aead.AEAD
}

// New derives a 256-bit key from the passphrase and readies the AEAD.
func New(passphrase string) (*Cipher, error) {
	if passphrase == "" {
		return nil, errors.New("empty passphrase")
	}
	key := sha256.Sum256([]byte(passphrase))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("cipher init: %w", err)
	}
	g, err := aead.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher init: %w", err)
	}
	return &Cipher{gcm: g}, nil
}

// #endregion cipher

// #region seal-open

// Seal encrypts the payload under a fresh nonce and returns it
// base64-encoded with the nonce prepended.
func (c *Cipher) Seal(plain []byte) (string, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	sealed := c.gcm.Seal(nonce, nonce, plain, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decodes and decrypts a sealed payload. A wrong key or a
// tampered payload fails authentication.
func (c *Cipher) Open(encoded string) ([]byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if len(sealed) < c.gcm.NonceSize() {
		return nil, errors.New("payload too short")
	}
	nonce, body := sealed[:c.gcm.NonceSize()], sealed[c.gcm.NonceSize():]
	plain, err := c.gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, errors.New("payload authentication failed")
	}
	return plain, nil
}

// #endregion seal-open
