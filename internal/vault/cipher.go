package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

const envelopePrefix = "v1:"

// Cipher seals credential secrets with AES-256-GCM under the instance-wide
// vault key. Every Seal call draws a fresh nonce, which is stored alongside
// the ciphertext in the envelope.
type Cipher struct {
	aead cipher.AEAD
	rand io.Reader
}

func NewCipher(keyB64 string) (*Cipher, error) {
	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return nil, fmt.Errorf("NewCipher: decode key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("NewCipher: key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("NewCipher: %w", err)
	}

	return &Cipher{aead: aead, rand: rand.Reader}, nil
}

func (c *Cipher) Seal(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return "", fmt.Errorf("Seal: nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return envelopePrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open recovers the plaintext from a sealed envelope. Stored values written
// before encryption was introduced carry no envelope; those are returned
// as-is so old rows keep working until the next save re-encrypts them.
func (c *Cipher) Open(stored string) string {
	raw, ok := strings.CutPrefix(stored, envelopePrefix)
	if !ok {
		return stored
	}

	sealed, err := base64.StdEncoding.DecodeString(raw)
	if err != nil || len(sealed) < c.aead.NonceSize() {
		return stored
	}

	nonce, ct := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return stored
	}
	return string(plaintext)
}
