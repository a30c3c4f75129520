// Package crypto provides the AES-GCM codec used to encrypt chat messages
// at rest. Tokens are self-describing and URL-safe:
//
//	base64url( version(1) || nonce(12) || ciphertext+tag )
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

const (
	// TokenVersion is the current token format version byte.
	TokenVersion = 0x01
	// NonceSize is the GCM standard nonce size (12 bytes).
	NonceSize = 12
	// KeySize is the required key length for AES-256-GCM (32 bytes).
	KeySize = 32
)

var (
	// ErrInvalidKeySize is returned when the configured key is not 32 bytes.
	ErrInvalidKeySize = fmt.Errorf("key must be exactly %d bytes", KeySize)
	// ErrDecrypt is returned for tampered, truncated, wrong-key or
	// wrong-version tokens.
	ErrDecrypt = errors.New("cannot decrypt token")
)

// Codec performs symmetric authenticated encryption with a process-wide key.
// Safe for concurrent use; the codec is stateless once constructed.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec builds a Codec from a 32-byte key.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}

	return &Codec{aead: aead}, nil
}

// Encrypt seals the plaintext and returns a URL-safe token.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	buf := make([]byte, 1+NonceSize, 1+NonceSize+len(plaintext)+c.aead.Overhead())
	buf[0] = TokenVersion

	nonce := buf[1 : 1+NonceSize]
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := c.aead.Seal(buf, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Decrypt verifies and opens a token produced by Encrypt.
func (c *Codec) Decrypt(token string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	if len(raw) < 1+NonceSize {
		return "", fmt.Errorf("%w: token too short", ErrDecrypt)
	}
	if raw[0] != TokenVersion {
		return "", fmt.Errorf("%w: unsupported token version %#x", ErrDecrypt, raw[0])
	}

	nonce, data := raw[1:1+NonceSize], raw[1+NonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, data, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	return string(plaintext), nil
}
