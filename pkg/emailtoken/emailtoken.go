// Package emailtoken encrypts customer emails into opaque URL-safe tokens
// for payment method change links. Tokens are authenticated, so a tampered
// or truncated token fails closed.
package emailtoken

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
)

var ErrInvalidToken = errors.New("invalid_token")

// Codec encrypts and decrypts email tokens with AES-256-GCM. The key is
// derived from the configured secret, so any secret length works.
type Codec struct {
	aead cipher.AEAD
}

func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("email token secret cannot be empty")
	}
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Codec{aead: aead}, nil
}

// Encrypt produces a URL-safe token for an email address.
func (c *Codec) Encrypt(email string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(email), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt recovers the email address from a token. Any malformed,
// tampered or foreign-key token yields ErrInvalidToken.
func (c *Codec) Decrypt(token string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", ErrInvalidToken
	}
	nonceSize := c.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", ErrInvalidToken
	}
	plain, err := c.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", ErrInvalidToken
	}
	return string(plain), nil
}
