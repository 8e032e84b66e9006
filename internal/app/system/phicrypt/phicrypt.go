// Package phicrypt provides authenticated encryption for protected health
// information and credential records.
//
// Ciphertext is "pc1:" followed by base64url(nonce || sealed), sealed with
// XChaCha20-Poly1305 under a key derived from a passphrase with Argon2id.
// Decrypting anything that is not ciphertext, or that was sealed under a
// different key, returns ErrDecrypt rather than a wrong value.
package phicrypt

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// MinPassphraseLength is the shortest passphrase New accepts.
const MinPassphraseLength = 16

const prefix = "pc1:"

// Argon2id parameters for key derivation.
const (
	kdfTime    = 2
	kdfMemory  = 19 * 1024
	kdfThreads = 1
)

var (
	// ErrDecrypt is returned when a value cannot be authenticated and opened.
	ErrDecrypt = errors.New("phicrypt: decryption failed")
	// ErrPassphraseTooShort is returned by New for weak passphrases.
	ErrPassphraseTooShort = fmt.Errorf("phicrypt: passphrase must be at least %d characters", MinPassphraseLength)
)

// Cipher encrypts and decrypts strings.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// AEAD is the XChaCha20-Poly1305 Cipher.
type AEAD struct {
	aead cipher.AEAD
}

// New derives a key from passphrase and salt and returns a ready cipher.
func New(passphrase, salt string) (*AEAD, error) {
	if len(passphrase) < MinPassphraseLength {
		return nil, ErrPassphraseTooShort
	}
	key := argon2.IDKey([]byte(passphrase), []byte(salt), kdfTime, kdfMemory, kdfThreads, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("phicrypt: init cipher: %w", err)
	}
	return &AEAD{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *AEAD) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("phicrypt: nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return prefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
func (c *AEAD) Decrypt(ciphertext string) (string, error) {
	if !IsCiphertext(ciphertext) {
		return "", ErrDecrypt
	}
	raw, err := base64.RawURLEncoding.DecodeString(ciphertext[len(prefix):])
	if err != nil || len(raw) < c.aead.NonceSize()+c.aead.Overhead() {
		return "", ErrDecrypt
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plain), nil
}

// IsCiphertext reports whether s has the ciphertext framing. It does not
// check that s can be opened.
func IsCiphertext(s string) bool {
	return strings.HasPrefix(s, prefix)
}
