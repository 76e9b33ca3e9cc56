// Package crypto encrypts blob access URLs before they are written to the
// evidence table and decrypts them on the way to the evaluation backend.
//
// Encrypted values look like "enc:v1:<base64url(nonce|ciphertext)>" and are
// sealed with XChaCha20-Poly1305. Anything without that prefix is treated as
// a legacy plaintext URL.
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Prefix marks a value produced by Codec.Encrypt.
const Prefix = "enc:v1:"

// MinSecretLength is the shortest secret accepted by NewCodec.
const MinSecretLength = 16

const hkdfInfo = "evidence-blob-url/v1"

var (
	ErrNotEncrypted  = errors.New("value is not encrypted")
	ErrMalformed     = errors.New("encrypted value is malformed")
	ErrUndecryptable = errors.New("encrypted value cannot be opened with any configured key")
)

// Codec is safe for concurrent use.
type Codec struct {
	primary  cipher.AEAD
	previous []cipher.AEAD
}

// NewCodec derives the sealing key from secret. Previous secrets are only
// used to open values written before a key rotation.
func NewCodec(secret string, previous ...string) (*Codec, error) {
	primary, err := deriveAEAD(secret)
	if err != nil {
		return nil, err
	}
	c := &Codec{primary: primary}
	for i, p := range previous {
		if strings.TrimSpace(p) == "" {
			continue
		}
		aead, err := deriveAEAD(p)
		if err != nil {
			return nil, fmt.Errorf("previous secret %d: %w", i, err)
		}
		c.previous = append(c.previous, aead)
	}
	return c, nil
}

func deriveAEAD(secret string) (cipher.AEAD, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("url encryption secret must be at least %d bytes", MinSecretLength)
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return chacha20poly1305.NewX(key)
}

// Encrypt seals url with a fresh random nonce, so two calls on the same
// input give different outputs.
func (c *Codec) Encrypt(url string) (string, error) {
	nonce := make([]byte, c.primary.NonceSize(), c.primary.NonceSize()+len(url)+c.primary.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.primary.Seal(nonce, nonce, []byte(url), []byte(Prefix))
	return Prefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// IsEncrypted reports whether value carries the codec prefix. It does not
// check that the value actually opens.
func (c *Codec) IsEncrypted(value string) bool {
	return strings.HasPrefix(value, Prefix)
}

// Decrypt opens value strictly.
func (c *Codec) Decrypt(value string) (string, error) {
	if !c.IsEncrypted(value) {
		return "", ErrNotEncrypted
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(value, Prefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw) < c.primary.NonceSize()+c.primary.Overhead() {
		return "", ErrMalformed
	}

	nonce, sealed := raw[:c.primary.NonceSize()], raw[c.primary.NonceSize():]
	for _, aead := range c.keys() {
		plain, err := aead.Open(nil, nonce, sealed, []byte(Prefix))
		if err == nil {
			return string(plain), nil
		}
	}
	return "", ErrUndecryptable
}

// SafeDecrypt returns the plaintext URL for an encrypted value and returns
// any other input unchanged. It never fails, so rows written before
// encryption was introduced keep working.
func (c *Codec) SafeDecrypt(value string) string {
	plain, err := c.Decrypt(value)
	if err != nil {
		if !errors.Is(err, ErrNotEncrypted) {
			zap.L().Debug("url decrypt failed, passing value through", zap.Error(err))
		}
		return value
	}
	return plain
}

func (c *Codec) keys() []cipher.AEAD {
	return append([]cipher.AEAD{c.primary}, c.previous...)
}
