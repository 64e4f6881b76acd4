// Package cipher implements the XOR256 stream transform used to decode the
// obfuscated element and attribute names compiled into the client.
//
// The transform is reversible obfuscation, not encryption: the keystream
// repeats every 256 bytes and the chain update is trivially invertible with
// known plaintext. Never use it to protect data.
package cipher

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// BlockSize is the length of the key and of the chain buffer.
const BlockSize = 256

// ErrEmptyPassword is returned when a stream is initialized without a password.
var ErrEmptyPassword = errors.New("cipher: password cannot be empty")

// Stream holds the derived key and the mutable chain. A Stream is not safe
// for concurrent use; see Codec for a locked wrapper.
type Stream struct {
	key   [BlockSize]byte
	chain [BlockSize]byte
}

// New derives the 256-byte key by repeating the SHA-256 digest of password
// and resets the chain to it.
func New(password []byte) (*Stream, error) {
	if len(password) == 0 {
		return nil, ErrEmptyPassword
	}
	digest := sha256.Sum256(password)

	s := &Stream{}
	for i := range s.key {
		s.key[i] = digest[i%len(digest)]
	}
	s.Reset()
	return s, nil
}

// Reset copies the key back into the chain. Call it before every independent
// transform so the output does not depend on earlier calls.
func (s *Stream) Reset() {
	s.chain = s.key
}

// Encrypt XORs data with the chain and feeds every produced byte back into it.
func (s *Stream) Encrypt(data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		idx := i % BlockSize
		out[i] = b ^ s.chain[idx]
		s.chain[idx] += out[i]
	}
	return out
}

// Decrypt is the inverse of Encrypt. The chain is fed with the consumed
// input byte, which is the ciphertext in both directions.
func (s *Stream) Decrypt(data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		idx := i % BlockSize
		out[i] = b ^ s.chain[idx]
		s.chain[idx] += b
	}
	return out
}

// Codec encodes strings to upper-case hex literals and back. Each call starts
// from a freshly reset chain, so results are reproducible regardless of call
// history. Codec is safe for concurrent use.
type Codec struct {
	mu     sync.Mutex
	stream *Stream
}

// NewCodec creates a codec keyed by password.
func NewCodec(password string) (*Codec, error) {
	s, err := New([]byte(password))
	if err != nil {
		return nil, err
	}
	return &Codec{stream: s}, nil
}

// EncodeString returns the hex literal for plain. An empty input yields an
// empty literal.
func (c *Codec) EncodeString(plain string) string {
	if plain == "" {
		return ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stream.Reset()
	return strings.ToUpper(hex.EncodeToString(c.stream.Encrypt([]byte(plain))))
}

// DecodeString decodes a hex literal produced by EncodeString. The result is
// truncated at the first NUL byte.
func (c *Codec) DecodeString(literal string) (string, error) {
	if literal == "" {
		return "", nil
	}
	raw, err := hex.DecodeString(literal)
	if err != nil {
		return "", fmt.Errorf("cipher: invalid hex literal %q: %w", literal, err)
	}

	c.mu.Lock()
	c.stream.Reset()
	plain := c.stream.Decrypt(raw)
	c.mu.Unlock()

	if n := bytes.IndexByte(plain, 0); n >= 0 {
		plain = plain[:n]
	}
	return string(plain), nil
}
