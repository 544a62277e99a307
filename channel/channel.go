package channel

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/f3rmion/thresh/group"
	"github.com/f3rmion/thresh/wire"
)

const (
	// KeySize is the AES-256 key length.
	KeySize = 32
	// NonceSize is the GCM nonce length.
	NonceSize = 12
	// Overhead is the number of bytes a blob adds to its plaintext.
	Overhead = NonceSize + 16
)

var (
	// ErrAuthenticationFailed is returned when a blob was tampered with or
	// encrypted under another key.
	ErrAuthenticationFailed = errors.New("channel: authentication failed")
	// ErrKeySize is returned for keys that are not KeySize bytes.
	ErrKeySize = errors.New("channel: key must be 32 bytes")
)

func newAESGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext under key with a fresh random nonce.
func Encrypt(key, plaintext []byte) ([]byte, error) {
	return Seal(rand.Reader, key, plaintext, nil)
}

// Decrypt opens a blob produced by [Encrypt].
func Decrypt(key, blob []byte) ([]byte, error) {
	return Open(key, blob, nil)
}

// Seal encrypts plaintext and authenticates aad, drawing the nonce from r.
func Seal(r io.Reader, key, plaintext, aad []byte) ([]byte, error) {
	aead, err := newAESGCM(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, NonceSize, NonceSize+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return aead.Seal(out, out[:NonceSize], plaintext, aad), nil
}

// Open authenticates and decrypts a blob produced by [Seal].
func Open(key, blob, aad []byte) ([]byte, error) {
	aead, err := newAESGCM(key)
	if err != nil {
		return nil, err
	}
	if len(blob) < Overhead {
		return nil, ErrAuthenticationFailed
	}
	pt, err := aead.Open(nil, blob[:NonceSize], blob[NonceSize:], aad)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	if pt == nil {
		pt = []byte{}
	}
	return pt, nil
}

// SealMessage returns a copy of m whose payload is encrypted under key with
// the message header as associated data, so a relay cannot move the
// payload to another round, sender or recipient.
func SealMessage(key []byte, m *wire.Message) (*wire.Message, error) {
	out := m.Clone()
	blob, err := Seal(rand.Reader, key, m.Payload, m.Header())
	if err != nil {
		return nil, err
	}
	out.Payload = blob
	return out, nil
}

// OpenMessage reverses [SealMessage].
func OpenMessage(key []byte, m *wire.Message) (*wire.Message, error) {
	pt, err := Open(key, m.Payload, m.Header())
	if err != nil {
		return nil, err
	}
	out := m.Clone()
	out.Payload = pt
	return out, nil
}

// DeriveKey expands secret into a channel key with HKDF-SHA256.
func DeriveKey(secret, salt, info []byte) ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, info), key); err != nil {
		return nil, err
	}
	return key, nil
}

// PairwiseKey derives the key shared by participants a and b from a
// Diffie-Hellman exchange in g. Both sides obtain the same key regardless
// of argument order.
func PairwiseKey(g group.Group, secret group.Scalar, peer group.Point, session []byte, a, b wire.ParticipantID) ([]byte, error) {
	if peer.IsIdentity() {
		return nil, group.ErrIdentityPoint
	}
	shared := g.NewPoint().ScalarMult(secret, peer)
	if shared.IsIdentity() {
		return nil, fmt.Errorf("channel: degenerate shared secret")
	}
	if a > b {
		a, b = b, a
	}
	info := make([]byte, 4, 4+len(session))
	binary.BigEndian.PutUint16(info[0:2], uint16(a))
	binary.BigEndian.PutUint16(info[2:4], uint16(b))
	info = append(info, session...)
	return DeriveKey(shared.Bytes(), []byte("thresh/channel"), info)
}
