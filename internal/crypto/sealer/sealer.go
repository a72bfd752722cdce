// Package sealer encrypts note content at rest in the local store.
package sealer

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeyLen is the store key size accepted by New. SaltLen is the salt size
// callers pass to DeriveKey. The argon* values are the Argon2id cost.
const (
	KeyLen  = 32
	SaltLen = 16

	argonTime    uint32 = 3
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 1
)

// ErrKeyLen is returned by New for a key that is not KeyLen bytes.
var ErrKeyLen = errors.New("sealer: bad key length")

// Rand returns n bytes from crypto/rand, e.g. a fresh SaltLen salt.
func Rand(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// DeriveKey derives the store key from a passphrase and salt using Argon2id.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, KeyLen)
}

// Sealer seals note content with a per-note key derived from the store key.
type Sealer struct{ key []byte }

// New returns a Sealer for a KeyLen-byte store key.
func New(key []byte) (*Sealer, error) {
	if len(key) != KeyLen {
		return nil, ErrKeyLen
	}
	return &Sealer{key: append([]byte(nil), key...)}, nil
}

// noteKey derives a per-note key via HKDF-SHA256 using the note key as info.
func (s *Sealer) noteKey(key string) ([]byte, error) {
	r := hkdf.New(sha256.New, s.key, nil, []byte(key))
	k := make([]byte, KeyLen)
	_, err := r.Read(k)
	return k, err
}

// aad binds a blob to its note key and version.
func aad(key string, ver int64) []byte {
	out := make([]byte, 0, len(key)+8)
	out = append(out, key...)
	var v [8]byte
	binary.BigEndian.PutUint64(v[:], uint64(ver))
	return append(out, v[:]...)
}

// Seal encrypts plaintext with XChaCha20-Poly1305, AAD = key||ver and a random nonce.
func (s *Sealer) Seal(key string, ver int64, plaintext []byte) ([]byte, error) {
	k, err := s.noteKey(key)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(k)
	if err != nil {
		return nil, err
	}
	nonce, err := Rand(chacha20poly1305.NonceSizeX)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, aad(key, ver)), nil
}

// Open decrypts a blob using the same key and version as during sealing.
func (s *Sealer) Open(key string, ver int64, blob []byte) ([]byte, error) {
	if len(blob) < chacha20poly1305.NonceSizeX {
		return nil, errors.New("blob too short")
	}
	k, err := s.noteKey(key)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(k)
	if err != nil {
		return nil, err
	}
	nonce := blob[:chacha20poly1305.NonceSizeX]
	ct := blob[chacha20poly1305.NonceSizeX:]
	return aead.Open(nil, nonce, ct, aad(key, ver))
}
