package fhe

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/marthaediazx/FheDataHub/crypto"
)

// PlainScheme implements Scheme, Encryptor and Decryptor without any actual
// encryption: the "ciphertext" is the big-endian plaintext value. It mirrors
// the real capability's lazy-initialization contract so the batching core can
// be exercised in tests and demos without lattice arithmetic.
type PlainScheme struct{}

// NewPlainScheme creates the unencrypted test scheme.
func NewPlainScheme() *PlainScheme {
	return &PlainScheme{}
}

// Encrypt wraps the value into a handle as-is.
func (s *PlainScheme) Encrypt(value uint64) (*Ciphertext, error) {
	var data [8]byte
	binary.BigEndian.PutUint64(data[:], value)
	return &Ciphertext{Data: data[:]}, nil
}

// Zero returns a handle carrying zero.
func (s *PlainScheme) Zero() (*Ciphertext, error) {
	return s.Encrypt(0)
}

// InitializeIfNeeded decodes the handle's value. Idempotent.
func (s *PlainScheme) InitializeIfNeeded(ct *Ciphertext) error {
	if ct == nil {
		return errors.New("nil ciphertext handle")
	}
	if ct.backend != nil {
		return nil
	}
	if len(ct.Data) != 8 {
		return fmt.Errorf("malformed handle: %d bytes", len(ct.Data))
	}
	ct.backend = binary.BigEndian.Uint64(ct.Data)
	return nil
}

// Add sums the two plaintext values into a new handle.
func (s *PlainScheme) Add(a, b *Ciphertext) (*Ciphertext, error) {
	va, ok := a.backend.(uint64)
	if !ok {
		return nil, errors.New("left operand not initialized")
	}
	vb, ok := b.backend.(uint64)
	if !ok {
		return nil, errors.New("right operand not initialized")
	}

	out, err := s.Encrypt(va + vb)
	if err != nil {
		return nil, err
	}
	out.backend = va + vb
	return out, nil
}

// Fingerprint digests the handle's serialized form.
func (s *PlainScheme) Fingerprint(ct *Ciphertext) (crypto.Digest, error) {
	if !ct.Initialized() {
		return crypto.Digest{}, errors.New("ciphertext not initialized")
	}
	return crypto.Sum256(ct.Data), nil
}

// Decrypt returns the carried value.
func (s *PlainScheme) Decrypt(ct *Ciphertext) (uint64, error) {
	if len(ct.Data) != 8 {
		return 0, fmt.Errorf("malformed handle: %d bytes", len(ct.Data))
	}
	return binary.BigEndian.Uint64(ct.Data), nil
}
