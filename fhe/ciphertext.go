package fhe

import (
	"github.com/marthaediazx/FheDataHub/crypto"
)

// Ciphertext is an opaque handle to an encrypted reading.
//
// Data is the canonical serialized form and the only part that crosses
// process or wire boundaries. The materialized backend state is private to
// the handle and populated lazily by Scheme.InitializeIfNeeded.
type Ciphertext struct {
	Data []byte `json:"data"`

	// backend holds the scheme-specific decoded form. A nil backend means
	// the handle has not been initialized yet.
	backend any
}

// NewCiphertext wraps serialized ciphertext bytes into an uninitialized handle.
func NewCiphertext(data []byte) *Ciphertext {
	d := make([]byte, len(data))
	copy(d, data)
	return &Ciphertext{Data: d}
}

// Initialized reports whether the backend state has been materialized.
func (ct *Ciphertext) Initialized() bool {
	return ct != nil && ct.backend != nil
}

// Scheme provides homomorphic operations over opaque ciphertext handles.
// Implementations must not require the secret key.
type Scheme interface {
	// Zero returns a fresh homomorphic encryption of zero.
	Zero() (*Ciphertext, error)

	// Add homomorphically adds two handles, returning a new handle.
	// Both inputs must have been initialized.
	Add(a, b *Ciphertext) (*Ciphertext, error)

	// InitializeIfNeeded materializes the handle's backend state. It is
	// idempotent and must be called before Add or Fingerprint.
	InitializeIfNeeded(ct *Ciphertext) error

	// Fingerprint returns a stable digest identifying the exact ciphertext.
	Fingerprint(ct *Ciphertext) (crypto.Digest, error)
}

// Encryptor produces ciphertext handles from plaintext readings. Used by
// data providers; the batching core itself never encrypts.
type Encryptor interface {
	Encrypt(value uint64) (*Ciphertext, error)
}

// Decryptor recovers the plaintext reading from a ciphertext handle.
// Only the decryption oracle holds an implementation backed by a real
// secret key.
type Decryptor interface {
	Decrypt(ct *Ciphertext) (uint64, error)
}
