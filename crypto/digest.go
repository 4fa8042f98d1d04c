package crypto

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"
)

// Digest is a 32-byte SHA3-256 digest. Used for ciphertext fingerprints,
// batch commitments and attestation report data.
type Digest [32]byte

// Sum256 computes the SHA3-256 digest of data.
func Sum256(data []byte) Digest {
	return sha3.Sum256(data)
}

// Hasher incrementally builds a domain-separated digest. Write order matters:
// the resulting digest is a function of the exact byte sequence written.
type Hasher struct {
	h sha3.ShakeHash
}

// NewHasher creates a Hasher seeded with a domain-separation tag.
func NewHasher(domain string) *Hasher {
	h := sha3.NewShake256()
	h.Write([]byte(domain))
	return &Hasher{h: h}
}

// WriteBytes appends a length-prefixed byte string to the digest input.
// Length prefixing keeps concatenated inputs unambiguous.
func (h *Hasher) WriteBytes(data []byte) {
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(data)))
	h.h.Write(lenBuf[:])
	h.h.Write(data)
}

// WriteUint64 appends a fixed-width integer to the digest input.
func (h *Hasher) WriteUint64(v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	h.h.Write(buf[:])
}

// Sum finalizes and returns the digest. The Hasher must not be reused after.
func (h *Hasher) Sum() Digest {
	var out Digest
	h.h.Read(out[:])
	return out
}
