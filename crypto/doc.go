// Package crypto provides the cryptographic primitives used across FheDataHub.
//
// It implements:
//
//   - Ed25519 digital signatures for authenticating submitters, requesters
//     and oracle results
//   - SHA3-256 digests for ciphertext fingerprints and batch commitments
//
// Homomorphic operations on encrypted readings live in the fhe package; this
// package only covers identity and integrity primitives.
package crypto
