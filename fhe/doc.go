// Package fhe provides the homomorphic ciphertext capability used by the
// batching core.
//
// Encrypted readings are carried as opaque Ciphertext handles. A Scheme
// implementation supplies the operations the core needs:
//
//   - Zero: a homomorphic encryption of zero, the accumulator seed
//   - Add: homomorphic addition of two handles
//   - InitializeIfNeeded: idempotent materialization of a handle's backend
//     state, required before combining or fingerprinting
//   - Fingerprint: a stable digest of a handle's serialized form
//
// Two implementations are provided: BFVScheme backed by the lattigo BFV
// cryptosystem, and PlainScheme, an unencrypted stand-in for tests and
// demos. Decryption is deliberately split out into the Decryptor interface
// so that only the oracle process ever holds the secret key.
package fhe
