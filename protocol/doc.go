// Package protocol implements the FheDataHub batching core: the batch
// lifecycle, the encrypted-submission ledger, homomorphic aggregation with
// content commitments, and the asynchronous decrypt-request/callback
// protocol.
//
// All mutable state lives in a single State value and every operation runs
// under one mutex, so operations form a globally-ordered serialized
// sequence. The only concurrency the design has to survive is the unbounded
// window between a decryption request and its callback: instead of locking
// a batch for that window, the callback recomputes the batch's content
// commitment and refuses to finalize if it no longer matches the one stored
// at request time.
//
// The core consumes its collaborators through interfaces only: the
// homomorphic capability (fhe.Scheme), the decryption oracle, the
// attestation verifier and the administrative surface (AccessController).
// Batches are append-only: ids are assigned sequentially starting at 1,
// exactly one batch is ever open, and a closed batch remains queryable and
// decryptable forever.
package protocol
