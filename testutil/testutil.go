// Package testutil provides shared fixtures for FheDataHub tests: key
// material, encrypted readings and honest oracle callbacks. Test
// writers get consistent wire-level payloads without repeating the
// encoding details in every package.
package testutil

import (
	"encoding/binary"
	"fmt"

	"github.com/marthaediazx/FheDataHub/crypto"
	"github.com/marthaediazx/FheDataHub/fhe"
	"github.com/marthaediazx/FheDataHub/oracle"
	"github.com/marthaediazx/FheDataHub/protocol"
)

// GenerateTestKeyPair creates an Ed25519 key pair, panicking on failure.
// Test-only convenience around crypto.GenerateKeyPair.
func GenerateTestKeyPair() (crypto.PublicKey, crypto.PrivateKey) {
	pub, priv, err := crypto.GenerateKeyPair()
	if err != nil {
		panic(fmt.Sprintf("generating test key pair: %v", err))
	}
	return pub, priv
}

// EncryptValues encrypts each value with the given encryptor.
func EncryptValues(enc fhe.Encryptor, values ...uint64) ([]*fhe.Ciphertext, error) {
	out := make([]*fhe.Ciphertext, len(values))
	for i, v := range values {
		ct, err := enc.Encrypt(v)
		if err != nil {
			return nil, fmt.Errorf("encrypting value %d: %w", v, err)
		}
		out[i] = ct
	}
	return out, nil
}

// Cleartext encodes a sum the way the oracle serializes decrypted
// aggregates: one big-endian uint64.
func Cleartext(sum uint64) []byte {
	buf := make([]byte, protocol.CleartextSize)
	binary.BigEndian.PutUint64(buf, sum)
	return buf
}

// HonestCallback builds the (cleartext, attestation) pair a well-behaved
// dummy-attesting oracle would deliver for the given request and sum.
func HonestCallback(id protocol.RequestID, sum uint64) (cleartext, attestation []byte) {
	cleartext = Cleartext(sum)
	attestation, err := oracle.DummyAttester{}.Attest(id, cleartext)
	if err != nil {
		panic(fmt.Sprintf("dummy attestation: %v", err))
	}
	return cleartext, attestation
}
