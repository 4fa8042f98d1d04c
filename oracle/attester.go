package oracle

import (
	"crypto/subtle"

	"github.com/marthaediazx/FheDataHub/crypto"
	"github.com/marthaediazx/FheDataHub/protocol"
)

const attestationDomain = "fhedatahub/decryption-attestation/v1"

// Attester produces evidence binding a cleartext to a decryption request.
type Attester interface {
	Attest(id protocol.RequestID, cleartext []byte) ([]byte, error)
}

// ReportData digests (requestID, cleartext) under the attestation domain.
// Both the ed25519 and TDX attestation flavors sign or quote this digest.
func ReportData(id protocol.RequestID, cleartext []byte) crypto.Digest {
	h := crypto.NewHasher(attestationDomain)
	h.WriteBytes([]byte(id))
	h.WriteBytes(cleartext)
	return h.Sum()
}

// Ed25519Attester signs the report data with the oracle's signing key.
type Ed25519Attester struct {
	Key crypto.PrivateKey
}

// Attest signs the digest of (id, cleartext).
func (a *Ed25519Attester) Attest(id protocol.RequestID, cleartext []byte) ([]byte, error) {
	report := ReportData(id, cleartext)
	sig, err := crypto.Sign(a.Key, report[:])
	if err != nil {
		return nil, err
	}
	return sig.Bytes(), nil
}

// Ed25519Verifier implements protocol.AttestationVerifier against a known
// oracle public key.
type Ed25519Verifier struct {
	OracleKey crypto.PublicKey
}

// Verify checks the attestation signature over (id, cleartext).
func (v *Ed25519Verifier) Verify(id protocol.RequestID, cleartext, attestation []byte) bool {
	report := ReportData(id, cleartext)
	return crypto.NewSignature(attestation).Verify(v.OracleKey, report[:])
}

// DummyAttester returns the raw report data as the attestation. Only for
// tests and demos without any oracle key material.
type DummyAttester struct{}

func (DummyAttester) Attest(id protocol.RequestID, cleartext []byte) ([]byte, error) {
	report := ReportData(id, cleartext)
	return report[:], nil
}

// DummyVerifier accepts attestations produced by DummyAttester.
type DummyVerifier struct{}

func (DummyVerifier) Verify(id protocol.RequestID, cleartext, attestation []byte) bool {
	report := ReportData(id, cleartext)
	return subtle.ConstantTimeCompare(report[:], attestation) == 1
}
