package protocol

import (
	"context"
	"time"

	"github.com/marthaediazx/FheDataHub/crypto"
	"github.com/marthaediazx/FheDataHub/fhe"
)

// DecryptionOracle is the trusted external capability that decrypts
// aggregate ciphertexts off the critical path.
//
// RequestDecryption is non-blocking with respect to the result: it returns
// a fresh request id, and the oracle later delivers (requestID, cleartext,
// attestation) to the hub's resume entry point, State.OnDecryptionResult.
// Exactly-once delivery is assumed but not structurally guaranteed; the
// callback's idempotency gate covers redelivery.
type DecryptionOracle interface {
	RequestDecryption(ctx context.Context, sum *fhe.Ciphertext) (RequestID, error)
}

// AttestationVerifier checks the cryptographic evidence binding a cleartext
// to a decryption request. It is the sole trust anchor preventing a forged
// callback with an arbitrary cleartext.
type AttestationVerifier interface {
	Verify(requestID RequestID, cleartext, attestation []byte) bool
}

// AccessController is the administrative collaborator consumed by the core:
// provider allow-list, pause switch, close capability and cooldown
// configuration. Management of these lives outside the core.
type AccessController interface {
	// IsProvider reports whether the identity may submit encrypted readings.
	IsProvider(submitter crypto.PublicKey) bool

	// CanCloseBatch reports whether the identity may close the open batch.
	CanCloseBatch(caller crypto.PublicKey) bool

	// Paused reports whether state-changing operations are suspended.
	Paused() bool

	// SubmitCooldown is the minimum interval between submissions from the
	// same identity.
	SubmitCooldown() time.Duration

	// RequestCooldown is the minimum interval between decryption requests
	// from the same identity. Independent of the submission namespace.
	RequestCooldown() time.Duration
}

// EventSink receives the hub's observability events. Implementations must
// not call back into State.
type EventSink interface {
	BatchOpened(id uint64)
	BatchClosed(id uint64)
	DataSubmitted(submitter crypto.PublicKey, batchID, index uint64, fingerprint crypto.Digest)
	DecryptionRequested(id RequestID, batchID uint64, commitment Commitment)
	DecryptionCompleted(id RequestID, batchID uint64, average uint64)
}
