package protocol

import "errors"

// Every operation fails atomically: an error means no state was changed.
// None of these are fatal to the service; each is scoped to the operation
// that raised it.
var (
	// ErrNotProvider rejects submissions from identities without the
	// provider capability.
	ErrNotProvider = errors.New("submitter is not a registered provider")

	// ErrNotAuthorized rejects administrative operations from identities
	// without the administrative capability.
	ErrNotAuthorized = errors.New("caller lacks administrative capability")

	// ErrPaused rejects state-changing operations while the hub is paused.
	ErrPaused = errors.New("hub is paused")

	// ErrCooldownActive rejects an action before the identity's minimum
	// interval since its previous action has elapsed.
	ErrCooldownActive = errors.New("cooldown active")

	// ErrInvalidBatch rejects operations against a batch that does not
	// exist, is empty where data is required, or fails the registry's
	// consistency check.
	ErrInvalidBatch = errors.New("invalid batch")

	// ErrBatchClosedOrInvalid rejects submissions when the nominal current
	// batch is missing or already closed.
	ErrBatchClosedOrInvalid = errors.New("batch closed or invalid")

	// ErrUnknownRequest rejects a decryption result that references no
	// stored request context.
	ErrUnknownRequest = errors.New("unknown decryption request")

	// ErrReplayAttempt rejects a decryption result whose request was
	// already finalized.
	ErrReplayAttempt = errors.New("decryption result already processed")

	// ErrStateMismatch rejects a decryption result when the batch contents
	// changed between request and callback.
	ErrStateMismatch = errors.New("batch contents changed since request")

	// ErrInvalidProof rejects a decryption result whose attestation does
	// not verify against the request id and cleartext.
	ErrInvalidProof = errors.New("attestation does not verify")
)
