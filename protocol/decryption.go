package protocol

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/marthaediazx/FheDataHub/crypto"
)

// CleartextSize is the fixed width of an oracle cleartext: one big-endian
// 64-bit aggregate sum.
const CleartextSize = 8

// RequestAggregateDecryption sums the batch homomorphically, asks the
// oracle to decrypt the sum, and persists a pending context under the
// returned request id. Resolution happens later, out of band, through
// OnDecryptionResult.
//
// Multiple requests may be outstanding against the same or different
// batches; no per-batch exclusivity is enforced, which allows re-averaging
// after new submissions.
func (s *State) RequestAggregateDecryption(ctx context.Context, requester crypto.PublicKey, batchID uint64) (RequestID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.access.Paused() {
		return "", ErrPaused
	}

	key := requester.String()
	if last, ok := s.lastRequest[key]; ok {
		if s.now().Sub(last) < s.access.RequestCooldown() {
			return "", ErrCooldownActive
		}
	}

	sum, commitment, err := s.computeAggregateLocked(batchID)
	if err != nil {
		return "", err
	}

	id, err := s.oracle.RequestDecryption(ctx, sum)
	if err != nil {
		return "", fmt.Errorf("oracle request: %w", err)
	}
	if _, exists := s.contexts[id]; exists {
		// The oracle must issue fresh ids; a duplicate would let one
		// callback finalize two requests.
		return "", fmt.Errorf("oracle reissued request id %q", id)
	}

	s.contexts[id] = &DecryptionContext{
		BatchID:   batchID,
		StateHash: commitment,
	}
	s.lastRequest[key] = s.now()

	s.events.DecryptionRequested(id, batchID, commitment)
	return id, nil
}

// OnDecryptionResult is the resume entry point for oracle callbacks. It
// validates the result against the stored context and finalizes the
// plaintext average exactly once.
//
// Validation order is part of the contract:
//
//  1. idempotency gate: a processed context fails with ErrReplayAttempt
//     before anything else is looked at
//  2. batch recheck, failing with ErrInvalidBatch if the batch is gone
//     or empty (batches are never deleted, so this does not fire in
//     practice)
//  3. commitment recheck against the contents observed at request time,
//     failing with ErrStateMismatch if the batch has since grown
//  4. attestation verification over (requestID, cleartext), failing with
//     ErrInvalidProof
//  5. decode, divide, mark processed, emit completion
//
// All five steps run under the state lock; any failure leaves the context
// and batch state completely unchanged.
func (s *State) OnDecryptionResult(requestID RequestID, cleartext, attestation []byte) (batchID, average uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reqCtx, ok := s.contexts[requestID]
	if !ok {
		return 0, 0, ErrUnknownRequest
	}
	if reqCtx.Processed {
		return 0, 0, ErrReplayAttempt
	}

	batch, ok := s.batches[reqCtx.BatchID]
	if !ok || batch.DataCount == 0 {
		return 0, 0, ErrInvalidBatch
	}

	current, err := s.computeCommitmentLocked(reqCtx.BatchID)
	if err != nil {
		return 0, 0, err
	}
	if current != reqCtx.StateHash {
		return 0, 0, ErrStateMismatch
	}

	if !s.verifier.Verify(requestID, cleartext, attestation) {
		return 0, 0, ErrInvalidProof
	}
	if len(cleartext) != CleartextSize {
		return 0, 0, fmt.Errorf("%w: cleartext is %d bytes, want %d", ErrInvalidProof, len(cleartext), CleartextSize)
	}

	sum := binary.BigEndian.Uint64(cleartext)
	// Truncating division. DataCount > 0 was required at request time and
	// never decreases, so this cannot divide by zero.
	average = sum / batch.DataCount

	reqCtx.Processed = true
	s.results[requestID] = average

	s.events.DecryptionCompleted(requestID, reqCtx.BatchID, average)
	return reqCtx.BatchID, average, nil
}
