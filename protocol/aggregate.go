package protocol

import (
	"fmt"

	"github.com/marthaediazx/FheDataHub/crypto"
	"github.com/marthaediazx/FheDataHub/fhe"
)

// commitmentDomain separates FheDataHub commitments from any other use of
// the same digest construction.
const commitmentDomain = "fhedatahub/batch-commitment/v1"

// ComputeAggregate homomorphically sums a batch's readings and derives the
// commitment over its current contents. The batch must exist and be
// non-empty, but may be closed.
func (s *State) ComputeAggregate(batchID uint64) (*fhe.Ciphertext, Commitment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.computeAggregateLocked(batchID)
}

func (s *State) computeAggregateLocked(batchID uint64) (*fhe.Ciphertext, Commitment, error) {
	batch, ok := s.batches[batchID]
	if !ok || batch.DataCount == 0 {
		return nil, Commitment{}, ErrInvalidBatch
	}

	sum, err := s.scheme.Zero()
	if err != nil {
		return nil, Commitment{}, fmt.Errorf("homomorphic zero: %w", err)
	}
	if err := s.scheme.InitializeIfNeeded(sum); err != nil {
		return nil, Commitment{}, fmt.Errorf("initialize accumulator: %w", err)
	}

	// Accumulate in strict index order. Some encodings are order-sensitive
	// even though the arithmetic commutes, and the commitment depends on
	// the same ordering.
	for i, ct := range s.values[batchID] {
		if err := s.scheme.InitializeIfNeeded(ct); err != nil {
			return nil, Commitment{}, fmt.Errorf("initialize value %d: %w", i, err)
		}
		sum, err = s.scheme.Add(sum, ct)
		if err != nil {
			return nil, Commitment{}, fmt.Errorf("add value %d: %w", i, err)
		}
	}

	commitment, err := s.computeCommitmentLocked(batchID)
	if err != nil {
		return nil, Commitment{}, err
	}

	return sum, commitment, nil
}

// computeCommitmentLocked digests the ordered fingerprints of a batch's
// present ciphertext set together with the hub instance identity. Since
// batches are append-only and indices immutable, any growth between two
// calls changes the result.
func (s *State) computeCommitmentLocked(batchID uint64) (Commitment, error) {
	batch, ok := s.batches[batchID]
	if !ok || batch.DataCount == 0 {
		return Commitment{}, ErrInvalidBatch
	}

	h := crypto.NewHasher(commitmentDomain)
	h.WriteBytes(s.instanceID[:])
	h.WriteUint64(batchID)
	h.WriteUint64(batch.DataCount)
	for i, ct := range s.values[batchID] {
		if err := s.scheme.InitializeIfNeeded(ct); err != nil {
			return Commitment{}, fmt.Errorf("initialize value %d: %w", i, err)
		}
		fingerprint, err := s.scheme.Fingerprint(ct)
		if err != nil {
			return Commitment{}, fmt.Errorf("fingerprint value %d: %w", i, err)
		}
		h.WriteBytes(fingerprint[:])
	}

	return h.Sum(), nil
}
