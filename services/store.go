package services

import (
	"sync"

	"github.com/marthaediazx/FheDataHub/protocol"
)

// Store persists the hub's durable state so it survives restarts. The
// hub writes through after every successful mutation and loads a full
// snapshot at startup.
//
// Cooldown timestamps are deliberately not persisted; rate limits
// restart fresh with the process.
type Store interface {
	// SaveBatch inserts or updates a batch row.
	SaveBatch(b protocol.Batch) error

	// SaveSubmission records the serialized ciphertext at (batchID, index).
	// Indices are assigned once and never rewritten.
	SaveSubmission(batchID, index uint64, ciphertext []byte) error

	// SaveContext inserts or updates a decryption context.
	SaveContext(id protocol.RequestID, ctx protocol.DecryptionContext) error

	// SaveResult records the finalized average for a processed request.
	SaveResult(id protocol.RequestID, average uint64) error

	// Load reconstructs a full snapshot. A fresh store returns an empty
	// snapshot, not an error.
	Load() (*protocol.Snapshot, error)

	// Close releases the underlying resources.
	Close() error
}

// InMemoryStore implements Store without any durability. Used in tests
// and in demo deployments where persistence is not needed.
type InMemoryStore struct {
	mu sync.Mutex

	batches  map[uint64]protocol.Batch
	values   map[uint64][][]byte
	contexts map[protocol.RequestID]protocol.DecryptionContext
	results  map[protocol.RequestID]uint64
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		batches:  make(map[uint64]protocol.Batch),
		values:   make(map[uint64][][]byte),
		contexts: make(map[protocol.RequestID]protocol.DecryptionContext),
		results:  make(map[protocol.RequestID]uint64),
	}
}

func (s *InMemoryStore) SaveBatch(b protocol.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[b.ID] = b
	return nil
}

func (s *InMemoryStore) SaveSubmission(batchID, index uint64, ciphertext []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := make([]byte, len(ciphertext))
	copy(data, ciphertext)

	values := s.values[batchID]
	for uint64(len(values)) <= index {
		values = append(values, nil)
	}
	values[index] = data
	s.values[batchID] = values
	return nil
}

func (s *InMemoryStore) SaveContext(id protocol.RequestID, ctx protocol.DecryptionContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[id] = ctx
	return nil
}

func (s *InMemoryStore) SaveResult(id protocol.RequestID, average uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[id] = average
	return nil
}

func (s *InMemoryStore) Load() (*protocol.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &protocol.Snapshot{
		Batches:  make([]protocol.Batch, 0, len(s.batches)),
		Values:   make(map[uint64][][]byte, len(s.values)),
		Contexts: make(map[protocol.RequestID]protocol.DecryptionContext, len(s.contexts)),
		Results:  make(map[protocol.RequestID]uint64, len(s.results)),
	}

	for id := uint64(1); ; id++ {
		b, ok := s.batches[id]
		if !ok {
			break
		}
		snap.Batches = append(snap.Batches, b)
	}
	for batchID, values := range s.values {
		copied := make([][]byte, len(values))
		copy(copied, values)
		snap.Values[batchID] = copied
	}
	for id, ctx := range s.contexts {
		snap.Contexts[id] = ctx
	}
	for id, avg := range s.results {
		snap.Results[id] = avg
	}

	return snap, nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
