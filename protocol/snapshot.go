package protocol

import (
	"fmt"

	"github.com/marthaediazx/FheDataHub/fhe"
)

// Snapshot is a serializable copy of the hub's durable state, used by the
// persistence stores to survive restarts. Cooldown timestamps are not
// snapshotted; rate limits restart fresh with the process.
type Snapshot struct {
	Batches  []Batch                         `json:"batches"`
	Values   map[uint64][][]byte             `json:"values"`
	Contexts map[RequestID]DecryptionContext `json:"contexts"`
	Results  map[RequestID]uint64            `json:"results"`
}

// Snapshot copies the durable state.
func (s *State) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &Snapshot{
		Batches:  make([]Batch, 0, len(s.batches)),
		Values:   make(map[uint64][][]byte, len(s.values)),
		Contexts: make(map[RequestID]DecryptionContext, len(s.contexts)),
		Results:  make(map[RequestID]uint64, len(s.results)),
	}

	for id := uint64(1); id <= s.currentBatchID; id++ {
		snap.Batches = append(snap.Batches, *s.batches[id])
	}
	for batchID, values := range s.values {
		serialized := make([][]byte, len(values))
		for i, ct := range values {
			serialized[i] = ct.Data
		}
		snap.Values[batchID] = serialized
	}
	for id, ctx := range s.contexts {
		snap.Contexts[id] = *ctx
	}
	for id, avg := range s.results {
		snap.Results[id] = avg
	}

	return snap
}

// RestoreState rebuilds a hub state from a snapshot. An empty snapshot
// behaves like NewState: batch 1 is opened. Restoration does not replay
// events.
func RestoreState(cfg Config, snap *Snapshot) (*State, error) {
	s, err := newState(cfg)
	if err != nil {
		return nil, err
	}

	if snap == nil || len(snap.Batches) == 0 {
		s.openBatch()
		return s, nil
	}

	for _, batch := range snap.Batches {
		b := batch
		s.batches[b.ID] = &b
		if b.ID > s.currentBatchID {
			s.currentBatchID = b.ID
		}
	}

	open, ok := s.batches[s.currentBatchID]
	if !ok || open.Closed {
		return nil, fmt.Errorf("snapshot has no open batch (max id %d)", s.currentBatchID)
	}

	for batchID, serialized := range snap.Values {
		batch, ok := s.batches[batchID]
		if !ok {
			return nil, fmt.Errorf("snapshot values reference unknown batch %d", batchID)
		}
		if uint64(len(serialized)) != batch.DataCount {
			return nil, fmt.Errorf("batch %d snapshot has %d values, expected %d",
				batchID, len(serialized), batch.DataCount)
		}
		values := make([]*fhe.Ciphertext, len(serialized))
		for i, data := range serialized {
			values[i] = fhe.NewCiphertext(data)
		}
		s.values[batchID] = values
	}

	for id, ctx := range snap.Contexts {
		c := ctx
		s.contexts[id] = &c
	}
	for id, avg := range snap.Results {
		s.results[id] = avg
	}

	return s, nil
}
