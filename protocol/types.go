package protocol

import (
	"github.com/marthaediazx/FheDataHub/crypto"
)

// Commitment is a digest binding the exact ordered set of ciphertexts in a
// batch at a point in time, plus the hub instance identity. It changes if
// and only if that ordered set changes.
type Commitment = crypto.Digest

// RequestID identifies an asynchronous decryption request. It is issued by
// the oracle and keys the pending-request table.
type RequestID string

// Batch is a sequentially-numbered group of encrypted submissions. Exactly
// one batch is open at any time; a closed batch is permanently read-only
// but remains decryptable.
type Batch struct {
	ID        uint64 `json:"id"`
	DataCount uint64 `json:"data_count"`
	Closed    bool   `json:"closed"`
}

// DecryptionContext is the pending state persisted when a decryption
// request is issued, keyed by the oracle's request id. Processed
// transitions false to true exactly once and never reverts.
type DecryptionContext struct {
	BatchID   uint64     `json:"batch_id"`
	StateHash Commitment `json:"state_hash"`
	Processed bool       `json:"processed"`
}
