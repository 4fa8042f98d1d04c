package services

import (
	"github.com/marthaediazx/FheDataHub/crypto"
	"github.com/marthaediazx/FheDataHub/protocol"
)

// SubmitRequest carries one encrypted reading, wrapped in a
// protocol.Signed envelope on the wire. The signer is the provider
// identity the capability and cooldown checks run against.
type SubmitRequest struct {
	// Ciphertext is the serialized encrypted reading.
	Ciphertext []byte `json:"ciphertext"`
}

// SubmitResponse reports where the reading landed.
type SubmitResponse struct {
	BatchID uint64 `json:"batch_id"`
	Index   uint64 `json:"index"`
}

// CloseBatchRequest asks the hub to close the open batch. Signed; the
// signer must hold the close capability.
type CloseBatchRequest struct {
	// BatchID must name the currently open batch. Guards against closing
	// a batch the caller has not seen.
	BatchID uint64 `json:"batch_id"`
}

// CloseBatchResponse reports the closed batch and its successor.
type CloseBatchResponse struct {
	ClosedID uint64 `json:"closed_id"`
	OpenedID uint64 `json:"opened_id"`
}

// DecryptionRequest asks for the average of a batch. Signed.
type DecryptionRequest struct {
	BatchID uint64 `json:"batch_id"`
}

// DecryptionResponse returns the request id to poll for the result.
type DecryptionResponse struct {
	RequestID protocol.RequestID `json:"request_id"`
}

// CallbackMessage is what the oracle delivers to the hub's callback
// endpoint once a decryption resolves.
type CallbackMessage struct {
	RequestID   protocol.RequestID `json:"request_id"`
	Cleartext   []byte             `json:"cleartext"`
	Attestation []byte             `json:"attestation"`
}

// RequestStatusResponse reports the state of a decryption request.
type RequestStatusResponse struct {
	RequestID protocol.RequestID `json:"request_id"`
	BatchID   uint64             `json:"batch_id"`
	Processed bool               `json:"processed"`
	// Average is meaningful only when Processed is true.
	Average uint64 `json:"average,omitempty"`
}

// OracleDecryptRequest is the oracle service's wire request.
type OracleDecryptRequest struct {
	Ciphertext []byte `json:"ciphertext"`
}

// OracleDecryptResponse acknowledges a queued decryption.
type OracleDecryptResponse struct {
	RequestID protocol.RequestID `json:"request_id"`
}

// ProviderRequest names a provider identity for the admin grant and
// revoke endpoints.
type ProviderRequest struct {
	PublicKey crypto.PublicKey `json:"public_key"`
}
