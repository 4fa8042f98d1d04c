package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/marthaediazx/FheDataHub/crypto"
	"github.com/marthaediazx/FheDataHub/fhe"
	"github.com/marthaediazx/FheDataHub/protocol"
)

// HubConfig assembles a HubService.
type HubConfig struct {
	// Scheme is the homomorphic ciphertext capability.
	Scheme fhe.Scheme

	// Oracle is the asynchronous decryption capability.
	Oracle protocol.DecryptionOracle

	// Verifier checks oracle attestations at callback time.
	Verifier protocol.AttestationVerifier

	// Access is the administrative surface. A *StaticAccessController
	// here additionally enables the admin endpoints.
	Access protocol.AccessController

	// Store is the persistence backend. Defaults to NewInMemoryStore.
	Store Store

	// InstanceID identifies this deployment in batch commitments.
	InstanceID crypto.Digest

	// Events receives observability events. Optional.
	Events protocol.EventSink

	// Log is the structured logger. Optional.
	Log *slog.Logger
}

// HubService wraps the protocol state with write-through persistence.
// Every successful mutation is mirrored to the store before the call
// returns; at startup the state is rebuilt from the store's snapshot.
//
// Store writes happen outside the state lock, so a crash between the
// two can lose the latest mutation but never corrupts ordering: batch
// ids and submission indices are deterministic and rewriting them is
// idempotent.
type HubService struct {
	state *protocol.State
	store Store
	log   *slog.Logger
}

// NewHubService loads the snapshot from the store and builds the
// service around the restored state. A fresh store yields batch 1 open.
func NewHubService(cfg HubConfig) (*HubService, error) {
	store := cfg.Store
	if store == nil {
		store = NewInMemoryStore()
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	snap, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}

	state, err := protocol.RestoreState(protocol.Config{
		Scheme:     cfg.Scheme,
		Oracle:     cfg.Oracle,
		Verifier:   cfg.Verifier,
		Access:     cfg.Access,
		InstanceID: cfg.InstanceID,
		Events:     cfg.Events,
		Log:        log,
	}, snap)
	if err != nil {
		return nil, fmt.Errorf("restoring state: %w", err)
	}

	h := &HubService{
		state: state,
		store: store,
		log:   log,
	}

	// Make sure the open batch row exists even before the first write.
	if err := h.persistBatch(state.CurrentBatch()); err != nil {
		return nil, err
	}

	return h, nil
}

// State exposes the underlying protocol state, for wiring the oracle's
// result handler in single-binary deployments.
func (h *HubService) State() *protocol.State {
	return h.state
}

func (h *HubService) persistBatch(b protocol.Batch) error {
	if err := h.store.SaveBatch(b); err != nil {
		return fmt.Errorf("persisting batch %d: %w", b.ID, err)
	}
	return nil
}

// Submit appends an encrypted reading to the open batch and persists it.
func (h *HubService) Submit(submitter crypto.PublicKey, ciphertext []byte) (batchID, index uint64, err error) {
	ct := fhe.NewCiphertext(ciphertext)
	batchID, index, err = h.state.Submit(submitter, ct)
	if err != nil {
		return 0, 0, err
	}

	if err := h.store.SaveSubmission(batchID, index, ciphertext); err != nil {
		h.log.Error("failed to persist submission", "batchID", batchID, "index", index, "err", err)
		return batchID, index, fmt.Errorf("persisting submission: %w", err)
	}

	batch, err := h.state.GetBatch(batchID)
	if err != nil {
		return batchID, index, err
	}
	return batchID, index, h.persistBatch(batch)
}

// CloseBatch closes the open batch and persists both affected rows.
func (h *HubService) CloseBatch(caller crypto.PublicKey) (closedID, openedID uint64, err error) {
	closedID, openedID, err = h.state.CloseBatch(caller)
	if err != nil {
		return 0, 0, err
	}

	closed, err := h.state.GetBatch(closedID)
	if err != nil {
		return closedID, openedID, err
	}
	if err := h.persistBatch(closed); err != nil {
		return closedID, openedID, err
	}

	opened, err := h.state.GetBatch(openedID)
	if err != nil {
		return closedID, openedID, err
	}
	return closedID, openedID, h.persistBatch(opened)
}

// RequestDecryption issues a decryption request and persists the
// pending context.
func (h *HubService) RequestDecryption(ctx context.Context, requester crypto.PublicKey, batchID uint64) (protocol.RequestID, error) {
	id, err := h.state.RequestAggregateDecryption(ctx, requester, batchID)
	if err != nil {
		return "", err
	}

	reqCtx, ok := h.state.GetContext(id)
	if !ok {
		return id, fmt.Errorf("context for request %s vanished", id)
	}
	if err := h.store.SaveContext(id, reqCtx); err != nil {
		h.log.Error("failed to persist decryption context", "requestID", string(id), "err", err)
		return id, fmt.Errorf("persisting context: %w", err)
	}

	return id, nil
}

// OnDecryptionResult resumes a pending request from an oracle callback
// and persists the outcome.
func (h *HubService) OnDecryptionResult(requestID protocol.RequestID, cleartext, attestation []byte) (batchID, average uint64, err error) {
	batchID, average, err = h.state.OnDecryptionResult(requestID, cleartext, attestation)
	if err != nil {
		return 0, 0, err
	}

	reqCtx, ok := h.state.GetContext(requestID)
	if ok {
		if err := h.store.SaveContext(requestID, reqCtx); err != nil {
			h.log.Error("failed to persist processed context", "requestID", string(requestID), "err", err)
		}
	}
	if err := h.store.SaveResult(requestID, average); err != nil {
		h.log.Error("failed to persist result", "requestID", string(requestID), "err", err)
	}

	return batchID, average, nil
}

// CurrentBatch returns a copy of the open batch.
func (h *HubService) CurrentBatch() protocol.Batch {
	return h.state.CurrentBatch()
}

// GetBatch returns a copy of the batch with the given id.
func (h *HubService) GetBatch(id uint64) (protocol.Batch, error) {
	return h.state.GetBatch(id)
}

// GetRequestStatus reports the state of a decryption request.
func (h *HubService) GetRequestStatus(id protocol.RequestID) (RequestStatusResponse, bool) {
	reqCtx, ok := h.state.GetContext(id)
	if !ok {
		return RequestStatusResponse{}, false
	}

	status := RequestStatusResponse{
		RequestID: id,
		BatchID:   reqCtx.BatchID,
		Processed: reqCtx.Processed,
	}
	if avg, ok := h.state.GetResult(id); ok {
		status.Average = avg
	}
	return status, true
}

// Close releases the persistence backend.
func (h *HubService) Close() error {
	return h.store.Close()
}
