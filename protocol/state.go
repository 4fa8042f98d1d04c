package protocol

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/marthaediazx/FheDataHub/crypto"
	"github.com/marthaediazx/FheDataHub/fhe"
)

// Config assembles the collaborators a State needs.
type Config struct {
	// Scheme is the homomorphic ciphertext capability.
	Scheme fhe.Scheme

	// Oracle is the asynchronous decryption capability.
	Oracle DecryptionOracle

	// Verifier checks oracle attestations at callback time.
	Verifier AttestationVerifier

	// Access is the administrative surface the core consumes.
	Access AccessController

	// InstanceID identifies this hub deployment. It is mixed into every
	// commitment so a proof captured from one deployment cannot be
	// replayed against another.
	InstanceID crypto.Digest

	// Events receives observability events. Optional.
	Events EventSink

	// Log is the structured logger. Optional.
	Log *slog.Logger

	// Now overrides the clock, for tests. Optional.
	Now func() time.Time
}

// State owns all mutable hub state: the batch table, the submission
// ledger, both cooldown namespaces and the decryption-context table.
//
// Every exported operation locks the state for its whole duration, so
// operations are serialized and each one is atomic: a failed operation
// leaves no partial effect.
type State struct {
	mu sync.Mutex

	scheme     fhe.Scheme
	oracle     DecryptionOracle
	verifier   AttestationVerifier
	access     AccessController
	events     EventSink
	log        *slog.Logger
	now        func() time.Time
	instanceID crypto.Digest

	currentBatchID uint64
	batches        map[uint64]*Batch
	values         map[uint64][]*fhe.Ciphertext

	lastSubmit  map[string]time.Time
	lastRequest map[string]time.Time

	contexts map[RequestID]*DecryptionContext
	results  map[RequestID]uint64
}

// NewState creates a hub state and opens batch 1.
func NewState(cfg Config) (*State, error) {
	s, err := newState(cfg)
	if err != nil {
		return nil, err
	}

	s.openBatch()
	return s, nil
}

func newState(cfg Config) (*State, error) {
	if cfg.Scheme == nil {
		return nil, errors.New("scheme cannot be nil")
	}
	if cfg.Oracle == nil {
		return nil, errors.New("oracle cannot be nil")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("attestation verifier cannot be nil")
	}
	if cfg.Access == nil {
		return nil, errors.New("access controller cannot be nil")
	}

	events := cfg.Events
	if events == nil {
		events = NopEventSink{}
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &State{
		scheme:      cfg.Scheme,
		oracle:      cfg.Oracle,
		verifier:    cfg.Verifier,
		access:      cfg.Access,
		events:      events,
		log:         log,
		now:         now,
		instanceID:  cfg.InstanceID,
		batches:     make(map[uint64]*Batch),
		values:      make(map[uint64][]*fhe.Ciphertext),
		lastSubmit:  make(map[string]time.Time),
		lastRequest: make(map[string]time.Time),
		contexts:    make(map[RequestID]*DecryptionContext),
		results:     make(map[RequestID]uint64),
	}, nil
}

// openBatch allocates the next sequential id and records the new batch as
// the open one. Called at initialization and immediately after every close,
// so there is never a gap with no open batch.
func (s *State) openBatch() {
	s.currentBatchID++
	s.batches[s.currentBatchID] = &Batch{ID: s.currentBatchID}
	s.events.BatchOpened(s.currentBatchID)
}

// CloseBatch marks the open batch closed and immediately opens its
// successor. Requires the administrative capability.
func (s *State) CloseBatch(caller crypto.PublicKey) (closedID, openedID uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.access.CanCloseBatch(caller) {
		return 0, 0, ErrNotAuthorized
	}

	// Consistency check on the nominal current batch. Unreachable under
	// correct sequencing since openBatch always follows a close.
	batch, ok := s.batches[s.currentBatchID]
	if !ok || batch.ID != s.currentBatchID || batch.Closed {
		return 0, 0, ErrInvalidBatch
	}

	batch.Closed = true
	closedID = batch.ID
	s.events.BatchClosed(closedID)

	s.openBatch()
	return closedID, s.currentBatchID, nil
}

// Submit appends an encrypted reading to the open batch. The reading
// receives the next index in strict submission order; indices are never
// reassigned or removed. There is no upper bound on a batch's size here;
// capacity is an external concern.
func (s *State) Submit(submitter crypto.PublicKey, ct *fhe.Ciphertext) (batchID, index uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.access.IsProvider(submitter) {
		return 0, 0, ErrNotProvider
	}
	if s.access.Paused() {
		return 0, 0, ErrPaused
	}

	key := submitter.String()
	if last, ok := s.lastSubmit[key]; ok {
		if s.now().Sub(last) < s.access.SubmitCooldown() {
			return 0, 0, ErrCooldownActive
		}
	}

	batch, ok := s.batches[s.currentBatchID]
	if !ok || batch.Closed {
		return 0, 0, ErrBatchClosedOrInvalid
	}

	// Materialize and fingerprint before touching any state so a malformed
	// handle rejects with no partial effect.
	if err := s.scheme.InitializeIfNeeded(ct); err != nil {
		return 0, 0, fmt.Errorf("initialize ciphertext: %w", err)
	}
	fingerprint, err := s.scheme.Fingerprint(ct)
	if err != nil {
		return 0, 0, fmt.Errorf("fingerprint ciphertext: %w", err)
	}

	index = batch.DataCount
	s.values[batch.ID] = append(s.values[batch.ID], ct)
	batch.DataCount++
	s.lastSubmit[key] = s.now()

	s.events.DataSubmitted(submitter, batch.ID, index, fingerprint)
	return batch.ID, index, nil
}

// CurrentBatch returns a copy of the open batch.
func (s *State) CurrentBatch() Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.batches[s.currentBatchID]
}

// GetBatch returns a copy of the batch with the given id.
func (s *State) GetBatch(id uint64) (Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.batches[id]
	if !ok {
		return Batch{}, ErrInvalidBatch
	}
	return *batch, nil
}

// GetContext returns a copy of the decryption context for a request id.
func (s *State) GetContext(id RequestID) (DecryptionContext, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, ok := s.contexts[id]
	if !ok {
		return DecryptionContext{}, false
	}
	return *ctx, true
}

// GetResult returns the finalized average for a processed request.
func (s *State) GetResult(id RequestID) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	avg, ok := s.results[id]
	return avg, ok
}
