package protocol

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marthaediazx/FheDataHub/crypto"
	"github.com/marthaediazx/FheDataHub/fhe"
)

// stubAccess is a controllable AccessController for tests.
type stubAccess struct {
	providers map[string]bool
	admins    map[string]bool
	paused    bool
	submitCD  time.Duration
	requestCD time.Duration
}

func newStubAccess() *stubAccess {
	return &stubAccess{
		providers: make(map[string]bool),
		admins:    make(map[string]bool),
	}
}

func (a *stubAccess) IsProvider(pk crypto.PublicKey) bool   { return a.providers[pk.String()] }
func (a *stubAccess) CanCloseBatch(pk crypto.PublicKey) bool { return a.admins[pk.String()] }
func (a *stubAccess) Paused() bool                           { return a.paused }
func (a *stubAccess) SubmitCooldown() time.Duration          { return a.submitCD }
func (a *stubAccess) RequestCooldown() time.Duration         { return a.requestCD }

// stubOracle issues sequential request ids and captures the aggregate it
// was asked to decrypt.
type stubOracle struct {
	mu       sync.Mutex
	next     int
	captured map[RequestID]*fhe.Ciphertext
}

func newStubOracle() *stubOracle {
	return &stubOracle{captured: make(map[RequestID]*fhe.Ciphertext)}
}

func (o *stubOracle) RequestDecryption(_ context.Context, sum *fhe.Ciphertext) (RequestID, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.next++
	id := RequestID(fmt.Sprintf("req-%04d", o.next))
	o.captured[id] = sum
	return id, nil
}

// stubVerifier accepts an attestation equal to "ok:"+requestID.
type stubVerifier struct{}

func (stubVerifier) Verify(id RequestID, _, attestation []byte) bool {
	return string(attestation) == "ok:"+string(id)
}

func validAttestation(id RequestID) []byte {
	return []byte("ok:" + string(id))
}

// recordingSink counts emitted events.
type recordingSink struct {
	opened    []uint64
	closed    []uint64
	submitted int
	requested int
	completed int
}

func (r *recordingSink) BatchOpened(id uint64) { r.opened = append(r.opened, id) }
func (r *recordingSink) BatchClosed(id uint64) { r.closed = append(r.closed, id) }
func (r *recordingSink) DataSubmitted(crypto.PublicKey, uint64, uint64, crypto.Digest) {
	r.submitted++
}
func (r *recordingSink) DecryptionRequested(RequestID, uint64, Commitment) { r.requested++ }
func (r *recordingSink) DecryptionCompleted(RequestID, uint64, uint64)     { r.completed++ }

type testHub struct {
	state  *State
	scheme *fhe.PlainScheme
	access *stubAccess
	oracle *stubOracle
	sink   *recordingSink
	now    time.Time

	provider crypto.PublicKey
	admin    crypto.PublicKey
}

func newTestHub(t *testing.T) *testHub {
	t.Helper()

	providerPK, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	adminPK, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	h := &testHub{
		scheme:   fhe.NewPlainScheme(),
		access:   newStubAccess(),
		oracle:   newStubOracle(),
		sink:     &recordingSink{},
		now:      time.Unix(1700000000, 0),
		provider: providerPK,
		admin:    adminPK,
	}
	h.access.providers[providerPK.String()] = true
	h.access.admins[adminPK.String()] = true

	state, err := NewState(Config{
		Scheme:     h.scheme,
		Oracle:     h.oracle,
		Verifier:   stubVerifier{},
		Access:     h.access,
		InstanceID: crypto.Sum256([]byte("test-hub")),
		Events:     h.sink,
		Now:        func() time.Time { return h.now },
	})
	require.NoError(t, err)

	h.state = state
	return h
}

func (h *testHub) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

func (h *testHub) submit(t *testing.T, value uint64) (uint64, uint64) {
	t.Helper()
	ct, err := h.scheme.Encrypt(value)
	require.NoError(t, err)
	batchID, index, err := h.state.Submit(h.provider, ct)
	require.NoError(t, err)
	return batchID, index
}

func TestNewStateOpensBatchOne(t *testing.T) {
	h := newTestHub(t)

	batch := h.state.CurrentBatch()
	assert.Equal(t, uint64(1), batch.ID)
	assert.Equal(t, uint64(0), batch.DataCount)
	assert.False(t, batch.Closed)
	assert.Equal(t, []uint64{1}, h.sink.opened)
}

func TestSubmitAssignsSequentialIndices(t *testing.T) {
	h := newTestHub(t)

	for k := uint64(1); k <= 5; k++ {
		batchID, index := h.submit(t, 10*k)
		assert.Equal(t, uint64(1), batchID)
		assert.Equal(t, k-1, index)

		batch := h.state.CurrentBatch()
		assert.Equal(t, k, batch.DataCount)
	}
	assert.Equal(t, 5, h.sink.submitted)
}

func TestSubmitRequiresProviderCapability(t *testing.T) {
	h := newTestHub(t)

	strangerPK, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	ct, err := h.scheme.Encrypt(1)
	require.NoError(t, err)

	_, _, err = h.state.Submit(strangerPK, ct)
	assert.ErrorIs(t, err, ErrNotProvider)
	assert.Equal(t, uint64(0), h.state.CurrentBatch().DataCount)
}

func TestSubmitRejectedWhilePaused(t *testing.T) {
	h := newTestHub(t)
	h.access.paused = true

	ct, err := h.scheme.Encrypt(1)
	require.NoError(t, err)

	_, _, err = h.state.Submit(h.provider, ct)
	assert.ErrorIs(t, err, ErrPaused)
}

func TestSubmitCooldown(t *testing.T) {
	h := newTestHub(t)
	h.access.submitCD = time.Minute

	h.submit(t, 10)

	ct, err := h.scheme.Encrypt(20)
	require.NoError(t, err)
	_, _, err = h.state.Submit(h.provider, ct)
	assert.ErrorIs(t, err, ErrCooldownActive)

	h.advance(time.Minute)
	_, index, err := h.state.Submit(h.provider, ct)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), index)
}

func TestCooldownNamespacesAreIndependent(t *testing.T) {
	h := newTestHub(t)
	h.access.submitCD = time.Minute
	h.access.requestCD = time.Minute

	h.submit(t, 10)

	// A fresh submission cooldown must not block a decryption request from
	// the same identity.
	_, err := h.state.RequestAggregateDecryption(context.Background(), h.provider, 1)
	require.NoError(t, err)

	// And the request cooldown must not extend the submission one.
	h.advance(time.Minute)
	ct, err := h.scheme.Encrypt(30)
	require.NoError(t, err)
	_, _, err = h.state.Submit(h.provider, ct)
	require.NoError(t, err)
}

func TestCloseBatchOpensSuccessor(t *testing.T) {
	h := newTestHub(t)
	h.submit(t, 10)

	closedID, openedID, err := h.state.CloseBatch(h.admin)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), closedID)
	assert.Equal(t, uint64(2), openedID)

	closed, err := h.state.GetBatch(1)
	require.NoError(t, err)
	assert.True(t, closed.Closed)
	assert.Equal(t, uint64(1), closed.DataCount)

	current := h.state.CurrentBatch()
	assert.Equal(t, uint64(2), current.ID)
	assert.False(t, current.Closed)

	// The successor accepts submissions immediately.
	batchID, index := h.submit(t, 20)
	assert.Equal(t, uint64(2), batchID)
	assert.Equal(t, uint64(0), index)

	assert.Equal(t, []uint64{1}, h.sink.closed)
	assert.Equal(t, []uint64{1, 2}, h.sink.opened)
}

func TestCloseBatchRequiresCapability(t *testing.T) {
	h := newTestHub(t)

	_, _, err := h.state.CloseBatch(h.provider)
	assert.ErrorIs(t, err, ErrNotAuthorized)
	assert.False(t, h.state.CurrentBatch().Closed)
}

func TestClosedBatchKeepsFinalCount(t *testing.T) {
	h := newTestHub(t)
	h.submit(t, 10)

	_, _, err := h.state.CloseBatch(h.admin)
	require.NoError(t, err)

	// Submissions always target the open batch; the closed one stays at
	// its final count forever.
	h.submit(t, 20)
	closed, err := h.state.GetBatch(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), closed.DataCount)
}

func TestCommitmentDeterministicAndAppendSensitive(t *testing.T) {
	h := newTestHub(t)
	h.submit(t, 10)
	h.submit(t, 20)

	_, c1, err := h.state.ComputeAggregate(1)
	require.NoError(t, err)
	_, c2, err := h.state.ComputeAggregate(1)
	require.NoError(t, err)
	assert.Equal(t, c1, c2, "unchanged batch must recompute to the same commitment")

	h.submit(t, 30)
	_, c3, err := h.state.ComputeAggregate(1)
	require.NoError(t, err)
	assert.NotEqual(t, c1, c3, "appending a submission must change the commitment")
}

func TestCommitmentBoundToInstance(t *testing.T) {
	h1 := newTestHub(t)
	h2 := newTestHub(t)

	// Same contents, different deployments.
	ct1, err := h1.scheme.Encrypt(42)
	require.NoError(t, err)
	ct2, err := h2.scheme.Encrypt(42)
	require.NoError(t, err)

	_, _, err = h1.state.Submit(h1.provider, ct1)
	require.NoError(t, err)
	_, _, err = h2.state.Submit(h2.provider, ct2)
	require.NoError(t, err)

	_, c1, err := h1.state.ComputeAggregate(1)
	require.NoError(t, err)
	_, c2, err := h2.state.ComputeAggregate(1)
	require.NoError(t, err)
	assert.Equal(t, c1, c2, "same instance id and contents must agree")

	// Differing instance ids must not.
	other, err := NewState(Config{
		Scheme:     h1.scheme,
		Oracle:     h1.oracle,
		Verifier:   stubVerifier{},
		Access:     h1.access,
		InstanceID: crypto.Sum256([]byte("other-hub")),
		Now:        func() time.Time { return h1.now },
	})
	require.NoError(t, err)
	ct3, err := h1.scheme.Encrypt(42)
	require.NoError(t, err)
	_, _, err = other.Submit(h1.provider, ct3)
	require.NoError(t, err)

	_, c3, err := other.ComputeAggregate(1)
	require.NoError(t, err)
	assert.NotEqual(t, c1, c3, "differing instance ids must separate commitments")
}

func TestComputeAggregateEmptyBatch(t *testing.T) {
	h := newTestHub(t)

	_, _, err := h.state.ComputeAggregate(1)
	assert.ErrorIs(t, err, ErrInvalidBatch)

	_, _, err = h.state.ComputeAggregate(99)
	assert.ErrorIs(t, err, ErrInvalidBatch)
}

func TestSnapshotRestoreRoundtrip(t *testing.T) {
	h := newTestHub(t)
	h.submit(t, 10)
	h.submit(t, 20)
	_, _, err := h.state.CloseBatch(h.admin)
	require.NoError(t, err)
	h.submit(t, 30)

	id, err := h.state.RequestAggregateDecryption(context.Background(), h.provider, 1)
	require.NoError(t, err)

	snap := h.state.Snapshot()

	restored, err := RestoreState(Config{
		Scheme:     h.scheme,
		Oracle:     h.oracle,
		Verifier:   stubVerifier{},
		Access:     h.access,
		InstanceID: crypto.Sum256([]byte("test-hub")),
		Now:        func() time.Time { return h.now },
	}, snap)
	require.NoError(t, err)

	assert.Equal(t, uint64(2), restored.CurrentBatch().ID)

	batch1, err := restored.GetBatch(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), batch1.DataCount)
	assert.True(t, batch1.Closed)

	// The pending context survives and still finalizes against the
	// unchanged batch contents.
	cleartext := make([]byte, CleartextSize)
	cleartext[7] = 30 // 10 + 20
	batchID, average, err := restored.OnDecryptionResult(id, cleartext, validAttestation(id))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), batchID)
	assert.Equal(t, uint64(15), average)

	_, has := restored.GetContext(id)
	assert.True(t, has)
}
