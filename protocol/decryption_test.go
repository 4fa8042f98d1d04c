package protocol

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cleartextFor(sum uint64) []byte {
	out := make([]byte, CleartextSize)
	binary.BigEndian.PutUint64(out, sum)
	return out
}

// resolve decrypts the captured aggregate with the plain scheme and
// delivers a well-formed callback for it.
func (h *testHub) resolve(t *testing.T, id RequestID) (uint64, uint64, error) {
	t.Helper()
	ct, ok := h.oracle.captured[id]
	require.True(t, ok, "no captured aggregate for %s", id)
	sum, err := h.scheme.Decrypt(ct)
	require.NoError(t, err)
	return h.state.OnDecryptionResult(id, cleartextFor(sum), validAttestation(id))
}

func TestRequestDecryptionPersistsContext(t *testing.T) {
	h := newTestHub(t)
	h.submit(t, 10)
	h.submit(t, 20)

	id, err := h.state.RequestAggregateDecryption(context.Background(), h.provider, 1)
	require.NoError(t, err)

	reqCtx, ok := h.state.GetContext(id)
	require.True(t, ok)
	assert.Equal(t, uint64(1), reqCtx.BatchID)
	assert.False(t, reqCtx.Processed)

	_, commitment, err := h.state.ComputeAggregate(1)
	require.NoError(t, err)
	assert.Equal(t, commitment, reqCtx.StateHash)
	assert.Equal(t, 1, h.sink.requested)
}

func TestRequestDecryptionPreconditions(t *testing.T) {
	h := newTestHub(t)

	// Empty batch.
	_, err := h.state.RequestAggregateDecryption(context.Background(), h.provider, 1)
	assert.ErrorIs(t, err, ErrInvalidBatch)

	// Unknown batch.
	h.submit(t, 10)
	_, err = h.state.RequestAggregateDecryption(context.Background(), h.provider, 7)
	assert.ErrorIs(t, err, ErrInvalidBatch)

	// Paused.
	h.access.paused = true
	_, err = h.state.RequestAggregateDecryption(context.Background(), h.provider, 1)
	assert.ErrorIs(t, err, ErrPaused)
	h.access.paused = false

	// Cooldown in the request namespace.
	h.access.requestCD = time.Minute
	_, err = h.state.RequestAggregateDecryption(context.Background(), h.provider, 1)
	require.NoError(t, err)
	_, err = h.state.RequestAggregateDecryption(context.Background(), h.provider, 1)
	assert.ErrorIs(t, err, ErrCooldownActive)

	h.advance(time.Minute)
	_, err = h.state.RequestAggregateDecryption(context.Background(), h.provider, 1)
	require.NoError(t, err)
}

func TestAverageTruncates(t *testing.T) {
	cases := []struct {
		name    string
		values  []uint64
		average uint64
	}{
		{"exact", []uint64{10, 20, 30}, 20},
		{"floored", []uint64{10, 20, 25}, 18},
		{"single", []uint64{7}, 7},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHub(t)
			for _, v := range tc.values {
				h.submit(t, v)
			}

			id, err := h.state.RequestAggregateDecryption(context.Background(), h.provider, 1)
			require.NoError(t, err)

			batchID, average, err := h.resolve(t, id)
			require.NoError(t, err)
			assert.Equal(t, uint64(1), batchID)
			assert.Equal(t, tc.average, average)

			got, ok := h.state.GetResult(id)
			require.True(t, ok)
			assert.Equal(t, tc.average, got)
			assert.Equal(t, 1, h.sink.completed)
		})
	}
}

func TestReplayRejectedRegardlessOfPayload(t *testing.T) {
	h := newTestHub(t)
	h.submit(t, 10)
	h.submit(t, 20)

	id, err := h.state.RequestAggregateDecryption(context.Background(), h.provider, 1)
	require.NoError(t, err)

	_, _, err = h.resolve(t, id)
	require.NoError(t, err)

	// Identical redelivery.
	_, _, err = h.state.OnDecryptionResult(id, cleartextFor(30), validAttestation(id))
	assert.ErrorIs(t, err, ErrReplayAttempt)

	// Redelivery with a different payload must fail the same way, before
	// any other validation.
	_, _, err = h.state.OnDecryptionResult(id, cleartextFor(999), []byte("garbage"))
	assert.ErrorIs(t, err, ErrReplayAttempt)

	reqCtx, ok := h.state.GetContext(id)
	require.True(t, ok)
	assert.True(t, reqCtx.Processed)
	assert.Equal(t, 1, h.sink.completed, "no second completion event")
}

func TestTamperDetectedAfterRequest(t *testing.T) {
	h := newTestHub(t)
	h.submit(t, 10)
	h.submit(t, 20)

	id, err := h.state.RequestAggregateDecryption(context.Background(), h.provider, 1)
	require.NoError(t, err)

	// The batch grows between request and callback.
	h.submit(t, 30)

	// Delivering the original, honestly-produced result must now fail.
	_, _, err = h.state.OnDecryptionResult(id, cleartextFor(30), validAttestation(id))
	assert.ErrorIs(t, err, ErrStateMismatch)

	reqCtx, ok := h.state.GetContext(id)
	require.True(t, ok)
	assert.False(t, reqCtx.Processed, "mismatch must not consume the context")

	// A fresh request over the grown batch still succeeds.
	id2, err := h.state.RequestAggregateDecryption(context.Background(), h.provider, 1)
	require.NoError(t, err)
	_, average, err := h.resolve(t, id2)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), average)
}

func TestForgedProofRejected(t *testing.T) {
	h := newTestHub(t)
	h.submit(t, 10)
	h.submit(t, 20)

	id, err := h.state.RequestAggregateDecryption(context.Background(), h.provider, 1)
	require.NoError(t, err)

	_, _, err = h.state.OnDecryptionResult(id, cleartextFor(12345), []byte("forged"))
	assert.ErrorIs(t, err, ErrInvalidProof)

	reqCtx, ok := h.state.GetContext(id)
	require.True(t, ok)
	assert.False(t, reqCtx.Processed)
	assert.Equal(t, 0, h.sink.completed)

	// The honest result still goes through afterwards.
	_, average, err := h.resolve(t, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(15), average)
}

func TestMalformedCleartextRejected(t *testing.T) {
	h := newTestHub(t)
	h.submit(t, 10)

	id, err := h.state.RequestAggregateDecryption(context.Background(), h.provider, 1)
	require.NoError(t, err)

	short := []byte{0x0a}
	_, _, err = h.state.OnDecryptionResult(id, short, validAttestation(id))
	assert.ErrorIs(t, err, ErrInvalidProof)
}

func TestUnknownRequestRejected(t *testing.T) {
	h := newTestHub(t)
	h.submit(t, 10)

	_, _, err := h.state.OnDecryptionResult("no-such-request", cleartextFor(10), []byte("x"))
	assert.ErrorIs(t, err, ErrUnknownRequest)
}

func TestClosedBatchStillDecryptable(t *testing.T) {
	h := newTestHub(t)
	h.submit(t, 10)
	h.submit(t, 20)
	h.submit(t, 30)

	_, _, err := h.state.CloseBatch(h.admin)
	require.NoError(t, err)

	id, err := h.state.RequestAggregateDecryption(context.Background(), h.provider, 1)
	require.NoError(t, err)

	_, average, err := h.resolve(t, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), average)
}

func TestConcurrentRequestsIndependent(t *testing.T) {
	h := newTestHub(t)
	h.submit(t, 10)
	h.submit(t, 20)

	// Two outstanding requests against the same snapshot.
	id1, err := h.state.RequestAggregateDecryption(context.Background(), h.provider, 1)
	require.NoError(t, err)
	id2, err := h.state.RequestAggregateDecryption(context.Background(), h.provider, 1)
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	// Resolving one does not consume the other.
	_, avg1, err := h.resolve(t, id1)
	require.NoError(t, err)
	assert.Equal(t, uint64(15), avg1)

	_, avg2, err := h.resolve(t, id2)
	require.NoError(t, err)
	assert.Equal(t, uint64(15), avg2)

	// A request against a second batch interleaves freely.
	_, _, err = h.state.CloseBatch(h.admin)
	require.NoError(t, err)
	h.submit(t, 100)

	id3, err := h.state.RequestAggregateDecryption(context.Background(), h.provider, 2)
	require.NoError(t, err)
	batchID, avg3, err := h.resolve(t, id3)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), batchID)
	assert.Equal(t, uint64(100), avg3)
}
