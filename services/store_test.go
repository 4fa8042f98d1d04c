package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marthaediazx/FheDataHub/crypto"
	"github.com/marthaediazx/FheDataHub/fhe"
	"github.com/marthaediazx/FheDataHub/oracle"
	"github.com/marthaediazx/FheDataHub/protocol"
	"github.com/marthaediazx/FheDataHub/testutil"
)

func exerciseStore(t *testing.T, store Store) {
	t.Helper()

	require.NoError(t, store.SaveBatch(protocol.Batch{ID: 1, DataCount: 2, Closed: true}))
	require.NoError(t, store.SaveBatch(protocol.Batch{ID: 2, DataCount: 0, Closed: false}))
	require.NoError(t, store.SaveSubmission(1, 0, []byte("first ciphertext")))
	require.NoError(t, store.SaveSubmission(1, 1, []byte("second ciphertext")))

	commitment := crypto.Sum256([]byte("commitment"))
	require.NoError(t, store.SaveContext("req-0001", protocol.DecryptionContext{
		BatchID:   1,
		StateHash: commitment,
	}))
	require.NoError(t, store.SaveContext("req-0001", protocol.DecryptionContext{
		BatchID:   1,
		StateHash: commitment,
		Processed: true,
	}))
	require.NoError(t, store.SaveResult("req-0001", 21))

	snap, err := store.Load()
	require.NoError(t, err)

	require.Len(t, snap.Batches, 2)
	assert.Equal(t, protocol.Batch{ID: 1, DataCount: 2, Closed: true}, snap.Batches[0])
	assert.Equal(t, protocol.Batch{ID: 2}, snap.Batches[1])

	require.Len(t, snap.Values[1], 2)
	assert.Equal(t, []byte("first ciphertext"), snap.Values[1][0])
	assert.Equal(t, []byte("second ciphertext"), snap.Values[1][1])

	ctx, ok := snap.Contexts["req-0001"]
	require.True(t, ok)
	assert.True(t, ctx.Processed)
	assert.Equal(t, commitment, ctx.StateHash)
	assert.Equal(t, uint64(21), snap.Results["req-0001"])
}

func TestInMemoryStoreRoundTrip(t *testing.T) {
	store := NewInMemoryStore()
	defer store.Close()
	exerciseStore(t, store)
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	store, err := NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	exerciseStore(t, store)
}

func TestBadgerStoreFreshIsEmpty(t *testing.T) {
	store, err := NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	snap, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, snap.Batches)
	assert.Empty(t, snap.Values)
	assert.Empty(t, snap.Contexts)
	assert.Empty(t, snap.Results)
}

// TestHubServiceSurvivesRestart drives a full flow through one hub,
// then rebuilds a second hub from the same store and checks the state
// carried over.
func TestHubServiceSurvivesRestart(t *testing.T) {
	ownerPub, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	store := NewInMemoryStore()
	scheme := fhe.NewPlainScheme()

	newHub := func(o protocol.DecryptionOracle) *HubService {
		access := NewStaticAccessController(AccessConfig{
			Owner:          ownerPub,
			SubmitCooldown: 1, // effectively disabled
		})
		hub, err := NewHubService(HubConfig{
			Scheme:     scheme,
			Oracle:     o,
			Verifier:   oracle.DummyVerifier{},
			Access:     access,
			Store:      store,
			InstanceID: crypto.Sum256([]byte("restart-test")),
		})
		require.NoError(t, err)
		return hub
	}

	capOracle := newCaptureOracle()
	hub := newHub(capOracle)

	for _, v := range []uint64{10, 20, 30} {
		ct, err := scheme.Encrypt(v)
		require.NoError(t, err)
		_, _, err = hub.Submit(ownerPub, ct.Data)
		require.NoError(t, err)
	}

	closedID, openedID, err := hub.CloseBatch(ownerPub)
	require.NoError(t, err)
	require.Equal(t, uint64(1), closedID)
	require.Equal(t, uint64(2), openedID)

	reqID, err := hub.RequestDecryption(context.Background(), ownerPub, 1)
	require.NoError(t, err)

	// Restart: the pending request must survive and still resolve.
	restarted := newHub(capOracle)

	current := restarted.CurrentBatch()
	assert.Equal(t, uint64(2), current.ID)

	closed, err := restarted.GetBatch(1)
	require.NoError(t, err)
	assert.True(t, closed.Closed)
	assert.Equal(t, uint64(3), closed.DataCount)

	status, ok := restarted.GetRequestStatus(reqID)
	require.True(t, ok)
	assert.False(t, status.Processed)

	sum, err := scheme.Decrypt(capOracle.aggregates[reqID])
	require.NoError(t, err)
	require.Equal(t, uint64(60), sum)

	cleartext, attestation := testutil.HonestCallback(reqID, sum)

	batchID, average, err := restarted.OnDecryptionResult(reqID, cleartext, attestation)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), batchID)
	assert.Equal(t, uint64(20), average)

	// A third restart sees the processed result.
	final := newHub(capOracle)
	status, ok = final.GetRequestStatus(reqID)
	require.True(t, ok)
	assert.True(t, status.Processed)
	assert.Equal(t, uint64(20), status.Average)
}
