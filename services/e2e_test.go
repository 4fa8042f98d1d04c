package services

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marthaediazx/FheDataHub/crypto"
	"github.com/marthaediazx/FheDataHub/fhe"
	"github.com/marthaediazx/FheDataHub/oracle"
	"github.com/marthaediazx/FheDataHub/protocol"
	"github.com/marthaediazx/FheDataHub/testutil"
)

// TestSplitDeploymentEndToEnd runs the hub and the oracle as separate
// HTTP services: the hub reaches the oracle through OracleClient, and
// the oracle delivers results back through the callback client. The
// flow is the production one, minus real FHE and real TEE quotes.
func TestSplitDeploymentEndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheme := fhe.NewPlainScheme()

	oraclePub, oracleKey := testutil.GenerateTestKeyPair()
	providerPub, providerKey := testutil.GenerateTestKeyPair()

	// Hub side. The oracle's callback URL is only known once the hub's
	// test server is up, so wire the hub first with a placeholder router.
	access := NewStaticAccessController(AccessConfig{
		Owner:           providerPub,
		SubmitCooldown:  time.Nanosecond,
		RequestCooldown: time.Nanosecond,
	})

	hubRouter := chi.NewRouter()
	hubServer := httptest.NewServer(hubRouter)
	defer hubServer.Close()

	// Oracle side.
	decryptionOracle, err := oracle.New(
		scheme,
		&oracle.Ed25519Attester{Key: oracleKey},
		NewCallbackClient(hubServer.URL, nil),
		nil,
	)
	require.NoError(t, err)
	decryptionOracle.Start(ctx)

	oracleRouter := chi.NewRouter()
	NewOracleHandler(decryptionOracle, nil).RegisterRoutes(oracleRouter)
	oracleServer := httptest.NewServer(oracleRouter)
	defer oracleServer.Close()

	hub, err := NewHubService(HubConfig{
		Scheme:     scheme,
		Oracle:     NewOracleClient(oracleServer.URL),
		Verifier:   &oracle.Ed25519Verifier{OracleKey: oraclePub},
		Access:     access,
		InstanceID: crypto.Sum256([]byte("e2e-test")),
	})
	require.NoError(t, err)
	defer hub.Close()

	NewHubHandler(hub, access, "", nil).RegisterRoutes(hubRouter)

	httpClient := hubServer.Client()

	postSignedHTTP := func(path string, key crypto.PrivateKey, obj any) *http.Response {
		var body []byte
		switch v := obj.(type) {
		case *SubmitRequest:
			signed, err := protocol.NewSigned(key, v)
			require.NoError(t, err)
			body, err = protocol.SerializeMessage(signed)
			require.NoError(t, err)
		case *DecryptionRequest:
			signed, err := protocol.NewSigned(key, v)
			require.NoError(t, err)
			body, err = protocol.SerializeMessage(signed)
			require.NoError(t, err)
		default:
			t.Fatalf("unsupported message type %T", obj)
		}

		resp, err := httpClient.Post(hubServer.URL+path, "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		return resp
	}

	readings, err := testutil.EncryptValues(scheme, 12, 40, 44)
	require.NoError(t, err)
	for _, ct := range readings {
		resp := postSignedHTTP("/api/v1/submit", providerKey, &SubmitRequest{Ciphertext: ct.Data})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	resp := postSignedHTTP("/api/v1/request-decryption", providerKey, &DecryptionRequest{BatchID: 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var reqResp DecryptionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reqResp))
	resp.Body.Close()
	require.NotEmpty(t, reqResp.RequestID)

	// The oracle decrypts on its worker and calls back asynchronously.
	require.Eventually(t, func() bool {
		status, ok := hub.GetRequestStatus(reqResp.RequestID)
		return ok && status.Processed
	}, 5*time.Second, 10*time.Millisecond)

	status, ok := hub.GetRequestStatus(reqResp.RequestID)
	require.True(t, ok)
	assert.Equal(t, uint64(32), status.Average) // 96 / 3
	assert.Equal(t, uint64(1), status.BatchID)
}
