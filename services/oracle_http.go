package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marthaediazx/FheDataHub/fhe"
	"github.com/marthaediazx/FheDataHub/oracle"
	"github.com/marthaediazx/FheDataHub/protocol"
)

// OracleHandler exposes the decryption oracle over HTTP for split
// deployments where the oracle runs in its own process, typically
// inside a TEE.
type OracleHandler struct {
	oracle *oracle.Oracle
	log    *slog.Logger
}

// NewOracleHandler creates the handler around a started oracle.
func NewOracleHandler(o *oracle.Oracle, log *slog.Logger) *OracleHandler {
	if log == nil {
		log = slog.Default()
	}
	return &OracleHandler{oracle: o, log: log}
}

// RegisterRoutes mounts the oracle API.
func (h *OracleHandler) RegisterRoutes(r chi.Router) {
	r.Post("/oracle/v1/decrypt", h.handleDecrypt)
}

func (h *OracleHandler) handleDecrypt(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	req, err := protocol.DecodeMessage[OracleDecryptRequest](r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse request: %v", err), http.StatusBadRequest)
		return
	}
	if len(req.Ciphertext) == 0 {
		http.Error(w, "Missing ciphertext", http.StatusBadRequest)
		return
	}

	id, err := h.oracle.RequestDecryption(r.Context(), fhe.NewCiphertext(req.Ciphertext))
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to queue decryption: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, OracleDecryptResponse{RequestID: id})
}

// OracleClient implements protocol.DecryptionOracle against a remote
// oracle service. The id returned here is the one the oracle will later
// present to the hub's callback endpoint.
type OracleClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewOracleClient creates a client for the oracle at baseURL.
func NewOracleClient(baseURL string) *OracleClient {
	return &OracleClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// RequestDecryption ships the serialized aggregate to the remote oracle.
func (c *OracleClient) RequestDecryption(ctx context.Context, sum *fhe.Ciphertext) (protocol.RequestID, error) {
	body, err := protocol.SerializeMessage(&OracleDecryptRequest{Ciphertext: sum.Data})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/oracle/v1/decrypt", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("oracle request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("oracle returned %d: %s", resp.StatusCode, respBody)
	}

	decoded, err := protocol.DecodeMessage[OracleDecryptResponse](resp.Body)
	if err != nil {
		return "", fmt.Errorf("decoding oracle response: %w", err)
	}
	if decoded.RequestID == "" {
		return "", fmt.Errorf("oracle returned empty request id")
	}

	return decoded.RequestID, nil
}

// NewCallbackClient returns an oracle.ResultHandler that POSTs results
// to the hub's callback endpoint. Delivery is attempted a few times;
// redelivery after a transient failure is safe because the hub's
// idempotency gate rejects the duplicate.
func NewCallbackClient(hubURL string, log *slog.Logger) oracle.ResultHandler {
	if log == nil {
		log = slog.Default()
	}
	httpClient := &http.Client{Timeout: 30 * time.Second}

	return func(id protocol.RequestID, cleartext, attestation []byte) {
		body, err := protocol.SerializeMessage(&CallbackMessage{
			RequestID:   id,
			Cleartext:   cleartext,
			Attestation: attestation,
		})
		if err != nil {
			log.Error("failed to serialize callback", "requestID", string(id), "err", err)
			return
		}

		for attempt := 0; attempt < 3; attempt++ {
			if attempt > 0 {
				time.Sleep(time.Duration(attempt) * time.Second)
			}

			resp, err := httpClient.Post(hubURL+"/api/v1/oracle-callback",
				"application/json", bytes.NewReader(body))
			if err != nil {
				log.Warn("callback delivery failed", "requestID", string(id), "attempt", attempt, "err", err)
				continue
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()

			// Any response means the hub saw the callback. 4xx here is a
			// validation verdict, not a delivery failure; retrying cannot
			// change it.
			if resp.StatusCode < http.StatusInternalServerError {
				if resp.StatusCode != http.StatusOK {
					log.Warn("hub rejected callback", "requestID", string(id), "status", resp.StatusCode)
				}
				return
			}
			log.Warn("hub errored on callback", "requestID", string(id), "attempt", attempt, "status", resp.StatusCode)
		}

		log.Error("giving up on callback delivery", "requestID", string(id))
	}
}
