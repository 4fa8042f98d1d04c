package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/marthaediazx/FheDataHub/crypto"
	"github.com/marthaediazx/FheDataHub/protocol"
)

// HubHandler exposes the hub over HTTP. Mutating endpoints take
// protocol.Signed envelopes; the recovered signer is the identity the
// capability and cooldown checks run against. The oracle callback is
// unauthenticated at the transport layer since the attestation inside
// the payload is the trust anchor.
type HubHandler struct {
	hub *HubService
	log *slog.Logger

	// access enables the admin endpoints when non-nil.
	access *StaticAccessController

	// adminToken protects /admin/* as user:pass basic auth. Empty leaves
	// the admin endpoints unprotected.
	adminToken string
}

// NewHubHandler creates the handler. access and adminToken may be zero
// for deployments without an admin surface.
func NewHubHandler(hub *HubService, access *StaticAccessController, adminToken string, log *slog.Logger) *HubHandler {
	if log == nil {
		log = slog.Default()
	}
	return &HubHandler{
		hub:        hub,
		log:        log,
		access:     access,
		adminToken: adminToken,
	}
}

// RegisterRoutes mounts the public API and, when an access controller
// is configured, the admin endpoints.
func (h *HubHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))

		r.Post("/submit", h.handleSubmit)
		r.Post("/close-batch", h.handleCloseBatch)
		r.Post("/request-decryption", h.handleRequestDecryption)
		r.Post("/oracle-callback", h.handleOracleCallback)

		r.Get("/batch/current", h.handleCurrentBatch)
		r.Get("/batch/{id}", h.handleGetBatch)
		r.Get("/request/{id}", h.handleRequestStatus)
	})

	if h.access != nil {
		r.Route("/admin", func(r chi.Router) {
			if h.adminToken != "" {
				user, pass := parseAdminToken(h.adminToken)
				r.Use(middleware.BasicAuth("fhedatahub admin", map[string]string{user: pass}))
			}

			r.Get("/providers", h.handleListProviders)
			r.Post("/providers", h.handleGrantProvider)
			r.Delete("/providers/{public_key}", h.handleRevokeProvider)
			r.Post("/pause", h.handlePause)
			r.Post("/unpause", h.handleUnpause)
		})
	}
}

// parseAdminToken splits a "user:pass" token.
func parseAdminToken(token string) (user, pass string) {
	parts := strings.SplitN(token, ":", 2)
	if len(parts) != 2 {
		return token, ""
	}
	return parts[0], parts[1]
}

func (h *HubHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	signed, err := protocol.DecodeMessage[protocol.Signed[SubmitRequest]](r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse request: %v", err), http.StatusBadRequest)
		return
	}

	req, signer, err := signed.Recover()
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid signature: %v", err), http.StatusUnauthorized)
		return
	}
	if len(req.Ciphertext) == 0 {
		http.Error(w, "Missing ciphertext", http.StatusBadRequest)
		return
	}

	batchID, index, err := h.hub.Submit(signer, req.Ciphertext)
	if err != nil {
		writeProtocolError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SubmitResponse{BatchID: batchID, Index: index})
}

func (h *HubHandler) handleCloseBatch(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	signed, err := protocol.DecodeMessage[protocol.Signed[CloseBatchRequest]](r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse request: %v", err), http.StatusBadRequest)
		return
	}

	req, signer, err := signed.Recover()
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid signature: %v", err), http.StatusUnauthorized)
		return
	}

	if current := h.hub.CurrentBatch(); req.BatchID != current.ID {
		http.Error(w, fmt.Sprintf("Batch %d is not the open batch", req.BatchID), http.StatusConflict)
		return
	}

	closedID, openedID, err := h.hub.CloseBatch(signer)
	if err != nil {
		writeProtocolError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CloseBatchResponse{ClosedID: closedID, OpenedID: openedID})
}

func (h *HubHandler) handleRequestDecryption(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	signed, err := protocol.DecodeMessage[protocol.Signed[DecryptionRequest]](r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse request: %v", err), http.StatusBadRequest)
		return
	}

	req, signer, err := signed.Recover()
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid signature: %v", err), http.StatusUnauthorized)
		return
	}

	id, err := h.hub.RequestDecryption(r.Context(), signer, req.BatchID)
	if err != nil {
		writeProtocolError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, DecryptionResponse{RequestID: id})
}

func (h *HubHandler) handleOracleCallback(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	msg, err := protocol.DecodeMessage[CallbackMessage](r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse callback: %v", err), http.StatusBadRequest)
		return
	}
	if msg.RequestID == "" {
		http.Error(w, "Missing request id", http.StatusBadRequest)
		return
	}

	batchID, average, err := h.hub.OnDecryptionResult(msg.RequestID, msg.Cleartext, msg.Attestation)
	if err != nil {
		h.log.Warn("rejected oracle callback",
			"requestID", string(msg.RequestID), "err", err)
		writeProtocolError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RequestStatusResponse{
		RequestID: msg.RequestID,
		BatchID:   batchID,
		Processed: true,
		Average:   average,
	})
}

func (h *HubHandler) handleCurrentBatch(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.hub.CurrentBatch())
}

func (h *HubHandler) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid batch id: %v", err), http.StatusBadRequest)
		return
	}

	batch, err := h.hub.GetBatch(id)
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (h *HubHandler) handleRequestStatus(w http.ResponseWriter, r *http.Request) {
	id := protocol.RequestID(chi.URLParam(r, "id"))
	status, ok := h.hub.GetRequestStatus(id)
	if !ok {
		http.Error(w, "Unknown request id", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *HubHandler) handleListProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.access.Providers())
}

func (h *HubHandler) handleGrantProvider(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	req, err := protocol.DecodeMessage[ProviderRequest](r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse request: %v", err), http.StatusBadRequest)
		return
	}
	if len(req.PublicKey) == 0 {
		http.Error(w, "Missing public key", http.StatusBadRequest)
		return
	}

	h.access.GrantProvider(req.PublicKey)
	writeJSON(w, http.StatusOK, map[string]string{"status": "granted"})
}

func (h *HubHandler) handleRevokeProvider(w http.ResponseWriter, r *http.Request) {
	pk, err := crypto.NewPublicKeyFromString(chi.URLParam(r, "public_key"))
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid public key: %v", err), http.StatusBadRequest)
		return
	}

	h.access.RevokeProvider(pk)
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (h *HubHandler) handlePause(w http.ResponseWriter, r *http.Request) {
	h.access.SetPaused(true)
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (h *HubHandler) handleUnpause(w http.ResponseWriter, r *http.Request) {
	h.access.SetPaused(false)
	writeJSON(w, http.StatusOK, map[string]string{"status": "running"})
}

// writeProtocolError maps protocol sentinel errors to HTTP statuses.
func writeProtocolError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, protocol.ErrNotProvider),
		errors.Is(err, protocol.ErrNotAuthorized):
		status = http.StatusForbidden
	case errors.Is(err, protocol.ErrPaused):
		status = http.StatusServiceUnavailable
	case errors.Is(err, protocol.ErrCooldownActive):
		status = http.StatusTooManyRequests
	case errors.Is(err, protocol.ErrInvalidBatch),
		errors.Is(err, protocol.ErrBatchClosedOrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, protocol.ErrUnknownRequest):
		status = http.StatusNotFound
	case errors.Is(err, protocol.ErrReplayAttempt),
		errors.Is(err, protocol.ErrStateMismatch):
		status = http.StatusConflict
	case errors.Is(err, protocol.ErrInvalidProof):
		status = http.StatusForbidden
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
