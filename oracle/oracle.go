// Package oracle implements the trusted decryption oracle: the only
// component holding the FHE secret key. It decrypts aggregate ciphertexts
// asynchronously and attests each result so the hub can verify it was
// honestly produced for a specific request.
package oracle

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/marthaediazx/FheDataHub/fhe"
	"github.com/marthaediazx/FheDataHub/protocol"
)

// ResultHandler is the resume entry point results are delivered to. In a
// single-binary deployment it wraps State.OnDecryptionResult directly; in a
// split deployment it POSTs to the hub's callback endpoint.
type ResultHandler func(id protocol.RequestID, cleartext, attestation []byte)

// Oracle implements protocol.DecryptionOracle with an in-process worker.
// Requests return immediately with a fresh id; decryption and delivery
// happen on the worker goroutine.
type Oracle struct {
	decryptor fhe.Decryptor
	attester  Attester
	handler   ResultHandler
	log       *slog.Logger

	mu       sync.Mutex
	requests chan pendingRequest
	started  bool
}

type pendingRequest struct {
	id protocol.RequestID
	ct *fhe.Ciphertext
}

// New creates an oracle. Start must be called before requests resolve.
func New(decryptor fhe.Decryptor, attester Attester, handler ResultHandler, log *slog.Logger) (*Oracle, error) {
	if decryptor == nil {
		return nil, errors.New("decryptor cannot be nil")
	}
	if attester == nil {
		return nil, errors.New("attester cannot be nil")
	}
	if handler == nil {
		return nil, errors.New("result handler cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Oracle{
		decryptor: decryptor,
		attester:  attester,
		handler:   handler,
		log:       log,
		requests:  make(chan pendingRequest, 64),
	}, nil
}

// Start runs the worker until ctx is cancelled.
func (o *Oracle) Start(ctx context.Context) {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return
	}
	o.started = true
	o.mu.Unlock()

	go o.run(ctx)
}

func (o *Oracle) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-o.requests:
			o.resolve(req)
		}
	}
}

func (o *Oracle) resolve(req pendingRequest) {
	sum, err := o.decryptor.Decrypt(req.ct)
	if err != nil {
		o.log.Error("decryption failed", "requestID", string(req.id), "err", err)
		return
	}

	cleartext := make([]byte, protocol.CleartextSize)
	binary.BigEndian.PutUint64(cleartext, sum)

	attestation, err := o.attester.Attest(req.id, cleartext)
	if err != nil {
		o.log.Error("attestation failed", "requestID", string(req.id), "err", err)
		return
	}

	o.handler(req.id, cleartext, attestation)
}

// RequestDecryption queues an aggregate for decryption and returns a fresh
// request id. The result arrives later through the handler.
func (o *Oracle) RequestDecryption(ctx context.Context, sum *fhe.Ciphertext) (protocol.RequestID, error) {
	id, err := NewRequestID()
	if err != nil {
		return "", err
	}

	select {
	case o.requests <- pendingRequest{id: id, ct: sum}:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// NewRequestID generates a random 128-bit request identifier.
func NewRequestID() (protocol.RequestID, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate request id: %w", err)
	}
	return protocol.RequestID(hex.EncodeToString(buf[:])), nil
}
