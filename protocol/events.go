package protocol

import (
	"encoding/hex"
	"log/slog"

	"github.com/marthaediazx/FheDataHub/crypto"
)

// NopEventSink discards all events.
type NopEventSink struct{}

func (NopEventSink) BatchOpened(uint64)  {}
func (NopEventSink) BatchClosed(uint64)  {}
func (NopEventSink) DataSubmitted(crypto.PublicKey, uint64, uint64, crypto.Digest) {
}
func (NopEventSink) DecryptionRequested(RequestID, uint64, Commitment) {}
func (NopEventSink) DecryptionCompleted(RequestID, uint64, uint64)     {}

// SlogEventSink emits every hub event as a structured log line.
type SlogEventSink struct {
	Log *slog.Logger
}

// NewSlogEventSink creates a sink logging to log (slog.Default if nil).
func NewSlogEventSink(log *slog.Logger) *SlogEventSink {
	if log == nil {
		log = slog.Default()
	}
	return &SlogEventSink{Log: log}
}

func (s *SlogEventSink) BatchOpened(id uint64) {
	s.Log.Info("batch opened", "batchID", id)
}

func (s *SlogEventSink) BatchClosed(id uint64) {
	s.Log.Info("batch closed", "batchID", id)
}

func (s *SlogEventSink) DataSubmitted(submitter crypto.PublicKey, batchID, index uint64, fingerprint crypto.Digest) {
	s.Log.Info("data submitted",
		"submitter", submitter.String(),
		"batchID", batchID,
		"index", index,
		"fingerprint", hex.EncodeToString(fingerprint[:]))
}

func (s *SlogEventSink) DecryptionRequested(id RequestID, batchID uint64, commitment Commitment) {
	s.Log.Info("decryption requested",
		"requestID", string(id),
		"batchID", batchID,
		"commitment", hex.EncodeToString(commitment[:]))
}

func (s *SlogEventSink) DecryptionCompleted(id RequestID, batchID uint64, average uint64) {
	s.Log.Info("decryption completed",
		"requestID", string(id),
		"batchID", batchID,
		"average", average)
}

// MultiEventSink fans events out to several sinks in order.
type MultiEventSink []EventSink

func (m MultiEventSink) BatchOpened(id uint64) {
	for _, s := range m {
		s.BatchOpened(id)
	}
}

func (m MultiEventSink) BatchClosed(id uint64) {
	for _, s := range m {
		s.BatchClosed(id)
	}
}

func (m MultiEventSink) DataSubmitted(submitter crypto.PublicKey, batchID, index uint64, fingerprint crypto.Digest) {
	for _, s := range m {
		s.DataSubmitted(submitter, batchID, index, fingerprint)
	}
}

func (m MultiEventSink) DecryptionRequested(id RequestID, batchID uint64, commitment Commitment) {
	for _, s := range m {
		s.DecryptionRequested(id, batchID, commitment)
	}
}

func (m MultiEventSink) DecryptionCompleted(id RequestID, batchID uint64, average uint64) {
	for _, s := range m {
		s.DecryptionCompleted(id, batchID, average)
	}
}
