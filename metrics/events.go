package metrics

import (
	vmetrics "github.com/VictoriaMetrics/metrics"

	"github.com/marthaediazx/FheDataHub/crypto"
	"github.com/marthaediazx/FheDataHub/protocol"
)

// EventSink implements protocol.EventSink by bumping counters for each hub
// event. Combine with the slog sink through protocol.MultiEventSink.
type EventSink struct {
	batchesOpened        *vmetrics.Counter
	batchesClosed        *vmetrics.Counter
	submissions          *vmetrics.Counter
	decryptionRequests   *vmetrics.Counter
	decryptionsCompleted *vmetrics.Counter
}

// NewEventSink creates counters under the given namespace.
func NewEventSink(namespace string) *EventSink {
	return &EventSink{
		batchesOpened:        Counter(namespace + "_batches_opened_total"),
		batchesClosed:        Counter(namespace + "_batches_closed_total"),
		submissions:          Counter(namespace + "_submissions_total"),
		decryptionRequests:   Counter(namespace + "_decryption_requests_total"),
		decryptionsCompleted: Counter(namespace + "_decryptions_completed_total"),
	}
}

func (s *EventSink) BatchOpened(uint64) { s.batchesOpened.Inc() }
func (s *EventSink) BatchClosed(uint64) { s.batchesClosed.Inc() }
func (s *EventSink) DataSubmitted(crypto.PublicKey, uint64, uint64, crypto.Digest) {
	s.submissions.Inc()
}
func (s *EventSink) DecryptionRequested(protocol.RequestID, uint64, protocol.Commitment) {
	s.decryptionRequests.Inc()
}
func (s *EventSink) DecryptionCompleted(protocol.RequestID, uint64, uint64) {
	s.decryptionsCompleted.Inc()
}
