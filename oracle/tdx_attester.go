package oracle

import (
	"github.com/marthaediazx/FheDataHub/protocol"
	"github.com/marthaediazx/FheDataHub/tdx"
)

// QuoteAttester attests results with a TEE quote whose report data commits
// to (requestID, cleartext). Used when the oracle runs inside a TDX guest
// (or delegates to a remote quote service).
type QuoteAttester struct {
	Provider tdx.QuoteProvider
}

// Attest produces a quote over the report data for (id, cleartext).
func (a *QuoteAttester) Attest(id protocol.RequestID, cleartext []byte) ([]byte, error) {
	report := ReportData(id, cleartext)
	return a.Provider.Attest(tdx.ReportData(report))
}
