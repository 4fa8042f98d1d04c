package services

import (
	"log/slog"

	"github.com/marthaediazx/FheDataHub/oracle"
	"github.com/marthaediazx/FheDataHub/protocol"
	"github.com/marthaediazx/FheDataHub/tdx"
)

// QuoteVerifier implements protocol.AttestationVerifier for oracles
// running inside a TEE. The attestation is a quote over the report data
// digest of (requestID, cleartext); the quote's measurements must match
// one of the published allow-listed builds.
type QuoteVerifier struct {
	Provider tdx.QuoteProvider
	Source   MeasurementSource
	Log      *slog.Logger
}

// NewQuoteVerifier creates a verifier for the given quote provider and
// measurement source.
func NewQuoteVerifier(provider tdx.QuoteProvider, source MeasurementSource, log *slog.Logger) *QuoteVerifier {
	if log == nil {
		log = slog.Default()
	}
	return &QuoteVerifier{Provider: provider, Source: source, Log: log}
}

// Verify checks the quote signature chain, the report data binding and
// the build measurements.
func (v *QuoteVerifier) Verify(requestID protocol.RequestID, cleartext, attestation []byte) bool {
	reportData := tdx.ReportData(oracle.ReportData(requestID, cleartext))

	measurements, err := v.Provider.Verify(attestation, reportData)
	if err != nil {
		v.Log.Warn("quote verification failed", "requestID", string(requestID), "err", err)
		return false
	}

	allowed, err := v.Source.GetAllowedMeasurements()
	if err != nil {
		v.Log.Warn("could not fetch allowed measurements", "err", err)
		return false
	}

	entry, err := VerifyMeasurementsMatch(allowed, measurements)
	if err != nil {
		v.Log.Warn("measurements not allow-listed", "requestID", string(requestID), "err", err)
		return false
	}

	v.Log.Debug("attestation accepted",
		"requestID", string(requestID), "measurementID", entry.MeasurementID)
	return true
}
