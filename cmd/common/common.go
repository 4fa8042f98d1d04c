// Package common provides shared utilities for FheDataHub CLI commands.
//
// This package contains helper functions used across the standalone
// service binaries (hub, oracle, keygen, demo-cli) to reduce code
// duplication:
//
//   - Key loading and generation for Ed25519 signing keys
//   - FHE key material loading from files
//   - Quote provider and measurement source factory functions
package common

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/marthaediazx/FheDataHub/crypto"
	"github.com/marthaediazx/FheDataHub/services"
	"github.com/marthaediazx/FheDataHub/tdx"
)

// LoadOrGenerateSigningKey loads an Ed25519 private key from a hex string,
// or generates a new key pair if hexKey is empty.
func LoadOrGenerateSigningKey(hexKey string) (crypto.PrivateKey, error) {
	if hexKey != "" {
		keyBytes, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("invalid hex: %w", err)
		}
		return crypto.NewPrivateKeyFromBytes(keyBytes), nil
	}
	_, privKey, err := crypto.GenerateKeyPair()
	return privKey, err
}

// LoadKeyFile reads raw key material from a file. FHE keys are large, so
// they travel as files rather than hex flags.
func LoadKeyFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key file %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("key file %s is empty", path)
	}
	return data, nil
}

// WriteKeyFile writes key material with owner-only permissions.
func WriteKeyFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing key file %s: %w", path, err)
	}
	return nil
}

// NewQuoteProvider creates a quote provider based on configuration flags.
// Returns TDXProvider or RemoteDCAPProvider when useTDX is true, otherwise
// DummyProvider for testing.
func NewQuoteProvider(useTDX bool, remoteTDXURL string) tdx.QuoteProvider {
	if useTDX {
		if remoteTDXURL != "" {
			return &tdx.RemoteDCAPProvider{URL: remoteTDXURL, Timeout: 30 * time.Second}
		}
		return &tdx.TDXProvider{}
	}
	return &tdx.DummyProvider{}
}

// NewMeasurementSource creates a measurement source from a URL, falling
// back to the demo allow-list when no URL is configured.
func NewMeasurementSource(measurementsURL string) services.MeasurementSource {
	if measurementsURL != "" {
		return services.NewRemoteMeasurementSource(measurementsURL)
	}
	return services.DemoMeasurementSource()
}

// NewStore builds the persistence backend from the --store flag family.
func NewStore(kind, badgerDir string, pg *services.PostgresConfig) (services.Store, error) {
	switch kind {
	case "", "memory":
		return services.NewInMemoryStore(), nil
	case "badger":
		if badgerDir == "" {
			return nil, fmt.Errorf("--badger-dir is required with --store=badger")
		}
		return services.NewBadgerStore(badgerDir)
	case "postgres":
		return services.NewPostgresStore(pg)
	default:
		return nil, fmt.Errorf("unknown store %q", kind)
	}
}
