// Command oracle runs the FheDataHub decryption oracle.
//
// The oracle is the only process holding the FHE secret key. It accepts
// aggregate ciphertexts from the hub, decrypts them on a worker, and
// delivers each cleartext back to the hub's callback endpoint together
// with an attestation binding the result to its request id.
//
// # Usage
//
// Ed25519 attestations:
//
//	go run ./cmd/oracle --hub-url=http://hub:8080 --fhe-seckey=bfv.key --signing-key=<hex>
//
// Inside a TDX guest, attest with DCAP quotes instead:
//
//	go run ./cmd/oracle --hub-url=http://hub:8080 --fhe-seckey=bfv.key --tdx
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marthaediazx/FheDataHub/api/httpserver"
	"github.com/marthaediazx/FheDataHub/cmd/common"
	"github.com/marthaediazx/FheDataHub/fhe"
	"github.com/marthaediazx/FheDataHub/oracle"
	"github.com/marthaediazx/FheDataHub/services"
)

func main() {
	var (
		listenAddr  = flag.String("addr", ":8081", "HTTP listen address")
		metricsAddr = flag.String("metrics-addr", "", "Metrics listen address (disabled if empty)")
		enablePprof = flag.Bool("pprof", false, "Enable pprof debug API")
		logJSON     = flag.Bool("log-json", false, "Log in JSON format")

		hubURL        = flag.String("hub-url", "", "Hub base URL for result callbacks (required)")
		fheSecKeyPath = flag.String("fhe-seckey", "", "BFV secret key file (uses the unencrypted demo scheme if empty)")
		signingKeyHex = flag.String("signing-key", "", "Ed25519 attestation key (hex, generates if empty)")
		useTDX        = flag.Bool("tdx", false, "Attest results with TDX DCAP quotes")
		remoteTDXURL  = flag.String("tdx-url", "", "Remote DCAP quote service URL")
	)
	flag.Parse()

	log := newLogger(*logJSON)

	if *hubURL == "" {
		log.Error("--hub-url is required")
		os.Exit(1)
	}

	if err := run(*listenAddr, *metricsAddr, *enablePprof, *hubURL,
		*fheSecKeyPath, *signingKeyHex, *useTDX, *remoteTDXURL, log); err != nil {
		log.Error("oracle failed", "err", err)
		os.Exit(1)
	}
}

func newLogger(json bool) *slog.Logger {
	if json {
		return slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func run(listenAddr, metricsAddr string, enablePprof bool, hubURL,
	fheSecKeyPath, signingKeyHex string, useTDX bool, remoteTDXURL string, log *slog.Logger) error {

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	decryptor, err := buildDecryptor(fheSecKeyPath)
	if err != nil {
		return err
	}

	attester, err := buildAttester(signingKeyHex, useTDX, remoteTDXURL, log)
	if err != nil {
		return err
	}

	decryptionOracle, err := oracle.New(decryptor, attester,
		services.NewCallbackClient(hubURL, log), log)
	if err != nil {
		return err
	}
	decryptionOracle.Start(ctx)

	handler := services.NewOracleHandler(decryptionOracle, log)

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		EnablePprof:              enablePprof,
		Log:                      log,
		DrainDuration:            5 * time.Second,
		GracefulShutdownDuration: 10 * time.Second,
		ReadTimeout:              15 * time.Second,
		WriteTimeout:             15 * time.Second,
	}, handler)
	if err != nil {
		return err
	}

	log.Info("oracle listening", "addr", listenAddr, "hubURL", hubURL)
	srv.RunInBackground()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down oracle")
	cancel()
	srv.Shutdown()
	return nil
}

func buildDecryptor(fheSecKeyPath string) (fhe.Decryptor, error) {
	if fheSecKeyPath == "" {
		return fhe.NewPlainScheme(), nil
	}

	secKey, err := common.LoadKeyFile(fheSecKeyPath)
	if err != nil {
		return nil, err
	}
	decryptor, err := fhe.NewBFVDecryptor(secKey)
	if err != nil {
		return nil, fmt.Errorf("building BFV decryptor: %w", err)
	}
	return decryptor, nil
}

func buildAttester(signingKeyHex string, useTDX bool, remoteTDXURL string, log *slog.Logger) (oracle.Attester, error) {
	if useTDX {
		return &oracle.QuoteAttester{
			Provider: common.NewQuoteProvider(true, remoteTDXURL),
		}, nil
	}

	key, err := common.LoadOrGenerateSigningKey(signingKeyHex)
	if err != nil {
		return nil, err
	}
	pub, err := key.PublicKey()
	if err != nil {
		return nil, err
	}
	log.Info("attesting with ed25519 signatures", "oraclePublicKey", pub.String())

	return &oracle.Ed25519Attester{Key: key}, nil
}
