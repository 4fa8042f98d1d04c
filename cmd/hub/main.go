// Command hub runs the FheDataHub aggregation service.
//
// The hub accepts encrypted readings from allow-listed providers, keeps
// them in sequentially-numbered batches, and serves decryption requests
// by shipping the homomorphic sum to the oracle and resuming when the
// attested result comes back.
//
// # Usage
//
// Demo mode, everything in one process with the unencrypted scheme:
//
//	go run ./cmd/hub --owner-pubkey=<hex>
//
// Production shape, BFV ciphertexts and a remote oracle:
//
//	go run ./cmd/hub \
//	  --fhe-pubkey=bfv.pub \
//	  --oracle-url=http://oracle:8081 \
//	  --oracle-pubkey=<hex> \
//	  --store=postgres --pg-host=db --pg-user=hub --pg-db=fhedatahub
//
// With --tdx the oracle attestation is a DCAP quote checked against the
// published measurement allow-list instead of an Ed25519 signature.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/marthaediazx/FheDataHub/api/httpserver"
	"github.com/marthaediazx/FheDataHub/cmd/common"
	"github.com/marthaediazx/FheDataHub/crypto"
	"github.com/marthaediazx/FheDataHub/fhe"
	"github.com/marthaediazx/FheDataHub/metrics"
	"github.com/marthaediazx/FheDataHub/oracle"
	"github.com/marthaediazx/FheDataHub/protocol"
	"github.com/marthaediazx/FheDataHub/services"
)

func main() {
	var (
		listenAddr  = flag.String("addr", ":8080", "HTTP listen address")
		metricsAddr = flag.String("metrics-addr", "", "Metrics listen address (disabled if empty)")
		enablePprof = flag.Bool("pprof", false, "Enable pprof debug API")
		logJSON     = flag.Bool("log-json", false, "Log in JSON format")

		instanceName = flag.String("instance", "fhedatahub-dev", "Deployment name mixed into batch commitments")

		fhePubKeyPath = flag.String("fhe-pubkey", "", "BFV public key file (uses the unencrypted demo scheme if empty)")
		fheSecKeyPath = flag.String("fhe-seckey", "", "BFV secret key file, only for the in-process demo oracle")

		oracleURL       = flag.String("oracle-url", "", "Remote oracle URL (runs an in-process demo oracle if empty)")
		oraclePubKeyHex = flag.String("oracle-pubkey", "", "Oracle Ed25519 public key (hex) for attestation verification")
		useTDX          = flag.Bool("tdx", false, "Verify oracle attestations as TDX DCAP quotes")
		remoteTDXURL    = flag.String("tdx-url", "", "Remote DCAP verification service URL")
		measurementsURL = flag.String("measurements-url", "", "URL for allowed oracle measurements")

		ownerPubKeyHex  = flag.String("owner-pubkey", "", "Hub owner public key (hex); holds the close capability")
		providersHex    = flag.String("providers", "", "Comma-separated provider public keys (hex)")
		submitCooldown  = flag.Duration("submit-cooldown", services.DefaultSubmitCooldown, "Minimum interval between submissions per provider")
		requestCooldown = flag.Duration("request-cooldown", services.DefaultRequestCooldown, "Minimum interval between decryption requests per identity")
		adminToken      = flag.String("admin-token", "", "Basic auth token for /admin endpoints (user:pass)")

		storeKind  = flag.String("store", "memory", "Persistence backend: memory, badger or postgres")
		badgerDir  = flag.String("badger-dir", "", "Badger database directory")
		pgHost     = flag.String("pg-host", "localhost", "PostgreSQL host")
		pgPort     = flag.Int("pg-port", 5432, "PostgreSQL port")
		pgUser     = flag.String("pg-user", "fhedatahub", "PostgreSQL user")
		pgPassword = flag.String("pg-password", "", "PostgreSQL password")
		pgDatabase = flag.String("pg-db", "fhedatahub", "PostgreSQL database")
		pgSSLMode  = flag.String("pg-sslmode", "", "PostgreSQL sslmode")
	)
	flag.Parse()

	log := newLogger(*logJSON)

	if err := run(&hubConfig{
		listenAddr:      *listenAddr,
		metricsAddr:     *metricsAddr,
		enablePprof:     *enablePprof,
		instanceName:    *instanceName,
		fhePubKeyPath:   *fhePubKeyPath,
		fheSecKeyPath:   *fheSecKeyPath,
		oracleURL:       *oracleURL,
		oraclePubKeyHex: *oraclePubKeyHex,
		useTDX:          *useTDX,
		remoteTDXURL:    *remoteTDXURL,
		measurementsURL: *measurementsURL,
		ownerPubKeyHex:  *ownerPubKeyHex,
		providersHex:    *providersHex,
		submitCooldown:  *submitCooldown,
		requestCooldown: *requestCooldown,
		adminToken:      *adminToken,
		storeKind:       *storeKind,
		badgerDir:       *badgerDir,
		pg: &services.PostgresConfig{
			Host:     *pgHost,
			Port:     *pgPort,
			User:     *pgUser,
			Password: *pgPassword,
			Database: *pgDatabase,
			SSLMode:  *pgSSLMode,
		},
	}, log); err != nil {
		log.Error("hub failed", "err", err)
		os.Exit(1)
	}
}

type hubConfig struct {
	listenAddr   string
	metricsAddr  string
	enablePprof  bool
	instanceName string

	fhePubKeyPath string
	fheSecKeyPath string

	oracleURL       string
	oraclePubKeyHex string
	useTDX          bool
	remoteTDXURL    string
	measurementsURL string

	ownerPubKeyHex  string
	providersHex    string
	submitCooldown  time.Duration
	requestCooldown time.Duration
	adminToken      string

	storeKind string
	badgerDir string
	pg        *services.PostgresConfig
}

func newLogger(json bool) *slog.Logger {
	if json {
		return slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func run(cfg *hubConfig, log *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheme, demoDecryptor, err := buildScheme(cfg)
	if err != nil {
		return err
	}

	access, err := buildAccess(cfg, log)
	if err != nil {
		return err
	}

	store, err := common.NewStore(cfg.storeKind, cfg.badgerDir, cfg.pg)
	if err != nil {
		return err
	}

	// The in-process oracle's result handler closes over hubSvc, which is
	// assigned below; callbacks only fire after requests go through it.
	var hubSvc *services.HubService

	decryptionOracle, verifier, err := buildOracle(ctx, cfg, demoDecryptor, func(id protocol.RequestID, cleartext, attestation []byte) {
		if _, _, err := hubSvc.OnDecryptionResult(id, cleartext, attestation); err != nil {
			log.Warn("rejected in-process oracle result", "requestID", string(id), "err", err)
		}
	}, log)
	if err != nil {
		return err
	}

	events := protocol.MultiEventSink{
		protocol.NewSlogEventSink(log),
		metrics.NewEventSink("fhedatahub"),
	}

	hubSvc, err = services.NewHubService(services.HubConfig{
		Scheme:     scheme,
		Oracle:     decryptionOracle,
		Verifier:   verifier,
		Access:     access,
		Store:      store,
		InstanceID: crypto.Sum256([]byte(cfg.instanceName)),
		Events:     events,
		Log:        log,
	})
	if err != nil {
		return err
	}
	defer hubSvc.Close()

	handler := services.NewHubHandler(hubSvc, access, cfg.adminToken, log)

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               cfg.listenAddr,
		MetricsAddr:              cfg.metricsAddr,
		EnablePprof:              cfg.enablePprof,
		Log:                      log,
		DrainDuration:            5 * time.Second,
		GracefulShutdownDuration: 10 * time.Second,
		ReadTimeout:              15 * time.Second,
		WriteTimeout:             15 * time.Second,
	}, handler)
	if err != nil {
		return err
	}

	log.Info("hub listening", "addr", cfg.listenAddr, "store", cfg.storeKind,
		"currentBatch", hubSvc.CurrentBatch().ID)
	if cfg.adminToken == "" {
		log.Warn("no admin token configured, /admin routes are unprotected")
	}
	srv.RunInBackground()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down hub")
	cancel()
	srv.Shutdown()
	return nil
}

// buildScheme picks BFV when a public key is configured, otherwise the
// unencrypted demo scheme. The returned decryptor is non-nil only when
// the in-process demo oracle can actually decrypt.
func buildScheme(cfg *hubConfig) (fhe.Scheme, fhe.Decryptor, error) {
	if cfg.fhePubKeyPath == "" {
		scheme := fhe.NewPlainScheme()
		return scheme, scheme, nil
	}

	pubKey, err := common.LoadKeyFile(cfg.fhePubKeyPath)
	if err != nil {
		return nil, nil, err
	}
	scheme, err := fhe.NewBFVScheme(pubKey)
	if err != nil {
		return nil, nil, fmt.Errorf("building BFV scheme: %w", err)
	}

	if cfg.fheSecKeyPath == "" {
		return scheme, nil, nil
	}
	secKey, err := common.LoadKeyFile(cfg.fheSecKeyPath)
	if err != nil {
		return nil, nil, err
	}
	decryptor, err := fhe.NewBFVDecryptor(secKey)
	if err != nil {
		return nil, nil, fmt.Errorf("building BFV decryptor: %w", err)
	}
	return scheme, decryptor, nil
}

func buildAccess(cfg *hubConfig, log *slog.Logger) (*services.StaticAccessController, error) {
	var owner crypto.PublicKey
	if cfg.ownerPubKeyHex != "" {
		pk, err := crypto.NewPublicKeyFromString(cfg.ownerPubKeyHex)
		if err != nil {
			return nil, fmt.Errorf("invalid owner public key: %w", err)
		}
		owner = pk
	} else {
		log.Warn("no owner public key configured, batches cannot be closed")
	}

	var providers []crypto.PublicKey
	if cfg.providersHex != "" {
		for _, hexKey := range strings.Split(cfg.providersHex, ",") {
			pk, err := crypto.NewPublicKeyFromString(strings.TrimSpace(hexKey))
			if err != nil {
				return nil, fmt.Errorf("invalid provider public key %q: %w", hexKey, err)
			}
			providers = append(providers, pk)
		}
	}

	return services.NewStaticAccessController(services.AccessConfig{
		Owner:           owner,
		Providers:       providers,
		SubmitCooldown:  cfg.submitCooldown,
		RequestCooldown: cfg.requestCooldown,
	}), nil
}

// buildOracle wires either the remote oracle client or an in-process
// demo oracle, together with the matching attestation verifier.
func buildOracle(ctx context.Context, cfg *hubConfig, demoDecryptor fhe.Decryptor, handler oracle.ResultHandler, log *slog.Logger) (protocol.DecryptionOracle, protocol.AttestationVerifier, error) {
	verifier, err := buildVerifier(cfg, log)
	if err != nil {
		return nil, nil, err
	}

	if cfg.oracleURL != "" {
		return services.NewOracleClient(cfg.oracleURL), verifier, nil
	}

	if demoDecryptor == nil {
		return nil, nil, fmt.Errorf("in-process oracle needs --fhe-seckey (or the demo scheme)")
	}

	inProcess, err := oracle.New(demoDecryptor, oracle.DummyAttester{}, handler, log)
	if err != nil {
		return nil, nil, err
	}
	inProcess.Start(ctx)

	log.Warn("running in-process demo oracle; results carry dummy attestations")
	return inProcess, oracle.DummyVerifier{}, nil
}

func buildVerifier(cfg *hubConfig, log *slog.Logger) (protocol.AttestationVerifier, error) {
	if cfg.useTDX {
		provider := common.NewQuoteProvider(true, cfg.remoteTDXURL)
		source := common.NewMeasurementSource(cfg.measurementsURL)
		return services.NewQuoteVerifier(provider, source, log), nil
	}

	if cfg.oraclePubKeyHex != "" {
		pk, err := crypto.NewPublicKeyFromString(cfg.oraclePubKeyHex)
		if err != nil {
			return nil, fmt.Errorf("invalid oracle public key: %w", err)
		}
		return &oracle.Ed25519Verifier{OracleKey: pk}, nil
	}

	return oracle.DummyVerifier{}, nil
}
