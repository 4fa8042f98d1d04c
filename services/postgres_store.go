package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/marthaediazx/FheDataHub/crypto"
	"github.com/marthaediazx/FheDataHub/protocol"
)

// PostgresStore implements Store with PostgreSQL persistence.
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS batches (
		id BIGINT PRIMARY KEY,
		data_count BIGINT NOT NULL,
		closed BOOLEAN NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS submissions (
		batch_id BIGINT NOT NULL,
		idx BIGINT NOT NULL,
		ciphertext BYTEA NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		PRIMARY KEY (batch_id, idx)
	);

	CREATE TABLE IF NOT EXISTS decryption_requests (
		request_id VARCHAR(64) PRIMARY KEY,
		batch_id BIGINT NOT NULL,
		state_hash BYTEA NOT NULL,
		processed BOOLEAN NOT NULL,
		average BIGINT,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_submissions_batch ON submissions(batch_id);
	CREATE INDEX IF NOT EXISTS idx_requests_batch ON decryption_requests(batch_id);
	`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveBatch upserts a batch row.
func (s *PostgresStore) SaveBatch(b protocol.Batch) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
	INSERT INTO batches (id, data_count, closed, updated_at)
	VALUES ($1, $2, $3, NOW())
	ON CONFLICT (id) DO UPDATE SET
		data_count = EXCLUDED.data_count,
		closed = EXCLUDED.closed,
		updated_at = NOW()
	`

	_, err := s.db.ExecContext(ctx, query, int64(b.ID), int64(b.DataCount), b.Closed)
	return err
}

// SaveSubmission records a ciphertext at its assigned index.
func (s *PostgresStore) SaveSubmission(batchID, index uint64, ciphertext []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
	INSERT INTO submissions (batch_id, idx, ciphertext)
	VALUES ($1, $2, $3)
	ON CONFLICT (batch_id, idx) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query, int64(batchID), int64(index), ciphertext)
	return err
}

// SaveContext upserts a decryption context.
func (s *PostgresStore) SaveContext(id protocol.RequestID, dc protocol.DecryptionContext) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
	INSERT INTO decryption_requests (request_id, batch_id, state_hash, processed, updated_at)
	VALUES ($1, $2, $3, $4, NOW())
	ON CONFLICT (request_id) DO UPDATE SET
		processed = EXCLUDED.processed,
		updated_at = NOW()
	`

	_, err := s.db.ExecContext(ctx, query,
		string(id), int64(dc.BatchID), dc.StateHash[:], dc.Processed)
	return err
}

// SaveResult records the finalized average for a request.
func (s *PostgresStore) SaveResult(id protocol.RequestID, average uint64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`UPDATE decryption_requests SET average = $2, updated_at = NOW() WHERE request_id = $1`,
		string(id), int64(average))
	return err
}

// Load reconstructs a full snapshot from the three tables.
func (s *PostgresStore) Load() (*protocol.Snapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	snap := &protocol.Snapshot{
		Values:   make(map[uint64][][]byte),
		Contexts: make(map[protocol.RequestID]protocol.DecryptionContext),
		Results:  make(map[protocol.RequestID]uint64),
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, data_count, closed FROM batches ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("loading batches: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, dataCount int64
			closed        bool
		)
		if err := rows.Scan(&id, &dataCount, &closed); err != nil {
			return nil, fmt.Errorf("scanning batch row: %w", err)
		}
		snap.Batches = append(snap.Batches, protocol.Batch{
			ID:        uint64(id),
			DataCount: uint64(dataCount),
			Closed:    closed,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	subRows, err := s.db.QueryContext(ctx,
		`SELECT batch_id, ciphertext FROM submissions ORDER BY batch_id, idx`)
	if err != nil {
		return nil, fmt.Errorf("loading submissions: %w", err)
	}
	defer subRows.Close()

	for subRows.Next() {
		var (
			batchID    int64
			ciphertext []byte
		)
		if err := subRows.Scan(&batchID, &ciphertext); err != nil {
			return nil, fmt.Errorf("scanning submission row: %w", err)
		}
		snap.Values[uint64(batchID)] = append(snap.Values[uint64(batchID)], ciphertext)
	}
	if err := subRows.Err(); err != nil {
		return nil, err
	}

	reqRows, err := s.db.QueryContext(ctx,
		`SELECT request_id, batch_id, state_hash, processed, average FROM decryption_requests`)
	if err != nil {
		return nil, fmt.Errorf("loading decryption requests: %w", err)
	}
	defer reqRows.Close()

	for reqRows.Next() {
		var (
			requestID string
			batchID   int64
			stateHash []byte
			processed bool
			average   sql.NullInt64
		)
		if err := reqRows.Scan(&requestID, &batchID, &stateHash, &processed, &average); err != nil {
			return nil, fmt.Errorf("scanning request row: %w", err)
		}
		if len(stateHash) != len(crypto.Digest{}) {
			return nil, fmt.Errorf("request %s has malformed state hash", requestID)
		}

		dc := protocol.DecryptionContext{
			BatchID:   uint64(batchID),
			Processed: processed,
		}
		copy(dc.StateHash[:], stateHash)
		snap.Contexts[protocol.RequestID(requestID)] = dc

		if average.Valid {
			snap.Results[protocol.RequestID(requestID)] = uint64(average.Int64)
		}
	}
	if err := reqRows.Err(); err != nil {
		return nil, err
	}

	return snap, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
