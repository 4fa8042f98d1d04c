package services

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger"

	"github.com/marthaediazx/FheDataHub/protocol"
)

// Key layout, one prefix per table:
//
//	b:<batch id>                batch row, JSON
//	s:<batch id>:<index>        submission ciphertext, raw bytes
//	c:<request id>              decryption context, JSON
//	r:<request id>              finalized average, big-endian uint64
//
// Numeric key components are fixed-width big-endian so iteration order
// matches numeric order.
var (
	batchPrefix      = []byte("b:")
	submissionPrefix = []byte("s:")
	contextPrefix    = []byte("c:")
	resultPrefix     = []byte("r:")
)

// BadgerStore implements Store on an embedded Badger database. Suitable
// for single-node deployments that want durability without running
// PostgreSQL.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) a Badger database at dir.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithSyncWrites(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("opening badger database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func batchKey(id uint64) []byte {
	key := make([]byte, 0, len(batchPrefix)+8)
	key = append(key, batchPrefix...)
	return binary.BigEndian.AppendUint64(key, id)
}

func submissionKey(batchID, index uint64) []byte {
	key := make([]byte, 0, len(submissionPrefix)+17)
	key = append(key, submissionPrefix...)
	key = binary.BigEndian.AppendUint64(key, batchID)
	key = append(key, ':')
	return binary.BigEndian.AppendUint64(key, index)
}

func contextKey(id protocol.RequestID) []byte {
	return append(append([]byte{}, contextPrefix...), id...)
}

func resultKey(id protocol.RequestID) []byte {
	return append(append([]byte{}, resultPrefix...), id...)
}

func (s *BadgerStore) SaveBatch(b protocol.Batch) error {
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(batchKey(b.ID), data)
	})
}

func (s *BadgerStore) SaveSubmission(batchID, index uint64, ciphertext []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(submissionKey(batchID, index), ciphertext)
	})
}

func (s *BadgerStore) SaveContext(id protocol.RequestID, ctx protocol.DecryptionContext) error {
	data, err := json.Marshal(ctx)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(contextKey(id), data)
	})
}

func (s *BadgerStore) SaveResult(id protocol.RequestID, average uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], average)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(resultKey(id), buf[:])
	})
}

func (s *BadgerStore) Load() (*protocol.Snapshot, error) {
	snap := &protocol.Snapshot{
		Values:   make(map[uint64][][]byte),
		Contexts: make(map[protocol.RequestID]protocol.DecryptionContext),
		Results:  make(map[protocol.RequestID]uint64),
	}

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(batchPrefix); it.ValidForPrefix(batchPrefix); it.Next() {
			var b protocol.Batch
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &b)
			}); err != nil {
				return fmt.Errorf("decoding batch row: %w", err)
			}
			snap.Batches = append(snap.Batches, b)
		}

		// Submission keys sort by (batch id, index), so appends arrive in
		// index order within each batch.
		for it.Seek(submissionPrefix); it.ValidForPrefix(submissionPrefix); it.Next() {
			item := it.Item()
			key := item.Key()
			rest := key[len(submissionPrefix):]
			if len(rest) != 17 || rest[8] != ':' {
				return fmt.Errorf("malformed submission key %q", key)
			}
			batchID := binary.BigEndian.Uint64(rest[:8])

			data, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("reading submission: %w", err)
			}
			snap.Values[batchID] = append(snap.Values[batchID], data)
		}

		for it.Seek(contextPrefix); it.ValidForPrefix(contextPrefix); it.Next() {
			item := it.Item()
			id := protocol.RequestID(bytes.TrimPrefix(item.Key(), contextPrefix))
			var ctx protocol.DecryptionContext
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &ctx)
			}); err != nil {
				return fmt.Errorf("decoding context %s: %w", id, err)
			}
			snap.Contexts[id] = ctx
		}

		for it.Seek(resultPrefix); it.ValidForPrefix(resultPrefix); it.Next() {
			item := it.Item()
			id := protocol.RequestID(bytes.TrimPrefix(item.Key(), resultPrefix))
			if err := item.Value(func(val []byte) error {
				if len(val) != 8 {
					return fmt.Errorf("result %s has %d bytes, want 8", id, len(val))
				}
				snap.Results[id] = binary.BigEndian.Uint64(val)
				return nil
			}); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return snap, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
