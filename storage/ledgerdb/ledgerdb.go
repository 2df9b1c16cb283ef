package ledgerdb

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
	bolt "go.etcd.io/bbolt"

	"synthdollar/native/collateral"
)

var (
	bucketCheckpoints = []byte("checkpoints")
	keyCurrent        = []byte("current")

	// ErrPathRequired is returned when the backing store path is missing.
	ErrPathRequired = errors.New("ledgerdb: store path must be configured")
	// ErrNoCheckpoint is returned when no ledger snapshot has been persisted.
	ErrNoCheckpoint = errors.New("ledgerdb: no checkpoint recorded")
)

// Store persists ledger checkpoints so the daemon can restore accounting state
// across restarts. Snapshots are RLP-encoded; the deterministic entry ordering
// of exported state keeps the stored bytes stable.
type Store struct {
	db *bolt.DB
}

// Open initialises (and migrates) the BoltDB-backed checkpoint store.
func Open(path string) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := bolt.Open(trimmed, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open ledgerdb: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCheckpoints)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ledgerdb: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save replaces the current checkpoint with the supplied snapshot.
func (s *Store) Save(state *collateral.LedgerState) error {
	if state == nil {
		return errors.New("ledgerdb: nil state")
	}
	encoded, err := rlp.EncodeToBytes(state)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCheckpoints).Put(keyCurrent, encoded)
	})
}

// Load returns the most recent checkpoint, or ErrNoCheckpoint when the store
// is empty.
func (s *Store) Load() (*collateral.LedgerState, error) {
	var encoded []byte
	if err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketCheckpoints).Get(keyCurrent)
		if raw != nil {
			encoded = append([]byte(nil), raw...)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if encoded == nil {
		return nil, ErrNoCheckpoint
	}
	state := new(collateral.LedgerState)
	if err := rlp.DecodeBytes(encoded, state); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return state, nil
}
