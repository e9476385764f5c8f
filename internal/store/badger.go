package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/headline-goat/variant-goat/internal/experiment"
)

const (
	badgerAssignPrefix = "a/"
	badgerEventPrefix  = "e/"
	badgerSeqKey       = "seq/events"

	badgerMaxConflictRetries = 5
)

// BadgerConfig holds configuration for the embedded Badger store.
type BadgerConfig struct {
	// Path is ignored when InMemory is true.
	Path       string
	InMemory   bool
	SyncWrites bool
}

// BadgerStore is an embedded key-value backend. Assignments live under
// a/<test>\x00<user>, events under e/<test>\x00<big-endian sequence>.
type BadgerStore struct {
	db  *badger.DB
	seq *badger.Sequence
}

var _ Store = (*BadgerStore)(nil)

func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	seq, err := db.GetSequence([]byte(badgerSeqKey), 128)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open event sequence: %w", err)
	}

	return &BadgerStore{db: db, seq: seq}, nil
}

func badgerAssignKey(testID, userID string) []byte {
	return []byte(badgerAssignPrefix + testID + "\x00" + userID)
}

func badgerEventTestPrefix(testID string) []byte {
	return []byte(badgerEventPrefix + testID + "\x00")
}

func (s *BadgerStore) GetAssignment(ctx context.Context, testID, userID string) (string, error) {
	var variantID string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerAssignKey(testID, userID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			variantID = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get assignment: %w", err)
	}
	return variantID, nil
}

func (s *BadgerStore) CreateAssignment(ctx context.Context, a experiment.Assignment) (string, bool, error) {
	key := badgerAssignKey(a.TestID, a.UserID)

	for attempt := 0; ; attempt++ {
		stored, created := a.VariantID, true
		err := s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(key)
			switch {
			case err == nil:
				created = false
				return item.Value(func(val []byte) error {
					stored = string(val)
					return nil
				})
			case errors.Is(err, badger.ErrKeyNotFound):
				return txn.Set(key, []byte(a.VariantID))
			default:
				return err
			}
		})
		if errors.Is(err, badger.ErrConflict) && attempt < badgerMaxConflictRetries {
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("failed to create assignment: %w", err)
		}
		return stored, created, nil
	}
}

func (s *BadgerStore) AppendEvent(ctx context.Context, e experiment.Event) error {
	n, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("failed to allocate event sequence: %w", err)
	}

	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	key := badgerEventTestPrefix(e.TestID)
	key = binary.BigEndian.AppendUint64(key, n)

	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, b)
	}); err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

func (s *BadgerStore) ListEvents(ctx context.Context, testID string) ([]experiment.Event, error) {
	prefix := []byte(badgerEventPrefix)
	if testID != "" {
		prefix = badgerEventTestPrefix(testID)
	}

	var events []experiment.Event
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var e experiment.Event
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return err
			}
			events = append(events, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	return events, nil
}

func (s *BadgerStore) Close() error {
	if err := s.seq.Release(); err != nil {
		s.db.Close()
		return fmt.Errorf("failed to release event sequence: %w", err)
	}
	return s.db.Close()
}
