package counterstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/gcbaptista/go-autocomplete/services"
)

var counterKeyPrefix = []byte("counter/")

// BadgerOptions configures a BadgerStore
type BadgerOptions struct {
	// Path is the directory for BadgerDB files.
	// Ignored when InMemory is true.
	Path string

	// InMemory keeps the database in RAM only. Useful for testing.
	InMemory bool

	// SyncWrites fsyncs every increment before acknowledging it.
	SyncWrites bool
}

// BadgerStore persists counters in an embedded BadgerDB and broadcasts
// notifications in process. It serves a single replica that wants its counts
// to survive restarts without running Redis.
type BadgerStore struct {
	db  *badger.DB
	mu  sync.Mutex // serialises read-modify-write increments
	hub *hub
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenBadgerStore opens (or creates) a badger-backed counter store.
func OpenBadgerStore(cfg BadgerOptions, l *slog.Logger) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if l != nil {
		opts = opts.WithLogger(&badgerLogger{logger: l})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	return &BadgerStore{
		db:  db,
		hub: newHub(defaultSubscriberBuffer, l),
	}, nil
}

func counterKey(phrase string) []byte {
	key := make([]byte, 0, len(counterKeyPrefix)+len(phrase))
	key = append(key, counterKeyPrefix...)
	return append(key, phrase...)
}

func decodeCount(val []byte) (int64, error) {
	if len(val) != 8 {
		return 0, fmt.Errorf("counter value has %d bytes, want 8", len(val))
	}
	return int64(binary.BigEndian.Uint64(val)), nil
}

func encodeCount(n int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(n))
	return buf
}

func readCount(txn *badger.Txn, key []byte) (int64, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var count int64
	err = item.Value(func(val []byte) error {
		var decodeErr error
		count, decodeErr = decodeCount(val)
		return decodeErr
	})
	return count, err
}

func (s *BadgerStore) Snapshot(ctx context.Context) (map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	counts := make(map[string]int64)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(counterKeyPrefix); it.ValidForPrefix(counterKeyPrefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			item := it.Item()
			phrase := string(bytes.TrimPrefix(item.KeyCopy(nil), counterKeyPrefix))
			err := item.Value(func(val []byte) error {
				count, err := decodeCount(val)
				if err != nil {
					return fmt.Errorf("phrase %q: %w", phrase, err)
				}
				if count > 0 {
					counts[phrase] = count
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func (s *BadgerStore) Increment(ctx context.Context, phrase string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := counterKey(phrase)
	var next int64
	err := s.db.Update(func(txn *badger.Txn) error {
		current, err := readCount(txn, key)
		if err != nil {
			return err
		}
		next = current + 1
		return txn.Set(key, encodeCount(next))
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (s *BadgerStore) Get(ctx context.Context, phrase string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var count int64
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		count, err = readCount(txn, counterKey(phrase))
		return err
	})
	return count, err
}

func (s *BadgerStore) Publish(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return ErrClosed
	}
	s.hub.publish(payload)
	return nil
}

func (s *BadgerStore) Subscribe(ctx context.Context, handler services.NotificationHandler) (services.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.db.IsClosed() {
		return nil, ErrClosed
	}
	return s.hub.subscribe(handler), nil
}

func (s *BadgerStore) Close() error {
	s.hub.closeAll()
	return s.db.Close()
}
