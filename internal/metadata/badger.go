package metadata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// BadgerStore implements RawKVStore using BadgerDB
type BadgerStore struct {
	db     *badger.DB
	ready  atomic.Bool
	logger *logrus.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	gcDone   chan struct{}
}

// BadgerOptions contains configuration options for BadgerStore
type BadgerOptions struct {
	DataDir    string
	SyncWrites bool // If true, every write is synced to disk
	GCInterval time.Duration
	Logger     *logrus.Logger
}

// NewBadgerStore opens a BadgerDB at {DataDir}/order_meta
func NewBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	dbPath := storePath(opts.DataDir)

	badgerOpts := badger.DefaultOptions(dbPath).
		WithLogger(newBadgerLogger(opts.Logger)).
		WithSyncWrites(opts.SyncWrites).
		WithIndexCacheSize(16 << 20).
		WithBlockCacheSize(32 << 20).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	store := &BadgerStore{
		db:     db,
		logger: opts.Logger,
		stopCh: make(chan struct{}),
		gcDone: make(chan struct{}),
	}
	store.ready.Store(true)

	if opts.GCInterval > 0 {
		go store.runGC(opts.GCInterval)
	} else {
		close(store.gcDone)
	}

	opts.Logger.WithField("path", dbPath).Info("BadgerDB order store initialized")

	return store, nil
}

// GetRaw retrieves a raw value from BadgerDB
func (s *BadgerStore) GetRaw(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}

		value, err = item.ValueCopy(nil)
		return err
	})

	if err != nil {
		return nil, err
	}
	return value, nil
}

// PutRaw stores a raw value in BadgerDB
func (s *BadgerStore) PutRaw(ctx context.Context, key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// DeleteRaw deletes a key from BadgerDB
func (s *BadgerStore) DeleteRaw(ctx context.Context, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(key)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return txn.Delete([]byte(key))
	})
}

// RawBatch applies writes and deletes atomically in a single BadgerDB transaction.
func (s *BadgerStore) RawBatch(ctx context.Context, sets map[string][]byte, deletes []string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for k, v := range sets {
			if err := txn.Set([]byte(k), v); err != nil {
				return fmt.Errorf("batch set %q: %w", k, err)
			}
		}
		for _, k := range deletes {
			if err := txn.Delete([]byte(k)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("batch delete %q: %w", k, err)
			}
		}
		return nil
	})
}

// RawScan iterates all keys with the given prefix starting from startKey.
// fn receives copies; returning false stops the scan.
func (s *BadgerStore) RawScan(ctx context.Context, prefix, startKey string, fn func(key string, val []byte) bool) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := []byte(prefix)
		if startKey != "" && startKey >= prefix {
			seek = []byte(startKey)
		}

		for it.Seek(seek); it.ValidForPrefix([]byte(prefix)); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			item := it.Item()
			keyCopy := string(item.KeyCopy(nil))
			valCopy, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if !fn(keyCopy, valCopy) {
				break
			}
		}
		return nil
	})
}

// RawGC runs BadgerDB value-log garbage collection. Nothing to rewrite is
// not an error.
func (s *BadgerStore) RawGC() error {
	err := s.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}

// IsReady returns true if the store is ready
func (s *BadgerStore) IsReady() bool {
	return s.ready.Load()
}

// Close stops the GC loop and closes the BadgerDB instance
func (s *BadgerStore) Close() error {
	s.ready.Store(false)
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.gcDone

	s.logger.Info("Closing BadgerDB order store")
	return s.db.Close()
}

// runGC runs value-log garbage collection until the store is closed
func (s *BadgerStore) runGC(interval time.Duration) {
	defer close(s.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := s.RawGC(); err != nil {
				s.logger.WithError(err).Warn("Failed to run GC")
			}
		}
	}
}

// badgerLogger adapts logrus to BadgerDB's logger interface
type badgerLogger struct {
	logger *logrus.Logger
}

func newBadgerLogger(logger *logrus.Logger) *badgerLogger {
	return &badgerLogger{logger: logger}
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf("[BadgerDB] "+format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warnf("[BadgerDB] "+format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debugf("[BadgerDB] "+format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Tracef("[BadgerDB] "+format, args...)
}

var _ RawKVStore = (*BadgerStore)(nil)
