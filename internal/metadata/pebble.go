package metadata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/sirupsen/logrus"
)

// PebbleStore implements RawKVStore using Pebble (CockroachDB's LSM engine).
type PebbleStore struct {
	db        *pebble.DB
	ready     atomic.Bool
	logger    *logrus.Logger
	writeOpts *pebble.WriteOptions
}

// PebbleOptions contains configuration options for PebbleStore
type PebbleOptions struct {
	DataDir    string
	SyncWrites bool
	Logger     *logrus.Logger
}

// NewPebbleStore opens a Pebble database at {DataDir}/order_meta
func NewPebbleStore(opts PebbleOptions) (*PebbleStore, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	dbPath := storePath(opts.DataDir)
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create order store directory: %w", err)
	}

	cache := pebble.NewCache(32 << 20)
	defer cache.Unref()

	db, err := pebble.Open(dbPath, &pebble.Options{
		Cache: cache,
		Levels: []pebble.LevelOptions{
			{Compression: pebble.SnappyCompression},
		},
		Logger: &pebbleLogger{logger: opts.Logger},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db: %w", err)
	}

	store := &PebbleStore{
		db:        db,
		logger:    opts.Logger,
		writeOpts: pebble.NoSync,
	}
	if opts.SyncWrites {
		store.writeOpts = pebble.Sync
	}
	store.ready.Store(true)

	opts.Logger.WithField("path", dbPath).Info("Pebble order store initialized")
	return store, nil
}

// prefixEnd returns the exclusive upper bound for a prefix scan in Pebble.
// It increments the last byte of the prefix; returns nil if all bytes overflow.
func prefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// GetRaw retrieves a raw value by key.
func (s *PebbleStore) GetRaw(ctx context.Context, key string) ([]byte, error) {
	val, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close() //nolint:errcheck

	data := make([]byte, len(val))
	copy(data, val)
	return data, nil
}

// PutRaw stores a raw value.
func (s *PebbleStore) PutRaw(ctx context.Context, key string, value []byte) error {
	return s.db.Set([]byte(key), value, s.writeOpts)
}

// DeleteRaw deletes a raw key. Pebble deletes are blind, so presence is
// checked first to report ErrNotFound like the badger store.
func (s *PebbleStore) DeleteRaw(ctx context.Context, key string) error {
	_, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	_ = closer.Close()

	return s.db.Delete([]byte(key), s.writeOpts)
}

// RawBatch applies writes and deletes atomically via a Pebble batch.
func (s *PebbleStore) RawBatch(ctx context.Context, sets map[string][]byte, deletes []string) error {
	batch := s.db.NewBatch()
	defer batch.Close() //nolint:errcheck

	for k, v := range sets {
		if err := batch.Set([]byte(k), v, nil); err != nil {
			return fmt.Errorf("batch set %q: %w", k, err)
		}
	}
	for _, k := range deletes {
		if err := batch.Delete([]byte(k), nil); err != nil {
			return fmt.Errorf("batch delete %q: %w", k, err)
		}
	}
	return batch.Commit(s.writeOpts)
}

// RawScan iterates keys with the given prefix starting from startKey.
// fn receives copies; returning false stops the scan.
func (s *PebbleStore) RawScan(ctx context.Context, prefix, startKey string, fn func(key string, val []byte) bool) error {
	lower := []byte(prefix)

	seekKey := lower
	if startKey != "" && startKey >= prefix {
		seekKey = []byte(startKey)
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: prefixEnd(lower),
	})
	if err != nil {
		return fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close() //nolint:errcheck

	for valid := iter.SeekGE(seekKey); valid; valid = iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}

		keyCopy := string(iter.Key())
		val := iter.Value()
		valCopy := make([]byte, len(val))
		copy(valCopy, val)
		if !fn(keyCopy, valCopy) {
			break
		}
	}
	return iter.Error()
}

// RawGC is a no-op for Pebble (it auto-compacts).
func (s *PebbleStore) RawGC() error { return nil }

// IsReady returns true when the store is ready to serve requests.
func (s *PebbleStore) IsReady() bool {
	return s.ready.Load()
}

// Close shuts down the Pebble store gracefully.
func (s *PebbleStore) Close() error {
	s.ready.Store(false)
	s.logger.Info("Closing Pebble order store")
	return s.db.Close()
}

// pebbleLogger adapts logrus to pebble's Logger interface (Infof + Fatalf).
type pebbleLogger struct {
	logger *logrus.Logger
}

func (l *pebbleLogger) Infof(format string, args ...interface{}) {
	l.logger.Debugf("[Pebble] "+format, args...)
}

func (l *pebbleLogger) Fatalf(format string, args ...interface{}) {
	l.logger.Fatalf("[Pebble] "+format, args...)
}

var _ RawKVStore = (*PebbleStore)(nil)
