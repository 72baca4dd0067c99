package metadata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a key is absent
var ErrNotFound = errors.New("key not found")

// RawKVStore provides low-level key-value access to the underlying storage
// engine. It is implemented by both BadgerStore and PebbleStore.
type RawKVStore interface {
	// GetRaw retrieves a value by exact key. Returns ErrNotFound if absent.
	GetRaw(ctx context.Context, key string) ([]byte, error)

	// PutRaw stores a key-value pair.
	PutRaw(ctx context.Context, key string, value []byte) error

	// DeleteRaw removes a key. Returns ErrNotFound if absent.
	DeleteRaw(ctx context.Context, key string) error

	// RawBatch applies a set of writes and deletes atomically.
	RawBatch(ctx context.Context, sets map[string][]byte, deletes []string) error

	// RawScan iterates all keys that share the given prefix in lexicographic
	// order, beginning at startKey (or the first key in the prefix if startKey
	// is empty). fn receives a copy of each (key, value); returning false
	// stops the scan early.
	RawScan(ctx context.Context, prefix, startKey string, fn func(key string, val []byte) bool) error

	// RawGC triggers a garbage-collection pass if the engine supports it.
	RawGC() error

	IsReady() bool
	io.Closer
}

// Engine names a storage backend
type Engine string

const (
	EngineBadger Engine = "badger"
	EnginePebble Engine = "pebble"
)

// storeDir is the directory under the data dir holding the order metadata
const storeDir = "order_meta"

// Options configures Open
type Options struct {
	DataDir    string
	Engine     Engine
	SyncWrites bool
	GCInterval time.Duration // badger only, zero disables the GC loop
	Logger     *logrus.Logger
}

// Open opens the configured engine under {DataDir}/order_meta. Opening
// with pebble over an existing badger directory migrates the data first.
func Open(opts Options) (RawKVStore, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	switch opts.Engine {
	case EngineBadger, "":
		return NewBadgerStore(BadgerOptions{
			DataDir:    opts.DataDir,
			SyncWrites: opts.SyncWrites,
			GCInterval: opts.GCInterval,
			Logger:     opts.Logger,
		})
	case EnginePebble:
		if err := MigrateFromBadgerIfNeeded(opts.DataDir, opts.Logger); err != nil {
			return nil, err
		}
		return NewPebbleStore(PebbleOptions{
			DataDir:    opts.DataDir,
			SyncWrites: opts.SyncWrites,
			Logger:     opts.Logger,
		})
	default:
		return nil, fmt.Errorf("unknown order store engine %q", opts.Engine)
	}
}

func storePath(dataDir string) string {
	return filepath.Join(dataDir, storeDir)
}
