package metadata

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/pebble"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

const (
	migrationBatchSize = 10_000
	badgerKeyRegistry  = "KEYREGISTRY" // file present only in BadgerDB directories
)

// MigrateFromBadgerIfNeeded copies a BadgerDB order store found at
// {dataDir}/order_meta into Pebble so the engine can be switched without
// losing order metadata.
//
// On failure the BadgerDB directory is left untouched. On success it is
// kept as {dataDir}/order_meta_badger_backup_{ts} and the Pebble copy takes
// its place.
func MigrateFromBadgerIfNeeded(dataDir string, logger *logrus.Logger) error {
	metaDir := storePath(dataDir)
	keyRegistry := filepath.Join(metaDir, badgerKeyRegistry)

	if _, err := os.Stat(keyRegistry); os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to check order store directory: %w", err)
	}

	logger.Info("BadgerDB order store detected; migrating to Pebble")

	pebbleTmpDir := filepath.Join(dataDir, storeDir+"_pebble")
	if err := os.RemoveAll(pebbleTmpDir); err != nil {
		return fmt.Errorf("failed to clean up previous migration attempt: %w", err)
	}

	migrated, err := copyBadgerToPebble(metaDir, pebbleTmpDir, logger)
	if err != nil {
		_ = os.RemoveAll(pebbleTmpDir)
		return fmt.Errorf("migration failed after %d keys: %w", migrated, err)
	}

	backupDir := filepath.Join(dataDir, fmt.Sprintf("%s_badger_backup_%s", storeDir, time.Now().Format("20060102_150405")))
	if _, err := os.Stat(backupDir); err == nil {
		backupDir += "_2"
	}

	if err := os.Rename(metaDir, backupDir); err != nil {
		_ = os.RemoveAll(pebbleTmpDir)
		return fmt.Errorf("failed to rename BadgerDB directory: %w", err)
	}

	if err := os.Rename(pebbleTmpDir, metaDir); err != nil {
		_ = os.Rename(backupDir, metaDir)
		return fmt.Errorf("failed to rename Pebble directory: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"migrated_keys": migrated,
		"backup_dir":    backupDir,
	}).Info("Order store migration to Pebble complete")

	return nil
}

// copyBadgerToPebble returns the number of keys copied
func copyBadgerToPebble(badgerDir, pebbleDir string, logger *logrus.Logger) (int64, error) {
	bdb, err := badger.Open(badger.DefaultOptions(badgerDir).
		WithLogger(newBadgerLogger(logger)).
		WithNumVersionsToKeep(1))
	if err != nil {
		return 0, fmt.Errorf("failed to open BadgerDB for migration: %w", err)
	}
	defer bdb.Close() //nolint:errcheck

	if err := os.MkdirAll(pebbleDir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create Pebble migration directory: %w", err)
	}

	cache := pebble.NewCache(32 << 20)
	defer cache.Unref()

	pdb, err := pebble.Open(pebbleDir, &pebble.Options{
		Cache:  cache,
		Levels: []pebble.LevelOptions{{Compression: pebble.SnappyCompression}},
		Logger: &pebbleLogger{logger: logger},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to open Pebble for migration: %w", err)
	}
	defer pdb.Close() //nolint:errcheck

	var total int64
	batch := pdb.NewBatch()

	err = bdb.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = 256

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)

			val, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("failed to read BadgerDB value for key %q: %w", key, err)
			}
			if err := batch.Set(key, val, nil); err != nil {
				return fmt.Errorf("failed to write key %q to Pebble batch: %w", key, err)
			}

			total++
			if total%migrationBatchSize == 0 {
				if err := batch.Commit(pebble.NoSync); err != nil {
					return fmt.Errorf("failed to commit Pebble batch at key %d: %w", total, err)
				}
				batch.Close() //nolint:errcheck
				batch = pdb.NewBatch()
				logger.WithField("keys_migrated", total).Info("Migration progress")
			}
		}
		return nil
	})
	if err != nil {
		batch.Close() //nolint:errcheck
		return total, err
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		batch.Close() //nolint:errcheck
		return total, fmt.Errorf("failed to commit final Pebble batch: %w", err)
	}
	batch.Close() //nolint:errcheck

	if err := pdb.Flush(); err != nil {
		return total, fmt.Errorf("failed to flush Pebble after migration: %w", err)
	}

	return total, nil
}
