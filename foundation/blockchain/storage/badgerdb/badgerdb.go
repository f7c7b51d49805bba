// Package badgerdb implements the storage engine on top of badger.
package badgerdb

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/ardanlabs/ledger/foundation/blockchain/storage"
	"github.com/dgraph-io/badger"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DB represents a badger database. This implements the storage.Store
// interface.
type DB struct {
	db *badger.DB
}

// Open opens or creates a badger database in the specified directory. When
// a previous process died holding the directory lock, the lock is removed
// and the value log truncated before a second attempt. The logger is
// optional.
func Open(dir string, log *zap.SugaredLogger) (*DB, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, storage.NewIOError("open", err)
	}

	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	if log != nil {
		opts.Logger = logger{log: log}
	}

	db, err := badger.Open(opts)
	if err != nil {
		if !strings.Contains(err.Error(), "LOCK") {
			return nil, storage.NewIOError("open", err)
		}

		db, err = retry(dir, opts)
		if err != nil {
			return nil, storage.NewIOError("open", errors.Wrap(err, "could not unlock database"))
		}

		if log != nil {
			log.Infow("storage", "status", "database unlocked, value log truncated", "dir", dir)
		}
	}

	return &DB{db: db}, nil
}

// retry removes the stale LOCK file and opens the database again with
// truncation of the value log enabled.
func retry(dir string, originalOpts badger.Options) (*badger.DB, error) {
	lockPath := filepath.Join(dir, "LOCK")
	if err := os.Remove(lockPath); err != nil {
		return nil, errors.Wrap(err, `removing "LOCK"`)
	}

	retryOpts := originalOpts
	retryOpts.Truncate = true

	return badger.Open(retryOpts)
}

// Close releases the database.
func (d *DB) Close() error {
	if err := d.db.Close(); err != nil {
		return storage.NewIOError("close", err)
	}

	return nil
}

// View runs the function inside a read-only transaction.
func (d *DB) View(fn func(txn storage.Txn) error) error {
	txn := d.db.NewTransaction(false)
	defer txn.Discard()

	return fn(&tx{txn: txn})
}

// Update runs the function inside a read-write transaction that is
// committed only if the function succeeds.
func (d *DB) Update(fn func(txn storage.Txn) error) error {
	txn := d.db.NewTransaction(true)
	defer txn.Discard()

	if err := fn(&tx{txn: txn}); err != nil {
		return err
	}

	if err := txn.Commit(); err != nil {
		return storage.NewIOError("commit", err)
	}

	return nil
}

// =============================================================================

// tx adapts a badger transaction to the storage.Txn interface.
type tx struct {
	txn *badger.Txn
}

// Get returns a copy of the value stored for the key.
func (t *tx) Get(key []byte) ([]byte, error) {
	item, err := t.txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, storage.NewIOError("get", err)
	}

	value, err := item.ValueCopy(nil)
	if err != nil {
		return nil, storage.NewIOError("get", err)
	}

	return value, nil
}

// Set writes the key and value.
func (t *tx) Set(key []byte, value []byte) error {
	if err := t.txn.Set(key, value); err != nil {
		return storage.NewIOError("set", err)
	}

	return nil
}

// Delete removes the key.
func (t *tx) Delete(key []byte) error {
	if err := t.txn.Delete(key); err != nil {
		return storage.NewIOError("delete", err)
	}

	return nil
}

// Iterate walks all keys with the prefix in ascending order.
func (t *tx) Iterate(prefix []byte, fn func(key []byte, value []byte) error) error {
	it := t.txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()

		value, err := item.ValueCopy(nil)
		if err != nil {
			return storage.NewIOError("iterate", err)
		}

		if err := fn(item.KeyCopy(nil), value); err != nil {
			return err
		}
	}

	return nil
}

// =============================================================================

// logger routes badger's internal logging through zap.
type logger struct {
	log *zap.SugaredLogger
}

func (l logger) Errorf(format string, args ...any) {
	l.log.Errorf("badger: "+strings.TrimSpace(format), args...)
}

func (l logger) Warningf(format string, args ...any) {
	l.log.Warnf("badger: "+strings.TrimSpace(format), args...)
}

func (l logger) Infof(format string, args ...any) {
	l.log.Debugf("badger: "+strings.TrimSpace(format), args...)
}

func (l logger) Debugf(format string, args ...any) {
	l.log.Debugf("badger: "+strings.TrimSpace(format), args...)
}
