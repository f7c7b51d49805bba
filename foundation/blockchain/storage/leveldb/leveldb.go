// Package leveldb implements the storage engine on top of goleveldb. It can
// run against a directory on disk or entirely in memory.
package leveldb

import (
	"github.com/ardanlabs/ledger/foundation/blockchain/storage"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	ldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// errReadOnly is returned when a write is attempted inside View.
var errReadOnly = errors.New("write inside a read-only transaction")

// DB represents a leveldb database. This implements the storage.Store
// interface.
type DB struct {
	ldb *leveldb.DB
}

// Open opens or creates a database at the specified path. If the database
// is corrupted, a recovery is attempted before giving up.
func Open(path string) (*DB, error) {
	ldb, err := leveldb.OpenFile(path, nil)
	if ldberrors.IsCorrupted(err) {
		ldb, err = leveldb.RecoverFile(path, nil)
		if err != nil {
			return nil, storage.NewIOError("recover", errors.Wrapf(err, "path %s", path))
		}
	}

	if err != nil {
		return nil, storage.NewIOError("open", errors.Wrapf(err, "path %s", path))
	}

	return &DB{ldb: ldb}, nil
}

// NewMemory constructs a database that lives only in memory.
func NewMemory() (*DB, error) {
	ldb, err := leveldb.Open(ldbstorage.NewMemStorage(), nil)
	if err != nil {
		return nil, storage.NewIOError("open", err)
	}

	return &DB{ldb: ldb}, nil
}

// Close releases the database.
func (db *DB) Close() error {
	if err := db.ldb.Close(); err != nil {
		return storage.NewIOError("close", err)
	}

	return nil
}

// View runs the function against a snapshot of the database.
func (db *DB) View(fn func(txn storage.Txn) error) error {
	snap, err := db.ldb.GetSnapshot()
	if err != nil {
		return storage.NewIOError("snapshot", err)
	}
	defer snap.Release()

	return fn(&snapshotTxn{snap: snap})
}

// Update runs the function inside a leveldb transaction. The transaction
// blocks other writers until it is committed or discarded.
func (db *DB) Update(fn func(txn storage.Txn) error) error {
	tr, err := db.ldb.OpenTransaction()
	if err != nil {
		return storage.NewIOError("begin", err)
	}

	if err := fn(&writeTxn{tr: tr}); err != nil {
		tr.Discard()
		return err
	}

	if err := tr.Commit(); err != nil {
		tr.Discard()
		return storage.NewIOError("commit", err)
	}

	return nil
}

// =============================================================================

// writeTxn adapts a leveldb transaction to the storage.Txn interface.
type writeTxn struct {
	tr *leveldb.Transaction
}

func (t *writeTxn) Get(key []byte) ([]byte, error) {
	value, err := t.tr.Get(key, nil)
	return get(value, err)
}

func (t *writeTxn) Set(key []byte, value []byte) error {
	if err := t.tr.Put(key, value, nil); err != nil {
		return storage.NewIOError("set", err)
	}

	return nil
}

func (t *writeTxn) Delete(key []byte) error {
	if err := t.tr.Delete(key, nil); err != nil {
		return storage.NewIOError("delete", err)
	}

	return nil
}

func (t *writeTxn) Iterate(prefix []byte, fn func(key []byte, value []byte) error) error {
	return iterate(t.tr.NewIterator(util.BytesPrefix(prefix), nil), fn)
}

// =============================================================================

// snapshotTxn adapts a leveldb snapshot to the storage.Txn interface.
type snapshotTxn struct {
	snap *leveldb.Snapshot
}

func (t *snapshotTxn) Get(key []byte) ([]byte, error) {
	value, err := t.snap.Get(key, nil)
	return get(value, err)
}

func (t *snapshotTxn) Set(key []byte, value []byte) error {
	return errReadOnly
}

func (t *snapshotTxn) Delete(key []byte) error {
	return errReadOnly
}

func (t *snapshotTxn) Iterate(prefix []byte, fn func(key []byte, value []byte) error) error {
	return iterate(t.snap.NewIterator(util.BytesPrefix(prefix), nil), fn)
}

// =============================================================================

func get(value []byte, err error) ([]byte, error) {
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, storage.NewIOError("get", err)
	}

	return value, nil
}

func iterate(it iterator.Iterator, fn func(key []byte, value []byte) error) error {
	defer it.Release()

	for it.Next() {
		key := append([]byte{}, it.Key()...)
		value := append([]byte{}, it.Value()...)

		if err := fn(key, value); err != nil {
			return err
		}
	}

	if err := it.Error(); err != nil {
		return storage.NewIOError("iterate", err)
	}

	return nil
}
