// Package storage defines the ordered, byte keyed store the blockchain
// persists its blocks, tip pointer, unspent outputs and wallets into. The
// concrete engines live in the sub-packages.
package storage

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("key not found")

// Txn represents the set of operations allowed inside a store transaction.
// Keys and values handed to an Iterate callback are copies and can be
// retained by the caller.
type Txn interface {
	Get(key []byte) ([]byte, error)
	Set(key []byte, value []byte) error
	Delete(key []byte) error
	Iterate(prefix []byte, fn func(key []byte, value []byte) error) error
}

// Store represents the behavior required from a storage engine. Update runs
// the function inside a read-write transaction that is committed only if the
// function returns nil. View runs the function against a consistent
// read-only snapshot.
type Store interface {
	View(fn func(txn Txn) error) error
	Update(fn func(txn Txn) error) error
	Close() error
}

// =============================================================================

// IOError is returned when the underlying engine fails. Callers may retry
// the operation at their discretion.
type IOError struct {
	Op  string
	Err error
}

// NewIOError wraps an engine error with the operation that produced it.
func NewIOError(op string, err error) error {
	return &IOError{Op: op, Err: err}
}

// Error implements the error interface.
func (e *IOError) Error() string {
	return fmt.Sprintf("storage %s: %s", e.Op, e.Err)
}

// Unwrap returns the engine error.
func (e *IOError) Unwrap() error {
	return e.Err
}

// IsIOError checks if an error of type IOError exists.
func IsIOError(err error) bool {
	var ioe *IOError
	return errors.As(err, &ioe)
}

// =============================================================================

// WithPrefix builds a key by joining a prefix with the key bytes.
func WithPrefix(prefix []byte, key []byte) []byte {
	k := make([]byte, 0, len(prefix)+len(key))
	k = append(k, prefix...)
	return append(k, key...)
}
