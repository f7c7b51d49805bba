package database

import "errors"

// Set of errors produced by the ledger.
var (
	// ErrInvalidTransaction means a transaction failed verification and must
	// not be appended or propagated.
	ErrInvalidTransaction = errors.New("invalid transaction")

	// ErrInvalidSignature means an input signature or public key does not
	// match the output it claims.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrInsufficientFunds means the spendable outputs do not cover the
	// amount. No transaction is emitted.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrChainCorruption means a block referenced by the tip or by a
	// previous hash is missing or unreadable. This is not recoverable.
	ErrChainCorruption = errors.New("chain corruption")

	// ErrMiningExhausted means the nonce space was searched without finding
	// a hash below the target.
	ErrMiningExhausted = errors.New("nonce space exhausted")

	// ErrBlockNotFound means no block is stored for the hash.
	ErrBlockNotFound = errors.New("block not found")

	// ErrTransactionNotFound means the transaction is not part of the block
	// or chain searched.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrInvalidBlock means the block failed proof of work or structural
	// validation.
	ErrInvalidBlock = errors.New("invalid block")

	// ErrNotNextBlock means the block does not extend the current tip.
	ErrNotNextBlock = errors.New("block does not extend the tip")

	// ErrBlockExists means the block is already part of the chain.
	ErrBlockExists = errors.New("block already exists")

	// ErrTipChanged means another block was appended while a block was
	// being mined. The mined block is discarded.
	ErrTipChanged = errors.New("tip changed while mining")
)

// IsRejected reports if the error means the data itself is bad, as opposed
// to the node failing to process it.
func IsRejected(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidTransaction),
		errors.Is(err, ErrInvalidSignature),
		errors.Is(err, ErrInvalidBlock),
		errors.Is(err, ErrNotNextBlock):
		return true
	}

	return false
}
