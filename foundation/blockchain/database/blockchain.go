// Package database handles the blockchain and the index of unspent outputs
// on top of an ordered key/value store. A block, the tip pointer and the
// unspent output changes the block causes are always written in one store
// transaction.
package database

import (
	"bytes"
	"context"
	"encoding/hex"
	"sync"

	"github.com/ardanlabs/ledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/ledger/foundation/blockchain/storage"
	"github.com/pkg/errors"
)

// Set of keys and key prefixes used in the store.
var (
	tipKey      = []byte("tip")
	blockPrefix = []byte("block-")
)

// genesisCoinbaseData is used when the genesis file does not provide any.
// It must be fixed so every node builds the same genesis block.
const genesisCoinbaseData = "ledger genesis block"

// Config represents the configuration required to open a blockchain.
type Config struct {
	Store     storage.Store
	Genesis   genesis.Genesis
	EvHandler func(v string, args ...any)
}

// Blockchain manages the chain of blocks and the unspent output index.
// Appends are serialized by the mutex so only one writer moves the tip.
type Blockchain struct {
	mu sync.Mutex

	store     storage.Store
	genesis   genesis.Genesis
	evHandler func(v string, args ...any)
	utxo      *UTXOSet
}

// Open constructs a blockchain over the store. An empty store is
// bootstrapped with the genesis block built from the genesis settings.
func Open(cfg Config) (*Blockchain, error) {
	ev := cfg.EvHandler
	if ev == nil {
		ev = func(string, ...any) {}
	}

	if err := cfg.Genesis.Validate(); err != nil {
		return nil, err
	}

	bc := Blockchain{
		store:     cfg.Store,
		genesis:   cfg.Genesis,
		evHandler: ev,
	}
	bc.utxo = &UTXOSet{chain: &bc}

	var tip []byte
	err := bc.store.View(func(txn storage.Txn) error {
		var err error
		tip, err = txn.Get(tipKey)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	if tip != nil {
		ev("database: Open: existing chain: tip[%x]", tip)
		return &bc, nil
	}

	block, err := NewGenesisBlock(context.Background(), cfg.Genesis)
	if err != nil {
		return nil, err
	}

	if err := bc.store.Update(func(txn storage.Txn) error {
		return bc.commit(txn, block)
	}); err != nil {
		return nil, err
	}

	ev("database: Open: genesis block created: hash[%x]", block.Hash)

	return &bc, nil
}

// NewGenesisBlock builds the genesis block. The timestamp and coinbase data
// come from the genesis settings so the result is the same on every node.
func NewGenesisBlock(ctx context.Context, g genesis.Genesis) (Block, error) {
	data := g.CoinbaseData
	if data == "" {
		data = genesisCoinbaseData
	}

	coinbase, err := NewCoinbase(g.Address, g.Subsidy, data)
	if err != nil {
		return Block{}, err
	}

	args := POWArgs{
		Height:       0,
		Difficulty:   g.Difficulty,
		Transactions: []Transaction{coinbase},
		Timestamp:    g.Date.UTC().UnixMilli(),
	}

	return POW(ctx, args)
}

// Genesis returns the genesis settings the chain runs with.
func (bc *Blockchain) Genesis() genesis.Genesis {
	return bc.genesis
}

// UTXO returns the unspent output index for the chain.
func (bc *Blockchain) UTXO() *UTXOSet {
	return bc.utxo
}

// Tip returns the most recently appended block.
func (bc *Blockchain) Tip() (Block, error) {
	var block Block
	err := bc.store.View(func(txn storage.Txn) error {
		var err error
		block, err = readTip(txn)
		return err
	})

	return block, err
}

// BestHeight returns the height of the tip.
func (bc *Blockchain) BestHeight() (int64, error) {
	tip, err := bc.Tip()
	if err != nil {
		return 0, err
	}

	return tip.Height, nil
}

// GetBlock returns the block stored under the hash.
func (bc *Blockchain) GetBlock(hash []byte) (Block, error) {
	var block Block
	err := bc.store.View(func(txn storage.Txn) error {
		var err error
		block, err = readBlock(txn, hash)
		return err
	})

	return block, err
}

// BlockHashes returns the hashes of every block from the tip to genesis.
func (bc *Blockchain) BlockHashes() ([][]byte, error) {
	var hashes [][]byte
	err := bc.store.View(func(txn storage.Txn) error {
		return walk(txn, func(b Block) error {
			hashes = append(hashes, b.Hash)
			return nil
		})
	})

	return hashes, err
}

// Blocks returns every block from the tip to genesis.
func (bc *Blockchain) Blocks() ([]Block, error) {
	var blocks []Block
	err := bc.store.View(func(txn storage.Txn) error {
		return walk(txn, func(b Block) error {
			blocks = append(blocks, b)
			return nil
		})
	})

	return blocks, err
}

// FindTransaction searches the chain for the transaction with the id.
func (bc *Blockchain) FindTransaction(id []byte) (Transaction, error) {
	var found *Transaction
	err := bc.store.View(func(txn storage.Txn) error {
		return walk(txn, func(b Block) error {
			for _, tx := range b.Transactions {
				if bytes.Equal(tx.ID, id) {
					found = &tx
					return errStopWalk
				}
			}
			return nil
		})
	})
	if err != nil {
		return Transaction{}, err
	}

	if found == nil {
		return Transaction{}, errors.Wrapf(ErrTransactionNotFound, "transaction %x", id)
	}

	return *found, nil
}

// VerifyTransaction checks the transaction against the current unspent
// outputs. A coinbase is never valid on its own.
func (bc *Blockchain) VerifyTransaction(tx Transaction) error {
	if tx.IsCoinbase() {
		return errors.Wrapf(ErrInvalidTransaction, "%s: coinbase outside of a block", tx.IDHex())
	}

	return bc.store.View(func(txn storage.Txn) error {
		view := newUTXOView(txn)
		prev, err := view.prevOutputs(tx)
		if err != nil {
			return err
		}
		return tx.Verify(prev)
	})
}

// AppendBlock verifies the transactions against the unspent outputs, mines
// a block on top of the tip and commits it. The first transaction must be
// the coinbase. Mining runs without holding the lock. If another block was
// added in the meantime the mined block is discarded with ErrTipChanged.
func (bc *Blockchain) AppendBlock(ctx context.Context, txs []Transaction) (Block, error) {
	bc.mu.Lock()
	var tip Block
	err := bc.store.View(func(txn storage.Txn) error {
		var err error
		if tip, err = readTip(txn); err != nil {
			return err
		}
		return bc.validateTransactions(txn, txs)
	})
	bc.mu.Unlock()

	if err != nil {
		return Block{}, err
	}

	bc.evHandler("database: AppendBlock: mining: height[%d] txs[%d]", tip.Height+1, len(txs))

	args := POWArgs{
		PrevHash:     tip.Hash,
		Height:       tip.Height + 1,
		Difficulty:   bc.genesis.Difficulty,
		Transactions: txs,
		EvHandler:    bc.evHandler,
	}

	block, err := POW(ctx, args)
	if err != nil {
		return Block{}, err
	}

	bc.mu.Lock()
	defer bc.mu.Unlock()

	err = bc.store.Update(func(txn storage.Txn) error {
		current, err := readTipHash(txn)
		if err != nil {
			return err
		}

		if !bytes.Equal(current, tip.Hash) {
			return errors.Wrapf(ErrTipChanged, "mined on %x, tip is %x", tip.Hash, current)
		}

		return bc.commit(txn, block)
	})
	if err != nil {
		return Block{}, err
	}

	bc.evHandler("database: AppendBlock: committed: height[%d] hash[%x]", block.Height, block.Hash)

	return block, nil
}

// AddBlock validates a block mined by another node and commits it if it
// extends the tip.
func (bc *Blockchain) AddBlock(block Block) error {
	bc.evHandler("database: AddBlock: validate: height[%d] hash[%x]", block.Height, block.Hash)

	if err := block.ValidatePOW(); err != nil {
		return err
	}

	if block.Difficulty != bc.genesis.Difficulty {
		return errors.Wrapf(ErrInvalidBlock, "difficulty %d, chain runs at %d", block.Difficulty, bc.genesis.Difficulty)
	}

	bc.mu.Lock()
	defer bc.mu.Unlock()

	err := bc.store.Update(func(txn storage.Txn) error {
		_, err := txn.Get(blockKey(block.Hash))
		switch {
		case err == nil:
			return errors.Wrapf(ErrBlockExists, "block %x", block.Hash)
		case !errors.Is(err, storage.ErrNotFound):
			return err
		}

		tip, err := readTip(txn)
		if err != nil {
			return err
		}

		if block.Height != tip.Height+1 || !bytes.Equal(block.PrevHash, tip.Hash) {
			return errors.Wrapf(ErrNotNextBlock, "block height %d prev %x, tip height %d hash %x", block.Height, block.PrevHash, tip.Height, tip.Hash)
		}

		if block.Timestamp < tip.Timestamp {
			return errors.Wrapf(ErrInvalidBlock, "timestamp %d is before parent %d", block.Timestamp, tip.Timestamp)
		}

		if err := bc.validateTransactions(txn, block.Transactions); err != nil {
			return err
		}

		return bc.commit(txn, block)
	})
	if err != nil {
		return err
	}

	bc.evHandler("database: AddBlock: committed: height[%d] hash[%x]", block.Height, block.Hash)

	return nil
}

// validateTransactions checks a block body against the unspent outputs.
// The first transaction is the coinbase paying the subsidy and every other
// transaction must verify, including against outputs spent earlier in the
// same block.
func (bc *Blockchain) validateTransactions(txn storage.Txn, txs []Transaction) error {
	if len(txs) == 0 || !txs[0].IsCoinbase() {
		return errors.Wrap(ErrInvalidTransaction, "first transaction must be a coinbase")
	}

	view := newUTXOView(txn)

	for i, tx := range txs {
		if i == 0 {
			if len(tx.Outputs) != 1 || tx.Outputs[0].Value != bc.genesis.Subsidy {
				return errors.Wrapf(ErrInvalidTransaction, "%s: coinbase must pay the subsidy %d", tx.IDHex(), bc.genesis.Subsidy)
			}
			if err := tx.Verify(nil); err != nil {
				return err
			}
			view.apply(tx)
			continue
		}

		if tx.IsCoinbase() {
			return errors.Wrapf(ErrInvalidTransaction, "%s: more than one coinbase", tx.IDHex())
		}

		prev, err := view.prevOutputs(tx)
		if err != nil {
			return err
		}

		if err := tx.Verify(prev); err != nil {
			return err
		}

		view.apply(tx)
	}

	return nil
}

// commit writes the block, moves the tip and applies the block to the
// unspent outputs. It must run inside an update transaction.
func (bc *Blockchain) commit(txn storage.Txn, block Block) error {
	data, err := block.Serialize()
	if err != nil {
		return err
	}

	if err := txn.Set(blockKey(block.Hash), data); err != nil {
		return err
	}

	if err := txn.Set(tipKey, block.Hash); err != nil {
		return err
	}

	return applyBlock(txn, block)
}

// =============================================================================

// Iterator walks the chain from a snapshot of the tip back to genesis.
type Iterator struct {
	store   storage.Store
	current []byte
	height  int64
	done    bool
}

// Iterator constructs an iterator starting at the current tip. Blocks
// appended after this call are not visited.
func (bc *Blockchain) Iterator() (*Iterator, error) {
	tip, err := bc.Tip()
	if err != nil {
		return nil, err
	}

	it := Iterator{
		store:   bc.store,
		current: tip.Hash,
		height:  tip.Height,
	}

	return &it, nil
}

// Next returns the next block walking toward genesis.
func (it *Iterator) Next() (Block, error) {
	if it.done {
		return Block{}, errors.New("iterator is done")
	}

	var block Block
	err := it.store.View(func(txn storage.Txn) error {
		var err error
		block, err = readChainBlock(txn, it.current, it.height)
		return err
	})
	if err != nil {
		it.done = true
		return Block{}, err
	}

	it.current = block.PrevHash
	it.height--
	it.done = block.Height == 0

	return block, nil
}

// Done reports if genesis has been returned.
func (it *Iterator) Done() bool {
	return it.done
}

// =============================================================================

var errStopWalk = errors.New("stop walk")

// walk calls fn for every block from the tip to genesis inside the txn.
// Returning errStopWalk from fn ends the walk without an error.
func walk(txn storage.Txn, fn func(b Block) error) error {
	tip, err := readTip(txn)
	if err != nil {
		return err
	}

	block := tip
	for {
		if err := fn(block); err != nil {
			if errors.Is(err, errStopWalk) {
				return nil
			}
			return err
		}

		if block.Height == 0 {
			return nil
		}

		if block, err = readChainBlock(txn, block.PrevHash, block.Height-1); err != nil {
			return err
		}
	}
}

// readChainBlock reads a block reached through the chain. A missing block
// or an unexpected height means the store is corrupt.
func readChainBlock(txn storage.Txn, hash []byte, height int64) (Block, error) {
	block, err := readBlock(txn, hash)
	if err != nil {
		if errors.Is(err, ErrBlockNotFound) {
			return Block{}, errors.Wrapf(ErrChainCorruption, "missing block %x at height %d", hash, height)
		}
		return Block{}, err
	}

	if block.Height != height {
		return Block{}, errors.Wrapf(ErrChainCorruption, "block %x has height %d, exp %d", hash, block.Height, height)
	}

	if height == 0 && len(block.PrevHash) != 0 {
		return Block{}, errors.Wrapf(ErrChainCorruption, "genesis block %x has a previous hash", hash)
	}

	return block, nil
}

func readTipHash(txn storage.Txn) ([]byte, error) {
	hash, err := txn.Get(tipKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errors.Wrap(ErrChainCorruption, "tip pointer missing")
		}
		return nil, err
	}

	return hash, nil
}

func readTip(txn storage.Txn) (Block, error) {
	hash, err := readTipHash(txn)
	if err != nil {
		return Block{}, err
	}

	block, err := readBlock(txn, hash)
	if err != nil {
		if errors.Is(err, ErrBlockNotFound) {
			return Block{}, errors.Wrapf(ErrChainCorruption, "tip block %x missing", hash)
		}
		return Block{}, err
	}

	return block, nil
}

func readBlock(txn storage.Txn, hash []byte) (Block, error) {
	data, err := txn.Get(blockKey(hash))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Block{}, errors.Wrapf(ErrBlockNotFound, "hash %x", hash)
		}
		return Block{}, err
	}

	return DeserializeBlock(data)
}

func blockKey(hash []byte) []byte {
	return storage.WithPrefix(blockPrefix, []byte(hex.EncodeToString(hash)))
}
