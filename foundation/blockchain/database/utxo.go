package database

import (
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/ardanlabs/ledger/foundation/blockchain/storage"
	"github.com/pkg/errors"
)

// utxoPrefix is the key prefix for the unspent outputs of a transaction.
var utxoPrefix = []byte("utxo-")

// UTXOEntry is an unspent output along with its index in the transaction.
type UTXOEntry struct {
	Index  int      `json:"index"`
	Output TXOutput `json:"output"`
}

// UTXOSet is the index of unspent outputs derived from the chain. It is
// kept current by every committed block and can be rebuilt from scratch
// with Reindex.
type UTXOSet struct {
	chain *Blockchain
}

// reindexBatchSize is the number of index keys written per store
// transaction during Reindex. Badger limits the size of one transaction.
var reindexBatchSize = 1000

// Reindex rebuilds the index by walking the chain from the tip to genesis.
// Spends are seen before the outputs they consume, so an output is added
// only if no later input references it. The rebuilt index is written in
// batches: existing keys are overwritten and keys of fully spent
// transactions are deleted.
func (u *UTXOSet) Reindex() error {
	u.chain.mu.Lock()
	defer u.chain.mu.Unlock()

	u.chain.evHandler("database: Reindex: started")

	unspent := make(map[string][]UTXOEntry)
	var stale []string

	err := u.chain.store.View(func(txn storage.Txn) error {
		spent := make(map[OutPoint]bool)

		err := walk(txn, func(b Block) error {
			for i := len(b.Transactions) - 1; i >= 0; i-- {
				tx := b.Transactions[i]
				txID := tx.IDHex()

				for idx, out := range tx.Outputs {
					if spent[OutPoint{TxID: txID, Index: idx}] {
						continue
					}
					unspent[txID] = append(unspent[txID], UTXOEntry{Index: idx, Output: out})
				}

				if tx.IsCoinbase() {
					continue
				}

				for _, in := range tx.Inputs {
					spent[in.OutPoint()] = true
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		return txn.Iterate(utxoPrefix, func(key []byte, _ []byte) error {
			txID := strings.TrimPrefix(string(key), string(utxoPrefix))
			if _, exists := unspent[txID]; !exists {
				stale = append(stale, txID)
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	txIDs := make([]string, 0, len(unspent))
	for txID := range unspent {
		txIDs = append(txIDs, txID)
	}
	sort.Strings(txIDs)

	// Stale keys are removed before the rebuilt entries are written.
	ops := make([]func(txn storage.Txn) error, 0, len(stale)+len(txIDs))
	for _, txID := range stale {
		key := storage.WithPrefix(utxoPrefix, []byte(txID))
		ops = append(ops, func(txn storage.Txn) error {
			return txn.Delete(key)
		})
	}
	for _, txID := range txIDs {
		id, err := hex.DecodeString(txID)
		if err != nil {
			return errors.Wrapf(ErrChainCorruption, "transaction id %q: %s", txID, err)
		}
		entries := unspent[txID]
		ops = append(ops, func(txn storage.Txn) error {
			return writeEntries(txn, id, entries)
		})
	}

	for len(ops) > 0 {
		n := min(reindexBatchSize, len(ops))
		batch := ops[:n]
		ops = ops[n:]

		err := u.chain.store.Update(func(txn storage.Txn) error {
			for _, op := range batch {
				if err := op(txn); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	u.chain.evHandler("database: Reindex: completed: transactions[%d] removed[%d]", len(txIDs), len(stale))

	return nil
}

// Update applies a block to the index on its own. Blocks committed through
// the blockchain are already applied, this is for rebuilding an index one
// block at a time.
func (u *UTXOSet) Update(block Block) error {
	u.chain.mu.Lock()
	defer u.chain.mu.Unlock()

	return u.chain.store.Update(func(txn storage.Txn) error {
		return applyBlock(txn, block)
	})
}

// FindSpendable walks the outputs locked to the hash in (txid, index) order
// and accumulates value until the amount is covered.
func (u *UTXOSet) FindSpendable(pubKeyHash []byte, amount int64) (int64, []UnspentOutput, error) {
	unspent, err := u.Unspent(pubKeyHash)
	if err != nil {
		return 0, nil, err
	}

	return unspent.FindSpendable(pubKeyHash, amount)
}

// Unspent returns every unspent output locked to the hash ordered by
// transaction id then index.
func (u *UTXOSet) Unspent(pubKeyHash []byte) (UnspentList, error) {
	var list UnspentList
	err := u.chain.store.View(func(txn storage.Txn) error {
		return iterateEntries(txn, func(txID string, entries []UTXOEntry) error {
			for _, e := range entries {
				if e.Output.IsLockedWith(pubKeyHash) {
					list = append(list, UnspentOutput{
						OutPoint: OutPoint{TxID: txID, Index: e.Index},
						Output:   e.Output,
					})
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	list.Sort()
	return list, nil
}

// BalanceOf sums the unspent outputs locked to the hash.
func (u *UTXOSet) BalanceOf(pubKeyHash []byte) (int64, error) {
	list, err := u.Unspent(pubKeyHash)
	if err != nil {
		return 0, err
	}

	return list.Balance(pubKeyHash), nil
}

// Count returns the number of transactions with unspent outputs.
func (u *UTXOSet) Count() (int, error) {
	var count int
	err := u.chain.store.View(func(txn storage.Txn) error {
		return iterateEntries(txn, func(string, []UTXOEntry) error {
			count++
			return nil
		})
	})

	return count, err
}

// Snapshot returns every unspent output in the index.
func (u *UTXOSet) Snapshot() (map[OutPoint]TXOutput, error) {
	snapshot := make(map[OutPoint]TXOutput)
	err := u.chain.store.View(func(txn storage.Txn) error {
		return iterateEntries(txn, func(txID string, entries []UTXOEntry) error {
			for _, e := range entries {
				snapshot[OutPoint{TxID: txID, Index: e.Index}] = e.Output
			}
			return nil
		})
	})

	return snapshot, err
}

// PrevOutputs returns the unspent outputs the transaction inputs reference.
func (u *UTXOSet) PrevOutputs(tx Transaction) (map[OutPoint]TXOutput, error) {
	var prev map[OutPoint]TXOutput
	err := u.chain.store.View(func(txn storage.Txn) error {
		var err error
		prev, err = newUTXOView(txn).prevOutputs(tx)
		return err
	})

	return prev, err
}

// =============================================================================

// utxoView overlays the changes of transactions not yet committed on top
// of the stored index. It catches two transactions in one block spending
// the same output.
type utxoView struct {
	txn     storage.Txn
	spent   map[OutPoint]bool
	created map[OutPoint]TXOutput
}

func newUTXOView(txn storage.Txn) *utxoView {
	return &utxoView{
		txn:     txn,
		spent:   make(map[OutPoint]bool),
		created: make(map[OutPoint]TXOutput),
	}
}

// prevOutputs resolves every input of the transaction to the output it
// spends. A missing or already spent output invalidates the transaction.
func (v *utxoView) prevOutputs(tx Transaction) (map[OutPoint]TXOutput, error) {
	prev := make(map[OutPoint]TXOutput, len(tx.Inputs))

	for i, in := range tx.Inputs {
		op := in.OutPoint()

		if v.spent[op] {
			return nil, errors.Wrapf(ErrInvalidTransaction, "%s: input %d: %s already spent", tx.IDHex(), i, op)
		}

		if out, exists := v.created[op]; exists {
			prev[op] = out
			continue
		}

		entries, err := readEntries(v.txn, in.TxID)
		if err != nil {
			return nil, err
		}

		var found bool
		for _, e := range entries {
			if e.Index == in.OutIndex {
				prev[op] = e.Output
				found = true
				break
			}
		}

		if !found {
			return nil, errors.Wrapf(ErrInvalidTransaction, "%s: input %d: %s is not unspent", tx.IDHex(), i, op)
		}
	}

	return prev, nil
}

// apply records the spends and outputs of the transaction in the overlay.
func (v *utxoView) apply(tx Transaction) {
	if !tx.IsCoinbase() {
		for _, in := range tx.Inputs {
			op := in.OutPoint()
			v.spent[op] = true
			delete(v.created, op)
		}
	}

	for idx, out := range tx.Outputs {
		v.created[NewOutPoint(tx.ID, idx)] = out
	}
}

// =============================================================================

// applyBlock removes the outputs the block spends and adds the outputs it
// creates, in transaction order.
func applyBlock(txn storage.Txn, block Block) error {
	for _, tx := range block.Transactions {
		if !tx.IsCoinbase() {
			for _, in := range tx.Inputs {
				if err := spendOutput(txn, in.TxID, in.OutIndex); err != nil {
					return err
				}
			}
		}

		entries := make([]UTXOEntry, len(tx.Outputs))
		for idx, out := range tx.Outputs {
			entries[idx] = UTXOEntry{Index: idx, Output: out}
		}

		if err := writeEntries(txn, tx.ID, entries); err != nil {
			return err
		}
	}

	return nil
}

func spendOutput(txn storage.Txn, txID []byte, index int) error {
	entries, err := readEntries(txn, txID)
	if err != nil {
		return err
	}

	remaining := entries[:0]
	for _, e := range entries {
		if e.Index != index {
			remaining = append(remaining, e)
		}
	}

	if len(remaining) == 0 {
		return txn.Delete(utxoKey(txID))
	}

	return writeEntries(txn, txID, remaining)
}

func readEntries(txn storage.Txn, txID []byte) ([]UTXOEntry, error) {
	data, err := txn.Get(utxoKey(txID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var entries []UTXOEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errors.Wrapf(ErrChainCorruption, "utxo entry %x: %s", txID, err)
	}

	return entries, nil
}

func writeEntries(txn storage.Txn, txID []byte, entries []UTXOEntry) error {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Index < entries[j].Index })

	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}

	return txn.Set(utxoKey(txID), data)
}

func iterateEntries(txn storage.Txn, fn func(txID string, entries []UTXOEntry) error) error {
	return txn.Iterate(utxoPrefix, func(key []byte, value []byte) error {
		var entries []UTXOEntry
		if err := json.Unmarshal(value, &entries); err != nil {
			return errors.Wrapf(ErrChainCorruption, "utxo entry %s: %s", key, err)
		}

		return fn(strings.TrimPrefix(string(key), string(utxoPrefix)), entries)
	})
}

func utxoKey(txID []byte) []byte {
	return storage.WithPrefix(utxoPrefix, []byte(hex.EncodeToString(txID)))
}
