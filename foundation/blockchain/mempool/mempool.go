// Package mempool maintains the transactions accepted by the node that are
// not yet part of a block.
package mempool

import (
	"sort"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
)

// Mempool represents a cache of pending transactions keyed by the hex form
// of the transaction id. It is not safe for concurrent use, the node state
// guards it with its own lock.
type Mempool struct {
	pool map[string]database.Transaction
}

// New constructs a new mempool.
func New() *Mempool {
	return &Mempool{
		pool: make(map[string]database.Transaction),
	}
}

// Count returns the current number of transactions in the pool.
func (mp *Mempool) Count() int {
	return len(mp.pool)
}

// Upsert adds or replaces a transaction in the mempool and returns the new
// count.
func (mp *Mempool) Upsert(tx database.Transaction) int {
	mp.pool[tx.IDHex()] = tx

	return len(mp.pool)
}

// Delete removes a transaction from the mempool.
func (mp *Mempool) Delete(id string) {
	delete(mp.pool, id)
}

// Get returns the transaction with the hex encoded id.
func (mp *Mempool) Get(id string) (database.Transaction, bool) {
	tx, exists := mp.pool[id]
	return tx, exists
}

// Exists reports if the transaction is in the pool.
func (mp *Mempool) Exists(id string) bool {
	_, exists := mp.pool[id]
	return exists
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.pool = make(map[string]database.Transaction)
}

// Copy returns every transaction in txid order.
func (mp *Mempool) Copy() []database.Transaction {
	return mp.PickBest(-1)
}

// PickBest returns the next set of transactions for the next block in txid
// order. Pass -1 for all the transactions.
func (mp *Mempool) PickBest(howMany int) []database.Transaction {
	ids := make([]string, 0, len(mp.pool))
	for id := range mp.pool {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if howMany < 0 || howMany > len(ids) {
		howMany = len(ids)
	}

	txs := make([]database.Transaction, 0, howMany)
	for _, id := range ids[:howMany] {
		txs = append(txs, mp.pool[id])
	}

	return txs
}

// Conflicts returns the id of a pending transaction that already spends one
// of the outputs the transaction spends.
func (mp *Mempool) Conflicts(tx database.Transaction) (string, bool) {
	spends := make(map[database.OutPoint]bool, len(tx.Inputs))
	for _, in := range tx.Inputs {
		spends[in.OutPoint()] = true
	}

	for id, pending := range mp.pool {
		if id == tx.IDHex() {
			continue
		}

		for _, in := range pending.Inputs {
			if spends[in.OutPoint()] {
				return id, true
			}
		}
	}

	return "", false
}

// Spent returns every output spent by a pending transaction.
func (mp *Mempool) Spent() map[database.OutPoint]bool {
	spent := make(map[database.OutPoint]bool)
	for _, tx := range mp.pool {
		if tx.IsCoinbase() {
			continue
		}
		for _, in := range tx.Inputs {
			spent[in.OutPoint()] = true
		}
	}

	return spent
}

// RemoveIncluded removes every transaction that is part of the block or
// that spends an output the block spends.
func (mp *Mempool) RemoveIncluded(block database.Block) {
	for _, tx := range block.Transactions {
		mp.Delete(tx.IDHex())
	}

	for _, tx := range block.Transactions {
		if tx.IsCoinbase() {
			continue
		}
		for {
			id, conflict := mp.Conflicts(tx)
			if !conflict {
				break
			}
			mp.Delete(id)
		}
	}
}
