package state

import (
	"context"
	"errors"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
)

// Set of errors returned by the mining operation.
var (
	ErrNoTransactions = errors.New("no transactions in mempool")
	ErrNotMiner       = errors.New("node is not configured to mine")
)

// =============================================================================

// MineNewBlock attempts to create a new block with a proper hash that can
// become the next block in the chain. Pending transactions that no longer
// verify are dropped from the mempool first.
func (s *State) MineNewBlock(ctx context.Context) (database.Block, error) {
	if !s.IsMiner() {
		return database.Block{}, ErrNotMiner
	}

	s.evHandler("state: MineNewBlock: MINING: check mempool count")

	var picked []database.Transaction
	s.mu.Lock()
	{
		picked = s.mempool.PickBest(int(s.genesis.TransPerBlock))
	}
	s.mu.Unlock()

	txs := make([]database.Transaction, 0, len(picked))
	var stale []string
	for _, tx := range picked {
		if err := s.chain.VerifyTransaction(tx); err != nil {
			s.evHandler("state: MineNewBlock: MINING: dropping tx[%s]: %s", tx.IDHex(), err)
			stale = append(stale, tx.IDHex())
			continue
		}
		txs = append(txs, tx)
	}

	if len(stale) > 0 {
		s.mu.Lock()
		{
			for _, id := range stale {
				s.mempool.Delete(id)
			}
		}
		s.mu.Unlock()
	}

	if len(txs) == 0 {
		return database.Block{}, ErrNoTransactions
	}

	coinbase, err := database.NewCoinbase(s.minerAddress, s.genesis.Subsidy, "")
	if err != nil {
		return database.Block{}, err
	}

	s.evHandler("state: MineNewBlock: MINING: perform POW: txs[%d]", len(txs))

	// Attempt to create a new block by solving the POW puzzle. This can be cancelled.
	block, err := s.chain.AppendBlock(ctx, append([]database.Transaction{coinbase}, txs...))
	if err != nil {
		s.checkCorruption(err)
		return database.Block{}, err
	}

	s.evHandler("state: MineNewBlock: MINING: update mempool")

	s.mu.Lock()
	{
		s.mempool.RemoveIncluded(block)
	}
	s.mu.Unlock()

	s.blockEvent(block)

	return block, nil
}

// PendingMining reports if enough transactions are pending to mine.
func (s *State) PendingMining() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.IsMiner() && s.mempool.Count() >= s.mineThreshold
}
