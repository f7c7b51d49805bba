package state

import (
	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/pkg/errors"
)

// UpsertWalletTransaction accepts a transaction from a wallet for inclusion.
func (s *State) UpsertWalletTransaction(tx database.Transaction) error {
	return s.upsertTransaction(tx, "")
}

// =============================================================================

// upsertTransaction verifies the transaction against the unspent outputs
// and the pending transactions, adds it to the mempool, shares it with the
// peers other than the sender and starts mining once enough are pending.
func (s *State) upsertTransaction(tx database.Transaction, from string) error {
	id := tx.IDHex()

	s.mu.Lock()
	exists := s.mempool.Exists(id)
	s.mu.Unlock()

	if exists {
		s.evHandler("state: upsertTransaction: tx[%s] already pending", id)
		return nil
	}

	if err := s.chain.VerifyTransaction(tx); err != nil {
		s.checkCorruption(err)
		return err
	}

	var count int
	s.mu.Lock()
	conflict, found := s.mempool.Conflicts(tx)
	if !found {
		count = s.mempool.Upsert(tx)
	}
	s.mu.Unlock()

	if found {
		return errors.Wrapf(database.ErrInvalidTransaction, "%s: spends an output pending in %s", id, conflict)
	}

	s.evHandler("state: upsertTransaction: tx[%s] added: pending[%d]", id, count)

	s.Worker.SignalShareTx(tx, from)

	if s.IsMiner() && count >= s.mineThreshold {
		s.Worker.SignalStartMining()
	}

	return nil
}
