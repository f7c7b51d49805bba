package state

import (
	"encoding/hex"
	"fmt"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/ledger/foundation/blockchain/peer"
	"github.com/ardanlabs/ledger/foundation/blockchain/wallet"
)

// RetrieveHost returns a copy of host information.
func (s *State) RetrieveHost() string {
	return s.host
}

// RetrieveGenesis returns a copy of the genesis information.
func (s *State) RetrieveGenesis() genesis.Genesis {
	return s.genesis
}

// RetrieveMempool returns a copy of the mempool in txid order.
func (s *State) RetrieveMempool() []database.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mempool.Copy()
}

// RetrieveKnownPeers retrieves a copy of the known peer list.
func (s *State) RetrieveKnownPeers() []peer.Peer {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.knownPeers.Copy(s.host)
}

// RetrieveBlocksInTransit returns the hashes still to be downloaded.
func (s *State) RetrieveBlocksInTransit() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.blocksInTransit...)
}

// =============================================================================

// QueryMempoolLength returns the current length of the mempool.
func (s *State) QueryMempoolLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mempool.Count()
}

// QueryStatus returns the status this node reports to its peers.
func (s *State) QueryStatus() (peer.PeerStatus, error) {
	tip, err := s.chain.Tip()
	if err != nil {
		s.checkCorruption(err)
		return peer.PeerStatus{}, err
	}

	status := peer.PeerStatus{
		TipHash:    tip.HashHex(),
		BestHeight: tip.Height,
		KnownPeers: s.RetrieveKnownPeers(),
	}

	return status, nil
}

// QueryBalance returns the confirmed balance of the address.
func (s *State) QueryBalance(address string) (int64, error) {
	pubKeyHash, err := wallet.PubKeyHashFromAddress(address)
	if err != nil {
		return 0, err
	}

	return s.chain.UTXO().BalanceOf(pubKeyHash)
}

// QueryUnspent returns the unspent outputs of the address that are not
// already spent by a pending transaction.
func (s *State) QueryUnspent(address string) (database.UnspentList, error) {
	pubKeyHash, err := wallet.PubKeyHashFromAddress(address)
	if err != nil {
		return nil, err
	}

	unspent, err := s.chain.UTXO().Unspent(pubKeyHash)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	spent := s.mempool.Spent()
	s.mu.Unlock()

	available := make(database.UnspentList, 0, len(unspent))
	for _, u := range unspent {
		if !spent[u.OutPoint] {
			available = append(available, u)
		}
	}

	return available, nil
}

// QueryBlocks returns every block from the tip to genesis.
func (s *State) QueryBlocks() ([]database.Block, error) {
	blocks, err := s.chain.Blocks()
	if err != nil {
		s.checkCorruption(err)
	}

	return blocks, err
}

// QueryBlock returns the block with the hex encoded hash.
func (s *State) QueryBlock(hashHex string) (database.Block, error) {
	hash, err := hex.DecodeString(hashHex)
	if err != nil {
		return database.Block{}, fmt.Errorf("block hash %q: %w", hashHex, err)
	}

	return s.chain.GetBlock(hash)
}

// QueryProof returns the merkle proof that the transaction is part of the
// block, both given as hex.
func (s *State) QueryProof(blockHashHex string, txIDHex string) (database.MerkleProof, error) {
	block, err := s.QueryBlock(blockHashHex)
	if err != nil {
		return database.MerkleProof{}, err
	}

	txID, err := hex.DecodeString(txIDHex)
	if err != nil {
		return database.MerkleProof{}, fmt.Errorf("transaction id %q: %w", txIDHex, err)
	}

	return block.Proof(txID)
}
