package state

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/peer"
	"github.com/ardanlabs/ledger/foundation/blockchain/wire"
)

// Handle processes a message received from another node. Shared state is
// only touched while the lock is held and every reply is sent after the
// lock is released.
func (s *State) Handle(ctx context.Context, msg wire.Message) error {
	s.evHandler("state: Handle: %s: from[%s]", msg.Command(), wire.From(msg))

	switch m := msg.(type) {
	case wire.Version:
		return s.handleVersion(ctx, m)
	case wire.GetBlocks:
		return s.handleGetBlocks(ctx, m)
	case wire.Inv:
		return s.handleInv(ctx, m)
	case wire.GetData:
		return s.handleGetData(ctx, m)
	case wire.Block:
		return s.handleBlock(ctx, m)
	case wire.Tx:
		return s.handleTx(ctx, m)
	case wire.Addr:
		return s.handleAddr(m)
	}

	return fmt.Errorf("unsupported message %T", msg)
}

// handleVersion compares heights with the sender. A sender that is ahead
// is asked for its blocks, a sender that is behind is told our height.
func (s *State) handleVersion(ctx context.Context, m wire.Version) error {
	s.AddKnownPeer(peer.New(m.AddrFrom))

	height, err := s.chain.BestHeight()
	if err != nil {
		s.checkCorruption(err)
		return err
	}

	switch {
	case m.BestHeight > height:
		s.evHandler("state: handleVersion: peer[%s] ahead: height[%d] local[%d]", m.AddrFrom, m.BestHeight, height)
		return s.send(ctx, m.AddrFrom, wire.GetBlocks{AddrFrom: s.host})

	case m.BestHeight < height:
		return s.NetSendVersion(ctx, peer.New(m.AddrFrom))
	}

	return nil
}

// handleGetBlocks responds with every block hash from the tip to genesis.
func (s *State) handleGetBlocks(ctx context.Context, m wire.GetBlocks) error {
	hashes, err := s.chain.BlockHashes()
	if err != nil {
		s.checkCorruption(err)
		return err
	}

	items := make([]string, len(hashes))
	for i, hash := range hashes {
		items[i] = hex.EncodeToString(hash)
	}

	return s.send(ctx, m.AddrFrom, wire.Inv{AddrFrom: s.host, Kind: wire.KindBlock, Items: items})
}

// handleInv requests the advertised items this node does not have. Blocks
// are requested one at a time starting with the oldest.
func (s *State) handleInv(ctx context.Context, m wire.Inv) error {
	switch m.Kind {
	case wire.KindBlock:
		var unseen []string
		for i := len(m.Items) - 1; i >= 0; i-- {
			hash, err := hex.DecodeString(m.Items[i])
			if err != nil {
				return fmt.Errorf("inv block hash %q: %w", m.Items[i], err)
			}

			if _, err := s.chain.GetBlock(hash); errors.Is(err, database.ErrBlockNotFound) {
				unseen = append(unseen, m.Items[i])
			}
		}

		if len(unseen) == 0 {
			return nil
		}

		s.mu.Lock()
		{
			s.blocksInTransit = unseen
		}
		s.mu.Unlock()

		s.evHandler("state: handleInv: blocks in transit[%d]", len(unseen))

		return s.send(ctx, m.AddrFrom, wire.GetData{AddrFrom: s.host, Kind: wire.KindBlock, ID: unseen[0]})

	case wire.KindTx:
		var unseen []string
		s.mu.Lock()
		{
			for _, id := range m.Items {
				if !s.mempool.Exists(id) {
					unseen = append(unseen, id)
				}
			}
		}
		s.mu.Unlock()

		for _, id := range unseen {
			if err := s.send(ctx, m.AddrFrom, wire.GetData{AddrFrom: s.host, Kind: wire.KindTx, ID: id}); err != nil {
				return err
			}
		}

		return nil
	}

	return fmt.Errorf("unknown inv kind %q", m.Kind)
}

// handleGetData responds with the requested block or pending transaction.
func (s *State) handleGetData(ctx context.Context, m wire.GetData) error {
	switch m.Kind {
	case wire.KindBlock:
		hash, err := hex.DecodeString(m.ID)
		if err != nil {
			return fmt.Errorf("getdata block hash %q: %w", m.ID, err)
		}

		block, err := s.chain.GetBlock(hash)
		if err != nil {
			return err
		}

		return s.send(ctx, m.AddrFrom, wire.Block{AddrFrom: s.host, Block: block})

	case wire.KindTx:
		var tx database.Transaction
		var exists bool
		s.mu.Lock()
		{
			tx, exists = s.mempool.Get(m.ID)
		}
		s.mu.Unlock()

		if !exists {
			s.evHandler("state: handleGetData: tx[%s] not in mempool", m.ID)
			return nil
		}

		return s.send(ctx, m.AddrFrom, wire.Tx{AddrFrom: s.host, Transaction: tx})
	}

	return fmt.Errorf("unknown getdata kind %q", m.Kind)
}

// handleBlock adds a block from a peer to the chain. Any mining in progress
// is cancelled. The next block in transit is requested, or the unspent
// outputs are reindexed once the download completes.
func (s *State) handleBlock(ctx context.Context, m wire.Block) error {
	done := s.Worker.SignalCancelMining()
	defer done()

	block := m.Block
	hashHex := block.HashHex()

	if err := s.chain.AddBlock(block); err != nil {
		switch {
		case errors.Is(err, database.ErrBlockExists):
			s.evHandler("state: handleBlock: block[%s] already known", hashHex)

		default:
			s.checkCorruption(err)

			s.mu.Lock()
			{
				s.blocksInTransit = nil
			}
			s.mu.Unlock()

			return err
		}
	}

	var next string
	var pending int
	s.mu.Lock()
	{
		s.mempool.RemoveIncluded(block)
		pending = s.mempool.Count()

		transit := s.blocksInTransit[:0]
		for _, hash := range s.blocksInTransit {
			if hash != hashHex {
				transit = append(transit, hash)
			}
		}
		s.blocksInTransit = transit

		if len(transit) > 0 {
			next = transit[0]
		}
	}
	s.mu.Unlock()

	s.blockEvent(block)

	if next != "" {
		return s.send(ctx, m.AddrFrom, wire.GetData{AddrFrom: s.host, Kind: wire.KindBlock, ID: next})
	}

	if err := s.chain.UTXO().Reindex(); err != nil {
		s.checkCorruption(err)
		return err
	}

	if s.IsMiner() && pending >= s.mineThreshold {
		s.Worker.SignalStartMining()
	}

	return nil
}

// handleTx accepts a transaction from a peer.
func (s *State) handleTx(_ context.Context, m wire.Tx) error {
	return s.upsertTransaction(m.Transaction, m.AddrFrom)
}

// handleAddr merges the shared peers into the known peers.
func (s *State) handleAddr(m wire.Addr) error {
	for _, host := range m.Peers {
		s.AddKnownPeer(peer.New(host))
	}

	return nil
}

// =============================================================================

// NetSendVersion tells the peer the height of this node.
func (s *State) NetSendVersion(ctx context.Context, pr peer.Peer) error {
	height, err := s.chain.BestHeight()
	if err != nil {
		s.checkCorruption(err)
		return err
	}

	msg := wire.Version{
		AddrFrom:   s.host,
		Version:    wire.ProtocolVersion,
		BestHeight: height,
	}

	return s.send(ctx, pr.Host, msg)
}

// NetSendAddr shares the known peers with the peer.
func (s *State) NetSendAddr(ctx context.Context, pr peer.Peer) error {
	peers := s.RetrieveKnownPeers()

	hosts := make([]string, 0, len(peers)+1)
	hosts = append(hosts, s.host)
	for _, p := range peers {
		if !p.Match(pr.Host) {
			hosts = append(hosts, p.Host)
		}
	}

	return s.send(ctx, pr.Host, wire.Addr{AddrFrom: s.host, Peers: hosts})
}

// NetSendBlockToPeers advertises a newly mined block to all known peers.
func (s *State) NetSendBlockToPeers(ctx context.Context, block database.Block) {
	s.evHandler("state: NetSendBlockToPeers: started")
	defer s.evHandler("state: NetSendBlockToPeers: completed")

	msg := wire.Inv{AddrFrom: s.host, Kind: wire.KindBlock, Items: []string{block.HashHex()}}

	for _, pr := range s.RetrieveKnownPeers() {
		if err := s.send(ctx, pr.Host, msg); err != nil {
			s.evHandler("state: NetSendBlockToPeers: WARNING: %s: %s", pr.Host, err)
		}
	}
}

// NetSendTxToPeers advertises a transaction to all known peers except the
// one it came from.
func (s *State) NetSendTxToPeers(ctx context.Context, tx database.Transaction, exclude string) {
	s.evHandler("state: NetSendTxToPeers: started")
	defer s.evHandler("state: NetSendTxToPeers: completed")

	msg := wire.Inv{AddrFrom: s.host, Kind: wire.KindTx, Items: []string{tx.IDHex()}}

	for _, pr := range s.RetrieveKnownPeers() {
		if pr.Match(exclude) {
			continue
		}

		if err := s.send(ctx, pr.Host, msg); err != nil {
			s.evHandler("state: NetSendTxToPeers: WARNING: %s: %s", pr.Host, err)
		}
	}
}

// send delivers a message through the transport.
func (s *State) send(ctx context.Context, host string, msg wire.Message) error {
	if s.transport == nil {
		return errors.New("no transport configured")
	}

	s.evHandler("state: send: %s: to[%s]", msg.Command(), host)

	if err := s.transport.Send(ctx, host, msg); err != nil {
		return fmt.Errorf("send %s to %s: %w", msg.Command(), host, err)
	}

	return nil
}

// blockEvent provides a specific event about a new block in the chain for
// the websocket subscribers.
func (s *State) blockEvent(block database.Block) {
	s.evHandler(`viewer: block: {"hash":%q,"height":%d,"txs":%d}`, block.HashHex(), block.Height, len(block.Transactions))
}
