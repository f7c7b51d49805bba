package state

import (
	"github.com/ardanlabs/ledger/foundation/blockchain/peer"
)

// AddKnownPeer provides the ability to add a new peer. This node is never
// added to its own list.
func (s *State) AddKnownPeer(pr peer.Peer) bool {
	if pr.Match(s.host) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	added := s.knownPeers.Add(pr)
	if added {
		s.evHandler("state: AddKnownPeer: peer[%s]", pr.Host)
	}

	return added
}

// RemoveKnownPeer provides the ability to remove a peer.
func (s *State) RemoveKnownPeer(pr peer.Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.knownPeers.Remove(pr)
}

// Reindex rebuilds the unspent outputs from the chain.
func (s *State) Reindex() error {
	err := s.chain.UTXO().Reindex()
	if err != nil {
		s.checkCorruption(err)
	}

	return err
}
