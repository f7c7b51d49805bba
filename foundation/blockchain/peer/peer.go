// Package peer maintains the peer related information such as the set
// of known peers and their status.
package peer

import "sort"

// Peer represents information about a Node in the network.
type Peer struct {
	Host string `json:"host"`
}

// New constructs a new peer value.
func New(host string) Peer {
	return Peer{
		Host: host,
	}
}

// Match validates if the specified host matches this node.
func (p Peer) Match(host string) bool {
	return p.Host == host
}

// =============================================================================

// PeerStatus represents information about the status of any given peer.
type PeerStatus struct {
	TipHash    string `json:"tip_hash"`
	BestHeight int64  `json:"best_height"`
	KnownPeers []Peer `json:"known_peers"`
}

// =============================================================================

// PeerSet represents the data representation to maintain a set of known
// peers. It is not safe for concurrent use, the node state guards it.
type PeerSet struct {
	set map[Peer]struct{}
}

// NewPeerSet constructs a new info set to manage node peer information.
func NewPeerSet() *PeerSet {
	return &PeerSet{
		set: make(map[Peer]struct{}),
	}
}

// Add adds a new node to the set and reports if it was not known.
func (ps *PeerSet) Add(peer Peer) bool {
	if peer.Host == "" {
		return false
	}

	if _, exists := ps.set[peer]; exists {
		return false
	}

	ps.set[peer] = struct{}{}
	return true
}

// Remove removes a node from the set.
func (ps *PeerSet) Remove(peer Peer) {
	delete(ps.set, peer)
}

// Contains reports if the node is in the set.
func (ps *PeerSet) Contains(peer Peer) bool {
	_, exists := ps.set[peer]
	return exists
}

// Len returns the number of known peers.
func (ps *PeerSet) Len() int {
	return len(ps.set)
}

// Copy returns a sorted list of the known peers excluding the host.
func (ps *PeerSet) Copy(host string) []Peer {
	peers := make([]Peer, 0, len(ps.set))
	for peer := range ps.set {
		if !peer.Match(host) {
			peers = append(peers, peer)
		}
	}

	sort.Slice(peers, func(i, j int) bool { return peers[i].Host < peers[j].Host })

	return peers
}
