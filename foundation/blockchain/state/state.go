// Package state is the core API for the blockchain node. It owns the set of
// known peers, the mempool and the blocks being downloaded, and implements
// the rules for the messages nodes exchange.
package state

import (
	"context"
	"errors"
	"sync"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/ledger/foundation/blockchain/mempool"
	"github.com/ardanlabs/ledger/foundation/blockchain/peer"
	"github.com/ardanlabs/ledger/foundation/blockchain/wire"
)

// EventHandler defines a function that is called when events
// occur in the processing of persisting blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for mining, peer updates, and transaction sharing.
type Worker interface {
	Shutdown()
	Sync()
	SignalStartMining()
	SignalCancelMining() (done func())
	SignalShareTx(tx database.Transaction, exclude string)
}

// Transport represents the behavior required to deliver a message to the
// node listening on the host.
type Transport interface {
	Send(ctx context.Context, host string, msg wire.Message) error
}

// =============================================================================

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	Host          string // Address other nodes reach this node on.
	MinerAddress  string // Empty if this node does not mine.
	MineThreshold int    // Pending transactions required to start mining.
	Blockchain    *database.Blockchain
	KnownPeers    *peer.PeerSet
	Transport     Transport
	EvHandler     EventHandler
	Halt          func(err error) // Called when the chain is found corrupted.
}

// State manages the blockchain node.
type State struct {
	host          string
	minerAddress  string
	mineThreshold int
	evHandler     EventHandler
	halt          func(err error)
	genesis       genesis.Genesis
	chain         *database.Blockchain
	transport     Transport

	mu              sync.Mutex
	knownPeers      *peer.PeerSet
	mempool         *mempool.Mempool
	blocksInTransit []string

	Worker Worker
}

// New constructs a new node state for data management.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	knownPeers := cfg.KnownPeers
	if knownPeers == nil {
		knownPeers = peer.NewPeerSet()
	}
	knownPeers.Remove(peer.New(cfg.Host))

	threshold := cfg.MineThreshold
	if threshold <= 0 {
		threshold = 1
	}

	state := State{
		host:          cfg.Host,
		minerAddress:  cfg.MinerAddress,
		mineThreshold: threshold,
		evHandler:     ev,
		halt:          cfg.Halt,
		genesis:       cfg.Blockchain.Genesis(),
		chain:         cfg.Blockchain,
		transport:     cfg.Transport,

		knownPeers: knownPeers,
		mempool:    mempool.New(),

		Worker: noopWorker{},
	}

	// The Worker is replaced by the call to worker.Run which will assign
	// itself and start everything up and running for the node.

	return &state, nil
}

// Shutdown cleanly brings the node down. The store is closed by the owner.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	// Stop all blockchain writing activity.
	s.Worker.Shutdown()

	return nil
}

// IsMiner reports if this node mines blocks.
func (s *State) IsMiner() bool {
	return s.minerAddress != ""
}

// checkCorruption halts the node when the chain can no longer be trusted.
func (s *State) checkCorruption(err error) {
	if !errors.Is(err, database.ErrChainCorruption) {
		return
	}

	s.evHandler("state: HALT: %s", err)
	if s.halt != nil {
		s.halt(err)
	}
}

// =============================================================================

// noopWorker is used until a worker registers itself.
type noopWorker struct{}

func (noopWorker) Shutdown()                                  {}
func (noopWorker) Sync()                                      {}
func (noopWorker) SignalStartMining()                         {}
func (noopWorker) SignalCancelMining() (done func())          { return func() {} }
func (noopWorker) SignalShareTx(database.Transaction, string) {}
