// Package worker runs the background operations of a node: proof of work
// mining, telling peers about this node, and advertising new transactions.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/state"
)

// defaultPeerInterval represents the interval of telling known peers about
// this node and its height when none is configured.
const defaultPeerInterval = time.Minute

// maxTxShareRequests represents the max number of pending tx network share
// requests that can be outstanding before share requests are dropped.
const maxTxShareRequests = 100

// =============================================================================

// shareTx is a transaction to advertise and the peer it came from.
type shareTx struct {
	tx      database.Transaction
	exclude string
}

// Worker owns the goroutines performing node operations.
type Worker struct {
	state        *state.State
	wg           sync.WaitGroup
	ticker       *time.Ticker
	ctx          context.Context
	cancel       context.CancelFunc
	shut         chan struct{}
	startMining  chan bool
	cancelMining chan chan struct{}
	txSharing    chan shareTx
	evHandler    state.EventHandler
}

// Run creates a worker, registers the worker with the state package, and
// starts up all the background processes.
func Run(st *state.State, peerInterval time.Duration, evHandler state.EventHandler) *Worker {
	if peerInterval <= 0 {
		peerInterval = defaultPeerInterval
	}

	if evHandler == nil {
		evHandler = func(string, ...any) {}
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := Worker{
		state:        st,
		ticker:       time.NewTicker(peerInterval),
		ctx:          ctx,
		cancel:       cancel,
		shut:         make(chan struct{}),
		startMining:  make(chan bool, 1),
		cancelMining: make(chan chan struct{}, 1),
		txSharing:    make(chan shareTx, maxTxShareRequests),
		evHandler:    evHandler,
	}

	// State calls back into the worker when blocks and transactions arrive.
	st.Worker = &w

	// Tell the known peers our height so a node behind starts downloading.
	w.Sync()

	operations := []func(){
		w.peerOperations,
		w.miningOperations,
		w.shareTxOperations,
	}

	w.wg.Add(len(operations))
	started := make(chan struct{})

	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			started <- struct{}{}
			op()
		}(op)
	}

	// Return only once every operation is running.
	for range operations {
		<-started
	}

	// Pick up transactions that were pending before the worker started.
	if st.PendingMining() {
		w.SignalStartMining()
	}

	return &w
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutine performing work.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: stop ticker")
	w.ticker.Stop()

	w.evHandler("worker: shutdown: signal cancel mining")
	done := w.SignalCancelMining()
	done()

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	w.cancel()
	w.wg.Wait()
}

// SignalStartMining requests a mining attempt. Nodes without a miner address
// ignore it and a request already queued absorbs this one.
func (w *Worker) SignalStartMining() {
	if !w.state.IsMiner() {
		return
	}

	select {
	case w.startMining <- true:
	default:
	}
	w.evHandler("worker: SignalStartMining: mining signaled")
}

// SignalCancelMining stops a mining attempt in progress. The attempt does not
// finish until the returned done func is called, so the caller can commit a
// peer block before the next attempt reads the tip.
func (w *Worker) SignalCancelMining() (done func()) {
	wait := make(chan struct{})

	select {
	case w.cancelMining <- wait:
		w.evHandler("worker: SignalCancelMining: cancel signaled")
	default:
	}

	return func() { close(wait) }
}

// SignalShareTx queues a transaction to advertise to peers other than
// exclude. The transaction is dropped when the queue is full.
func (w *Worker) SignalShareTx(tx database.Transaction, exclude string) {
	select {
	case w.txSharing <- shareTx{tx: tx, exclude: exclude}:
		w.evHandler("worker: SignalShareTx: share Tx signaled")
	default:
		w.evHandler("worker: SignalShareTx: queue full: tx[%s] dropped", tx.IDHex())
	}
}

// =============================================================================

// isShutdown reports whether Shutdown has been called.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
