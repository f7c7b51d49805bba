package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ardanlabs/ledger/foundation/blockchain/state"
)

// miningOperations waits for mining signals until the worker shuts down.
func (w *Worker) miningOperations() {
	w.evHandler("worker: miningOperations: G started")
	defer w.evHandler("worker: miningOperations: G completed")

	for {
		select {
		case <-w.startMining:
			if w.isShutdown() {
				continue
			}
			w.runMiningOperation()

		case <-w.shut:
			w.evHandler("worker: miningOperations: received shut signal")
			return
		}
	}
}

// runMiningOperation mines one block from the mempool on top of the current
// tip. A block arriving from a peer cancels the attempt and the peer's
// handler holds this function open until its commit is done.
func (w *Worker) runMiningOperation() {
	if !w.state.PendingMining() {
		w.evHandler("worker: mining: skipped: mempool[%d]", w.state.QueryMempoolLength())
		return
	}

	w.evHandler("worker: mining: started")
	defer w.evHandler("worker: mining: completed")

	// Whatever is left in the mempool gets another attempt.
	defer w.resignalMining()

	// A cancel request left over from a previous attempt is stale.
	select {
	case <-w.cancelMining:
		w.evHandler("worker: mining: drained stale cancel")
	default:
	}

	ctx, cancel := context.WithCancel(w.ctx)
	defer cancel()

	var release chan struct{}
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		defer cancel()
		release = w.watchCancel(ctx)
	}()

	go func() {
		defer wg.Done()
		defer cancel()
		w.mine(ctx)
	}()

	wg.Wait()

	// The peer handler that cancelled mining is still committing its block.
	if release != nil {
		w.evHandler("worker: mining: waiting on peer block commit")
		<-release
		w.evHandler("worker: mining: peer block committed")
	}
}

// watchCancel blocks until mining is cancelled by a peer block or the
// attempt finishes. It returns the channel the canceller closes when it is
// done with the chain, or nil when the attempt finished on its own.
func (w *Worker) watchCancel(ctx context.Context) chan struct{} {
	select {
	case release := <-w.cancelMining:
		w.evHandler("worker: mining: cancel requested")
		return release
	case <-ctx.Done():
		return nil
	}
}

// mine performs the proof of work and advertises a found block.
func (w *Worker) mine(ctx context.Context) {
	start := time.Now()
	block, err := w.state.MineNewBlock(ctx)
	w.evHandler("worker: mining: duration[%v]", time.Since(start))

	if err != nil {
		switch {
		case errors.Is(err, state.ErrNoTransactions):
			w.evHandler("worker: mining: WARNING: mempool drained before mining")
		case ctx.Err() != nil:
			w.evHandler("worker: mining: cancelled")
		default:
			w.evHandler("worker: mining: ERROR: %s", err)
		}
		return
	}

	w.evHandler("worker: mining: block[%s] height[%d]", block.HashHex(), block.Height)

	// Peers pull the block with getdata after seeing the inventory.
	w.state.NetSendBlockToPeers(w.ctx, block)
}

// resignalMining asks for another attempt when transactions remain.
func (w *Worker) resignalMining() {
	if w.isShutdown() || !w.state.PendingMining() {
		return
	}

	w.evHandler("worker: mining: signal next attempt: mempool[%d]", w.state.QueryMempoolLength())
	w.SignalStartMining()
}
