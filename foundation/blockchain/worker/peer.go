package worker

// peerOperations handles telling known peers about this node.
func (w *Worker) peerOperations() {
	w.evHandler("worker: peerOperations: G started")
	defer w.evHandler("worker: peerOperations: G completed")

	for {
		select {
		case <-w.ticker.C:
			if !w.isShutdown() {
				w.runPeersOperation()
			}
		case <-w.shut:
			w.evHandler("worker: peerOperations: received shut signal")
			return
		}
	}
}

// runPeersOperation sends this node's height and peer list to every known
// peer. A peer that can't be reached is dropped from the list.
func (w *Worker) runPeersOperation() {
	w.evHandler("worker: runPeersOperation: started")
	defer w.evHandler("worker: runPeersOperation: completed")

	for _, pr := range w.state.RetrieveKnownPeers() {
		if err := w.state.NetSendVersion(w.ctx, pr); err != nil {
			w.evHandler("worker: runPeersOperation: version: %s: ERROR: %s", pr.Host, err)
			w.state.RemoveKnownPeer(pr)
			continue
		}

		if err := w.state.NetSendAddr(w.ctx, pr); err != nil {
			w.evHandler("worker: runPeersOperation: addr: %s: ERROR: %s", pr.Host, err)
		}
	}
}
