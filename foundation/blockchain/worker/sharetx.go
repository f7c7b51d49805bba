package worker

// shareTxOperations handles sending new user transactions.
func (w *Worker) shareTxOperations() {
	w.evHandler("worker: shareTxOperations: G started")
	defer w.evHandler("worker: shareTxOperations: G completed")

	for {
		select {
		case st := <-w.txSharing:
			if !w.isShutdown() {
				w.state.NetSendTxToPeers(w.ctx, st.tx, st.exclude)
			}
		case <-w.shut:
			w.evHandler("worker: shareTxOperations: received shut signal")
			return
		}
	}
}
