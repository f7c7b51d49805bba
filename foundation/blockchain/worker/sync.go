package worker

// Sync announces this node's height to every known peer. Peers that are
// ahead answer with their block inventory, which starts the download.
func (w *Worker) Sync() {
	w.evHandler("worker: sync: started")
	defer w.evHandler("worker: sync: completed")

	for _, pr := range w.state.RetrieveKnownPeers() {
		if err := w.state.NetSendVersion(w.ctx, pr); err != nil {
			w.evHandler("worker: sync: version: %s: ERROR: %s", pr.Host, err)
		}
	}
}
