package worker

// Sync announces this node to the known peers, picks up the peers they know
// about, and resolves the chain against the network.
func (w *Worker) Sync() {
	w.evHandler("worker: sync: started")
	defer w.evHandler("worker: sync: completed")

	ctx, cancel := w.shutdownContext()
	defer cancel()

	for _, peer := range w.state.KnownPeers() {
		if err := w.state.NetSendRegister(ctx, peer); err != nil {
			w.evHandler("worker: sync: register: %s: ERROR: %s", peer.Host, err)
		}
	}

	w.state.NetDiscoverPeers(ctx)

	if _, err := w.state.Resolve(ctx); err != nil {
		w.evHandler("worker: sync: resolve: ERROR: %s", err)
	}
}
