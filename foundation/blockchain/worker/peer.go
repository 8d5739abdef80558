package worker

// consensusOperations handles peer discovery and resolving the chain against
// the network on every tick of the consensus interval.
func (w *Worker) consensusOperations() {
	w.evHandler("worker: consensusOperations: G started")
	defer w.evHandler("worker: consensusOperations: G completed")

	for {
		select {
		case <-w.consensusTicker.C:
			if !w.isShutdown() {
				w.runConsensusOperation()
			}
		case <-w.shut:
			w.evHandler("worker: consensusOperations: received shut signal")
			return
		}
	}
}

// runConsensusOperation updates the peer list and replaces the chain when a
// peer holds a longer valid one.
func (w *Worker) runConsensusOperation() {
	w.evHandler("worker: runConsensusOperation: started")
	defer w.evHandler("worker: runConsensusOperation: completed")

	ctx, cancel := w.shutdownContext()
	defer cancel()

	w.state.NetDiscoverPeers(ctx)

	replaced, err := w.state.Resolve(ctx)
	if err != nil {
		w.evHandler("worker: runConsensusOperation: ERROR: %s", err)
		return
	}

	if replaced {
		w.evHandler("worker: runConsensusOperation: chain replaced: length[%d]", w.state.Length())
	}
}
