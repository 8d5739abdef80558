// Package worker implements mining, peer updates, and consensus for the
// blockchain.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/powledger/node/foundation/blockchain/state"
)

// Default intervals for the background operations.
const (
	defaultMiningInterval    = 5 * time.Minute
	defaultConsensusInterval = time.Minute
)

// Config represents the timing of the background operations.
type Config struct {
	MiningInterval    time.Duration
	ConsensusInterval time.Duration
}

// =============================================================================

// Worker manages the POW and consensus workflows for the blockchain.
type Worker struct {
	state           *state.State
	wg              sync.WaitGroup
	miningTicker    *time.Ticker
	consensusTicker *time.Ticker
	shut            chan struct{}
	startMining     chan bool
	cancelMining    chan chan struct{}
	evHandler       state.EventHandler
}

// Run creates a worker, registers the worker with the state package, and
// starts up all the background processes.
func Run(st *state.State, cfg Config, evHandler state.EventHandler) *Worker {
	if cfg.MiningInterval <= 0 {
		cfg.MiningInterval = defaultMiningInterval
	}
	if cfg.ConsensusInterval <= 0 {
		cfg.ConsensusInterval = defaultConsensusInterval
	}
	if evHandler == nil {
		evHandler = func(string, ...any) {}
	}

	w := Worker{
		state:           st,
		miningTicker:    time.NewTicker(cfg.MiningInterval),
		consensusTicker: time.NewTicker(cfg.ConsensusInterval),
		shut:            make(chan struct{}),
		startMining:     make(chan bool, 1),
		cancelMining:    make(chan chan struct{}, 1),
		evHandler:       evHandler,
	}

	// Register this worker with the state package.
	st.Worker = &w

	// Update this node before starting any support G's.
	w.Sync()

	// Load the set of operations we need to run.
	operations := []func(){
		w.miningOperations,
		w.consensusOperations,
	}

	// Set waitgroup to match the number of G's we need for the set
	// of operations we have.
	g := len(operations)
	w.wg.Add(g)

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	// Start all the operational G's.
	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	// Wait for the G's to report they are running.
	for i := 0; i < g; i++ {
		<-hasStarted
	}

	return &w
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutine performing work.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: stop tickers")
	w.miningTicker.Stop()
	w.consensusTicker.Stop()

	w.evHandler("worker: shutdown: signal cancel mining")
	done := w.SignalCancelMining()
	done()

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	w.wg.Wait()
}

// SignalStartMining starts a mining operation. If there is already a signal
// pending in the channel, just return since a mining operation will start.
func (w *Worker) SignalStartMining() {
	select {
	case w.startMining <- true:
	default:
	}
	w.evHandler("worker: SignalStartMining: mining signaled")
}

// SignalCancelMining signals the G executing the runMiningOperation function
// to stop immediately. That G will not return from the function until done
// is called. This allows the caller to complete any state changes before a new
// mining operation takes place.
func (w *Worker) SignalCancelMining() (done func()) {
	wait := make(chan struct{})

	select {
	case w.cancelMining <- wait:
	default:
	}
	w.evHandler("worker: SignalCancelMining: MINING: CANCEL: signaled")

	return func() { close(wait) }
}

// =============================================================================

// shutdownContext returns a context that is cancelled once shutdown is
// signaled, so calls to peers do not hold up Shutdown.
func (w *Worker) shutdownContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		select {
		case <-w.shut:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
