// Package state is the core API for the blockchain and implements all the
// business rules and processing.
package state

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/powledger/node/foundation/blockchain/database"
	"github.com/powledger/node/foundation/blockchain/genesis"
	"github.com/powledger/node/foundation/blockchain/mempool"
	"github.com/powledger/node/foundation/blockchain/peer"
)

// EventHandler defines a function that is called when events
// occur in the processing of persisting blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for mining and consensus.
type Worker interface {
	Shutdown()
	SignalStartMining()
	SignalCancelMining() (done func())
}

// defaultPeerTimeout bounds every call made to a peer.
const defaultPeerTimeout = 10 * time.Second

// =============================================================================

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	NodeAddress string
	Host        string
	Genesis     genesis.Genesis
	Storage     database.Storage
	KnownPeers  *peer.PeerSet
	PeerTimeout time.Duration
	Client      *http.Client
	EvHandler   EventHandler
}

// Stats holds counters for the work the node has done since it started.
type Stats struct {
	BlocksMined       uint64
	MiningCancelled   uint64
	ResolveRuns       uint64
	ChainReplacements uint64
	PeerFailures      uint64
}

// State manages the blockchain database.
type State struct {
	nodeAddress string
	host        string
	evHandler   EventHandler
	peerTimeout time.Duration
	client      *http.Client

	// resolveMu serializes consensus passes.
	resolveMu sync.Mutex

	knownPeers *peer.PeerSet
	genesis    genesis.Genesis
	mempool    *mempool.Mempool
	db         *database.Database

	blocksMined       atomic.Uint64
	miningCancelled   atomic.Uint64
	resolveRuns       atomic.Uint64
	chainReplacements atomic.Uint64
	peerFailures      atomic.Uint64

	Worker Worker
}

// New constructs a new blockchain for data management.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	// Load the chain from storage, creating the genesis block on first run.
	db, err := database.New(cfg.Genesis, cfg.Storage, ev)
	if err != nil {
		return nil, err
	}

	knownPeers := cfg.KnownPeers
	if knownPeers == nil {
		knownPeers = peer.NewPeerSet()
	}

	peerTimeout := cfg.PeerTimeout
	if peerTimeout <= 0 {
		peerTimeout = defaultPeerTimeout
	}

	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}

	state := State{
		nodeAddress: cfg.NodeAddress,
		host:        cfg.Host,
		evHandler:   ev,
		peerTimeout: peerTimeout,
		client:      client,

		knownPeers: knownPeers,
		genesis:    cfg.Genesis,
		mempool:    mempool.New(),
		db:         db,
	}

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the node.

	return &state, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	// Stop all blockchain writing activity.
	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	return s.db.Close()
}

// Stats returns a snapshot of the node's counters.
func (s *State) Stats() Stats {
	return Stats{
		BlocksMined:       s.blocksMined.Load(),
		MiningCancelled:   s.miningCancelled.Load(),
		ResolveRuns:       s.resolveRuns.Load(),
		ChainReplacements: s.chainReplacements.Load(),
		PeerFailures:      s.peerFailures.Load(),
	}
}

// cancelMining stops any mining operation in progress. The returned function
// must be called once the caller's state changes are complete.
func (s *State) cancelMining() (done func()) {
	if s.Worker == nil {
		return func() {}
	}

	return s.Worker.SignalCancelMining()
}
