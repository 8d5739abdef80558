// Package peer maintains the peer related information such as the set
// of known peers and their status.
package peer

import (
	"errors"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/powledger/node/foundation/blockchain/database"
)

// ErrInvalidAddress is returned when no network location can be extracted
// from an address.
var ErrInvalidAddress = errors.New("invalid peer address")

// Peer represents information about a Node in the network.
type Peer struct {
	Host string `json:"host"`
}

// New constructs a new peer value.
func New(host string) Peer {
	return Peer{
		Host: host,
	}
}

// Parse extracts the network location from a URL or a bare host:port
// string. "http://127.0.0.1:8001/chain" and "127.0.0.1:8001" both name the
// peer "127.0.0.1:8001".
func Parse(address string) (Peer, error) {
	address = strings.TrimSpace(address)

	host := address
	if strings.Contains(address, "://") {
		u, err := url.Parse(address)
		if err != nil {
			return Peer{}, ErrInvalidAddress
		}
		host = u.Host
	}

	host = strings.TrimSuffix(host, "/")
	if host == "" || strings.ContainsAny(host, "/ ") {
		return Peer{}, ErrInvalidAddress
	}

	return New(host), nil
}

// Match validates if the specified host matches this node.
func (p Peer) Match(host string) bool {
	return p.Host == host
}

// =============================================================================

// PeerStatus represents information about the status of any given peer.
type PeerStatus struct {
	LatestBlockHash  string `json:"latest_block_hash"`
	LatestBlockIndex uint64 `json:"latest_block_index"`
	Length           uint64 `json:"length"`
	KnownPeers       []Peer `json:"known_peers"`
}

// HeadersPage is the response to a request for a page of headers.
type HeadersPage struct {
	Length  uint64                `json:"length"`
	Headers []database.HeaderData `json:"headers"`
}

// ChainPage is the response to a request for a page of blocks.
type ChainPage struct {
	Length uint64           `json:"length"`
	Chain  []database.Block `json:"chain"`
}

// =============================================================================

// PeerSet represents the data representation to maintain a set of known peers.
type PeerSet struct {
	mu  sync.RWMutex
	set map[Peer]struct{}
}

// NewPeerSet constructs a new info set to manage node peer information.
func NewPeerSet() *PeerSet {
	return &PeerSet{
		set: make(map[Peer]struct{}),
	}
}

// Register parses the address and adds the peer to the set. It reports
// whether the peer is new; registering a known peer is a no-op.
func (ps *PeerSet) Register(address string) (bool, error) {
	peer, err := Parse(address)
	if err != nil {
		return false, err
	}

	return ps.Add(peer), nil
}

// Add adds a new node to the set.
func (ps *PeerSet) Add(peer Peer) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	_, exists := ps.set[peer]
	if !exists {
		ps.set[peer] = struct{}{}
		return true
	}

	return false
}

// Len returns the number of known peers.
func (ps *PeerSet) Len() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	return len(ps.set)
}

// Copy returns the known peers other than the specified host, sorted by
// host.
func (ps *PeerSet) Copy(host string) []Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	peers := make([]Peer, 0, len(ps.set))
	for peer := range ps.set {
		if !peer.Match(host) {
			peers = append(peers, peer)
		}
	}

	sort.Slice(peers, func(i, j int) bool {
		return peers[i].Host < peers[j].Host
	})

	return peers
}
