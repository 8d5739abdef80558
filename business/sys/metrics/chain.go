package metrics

import (
	"github.com/powledger/node/foundation/blockchain/peer"
	"github.com/powledger/node/foundation/blockchain/state"
	"github.com/prometheus/client_golang/prometheus"
)

// Node is the behavior the chain collector reads on every scrape.
type Node interface {
	Stats() state.Stats
	Length() uint64
	MempoolLength() int
	KnownPeers() []peer.Peer
}

// Chain collects the chain, mining and consensus metrics from the node.
type Chain struct {
	node Node

	length            *prometheus.Desc
	mempool           *prometheus.Desc
	peers             *prometheus.Desc
	blocksMined       *prometheus.Desc
	miningCancelled   *prometheus.Desc
	resolveRuns       *prometheus.Desc
	chainReplacements *prometheus.Desc
	peerFailures      *prometheus.Desc
}

// NewChain constructs a collector over the node.
func NewChain(node Node) *Chain {
	desc := func(name string, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "chain", name), help, nil, nil)
	}

	return &Chain{
		node:              node,
		length:            desc("length", "number of blocks in the chain"),
		mempool:           desc("mempool_transactions", "number of pending transactions"),
		peers:             desc("known_peers", "number of known peers"),
		blocksMined:       desc("blocks_mined_total", "number of blocks mined by this node"),
		miningCancelled:   desc("mining_cancelled_total", "number of mining operations cancelled"),
		resolveRuns:       desc("resolve_runs_total", "number of consensus passes"),
		chainReplacements: desc("replacements_total", "number of times the chain was replaced by a peer's chain"),
		peerFailures:      desc("peer_failures_total", "number of failed calls to peers"),
	}
}

// Describe implements the prometheus.Collector interface.
func (c *Chain) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.length
	ch <- c.mempool
	ch <- c.peers
	ch <- c.blocksMined
	ch <- c.miningCancelled
	ch <- c.resolveRuns
	ch <- c.chainReplacements
	ch <- c.peerFailures
}

// Collect implements the prometheus.Collector interface.
func (c *Chain) Collect(ch chan<- prometheus.Metric) {
	stats := c.node.Stats()

	ch <- prometheus.MustNewConstMetric(c.length, prometheus.GaugeValue, float64(c.node.Length()))
	ch <- prometheus.MustNewConstMetric(c.mempool, prometheus.GaugeValue, float64(c.node.MempoolLength()))
	ch <- prometheus.MustNewConstMetric(c.peers, prometheus.GaugeValue, float64(len(c.node.KnownPeers())))
	ch <- prometheus.MustNewConstMetric(c.blocksMined, prometheus.CounterValue, float64(stats.BlocksMined))
	ch <- prometheus.MustNewConstMetric(c.miningCancelled, prometheus.CounterValue, float64(stats.MiningCancelled))
	ch <- prometheus.MustNewConstMetric(c.resolveRuns, prometheus.CounterValue, float64(stats.ResolveRuns))
	ch <- prometheus.MustNewConstMetric(c.chainReplacements, prometheus.CounterValue, float64(stats.ChainReplacements))
	ch <- prometheus.MustNewConstMetric(c.peerFailures, prometheus.CounterValue, float64(stats.PeerFailures))
}
