package state

import (
	"errors"

	"github.com/powledger/node/foundation/blockchain/database"
	"github.com/powledger/node/foundation/blockchain/genesis"
	"github.com/powledger/node/foundation/blockchain/merkle"
	"github.com/powledger/node/foundation/blockchain/peer"
)

// ErrTxNotFound is returned when a transaction is not part of a block.
var ErrTxNotFound = errors.New("transaction not found in block")

// TxProof is the inclusion proof for a transaction in a block.
type TxProof struct {
	BlockIndex uint64   `json:"block_index"`
	MerkleRoot string   `json:"merkle_root"`
	TxHash     string   `json:"tx_hash"`
	Proof      []string `json:"proof"`
	Order      []int64  `json:"order"`
}

// Verify recomputes the merkle root from the proof.
func (p TxProof) Verify() bool {
	return merkle.VerifyProof(p.MerkleRoot, p.TxHash, p.Proof, p.Order)
}

// =============================================================================

// Host returns the network location of this node.
func (s *State) Host() string {
	return s.host
}

// NodeAddress returns the account address of this node.
func (s *State) NodeAddress() string {
	return s.nodeAddress
}

// Genesis returns a copy of the genesis information.
func (s *State) Genesis() genesis.Genesis {
	return s.genesis
}

// Length returns the number of blocks in the chain.
func (s *State) Length() uint64 {
	return s.db.Length()
}

// LatestBlock returns the block at the tip of the chain.
func (s *State) LatestBlock() database.Block {
	return s.db.LatestBlock()
}

// Chain returns up to pageSize blocks starting with genesis. A pageSize of
// 0 returns the whole chain.
func (s *State) Chain(pageSize uint64) []database.Block {
	return s.db.Chain(pageSize)
}

// Headers returns up to pageSize headers starting with genesis.
func (s *State) Headers(pageSize uint64) []database.HeaderData {
	return s.db.Headers(pageSize)
}

// BlockByIndex returns the block at the specified index.
func (s *State) BlockByIndex(index uint64) (database.Block, error) {
	return s.db.GetBlock(index)
}

// BlockByHash returns the block with the specified hash.
func (s *State) BlockByHash(hash string) (database.Block, error) {
	return s.db.GetBlockByHash(hash)
}

// TxProof builds the merkle inclusion proof for the transaction with the
// specified hash in the block at the specified index.
func (s *State) TxProof(index uint64, txHash string) (TxProof, error) {
	block, err := s.db.GetBlock(index)
	if err != nil {
		return TxProof{}, err
	}

	var tx database.Tx
	var found bool
	for _, t := range block.Transactions {
		if t.HashHex() == txHash {
			tx, found = t, true
			break
		}
	}

	if !found {
		return TxProof{}, ErrTxNotFound
	}

	tree, err := block.Tree()
	if err != nil {
		return TxProof{}, err
	}

	proof, order, err := tree.Proof(tx)
	if err != nil {
		return TxProof{}, err
	}

	return TxProof{
		BlockIndex: block.Index,
		MerkleRoot: tree.RootHex(),
		TxHash:     txHash,
		Proof:      proof,
		Order:      order,
	}, nil
}

// Mempool returns a copy of the pending transactions in arrival order.
func (s *State) Mempool() []database.Tx {
	return s.mempool.PickAll()
}

// MempoolLength returns the current length of the mempool.
func (s *State) MempoolLength() int {
	return s.mempool.Count()
}

// KnownPeers returns the known peers other than this node.
func (s *State) KnownPeers() []peer.Peer {
	return s.knownPeers.Copy(s.host)
}

// Status returns the information a peer reports about itself.
func (s *State) Status() peer.PeerStatus {
	latest := s.db.LatestBlock()

	return peer.PeerStatus{
		LatestBlockHash:  latest.Hash,
		LatestBlockIndex: latest.Index,
		Length:           s.db.Length(),
		KnownPeers:       s.KnownPeers(),
	}
}
