package state

import (
	"github.com/powledger/node/foundation/blockchain/database"
)

// RegisterPeer parses the address and adds it to the set of known peers.
// It reports whether the peer was new.
func (s *State) RegisterPeer(address string) (bool, error) {
	added, err := s.knownPeers.Register(address)
	if err != nil {
		return false, err
	}

	if added {
		s.evHandler("state: RegisterPeer: added peer[%s]", address)
	}

	return added, nil
}

// SubmitTransaction verifies the signature on the transaction and adds it to
// the mempool. The number of pending transactions is returned.
func (s *State) SubmitTransaction(signedTx database.SignedTx) (int, error) {
	if err := signedTx.Validate(); err != nil {
		return 0, err
	}

	n := s.mempool.Upsert(signedTx.Tx)
	s.evHandler("viewer: tx: pending: %s: total[%d]", signedTx.Tx, n)

	return n, nil
}

// UpsertMempool adds a transaction to the mempool without a signature check.
// It is used for transactions produced by the node itself.
func (s *State) UpsertMempool(tx database.Tx) int {
	return s.mempool.Upsert(tx)
}
