// Package mempool maintains the mempool for the blockchain. Transactions are
// kept in the order they arrived and every pending transaction goes into the
// next block.
package mempool

import (
	"sync"

	"github.com/gammazero/deque"
	"github.com/powledger/node/foundation/blockchain/database"
)

// Mempool represents a cache of pending transactions in arrival order with
// a second key on the transaction hash.
type Mempool struct {
	mu     sync.RWMutex
	queue  deque.Deque
	hashes map[string]struct{}
}

// New constructs a new mempool.
func New() *Mempool {
	return &Mempool{
		hashes: make(map[string]struct{}),
	}
}

// Count returns the current number of transaction in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return mp.queue.Len()
}

// Upsert adds a transaction to the back of the pool. A transaction already
// in the pool keeps its place. The number of pending transactions is
// returned.
func (mp *Mempool) Upsert(tx database.Tx) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	key := tx.HashHex()
	if _, exists := mp.hashes[key]; !exists {
		mp.hashes[key] = struct{}{}
		mp.queue.PushBack(tx)
	}

	return mp.queue.Len()
}

// Delete removes the specified transactions from the pool.
func (mp *Mempool) Delete(txs ...database.Tx) {
	remove := make(map[string]struct{}, len(txs))
	for _, tx := range txs {
		remove[tx.HashHex()] = struct{}{}
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	n := mp.queue.Len()
	for i := 0; i < n; i++ {
		tx := mp.queue.PopFront().(database.Tx)

		key := tx.HashHex()
		if _, exists := remove[key]; exists {
			delete(mp.hashes, key)
			continue
		}

		mp.queue.PushBack(tx)
	}
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.queue.Clear()
	mp.hashes = make(map[string]struct{})
}

// PickAll returns a copy of every pending transaction in arrival order.
func (mp *Mempool) PickAll() []database.Tx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	txs := make([]database.Tx, mp.queue.Len())
	for i := range txs {
		txs[i] = mp.queue.At(i).(database.Tx)
	}

	return txs
}
