package state

import (
	"context"
	"errors"

	"github.com/powledger/node/foundation/blockchain/database"
)

// ErrNoTransactions is returned when a block is requested to be created
// and there are no transactions in the mempool.
var ErrNoTransactions = errors.New("no transactions in mempool")

// =============================================================================

// MineNewBlock takes every pending transaction and attempts to create a new
// block with a proper hash that can become the next block in the chain.
func (s *State) MineNewBlock(ctx context.Context) (database.Block, error) {
	s.evHandler("state: MineNewBlock: MINING: check mempool count")

	trans := s.mempool.PickAll()
	if len(trans) == 0 {
		return database.Block{}, ErrNoTransactions
	}

	s.evHandler("state: MineNewBlock: MINING: perform POW: txs[%d]", len(trans))

	// Attempt to create a new block by solving the POW puzzle. This can be cancelled.
	block, err := database.POW(ctx, database.POWArgs{
		PrevBlock:  s.db.LatestBlock(),
		Difficulty: s.genesis.Difficulty,
		Trans:      trans,
		EvHandler:  s.evHandler,
	})
	if err != nil {
		if ctx.Err() != nil {
			s.miningCancelled.Add(1)
		}
		return database.Block{}, err
	}

	// Just check one more time we were not cancelled.
	if ctx.Err() != nil {
		s.miningCancelled.Add(1)
		return database.Block{}, ctx.Err()
	}

	s.evHandler("state: MineNewBlock: MINING: append block[%s]", block)

	// The chain may have been replaced while mining, in which case the
	// block no longer sits on the tip and is rejected here.
	if err := s.db.Append(block); err != nil {
		return database.Block{}, err
	}

	s.mempool.Delete(trans...)
	s.blocksMined.Add(1)

	s.evHandler("viewer: block: mined: index[%d]: hash[%s]: txs[%d]", block.Index, block.Hash, len(block.Transactions))

	return block, nil
}
