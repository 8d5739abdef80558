package storage

import (
	"fmt"
	"sync"

	"github.com/powledger/node/foundation/blockchain/database"
)

// Memory represents the storage implementation for reading and storing
// blocks in memory using a slice. This implements the database.Storage
// interface.
type Memory struct {
	mu     sync.RWMutex
	blocks []database.Block
	hashes map[string]uint64
}

// NewMemory constructs a Memory value for use.
func NewMemory() *Memory {
	return &Memory{
		hashes: make(map[string]uint64),
	}
}

// Close in this implementation has nothing to do since everything
// is in memory.
func (m *Memory) Close() error {
	return nil
}

// Write appends the block. The block must carry the next index.
func (m *Memory) Write(block database.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l := uint64(len(m.blocks))
	switch {
	case block.Index < l:
		return fmt.Errorf("blk[%d]: %w", block.Index, database.ErrBlockExists)
	case block.Index > l:
		return fmt.Errorf("blk[%d]: block is out of order, exp %d", block.Index, l)
	}

	m.blocks = append(m.blocks, block)
	m.hashes[block.Hash] = block.Index

	return nil
}

// GetBlock returns the block at the specified index.
func (m *Memory) GetBlock(index uint64) (database.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if index >= uint64(len(m.blocks)) {
		return database.Block{}, database.ErrNotFound
	}

	return m.blocks[index], nil
}

// GetBlockByHash returns the block with the specified hash.
func (m *Memory) GetBlockByHash(hash string) (database.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	index, exists := m.hashes[hash]
	if !exists {
		return database.Block{}, database.ErrNotFound
	}

	return m.blocks[index], nil
}

// Length returns the number of blocks held.
func (m *Memory) Length() (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return uint64(len(m.blocks)), nil
}

// ReadAll returns a copy of every block, oldest first.
func (m *Memory) ReadAll() ([]database.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	blocks := make([]database.Block, len(m.blocks))
	copy(blocks, m.blocks)

	return blocks, nil
}

// Replace swaps the held blocks for the specified ones.
func (m *Memory) Replace(blocks []database.Block) error {
	hashes := make(map[string]uint64, len(blocks))
	for i, block := range blocks {
		if block.Index != uint64(i) {
			return fmt.Errorf("blk[%d]: block is out of order, exp %d", block.Index, i)
		}
		hashes[block.Hash] = block.Index
	}

	cp := make([]database.Block, len(blocks))
	copy(cp, blocks)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.blocks = cp
	m.hashes = hashes

	return nil
}
