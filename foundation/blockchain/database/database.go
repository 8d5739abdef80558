// Package database handles all the lower level support for maintaining the
// blockchain: the block and transaction model, mining, validation and the
// in memory mirror of the chain kept in front of the storage.
package database

import (
	"errors"
	"fmt"
	"sync"

	"github.com/powledger/node/foundation/blockchain/genesis"
)

// Set of error variables for storage and append operations.
var (
	ErrBlockExists = errors.New("block already exists")
	ErrNotFound    = errors.New("block not found")
	ErrStaleBlock  = errors.New("block was not built on the current tip")

	// ErrChainNotLonger is returned by Replace when the local chain grew to
	// at least the length of the replacement while it was being fetched.
	ErrChainNotLonger = errors.New("replacement chain is not longer than the local chain")
)

// Storage interface represents the behavior required to be implemented by any
// package providing support for storing and reading the blockchain.
type Storage interface {
	Write(block Block) error
	GetBlock(index uint64) (Block, error)
	GetBlockByHash(hash string) (Block, error)
	Length() (uint64, error)
	ReadAll() ([]Block, error)
	Replace(blocks []Block) error
	Close() error
}

// =============================================================================

// Database manages the chain. It keeps an in memory mirror of the blocks in
// storage that is only changed by appending to the tip or by replacing the
// chain as a whole.
type Database struct {
	mu sync.RWMutex

	genesis genesis.Genesis
	chain   []Block
	storage Storage
	ev      func(v string, args ...any)
}

// New constructs a new database and loads the chain from storage. If the
// storage is empty the genesis block is mined and written. A chain in
// storage that fails validation is an error.
func New(gen genesis.Genesis, storage Storage, ev func(v string, args ...any)) (*Database, error) {
	if ev == nil {
		ev = func(string, ...any) {}
	}

	db := Database{
		genesis: gen,
		storage: storage,
		ev:      ev,
	}

	blocks, err := storage.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading chain: %w", err)
	}

	if len(blocks) == 0 {
		ev("database: New: creating genesis block: difficulty[%d]", gen.Difficulty)

		block, err := NewGenesisBlock(gen)
		if err != nil {
			return nil, fmt.Errorf("mining genesis: %w", err)
		}

		if err := storage.Write(block); err != nil && !errors.Is(err, ErrBlockExists) {
			return nil, fmt.Errorf("writing genesis: %w", err)
		}

		blocks = []Block{block}
	}

	if err := ValidateChain(blocks, ev); err != nil {
		return nil, fmt.Errorf("validating chain in storage: %w", err)
	}

	db.chain = blocks

	return &db, nil
}

// Close closes the storage.
func (db *Database) Close() error {
	return db.storage.Close()
}

// Genesis returns the genesis settings the chain was created with.
func (db *Database) Genesis() genesis.Genesis {
	return db.genesis
}

// Length returns the number of blocks in the chain.
func (db *Database) Length() uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return uint64(len(db.chain))
}

// LatestBlock returns the block at the tip of the chain.
func (db *Database) LatestBlock() Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.chain[len(db.chain)-1].clone()
}

// Append validates the block against the current tip and adds it to the
// chain. A block mined on top of a block that is no longer the tip is
// rejected with ErrStaleBlock. A block storage already holds is not an error.
func (db *Database) Append(block Block) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tip := db.chain[len(db.chain)-1]

	if block.Index != tip.Index+1 || block.Header.PreviousHash != tip.Hash {
		return fmt.Errorf("blk[%d]: prev[%s]: tip[%d:%s]: %w", block.Index, block.Header.PreviousHash, tip.Index, tip.Hash, ErrStaleBlock)
	}

	if err := validateBlock(&tip, block); err != nil {
		return err
	}

	if err := db.storage.Write(block); err != nil {
		if !errors.Is(err, ErrBlockExists) {
			return fmt.Errorf("writing block: %w", err)
		}
		db.ev("database: Append: blk[%d]: already in storage", block.Index)
	}

	db.chain = append(db.chain, block)

	return nil
}

// Replace swaps the chain for the specified one. The blocks are written
// through the storage's transactional replace and the mirror is reloaded
// from storage under the same lock. A chain that is not strictly longer than
// the local chain at the time of the swap is refused with ErrChainNotLonger.
func (db *Database) Replace(blocks []Block) error {
	if err := ValidateChain(blocks, db.ev); err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if len(blocks) <= len(db.chain) {
		return fmt.Errorf("length[%d]: local[%d]: %w", len(blocks), len(db.chain), ErrChainNotLonger)
	}

	if err := db.storage.Replace(blocks); err != nil {
		return fmt.Errorf("replacing chain: %w", err)
	}

	return db.reload()
}

// Reload rebuilds the mirror from storage.
func (db *Database) Reload() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.reload()
}

// Chain returns up to pageSize blocks starting with the genesis block. A
// pageSize of 0 returns the whole chain.
func (db *Database) Chain(pageSize uint64) []Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	n := uint64(len(db.chain))
	if pageSize > 0 && pageSize < n {
		n = pageSize
	}

	blocks := make([]Block, n)
	for i := range blocks {
		blocks[i] = db.chain[i].clone()
	}

	return blocks
}

// Headers returns up to pageSize headers starting with the genesis block. A
// pageSize of 0 returns every header.
func (db *Database) Headers(pageSize uint64) []HeaderData {
	db.mu.RLock()
	defer db.mu.RUnlock()

	n := uint64(len(db.chain))
	if pageSize > 0 && pageSize < n {
		n = pageSize
	}

	headers := make([]HeaderData, n)
	for i := range headers {
		headers[i] = db.chain[i].HeaderData()
	}

	return headers
}

// GetBlock returns the block at the specified index.
func (db *Database) GetBlock(index uint64) (Block, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if index >= uint64(len(db.chain)) {
		return Block{}, ErrNotFound
	}

	return db.chain[index].clone(), nil
}

// GetBlockByHash searches storage for the block with the specified hash.
func (db *Database) GetBlockByHash(hash string) (Block, error) {
	block, err := db.storage.GetBlockByHash(hash)
	if err != nil {
		return Block{}, err
	}

	return block.clone(), nil
}

// reload reads the chain from storage. The caller must hold the write lock.
func (db *Database) reload() error {
	blocks, err := db.storage.ReadAll()
	if err != nil {
		return fmt.Errorf("reading chain: %w", err)
	}

	if len(blocks) == 0 {
		return fmt.Errorf("reading chain: %w", ErrChainEmpty)
	}

	db.chain = blocks
	db.ev("database: reload: chain length[%d]: tip[%s]", len(blocks), blocks[len(blocks)-1].Hash)

	return nil
}
