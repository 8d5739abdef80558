package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v2"
	"github.com/powledger/node/foundation/blockchain/database"
)

// Key prefixes for the values kept in badger.
const (
	prefixBlock  = 1
	prefixHash   = 2
	prefixLength = 3
)

// Badger represents the storage implementation for reading and storing blocks
// in a badger key-value store. Every operation runs inside a badger
// transaction, which makes Replace atomic. This implements the
// database.Storage interface.
type Badger struct {
	db    *badger.DB
	codec *Codec
}

// NewBadger opens the badger database at the specified directory. An empty
// directory opens an in memory database.
func NewBadger(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("could not open badger: %w", err)
	}

	return NewBadgerFromDB(db), nil
}

// NewBadgerFromDB constructs a Badger value over an already open database.
func NewBadgerFromDB(db *badger.DB) *Badger {
	b := Badger{
		db:    db,
		codec: NewCodec(),
	}

	return &b
}

// Close closes the badger database.
func (b *Badger) Close() error {
	return b.db.Close()
}

// Write appends the block. The block must carry the next index.
func (b *Badger) Write(block database.Block) error {
	return b.db.Update(func(tx *badger.Txn) error {
		length, err := b.length(tx)
		if err != nil {
			return err
		}

		switch {
		case block.Index < length:
			return fmt.Errorf("blk[%d]: %w", block.Index, database.ErrBlockExists)
		case block.Index > length:
			return fmt.Errorf("blk[%d]: block is out of order, exp %d", block.Index, length)
		}

		return combine(
			b.save(encodeKey(prefixBlock, block.Index), block),
			b.save(hashKey(block.Hash), block.Index),
			b.save(encodeKey(prefixLength), length+1),
		)(tx)
	})
}

// GetBlock returns the block at the specified index.
func (b *Badger) GetBlock(index uint64) (database.Block, error) {
	var block database.Block
	err := b.db.View(b.retrieve(encodeKey(prefixBlock, index), &block))
	return block, err
}

// GetBlockByHash returns the block with the specified hash.
func (b *Badger) GetBlockByHash(hash string) (database.Block, error) {
	var block database.Block
	err := b.db.View(func(tx *badger.Txn) error {
		var index uint64
		if err := b.retrieve(hashKey(hash), &index)(tx); err != nil {
			return err
		}

		return b.retrieve(encodeKey(prefixBlock, index), &block)(tx)
	})

	return block, err
}

// Length returns the number of blocks held.
func (b *Badger) Length() (uint64, error) {
	var length uint64
	err := b.db.View(func(tx *badger.Txn) error {
		var err error
		length, err = b.length(tx)
		return err
	})

	return length, err
}

// ReadAll returns every block, oldest first.
func (b *Badger) ReadAll() ([]database.Block, error) {
	var blocks []database.Block
	err := b.db.View(func(tx *badger.Txn) error {
		length, err := b.length(tx)
		if err != nil {
			return err
		}

		blocks = make([]database.Block, 0, length)
		for i := uint64(0); i < length; i++ {
			var block database.Block
			if err := b.retrieve(encodeKey(prefixBlock, i), &block)(tx); err != nil {
				return err
			}
			blocks = append(blocks, block)
		}

		return nil
	})

	return blocks, err
}

// Replace deletes the held chain and writes the specified blocks in a single
// transaction.
func (b *Badger) Replace(blocks []database.Block) error {
	ops := make([]func(*badger.Txn) error, 0, 2*len(blocks)+2)
	ops = append(ops, b.dropAll(prefixBlock), b.dropAll(prefixHash))

	for i, block := range blocks {
		if block.Index != uint64(i) {
			return fmt.Errorf("blk[%d]: block is out of order, exp %d", block.Index, i)
		}

		ops = append(ops,
			b.save(encodeKey(prefixBlock, block.Index), block),
			b.save(hashKey(block.Hash), block.Index),
		)
	}

	ops = append(ops, b.save(encodeKey(prefixLength), uint64(len(blocks))))

	return b.db.Update(combine(ops...))
}

// length reads the stored chain length. A missing length is an empty chain.
func (b *Badger) length(tx *badger.Txn) (uint64, error) {
	var length uint64
	err := b.retrieve(encodeKey(prefixLength), &length)(tx)
	if errors.Is(err, database.ErrNotFound) {
		return 0, nil
	}

	return length, err
}

// =============================================================================

func (b *Badger) retrieve(key []byte, v any) func(tx *badger.Txn) error {
	return func(tx *badger.Txn) error {
		item, err := tx.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return database.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("could not get value (key: %x): %w", key, err)
		}

		err = item.Value(func(val []byte) error {
			return b.codec.Unmarshal(val, v)
		})
		if err != nil {
			return fmt.Errorf("could not decode value (key: %x): %w", key, err)
		}

		return nil
	}
}

func (b *Badger) save(key []byte, value any) func(*badger.Txn) error {

	// Encode right away; the value may be a loop variable by the time the
	// closure runs.
	val, err := b.codec.Marshal(value)
	return func(tx *badger.Txn) error {
		if err != nil {
			return fmt.Errorf("could not encode value (key: %x): %w", key, err)
		}

		if err := tx.Set(key, val); err != nil {
			return fmt.Errorf("could not set value (key: %x): %w", key, err)
		}

		return nil
	}
}

// dropAll deletes every key under the prefix.
func (b *Badger) dropAll(prefix byte) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte{prefix}

		it := tx.NewIterator(opts)
		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, key := range keys {
			if err := tx.Delete(key); err != nil {
				return fmt.Errorf("could not delete value (key: %x): %w", key, err)
			}
		}

		return nil
	}
}

// combine goes through the provided operations until one of them fails.
func combine(ops ...func(*badger.Txn) error) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		for _, op := range ops {
			if err := op(tx); err != nil {
				return err
			}
		}

		return nil
	}
}

// encodeKey builds a key from the prefix and big endian segments.
func encodeKey(prefix byte, segments ...uint64) []byte {
	key := make([]byte, 1, 1+8*len(segments))
	key[0] = prefix

	for _, s := range segments {
		key = binary.BigEndian.AppendUint64(key, s)
	}

	return key
}

// hashKey builds the key indexing a block hash.
func hashKey(hash string) []byte {
	return append([]byte{prefixHash}, hash...)
}
