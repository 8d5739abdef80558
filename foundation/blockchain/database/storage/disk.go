package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/dgraph-io/ristretto"
	"github.com/powledger/node/foundation/blockchain/database"
)

// Disk represents the storage implementation for reading and storing blocks
// in their own separate files on disk. This implements the database.Storage
// interface.
type Disk struct {
	mu     sync.RWMutex
	dbPath string
	length uint64
	cache  *ristretto.Cache
}

// NewDisk constructs a Disk value for use. A replace interrupted by a crash
// is rolled forward or back before the chain length is counted.
func NewDisk(dbPath string) (*Disk, error) {
	if err := recoverReplace(dbPath); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, err
	}

	// The cache only maps block hashes to indexes so the items are small.
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     10_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("could not initialize cache: %w", err)
	}

	d := Disk{
		dbPath: dbPath,
		cache:  cache,
	}

	for {
		if _, err := os.Stat(d.getPath(d.length)); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				break
			}
			return nil, err
		}
		d.length++
	}

	return &d, nil
}

// Close releases the hash cache.
func (d *Disk) Close() error {
	d.cache.Close()
	return nil
}

// Write takes the specified block and stores it on disk in a file labeled
// with the block index. The block must carry the next index.
func (d *Disk) Write(block database.Block) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case block.Index < d.length:
		return fmt.Errorf("blk[%d]: %w", block.Index, database.ErrBlockExists)
	case block.Index > d.length:
		return fmt.Errorf("blk[%d]: block is out of order, exp %d", block.Index, d.length)
	}

	if err := writeBlock(d.getPath(block.Index), block); err != nil {
		return err
	}

	d.length++
	d.cache.Set(block.Hash, block.Index, 1)

	return nil
}

// GetBlock searches the blockchain on disk to locate and return the
// contents of the specified block by index.
func (d *Disk) GetBlock(index uint64) (database.Block, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.readBlock(index)
}

// GetBlockByHash returns the block with the specified hash. Known hashes are
// looked up in the cache, anything else walks the chain.
func (d *Disk) GetBlockByHash(hash string) (database.Block, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if v, found := d.cache.Get(hash); found {
		if block, err := d.readBlock(v.(uint64)); err == nil && block.Hash == hash {
			return block, nil
		}
	}

	for i := uint64(0); i < d.length; i++ {
		block, err := d.readBlock(i)
		if err != nil {
			return database.Block{}, err
		}

		d.cache.Set(block.Hash, block.Index, 1)

		if block.Hash == hash {
			return block, nil
		}
	}

	return database.Block{}, database.ErrNotFound
}

// Length returns the number of blocks on disk.
func (d *Disk) Length() (uint64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.length, nil
}

// ReadAll reads every block from disk, oldest first.
func (d *Disk) ReadAll() ([]database.Block, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	blocks := make([]database.Block, 0, d.length)
	for i := uint64(0); i < d.length; i++ {
		block, err := d.readBlock(i)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}

	return blocks, nil
}

// Replace swaps the chain on disk for the specified blocks. The new chain is
// written to a staging directory which is renamed into place, so readers
// never observe a mix of the old and new chain.
func (d *Disk) Replace(blocks []database.Block) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	staging := d.dbPath + ".replace"
	backup := d.dbPath + ".old"

	if err := os.RemoveAll(staging); err != nil {
		return err
	}

	if err := os.MkdirAll(staging, 0755); err != nil {
		return err
	}

	for i, block := range blocks {
		if block.Index != uint64(i) {
			os.RemoveAll(staging)
			return fmt.Errorf("blk[%d]: block is out of order, exp %d", block.Index, i)
		}

		if err := writeBlock(filepath.Join(staging, fileName(block.Index)), block); err != nil {
			os.RemoveAll(staging)
			return err
		}
	}

	if err := os.RemoveAll(backup); err != nil {
		return err
	}

	if err := os.Rename(d.dbPath, backup); err != nil {
		return err
	}

	if err := os.Rename(staging, d.dbPath); err != nil {
		os.Rename(backup, d.dbPath)
		return err
	}

	os.RemoveAll(backup)

	d.length = uint64(len(blocks))
	d.cache.Clear()

	return nil
}

// getPath forms the path to the specified block.
func (d *Disk) getPath(index uint64) string {
	return filepath.Join(d.dbPath, fileName(index))
}

// readBlock reads and decodes the block file. The caller must hold a lock.
func (d *Disk) readBlock(index uint64) (database.Block, error) {
	data, err := os.ReadFile(d.getPath(index))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return database.Block{}, database.ErrNotFound
		}
		return database.Block{}, err
	}

	var block database.Block
	if err := json.Unmarshal(data, &block); err != nil {
		return database.Block{}, fmt.Errorf("blk[%d]: decoding: %w", index, err)
	}

	return block, nil
}

// =============================================================================

// fileName returns the name of the file holding the block.
func fileName(index uint64) string {
	return strconv.FormatUint(index, 10) + ".json"
}

// writeBlock marshals the block in a human readable format and writes it to
// the specified file.
func writeBlock(path string, block database.Block) error {
	data, err := json.MarshalIndent(block, "", "  ")
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return err
	}

	return f.Sync()
}

// recoverReplace finishes or undoes a replace that was interrupted between
// the two renames.
func recoverReplace(dbPath string) error {
	staging := dbPath + ".replace"
	backup := dbPath + ".old"

	_, err := os.Stat(dbPath)
	switch {
	case err == nil:
		os.RemoveAll(backup)
		return os.RemoveAll(staging)

	case !errors.Is(err, fs.ErrNotExist):
		return err
	}

	// The live directory is gone, so the staging directory holds a complete
	// chain if the first rename happened.
	if _, err := os.Stat(backup); err == nil {
		if err := os.Rename(staging, dbPath); err != nil {
			return os.Rename(backup, dbPath)
		}
		return os.RemoveAll(backup)
	}

	return nil
}
