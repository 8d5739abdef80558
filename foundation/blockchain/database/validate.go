package database

import (
	"errors"
	"fmt"
)

// Set of error variables for chain validation. A failed validation wraps one
// of these with the index of the offending block.
var (
	ErrChainEmpty     = errors.New("chain is empty")
	ErrChainLinkage   = errors.New("block does not link to its predecessor")
	ErrMerkleMismatch = errors.New("merkle root does not match transactions")
	ErrHashMismatch   = errors.New("recomputed header hash does not match block hash")
	ErrProofOfWork    = errors.New("block hash does not satisfy its difficulty")
)

// ValidateChain checks a full chain, oldest first. Every block must carry a
// contiguous index from 0, link to its predecessor's hash, hold a merkle root
// matching its transactions, declare the hash its header recomputes to and
// solve its own difficulty.
func ValidateChain(blocks []Block, ev func(v string, args ...any)) error {
	if ev == nil {
		ev = func(string, ...any) {}
	}

	if len(blocks) == 0 {
		ev("database: ValidateChain: %s", ErrChainEmpty)
		return ErrChainEmpty
	}

	for i := range blocks {
		var prev *Block
		if i > 0 {
			prev = &blocks[i-1]
		}

		if err := validateBlock(prev, blocks[i]); err != nil {
			ev("database: ValidateChain: INVALID: %s", err)
			return err
		}
	}

	ev("database: ValidateChain: chain of length[%d] is valid", len(blocks))

	return nil
}

// ValidateHeaders runs the checks of ValidateChain that only need header
// fields. It can reject a chain before its transactions are downloaded.
func ValidateHeaders(headers []HeaderData, ev func(v string, args ...any)) error {
	if ev == nil {
		ev = func(string, ...any) {}
	}

	if len(headers) == 0 {
		ev("database: ValidateHeaders: %s", ErrChainEmpty)
		return ErrChainEmpty
	}

	for i := range headers {
		var prev *HeaderData
		if i > 0 {
			prev = &headers[i-1]
		}

		if err := validateHeader(prev, headers[i]); err != nil {
			ev("database: ValidateHeaders: INVALID: %s", err)
			return err
		}
	}

	ev("database: ValidateHeaders: headers of length[%d] are valid", len(headers))

	return nil
}

// =============================================================================

// validateBlock checks a single block against its predecessor. A nil
// predecessor means the block must be the genesis block.
func validateBlock(prev *Block, b Block) error {
	var prevHeader *HeaderData
	if prev != nil {
		hd := prev.HeaderData()
		prevHeader = &hd
	}

	if err := checkLinkage(prevHeader, b.Index, b.Header.PreviousHash); err != nil {
		return err
	}

	root, err := MerkleRoot(b.Transactions)
	if err != nil {
		return fmt.Errorf("blk[%d]: %w: %s", b.Index, ErrMerkleMismatch, err)
	}

	if root != b.MerkleRoot {
		return fmt.Errorf("blk[%d]: %w: got %s, exp %s", b.Index, ErrMerkleMismatch, root, b.MerkleRoot)
	}

	if b.Header.MerkleRoot != b.MerkleRoot {
		return fmt.Errorf("blk[%d]: %w: header root %s, block root %s", b.Index, ErrMerkleMismatch, b.Header.MerkleRoot, b.MerkleRoot)
	}

	return checkSeal(b.Index, b.Header, b.Hash)
}

// validateHeader checks a single header against its predecessor.
func validateHeader(prev *HeaderData, h HeaderData) error {
	if err := checkLinkage(prev, h.Index, h.PreviousHash); err != nil {
		return err
	}

	return checkSeal(h.Index, h.BlockHeader, h.Hash)
}

// checkLinkage verifies the index is contiguous and the previous hash points
// at the predecessor.
func checkLinkage(prev *HeaderData, index uint64, prevHash string) error {
	if prev == nil {
		if index != 0 {
			return fmt.Errorf("blk[%d]: %w: chain must start at index 0", index, ErrChainLinkage)
		}
		return nil
	}

	if index != prev.Index+1 {
		return fmt.Errorf("blk[%d]: %w: index is not the next index, exp %d", index, ErrChainLinkage, prev.Index+1)
	}

	if prevHash != prev.Hash {
		return fmt.Errorf("blk[%d]: %w: previous hash %s, predecessor hash %s", index, ErrChainLinkage, prevHash, prev.Hash)
	}

	return nil
}

// checkSeal verifies the declared hash is the header's hash and that it
// solves the header's difficulty.
func checkSeal(index uint64, h BlockHeader, hash string) error {
	if calculated := h.Hash(); calculated != hash {
		return fmt.Errorf("blk[%d]: %w: got %s, exp %s", index, ErrHashMismatch, calculated, hash)
	}

	if !isHashSolved(h.Difficulty, hash) {
		return fmt.Errorf("blk[%d]: %w: hash %s, difficulty %d", index, ErrProofOfWork, hash, h.Difficulty)
	}

	return nil
}
