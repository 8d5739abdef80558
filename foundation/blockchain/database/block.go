package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/powledger/node/foundation/blockchain/genesis"
	"github.com/powledger/node/foundation/blockchain/merkle"
	"github.com/powledger/node/foundation/blockchain/signature"
)

// ErrNoTransactions is returned when a block is requested with no
// transactions to put in it.
var ErrNoTransactions = errors.New("no transactions to mine")

// =============================================================================

// BlockHeader represents the part of the block that is mined. The hash of
// the header is the hash of the block.
type BlockHeader struct {
	PreviousHash string  `json:"previous_hash"` // Hash of the previous block in the chain.
	MerkleRoot   string  `json:"merkle_root"`   // Merkle root of the transactions in this block.
	TimeStamp    float64 `json:"timestamp"`     // Time the block was assembled, seconds since epoch.
	Nonce        uint64  `json:"nonce"`         // Value identified to solve the hash solution.
	Difficulty   uint    `json:"difficulty"`    // Number of leading 0's needed to solve the hash solution.
}

// Hash returns the unique hash for the header. The fields are concatenated
// in a fixed order as text so every node produces the same input.
func (h BlockHeader) Hash() string {
	var b strings.Builder
	b.WriteString(h.PreviousHash)
	b.WriteString(h.MerkleRoot)
	b.WriteString(formatFloat(h.TimeStamp))
	b.WriteString(strconv.FormatUint(h.Nonce, 10))
	b.WriteString(strconv.FormatUint(uint64(h.Difficulty), 10))

	return signature.Hash([]byte(b.String()))
}

// HeaderData is the header as it travels between peers. It carries the block
// index and the declared hash so a chain of headers can be validated without
// the transaction bodies.
type HeaderData struct {
	Index uint64 `json:"index"`
	BlockHeader
	Hash string `json:"hash"`
}

// =============================================================================

// Block represents a group of transactions batched together and sealed by
// proof of work.
type Block struct {
	Index        uint64      `json:"index"`
	Transactions []Tx        `json:"transactions"`
	MerkleRoot   string      `json:"merkle_root"`
	Header       BlockHeader `json:"header"`
	Hash         string      `json:"hash"`
}

// POWArgs represents the set of arguments required to run POW.
type POWArgs struct {
	PrevBlock  Block
	Difficulty uint
	Trans      []Tx
	EvHandler  func(v string, args ...any)
}

// POW constructs a new Block on top of the previous block and performs the
// work to find a nonce that solves the proof of work puzzle.
func POW(ctx context.Context, args POWArgs) (Block, error) {
	if len(args.Trans) == 0 {
		return Block{}, ErrNoTransactions
	}

	nb, err := NewBlock(args.PrevBlock.Index+1, args.PrevBlock.Hash, args.Difficulty, Now(), args.Trans)
	if err != nil {
		return Block{}, err
	}

	if err := nb.performPOW(ctx, 0, args.EvHandler); err != nil {
		return Block{}, err
	}

	return nb, nil
}

// NewBlock constructs an unsealed block. The merkle root and header are
// computed from the transactions; the nonce and hash are left for mining.
func NewBlock(index uint64, prevHash string, difficulty uint, timeStamp float64, trans []Tx) (Block, error) {
	root, err := MerkleRoot(trans)
	if err != nil {
		return Block{}, err
	}

	txs := make([]Tx, len(trans))
	copy(txs, trans)

	nb := Block{
		Index:        index,
		Transactions: txs,
		MerkleRoot:   root,
		Header: BlockHeader{
			PreviousHash: prevHash,
			MerkleRoot:   root,
			TimeStamp:    timeStamp,
			Difficulty:   difficulty,
		},
	}

	return nb, nil
}

// NewGenesisBlock constructs the first block of the chain. The block is
// derived only from the genesis settings and mined from nonce 0, so every
// node produces the same genesis block.
func NewGenesisBlock(gen genesis.Genesis) (Block, error) {
	ts := float64(gen.Date.UTC().UnixMicro()) / 1e6

	tx := Tx{
		Sender:    "system",
		Receiver:  "network",
		Amount:    0,
		TimeStamp: ts,
	}

	nb, err := NewBlock(0, signature.ZeroHash, gen.Difficulty, ts, []Tx{tx})
	if err != nil {
		return Block{}, err
	}

	if err := nb.performPOW(context.Background(), 0, nil); err != nil {
		return Block{}, err
	}

	return nb, nil
}

// performPOW does the work of mining to find a valid hash for the block,
// starting at the specified nonce. The search runs on a copy of the header so
// a cancelled search leaves the block untouched.
func (b *Block) performPOW(ctx context.Context, nonce uint64, ev func(v string, args ...any)) error {
	if ev == nil {
		ev = func(string, ...any) {}
	}

	ev("database: performPOW: MINING: started: blk[%d]: difficulty[%d]", b.Index, b.Header.Difficulty)
	defer ev("database: performPOW: MINING: completed: blk[%d]", b.Index)

	for _, tx := range b.Transactions {
		ev("database: performPOW: MINING: tx[%s]", tx)
	}

	header := b.Header
	header.Nonce = nonce

	var attempts uint64
	for {
		attempts++
		if attempts%1_000_000 == 0 {
			ev("database: performPOW: MINING: attempts[%d]", attempts)
		}

		// Checking the context is cheap but not free.
		if attempts%1024 == 0 && ctx.Err() != nil {
			ev("database: performPOW: MINING: CANCELLED")
			return ctx.Err()
		}

		hash := header.Hash()
		if !isHashSolved(header.Difficulty, hash) {
			header.Nonce++
			continue
		}

		if ctx.Err() != nil {
			ev("database: performPOW: MINING: CANCELLED")
			return ctx.Err()
		}

		ev("database: performPOW: MINING: SOLVED: prevBlk[%s]: newBlk[%s]: attempts[%d]", header.PreviousHash, hash, attempts)

		b.Header = header
		b.Hash = hash

		return nil
	}
}

// clone returns a copy of the block that shares no memory with it.
func (b Block) clone() Block {
	if b.Transactions != nil {
		trans := make([]Tx, len(b.Transactions))
		copy(trans, b.Transactions)
		b.Transactions = trans
	}

	return b
}

// HeaderData returns the wire form of the block's header.
func (b Block) HeaderData() HeaderData {
	return HeaderData{
		Index:       b.Index,
		BlockHeader: b.Header,
		Hash:        b.Hash,
	}
}

// Tree constructs the merkle tree for the block's transactions.
func (b Block) Tree() (*merkle.Tree[Tx], error) {
	return merkle.NewTree(b.Transactions)
}

// String implements the fmt.Stringer interface for logging.
func (b Block) String() string {
	return fmt.Sprintf("%d:%s", b.Index, b.Hash)
}

// =============================================================================

// MerkleRoot returns the merkle root for the transactions. No transactions
// produce the hash of the empty string.
func MerkleRoot(trans []Tx) (string, error) {
	tree, err := merkle.NewTree(trans)
	if err != nil {
		return "", err
	}

	return tree.RootHex(), nil
}

// isHashSolved checks the hash to make sure it complies with the POW rules.
// We need to match a difficulty number of leading 0's.
func isHashSolved(difficulty uint, hash string) bool {
	if len(hash) != 64 || difficulty > 64 {
		return false
	}

	return hash[:difficulty] == signature.ZeroHash[:difficulty]
}
