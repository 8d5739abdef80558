package database_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/powledger/node/foundation/blockchain/database"
	"github.com/powledger/node/foundation/blockchain/database/storage"
	"github.com/powledger/node/foundation/blockchain/genesis"
	"github.com/powledger/node/foundation/blockchain/signature"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

var (
	tx1 = database.Tx{Sender: "Alice", Receiver: "Bob", Amount: 10, TimeStamp: 1700000000.5}
	tx2 = database.Tx{Sender: "Bob", Receiver: "Charlie", Amount: 5.25, TimeStamp: 1700000001}
)

// =============================================================================

func Test_TxHash(t *testing.T) {
	type table struct {
		name      string
		tx        database.Tx
		canonical string
		hash      string
	}

	tt := []table{
		{
			name:      "basic",
			tx:        tx1,
			canonical: `{"amount": 10.0, "receiver": "Bob", "sender": "Alice", "timestamp": 1700000000.5}`,
			hash:      "2d4075b3661b3fc43389f9a22c4cbf40850af9ad71fdc972b87fa641e49c845e",
		},
		{
			name:      "fraction",
			tx:        tx2,
			canonical: `{"amount": 5.25, "receiver": "Charlie", "sender": "Bob", "timestamp": 1700000001.0}`,
			hash:      "5b58ba1425dfdd82034719a969740ad7ca99baa4f3e127707dd619c26afb9d15",
		},
		{
			name:      "escaping",
			tx:        database.Tx{Sender: "Zoë \"q\"\n", Receiver: "😀", Amount: 1e16, TimeStamp: 0.00001},
			canonical: `{"amount": 1e+16, "receiver": "\ud83d\ude00", "sender": "Zo\u00eb \"q\"\n", "timestamp": 1e-05}`,
			hash:      "b297b9b066b9f31f832ec6520750b552ea606abb86c54b749e97f46e478a2bb7",
		},
	}

	t.Log("Given the need to hash transactions the same way as every other node.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling a %s transaction.", testID, tst.name)
			{
				if got := tst.tx.Canonical(); got != tst.canonical {
					t.Logf("\t\tgot: %s", got)
					t.Logf("\t\texp: %s", tst.canonical)
					t.Fatalf("\t%s\tTest %d:\tShould produce the canonical form.", failed, testID)
				}
				t.Logf("\t%s\tTest %d:\tShould produce the canonical form.", success, testID)

				if got := tst.tx.HashHex(); got != tst.hash {
					t.Logf("\t\tgot: %s", got)
					t.Logf("\t\texp: %s", tst.hash)
					t.Fatalf("\t%s\tTest %d:\tShould produce the right hash.", failed, testID)
				}
				t.Logf("\t%s\tTest %d:\tShould produce the right hash.", success, testID)
			}
		}
	}
}

func Test_HeaderHash(t *testing.T) {
	t.Log("Given the need to hash block headers the same way as every other node.")
	{
		root, err := database.MerkleRoot([]database.Tx{tx1, tx2})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to compute the merkle root: %v", failed, err)
		}

		const expRoot = "96fdfea079ab38b84c0a75a732b6e1adfa4e5f0badf273b56b323a9999f1caed"
		if root != expRoot {
			t.Logf("\t\tgot: %s", root)
			t.Logf("\t\texp: %s", expRoot)
			t.Fatalf("\t%s\tShould get the right merkle root.", failed)
		}
		t.Logf("\t%s\tShould get the right merkle root.", success)

		root, err = database.MerkleRoot(nil)
		if err != nil || root != signature.EmptyHash {
			t.Fatalf("\t%s\tShould get the empty hash for no transactions: %s %v", failed, root, err)
		}
		t.Logf("\t%s\tShould get the empty hash for no transactions.", success)

		header := database.BlockHeader{
			PreviousHash: signature.ZeroHash,
			MerkleRoot:   expRoot,
			TimeStamp:    1700000002.25,
			Nonce:        42,
			Difficulty:   2,
		}

		const expHash = "fc2d680f85c2da0cbdfd432c613b609207fb4efd8d96d3cbbcaaa8be6730fa81"
		if h := header.Hash(); h != expHash {
			t.Logf("\t\tgot: %s", h)
			t.Logf("\t\texp: %s", expHash)
			t.Fatalf("\t%s\tShould get the right header hash.", failed)
		}
		t.Logf("\t%s\tShould get the right header hash.", success)
	}
}

func Test_POW(t *testing.T) {
	t.Log("Given the need to mine blocks.")
	{
		prev, err := database.NewGenesisBlock(testGenesis(1))
		if err != nil {
			t.Fatalf("\t%s\tShould be able to mine the genesis block: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to mine the genesis block.", success)

		again, err := database.NewGenesisBlock(testGenesis(1))
		if err != nil || again.Hash != prev.Hash {
			t.Fatalf("\t%s\tShould mine the same genesis block twice: %s %s", failed, prev.Hash, again.Hash)
		}
		t.Logf("\t%s\tShould mine the same genesis block twice.", success)

		for _, difficulty := range []uint{1, 2, 3} {
			block, err := database.POW(context.Background(), database.POWArgs{
				PrevBlock:  prev,
				Difficulty: difficulty,
				Trans:      []database.Tx{tx1, tx2},
			})
			if err != nil {
				t.Fatalf("\t%s\tShould be able to mine at difficulty %d: %v", failed, difficulty, err)
			}

			if block.Hash != block.Header.Hash() || !strings.HasPrefix(block.Hash, strings.Repeat("0", int(difficulty))) {
				t.Fatalf("\t%s\tShould get a solved hash at difficulty %d: %s", failed, difficulty, block.Hash)
			}

			if block.Index != 1 || block.Header.PreviousHash != prev.Hash {
				t.Fatalf("\t%s\tShould link the block to the previous block.", failed)
			}
			t.Logf("\t%s\tShould get a solved and linked block at difficulty %d.", success, difficulty)
		}

		_, err = database.POW(context.Background(), database.POWArgs{PrevBlock: prev, Difficulty: 1})
		if !errors.Is(err, database.ErrNoTransactions) {
			t.Fatalf("\t%s\tShould refuse to mine without transactions: %v", failed, err)
		}
		t.Logf("\t%s\tShould refuse to mine without transactions.", success)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err = database.POW(ctx, database.POWArgs{
			PrevBlock:  prev,
			Difficulty: 64,
			Trans:      []database.Tx{tx1},
		})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("\t%s\tShould stop mining when cancelled: %v", failed, err)
		}
		t.Logf("\t%s\tShould stop mining when cancelled.", success)
	}
}

func Test_ValidateChain(t *testing.T) {
	type table struct {
		name      string
		tamper    func(blocks []database.Block)
		err       error
		headerErr error
	}

	tt := []table{
		{
			name:   "valid",
			tamper: func(blocks []database.Block) {},
		},
		{
			name:      "empty",
			tamper:    nil,
			err:       database.ErrChainEmpty,
			headerErr: database.ErrChainEmpty,
		},
		{
			name: "previous hash rewired and re-mined",
			tamper: func(blocks []database.Block) {
				blocks[2] = remine(t, blocks[2], func(h *database.BlockHeader) {
					h.PreviousHash = strings.Repeat("a", 64)
				})
			},
			err:       database.ErrChainLinkage,
			headerErr: database.ErrChainLinkage,
		},
		{
			name: "index gap",
			tamper: func(blocks []database.Block) {
				blocks[3].Index = 9
			},
			err:       database.ErrChainLinkage,
			headerErr: database.ErrChainLinkage,
		},
		{
			name: "transaction mutated",
			tamper: func(blocks []database.Block) {
				blocks[1].Transactions[0].Amount = 1000
			},
			err: database.ErrMerkleMismatch,
		},
		{
			name: "transaction mutated with roots recomputed",
			tamper: func(blocks []database.Block) {
				blocks[1].Transactions[0].Amount = 1000
				root, _ := database.MerkleRoot(blocks[1].Transactions)
				blocks[1].MerkleRoot = root
				blocks[1].Header.MerkleRoot = root
			},
			err:       database.ErrHashMismatch,
			headerErr: database.ErrHashMismatch,
		},
		{
			name: "header root differs from block root",
			tamper: func(blocks []database.Block) {
				blocks[1].Header.MerkleRoot = strings.Repeat("b", 64)
			},
			err:       database.ErrMerkleMismatch,
			headerErr: database.ErrHashMismatch,
		},
		{
			name: "proof of work unsolved",
			tamper: func(blocks []database.Block) {
				blocks[2] = unsolve(blocks[2])
			},
			err:       database.ErrProofOfWork,
			headerErr: database.ErrProofOfWork,
		},
		{
			name: "genesis proof of work unsolved",
			tamper: func(blocks []database.Block) {
				blocks[0] = unsolve(blocks[0])
			},
			err:       database.ErrProofOfWork,
			headerErr: database.ErrProofOfWork,
		},
	}

	t.Log("Given the need to validate a chain of blocks.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling a %s chain.", testID, tst.name)
			{
				var blocks []database.Block
				if tst.tamper != nil {
					blocks = mineChain(t, 4)
					tst.tamper(blocks)
				}

				err := database.ValidateChain(blocks, t.Logf)
				if !errors.Is(err, tst.err) {
					t.Fatalf("\t%s\tTest %d:\tShould get error %v from full validation, got %v.", failed, testID, tst.err, err)
				}
				t.Logf("\t%s\tTest %d:\tShould get error %v from full validation.", success, testID, tst.err)

				headers := make([]database.HeaderData, len(blocks))
				for i, block := range blocks {
					headers[i] = block.HeaderData()
				}

				err = database.ValidateHeaders(headers, t.Logf)
				if !errors.Is(err, tst.headerErr) {
					t.Fatalf("\t%s\tTest %d:\tShould get error %v from header validation, got %v.", failed, testID, tst.headerErr, err)
				}
				t.Logf("\t%s\tTest %d:\tShould get error %v from header validation.", success, testID, tst.headerErr)
			}
		}
	}
}

func Test_RoundTrip(t *testing.T) {
	t.Log("Given the need to send blocks over the wire.")
	{
		blocks := mineChain(t, 3)

		data, err := json.Marshal(blocks)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to marshal the chain: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to marshal the chain.", success)

		var got []database.Block
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("\t%s\tShould be able to unmarshal the chain: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to unmarshal the chain.", success)

		for i := range blocks {
			if got[i].Hash != blocks[i].Hash || got[i].MerkleRoot != blocks[i].MerkleRoot || got[i].Header.Hash() != blocks[i].Hash {
				t.Fatalf("\t%s\tShould get back the same hashes for block %d.", failed, i)
			}

			for j := range blocks[i].Transactions {
				if got[i].Transactions[j] != blocks[i].Transactions[j] {
					t.Fatalf("\t%s\tShould get back the same transactions in order for block %d.", failed, i)
				}
			}
		}
		t.Logf("\t%s\tShould get back the same hashes and transaction order.", success)

		if err := database.ValidateChain(got, nil); err != nil {
			t.Fatalf("\t%s\tShould still validate the chain: %v", failed, err)
		}
		t.Logf("\t%s\tShould still validate the chain.", success)

		hd, err := json.Marshal(blocks[1].HeaderData())
		if err != nil {
			t.Fatalf("\t%s\tShould be able to marshal a header: %v", failed, err)
		}

		var fields map[string]any
		if err := json.Unmarshal(hd, &fields); err != nil {
			t.Fatalf("\t%s\tShould be able to unmarshal a header: %v", failed, err)
		}

		for _, key := range []string{"index", "previous_hash", "merkle_root", "timestamp", "nonce", "difficulty", "hash"} {
			if _, exists := fields[key]; !exists {
				t.Fatalf("\t%s\tShould find field %q in the header wire form.", failed, key)
			}
		}
		t.Logf("\t%s\tShould find every field in the header wire form.", success)
	}
}

func Test_Database(t *testing.T) {
	t.Log("Given the need to manage the chain in front of storage.")
	{
		strg := storage.NewMemory()

		db, err := database.New(testGenesis(1), strg, t.Logf)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to open the database: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to open the database.", success)

		if db.Length() != 1 || db.LatestBlock().Index != 0 {
			t.Fatalf("\t%s\tShould start with the genesis block.", failed)
		}
		t.Logf("\t%s\tShould start with the genesis block.", success)

		genesisBlock := db.LatestBlock()

		block1 := mine(t, genesisBlock, tx1)
		if err := db.Append(block1); err != nil {
			t.Fatalf("\t%s\tShould be able to append a block: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to append a block.", success)

		stale := mine(t, genesisBlock, tx2)
		if err := db.Append(stale); !errors.Is(err, database.ErrStaleBlock) {
			t.Fatalf("\t%s\tShould reject a block mined on an old tip: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a block mined on an old tip.", success)

		bad := mine(t, block1, tx2)
		bad.Transactions[0].Amount = 99
		if err := db.Append(bad); !errors.Is(err, database.ErrMerkleMismatch) {
			t.Fatalf("\t%s\tShould reject an invalid block: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject an invalid block.", success)

		if n, _ := strg.Length(); n != 2 || db.Length() != 2 {
			t.Fatalf("\t%s\tShould have 2 blocks in storage and memory, got %d and %d.", failed, n, db.Length())
		}
		t.Logf("\t%s\tShould have 2 blocks in storage and memory.", success)

		if headers := db.Headers(1); len(headers) != 1 || headers[0].Index != 0 {
			t.Fatalf("\t%s\tShould page headers oldest first.", failed)
		}
		if chain := db.Chain(0); len(chain) != 2 || chain[1].Hash != block1.Hash {
			t.Fatalf("\t%s\tShould return the whole chain for a page size of 0.", failed)
		}
		t.Logf("\t%s\tShould page the chain oldest first.", success)

		longer := mineChain(t, 4)
		if err := db.Replace(longer); err != nil {
			t.Fatalf("\t%s\tShould be able to replace the chain: %v", failed, err)
		}

		if db.Length() != 4 || db.LatestBlock().Hash != longer[3].Hash {
			t.Fatalf("\t%s\tShould reload the replaced chain.", failed)
		}
		t.Logf("\t%s\tShould reload the replaced chain.", success)

		broken := mineChain(t, 5)
		broken[4] = unsolve(broken[4])
		if err := db.Replace(broken); err == nil {
			t.Fatalf("\t%s\tShould refuse to replace with an invalid chain.", failed)
		}

		if db.Length() != 4 {
			t.Fatalf("\t%s\tShould keep the chain after a refused replace.", failed)
		}
		t.Logf("\t%s\tShould keep the chain after a refused replace.", success)

		for _, length := range []int{3, 4} {
			if err := db.Replace(mineChain(t, length)); !errors.Is(err, database.ErrChainNotLonger) {
				t.Fatalf("\t%s\tShould refuse a valid chain of length %d: %v", failed, length, err)
			}
		}

		if db.Length() != 4 || db.LatestBlock().Hash != longer[3].Hash {
			t.Fatalf("\t%s\tShould keep the local chain when the replacement is not longer.", failed)
		}
		t.Logf("\t%s\tShould refuse a replacement that is not longer.", success)

		returned := db.Chain(0)
		returned[1].Transactions[0].Amount = 1000
		byIndex, _ := db.GetBlock(2)
		byIndex.Transactions[0].Amount = 1000
		tip := db.LatestBlock()
		tip.Transactions[0].Amount = 1000

		if err := database.ValidateChain(db.Chain(0), t.Logf); err != nil {
			t.Fatalf("\t%s\tShould not let callers change the held chain: %v", failed, err)
		}
		t.Logf("\t%s\tShould not let callers change the held chain.", success)

		got, err := db.GetBlockByHash(longer[2].Hash)
		if err != nil || got.Index != 2 {
			t.Fatalf("\t%s\tShould find a block by hash: %v", failed, err)
		}
		t.Logf("\t%s\tShould find a block by hash.", success)

		reopened, err := database.New(testGenesis(1), strg, nil)
		if err != nil || reopened.Length() != 4 {
			t.Fatalf("\t%s\tShould load the chain from storage: %v", failed, err)
		}
		t.Logf("\t%s\tShould load the chain from storage.", success)
	}
}

func Test_SignedTx(t *testing.T) {
	t.Log("Given the need to submit signed transactions.")
	{
		pk, err := crypto.GenerateKey()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to generate a key: %v", failed, err)
		}

		tx := database.NewTx(signature.PublicKeyToAddress(pk.PublicKey), "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32", 12.5)

		signed, err := tx.Sign(pk)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to sign the transaction: %v", failed, err)
		}

		if err := signed.Validate(); err != nil {
			t.Fatalf("\t%s\tShould validate a transaction signed by the sender: %v", failed, err)
		}
		t.Logf("\t%s\tShould validate a transaction signed by the sender.", success)

		data, err := json.Marshal(signed)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to marshal the signed transaction: %v", failed, err)
		}

		var decoded database.SignedTx
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("\t%s\tShould be able to unmarshal the signed transaction: %v", failed, err)
		}

		if err := decoded.Validate(); err != nil {
			t.Fatalf("\t%s\tShould validate the transaction after the wire: %v", failed, err)
		}
		t.Logf("\t%s\tShould validate the transaction after the wire.", success)

		decoded.Amount = 1000
		if err := decoded.Validate(); err == nil {
			t.Fatalf("\t%s\tShould reject a transaction changed after signing.", failed)
		}
		t.Logf("\t%s\tShould reject a transaction changed after signing.", success)

		forged := signed
		forged.Sender = "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4"
		if err := forged.Validate(); err == nil {
			t.Fatalf("\t%s\tShould reject a transaction signed by someone else.", failed)
		}
		t.Logf("\t%s\tShould reject a transaction signed by someone else.", success)
	}
}

// =============================================================================

func testGenesis(difficulty uint) genesis.Genesis {
	return genesis.Genesis{
		Date:       time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		Difficulty: difficulty,
	}
}

// mineChain mines a valid chain of the specified length at difficulty 2.
func mineChain(t *testing.T, length int) []database.Block {
	t.Helper()

	block, err := database.NewGenesisBlock(testGenesis(2))
	if err != nil {
		t.Fatalf("\t%s\tShould be able to mine the genesis block: %v", failed, err)
	}

	chain := []database.Block{block}
	for i := 1; i < length; i++ {
		tx := database.Tx{Sender: "system", Receiver: "miner", Amount: float64(i), TimeStamp: 1700000000 + float64(i)}
		block = mine(t, block, tx, tx1)
		chain = append(chain, block)
	}

	return chain
}

// mine mines a block with the transactions on top of prev.
func mine(t *testing.T, prev database.Block, trans ...database.Tx) database.Block {
	t.Helper()

	block, err := database.POW(context.Background(), database.POWArgs{
		PrevBlock:  prev,
		Difficulty: 2,
		Trans:      trans,
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to mine a block: %v", failed, err)
	}

	return block
}

// remine applies the change to the block's header and mines it again so
// the block is internally consistent.
func remine(t *testing.T, block database.Block, change func(h *database.BlockHeader)) database.Block {
	t.Helper()

	change(&block.Header)
	for block.Header.Nonce = 0; ; block.Header.Nonce++ {
		if h := block.Header.Hash(); strings.HasPrefix(h, strings.Repeat("0", int(block.Header.Difficulty))) {
			block.Hash = h
			return block
		}
	}
}

// unsolve moves the nonce until the header hash no longer solves the
// difficulty and declares that hash.
func unsolve(block database.Block) database.Block {
	zeros := strings.Repeat("0", int(block.Header.Difficulty))
	for {
		block.Header.Nonce++
		if h := block.Header.Hash(); !strings.HasPrefix(h, zeros) {
			block.Hash = h
			return block
		}
	}
}
