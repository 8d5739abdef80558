package state_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/powledger/node/foundation/blockchain/database"
	"github.com/powledger/node/foundation/blockchain/database/storage"
	"github.com/powledger/node/foundation/blockchain/genesis"
	"github.com/powledger/node/foundation/blockchain/peer"
	"github.com/powledger/node/foundation/blockchain/state"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

const (
	keyHex  = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	address = "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4"
)

func Test_Resolve(t *testing.T) {
	t.Log("Given the need to adopt the longest valid chain from peers.")
	{
		t.Log("\tTest 0:\tWhen a peer has a longer valid chain.")
		{
			a := newNode(t, nil)
			grow(t, a, 3)

			b := newNode(t, nil)
			grow(t, b, 5)
			srvB := serve(t, b.Chain(0), b.Chain(0))

			a = newNode(t, peers(srvB), a.Chain(0)...)
			a.UpsertMempool(database.NewTx("alice", "bob", 1))

			replaced, err := a.Resolve(context.Background())
			if err != nil || !replaced {
				t.Fatalf("\t%s\tTest 0:\tShould replace the chain: replaced[%v]: %v", failed, replaced, err)
			}
			t.Logf("\t%s\tTest 0:\tShould replace the chain.", success)

			if a.Length() != 5 || a.LatestBlock().Hash != b.LatestBlock().Hash {
				t.Fatalf("\t%s\tTest 0:\tShould have the peer's chain: length[%d]", failed, a.Length())
			}
			t.Logf("\t%s\tTest 0:\tShould have the peer's chain.", success)

			if a.MempoolLength() != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould truncate the mempool, got %d.", failed, a.MempoolLength())
			}
			t.Logf("\t%s\tTest 0:\tShould truncate the mempool.", success)

			if stats := a.Stats(); stats.ChainReplacements != 1 || stats.ResolveRuns != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould count the replacement: %+v", failed, stats)
			}
			t.Logf("\t%s\tTest 0:\tShould count the replacement.", success)
		}

		t.Log("\tTest 1:\tWhen a longer chain fails proof of work.")
		{
			a := newNode(t, nil)
			grow(t, a, 3)

			bad := mineChain(t, 5)
			bad[3] = unsolve(bad[3])
			srvB := serve(t, bad, bad)

			a = newNode(t, peers(srvB), a.Chain(0)...)
			tip := a.LatestBlock().Hash

			replaced, err := a.Resolve(context.Background())
			if err != nil || replaced {
				t.Fatalf("\t%s\tTest 1:\tShould keep the local chain: replaced[%v]: %v", failed, replaced, err)
			}

			if a.Length() != 3 || a.LatestBlock().Hash != tip {
				t.Fatalf("\t%s\tTest 1:\tShould keep the local chain: length[%d]", failed, a.Length())
			}
			t.Logf("\t%s\tTest 1:\tShould keep the local chain.", success)

			if a.Stats().PeerFailures != 1 {
				t.Fatalf("\t%s\tTest 1:\tShould count the peer failure: %+v", failed, a.Stats())
			}
			t.Logf("\t%s\tTest 1:\tShould count the peer failure.", success)
		}

		t.Log("\tTest 2:\tWhen a peer serves blocks that do not match its headers.")
		{
			headers := mineChain(t, 5)
			bodies := mineChain(t, 5)
			srvB := serve(t, headers, bodies)

			a := newNode(t, peers(srvB))

			replaced, err := a.Resolve(context.Background())
			if err != nil || replaced {
				t.Fatalf("\t%s\tTest 2:\tShould reject the chain: replaced[%v]: %v", failed, replaced, err)
			}
			t.Logf("\t%s\tTest 2:\tShould reject the chain.", success)
		}

		t.Log("\tTest 3:\tWhen one peer is down and another is longer.")
		{
			down := httptest.NewServer(http.NotFoundHandler())
			down.Close()

			good := mineChain(t, 4)
			srvB := serve(t, good, good)

			a := newNode(t, peers(down, srvB))

			replaced, err := a.Resolve(context.Background())
			if err != nil || !replaced {
				t.Fatalf("\t%s\tTest 3:\tShould replace the chain: replaced[%v]: %v", failed, replaced, err)
			}

			if a.LatestBlock().Hash != good[3].Hash {
				t.Fatalf("\t%s\tTest 3:\tShould have the reachable peer's chain.", failed)
			}
			t.Logf("\t%s\tTest 3:\tShould have the reachable peer's chain.", success)
		}

		t.Log("\tTest 4:\tWhen two peers have valid chains of different length.")
		{
			short := mineChain(t, 4)
			long := mineChain(t, 6)
			srvShort := serve(t, short, short)
			srvLong := serve(t, long, long)

			a := newNode(t, peers(srvShort, srvLong))

			if _, err := a.Resolve(context.Background()); err != nil {
				t.Fatalf("\t%s\tTest 4:\tShould resolve: %v", failed, err)
			}

			if a.Length() != 6 || a.LatestBlock().Hash != long[5].Hash {
				t.Fatalf("\t%s\tTest 4:\tShould have the longest chain: length[%d]", failed, a.Length())
			}
			t.Logf("\t%s\tTest 4:\tShould have the longest chain.", success)
		}

		t.Log("\tTest 5:\tWhen two peers have valid chains of the same length.")
		{
			first := mineChain(t, 4)
			second := mineChain(t, 4)
			srv1 := serve(t, first, first)
			srv2 := serve(t, second, second)

			// Ties go to the peer whose host sorts first.
			exp := first
			if host(srv2) < host(srv1) {
				exp = second
			}

			a := newNode(t, peers(srv1, srv2))

			if _, err := a.Resolve(context.Background()); err != nil {
				t.Fatalf("\t%s\tTest 5:\tShould resolve: %v", failed, err)
			}

			if a.LatestBlock().Hash != exp[3].Hash {
				t.Fatalf("\t%s\tTest 5:\tShould take the chain from the first peer by host.", failed)
			}
			t.Logf("\t%s\tTest 5:\tShould take the chain from the first peer by host.", success)
		}

		t.Log("\tTest 6:\tWhen no peer has a longer chain.")
		{
			same := mineChain(t, 3)
			srvB := serve(t, same, same)

			a := newNode(t, peers(srvB))
			grow(t, a, 3)
			tip := a.LatestBlock().Hash

			replaced, err := a.Resolve(context.Background())
			if err != nil || replaced {
				t.Fatalf("\t%s\tTest 6:\tShould keep the local chain: replaced[%v]: %v", failed, replaced, err)
			}

			if a.LatestBlock().Hash != tip {
				t.Fatalf("\t%s\tTest 6:\tShould keep the local chain.", failed)
			}
			t.Logf("\t%s\tTest 6:\tShould keep the local chain on equal length.", success)
		}

		t.Log("\tTest 7:\tWhen the local chain outgrows the peer's while its blocks download.")
		{
			var a *state.State
			grown := func() {
				for a.Length() < 6 {
					a.UpsertMempool(database.Tx{Sender: "alice", Receiver: "bob", Amount: float64(seq.Add(1)), TimeStamp: database.Now()})
					if _, err := a.MineNewBlock(context.Background()); err != nil {
						t.Errorf("\t%s\tTest 7:\tShould be able to mine while resolving: %v", failed, err)
						return
					}
				}
				a.UpsertMempool(database.NewTx("alice", "bob", 1))
			}

			longer := mineChain(t, 4)
			srvB := serveHook(t, longer, longer, grown)

			a = newNode(t, peers(srvB))
			grow(t, a, 3)

			replaced, err := a.Resolve(context.Background())
			if err != nil || replaced {
				t.Fatalf("\t%s\tTest 7:\tShould keep the local chain: replaced[%v]: %v", failed, replaced, err)
			}
			t.Logf("\t%s\tTest 7:\tShould keep the local chain.", success)

			if a.Length() != 6 {
				t.Fatalf("\t%s\tTest 7:\tShould not shrink the local chain, got length %d.", failed, a.Length())
			}
			t.Logf("\t%s\tTest 7:\tShould not shrink the local chain.", success)

			if a.MempoolLength() != 1 || a.Stats().ChainReplacements != 0 {
				t.Fatalf("\t%s\tTest 7:\tShould leave the mempool alone: mempool[%d]: %+v", failed, a.MempoolLength(), a.Stats())
			}
			t.Logf("\t%s\tTest 7:\tShould leave the mempool alone.", success)
		}

		t.Log("\tTest 8:\tWhen more peers are known than are asked at once.")
		{
			short := mineChain(t, 4)
			long := mineChain(t, 6)

			var srvs []*httptest.Server
			for i := 0; i < 11; i++ {
				srvs = append(srvs, serve(t, short, short))
			}
			srvs = append(srvs, serve(t, long, long))

			for i := 0; i < 2; i++ {
				down := httptest.NewServer(http.NotFoundHandler())
				down.Close()
				srvs = append(srvs, down)
			}

			a := newNode(t, peers(srvs...))

			replaced, err := a.Resolve(context.Background())
			if err != nil || !replaced {
				t.Fatalf("\t%s\tTest 8:\tShould replace the chain: replaced[%v]: %v", failed, replaced, err)
			}

			if a.Length() != 6 || a.LatestBlock().Hash != long[5].Hash {
				t.Fatalf("\t%s\tTest 8:\tShould adopt the longest chain of every peer: length[%d]", failed, a.Length())
			}
			t.Logf("\t%s\tTest 8:\tShould adopt the longest chain of every peer.", success)

			if stats := a.Stats(); stats.PeerFailures != 2 {
				t.Fatalf("\t%s\tTest 8:\tShould count the two peers that are down: %+v", failed, stats)
			}
			t.Logf("\t%s\tTest 8:\tShould count the two peers that are down.", success)
		}
	}
}

func Test_MineNewBlock(t *testing.T) {
	t.Log("Given the need to mine the pending transactions.")
	{
		st := newNode(t, nil)

		if _, err := st.MineNewBlock(context.Background()); err != state.ErrNoTransactions {
			t.Fatalf("\t%s\tShould refuse to mine an empty mempool: %v", failed, err)
		}
		t.Logf("\t%s\tShould refuse to mine an empty mempool.", success)

		st.UpsertMempool(database.NewTx("alice", "bob", 1))
		st.UpsertMempool(database.NewTx("bob", "carol", 2))

		block, err := st.MineNewBlock(context.Background())
		if err != nil {
			t.Fatalf("\t%s\tShould mine a block: %v", failed, err)
		}

		if block.Index != 1 || len(block.Transactions) != 2 || st.Length() != 2 {
			t.Fatalf("\t%s\tShould append the block with every pending transaction: %s", failed, block)
		}
		t.Logf("\t%s\tShould append the block with every pending transaction.", success)

		if st.MempoolLength() != 0 {
			t.Fatalf("\t%s\tShould remove mined transactions from the mempool.", failed)
		}
		t.Logf("\t%s\tShould remove mined transactions from the mempool.", success)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		st.UpsertMempool(database.NewTx("carol", "dave", 3))
		if _, err := st.MineNewBlock(ctx); err == nil {
			t.Fatalf("\t%s\tShould stop mining when cancelled.", failed)
		}

		if st.Length() != 2 || st.MempoolLength() != 1 || st.Stats().MiningCancelled != 1 {
			t.Fatalf("\t%s\tShould leave the chain and mempool alone when cancelled: %+v", failed, st.Stats())
		}
		t.Logf("\t%s\tShould leave the chain and mempool alone when cancelled.", success)
	}
}

func Test_SubmitAndProve(t *testing.T) {
	t.Log("Given the need to accept signed transactions and prove their inclusion.")
	{
		st := newNode(t, nil)

		pk, err := crypto.HexToECDSA(keyHex)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to load the key: %v", failed, err)
		}

		var hashes []string
		for i := 1; i <= 3; i++ {
			tx := database.Tx{Sender: address, Receiver: "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32", Amount: float64(i), TimeStamp: 1700000000 + float64(i)}

			signed, err := tx.Sign(pk)
			if err != nil {
				t.Fatalf("\t%s\tShould be able to sign: %v", failed, err)
			}

			if _, err := st.SubmitTransaction(signed); err != nil {
				t.Fatalf("\t%s\tShould accept a signed transaction: %v", failed, err)
			}
			hashes = append(hashes, tx.HashHex())
		}
		t.Logf("\t%s\tShould accept signed transactions.", success)

		forged := database.Tx{Sender: "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32", Receiver: address, Amount: 100, TimeStamp: 1700000100}
		signed, err := forged.Sign(pk)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to sign: %v", failed, err)
		}

		if _, err := st.SubmitTransaction(signed); err == nil {
			t.Fatalf("\t%s\tShould reject a transaction not signed by the sender.", failed)
		}
		t.Logf("\t%s\tShould reject a transaction not signed by the sender.", success)

		if _, err := st.MineNewBlock(context.Background()); err != nil {
			t.Fatalf("\t%s\tShould mine a block: %v", failed, err)
		}

		for _, h := range hashes {
			proof, err := st.TxProof(1, h)
			if err != nil {
				t.Fatalf("\t%s\tShould build a proof for %s: %v", failed, h, err)
			}

			if proof.MerkleRoot != st.LatestBlock().MerkleRoot || !proof.Verify() {
				t.Fatalf("\t%s\tShould build a proof that verifies for %s.", failed, h)
			}
		}
		t.Logf("\t%s\tShould build proofs that verify against the block root.", success)

		if _, err := st.TxProof(1, strings.Repeat("a", 64)); err != state.ErrTxNotFound {
			t.Fatalf("\t%s\tShould fail to prove an unknown transaction: %v", failed, err)
		}
		t.Logf("\t%s\tShould fail to prove an unknown transaction.", success)
	}
}

func Test_RegisterPeer(t *testing.T) {
	t.Log("Given the need to register peers.")
	{
		st := newNode(t, nil)

		for _, addr := range []string{"http://127.0.0.1:9180", "127.0.0.1:9180"} {
			if _, err := st.RegisterPeer(addr); err != nil {
				t.Fatalf("\t%s\tShould register %s: %v", failed, addr, err)
			}
		}

		if _, err := st.RegisterPeer("http://"); err != peer.ErrInvalidAddress {
			t.Fatalf("\t%s\tShould reject an address without a host: %v", failed, err)
		}

		if peers := st.KnownPeers(); len(peers) != 1 || peers[0].Host != "127.0.0.1:9180" {
			t.Fatalf("\t%s\tShould know exactly one peer: %v", failed, peers)
		}
		t.Logf("\t%s\tShould know exactly one peer.", success)

		status := st.Status()
		if status.Length != 1 || status.LatestBlockHash != st.LatestBlock().Hash {
			t.Fatalf("\t%s\tShould report the chain in the status: %+v", failed, status)
		}
		t.Logf("\t%s\tShould report the chain in the status.", success)
	}
}

// =============================================================================

func testGenesis() genesis.Genesis {
	return genesis.Genesis{
		Date:       time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		Difficulty: 2,
	}
}

// newNode constructs a node over memory storage preloaded with the blocks.
func newNode(t *testing.T, knownPeers *peer.PeerSet, blocks ...database.Block) *state.State {
	t.Helper()

	strg := storage.NewMemory()
	if len(blocks) > 0 {
		if err := strg.Replace(blocks); err != nil {
			t.Fatalf("\t%s\tShould be able to load storage: %v", failed, err)
		}
	}

	st, err := state.New(state.Config{
		NodeAddress: address,
		Host:        "127.0.0.1:1",
		Genesis:     testGenesis(),
		Storage:     strg,
		KnownPeers:  knownPeers,
		PeerTimeout: 2 * time.Second,
		EvHandler:   func(v string, args ...any) { t.Logf("\t\t"+v, args...) },
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the node: %v", failed, err)
	}

	return st
}

// seq keeps the transactions of independently mined chains distinct.
var seq atomic.Uint64

// grow mines blocks until the chain has the specified length.
func grow(t *testing.T, st *state.State, length uint64) {
	t.Helper()

	for st.Length() < length {
		st.UpsertMempool(database.Tx{Sender: "alice", Receiver: "bob", Amount: float64(seq.Add(1)), TimeStamp: database.Now()})
		if _, err := st.MineNewBlock(context.Background()); err != nil {
			t.Fatalf("\t%s\tShould be able to mine: %v", failed, err)
		}
	}
}

// mineChain mines a chain of the specified length from the shared genesis.
func mineChain(t *testing.T, length int) []database.Block {
	t.Helper()

	st := newNode(t, nil)
	grow(t, st, uint64(length))

	return st.Chain(0)
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

// serve starts a peer that answers header requests from one chain and block
// requests from another.
func serve(t *testing.T, headers []database.Block, bodies []database.Block) *httptest.Server {
	return serveHook(t, headers, bodies, nil)
}

// serveHook is serve with a function run before every block request is
// answered.
func serveHook(t *testing.T, headers []database.Block, bodies []database.Block, onChain func()) *httptest.Server {
	pageSize := func(r *http.Request, n int) int {
		size, err := strconv.Atoi(r.URL.Query().Get("page_size"))
		if err != nil || size <= 0 || size > n {
			return n
		}
		return size
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/chain/headers", func(w http.ResponseWriter, r *http.Request) {
		n := pageSize(r, len(headers))

		page := peer.HeadersPage{Length: uint64(len(headers))}
		for _, b := range headers[:n] {
			page.Headers = append(page.Headers, b.HeaderData())
		}

		json.NewEncoder(w).Encode(page)
	})

	mux.HandleFunc("/chain", func(w http.ResponseWriter, r *http.Request) {
		if onChain != nil {
			onChain()
		}

		n := pageSize(r, len(bodies))
		json.NewEncoder(w).Encode(peer.ChainPage{Length: uint64(len(bodies)), Chain: bodies[:n]})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

func host(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "http://")
}

func peers(srvs ...*httptest.Server) *peer.PeerSet {
	ps := peer.NewPeerSet()
	for _, srv := range srvs {
		ps.Add(peer.New(host(srv)))
	}

	return ps
}
