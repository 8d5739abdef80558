// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/powledger/node/business/sys/validate"
	"github.com/powledger/node/business/web/errs"
	"github.com/powledger/node/foundation/blockchain/database"
	"github.com/powledger/node/foundation/blockchain/signature"
	"github.com/powledger/node/foundation/blockchain/state"
	"github.com/powledger/node/foundation/events"
	"github.com/powledger/node/foundation/nameservice"
	"github.com/powledger/node/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of public endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	// Need this to handle CORS on the websocket.
	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	// This upgrades the HTTP connection to a websocket connection.
	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	// This provides a channel for receiving events from the blockchain.
	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	// Starting a ticker to send a ping message over the websocket.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	// Block waiting to receive events and send them to the client.
	for {
		select {
		case msg, wd := <-ch:

			// If the channel is closed, release the websocket.
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.Genesis(), http.StatusOK)
}

// SubmitTransaction adds a signed wallet transaction to the mempool.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var req submitTx
	if err := web.Decode(r, &req); err != nil {
		return errs.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
	}

	if err := validate.Check(req); err != nil {
		return err
	}

	sv, sr, ss, err := signature.ToVRSFromHexSignature(req.Signature)
	if err != nil {
		return errs.BadRequest(err)
	}

	signedTx := database.SignedTx{
		Tx: database.Tx{
			Sender:    req.Sender,
			Receiver:  req.Receiver,
			Amount:    req.Amount,
			TimeStamp: req.TimeStamp,
		},
		V: sv,
		R: sr,
		S: ss,
	}

	h.Log.Infow("submit tx", "traceid", v.TraceID, "sender", req.Sender, "receiver", req.Receiver, "amount", req.Amount)

	n, err := h.State.SubmitTransaction(signedTx)
	if err != nil {
		return errs.BadRequest(err)
	}

	resp := struct {
		Message string `json:"message"`
		Hash    string `json:"hash"`
		Pending int    `json:"pending"`
	}{
		Message: "transaction added to mempool",
		Hash:    signedTx.HashHex(),
		Pending: n,
	}

	return web.Respond(ctx, w, resp, http.StatusCreated)
}

// Pending returns the set of transactions waiting to be mined.
func (h Handlers) Pending(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	mempool := h.State.Mempool()

	trans := make([]tx, len(mempool))
	for i, tran := range mempool {
		trans[i] = h.toTx(tran)
	}

	return web.Respond(ctx, w, trans, http.StatusOK)
}

// Mine signals the worker to mine the pending transactions.
func (h Handlers) Mine(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	pending := h.State.MempoolLength()
	if pending == 0 {
		return errs.BadRequest(state.ErrNoTransactions)
	}

	if h.State.Worker == nil {
		return errs.NewTrusted(errors.New("mining is not running on this node"), http.StatusServiceUnavailable)
	}

	h.State.Worker.SignalStartMining()

	resp := struct {
		Message string `json:"message"`
		Pending int    `json:"pending"`
	}{
		Message: "mining signaled",
		Pending: pending,
	}

	return web.Respond(ctx, w, resp, http.StatusAccepted)
}

// Blocks returns the chain, starting with genesis.
func (h Handlers) Blocks(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	chain := h.State.Chain(0)

	blocks := make([]block, len(chain))
	for i, blk := range chain {
		blocks[i] = h.toBlock(blk)
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}

// BlockByIndex returns the block at the specified index.
func (h Handlers) BlockByIndex(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	index, err := indexParam(r)
	if err != nil {
		return err
	}

	blk, err := h.State.BlockByIndex(index)
	if err != nil {
		return notFound(err)
	}

	return web.Respond(ctx, w, h.toBlock(blk), http.StatusOK)
}

// BlockByHash returns the block with the specified hash.
func (h Handlers) BlockByHash(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	blk, err := h.State.BlockByHash(web.Param(r, "hash"))
	if err != nil {
		return notFound(err)
	}

	return web.Respond(ctx, w, h.toBlock(blk), http.StatusOK)
}

// TxProof returns the merkle inclusion proof for a transaction in a block.
func (h Handlers) TxProof(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	index, err := indexParam(r)
	if err != nil {
		return err
	}

	proof, err := h.State.TxProof(index, web.Param(r, "txhash"))
	if err != nil {
		if errors.Is(err, state.ErrTxNotFound) {
			return errs.NotFound(err)
		}
		return notFound(err)
	}

	return web.Respond(ctx, w, proof, http.StatusOK)
}

// NodeAddress returns the account address of this node.
func (h Handlers) NodeAddress(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	resp := struct {
		Address string `json:"address"`
		Name    string `json:"name"`
	}{
		Address: h.State.NodeAddress(),
		Name:    h.NS.Lookup(h.State.NodeAddress()),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// =============================================================================

func (h Handlers) toTx(tran database.Tx) tx {
	return tx{
		Hash:         tran.HashHex(),
		Sender:       tran.Sender,
		SenderName:   h.NS.Lookup(tran.Sender),
		Receiver:     tran.Receiver,
		ReceiverName: h.NS.Lookup(tran.Receiver),
		Amount:       tran.Amount,
		TimeStamp:    tran.TimeStamp,
	}
}

func (h Handlers) toBlock(blk database.Block) block {
	trans := make([]tx, len(blk.Transactions))
	for i, tran := range blk.Transactions {
		trans[i] = h.toTx(tran)
	}

	return block{
		Index:        blk.Index,
		Hash:         blk.Hash,
		Header:       blk.Header,
		MerkleRoot:   blk.MerkleRoot,
		Transactions: trans,
	}
}

func indexParam(r *http.Request) (uint64, error) {
	index, err := strconv.ParseUint(web.Param(r, "index"), 10, 64)
	if err != nil {
		return 0, errs.BadRequest(fmt.Errorf("invalid block index %q", web.Param(r, "index")))
	}

	return index, nil
}

func notFound(err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return errs.NotFound(err)
	}
	return err
}
