// Package private maintains the group of handlers for node to node access.
package private

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/powledger/node/business/sys/validate"
	"github.com/powledger/node/business/web/errs"
	"github.com/powledger/node/foundation/blockchain/peer"
	"github.com/powledger/node/foundation/blockchain/state"
	"github.com/powledger/node/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of node to node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
}

// Headers returns a page of block headers starting with genesis.
func (h Handlers) Headers(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	pageSize, err := pageSize(r)
	if err != nil {
		return err
	}

	resp := peer.HeadersPage{
		Length:  h.State.Length(),
		Headers: h.State.Headers(pageSize),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Chain returns a page of blocks starting with genesis.
func (h Handlers) Chain(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	pageSize, err := pageSize(r)
	if err != nil {
		return err
	}

	resp := peer.ChainPage{
		Length: h.State.Length(),
		Chain:  h.State.Chain(pageSize),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// RegisterPeer adds a peer to the set of known peers.
func (h Handlers) RegisterPeer(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var req registerPeer
	if err := web.Decode(r, &req); err != nil {
		return errs.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
	}

	if err := validate.Check(req); err != nil {
		return err
	}

	added, err := h.State.RegisterPeer(req.Address)
	if err != nil {
		if errors.Is(err, peer.ErrInvalidAddress) {
			return errs.BadRequest(err)
		}
		return err
	}

	h.Log.Infow("register peer", "traceid", v.TraceID, "address", req.Address, "added", added)

	resp := struct {
		Message    string      `json:"message"`
		TotalNodes []peer.Peer `json:"total_nodes"`
	}{
		Message:    "new node has been added",
		TotalNodes: h.State.KnownPeers(),
	}
	if !added {
		resp.Message = "node is already known"
	}

	return web.Respond(ctx, w, resp, http.StatusCreated)
}

// KnownPeers returns the set of known peers.
func (h Handlers) KnownPeers(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	resp := struct {
		Nodes []peer.Peer `json:"nodes"`
	}{
		Nodes: h.State.KnownPeers(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Resolve runs consensus against the known peers.
func (h Handlers) Resolve(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	replaced, err := h.State.Resolve(ctx)
	if err != nil {
		return err
	}

	resp := struct {
		Message string `json:"message"`
		Length  uint64 `json:"length"`
	}{
		Message: "our chain is authoritative",
		Length:  h.State.Length(),
	}
	if replaced {
		resp.Message = "our chain was replaced"
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Status returns the current status of the node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.Status(), http.StatusOK)
}

// =============================================================================

// pageSize reads the page_size query parameter. A missing value or 0 means
// every item.
func pageSize(r *http.Request) (uint64, error) {
	s := r.URL.Query().Get("page_size")
	if s == "" {
		return 0, nil
	}

	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errs.BadRequest(fmt.Errorf("invalid page_size %q", s))
	}

	return n, nil
}
