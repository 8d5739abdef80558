package state

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/powledger/node/foundation/blockchain/database"
	"github.com/powledger/node/foundation/blockchain/peer"
)

const baseURL = "http://%s"

// NetRequestHeaders asks the peer for up to pageSize headers starting with
// genesis. A pageSize of 0 asks for every header.
func (s *State) NetRequestHeaders(ctx context.Context, pr peer.Peer, pageSize uint64) (peer.HeadersPage, error) {
	url := fmt.Sprintf("%s/chain/headers?page_size=%d", fmt.Sprintf(baseURL, pr.Host), pageSize)

	var page peer.HeadersPage
	if err := s.send(ctx, http.MethodGet, url, nil, &page); err != nil {
		return peer.HeadersPage{}, err
	}

	s.evHandler("state: NetRequestHeaders: peer[%s]: length[%d]: headers[%d]", pr.Host, page.Length, len(page.Headers))

	return page, nil
}

// NetRequestChain asks the peer for up to pageSize blocks starting with
// genesis.
func (s *State) NetRequestChain(ctx context.Context, pr peer.Peer, pageSize uint64) (peer.ChainPage, error) {
	url := fmt.Sprintf("%s/chain?page_size=%d", fmt.Sprintf(baseURL, pr.Host), pageSize)

	var page peer.ChainPage
	if err := s.send(ctx, http.MethodGet, url, nil, &page); err != nil {
		return peer.ChainPage{}, err
	}

	s.evHandler("state: NetRequestChain: peer[%s]: length[%d]: blocks[%d]", pr.Host, page.Length, len(page.Chain))

	return page, nil
}

// NetRequestPeerStatus asks the peer for its status which includes the
// peers it knows about.
func (s *State) NetRequestPeerStatus(ctx context.Context, pr peer.Peer) (peer.PeerStatus, error) {
	url := fmt.Sprintf("%s/status", fmt.Sprintf(baseURL, pr.Host))

	var ps peer.PeerStatus
	if err := s.send(ctx, http.MethodGet, url, nil, &ps); err != nil {
		return peer.PeerStatus{}, err
	}

	s.evHandler("state: NetRequestPeerStatus: peer[%s]: latest-blk[%d]: peer-list[%v]", pr.Host, ps.LatestBlockIndex, ps.KnownPeers)

	return ps, nil
}

// NetSendRegister announces this node to the peer.
func (s *State) NetSendRegister(ctx context.Context, pr peer.Peer) error {
	if s.host == "" {
		return nil
	}

	url := fmt.Sprintf("%s/nodes/register", fmt.Sprintf(baseURL, pr.Host))

	register := struct {
		Address string `json:"address"`
	}{
		Address: s.host,
	}

	return s.send(ctx, http.MethodPost, url, register, nil)
}

// NetDiscoverPeers asks every known peer for the peers they know about and
// registers the new ones.
func (s *State) NetDiscoverPeers(ctx context.Context) {
	for _, pr := range s.KnownPeers() {
		ps, err := s.NetRequestPeerStatus(ctx, pr)
		if err != nil {
			s.peerFailures.Add(1)
			s.evHandler("state: NetDiscoverPeers: peer[%s]: ERROR: %s", pr.Host, err)
			continue
		}

		for _, known := range ps.KnownPeers {
			if known.Match(s.host) {
				continue
			}

			if s.knownPeers.Add(known) {
				s.evHandler("state: NetDiscoverPeers: added peer[%s]", known.Host)
			}
		}
	}
}

// =============================================================================

// send is a helper function to send an HTTP request to a node. Every call is
// bounded by the configured peer timeout.
func (s *State) send(ctx context.Context, method string, url string, dataSend any, dataRecv any) error {
	ctx, cancel := context.WithTimeout(ctx, s.peerTimeout)
	defer cancel()

	var body io.Reader
	if dataSend != nil {
		data, err := json.Marshal(dataSend)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err != nil {
			return err
		}
		return fmt.Errorf("status[%d]: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if dataRecv != nil {
		if err := json.NewDecoder(resp.Body).Decode(dataRecv); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}

// matchBodies verifies the blocks are the ones described by the headers.
func matchBodies(headers []database.HeaderData, blocks []database.Block) error {
	if len(headers) != len(blocks) {
		return fmt.Errorf("headers[%d] but blocks[%d]", len(headers), len(blocks))
	}

	for i := range headers {
		if headers[i].Hash != blocks[i].Hash {
			return fmt.Errorf("blk[%d]: hash[%s] does not match header[%s]", i, blocks[i].Hash, headers[i].Hash)
		}
	}

	return nil
}
