package state

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/powledger/node/foundation/blockchain/database"
	"github.com/powledger/node/foundation/blockchain/peer"
	"golang.org/x/sync/errgroup"
)

// maxPeerRequests bounds the number of peers asked for their length at once.
const maxPeerRequests = 8

// candidate is a peer that claims a chain longer than ours.
type candidate struct {
	peer   peer.Peer
	length uint64
}

// Resolve runs the longest valid chain rule against the known peers. Every
// peer is asked for its length, then the peers claiming a longer chain are
// evaluated from the longest down. A candidate's headers are validated
// before its blocks are fetched. The longest chain that validates replaces
// ours. Resolve reports whether the chain was replaced. Failures talking to
// peers are logged and never abort the pass; the returned error is only for
// a failure to replace the local chain.
func (s *State) Resolve(ctx context.Context) (bool, error) {
	s.resolveMu.Lock()
	defer s.resolveMu.Unlock()

	s.resolveRuns.Add(1)

	s.evHandler("state: Resolve: started")
	defer s.evHandler("state: Resolve: completed")

	localLength := s.db.Length()
	peers := s.KnownPeers()

	var errs *multierror.Error
	defer func() {
		if err := errs.ErrorOrNil(); err != nil {
			s.peerFailures.Add(uint64(errs.Len()))
			s.evHandler("state: Resolve: WARNING: %s", err)
		}
	}()

	candidates, peerErrs := s.peerLengths(ctx, peers, localLength)
	errs = multierror.Append(errs, peerErrs...)

	var best []database.Block
	maxLength := localLength

	for _, c := range candidates {
		if c.length <= maxLength {
			continue
		}

		blocks, err := s.fetchValidChain(ctx, c.peer, c.length)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("peer[%s]: %w", c.peer.Host, err))
			continue
		}

		if uint64(len(blocks)) <= maxLength {
			s.evHandler("state: Resolve: peer[%s]: chain length[%d] not longer than[%d]", c.peer.Host, len(blocks), maxLength)
			continue
		}

		s.evHandler("state: Resolve: peer[%s]: valid chain: length[%d]", c.peer.Host, len(blocks))

		best = blocks
		maxLength = uint64(len(blocks))
	}

	if best == nil {
		s.evHandler("state: Resolve: chain is authoritative: length[%d]", localLength)
		return false, nil
	}

	// Stop mining on the old tip and hold it off until the swap is done.
	done := s.cancelMining()
	defer done()

	if err := s.db.Replace(best); err != nil {
		if errors.Is(err, database.ErrChainNotLonger) {
			s.evHandler("state: Resolve: chain grew while resolving: %s", err)
			return false, nil
		}
		return false, fmt.Errorf("replacing chain: %w", err)
	}

	s.mempool.Truncate()
	s.chainReplacements.Add(1)

	s.evHandler("viewer: chain: replaced: length[%d]: tip[%s]", len(best), best[len(best)-1].Hash)

	return true, nil
}

// peerLengths asks every peer for the length of its chain in parallel and
// returns the peers claiming a chain longer than localLength ordered by
// length, longest first. Ties keep the host order of the peers.
func (s *State) peerLengths(ctx context.Context, peers []peer.Peer, localLength uint64) ([]candidate, []error) {
	lengths := make([]uint64, len(peers))
	failures := make([]error, len(peers))

	// Every call records its own failure and returns nil, so one bad peer
	// never cancels the calls to the others and Wait always returns nil.
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxPeerRequests)

	for i := range peers {
		i := i
		g.Go(func() error {
			page, err := s.NetRequestHeaders(ctx, peers[i], 1)
			if err != nil {
				failures[i] = fmt.Errorf("peer[%s]: length: %w", peers[i].Host, err)
				return nil
			}
			lengths[i] = page.Length
			return nil
		})
	}
	g.Wait()

	var candidates []candidate
	var errs []error
	for i := range peers {
		if failures[i] != nil {
			errs = append(errs, failures[i])
			continue
		}

		if lengths[i] > localLength {
			candidates = append(candidates, candidate{peer: peers[i], length: lengths[i]})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].length > candidates[j].length
	})

	return candidates, errs
}

// fetchValidChain pulls the peer's headers, validates them, then pulls the
// blocks the headers describe and validates those.
func (s *State) fetchValidChain(ctx context.Context, pr peer.Peer, length uint64) ([]database.Block, error) {
	hdrPage, err := s.NetRequestHeaders(ctx, pr, length)
	if err != nil {
		return nil, fmt.Errorf("headers: %w", err)
	}

	if err := database.ValidateHeaders(hdrPage.Headers, s.evHandler); err != nil {
		return nil, fmt.Errorf("headers: %w", err)
	}

	chainPage, err := s.NetRequestChain(ctx, pr, uint64(len(hdrPage.Headers)))
	if err != nil {
		return nil, fmt.Errorf("chain: %w", err)
	}

	if err := matchBodies(hdrPage.Headers, chainPage.Chain); err != nil {
		return nil, fmt.Errorf("chain: %w", err)
	}

	if err := database.ValidateChain(chainPage.Chain, s.evHandler); err != nil {
		return nil, fmt.Errorf("chain: %w", err)
	}

	return chainPage.Chain, nil
}
