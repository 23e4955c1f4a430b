package blockchain

import (
	"context"

	"github.com/prometheus/common/log"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentFetches bounds the number of peers queried at once while resolving.
const maxConcurrentFetches = 8

// NodeLister : Yields the network locations of the known peers
type NodeLister interface {
	Nodes() []string
}

// ChainFetcher : Retrieves a peer's full chain. An error means the peer is skipped.
type ChainFetcher interface {
	FetchChain(ctx context.Context, node string) (*ChainDTO, error)
}

// Resolve : Replaces the local chain with the longest valid candidate that is strictly
// longer than it. Candidates are considered in order, so the first of several equally
// long chains wins. Returns true if the chain was replaced.
func (b *BlockChain) Resolve(candidates []*ChainDTO) bool {
	// Validation is pure, keep it outside the lock.
	valid := make([]*ChainDTO, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate == nil || candidate.Length != len(candidate.Chain) {
			continue
		}
		if !ValidChain(candidate.Chain) {
			log.Debugf("Discarding invalid candidate chain of length %d", candidate.Length)
			continue
		}
		valid = append(valid, candidate)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	maxLength := len(b.chain)
	var newChain []*Block
	for _, candidate := range valid {
		if candidate.Length > maxLength {
			maxLength = candidate.Length
			newChain = candidate.Chain
		}
	}

	if newChain != nil {
		b.chain = newChain
		log.Infof("Chain replaced, new length %d", len(newChain))
		return true
	}
	return false
}

// ResolveConflicts : Fetches the chain of every known node and resolves against them.
// Nodes that cannot be reached are skipped.
func (b *BlockChain) ResolveConflicts(ctx context.Context, nodes NodeLister, fetcher ChainFetcher) bool {
	peers := nodes.Nodes()
	candidates := make([]*ChainDTO, len(peers))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for i, node := range peers {
		i, node := i, node
		g.Go(func() error {
			candidate, err := fetcher.FetchChain(ctx, node)
			if err != nil {
				log.Warnf("Unable to retrieve chain from node %s: %s", node, err)
				return nil
			}
			candidates[i] = candidate
			return nil
		})
	}
	_ = g.Wait()

	return b.Resolve(candidates)
}
