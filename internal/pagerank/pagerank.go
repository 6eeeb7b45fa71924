// Package pagerank implements the post-crawl PageRank batch job (§3
// "PageRank", §12 supplemented feature): a small power-iteration over a
// wave's `ahref` linkage graph, committed back through the Backend
// interface. There is no teacher or pack analogue for graph PageRank, so
// this is a direct, standard-library power-iteration rather than an
// adaptation of existing code — see DESIGN.md for the stdlib
// justification.
package pagerank

import (
	"context"

	"github.com/lopezcrawl/lopez/pkg/backend"
)

const (
	// damping is the classic PageRank damping factor.
	damping = 0.85
	// maxIterations bounds power iteration when convergence is slow.
	maxIterations = 100
	// tolerance is the L1 rank-delta convergence threshold.
	tolerance = 1e-6
)

// Options configures a Run.
type Options struct {
	Damping   float64
	MaxIters  int
	Tolerance float64
}

// DefaultOptions returns the standard PageRank parameters.
func DefaultOptions() Options {
	return Options{Damping: damping, MaxIters: maxIterations, Tolerance: tolerance}
}

// Run streams wave's `ahref` linkage graph via Backend.IterateLinkage,
// computes PageRank by power iteration, and commits the result via
// Backend.CommitPageRank. It returns the computed ranks for callers (e.g.
// the CLI) that want to report them directly.
func Run(ctx context.Context, be backend.Backend, waveID uint64, opts Options) (map[uint64]float64, error) {
	if opts.Damping <= 0 {
		opts.Damping = damping
	}
	if opts.MaxIters <= 0 {
		opts.MaxIters = maxIterations
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = tolerance
	}

	g := newGraph()
	err := be.IterateLinkage(ctx, waveID, func(from, to uint64) error {
		g.addEdge(from, to)
		return nil
	})
	if err != nil {
		return nil, err
	}

	ranks := g.compute(opts)
	if err := be.CommitPageRank(ctx, waveID, ranks); err != nil {
		return nil, err
	}
	return ranks, nil
}

// graph is an adjacency-list representation built purely from the edges
// IterateLinkage streams; nodes are discovered implicitly from edge
// endpoints, so pages with no ahref edges at all are never ranked (they
// carry no PageRank mass to redistribute and default to zero downstream).
type graph struct {
	out   map[uint64][]uint64
	nodes map[uint64]bool
}

func newGraph() *graph {
	return &graph{out: make(map[uint64][]uint64), nodes: make(map[uint64]bool)}
}

func (g *graph) addEdge(from, to uint64) {
	g.out[from] = append(g.out[from], to)
	g.nodes[from] = true
	g.nodes[to] = true
}

// compute runs power iteration to (approximate) convergence, uniformly
// redistributing a dangling node's (no outlinks) mass across every node,
// the standard treatment for the random-surfer model.
func (g *graph) compute(opts Options) map[uint64]float64 {
	n := len(g.nodes)
	if n == 0 {
		return map[uint64]float64{}
	}

	ids := make([]uint64, 0, n)
	for id := range g.nodes {
		ids = append(ids, id)
	}

	rank := make(map[uint64]float64, n)
	base := 1.0 / float64(n)
	for _, id := range ids {
		rank[id] = base
	}

	for iter := 0; iter < opts.MaxIters; iter++ {
		next := make(map[uint64]float64, n)
		danglingMass := 0.0
		for _, id := range ids {
			outs := g.out[id]
			if len(outs) == 0 {
				danglingMass += rank[id]
				continue
			}
			share := rank[id] / float64(len(outs))
			for _, to := range outs {
				next[to] += share
			}
		}

		delta := 0.0
		teleport := (1 - opts.Damping) / float64(n)
		danglingShare := opts.Damping * danglingMass / float64(n)
		for _, id := range ids {
			v := teleport + danglingShare + opts.Damping*next[id]
			delta += abs(v - rank[id])
			rank[id] = v
		}
		if delta < opts.Tolerance {
			break
		}
	}

	return rank
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
