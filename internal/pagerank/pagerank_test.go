package pagerank

import (
	"context"
	"math"
	"testing"

	"github.com/lopezcrawl/lopez/pkg/backend"
	"github.com/lopezcrawl/lopez/pkg/backend/memstore"
)

func seedLinkage(t *testing.T, be backend.Backend, ctx context.Context, waveID uint64, urls []string, edges [][2]int) []uint64 {
	t.Helper()
	ids, err := be.EnsurePages(ctx, urls)
	if err != nil {
		t.Fatalf("EnsurePages: %v", err)
	}
	seeds := make([]backend.StatusSeed, len(ids))
	for i, id := range ids {
		seeds[i] = backend.StatusSeed{PageID: id, Depth: 0}
	}
	if err := be.EnsureStatus(ctx, waveID, seeds); err != nil {
		t.Fatalf("EnsureStatus: %v", err)
	}
	batch, err := be.FetchBatch(ctx, waveID, len(urls), 10, 10)
	if err != nil {
		t.Fatalf("FetchBatch: %v", err)
	}
	if len(batch) != len(urls) {
		t.Fatalf("FetchBatch = %d items, want %d", len(batch), len(urls))
	}
	for _, from := range ids {
		var linkage []backend.LinkageEdge
		for _, e := range edges {
			if ids[e[0]] == from {
				linkage = append(linkage, backend.LinkageEdge{From: from, To: ids[e[1]], Reason: backend.ReasonAHref})
			}
		}
		if err := be.Close(ctx, waveID, from, 200, linkage, nil); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
	return ids
}

func TestRunRanksLinearChain(t *testing.T) {
	ctx := context.Background()
	be := memstore.New()
	waveID, err := be.EnsureWave(ctx, "w")
	if err != nil {
		t.Fatalf("EnsureWave: %v", err)
	}

	// a -> b -> c
	urls := []string{"https://ex.test/a", "https://ex.test/b", "https://ex.test/c"}
	ids := seedLinkage(t, be, ctx, waveID, urls, [][2]int{{0, 1}, {1, 2}})

	ranks, err := Run(ctx, be, waveID, DefaultOptions())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(ranks) != 3 {
		t.Fatalf("ranks = %v, want 3 entries", ranks)
	}
	if ranks[ids[2]] <= ranks[ids[0]] {
		t.Errorf("expected the sink page to rank higher: a=%v c=%v", ranks[ids[0]], ranks[ids[2]])
	}

	sum := 0.0
	for _, r := range ranks {
		sum += r
	}
	if math.Abs(sum-1.0) > 0.05 {
		t.Errorf("ranks should sum close to 1.0, got %v", sum)
	}
}

func TestRunEmptyGraph(t *testing.T) {
	ctx := context.Background()
	be := memstore.New()
	waveID, err := be.EnsureWave(ctx, "empty")
	if err != nil {
		t.Fatalf("EnsureWave: %v", err)
	}
	ranks, err := Run(ctx, be, waveID, DefaultOptions())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(ranks) != 0 {
		t.Errorf("ranks = %v, want empty", ranks)
	}
}
