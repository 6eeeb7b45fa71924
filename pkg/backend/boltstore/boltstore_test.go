package boltstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/lopezcrawl/lopez/internal/value"
	"github.com/lopezcrawl/lopez/pkg/backend"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lopez.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.CloseBackend() })
	return s
}

func TestEnsureWaveIdempotent(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	id1, err := s.EnsureWave(ctx, "w1")
	if err != nil {
		t.Fatal(err)
	}
	id2, err := s.EnsureWave(ctx, "w1")
	if err != nil {
		t.Fatal(err)
	}
	if id1 != id2 {
		t.Errorf("ids differ: %d vs %d", id1, id2)
	}
}

func TestFullPageLifecycle(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	waveID, err := s.EnsureWave(ctx, "w")
	if err != nil {
		t.Fatal(err)
	}
	ids, err := s.EnsurePages(ctx, []string{"https://a.com/x", "https://a.com/y"})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.EnsureStatus(ctx, waveID, []backend.StatusSeed{{PageID: ids[0]}, {PageID: ids[1], Depth: 1}}); err != nil {
		t.Fatal(err)
	}

	batch, err := s.FetchBatch(ctx, waveID, 10, 10, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 2 {
		t.Fatalf("batch = %+v", batch)
	}

	if err := s.Close(ctx, waveID, ids[0], 200, []backend.LinkageEdge{{From: ids[0], To: ids[1], Reason: backend.ReasonAHref}}, map[string]value.Value{"title": value.String("hi")}); err != nil {
		t.Fatal(err)
	}
	code500 := 500
	if err := s.Error(ctx, waveID, ids[1], &code500); err != nil {
		t.Fatal(err)
	}

	n, err := s.CountCrawled(ctx, waveID)
	if err != nil || n != 2 {
		t.Fatalf("count = %d, err = %v", n, err)
	}

	var seen []uint64
	err = s.IterateLinkage(ctx, waveID, func(from, to uint64) error {
		seen = append(seen, from, to)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || seen[0] != ids[0] || seen[1] != ids[1] {
		t.Errorf("linkage = %v", seen)
	}

	var gotID uint64
	var gotURL, gotTitle string
	err = s.IterateResults(ctx, waveID, func(pageID uint64, url string, analyses map[string]value.Value) error {
		gotID, gotURL = pageID, url
		if v, ok := analyses["title"].String(); ok {
			gotTitle = v
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if gotID != ids[0] || gotURL != "https://a.com/x" || gotTitle != "hi" {
		t.Fatalf("results: got id=%d url=%q title=%q", gotID, gotURL, gotTitle)
	}
}

func TestReapAndDeleteWave(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	waveID, _ := s.EnsureWave(ctx, "w")
	ids, _ := s.EnsurePages(ctx, []string{"https://a.com/x"})
	s.EnsureStatus(ctx, waveID, []backend.StatusSeed{{PageID: ids[0]}})
	s.FetchBatch(ctx, waveID, 1, 10, 10)

	n, err := s.ReapStaleTaken(ctx, waveID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 reaped row, got %d", n)
	}

	_, pages, err := s.DeleteWave(ctx, "w")
	if err != nil {
		t.Fatal(err)
	}
	if pages != 1 {
		t.Errorf("expected 1 page, got %d", pages)
	}
}

func TestCommitPageRank(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	waveID, _ := s.EnsureWave(ctx, "w")
	ids, _ := s.EnsurePages(ctx, []string{"https://a.com/x"})
	if err := s.CommitPageRank(ctx, waveID, map[uint64]float64{ids[0]: 0.42}); err != nil {
		t.Fatal(err)
	}
}
