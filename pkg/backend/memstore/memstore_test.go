package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/lopezcrawl/lopez/internal/value"
	"github.com/lopezcrawl/lopez/pkg/backend"
)

func TestEnsureWaveIdempotent(t *testing.T) {
	s := New()
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
		t.Errorf("expected same id, got %d and %d", id1, id2)
	}
}

func TestEnsurePagesStableAcrossBackends(t *testing.T) {
	s := New()
	ids, err := s.EnsurePages(context.Background(), []string{"https://a.com/"})
	if err != nil {
		t.Fatal(err)
	}
	if ids[0] != backend.PageID("https://a.com/") {
		t.Error("page id mismatch")
	}
}

func TestStatusLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()
	waveID, _ := s.EnsureWave(ctx, "w")
	ids, _ := s.EnsurePages(ctx, []string{"https://a.com/x"})
	if err := s.EnsureStatus(ctx, waveID, []backend.StatusSeed{{PageID: ids[0], Depth: 0}}); err != nil {
		t.Fatal(err)
	}

	batch, err := s.FetchBatch(ctx, waveID, 10, 10, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 1 || batch[0].PageID != ids[0] {
		t.Fatalf("batch = %+v", batch)
	}

	taken, err := s.ExistsTaken(ctx, waveID)
	if err != nil || !taken {
		t.Fatalf("expected taken, got %v %v", taken, err)
	}

	if err := s.Close(ctx, waveID, ids[0], 200, nil, map[string]value.Value{"title": value.String("hi")}); err != nil {
		t.Fatal(err)
	}

	n, err := s.CountCrawled(ctx, waveID)
	if err != nil || n != 1 {
		t.Fatalf("count = %d, err = %v", n, err)
	}
	taken, _ = s.ExistsTaken(ctx, waveID)
	if taken {
		t.Error("expected no taken rows after close")
	}
}

func TestIterateResults(t *testing.T) {
	s := New()
	ctx := context.Background()
	waveID, _ := s.EnsureWave(ctx, "w")
	ids, _ := s.EnsurePages(ctx, []string{"https://a.com/x"})
	_ = s.EnsureStatus(ctx, waveID, []backend.StatusSeed{{PageID: ids[0], Depth: 0}})
	if _, err := s.FetchBatch(ctx, waveID, 10, 10, 10); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(ctx, waveID, ids[0], 200, nil, map[string]value.Value{"title": value.String("hi")}); err != nil {
		t.Fatal(err)
	}

	var gotID uint64
	var gotURL string
	var gotTitle string
	err := s.IterateResults(ctx, waveID, func(pageID uint64, url string, analyses map[string]value.Value) error {
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
		t.Fatalf("got id=%d url=%q title=%q", gotID, gotURL, gotTitle)
	}
}

func TestDuplicateRedirectEdgeIgnored(t *testing.T) {
	s := New()
	ctx := context.Background()
	waveID, _ := s.EnsureWave(ctx, "w")
	ids, _ := s.EnsurePages(ctx, []string{"https://a.com/x", "https://a.com/y", "https://a.com/z"})
	s.EnsureStatus(ctx, waveID, []backend.StatusSeed{{PageID: ids[0]}})

	linkage := []backend.LinkageEdge{
		{From: ids[0], To: ids[1], Reason: backend.ReasonRedirect},
		{From: ids[0], To: ids[2], Reason: backend.ReasonRedirect},
	}
	if err := s.Close(ctx, waveID, ids[0], 200, linkage, nil); err != nil {
		t.Fatal(err)
	}
	w := s.waves["w"]
	count := 0
	for k := range w.linkage {
		if k.reason == backend.ReasonRedirect {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected exactly one redirect edge, got %d", count)
	}
}

func TestReapStaleTaken(t *testing.T) {
	s := New()
	ctx := context.Background()
	waveID, _ := s.EnsureWave(ctx, "w")
	ids, _ := s.EnsurePages(ctx, []string{"https://a.com/x"})
	s.EnsureStatus(ctx, waveID, []backend.StatusSeed{{PageID: ids[0]}})
	s.FetchBatch(ctx, waveID, 1, 10, 10)

	s.mu.Lock()
	s.waves["w"].status[ids[0]].takenAt = time.Now().Add(-time.Hour)
	s.mu.Unlock()

	n, err := s.ReapStaleTaken(ctx, waveID, time.Minute)
	if err != nil || n != 1 {
		t.Fatalf("n = %d, err = %v", n, err)
	}
}

func TestDeleteWave(t *testing.T) {
	s := New()
	ctx := context.Background()
	waveID, _ := s.EnsureWave(ctx, "w")
	ids, _ := s.EnsurePages(ctx, []string{"https://a.com/x"})
	s.EnsureStatus(ctx, waveID, []backend.StatusSeed{{PageID: ids[0]}})

	gotID, n, err := s.DeleteWave(ctx, "w")
	if err != nil {
		t.Fatal(err)
	}
	if gotID != waveID || n != 1 {
		t.Errorf("id=%d n=%d", gotID, n)
	}
	if _, err := s.EnsureWave(ctx, "w"); err != nil {
		t.Fatal(err)
	}
}
