package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestWaitGrantsImmediatelyWithinBurst(t *testing.T) {
	l := New(1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.Wait(ctx, "https://a.com"); err != nil {
		t.Fatalf("first Wait should succeed immediately: %v", err)
	}
}

func TestWaitIndependentAcrossOrigins(t *testing.T) {
	l := New(0.001) // effectively never refills within the test window
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := l.Wait(ctx, "https://a.com"); err != nil {
		t.Fatalf("a.com first Wait: %v", err)
	}
	if err := l.Wait(ctx, "https://b.com"); err != nil {
		t.Fatalf("b.com should not be throttled by a.com's bucket: %v", err)
	}
}

func TestWaitRespectsContextCancellation(t *testing.T) {
	l := New(0.001)
	ctx := context.Background()
	if err := l.Wait(ctx, "https://slow.com"); err != nil {
		t.Fatalf("first Wait: %v", err)
	}
	shortCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(shortCtx, "https://slow.com"); err == nil {
		t.Fatal("expected the second Wait to time out against an exhausted bucket")
	}
}

func TestWaitConcurrentWithinOrigin(t *testing.T) {
	l := New(1000) // fast enough that this resolves quickly but still serializes
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			errs <- l.Wait(ctx, "https://busy.com")
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("concurrent Wait failed: %v", err)
		}
	}
}
