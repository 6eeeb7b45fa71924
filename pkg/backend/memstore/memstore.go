// Package memstore is an in-process Backend (§4.K) backed by plain maps
// under a single mutex. It exists for tests and small ad-hoc crawls where
// durability across restarts doesn't matter; pkg/backend/boltstore is the
// durable reference implementation.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lopezcrawl/lopez/internal/boundary"
	"github.com/lopezcrawl/lopez/internal/value"
	"github.com/lopezcrawl/lopez/pkg/backend"
)

type statusRow struct {
	searchStatus backend.SearchStatus
	statusCode   *int
	depth        uint16
	takenAt      time.Time
}

type linkageKey struct {
	from, to uint64
	reason   backend.LinkageReason
}

type waveData struct {
	id       uint64
	name     string
	status   map[uint64]*statusRow
	linkage  map[linkageKey]bool
	analyses map[string]bool
	results  map[uint64]map[string]value.Value
	pageRank map[uint64]float64
}

// Store is the in-memory Backend.
type Store struct {
	mu        sync.Mutex
	nextWave  uint64
	waves     map[string]*waveData
	wavesByID map[uint64]*waveData
	pageURL   map[uint64]string
}

// New returns an empty in-memory Backend.
func New() *Store {
	return &Store{
		waves:     make(map[string]*waveData),
		wavesByID: make(map[uint64]*waveData),
		pageURL:   make(map[uint64]string),
	}
}

func (s *Store) EnsureWave(ctx context.Context, name string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.waves[name]; ok {
		return w.id, nil
	}
	s.nextWave++
	w := &waveData{
		id:       s.nextWave,
		name:     name,
		status:   make(map[uint64]*statusRow),
		linkage:  make(map[linkageKey]bool),
		analyses: make(map[string]bool),
		results:  make(map[uint64]map[string]value.Value),
		pageRank: make(map[uint64]float64),
	}
	s.waves[name] = w
	s.wavesByID[w.id] = w
	return w.id, nil
}

func (s *Store) EnsurePages(ctx context.Context, urls []string) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint64, len(urls))
	for i, u := range urls {
		id := backend.PageID(u)
		if _, ok := s.pageURL[id]; !ok {
			s.pageURL[id] = u
		}
		ids[i] = id
	}
	return ids, nil
}

func (s *Store) wave(waveID uint64) (*waveData, error) {
	w, ok := s.wavesByID[waveID]
	if !ok {
		return nil, fmt.Errorf("memstore: unknown wave %d", waveID)
	}
	return w, nil
}

func (s *Store) EnsureStatus(ctx context.Context, waveID uint64, seeds []backend.StatusSeed) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.wave(waveID)
	if err != nil {
		return err
	}
	for _, seed := range seeds {
		if _, exists := w.status[seed.PageID]; exists {
			continue // plain insert: depth never lowered on conflict (§9)
		}
		w.status[seed.PageID] = &statusRow{searchStatus: backend.StatusOpen, depth: seed.Depth}
	}
	return nil
}

// FetchBatch implements §4.I's diversity-aware selection: within a pool of
// up to poolFactor*limit open candidates, rank by ascending in-batch origin
// frequency (so far), then by ascending depth, and flip the top `limit` to
// `taken`.
func (s *Store) FetchBatch(ctx context.Context, waveID uint64, limit int, maxDepth int, poolFactor int) ([]backend.BatchItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.wave(waveID)
	if err != nil {
		return nil, err
	}
	if poolFactor <= 0 {
		poolFactor = 10
	}

	type candidate struct {
		pageID uint64
		url    string
		depth  uint16
	}
	var pool []candidate
	poolSize := limit * poolFactor
	for pageID, row := range w.status {
		if row.searchStatus != backend.StatusOpen || int(row.depth) > maxDepth {
			continue
		}
		pool = append(pool, candidate{pageID: pageID, url: s.pageURL[pageID], depth: row.depth})
		if len(pool) >= poolSize {
			break
		}
	}
	sort.Slice(pool, func(i, j int) bool {
		if pool[i].depth != pool[j].depth {
			return pool[i].depth < pool[j].depth
		}
		return pool[i].pageID < pool[j].pageID
	})

	originCount := make(map[string]int)
	var selected []candidate
	for len(selected) < limit && len(pool) > 0 {
		bestIdx := -1
		bestCount := -1
		for i, c := range pool {
			cnt := originCount[boundary.Origin(c.url)]
			if bestIdx == -1 || cnt < bestCount || (cnt == bestCount && c.depth < pool[bestIdx].depth) {
				bestIdx = i
				bestCount = cnt
			}
		}
		c := pool[bestIdx]
		pool = append(pool[:bestIdx], pool[bestIdx+1:]...)
		originCount[boundary.Origin(c.url)]++
		selected = append(selected, c)
	}

	items := make([]backend.BatchItem, 0, len(selected))
	for _, c := range selected {
		row := w.status[c.pageID]
		row.searchStatus = backend.StatusTaken
		row.takenAt = time.Now()
		items = append(items, backend.BatchItem{PageID: c.pageID, URL: c.url, Depth: c.depth})
	}
	return items, nil
}

func (s *Store) Close(ctx context.Context, waveID uint64, pageID uint64, statusCode int, linkage []backend.LinkageEdge, analyses map[string]value.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.wave(waveID)
	if err != nil {
		return err
	}
	row, ok := w.status[pageID]
	if !ok {
		return fmt.Errorf("memstore: close on unknown page %d", pageID)
	}
	for _, edge := range linkage {
		if edge.Reason == backend.ReasonRedirect {
			if hasReasonFrom(w.linkage, edge.From, backend.ReasonRedirect) {
				continue // at-most-one redirect edge per from_page (§3)
			}
		}
		if edge.Reason == backend.ReasonCanonical {
			if w.linkage[linkageKey{edge.From, edge.To, backend.ReasonCanonical}] {
				continue // at-most-one canonical edge per (from,to) (§3)
			}
		}
		w.linkage[linkageKey{edge.From, edge.To, edge.Reason}] = true
	}
	code := statusCode
	row.searchStatus = backend.StatusClosed
	row.statusCode = &code
	if len(analyses) > 0 {
		dst := w.results[pageID]
		if dst == nil {
			dst = make(map[string]value.Value)
			w.results[pageID] = dst
		}
		for name, v := range analyses {
			w.analyses[name] = true
			dst[name] = v
		}
	}
	return nil
}

func hasReasonFrom(linkage map[linkageKey]bool, from uint64, reason backend.LinkageReason) bool {
	for k := range linkage {
		if k.from == from && k.reason == reason {
			return true
		}
	}
	return false
}

func (s *Store) Error(ctx context.Context, waveID uint64, pageID uint64, statusCode *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.wave(waveID)
	if err != nil {
		return err
	}
	row, ok := w.status[pageID]
	if !ok {
		return fmt.Errorf("memstore: error on unknown page %d", pageID)
	}
	row.searchStatus = backend.StatusError
	row.statusCode = statusCode
	return nil
}

func (s *Store) CountCrawled(ctx context.Context, waveID uint64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.wave(waveID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, row := range w.status {
		if row.searchStatus == backend.StatusClosed || row.searchStatus == backend.StatusError {
			n++
		}
	}
	return n, nil
}

func (s *Store) ExistsTaken(ctx context.Context, waveID uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.wave(waveID)
	if err != nil {
		return false, err
	}
	for _, row := range w.status {
		if row.searchStatus == backend.StatusTaken {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ReapStaleTaken(ctx context.Context, waveID uint64, age time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.wave(waveID)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-age)
	n := 0
	for _, row := range w.status {
		if row.searchStatus == backend.StatusTaken && row.takenAt.Before(cutoff) {
			row.searchStatus = backend.StatusOpen
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteWave(ctx context.Context, name string) (uint64, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.waves[name]
	if !ok {
		return 0, 0, fmt.Errorf("memstore: unknown wave %q", name)
	}
	n := len(w.status)
	delete(s.waves, name)
	delete(s.wavesByID, w.id)
	return w.id, n, nil
}

func (s *Store) IterateLinkage(ctx context.Context, waveID uint64, fn func(from, to uint64) error) error {
	s.mu.Lock()
	w, err := s.wave(waveID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	edges := make([]linkageKey, 0, len(w.linkage))
	for k := range w.linkage {
		if k.reason == backend.ReasonAHref {
			edges = append(edges, k)
		}
	}
	s.mu.Unlock()

	for _, k := range edges {
		if err := fn(k.from, k.to); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) IterateResults(ctx context.Context, waveID uint64, fn func(pageID uint64, url string, analyses map[string]value.Value) error) error {
	s.mu.Lock()
	w, err := s.wave(waveID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	type row struct {
		pageID   uint64
		url      string
		analyses map[string]value.Value
	}
	rows := make([]row, 0, len(w.results))
	for pageID, analyses := range w.results {
		rows = append(rows, row{pageID: pageID, url: s.pageURL[pageID], analyses: analyses})
	}
	s.mu.Unlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].pageID < rows[j].pageID })
	for _, r := range rows {
		if err := fn(r.pageID, r.url, r.analyses); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) CommitPageRank(ctx context.Context, waveID uint64, ranks map[uint64]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.wave(waveID)
	if err != nil {
		return err
	}
	for pageID, r := range ranks {
		w.pageRank[pageID] = r
	}
	return nil
}

func (s *Store) CloseBackend() error { return nil }

var _ backend.Backend = (*Store)(nil)
