// Package boltstore is the durable, embedded reference Backend (§4.K),
// grounded on the bucket-per-collection, transaction-per-op shape
// TheSnook-polyester's storage.BBoltStorage uses for its own bbolt-backed
// state (`db.Update(func(tx *bbolt.Tx) error { ... })` wrapping a single
// `CreateBucketIfNotExists`/`Put`), generalized here to §3's multi-table
// schema (pages, waves, status, linkage, analysis results, page rank).
package boltstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/lopezcrawl/lopez/internal/boundary"
	"github.com/lopezcrawl/lopez/internal/value"
	"github.com/lopezcrawl/lopez/pkg/backend"
)

var (
	bucketWaves    = []byte("waves")     // name -> wave_id (8 bytes BE)
	bucketWaveData = []byte("wave_data") // wave_id (8 bytes BE) -> nested bucket
	bucketPages    = []byte("pages")     // page_id (8 bytes BE) -> url
)

const (
	subStatus   = "status"   // page_id -> statusRecord JSON
	subLinkage  = "linkage"  // from(8)+to(8)+reason(1) -> nil
	subResults  = "results"  // page_id -> nested bucket: name -> JSON value
	subPageRank = "pagerank" // page_id -> float64 BE
)

// Store is the bbolt-backed Backend.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if absent) a bbolt database at path and prepares its
// top-level buckets.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %q: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketWaves, bucketWaveData, bucketPages} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) CloseBackend() error { return s.db.Close() }

func beU64(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}

func deU64(b []byte) uint64 { return binary.BigEndian.Uint64(b) }

func (s *Store) EnsureWave(ctx context.Context, name string) (uint64, error) {
	var id uint64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		waves := tx.Bucket(bucketWaves)
		if existing := waves.Get([]byte(name)); existing != nil {
			id = deU64(existing)
			return nil
		}
		id = uint64(waves.Stats().KeyN) + 1
		for {
			key := beU64(id)
			if tx.Bucket(bucketWaveData).Bucket(key) == nil {
				break
			}
			id++
		}
		if err := waves.Put([]byte(name), beU64(id)); err != nil {
			return err
		}
		_, err := tx.Bucket(bucketWaveData).CreateBucket(beU64(id))
		return err
	})
	return id, err
}

func (s *Store) EnsurePages(ctx context.Context, urls []string) ([]uint64, error) {
	ids := make([]uint64, len(urls))
	err := s.db.Update(func(tx *bbolt.Tx) error {
		pages := tx.Bucket(bucketPages)
		for i, u := range urls {
			id := backend.PageID(u)
			ids[i] = id
			if pages.Get(beU64(id)) == nil {
				if err := pages.Put(beU64(id), []byte(u)); err != nil {
					return err
				}
			}
		}
		return nil
	})
	return ids, err
}

func (s *Store) waveBucket(tx *bbolt.Tx, waveID uint64) (*bbolt.Bucket, error) {
	b := tx.Bucket(bucketWaveData).Bucket(beU64(waveID))
	if b == nil {
		return nil, fmt.Errorf("boltstore: unknown wave %d", waveID)
	}
	return b, nil
}

// statusRecord is the JSON-encoded form of a status row. JSON is used here
// (rather than a packed binary layout) because bbolt values are opaque
// blobs and no third-party codec in the pack targets ad-hoc internal KV
// records; analysis results themselves go through `internal/value`'s JSON
// bridge instead. See DESIGN.md.
type statusRecord struct {
	Status     string `json:"status"`
	StatusCode *int   `json:"status_code,omitempty"`
	Depth      uint16 `json:"depth"`
	TakenAt    int64  `json:"taken_at,omitempty"`
}

func (s *Store) EnsureStatus(ctx context.Context, waveID uint64, seeds []backend.StatusSeed) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		wb, err := s.waveBucket(tx, waveID)
		if err != nil {
			return err
		}
		status, err := wb.CreateBucketIfNotExists([]byte(subStatus))
		if err != nil {
			return err
		}
		for _, seed := range seeds {
			key := beU64(seed.PageID)
			if status.Get(key) != nil {
				continue // plain insert: depth never lowered on conflict (§9)
			}
			rec := statusRecord{Status: backend.StatusOpen.String(), Depth: seed.Depth}
			buf, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := status.Put(key, buf); err != nil {
				return err
			}
		}
		return nil
	})
}

func pageURL(tx *bbolt.Tx, pageID uint64) string {
	if v := tx.Bucket(bucketPages).Get(beU64(pageID)); v != nil {
		return string(v)
	}
	return ""
}

// FetchBatch implements §4.I's diversity-aware selection identically to
// memstore's: a pool of up to poolFactor*limit open candidates, ranked by
// ascending in-batch origin frequency then ascending depth.
func (s *Store) FetchBatch(ctx context.Context, waveID uint64, limit int, maxDepth int, poolFactor int) ([]backend.BatchItem, error) {
	if poolFactor <= 0 {
		poolFactor = 10
	}
	var items []backend.BatchItem
	err := s.db.Update(func(tx *bbolt.Tx) error {
		wb, err := s.waveBucket(tx, waveID)
		if err != nil {
			return err
		}
		status, err := wb.CreateBucketIfNotExists([]byte(subStatus))
		if err != nil {
			return err
		}

		type candidate struct {
			pageID uint64
			url    string
			depth  uint16
		}
		var pool []candidate
		poolSize := limit * poolFactor
		c := status.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec statusRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if rec.Status != backend.StatusOpen.String() || int(rec.Depth) > maxDepth {
				continue
			}
			pageID := deU64(k)
			pool = append(pool, candidate{pageID: pageID, url: pageURL(tx, pageID), depth: rec.Depth})
			if len(pool) >= poolSize {
				break
			}
		}

		originCount := make(map[string]int)
		for len(items) < limit && len(pool) > 0 {
			bestIdx := 0
			bestCount := originCount[boundary.Origin(pool[0].url)]
			for i := 1; i < len(pool); i++ {
				cnt := originCount[boundary.Origin(pool[i].url)]
				if cnt < bestCount || (cnt == bestCount && pool[i].depth < pool[bestIdx].depth) {
					bestIdx, bestCount = i, cnt
				}
			}
			picked := pool[bestIdx]
			pool = append(pool[:bestIdx], pool[bestIdx+1:]...)
			originCount[boundary.Origin(picked.url)]++

			rec := statusRecord{Status: backend.StatusTaken.String(), Depth: picked.depth, TakenAt: time.Now().Unix()}
			buf, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := status.Put(beU64(picked.pageID), buf); err != nil {
				return err
			}
			items = append(items, backend.BatchItem{PageID: picked.pageID, URL: picked.url, Depth: picked.depth})
		}
		return nil
	})
	return items, err
}

func linkageKey(from, to uint64, reason backend.LinkageReason) []byte {
	k := make([]byte, 17)
	binary.BigEndian.PutUint64(k[0:8], from)
	binary.BigEndian.PutUint64(k[8:16], to)
	k[16] = byte(reason)
	return k
}

func (s *Store) Close(ctx context.Context, waveID uint64, pageID uint64, statusCode int, linkage []backend.LinkageEdge, analyses map[string]value.Value) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		wb, err := s.waveBucket(tx, waveID)
		if err != nil {
			return err
		}
		status, err := wb.CreateBucketIfNotExists([]byte(subStatus))
		if err != nil {
			return err
		}
		if status.Get(beU64(pageID)) == nil {
			return fmt.Errorf("boltstore: close on unknown page %d", pageID)
		}

		linkageBucket, err := wb.CreateBucketIfNotExists([]byte(subLinkage))
		if err != nil {
			return err
		}
		for _, edge := range linkage {
			if edge.Reason == backend.ReasonRedirect && hasRedirectFrom(linkageBucket, edge.From) {
				continue // at-most-one redirect edge per from_page (§3)
			}
			key := linkageKey(edge.From, edge.To, edge.Reason)
			if edge.Reason == backend.ReasonCanonical && linkageBucket.Get(key) != nil {
				continue // at-most-one canonical edge per (from,to) (§3)
			}
			if err := linkageBucket.Put(key, nil); err != nil {
				return err
			}
		}

		if len(analyses) > 0 {
			resultsBucket, err := wb.CreateBucketIfNotExists([]byte(subResults))
			if err != nil {
				return err
			}
			pageResults, err := resultsBucket.CreateBucketIfNotExists(beU64(pageID))
			if err != nil {
				return err
			}
			for name, v := range analyses {
				buf, err := value.ToJSON(v)
				if err != nil {
					return err
				}
				if err := pageResults.Put([]byte(name), buf); err != nil {
					return err
				}
			}
		}

		code := statusCode
		rec := statusRecord{Status: backend.StatusClosed.String(), StatusCode: &code}
		buf, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return status.Put(beU64(pageID), buf)
	})
}

func hasRedirectFrom(linkageBucket *bbolt.Bucket, from uint64) bool {
	c := linkageBucket.Cursor()
	prefix := beU64(from)
	for k, _ := c.Seek(prefix); k != nil && len(k) >= 8 && string(k[:8]) == string(prefix); k, _ = c.Next() {
		if len(k) == 17 && backend.LinkageReason(k[16]) == backend.ReasonRedirect {
			return true
		}
	}
	return false
}

func (s *Store) Error(ctx context.Context, waveID uint64, pageID uint64, statusCode *int) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		wb, err := s.waveBucket(tx, waveID)
		if err != nil {
			return err
		}
		status, err := wb.CreateBucketIfNotExists([]byte(subStatus))
		if err != nil {
			return err
		}
		if status.Get(beU64(pageID)) == nil {
			return fmt.Errorf("boltstore: error on unknown page %d", pageID)
		}
		rec := statusRecord{Status: backend.StatusError.String(), StatusCode: statusCode}
		buf, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return status.Put(beU64(pageID), buf)
	})
}

func (s *Store) CountCrawled(ctx context.Context, waveID uint64) (int, error) {
	n := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		wb, err := s.waveBucket(tx, waveID)
		if err != nil {
			return err
		}
		status := wb.Bucket([]byte(subStatus))
		if status == nil {
			return nil
		}
		return status.ForEach(func(_, v []byte) error {
			var rec statusRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if rec.Status == backend.StatusClosed.String() || rec.Status == backend.StatusError.String() {
				n++
			}
			return nil
		})
	})
	return n, err
}

func (s *Store) ExistsTaken(ctx context.Context, waveID uint64) (bool, error) {
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		wb, err := s.waveBucket(tx, waveID)
		if err != nil {
			return err
		}
		status := wb.Bucket([]byte(subStatus))
		if status == nil {
			return nil
		}
		return status.ForEach(func(_, v []byte) error {
			if found {
				return nil
			}
			var rec statusRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if rec.Status == backend.StatusTaken.String() {
				found = true
			}
			return nil
		})
	})
	return found, err
}

func (s *Store) ReapStaleTaken(ctx context.Context, waveID uint64, age time.Duration) (int, error) {
	n := 0
	cutoff := time.Now().Add(-age).Unix()
	err := s.db.Update(func(tx *bbolt.Tx) error {
		wb, err := s.waveBucket(tx, waveID)
		if err != nil {
			return err
		}
		status := wb.Bucket([]byte(subStatus))
		if status == nil {
			return nil
		}
		c := status.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec statusRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if rec.Status == backend.StatusTaken.String() && rec.TakenAt <= cutoff {
				rec.Status = backend.StatusOpen.String()
				buf, err := json.Marshal(rec)
				if err != nil {
					return err
				}
				if err := status.Put(k, buf); err != nil {
					return err
				}
				n++
			}
		}
		return nil
	})
	return n, err
}

func (s *Store) DeleteWave(ctx context.Context, name string) (uint64, int, error) {
	var id uint64
	n := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		waves := tx.Bucket(bucketWaves)
		idBytes := waves.Get([]byte(name))
		if idBytes == nil {
			return fmt.Errorf("boltstore: unknown wave %q", name)
		}
		id = deU64(idBytes)
		waveData := tx.Bucket(bucketWaveData)
		if wb := waveData.Bucket(beU64(id)); wb != nil {
			if status := wb.Bucket([]byte(subStatus)); status != nil {
				n = status.Stats().KeyN
			}
		}
		if err := waveData.DeleteBucket(beU64(id)); err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		return waves.Delete([]byte(name))
	})
	return id, n, err
}

func (s *Store) IterateLinkage(ctx context.Context, waveID uint64, fn func(from, to uint64) error) error {
	type edge struct{ from, to uint64 }
	var edges []edge
	err := s.db.View(func(tx *bbolt.Tx) error {
		wb, err := s.waveBucket(tx, waveID)
		if err != nil {
			return err
		}
		linkageBucket := wb.Bucket([]byte(subLinkage))
		if linkageBucket == nil {
			return nil
		}
		return linkageBucket.ForEach(func(k, _ []byte) error {
			if len(k) == 17 && backend.LinkageReason(k[16]) == backend.ReasonAHref {
				edges = append(edges, edge{from: deU64(k[0:8]), to: deU64(k[8:16])})
			}
			return nil
		})
	})
	if err != nil {
		return err
	}
	for _, e := range edges {
		if err := fn(e.from, e.to); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) IterateResults(ctx context.Context, waveID uint64, fn func(pageID uint64, url string, analyses map[string]value.Value) error) error {
	type row struct {
		pageID   uint64
		url      string
		analyses map[string]value.Value
	}
	var rows []row
	err := s.db.View(func(tx *bbolt.Tx) error {
		wb, err := s.waveBucket(tx, waveID)
		if err != nil {
			return err
		}
		resultsBucket := wb.Bucket([]byte(subResults))
		if resultsBucket == nil {
			return nil
		}
		pages := tx.Bucket(bucketPages)
		return resultsBucket.ForEach(func(k, v []byte) error {
			if v != nil || len(k) != 8 {
				return nil // only nested page-id buckets hold results
			}
			pageID := deU64(k)
			pageResults := resultsBucket.Bucket(k)
			if pageResults == nil {
				return nil
			}
			analyses := make(map[string]value.Value)
			if err := pageResults.ForEach(func(name, buf []byte) error {
				analyses[string(name)] = value.FromJSON(buf)
				return nil
			}); err != nil {
				return err
			}
			url := string(pages.Get(k))
			rows = append(rows, row{pageID: pageID, url: url, analyses: analyses})
			return nil
		})
	})
	if err != nil {
		return err
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].pageID < rows[j].pageID })
	for _, r := range rows {
		if err := fn(r.pageID, r.url, r.analyses); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) CommitPageRank(ctx context.Context, waveID uint64, ranks map[uint64]float64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		wb, err := s.waveBucket(tx, waveID)
		if err != nil {
			return err
		}
		rankBucket, err := wb.CreateBucketIfNotExists([]byte(subPageRank))
		if err != nil {
			return err
		}
		for pageID, rank := range ranks {
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, math.Float64bits(rank))
			if err := rankBucket.Put(beU64(pageID), buf); err != nil {
				return err
			}
		}
		return nil
	})
}

var _ backend.Backend = (*Store)(nil)
