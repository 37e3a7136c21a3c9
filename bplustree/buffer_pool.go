package bplus

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/ristretto/v2"
)

// DefaultCacheBytes is the page cache size used when none is given.
const DefaultCacheBytes = 8 << 20

// BufferPool is a read-through, write-through page cache in front of a
// Pager. Cached pages are copies: callers never share a buffer with the
// cache or with each other.
type BufferPool struct {
	mu     sync.Mutex
	pager  Pager
	cache  *ristretto.Cache[int64, []byte]
	hits   atomic.Uint64
	misses atomic.Uint64
	closed bool
}

// NewBufferPool wraps p with a cache holding about capacityBytes of pages.
func NewBufferPool(p Pager, capacityBytes int64) (*BufferPool, error) {
	if capacityBytes <= 0 {
		capacityBytes = DefaultCacheBytes
	}
	pages := max(capacityBytes/PageSize, 1)
	cache, err := ristretto.NewCache(&ristretto.Config[int64, []byte]{
		NumCounters:        pages * 10,
		MaxCost:            capacityBytes,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create page cache: %w", err)
	}
	return &BufferPool{pager: p, cache: cache}, nil
}

// Pager returns the pager behind the cache.
func (bp *BufferPool) Pager() Pager {
	return bp.pager
}

// ReadPage returns a page from the cache, loading it from the pager on a miss.
func (bp *BufferPool) ReadPage(pageID int64) ([]byte, error) {
	if page, ok := bp.cache.Get(pageID); ok {
		bp.hits.Add(1)
		pageCacheRequests.WithLabelValues("hit").Inc()
		return clonePage(page), nil
	}
	bp.misses.Add(1)
	pageCacheRequests.WithLabelValues("miss").Inc()

	page, err := bp.pager.ReadPage(pageID)
	if err != nil {
		return nil, err
	}
	bp.put(pageID, page)
	return page, nil
}

// WritePage writes through to the pager and refreshes the cached copy.
func (bp *BufferPool) WritePage(pageID int64, data []byte) error {
	if err := bp.pager.WritePage(pageID, data); err != nil {
		bp.cache.Del(pageID)
		bp.cache.Wait()
		return err
	}
	bp.put(pageID, data)
	return nil
}

func (bp *BufferPool) AllocatePage() (int64, error) {
	return bp.pager.AllocatePage()
}

// DeallocatePage frees the page and drops it from the cache.
func (bp *BufferPool) DeallocatePage(pageID int64) error {
	bp.cache.Del(pageID)
	bp.cache.Wait()
	return bp.pager.DeallocatePage(pageID)
}

// ReleasePages frees pages [from, to) and drops them from the cache. Pagers
// without a bulk delete get one DeallocatePage call per page.
func (bp *BufferPool) ReleasePages(from, to int64) error {
	for id := from; id < to; id++ {
		bp.cache.Del(id)
	}
	bp.cache.Wait()

	if r, ok := bp.pager.(pageRangeReleaser); ok {
		return r.ReleasePages(from, to)
	}
	for id := from; id < to; id++ {
		if err := bp.pager.DeallocatePage(id); err != nil {
			return err
		}
	}
	return nil
}

// Reset empties the pager, if it supports it, and the cache.
func (bp *BufferPool) Reset() error {
	r, ok := bp.pager.(pagerResetter)
	if !ok {
		return fmt.Errorf("pager %T cannot be reset", bp.pager)
	}
	bp.cache.Clear()
	return r.Reset()
}

func (bp *BufferPool) Sync() error {
	return bp.pager.Sync()
}

// Close releases the cache and closes the pager.
func (bp *BufferPool) Close() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if bp.closed {
		return nil
	}
	bp.closed = true
	bp.cache.Close()
	return bp.pager.Close()
}

// Hits returns the number of reads served from the cache.
func (bp *BufferPool) Hits() uint64 { return bp.hits.Load() }

// Misses returns the number of reads that went to the pager.
func (bp *BufferPool) Misses() uint64 { return bp.misses.Load() }

// HitRatio returns hits / (hits + misses), or 0 before any read.
func (bp *BufferPool) HitRatio() float64 {
	h, m := bp.Hits(), bp.Misses()
	if h+m == 0 {
		return 0
	}
	return float64(h) / float64(h+m)
}

func (bp *BufferPool) put(pageID int64, data []byte) {
	bp.cache.Set(pageID, clonePage(data), PageSize)
	bp.cache.Wait()
}

func clonePage(data []byte) []byte {
	out := make([]byte, PageSize)
	copy(out, data)
	return out
}
