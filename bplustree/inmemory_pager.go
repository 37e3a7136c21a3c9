package bplus

import (
	"fmt"
	"sync"
)

// InMemoryPager keeps pages in a map. It is used by tests and by callers
// that want a checkpoint without touching disk.
type InMemoryPager struct {
	pages    map[int64][]byte
	nextPage int64
	mu       sync.RWMutex
	closed   bool
}

func NewInMemoryPager() *InMemoryPager {
	return &InMemoryPager{
		pages:    make(map[int64][]byte),
		nextPage: 1,
	}
}

func (p *InMemoryPager) ReadPage(pageID int64) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrPagerClosed
	}
	data, ok := p.pages[pageID]
	if !ok {
		return nil, fmt.Errorf("page %d: %w", pageID, ErrPageNotFound)
	}

	// Return a copy so the caller cannot modify internal state directly
	// without calling WritePage
	out := make([]byte, PageSize)
	copy(out, data)
	return out, nil
}

func (p *InMemoryPager) WritePage(pageID int64, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPagerClosed
	}
	if len(data) != PageSize {
		return fmt.Errorf("data size %d does not match page size %d", len(data), PageSize)
	}

	dest := make([]byte, PageSize)
	copy(dest, data)
	p.pages[pageID] = dest
	if pageID >= p.nextPage {
		p.nextPage = pageID + 1
	}
	return nil
}

func (p *InMemoryPager) AllocatePage() (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, ErrPagerClosed
	}
	id := p.nextPage
	p.nextPage++
	p.pages[id] = make([]byte, PageSize)
	return id, nil
}

func (p *InMemoryPager) DeallocatePage(pageID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPagerClosed
	}
	delete(p.pages, pageID)
	return nil
}

func (p *InMemoryPager) Sync() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPagerClosed
	}
	return nil
}

func (p *InMemoryPager) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	// drop pages so use-after-close shows up as ErrPagerClosed, not stale data
	p.pages = nil
	p.closed = true
	return nil
}

// Reset drops every page, including the meta page.
func (p *InMemoryPager) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPagerClosed
	}
	p.pages = make(map[int64][]byte)
	p.nextPage = 1
	return nil
}

// TotalPages returns the next page id to be allocated.
func (p *InMemoryPager) TotalPages() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.nextPage
}
