package bplus

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// OnDiskPager stores pages in a single file, page i at offset i*PageSize.
type OnDiskPager struct {
	file     *os.File
	filePath string
	pageSize int
	nextPage int64 // Next available page ID
	mu       sync.RWMutex
}

// NewOnDiskPager opens or creates the checkpoint file at path.
func NewOnDiskPager(path string) (*OnDiskPager, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open index file %s: %w", path, err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat index file: %w", err)
	}

	// page 0 is the meta page, so an empty file starts allocating at 1
	nextPageID := stat.Size() / int64(PageSize)
	if nextPageID == 0 {
		nextPageID = 1
	}

	return &OnDiskPager{
		file:     file,
		filePath: path,
		pageSize: PageSize,
		nextPage: nextPageID,
	}, nil
}

// ReadPage reads a page from disk. A short read at the end of the file is
// padded with zeros.
func (p *OnDiskPager) ReadPage(pageID int64) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.file == nil {
		return nil, ErrPagerClosed
	}

	page := make([]byte, p.pageSize)
	n, err := p.file.ReadAt(page, pageID*int64(p.pageSize))
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("page %d: %w", pageID, ErrPageNotFound)
		}
		if n == 0 {
			return nil, fmt.Errorf("failed to read page %d: %w", pageID, err)
		}
	}
	return page, nil
}

// WritePage writes exactly one page at pageID.
func (p *OnDiskPager) WritePage(pageID int64, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.file == nil {
		return ErrPagerClosed
	}
	if len(data) != p.pageSize {
		return fmt.Errorf("data size %d does not match page size %d", len(data), p.pageSize)
	}

	if _, err := p.file.WriteAt(data, pageID*int64(p.pageSize)); err != nil {
		return fmt.Errorf("failed to write page %d: %w", pageID, err)
	}
	if pageID >= p.nextPage {
		p.nextPage = pageID + 1
	}
	return nil
}

// AllocatePage zero-fills a new page at the end of the file and returns its id.
func (p *OnDiskPager) AllocatePage() (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.file == nil {
		return 0, ErrPagerClosed
	}

	pageID := p.nextPage
	emptyPage := make([]byte, p.pageSize)
	if _, err := p.file.WriteAt(emptyPage, pageID*int64(p.pageSize)); err != nil {
		return 0, fmt.Errorf("failed to allocate page %d: %w", pageID, err)
	}
	p.nextPage++
	return pageID, nil
}

// DeallocatePage zeroes the page. The space stays in the file until Reset.
func (p *OnDiskPager) DeallocatePage(pageID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.file == nil {
		return ErrPagerClosed
	}
	if pageID >= p.nextPage {
		return nil
	}
	if _, err := p.file.WriteAt(make([]byte, p.pageSize), pageID*int64(p.pageSize)); err != nil {
		return fmt.Errorf("failed to clear page %d: %w", pageID, err)
	}
	return nil
}

// Reset truncates the file so the next checkpoint starts from page 1.
func (p *OnDiskPager) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.file == nil {
		return ErrPagerClosed
	}
	if err := p.file.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate %s: %w", p.filePath, err)
	}
	p.nextPage = 1
	return nil
}

// Sync flushes all pending writes to disk
func (p *OnDiskPager) Sync() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.file == nil {
		return ErrPagerClosed
	}
	return p.file.Sync()
}

// Close syncs and closes the file. Closing twice is a no-op.
func (p *OnDiskPager) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.file == nil {
		return nil
	}

	if err := p.file.Sync(); err != nil {
		p.file.Close()
		p.file = nil
		return fmt.Errorf("failed to sync before close: %w", err)
	}
	err := p.file.Close()
	p.file = nil
	return err
}

// TotalPages returns the next page id to be allocated.
func (p *OnDiskPager) TotalPages() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.nextPage
}
