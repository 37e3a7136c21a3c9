package bplus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// PebblePager stores pages as values in a pebble database.
// Inner schema:
// p{uint64 page id} : {page bytes}
// n : {uint64 next page id}
type PebblePager struct {
	db       *pebble.DB
	nextPage int64
	mu       sync.Mutex
}

var pebbleNextPageKey = []byte{'n'}

func makePageKey(pageID int64) []byte {
	out := make([]byte, 9)
	out[0] = 'p'
	binary.BigEndian.PutUint64(out[1:], uint64(pageID))
	return out
}

// OpenPebblePager opens or creates a page store in dir. A nil fs means the
// real filesystem; tests pass vfs.NewMem().
func OpenPebblePager(dir string, fs vfs.FS) (*PebblePager, error) {
	opts := &pebble.Options{}
	if fs != nil {
		opts.FS = fs
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: could not open page store, %w", dir, err)
	}

	p := &PebblePager{db: db, nextPage: 1}
	val, closer, err := db.Get(pebbleNextPageKey)
	switch {
	case err == nil:
		if len(val) == 8 {
			p.nextPage = int64(binary.BigEndian.Uint64(val))
		}
		closer.Close()
	case errors.Is(err, pebble.ErrNotFound):
	default:
		db.Close()
		return nil, fmt.Errorf("read next page id: %w", err)
	}
	return p, nil
}

func (p *PebblePager) ReadPage(pageID int64) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db == nil {
		return nil, ErrPagerClosed
	}
	val, closer, err := p.db.Get(makePageKey(pageID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, fmt.Errorf("page %d: %w", pageID, ErrPageNotFound)
		}
		return nil, fmt.Errorf("failed to read page %d: %w", pageID, err)
	}
	defer closer.Close()

	out := make([]byte, PageSize)
	copy(out, val)
	return out, nil
}

func (p *PebblePager) WritePage(pageID int64, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db == nil {
		return ErrPagerClosed
	}
	if len(data) != PageSize {
		return fmt.Errorf("data size %d does not match page size %d", len(data), PageSize)
	}
	if err := p.db.Set(makePageKey(pageID), data, pebble.NoSync); err != nil {
		return fmt.Errorf("failed to write page %d: %w", pageID, err)
	}
	if pageID >= p.nextPage {
		p.nextPage = pageID + 1
		return p.saveNextPage(pebble.NoSync)
	}
	return nil
}

func (p *PebblePager) AllocatePage() (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db == nil {
		return 0, ErrPagerClosed
	}
	id := p.nextPage

	batch := p.db.NewBatch()
	defer batch.Close()
	var next [8]byte
	binary.BigEndian.PutUint64(next[:], uint64(id+1))
	if err := batch.Set(makePageKey(id), make([]byte, PageSize), nil); err != nil {
		return 0, err
	}
	if err := batch.Set(pebbleNextPageKey, next[:], nil); err != nil {
		return 0, err
	}
	if err := batch.Commit(pebble.NoSync); err != nil {
		return 0, fmt.Errorf("failed to allocate page %d: %w", id, err)
	}
	p.nextPage++
	return id, nil
}

func (p *PebblePager) DeallocatePage(pageID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db == nil {
		return ErrPagerClosed
	}
	if err := p.db.Delete(makePageKey(pageID), pebble.NoSync); err != nil {
		return fmt.Errorf("failed to delete page %d: %w", pageID, err)
	}
	return nil
}

// Reset deletes every page, meta page included.
func (p *PebblePager) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db == nil {
		return ErrPagerClosed
	}
	if err := p.db.DeleteRange([]byte{'p'}, []byte{'q'}, pebble.NoSync); err != nil {
		return fmt.Errorf("failed to clear pages: %w", err)
	}
	p.nextPage = 1
	return p.saveNextPage(pebble.Sync)
}

// ReleasePages deletes pages [from, to). The next page id is unchanged.
func (p *PebblePager) ReleasePages(from, to int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db == nil {
		return ErrPagerClosed
	}
	if from >= to {
		return nil
	}
	if err := p.db.DeleteRange(makePageKey(from), makePageKey(to), pebble.NoSync); err != nil {
		return fmt.Errorf("failed to release pages [%d, %d): %w", from, to, err)
	}
	return nil
}

// Sync makes every write so far durable.
func (p *PebblePager) Sync() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db == nil {
		return ErrPagerClosed
	}
	return p.saveNextPage(pebble.Sync)
}

func (p *PebblePager) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db == nil {
		return nil
	}
	if err := p.db.Flush(); err != nil {
		p.db.Close()
		p.db = nil
		return fmt.Errorf("pebble flush: %w", err)
	}
	err := p.db.Close()
	p.db = nil
	return err
}

// TotalPages returns the next page id to be allocated.
func (p *PebblePager) TotalPages() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextPage
}

func (p *PebblePager) saveNextPage(opts *pebble.WriteOptions) error {
	var next [8]byte
	binary.BigEndian.PutUint64(next[:], uint64(p.nextPage))
	if err := p.db.Set(pebbleNextPageKey, next[:], opts); err != nil {
		return fmt.Errorf("save next page id: %w", err)
	}
	return nil
}
