package bplus

// Pager stores fixed-size pages addressed by id. Page 0 is reserved for the
// checkpoint meta page; AllocatePage hands out ids starting at 1.
type Pager interface {
	ReadPage(pageID int64) ([]byte, error)
	WritePage(pageID int64, data []byte) error
	AllocatePage() (int64, error)
	DeallocatePage(pageID int64) error
	Sync() error
	Close() error
}

// pagerResetter is implemented by pagers that can drop every page at once.
type pagerResetter interface {
	Reset() error
}

// pageRangeReleaser is implemented by pagers that can free a run of pages
// in one call.
type pageRangeReleaser interface {
	ReleasePages(from, to int64) error
}
