package engine

import (
	"log/slog"

	bplus "bplusindex/bplustree"
)

// Options configures an Engine.
type Options struct {
	// Config shapes a tree created from scratch. When a checkpoint exists
	// its order and duplicate policy win.
	Config bplus.Config

	// CacheBytes sizes the page cache in front of the checkpoint store.
	CacheBytes int64

	// CheckpointOnClose writes a checkpoint during Close, so the next Open
	// has nothing to replay.
	CheckpointOnClose bool

	// SyncWrites fsyncs the log after every mutation.
	SyncWrites bool

	// MaxValueLen caps the length of inserted and updated values. Zero
	// means the longest value a full leaf of the tree's order can
	// checkpoint. Open rejects a cap that the order cannot checkpoint.
	MaxValueLen int

	// WALSegmentSize overrides the log segment size when positive.
	WALSegmentSize int64

	Logger *slog.Logger
}

// DefaultOptions returns options for an order-4 tree with duplicates, an
// 8 MiB page cache and a checkpoint on close.
func DefaultOptions() Options {
	return Options{
		Config:            bplus.DefaultConfig(),
		CacheBytes:        bplus.DefaultCacheBytes,
		CheckpointOnClose: true,
	}
}
