package wal_manager

import (
	"log/slog"
	"os"
	"sync"
)

const (
	RecordHeaderSize   = 16
	DefaultSegmentSize = 16 * 1024 * 1024
)

// WALManager appends tree operations to a directory of numbered segment
// files. LSNs start at 1 and grow by one per record.
type WALManager struct {
	directory   string
	segmentSize int64
	currSegment *WALSegment
	currentLSN  uint64
	segments    map[uint64]*WALSegment
	log         *slog.Logger
	mu          sync.RWMutex
}

type WALSegment struct {
	SegmentId uint64
	FilePath  string
	File      *os.File
	Size      int64
	mu        sync.Mutex
}

type WALRecord struct {
	LSN  uint64
	Data []byte
	Sum  uint32
}

type Option func(*WALManager)

// WithSegmentSize sets the size at which the log rolls over to a new segment.
func WithSegmentSize(size int64) Option {
	return func(w *WALManager) {
		if size > 0 {
			w.segmentSize = size
		}
	}
}

// WithLogger sets the logger used for recovery and truncation messages.
func WithLogger(logger *slog.Logger) Option {
	return func(w *WALManager) {
		if logger != nil {
			w.log = logger
		}
	}
}
