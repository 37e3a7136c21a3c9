package wal_manager

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

/*

WAL Segment File
────────────────────────────────────
| Record | Record | Record | ...   |
────────────────────────────────────

Each Record:
────────────────────────────────────────────
| LSN (8) | LEN (4) | SUM (4) | DATA (LEN) |
────────────────────────────────────────────

	SUM  = low 32 bits of xxhash64(LSN || DATA)
	DATA = JSON encoded Operation

*/

var (
	ErrCorrupt = errors.New("wal: corrupt record")
	ErrClosed  = errors.New("wal: closed")
)

func OpenWAL(directory string, opts ...Option) (*WALManager, error) {
	if err := os.MkdirAll(directory, 0755); err != nil {
		return nil, err
	}

	wal := &WALManager{
		directory:   directory,
		segmentSize: DefaultSegmentSize,
		segments:    make(map[uint64]*WALSegment),
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(wal)
	}
	wal.log = wal.log.With("component", "wal", "dir", directory)

	if err := wal.recoverWALEntries(); err != nil {
		wal.closeSegments()
		return nil, err
	}

	if wal.currSegment == nil {
		if err := wal.createNewSegment(); err != nil {
			return nil, err
		}
	}

	return wal, nil
}

// recoverWALEntries opens every existing segment, finds the largest LSN and
// makes the newest segment current. A torn record at the end of the newest
// segment is cut off; damage anywhere else is an error.
func (w *WALManager) recoverWALEntries() error {
	segmentIDs, err := listSegments(w.directory)
	if err != nil {
		return err
	}
	if len(segmentIDs) == 0 {
		return nil
	}

	maxLSN := uint64(0)
	for i, segmentID := range segmentIDs {
		segment := InitializeWALSegment(segmentID, w.directory)
		if err := segment.Open(); err != nil {
			return err
		}
		w.segments[segmentID] = segment

		validEnd, err := segment.forEachRecord(func(rec *WALRecord) error {
			maxLSN = max(maxLSN, rec.LSN)
			return nil
		})
		if err != nil && !errors.Is(err, ErrCorrupt) {
			return err
		}
		if err == nil && validEnd == segment.Size {
			continue
		}

		if i != len(segmentIDs)-1 {
			if err == nil {
				err = fmt.Errorf("short record at offset %d: %w", validEnd, ErrCorrupt)
			}
			return fmt.Errorf("segment %d: %w", segmentID, err)
		}
		w.log.Warn("truncating torn wal tail", "segment", segmentID, "from", segment.Size, "to", validEnd, "err", err)
		if err := segment.truncate(validEnd); err != nil {
			return err
		}
	}

	w.currSegment = w.segments[segmentIDs[len(segmentIDs)-1]]
	w.currentLSN = maxLSN

	w.log.Info("wal recovered", "segments", len(segmentIDs), "lsn", maxLSN)
	return nil
}

// listSegments returns the ids of the segment files in dir, ascending.
func listSegments(dir string) ([]uint64, error) {
	files, err := filepath.Glob(filepath.Join(dir, "wal_*.log"))
	if err != nil {
		return nil, err
	}

	var segmentIDs []uint64
	for _, file := range files {
		hexPart := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(file), "wal_"), ".log")
		segmentID, err := strconv.ParseUint(hexPart, 16, 64)
		if err != nil {
			continue
		}
		segmentIDs = append(segmentIDs, segmentID)
	}
	slices.Sort(segmentIDs)
	return segmentIDs, nil
}

func (w *WALManager) createNewSegment() error {
	segmentID := uint64(0)
	if w.currSegment != nil {
		segmentID = w.currSegment.SegmentId + 1
	}
	segment := InitializeWALSegment(segmentID, w.directory)

	if err := segment.Open(); err != nil {
		return err
	}

	w.segments[segmentID] = segment
	w.currSegment = segment
	return nil
}

// sortedSegments returns the open segments in id order.
func (w *WALManager) sortedSegments() []*WALSegment {
	ids := make([]uint64, 0, len(w.segments))
	for id := range w.segments {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]*WALSegment, 0, len(ids))
	for _, id := range ids {
		out = append(out, w.segments[id])
	}
	return out
}

// ReplayFromLSN calls applyFunc, in LSN order, for every record whose LSN is
// at least startLSN. It stops at the first error.
func (wm *WALManager) ReplayFromLSN(startLSN uint64, applyFunc func(lsn uint64, op *Operation) error) error {
	wm.mu.RLock()
	defer wm.mu.RUnlock()

	if wm.segments == nil {
		return ErrClosed
	}

	replayed := 0
	for _, segment := range wm.sortedSegments() {
		validEnd, err := segment.forEachRecord(func(rec *WALRecord) error {
			if rec.LSN < startLSN {
				return nil
			}
			op, err := DecodeOperation(rec.Data)
			if err != nil {
				return fmt.Errorf("failed to decode operation at LSN %d: %w", rec.LSN, err)
			}
			if err := applyFunc(rec.LSN, op); err != nil {
				return fmt.Errorf("failed to apply operation at LSN %d: %w", rec.LSN, err)
			}
			replayed++
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to replay segment %d: %w", segment.SegmentId, err)
		}
		if validEnd < segment.Size {
			return fmt.Errorf("failed to replay segment %d: short record at offset %d: %w", segment.SegmentId, validEnd, ErrCorrupt)
		}
	}

	wm.log.Info("wal replayed", "from_lsn", startLSN, "records", replayed)
	return nil
}

// AppendOperation logs op and returns the LSN assigned to it. The record is
// written but not synced; call Sync for durability.
func (wm *WALManager) AppendOperation(op *Operation) (uint64, error) {
	data, err := op.Encode()
	if err != nil {
		return 0, err
	}

	wm.mu.Lock()
	defer wm.mu.Unlock()

	if wm.segments == nil {
		return 0, ErrClosed
	}

	if wm.currSegment.IsFull(wm.segmentSize) {
		if err := wm.createNewSegment(); err != nil {
			return 0, err
		}
		wm.log.Debug("wal segment rolled", "segment", wm.currSegment.SegmentId)
	}

	lsn := wm.currentLSN + 1
	record := &WALRecord{
		LSN:  lsn,
		Data: data,
		Sum:  checksum(lsn, data),
	}
	if _, err := wm.currSegment.Append(record.Encode()); err != nil {
		return 0, err
	}
	wm.currentLSN = lsn

	return lsn, nil
}

func (wm *WALManager) Sync() error {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	if wm.segments == nil {
		return ErrClosed
	}
	return wm.currSegment.Sync()
}

// CurrentLSN returns the LSN of the last appended record, 0 if none.
func (wm *WALManager) CurrentLSN() uint64 {
	wm.mu.RLock()
	defer wm.mu.RUnlock()
	return wm.currentLSN
}

// AdvanceLSN raises the LSN counter to at least lsn, so records appended
// after a checkpoint and a truncation keep numbering above it.
func (wm *WALManager) AdvanceLSN(lsn uint64) {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	wm.currentLSN = max(wm.currentLSN, lsn)
}

// SegmentCount returns the number of segment files in use.
func (wm *WALManager) SegmentCount() int {
	wm.mu.RLock()
	defer wm.mu.RUnlock()
	return len(wm.segments)
}

// Truncate deletes every segment and starts a fresh one. The LSN counter is
// kept. Call it once everything logged so far is in a checkpoint.
func (wm *WALManager) Truncate() error {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	if wm.segments == nil {
		return ErrClosed
	}

	// the fresh segment comes first, so appends keep working even when an
	// old file cannot be removed
	old := wm.sortedSegments()
	if err := wm.createNewSegment(); err != nil {
		return err
	}

	var errs []error
	for _, seg := range old {
		delete(wm.segments, seg.SegmentId)
		if err := seg.Remove(); err != nil {
			errs = append(errs, fmt.Errorf("remove segment %d: %w", seg.SegmentId, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		wm.log.Warn("wal truncated with leftovers", "err", err, "lsn", wm.currentLSN)
		return err
	}

	wm.log.Info("wal truncated", "dropped_segments", len(old), "lsn", wm.currentLSN)
	return nil
}

// Close syncs and closes every segment. Calling it again is a no-op.
func (wm *WALManager) Close() error {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	if wm.segments == nil {
		return nil
	}
	err := wm.closeSegments()
	wm.segments = nil
	wm.currSegment = nil
	return err
}

func (wm *WALManager) closeSegments() error {
	var errs []error
	for _, seg := range wm.segments {
		errs = append(errs, seg.Close())
	}
	return errors.Join(errs...)
}
