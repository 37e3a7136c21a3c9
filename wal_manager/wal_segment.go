package wal_manager

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

func InitializeWALSegment(segmentId uint64, basePath string) *WALSegment {
	fileName := fmt.Sprintf("wal_%016x.log", segmentId)
	return &WALSegment{
		SegmentId: segmentId,
		FilePath:  filepath.Join(basePath, fileName),
	}
}

// opens the segment file in append-only mode
func (ws *WALSegment) Open() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.File != nil {
		return nil
	}

	file, err := os.OpenFile(ws.FilePath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}

	ws.File = file
	ws.Size = stat.Size()
	return nil
}

// Append writes data at the end of the segment and returns its offset.
func (ws *WALSegment) Append(data []byte) (int64, error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.File == nil {
		return 0, fmt.Errorf("segment %d not opened", ws.SegmentId)
	}

	offset := ws.Size
	n, err := ws.File.Write(data)
	ws.Size += int64(n)
	if err != nil {
		return 0, err
	}
	return offset, nil
}

func (ws *WALSegment) Sync() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.File == nil {
		return fmt.Errorf("segment %d not opened", ws.SegmentId)
	}
	return ws.File.Sync()
}

func (ws *WALSegment) Close() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.File == nil {
		return nil
	}
	syncErr := ws.File.Sync()
	closeErr := ws.File.Close()
	ws.File = nil
	return errors.Join(syncErr, closeErr)
}

// Remove closes the segment and deletes its file. The file is deleted even
// when closing fails.
func (ws *WALSegment) Remove() error {
	closeErr := ws.Close()
	return errors.Join(closeErr, os.Remove(ws.FilePath))
}

// IsFull reports whether the segment has reached limit bytes.
func (ws *WALSegment) IsFull(limit int64) bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.Size >= limit
}

// truncate cuts the segment back to size bytes.
func (ws *WALSegment) truncate(size int64) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.File == nil {
		return fmt.Errorf("segment %d not opened", ws.SegmentId)
	}
	if err := ws.File.Truncate(size); err != nil {
		return err
	}
	ws.Size = size
	return ws.File.Sync()
}

// forEachRecord reads the segment from the start and calls fn for every
// intact record. It returns the offset just past the last intact record.
// A short record ends the scan without error; a checksum mismatch ends it
// with ErrCorrupt. The caller decides whether the bytes after validEnd are
// a torn tail.
func (ws *WALSegment) forEachRecord(fn func(rec *WALRecord) error) (validEnd int64, err error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	file, err := os.Open(ws.FilePath)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return 0, err
	}
	fileSize := stat.Size()

	r := bufio.NewReader(file)
	header := make([]byte, RecordHeaderSize)
	for {
		if _, err := io.ReadFull(r, header); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return validEnd, nil
			}
			return validEnd, err
		}

		rec := &WALRecord{
			LSN: binary.BigEndian.Uint64(header[0:8]),
			Sum: binary.BigEndian.Uint32(header[12:16]),
		}
		dataLen := int64(binary.BigEndian.Uint32(header[8:12]))
		if validEnd+RecordHeaderSize+dataLen > fileSize {
			return validEnd, nil
		}
		rec.Data = make([]byte, dataLen)
		if _, err := io.ReadFull(r, rec.Data); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return validEnd, nil
			}
			return validEnd, err
		}
		if !rec.Valid() {
			return validEnd, fmt.Errorf("checksum mismatch at LSN %d: %w", rec.LSN, ErrCorrupt)
		}

		if err := fn(rec); err != nil {
			return validEnd, err
		}
		validEnd += int64(RecordHeaderSize + len(rec.Data))
	}
}
