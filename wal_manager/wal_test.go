package wal_manager

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestWAL(t *testing.T, dir string, opts ...Option) *WALManager {
	t.Helper()
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	w, err := OpenWAL(dir, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w
}

func insertOp(k uint64) *Operation {
	return &Operation{Type: OpInsert, Key: k, Value: []byte(fmt.Sprintf("v%d", k))}
}

type replayed struct {
	lsn uint64
	op  Operation
}

func replayAll(t *testing.T, w *WALManager, from uint64) []replayed {
	t.Helper()
	var out []replayed
	require.NoError(t, w.ReplayFromLSN(from, func(lsn uint64, op *Operation) error {
		out = append(out, replayed{lsn, *op})
		return nil
	}))
	return out
}

func segmentPath(dir string, id uint64) string {
	return filepath.Join(dir, fmt.Sprintf("wal_%016x.log", id))
}

func TestAppendAndReplay(t *testing.T) {
	w := openTestWAL(t, t.TempDir())

	ops := []*Operation{
		insertOp(1),
		{Type: OpUpdate, Key: 1, Value: []byte("one")},
		{Type: OpDelete, Key: 1},
	}
	for i, op := range ops {
		lsn, err := w.AppendOperation(op)
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), lsn)
	}
	require.NoError(t, w.Sync())
	assert.Equal(t, uint64(3), w.CurrentLSN())

	got := replayAll(t, w, 1)
	require.Len(t, got, 3)
	for i, r := range got {
		assert.Equal(t, uint64(i+1), r.lsn)
		assert.Equal(t, *ops[i], r.op)
	}

	got = replayAll(t, w, 3)
	require.Len(t, got, 1)
	assert.Equal(t, OpDelete, got[0].op.Type)
	assert.Empty(t, got[0].op.Value)
}

func TestReopenContinuesLSN(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir)
	for k := uint64(1); k <= 4; k++ {
		_, err := w.AppendOperation(insertOp(k))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	w = openTestWAL(t, dir)
	assert.Equal(t, uint64(4), w.CurrentLSN())
	lsn, err := w.AppendOperation(insertOp(5))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), lsn)

	got := replayAll(t, w, 0)
	require.Len(t, got, 5)
	assert.Equal(t, uint64(5), got[4].op.Key)
}

func TestSegmentRollover(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir, WithSegmentSize(64))
	for k := uint64(1); k <= 10; k++ {
		_, err := w.AppendOperation(insertOp(k))
		require.NoError(t, err)
	}
	assert.Greater(t, w.SegmentCount(), 1)
	require.NoError(t, w.Close())

	w = openTestWAL(t, dir, WithSegmentSize(64))
	assert.Equal(t, uint64(10), w.CurrentLSN())
	got := replayAll(t, w, 1)
	require.Len(t, got, 10)
	for i, r := range got {
		assert.Equal(t, uint64(i+1), r.lsn)
		assert.Equal(t, uint64(i+1), r.op.Key)
	}
}

func TestTornTailIsTruncated(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir)
	for k := uint64(1); k <= 3; k++ {
		_, err := w.AppendOperation(insertOp(k))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	f, err := os.OpenFile(segmentPath(dir, 0), os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0, 0, 0, 0, 0})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	w = openTestWAL(t, dir)
	assert.Equal(t, uint64(3), w.CurrentLSN())
	lsn, err := w.AppendOperation(insertOp(4))
	require.NoError(t, err)
	assert.Equal(t, uint64(4), lsn)

	got := replayAll(t, w, 1)
	require.Len(t, got, 4)
	assert.Equal(t, uint64(4), got[3].op.Key)
}

func TestChecksumMismatchInLastSegment(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir)
	for k := uint64(1); k <= 3; k++ {
		_, err := w.AppendOperation(insertOp(k))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	first, err := insertOp(1).Encode()
	require.NoError(t, err)
	path := segmentPath(dir, 0)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[RecordHeaderSize+len(first)+RecordHeaderSize] ^= 0xFF
	require.NoError(t, os.WriteFile(path, raw, 0644))

	w = openTestWAL(t, dir)
	assert.Equal(t, uint64(1), w.CurrentLSN())
	got := replayAll(t, w, 1)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(1), got[0].op.Key)
}

func TestCorruptOlderSegmentFailsOpen(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir, WithSegmentSize(64))
	for k := uint64(1); k <= 6; k++ {
		_, err := w.AppendOperation(insertOp(k))
		require.NoError(t, err)
	}
	require.Greater(t, w.SegmentCount(), 1)
	require.NoError(t, w.Close())

	path := segmentPath(dir, 0)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[RecordHeaderSize] ^= 0xFF
	require.NoError(t, os.WriteFile(path, raw, 0644))

	_, err = OpenWAL(dir, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.ErrorIs(t, err, ErrCorrupt)
	assert.Contains(t, err.Error(), "LSN 1")
}

func TestTruncate(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir, WithSegmentSize(64))
	for k := uint64(1); k <= 5; k++ {
		_, err := w.AppendOperation(insertOp(k))
		require.NoError(t, err)
	}

	require.NoError(t, w.Truncate())
	assert.Equal(t, 1, w.SegmentCount())
	assert.Equal(t, uint64(5), w.CurrentLSN())
	assert.Empty(t, replayAll(t, w, 0))

	lsn, err := w.AppendOperation(insertOp(6))
	require.NoError(t, err)
	assert.Equal(t, uint64(6), lsn)
	require.NoError(t, w.Close())

	files, err := filepath.Glob(filepath.Join(dir, "wal_*.log"))
	require.NoError(t, err)
	assert.Len(t, files, 1)

	w = openTestWAL(t, dir)
	assert.Equal(t, uint64(6), w.CurrentLSN())
}

func TestTruncateKeepsAppendingWhenRemoveFails(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir, WithSegmentSize(64))
	for k := uint64(1); k <= 5; k++ {
		_, err := w.AppendOperation(insertOp(k))
		require.NoError(t, err)
	}
	require.Greater(t, w.SegmentCount(), 1)

	// a segment file that is already gone cannot be removed
	files, err := filepath.Glob(filepath.Join(dir, "wal_*.log"))
	require.NoError(t, err)
	require.NoError(t, os.Remove(files[0]))

	assert.Error(t, w.Truncate())
	assert.Equal(t, 1, w.SegmentCount())

	lsn, err := w.AppendOperation(insertOp(6))
	require.NoError(t, err)
	assert.Equal(t, uint64(6), lsn)
	assert.Equal(t, []replayed{{6, *insertOp(6)}}, replayAll(t, w, 0))
}

func TestAdvanceLSNAfterEmptyTruncate(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir)
	for k := uint64(1); k <= 5; k++ {
		_, err := w.AppendOperation(insertOp(k))
		require.NoError(t, err)
	}
	require.NoError(t, w.Truncate())
	require.NoError(t, w.Close())

	w = openTestWAL(t, dir)
	assert.Equal(t, uint64(0), w.CurrentLSN())

	w.AdvanceLSN(5)
	w.AdvanceLSN(2)
	assert.Equal(t, uint64(5), w.CurrentLSN())
	lsn, err := w.AppendOperation(insertOp(6))
	require.NoError(t, err)
	assert.Equal(t, uint64(6), lsn)
}

func TestReplayStopsOnApplyError(t *testing.T) {
	w := openTestWAL(t, t.TempDir())
	for k := uint64(1); k <= 3; k++ {
		_, err := w.AppendOperation(insertOp(k))
		require.NoError(t, err)
	}

	boom := errors.New("boom")
	applied := 0
	err := w.ReplayFromLSN(1, func(lsn uint64, op *Operation) error {
		if lsn == 2 {
			return boom
		}
		applied++
		return nil
	})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "LSN 2")
	assert.Equal(t, 1, applied)
}

func TestClosedWAL(t *testing.T) {
	w := openTestWAL(t, t.TempDir())
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err := w.AppendOperation(insertOp(1))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, w.Sync(), ErrClosed)
	assert.ErrorIs(t, w.Truncate(), ErrClosed)
}

func TestOperationCodec(t *testing.T) {
	_, err := (&Operation{Type: 9, Key: 1}).Encode()
	assert.Error(t, err)

	_, err = DecodeOperation([]byte(`{"type":9,"key":1}`))
	assert.Error(t, err)

	_, err = DecodeOperation([]byte(`not json`))
	assert.Error(t, err)

	op, err := DecodeOperation([]byte(`{"type":2,"key":7,"value":"YWJj"}`))
	require.NoError(t, err)
	assert.Equal(t, &Operation{Type: OpUpdate, Key: 7, Value: []byte("abc")}, op)
	assert.Equal(t, "update", op.Type.String())

	data, err := (&Operation{Type: OpInsert, Key: 3, Value: []byte{}}).Encode()
	require.NoError(t, err)
	op, err = DecodeOperation(data)
	require.NoError(t, err)
	assert.NotNil(t, op.Value)
	assert.Empty(t, op.Value)

	data, err = (&Operation{Type: OpDelete, Key: 3}).Encode()
	require.NoError(t, err)
	op, err = DecodeOperation(data)
	require.NoError(t, err)
	assert.Nil(t, op.Value)
}
