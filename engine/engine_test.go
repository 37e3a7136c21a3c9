package engine

import (
	"fmt"
	"io"
	"log/slog"
	"testing"

	bplus "bplusindex/bplustree"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	opts := DefaultOptions()
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	opts.CheckpointOnClose = false
	opts.CacheBytes = 64 * bplus.PageSize
	return opts
}

func openTestEngine(t *testing.T, dir string, opts Options) *Engine {
	t.Helper()
	e, err := Open(dir, opts)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func val(k bplus.Key) []byte {
	return []byte(fmt.Sprintf("v%d", k))
}

type entry struct {
	key bplus.Key
	val string
}

func snapshot(e *Engine) []entry {
	var out []entry
	for k, v := range e.Tree().All() {
		out = append(out, entry{k, string(v)})
	}
	return out
}

// mutate runs a fixed mix of inserts, updates and deletes.
func mutate(t *testing.T, e *Engine, from, to bplus.Key) {
	t.Helper()
	for k := from; k <= to; k++ {
		require.NoError(t, e.Insert(k, val(k)))
	}
	for k := from; k <= to; k += 3 {
		_, err := e.Update(k, []byte(fmt.Sprintf("u%d", k)))
		require.NoError(t, err)
	}
	for k := from + 1; k <= to; k += 4 {
		_, err := e.Delete(k)
		require.NoError(t, err)
	}
}

func TestReplayWithoutCheckpoint(t *testing.T) {
	dir := t.TempDir()
	e := openTestEngine(t, dir, testOptions())
	mutate(t, e, 1, 60)
	want := snapshot(e)
	lsn := e.Stats().LSN
	require.NoError(t, e.Close())

	e = openTestEngine(t, dir, testOptions())
	require.NoError(t, e.Tree().Check())
	assert.Equal(t, want, snapshot(e))

	st := e.Stats()
	assert.Equal(t, uint64(0), st.CheckpointLSN)
	assert.Equal(t, lsn, st.LSN)
	assert.Equal(t, int(lsn), st.Replayed)
}

func TestCheckpointThenReplay(t *testing.T) {
	dir := t.TempDir()
	e := openTestEngine(t, dir, testOptions())
	mutate(t, e, 1, 40)
	require.NoError(t, e.Checkpoint())
	ckpt := e.Stats().LSN
	assert.Equal(t, ckpt, e.Stats().CheckpointLSN)
	assert.Equal(t, 1, e.Stats().WALSegments)

	mutate(t, e, 41, 70)
	want := snapshot(e)
	lsn := e.Stats().LSN
	require.NoError(t, e.Close())

	e = openTestEngine(t, dir, testOptions())
	require.NoError(t, e.Tree().Check())
	assert.Equal(t, want, snapshot(e))

	st := e.Stats()
	assert.Equal(t, ckpt, st.CheckpointLSN)
	assert.Equal(t, lsn, st.LSN)
	assert.Equal(t, int(lsn-ckpt), st.Replayed)

	require.NoError(t, e.Insert(1000, val(1000)))
	assert.Equal(t, lsn+1, e.Stats().LSN)
}

func TestCheckpointOnClose(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions()
	opts.CheckpointOnClose = true

	e := openTestEngine(t, dir, opts)
	mutate(t, e, 1, 30)
	want := snapshot(e)
	lsn := e.Stats().LSN
	require.NoError(t, e.Close())

	e = openTestEngine(t, dir, opts)
	assert.Equal(t, want, snapshot(e))
	st := e.Stats()
	assert.Equal(t, 0, st.Replayed)
	assert.Equal(t, lsn, st.CheckpointLSN)
	assert.Equal(t, lsn, st.LSN)

	// numbering continues above the checkpoint even though the log is empty
	require.NoError(t, e.Insert(500, val(500)))
	assert.Equal(t, lsn+1, e.Stats().LSN)
}

func TestCheckpointReleasesStalePages(t *testing.T) {
	e := openTestEngine(t, t.TempDir(), testOptions())
	mutate(t, e, 1, 40)
	require.NoError(t, e.Checkpoint())
	first := e.Stats().StorePages

	_, err := e.pool.ReadPage(1)
	require.NoError(t, err)

	require.NoError(t, e.Insert(41, val(41)))
	require.NoError(t, e.Checkpoint())
	assert.Greater(t, e.Stats().StorePages, first)

	for id := int64(1); id < first; id++ {
		_, err := e.pool.ReadPage(id)
		assert.ErrorIs(t, err, bplus.ErrPageNotFound, "page %d", id)
	}

	restored, lsn, err := bplus.Restore(e.pool, bplus.Config{Logger: e.opts.Logger})
	require.NoError(t, err)
	assert.Equal(t, e.Stats().LSN, lsn)
	assert.Equal(t, e.Tree().AllRecords(), restored.AllRecords())
}

func TestFailedOperationsReplay(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions()
	opts.Config.AllowDuplicates = false

	e := openTestEngine(t, dir, opts)
	require.NoError(t, e.Insert(1, val(1)))
	assert.ErrorIs(t, e.Insert(1, []byte("again")), bplus.ErrAlreadyExists)
	_, err := e.Delete(2)
	assert.ErrorIs(t, err, bplus.ErrNotFound)
	_, err = e.Update(3, []byte("x"))
	assert.ErrorIs(t, err, bplus.ErrNotFound)
	require.NoError(t, e.Insert(2, val(2)))
	want := snapshot(e)
	require.NoError(t, e.Close())

	e = openTestEngine(t, dir, opts)
	assert.Equal(t, want, snapshot(e))
	assert.Equal(t, 2, e.Stats().Replayed)
	assert.Equal(t, uint64(5), e.Stats().LSN)
}

func TestDuplicatesSurviveRestart(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions()
	opts.CheckpointOnClose = true

	e := openTestEngine(t, dir, opts)
	for i := 0; i < 6; i++ {
		require.NoError(t, e.Insert(7, []byte(fmt.Sprintf("d%d", i))))
	}
	require.NoError(t, e.Close())

	e = openTestEngine(t, dir, opts)
	vals, err := e.SelectRange(7, 10)
	require.NoError(t, err)
	require.Len(t, vals, 6)
	for i, v := range vals {
		assert.Equal(t, fmt.Sprintf("d%d", i), string(v))
	}

	v, err := e.Delete(7)
	require.NoError(t, err)
	assert.Equal(t, "d0", string(v))
	v, err = e.Select(7)
	require.NoError(t, err)
	assert.Equal(t, "d1", string(v))
}

func TestCheckpointKeepsTreeShape(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions()
	opts.Config.Order = 5

	e := openTestEngine(t, dir, opts)
	mutate(t, e, 1, 100)
	require.NoError(t, e.Checkpoint())
	want := e.Stats()
	require.NoError(t, e.Close())

	// a different order in the options does not override the checkpoint
	opts.Config.Order = 3
	e = openTestEngine(t, dir, opts)
	got := e.Stats()
	assert.Equal(t, 5, e.Tree().Config().Order)
	assert.Equal(t, want.Records, got.Records)
	assert.Equal(t, want.Nodes, got.Nodes)
	assert.Equal(t, want.Height, got.Height)
}

func TestReset(t *testing.T) {
	dir := t.TempDir()
	e := openTestEngine(t, dir, testOptions())
	mutate(t, e, 1, 20)
	require.NoError(t, e.Reset())
	assert.Equal(t, uint64(0), e.Tree().AllRecords())
	require.NoError(t, e.Insert(99, val(99)))
	require.NoError(t, e.Close())

	e = openTestEngine(t, dir, testOptions())
	assert.Equal(t, []entry{{99, "v99"}}, snapshot(e))
}

func TestWALRollover(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions()
	opts.WALSegmentSize = 256

	e := openTestEngine(t, dir, opts)
	mutate(t, e, 1, 50)
	assert.Greater(t, e.Stats().WALSegments, 1)
	want := snapshot(e)
	require.NoError(t, e.Close())

	e = openTestEngine(t, dir, opts)
	assert.Equal(t, want, snapshot(e))
}

func TestClosedEngine(t *testing.T) {
	e := openTestEngine(t, t.TempDir(), testOptions())
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	assert.ErrorIs(t, e.Insert(1, val(1)), ErrClosed)
	_, err := e.Update(1, val(1))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = e.Delete(1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = e.Select(1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = e.SelectRange(1, 2)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, e.Checkpoint(), ErrClosed)
	assert.ErrorIs(t, e.Reset(), ErrClosed)
}

func TestOpenRejectsBadOrder(t *testing.T) {
	opts := testOptions()
	opts.Config.Order = 2
	_, err := Open(t.TempDir(), opts)
	assert.ErrorIs(t, err, bplus.ErrInvalidOrder)
}

func TestRejectsValuesTooLongToCheckpoint(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions()
	opts.CheckpointOnClose = true

	e := openTestEngine(t, dir, opts)
	assert.Equal(t, bplus.MaxValLen, e.Stats().MaxValueLen)
	require.NoError(t, e.Insert(1, val(1)))

	big := make([]byte, 2000)
	assert.ErrorIs(t, e.Insert(2, big), bplus.ErrPageOverflow)
	_, err := e.Update(1, big)
	assert.ErrorIs(t, err, bplus.ErrPageOverflow)
	require.NoError(t, e.Insert(3, make([]byte, bplus.MaxValLen)))

	// rejected values never reach the log
	assert.Equal(t, uint64(2), e.Stats().LSN)
	require.NoError(t, e.Checkpoint())
	require.NoError(t, e.Checkpoint())
	require.NoError(t, e.Close())

	e = openTestEngine(t, dir, opts)
	v, err := e.Select(1)
	require.NoError(t, err)
	assert.Equal(t, val(1), v)
	assert.Equal(t, uint64(2), e.Tree().AllRecords())
}

func TestFullLeavesAlwaysCheckpoint(t *testing.T) {
	opts := testOptions()
	opts.Config.Order = 5
	e := openTestEngine(t, t.TempDir(), opts)

	limit := e.Stats().MaxValueLen
	assert.Equal(t, 1005, limit)
	for k := bplus.Key(1); k <= 4; k++ {
		assert.ErrorIs(t, e.Insert(k, make([]byte, bplus.MaxValLen)), bplus.ErrPageOverflow)
	}
	for k := bplus.Key(1); k <= 4; k++ {
		require.NoError(t, e.Insert(k, make([]byte, limit)))
	}
	assert.Equal(t, uint64(1), e.Tree().AllNodes())
	require.NoError(t, e.Checkpoint())
}

func TestOpenRejectsUncheckpointableShape(t *testing.T) {
	opts := testOptions()
	opts.Config.Order = 5
	opts.MaxValueLen = bplus.MaxValLen
	_, err := Open(t.TempDir(), opts)
	assert.ErrorIs(t, err, bplus.ErrPageOverflow)

	opts = testOptions()
	opts.Config.Order = 300
	_, err = Open(t.TempDir(), opts)
	assert.ErrorIs(t, err, bplus.ErrPageOverflow)

	opts = testOptions()
	opts.MaxValueLen = 100
	e := openTestEngine(t, t.TempDir(), opts)
	assert.ErrorIs(t, e.Insert(1, make([]byte, 101)), bplus.ErrPageOverflow)
	require.NoError(t, e.Insert(1, make([]byte, 100)))
}

func TestEmptyValuesSurviveRecovery(t *testing.T) {
	dir := t.TempDir()
	e := openTestEngine(t, dir, testOptions())
	require.NoError(t, e.Insert(1, []byte{}))
	require.NoError(t, e.Insert(2, nil))

	requireEmpty := func(e *Engine) {
		t.Helper()
		for _, k := range []bplus.Key{1, 2} {
			v, err := e.Select(k)
			require.NoError(t, err)
			assert.NotNil(t, v, "key %d", k)
			assert.Empty(t, v, "key %d", k)
		}
	}
	requireEmpty(e)
	require.NoError(t, e.Close())

	// from the log
	e = openTestEngine(t, dir, testOptions())
	assert.Equal(t, 2, e.Stats().Replayed)
	requireEmpty(e)
	require.NoError(t, e.Checkpoint())
	require.NoError(t, e.Close())

	// from the checkpoint
	e = openTestEngine(t, dir, testOptions())
	assert.Equal(t, 0, e.Stats().Replayed)
	requireEmpty(e)
}
