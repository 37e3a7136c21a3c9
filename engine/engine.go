// Package engine embeds a B+tree index with durability: every mutation is
// appended to a write-ahead log before it reaches the tree, and checkpoints
// snapshot the whole tree into a pebble-backed page store.
//
// Layout of an engine directory:
//
//	dir/checkpoint/  pebble page store holding the latest snapshot
//	dir/wal/         write-ahead log segments
//
// Open restores the latest snapshot and replays every log record newer than
// it. A checkpoint writes its nodes to fresh pages and switches the meta page
// last, so a crash mid-checkpoint leaves the previous snapshot intact.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	bplus "bplusindex/bplustree"
	wal "bplusindex/wal_manager"
)

var ErrClosed = errors.New("engine: closed")

type Engine struct {
	// mu serializes mutations, so log order is apply order. Reads go to
	// the tree, which has its own lock.
	mu sync.Mutex

	dir     string
	opts    Options
	tree    *bplus.BPlusTree
	store   *bplus.PebblePager
	pool    *bplus.BufferPool
	wal     *wal.WALManager
	log     *slog.Logger
	ckptLSN uint64
	// maxValue is the longest value a checkpoint of tree can hold.
	maxValue int
	// replayed counts records applied from the log by Open.
	replayed int
	closed   bool
}

// Stats is a point-in-time view of an engine.
type Stats struct {
	Records       uint64
	Nodes         uint64
	Height        uint64
	LSN           uint64
	CheckpointLSN uint64
	Replayed      int
	MaxValueLen   int
	StorePages    int64
	WALSegments   int
	CacheHits     uint64
	CacheMisses   uint64
	CacheHitRatio float64
}

// Open opens or creates the engine in dir and brings the tree up to date
// with the log.
func Open(dir string, opts Options) (*Engine, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Config.Order == 0 {
		opts.Config.Order = bplus.DefaultOrder
	}
	if opts.Config.Logger == nil {
		opts.Config.Logger = opts.Logger
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	e := &Engine{
		dir:  dir,
		opts: opts,
		log:  opts.Logger.With("component", "engine", "dir", dir),
	}
	if err := e.open(); err != nil {
		e.closeAll()
		return nil, err
	}
	return e, nil
}

func (e *Engine) open() error {
	var err error
	e.store, err = bplus.OpenPebblePager(filepath.Join(e.dir, "checkpoint"), nil)
	if err != nil {
		return err
	}
	e.pool, err = bplus.NewBufferPool(e.store, e.opts.CacheBytes)
	if err != nil {
		e.store.Close()
		e.store = nil
		return err
	}

	e.tree, e.ckptLSN, err = bplus.Restore(e.pool, e.opts.Config)
	switch {
	case errors.Is(err, bplus.ErrNoCheckpoint):
		e.tree, err = bplus.New(e.opts.Config)
		if err != nil {
			return err
		}
	case err != nil:
		return fmt.Errorf("restore checkpoint: %w", err)
	}
	checkpointLSN.Set(float64(e.ckptLSN))

	// the checkpoint's order wins over the options, so size values by the tree
	cfg := e.tree.Config()
	e.maxValue = e.opts.MaxValueLen
	if e.maxValue == 0 {
		e.maxValue = cfg.MaxLeafValueLen()
	}
	if err := cfg.FitsPage(e.maxValue); err != nil {
		return err
	}

	walOpts := []wal.Option{wal.WithLogger(e.opts.Logger)}
	if e.opts.WALSegmentSize > 0 {
		walOpts = append(walOpts, wal.WithSegmentSize(e.opts.WALSegmentSize))
	}
	e.wal, err = wal.OpenWAL(filepath.Join(e.dir, "wal"), walOpts...)
	if err != nil {
		return err
	}
	e.wal.AdvanceLSN(e.ckptLSN)

	if err := e.wal.ReplayFromLSN(e.ckptLSN+1, e.replay); err != nil {
		return fmt.Errorf("replay wal: %w", err)
	}

	e.log.Info("engine opened",
		"checkpoint_lsn", e.ckptLSN,
		"lsn", e.wal.CurrentLSN(),
		"replayed", e.replayed,
		"records", e.tree.AllRecords(),
		"max_value_len", e.maxValue,
	)
	return nil
}

// replay applies one logged operation. Operations fail during replay
// exactly as they failed when first applied, since the tree is in the same
// state; those failures are skipped.
func (e *Engine) replay(lsn uint64, op *wal.Operation) error {
	err := e.apply(op)
	switch {
	case err == nil:
		e.replayed++
		replayedOps.WithLabelValues("applied").Inc()
		return nil
	case errors.Is(err, bplus.ErrNotFound), errors.Is(err, bplus.ErrAlreadyExists), errors.Is(err, bplus.ErrOutOfMemory):
		replayedOps.WithLabelValues("skipped").Inc()
		e.log.Debug("replayed operation failed as originally", "lsn", lsn, "op", op.Type, "key", op.Key, "err", err)
		return nil
	default:
		return err
	}
}

func (e *Engine) apply(op *wal.Operation) error {
	switch op.Type {
	case wal.OpInsert:
		return e.tree.Insert(op.Key, op.Value)
	case wal.OpUpdate:
		_, err := e.tree.Update(op.Key, op.Value)
		return err
	case wal.OpDelete:
		_, err := e.tree.Delete(op.Key)
		return err
	default:
		return fmt.Errorf("unknown operation type %d", op.Type)
	}
}

// logOp appends op to the log, syncing when SyncWrites is set. The caller
// holds e.mu.
func (e *Engine) logOp(op *wal.Operation) error {
	if e.closed {
		return ErrClosed
	}
	if _, err := e.wal.AppendOperation(op); err != nil {
		return fmt.Errorf("log %s: %w", op.Type, err)
	}
	walAppends.WithLabelValues(op.Type.String()).Inc()
	if e.opts.SyncWrites {
		if err := e.wal.Sync(); err != nil {
			return fmt.Errorf("sync wal: %w", err)
		}
	}
	return nil
}

// checkValue rejects values that no checkpoint could store and turns a nil
// value into an empty one, which is what both the log and a checkpoint give
// back. It runs before the operation is logged.
func (e *Engine) checkValue(value []byte) ([]byte, error) {
	if len(value) > e.maxValue {
		return nil, fmt.Errorf("value of %d bytes exceeds %d: %w", len(value), e.maxValue, bplus.ErrPageOverflow)
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

// Insert logs and adds an entry. Values longer than the engine's limit fail
// with bplus.ErrPageOverflow and are not logged.
func (e *Engine) Insert(key bplus.Key, value []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	value, err := e.checkValue(value)
	if err != nil {
		return err
	}
	if err := e.logOp(&wal.Operation{Type: wal.OpInsert, Key: key, Value: value}); err != nil {
		return err
	}
	return e.tree.Insert(key, value)
}

// Update replaces the value of the oldest entry for key and returns the
// previous value.
func (e *Engine) Update(key bplus.Key, value []byte) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	value, err := e.checkValue(value)
	if err != nil {
		return nil, err
	}
	if err := e.logOp(&wal.Operation{Type: wal.OpUpdate, Key: key, Value: value}); err != nil {
		return nil, err
	}
	return e.tree.Update(key, value)
}

// Delete removes the oldest entry for key and returns its value.
func (e *Engine) Delete(key bplus.Key) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.logOp(&wal.Operation{Type: wal.OpDelete, Key: key}); err != nil {
		return nil, err
	}
	return e.tree.Delete(key)
}

func (e *Engine) Select(key bplus.Key) ([]byte, error) {
	if e.isClosed() {
		return nil, ErrClosed
	}
	return e.tree.Select(key)
}

// SelectRange returns up to count values in key order, starting at the
// first key >= start.
func (e *Engine) SelectRange(start bplus.Key, count int) ([][]byte, error) {
	if e.isClosed() {
		return nil, ErrClosed
	}
	return e.tree.SelectRangeSlice(start, count)
}

// Tree returns the live tree for read-only use such as printing and
// checking. Mutating it directly bypasses the log.
func (e *Engine) Tree() *bplus.BPlusTree {
	return e.tree
}

// Checkpoint snapshots the tree at the current LSN, truncates the log and
// frees the pages of the previous snapshot.
func (e *Engine) Checkpoint() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	return e.checkpointLocked()
}

func (e *Engine) checkpointLocked() (err error) {
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		checkpoints.WithLabelValues(result).Inc()
	}()

	lsn := e.wal.CurrentLSN()
	stale := e.store.TotalPages()

	if err := e.tree.Checkpoint(e.pool, lsn); err != nil {
		return err
	}
	e.ckptLSN = lsn
	checkpointLSN.Set(float64(lsn))

	if err := e.wal.Truncate(); err != nil {
		return fmt.Errorf("truncate wal: %w", err)
	}
	if err := e.pool.ReleasePages(1, stale); err != nil {
		return fmt.Errorf("release stale pages: %w", err)
	}
	if err := e.pool.Sync(); err != nil {
		return err
	}

	e.log.Info("checkpoint complete", "lsn", lsn, "released_pages", stale-1)
	return nil
}

// Reset empties the tree and checkpoints the empty state.
func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if err := e.tree.Init(); err != nil {
		return err
	}
	return e.checkpointLocked()
}

func (e *Engine) Stats() Stats {
	s := Stats{
		Records: e.tree.AllRecords(),
		Nodes:   e.tree.AllNodes(),
		Height:  e.tree.Height(),
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s.CheckpointLSN = e.ckptLSN
	s.Replayed = e.replayed
	s.MaxValueLen = e.maxValue
	if !e.closed {
		s.LSN = e.wal.CurrentLSN()
		s.WALSegments = e.wal.SegmentCount()
		s.StorePages = e.store.TotalPages()
		s.CacheHits = e.pool.Hits()
		s.CacheMisses = e.pool.Misses()
		s.CacheHitRatio = e.pool.HitRatio()
	}
	return s
}

// Close checkpoints when CheckpointOnClose is set and releases the log and
// the page store. Calling it again is a no-op.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}

	var errs []error
	if e.opts.CheckpointOnClose {
		errs = append(errs, e.checkpointLocked())
	}
	errs = append(errs, e.closeAll())
	e.closed = true

	e.log.Info("engine closed")
	return errors.Join(errs...)
}

func (e *Engine) closeAll() error {
	var errs []error
	if e.wal != nil {
		errs = append(errs, e.wal.Close())
	}
	if e.pool != nil {
		errs = append(errs, e.pool.Close())
	}
	return errors.Join(errs...)
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
