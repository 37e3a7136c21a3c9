package main

import (
	"fmt"
	"math/rand/v2"
	"runtime"
	"time"

	bplus "bplusindex/bplustree"

	"github.com/dustin/go-humanize"
)

type result struct {
	Operation string
	Ops       int
	Elapsed   time.Duration
	Height    uint64
	Nodes     uint64
	Records   uint64
	HeapBytes uint64
}

func (r result) NsPerOp() int64 {
	if r.Ops == 0 {
		return 0
	}
	return r.Elapsed.Nanoseconds() / int64(r.Ops)
}

func (r result) String() string {
	return fmt.Sprintf("%-8s %10s ops %8d ns/op  height=%d nodes=%s records=%s heap=%s",
		r.Operation, humanize.Comma(int64(r.Ops)), r.NsPerOp(), r.Height,
		humanize.Comma(int64(r.Nodes)), humanize.Comma(int64(r.Records)), humanize.IBytes(r.HeapBytes))
}

type workload func(cfg bplus.Config, n int, seed uint64) ([]result, error)

var workloads = map[string]workload{
	"ascending": ascending,
	"random":    random,
	"mixed":     mixed,
	"range":     ranges,
}

// heapInUse forces a GC so the figure is live data, not garbage.
func heapInUse() uint64 {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	return m.HeapAlloc
}

func measure(tree *bplus.BPlusTree, op string, ops int, fn func() error) (result, error) {
	start := time.Now()
	if err := fn(); err != nil {
		return result{}, err
	}
	res := result{
		Operation: op,
		Ops:       ops,
		Elapsed:   time.Since(start),
		Height:    tree.Height(),
		Nodes:     tree.AllNodes(),
		Records:   tree.AllRecords(),
		HeapBytes: heapInUse(),
	}
	if err := tree.Check(); err != nil {
		return res, fmt.Errorf("after %s: %w", op, err)
	}
	return res, nil
}

func value(k bplus.Key) []byte {
	return []byte(fmt.Sprintf("v%d", k))
}

// insertSelectDelete inserts keys in order, selects them all, then deletes
// them all.
func insertSelectDelete(cfg bplus.Config, keys []bplus.Key) ([]result, error) {
	tree, err := bplus.New(cfg)
	if err != nil {
		return nil, err
	}
	defer tree.Destroy()

	var out []result
	steps := []struct {
		op string
		fn func(k bplus.Key) error
	}{
		{"insert", func(k bplus.Key) error { return tree.Insert(k, value(k)) }},
		{"select", func(k bplus.Key) error { _, err := tree.Select(k); return err }},
		{"delete", func(k bplus.Key) error { _, err := tree.Delete(k); return err }},
	}
	for _, step := range steps {
		res, err := measure(tree, step.op, len(keys), func() error {
			for _, k := range keys {
				if err := step.fn(k); err != nil {
					return fmt.Errorf("%s %d: %w", step.op, k, err)
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

func ascending(cfg bplus.Config, n int, _ uint64) ([]result, error) {
	keys := make([]bplus.Key, n)
	for i := range keys {
		keys[i] = bplus.Key(i)
	}
	return insertSelectDelete(cfg, keys)
}

func random(cfg bplus.Config, n int, seed uint64) ([]result, error) {
	rng := rand.New(rand.NewPCG(seed, 0))
	keys := make([]bplus.Key, n)
	for i, p := range rng.Perm(n) {
		keys[i] = bplus.Key(p)
	}
	return insertSelectDelete(cfg, keys)
}

// mixed runs n operations: 50% insert, 30% select, 20% delete over a key
// space of n/4, so duplicates and misses both happen.
func mixed(cfg bplus.Config, n int, seed uint64) ([]result, error) {
	tree, err := bplus.New(cfg)
	if err != nil {
		return nil, err
	}
	defer tree.Destroy()

	rng := rand.New(rand.NewPCG(seed, 1))
	space := max(n/4, 1)
	res, err := measure(tree, "mixed", n, func() error {
		for i := 0; i < n; i++ {
			k := bplus.Key(rng.IntN(space))
			switch c := rng.IntN(10); {
			case c < 5:
				if err := tree.Insert(k, value(k)); err != nil {
					return err
				}
			case c < 8:
				tree.Select(k)
			default:
				tree.Delete(k)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return []result{res}, nil
}

// ranges loads n keys and runs n/100 scans of 100 values from random
// starting keys.
func ranges(cfg bplus.Config, n int, seed uint64) ([]result, error) {
	tree, err := bplus.New(cfg)
	if err != nil {
		return nil, err
	}
	defer tree.Destroy()

	for k := bplus.Key(0); k < bplus.Key(n); k++ {
		if err := tree.Insert(k, value(k)); err != nil {
			return nil, err
		}
	}

	rng := rand.New(rand.NewPCG(seed, 2))
	scans := max(n/100, 1)
	res, err := measure(tree, "range", scans, func() error {
		for i := 0; i < scans; i++ {
			for range tree.SelectRange(bplus.Key(rng.IntN(n)), 100) {
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return []result{res}, nil
}
