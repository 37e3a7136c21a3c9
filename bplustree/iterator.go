package bplus

import (
	"fmt"
	"iter"
)

// Iterator provides a forward-only range scan over the leaves.
// A valid iterator holds the tree's read lock until it is exhausted or
// closed; the tree cannot be modified in the meantime.
type Iterator struct {
	tree   *BPlusTree
	leaf   *Node
	index  int
	valid  bool
	locked bool
}

// SeekGE positions the iterator at the first key >= target.
func (t *BPlusTree) SeekGE(target Key) *Iterator {
	t.mu.RLock()

	it := &Iterator{tree: t, locked: true}
	if t.checkState() != nil {
		it.Close()
		return it
	}
	leaf, i := t.seek(target)
	if leaf == nil {
		it.Close()
		return it
	}
	it.leaf = leaf
	it.index = i
	it.valid = true
	return it
}

// Valid reports whether the iterator is positioned on an entry.
func (it *Iterator) Valid() bool {
	return it.valid
}

// Next advances the iterator. Returns false when exhausted.
func (it *Iterator) Next() bool {
	if !it.valid {
		return false
	}
	it.index++
	if it.index < len(it.leaf.keys) {
		return true
	}
	// move to next leaf
	next := it.tree.node(it.leaf.next)
	if next == nil || len(next.keys) == 0 {
		it.Close()
		return false
	}
	it.leaf = next
	it.index = 0
	return true
}

// Key returns the current key.
func (it *Iterator) Key() Key {
	if !it.valid {
		return 0
	}
	return it.leaf.keys[it.index]
}

// Value returns the current value.
func (it *Iterator) Value() []byte {
	if !it.valid {
		return nil
	}
	return it.leaf.values[it.index]
}

// Close invalidates the iterator and releases the read lock. It is safe to
// call more than once.
func (it *Iterator) Close() {
	it.valid = false
	it.leaf = nil
	if it.locked {
		it.locked = false
		it.tree.mu.RUnlock()
	}
}

// SelectRange yields up to count values starting at the first key >= start,
// walking the leaf chain. The sequence is empty when start is beyond every
// entry, and it can be ranged over any number of times. The tree must not be
// modified from inside the loop.
func (t *BPlusTree) SelectRange(start Key, count int) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		if count <= 0 {
			return
		}
		it := t.SeekGE(start)
		defer it.Close()
		for n := 0; it.Valid() && n < count; n++ {
			if !yield(it.Value()) {
				return
			}
			it.Next()
		}
	}
}

// SelectRangeSlice is the eager form of SelectRange.
func (t *BPlusTree) SelectRangeSlice(start Key, count int) (vals [][]byte, err error) {
	defer func() { observe("select_range", err) }()

	t.mu.RLock()
	err = t.checkState()
	t.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("select range %d: %w", start, err)
	}

	vals = make([][]byte, 0, max(0, min(count, 1024)))
	for v := range t.SelectRange(start, count) {
		vals = append(vals, v)
	}
	return vals, nil
}

// All yields every entry in key order.
func (t *BPlusTree) All() iter.Seq2[Key, []byte] {
	return func(yield func(Key, []byte) bool) {
		t.mu.RLock()
		defer t.mu.RUnlock()

		if t.checkState() != nil {
			return
		}
		for leaf := t.leftmostLeaf(); leaf != nil; leaf = t.node(leaf.next) {
			for i, k := range leaf.keys {
				if !yield(k, leaf.values[i]) {
					return
				}
			}
		}
	}
}
