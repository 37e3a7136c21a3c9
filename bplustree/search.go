package bplus

import "fmt"

// Select returns the value of the first entry whose key equals key.
func (t *BPlusTree) Select(key Key) (val []byte, err error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	defer func() { observe("select", err) }()

	if err := t.checkState(); err != nil {
		return nil, fmt.Errorf("select %d: %w", key, err)
	}
	leaf, i := t.seekExact(key)
	if leaf == nil {
		return nil, ErrNotFound
	}
	return leaf.values[i], nil
}

// Update replaces the value of the first entry whose key equals key and
// returns the old value. The shape of the tree never changes.
func (t *BPlusTree) Update(key Key, value []byte) (old []byte, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	defer func() { observe("update", err) }()

	if err := t.checkState(); err != nil {
		return nil, fmt.Errorf("update %d: %w", key, err)
	}
	leaf, i := t.seekExact(key)
	if leaf == nil {
		return nil, ErrNotFound
	}
	old = leaf.values[i]
	leaf.values[i] = value
	return old, nil
}
