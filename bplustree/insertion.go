package bplus

import "fmt"

// Insert adds key/value to the tree. Duplicate keys are kept as separate
// entries unless the tree was configured without them, in which case an
// existing key fails with ErrAlreadyExists. Every node a split cascade will
// need is reserved before the leaf is touched, so ErrOutOfMemory leaves the
// tree unchanged.
func (t *BPlusTree) Insert(key Key, value []byte) (err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	defer func() { observe("insert", err) }()

	if err := t.checkState(); err != nil {
		return fmt.Errorf("insert %d: %w", key, err)
	}
	if !t.allowDups {
		if leaf, _ := t.seekExact(key); leaf != nil {
			return fmt.Errorf("insert %d: %w", key, ErrAlreadyExists)
		}
	}

	leaf := t.findLeaf(key)
	if leaf == nil {
		return fmt.Errorf("insert %d: %w", key, ErrInvalidState)
	}
	if need := t.splitsNeeded(leaf); need > 0 {
		if err := t.arena.reserve(need); err != nil {
			nodeAllocFailures.Inc()
			t.log.Warn("insert refused", "key", key, "nodes_needed", need, "err", err)
			return fmt.Errorf("insert %d: %w", key, err)
		}
	}

	i := upperBound(leaf.keys, key)
	leaf.keys = insert(leaf.keys, i, key)
	leaf.values = insert(leaf.values, i, value)
	t.records++

	if leaf.KeyNum() > t.maxKeys {
		if err := t.splitLeaf(leaf); err != nil {
			return fmt.Errorf("insert %d: %w", key, err)
		}
	}
	return nil
}

// splitsNeeded counts the nodes an insert into leaf will allocate: one per
// full node on the way up, plus a new root if the run of full nodes reaches it.
func (t *BPlusTree) splitsNeeded(leaf *Node) int {
	need := 0
	for n := leaf; n != nil && n.KeyNum() >= t.maxKeys; n = t.node(n.parent) {
		need++
		if t.isRoot(n) {
			need++
		}
	}
	return need
}

// splitLeaf moves entries [mid, keyNum) of an overflowing leaf into a new
// right sibling and copies the sibling's first key up as the separator.
func (t *BPlusTree) splitLeaf(leaf *Node) error {
	right, err := t.newNode(NodeLeaf)
	if err != nil {
		return err
	}
	mid := leaf.KeyNum() / 2

	right.keys = append(right.keys, leaf.keys[mid:]...)
	right.values = append(right.values, leaf.values[mid:]...)
	clear(leaf.values[mid:])
	leaf.keys = leaf.keys[:mid]
	leaf.values = leaf.values[:mid]

	// link right into the leaf chain after leaf
	right.prev = leaf.id
	right.next = leaf.next
	if next := t.node(leaf.next); next != nil {
		next.prev = right.id
	}
	leaf.next = right.id
	right.parent = leaf.parent

	splits.WithLabelValues("leaf").Inc()
	t.log.Debug("leaf split", "left", leaf.id, "right", right.id, "separator", right.keys[0])

	return t.insertIntoParent(leaf, right.keys[0], right)
}
