package bplus

import "fmt"

// Delete removes the first entry whose key equals key and returns its value.
func (t *BPlusTree) Delete(key Key) (val []byte, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	defer func() { observe("delete", err) }()

	if err := t.checkState(); err != nil {
		return nil, fmt.Errorf("delete %d: %w", key, err)
	}
	leaf, i := t.seekExact(key)
	if leaf == nil {
		return nil, ErrNotFound
	}

	val = leaf.values[i]
	leaf.keys = remove(leaf.keys, i)
	leaf.values = remove(leaf.values, i)
	t.records--

	if t.isRoot(leaf) {
		return val, nil
	}
	if i == 0 && leaf.KeyNum() > 0 {
		t.syncSeparator(leaf)
	}
	if leaf.KeyNum() < t.minKeys {
		if err := t.rebalance(leaf); err != nil {
			return nil, fmt.Errorf("delete %d: %w", key, err)
		}
	}
	return val, nil
}

// syncSeparator copies the first key of leaf into the separator that bounds
// its subtree from the left: the first ancestor slot where the path is not
// child 0. The leftmost leaf of the tree has no such separator.
func (t *BPlusTree) syncSeparator(leaf *Node) {
	first := leaf.keys[0]
	child := leaf
	for p := t.node(child.parent); p != nil; child, p = p, t.node(p.parent) {
		pos := childPosition(p, child.id)
		if pos < 0 {
			return
		}
		if pos > 0 {
			p.keys[pos-1] = first
			return
		}
	}
}

// rebalance fixes an underflowing non-root node by rotating from or merging
// with a sibling: the right one when n is its parent's first child, the left
// one otherwise. Merges propagate the check to the parent and may collapse
// the root.
func (t *BPlusTree) rebalance(n *Node) error {
	for !t.isRoot(n) && n.KeyNum() < t.minKeys {
		parent := t.node(n.parent)
		if parent == nil {
			return fmt.Errorf("%w: node %d has no parent", ErrCorrupt, n.id)
		}
		pos := childPosition(parent, n.id)
		if pos < 0 || len(parent.children) < 2 {
			return fmt.Errorf("%w: node %d has no sibling under %d", ErrCorrupt, n.id, parent.id)
		}

		if pos == 0 {
			right := t.node(parent.children[1])
			if right.KeyNum() > t.minKeys {
				t.rotateFromRight(n, right, parent, 0)
				if n.isLeaf() {
					t.syncSeparator(n)
				}
				return nil
			}
			if err := t.merge(n, right, parent, 0); err != nil {
				return err
			}
			if n.isLeaf() && n.KeyNum() > 0 {
				t.syncSeparator(n)
			}
		} else {
			left := t.node(parent.children[pos-1])
			if left.KeyNum() > t.minKeys {
				t.rotateFromLeft(left, n, parent, pos-1)
				return nil
			}
			if err := t.merge(left, n, parent, pos-1); err != nil {
				return err
			}
		}

		if t.isRoot(parent) {
			if parent.KeyNum() == 0 {
				return t.collapseRoot(parent)
			}
			return nil
		}
		n = parent
	}
	return nil
}

// rotateFromRight moves the first entry of right to the end of n through
// the separator parent.keys[sep].
func (t *BPlusTree) rotateFromRight(n, right, parent *Node, sep int) {
	if n.isLeaf() {
		n.keys = append(n.keys, right.keys[0])
		n.values = append(n.values, right.values[0])
		right.keys = remove(right.keys, 0)
		right.values = remove(right.values, 0)
		parent.keys[sep] = right.keys[0]
	} else {
		moved := right.children[0]
		n.keys = append(n.keys, parent.keys[sep])
		n.children = append(n.children, moved)
		if c := t.node(moved); c != nil {
			c.parent = n.id
		}
		parent.keys[sep] = right.keys[0]
		right.keys = remove(right.keys, 0)
		right.children = remove(right.children, 0)
	}
	rotations.WithLabelValues(n.nodeType.String()).Inc()
	t.log.Debug("rotated from right", "node", n.id, "sibling", right.id)
}

// rotateFromLeft moves the last entry of left to the front of n through
// the separator parent.keys[sep].
func (t *BPlusTree) rotateFromLeft(left, n, parent *Node, sep int) {
	last := left.KeyNum() - 1
	if n.isLeaf() {
		n.keys = insert(n.keys, 0, left.keys[last])
		n.values = insert(n.values, 0, left.values[last])
		left.keys = remove(left.keys, last)
		left.values = remove(left.values, last)
		parent.keys[sep] = n.keys[0]
	} else {
		moved := left.children[last+1]
		n.keys = insert(n.keys, 0, parent.keys[sep])
		n.children = insert(n.children, 0, moved)
		if c := t.node(moved); c != nil {
			c.parent = n.id
		}
		parent.keys[sep] = left.keys[last]
		left.keys = remove(left.keys, last)
		left.children = remove(left.children, last+1)
	}
	rotations.WithLabelValues(n.nodeType.String()).Inc()
	t.log.Debug("rotated from left", "node", n.id, "sibling", left.id)
}

// merge folds right into left, drops separator parent.keys[sep] and the
// child slot of right, then frees right. For internal nodes the separator
// comes down between the two key runs.
func (t *BPlusTree) merge(left, right, parent *Node, sep int) error {
	if left.isLeaf() {
		left.keys = append(left.keys, right.keys...)
		left.values = append(left.values, right.values...)
		left.next = right.next
		if next := t.node(right.next); next != nil {
			next.prev = left.id
		}
	} else {
		left.keys = append(left.keys, parent.keys[sep])
		left.keys = append(left.keys, right.keys...)
		for _, cid := range right.children {
			if c := t.node(cid); c != nil {
				c.parent = left.id
			}
		}
		left.children = append(left.children, right.children...)
		clear(right.children)
	}

	parent.keys = remove(parent.keys, sep)
	parent.children = remove(parent.children, sep+1)
	right.prev, right.next = InvalidNode, InvalidNode

	merges.WithLabelValues(left.nodeType.String()).Inc()
	t.log.Debug("merged", "node", left.id, "absorbed", right.id, "parent", parent.id)
	return t.freeNode(right)
}

// collapseRoot replaces an internal root that has no keys left with its
// only child. The tree loses one level.
func (t *BPlusTree) collapseRoot(root *Node) error {
	child := t.node(root.children[0])
	if child == nil {
		return fmt.Errorf("%w: root %d has no child", ErrCorrupt, root.id)
	}
	root.children[0] = InvalidNode
	root.children = root.children[:0]
	child.parent = InvalidNode
	t.root = child.id
	t.height--

	rootChanges.WithLabelValues("collapse").Inc()
	t.log.Debug("root collapsed", "root", child.id, "height", t.height)
	return t.freeNode(root)
}
