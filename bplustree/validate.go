package bplus

import "fmt"

// Check walks the whole tree and reports the first broken structural
// invariant, wrapped in ErrCorrupt. A nil result means the node shapes,
// separator bounds, parent links, leaf depth, leaf chain and counters all agree.
func (t *BPlusTree) Check() error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if err := t.checkState(); err != nil {
		return err
	}
	root := t.node(t.root)
	if root == nil {
		return corruptf("root %d is not live", t.root)
	}
	if root.parent != InvalidNode {
		return corruptf("root %d has parent %d", root.id, root.parent)
	}

	c := &checker{tree: t, leafDepth: -1}
	if err := c.walk(root, 1, nil, nil); err != nil {
		return err
	}
	if uint64(c.leafDepth) != t.height {
		return corruptf("leaves at depth %d, height is %d", c.leafDepth, t.height)
	}
	if c.nodes != t.arena.count() {
		return corruptf("%d reachable nodes, %d live in arena", c.nodes, t.arena.count())
	}
	return t.checkLeafChain(c.leaves)
}

type checker struct {
	tree      *BPlusTree
	leafDepth int
	nodes     int
	leaves    []NodeID // in left-to-right order
}

// walk checks n and its subtree. lo and hi are the closed separator bounds
// inherited from the ancestors; nil means unbounded.
func (c *checker) walk(n *Node, depth int, lo, hi *Key) error {
	t := c.tree
	c.nodes++

	if n.KeyNum() > t.maxKeys {
		return corruptf("node %d holds %d keys, max %d", n.id, n.KeyNum(), t.maxKeys)
	}
	if !t.isRoot(n) && n.KeyNum() < t.minKeys {
		return corruptf("node %d holds %d keys, min %d", n.id, n.KeyNum(), t.minKeys)
	}
	for i, k := range n.keys {
		if i > 0 {
			prev := n.keys[i-1]
			if k < prev || (k == prev && n.isLeaf() && !t.allowDups) {
				return corruptf("node %d keys out of order at %d", n.id, i)
			}
		}
		if (lo != nil && k < *lo) || (hi != nil && k > *hi) {
			return corruptf("node %d key %d outside separator bounds", n.id, k)
		}
	}

	if n.isLeaf() {
		if len(n.values) != n.KeyNum() {
			return corruptf("leaf %d has %d keys and %d values", n.id, n.KeyNum(), len(n.values))
		}
		if c.leafDepth < 0 {
			c.leafDepth = depth
		} else if c.leafDepth != depth {
			return corruptf("leaf %d at depth %d, others at %d", n.id, depth, c.leafDepth)
		}
		c.leaves = append(c.leaves, n.id)
		return nil
	}

	if len(n.children) != n.KeyNum()+1 {
		return corruptf("internal %d has %d keys and %d children", n.id, n.KeyNum(), len(n.children))
	}
	if n.KeyNum() == 0 {
		return corruptf("internal %d has no keys", n.id)
	}
	for i, cid := range n.children {
		child := t.node(cid)
		if child == nil {
			return corruptf("internal %d child %d (%d) is not live", n.id, i, cid)
		}
		if child.parent != n.id {
			return corruptf("node %d points to parent %d, held by %d", cid, child.parent, n.id)
		}
		clo, chi := lo, hi
		if i > 0 {
			clo = &n.keys[i-1]
		}
		if i < n.KeyNum() {
			chi = &n.keys[i]
		}
		if err := c.walk(child, depth+1, clo, chi); err != nil {
			return err
		}
	}
	return nil
}

// checkLeafChain follows next links from the leftmost leaf and compares
// them with the leaves found by the descent.
func (t *BPlusTree) checkLeafChain(leaves []NodeID) error {
	var (
		prev    *Node
		records uint64
		lastKey Key
		i       int
	)
	for leaf := t.node(leaves[0]); leaf != nil; leaf = t.node(leaf.next) {
		if i >= len(leaves) || leaves[i] != leaf.id {
			return corruptf("leaf chain diverges from tree order at position %d", i)
		}
		want := InvalidNode
		if prev != nil {
			want = prev.id
		}
		if leaf.prev != want {
			return corruptf("leaf %d prev is %d, want %d", leaf.id, leaf.prev, want)
		}
		for _, k := range leaf.keys {
			if records > 0 && k < lastKey {
				return corruptf("leaf chain out of order at leaf %d", leaf.id)
			}
			lastKey = k
			records++
		}
		prev = leaf
		i++
	}
	if i != len(leaves) {
		return corruptf("leaf chain covers %d of %d leaves", i, len(leaves))
	}
	if records != t.records {
		return corruptf("leaf chain holds %d records, counter says %d", records, t.records)
	}
	return nil
}

func corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorrupt, fmt.Sprintf(format, args...))
}
