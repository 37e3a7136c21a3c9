package bplus

import "fmt"

// insertIntoParent inserts sepKey and right into the parent of left, right
// after left's slot. If the parent overflows, it splits and propagates upward.
func (t *BPlusTree) insertIntoParent(left *Node, sepKey Key, right *Node) error {
	if t.isRoot(left) {
		return t.createNewRoot(left, sepKey, right)
	}

	parent := t.node(left.parent)
	if parent == nil {
		return fmt.Errorf("%w: node %d has no parent", ErrCorrupt, left.id)
	}
	idx := childPosition(parent, left.id)
	if idx < 0 {
		return fmt.Errorf("%w: node %d missing from parent %d", ErrCorrupt, left.id, parent.id)
	}

	// keys: insert at idx, children: insert right at idx+1
	parent.keys = insert(parent.keys, idx, sepKey)
	parent.children = insert(parent.children, idx+1, right.id)
	right.parent = parent.id

	if parent.KeyNum() > t.maxKeys {
		return t.splitInternal(parent)
	}
	return nil
}

// createNewRoot grows the tree by one level above left and right.
func (t *BPlusTree) createNewRoot(left *Node, sepKey Key, right *Node) error {
	root, err := t.newNode(NodeInternal)
	if err != nil {
		return err
	}
	root.keys = append(root.keys, sepKey)
	root.children = append(root.children, left.id, right.id)
	left.parent = root.id
	right.parent = root.id

	t.root = root.id
	t.height++

	rootChanges.WithLabelValues("grow").Inc()
	t.log.Debug("root grew", "root", root.id, "height", t.height)
	return nil
}
