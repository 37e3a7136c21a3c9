package bplus

// splitInternal splits an overflowing internal node and promotes the middle
// key. The promoted key is kept in neither half.
func (t *BPlusTree) splitInternal(node *Node) error {
	right, err := t.newNode(NodeInternal)
	if err != nil {
		return err
	}

	// mid is the index of the key to promote
	mid := node.KeyNum() / 2
	promote := node.keys[mid]

	// keys: left keeps [0:mid), right gets (mid, end]
	// children: left keeps [0:mid], right gets [mid+1:]
	right.keys = append(right.keys, node.keys[mid+1:]...)
	right.children = append(right.children, node.children[mid+1:]...)
	for _, cid := range right.children {
		if c := t.node(cid); c != nil {
			c.parent = right.id
		}
	}

	node.keys = node.keys[:mid]
	clear(node.children[mid+1:])
	node.children = node.children[:mid+1]
	right.parent = node.parent

	splits.WithLabelValues("internal").Inc()
	t.log.Debug("internal split", "left", node.id, "right", right.id, "promoted", promote)

	return t.insertIntoParent(node, promote, right)
}
