package bplus

// NewNode creates a detached node of the given type. Nodes that belong to
// a tree are created through its arena.
func NewNode(nodeType NodeType) *Node {
	n := &Node{
		nodeType: nodeType,
		keys:     make([]Key, 0, DefaultOrder),
	}
	if nodeType == NodeInternal {
		n.children = make([]NodeID, 0, DefaultOrder+1)
	} else {
		n.values = make([][]byte, 0, DefaultOrder)
	}
	return n
}

// node resolves id through the arena.
func (t *BPlusTree) node(id NodeID) *Node {
	return t.arena.get(id)
}

// newNode allocates a node in the arena.
func (t *BPlusTree) newNode(nodeType NodeType) (*Node, error) {
	n, err := t.arena.allocate(nodeType)
	if err != nil {
		nodeAllocFailures.Inc()
		t.log.Warn("node allocation refused", "type", nodeType, "live", t.arena.count(), "err", err)
		return nil, err
	}
	return n, nil
}

// freeNode returns a node to the arena.
func (t *BPlusTree) freeNode(n *Node) error {
	return t.arena.release(n.id)
}

// isRoot reports whether n is the tree's current root.
func (t *BPlusTree) isRoot(n *Node) bool {
	return n != nil && n.id == t.root
}
