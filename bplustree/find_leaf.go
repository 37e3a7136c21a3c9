package bplus

// findLeaf descends to the leaf an insert of key belongs in. Equal keys
// route right so a new duplicate lands after the existing run.
func (t *BPlusTree) findLeaf(key Key) *Node {
	n := t.node(t.root)
	for n != nil && !n.isLeaf() {
		n = t.node(n.children[findChildIndex(n, key)])
	}
	return n
}

// findLeafGE descends to the leftmost leaf that may hold an entry >= key.
func (t *BPlusTree) findLeafGE(key Key) *Node {
	n := t.node(t.root)
	for n != nil && !n.isLeaf() {
		n = t.node(n.children[lowerChildIndex(n, key)])
	}
	return n
}

// leftmostLeaf returns the head of the leaf chain.
func (t *BPlusTree) leftmostLeaf() *Node {
	n := t.node(t.root)
	for n != nil && !n.isLeaf() {
		n = t.node(n.children[0])
	}
	return n
}

// seek positions on the first entry >= key, following the leaf chain when
// the descent lands past the end of a leaf. It returns a nil leaf when key
// is beyond every entry.
func (t *BPlusTree) seek(key Key) (*Node, int) {
	leaf := t.findLeafGE(key)
	for leaf != nil {
		if i := findKeyIndex(leaf, key); i >= 0 {
			return leaf, i
		}
		leaf = t.node(leaf.next)
	}
	return nil, -1
}

// seekExact is seek restricted to an entry whose key equals key.
func (t *BPlusTree) seekExact(key Key) (*Node, int) {
	leaf, i := t.seek(key)
	if leaf == nil || leaf.keys[i] != key {
		return nil, -1
	}
	return leaf, i
}
