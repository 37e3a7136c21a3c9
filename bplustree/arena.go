package bplus

import "fmt"

// nodeArena owns every node of a tree. Slot i holds the node with id i;
// slot 0 is never used so that InvalidNode can mean "none".
type nodeArena struct {
	slots []*Node
	free  []NodeID // reclaimed ids, reused LIFO before the slice grows
	live  int
	limit int // 0 = unbounded
}

func newNodeArena(limit int) *nodeArena {
	return &nodeArena{
		slots: make([]*Node, 1, 16),
		limit: limit,
	}
}

// reserve reports whether n more nodes can be allocated.
func (a *nodeArena) reserve(n int) error {
	if a.limit > 0 && a.live+n > a.limit {
		return fmt.Errorf("%w: need %d more nodes, %d of %d in use", ErrOutOfMemory, n, a.live, a.limit)
	}
	return nil
}

func (a *nodeArena) allocate(nodeType NodeType) (*Node, error) {
	if err := a.reserve(1); err != nil {
		return nil, err
	}

	var id NodeID
	if k := len(a.free); k > 0 {
		id = a.free[k-1]
		a.free = a.free[:k-1]
	} else {
		id = NodeID(len(a.slots))
		a.slots = append(a.slots, nil)
	}

	n := NewNode(nodeType)
	n.id = id
	a.slots[id] = n
	a.live++
	return n, nil
}

// get returns the live node with the given id, or nil.
func (a *nodeArena) get(id NodeID) *Node {
	if id <= InvalidNode || int(id) >= len(a.slots) {
		return nil
	}
	return a.slots[id]
}

// release reclaims the slot of id. The caller must already have removed
// every child slot and sibling link that referenced it.
func (a *nodeArena) release(id NodeID) error {
	n := a.get(id)
	if n == nil {
		return fmt.Errorf("release: node %d is not live", id)
	}
	n.keys, n.values, n.children = nil, nil, nil
	n.parent, n.prev, n.next = InvalidNode, InvalidNode, InvalidNode
	a.slots[id] = nil
	a.free = append(a.free, id)
	a.live--
	return nil
}

func (a *nodeArena) count() int { return a.live }
