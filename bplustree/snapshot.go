package bplus

import (
	"errors"
	"fmt"
)

// Checkpoint writes the whole tree to p: every node in level order on a
// freshly allocated page, then the meta page tagged with lsn, then Sync.
// Pages already in p are not reused; reset the pager first to reclaim them.
func (t *BPlusTree) Checkpoint(p Pager, lsn uint64) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if err := t.checkState(); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}

	order := t.levelOrder()
	pageOf := make(map[NodeID]int64, len(order))
	for _, n := range order {
		pid, err := p.AllocatePage()
		if err != nil {
			return fmt.Errorf("checkpoint: allocate page for node %d: %w", n.id, err)
		}
		pageOf[n.id] = pid
	}
	ref := func(id NodeID) int64 {
		if id == InvalidNode {
			return 0
		}
		return pageOf[id]
	}

	for _, n := range order {
		pn := &pageNode{
			nodeType: n.nodeType,
			keys:     n.keys,
			values:   n.values,
			parent:   ref(n.parent),
			prev:     ref(n.prev),
			next:     ref(n.next),
		}
		if !n.isLeaf() {
			pn.children = make([]int64, len(n.children))
			for i, c := range n.children {
				pn.children[i] = ref(c)
			}
		}
		page, err := encodeNode(pn)
		if err != nil {
			return fmt.Errorf("checkpoint: encode node %d: %w", n.id, err)
		}
		if err := p.WritePage(pageOf[n.id], page); err != nil {
			return fmt.Errorf("checkpoint: %w", err)
		}
	}

	meta := CheckpointMeta{
		Order:      t.order,
		Duplicates: t.allowDups,
		RootPage:   pageOf[t.root],
		Height:     t.height,
		Records:    t.records,
		Nodes:      uint64(len(order)),
		LSN:        lsn,
	}
	if err := p.WritePage(metaPageID, encodeMeta(meta)); err != nil {
		return fmt.Errorf("checkpoint: write meta page: %w", err)
	}
	if err := p.Sync(); err != nil {
		return fmt.Errorf("checkpoint: sync: %w", err)
	}

	t.log.Info("checkpoint written", "lsn", lsn, "nodes", len(order), "records", t.records)
	return nil
}

// levelOrder lists every node reachable from the root, breadth first.
func (t *BPlusTree) levelOrder() []*Node {
	var out []*Node
	queue := []NodeID{t.root}
	for len(queue) > 0 {
		n := t.node(queue[0])
		queue = queue[1:]
		if n == nil {
			continue
		}
		out = append(out, n)
		if !n.isLeaf() {
			queue = append(queue, n.children...)
		}
	}
	return out
}

// ReadCheckpointMeta returns the meta page of the checkpoint in p.
func ReadCheckpointMeta(p Pager) (CheckpointMeta, error) {
	page, err := p.ReadPage(metaPageID)
	if err != nil {
		if errors.Is(err, ErrPageNotFound) {
			return CheckpointMeta{}, ErrNoCheckpoint
		}
		return CheckpointMeta{}, fmt.Errorf("read meta page: %w", err)
	}
	return decodeMeta(page)
}

// Restore rebuilds a tree from the checkpoint in p and returns it with the
// checkpoint's LSN. Order and duplicate policy come from the checkpoint;
// the rest of cfg applies as given.
func Restore(p Pager, cfg Config) (*BPlusTree, uint64, error) {
	meta, err := ReadCheckpointMeta(p)
	if err != nil {
		return nil, 0, err
	}
	cfg.Order = meta.Order
	cfg.AllowDuplicates = meta.Duplicates

	t, err := New(cfg)
	if err != nil {
		return nil, 0, fmt.Errorf("restore: %w", err)
	}
	t.mu.Lock()
	err = t.load(p, meta)
	t.mu.Unlock()
	if err != nil {
		return nil, 0, fmt.Errorf("restore: %w", err)
	}
	if err := t.Check(); err != nil {
		return nil, 0, fmt.Errorf("restore: %w", err)
	}

	t.log.Info("checkpoint restored", "lsn", meta.LSN, "nodes", meta.Nodes, "records", meta.Records, "height", meta.Height)
	return t, meta.LSN, nil
}

// load replaces the tree's arena with the nodes of the checkpoint.
func (t *BPlusTree) load(p Pager, meta CheckpointMeta) error {
	arena := newNodeArena(t.cfg.MaxNodes)
	nodeOf := make(map[int64]*Node)
	decoded := make(map[int64]*pageNode)

	queue := []int64{meta.RootPage}
	for len(queue) > 0 {
		pid := queue[0]
		queue = queue[1:]
		if _, seen := nodeOf[pid]; seen {
			return fmt.Errorf("%w: page %d referenced twice", ErrCorrupt, pid)
		}

		page, err := p.ReadPage(pid)
		if err != nil {
			return fmt.Errorf("read page %d: %w", pid, err)
		}
		pn, err := decodeNode(page, pid)
		if err != nil {
			return err
		}
		n, err := arena.allocate(pn.nodeType)
		if err != nil {
			return err
		}
		nodeOf[pid] = n
		decoded[pid] = pn
		queue = append(queue, pn.children...)
	}
	if uint64(len(nodeOf)) != meta.Nodes {
		return fmt.Errorf("%w: found %d nodes, meta page says %d", ErrCorrupt, len(nodeOf), meta.Nodes)
	}

	ref := func(pid int64) (NodeID, error) {
		if pid == 0 {
			return InvalidNode, nil
		}
		n, ok := nodeOf[pid]
		if !ok {
			return InvalidNode, fmt.Errorf("%w: reference to unknown page %d", ErrCorrupt, pid)
		}
		return n.id, nil
	}
	for pid, pn := range decoded {
		n := nodeOf[pid]
		n.keys = pn.keys
		n.values = pn.values
		var err error
		if n.parent, err = ref(pn.parent); err != nil {
			return err
		}
		if n.prev, err = ref(pn.prev); err != nil {
			return err
		}
		if n.next, err = ref(pn.next); err != nil {
			return err
		}
		for _, c := range pn.children {
			cid, err := ref(c)
			if err != nil {
				return err
			}
			n.children = append(n.children, cid)
		}
	}

	t.arena = arena
	t.root = nodeOf[meta.RootPage].id
	t.height = meta.Height
	t.records = meta.Records
	return nil
}
