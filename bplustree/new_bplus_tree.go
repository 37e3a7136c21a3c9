package bplus

import (
	"fmt"
	"log/slog"
)

// New validates cfg and returns a tree holding a single empty leaf root.
func New(cfg Config) (*BPlusTree, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := &BPlusTree{}
	t.applyConfig(cfg)
	if err := t.Init(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *BPlusTree) applyConfig(cfg Config) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	t.order = cfg.Order
	t.maxKeys = cfg.MaxKeys()
	t.minKeys = cfg.MinKeys()
	t.allowDups = cfg.AllowDuplicates
	t.cfg = cfg
	t.log = cfg.Logger.With("component", "bplus", "order", cfg.Order)
}

// Init discards any existing nodes and starts over with one empty leaf as
// root. Calling it twice in a row leaves the same empty tree. A zero-value
// tree is initialized with DefaultConfig.
func (t *BPlusTree) Init() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.order == 0 {
		t.applyConfig(DefaultConfig())
	}
	t.destroyLocked()

	t.arena = newNodeArena(t.cfg.MaxNodes)
	root, err := t.newNode(NodeLeaf)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	t.root = root.id
	t.height = 1
	t.records = 0

	t.log.Info("tree initialized", "max_keys", t.maxKeys, "min_keys", t.minKeys, "duplicates", t.allowDups)
	return nil
}

// Destroy frees every node reachable from the root, children before their
// parent. It is a no-op on an empty or already destroyed tree.
func (t *BPlusTree) Destroy() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.root == InvalidNode {
		return
	}
	freed := t.destroyLocked()
	t.log.Info("tree destroyed", "freed_nodes", freed)
}

func (t *BPlusTree) destroyLocked() int {
	if t.arena == nil || t.root == InvalidNode {
		t.root = InvalidNode
		return 0
	}
	freed := t.freeSubtree(t.root)
	t.root = InvalidNode
	t.height = 0
	t.records = 0
	return freed
}

// freeSubtree releases id and everything below it in post-order. Child slots
// are cleared before the parent is released.
func (t *BPlusTree) freeSubtree(id NodeID) int {
	n := t.node(id)
	if n == nil {
		return 0
	}
	freed := 0
	if !n.isLeaf() {
		for i, cid := range n.children {
			freed += t.freeSubtree(cid)
			n.children[i] = InvalidNode
		}
	}
	n.prev, n.next = InvalidNode, InvalidNode
	if err := t.freeNode(n); err != nil {
		t.log.Error("free during destroy", "node", id, "err", err)
		return freed
	}
	return freed + 1
}

// Config returns the effective configuration of the tree.
func (t *BPlusTree) Config() Config {
	return t.cfg
}

// AllRecords returns the number of key/value entries in the tree.
func (t *BPlusTree) AllRecords() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.records
}

// AllNodes returns the number of live nodes.
func (t *BPlusTree) AllNodes() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.arena == nil {
		return 0
	}
	return uint64(t.arena.count())
}

// Height returns the number of levels, 1 for a tree that is a single leaf
// and 0 for an uninitialized tree.
func (t *BPlusTree) Height() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.height
}

func (t *BPlusTree) checkState() error {
	if t.root == InvalidNode || t.arena == nil {
		return ErrInvalidState
	}
	return nil
}
