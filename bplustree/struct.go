// Structure of B+ Tree
/*
Tree
 ├── Internal Node (keys + child ids)
 │      └── Child Internal Nodes ...
 │             └── Leaf Nodes (keys + values + prev/next ids)


- keys: sorted ascending order (duplicates allowed unless disabled)
- internal nodes: children length == len(keys)+1
- leaf nodes: values length == len(keys)
- leaf nodes linked with `prev`/`next` for range scans
- all leaf nodes at same depth

Nodes live in an arena and refer to each other by NodeID. Only child slots
own a node; parent, prev and next are lookups and are never freed through.
*/
package bplus

import (
	"log/slog"
	"sync"
)

type NodeType int

const (
	NodeInternal NodeType = iota
	NodeLeaf
)

func (nt NodeType) String() string {
	if nt == NodeLeaf {
		return "leaf"
	}
	return "internal"
}

// Key is the fixed-width ordered key stored by the tree.
type Key = uint64

// NodeID addresses a node in the tree's arena. InvalidNode marks "no node".
type NodeID int64

const InvalidNode NodeID = 0

const (
	PageSize = 4096 // in bytes (4KB)

	MaxValLen = 1024 // in bytes, enforced by the snapshot codec only
)

type Node struct {
	id       NodeID
	nodeType NodeType
	keys     []Key    // keys in the node (sorted keys)
	children []NodeID // only for internal node
	values   [][]byte // only for leaf node
	parent   NodeID
	prev     NodeID // only for leaf node
	next     NodeID // only for leaf node
}

// ID returns the arena handle of the node.
func (n *Node) ID() NodeID { return n.id }

// Type returns whether n is a leaf or an internal node.
func (n *Node) Type() NodeType { return n.nodeType }

// KeyNum returns the number of keys held by n.
func (n *Node) KeyNum() int { return len(n.keys) }

func (n *Node) isLeaf() bool { return n.nodeType == NodeLeaf }

// BPlusTree is an order-N B+ tree mapping Keys to opaque values.
// The zero value is not usable until Init is called; New does both.
type BPlusTree struct {
	root    NodeID // root node id, InvalidNode when uninitialized
	arena   *nodeArena
	height  uint64
	records uint64

	order     int
	maxKeys   int
	minKeys   int
	allowDups bool
	cfg       Config
	log       *slog.Logger

	mu sync.RWMutex // one coarse lock around the whole tree
}
