package bplus

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Node page format:
//   - Header (35 bytes): checksum(8), nodeType(1), numKeys(2), parent(8), prev(8), next(8)
//   - Keys: 8 bytes each
//   - Internal nodes: numKeys+1 child page ids, 8 bytes each
//   - Leaf nodes: per value, length(2) + data
//
// The checksum is xxhash64 of everything after it. Node references are page
// ids, not arena ids.
const nodeHeaderSize = 8 + 1 + 2 + 8 + 8 + 8

// MaxLeafValueLen is the longest value a checkpoint of a tree with c's order
// can hold: a leaf with MaxKeys entries of that length still fits in a page.
// It never exceeds MaxValLen.
func (c Config) MaxLeafValueLen() int {
	keys := c.MaxKeys()
	if keys <= 0 {
		return MaxValLen
	}
	per := (PageSize-nodeHeaderSize)/keys - 8 - 2
	return min(max(per, 0), MaxValLen)
}

// FitsPage reports whether full nodes of c's order can be checkpointed when
// values are up to maxVal bytes long.
func (c Config) FitsPage(maxVal int) error {
	keys := c.MaxKeys()
	internal := nodeHeaderSize + 8*keys + 8*c.Order
	leaf := nodeHeaderSize + keys*(8+2+maxVal)
	switch {
	case maxVal > MaxValLen:
		return fmt.Errorf("values of %d bytes exceed %d: %w", maxVal, MaxValLen, ErrPageOverflow)
	case maxVal < 1:
		return fmt.Errorf("order %d leaves no room for values: %w", c.Order, ErrPageOverflow)
	case internal > PageSize:
		return fmt.Errorf("order %d internal node needs %d bytes: %w", c.Order, internal, ErrPageOverflow)
	case leaf > PageSize:
		return fmt.Errorf("order %d leaf with %d-byte values needs %d bytes: %w", c.Order, maxVal, leaf, ErrPageOverflow)
	}
	return nil
}

// pageNode is a node as stored in a page, with references as page ids.
type pageNode struct {
	nodeType NodeType
	keys     []Key
	children []int64
	values   [][]byte
	parent   int64
	prev     int64
	next     int64
}

func encodeNode(n *pageNode) ([]byte, error) {
	size := nodeHeaderSize + 8*len(n.keys)
	if n.nodeType == NodeInternal {
		size += 8 * len(n.children)
	} else {
		for i, v := range n.values {
			if len(v) > MaxValLen {
				return nil, fmt.Errorf("value %d too long: %d bytes (max: %d): %w", i, len(v), MaxValLen, ErrPageOverflow)
			}
			size += 2 + len(v)
		}
	}
	if size > PageSize {
		return nil, fmt.Errorf("node needs %d bytes: %w", size, ErrPageOverflow)
	}

	page := make([]byte, PageSize)
	offset := 8
	page[offset] = byte(n.nodeType)
	offset++
	binary.LittleEndian.PutUint16(page[offset:], uint16(len(n.keys)))
	offset += 2
	for _, ref := range []int64{n.parent, n.prev, n.next} {
		binary.LittleEndian.PutUint64(page[offset:], uint64(ref))
		offset += 8
	}

	for _, k := range n.keys {
		binary.LittleEndian.PutUint64(page[offset:], k)
		offset += 8
	}
	if n.nodeType == NodeInternal {
		for _, c := range n.children {
			binary.LittleEndian.PutUint64(page[offset:], uint64(c))
			offset += 8
		}
	} else {
		for _, v := range n.values {
			binary.LittleEndian.PutUint16(page[offset:], uint16(len(v)))
			offset += 2
			copy(page[offset:], v)
			offset += len(v)
		}
	}

	binary.LittleEndian.PutUint64(page[0:], xxhash.Sum64(page[8:]))
	return page, nil
}

func decodeNode(page []byte, pageID int64) (*pageNode, error) {
	if len(page) != PageSize {
		return nil, fmt.Errorf("page size mismatch: expected %d, got %d", PageSize, len(page))
	}
	if sum := binary.LittleEndian.Uint64(page[0:]); sum != xxhash.Sum64(page[8:]) {
		return nil, fmt.Errorf("page %d checksum mismatch: %w", pageID, ErrCorrupt)
	}

	n := &pageNode{}
	offset := 8
	n.nodeType = NodeType(page[offset])
	offset++
	if n.nodeType != NodeInternal && n.nodeType != NodeLeaf {
		return nil, fmt.Errorf("page %d has node type %d: %w", pageID, n.nodeType, ErrCorrupt)
	}
	numKeys := int(binary.LittleEndian.Uint16(page[offset:]))
	offset += 2
	n.parent = int64(binary.LittleEndian.Uint64(page[offset:]))
	n.prev = int64(binary.LittleEndian.Uint64(page[offset+8:]))
	n.next = int64(binary.LittleEndian.Uint64(page[offset+16:]))
	offset += 24

	overflow := func(what string, i int) error {
		return fmt.Errorf("page %d overflow while reading %s %d: %w", pageID, what, i, ErrCorrupt)
	}

	n.keys = make([]Key, 0, numKeys)
	for i := 0; i < numKeys; i++ {
		if offset+8 > PageSize {
			return nil, overflow("key", i)
		}
		n.keys = append(n.keys, binary.LittleEndian.Uint64(page[offset:]))
		offset += 8
	}

	if n.nodeType == NodeInternal {
		n.children = make([]int64, 0, numKeys+1)
		for i := 0; i <= numKeys; i++ { // numKeys+1 children
			if offset+8 > PageSize {
				return nil, overflow("child", i)
			}
			n.children = append(n.children, int64(binary.LittleEndian.Uint64(page[offset:])))
			offset += 8
		}
		return n, nil
	}

	n.values = make([][]byte, 0, numKeys)
	for i := 0; i < numKeys; i++ {
		if offset+2 > PageSize {
			return nil, overflow("value length", i)
		}
		valLen := int(binary.LittleEndian.Uint16(page[offset:]))
		offset += 2
		if offset+valLen > PageSize {
			return nil, overflow("value", i)
		}
		n.values = append(n.values, bytes.Clone(page[offset:offset+valLen]))
		offset += valLen
	}
	return n, nil
}

// ── Meta page ──

var metaMagic = [8]byte{'B', 'P', 'T', 'I', 'D', 'X', '0', '1'}

const (
	metaFlagDuplicates = 1 << 0
	metaPageID         = 0
)

// CheckpointMeta describes a checkpoint. It lives in page 0.
type CheckpointMeta struct {
	Order      int
	Duplicates bool
	RootPage   int64
	Height     uint64
	Records    uint64
	Nodes      uint64
	LSN        uint64
}

// Meta page format: magic(8), checksum(8), order(4), flags(4), root(8),
// height(8), records(8), nodes(8), lsn(8). The checksum covers bytes 16..end.
func encodeMeta(m CheckpointMeta) []byte {
	page := make([]byte, PageSize)
	copy(page[0:8], metaMagic[:])
	binary.LittleEndian.PutUint32(page[16:], uint32(m.Order))
	var flags uint32
	if m.Duplicates {
		flags |= metaFlagDuplicates
	}
	binary.LittleEndian.PutUint32(page[20:], flags)
	binary.LittleEndian.PutUint64(page[24:], uint64(m.RootPage))
	binary.LittleEndian.PutUint64(page[32:], m.Height)
	binary.LittleEndian.PutUint64(page[40:], m.Records)
	binary.LittleEndian.PutUint64(page[48:], m.Nodes)
	binary.LittleEndian.PutUint64(page[56:], m.LSN)
	binary.LittleEndian.PutUint64(page[8:], xxhash.Sum64(page[16:]))
	return page
}

func decodeMeta(page []byte) (CheckpointMeta, error) {
	var m CheckpointMeta
	if len(page) != PageSize {
		return m, fmt.Errorf("meta page size %d: %w", len(page), ErrCorrupt)
	}
	if !bytes.Equal(page[0:8], metaMagic[:]) {
		return m, ErrNoCheckpoint
	}
	if binary.LittleEndian.Uint64(page[8:]) != xxhash.Sum64(page[16:]) {
		return m, fmt.Errorf("meta page checksum mismatch: %w", ErrCorrupt)
	}
	m.Order = int(binary.LittleEndian.Uint32(page[16:]))
	m.Duplicates = binary.LittleEndian.Uint32(page[20:])&metaFlagDuplicates != 0
	m.RootPage = int64(binary.LittleEndian.Uint64(page[24:]))
	m.Height = binary.LittleEndian.Uint64(page[32:])
	m.Records = binary.LittleEndian.Uint64(page[40:])
	m.Nodes = binary.LittleEndian.Uint64(page[48:])
	m.LSN = binary.LittleEndian.Uint64(page[56:])
	return m, nil
}
