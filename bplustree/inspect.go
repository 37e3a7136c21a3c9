// Package bplus: tree and checkpoint inspection for debugging.
// Use PrintTree for a live tree and InspectIndexFile(path) for a checkpoint
// written by Checkpoint.

package bplus

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// PrintTree writes the tree in level order, one line per level:
//
//	Root:[30]
//	Internal:[10,20]; Internal:[40];
//	Leaf:[1=a,5=b]; Leaf:[10=c]; ...
func (t *BPlusTree) PrintTree(w io.Writer) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if err := t.checkState(); err != nil {
		return err
	}

	level := []NodeID{t.root}
	for len(level) > 0 {
		var (
			line strings.Builder
			next []NodeID
		)
		for _, id := range level {
			n := t.node(id)
			if n == nil {
				continue
			}
			line.WriteString(formatNode(n.nodeType, t.isRoot(n), n.keys, n.values))
			if !t.isRoot(n) {
				line.WriteString("; ")
			}
			if !n.isLeaf() {
				next = append(next, n.children...)
			}
		}
		if _, err := fmt.Fprintln(w, strings.TrimRight(line.String(), " ")); err != nil {
			return err
		}
		level = next
	}
	return nil
}

func formatNode(nodeType NodeType, root bool, keys []Key, values [][]byte) string {
	var b strings.Builder
	switch {
	case root:
		b.WriteString("Root:")
	case nodeType == NodeLeaf:
		b.WriteString("Leaf:")
	default:
		b.WriteString("Internal:")
	}
	b.WriteByte('[')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		if nodeType == NodeLeaf && i < len(values) {
			fmt.Fprintf(&b, "%d=%s", k, values[i])
		} else {
			fmt.Fprintf(&b, "%d", k)
		}
	}
	b.WriteByte(']')
	return b.String()
}

// InspectIndexFile prints the checkpoint at path to stdout. A directory is
// opened as a pebble page store, anything else as a single page file.
func InspectIndexFile(path string) error {
	return InspectIndexFileTo(os.Stdout, path)
}

// InspectIndexFileTo is InspectIndexFile writing to w.
func InspectIndexFileTo(w io.Writer, path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return err
	}

	var pager Pager
	if st.IsDir() {
		pager, err = OpenPebblePager(path, nil)
	} else {
		pager, err = NewOnDiskPager(path)
	}
	if err != nil {
		return err
	}
	defer pager.Close()

	fmt.Fprintf(w, "Index: %s\n", path)
	return InspectPager(w, pager)
}

// InspectPager writes the meta page and every node of the checkpoint in p,
// breadth first, with page ids.
func InspectPager(w io.Writer, p Pager) error {
	meta, err := ReadCheckpointMeta(p)
	if err != nil {
		return err
	}

	pf := func(format string, args ...any) { fmt.Fprintf(w, format, args...) }
	pf("  Page 0 (meta): order=%d duplicates=%t root=%d height=%d records=%d nodes=%d lsn=%d\n",
		meta.Order, meta.Duplicates, meta.RootPage, meta.Height, meta.Records, meta.Nodes, meta.LSN)

	pf("\n  Nodes (BFS):\n  ---\n")
	queue := []int64{meta.RootPage}
	for level := 0; len(queue) > 0; level++ {
		size := len(queue)
		pf("  Level %d:\n", level)
		for _, pageID := range queue[:size] {
			page, err := p.ReadPage(pageID)
			if err != nil {
				pf("    [page %d] read error: %v\n", pageID, err)
				continue
			}
			n, err := decodeNode(page, pageID)
			if err != nil {
				pf("    [page %d] decode error: %v\n", pageID, err)
				continue
			}
			if n.nodeType == NodeInternal {
				pf("    [page %d] INTERNAL keys=%v children=%v\n", pageID, n.keys, n.children)
				queue = append(queue, n.children...)
			} else {
				pf("    [page %d] LEAF numKeys=%d prev=%d next=%d\n", pageID, len(n.keys), n.prev, n.next)
				for i, k := range n.keys {
					pf("      %d -> %q\n", k, n.values[i])
				}
			}
		}
		pf("  ---\n")
		queue = queue[size:]
	}
	return nil
}
