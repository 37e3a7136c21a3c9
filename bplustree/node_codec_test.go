package bplus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeCodec(t *testing.T) {
	leaf := &pageNode{
		nodeType: NodeLeaf,
		keys:     []Key{1, 2, 2, 1 << 60},
		values:   [][]byte{[]byte("a"), {}, []byte("dup"), make([]byte, MaxValLen)},
		parent:   9,
		prev:     3,
		next:     4,
	}
	page, err := encodeNode(leaf)
	require.NoError(t, err)
	require.Len(t, page, PageSize)

	got, err := decodeNode(page, 1)
	require.NoError(t, err)
	assert.Equal(t, leaf, got)

	internal := &pageNode{
		nodeType: NodeInternal,
		keys:     []Key{10, 20},
		children: []int64{5, 6, 7},
		parent:   0,
	}
	page, err = encodeNode(internal)
	require.NoError(t, err)
	got, err = decodeNode(page, 2)
	require.NoError(t, err)
	assert.Equal(t, internal.keys, got.keys)
	assert.Equal(t, internal.children, got.children)
	assert.Nil(t, got.values)
}

func TestNodeCodecChecksum(t *testing.T) {
	page, err := encodeNode(&pageNode{nodeType: NodeLeaf, keys: []Key{1}, values: [][]byte{[]byte("x")}})
	require.NoError(t, err)

	page[nodeHeaderSize] ^= 1
	_, err = decodeNode(page, 1)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestNodeCodecOverflow(t *testing.T) {
	n := &pageNode{nodeType: NodeLeaf}
	for i := 0; i < 5; i++ {
		n.keys = append(n.keys, Key(i))
		n.values = append(n.values, make([]byte, MaxValLen))
	}
	_, err := encodeNode(n)
	assert.ErrorIs(t, err, ErrPageOverflow)
}

func TestMetaCodec(t *testing.T) {
	m := CheckpointMeta{Order: 7, Duplicates: true, RootPage: 12, Height: 3, Records: 1000, Nodes: 40, LSN: 99}
	got, err := decodeMeta(encodeMeta(m))
	require.NoError(t, err)
	assert.Equal(t, m, got)

	_, err = decodeMeta(make([]byte, PageSize))
	assert.ErrorIs(t, err, ErrNoCheckpoint)

	page := encodeMeta(m)
	page[40] ^= 1
	_, err = decodeMeta(page)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestPageFitLimits(t *testing.T) {
	assert.Equal(t, MaxValLen, Config{Order: 3}.MaxLeafValueLen())
	assert.Equal(t, MaxValLen, Config{Order: 4}.MaxLeafValueLen())
	assert.Equal(t, 1005, Config{Order: 5}.MaxLeafValueLen())

	fullLeaf := func(order, valLen int) *pageNode {
		n := &pageNode{nodeType: NodeLeaf}
		for i := 0; i < order-1; i++ {
			n.keys = append(n.keys, Key(i))
			n.values = append(n.values, make([]byte, valLen))
		}
		return n
	}

	// the limit is exact: one byte more and a full leaf no longer encodes
	c := Config{Order: 5}
	require.NoError(t, c.FitsPage(1005))
	_, err := encodeNode(fullLeaf(5, 1005))
	require.NoError(t, err)

	assert.ErrorIs(t, c.FitsPage(1006), ErrPageOverflow)
	_, err = encodeNode(fullLeaf(5, 1006))
	assert.ErrorIs(t, err, ErrPageOverflow)

	assert.ErrorIs(t, Config{Order: 4}.FitsPage(MaxValLen+1), ErrPageOverflow)
	assert.ErrorIs(t, Config{Order: 4}.FitsPage(0), ErrPageOverflow)

	// internal nodes cap the order regardless of values
	big := Config{Order: 254}
	require.NoError(t, big.FitsPage(big.MaxLeafValueLen()))
	big.Order = 255
	assert.ErrorIs(t, big.FitsPage(big.MaxLeafValueLen()), ErrPageOverflow)
}
