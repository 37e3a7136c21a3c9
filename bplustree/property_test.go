package bplus

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

// model is the reference the tree is compared against: per key, the live
// values in insertion order.
type model map[Key][][]byte

func (m model) entries() (keys []Key, vals [][]byte) {
	ks := make([]Key, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	slices.Sort(ks)
	for _, k := range ks {
		for _, v := range m[k] {
			keys = append(keys, k)
			vals = append(vals, v)
		}
	}
	return keys, vals
}

func (m model) size() uint64 {
	var n uint64
	for _, vs := range m {
		n += uint64(len(vs))
	}
	return n
}

func requireMatches(t *testing.T, tree *BPlusTree, m model, step int) {
	t.Helper()
	require.NoError(t, tree.Check(), "step %d", step)

	wantKeys, wantVals := m.entries()
	var gotKeys []Key
	var gotVals [][]byte
	for k, v := range tree.All() {
		gotKeys = append(gotKeys, k)
		gotVals = append(gotVals, v)
	}
	require.Equal(t, wantKeys, gotKeys, "step %d", step)
	require.Equal(t, wantVals, gotVals, "step %d", step)
	require.Equal(t, m.size(), tree.AllRecords(), "step %d", step)
}

func TestRandomOperations(t *testing.T) {
	for _, order := range []int{3, 4, 5, 8} {
		for _, dups := range []bool{true, false} {
			t.Run(fmt.Sprintf("order=%d/dups=%t", order, dups), func(t *testing.T) {
				rng := rand.New(rand.NewPCG(uint64(order), 42))
				tree := newTestTree(t, Config{Order: order, AllowDuplicates: dups})
				m := model{}

				keySpace := 300
				if dups {
					keySpace = 40
				}
				for step := 0; step < 3000; step++ {
					k := Key(rng.IntN(keySpace))
					height := tree.Height()

					switch op := rng.IntN(10); {
					case op < 5:
						v := []byte(fmt.Sprintf("%d-%d", k, step))
						err := tree.Insert(k, v)
						if !dups && len(m[k]) > 0 {
							require.ErrorIs(t, err, ErrAlreadyExists)
							break
						}
						require.NoError(t, err)
						m[k] = append(m[k], v)
						require.GreaterOrEqual(t, tree.Height(), height)
						require.LessOrEqual(t, tree.Height(), height+1)
					case op < 8:
						v, err := tree.Delete(k)
						if len(m[k]) == 0 {
							require.ErrorIs(t, err, ErrNotFound)
							break
						}
						require.NoError(t, err)
						require.Equal(t, m[k][0], v)
						m[k] = m[k][1:]
						if len(m[k]) == 0 {
							delete(m, k)
						}
						require.LessOrEqual(t, tree.Height(), height)
						require.GreaterOrEqual(t, tree.Height()+1, height)
					case op < 9:
						v := []byte(fmt.Sprintf("u%d", step))
						old, err := tree.Update(k, v)
						if len(m[k]) == 0 {
							require.ErrorIs(t, err, ErrNotFound)
							break
						}
						require.NoError(t, err)
						require.Equal(t, m[k][0], old)
						m[k][0] = v
					default:
						got, err := tree.Select(k)
						if len(m[k]) == 0 {
							require.ErrorIs(t, err, ErrNotFound)
							break
						}
						require.NoError(t, err)
						require.Equal(t, m[k][0], got)
					}
					requireMatches(t, tree, m, step)
				}

				// drain everything in random order
				keys, _ := m.entries()
				rng.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
				for i, k := range keys {
					_, err := tree.Delete(k)
					require.NoError(t, err)
					m[k] = m[k][1:]
					if len(m[k]) == 0 {
						delete(m, k)
					}
					if i%17 == 0 {
						requireMatches(t, tree, m, i)
					}
				}
				requireMatches(t, tree, m, -1)
				require.Equal(t, uint64(1), tree.AllNodes())
				require.Equal(t, uint64(1), tree.Height())
			})
		}
	}
}

func TestRangeMatchesModel(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	tree := newTestTree(t, DefaultConfig())
	m := model{}
	for i := 0; i < 500; i++ {
		k := Key(rng.IntN(1000))
		v := []byte(fmt.Sprintf("%d", i))
		require.NoError(t, tree.Insert(k, v))
		m[k] = append(m[k], v)
	}
	keys, vals := m.entries()

	for i := 0; i < 100; i++ {
		start := Key(rng.IntN(1100))
		count := rng.IntN(30)
		from, _ := slices.BinarySearch(keys, start)
		want := vals[from:min(from+count, len(vals))]

		got, err := tree.SelectRangeSlice(start, count)
		require.NoError(t, err)
		require.Equal(t, len(want), len(got), "start %d count %d", start, count)
		for j := range want {
			require.Equal(t, want[j], got[j], "start %d count %d", start, count)
		}
	}
}
