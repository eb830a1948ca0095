package avltree_test

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvlan/duskstore/internal/avltree"
)

func lessInt(a, b int) bool { return a < b }

func TestInsertFindRemove(t *testing.T) {
	tr := avltree.New[int, string](lessInt)

	tr.Insert(5, "five")
	tr.Insert(3, "three")
	tr.Insert(8, "eight")

	v, ok := tr.Find(3)
	require.True(t, ok)
	assert.Equal(t, "three", v)

	assert.Equal(t, 3, tr.Size())

	// duplicate insert overwrites
	tr.Insert(5, "FIVE")
	v, _ = tr.Find(5)
	assert.Equal(t, "FIVE", v)
	assert.Equal(t, 3, tr.Size())

	assert.True(t, tr.Remove(3))
	assert.False(t, tr.Remove(3))
	_, ok = tr.Find(3)
	assert.False(t, ok)
	assert.Equal(t, 2, tr.Size())
}

func TestEnumerateOrdered(t *testing.T) {
	tr := avltree.New[int, int](lessInt)
	values := []int{9, 1, 8, 2, 7, 3, 6, 4, 5, 0}
	for _, v := range values {
		tr.Insert(v, v*10)
	}

	entries := tr.Enumerate()
	require.Len(t, entries, len(values))
	for i, e := range entries {
		assert.Equal(t, i, e.Key)
		assert.Equal(t, i*10, e.Value)
	}
}

func TestRangeInclusive(t *testing.T) {
	tr := avltree.New[int, int](lessInt)
	for i := 0; i < 20; i++ {
		tr.Insert(i, i)
	}

	entries := tr.Range(5, 10)
	require.Len(t, entries, 6)
	for i, e := range entries {
		assert.Equal(t, 5+i, e.Key)
	}

	assert.Empty(t, tr.Range(100, 200))
}

func TestRankOfAndSelect(t *testing.T) {
	tr := avltree.New[int, int](lessInt)
	values := []int{40, 10, 30, 20, 50}
	for _, v := range values {
		tr.Insert(v, v)
	}
	sorted := append([]int(nil), values...)
	sort.Ints(sorted)

	for rank, key := range sorted {
		got, ok := tr.RankOf(key)
		require.True(t, ok)
		assert.Equal(t, rank, got)

		entry, ok := tr.Select(rank)
		require.True(t, ok)
		assert.Equal(t, key, entry.Key)
	}

	_, ok := tr.RankOf(999)
	assert.False(t, ok)

	_, ok = tr.Select(len(sorted))
	assert.False(t, ok)
}

func TestRandomizedAgainstSortSlice(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tr := avltree.New[int, struct{}](lessInt)
	present := map[int]struct{}{}

	for i := 0; i < 2000; i++ {
		k := rng.Intn(500)
		if rng.Intn(3) == 0 {
			tr.Remove(k)
			delete(present, k)
			continue
		}
		tr.Insert(k, struct{}{})
		present[k] = struct{}{}
	}

	want := make([]int, 0, len(present))
	for k := range present {
		want = append(want, k)
	}
	sort.Ints(want)

	entries := tr.Enumerate()
	require.Len(t, entries, len(want))
	for i, e := range entries {
		assert.Equal(t, want[i], e.Key)
	}
	assert.Equal(t, len(want), tr.Size())

	for rank, key := range want {
		got, ok := tr.RankOf(key)
		require.True(t, ok)
		assert.Equal(t, rank, got)
	}
}
