package blockalloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetBlockReturnsCorrectSize(t *testing.T) {
	a := New(4096)
	blk := a.GetBlock()
	require.Len(t, blk, 4096)
}

func TestReleaseBlockZeroesContents(t *testing.T) {
	a := New(16)
	blk := a.GetBlock()
	for i := range blk {
		blk[i] = 0xAB
	}
	a.ReleaseBlock(blk)

	reused := a.GetBlock()
	for _, b := range reused {
		assert.Equal(t, byte(0), b)
	}
}

func TestRecyclePoolHitsAndMisses(t *testing.T) {
	a := New(16)
	blk := a.GetBlock()
	assert.Equal(t, uint64(0), a.NrCacheHits())
	assert.Equal(t, uint64(1), a.NrCacheMisses())

	a.ReleaseBlock(blk)
	_ = a.GetBlock()
	assert.Equal(t, uint64(1), a.NrCacheHits())
}

func TestMaxAvailPercentBoundsPool(t *testing.T) {
	a := New(8)
	a.SetMaxAvailPercent(25)

	blocks := make([][]byte, 8)
	for i := range blocks {
		blocks[i] = a.GetBlock()
	}
	for _, b := range blocks {
		a.ReleaseBlock(b)
	}

	assert.LessOrEqual(t, len(a.avail), 2)
}

func TestAllocMemoryArbitrarySize(t *testing.T) {
	a := New(16)
	buf := a.AllocMemory(1000)
	require.Len(t, buf, 1000)
	a.FreeMemory(buf)
}
