package storagefile

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFile(t *testing.T, blockSize uint64) (*File, *MemBackend) {
	t.Helper()
	be, err := NewMemBackend("/data")
	require.NoError(t, err)

	f := New()
	f.SetBlockSize(blockSize)
	require.NoError(t, f.OpenWithBackend(be, WriteThroughNo, UncachedNo))
	return f, be
}

func TestWriteThenReadBlocksRoundTrip(t *testing.T) {
	f, _ := newTestFile(t, 512)

	src := make([]byte, 512)
	for i := range src {
		src[i] = byte(i)
	}
	require.NoError(t, f.WriteBlocks(src, 1, 0))

	dst := make([]byte, 512)
	require.NoError(t, f.ReadBlocks(dst, 1, 0))
	assert.Equal(t, src, dst)
}

func TestReadPastEOFReturnsZeros(t *testing.T) {
	f, _ := newTestFile(t, 512)

	dst := make([]byte, 512)
	for i := range dst {
		dst[i] = 0xFF
	}
	require.NoError(t, f.ReadBlocks(dst, 1, 0))
	for _, b := range dst {
		assert.Equal(t, byte(0), b)
	}
}

func TestUnalignedOffsetRejected(t *testing.T) {
	f, _ := newTestFile(t, 512)

	buf := make([]byte, 512)
	err := f.WriteBlocks(buf, 1, 100)
	assert.Error(t, err)
}

func TestGetSizeGrowsOnWrite(t *testing.T) {
	f, _ := newTestFile(t, 512)
	assert.Equal(t, uint64(0), f.GetSize())

	buf := make([]byte, 512)
	require.NoError(t, f.WriteBlocks(buf, 1, 512))
	assert.Equal(t, uint64(1024), f.GetSize())
}

func TestSetEOFTruncates(t *testing.T) {
	f, _ := newTestFile(t, 512)
	buf := make([]byte, 1024)
	require.NoError(t, f.WriteBlocks(buf, 2, 0))
	require.NoError(t, f.SetEOF(512))
	assert.Equal(t, uint64(512), f.GetSize())
}

func TestSimErrDeciderForcesFailure(t *testing.T) {
	f, _ := newTestFile(t, 512)
	wantErr := errors.New("simulated disk failure")
	f.SetSimErrDecider(&CountingSimErrDecider{Op: "write", FailAfter: 1, Err: wantErr})

	buf := make([]byte, 512)
	err := f.WriteBlocks(buf, 1, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, uint64(1), f.NrSimulatedIoErrs())
}

func TestReadBytesUnalignedRejectedWhenUncached(t *testing.T) {
	be, err := NewMemBackend("/data")
	require.NoError(t, err)
	f := New()
	f.SetBlockSize(512)
	require.NoError(t, f.OpenWithBackend(be, WriteThroughNo, UncachedYes))

	err = f.ReadBytesUnaligned(make([]byte, 10), 3)
	assert.Error(t, err)
}
