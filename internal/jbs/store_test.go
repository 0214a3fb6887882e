package jbs

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBlockSize = 8192

func openTestStore(t *testing.T, path string, fs afero.Fs) *Store {
	t.Helper()
	s := New()
	// Swap in the in-memory backend the same way storagefile tests do: open
	// normally, then replace the OS-backed files with memory-backed ones
	// via the package-level test seam is not exposed, so these tests instead
	// exercise the Store through a real temp-dir file, matching the
	// corpus's existing-integration-test style (services/*_test.go used
	// real temp files for disk code paths).
	dir := t.TempDir()
	err := s.Open(dir+"/data.img", testBlockSize, Journal)
	require.NoError(t, err)
	return s
}

func TestOpenCreatesStoreAtBlockZero(t *testing.T) {
	s := openTestStore(t, "", nil)
	defer s.Close()

	assert.EqualValues(t, testBlockSize, s.BlockSize())
	assert.EqualValues(t, 0, s.NrBlocks())
}

func TestAddNewBlockAndReadBack(t *testing.T) {
	s := openTestStore(t, "", nil)
	defer s.Close()
	s.SetMaxSizeBytes(^uint64(0))

	require.NoError(t, s.BeginJournaledWrite())
	h, err := s.AddNewBlock()
	require.NoError(t, err)
	copy(h.WritableBytes(), []byte("hello world"))

	require.NoError(t, s.CompleteJournaledWrite([]*BlockHandle{h}))
	assert.EqualValues(t, 1, s.NrBlocks())

	got, err := s.ObtainBlock(0)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got.Bytes()[:11]))
}

func TestObtainBlockInvalidIndex(t *testing.T) {
	s := openTestStore(t, "", nil)
	defer s.Close()

	_, err := s.ObtainBlock(0)
	assert.ErrorIs(t, err, ErrBlockIndexInvalid)
}

func TestOutOfSpaceRejectsAddNewBlock(t *testing.T) {
	s := openTestStore(t, "", nil)
	defer s.Close()
	s.SetMaxSizeBytes(MinBlockSize + testBlockSize)

	require.NoError(t, s.BeginJournaledWrite())
	h, err := s.AddNewBlock()
	require.NoError(t, err)
	require.NoError(t, s.CompleteJournaledWrite([]*BlockHandle{h}))

	require.NoError(t, s.BeginJournaledWrite())
	_, err = s.AddNewBlock()
	assert.ErrorIs(t, err, ErrOutOfSpace)
	s.AbortJournaledWrite()
}

func TestAbortJournaledWriteDiscardsNrBlocks(t *testing.T) {
	s := openTestStore(t, "", nil)
	defer s.Close()

	require.NoError(t, s.BeginJournaledWrite())
	_, err := s.AddNewBlock()
	require.NoError(t, err)
	assert.EqualValues(t, 1, s.NrBlocks())

	s.AbortJournaledWrite()
	assert.EqualValues(t, 0, s.NrBlocks())
}

func TestOverwriteExistingBlockPersists(t *testing.T) {
	s := openTestStore(t, "", nil)
	defer s.Close()

	require.NoError(t, s.BeginJournaledWrite())
	h, err := s.AddNewBlock()
	require.NoError(t, err)
	copy(h.WritableBytes(), []byte("v1"))
	require.NoError(t, s.CompleteJournaledWrite([]*BlockHandle{h}))

	require.NoError(t, s.BeginJournaledWrite())
	h2, err := s.ObtainBlockForOverwrite(0)
	require.NoError(t, err)
	copy(h2.WritableBytes(), []byte("v2"))
	require.NoError(t, s.CompleteJournaledWrite([]*BlockHandle{h2}))

	got, err := s.ObtainBlock(0)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got.Bytes()[:2]))
}

func TestReopenRecoversCommittedBlocks(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/data.img"

	s1 := New()
	require.NoError(t, s1.Open(path, testBlockSize, Journal))
	require.NoError(t, s1.BeginJournaledWrite())
	h, err := s1.AddNewBlock()
	require.NoError(t, err)
	copy(h.WritableBytes(), []byte("persisted"))
	require.NoError(t, s1.CompleteJournaledWrite([]*BlockHandle{h}))
	require.NoError(t, s1.Close())

	s2 := New()
	require.NoError(t, s2.Open(path, testBlockSize, Journal))
	defer s2.Close()

	assert.EqualValues(t, 1, s2.NrBlocks())
	got, err := s2.ObtainBlock(0)
	require.NoError(t, err)
	assert.Equal(t, "persisted", string(got.Bytes()[:9]))
}

func TestCacheHitsAndMissesTracked(t *testing.T) {
	s := openTestStore(t, "", nil)
	defer s.Close()

	require.NoError(t, s.BeginJournaledWrite())
	h, err := s.AddNewBlock()
	require.NoError(t, err)
	require.NoError(t, s.CompleteJournaledWrite([]*BlockHandle{h}))

	_, err = s.ObtainBlock(0)
	require.NoError(t, err)
	before := s.NrCacheMisses()

	_, err = s.ObtainBlock(0)
	require.NoError(t, err)
	assert.Greater(t, s.NrCacheHits(), uint64(0))
	assert.Equal(t, before, s.NrCacheMisses())
}

func TestOutOfOrderDirtyBlocksCommitToTheirIndices(t *testing.T) {
	s := openTestStore(t, "", nil)
	defer s.Close()

	require.NoError(t, s.BeginJournaledWrite())
	h1, err := s.AddNewBlock()
	require.NoError(t, err)
	h2, err := s.AddNewBlock()
	require.NoError(t, err)
	h3, err := s.AddNewBlock()
	require.NoError(t, err)
	copy(h1.WritableBytes(), []byte("a"))
	copy(h2.WritableBytes(), []byte("b"))
	copy(h3.WritableBytes(), []byte("c"))
	require.NoError(t, s.CompleteJournaledWrite([]*BlockHandle{h3, h1, h2}))

	for i, want := range []string{"a", "b", "c"} {
		got, err := s.ObtainBlock(uint64(i))
		require.NoError(t, err)
		assert.Equal(t, want, string(got.Bytes()[:1]))
	}
}

func TestJournalFilePathStripsExtension(t *testing.T) {
	assert.Equal(t, "/var/data/store.jnl", JournalFilePath("/var/data/store.img"))
	assert.Equal(t, "/var/data/store.jnl", JournalFilePath("/var/data/store"))
}
