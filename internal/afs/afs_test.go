package afs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/atomicfs/internal/jbs"
)

func newTestAfs(t *testing.T) *Afs {
	t.Helper()
	dir := t.TempDir()
	store := jbs.New()
	require.NoError(t, store.Open(dir+"/store.img", 8192, jbs.Journal))
	store.SetMaxSizeBytes(^uint64(0))
	t.Cleanup(func() { store.Close() })

	a := New(store)
	require.NoError(t, a.Init(nil, uint64(time.Now().Unix())))
	return a
}

func TestCreateReadDeleteScenario(t *testing.T) {
	a := newTestAfs(t)
	now := time.Now()

	d, err := a.DirCreate(a.Root(), "a", nil, now)
	require.NoError(t, err)

	f, err := a.FileCreate(d, "hello.txt", nil, now)
	require.NoError(t, err)

	require.NoError(t, a.FileWrite(f, 0, []byte("Hello, world!"), now))

	entries, err := a.CrackPath("/a/hello.txt")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Name)
	assert.Equal(t, "hello.txt", entries[1].Name)

	var got []byte
	var reachedEnd bool
	err = a.FileRead(f, 0, 13, func(data []byte, end bool) error {
		got = append(got, data...)
		reachedEnd = end
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello, world!", string(got))
	assert.True(t, reachedEnd)
}

func TestStaleObjIdAfterDeleteAndRecreate(t *testing.T) {
	a := newTestAfs(t)
	now := time.Now()

	f1, err := a.FileCreate(a.Root(), "x", nil, now)
	require.NoError(t, err)

	require.NoError(t, a.ObjDelete(a.Root(), "x", now))

	_, err = a.FileCreate(a.Root(), "x", nil, now)
	require.NoError(t, err)

	_, statErr := a.ObjStat(f1)
	assert.ErrorIs(t, statErr, ErrObjNotFound)
}

func TestDirNotEmptyBlocksDelete(t *testing.T) {
	a := newTestAfs(t)
	now := time.Now()

	d, err := a.DirCreate(a.Root(), "a", nil, now)
	require.NoError(t, err)
	_, err = a.FileCreate(d, "f", nil, now)
	require.NoError(t, err)

	err = a.ObjDelete(a.Root(), "a", now)
	assert.ErrorIs(t, err, ErrDirNotEmpty)
}

func TestNameExistsRejectsDuplicateCreate(t *testing.T) {
	a := newTestAfs(t)
	now := time.Now()

	_, err := a.DirCreate(a.Root(), "dup", nil, now)
	require.NoError(t, err)
	_, err = a.DirCreate(a.Root(), "dup", nil, now)
	assert.ErrorIs(t, err, ErrNameExists)
}

func TestDirReadEnumeratesInOrder(t *testing.T) {
	a := newTestAfs(t)
	now := time.Now()

	names := []string{"charlie", "alice", "bob"}
	for _, n := range names {
		_, err := a.FileCreate(a.Root(), n, nil, now)
		require.NoError(t, err)
	}

	entries, reachedEnd, err := a.DirRead(a.Root(), "")
	require.NoError(t, err)
	assert.True(t, reachedEnd)
	require.Len(t, entries, 3)
	assert.Equal(t, "alice", entries[0].Name)
	assert.Equal(t, "bob", entries[1].Name)
	assert.Equal(t, "charlie", entries[2].Name)
}

func TestFileGrowAndShrinkRoundTrip(t *testing.T) {
	a := newTestAfs(t)
	now := time.Now()

	f, err := a.FileCreate(a.Root(), "big", nil, now)
	require.NoError(t, err)

	blockSize := uint64(8192)
	big := make([]byte, 10*blockSize)
	for i := range big {
		big[i] = byte(i % 251)
	}
	require.NoError(t, a.FileWrite(f, 0, big, now))

	newSize, err := a.FileSetSize(f, blockSize/2, now)
	require.NoError(t, err)
	assert.EqualValues(t, blockSize/2, newSize)

	var got []byte
	err = a.FileRead(f, 0, blockSize, func(data []byte, end bool) error {
		got = append(got, data...)
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, got, int(blockSize/2))
	assert.Equal(t, big[:blockSize/2], got)
}

func TestObjMoveRelocatesEntry(t *testing.T) {
	a := newTestAfs(t)
	now := time.Now()

	d1, err := a.DirCreate(a.Root(), "src", nil, now)
	require.NoError(t, err)
	d2, err := a.DirCreate(a.Root(), "dst", nil, now)
	require.NoError(t, err)
	f, err := a.FileCreate(d1, "file", nil, now)
	require.NoError(t, err)

	require.NoError(t, a.ObjMove(d1, "file", d2, "renamed", now))

	_, err = a.FindNameInDir(d1, "file")
	assert.ErrorIs(t, err, ErrNameNotInDir)

	entry, err := a.FindNameInDir(d2, "renamed")
	require.NoError(t, err)
	assert.Equal(t, f, entry.Id)
}

func TestObjMoveRejectsCycleIntoOwnDescendant(t *testing.T) {
	a := newTestAfs(t)
	now := time.Now()

	parent, err := a.DirCreate(a.Root(), "parent", nil, now)
	require.NoError(t, err)
	child, err := a.DirCreate(parent, "child", nil, now)
	require.NoError(t, err)

	err = a.ObjMove(a.Root(), "parent", child, "parent-under-child", now)
	assert.ErrorIs(t, err, ErrMoveDestInvalid)
}
