// Package storagefile wraps a single OS file opened write-through and,
// optionally, bypassing the OS page cache. Block I/O offsets must be
// aligned to MinSectorSize; ReadBytesUnaligned, allowed only on OS-cached
// files, reads arbitrary byte ranges.
package storagefile

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/atomic"
)

// MinSectorSize is the smallest unit all offsets passed to ReadBlocks,
// WriteBlocks and SetEOF must be aligned to.
const MinSectorSize = 512

// WriteThrough selects whether writes bypass the OS write-back cache.
type WriteThrough bool

// Uncached selects whether reads/writes bypass the OS page cache entirely
// (direct I/O). Uncached files only permit block-aligned I/O; OS-cached
// files additionally allow ReadBytesUnaligned.
type Uncached bool

const (
	WriteThroughYes WriteThrough = true
	WriteThroughNo  WriteThrough = false
	UncachedYes     Uncached     = true
	UncachedNo      Uncached     = false
)

// ErrIO wraps a failure reported by the backing file or forced by a
// SimErrDecider; argument checks such as misalignment return plain errors.
// It unwraps to the underlying error.
type ErrIO struct {
	Op  string
	Err error
}

func (e *ErrIO) Error() string { return fmt.Sprintf("storagefile: %s: %v", e.Op, e.Err) }
func (e *ErrIO) Unwrap() error { return e.Err }

// SimErrDecider lets tests force IO errors at specific points to exercise
// crash/recovery handling. It is consulted before every real IO operation;
// a non-nil error return is surfaced to the caller as an *ErrIO.
type SimErrDecider interface {
	// ShouldFail is called before each IO operation with a stable name for
	// the operation ("read", "write", "setEOF", "sync"). It returns a
	// non-nil error to force that call to fail instead of running.
	ShouldFail(op string) error
}

// backend is the minimal set of primitive operations a File needs from its
// underlying storage; it is satisfied by an OS file (platform_*.go) or by
// the in-memory MemBackend used in tests.
type backend interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Truncate(size int64) error
	Size() (int64, error)
	Sync() error
	Close() error
}

// File is a block-aligned view over one backing file.
type File struct {
	mu sync.Mutex

	blockSize    uint64
	fullPath     string
	oldFullPaths []string

	writeThrough WriteThrough
	uncached     Uncached

	be       backend
	fileSize uint64

	simErr            SimErrDecider
	nrSimulatedIoErrs atomic.Uint64
}

// New creates an unopened File. SetBlockSize and SetFullPath must be called
// before Open.
func New() *File {
	return &File{}
}

// SetBlockSize sets the block size that ReadBlocks and WriteBlocks
// multiply nrBlocks by (offsets are checked against MinSectorSize
// only). It may be changed between Open calls but not while any
// in-flight handle references this File.
func (f *File) SetBlockSize(n uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockSize = n
}

// SetFullPath sets the path this File will open.
func (f *File) SetFullPath(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fullPath = path
}

// SetOldFullPaths registers prior file names; if the file exists under one
// of them but not under the current name, Open renames it into place. If it
// exists under more than one old name, or under both an old and the new
// name, Open fails.
func (f *File) SetOldFullPaths(paths []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.oldFullPaths = append([]string(nil), paths...)
}

// SetSimErrDecider installs (or, with nil, clears) a fault injector.
func (f *File) SetSimErrDecider(d SimErrDecider) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.simErr = d
}

// NrSimulatedIoErrs returns how many operations were made to fail by the
// installed SimErrDecider.
func (f *File) NrSimulatedIoErrs() uint64 { return f.nrSimulatedIoErrs.Load() }

// Open opens the backing OS file. If fullPath names an existing old path
// (see SetOldFullPaths) it is renamed first.
func (f *File) Open(writeThrough WriteThrough, uncached Uncached) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fullPath == "" {
		return errors.New("storagefile: full path not set")
	}
	if f.blockSize == 0 {
		return errors.New("storagefile: block size not set")
	}

	if len(f.oldFullPaths) > 0 {
		if err := checkOldPathsAndRename(f.fullPath, f.oldFullPaths); err != nil {
			return err
		}
	}

	be, err := openOSBackend(f.fullPath, writeThrough, uncached)
	if err != nil {
		return &ErrIO{Op: "open", Err: err}
	}

	size, err := be.Size()
	if err != nil {
		be.Close()
		return &ErrIO{Op: "stat", Err: err}
	}

	f.be = be
	f.writeThrough = writeThrough
	f.uncached = uncached
	f.fileSize = uint64(size)
	return nil
}

// OpenWithBackend installs an already-constructed backend (used by tests to
// supply an in-memory or fault-injecting implementation) in place of
// opening a real OS file.
func (f *File) OpenWithBackend(be backend, writeThrough WriteThrough, uncached Uncached) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	size, err := be.Size()
	if err != nil {
		return &ErrIO{Op: "stat", Err: err}
	}

	f.be = be
	f.writeThrough = writeThrough
	f.uncached = uncached
	f.fileSize = uint64(size)
	return nil
}

// GetSize returns the on-disk size as last observed by this File (updated
// by WriteBlocks and SetEOF, not polled from the OS on every call).
func (f *File) GetSize() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fileSize
}

func (f *File) checkFail(op string) error {
	if f.simErr == nil {
		return nil
	}
	if err := f.simErr.ShouldFail(op); err != nil {
		f.nrSimulatedIoErrs.Inc()
		return &ErrIO{Op: op, Err: err}
	}
	return nil
}

// ReadBlocks reads nrBlocks blocks starting at the block-aligned offset. If
// the read runs past the current on-disk size, the remainder is
// zero-filled rather than returning an error (mirrors the original
// implementation: reads past EOF return zeros instead of failing, so a
// higher layer can read the logical size of an object that has not yet
// been fully flushed).
func (f *File) ReadBlocks(dst []byte, nrBlocks int, offset uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if offset%MinSectorSize != 0 {
		return fmt.Errorf("storagefile: unaligned read offset %d", offset)
	}
	if err := f.checkFail("read"); err != nil {
		return err
	}

	want := nrBlocks * int(f.blockSize)
	if len(dst) < want {
		return fmt.Errorf("storagefile: dst too small: have %d want %d", len(dst), want)
	}

	return f.readInner(dst[:want], offset)
}

// ReadBytesUnaligned reads an arbitrary byte range; only permitted on
// OS-cached (non-Uncached) files.
func (f *File) ReadBytesUnaligned(dst []byte, offset uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.uncached {
		return errors.New("storagefile: unaligned read not permitted on uncached file")
	}
	if err := f.checkFail("read"); err != nil {
		return err
	}
	return f.readInner(dst, offset)
}

func (f *File) readInner(dst []byte, offset uint64) error {
	n := 0
	if offset < f.fileSize {
		avail := f.fileSize - offset
		toRead := len(dst)
		if uint64(toRead) > avail {
			toRead = int(avail)
		}
		read, err := f.be.ReadAt(dst[:toRead], int64(offset))
		if err != nil {
			return &ErrIO{Op: "read", Err: err}
		}
		n = read
	}
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
	return nil
}

// WriteBlocks writes nrBlocks blocks of src to the block-aligned offset,
// extending the on-disk size if the write reaches past it.
func (f *File) WriteBlocks(src []byte, nrBlocks int, offset uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if offset%MinSectorSize != 0 {
		return fmt.Errorf("storagefile: unaligned write offset %d", offset)
	}
	if err := f.checkFail("write"); err != nil {
		return err
	}

	want := nrBlocks * int(f.blockSize)
	if len(src) < want {
		return fmt.Errorf("storagefile: src too small: have %d want %d", len(src), want)
	}

	n, err := f.be.WriteAt(src[:want], int64(offset))
	if err != nil {
		return &ErrIO{Op: "write", Err: err}
	}
	if n != want {
		return fmt.Errorf("storagefile: short write: wrote %d want %d", n, want)
	}

	newEnd := offset + uint64(want)
	if newEnd > f.fileSize {
		f.fileSize = newEnd
	}

	if f.writeThrough {
		if err := f.be.Sync(); err != nil {
			return &ErrIO{Op: "sync", Err: err}
		}
	}
	return nil
}

// SetEOF truncates (or extends with a hole) the file to offset.
func (f *File) SetEOF(offset uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if offset%MinSectorSize != 0 {
		return fmt.Errorf("storagefile: unaligned setEOF offset %d", offset)
	}
	if err := f.checkFail("setEOF"); err != nil {
		return err
	}

	if err := f.be.Truncate(int64(offset)); err != nil {
		return &ErrIO{Op: "setEOF", Err: err}
	}
	f.fileSize = offset

	if f.writeThrough {
		if err := f.be.Sync(); err != nil {
			return &ErrIO{Op: "sync", Err: err}
		}
	}
	return nil
}

// Sync forces any buffered writes to stable storage.
func (f *File) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkFail("sync"); err != nil {
		return err
	}
	if err := f.be.Sync(); err != nil {
		return &ErrIO{Op: "sync", Err: err}
	}
	return nil
}

// Close releases the backing file.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.be == nil {
		return nil
	}
	err := f.be.Close()
	f.be = nil
	if err != nil {
		return &ErrIO{Op: "close", Err: err}
	}
	return nil
}
