package storagefile

import (
	"io"

	"github.com/spf13/afero"
)

// MemBackend is an in-memory backend, built on afero's in-memory
// filesystem, used by this package's tests to exercise File without
// touching real disk files. It injects no faults itself; File's
// SimErrDecider does that.
type MemBackend struct {
	fs   afero.Fs
	path string
	f    afero.File
}

// NewMemBackend creates a MemBackend backed by a fresh in-memory
// filesystem, with the named file created empty.
func NewMemBackend(path string) (*MemBackend, error) {
	fs := afero.NewMemMapFs()
	f, err := fs.OpenFile(path, 0x2|0x40 /* O_RDWR|O_CREATE */, 0o600)
	if err != nil {
		return nil, err
	}
	return &MemBackend{fs: fs, path: path, f: f}, nil
}

// Fs exposes the underlying afero filesystem so a test can open a second
// handle onto the same bytes (e.g. the data file and the journal file of
// one simulated store share a directory).
func (m *MemBackend) Fs() afero.Fs { return m.fs }

func (m *MemBackend) ReadAt(p []byte, off int64) (int, error)  { return m.f.ReadAt(p, off) }
func (m *MemBackend) WriteAt(p []byte, off int64) (int, error) { return m.f.WriteAt(p, off) }
func (m *MemBackend) Truncate(size int64) error                { return m.f.Truncate(size) }
func (m *MemBackend) Sync() error                              { return m.f.Sync() }
func (m *MemBackend) Close() error                              { return m.f.Close() }

func (m *MemBackend) Size() (int64, error) {
	info, err := m.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// OpenMemBackend opens path on an existing in-memory filesystem — used to
// reopen a simulated store (the second handle onto the same fs models a
// process restart after a crash).
func OpenMemBackend(fs afero.Fs, path string) (*MemBackend, error) {
	f, err := fs.OpenFile(path, 0x2|0x40, 0o600)
	if err != nil {
		return nil, err
	}
	return &MemBackend{fs: fs, path: path, f: f}, nil
}

var _ io.Closer = (*MemBackend)(nil)

// CountingSimErrDecider fails the Nth call (1-based) to the named
// operation with err, and every call thereafter until Reset is called.
// This grounds the original AfsFileStorage::SetSimErrDecider fault
// injection hook used to drive the crash-recovery test scenarios.
type CountingSimErrDecider struct {
	Op        string
	FailAfter int
	Err       error

	calls int
}

func (d *CountingSimErrDecider) ShouldFail(op string) error {
	if op != d.Op {
		return nil
	}
	d.calls++
	if d.calls >= d.FailAfter {
		return d.Err
	}
	return nil
}

// Reset clears the call counter, letting a test reuse the same decider
// across a simulated reopen.
func (d *CountingSimErrDecider) Reset() { d.calls = 0 }
