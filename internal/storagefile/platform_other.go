//go:build !linux

package storagefile

import "os"

type osBackend struct {
	f *os.File
}

func (b *osBackend) ReadAt(p []byte, off int64) (int, error)  { return b.f.ReadAt(p, off) }
func (b *osBackend) WriteAt(p []byte, off int64) (int, error) { return b.f.WriteAt(p, off) }
func (b *osBackend) Truncate(size int64) error                { return b.f.Truncate(size) }
func (b *osBackend) Sync() error                               { return b.f.Sync() }

func (b *osBackend) Size() (int64, error) {
	info, err := b.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (b *osBackend) Close() error { return b.f.Close() }

// openOSBackend on non-Linux platforms falls back to plain buffered I/O;
// O_DIRECT and advisory exclusive locking are Linux-specific facilities of
// internal/storagefile and are not provided here.
func openOSBackend(fullPath string, writeThrough WriteThrough, uncached Uncached) (backend, error) {
	f, err := os.OpenFile(fullPath, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}
	return &osBackend{f: f}, nil
}
