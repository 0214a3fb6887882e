// Package blockalloc supplies fixed-size byte blocks to the storage stack
// and recycles freed blocks up to a configurable watermark so repeated
// allocation does not bounce off the OS allocator on every journaled write.
package blockalloc

import (
	"sync"

	"go.uber.org/atomic"
)

// DefaultMaxAvailPercent bounds the recycle pool to a fraction of the peak
// number of blocks that were ever outstanding at once.
const DefaultMaxAvailPercent = 25

// Allocator hands out BytesPerBlock()-sized buffers and recycles released
// ones. It is safe for concurrent use: every method takes the internal
// mutex, and the hit/miss counters are atomic.
type Allocator struct {
	mu sync.Mutex

	bytesPerBlock   int
	maxAvailPercent int

	blocksUsed    int
	maxBlocksUsed int

	avail [][]byte

	nrCacheHits   atomic.Uint64
	nrCacheMisses atomic.Uint64
}

// New creates an Allocator that hands out blocks of bytesPerBlock bytes.
func New(bytesPerBlock int) *Allocator {
	if bytesPerBlock <= 0 {
		panic("blockalloc: bytesPerBlock must be positive")
	}
	return &Allocator{
		bytesPerBlock:   bytesPerBlock,
		maxAvailPercent: DefaultMaxAvailPercent,
	}
}

// BytesPerBlock returns the fixed block size this allocator produces.
func (a *Allocator) BytesPerBlock() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bytesPerBlock
}

// SetMaxAvailPercent sets the fraction (0-100) of peak outstanding blocks
// that is kept around in the recycle pool after release.
func (a *Allocator) SetMaxAvailPercent(pct int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.maxAvailPercent = pct
	a.freeSuperfluousBlocksLocked()
}

// GetBlock returns a BytesPerBlock()-sized buffer. Contents are undefined;
// callers that need zero-filled memory must zero it themselves (jbs's
// AddNewBlock does this explicitly).
func (a *Allocator) GetBlock() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.blocksUsed++
	if a.blocksUsed > a.maxBlocksUsed {
		a.maxBlocksUsed = a.blocksUsed
	}

	if n := len(a.avail); n > 0 {
		blk := a.avail[n-1]
		a.avail = a.avail[:n-1]
		a.nrCacheHits.Inc()
		return blk
	}

	a.nrCacheMisses.Inc()
	return make([]byte, a.bytesPerBlock)
}

// ReleaseBlock zeroes and returns a block obtained from GetBlock to the
// allocator's recycle pool, unless the pool already holds at least
// maxAvailPercent of the peak outstanding block count (minimum one). This path is
// infallible: it never panics on a well-formed buffer.
func (a *Allocator) ReleaseBlock(p []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.blocksUsed > 0 {
		a.blocksUsed--
	}

	for i := range p {
		p[i] = 0
	}

	if a.haveSuperfluousBlocksLocked() {
		return
	}

	a.avail = append(a.avail, p)
}

func (a *Allocator) haveSuperfluousBlocksLocked() bool {
	maxAvail := (a.maxBlocksUsed * a.maxAvailPercent) / 100
	if maxAvail < 1 {
		maxAvail = 1
	}
	return len(a.avail) >= maxAvail
}

func (a *Allocator) freeSuperfluousBlocksLocked() {
	maxAvail := (a.maxBlocksUsed * a.maxAvailPercent) / 100
	if maxAvail < 1 {
		maxAvail = 1
	}
	if len(a.avail) > maxAvail {
		a.avail = a.avail[:maxAvail]
	}
}

// AllocMemory returns a contiguous buffer of nrBytes, for callers (the
// journal encoder) that need a multi-block buffer rather than a single
// fixed-size block.
func (a *Allocator) AllocMemory(nrBytes int) []byte {
	return make([]byte, nrBytes)
}

// FreeMemory is a no-op placeholder matching the allocator/free pairing of
// the original C++ API; Go's garbage collector reclaims AllocMemory's
// buffers, but callers still pair the calls so the allocation discipline
// reads the same way across the stack.
func (a *Allocator) FreeMemory(p []byte) {}

// NrCacheHits returns the number of GetBlock calls served from the recycle
// pool.
func (a *Allocator) NrCacheHits() uint64 { return a.nrCacheHits.Load() }

// NrCacheMisses returns the number of GetBlock calls that allocated fresh
// memory.
func (a *Allocator) NrCacheMisses() uint64 { return a.nrCacheMisses.Load() }
