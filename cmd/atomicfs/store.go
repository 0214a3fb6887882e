package atomicfs

import (
	"fmt"
	"sync"

	"github.com/deploymenttheory/atomicfs/internal/afs"
	"github.com/deploymenttheory/atomicfs/internal/config"
	"github.com/deploymenttheory/atomicfs/internal/jbs"
)

// handle bundles one open store with the mutex that serializes CLI calls
// against it, per spec.md §5 ("external synchronization is the caller's
// responsibility").
type handle struct {
	mu    sync.Mutex
	store *jbs.Store
	afs   *afs.Afs
	cfg   config.Config
}

func openHandle() (*handle, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, err
	}
	if storePathFlag != "" {
		cfg.StorePath = storePathFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	consistency, err := cfg.ConsistencyLevel()
	if err != nil {
		return nil, err
	}

	store := jbs.New(
		jbs.WithLogger(logger),
		jbs.WithCacheTarget(cfg.CacheTargetSize, secondsToDuration(cfg.CacheMaxAgeSeconds)),
	)
	if err := store.Open(cfg.StorePath, cfg.BlockSize, consistency); err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	if cfg.MaxSizeBytes > 0 {
		store.SetMaxSizeBytes(cfg.MaxSizeBytes)
	}

	a := afs.New(store, afs.WithLogger(logger), afs.WithNameComparer(resolveComparer(cfg.NameComparer)))
	if err := a.Load(); err != nil {
		store.Close()
		return nil, fmt.Errorf("loading filesystem: %w", err)
	}

	return &handle{store: store, afs: a, cfg: cfg}, nil
}

func (h *handle) close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.store.Close()
}

func withStore(fn func(*handle) error) error {
	h, err := openHandle()
	if err != nil {
		return err
	}
	defer h.close()

	h.mu.Lock()
	defer h.mu.Unlock()
	return fn(h)
}
