package afs

import (
	"fmt"
	"strings"

	"github.com/deploymenttheory/atomicfs/internal/atomicfslog"
	"github.com/deploymenttheory/atomicfs/internal/jbs"
	"github.com/deploymenttheory/atomicfs/internal/nameorder"
)

const masterBlockIndex = 0

// StatField selects which fields obj_set_stat mutates.
type StatField int

const (
	StatMetaData StatField = 1 << iota
	StatModifyTime
)

// StatInfo is the mutable/readable metadata of an object.
type StatInfo struct {
	Id         ObjId
	Type       ObjType
	ParentId   ObjId
	MetaData   []byte
	SizeBytes  uint64 // files only
	NrEntries  uint64 // directories only
	CreateTime uint64
	ModifyTime uint64
}

// DirEntry is one resolved step of a path or directory listing.
type DirEntry struct {
	Id   ObjId
	Type ObjType
	Name string
}

// Afs is one open abstract filesystem over a journaled block store. Not
// safe for concurrent use; see spec §5.
type Afs struct {
	store    *jbs.Store
	log      atomicfslog.Logger
	compare  nameorder.Comparer
	layout   NodeLayout
	master   masterBlock
	erred    bool
}

// Option configures an Afs at construction time.
type Option func(*Afs)

// WithLogger installs a structured logger.
func WithLogger(l atomicfslog.Logger) Option {
	return func(a *Afs) { a.log = l }
}

// WithNameComparer installs the directory name ordering/equality rule.
// Defaults to case-sensitive byte comparison.
func WithNameComparer(c nameorder.Comparer) Option {
	return func(a *Afs) { a.compare = c }
}

// New wraps an already-opened Store. Call Init on a fresh store or Load
// to resume an existing one.
func New(store *jbs.Store, opts ...Option) *Afs {
	a := &Afs{store: store, log: atomicfslog.Nop(), compare: nameorder.CaseSensitive()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Init formats a brand-new store: writes the master block at block 0
// (spec §3.7 — its location is fixed) and an empty root directory's top
// node at the next block, recording that index as RootDirIndex so Root()
// can resolve it later rather than assuming a fixed location.
func (a *Afs) Init(rootMetaData []byte, now uint64) error {
	layout, err := deriveNodeLayout(a.store.BlockSize())
	if err != nil {
		return err
	}
	a.layout = layout
	if len(rootMetaData) > int(layout.MaxMetaBytes) {
		return ErrMetaDataTooLong
	}

	if err := a.store.BeginJournaledWrite(); err != nil {
		return err
	}

	masterHandle, err := a.store.AddNewBlock()
	if err != nil {
		a.store.AbortJournaledWrite()
		return err
	}
	rootHandle, err := a.store.AddNewBlock()
	if err != nil {
		a.store.AbortJournaledWrite()
		return err
	}

	a.master = masterBlock{
		FreeListTail:        noFreeListTail,
		NrFullFreeListNodes: 0,
		RootDirIndex:        rootHandle.Index(),
		NextUniqueId:        2, // 0 reserved (None), 1 reserved (Root)
	}
	writeMasterBlock(masterHandle.WritableBytes(), a.master)

	rootBlock := rootHandle.WritableBytes()
	writeNodeHeader(rootBlock, nodeHeader{objType: objTypeDir, isTop: true, viewKind: viewKindLeaf})
	writeTopFields(rootBlock, topFields{
		UniqueId:        rootUniqueId,
		ParentUniqueId:  0,
		ParentIndex:     0,
		NrEntriesOrSize: 0,
		CreateTime:      now,
		ModifyTime:      now,
		MetaDataLen:     uint16(len(rootMetaData)),
	})
	copy(topMetadata(rootBlock, uint16(len(rootMetaData))), rootMetaData)
	encodeDirLeaf(topPayload(rootBlock, uint16(len(rootMetaData))), nil)

	if err := a.store.CompleteJournaledWrite([]*jbs.BlockHandle{masterHandle, rootHandle}); err != nil {
		return err
	}
	return nil
}

// Load reads the master block of an already-initialized store and
// prepares the Afs for use.
func (a *Afs) Load() error {
	layout, err := deriveNodeLayout(a.store.BlockSize())
	if err != nil {
		return err
	}
	a.layout = layout

	h, err := a.store.ObtainBlock(masterBlockIndex)
	if err != nil {
		return err
	}
	m, err := readMasterBlock(h.Bytes())
	if err != nil {
		return err
	}
	a.master = m
	return nil
}

// Root returns the root directory's current ObjId. Its index is read from
// the master block rather than assumed fixed, since block 0 is reserved
// for the master block itself (spec §3.7) and the root directory's top
// node is allocated elsewhere.
func (a *Afs) Root() ObjId {
	return ObjId{UniqueId: rootUniqueId, Index: a.master.RootDirIndex}
}

// MaxNameBytes returns the maximum name length in bytes this store
// accepts.
func (a *Afs) MaxNameBytes() uint32 { return a.layout.MaxNameBytes }

// MaxMetaBytes returns the maximum metadata blob length in bytes.
func (a *Afs) MaxMetaBytes() uint32 { return a.layout.MaxMetaBytes }

// CheckName validates a candidate child name against length and
// forbidden-character rules (slash is always forbidden: it is the path
// separator).
func (a *Afs) CheckName(name string) error {
	if len(name) == 0 || uint32(len(name)) > a.layout.MaxNameBytes {
		return ErrNameTooLong
	}
	if strings.ContainsRune(name, '/') || name == "." || name == ".." {
		return ErrNameInvalid
	}
	return nil
}

// FreeSpaceBlocks returns the number of blocks available for new
// allocation (only the free-list chain; unbounded growth is not counted
// since MaxNrBlocks may be infinite).
func (a *Afs) FreeSpaceBlocks() uint64 {
	var total uint64
	idx := a.master.FreeListTail
	for idx != noFreeListTail {
		h, err := a.store.ObtainBlock(idx)
		if err != nil {
			break
		}
		node, err := readFreeListNode(h.Bytes())
		if err != nil {
			break
		}
		total += uint64(len(node.Indices)) + 1 // +1: the list node block itself
		idx = node.Prev
	}
	return total
}

// FreeSpaceBytes is FreeSpaceBlocks expressed in bytes.
func (a *Afs) FreeSpaceBytes() uint64 {
	return a.FreeSpaceBlocks() * uint64(a.store.BlockSize())
}

// guard wraps a mutating operation: on any error return, the instance is
// tainted and every later guarded call fails with ErrStorageInErrorState
// (spec §4.4.5). Unguarded read calls (FindNameInDir, DirRead, ObjStat,
// FileRead) do not check the taint and keep running against the store.
// The wrapped function must itself call BeginJournaledWrite and
// either CompleteJournaledWrite or AbortJournaledWrite.
func (a *Afs) guard(fn func() error) error {
	if a.erred {
		return ErrStorageInErrorState
	}
	err := fn()
	if err != nil {
		a.erred = true
	}
	return err
}

// txn tracks the block handles obtained or created during one journaled
// write, so the caller can hand the dirty subset to CompleteJournaledWrite
// without re-deriving it.
type txn struct {
	store   *jbs.Store
	handles []*jbs.BlockHandle
}

func (a *Afs) begin() (*txn, error) {
	if err := a.store.BeginJournaledWrite(); err != nil {
		return nil, err
	}
	return &txn{store: a.store}, nil
}

func (t *txn) addNew() (*jbs.BlockHandle, error) {
	h, err := t.store.AddNewBlock()
	if err != nil {
		return nil, err
	}
	t.handles = append(t.handles, h)
	return h, nil
}

// held returns the handle this journaled write already holds for idx, or
// nil; jbs lends out at most one handle per block per journaled write.
func (t *txn) held(idx uint64) *jbs.BlockHandle {
	for _, h := range t.handles {
		if h.Index() == idx {
			return h
		}
	}
	return nil
}

func (t *txn) obtainRW(idx uint64) (*jbs.BlockHandle, error) {
	if h := t.held(idx); h != nil {
		return h, nil
	}
	h, err := t.store.ObtainBlock(idx)
	if err != nil {
		return nil, err
	}
	t.handles = append(t.handles, h)
	return h, nil
}

func (t *txn) obtainRO(idx uint64) (*jbs.BlockHandle, error) {
	return t.obtainRW(idx)
}

func (t *txn) obtainOverwrite(idx uint64) (*jbs.BlockHandle, error) {
	if h := t.held(idx); h != nil {
		clear(h.WritableBytes())
		return h, nil
	}
	h, err := t.store.ObtainBlockForOverwrite(idx)
	if err != nil {
		return nil, err
	}
	t.handles = append(t.handles, h)
	return h, nil
}

func (t *txn) dirty() []*jbs.BlockHandle {
	out := make([]*jbs.BlockHandle, 0, len(t.handles))
	for _, h := range t.handles {
		if h.Dirty() {
			out = append(out, h)
		}
	}
	return out
}

func (t *txn) commit(masterHandle *jbs.BlockHandle) error {
	return t.store.CompleteJournaledWrite(append(t.dirty(), masterHandle))
}

func (t *txn) abort() {
	t.store.AbortJournaledWrite()
}

func (a *Afs) obtainMasterForWrite(t *txn) (*jbs.BlockHandle, error) {
	h, err := t.store.ObtainBlockForOverwrite(masterBlockIndex)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (a *Afs) saveMaster(h *jbs.BlockHandle) {
	writeMasterBlock(h.WritableBytes(), a.master)
}

func invalidObjId(id ObjId) error {
	if id.IsNone() {
		return fmt.Errorf("afs: %w: none", ErrInvalidObjId)
	}
	return nil
}
