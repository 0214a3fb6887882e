package afs

import (
	"time"

	"github.com/deploymenttheory/atomicfs/internal/jbs"
)

// fileSetSizeMaxBlocksPerRound bounds how many blocks one journaled write
// may add while growing a file, keeping any single transaction's size
// predictable (spec §4.4.3).
const fileSetSizeMaxBlocksPerRound = 100

type fileTopNode struct {
	handle *jbs.BlockHandle
	header nodeHeader
	fields topFields
}

func (a *Afs) readFileTop(t *txn, id ObjId) (*fileTopNode, error) {
	if err := invalidObjId(id); err != nil {
		return nil, err
	}
	h, err := t.obtainRW(id.Index)
	if err != nil {
		return nil, err
	}
	hdr, err := readNodeHeader(h.Bytes())
	if err != nil {
		return nil, err
	}
	if !hdr.isTop {
		return nil, ErrObjNotFound
	}
	f := readTopFields(h.Bytes())
	if f.UniqueId != id.UniqueId {
		return nil, ErrObjNotFound
	}
	if hdr.objType != objTypeFile {
		return nil, ErrObjNotFile
	}
	return &fileTopNode{handle: h, header: hdr, fields: f}, nil
}

// FileCreate creates a new empty (mini) file named name inside parent.
func (a *Afs) FileCreate(parent ObjId, name string, metaData []byte, now time.Time) (ObjId, error) {
	var newId ObjId
	err := a.guard(func() error {
		if err := a.CheckName(name); err != nil {
			return err
		}
		if uint32(len(metaData)) > a.layout.MaxMetaBytes {
			return ErrMetaDataTooLong
		}

		t, err := a.begin()
		if err != nil {
			return err
		}
		parentTop, err := a.readDirTop(t, parent)
		if err != nil {
			t.abort()
			return err
		}
		if _, _, err := a.lookupInDir(t, parentTop, name); err == nil {
			t.abort()
			return ErrNameExists
		}

		childIdx, childBuf, err := a.allocBlock(t)
		if err != nil {
			t.abort()
			return err
		}
		nowU := uint64(now.Unix())
		uid := a.master.NextUniqueId
		a.master.NextUniqueId++

		writeNodeHeader(childBuf, nodeHeader{objType: objTypeFile, isTop: true, viewKind: viewKindMini})
		writeTopFields(childBuf, topFields{
			UniqueId: uid, ParentUniqueId: parent.UniqueId, ParentIndex: parent.Index,
			NrEntriesOrSize: 0, CreateTime: nowU, ModifyTime: nowU,
			MetaDataLen: uint16(len(metaData)),
		})
		copy(topMetadata(childBuf, uint16(len(metaData))), metaData)

		newId = ObjId{UniqueId: uid, Index: childIdx}

		if err := a.insertIntoDir(t, parentTop, dirLeafEntry{Id: newId, Type: objTypeFile, Name: name}); err != nil {
			t.abort()
			return err
		}
		parentTop.fields.ModifyTime = nowU
		writeTopFields(parentTop.handle.WritableBytes(), parentTop.fields)

		masterH, err := a.obtainMasterForWrite(t)
		if err != nil {
			t.abort()
			return err
		}
		a.saveMaster(masterH)
		return t.commit(masterH)
	})
	return newId, err
}

// FileMaxMiniNodeBytes returns the largest size storable inline in id's
// top node, given its current metadata length.
func (a *Afs) FileMaxMiniNodeBytes(id ObjId) (uint32, error) {
	info, err := a.ObjStat(id)
	if err != nil {
		return 0, err
	}
	return a.layout.maxMiniNodeBytes(uint32(len(info.MetaData))), nil
}

func (a *Afs) fileBlockIndices(t *txn, top *fileTopNode) []uint64 {
	if top.header.viewKind == viewKindBranch {
		var all []uint64
		for _, b := range decodeFileBranch(topPayload(top.handle.Bytes(), top.fields.MetaDataLen)) {
			h, err := t.obtainRO(b.ChildIndex)
			if err != nil {
				continue
			}
			all = append(all, decodeFileLeaf(nonTopPayload(h.Bytes()))...)
		}
		return all
	}
	return decodeFileLeaf(topPayload(top.handle.Bytes(), top.fields.MetaDataLen))
}

// FileRead streams [offset, offset+n) of id's contents to onData, invoked
// once per contiguous chunk of available bytes; the final invocation
// carries reachedEnd=true.
func (a *Afs) FileRead(id ObjId, offset uint64, n uint64, onData func(data []byte, reachedEnd bool) error) error {
	t, err := a.begin()
	if err != nil {
		return err
	}
	defer t.abort()

	top, err := a.readFileTop(t, id)
	if err != nil {
		return err
	}
	size := top.fields.NrEntriesOrSize
	if offset > size {
		return ErrInvalidOffset
	}
	end := offset + n
	if end > size {
		end = size
	}

	if top.header.viewKind == viewKindMini {
		payload := topPayload(top.handle.Bytes(), top.fields.MetaDataLen)
		data := payload[offset:end]
		return onData(data, true)
	}

	blockSize := uint64(a.store.BlockSize())
	blocks := a.fileBlockIndices(t, top)

	cur := offset
	for cur < end {
		blockNr := cur / blockSize
		inBlockOff := cur % blockSize
		avail := blockSize - inBlockOff
		want := end - cur
		if want > avail {
			want = avail
		}
		h, err := t.obtainRO(blocks[blockNr])
		if err != nil {
			return err
		}
		chunk := h.Bytes()[inBlockOff : inBlockOff+want]
		cur += want
		if err := onData(chunk, cur >= end); err != nil {
			return err
		}
	}
	if end == offset {
		return onData(nil, true)
	}
	return nil
}

// FileWrite writes data at offset, extending the file if necessary.
func (a *Afs) FileWrite(id ObjId, offset uint64, data []byte, now time.Time) error {
	return a.guard(func() error {
		newSize := offset + uint64(len(data))

		t, err := a.begin()
		if err != nil {
			return err
		}
		top, err := a.readFileTop(t, id)
		if err != nil {
			t.abort()
			return err
		}

		maxMini := a.layout.maxMiniNodeBytes(uint32(top.fields.MetaDataLen))

		if top.header.viewKind == viewKindMini && newSize <= uint64(maxMini) {
			payload := topPayload(top.handle.WritableBytes(), top.fields.MetaDataLen)
			if offset > top.fields.NrEntriesOrSize {
				for i := top.fields.NrEntriesOrSize; i < offset; i++ {
					payload[i] = 0
				}
			}
			copy(payload[offset:], data)
			if newSize > top.fields.NrEntriesOrSize {
				top.fields.NrEntriesOrSize = newSize
			}
			top.fields.ModifyTime = uint64(now.Unix())
			writeTopFields(top.handle.WritableBytes(), top.fields)
			masterH, err := a.obtainMasterForWrite(t)
			if err != nil {
				t.abort()
				return err
			}
			a.saveMaster(masterH)
			return t.commit(masterH)
		}

		if top.header.viewKind == viewKindMini {
			if err := a.migrateMiniToFull(t, top); err != nil {
				t.abort()
				return err
			}
		}

		if newSize > top.fields.NrEntriesOrSize {
			if err := a.growFileBlocks(t, top, newSize); err != nil {
				t.abort()
				return err
			}
		}

		if err := a.writeFullFileRange(t, top, offset, data); err != nil {
			t.abort()
			return err
		}

		top.fields.ModifyTime = uint64(now.Unix())
		writeTopFields(top.handle.WritableBytes(), top.fields)

		masterH, err := a.obtainMasterForWrite(t)
		if err != nil {
			t.abort()
			return err
		}
		a.saveMaster(masterH)
		return t.commit(masterH)
	})
}

// migrateMiniToFull converts a mini file's inline content into the
// block-backed representation, leaving viewKind=Leaf with one entry per
// block of existing content.
func (a *Afs) migrateMiniToFull(t *txn, top *fileTopNode) error {
	oldData := append([]byte(nil), topPayload(top.handle.Bytes(), top.fields.MetaDataLen)[:top.fields.NrEntriesOrSize]...)
	blockSize := int(a.store.BlockSize())

	var blocks []uint64
	for off := 0; off < len(oldData); off += blockSize {
		end := off + blockSize
		if end > len(oldData) {
			end = len(oldData)
		}
		idx, buf, err := a.allocBlock(t)
		if err != nil {
			return err
		}
		copy(buf, oldData[off:end])
		blocks = append(blocks, idx)
	}

	top.header.viewKind = viewKindLeaf
	writeNodeHeader(top.handle.WritableBytes(), top.header)
	encodeFileLeaf(topPayload(top.handle.WritableBytes(), top.fields.MetaDataLen), blocks)
	return nil
}

// growFileBlocks extends top's block chain toward newSize bytes, adding at
// most fileSetSizeMaxBlocksPerRound blocks per call. The size recorded in
// top is newSize, or the length of the blocks present when the bound
// stopped the round early.
func (a *Afs) growFileBlocks(t *txn, top *fileTopNode, newSize uint64) error {
	blockSize := uint64(a.store.BlockSize())
	curBlocks := (top.fields.NrEntriesOrSize + blockSize - 1) / blockSize
	wantBlocks := (newSize + blockSize - 1) / blockSize

	added := 0
	for curBlocks < wantBlocks {
		if added >= fileSetSizeMaxBlocksPerRound {
			break
		}
		idx, _, err := a.allocBlock(t)
		if err != nil {
			return err
		}
		offset := curBlocks * blockSize
		if err := a.appendFileBlock(t, top, idx, offset); err != nil {
			return err
		}
		curBlocks++
		added++
	}
	top.fields.NrEntriesOrSize = newSize
	if curBlocks < wantBlocks {
		top.fields.NrEntriesOrSize = curBlocks * blockSize
	}
	return nil
}

// appendFileBlock adds idx as the new last leaf entry of the tree rooted
// at top, splitting the top leaf into a branch if it overflows (mirrors
// insertIntoDir's top-split strategy). offset is the file byte offset at
// which idx's content begins.
func (a *Afs) appendFileBlock(t *txn, top *fileTopNode, idx uint64, offset uint64) error {
	if top.header.viewKind == viewKindBranch {
		branch := decodeFileBranch(topPayload(top.handle.Bytes(), top.fields.MetaDataLen))
		lastChild := branch[len(branch)-1].ChildIndex
		childHandle, err := t.obtainRW(lastChild)
		if err != nil {
			return err
		}
		leaf := decodeFileLeaf(nonTopPayload(childHandle.Bytes()))
		leaf = append(leaf, idx)

		if fileLeafEncodedSize(len(leaf)) <= int(a.store.BlockSize())-nodeHeaderSize {
			encodeFileLeaf(nonTopPayload(childHandle.WritableBytes()), leaf)
			return nil
		}

		newChildIdx, newChildBuf, err := a.allocBlock(t)
		if err != nil {
			return err
		}
		writeNodeHeader(newChildBuf, nodeHeader{objType: objTypeFile, isTop: false, viewKind: viewKindLeaf})
		encodeFileLeaf(nonTopPayload(newChildBuf), []uint64{idx})

		branch = append(branch, fileBranchEntry{FirstOffset: offset, ChildIndex: newChildIdx})
		if fileBranchEncodedSize(len(branch)) > len(topPayload(top.handle.Bytes(), top.fields.MetaDataLen)) {
			return ErrOutOfSpace
		}
		encodeFileBranch(topPayload(top.handle.WritableBytes(), top.fields.MetaDataLen), branch)
		return nil
	}

	leaf := decodeFileLeaf(topPayload(top.handle.Bytes(), top.fields.MetaDataLen))
	leaf = append(leaf, idx)
	payload := topPayload(top.handle.Bytes(), top.fields.MetaDataLen)

	if fileLeafEncodedSize(len(leaf)) <= len(payload) {
		encodeFileLeaf(topPayload(top.handle.WritableBytes(), top.fields.MetaDataLen), leaf)
		return nil
	}

	mid := len(leaf) / 2
	left, right := leaf[:mid], leaf[mid:]

	leftIdx, leftBuf, err := a.allocBlock(t)
	if err != nil {
		return err
	}
	writeNodeHeader(leftBuf, nodeHeader{objType: objTypeFile, isTop: false, viewKind: viewKindLeaf})
	encodeFileLeaf(nonTopPayload(leftBuf), left)

	rightIdx, rightBuf, err := a.allocBlock(t)
	if err != nil {
		return err
	}
	writeNodeHeader(rightBuf, nodeHeader{objType: objTypeFile, isTop: false, viewKind: viewKindLeaf})
	encodeFileLeaf(nonTopPayload(rightBuf), right)

	top.header.viewKind = viewKindBranch
	writeNodeHeader(top.handle.WritableBytes(), top.header)
	blockSize := uint64(a.store.BlockSize())
	branch := []fileBranchEntry{
		{FirstOffset: 0, ChildIndex: leftIdx},
		{FirstOffset: uint64(len(left)) * blockSize, ChildIndex: rightIdx},
	}
	encodeFileBranch(topPayload(top.handle.WritableBytes(), top.fields.MetaDataLen), branch)
	return nil
}

func (a *Afs) writeFullFileRange(t *txn, top *fileTopNode, offset uint64, data []byte) error {
	blockSize := uint64(a.store.BlockSize())
	blocks := a.fileBlockIndices(t, top)

	cur := uint64(0)
	for cur < uint64(len(data)) {
		abs := offset + cur
		blockNr := abs / blockSize
		inBlockOff := abs % blockSize
		avail := blockSize - inBlockOff
		want := uint64(len(data)) - cur
		if want > avail {
			want = avail
		}
		h, err := t.obtainRW(blocks[blockNr])
		if err != nil {
			return err
		}
		copy(h.WritableBytes()[inBlockOff:inBlockOff+want], data[cur:cur+want])
		cur += want
	}
	return nil
}

// FileSetSize grows or shrinks id to newSize, zeroing removed content
// before freeing blocks on shrink. Returns the size actually reached,
// which may be less than newSize if growth was bounded by
// fileSetSizeMaxBlocksPerRound (the caller should call again to finish).
func (a *Afs) FileSetSize(id ObjId, newSize uint64, now time.Time) (uint64, error) {
	var actual uint64
	err := a.guard(func() error {
		t, err := a.begin()
		if err != nil {
			return err
		}
		top, err := a.readFileTop(t, id)
		if err != nil {
			t.abort()
			return err
		}

		maxMini := a.layout.maxMiniNodeBytes(uint32(top.fields.MetaDataLen))

		switch {
		case top.header.viewKind == viewKindMini && newSize <= uint64(maxMini):
			payload := topPayload(top.handle.WritableBytes(), top.fields.MetaDataLen)
			if newSize > top.fields.NrEntriesOrSize {
				for i := top.fields.NrEntriesOrSize; i < newSize; i++ {
					payload[i] = 0
				}
			}
			top.fields.NrEntriesOrSize = newSize
			actual = newSize

		case top.header.viewKind == viewKindMini:
			if err := a.migrateMiniToFull(t, top); err != nil {
				t.abort()
				return err
			}
			if err := a.growFileBlocks(t, top, newSize); err != nil {
				t.abort()
				return err
			}
			actual = top.fields.NrEntriesOrSize

		case newSize >= top.fields.NrEntriesOrSize:
			if err := a.growFileBlocks(t, top, newSize); err != nil {
				t.abort()
				return err
			}
			actual = top.fields.NrEntriesOrSize

		default:
			if err := a.shrinkFileBlocks(t, top, newSize); err != nil {
				t.abort()
				return err
			}
			actual = newSize
		}

		top.fields.ModifyTime = uint64(now.Unix())
		writeTopFields(top.handle.WritableBytes(), top.fields)

		masterH, err := a.obtainMasterForWrite(t)
		if err != nil {
			t.abort()
			return err
		}
		a.saveMaster(masterH)
		return t.commit(masterH)
	})
	return actual, err
}

// shrinkFileBlocks frees trailing data blocks beyond newSize, zeroing the
// new tail block's unused bytes.
func (a *Afs) shrinkFileBlocks(t *txn, top *fileTopNode, newSize uint64) error {
	blockSize := uint64(a.store.BlockSize())
	blocks := a.fileBlockIndices(t, top)
	wantBlocks := (newSize + blockSize - 1) / blockSize

	for i := uint64(len(blocks)) - 1; i >= wantBlocks && i < uint64(len(blocks)); i-- {
		h, err := t.obtainOverwrite(blocks[i])
		if err != nil {
			return err
		}
		clear(h.WritableBytes())
		if err := a.freeBlock(t, blocks[i]); err != nil {
			return err
		}
	}
	remaining := blocks[:wantBlocks]

	if newSize%blockSize != 0 && wantBlocks > 0 {
		h, err := t.obtainRW(remaining[wantBlocks-1])
		if err != nil {
			return err
		}
		tailUsed := newSize % blockSize
		buf := h.WritableBytes()
		for i := tailUsed; i < blockSize; i++ {
			buf[i] = 0
		}
	}

	top.header.viewKind = viewKindLeaf
	writeNodeHeader(top.handle.WritableBytes(), top.header)
	encodeFileLeaf(topPayload(top.handle.WritableBytes(), top.fields.MetaDataLen), remaining)
	top.fields.NrEntriesOrSize = newSize
	return nil
}

// freeFileContentBlocks releases all data/leaf/branch blocks belonging to
// id's full-file representation (mini files have none beyond the top
// node itself, freed by the caller).
func (a *Afs) freeFileContentBlocks(t *txn, id ObjId) error {
	top, err := a.readFileTop(t, id)
	if err != nil {
		return err
	}
	if top.header.viewKind == viewKindMini {
		return nil
	}
	if top.header.viewKind == viewKindBranch {
		branch := decodeFileBranch(topPayload(top.handle.Bytes(), top.fields.MetaDataLen))
		for _, b := range branch {
			h, err := t.obtainRO(b.ChildIndex)
			if err != nil {
				return err
			}
			for _, blk := range decodeFileLeaf(nonTopPayload(h.Bytes())) {
				if err := a.freeBlock(t, blk); err != nil {
					return err
				}
			}
			if err := a.freeBlock(t, b.ChildIndex); err != nil {
				return err
			}
		}
		return nil
	}
	for _, blk := range decodeFileLeaf(topPayload(top.handle.Bytes(), top.fields.MetaDataLen)) {
		if err := a.freeBlock(t, blk); err != nil {
			return err
		}
	}
	return nil
}
