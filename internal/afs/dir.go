package afs

import (
	"sort"
	"time"

	"golang.org/x/exp/slices"

	"github.com/deploymenttheory/atomicfs/internal/jbs"
)

// dirTopNode is an in-memory view of one directory's top node.
type dirTopNode struct {
	handle *jbs.BlockHandle
	header nodeHeader
	fields topFields
}

func (a *Afs) readDirTop(t *txn, id ObjId) (*dirTopNode, error) {
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
	if hdr.objType != objTypeDir {
		return nil, ErrObjNotDir
	}
	return &dirTopNode{handle: h, header: hdr, fields: f}, nil
}

func (a *Afs) dirLeafEntries(top *dirTopNode) []dirLeafEntry {
	return decodeDirLeaf(topPayload(top.handle.Bytes(), top.fields.MetaDataLen))
}

func (a *Afs) dirBranchEntries(top *dirTopNode) []dirBranchEntry {
	return decodeDirBranch(topPayload(top.handle.Bytes(), top.fields.MetaDataLen))
}

// findSortedDirLeaf returns the index of the first entry whose name is >=
// name, and whether that entry's name equals name under the comparator.
func (a *Afs) findSortedDirLeaf(entries []dirLeafEntry, name string) (int, bool) {
	i, found := slices.BinarySearchFunc(entries, name, func(e dirLeafEntry, target string) int {
		return a.compare.Compare(e.Name, target)
	})
	if found {
		return i, true
	}
	if i < len(entries) && a.compare.Equal(entries[i].Name, name) {
		return i, true
	}
	return i, false
}

// childLeafForName returns the index of the branch entry whose subtree
// covers name.
func (a *Afs) childLeafForName(entries []dirBranchEntry, name string) int {
	i, found := slices.BinarySearchFunc(entries, name, func(e dirBranchEntry, target string) int {
		return a.compare.Compare(e.FirstName, target)
	})
	if found {
		return i
	}
	if i == 0 {
		return 0
	}
	return i - 1
}

// FindNameInDir resolves name inside parent, per spec §4.4.2.
func (a *Afs) FindNameInDir(parent ObjId, name string) (DirEntry, error) {
	t, err := a.begin()
	if err != nil {
		return DirEntry{}, err
	}
	defer t.abort()

	top, err := a.readDirTop(t, parent)
	if err != nil {
		return DirEntry{}, err
	}

	entry, _, err := a.lookupInDir(t, top, name)
	if err != nil {
		return DirEntry{}, err
	}
	return DirEntry{Id: entry.Id, Type: objTypeToObjType(entry.Type), Name: entry.Name}, nil
}

func (a *Afs) lookupInDir(t *txn, top *dirTopNode, name string) (dirLeafEntry, int, error) {
	if top.header.viewKind == viewKindBranch {
		branch := a.dirBranchEntries(top)
		if len(branch) == 0 {
			return dirLeafEntry{}, 0, ErrNameNotInDir
		}
		ci := a.childLeafForName(branch, name)
		childHandle, err := t.obtainRO(branch[ci].ChildIndex)
		if err != nil {
			return dirLeafEntry{}, 0, err
		}
		leaf := decodeDirLeaf(nonTopPayload(childHandle.Bytes()))
		i, found := a.findSortedDirLeaf(leaf, name)
		if !found {
			return dirLeafEntry{}, 0, ErrNameNotInDir
		}
		return leaf[i], i, nil
	}

	leaf := a.dirLeafEntries(top)
	i, found := a.findSortedDirLeaf(leaf, name)
	if !found {
		return dirLeafEntry{}, 0, ErrNameNotInDir
	}
	return leaf[i], i, nil
}

// CrackPath walks an absolute slash-separated path from Root, returning
// every DirEntry visited. An empty slice (no error) is returned for "/".
func (a *Afs) CrackPath(absPath string) ([]DirEntry, error) {
	if len(absPath) == 0 || absPath[0] != '/' {
		return nil, ErrInvalidPathSyntax
	}
	if absPath == "/" {
		return nil, nil
	}

	parts := splitPath(absPath)
	var out []DirEntry
	cur := a.Root()
	for _, part := range parts {
		entry, err := a.FindNameInDir(cur, part)
		if err != nil {
			return out, err
		}
		out = append(out, entry)
		cur = entry.Id
	}
	return out, nil
}

func splitPath(p string) []string {
	var parts []string
	start := 1
	for i := 1; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' {
			if i > start {
				parts = append(parts, p[start:i])
			}
			start = i + 1
		}
	}
	return parts
}

// DirCreate creates a new empty directory named name inside parent.
func (a *Afs) DirCreate(parent ObjId, name string, metaData []byte, now time.Time) (ObjId, error) {
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

		top, err := a.readDirTop(t, parent)
		if err != nil {
			t.abort()
			return err
		}
		if _, _, err := a.lookupInDir(t, top, name); err == nil {
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

		writeNodeHeader(childBuf, nodeHeader{objType: objTypeDir, isTop: true, viewKind: viewKindLeaf})
		writeTopFields(childBuf, topFields{
			UniqueId: uid, ParentUniqueId: parent.UniqueId, ParentIndex: parent.Index,
			NrEntriesOrSize: 0, CreateTime: nowU, ModifyTime: nowU,
			MetaDataLen: uint16(len(metaData)),
		})
		copy(topMetadata(childBuf, uint16(len(metaData))), metaData)
		encodeDirLeaf(topPayload(childBuf, uint16(len(metaData))), nil)

		newId = ObjId{UniqueId: uid, Index: childIdx}

		if err := a.insertIntoDir(t, top, dirLeafEntry{Id: newId, Type: objTypeDir, Name: name}); err != nil {
			t.abort()
			return err
		}
		top.fields.ModifyTime = nowU
		writeTopFields(top.handle.WritableBytes(), top.fields)

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

// insertIntoDir adds entry to the tree rooted at top. An overflowing top
// leaf is split at the median into two new leaf children under a two-entry
// branch; an overflowing leaf child is split and the new child is added to
// the branch, or ErrOutOfSpace is returned if the branch would overflow.
// This implementation bounds height at two levels (top + leaf children);
// see DESIGN.md for why the corpus's full recursive algorithm was not
// reproduced verbatim.
func (a *Afs) insertIntoDir(t *txn, top *dirTopNode, entry dirLeafEntry) error {
	if top.header.viewKind == viewKindBranch {
		branch := a.dirBranchEntries(top)
		ci := a.childLeafForName(branch, entry.Name)
		childHandle, err := t.obtainRW(branch[ci].ChildIndex)
		if err != nil {
			return err
		}
		leaf := decodeDirLeaf(nonTopPayload(childHandle.Bytes()))
		i, _ := a.findSortedDirLeaf(leaf, entry.Name)
		leaf = insertDirLeafAt(leaf, i, entry)

		if dirLeafEncodedSize(leaf)+nodeHeaderSize <= int(a.store.BlockSize()) {
			writeNodeHeader(childHandle.WritableBytes(), nodeHeader{objType: objTypeDir, isTop: false, viewKind: viewKindLeaf})
			encodeDirLeaf(nonTopPayload(childHandle.Bytes()), leaf)
			if i == 0 {
				branch[ci].FirstName = leaf[0].Name
				a.rewriteDirBranch(top, branch)
			}
			top.fields.NrEntriesOrSize++
			return nil
		}

		// Split the overflowing leaf child; promote the right half's first
		// name into the parent branch.
		mid := len(leaf) / 2
		left, right := leaf[:mid], leaf[mid:]
		writeNodeHeader(childHandle.WritableBytes(), nodeHeader{objType: objTypeDir, isTop: false, viewKind: viewKindLeaf})
		encodeDirLeaf(nonTopPayload(childHandle.Bytes()), left)
		if i == 0 {
			branch[ci].FirstName = left[0].Name
		}

		newChildIdx, newChildBuf, err := a.allocBlock(t)
		if err != nil {
			return err
		}
		writeNodeHeader(newChildBuf, nodeHeader{objType: objTypeDir, isTop: false, viewKind: viewKindLeaf})
		encodeDirLeaf(nonTopPayload(newChildBuf), right)

		newEntry := dirBranchEntry{ChildIndex: newChildIdx, FirstName: right[0].Name}
		branch = insertDirBranchAt(branch, ci+1, newEntry)
		if dirBranchEncodedSize(branch) > len(topPayload(top.handle.Bytes(), top.fields.MetaDataLen)) {
			return ErrOutOfSpace
		}
		a.rewriteDirBranch(top, branch)
		top.fields.NrEntriesOrSize++
		return nil
	}

	leaf := a.dirLeafEntries(top)
	i, _ := a.findSortedDirLeaf(leaf, entry.Name)
	leaf = insertDirLeafAt(leaf, i, entry)

	payload := topPayload(top.handle.Bytes(), top.fields.MetaDataLen)
	if dirLeafEncodedSize(leaf) <= len(payload) {
		encodeDirLeaf(payload, leaf)
		top.fields.NrEntriesOrSize++
		return nil
	}

	// Top leaf overflowed: split the entries, new one included, at the
	// median into two new leaf children and turn top into a branch over them.
	mid := len(leaf) / 2
	left, right := leaf[:mid], leaf[mid:]

	leftIdx, leftBuf, err := a.allocBlock(t)
	if err != nil {
		return err
	}
	writeNodeHeader(leftBuf, nodeHeader{objType: objTypeDir, isTop: false, viewKind: viewKindLeaf})
	encodeDirLeaf(nonTopPayload(leftBuf), left)

	rightIdx, rightBuf, err := a.allocBlock(t)
	if err != nil {
		return err
	}
	writeNodeHeader(rightBuf, nodeHeader{objType: objTypeDir, isTop: false, viewKind: viewKindLeaf})
	encodeDirLeaf(nonTopPayload(rightBuf), right)

	top.header.viewKind = viewKindBranch
	writeNodeHeader(top.handle.WritableBytes(), top.header)
	branch := []dirBranchEntry{
		{ChildIndex: leftIdx, FirstName: left[0].Name},
		{ChildIndex: rightIdx, FirstName: right[0].Name},
	}
	a.rewriteDirBranch(top, branch)
	top.fields.NrEntriesOrSize++
	return nil
}

func (a *Afs) rewriteDirBranch(top *dirTopNode, branch []dirBranchEntry) {
	payload := topPayload(top.handle.WritableBytes(), top.fields.MetaDataLen)
	encodeDirBranch(payload, branch)
}

func insertDirLeafAt(entries []dirLeafEntry, i int, e dirLeafEntry) []dirLeafEntry {
	entries = append(entries, dirLeafEntry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = e
	return entries
}

func insertDirBranchAt(entries []dirBranchEntry, i int, e dirBranchEntry) []dirBranchEntry {
	entries = append(entries, dirBranchEntry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = e
	return entries
}

func removeDirLeafAt(entries []dirLeafEntry, i int) []dirLeafEntry {
	return append(entries[:i], entries[i+1:]...)
}

// DirRead enumerates entries of dir in comparator order, resuming after
// lastNameRead (empty string to start from the beginning).
func (a *Afs) DirRead(dir ObjId, lastNameRead string) ([]DirEntry, bool, error) {
	const batchSize = 256

	t, err := a.begin()
	if err != nil {
		return nil, false, err
	}
	defer t.abort()

	top, err := a.readDirTop(t, dir)
	if err != nil {
		return nil, false, err
	}

	all := a.flattenDir(t, top)
	start := 0
	if lastNameRead != "" {
		start = sort.Search(len(all), func(i int) bool { return a.compare.Compare(all[i].Name, lastNameRead) > 0 })
	}

	end := start + batchSize
	reachedEnd := true
	if end >= len(all) {
		end = len(all)
	} else {
		reachedEnd = false
	}

	out := make([]DirEntry, 0, end-start)
	for _, e := range all[start:end] {
		out = append(out, DirEntry{Id: e.Id, Type: objTypeToObjType(e.Type), Name: e.Name})
	}
	return out, reachedEnd, nil
}

func (a *Afs) flattenDir(t *txn, top *dirTopNode) []dirLeafEntry {
	if top.header.viewKind == viewKindLeaf {
		return a.dirLeafEntries(top)
	}
	var all []dirLeafEntry
	for _, b := range a.dirBranchEntries(top) {
		h, err := t.obtainRO(b.ChildIndex)
		if err != nil {
			continue
		}
		all = append(all, decodeDirLeaf(nonTopPayload(h.Bytes()))...)
	}
	return all
}

// ObjStat returns metadata for any object, directory or file.
func (a *Afs) ObjStat(id ObjId) (StatInfo, error) {
	if err := invalidObjId(id); err != nil {
		return StatInfo{}, err
	}
	h, err := a.store.ObtainBlock(id.Index)
	if err != nil {
		return StatInfo{}, err
	}
	hdr, err := readNodeHeader(h.Bytes())
	if err != nil {
		return StatInfo{}, err
	}
	if !hdr.isTop {
		return StatInfo{}, ErrObjNotFound
	}
	f := readTopFields(h.Bytes())
	if f.UniqueId != id.UniqueId {
		return StatInfo{}, ErrObjNotFound
	}

	info := StatInfo{
		Id:         id,
		ParentId:   ObjId{UniqueId: f.ParentUniqueId, Index: f.ParentIndex},
		MetaData:   append([]byte(nil), topMetadata(h.Bytes(), f.MetaDataLen)...),
		CreateTime: f.CreateTime,
		ModifyTime: f.ModifyTime,
	}
	if hdr.objType == objTypeDir {
		info.Type = ObjTypeDir
		info.NrEntries = f.NrEntriesOrSize
	} else {
		info.Type = ObjTypeFile
		info.SizeBytes = f.NrEntriesOrSize
	}
	return info, nil
}

// ObjSetStat updates mutable fields of an object's top node.
func (a *Afs) ObjSetStat(id ObjId, info StatInfo, mask StatField, now time.Time) error {
	return a.guard(func() error {
		t, err := a.begin()
		if err != nil {
			return err
		}
		h, err := t.obtainRW(id.Index)
		if err != nil {
			t.abort()
			return err
		}
		hdr, err := readNodeHeader(h.Bytes())
		if err != nil {
			t.abort()
			return err
		}
		if !hdr.isTop {
			t.abort()
			return ErrObjNotFound
		}
		f := readTopFields(h.Bytes())
		if f.UniqueId != id.UniqueId {
			t.abort()
			return ErrObjNotFound
		}

		if mask&StatMetaData != 0 {
			if uint16(len(info.MetaData)) != f.MetaDataLen {
				t.abort()
				return ErrMetaDataCannotChangeLen
			}
			copy(topMetadata(h.WritableBytes(), f.MetaDataLen), info.MetaData)
		}
		if mask&StatModifyTime != 0 {
			f.ModifyTime = uint64(now.Unix())
		} else {
			f.ModifyTime = f.ModifyTime
		}
		writeTopFields(h.WritableBytes(), f)

		masterH, err := a.obtainMasterForWrite(t)
		if err != nil {
			t.abort()
			return err
		}
		a.saveMaster(masterH)
		return t.commit(masterH)
	})
}

func objTypeToObjType(b byte) ObjType {
	if b == objTypeDir {
		return ObjTypeDir
	}
	return ObjTypeFile
}
