package afs

import (
	"time"
)

// removeFromDir deletes name from the tree rooted at top. In a branch, a
// leaf child left empty is freed and dropped from the branch, and when one
// child remains and its entries fit in the top node they are hoisted back
// into it. Underfull children are not merged with or refilled from their
// siblings.
func (a *Afs) removeFromDir(t *txn, top *dirTopNode, name string) (dirLeafEntry, error) {
	if top.header.viewKind == viewKindBranch {
		branch := a.dirBranchEntries(top)
		ci := a.childLeafForName(branch, name)
		childHandle, err := t.obtainRW(branch[ci].ChildIndex)
		if err != nil {
			return dirLeafEntry{}, err
		}
		leaf := decodeDirLeaf(nonTopPayload(childHandle.Bytes()))
		i, found := a.findSortedDirLeaf(leaf, name)
		if !found {
			return dirLeafEntry{}, ErrNameNotInDir
		}
		removed := leaf[i]
		leaf = removeDirLeafAt(leaf, i)

		if len(leaf) == 0 {
			if err := a.freeBlock(t, branch[ci].ChildIndex); err != nil {
				return dirLeafEntry{}, err
			}
			branch = append(branch[:ci], branch[ci+1:]...)
		} else {
			writeNodeHeader(childHandle.WritableBytes(), nodeHeader{objType: objTypeDir, isTop: false, viewKind: viewKindLeaf})
			encodeDirLeaf(nonTopPayload(childHandle.Bytes()), leaf)
			if i == 0 {
				branch[ci].FirstName = leaf[0].Name
			}
		}

		if len(branch) == 1 {
			// Hoist the sole remaining child back into the top node.
			onlyChild, err := t.obtainRW(branch[0].ChildIndex)
			if err != nil {
				return dirLeafEntry{}, err
			}
			childLeaf := decodeDirLeaf(nonTopPayload(onlyChild.Bytes()))
			payload := topPayload(top.handle.Bytes(), top.fields.MetaDataLen)
			if dirLeafEncodedSize(childLeaf) <= len(payload) {
				if err := a.freeBlock(t, branch[0].ChildIndex); err != nil {
					return dirLeafEntry{}, err
				}
				top.header.viewKind = viewKindLeaf
				writeNodeHeader(top.handle.WritableBytes(), top.header)
				encodeDirLeaf(topPayload(top.handle.WritableBytes(), top.fields.MetaDataLen), childLeaf)
				top.fields.NrEntriesOrSize--
				return removed, nil
			}
		}

		a.rewriteDirBranch(top, branch)
		top.fields.NrEntriesOrSize--
		return removed, nil
	}

	leaf := a.dirLeafEntries(top)
	i, found := a.findSortedDirLeaf(leaf, name)
	if !found {
		return dirLeafEntry{}, ErrNameNotInDir
	}
	removed := leaf[i]
	leaf = removeDirLeafAt(leaf, i)
	encodeDirLeaf(topPayload(top.handle.WritableBytes(), top.fields.MetaDataLen), leaf)
	top.fields.NrEntriesOrSize--
	return removed, nil
}

// ObjDelete removes name from parent. Directories must be empty.
func (a *Afs) ObjDelete(parent ObjId, name string, now time.Time) error {
	return a.guard(func() error {
		t, err := a.begin()
		if err != nil {
			return err
		}

		parentTop, err := a.readDirTop(t, parent)
		if err != nil {
			t.abort()
			return err
		}

		entry, _, err := a.lookupInDir(t, parentTop, name)
		if err != nil {
			t.abort()
			return err
		}

		if entry.Type == objTypeDir {
			childTop, err := a.readDirTop(t, entry.Id)
			if err != nil {
				t.abort()
				return err
			}
			if childTop.fields.NrEntriesOrSize != 0 {
				t.abort()
				return ErrDirNotEmpty
			}
		} else {
			if err := a.freeFileContentBlocks(t, entry.Id); err != nil {
				t.abort()
				return err
			}
		}

		if _, err := a.removeFromDir(t, parentTop, name); err != nil {
			t.abort()
			return err
		}
		if err := a.freeBlock(t, entry.Id.Index); err != nil {
			t.abort()
			return err
		}

		parentTop.fields.ModifyTime = uint64(now.Unix())
		writeTopFields(parentTop.handle.WritableBytes(), parentTop.fields)

		masterH, err := a.obtainMasterForWrite(t)
		if err != nil {
			t.abort()
			return err
		}
		a.saveMaster(masterH)
		return t.commit(masterH)
	})
}

// isAncestor reports whether candidate is dst or an ancestor of dst,
// walking up parent links from dst.
func (a *Afs) isAncestor(candidate, dst ObjId) bool {
	cur := dst
	for depth := 0; depth < navPathMaxEntries; depth++ {
		if cur == candidate {
			return true
		}
		if cur == a.Root() {
			return false
		}
		info, err := a.ObjStat(cur)
		if err != nil {
			return false
		}
		cur = info.ParentId
	}
	return false
}

const navPathMaxEntries = 64

// ObjMove relocates src_name from src_parent to dst_name under dst_parent.
func (a *Afs) ObjMove(srcParent ObjId, srcName string, dstParent ObjId, dstName string, now time.Time) error {
	return a.guard(func() error {
		if err := a.CheckName(dstName); err != nil {
			return err
		}

		// The cycle check walks parent links through ObjStat, so it runs
		// before the journaled write that performs the move.
		src, err := a.FindNameInDir(srcParent, srcName)
		if err != nil {
			return err
		}
		if src.Type == ObjTypeDir && a.isAncestor(src.Id, dstParent) {
			return ErrMoveDestInvalid
		}

		t, err := a.begin()
		if err != nil {
			return err
		}

		srcTop, err := a.readDirTop(t, srcParent)
		if err != nil {
			t.abort()
			return err
		}
		entry, _, err := a.lookupInDir(t, srcTop, srcName)
		if err != nil {
			t.abort()
			return err
		}

		dstTop := srcTop
		if dstParent != srcParent {
			dstTop, err = a.readDirTop(t, dstParent)
			if err != nil {
				t.abort()
				return err
			}
		}
		if _, _, err := a.lookupInDir(t, dstTop, dstName); err == nil {
			t.abort()
			return ErrNameExists
		}

		if _, err := a.removeFromDir(t, srcTop, srcName); err != nil {
			t.abort()
			return err
		}
		newEntry := dirLeafEntry{Id: entry.Id, Type: entry.Type, Name: dstName}
		if err := a.insertIntoDir(t, dstTop, newEntry); err != nil {
			t.abort()
			return err
		}

		movedHandle, err := t.obtainRW(entry.Id.Index)
		if err != nil {
			t.abort()
			return err
		}
		mf := readTopFields(movedHandle.Bytes())
		mf.ParentUniqueId = dstParent.UniqueId
		mf.ParentIndex = dstParent.Index
		mf.ModifyTime = uint64(now.Unix())
		writeTopFields(movedHandle.WritableBytes(), mf)

		nowU := uint64(now.Unix())
		srcTop.fields.ModifyTime = nowU
		writeTopFields(srcTop.handle.WritableBytes(), srcTop.fields)
		if dstTop != srcTop {
			dstTop.fields.ModifyTime = nowU
			writeTopFields(dstTop.handle.WritableBytes(), dstTop.fields)
		}

		masterH, err := a.obtainMasterForWrite(t)
		if err != nil {
			t.abort()
			return err
		}
		a.saveMaster(masterH)
		return t.commit(masterH)
	})
}
