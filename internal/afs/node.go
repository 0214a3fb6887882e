package afs

import "encoding/binary"

// nodeHeader is the self-describing prefix shared by every node block.
type nodeHeader struct {
	objType  byte
	isTop    bool
	viewKind byte
}

func readNodeHeader(block []byte) (nodeHeader, error) {
	if block[0] != blockKindNode {
		return nodeHeader{}, ErrUnexpectedBlockKind
	}
	return nodeHeader{
		objType:  block[1],
		isTop:    block[2] != 0,
		viewKind: block[3],
	}, nil
}

func writeNodeHeader(block []byte, h nodeHeader) {
	block[0] = blockKindNode
	block[1] = h.objType
	if h.isTop {
		block[2] = 1
	} else {
		block[2] = 0
	}
	block[3] = h.viewKind
}

// topFields is the fixed 50-byte region of a top node, immediately
// following the 8-byte node header.
type topFields struct {
	UniqueId       uint64
	ParentUniqueId uint64
	ParentIndex    uint64
	NrEntriesOrSize uint64 // Dir_NrEntries or File_SizeBytes, per objType
	CreateTime     uint64
	ModifyTime     uint64
	MetaDataLen    uint16
}

func readTopFields(block []byte) topFields {
	b := block[nodeHeaderSize:]
	return topFields{
		UniqueId:        binary.LittleEndian.Uint64(b[0:]),
		ParentUniqueId:  binary.LittleEndian.Uint64(b[8:]),
		ParentIndex:     binary.LittleEndian.Uint64(b[16:]),
		NrEntriesOrSize: binary.LittleEndian.Uint64(b[24:]),
		CreateTime:      binary.LittleEndian.Uint64(b[32:]),
		ModifyTime:      binary.LittleEndian.Uint64(b[40:]),
		MetaDataLen:     binary.LittleEndian.Uint16(b[48:]),
	}
}

func writeTopFields(block []byte, f topFields) {
	b := block[nodeHeaderSize:]
	binary.LittleEndian.PutUint64(b[0:], f.UniqueId)
	binary.LittleEndian.PutUint64(b[8:], f.ParentUniqueId)
	binary.LittleEndian.PutUint64(b[16:], f.ParentIndex)
	binary.LittleEndian.PutUint64(b[24:], f.NrEntriesOrSize)
	binary.LittleEndian.PutUint64(b[32:], f.CreateTime)
	binary.LittleEndian.PutUint64(b[40:], f.ModifyTime)
	binary.LittleEndian.PutUint16(b[48:], f.MetaDataLen)
}

func topMetadata(block []byte, metaLen uint16) []byte {
	start := topFixedOverhead
	return block[start : start+int(metaLen)]
}

func topPayload(block []byte, metaLen uint16) []byte {
	start := topFixedOverhead + int(metaLen)
	return block[start:]
}

func nonTopPayload(block []byte) []byte {
	return block[nodeHeaderSize:]
}

// dirLeafEntry is one (id, type, name) triple in a directory leaf view.
type dirLeafEntry struct {
	Id   ObjId
	Type byte
	Name string
}

func encodeDirLeaf(payload []byte, entries []dirLeafEntry) int {
	binary.LittleEndian.PutUint16(payload[0:], uint16(len(entries)))
	p := 2
	for _, e := range entries {
		binary.LittleEndian.PutUint64(payload[p:], e.Id.UniqueId)
		binary.LittleEndian.PutUint64(payload[p+8:], e.Id.Index)
		payload[p+16] = e.Type
		binary.LittleEndian.PutUint16(payload[p+17:], uint16(len(e.Name)))
		copy(payload[p+19:], e.Name)
		p += dirLeafEntryHeader + len(e.Name)
	}
	return p
}

func decodeDirLeaf(payload []byte) []dirLeafEntry {
	count := int(binary.LittleEndian.Uint16(payload[0:]))
	entries := make([]dirLeafEntry, 0, count)
	p := 2
	for i := 0; i < count; i++ {
		uid := binary.LittleEndian.Uint64(payload[p:])
		idx := binary.LittleEndian.Uint64(payload[p+8:])
		typ := payload[p+16]
		nameLen := int(binary.LittleEndian.Uint16(payload[p+17:]))
		name := string(payload[p+19 : p+19+nameLen])
		entries = append(entries, dirLeafEntry{Id: ObjId{UniqueId: uid, Index: idx}, Type: typ, Name: name})
		p += dirLeafEntryHeader + nameLen
	}
	return entries
}

func dirLeafEncodedSize(entries []dirLeafEntry) int {
	n := 2
	for _, e := range entries {
		n += dirLeafEntryHeader + len(e.Name)
	}
	return n
}

// dirBranchEntry is one (child_block_index, first_name_in_child) pair.
type dirBranchEntry struct {
	ChildIndex uint64
	FirstName  string
}

func encodeDirBranch(payload []byte, entries []dirBranchEntry) int {
	binary.LittleEndian.PutUint16(payload[0:], uint16(len(entries)))
	p := 2
	for _, e := range entries {
		binary.LittleEndian.PutUint64(payload[p:], e.ChildIndex)
		binary.LittleEndian.PutUint16(payload[p+8:], uint16(len(e.FirstName)))
		copy(payload[p+10:], e.FirstName)
		p += dirBranchEntryHeader + len(e.FirstName)
	}
	return p
}

func decodeDirBranch(payload []byte) []dirBranchEntry {
	count := int(binary.LittleEndian.Uint16(payload[0:]))
	entries := make([]dirBranchEntry, 0, count)
	p := 2
	for i := 0; i < count; i++ {
		childIdx := binary.LittleEndian.Uint64(payload[p:])
		nameLen := int(binary.LittleEndian.Uint16(payload[p+8:]))
		name := string(payload[p+10 : p+10+nameLen])
		entries = append(entries, dirBranchEntry{ChildIndex: childIdx, FirstName: name})
		p += dirBranchEntryHeader + nameLen
	}
	return entries
}

func dirBranchEncodedSize(entries []dirBranchEntry) int {
	n := 2
	for _, e := range entries {
		n += dirBranchEntryHeader + len(e.FirstName)
	}
	return n
}

// fileLeaf is the ordered list of data-block indices covered by one leaf
// node, each covering exactly one block of file content (the last block
// of the whole file may be partially used; size_bytes in the top node
// governs how many trailing bytes of the last block are live).
func encodeFileLeaf(payload []byte, blocks []uint64) int {
	binary.LittleEndian.PutUint16(payload[0:], uint16(len(blocks)))
	p := 2
	for _, b := range blocks {
		binary.LittleEndian.PutUint64(payload[p:], b)
		p += fileLeafEntrySize
	}
	return p
}

func decodeFileLeaf(payload []byte) []uint64 {
	count := int(binary.LittleEndian.Uint16(payload[0:]))
	blocks := make([]uint64, count)
	p := 2
	for i := 0; i < count; i++ {
		blocks[i] = binary.LittleEndian.Uint64(payload[p:])
		p += fileLeafEntrySize
	}
	return blocks
}

func fileLeafEncodedSize(nrBlocks int) int { return 2 + nrBlocks*fileLeafEntrySize }

type fileBranchEntry struct {
	FirstOffset uint64
	ChildIndex  uint64
}

func encodeFileBranch(payload []byte, entries []fileBranchEntry) int {
	binary.LittleEndian.PutUint16(payload[0:], uint16(len(entries)))
	p := 2
	for _, e := range entries {
		binary.LittleEndian.PutUint64(payload[p:], e.FirstOffset)
		binary.LittleEndian.PutUint64(payload[p+8:], e.ChildIndex)
		p += fileBranchEntrySize
	}
	return p
}

func decodeFileBranch(payload []byte) []fileBranchEntry {
	count := int(binary.LittleEndian.Uint16(payload[0:]))
	entries := make([]fileBranchEntry, count)
	p := 2
	for i := 0; i < count; i++ {
		entries[i] = fileBranchEntry{
			FirstOffset: binary.LittleEndian.Uint64(payload[p:]),
			ChildIndex:  binary.LittleEndian.Uint64(payload[p+8:]),
		}
		p += fileBranchEntrySize
	}
	return entries
}

func fileBranchEncodedSize(nrEntries int) int { return 2 + nrEntries*fileBranchEntrySize }
