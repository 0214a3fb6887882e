package afs

// Block-kind discriminator, stored as the first byte of every AFS block
// (spec §6.1, §3.7).
const (
	blockKindNone     byte = 0
	blockKindMaster   byte = 1
	blockKindFreeList byte = 2
	blockKindNode     byte = 3
)

// Object-type discriminator, stored in every node block (top and
// non-top) so a node is self-describing for recovery/fsck purposes.
const (
	objTypeNone byte = 0
	objTypeDir  byte = 1
	objTypeFile byte = 2
)

// ObjType is the caller-facing object type, used by find_name_in_dir et al.
type ObjType int

const (
	ObjTypeAny ObjType = iota
	ObjTypeDir
	ObjTypeFile
)

// View-kind discriminator for a node's payload region.
const (
	viewKindLeaf   byte = 1
	viewKindBranch byte = 2
	viewKindMini   byte = 3
)

// nodeHeaderSize is the fixed self-describing header present at the start
// of every node block, top or non-top.
const nodeHeaderSize = 8

// topFieldsSize is the fixed field region specific to top nodes (spec
// §3.5: "Top-node fixed fields: 50 bytes" plus the shared node header
// accounted separately here).
const topFieldsSize = 50

const topFixedOverhead = nodeHeaderSize + topFieldsSize // 58

// dirLeafEntryHeader is the fixed-size prefix of one directory leaf entry:
// ObjId (16 bytes) + object type (1 byte) + name length (2 bytes).
const dirLeafEntryHeader = 16 + 1 + 2

// dirBranchEntryHeader is the fixed-size prefix of one directory branch
// entry: child block index (8 bytes) + first-name length (2 bytes).
const dirBranchEntryHeader = 8 + 2

// fileLeafEntrySize is the size of one file leaf entry: a single block
// index. File leaf entries carry no explicit offset — offset is implicit
// in traversal order, each entry covering exactly one block of content.
const fileLeafEntrySize = 8

// fileBranchEntrySize is the size of one file branch entry: first file
// offset covered by the child (8 bytes) + child block index (8 bytes).
const fileBranchEntrySize = 8 + 8

const maxNameBytesCeiling = 255

// NodeLayout is the set of size limits derived from a store's block size,
// per spec §4.4.1.
type NodeLayout struct {
	BlockSize      uint32
	MaxNameBytes   uint32
	MaxMetaBytes   uint32
}

// deriveNodeLayout computes the name/metadata ceilings for a given block
// size, failing with ErrUnsupportedFsVersion if B is too small for even a
// single-byte name.
func deriveNodeLayout(blockSize uint32) (NodeLayout, error) {
	nonTopAvail := int(blockSize) - nodeHeaderSize
	maxName := nonTopAvail - dirLeafEntryHeader
	if maxName > maxNameBytesCeiling {
		maxName = maxNameBytesCeiling
	}
	if maxName < 1 {
		return NodeLayout{}, ErrUnsupportedFsVersion
	}

	// The top node must be able to hold its fixed fields, metadata, and at
	// least one leaf entry simultaneously (a freshly created directory or
	// file with one child is stored entirely in its top node).
	maxMeta := int(blockSize) / 8
	for maxMeta > 0 {
		used := topFixedOverhead + maxMeta + dirLeafEntryHeader + maxName
		if used <= int(blockSize) {
			break
		}
		maxMeta--
	}
	if maxMeta < 0 {
		maxMeta = 0
	}

	return NodeLayout{BlockSize: blockSize, MaxNameBytes: uint32(maxName), MaxMetaBytes: uint32(maxMeta)}, nil
}

// maxMiniNodeBytes returns the largest file size storable inline in the
// top node given the current metadata length actually used.
func (l NodeLayout) maxMiniNodeBytes(metaLen uint32) uint32 {
	avail := int(l.BlockSize) - topFixedOverhead - int(metaLen)
	if avail < 0 {
		return 0
	}
	return uint32(avail)
}
