package afs

import "encoding/binary"

// fsVersionMagic is "AFS0" read as a little-endian u64, per spec §6.1.
const fsVersionMagic uint64 = 0x30534641 // "AFS0" LE

// noFreeListTail marks an empty free-list chain.
const noFreeListTail = ^uint64(0)

// masterBlock mirrors the fixed-offset fields of block 0, per spec §3.7 /
// §6.1:
//
//	0:      kind byte (Master = 1)
//	8..16:  fs-version magic
//	16..24: free-list tail block index (UINT64_MAX if none)
//	24..32: number of full free-list nodes
//	32..40: root-directory top-node block index
//	40..48: next unique id
type masterBlock struct {
	FreeListTail     uint64
	NrFullFreeListNodes uint64
	RootDirIndex     uint64
	NextUniqueId     uint64
}

func readMasterBlock(block []byte) (masterBlock, error) {
	if block[0] != blockKindMaster {
		return masterBlock{}, ErrUnexpectedBlockKind
	}
	if binary.LittleEndian.Uint64(block[8:]) != fsVersionMagic {
		return masterBlock{}, ErrUnsupportedFsVersion
	}
	return masterBlock{
		FreeListTail:        binary.LittleEndian.Uint64(block[16:]),
		NrFullFreeListNodes: binary.LittleEndian.Uint64(block[24:]),
		RootDirIndex:        binary.LittleEndian.Uint64(block[32:]),
		NextUniqueId:        binary.LittleEndian.Uint64(block[40:]),
	}, nil
}

func writeMasterBlock(block []byte, m masterBlock) {
	block[0] = blockKindMaster
	binary.LittleEndian.PutUint64(block[8:], fsVersionMagic)
	binary.LittleEndian.PutUint64(block[16:], m.FreeListTail)
	binary.LittleEndian.PutUint64(block[24:], m.NrFullFreeListNodes)
	binary.LittleEndian.PutUint64(block[32:], m.RootDirIndex)
	binary.LittleEndian.PutUint64(block[40:], m.NextUniqueId)
}
