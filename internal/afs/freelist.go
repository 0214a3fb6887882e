package afs

import "encoding/binary"

// Free-list block layout (spec §3.6):
//
//	0:      kind byte (FreeList = 2)
//	8:      previous-block pointer (UINT64_MAX if none)
//	16:     count
//	24..:   up to (B-24)/8 free block indices
const freeListHeaderSize = 24

func freeListCapacity(blockSize uint32) int {
	return (int(blockSize) - freeListHeaderSize) / 8
}

type freeListNode struct {
	Prev    uint64
	Indices []uint64
}

func readFreeListNode(block []byte) (freeListNode, error) {
	if block[0] != blockKindFreeList {
		return freeListNode{}, ErrUnexpectedBlockKind
	}
	prev := binary.LittleEndian.Uint64(block[8:])
	count := binary.LittleEndian.Uint64(block[16:])
	indices := make([]uint64, count)
	for i := uint64(0); i < count; i++ {
		indices[i] = binary.LittleEndian.Uint64(block[freeListHeaderSize+8*i:])
	}
	return freeListNode{Prev: prev, Indices: indices}, nil
}

func writeFreeListNode(block []byte, n freeListNode) {
	block[0] = blockKindFreeList
	binary.LittleEndian.PutUint64(block[8:], n.Prev)
	binary.LittleEndian.PutUint64(block[16:], uint64(len(n.Indices)))
	for i, idx := range n.Indices {
		binary.LittleEndian.PutUint64(block[freeListHeaderSize+8*i:], idx)
	}
}

// allocBlock returns an unused block index, preferring the tail of the
// free-list chain for locality (spec §3.6), falling back to extending the
// store with a brand-new zero-filled block.
func (a *Afs) allocBlock(tx *txn) (uint64, []byte, error) {
	if a.master.FreeListTail == noFreeListTail {
		h, err := tx.addNew()
		if err != nil {
			return 0, nil, err
		}
		return h.Index(), h.WritableBytes(), nil
	}

	tailIdx := a.master.FreeListTail
	tailHandle, err := tx.obtainRW(tailIdx)
	if err != nil {
		return 0, nil, err
	}
	node, err := readFreeListNode(tailHandle.Bytes())
	if err != nil {
		return 0, nil, err
	}

	if len(node.Indices) > 0 {
		idx := node.Indices[len(node.Indices)-1]
		node.Indices = node.Indices[:len(node.Indices)-1]
		writeFreeListNode(tailHandle.WritableBytes(), node)

		h, err := tx.obtainOverwrite(idx)
		if err != nil {
			return 0, nil, err
		}
		return idx, h.WritableBytes(), nil
	}

	// Tail node is empty: unlink it, making its predecessor the tail. The
	// now-unused tail block itself becomes the allocated block.
	a.master.FreeListTail = node.Prev
	a.master.NrFullFreeListNodes--
	h, err := tx.obtainOverwrite(tailIdx)
	if err != nil {
		return 0, nil, err
	}
	return tailIdx, h.WritableBytes(), nil
}

// freeBlock returns idx to the free-list chain, appending it to the tail
// node, or making idx itself the new tail node when the tail is full or
// the list is empty.
func (a *Afs) freeBlock(tx *txn, idx uint64) error {
	cap := freeListCapacity(a.store.BlockSize())

	if a.master.FreeListTail != noFreeListTail {
		tailHandle, err := tx.obtainRW(a.master.FreeListTail)
		if err != nil {
			return err
		}
		node, err := readFreeListNode(tailHandle.Bytes())
		if err != nil {
			return err
		}
		if len(node.Indices) < cap {
			node.Indices = append(node.Indices, idx)
			writeFreeListNode(tailHandle.WritableBytes(), node)
			return nil
		}
	}

	// Need a fresh free-list node; reuse idx itself as that node rather
	// than consuming another block, mirroring the source's "the freed
	// block becomes the new list node when the list is full" strategy.
	h, err := tx.obtainOverwrite(idx)
	if err != nil {
		return err
	}
	newNode := freeListNode{Prev: a.master.FreeListTail, Indices: nil}
	writeFreeListNode(h.WritableBytes(), newNode)
	a.master.FreeListTail = idx
	a.master.NrFullFreeListNodes++
	return nil
}
