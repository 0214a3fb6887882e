package jbs

import (
	"encoding/binary"
	"fmt"
)

// Journal record opcodes, per spec.md §4.3.2.
const (
	journalOpEntry byte = 'E'
	journalOpEnd   byte = 'N'
)

// journalEntry is one dirty block staged for a journaled write.
type journalEntry struct {
	blockIndex uint64
	data       []byte // exactly blockSize bytes
}

// encodeJournal builds the on-disk journal record for entries, ordered by
// block index ascending, per spec.md §4.3.2:
//
//	0: byte    'E'
//	1: u64-LE  block_index
//	9: B bytes block_contents
//	…          repeat
//	K: byte    'N'
func encodeJournal(entries []journalEntry, blockSize uint32) []byte {
	bytesPerEntry := 1 + 8 + int(blockSize)
	total := bytesPerEntry*len(entries) + 1

	buf := make([]byte, total)
	p := 0
	for _, e := range entries {
		buf[p] = journalOpEntry
		p++
		binary.LittleEndian.PutUint64(buf[p:], e.blockIndex)
		p += 8
		copy(buf[p:], e.data)
		p += int(blockSize)
	}
	buf[p] = journalOpEnd
	return buf
}

// decodeJournal parses a raw journal record. It returns ok=false (not an
// error) when the record is truncated or corrupt — per spec.md §4.3.4 this
// means the transaction never made it fully to stable storage and the
// journal should simply be cleared, not treated as a hard failure.
func decodeJournal(raw []byte, blockSize uint32) (entries []journalEntry, ok bool) {
	bytesPerEntry := 1 + 8 + int(blockSize)
	p := 0

	for {
		if p >= len(raw) {
			return nil, false
		}
		op := raw[p]
		p++

		if op == journalOpEnd {
			return entries, true
		}
		if op != journalOpEntry {
			return nil, false
		}

		if p+bytesPerEntry-1 > len(raw) {
			return nil, false
		}

		blockIndex := binary.LittleEndian.Uint64(raw[p:])
		p += 8

		data := make([]byte, blockSize)
		copy(data, raw[p:p+int(blockSize)])
		p += int(blockSize)

		entries = append(entries, journalEntry{blockIndex: blockIndex, data: data})
	}
}

func validateJournalEntry(e journalEntry, blockSize uint32) error {
	if len(e.data) != int(blockSize) {
		return fmt.Errorf("jbs: journal entry for block %d has %d bytes, want %d", e.blockIndex, len(e.data), blockSize)
	}
	return nil
}
