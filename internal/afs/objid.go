package afs

import "fmt"

// ObjId identifies one directory or file: the block index of its top node,
// disambiguated by a monotonically increasing unique_id so a stale ObjId
// captured before a delete never resolves to a later reincarnation at the
// same block index (spec §3.4, scenario S6).
type ObjId struct {
	UniqueId uint64
	Index    uint64
}

// None is the reserved zero-value ObjId, never a valid object.
var None = ObjId{UniqueId: 0, Index: 0}

// rootUniqueId is the unique_id stamped on the root directory's top node;
// it is always the first object created by Init, before NextUniqueId
// advances past 1. The root's block index is not fixed (block 0 is the
// master block, spec §3.7) and must be read from the master block instead
// — see Afs.Root.
const rootUniqueId = 1

// IsNone reports whether id is the reserved None value.
func (id ObjId) IsNone() bool { return id == None }

func (id ObjId) String() string {
	return fmt.Sprintf("ObjId(%d,%d)", id.UniqueId, id.Index)
}
