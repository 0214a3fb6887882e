package jbs

import "errors"

// Sentinel errors returned by Store, per spec.md §4.3.7 / §7 "Storage-layer
// errors". internal/afs passes these through unwrapped where the
// specification calls for pass-through.
var (
	// ErrOutOfSpace is returned by AddNewBlock when MaxNrBlocks would be
	// exceeded.
	ErrOutOfSpace = errors.New("jbs: out of space")

	// ErrBlockIndexInvalid is returned by ObtainBlock/ObtainBlockForOverwrite
	// when the requested index is past the current logical size.
	ErrBlockIndexInvalid = errors.New("jbs: block index invalid")

	// ErrStorageInErrorState is returned when the store is in a
	// Recoverable_* state that could not be cleared by a recovery attempt,
	// or in the Unrecoverable state.
	ErrStorageInErrorState = errors.New("jbs: storage in error state")
)
