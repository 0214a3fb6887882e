// Package afs implements the Abstract File System: a hierarchical
// POSIX-style filesystem layered on top of a Journaled Block Store. See
// AtAfs.h in the reference corpus for the on-disk layouts this package
// mirrors.
package afs

import (
	"errors"

	"github.com/deploymenttheory/atomicfs/internal/jbs"
)

// Result is the closed error enum named AfsResult in the source material.
// Every exported Afs method returns one of these (wrapped with errors.Is
// support) rather than an ad-hoc error string.
type Result error

// Storage-layer errors, passed through unwrapped from internal/jbs.
var (
	ErrOutOfSpace           Result = jbs.ErrOutOfSpace
	ErrBlockIndexInvalid    Result = jbs.ErrBlockIndexInvalid
	ErrStorageInErrorState  Result = jbs.ErrStorageInErrorState
)

// Structure errors: fatal for the current operation, typically meaning
// store corruption.
var (
	ErrUnexpectedBlockKind  Result = errors.New("afs: unexpected block kind")
	ErrUnsupportedFsVersion Result = errors.New("afs: unsupported fs version")
)

// Object errors.
var (
	ErrInvalidObjId Result = errors.New("afs: invalid obj id")
	ErrObjNotFound  Result = errors.New("afs: object not found")
	ErrObjNotDir    Result = errors.New("afs: object is not a directory")
	ErrObjNotFile   Result = errors.New("afs: object is not a file")
)

// Name errors.
var (
	ErrNameTooLong       Result = errors.New("afs: name too long")
	ErrNameInvalid       Result = errors.New("afs: name invalid")
	ErrNameNotInDir      Result = errors.New("afs: name not in directory")
	ErrNameExists        Result = errors.New("afs: name exists")
	ErrInvalidPathSyntax Result = errors.New("afs: invalid path syntax")
	ErrDirNotFound       Result = errors.New("afs: directory not found")
)

// Tree-state errors.
var (
	ErrDirNotEmpty           Result = errors.New("afs: directory not empty")
	ErrFileNotEmpty          Result = errors.New("afs: file not empty")
	ErrMetaDataTooLong       Result = errors.New("afs: metadata too long")
	ErrMetaDataCannotChangeLen Result = errors.New("afs: metadata cannot change length")
	ErrMoveDestInvalid       Result = errors.New("afs: move destination invalid")
	ErrInvalidOffset         Result = errors.New("afs: invalid offset")
)
