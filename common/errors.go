package common

import "errors"

// Structural consistency errors. These mirror the error classes raised by the
// low-level checkers: each names the structure found inconsistent, not the
// operation that tripped over it.
var (
	ErrInval   = errors.New("invalid argument")
	ErrNoSpace = errors.New("no space left on volume")

	// ErrInodeInUseInval reports an in-use inode with illegal contents.
	ErrInodeInUseInval = errors.New("in-use inode is inconsistent")
	// ErrFreeInodeInval reports a free inode with illegal contents.
	ErrFreeInodeInval = errors.New("free inode is inconsistent")
	// ErrFreeDirtyInodeInval reports a free inode expected to be dirty.
	ErrFreeDirtyInodeInval = errors.New("free inode in dirty state is inconsistent")
	// ErrClusterInval reports an inconsistent data cluster header.
	ErrClusterInval = errors.New("data cluster header is inconsistent")
	// ErrClusterInFreeList reports a cluster unexpectedly in the free structures.
	ErrClusterInFreeList = errors.New("data cluster is already in a free structure")
	// ErrClusterReferenced reports a reference slot that is already occupied.
	ErrClusterReferenced = errors.New("data cluster is already in the reference list")
	// ErrClusterNotReferenced reports a reference slot that is unoccupied.
	ErrClusterNotReferenced = errors.New("data cluster is not in the reference list")
	// ErrWrongOwner reports a cluster whose stat field names another inode.
	ErrWrongOwner = errors.New("data cluster belongs to another inode")
	// ErrCorrupt reports an inconsistency at a lower storage level.
	ErrCorrupt = errors.New("storage structure is corrupt")
)

// Directory and path errors.
var (
	ErrAccess      = errors.New("permission denied")
	ErrPerm        = errors.New("operation not permitted")
	ErrNotFound    = errors.New("no such entry")
	ErrExists      = errors.New("entry already exists")
	ErrNotDir      = errors.New("not a directory")
	ErrNotEmpty    = errors.New("directory not empty")
	ErrNameTooLong = errors.New("name too long")
	ErrTooManyLinks = errors.New("too many links")
	ErrFileTooBig  = errors.New("file too big")
	ErrLoop        = errors.New("too many symbolic links")
	ErrRelPath     = errors.New("path is not absolute")
)
