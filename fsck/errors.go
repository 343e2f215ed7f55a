package fsck

import "errors"

// Superblock checks.
var (
	ErrMagic       = errors.New("invalid magic number")
	ErrVersion     = errors.New("invalid version number")
	ErrName        = errors.New("inconsistent name string")
	ErrMStat       = errors.New("inconsistent mount status flag")
	ErrNTotal      = errors.New("inconsistent total block count")
	ErrITableStart = errors.New("inconsistent inode table start")
	ErrITableSize  = errors.New("inconsistent inode table size")
	ErrITotal      = errors.New("inconsistent total inode count")
	ErrIFree       = errors.New("inconsistent free inode count")
	ErrDZoneStart  = errors.New("inconsistent data zone start")
	ErrDZoneTotal  = errors.New("inconsistent data zone total")
	ErrDZoneFree   = errors.New("inconsistent free cluster count")
)

// Inode table and free list checks.
var (
	ErrInodeRef        = errors.New("inconsistent inode linked list reference")
	ErrInodeHead       = errors.New("inconsistent inode linked list head")
	ErrInodeTail       = errors.New("inconsistent inode linked list tail")
	ErrInodeFreeCount  = errors.New("free inode count does not match the table")
	ErrInodeNotFree    = errors.New("inode in the free list is not free")
	ErrInodeListLoop   = errors.New("inode linked list might have a loop")
	ErrInodeListBroken = errors.New("inode linked list is broken")
)

// Cluster cache, data zone and free list checks.
var (
	ErrRetrievIdx     = errors.New("retrieval cache index out of bounds")
	ErrRetrievRef     = errors.New("retrieval cache references an unusable cluster")
	ErrRetrievDirty   = errors.New("retrieval cache cluster is not clean")
	ErrInsertIdx      = errors.New("insertion cache index out of bounds")
	ErrInsertRef      = errors.New("insertion cache references an unusable cluster")
	ErrCacheDup       = errors.New("cluster cached more than once")
	ErrClusterHead    = errors.New("inconsistent cluster linked list head")
	ErrClusterTail    = errors.New("inconsistent cluster linked list tail")
	ErrClusterRef     = errors.New("inconsistent cluster linked list reference")
	ErrClusterLoop    = errors.New("cluster linked list might have a loop")
	ErrClusterBroken  = errors.New("cluster linked list is broken")
	ErrOrphanCluster  = errors.New("free cluster outside every free structure")
	ErrConservation   = errors.New("free cluster count does not match the free structures")
)

// Reference map and directory tree checks.
var (
	ErrBadRef       = errors.New("inode references a cluster out of range")
	ErrDoubleRef    = errors.New("cluster referenced more than once")
	ErrStatMismatch = errors.New("cluster stat does not name its referencing inode")
	ErrCluCount     = errors.New("inode cluster count does not match its references")
	ErrDirEntryRef  = errors.New("directory entry references an unusable inode")
	ErrDotEntry     = errors.New("directory \".\" or \"..\" entry is wrong")
	ErrDirLoop      = errors.New("directory tree has a loop")
	ErrUnreachable  = errors.New("directory inode unreachable from the root")
)
