package common

import (
	"github.com/tchajed/goose/machine/disk"
)

const (
	// InodeSize is the on-disk size of one inode.
	InodeSize uint32 = 128
	// IPB is the number of inodes per block.
	IPB uint32 = uint32(disk.BlockSize) / InodeSize

	// BlocksPerCluster is the number of physical blocks in one data cluster.
	BlocksPerCluster uint32 = 4
	// ClusterSize is the total byte size of a data cluster.
	ClusterSize uint32 = BlocksPerCluster * uint32(disk.BlockSize)
	// ClusterHdrSize is the byte size of the cluster header (prev, next, stat
	// plus reserved space).
	ClusterHdrSize uint32 = 64
	// ClusterBodySize is the byte size of the cluster payload.
	ClusterBodySize uint32 = ClusterSize - ClusterHdrSize

	// NDirect is the number of direct references in an inode.
	NDirect uint32 = 7
	// RPC is the number of cluster references held by an indirection cluster.
	RPC uint32 = ClusterBodySize / 4
	// DPC is the number of directory entries held by a cluster.
	DPC uint32 = ClusterBodySize / DirEntrySize

	// DirEntrySize is the on-disk size of one directory entry.
	DirEntrySize uint32 = 64
	// MaxName is the maximum length of a directory entry name.
	MaxName uint32 = DirEntrySize - 4 - 1

	// MaxFileClusters is the number of addressable clusters in one file.
	MaxFileClusters uint32 = NDirect + RPC + RPC*RPC

	// DZoneCacheSize is the capacity of each free-cluster cache in the
	// superblock.
	DZoneCacheSize uint32 = 50
)

// Inum is an inode number (an index into the inode table).
type Inum = uint32

// Cnum is a logical data cluster number (an index into the data zone).
type Cnum = uint32

const (
	// NullInum marks an absent inode reference.
	NullInum Inum = 0xFFFFFFFF
	// NullCnum marks an absent cluster reference.
	NullCnum Cnum = 0xFFFFFFFF

	// RootInum is the inode of the root directory.
	RootInum Inum = 0
)

// Inode mode bits. The low nine bits are the usual rwx permission triples.
const (
	PermOtherX uint32 = 0x0001
	PermOtherW uint32 = 0x0002
	PermOtherR uint32 = 0x0004
	PermGroupX uint32 = 0x0008
	PermGroupW uint32 = 0x0010
	PermGroupR uint32 = 0x0020
	PermOwnerX uint32 = 0x0040
	PermOwnerW uint32 = 0x0080
	PermOwnerR uint32 = 0x0100

	PermAll uint32 = 0x01FF

	TypeDir     uint32 = 0x0200
	TypeFile    uint32 = 0x0400
	TypeSymlink uint32 = 0x0800
	TypeMask    uint32 = 0x0E00

	// InodeFree is set while the inode sits in the free list.
	InodeFree uint32 = 0x1000
)

// Access operation bits for permission checks.
const (
	X uint32 = 0x1
	W uint32 = 0x2
	R uint32 = 0x4
)

// MaxRefCount is the hard link limit for an inode.
const MaxRefCount uint32 = 0xFFFF
