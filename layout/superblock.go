// Package layout defines the on-disk structures of a clusterfs volume and
// their codecs: the superblock, the inode, the data cluster header, and the
// directory entry.
//
// Block 0 holds the superblock. The inode table starts at block 1. The data
// zone follows, carved into clusters of common.BlocksPerCluster blocks each.
package layout

import (
	"bytes"

	"github.com/google/uuid"
	"github.com/tchajed/goose/machine/disk"
	"github.com/tchajed/marshal"

	"github.com/clusterfs/clusterfs/common"
)

const (
	// Magic identifies a complete clusterfs volume.
	Magic uint32 = 0x50FC
	// ProvisionalMagic is written while a volume is being formatted.
	ProvisionalMagic uint32 = 0xFFFF
	// Version is the layout version.
	Version uint32 = 0x2011

	// NameSize is the size of the volume name field, including the
	// terminating NUL.
	NameSize uint32 = 24

	// MStatProperlyUnmounted and MStatMounted are the legal mount states.
	MStatProperlyUnmounted uint32 = 0
	MStatMounted           uint32 = 1
)

// FCNode is one free-cluster cache in the superblock. The retrieval cache is
// consumed from Idx up to capacity (Idx == DZoneCacheSize means empty); the
// insertion cache is filled from 0 up to Idx (Idx == 0 means empty).
type FCNode struct {
	Idx uint32
	Ref [common.DZoneCacheSize]common.Cnum
}

// SuperBlock is the in-memory image of block 0.
type SuperBlock struct {
	Magic   uint32
	Version uint32
	Name    string
	Serial  uuid.UUID
	MStat   uint32

	NTotal      uint32
	ITableStart uint32
	ITableSize  uint32
	ITotal      uint32
	IFree       uint32
	IHead       common.Inum
	ITail       common.Inum

	DZoneStart uint32
	DZoneTotal uint32
	DZoneFree  uint32
	Retriev    FCNode
	Insert     FCNode
	DHead      common.Cnum
	DTail      common.Cnum
}

func putFCNode(enc *marshal.Enc, fc *FCNode) {
	enc.PutInt32(fc.Idx)
	for i := uint32(0); i < common.DZoneCacheSize; i++ {
		enc.PutInt32(fc.Ref[i])
	}
}

func getFCNode(dec *marshal.Dec, fc *FCNode) {
	fc.Idx = dec.GetInt32()
	for i := uint32(0); i < common.DZoneCacheSize; i++ {
		fc.Ref[i] = dec.GetInt32()
	}
}

// Encode lays the superblock out as a full block.
func (sb *SuperBlock) Encode() disk.Block {
	enc := marshal.NewEnc(disk.BlockSize)
	enc.PutInt32(sb.Magic)
	enc.PutInt32(sb.Version)
	name := make([]byte, NameSize)
	copy(name, sb.Name)
	name[NameSize-1] = 0
	enc.PutBytes(name)
	enc.PutBytes(sb.Serial[:])
	enc.PutInt32(sb.MStat)
	enc.PutInt32(sb.NTotal)
	enc.PutInt32(sb.ITableStart)
	enc.PutInt32(sb.ITableSize)
	enc.PutInt32(sb.ITotal)
	enc.PutInt32(sb.IFree)
	enc.PutInt32(sb.IHead)
	enc.PutInt32(sb.ITail)
	enc.PutInt32(sb.DZoneStart)
	enc.PutInt32(sb.DZoneTotal)
	enc.PutInt32(sb.DZoneFree)
	putFCNode(&enc, &sb.Retriev)
	putFCNode(&enc, &sb.Insert)
	enc.PutInt32(sb.DHead)
	enc.PutInt32(sb.DTail)
	return enc.Finish()
}

// DecodeSuperBlock reads a superblock image back from block 0.
func DecodeSuperBlock(b disk.Block) *SuperBlock {
	sb := &SuperBlock{}
	dec := marshal.NewDec(b)
	sb.Magic = dec.GetInt32()
	sb.Version = dec.GetInt32()
	name := dec.GetBytes(uint64(NameSize))
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	sb.Name = string(name)
	copy(sb.Serial[:], dec.GetBytes(16))
	sb.MStat = dec.GetInt32()
	sb.NTotal = dec.GetInt32()
	sb.ITableStart = dec.GetInt32()
	sb.ITableSize = dec.GetInt32()
	sb.ITotal = dec.GetInt32()
	sb.IFree = dec.GetInt32()
	sb.IHead = dec.GetInt32()
	sb.ITail = dec.GetInt32()
	sb.DZoneStart = dec.GetInt32()
	sb.DZoneTotal = dec.GetInt32()
	sb.DZoneFree = dec.GetInt32()
	getFCNode(&dec, &sb.Retriev)
	getFCNode(&dec, &sb.Insert)
	sb.DHead = dec.GetInt32()
	sb.DTail = dec.GetInt32()
	return sb
}

// RetrievUsed reports how many references are staged in the retrieval cache.
func (sb *SuperBlock) RetrievUsed() uint32 {
	return common.DZoneCacheSize - sb.Retriev.Idx
}

// InsertUsed reports how many references are staged in the insertion cache.
func (sb *SuperBlock) InsertUsed() uint32 {
	return sb.Insert.Idx
}

// ClusterBlock gives the first physical block of a logical cluster.
func (sb *SuperBlock) ClusterBlock(c common.Cnum) uint64 {
	return uint64(sb.DZoneStart) + uint64(c)*uint64(common.BlocksPerCluster)
}

// InodeBlock gives the physical block holding inode n and its index within
// that block.
func (sb *SuperBlock) InodeBlock(n common.Inum) (uint64, uint32) {
	return uint64(sb.ITableStart) + uint64(n/common.IPB), n % common.IPB
}
