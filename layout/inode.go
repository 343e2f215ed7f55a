package layout

import (
	"github.com/tchajed/goose/machine/disk"
	"github.com/tchajed/marshal"

	"github.com/clusterfs/clusterfs/common"
)

// Inode is the in-memory image of one inode table slot.
//
// VD1 and VD2 are dual-use fields. While the inode is in use they hold the
// access and modification times; while it sits in the free list they hold the
// next and prev list links. The named views below pick the right reading, so
// code never touches VD1/VD2 directly.
type Inode struct {
	Mode     uint32
	RefCount uint32
	Owner    uint32
	Group    uint32
	Size     uint64
	CluCount uint32
	VD1      uint32
	VD2      uint32
	D        [common.NDirect]common.Cnum
	I1       common.Cnum
	I2       common.Cnum
}

// In-use view of the dual-use fields.

func (ip *Inode) ATime() uint32       { return ip.VD1 }
func (ip *Inode) SetATime(t uint32)   { ip.VD1 = t }
func (ip *Inode) MTime() uint32       { return ip.VD2 }
func (ip *Inode) SetMTime(t uint32)   { ip.VD2 = t }

// Free view of the dual-use fields.

func (ip *Inode) Next() common.Inum     { return ip.VD1 }
func (ip *Inode) SetNext(n common.Inum) { ip.VD1 = n }
func (ip *Inode) Prev() common.Inum     { return ip.VD2 }
func (ip *Inode) SetPrev(n common.Inum) { ip.VD2 = n }

// IsFree reports whether the inode sits in the free list.
func (ip *Inode) IsFree() bool {
	return ip.Mode&common.InodeFree != 0
}

// Type extracts the file type bits from the mode.
func (ip *Inode) Type() uint32 {
	return ip.Mode & common.TypeMask
}

// LegalType reports whether the type bits name exactly one legal file type.
func (ip *Inode) LegalType() bool {
	switch ip.Type() {
	case common.TypeDir, common.TypeFile, common.TypeSymlink:
		return true
	}
	return false
}

// IsClean reports whether a free inode is in the clean state: no cluster
// references and zeroed size and counts.
func (ip *Inode) IsClean() bool {
	if ip.Size != 0 || ip.CluCount != 0 || ip.RefCount != 0 {
		return false
	}
	for i := uint32(0); i < common.NDirect; i++ {
		if ip.D[i] != common.NullCnum {
			return false
		}
	}
	return ip.I1 == common.NullCnum && ip.I2 == common.NullCnum
}

func (ip *Inode) encode() []byte {
	enc := marshal.NewEnc(uint64(common.InodeSize))
	enc.PutInt32(ip.Mode)
	enc.PutInt32(ip.RefCount)
	enc.PutInt32(ip.Owner)
	enc.PutInt32(ip.Group)
	enc.PutInt(ip.Size)
	enc.PutInt32(ip.CluCount)
	enc.PutInt32(ip.VD1)
	enc.PutInt32(ip.VD2)
	for i := uint32(0); i < common.NDirect; i++ {
		enc.PutInt32(ip.D[i])
	}
	enc.PutInt32(ip.I1)
	enc.PutInt32(ip.I2)
	return enc.Finish()
}

func decodeInode(b []byte) Inode {
	var ip Inode
	dec := marshal.NewDec(b)
	ip.Mode = dec.GetInt32()
	ip.RefCount = dec.GetInt32()
	ip.Owner = dec.GetInt32()
	ip.Group = dec.GetInt32()
	ip.Size = dec.GetInt()
	ip.CluCount = dec.GetInt32()
	ip.VD1 = dec.GetInt32()
	ip.VD2 = dec.GetInt32()
	for i := uint32(0); i < common.NDirect; i++ {
		ip.D[i] = dec.GetInt32()
	}
	ip.I1 = dec.GetInt32()
	ip.I2 = dec.GetInt32()
	return ip
}

// GetInode extracts inode idx from an inode table block.
func GetInode(blk disk.Block, idx uint32) Inode {
	off := idx * common.InodeSize
	return decodeInode(blk[off : off+common.InodeSize])
}

// PutInode stores an inode into slot idx of an inode table block.
func PutInode(blk disk.Block, idx uint32, ip *Inode) {
	off := idx * common.InodeSize
	copy(blk[off:off+common.InodeSize], ip.encode())
}
