// Package mkfs formats a block device as a clusterfs volume.
package mkfs

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/tchajed/goose/machine/disk"

	"github.com/clusterfs/clusterfs/common"
	"github.com/clusterfs/clusterfs/device"
	"github.com/clusterfs/clusterfs/layout"
	"github.com/clusterfs/clusterfs/util"
)

// Options control the geometry and identity of the new volume.
type Options struct {
	// Name is the volume name, truncated to the on-disk field.
	Name string
	// Inodes requests a total inode count; 0 derives one block of inodes
	// per eight blocks of device.
	Inodes uint32
	// Zero wipes every data cluster body instead of only writing headers.
	Zero bool
}

// Format writes a fresh volume onto the device and returns its superblock.
// The magic number is held at a provisional value until every structure is in
// place, so an interrupted format is never mistaken for a valid volume.
func Format(dev *device.Device, opts Options) (*layout.SuperBlock, error) {
	ntotal := uint32(dev.Size())
	if ntotal < 4 {
		return nil, fmt.Errorf("device too small (%d blocks): %w", ntotal, common.ErrInval)
	}

	itotal := opts.Inodes
	if itotal == 0 {
		itotal = ntotal / 8
		if itotal == 0 {
			itotal = common.IPB
		}
	}
	iblktotal := uint32(util.RoundUp(uint64(itotal), uint64(common.IPB)))
	if iblktotal == 0 {
		iblktotal = 1
	}
	if iblktotal >= ntotal-1 {
		return nil, fmt.Errorf("inode table does not fit (%d blocks): %w",
			iblktotal, common.ErrInval)
	}
	nclusttotal := (ntotal - 1 - iblktotal) / common.BlocksPerCluster
	if nclusttotal < 2 {
		return nil, fmt.Errorf("data zone too small (%d clusters): %w",
			nclusttotal, common.ErrInval)
	}
	// Leftover blocks that cannot form a whole cluster join the inode table.
	iblktotal = ntotal - 1 - nclusttotal*common.BlocksPerCluster
	itotal = iblktotal * common.IPB

	sb := &layout.SuperBlock{
		Magic:       layout.ProvisionalMagic,
		Version:     layout.Version,
		Name:        opts.Name,
		Serial:      uuid.New(),
		MStat:       layout.MStatProperlyUnmounted,
		NTotal:      ntotal,
		ITableStart: 1,
		ITableSize:  iblktotal,
		ITotal:      itotal,
		IFree:       itotal - 1,
		IHead:       1,
		ITail:       itotal - 1,
		DZoneStart:  1 + iblktotal,
		DZoneTotal:  nclusttotal,
		DZoneFree:   nclusttotal - 1,
		DHead:       1,
		DTail:       nclusttotal - 1,
	}
	sb.Retriev.Idx = common.DZoneCacheSize
	sb.Insert.Idx = 0
	for i := uint32(0); i < common.DZoneCacheSize; i++ {
		sb.Retriev.Ref[i] = common.NullCnum
		sb.Insert.Ref[i] = common.NullCnum
	}
	util.DPrintf(1, "mkfs: %d blocks, %d inodes, %d clusters", ntotal, itotal, nclusttotal)

	if err := dev.WriteBlock(0, sb.Encode()); err != nil {
		return nil, err
	}
	if err := fillInodeTable(dev, sb); err != nil {
		return nil, err
	}
	if err := fillRootDir(dev, sb); err != nil {
		return nil, err
	}
	if err := fillFreeClusters(dev, sb, opts.Zero); err != nil {
		return nil, err
	}

	sb.Magic = layout.Magic
	if err := dev.WriteBlock(0, sb.Encode()); err != nil {
		return nil, err
	}
	dev.Barrier()
	return sb, nil
}

// fillInodeTable writes inode 0 as the root directory and threads every other
// inode into the free list.
func fillInodeTable(dev *device.Device, sb *layout.SuperBlock) error {
	t := uint32(time.Now().Unix())
	n := common.Inum(0)
	for b := uint32(0); b < sb.ITableSize; b++ {
		blk := make(disk.Block, disk.BlockSize)
		for i := uint32(0); i < common.IPB; i++ {
			var ip layout.Inode
			for k := uint32(0); k < common.NDirect; k++ {
				ip.D[k] = common.NullCnum
			}
			ip.I1 = common.NullCnum
			ip.I2 = common.NullCnum
			if n == common.RootInum {
				ip.Mode = common.TypeDir | common.PermAll
				ip.RefCount = 2
				ip.Owner = uint32(os.Getuid())
				ip.Group = uint32(os.Getgid())
				ip.Size = uint64(common.DPC) * uint64(common.DirEntrySize)
				ip.CluCount = 1
				ip.SetATime(t)
				ip.SetMTime(t)
				ip.D[0] = 0
			} else {
				ip.Mode = common.InodeFree
				if n == sb.ITotal-1 {
					ip.SetNext(common.NullInum)
				} else {
					ip.SetNext(n + 1)
				}
				if n == 1 {
					ip.SetPrev(common.NullInum)
				} else {
					ip.SetPrev(n - 1)
				}
			}
			layout.PutInode(blk, i, &ip)
			n++
		}
		if err := dev.WriteBlock(uint64(sb.ITableStart+b), blk); err != nil {
			return err
		}
	}
	return nil
}

// fillRootDir seeds cluster 0 with the root directory's "." and ".." table.
func fillRootDir(dev *device.Device, sb *layout.SuperBlock) error {
	head := layout.ClusterHead{
		Prev: common.NullCnum,
		Next: common.NullCnum,
		Stat: common.RootInum,
	}
	bn := sb.ClusterBlock(0)
	first := make(disk.Block, disk.BlockSize)
	copy(first, head.Encode())
	if err := dev.WriteBlock(bn, first); err != nil {
		return err
	}
	ents := layout.NullDirEntries()
	ents[0] = layout.DirEntry{Name: ".", Inum: common.RootInum}
	ents[1] = layout.DirEntry{Name: "..", Inum: common.RootInum}
	return dev.WriteClusterBody(bn, layout.EncodeDirEntries(ents))
}

// fillFreeClusters threads clusters 1..N-1 into the on-disk free list.
func fillFreeClusters(dev *device.Device, sb *layout.SuperBlock, zero bool) error {
	for c := common.Cnum(1); c < sb.DZoneTotal; c++ {
		head := layout.ClusterHead{
			Prev: c - 1,
			Next: c + 1,
			Stat: common.NullInum,
		}
		if c == 1 {
			head.Prev = common.NullCnum
		}
		if c == sb.DZoneTotal-1 {
			head.Next = common.NullCnum
		}
		bn := sb.ClusterBlock(c)
		if zero {
			first := make(disk.Block, disk.BlockSize)
			copy(first, head.Encode())
			if err := dev.WriteBlock(bn, first); err != nil {
				return err
			}
			for i := uint64(1); i < uint64(common.BlocksPerCluster); i++ {
				if err := dev.WriteBlock(bn+i, make(disk.Block, disk.BlockSize)); err != nil {
					return err
				}
			}
		} else {
			if err := dev.WriteClusterHead(bn, &head); err != nil {
				return err
			}
		}
	}
	return nil
}
