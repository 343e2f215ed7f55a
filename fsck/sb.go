package fsck

import (
	"fmt"

	"github.com/clusterfs/clusterfs/common"
	"github.com/clusterfs/clusterfs/layout"
	"github.com/clusterfs/clusterfs/util"
)

// CheckSuperBlockHeader validates the identity fields of the superblock.
func (c *Checker) CheckSuperBlockHeader() error {
	sb := c.sb
	if sb.Magic != layout.Magic {
		return fmt.Errorf("magic %#x: %w", sb.Magic, ErrMagic)
	}
	if sb.Version != layout.Version {
		return fmt.Errorf("version %#x: %w", sb.Version, ErrVersion)
	}
	if uint32(len(sb.Name)) >= layout.NameSize {
		return fmt.Errorf("name %q: %w", sb.Name, ErrName)
	}
	if sb.MStat != layout.MStatProperlyUnmounted && sb.MStat != layout.MStatMounted {
		return fmt.Errorf("mstat %d: %w", sb.MStat, ErrMStat)
	}
	if uint64(sb.NTotal) != c.dev.Size() {
		return fmt.Errorf("ntotal %d on a %d-block device: %w",
			sb.NTotal, c.dev.Size(), ErrNTotal)
	}
	return nil
}

// CheckInodeMetadata validates the inode table fields of the superblock.
func (c *Checker) CheckInodeMetadata() error {
	sb := c.sb
	if sb.ITableStart != 1 {
		return fmt.Errorf("itable start %d: %w", sb.ITableStart, ErrITableStart)
	}
	if sb.ITableSize != uint32(util.RoundUp(uint64(sb.ITotal), uint64(common.IPB))) {
		return fmt.Errorf("itable size %d for %d inodes: %w",
			sb.ITableSize, sb.ITotal, ErrITableSize)
	}
	if sb.ITotal == 0 || uint64(sb.ITableStart+sb.ITableSize) >= c.dev.Size() {
		return fmt.Errorf("itotal %d: %w", sb.ITotal, ErrITotal)
	}
	// Inode 0 is always in use, so at most itotal-1 inodes are free.
	if sb.IFree > sb.ITotal-1 {
		return fmt.Errorf("ifree %d of %d: %w", sb.IFree, sb.ITotal, ErrIFree)
	}
	if sb.IFree == 0 {
		if sb.IHead != common.NullInum || sb.ITail != common.NullInum {
			return fmt.Errorf("empty list with head %d tail %d: %w",
				sb.IHead, sb.ITail, ErrIFree)
		}
		return nil
	}
	if sb.IHead == common.NullInum || sb.IHead >= sb.ITotal {
		return fmt.Errorf("ihead %d: %w", sb.IHead, ErrIFree)
	}
	if sb.ITail == common.NullInum || sb.ITail >= sb.ITotal {
		return fmt.Errorf("itail %d: %w", sb.ITail, ErrIFree)
	}
	return nil
}

// CheckDZoneMetadata validates the data zone fields of the superblock
// against the device geometry.
func (c *Checker) CheckDZoneMetadata() error {
	sb := c.sb
	if sb.DZoneStart != sb.ITableStart+sb.ITableSize {
		return fmt.Errorf("dzone start %d: %w", sb.DZoneStart, ErrDZoneStart)
	}
	want := (uint32(c.dev.Size()) - 1 - sb.ITableSize) / common.BlocksPerCluster
	if sb.DZoneTotal != want {
		return fmt.Errorf("dzone total %d, want %d: %w", sb.DZoneTotal, want, ErrDZoneTotal)
	}
	// Cluster 0 always holds the root directory.
	if sb.DZoneFree > sb.DZoneTotal-1 {
		return fmt.Errorf("dzone free %d of %d: %w",
			sb.DZoneFree, sb.DZoneTotal, ErrDZoneFree)
	}
	return nil
}
