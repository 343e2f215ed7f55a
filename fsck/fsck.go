// Package fsck validates the on-disk structures of a clusterfs volume. It
// reads the device directly and trusts nothing: every superblock field, list
// link and reference is re-derived and cross-checked.
//
// Checks run in two phases. The structural validators stop at the first
// error, since later checks depend on the structures earlier ones validate.
// The accumulating scans (the cluster reference map and the directory walk)
// record every finding before reporting.
package fsck

import (
	"fmt"
	"io"

	"github.com/clusterfs/clusterfs/common"
	"github.com/clusterfs/clusterfs/device"
	"github.com/clusterfs/clusterfs/layout"
)

// Per-inode status flags accumulated while checking.
const (
	inodeSeen uint8 = 1 << iota
	inodeInList
	inodeDirVisited
)

// Per-cluster status flags accumulated while checking.
const (
	clustInRetriev uint8 = 1 << iota
	clustInInsert
	clustInList
	clustReferenced
	clustWalked
)

type Checker struct {
	dev *device.Device
	sb  *layout.SuperBlock

	inodeFlags []uint8
	clustFlags []uint8
	// owner maps each referenced cluster to the inode that references it.
	owner map[common.Cnum]common.Inum
}

// New reads the superblock of the volume under check. No field is trusted
// until the corresponding check has passed.
func New(dev *device.Device) (*Checker, error) {
	blk, err := dev.ReadBlock(0)
	if err != nil {
		return nil, err
	}
	sb := layout.DecodeSuperBlock(blk)
	c := &Checker{dev: dev, sb: sb}
	if sb.ITotal > 0 && uint64(sb.ITotal) < dev.Size()*uint64(common.IPB) {
		c.inodeFlags = make([]uint8, sb.ITotal)
	}
	if sb.DZoneTotal > 0 && uint64(sb.DZoneTotal)*uint64(common.BlocksPerCluster) <= dev.Size() {
		c.clustFlags = make([]uint8, sb.DZoneTotal)
	}
	c.owner = make(map[common.Cnum]common.Inum)
	return c, nil
}

// SuperBlock exposes the superblock image under check.
func (c *Checker) SuperBlock() *layout.SuperBlock {
	return c.sb
}

func (c *Checker) readInode(n common.Inum) (layout.Inode, error) {
	bn, idx := c.sb.InodeBlock(n)
	blk, err := c.dev.ReadBlock(bn)
	if err != nil {
		return layout.Inode{}, err
	}
	return layout.GetInode(blk, idx), nil
}

func (c *Checker) readHead(cl common.Cnum) (layout.ClusterHead, error) {
	return c.dev.ReadClusterHead(c.sb.ClusterBlock(cl))
}

func (c *Checker) readRefs(cl common.Cnum) ([]common.Cnum, error) {
	body, err := c.dev.ReadClusterBody(c.sb.ClusterBlock(cl))
	if err != nil {
		return nil, err
	}
	return layout.DecodeRefs(body), nil
}

func (c *Checker) readDirEntries(cl common.Cnum) ([]layout.DirEntry, error) {
	body, err := c.dev.ReadClusterBody(c.sb.ClusterBlock(cl))
	if err != nil {
		return nil, err
	}
	return layout.DecodeDirEntries(body), nil
}

func (c *Checker) markInode(n common.Inum, fl uint8) {
	if c.inodeFlags != nil && uint32(n) < uint32(len(c.inodeFlags)) {
		c.inodeFlags[n] |= fl
	}
}

func (c *Checker) markCluster(cl common.Cnum, fl uint8) {
	if c.clustFlags != nil && uint32(cl) < uint32(len(c.clustFlags)) {
		c.clustFlags[cl] |= fl
	}
}

func (c *Checker) inodeHas(n common.Inum, fl uint8) bool {
	return c.inodeFlags != nil && uint32(n) < uint32(len(c.inodeFlags)) &&
		c.inodeFlags[n]&fl != 0
}

func (c *Checker) clusterHas(cl common.Cnum, fl uint8) bool {
	return c.clustFlags != nil && uint32(cl) < uint32(len(c.clustFlags)) &&
		c.clustFlags[cl]&fl != 0
}

// step is one named check in the standard sequence.
type step struct {
	name string
	fn   func() error
}

func (c *Checker) steps() []step {
	return []step{
		{"super block header integrity", c.CheckSuperBlockHeader},
		{"super block inode table metadata integrity", c.CheckInodeMetadata},
		{"super block data zone metadata integrity", c.CheckDZoneMetadata},
		{"inode table integrity", c.CheckInodeTable},
		{"inode linked list integrity", c.CheckInodeList},
		{"cluster caches integrity", c.CheckClusterCaches},
		{"data zone integrity", c.CheckDataZone},
		{"cluster linked list integrity", c.CheckClusterList},
		{"cluster reference map", c.CheckReferences},
		{"directory tree", c.CheckDirectoryTree},
	}
}

// Run executes every check in order, reporting progress to w. It stops at
// the first failed check and returns its error; on a corrupt finding the
// accumulated status tables are dumped to w as well.
func (c *Checker) Run(w io.Writer) error {
	for _, s := range c.steps() {
		fmt.Fprintf(w, "Checking %s...\t", s.name)
		if err := s.fn(); err != nil {
			fmt.Fprintf(w, "[ERROR]\n%v\n", err)
			c.dumpTables(w)
			return err
		}
		fmt.Fprintf(w, "[OK]\n")
	}
	return nil
}

// dumpTables prints the non-zero entries of the accumulated status tables.
func (c *Checker) dumpTables(w io.Writer) {
	for n, fl := range c.inodeFlags {
		if fl != 0 {
			fmt.Fprintf(w, "inode %d: flags %#x\n", n, fl)
		}
	}
	for cl, fl := range c.clustFlags {
		if fl != 0 {
			owner, ok := c.owner[common.Cnum(cl)]
			if ok {
				fmt.Fprintf(w, "cluster %d: flags %#x owner %d\n", cl, fl, owner)
			} else {
				fmt.Fprintf(w, "cluster %d: flags %#x\n", cl, fl)
			}
		}
	}
}
