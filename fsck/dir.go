package fsck

import (
	"github.com/clusterfs/clusterfs/common"
	"github.com/clusterfs/clusterfs/layout"
)

// dirEdge is one pending visit in the directory walk: a directory and the
// parent its ".." must name.
type dirEdge struct {
	parent common.Inum
	dir    common.Inum
}

// clusterAt resolves file cluster index idx of an inode by reading its
// reference tables directly.
func (c *Checker) clusterAt(ip *layout.Inode, idx uint32) (common.Cnum, error) {
	if idx < common.NDirect {
		return ip.D[idx], nil
	}
	if idx < common.NDirect+common.RPC {
		if ip.I1 == common.NullCnum {
			return common.NullCnum, nil
		}
		refs, err := c.readRefs(ip.I1)
		if err != nil {
			return common.NullCnum, err
		}
		return refs[idx-common.NDirect], nil
	}
	if ip.I2 == common.NullCnum {
		return common.NullCnum, nil
	}
	i2refs, err := c.readRefs(ip.I2)
	if err != nil {
		return common.NullCnum, err
	}
	j := (idx - common.NDirect - common.RPC) / common.RPC
	k := (idx - common.NDirect - common.RPC) % common.RPC
	if i2refs[j] == common.NullCnum {
		return common.NullCnum, nil
	}
	refs, err := c.readRefs(i2refs[j])
	if err != nil {
		return common.NullCnum, err
	}
	return refs[k], nil
}

// CheckDirectoryTree walks the directory tree from the root with an explicit
// worklist, verifying "." and ".." of every directory, the inodes behind
// every entry, and that no directory is reachable twice. A final sweep flags
// in-use directory inodes the walk never reached.
func (c *Checker) CheckDirectoryTree() error {
	sb := c.sb
	var bad findings

	stack := []dirEdge{{parent: common.RootInum, dir: common.RootInum}}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if c.inodeHas(e.dir, inodeDirVisited) {
			bad.add(ErrDirLoop, "directory %d reached again under %d", e.dir, e.parent)
			continue
		}
		c.markInode(e.dir, inodeDirVisited)

		ip, err := c.readInode(e.dir)
		if err != nil {
			return err
		}
		if ip.IsFree() || ip.Type() != common.TypeDir {
			bad.add(ErrDirEntryRef, "directory entry names inode %d, which is not an in-use directory", e.dir)
			continue
		}

		total := uint32(ip.Size / uint64(common.DirEntrySize))
		for base := uint32(0); base < total; base += common.DPC {
			cl, err := c.clusterAt(&ip, base/common.DPC)
			if err != nil {
				return err
			}
			if cl == common.NullCnum {
				continue
			}
			if cl >= sb.DZoneTotal {
				bad.add(ErrDirEntryRef, "directory %d entry cluster %d out of range", e.dir, cl)
				continue
			}
			ents, err := c.readDirEntries(cl)
			if err != nil {
				return err
			}
			for i := uint32(0); i < common.DPC && base+i < total; i++ {
				idx := base + i
				ent := &ents[i]
				switch idx {
				case 0:
					if ent.Name != "." || ent.Inum != e.dir {
						bad.add(ErrDotEntry, "directory %d \".\" names %q inode %d", e.dir, ent.Name, ent.Inum)
					}
				case 1:
					if ent.Name != ".." || ent.Inum != e.parent {
						bad.add(ErrDotEntry, "directory %d \"..\" names %q inode %d, want %d",
							e.dir, ent.Name, ent.Inum, e.parent)
					}
				default:
					if ent.IsFree() {
						continue
					}
					if ent.Inum >= sb.ITotal {
						bad.add(ErrDirEntryRef, "directory %d entry %q names inode %d out of range",
							e.dir, ent.Name, ent.Inum)
						continue
					}
					child, err := c.readInode(ent.Inum)
					if err != nil {
						return err
					}
					if child.IsFree() {
						bad.add(ErrDirEntryRef, "directory %d entry %q names free inode %d",
							e.dir, ent.Name, ent.Inum)
						continue
					}
					if child.Type() == common.TypeDir {
						stack = append(stack, dirEdge{parent: e.dir, dir: ent.Inum})
					}
				}
			}
		}
	}

	for n := common.Inum(0); n < sb.ITotal; n++ {
		ip, err := c.readInode(n)
		if err != nil {
			return err
		}
		if !ip.IsFree() && ip.Type() == common.TypeDir && !c.inodeHas(n, inodeDirVisited) {
			bad.add(ErrUnreachable, "directory inode %d unreachable from the root", n)
		}
	}
	return bad.err()
}
