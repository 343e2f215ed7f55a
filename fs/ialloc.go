package fs

import (
	"fmt"
	"os"

	"github.com/clusterfs/clusterfs/common"
	"github.com/clusterfs/clusterfs/layout"
	"github.com/clusterfs/clusterfs/util"
)

// AllocInode takes the head of the free inode list and initializes it as an
// in-use inode of the given type with empty permissions, the caller's
// uid/gid, and no data. A dirty inode is cleaned before reuse.
func (f *FileSystem) AllocInode(typ uint32) (common.Inum, error) {
	switch typ {
	case common.TypeDir, common.TypeFile, common.TypeSymlink:
	default:
		return common.NullInum, fmt.Errorf("bad inode type %#x: %w", typ, common.ErrInval)
	}
	if f.sb.IFree == 0 {
		return common.NullInum, fmt.Errorf("no free inodes: %w", common.ErrNoSpace)
	}

	n := f.sb.IHead
	ip, err := f.readInodeRaw(n)
	if err != nil {
		return common.NullInum, err
	}
	if !ip.IsFree() {
		return common.NullInum, fmt.Errorf("free list head %d is in use: %w",
			n, common.ErrFreeInodeInval)
	}

	// Unlink the head and commit the superblock before any cleaning, so a
	// FreeDataCluster issued while cleaning sees consistent list state.
	if f.sb.IFree == 1 {
		f.sb.IHead = common.NullInum
		f.sb.ITail = common.NullInum
	} else {
		f.sb.IHead = ip.Next()
		if f.sb.IHead != common.NullInum {
			head, err := f.readInodeRaw(f.sb.IHead)
			if err != nil {
				return common.NullInum, err
			}
			head.SetPrev(common.NullInum)
			if err := f.writeInodeRaw(f.sb.IHead, &head); err != nil {
				return common.NullInum, err
			}
		}
	}
	f.sb.IFree--
	if err := f.storeSuperBlock(); err != nil {
		return common.NullInum, err
	}

	if !ip.IsClean() {
		util.DPrintf(2, "AllocInode: cleaning dirty inode %d", n)
		if err := f.CleanInode(n); err != nil {
			return common.NullInum, err
		}
		ip, err = f.readInodeRaw(n)
		if err != nil {
			return common.NullInum, err
		}
	}

	ip.Mode = typ
	ip.RefCount = 0
	ip.Owner = uint32(os.Getuid())
	ip.Group = uint32(os.Getgid())
	ip.Size = 0
	ip.CluCount = 0
	for i := uint32(0); i < common.NDirect; i++ {
		ip.D[i] = common.NullCnum
	}
	ip.I1 = common.NullCnum
	ip.I2 = common.NullCnum
	t := now()
	ip.SetATime(t)
	ip.SetMTime(t)
	if err := f.writeInodeRaw(n, &ip); err != nil {
		return common.NullInum, err
	}
	util.DPrintf(2, "AllocInode: %d type %#x", n, typ)
	return n, nil
}

// FreeInode appends an in-use inode with no remaining links to the tail of
// the free list. The inode's contents are left behind (it becomes free in the
// dirty state when it still references clusters); cleaning is deferred to the
// next allocation.
func (f *FileSystem) FreeInode(n common.Inum) error {
	if n == common.RootInum {
		return fmt.Errorf("cannot free the root inode: %w", common.ErrInval)
	}
	ip, err := f.readInodeRaw(n)
	if err != nil {
		return err
	}
	if err := checkInUse(n, &ip); err != nil {
		return err
	}
	if ip.RefCount != 0 {
		return fmt.Errorf("inode %d still has %d links: %w",
			n, ip.RefCount, common.ErrInval)
	}

	ip.Mode |= common.InodeFree
	ip.SetNext(common.NullInum)
	if f.sb.ITail == common.NullInum {
		f.sb.IHead = n
		ip.SetPrev(common.NullInum)
	} else {
		ip.SetPrev(f.sb.ITail)
	}
	if err := f.writeInodeRaw(n, &ip); err != nil {
		return err
	}
	if f.sb.ITail != common.NullInum {
		tail, err := f.readInodeRaw(f.sb.ITail)
		if err != nil {
			return err
		}
		tail.SetNext(n)
		if err := f.writeInodeRaw(f.sb.ITail, &tail); err != nil {
			return err
		}
	}
	f.sb.ITail = n
	f.sb.IFree++
	util.DPrintf(2, "FreeInode: %d", n)
	return f.storeSuperBlock()
}

// CleanInode erases the reference lists of a free inode in the dirty state.
// Indirection clusters are cleaned and returned to the free structures; data
// cluster references are simply dropped, since those clusters were already
// freed when the file was deleted and will be cleaned lazily on reuse. The
// free-list links stay untouched. Inode 0 can never be cleaned.
func (f *FileSystem) CleanInode(n common.Inum) error {
	if n == common.RootInum {
		return fmt.Errorf("cannot clean the root inode: %w", common.ErrInval)
	}
	ip, err := f.readInodeRaw(n)
	if err != nil {
		return err
	}
	if err := checkFreeDirty(n, &ip); err != nil {
		return err
	}

	if ip.I2 != common.NullCnum {
		refs2, err := f.readRefs(ip.I2)
		if err != nil {
			return err
		}
		for j := range refs2 {
			if refs2[j] == common.NullCnum {
				continue
			}
			if err := f.freeIndirectionCluster(refs2[j]); err != nil {
				return err
			}
			refs2[j] = common.NullCnum
		}
		if err := f.freeIndirectionCluster(ip.I2); err != nil {
			return err
		}
		ip.I2 = common.NullCnum
	}

	if ip.I1 != common.NullCnum {
		if err := f.freeIndirectionCluster(ip.I1); err != nil {
			return err
		}
		ip.I1 = common.NullCnum
	}

	for i := uint32(0); i < common.NDirect; i++ {
		ip.D[i] = common.NullCnum
	}
	ip.RefCount = 0
	ip.Size = 0
	ip.CluCount = 0
	return f.writeInodeRaw(n, &ip)
}

// freeIndirectionCluster nulls the reference table of an indirection cluster,
// clears its stat so it re-enters the free structures clean, and frees it.
func (f *FileSystem) freeIndirectionCluster(c common.Cnum) error {
	if err := f.writeRefs(c, layout.NullRefs()); err != nil {
		return err
	}
	h, err := f.readHead(c)
	if err != nil {
		return err
	}
	h.Stat = common.NullInum
	if err := f.writeHead(c, &h); err != nil {
		return err
	}
	return f.FreeDataCluster(c)
}
