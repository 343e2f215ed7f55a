package fs

import (
	"errors"
	"fmt"

	"github.com/clusterfs/clusterfs/common"
	"github.com/clusterfs/clusterfs/util"
)

// inCache reports whether cluster c sits in the active window of one of the
// free-cluster caches.
func (f *FileSystem) inCache(c common.Cnum) bool {
	for i := f.sb.Retriev.Idx; i < common.DZoneCacheSize; i++ {
		if f.sb.Retriev.Ref[i] == c {
			return true
		}
	}
	for i := uint32(0); i < f.sb.Insert.Idx; i++ {
		if f.sb.Insert.Ref[i] == c {
			return true
		}
	}
	return false
}

// isFreeCluster reports whether cluster c sits in one of the free
// structures: the on-disk list (either header link non-null) or a cache. The
// stat field plays no part here; it only distinguishes clean from dirty.
func (f *FileSystem) isFreeCluster(c common.Cnum) (bool, error) {
	h, err := f.readHead(c)
	if err != nil {
		return false, err
	}
	if h.InFreeList() {
		return true, nil
	}
	// A single-node list carries no links; only the superblock names it.
	if f.sb.DHead == c && f.sb.DTail == c {
		return true, nil
	}
	return f.inCache(c), nil
}

// AllocDataCluster takes the next cluster from the retrieval cache,
// replenishing it from the on-disk list when empty, and allocates it to the
// given in-use inode. A dirty cluster is cleaned before reuse.
func (f *FileSystem) AllocDataCluster(nInode common.Inum) (common.Cnum, error) {
	if err := f.checkInum(nInode); err != nil {
		return common.NullCnum, err
	}
	if f.sb.DZoneFree == 0 {
		return common.NullCnum, fmt.Errorf("no free clusters: %w", common.ErrNoSpace)
	}
	ip, err := f.readInodeRaw(nInode)
	if err != nil {
		return common.NullCnum, err
	}
	if ip.IsFree() {
		return common.NullCnum, fmt.Errorf("owner inode %d is free: %w",
			nInode, common.ErrInodeInUseInval)
	}

	if f.sb.Retriev.Idx == common.DZoneCacheSize {
		if err := f.replenish(); err != nil {
			return common.NullCnum, err
		}
	}
	c := f.sb.Retriev.Ref[f.sb.Retriev.Idx]
	free, err := f.isFreeCluster(c)
	if err != nil {
		return common.NullCnum, err
	}
	if !free {
		return common.NullCnum, fmt.Errorf("retrieval cache holds allocated cluster %d: %w",
			c, common.ErrClusterInval)
	}
	h, err := f.readHead(c)
	if err != nil {
		return common.NullCnum, err
	}
	if h.InFreeList() {
		return common.NullCnum, fmt.Errorf("retrieval cache cluster %d is linked: %w",
			c, common.ErrClusterInval)
	}

	// Commit the cache consumption before any cleaning, so a Deplete issued
	// while cleaning sees consistent cache state.
	f.sb.DZoneFree--
	f.sb.Retriev.Idx++
	if err := f.storeSuperBlock(); err != nil {
		return common.NullCnum, err
	}

	if h.Stat != common.NullInum {
		util.DPrintf(2, "AllocDataCluster: cleaning dirty cluster %d (stat %d)", c, h.Stat)
		err := f.CleanDataCluster(h.Stat, c)
		if errors.Is(err, common.ErrFreeDirtyInodeInval) ||
			errors.Is(err, common.ErrClusterNotReferenced) {
			// The old owner was reclaimed and no longer references the
			// cluster. Nothing is left to unhook; scrub the contents here.
			util.DPrintf(2, "AllocDataCluster: owner %d gone, scrubbing %d", h.Stat, c)
			err = f.writeBody(c, make([]byte, common.ClusterBodySize))
		}
		if err != nil {
			return common.NullCnum, err
		}
		h, err = f.readHead(c)
		if err != nil {
			return common.NullCnum, err
		}
	}

	h.Prev = common.NullCnum
	h.Next = common.NullCnum
	h.Stat = nInode
	if err := f.writeHead(c, &h); err != nil {
		return common.NullCnum, err
	}
	util.DPrintf(2, "AllocDataCluster: %d -> inode %d", c, nInode)
	return c, nil
}

// FreeDataCluster returns an allocated cluster to the insertion cache,
// depleting the cache into the on-disk list first when full. The stat field
// is left as is; a cluster freed while still holding data stays dirty until
// the next allocation cleans it. Cluster 0 holds the root directory and is
// never freed.
func (f *FileSystem) FreeDataCluster(c common.Cnum) error {
	if c == 0 {
		return fmt.Errorf("cannot free the root directory cluster: %w", common.ErrInval)
	}
	if err := f.checkCnum(c); err != nil {
		return err
	}
	free, err := f.isFreeCluster(c)
	if err != nil {
		return err
	}
	if free {
		return fmt.Errorf("cluster %d: %w", c, common.ErrClusterInFreeList)
	}

	if f.sb.Insert.Idx == common.DZoneCacheSize {
		if err := f.deplete(); err != nil {
			return err
		}
	}
	h, err := f.readHead(c)
	if err != nil {
		return err
	}
	h.Prev = common.NullCnum
	h.Next = common.NullCnum
	if err := f.writeHead(c, &h); err != nil {
		return err
	}
	f.sb.Insert.Ref[f.sb.Insert.Idx] = c
	f.sb.Insert.Idx++
	f.sb.DZoneFree++
	util.DPrintf(2, "FreeDataCluster: %d (stat %d)", c, h.Stat)
	return f.storeSuperBlock()
}

// replenish refills the retrieval cache from the head of the on-disk free
// list, preserving FIFO order. When the list runs dry mid-way with free
// clusters still staged in the insertion cache, the insertion cache is
// depleted into the list and the loop continues.
func (f *FileSystem) replenish() error {
	if f.sb.DZoneFree == 0 {
		return fmt.Errorf("no free clusters: %w", common.ErrNoSpace)
	}
	if f.sb.DHead == common.NullCnum {
		if err := f.deplete(); err != nil {
			return err
		}
	}

	var aux [common.DZoneCacheSize]common.Cnum
	n := uint32(0)
	for n != common.DZoneCacheSize && f.sb.DHead != common.NullCnum {
		c := f.sb.DHead
		h, err := f.readHead(c)
		if err != nil {
			return err
		}
		if h.Next != common.NullCnum {
			next, err := f.readHead(h.Next)
			if err != nil {
				return err
			}
			next.Prev = common.NullCnum
			if err := f.writeHead(h.Next, &next); err != nil {
				return err
			}
		}
		aux[n] = c
		n++
		f.sb.DHead = h.Next
		h.Next = common.NullCnum
		if err := f.writeHead(c, &h); err != nil {
			return err
		}
		if f.sb.DHead == common.NullCnum {
			f.sb.DTail = common.NullCnum
		}
		if n != common.DZoneCacheSize && f.sb.DHead == common.NullCnum {
			if common.DZoneCacheSize-n < f.sb.DZoneFree {
				if err := f.deplete(); err != nil {
					return err
				}
			}
		}
	}

	// Fill back to front so the oldest list node is consumed first.
	for n > 0 {
		f.sb.Retriev.Idx--
		n--
		f.sb.Retriev.Ref[f.sb.Retriev.Idx] = aux[n]
	}
	util.DPrintf(2, "replenish: retrieval cache at idx %d", f.sb.Retriev.Idx)
	return f.storeSuperBlock()
}

// deplete appends the insertion cache, in order, to the tail of the on-disk
// free list, seeding the list when it is empty. An empty cache is a no-op.
func (f *FileSystem) deplete() error {
	if f.sb.Insert.Idx == 0 {
		return nil
	}
	i := uint32(0)
	if f.sb.DHead == common.NullCnum {
		f.sb.DHead = f.sb.Insert.Ref[0]
		f.sb.DTail = f.sb.DHead
		i++
	}
	for ; i < f.sb.Insert.Idx; i++ {
		c := f.sb.Insert.Ref[i]
		tail, err := f.readHead(f.sb.DTail)
		if err != nil {
			return err
		}
		h, err := f.readHead(c)
		if err != nil {
			return err
		}
		tail.Next = c
		h.Prev = f.sb.DTail
		h.Next = common.NullCnum
		if err := f.writeHead(f.sb.DTail, &tail); err != nil {
			return err
		}
		if err := f.writeHead(c, &h); err != nil {
			return err
		}
		f.sb.DTail = c
	}
	f.sb.Insert.Idx = 0
	util.DPrintf(2, "deplete: list tail at %d", f.sb.DTail)
	return f.storeSuperBlock()
}
