package fsck

import (
	"fmt"

	"github.com/clusterfs/clusterfs/common"
)

// CheckClusterCaches validates both superblock caches: indices in bounds,
// every staged reference in range, unlinked, not cached twice, and clean in
// the retrieval cache's case.
func (c *Checker) CheckClusterCaches() error {
	sb := c.sb
	if sb.Retriev.Idx > common.DZoneCacheSize {
		return fmt.Errorf("retrieval index %d: %w", sb.Retriev.Idx, ErrRetrievIdx)
	}
	if sb.Insert.Idx > common.DZoneCacheSize {
		return fmt.Errorf("insertion index %d: %w", sb.Insert.Idx, ErrInsertIdx)
	}

	for i := sb.Retriev.Idx; i < common.DZoneCacheSize; i++ {
		cl := sb.Retriev.Ref[i]
		if cl == common.NullCnum || cl >= sb.DZoneTotal {
			return fmt.Errorf("retrieval slot %d holds %d: %w", i, cl, ErrRetrievRef)
		}
		if c.clusterHas(cl, clustInRetriev|clustInInsert) {
			return fmt.Errorf("cluster %d: %w", cl, ErrCacheDup)
		}
		h, err := c.readHead(cl)
		if err != nil {
			return err
		}
		if h.InFreeList() {
			return fmt.Errorf("retrieval cluster %d is linked: %w", cl, ErrRetrievRef)
		}
		if h.Stat != common.NullInum {
			return fmt.Errorf("retrieval cluster %d has stat %d: %w",
				cl, h.Stat, ErrRetrievDirty)
		}
		c.markCluster(cl, clustInRetriev)
	}

	for i := uint32(0); i < sb.Insert.Idx; i++ {
		cl := sb.Insert.Ref[i]
		if cl == common.NullCnum || cl >= sb.DZoneTotal {
			return fmt.Errorf("insertion slot %d holds %d: %w", i, cl, ErrInsertRef)
		}
		if c.clusterHas(cl, clustInRetriev|clustInInsert) {
			return fmt.Errorf("cluster %d: %w", cl, ErrCacheDup)
		}
		h, err := c.readHead(cl)
		if err != nil {
			return err
		}
		if h.InFreeList() {
			return fmt.Errorf("insertion cluster %d is linked: %w", cl, ErrInsertRef)
		}
		c.markCluster(cl, clustInInsert)
	}
	return nil
}

// CheckDataZone classifies every cluster by its header. A cluster with a
// non-null link belongs to the on-disk free list, as does the node named by
// DHead and DTail together when the list holds exactly one; the head and
// tail must each occur exactly once and agree with the superblock. Any other
// cluster with both links null is either cached, allocated (stat names an
// inode), or an orphan. The classification must conserve the superblock's
// free count: retrieval used + list length + insertion used == dzone free.
func (c *Checker) CheckDataZone() error {
	sb := c.sb
	headFound := false
	tailFound := false
	listCount := uint32(0)

	for cl := common.Cnum(0); cl < sb.DZoneTotal; cl++ {
		h, err := c.readHead(cl)
		if err != nil {
			return err
		}
		inList := h.InFreeList()
		if !inList && sb.DHead == cl && sb.DTail == cl {
			// A single-node list carries no links; only the superblock
			// names it.
			inList = true
		}
		if inList {
			if c.clusterHas(cl, clustInRetriev|clustInInsert) {
				return fmt.Errorf("cached cluster %d is linked: %w", cl, ErrClusterRef)
			}
			listCount++
			c.markCluster(cl, clustInList)
			if h.Prev == common.NullCnum {
				if headFound || sb.DHead != cl {
					return fmt.Errorf("cluster %d has a null prev link: %w",
						cl, ErrClusterHead)
				}
				headFound = true
			} else if h.Prev >= sb.DZoneTotal {
				return fmt.Errorf("cluster %d prev %d: %w", cl, h.Prev, ErrClusterRef)
			}
			if h.Next == common.NullCnum {
				if tailFound || sb.DTail != cl {
					return fmt.Errorf("cluster %d has a null next link: %w",
						cl, ErrClusterTail)
				}
				tailFound = true
			} else if h.Next >= sb.DZoneTotal {
				return fmt.Errorf("cluster %d next %d: %w", cl, h.Next, ErrClusterRef)
			}
			continue
		}
		// Unlinked: must be cached, allocated, or it is an orphan.
		if c.clusterHas(cl, clustInRetriev|clustInInsert) {
			continue
		}
		if h.Stat == common.NullInum {
			return fmt.Errorf("cluster %d: %w", cl, ErrOrphanCluster)
		}
	}

	if listCount > 0 && (!headFound || !tailFound) {
		return fmt.Errorf("free list head or tail missing from the zone: %w",
			ErrClusterBroken)
	}
	if sb.DHead == common.NullCnum && listCount > 0 {
		return fmt.Errorf("superblock list is empty but %d clusters are linked: %w",
			listCount, ErrClusterHead)
	}

	free := sb.RetrievUsed() + listCount + sb.InsertUsed()
	if free != sb.DZoneFree {
		return fmt.Errorf("retrieval %d + list %d + insertion %d != free %d: %w",
			sb.RetrievUsed(), listCount, sb.InsertUsed(), sb.DZoneFree, ErrConservation)
	}
	return nil
}

// CheckClusterList walks the on-disk free list from the head, verifying that
// no node is reached twice and that the back links hold, bounding the walk
// by the superblock's free cluster count.
func (c *Checker) CheckClusterList() error {
	sb := c.sb
	if sb.DHead == common.NullCnum {
		if sb.DTail != common.NullCnum {
			return fmt.Errorf("tail %d with a null head: %w", sb.DTail, ErrClusterTail)
		}
		return nil
	}

	prev := common.NullCnum
	cur := sb.DHead
	count := uint32(0)
	for cur != common.NullCnum {
		if cur >= sb.DZoneTotal {
			return fmt.Errorf("list reaches cluster %d: %w", cur, ErrClusterRef)
		}
		if c.clusterHas(cur, clustWalked) {
			return fmt.Errorf("cluster %d visited twice: %w", cur, ErrClusterLoop)
		}
		c.markCluster(cur, clustWalked)
		h, err := c.readHead(cur)
		if err != nil {
			return err
		}
		count++
		if count > sb.DZoneFree {
			return fmt.Errorf("walked %d nodes, superblock says %d free: %w",
				count, sb.DZoneFree, ErrClusterLoop)
		}
		if h.Prev != prev {
			return fmt.Errorf("cluster %d prev %d, want %d: %w",
				cur, h.Prev, prev, ErrClusterBroken)
		}
		prev = cur
		cur = h.Next
	}
	if prev != sb.DTail {
		return fmt.Errorf("list ends at %d, superblock tail is %d: %w",
			prev, sb.DTail, ErrClusterTail)
	}
	return nil
}
