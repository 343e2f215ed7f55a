package fsck

import (
	"fmt"

	"github.com/clusterfs/clusterfs/common"
)

// CheckInodeTable scans every inode slot. Free inodes must carry list links
// that are null or in range; the head and tail of the list must each occur
// exactly once and agree with the superblock; the free count must match.
func (c *Checker) CheckInodeTable() error {
	sb := c.sb
	headFound := false
	tailFound := false
	freeCount := uint32(0)

	for n := common.Inum(0); n < sb.ITotal; n++ {
		ip, err := c.readInode(n)
		if err != nil {
			return err
		}
		c.markInode(n, inodeSeen)
		if !ip.IsFree() {
			continue
		}
		freeCount++

		if ip.Prev() == common.NullInum {
			if headFound || sb.IHead != n {
				return fmt.Errorf("inode %d has a null prev link: %w", n, ErrInodeHead)
			}
			headFound = true
		} else if ip.Prev() >= sb.ITotal {
			return fmt.Errorf("inode %d prev %d: %w", n, ip.Prev(), ErrInodeRef)
		}

		if ip.Next() == common.NullInum {
			if tailFound || sb.ITail != n {
				return fmt.Errorf("inode %d has a null next link: %w", n, ErrInodeTail)
			}
			tailFound = true
		} else if ip.Next() >= sb.ITotal {
			return fmt.Errorf("inode %d next %d: %w", n, ip.Next(), ErrInodeRef)
		}
	}

	if freeCount != sb.IFree {
		return fmt.Errorf("%d free inodes in the table, superblock says %d: %w",
			freeCount, sb.IFree, ErrInodeFreeCount)
	}
	if sb.IFree > 0 && (!headFound || !tailFound) {
		return fmt.Errorf("free list head or tail missing from the table: %w",
			ErrInodeListBroken)
	}
	return nil
}

// CheckInodeList walks the free inode list from the head, verifying that
// every node is free and reached once, that each back link names the node
// just visited, and that the walk covers exactly the superblock's free
// count.
func (c *Checker) CheckInodeList() error {
	sb := c.sb
	if sb.IFree == 0 {
		return nil
	}

	prev := common.NullInum
	cur := sb.IHead
	count := uint32(0)
	for cur != common.NullInum {
		if cur >= sb.ITotal {
			return fmt.Errorf("list reaches inode %d: %w", cur, ErrInodeRef)
		}
		ip, err := c.readInode(cur)
		if err != nil {
			return err
		}
		if !ip.IsFree() {
			return fmt.Errorf("inode %d: %w", cur, ErrInodeNotFree)
		}
		if c.inodeHas(cur, inodeInList) {
			return fmt.Errorf("inode %d visited twice: %w", cur, ErrInodeListLoop)
		}
		c.markInode(cur, inodeInList)
		count++
		if count > sb.IFree {
			return fmt.Errorf("walked %d nodes, superblock says %d free: %w",
				count, sb.IFree, ErrInodeListLoop)
		}
		if ip.Prev() != prev {
			return fmt.Errorf("inode %d prev %d, want %d: %w",
				cur, ip.Prev(), prev, ErrInodeListBroken)
		}
		prev = cur
		cur = ip.Next()
	}
	if prev != sb.ITail {
		return fmt.Errorf("list ends at %d, superblock tail is %d: %w",
			prev, sb.ITail, ErrInodeTail)
	}
	if count != sb.IFree {
		return fmt.Errorf("walked %d nodes, superblock says %d free: %w",
			count, sb.IFree, ErrInodeFreeCount)
	}
	return nil
}
