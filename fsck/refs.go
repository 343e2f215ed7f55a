package fsck

import (
	"fmt"
	"strings"

	"github.com/clusterfs/clusterfs/common"
)

// findings accumulates problems during a full scan, so one run reports
// everything instead of stopping at the first bad reference. The kind of the
// first finding becomes the wrapped error.
type findings struct {
	kind error
	msgs []string
}

func (fs *findings) add(kind error, format string, a ...interface{}) {
	if fs.kind == nil {
		fs.kind = kind
	}
	fs.msgs = append(fs.msgs, fmt.Sprintf(format, a...))
}

func (fs *findings) err() error {
	if len(fs.msgs) == 0 {
		return nil
	}
	return fmt.Errorf("%d findings:\n%s: %w",
		len(fs.msgs), strings.Join(fs.msgs, "\n"), fs.kind)
}

// CheckReferences builds the cluster-to-inode reference map by walking the
// reference tree of every in-use inode. It accumulates every bad, duplicate
// or mis-owned reference, re-derives each inode's cluster count, and finally
// sweeps for allocated clusters nothing references.
func (c *Checker) CheckReferences() error {
	sb := c.sb
	var bad findings

	for n := common.Inum(0); n < sb.ITotal; n++ {
		ip, err := c.readInode(n)
		if err != nil {
			return err
		}
		if ip.IsFree() {
			continue
		}
		count := uint32(0)

		ref := func(cl common.Cnum, indirection bool) bool {
			if cl >= sb.DZoneTotal {
				bad.add(ErrBadRef, "inode %d references cluster %d out of range", n, cl)
				return false
			}
			if prev, dup := c.owner[cl]; dup {
				bad.add(ErrDoubleRef, "cluster %d referenced by inodes %d and %d", cl, prev, n)
				c.markCluster(cl, clustReferenced)
				return false
			}
			c.owner[cl] = n
			c.markCluster(cl, clustReferenced)
			count++
			h, err := c.readHead(cl)
			if err == nil && h.Stat != n {
				bad.add(ErrStatMismatch, "cluster %d has stat %d, referenced by inode %d", cl, h.Stat, n)
			}
			return !indirection || err == nil
		}

		for k := uint32(0); k < common.NDirect; k++ {
			if ip.D[k] != common.NullCnum {
				ref(ip.D[k], false)
			}
		}
		if ip.I1 != common.NullCnum && ref(ip.I1, true) {
			refs, err := c.readRefs(ip.I1)
			if err != nil {
				return err
			}
			for _, cl := range refs {
				if cl != common.NullCnum {
					ref(cl, false)
				}
			}
		}
		if ip.I2 != common.NullCnum && ref(ip.I2, true) {
			i2refs, err := c.readRefs(ip.I2)
			if err != nil {
				return err
			}
			for _, single := range i2refs {
				if single == common.NullCnum {
					continue
				}
				if !ref(single, true) {
					continue
				}
				refs, err := c.readRefs(single)
				if err != nil {
					return err
				}
				for _, cl := range refs {
					if cl != common.NullCnum {
						ref(cl, false)
					}
				}
			}
		}

		if count != ip.CluCount {
			bad.add(ErrCluCount, "inode %d has clucount %d but %d references", n, ip.CluCount, count)
		}
	}

	// An allocated cluster outside every free structure must be referenced.
	for cl := common.Cnum(0); cl < sb.DZoneTotal; cl++ {
		if c.clusterHas(cl, clustInRetriev|clustInInsert|clustInList|clustReferenced) {
			continue
		}
		h, err := c.readHead(cl)
		if err != nil {
			return err
		}
		if h.Stat != common.NullInum {
			bad.add(ErrStatMismatch, "cluster %d allocated to inode %d but unreferenced", cl, h.Stat)
		}
	}

	return bad.err()
}
