package fs

import (
	"fmt"

	"github.com/clusterfs/clusterfs/common"
	"github.com/clusterfs/clusterfs/layout"
	"github.com/clusterfs/clusterfs/util"
)

// Op selects what HandleFileCluster does with the cluster at a file index.
type Op int

const (
	// OpGet resolves the index to a logical cluster number, or NullCnum.
	OpGet Op = iota
	// OpAlloc allocates a cluster at the index, creating indirection
	// clusters on demand.
	OpAlloc
	// OpFree returns the cluster to the free structures but keeps the
	// reference, leaving it dirty for lazy cleaning.
	OpFree
	// OpFreeClean frees the cluster, erases its contents and drops the
	// reference.
	OpFreeClean
	// OpClean erases contents and reference of an already freed cluster;
	// the owning inode must be free in the dirty state.
	OpClean
)

// HandleFileCluster performs op on the cluster at index clustInd of the file
// owned by inode nInode. The index spans the direct zone, then the
// single-indirect zone, then the double-indirect zone. For OpGet and OpAlloc
// the resolved logical cluster number is returned.
//
// Indirection clusters whose reference tables become empty under OpFreeClean
// or OpClean are collapsed: their stat is cleared and they are freed, so they
// re-enter the free structures clean.
func (f *FileSystem) HandleFileCluster(nInode common.Inum, clustInd uint32, op Op) (common.Cnum, error) {
	if err := f.checkInum(nInode); err != nil {
		return common.NullCnum, err
	}
	if clustInd >= common.MaxFileClusters {
		return common.NullCnum, fmt.Errorf("file cluster index %d out of range: %w",
			clustInd, common.ErrInval)
	}
	status := InUse
	if op == OpClean {
		status = FreeDirty
	}
	ip, err := f.ReadInode(nInode, status)
	if err != nil {
		return common.NullCnum, err
	}

	var out common.Cnum
	switch {
	case clustInd < common.NDirect:
		out, err = f.handleDirect(nInode, &ip, clustInd, op)
	case clustInd < common.NDirect+common.RPC:
		out, err = f.handleSIndirect(nInode, &ip, clustInd, op)
	default:
		out, err = f.handleDIndirect(nInode, &ip, clustInd, op)
	}
	if err != nil {
		return common.NullCnum, err
	}
	if err := f.WriteInode(nInode, &ip, status); err != nil {
		return common.NullCnum, err
	}
	util.DPrintf(3, "HandleFileCluster: inode %d idx %d op %d -> %d", nInode, clustInd, op, out)
	return out, nil
}

func (f *FileSystem) handleDirect(nInode common.Inum, ip *layout.Inode, clustInd uint32, op Op) (common.Cnum, error) {
	switch op {
	case OpGet:
		return ip.D[clustInd], nil

	case OpAlloc:
		if ip.D[clustInd] != common.NullCnum {
			return common.NullCnum, fmt.Errorf("index %d: %w", clustInd, common.ErrClusterReferenced)
		}
		c, err := f.AllocDataCluster(nInode)
		if err != nil {
			return common.NullCnum, err
		}
		ip.D[clustInd] = c
		ip.CluCount++
		return c, nil

	case OpFree, OpFreeClean, OpClean:
		c := ip.D[clustInd]
		if c == common.NullCnum {
			return common.NullCnum, fmt.Errorf("index %d: %w", clustInd, common.ErrClusterNotReferenced)
		}
		if op != OpClean {
			if err := f.FreeDataCluster(c); err != nil {
				return common.NullCnum, err
			}
		}
		if op == OpFree {
			return common.NullCnum, nil
		}
		if err := f.cleanLogicalCluster(nInode, c); err != nil {
			return common.NullCnum, err
		}
		ip.D[clustInd] = common.NullCnum
		ip.CluCount--
		return common.NullCnum, nil
	}
	return common.NullCnum, fmt.Errorf("bad cluster op %d: %w", op, common.ErrInval)
}

func (f *FileSystem) handleSIndirect(nInode common.Inum, ip *layout.Inode, clustInd uint32, op Op) (common.Cnum, error) {
	idx := clustInd - common.NDirect

	if ip.I1 == common.NullCnum {
		switch op {
		case OpGet:
			return common.NullCnum, nil

		case OpAlloc:
			i1, err := f.AllocDataCluster(nInode)
			if err != nil {
				return common.NullCnum, err
			}
			ip.I1 = i1
			ip.CluCount++
			c, err := f.AllocDataCluster(nInode)
			if err != nil {
				return common.NullCnum, err
			}
			ip.CluCount++
			refs := layout.NullRefs()
			refs[idx] = c
			if err := f.writeRefs(i1, refs); err != nil {
				return common.NullCnum, err
			}
			return c, nil

		case OpFree, OpFreeClean, OpClean:
			return common.NullCnum, fmt.Errorf("index %d: %w", clustInd, common.ErrClusterNotReferenced)
		}
		return common.NullCnum, fmt.Errorf("bad cluster op %d: %w", op, common.ErrInval)
	}

	refs, err := f.readRefs(ip.I1)
	if err != nil {
		return common.NullCnum, err
	}
	switch op {
	case OpGet:
		return refs[idx], nil

	case OpAlloc:
		if refs[idx] != common.NullCnum {
			return common.NullCnum, fmt.Errorf("index %d: %w", clustInd, common.ErrClusterReferenced)
		}
		c, err := f.AllocDataCluster(nInode)
		if err != nil {
			return common.NullCnum, err
		}
		ip.CluCount++
		refs[idx] = c
		if err := f.writeRefs(ip.I1, refs); err != nil {
			return common.NullCnum, err
		}
		return c, nil

	case OpFree, OpFreeClean, OpClean:
		c := refs[idx]
		if c == common.NullCnum {
			return common.NullCnum, fmt.Errorf("index %d: %w", clustInd, common.ErrClusterNotReferenced)
		}
		if op != OpClean {
			if err := f.FreeDataCluster(c); err != nil {
				return common.NullCnum, err
			}
		}
		if op == OpFree {
			return common.NullCnum, nil
		}
		if err := f.cleanLogicalCluster(nInode, c); err != nil {
			return common.NullCnum, err
		}
		ip.CluCount--
		refs[idx] = common.NullCnum
		if err := f.writeRefs(ip.I1, refs); err != nil {
			return common.NullCnum, err
		}
		if layout.FirstUsedRef(refs) == -1 {
			if err := f.collapseIndirection(ip.I1); err != nil {
				return common.NullCnum, err
			}
			ip.I1 = common.NullCnum
			ip.CluCount--
		}
		return common.NullCnum, nil
	}
	return common.NullCnum, fmt.Errorf("bad cluster op %d: %w", op, common.ErrInval)
}

func (f *FileSystem) handleDIndirect(nInode common.Inum, ip *layout.Inode, clustInd uint32, op Op) (common.Cnum, error) {
	iIdx := (clustInd - common.NDirect - common.RPC) / common.RPC
	dIdx := (clustInd - common.NDirect - common.RPC) % common.RPC

	if ip.I2 == common.NullCnum {
		switch op {
		case OpGet:
			return common.NullCnum, nil

		case OpAlloc:
			i2, err := f.AllocDataCluster(nInode)
			if err != nil {
				return common.NullCnum, err
			}
			ip.I2 = i2
			ip.CluCount++
			single, err := f.AllocDataCluster(nInode)
			if err != nil {
				return common.NullCnum, err
			}
			ip.CluCount++
			i2refs := layout.NullRefs()
			i2refs[iIdx] = single
			if err := f.writeRefs(i2, i2refs); err != nil {
				return common.NullCnum, err
			}
			c, err := f.AllocDataCluster(nInode)
			if err != nil {
				return common.NullCnum, err
			}
			ip.CluCount++
			refs := layout.NullRefs()
			refs[dIdx] = c
			if err := f.writeRefs(single, refs); err != nil {
				return common.NullCnum, err
			}
			return c, nil

		case OpFree, OpFreeClean, OpClean:
			return common.NullCnum, fmt.Errorf("index %d: %w", clustInd, common.ErrClusterNotReferenced)
		}
		return common.NullCnum, fmt.Errorf("bad cluster op %d: %w", op, common.ErrInval)
	}

	i2refs, err := f.readRefs(ip.I2)
	if err != nil {
		return common.NullCnum, err
	}
	switch op {
	case OpGet:
		if i2refs[iIdx] == common.NullCnum {
			return common.NullCnum, nil
		}
		refs, err := f.readRefs(i2refs[iIdx])
		if err != nil {
			return common.NullCnum, err
		}
		return refs[dIdx], nil

	case OpAlloc:
		if i2refs[iIdx] == common.NullCnum {
			single, err := f.AllocDataCluster(nInode)
			if err != nil {
				return common.NullCnum, err
			}
			ip.CluCount++
			i2refs[iIdx] = single
			if err := f.writeRefs(ip.I2, i2refs); err != nil {
				return common.NullCnum, err
			}
			if err := f.writeRefs(single, layout.NullRefs()); err != nil {
				return common.NullCnum, err
			}
		}
		single := i2refs[iIdx]
		refs, err := f.readRefs(single)
		if err != nil {
			return common.NullCnum, err
		}
		if refs[dIdx] != common.NullCnum {
			return common.NullCnum, fmt.Errorf("index %d: %w", clustInd, common.ErrClusterReferenced)
		}
		c, err := f.AllocDataCluster(nInode)
		if err != nil {
			return common.NullCnum, err
		}
		ip.CluCount++
		refs[dIdx] = c
		if err := f.writeRefs(single, refs); err != nil {
			return common.NullCnum, err
		}
		return c, nil

	case OpFree, OpFreeClean, OpClean:
		single := i2refs[iIdx]
		if single == common.NullCnum {
			return common.NullCnum, fmt.Errorf("index %d: %w", clustInd, common.ErrClusterNotReferenced)
		}
		refs, err := f.readRefs(single)
		if err != nil {
			return common.NullCnum, err
		}
		c := refs[dIdx]
		if c == common.NullCnum {
			return common.NullCnum, fmt.Errorf("index %d: %w", clustInd, common.ErrClusterNotReferenced)
		}
		if op != OpClean {
			if err := f.FreeDataCluster(c); err != nil {
				return common.NullCnum, err
			}
		}
		if op == OpFree {
			return common.NullCnum, nil
		}
		if err := f.cleanLogicalCluster(nInode, c); err != nil {
			return common.NullCnum, err
		}
		refs[dIdx] = common.NullCnum
		if err := f.writeRefs(single, refs); err != nil {
			return common.NullCnum, err
		}
		ip.CluCount--
		if layout.FirstUsedRef(refs) == -1 {
			if err := f.collapseIndirection(single); err != nil {
				return common.NullCnum, err
			}
			i2refs[iIdx] = common.NullCnum
			if err := f.writeRefs(ip.I2, i2refs); err != nil {
				return common.NullCnum, err
			}
			ip.CluCount--
			if layout.FirstUsedRef(i2refs) == -1 {
				if err := f.collapseIndirection(ip.I2); err != nil {
					return common.NullCnum, err
				}
				ip.I2 = common.NullCnum
				ip.CluCount--
			}
		}
		return common.NullCnum, nil
	}
	return common.NullCnum, fmt.Errorf("bad cluster op %d: %w", op, common.ErrInval)
}

// collapseIndirection clears the stat of an emptied indirection cluster and
// frees it, so it re-enters the free structures clean.
func (f *FileSystem) collapseIndirection(c common.Cnum) error {
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

// cleanLogicalCluster erases the contents of a cluster owned by nInode and
// clears its stat. The cluster must actually name nInode as its owner.
func (f *FileSystem) cleanLogicalCluster(nInode common.Inum, c common.Cnum) error {
	h, err := f.readHead(c)
	if err != nil {
		return err
	}
	if h.Stat != nInode {
		return fmt.Errorf("cluster %d has stat %d, want %d: %w",
			c, h.Stat, nInode, common.ErrWrongOwner)
	}
	if err := f.writeBody(c, make([]byte, common.ClusterBodySize)); err != nil {
		return err
	}
	h.Stat = common.NullInum
	return f.writeHead(c, &h)
}
