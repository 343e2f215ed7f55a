package fs

import (
	"fmt"

	"github.com/clusterfs/clusterfs/common"
	"github.com/clusterfs/clusterfs/util"
)

// HandleFileClusters applies op to every populated cluster reference from
// index clustIndIn to the end of the file. The double-indirect zone is
// processed first, then the single-indirect zone, then the direct zone. Only
// OpFree, OpFreeClean and OpClean are meaningful over a range.
func (f *FileSystem) HandleFileClusters(nInode common.Inum, clustIndIn uint32, op Op) error {
	switch op {
	case OpFree, OpFreeClean, OpClean:
	default:
		return fmt.Errorf("bad range op %d: %w", op, common.ErrInval)
	}
	if clustIndIn >= common.MaxFileClusters {
		return fmt.Errorf("file cluster index %d out of range: %w",
			clustIndIn, common.ErrInval)
	}
	status := InUse
	if op == OpClean {
		status = FreeDirty
	}
	ip, err := f.ReadInode(nInode, status)
	if err != nil {
		return err
	}
	util.DPrintf(2, "HandleFileClusters: inode %d from %d op %d", nInode, clustIndIn, op)

	// Our own calls are the only mutator, and they only clear the slot they
	// handle, so per-table snapshots stay valid: a collapse can only trigger
	// on the last populated slot of a table.
	if ip.I2 != common.NullCnum {
		i2refs, err := f.readRefs(ip.I2)
		if err != nil {
			return err
		}
		base := common.NDirect + common.RPC
		for j := uint32(0); j < common.RPC; j++ {
			if i2refs[j] == common.NullCnum {
				continue
			}
			refs, err := f.readRefs(i2refs[j])
			if err != nil {
				return err
			}
			for k := uint32(0); k < common.RPC; k++ {
				idx := base + j*common.RPC + k
				if idx < clustIndIn || refs[k] == common.NullCnum {
					continue
				}
				if _, err := f.HandleFileCluster(nInode, idx, op); err != nil {
					return err
				}
			}
		}
	}

	if clustIndIn < common.NDirect+common.RPC && ip.I1 != common.NullCnum {
		refs, err := f.readRefs(ip.I1)
		if err != nil {
			return err
		}
		for k := uint32(0); k < common.RPC; k++ {
			idx := common.NDirect + k
			if idx < clustIndIn || refs[k] == common.NullCnum {
				continue
			}
			if _, err := f.HandleFileCluster(nInode, idx, op); err != nil {
				return err
			}
		}
	}

	for k := clustIndIn; k < common.NDirect; k++ {
		if ip.D[k] == common.NullCnum {
			continue
		}
		if _, err := f.HandleFileCluster(nInode, k, op); err != nil {
			return err
		}
	}
	return nil
}
