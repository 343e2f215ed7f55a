package fs

import (
	"fmt"

	"github.com/clusterfs/clusterfs/common"
	"github.com/clusterfs/clusterfs/util"
)

// CleanDataCluster locates cluster nLClust among the references of inode
// nInode, which must be free in the dirty state, and cleans it. This is the
// lazy path taken when a dirty cluster is about to be reallocated: the old
// owner's reference lists are searched for the cluster so the reference can
// be dropped along with the contents.
//
// Only data cluster positions are searched. Indirection clusters always
// re-enter the free structures clean (their stat is nulled before freeing),
// so a dirty cluster naming this inode must be a leaf; anything else is an
// inconsistency.
func (f *FileSystem) CleanDataCluster(nInode common.Inum, nLClust common.Cnum) error {
	if err := f.checkCnum(nLClust); err != nil {
		return err
	}
	ip, err := f.ReadInode(nInode, FreeDirty)
	if err != nil {
		return err
	}
	util.DPrintf(2, "CleanDataCluster: inode %d cluster %d", nInode, nLClust)

	for k := uint32(0); k < common.NDirect; k++ {
		if ip.D[k] == nLClust {
			_, err := f.HandleFileCluster(nInode, k, OpClean)
			return err
		}
	}

	if ip.I1 != common.NullCnum {
		refs, err := f.readRefs(ip.I1)
		if err != nil {
			return err
		}
		for k := uint32(0); k < common.RPC; k++ {
			if refs[k] == nLClust {
				_, err := f.HandleFileCluster(nInode, common.NDirect+k, OpClean)
				return err
			}
		}
	}

	if ip.I2 != common.NullCnum {
		i2refs, err := f.readRefs(ip.I2)
		if err != nil {
			return err
		}
		for j := uint32(0); j < common.RPC; j++ {
			if i2refs[j] == common.NullCnum {
				continue
			}
			refs, err := f.readRefs(i2refs[j])
			if err != nil {
				return err
			}
			for k := uint32(0); k < common.RPC; k++ {
				if refs[k] == nLClust {
					idx := common.NDirect + common.RPC + j*common.RPC + k
					_, err := f.HandleFileCluster(nInode, idx, OpClean)
					return err
				}
			}
		}
	}

	return fmt.Errorf("cluster %d not referenced by inode %d: %w",
		nLClust, nInode, common.ErrClusterNotReferenced)
}
